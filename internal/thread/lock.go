package thread

import "strconv"

// Mutex is a sleeping lock for runtime threads.
//
// Release wakes every waiter and each one re-checks the lock, so a
// contended release costs one wakeup per sleeper. Waiters are not handed
// the lock in order.
type Mutex struct {
	rt    *Runtime
	held  bool
	owner Tid
	wq    *WaitQueue
}

// NewMutex creates an unlocked mutex.
func (r *Runtime) NewMutex() *Mutex {
	enabled := r.intr.off()
	defer r.intr.set(enabled)
	return &Mutex{rt: r, owner: None, wq: r.newWaitQueueLocked()}
}

// Destroy frees the mutex's wait queue.
func (m *Mutex) Destroy() {
	r := m.rt
	enabled := r.intr.off()
	defer r.intr.set(enabled)
	r.destroyWaitQueueLocked(m.wq)
}

// Acquire sleeps until the mutex is free, then takes it.
func (m *Mutex) Acquire() {
	r := m.rt
	enabled := r.intr.off()
	m.acquireLocked()
	r.intr.set(enabled)
}

func (m *Mutex) acquireLocked() {
	r := m.rt
	for m.held {
		if _, err := r.sleepLocked(m.wq); err != nil {
			panic("thread: deadlock acquiring mutex held by thread " + strconv.Itoa(int(m.owner)))
		}
	}
	m.held = true
	m.owner = r.current
}

// Release frees the mutex and wakes all of its waiters.
func (m *Mutex) Release() {
	r := m.rt
	enabled := r.intr.off()
	defer r.intr.set(enabled)
	m.releaseLocked()
}

func (m *Mutex) releaseLocked() {
	m.held = false
	m.owner = None
	m.rt.wakeupLocked(m.wq, true, nil)
}

// HeldBy reports whether thread id holds the mutex.
func (m *Mutex) HeldBy(id Tid) bool {
	return m.held && m.owner == id
}

// Cond is a condition variable paired with a Mutex at each call.
type Cond struct {
	rt *Runtime
	wq *WaitQueue
}

// NewCond creates a condition variable with no waiters.
func (r *Runtime) NewCond() *Cond {
	enabled := r.intr.off()
	defer r.intr.set(enabled)
	return &Cond{rt: r, wq: r.newWaitQueueLocked()}
}

// Destroy frees the condition variable's wait queue.
func (c *Cond) Destroy() {
	r := c.rt
	enabled := r.intr.off()
	defer r.intr.set(enabled)
	r.destroyWaitQueueLocked(c.wq)
}

// Wait releases m, sleeps until signaled, and reacquires m before returning.
// The caller must hold m. If no other thread could ever signal, Wait returns
// ErrNoRunnable with m held again.
func (c *Cond) Wait(m *Mutex) error {
	r := c.rt
	enabled := r.intr.off()
	if !m.HeldBy(r.current) {
		r.intr.set(enabled)
		return ErrNotOwner
	}
	m.releaseLocked()
	_, err := r.sleepLocked(c.wq)
	m.acquireLocked()
	r.intr.set(enabled)
	return err
}

// Signal wakes one waiter. It does nothing unless the caller holds m.
func (c *Cond) Signal(m *Mutex) {
	r := c.rt
	enabled := r.intr.off()
	defer r.intr.set(enabled)
	if m.HeldBy(r.current) {
		r.wakeupLocked(c.wq, false, nil)
	}
}

// Broadcast wakes every waiter. It does nothing unless the caller holds m.
func (c *Cond) Broadcast(m *Mutex) {
	r := c.rt
	enabled := r.intr.off()
	defer r.intr.set(enabled)
	if m.HeldBy(r.current) {
		r.wakeupLocked(c.wq, true, nil)
	}
}
