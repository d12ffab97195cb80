package thread

import "runtime"

// Create starts a new thread running fn(arg). The thread is Ready and placed
// at the tail of the ready queue; it first runs when some thread yields to it.
func (r *Runtime) Create(fn func(arg any), arg any) (Tid, error) {
	enabled := r.intr.off()
	defer r.intr.set(enabled)

	id := r.freeSlot()
	if id < 0 {
		return NoMore, ErrNoMoreThreads
	}
	stk, ok := r.stacks.alloc(r.cfg.StackSize)
	if !ok {
		return NoMemory, ErrNoMemory
	}

	t := &r.threads[id]
	*t = tcb{
		status:  Ready,
		stack:   stk,
		joiners: r.newWaitQueueLocked(),
	}
	t.ctx = spawnContext(func() { r.stub(fn, arg) })
	r.ready.PushBack(id)
	r.runnable++

	r.log.Debug("thread created", "tid", int(id))
	return id, nil
}

// stub is the first frame of every created thread.
func (r *Runtime) stub(fn func(arg any), arg any) {
	r.intr.set(true)
	fn(arg)
	r.Exit(0)
}

// freeSlot returns an Init slot, or reclaims an Exited one. -1 when full.
func (r *Runtime) freeSlot() Tid {
	for i := range r.threads {
		id := Tid(i)
		switch r.threads[i].status {
		case Init:
			return id
		case Exited:
			if id != r.current {
				r.reclaim(id)
				return id
			}
		}
	}
	return -1
}

// Yield gives the processor to want (an id, Self or Any).
//
// Self and the caller's own id return immediately. Any returns None with
// ErrNoRunnable when no other thread can run. Otherwise the caller goes to
// the ready tail and Yield returns want once the caller is scheduled again.
func (r *Runtime) Yield(want Tid) (Tid, error) {
	enabled := r.intr.off()
	id, err := r.yieldLocked(want)
	r.intr.set(enabled)
	return id, err
}

func (r *Runtime) yieldLocked(want Tid) (Tid, error) {
	r.intr.assertOff("yield")

	cur := r.current
	// A killed target never runs its body: scheduling it only finishes it.
	killedTarget := want != cur && r.inRange(want) && r.threads[want].status == Killed
	if r.threads[cur].status != Exited {
		r.reap()
	}
	if killedTarget {
		if r.threads[want].status == Killed {
			r.finishKilled(want)
		}
		return want, nil
	}

	if want == Self || want == cur {
		return cur, nil
	}

	if want == Any {
		if r.threads[cur].status == Running && r.ready.Len() == 0 {
			return None, ErrNoRunnable
		}
		if r.ready.Len() == 0 {
			panic("thread: no runnable thread left")
		}
		want = r.ready.PopFront()
		if r.threads[want].status != Ready {
			panic("thread: ready queue holds a " + r.threads[want].status.String() + " thread")
		}
		r.switchTo(want)
		return want, nil
	}

	if !r.inRange(want) || r.threads[want].status != Ready {
		return Invalid, ErrInvalidThread
	}
	removeID(&r.ready, want)
	r.switchTo(want)
	return want, nil
}

// switchTo saves the caller and resumes want. It returns when the caller is
// scheduled again, and never returns for an exited caller.
func (r *Runtime) switchTo(want Tid) {
	from := &r.threads[r.current]
	to := &r.threads[want]

	if from.status == Running {
		from.status = Ready
		r.ready.PushBack(r.current)
	}
	to.status = Running
	r.current = want

	self, next := from.ctx, to.ctx
	if from.status == Exited {
		self.handoff(next)
	}
	next.wake()
	self.park()
}

// reap finishes killed threads, unlinking sleepers from their wait queues,
// and reclaims exited ones, except the running thread.
func (r *Runtime) reap() {
	for i := range r.threads {
		id := Tid(i)
		if id == r.current {
			continue
		}
		t := &r.threads[i]
		if t.status == Killed {
			r.finishKilled(id)
		}
		if t.status == Exited {
			r.reclaim(id)
		}
	}
}

// finishKilled turns a killed thread into an exited one without running it:
// joiners get ExitKilled and its goroutine is unwound.
func (r *Runtime) finishKilled(id Tid) {
	t := &r.threads[id]
	if t.sleepingOn != nil {
		removeID(&t.sleepingOn.ids, id)
		t.sleepingOn = nil
	}
	t.status = Exited
	t.exitCode = ExitKilled
	code := ExitKilled
	r.wakeupLocked(t.joiners, true, &code)
	if t.ctx != nil {
		t.ctx.abort()
		t.ctx = nil
	}
	r.log.Debug("killed thread finished", "tid", int(id))
}

// reclaim frees an exited slot's stack and join queue.
func (r *Runtime) reclaim(id Tid) {
	t := &r.threads[id]
	r.stacks.free(t.stack)
	r.destroyWaitQueueLocked(t.joiners)
	*t = tcb{status: Init}
}

// Kill marks a ready or sleeping thread as killed. The thread never runs its
// body again; it is finished on the next scheduling pass, when it is woken
// from the queue it sleeps on, or when that queue is destroyed.
//
// Finishing unwinds the thread's goroutine, so its deferred calls run while
// another thread is current. They must not call into the runtime. Killing
// thread 0 leaves the goroutine that called New parked for good.
func (r *Runtime) Kill(id Tid) (Tid, error) {
	enabled := r.intr.off()
	defer r.intr.set(enabled)

	if !r.inRange(id) || id == r.current {
		return Invalid, ErrInvalidThread
	}
	t := &r.threads[id]
	switch t.status {
	case Ready:
		removeID(&r.ready, id)
		r.runnable--
	case Sleeping:
	default:
		return Invalid, ErrInvalidThread
	}
	t.status = Killed
	r.log.Debug("thread killed", "tid", int(id))
	return id, nil
}

// Exit ends the running thread with code and never returns. Deferred calls
// of the thread run after the next thread has been chosen and must not call
// into the runtime.
//
// If no other thread is runnable and nobody is waiting to join, the process
// ends through Config.Exit.
func (r *Runtime) Exit(code int) {
	r.intr.off()
	r.reap()

	cur := &r.threads[r.current]
	if r.runnable == 1 && cur.joiners.Len() == 0 {
		r.log.Debug("last thread exiting", "tid", int(r.current), "code", code)
		r.cfg.Exit(code)
		runtime.Goexit()
	}

	cur.status = Exited
	cur.exitCode = code
	r.runnable--
	r.wakeupLocked(cur.joiners, true, &code)
	r.log.Debug("thread exited", "tid", int(r.current), "code", code)

	r.yieldLocked(Any)
	panic("thread: exited thread was resumed")
}

// Sleep suspends the running thread on wq and runs another thread.
// It returns ErrNoRunnable without sleeping if nothing else could run.
func (r *Runtime) Sleep(wq *WaitQueue) (Tid, error) {
	enabled := r.intr.off()
	id, err := r.sleepLocked(wq)
	r.intr.set(enabled)
	return id, err
}

func (r *Runtime) sleepLocked(wq *WaitQueue) (Tid, error) {
	r.intr.assertOff("sleep")

	if wq == nil || wq.destroyed {
		return Invalid, ErrInvalidThread
	}
	if r.runnable == 1 {
		return None, ErrNoRunnable
	}
	cur := &r.threads[r.current]
	cur.status = Sleeping
	cur.sleepingOn = wq
	wq.push(r.current)
	r.runnable--
	return r.yieldLocked(Any)
}

// Wakeup moves one sleeper (or every sleeper, if all) from wq to the ready
// queue and returns how many threads were woken.
func (r *Runtime) Wakeup(wq *WaitQueue, all bool) int {
	enabled := r.intr.off()
	defer r.intr.set(enabled)
	return r.wakeupLocked(wq, all, nil)
}

// wakeupLocked wakes sleepers in order. Killed sleepers are finished instead
// and do not count. If code is non-nil it is delivered to each woken thread.
func (r *Runtime) wakeupLocked(wq *WaitQueue, all bool, code *int) int {
	r.intr.assertOff("wakeup")

	if wq == nil {
		return 0
	}
	woken := 0
	for {
		id, ok := wq.pop()
		if !ok {
			break
		}
		t := &r.threads[id]
		t.sleepingOn = nil
		switch t.status {
		case Killed:
			r.finishKilled(id)
			continue
		case Sleeping:
		default:
			panic("thread: woke a " + t.status.String() + " thread")
		}
		t.status = Ready
		if code != nil {
			t.joinCode = *code
		}
		r.ready.PushBack(id)
		r.runnable++
		woken++
		if !all {
			break
		}
	}
	return woken
}

// Wait blocks until thread id exits and returns its exit code.
//
// Waiting on the caller itself, an out of range id, or a free slot fails
// with ErrInvalidThread. Waiting on a killed thread finishes it at once.
func (r *Runtime) Wait(id Tid) (Tid, int, error) {
	enabled := r.intr.off()
	id, code, err := r.waitLocked(id)
	r.intr.set(enabled)
	return id, code, err
}

func (r *Runtime) waitLocked(id Tid) (Tid, int, error) {
	if !r.inRange(id) || id == r.current {
		return Invalid, 0, ErrInvalidThread
	}
	t := &r.threads[id]
	switch t.status {
	case Init, Exited:
		return Invalid, 0, ErrInvalidThread
	case Killed:
		r.finishKilled(id)
		return id, ExitKilled, nil
	}

	if _, err := r.sleepLocked(t.joiners); err != nil {
		return None, 0, err
	}
	return id, r.threads[r.current].joinCode, nil
}
