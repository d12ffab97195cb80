package thread

import "github.com/gammazero/deque"

// readyQueue holds runnable thread ids in scheduling order.
type readyQueue = deque.Deque[Tid]

// WaitQueue is an ordered set of threads blocked on one rendezvous point.
//
// A WaitQueue belongs to whoever created it (a Mutex, a Cond, a thread's
// join slot, or the caller of NewWaitQueue) and must be empty when destroyed.
type WaitQueue struct {
	rt        *Runtime
	ids       readyQueue
	destroyed bool
}

// NewWaitQueue creates an empty wait queue registered with the runtime.
func (r *Runtime) NewWaitQueue() *WaitQueue {
	enabled := r.intr.off()
	defer r.intr.set(enabled)
	return r.newWaitQueueLocked()
}

func (r *Runtime) newWaitQueueLocked() *WaitQueue {
	wq := &WaitQueue{rt: r}
	r.queues[wq] = struct{}{}
	return wq
}

// Destroy unregisters the queue. Killed threads still on it are finished;
// destroying a queue with live sleepers on it is a programming error.
func (wq *WaitQueue) Destroy() {
	r := wq.rt
	enabled := r.intr.off()
	defer r.intr.set(enabled)
	r.destroyWaitQueueLocked(wq)
}

func (r *Runtime) destroyWaitQueueLocked(wq *WaitQueue) {
	if wq == nil || wq.destroyed {
		return
	}
	// Killed sleepers are finished here. Anyone else still asleep is a bug.
	for i := wq.ids.Len() - 1; i >= 0; i-- {
		if id := wq.ids.At(i); r.threads[id].status == Killed {
			r.finishKilled(id)
		}
	}
	if wq.ids.Len() != 0 {
		panic("thread: destroying a wait queue with sleeping threads")
	}
	wq.destroyed = true
	delete(r.queues, wq)
}

// Len returns the number of sleepers.
func (wq *WaitQueue) Len() int {
	return wq.ids.Len()
}

func (wq *WaitQueue) push(id Tid) {
	if wq.destroyed {
		panic("thread: sleeping on a destroyed wait queue")
	}
	wq.ids.PushBack(id)
}

func (wq *WaitQueue) pop() (Tid, bool) {
	if wq.ids.Len() == 0 {
		return None, false
	}
	return wq.ids.PopFront(), true
}

// removeID deletes id from q, reporting whether it was present.
func removeID(q *readyQueue, id Tid) bool {
	i := q.Index(func(t Tid) bool { return t == id })
	if i < 0 {
		return false
	}
	q.Remove(i)
	return true
}
