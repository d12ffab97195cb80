package thread

import "runtime"

type signal uint8

const (
	sigRun signal = iota
	sigAbort
)

// execContext is a suspended execution context: a goroutine parked on resume.
//
// Only the goroutine holding the baton may call wake or abort on another
// context. The resume channel holds at most one pending signal.
type execContext struct {
	resume chan signal

	// done is closed when a spawned goroutine has fully unwound.
	// nil for adopted contexts (thread 0).
	done chan struct{}

	// next receives the baton once this goroutine has unwound after Exit.
	next *execContext
}

// spawnContext creates a context that runs entry on its first resume.
func spawnContext(entry func()) *execContext {
	c := &execContext{
		resume: make(chan signal, 1),
		done:   make(chan struct{}),
	}
	go func() {
		// Deferred so that user defers run before the baton moves on.
		defer func() {
			next := c.next
			close(c.done)
			if next != nil {
				next.wake()
			}
		}()
		if <-c.resume == sigAbort {
			return
		}
		entry()
	}()
	return c
}

// adoptContext wraps the calling goroutine.
func adoptContext() *execContext {
	return &execContext{resume: make(chan signal, 1)}
}

func (c *execContext) wake() {
	c.resume <- sigRun
}

// park blocks until the baton comes back. An abort unwinds the goroutine.
func (c *execContext) park() {
	if <-c.resume == sigAbort {
		runtime.Goexit()
	}
}

// handoff passes the baton to next and terminates the calling goroutine.
func (c *execContext) handoff(next *execContext) {
	if c.done == nil {
		next.wake()
		runtime.Goexit()
	}
	c.next = next
	runtime.Goexit()
}

// abort unwinds a parked context and waits until it is gone. An adopted
// goroutine is not unwound: it stays parked and is never resumed.
func (c *execContext) abort() {
	if c.done == nil {
		return
	}
	c.resume <- sigAbort
	<-c.done
}
