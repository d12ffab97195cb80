package thread

// interrupts is the runtime's preemption mask.
//
// It is not reentrant: callers save the previous state and restore it, so
// nested critical sections compose.
type interrupts struct {
	enabled bool
}

// set changes the mask and returns the previous state.
func (in *interrupts) set(enabled bool) bool {
	prev := in.enabled
	in.enabled = enabled
	return prev
}

func (in *interrupts) off() bool { return in.set(false) }

func (in *interrupts) assertOff(op string) {
	if in.enabled {
		panic("thread: " + op + " called with interrupts enabled")
	}
}

// InterruptsSet enables or disables interrupts for the running thread and
// returns the previous state.
func (r *Runtime) InterruptsSet(enabled bool) bool {
	return r.intr.set(enabled)
}

// InterruptsEnabled reports the current mask state.
func (r *Runtime) InterruptsEnabled() bool {
	return r.intr.enabled
}
