package thread

// stackBudget accounts stack reservations against an optional limit.
//
// The goroutine backing a thread owns its real stack; the budget is what
// makes thread creation fail with ErrNoMemory instead of growing without bound.
type stackBudget struct {
	limit int // <= 0 means unlimited
	inUse int
}

type stack struct {
	size int
}

func (b *stackBudget) alloc(size int) (*stack, bool) {
	if b.limit > 0 && b.inUse+size > b.limit {
		return nil, false
	}
	b.inUse += size
	return &stack{size: size}, true
}

func (b *stackBudget) free(s *stack) {
	if s == nil {
		return
	}
	b.inUse -= s.size
}
