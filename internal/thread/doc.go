// Package thread implements a user-level cooperative thread runtime.
//
// Goals for this package:
//   - Keep scheduling policy explicit: a fixed thread table, one ready queue,
//     and one wait queue per rendezvous point (join slot, mutex, cond)
//   - Run exactly one thread at a time; control moves only on Yield, Sleep or Exit
//   - Report exhaustion and bad ids as return values, never as aborts
//   - Reclaim finished and killed threads lazily, on the next scheduling pass
//
// Every thread is backed by a goroutine that is parked on its own resume
// channel whenever it is not the running thread. Switching threads hands the
// baton to the target and parks the caller, so the Go scheduler never has
// two runtime threads runnable at once.
package thread
