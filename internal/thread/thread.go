package thread

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Tid identifies a thread. Valid ids are 0 through MaxThreads-1; the
// reserved values below are all negative.
type Tid int

const (
	Any      Tid = -1 // run any other runnable thread
	Self     Tid = -2 // the calling thread
	None     Tid = -3 // no-op result: nothing else could run
	Invalid  Tid = -4
	NoMore   Tid = -5
	NoMemory Tid = -6
)

// ExitKilled is the exit code joiners receive from a killed thread.
const ExitKilled = -9

const (
	DefaultMaxThreads = 1024
	DefaultStackSize  = 32 * 1024
)

var (
	ErrInvalidThread = errors.New("invalid thread")
	ErrNoMoreThreads = errors.New("no more threads")
	ErrNoMemory      = errors.New("no memory for thread stack")
	ErrNoRunnable    = errors.New("no other runnable thread")
	ErrNotOwner      = errors.New("lock not held by calling thread")
)

// Status is the scheduling state of one thread table slot.
type Status uint8

const (
	Init Status = iota
	Ready
	Running
	Sleeping
	Killed
	Exited
)

func (s Status) String() string {
	switch s {
	case Init:
		return "init"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Sleeping:
		return "sleeping"
	case Killed:
		return "killed"
	case Exited:
		return "exited"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Config controls thread table size and stack accounting.
//
// Zero values pick defaults:
//   - MaxThreads <= 0 means DefaultMaxThreads
//   - StackSize <= 0 means DefaultStackSize
//   - MemoryLimit <= 0 means stack reservations never fail
//   - Exit == nil means os.Exit
//   - Logger == nil discards runtime events
type Config struct {
	MaxThreads  int
	StackSize   int
	MemoryLimit int

	// Exit is called when the last runnable thread exits with nobody
	// waiting to join it.
	Exit func(code int)

	Logger *slog.Logger
}

// tcb is a thread control block.
type tcb struct {
	status  Status
	ctx     *execContext
	stack   *stack
	joiners *WaitQueue

	// sleepingOn is the queue this thread is enqueued on while Sleeping
	// (or Killed while sleeping).
	sleepingOn *WaitQueue

	exitCode int
	joinCode int // delivered by the thread this one joined
}

// Runtime is one cooperative scheduler: the thread table, ready queue,
// running thread and interrupt mask.
//
// Every method must be called from the goroutine of the running thread.
type Runtime struct {
	cfg    Config
	log    *slog.Logger
	intr   interrupts
	stacks stackBudget

	threads  []tcb
	ready    readyQueue
	queues   map[*WaitQueue]struct{}
	current  Tid
	runnable int // running thread + ready queue
}

// New initializes a runtime. The calling goroutine becomes thread 0 and is
// Running; interrupts start enabled.
func New(cfg Config) *Runtime {
	if cfg.MaxThreads <= 0 {
		cfg.MaxThreads = DefaultMaxThreads
	}
	if cfg.StackSize <= 0 {
		cfg.StackSize = DefaultStackSize
	}
	if cfg.Exit == nil {
		cfg.Exit = os.Exit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	r := &Runtime{
		cfg:     cfg,
		log:     logger,
		stacks:  stackBudget{limit: cfg.MemoryLimit},
		threads: make([]tcb, cfg.MaxThreads),
		queues:  make(map[*WaitQueue]struct{}),
	}

	t0 := &r.threads[0]
	t0.status = Running
	t0.ctx = adoptContext()
	t0.joiners = r.newWaitQueueLocked()
	r.current = 0
	r.runnable = 1
	r.intr.set(true)
	return r
}

// ID returns the id of the running thread.
func (r *Runtime) ID() Tid {
	return r.current
}

// Status reports the state of slot id. Out of range ids report Init.
func (r *Runtime) Status(id Tid) Status {
	if !r.inRange(id) {
		return Init
	}
	return r.threads[id].status
}

// Runnable returns the number of threads that are running or ready.
func (r *Runtime) Runnable() int {
	return r.runnable
}

func (r *Runtime) inRange(id Tid) bool {
	return id >= 0 && int(id) < len(r.threads)
}

// Shutdown aborts every thread other than thread 0 and frees all slots.
// It must be called from thread 0.
func (r *Runtime) Shutdown() error {
	enabled := r.intr.off()
	defer r.intr.set(enabled)

	if r.current != 0 {
		return fmt.Errorf("shutdown from thread %d: %w", r.current, ErrInvalidThread)
	}
	for i := 1; i < len(r.threads); i++ {
		t := &r.threads[i]
		switch t.status {
		case Ready, Sleeping, Killed:
			if t.sleepingOn != nil {
				removeID(&t.sleepingOn.ids, Tid(i))
				t.sleepingOn = nil
			}
			t.status = Exited
			t.ctx.abort()
			t.ctx = nil
		}
	}
	r.ready.Clear()
	r.runnable = 1
	for i := 1; i < len(r.threads); i++ {
		if r.threads[i].status == Exited {
			r.reclaim(Tid(i))
		}
	}
	r.log.Debug("runtime shut down")
	return nil
}

// checkInvariants verifies exclusivity and queue membership.
func (r *Runtime) checkInvariants() error {
	running := 0
	for i := range r.threads {
		id := Tid(i)
		t := &r.threads[i]

		inReady := 0
		for j := 0; j < r.ready.Len(); j++ {
			if r.ready.At(j) == id {
				inReady++
			}
		}
		inWait := 0
		for wq := range r.queues {
			for j := 0; j < wq.ids.Len(); j++ {
				if wq.ids.At(j) == id {
					inWait++
				}
			}
		}

		switch t.status {
		case Running:
			running++
			if id != r.current {
				return fmt.Errorf("thread %d running but current is %d", id, r.current)
			}
			if inReady+inWait != 0 {
				return fmt.Errorf("running thread %d is queued", id)
			}
		case Ready:
			if inReady != 1 || inWait != 0 {
				return fmt.Errorf("ready thread %d: ready=%d wait=%d", id, inReady, inWait)
			}
		case Sleeping:
			if inReady != 0 || inWait != 1 {
				return fmt.Errorf("sleeping thread %d: ready=%d wait=%d", id, inReady, inWait)
			}
		default:
			if inReady != 0 || inWait > 1 {
				return fmt.Errorf("%s thread %d: ready=%d wait=%d", t.status, id, inReady, inWait)
			}
		}
	}
	if running != 1 {
		return fmt.Errorf("%d running threads", running)
	}
	if r.runnable != r.ready.Len()+1 {
		return fmt.Errorf("runnable=%d, ready queue holds %d", r.runnable, r.ready.Len())
	}
	return nil
}
