package thread

import (
	"errors"
	"testing"
	"time"
)

// drain yields until no other thread is runnable.
func drain(t *testing.T, r *Runtime) {
	t.Helper()
	for i := 0; i < 10_000; i++ {
		if _, err := r.Yield(Any); errors.Is(err, ErrNoRunnable) {
			return
		}
	}
	t.Fatalf("threads still runnable after 10000 yields")
}

func TestCreateRunsThreadsInFIFOOrder(t *testing.T) {
	r := New(Config{})
	var order []Tid

	for i := 0; i < 3; i++ {
		if _, err := r.Create(func(any) { order = append(order, r.ID()) }, nil); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	if got := r.Runnable(); got != 4 {
		t.Fatalf("Runnable() = %d, want 4", got)
	}

	drain(t, r)

	want := []Tid{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	for _, id := range want {
		if st := r.Status(id); st != Init {
			t.Fatalf("Status(%d) = %v, want init after reclamation", id, st)
		}
	}
	if err := r.checkInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestYieldSelfAndInvalidTargets(t *testing.T) {
	r := New(Config{MaxThreads: 8})

	if id, err := r.Yield(Self); err != nil || id != 0 {
		t.Fatalf("Yield(Self) = %d, %v; want 0, nil", id, err)
	}
	if id, err := r.Yield(0); err != nil || id != 0 {
		t.Fatalf("Yield(0) = %d, %v; want 0, nil", id, err)
	}
	if id, err := r.Yield(Any); !errors.Is(err, ErrNoRunnable) || id != None {
		t.Fatalf("Yield(Any) = %d, %v; want None, ErrNoRunnable", id, err)
	}
	for _, bad := range []Tid{5, 8, 1 << 20, -100, Invalid} {
		if id, err := r.Yield(bad); !errors.Is(err, ErrInvalidThread) || id != Invalid {
			t.Fatalf("Yield(%d) = %d, %v; want Invalid, ErrInvalidThread", bad, id, err)
		}
	}
}

func TestCreateExhaustion(t *testing.T) {
	r := New(Config{MaxThreads: 3})
	defer r.Shutdown()

	for i := 0; i < 2; i++ {
		if _, err := r.Create(func(any) {}, nil); err != nil {
			t.Fatalf("Create() #%d error = %v", i, err)
		}
	}
	if id, err := r.Create(func(any) {}, nil); !errors.Is(err, ErrNoMoreThreads) || id != NoMore {
		t.Fatalf("Create() on full table = %d, %v; want NoMore, ErrNoMoreThreads", id, err)
	}

	m := New(Config{StackSize: 100, MemoryLimit: 150})
	defer m.Shutdown()
	if _, err := m.Create(func(any) {}, nil); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if id, err := m.Create(func(any) {}, nil); !errors.Is(err, ErrNoMemory) || id != NoMemory {
		t.Fatalf("Create() over memory limit = %d, %v; want NoMemory, ErrNoMemory", id, err)
	}
}

func TestSlotReusedAfterExit(t *testing.T) {
	r := New(Config{MaxThreads: 2})

	for i := 0; i < 5; i++ {
		id, err := r.Create(func(any) {}, nil)
		if err != nil {
			t.Fatalf("Create() round %d error = %v", i, err)
		}
		if id != 1 {
			t.Fatalf("Create() round %d = %d, want 1", i, id)
		}
		drain(t, r)
	}
}

func TestExplicitYieldPingPong(t *testing.T) {
	r := New(Config{})
	var trace []string

	peer, err := r.Create(func(any) {
		for i := 0; i < 3; i++ {
			trace = append(trace, "peer")
			if id, err := r.Yield(0); err != nil || id != 0 {
				t.Errorf("peer Yield(0) = %d, %v", id, err)
			}
		}
	}, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		trace = append(trace, "main")
		if id, err := r.Yield(peer); err != nil || id != peer {
			t.Fatalf("Yield(%d) = %d, %v; want %d, nil", peer, id, err, peer)
		}
	}
	drain(t, r)

	want := []string{"main", "peer", "main", "peer", "main", "peer"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace = %v, want %v", trace, want)
		}
	}
}

func TestArgumentPassedToEntry(t *testing.T) {
	r := New(Config{})
	var got any
	if _, err := r.Create(func(arg any) { got = arg }, "hello"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	drain(t, r)
	if got != "hello" {
		t.Fatalf("arg = %v, want hello", got)
	}
}

func TestKillReadyThreadNeverRuns(t *testing.T) {
	r := New(Config{})
	ran := false

	id, err := r.Create(func(any) { ran = true }, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got, err := r.Kill(id); err != nil || got != id {
		t.Fatalf("Kill(%d) = %d, %v", id, got, err)
	}
	if st := r.Status(id); st != Killed {
		t.Fatalf("Status() = %v, want killed", st)
	}
	if got := r.Runnable(); got != 1 {
		t.Fatalf("Runnable() = %d, want 1", got)
	}

	drain(t, r)

	if ran {
		t.Fatalf("killed thread ran its body")
	}
	if st := r.Status(id); st != Init {
		t.Fatalf("Status() = %v, want init after reclamation", st)
	}
}

func TestKillInvalidTargets(t *testing.T) {
	r := New(Config{MaxThreads: 4})

	for _, bad := range []Tid{0, 2, 4, -1, Any} {
		if id, err := r.Kill(bad); !errors.Is(err, ErrInvalidThread) || id != Invalid {
			t.Fatalf("Kill(%d) = %d, %v; want Invalid, ErrInvalidThread", bad, id, err)
		}
	}
}

func TestKillSleepingThreadFinishedOnWakeup(t *testing.T) {
	r := New(Config{})
	wq := r.NewWaitQueue()
	resumed := false

	id, err := r.Create(func(any) {
		r.Sleep(wq)
		resumed = true
	}, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	drain(t, r)
	if st := r.Status(id); st != Sleeping {
		t.Fatalf("Status() = %v, want sleeping", st)
	}

	if _, err := r.Kill(id); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}
	if n := r.Wakeup(wq, false); n != 0 {
		t.Fatalf("Wakeup() = %d, want 0 for a killed sleeper", n)
	}
	if resumed {
		t.Fatalf("killed sleeper resumed its body")
	}
	if st := r.Status(id); st != Exited {
		t.Fatalf("Status() = %v, want exited", st)
	}

	r.Yield(Self)
	if st := r.Status(id); st != Init {
		t.Fatalf("Status() = %v, want init after reclamation", st)
	}
	wq.Destroy()
}

func TestYieldToKilledSleeperFinishesIt(t *testing.T) {
	r := New(Config{})
	wq := r.NewWaitQueue()

	id, _ := r.Create(func(any) { r.Sleep(wq) }, nil)
	drain(t, r)
	r.Kill(id)

	if got, err := r.Yield(id); err != nil || got != id {
		t.Fatalf("Yield(killed) = %d, %v; want %d, nil", got, err, id)
	}
	if wq.Len() != 0 {
		t.Fatalf("wait queue still holds the killed thread")
	}
	if err := r.checkInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
	wq.Destroy()
}

func TestWaitDeliversExitCodeToEveryJoiner(t *testing.T) {
	r := New(Config{})
	var codes []int

	target, _ := r.Create(func(any) {
		r.Yield(Any)
		r.Exit(42)
	}, nil)
	for i := 0; i < 2; i++ {
		r.Create(func(any) {
			_, code, err := r.Wait(target)
			if err != nil {
				t.Errorf("Wait() error = %v", err)
			}
			codes = append(codes, code)
		}, nil)
	}

	id, code, err := r.Wait(target)
	if err != nil || id != target || code != 42 {
		t.Fatalf("Wait(%d) = %d, %d, %v; want %d, 42, nil", target, id, code, err, target)
	}
	drain(t, r)

	if len(codes) != 2 || codes[0] != 42 || codes[1] != 42 {
		t.Fatalf("joiner codes = %v, want [42 42]", codes)
	}
	if _, _, err := r.Wait(target); !errors.Is(err, ErrInvalidThread) {
		t.Fatalf("Wait() on reclaimed id error = %v, want ErrInvalidThread", err)
	}
}

func TestWaitOnKilledThread(t *testing.T) {
	r := New(Config{})
	id, _ := r.Create(func(any) {}, nil)
	r.Kill(id)

	got, code, err := r.Wait(id)
	if err != nil || got != id || code != ExitKilled {
		t.Fatalf("Wait(killed) = %d, %d, %v; want %d, %d, nil", got, code, err, id, ExitKilled)
	}
}

func TestWaitInvalidTargets(t *testing.T) {
	r := New(Config{MaxThreads: 4})

	for _, bad := range []Tid{0, 1, 4, -1, 1 << 30} {
		if id, _, err := r.Wait(bad); !errors.Is(err, ErrInvalidThread) || id != Invalid {
			t.Fatalf("Wait(%d) = %d, %v; want Invalid, ErrInvalidThread", bad, id, err)
		}
	}
}

func TestSleepAlone(t *testing.T) {
	r := New(Config{})
	wq := r.NewWaitQueue()
	defer wq.Destroy()

	if id, err := r.Sleep(wq); !errors.Is(err, ErrNoRunnable) || id != None {
		t.Fatalf("Sleep() alone = %d, %v; want None, ErrNoRunnable", id, err)
	}
	if id, err := r.Sleep(nil); !errors.Is(err, ErrInvalidThread) || id != Invalid {
		t.Fatalf("Sleep(nil) = %d, %v; want Invalid, ErrInvalidThread", id, err)
	}
	if st := r.Status(0); st != Running {
		t.Fatalf("Status(0) = %v, want running", st)
	}
}

func TestWakeupAllAndOne(t *testing.T) {
	r := New(Config{})
	wq := r.NewWaitQueue()
	var woke []Tid

	for i := 0; i < 3; i++ {
		r.Create(func(any) {
			r.Sleep(wq)
			woke = append(woke, r.ID())
		}, nil)
	}
	drain(t, r)
	if wq.Len() != 3 {
		t.Fatalf("wq.Len() = %d, want 3", wq.Len())
	}

	if n := r.Wakeup(wq, false); n != 1 {
		t.Fatalf("Wakeup(one) = %d, want 1", n)
	}
	if n := r.Wakeup(wq, true); n != 2 {
		t.Fatalf("Wakeup(all) = %d, want 2", n)
	}
	if n := r.Wakeup(wq, true); n != 0 {
		t.Fatalf("Wakeup() on empty queue = %d, want 0", n)
	}
	drain(t, r)

	want := []Tid{1, 2, 3}
	if len(woke) != 3 {
		t.Fatalf("woke = %v, want %v", woke, want)
	}
	for i := range want {
		if woke[i] != want[i] {
			t.Fatalf("woke = %v, want %v", woke, want)
		}
	}
	wq.Destroy()
}

func TestInvariantsHoldInsideThreads(t *testing.T) {
	r := New(Config{})
	wq := r.NewWaitQueue()
	var failures []error

	check := func() {
		if err := r.checkInvariants(); err != nil {
			failures = append(failures, err)
		}
	}
	for i := 0; i < 4; i++ {
		r.Create(func(any) {
			check()
			r.Yield(Any)
			check()
			r.Sleep(wq)
			check()
		}, nil)
	}
	drain(t, r)
	check()
	r.Wakeup(wq, true)
	check()
	drain(t, r)
	check()

	if len(failures) != 0 {
		t.Fatalf("invariant failures: %v", failures)
	}
	wq.Destroy()
}

func TestInterruptMask(t *testing.T) {
	r := New(Config{})
	if !r.InterruptsEnabled() {
		t.Fatalf("InterruptsEnabled() = false at start")
	}

	prev := r.InterruptsSet(false)
	inner := r.InterruptsSet(false)
	r.InterruptsSet(inner)
	if r.InterruptsEnabled() {
		t.Fatalf("nested restore re-enabled interrupts")
	}
	r.InterruptsSet(prev)

	var inThread bool
	r.Create(func(any) { inThread = r.InterruptsEnabled() }, nil)
	drain(t, r)
	if !inThread {
		t.Fatalf("new thread started with interrupts disabled")
	}
	if !r.InterruptsEnabled() {
		t.Fatalf("InterruptsEnabled() = false after yield returned")
	}
}

func TestExitOfLastThreadEndsProcess(t *testing.T) {
	exited := make(chan int, 1)

	// Thread 0 of this runtime sleeps forever, so it gets its own goroutine.
	go func() {
		r := New(Config{Exit: func(code int) { exited <- code }})
		wq := r.NewWaitQueue()
		r.Create(func(any) { r.Exit(7) }, nil)
		r.Sleep(wq)
	}()

	select {
	case code := <-exited:
		if code != 7 {
			t.Fatalf("exit code = %d, want 7", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Exit hook was not called")
	}
}

func TestShutdownAbortsThreads(t *testing.T) {
	r := New(Config{StackSize: 10, MemoryLimit: 100})
	wq := r.NewWaitQueue()
	unwound := 0

	for i := 0; i < 3; i++ {
		r.Create(func(any) {
			defer func() { unwound++ }()
			r.Sleep(wq)
			t.Errorf("aborted thread resumed")
		}, nil)
	}
	drain(t, r)
	r.Create(func(any) { t.Errorf("never-started thread ran") }, nil)

	if err := r.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if unwound != 3 {
		t.Fatalf("unwound = %d, want 3", unwound)
	}
	for id := Tid(1); id < 5; id++ {
		if st := r.Status(id); st != Init {
			t.Fatalf("Status(%d) = %v, want init", id, st)
		}
	}
	if r.Runnable() != 1 || r.stacks.inUse != 0 {
		t.Fatalf("Runnable() = %d, stacks in use = %d; want 1, 0", r.Runnable(), r.stacks.inUse)
	}
	wq.Destroy()
}

func TestKilledSleeperSlotReclaimed(t *testing.T) {
	r := New(Config{MaxThreads: 2, StackSize: 10, MemoryLimit: 10})
	wq := r.NewWaitQueue()

	id, err := r.Create(func(any) { r.Sleep(wq) }, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	drain(t, r)
	if _, err := r.Kill(id); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}
	drain(t, r)

	if wq.Len() != 0 {
		t.Fatalf("wq.Len() = %d after reap, want 0", wq.Len())
	}
	if got, err := r.Create(func(any) {}, nil); err != nil || got != id {
		t.Fatalf("Create() after killing sleeper = %d, %v; want %d, nil", got, err, id)
	}
	drain(t, r)
	wq.Destroy()
}

func TestDestroyQueueFinishesKilledSleepers(t *testing.T) {
	r := New(Config{})
	wq := r.NewWaitQueue()

	id, _ := r.Create(func(any) { r.Sleep(wq) }, nil)
	drain(t, r)
	r.Kill(id)

	wq.Destroy()
	if st := r.Status(id); st != Exited {
		t.Fatalf("Status() = %v after Destroy, want exited", st)
	}
	if err := r.checkInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestKilledThreadUnwindsBeforeWakeupReturns(t *testing.T) {
	r := New(Config{})
	wq := r.NewWaitQueue()
	unwound := false

	id, _ := r.Create(func(any) {
		defer func() { unwound = true }()
		r.Sleep(wq)
	}, nil)
	drain(t, r)
	r.Kill(id)

	r.Wakeup(wq, true)
	if !unwound {
		t.Fatalf("deferred call of killed thread did not run")
	}
	if r.ID() != 0 {
		t.Fatalf("ID() = %d after finishing killed thread, want 0", r.ID())
	}
	wq.Destroy()
}

func TestKillThreadZero(t *testing.T) {
	type result struct {
		killed Tid
		err    error
		status Status
		reused Tid
	}
	results := make(chan result, 1)
	exited := make(chan int, 1)

	// Thread 0 is killed and never resumed, so it gets its own goroutine.
	go func() {
		r := New(Config{Exit: func(code int) { exited <- code }})
		r.Create(func(any) {
			var res result
			res.killed, res.err = r.Kill(0)
			res.status = r.Status(0)
			r.Yield(Any)
			res.reused, _ = r.Create(func(any) { r.Exit(5) }, nil)
			results <- res
		}, nil)
		r.Yield(Any)
		t.Errorf("killed thread 0 resumed")
	}()

	select {
	case res := <-results:
		if res.killed != 0 || res.err != nil || res.status != Killed {
			t.Fatalf("Kill(0) = %d, %v with status %v; want 0, nil, killed", res.killed, res.err, res.status)
		}
		if res.reused != 0 {
			t.Fatalf("Create() after reaping thread 0 = %d, want 0", res.reused)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("killer thread did not report")
	}
	select {
	case code := <-exited:
		if code != 5 {
			t.Fatalf("exit code = %d, want 5", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Exit hook was not called")
	}
}
