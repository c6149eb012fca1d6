package pawgraph

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// startWorker spawns an engine thread that runs setup once, then polls until
// the returned stop function is called
func startWorker(e *Engine, name string, setup func(t *ThreadContext)) (*ThreadContext, func()) {
	ready := make(chan struct{})
	stop := make(chan struct{})

	th := e.SpawnThread(name, func(t *ThreadContext) {
		if setup != nil {
			setup(t)
		}
		close(ready)
		for {
			select {
			case <-stop:
				return
			default:
				t.Poll()
				time.Sleep(100 * time.Microsecond)
			}
		}
	})
	<-ready

	return th, func() {
		close(stop)
		<-th.Done()
	}
}

func TestActionRunsOncePerThread(t *testing.T) {
	eng := New(nil)

	var stops []func()
	for _, name := range []string{"w1", "w2", "w3"} {
		_, stop := startWorker(eng, name, nil)
		stops = append(stops, stop)
	}
	defer func() {
		for _, stop := range stops {
			stop()
		}
	}()

	var mu sync.Mutex
	counts := make(map[string]int)
	err := eng.safepoints.PauseAllThreadsAndExecute(eng.MainThread(), true, func(tc *ThreadContext) {
		mu.Lock()
		counts[tc.Name()]++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}

	want := []string{"main", "w1", "w2", "w3"}
	if len(counts) != len(want) {
		t.Errorf("Expected %d participants, got %d: %v", len(want), len(counts), counts)
	}
	for _, name := range want {
		if counts[name] != 1 {
			t.Errorf("Expected action once for %s, got %d", name, counts[name])
		}
	}
}

func TestExcludeInitiator(t *testing.T) {
	eng := New(nil)
	_, stop := startWorker(eng, "w1", nil)
	defer stop()

	var mu sync.Mutex
	var seen []string
	err := eng.safepoints.PauseAllThreadsAndExecute(eng.MainThread(), false, func(tc *ThreadContext) {
		mu.Lock()
		seen = append(seen, tc.Name())
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}

	if len(seen) != 1 || seen[0] != "w1" {
		t.Errorf("Expected action only for w1, got %v", seen)
	}
}

func TestTimeoutReportsStuckThread(t *testing.T) {
	eng := New(&Config{SafepointTimeout: 200 * time.Millisecond})

	_, stopPoller := startWorker(eng, "poller", nil)
	defer stopPoller()

	// A thread that blocks without ever reaching a poll point.
	sleeperStop := make(chan struct{})
	sleeper := eng.SpawnThread("sleeper", func(t *ThreadContext) {
		<-sleeperStop
	})

	ran := int32(0)
	err := eng.safepoints.PauseAllThreadsAndExecute(eng.MainThread(), true, func(tc *ThreadContext) {
		atomic.AddInt32(&ran, 1)
	})

	var liveness *LivenessError
	if !errors.As(err, &liveness) {
		t.Fatalf("Expected LivenessError, got %v", err)
	}
	if len(liveness.Stuck) != 1 || liveness.Stuck[0] != "sleeper" {
		t.Errorf("Expected stuck thread [sleeper], got %v", liveness.Stuck)
	}

	// The poller must have been released: with the sleeper gone, a fresh
	// capture completes.
	close(sleeperStop)
	<-sleeper.Done()

	err = eng.safepoints.PauseAllThreadsAndExecute(eng.MainThread(), true, func(tc *ThreadContext) {})
	if err != nil {
		t.Errorf("Capture after recovery failed: %v", err)
	}
}

func TestReentrantCaptureRejected(t *testing.T) {
	eng := New(nil)
	_, stop := startWorker(eng, "w1", nil)
	defer stop()

	var mu sync.Mutex
	var nested error
	err := eng.safepoints.PauseAllThreadsAndExecute(eng.MainThread(), true, func(tc *ThreadContext) {
		if tc == eng.MainThread() {
			_, nestedErr := eng.SnapshotAll(eng.MainThread())
			mu.Lock()
			nested = nestedErr
			mu.Unlock()
		}
	})
	if err != nil {
		t.Fatalf("outer capture failed: %v", err)
	}

	var reentrancy *ReentrancyError
	if !errors.As(nested, &reentrancy) {
		t.Fatalf("Expected ReentrancyError from nested capture, got %v", nested)
	}
	if reentrancy.Thread != "main" {
		t.Errorf("Expected reentrancy reported for main, got %s", reentrancy.Thread)
	}
}

func TestCapturesFromTwoThreadsSerialize(t *testing.T) {
	logger := NewLogger(false)
	table := NewThreadTable()
	mgr := NewSafepointManager(table, 2*time.Second, logger)
	table.OnUnregister(mgr.ThreadExiting)

	newBare := func(name string) *ThreadContext {
		tc := &ThreadContext{name: name, mgr: mgr, done: make(chan struct{})}
		table.Register(tc)
		return tc
	}
	a := newBare("a")
	b := newBare("b")

	const captures = 5
	var actions int64
	var failures int64

	// Each goroutine keeps polling after its own captures finish, so the
	// slower initiator's remaining captures still see both participants.
	stop := make(chan struct{})
	var capturing sync.WaitGroup
	var wg sync.WaitGroup
	for _, initiator := range []*ThreadContext{a, b} {
		capturing.Add(1)
		wg.Add(1)
		go func(self *ThreadContext) {
			defer wg.Done()
			for i := 0; i < captures; i++ {
				err := mgr.PauseAllThreadsAndExecute(self, true, func(tc *ThreadContext) {
					atomic.AddInt64(&actions, 1)
				})
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
			capturing.Done()
			for {
				select {
				case <-stop:
					return
				default:
					mgr.Poll(self)
					time.Sleep(50 * time.Microsecond)
				}
			}
		}(initiator)
	}
	capturing.Wait()
	close(stop)
	wg.Wait()

	if failures != 0 {
		t.Fatalf("Expected all captures to succeed, %d failed", failures)
	}
	// 2 threads, action once per thread, 2*captures captures total.
	if actions != 2*2*captures {
		t.Errorf("Expected %d action invocations, got %d", 2*2*captures, actions)
	}
}

func TestThreadExitDuringRequestIsAccounted(t *testing.T) {
	eng := New(&Config{SafepointTimeout: time.Second})
	_, stop := startWorker(eng, "w1", nil)
	defer stop()

	// A short-lived thread exiting around capture time must not stall the
	// barrier: its final poll serves the request or its unregistration
	// removes it from the expected set.
	transient := eng.SpawnThread("transient", func(t *ThreadContext) {
		time.Sleep(10 * time.Millisecond)
	})

	err := eng.safepoints.PauseAllThreadsAndExecute(eng.MainThread(), true, func(tc *ThreadContext) {})
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	<-transient.Done()
}
