package pawgraph

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// buildCycle allocates A -> B -> C -> A
func buildCycle(eng *Engine) (a, b, c *HeapObject) {
	a = eng.NewObject()
	b = eng.NewObject()
	c = eng.NewObject()
	a.SetProperty("next", b)
	b.SetProperty("next", c)
	c.SetProperty("next", a)
	return a, b, c
}

func TestCaptureCycleVisitsEachObjectOnce(t *testing.T) {
	eng := New(nil)
	a, b, c := buildCycle(eng)

	frame := NewFrame(nil, nil, nil)
	frame.SetLocal("a", a)
	eng.MainThread().PushFrame(frame)
	defer eng.MainThread().PopFrame()

	set, err := eng.SnapshotAll(eng.MainThread())
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	for name, obj := range map[string]*HeapObject{"A": a, "B": b, "C": c} {
		if !set.Contains(obj) {
			t.Errorf("Expected %s in capture", name)
		}
	}

	// Exactly once is the set's invariant; the walk terminating on a cyclic
	// heap is the point of this test.
	ids := set.IDs()
	seen := make(map[int]bool)
	for _, id := range ids {
		if seen[id] {
			t.Errorf("Object %d appears twice in capture", id)
		}
		seen[id] = true
	}
}

func TestCaptureSpansThreads(t *testing.T) {
	eng := New(nil)

	x := eng.NewObject()
	y := eng.NewObject()

	frame := NewFrame(nil, nil, nil)
	frame.SetLocal("x", x)
	eng.MainThread().PushFrame(frame)
	defer eng.MainThread().PopFrame()

	worker, stop := startWorker(eng, "worker", func(tc *ThreadContext) {
		f := NewFrame(nil, nil, nil)
		f.SetLocal("y", y)
		tc.PushFrame(f)
	})
	defer stop()

	// The worker never invokes the operation; its stack is still captured.
	set, err := eng.SnapshotAll(eng.MainThread())
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	if !set.Contains(x) {
		t.Error("Expected initiator's X in capture")
	}
	if !set.Contains(y) {
		t.Error("Expected other thread's Y in capture")
	}
	if !set.Contains(eng.MainThread().Object()) {
		t.Error("Expected main thread object in capture")
	}
	if !set.Contains(worker.Object()) {
		t.Error("Expected worker thread object in capture")
	}
	if fiber := eng.MainThread().CurrentFiber(); !set.Contains(fiber.Object()) {
		t.Error("Expected main thread's current fiber object in capture")
	}
}

func TestRootsOnlyDoesNotExpand(t *testing.T) {
	eng := New(nil)
	a, b, c := buildCycle(eng)

	frame := NewFrame(nil, nil, nil)
	frame.SetLocal("a", a)
	eng.MainThread().PushFrame(frame)
	defer eng.MainThread().PopFrame()

	set, err := eng.SnapshotRoots(eng.MainThread())
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	if !set.Contains(a) {
		t.Error("Expected frame-held A in root capture")
	}
	if set.Contains(b) || set.Contains(c) {
		t.Error("Root capture must not expand beyond the frontier")
	}
}

func TestCaptureCompleteness(t *testing.T) {
	eng := New(nil)

	// A ten-deep property chain anchored in a frame slot.
	chain := make([]*HeapObject, 10)
	for i := range chain {
		chain[i] = eng.NewObject()
		if i > 0 {
			chain[i-1].SetProperty("next", chain[i])
		}
	}

	frame := NewFrame(nil, nil, nil)
	frame.SetLocal("head", chain[0])
	eng.MainThread().PushFrame(frame)
	defer eng.MainThread().PopFrame()

	set, err := eng.SnapshotAll(eng.MainThread())
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	for i, obj := range chain {
		if !set.Contains(obj) {
			t.Errorf("Expected chain[%d] in capture", i)
		}
	}
}

func TestCaptureSoundness(t *testing.T) {
	eng := New(nil)

	anchored := eng.NewObject()
	frame := NewFrame(nil, nil, nil)
	frame.SetLocal("kept", anchored)
	eng.MainThread().PushFrame(frame)
	defer eng.MainThread().PopFrame()

	// Allocated but referenced by nothing: must not appear.
	orphans := make([]*HeapObject, 5)
	for i := range orphans {
		orphans[i] = eng.NewObject()
	}

	set, err := eng.SnapshotAll(eng.MainThread())
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	if !set.Contains(anchored) {
		t.Error("Expected anchored object in capture")
	}
	for i, obj := range orphans {
		if set.Contains(obj) {
			t.Errorf("Orphan %d is unreachable but was captured", i)
		}
	}
}

func TestCaptureIncludesProcessRootsOnce(t *testing.T) {
	eng := New(nil)

	global := eng.NewObject()
	handler := eng.NewObject()
	finalizable := eng.NewObject()
	kept := eng.NewObject()
	eng.SetGlobal("$g", global)
	eng.AddExitHandler(handler)
	eng.RegisterFinalizer(finalizable, kept)

	// Several participating threads; the process roots still come from the
	// initiator alone.
	for i := 0; i < 3; i++ {
		_, stop := startWorker(eng, fmt.Sprintf("w%d", i), nil)
		defer stop()
	}

	set, err := eng.SnapshotAll(eng.MainThread())
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	for name, obj := range map[string]*HeapObject{
		"global":         global,
		"exit handler":   handler,
		"finalizer root": kept,
	} {
		if !set.Contains(obj) {
			t.Errorf("Expected %s in capture", name)
		}
	}
}

func TestObjectSetIdentityAndMonotonicity(t *testing.T) {
	eng := New(nil)
	a := eng.NewObject()
	b := eng.NewObject()
	// Domain-equal but distinct: same class, same (empty) property list.

	set := NewObjectSet()
	if !set.Add(a) {
		t.Error("First add of A should report newly added")
	}
	if set.Add(a) {
		t.Error("Second add of A should report already present")
	}
	if !set.Add(b) {
		t.Error("Distinct object B must be tracked separately")
	}
	if set.Len() != 2 {
		t.Errorf("Expected 2 members, got %d", set.Len())
	}

	ids := set.IDs()
	if len(ids) != 2 || ids[0] > ids[1] {
		t.Errorf("Expected 2 sorted IDs, got %v", ids)
	}
}

func TestNilValuedPropertyIsEmptySlot(t *testing.T) {
	eng := New(nil)

	head := eng.NewObject()
	tail := eng.NewObject()
	head.SetProperty("next", tail)
	// A cleared reference: the slot holds a typed nil, not an entity.
	tail.SetProperty("next", (*HeapObject)(nil))
	tail.SetProperty("sym", (*SymbolObject)(nil))

	frame := NewFrame(nil, nil, nil)
	frame.SetLocal("head", head)
	eng.MainThread().PushFrame(frame)
	defer eng.MainThread().PopFrame()

	set, err := eng.SnapshotAll(eng.MainThread())
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if !set.Contains(head) || !set.Contains(tail) {
		t.Error("Expected both chain objects in capture")
	}
	if set.Contains((*HeapObject)(nil)) || set.Contains((*SymbolObject)(nil)) {
		t.Error("Empty slots must not appear in the capture")
	}

	// The capture must leave nothing paused: a fresh capture completes.
	if _, err := eng.SnapshotAll(eng.MainThread()); err != nil {
		t.Errorf("Capture after nil-slot walk failed: %v", err)
	}
}

func TestNilFrameLocalIsNotARoot(t *testing.T) {
	eng := New(nil)

	kept := eng.NewObject()
	frame := NewFrame(nil, nil, nil)
	frame.SetLocal("kept", kept)
	frame.SetLocal("cleared", (*HeapObject)(nil))
	eng.MainThread().PushFrame(frame)
	defer eng.MainThread().PopFrame()

	set, err := eng.SnapshotRoots(eng.MainThread())
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if !set.Contains(kept) {
		t.Error("Expected live local in root capture")
	}
	if set.Contains((*HeapObject)(nil)) {
		t.Error("Cleared local must not be reported as a root entity")
	}
}

// slowBox is a container whose expansion is made deliberately slow so the
// drain spans a measurable window
type slowBox struct {
	ref *HeapObject
}

func TestThreadsStayPausedThroughDrain(t *testing.T) {
	eng := New(nil)

	// Workers that tick a shared counter on every loop iteration. While
	// parked at the barrier they cannot tick, so if any participant were
	// released before the drain finished the counter would advance
	// between the first and the last expansion.
	var ticks atomic.Int64
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		eng.SpawnThread(fmt.Sprintf("ticker%d", i), func(tc *ThreadContext) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					ticks.Add(1)
					tc.Poll()
				}
			}
		})
	}
	defer func() {
		close(stop)
		wg.Wait()
	}()

	var mu sync.Mutex
	var observed []int64
	eng.RegisterAdjacencyKind(func(value interface{}, add func(interface{})) bool {
		box, ok := value.(*slowBox)
		if !ok {
			return false
		}
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		observed = append(observed, ticks.Load())
		mu.Unlock()
		if box.ref != nil {
			add(box.ref)
		}
		return true
	})

	// A chain of boxed links, each expansion passing through the slow kind.
	var next *HeapObject
	for i := 0; i < 20; i++ {
		obj := eng.NewObject()
		obj.SetProperty("box", &slowBox{ref: next})
		next = obj
	}
	frame := NewFrame(nil, nil, nil)
	frame.SetLocal("head", next)
	eng.MainThread().PushFrame(frame)
	defer eng.MainThread().PopFrame()

	if _, err := eng.SnapshotAll(eng.MainThread()); err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(observed) != 20 {
		t.Fatalf("Expected 20 slow expansions, got %d", len(observed))
	}
	first, last := observed[0], observed[len(observed)-1]
	if first != last {
		t.Errorf("Counter advanced during the drain (%d -> %d): a thread resumed before the walk finished", first, last)
	}
}
