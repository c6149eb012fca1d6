package pawgraph

import (
	"sort"
	"sync"
)

// ThreadContext is the runtime's view of one thread of execution. It owns a
// current fiber, a call stack of frames, and participates in the safepoint
// protocol by polling at bounded intervals (loop back-edges, call entries,
// blocking-operation boundaries - an invariant the embedding runtime must
// uphold, the walker cannot enforce it).
type ThreadContext struct {
	mu     sync.RWMutex
	id     int
	name   string
	mgr    *SafepointManager
	object *HeapObject
	fiber  *FiberHandle
	frames []*Frame

	// inSafepoint is true while the thread is held at a safepoint or running
	// a safepoint action. Guarded by the manager's mutex, not this one.
	inSafepoint bool

	// done is closed when the thread's goroutine exits
	done chan struct{}
}

// ID returns the registry-assigned thread ID
func (t *ThreadContext) ID() int { return t.id }

// Name returns the thread name
func (t *ThreadContext) Name() string { return t.name }

// Object returns the script-visible thread object
func (t *ThreadContext) Object() *HeapObject {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.object
}

// CurrentFiber returns the fiber currently scheduled on this thread
func (t *ThreadContext) CurrentFiber() *FiberHandle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fiber
}

// SetCurrentFiber switches the thread's current fiber
func (t *ThreadContext) SetCurrentFiber(f *FiberHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fiber = f
}

// PushFrame pushes an activation frame onto the call stack
func (t *ThreadContext) PushFrame(f *Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames = append(t.frames, f)
}

// PopFrame pops the innermost activation frame
func (t *ThreadContext) PopFrame() *Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.frames) == 0 {
		return nil
	}
	f := t.frames[len(t.frames)-1]
	t.frames = t.frames[:len(t.frames)-1]
	return f
}

// CurrentFrame returns the innermost frame, nil if the stack is empty
func (t *ThreadContext) CurrentFrame() *Frame {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.frames) == 0 {
		return nil
	}
	return t.frames[len(t.frames)-1]
}

// Frames returns a snapshot of the live call stack, innermost last
func (t *ThreadContext) Frames() []*Frame {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Frame, len(t.frames))
	copy(out, t.frames)
	return out
}

// Poll is the thread's safepoint poll point. Cheap when nothing is pending.
func (t *ThreadContext) Poll() {
	if t.mgr != nil {
		t.mgr.Poll(t)
	}
}

// Done returns a channel closed when the thread's goroutine exits
func (t *ThreadContext) Done() <-chan struct{} { return t.done }

// String returns a string representation for debugging
func (t *ThreadContext) String() string {
	return "thread:" + t.name
}

// ThreadTable tracks every live thread. It implements ThreadRegistry and
// notifies observers on register/unregister so the safepoint manager can
// account for threads exiting while a capture is pending.
type ThreadTable struct {
	mu           sync.RWMutex
	threads      map[int]*ThreadContext
	nextID       int
	onRegister   []func(*ThreadContext)
	onUnregister []func(*ThreadContext)
}

// NewThreadTable creates an empty thread table
func NewThreadTable() *ThreadTable {
	return &ThreadTable{
		threads: make(map[int]*ThreadContext),
		nextID:  1,
	}
}

// Register adds a thread to the table and fires register notifications
func (tt *ThreadTable) Register(t *ThreadContext) {
	tt.mu.Lock()
	if t.id == 0 {
		t.id = tt.nextID
		tt.nextID++
	}
	tt.threads[t.id] = t
	observers := tt.onRegister
	tt.mu.Unlock()

	for _, fn := range observers {
		fn(t)
	}
}

// Unregister removes a thread from the table and fires unregister
// notifications
func (tt *ThreadTable) Unregister(t *ThreadContext) {
	tt.mu.Lock()
	delete(tt.threads, t.id)
	observers := tt.onUnregister
	tt.mu.Unlock()

	for _, fn := range observers {
		fn(t)
	}
}

// LiveThreads returns every registered thread, ordered by ID
func (tt *ThreadTable) LiveThreads() []*ThreadContext {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	out := make([]*ThreadContext, 0, len(tt.threads))
	for _, t := range tt.threads {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Count returns the number of registered threads
func (tt *ThreadTable) Count() int {
	tt.mu.RLock()
	defer tt.mu.RUnlock()
	return len(tt.threads)
}

// OnRegister adds a callback fired after each thread registration
func (tt *ThreadTable) OnRegister(fn func(*ThreadContext)) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.onRegister = append(tt.onRegister, fn)
}

// OnUnregister adds a callback fired after each thread removal
func (tt *ThreadTable) OnUnregister(fn func(*ThreadContext)) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.onUnregister = append(tt.onUnregister, fn)
}
