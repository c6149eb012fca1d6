package pawgraph

import (
	"sort"
	"sync"
)

// Collaborator interfaces the capture consumes. They are injected rather
// than reached through singletons so the walker can be exercised against
// fakes; the Engine wires the default implementations below.

// ThreadRegistry enumerates all currently live threads
type ThreadRegistry interface {
	LiveThreads() []*ThreadContext
}

// FiberRegistry answers current-fiber lookups per thread
type FiberRegistry interface {
	CurrentFiber(t *ThreadContext) *FiberHandle
}

// GlobalBindingTable exposes the externally visible global values.
// Deliberately values only: handing out the enclosing namespace object would
// make the whole graph trivially connected through one root.
type GlobalBindingTable interface {
	ObjectGraphValues() []interface{}
}

// ExitHandlerRegistry exposes the registered exit handlers
type ExitHandlerRegistry interface {
	Handlers() []interface{}
}

// FinalizerRegistry feeds every finalizer-registered root to add
type FinalizerRegistry interface {
	CollectRoots(add func(interface{}))
}

// StackIntrospection iterates the live frames on a thread's call stack,
// innermost first; fn returning false stops the iteration
type StackIntrospection interface {
	IterateFrames(t *ThreadContext, fn func(f *Frame) bool)
}

// RootSources bundles the collaborators a capture draws roots from
type RootSources struct {
	Threads      ThreadRegistry
	Fibers       FiberRegistry
	Globals      GlobalBindingTable
	ExitHandlers ExitHandlerRegistry
	Finalizers   FinalizerRegistry
	Stacks       StackIntrospection
}

// RootEnumerator computes a capture's initial frontier
type RootEnumerator struct {
	sources RootSources
	frames  *FrameScanner
	logger  *Logger
}

// NewRootEnumerator creates a root enumerator over the given sources
func NewRootEnumerator(sources RootSources, frames *FrameScanner, logger *Logger) *RootEnumerator {
	return &RootEnumerator{
		sources: sources,
		frames:  frames,
		logger:  logger,
	}
}

// ContributeThreadRoots feeds one thread's roots to add: the thread object
// and its current fiber always, every entity reachable from every live frame
// on the thread's stack, and - only when this thread initiated the capture -
// the process-wide roots, so they are contributed exactly once no matter how
// many threads participate.
func (r *RootEnumerator) ContributeThreadRoots(t *ThreadContext, isInitiator bool, add func(interface{})) {
	if obj := t.Object(); obj != nil {
		add(obj)
	}
	if f := r.sources.Fibers.CurrentFiber(t); f != nil {
		if obj := f.Object(); obj != nil {
			add(obj)
		}
	}

	if isInitiator {
		r.contributeProcessRoots(add)
	}

	frameCount := 0
	r.sources.Stacks.IterateFrames(t, func(f *Frame) bool {
		r.frames.CollectFrame(f, add)
		frameCount++
		return true
	})
	r.logger.DebugCat(CatRoots, "Contributed roots for %s (%d stack frames)", t.Name(), frameCount)
}

// contributeProcessRoots adds the globals, exit handlers and finalizer roots
func (r *RootEnumerator) contributeProcessRoots(add func(interface{})) {
	for _, v := range r.sources.Globals.ObjectGraphValues() {
		add(v)
	}
	for _, h := range r.sources.ExitHandlers.Handlers() {
		add(h)
	}
	r.sources.Finalizers.CollectRoots(add)
}

// GlobalTable is the default GlobalBindingTable: a named binding map
type GlobalTable struct {
	mu       sync.RWMutex
	bindings map[string]interface{}
}

// NewGlobalTable creates an empty global binding table
func NewGlobalTable() *GlobalTable {
	return &GlobalTable{
		bindings: make(map[string]interface{}),
	}
}

// Set binds a global name to a value
func (gt *GlobalTable) Set(name string, value interface{}) {
	gt.mu.Lock()
	defer gt.mu.Unlock()
	gt.bindings[name] = value
}

// Get returns the value bound to name
func (gt *GlobalTable) Get(name string) (interface{}, bool) {
	gt.mu.RLock()
	defer gt.mu.RUnlock()
	v, exists := gt.bindings[name]
	return v, exists
}

// Delete removes a binding
func (gt *GlobalTable) Delete(name string) {
	gt.mu.Lock()
	defer gt.mu.Unlock()
	delete(gt.bindings, name)
}

// ObjectGraphValues returns the bound values, never the table itself
func (gt *GlobalTable) ObjectGraphValues() []interface{} {
	gt.mu.RLock()
	defer gt.mu.RUnlock()

	names := make([]string, 0, len(gt.bindings))
	for name := range gt.bindings {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]interface{}, 0, len(names))
	for _, name := range names {
		out = append(out, gt.bindings[name])
	}
	return out
}

// ExitHandlerList is the default ExitHandlerRegistry
type ExitHandlerList struct {
	mu       sync.RWMutex
	handlers []interface{}
}

// NewExitHandlerList creates an empty exit handler list
func NewExitHandlerList() *ExitHandlerList {
	return &ExitHandlerList{}
}

// Add registers an exit handler object
func (el *ExitHandlerList) Add(handler interface{}) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.handlers = append(el.handlers, handler)
}

// Handlers returns the registered handlers in registration order
func (el *ExitHandlerList) Handlers() []interface{} {
	el.mu.RLock()
	defer el.mu.RUnlock()
	out := make([]interface{}, len(el.handlers))
	copy(out, el.handlers)
	return out
}

// FinalizerTable is the default FinalizerRegistry: per-object roots a
// finalizer body keeps alive, keyed by the finalizable object's ID
type FinalizerTable struct {
	mu      sync.RWMutex
	records map[int][]interface{}
}

// NewFinalizerTable creates an empty finalizer table
func NewFinalizerTable() *FinalizerTable {
	return &FinalizerTable{
		records: make(map[int][]interface{}),
	}
}

// Register records the roots a finalizer for obj keeps reachable
func (ft *FinalizerTable) Register(obj *HeapObject, roots ...interface{}) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.records[obj.ID()] = append(ft.records[obj.ID()], roots...)
}

// Unregister drops the finalizer roots recorded for obj
func (ft *FinalizerTable) Unregister(obj *HeapObject) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	delete(ft.records, obj.ID())
}

// CollectRoots feeds every registered finalizer root to add
func (ft *FinalizerTable) CollectRoots(add func(interface{})) {
	ft.mu.RLock()
	defer ft.mu.RUnlock()
	for _, roots := range ft.records {
		for _, v := range roots {
			add(v)
		}
	}
}

// threadStacks is the default StackIntrospection: it reads the frame stack
// the thread itself maintains
type threadStacks struct{}

// NewThreadStacks returns the default stack introspection
func NewThreadStacks() StackIntrospection {
	return threadStacks{}
}

// IterateFrames walks the thread's live frames, innermost first
func (threadStacks) IterateFrames(t *ThreadContext, fn func(f *Frame) bool) {
	frames := t.Frames()
	for i := len(frames) - 1; i >= 0; i-- {
		if !fn(frames[i]) {
			return
		}
	}
}
