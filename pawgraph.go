// Package pawgraph provides safepoint-synchronized snapshots of a runtime's
// reachable object graph. It pauses every registered thread at a cooperative
// poll point, gathers each thread's roots into one shared accumulator, drains
// the frontier to a full identity set while the world is still stopped, and
// resumes. It never frees memory and never mutates the objects it reads.
//
// Basic usage:
//
//	eng := pawgraph.New(&pawgraph.Config{Debug: false})
//	obj := eng.NewObject()
//	eng.MainThread().PushFrame(pawgraph.NewFrame(nil, obj, nil))
//	set, err := eng.SnapshotAll(eng.MainThread())
//
// Threads spawned through the engine must call ThreadContext.Poll at bounded
// intervals; a thread that never polls will fail captures with a
// LivenessError naming it.
package pawgraph

import "sync"

// Engine owns the heap, the thread and fiber tables, the root sources and
// the safepoint machinery, wired together behind the two snapshot operations
type Engine struct {
	config     *Config
	logger     *Logger
	heap       *Heap
	symbols    *SymbolTable
	threads    *ThreadTable
	fibers     *FiberTable
	globals    *GlobalTable
	exit       *ExitHandlerList
	finalizers *FinalizerTable
	safepoints *SafepointManager
	adjacency  *AdjacencyExtractor
	walker     *ObjectGraphWalker

	objectClass *HeapObject
	threadClass *HeapObject
	fiberClass  *HeapObject
	mainThread  *ThreadContext

	hookMu           sync.Mutex
	preSnapshotHooks []func()
}

// New creates a new engine
func New(config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}

	logger := NewLogger(config.Debug)
	heap := NewHeap(logger)
	threads := NewThreadTable()
	fibers := NewFiberTable(logger)
	safepoints := NewSafepointManager(threads, config.SafepointTimeout, logger)
	frames := NewFrameScanner(logger)
	adjacency := NewAdjacencyExtractor(frames, logger)

	eng := &Engine{
		config:     config,
		logger:     logger,
		heap:       heap,
		symbols:    NewSymbolTable(),
		threads:    threads,
		fibers:     fibers,
		globals:    NewGlobalTable(),
		exit:       NewExitHandlerList(),
		finalizers: NewFinalizerTable(),
		safepoints: safepoints,
		adjacency:  adjacency,
	}

	roots := NewRootEnumerator(RootSources{
		Threads:      threads,
		Fibers:       fibers,
		Globals:      eng.globals,
		ExitHandlers: eng.exit,
		Finalizers:   eng.finalizers,
		Stacks:       NewThreadStacks(),
	}, frames, logger)
	eng.walker = NewObjectGraphWalker(safepoints, roots, adjacency, logger)

	// Bootstrap the class hierarchy: the base class is its own class.
	eng.objectClass = heap.NewObject(KindClass, nil)
	eng.objectClass.mu.Lock()
	eng.objectClass.class = eng.objectClass
	eng.objectClass.metaClass = eng.objectClass
	eng.objectClass.mu.Unlock()
	eng.threadClass = heap.NewObject(KindClass, eng.objectClass)
	eng.fiberClass = heap.NewObject(KindClass, eng.objectClass)

	// A thread exiting mid-request must not stall the barrier.
	threads.OnUnregister(safepoints.ThreadExiting)

	// The main thread represents the embedding goroutine. It is registered
	// like any other, so either drive its Poll or initiate captures from it.
	eng.mainThread = eng.newThreadContext("main")
	threads.Register(eng.mainThread)

	logger.DebugCat(CatSystem, "Engine initialized (safepoint timeout %s)", config.SafepointTimeout)
	return eng
}

// newThreadContext builds a thread with its script-visible object and an
// initial current fiber
func (e *Engine) newThreadContext(name string) *ThreadContext {
	t := &ThreadContext{
		name:   name,
		mgr:    e.safepoints,
		object: e.heap.NewObject(KindThread, e.threadClass),
		done:   make(chan struct{}),
	}
	fiber := e.fibers.NewFiber(t, e.heap.NewObject(KindFiber, e.fiberClass))
	t.fiber = fiber
	return t
}

// MainThread returns the thread context representing the embedding goroutine
func (e *Engine) MainThread() *ThreadContext {
	return e.mainThread
}

// SpawnThread registers a new thread and runs body on its own goroutine.
// The body must call t.Poll at bounded intervals. Registration is fenced
// against any capture in progress so the participant set stays accounted.
func (e *Engine) SpawnThread(name string, body func(t *ThreadContext)) *ThreadContext {
	t := e.newThreadContext(name)
	e.safepoints.WhileIdle(func() {
		e.threads.Register(t)
	})
	e.logger.DebugCat(CatThread, "Spawned %s (id %d)", t.Name(), t.ID())

	go func() {
		defer func() {
			// Last chance to serve a pending request before leaving.
			t.Poll()
			if f := t.CurrentFiber(); f != nil {
				e.fibers.Remove(f.ID())
			}
			e.threads.Unregister(t)
			close(t.done)
			e.logger.DebugCat(CatThread, "%s exited", t.Name())
		}()
		body(t)
	}()

	return t
}

// NewObject allocates a plain object of the base class
func (e *Engine) NewObject() *HeapObject {
	return e.heap.NewObject(KindObject, e.objectClass)
}

// NewObjectOfKind allocates an object with an explicit kind and class
func (e *Engine) NewObjectOfKind(kind ObjectKind, class *HeapObject) *HeapObject {
	if class == nil {
		class = e.objectClass
	}
	return e.heap.NewObject(kind, class)
}

// NewClass allocates a class object named by a property on itself
func (e *Engine) NewClass(name string) *HeapObject {
	class := e.heap.NewObject(KindClass, e.objectClass)
	class.SetProperty("name", e.Intern(name))
	return class
}

// Intern returns the interned symbol for name
func (e *Engine) Intern(name string) *SymbolObject {
	return e.symbols.Intern(name)
}

// Heap returns the engine's object store
func (e *Engine) Heap() *Heap {
	return e.heap
}

// Logger returns the engine's logger
func (e *Engine) Logger() *Logger {
	return e.logger
}

// SetGlobal binds a global value; the binding table, not the value, stays
// out of the graph
func (e *Engine) SetGlobal(name string, value interface{}) {
	e.globals.Set(name, value)
}

// Global returns a global binding
func (e *Engine) Global(name string) (interface{}, bool) {
	return e.globals.Get(name)
}

// AddExitHandler registers an exit handler object as a process-wide root
func (e *Engine) AddExitHandler(handler interface{}) {
	e.exit.Add(handler)
}

// RegisterFinalizer records roots a finalizer for obj keeps reachable
func (e *Engine) RegisterFinalizer(obj *HeapObject, roots ...interface{}) {
	e.finalizers.Register(obj, roots...)
}

// RegisterAdjacencyKind plugs a new storage kind into adjacency extraction
func (e *Engine) RegisterAdjacencyKind(fn AdjacencyKindFunc) {
	e.adjacency.RegisterKind(fn)
}

// AddPreSnapshotHook registers a hook run before each capture's pause,
// outside the safepoint (marking queues, cache flushes and the like)
func (e *Engine) AddPreSnapshotHook(fn func()) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.preSnapshotHooks = append(e.preSnapshotHooks, fn)
}

func (e *Engine) runPreSnapshotHooks() {
	e.hookMu.Lock()
	hooks := e.preSnapshotHooks
	e.hookMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// SnapshotAll captures every heap entity reachable from the root set.
// The caller must be a registered thread; the capture runs under one
// safepoint and either completes entirely or returns a fault.
func (e *Engine) SnapshotAll(caller *ThreadContext) (*ObjectSet, error) {
	e.runPreSnapshotHooks()
	return e.walker.CaptureAllReachable(caller)
}

// SnapshotRoots captures only the root frontier, without expansion
func (e *Engine) SnapshotRoots(caller *ThreadContext) (*ObjectSet, error) {
	e.runPreSnapshotHooks()
	return e.walker.CaptureRootsOnly(caller)
}

// EngineStats summarizes the engine's live population
type EngineStats struct {
	Objects int
	Threads int
	Fibers  int
	Symbols int
	ByKind  map[ObjectKind]int
}

// Stats returns current engine statistics
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Objects: e.heap.Len(),
		Threads: e.threads.Count(),
		Fibers:  e.fibers.Count(),
		Symbols: e.symbols.Len(),
		ByKind:  e.heap.CountByKind(),
	}
}
