package pawgraph

import (
	"fmt"
	"sync"
)

// FiberHandle is one lightweight, cooperatively scheduled execution context
// nested within a thread. Each thread's current fiber is a root of every
// capture.
type FiberHandle struct {
	mu     sync.RWMutex
	id     int
	thread *ThreadContext
	object *HeapObject
}

// ID returns the fiber's table-assigned ID
func (f *FiberHandle) ID() int { return f.id }

// Thread returns the thread this fiber runs on
func (f *FiberHandle) Thread() *ThreadContext {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.thread
}

// Object returns the script-visible fiber object
func (f *FiberHandle) Object() *HeapObject {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.object
}

// String returns a string representation for debugging
func (f *FiberHandle) String() string {
	return fmt.Sprintf("fiber:%d", f.id)
}

// FiberTable tracks active fibers and answers current-fiber lookups.
// It implements FiberRegistry.
type FiberTable struct {
	mu     sync.RWMutex
	fibers map[int]*FiberHandle
	nextID int
	logger *Logger
}

// NewFiberTable creates an empty fiber table
func NewFiberTable(logger *Logger) *FiberTable {
	return &FiberTable{
		fibers: make(map[int]*FiberHandle),
		nextID: 1,
		logger: logger,
	}
}

// NewFiber creates and registers a fiber for the thread, backed by the given
// script-visible object
func (ft *FiberTable) NewFiber(t *ThreadContext, object *HeapObject) *FiberHandle {
	ft.mu.Lock()
	id := ft.nextID
	ft.nextID++

	f := &FiberHandle{
		id:     id,
		thread: t,
		object: object,
	}
	ft.fibers[id] = f
	ft.mu.Unlock()

	ft.logger.DebugCat(CatThread, "Registered fiber %d on %s", id, t.Name())
	return f
}

// Remove unregisters a completed fiber
func (ft *FiberTable) Remove(fiberID int) {
	ft.mu.Lock()
	delete(ft.fibers, fiberID)
	ft.mu.Unlock()
	ft.logger.DebugCat(CatThread, "Unregistered fiber %d", fiberID)
}

// Get retrieves a fiber by ID
func (ft *FiberTable) Get(fiberID int) *FiberHandle {
	ft.mu.RLock()
	defer ft.mu.RUnlock()
	return ft.fibers[fiberID]
}

// Count returns the number of active fibers
func (ft *FiberTable) Count() int {
	ft.mu.RLock()
	defer ft.mu.RUnlock()
	return len(ft.fibers)
}

// CurrentFiber returns the fiber currently scheduled on the thread
func (ft *FiberTable) CurrentFiber(t *ThreadContext) *FiberHandle {
	return t.CurrentFiber()
}
