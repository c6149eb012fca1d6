package pawgraph

import "sync"

// Heap is the global object store. It hands out integer IDs and keeps every
// allocated object reachable for the lifetime of the store: pawgraph is a
// snapshot mechanism, not a reclaiming collector, so nothing is ever freed.
type Heap struct {
	mu        sync.RWMutex
	objects   map[int]*HeapObject
	nextID    int
	rootShape *Shape
	logger    *Logger
}

// NewHeap creates an empty heap
func NewHeap(logger *Logger) *Heap {
	return &Heap{
		objects:   make(map[int]*HeapObject),
		nextID:    1,
		rootShape: NewEmptyShape(),
		logger:    logger,
	}
}

// NewObject allocates an object of the given kind. The metaclass starts as
// the class itself until a singleton class is attached. A nil class is only
// valid while bootstrapping the base class, whose class is itself.
func (h *Heap) NewObject(kind ObjectKind, class *HeapObject) *HeapObject {
	h.mu.Lock()
	id := h.nextID
	h.nextID++

	obj := &HeapObject{
		id:        id,
		kind:      kind,
		class:     class,
		metaClass: class,
		shape:     h.rootShape,
		values:    make(map[string]interface{}),
	}
	h.objects[id] = obj
	h.mu.Unlock()

	h.logger.DebugCat(CatMemory, "Allocated object %d (kind: %s)", id, kind)
	return obj
}

// Get retrieves an object by ID
func (h *Heap) Get(id int) (*HeapObject, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	obj, exists := h.objects[id]
	return obj, exists
}

// Len returns the number of allocated objects
func (h *Heap) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.objects)
}

// CountByKind returns the number of allocated objects per kind
func (h *Heap) CountByKind() map[ObjectKind]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	counts := make(map[ObjectKind]int)
	for _, obj := range h.objects {
		counts[obj.kind]++
	}
	return counts
}
