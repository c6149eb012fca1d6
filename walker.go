package pawgraph

import "sync"

// ObjectGraphWalker orchestrates a safepoint-coordinated capture of the
// reachable object graph. Each thread contributes its roots inside the pause
// under one accumulator lock; the drain then runs single-threaded on the
// initiator, still inside the same pause, so no resumed thread can mutate
// the heap mid-walk. A capture either completes entirely or reports a fault;
// a partial snapshot is never returned.
type ObjectGraphWalker struct {
	safepoints *SafepointManager
	roots      *RootEnumerator
	adjacency  *AdjacencyExtractor
	logger     *Logger
}

// NewObjectGraphWalker creates a walker over the given collaborators
func NewObjectGraphWalker(safepoints *SafepointManager, roots *RootEnumerator, adjacency *AdjacencyExtractor, logger *Logger) *ObjectGraphWalker {
	return &ObjectGraphWalker{
		safepoints: safepoints,
		roots:      roots,
		adjacency:  adjacency,
		logger:     logger,
	}
}

// CaptureAllReachable returns the full transitive closure from the root set:
// every heap entity reachable from some root through a finite chain of
// adjacency edges, each visited exactly once
func (w *ObjectGraphWalker) CaptureAllReachable(caller *ThreadContext) (*ObjectSet, error) {
	visited := NewObjectSet()

	var mu sync.Mutex
	var pending []interface{} // explicit work-list, bounds native stack depth

	err := w.safepoints.pauseAndExecute(caller, true, func(t *ThreadContext) {
		mu.Lock()
		defer mu.Unlock()
		w.roots.ContributeThreadRoots(t, t == caller, func(v interface{}) {
			if isHeapEntity(v) {
				pending = append(pending, v)
			}
		})
	}, func() {
		// Every thread has contributed; drain while all stay paused.
		mu.Lock()
		defer mu.Unlock()
		w.drain(visited, pending)
	})
	if err != nil {
		return nil, err
	}

	w.logger.DebugCat(CatWalk, "Captured %d reachable entities", visited.Len())
	return visited, nil
}

// CaptureRootsOnly returns only the root frontier with no expansion -
// cheaper when connectivity beyond the roots is not needed
func (w *ObjectGraphWalker) CaptureRootsOnly(caller *ThreadContext) (*ObjectSet, error) {
	visited := NewObjectSet()

	var mu sync.Mutex

	err := w.safepoints.pauseAndExecute(caller, true, func(t *ThreadContext) {
		mu.Lock()
		defer mu.Unlock()
		w.roots.ContributeThreadRoots(t, t == caller, func(v interface{}) {
			if isHeapEntity(v) {
				visited.Add(v)
			}
		})
	}, nil)
	if err != nil {
		return nil, err
	}

	w.logger.DebugCat(CatWalk, "Captured %d root entities", visited.Len())
	return visited, nil
}

// drain expands the pending frontier to the full closure. Termination is
// guaranteed because the heap is finite and each entity expands at most
// once; cycles fall out of the visited check preceding every expansion.
func (w *ObjectGraphWalker) drain(visited *ObjectSet, pending []interface{}) {
	expansions := 0
	for len(pending) > 0 {
		v := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		if !visited.Add(v) {
			continue
		}

		obj, ok := v.(*HeapObject)
		if !ok || obj == nil {
			continue // symbols and other entities are leaves
		}
		expansions++
		for _, ref := range w.adjacency.AdjacentObjects(obj).Members() {
			if !visited.Contains(ref) {
				pending = append(pending, ref)
			}
		}
	}
	w.logger.DebugCat(CatWalk, "Drain complete: %d entities, %d expansions", visited.Len(), expansions)
}
