package pawgraph

import "sync"

// isHeapEntity reports whether a value carries identity relevant to
// reachability. Primitive scalars (booleans, integers, floats, strings)
// do not; objects and interned symbols do. A typed nil pointer wrapped in
// an interface is an empty slot, not an entity.
func isHeapEntity(value interface{}) bool {
	switch v := value.(type) {
	case *HeapObject:
		return v != nil
	case *SymbolObject:
		return v != nil
	default:
		return false
	}
}

// AdjacencyReporter lets an object's storage declare its own adjacency:
// a value implementing it feeds its referents to add directly. This is the
// extension point for container kinds the extractor does not know about.
type AdjacencyReporter interface {
	ReportAdjacent(add func(interface{}))
}

// AdjacencyKindFunc classifies and expands one property value. It returns
// true if it recognized the value's kind, having fed any referents to add;
// false hands the value to the next registered kind.
type AdjacencyKindFunc func(value interface{}, add func(interface{})) bool

// AdjacencyExtractor maps one heap object to its immediate referents: the
// implicit class and metaclass always, then every entry of the live property
// list, expanded per recognized storage kind. A value matching no kind is a
// leaf, never an error - the set of representable shapes grows over time.
type AdjacencyExtractor struct {
	mu     sync.RWMutex
	kinds  []AdjacencyKindFunc
	frames *FrameScanner
	logger *Logger
}

// NewAdjacencyExtractor creates an extractor with the built-in storage kinds
// registered: nested frames, ordered collections, hash buckets, queues, and
// self-reporting values
func NewAdjacencyExtractor(frames *FrameScanner, logger *Logger) *AdjacencyExtractor {
	a := &AdjacencyExtractor{
		frames: frames,
		logger: logger,
	}

	a.RegisterKind(func(value interface{}, add func(interface{})) bool {
		f, ok := value.(*Frame)
		if !ok {
			return false
		}
		a.frames.CollectFrame(f, add)
		return true
	})
	a.RegisterKind(func(value interface{}, add func(interface{})) bool {
		list, ok := value.(*StoredList)
		if !ok {
			return false
		}
		for _, elem := range list.Items() {
			add(elem)
		}
		return true
	})
	a.RegisterKind(func(value interface{}, add func(interface{})) bool {
		elems, ok := value.([]interface{})
		if !ok {
			return false
		}
		for _, elem := range elems {
			add(elem)
		}
		return true
	})
	a.RegisterKind(func(value interface{}, add func(interface{})) bool {
		buckets, ok := value.([]*HashEntry)
		if !ok {
			return false
		}
		for _, bucket := range buckets {
			for entry := bucket; entry != nil; entry = entry.NextInLookup {
				add(entry.Key)
				add(entry.Value)
			}
		}
		return true
	})
	a.RegisterKind(func(value interface{}, add func(interface{})) bool {
		ch, ok := value.(*StoredChannel)
		if !ok {
			return false
		}
		for _, elem := range ch.Contents() {
			add(elem)
		}
		return true
	})
	a.RegisterKind(func(value interface{}, add func(interface{})) bool {
		reporter, ok := value.(AdjacencyReporter)
		if !ok {
			return false
		}
		reporter.ReportAdjacent(add)
		return true
	})

	return a
}

// RegisterKind adds a storage kind to the extractor. New container kinds
// plug in here without the walker changing.
func (a *AdjacencyExtractor) RegisterKind(fn AdjacencyKindFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kinds = append(a.kinds, fn)
}

// AdjacentObjects returns the object's immediate referents. The property
// list is read live off the object's current shape, so properties added
// after construction are seen. Repeated calls on an unmutated object yield
// the same set.
func (a *AdjacencyExtractor) AdjacentObjects(obj *HeapObject) *ObjectSet {
	reachable := NewObjectSet()
	add := func(v interface{}) {
		if isHeapEntity(v) {
			reachable.Add(v)
		}
	}

	if class := obj.Class(); class != nil {
		reachable.Add(class)
	}
	if meta := obj.MetaClass(); meta != nil {
		reachable.Add(meta)
	}

	for _, name := range obj.PropertyNames() {
		value, ok := obj.GetProperty(name)
		if !ok {
			continue
		}
		a.expandValue(value, add)
	}

	a.logger.TraceCat(CatWalk, "Object %d has %d adjacent entities", obj.ID(), reachable.Len())
	return reachable
}

// expandValue classifies one property value: identity-bearing values are
// referents themselves, recognized storage kinds contribute their contents,
// and everything else is a leaf
func (a *AdjacencyExtractor) expandValue(value interface{}, add func(interface{})) {
	if isHeapEntity(value) {
		add(value)
		return
	}

	a.mu.RLock()
	kinds := a.kinds
	a.mu.RUnlock()

	for _, kind := range kinds {
		if kind(value, add) {
			return
		}
	}
	// Unrecognized shape: a leaf, by the nature of a growing value model.
}
