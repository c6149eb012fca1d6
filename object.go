package pawgraph

import (
	"fmt"
	"sync"
)

// Shape describes the layout of an object's property list: which property
// names exist and in what insertion order. Shapes are shared: objects that
// gained the same properties in the same order point at the same Shape, and
// adding a property transitions an object to a successor shape.
type Shape struct {
	mu          sync.Mutex
	names       []string
	index       map[string]int
	transitions map[string]*Shape
}

// NewEmptyShape creates a root shape with no properties
func NewEmptyShape() *Shape {
	return &Shape{
		index:       make(map[string]int),
		transitions: make(map[string]*Shape),
	}
}

// PropertyNames returns the property names in insertion order.
// The returned slice is a copy; the shape itself never mutates.
func (s *Shape) PropertyNames() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// HasProperty reports whether the shape includes the named property
func (s *Shape) HasProperty(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Len returns the number of properties in the layout
func (s *Shape) Len() int {
	return len(s.names)
}

// withProperty returns the successor shape that adds name, creating and
// caching it on first use so objects with identical histories share layouts
func (s *Shape) withProperty(name string) *Shape {
	if _, ok := s.index[name]; ok {
		return s
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if next, ok := s.transitions[name]; ok {
		return next
	}

	next := NewEmptyShape()
	next.names = make([]string, len(s.names)+1)
	copy(next.names, s.names)
	next.names[len(s.names)] = name
	for i, n := range next.names {
		next.index[n] = i
	}
	s.transitions[name] = next
	return next
}

// HeapObject is one identity-bearing heap entity: a shape-described property
// list plus implicit back-references to its runtime class and per-instance
// metaclass. Identity is pointer identity; the walker only ever reads.
type HeapObject struct {
	mu        sync.RWMutex
	id        int
	kind      ObjectKind
	class     *HeapObject
	metaClass *HeapObject
	shape     *Shape
	values    map[string]interface{}
}

// ID returns the store-assigned object ID
func (o *HeapObject) ID() int { return o.id }

// Kind returns the diagnostic object kind
func (o *HeapObject) Kind() ObjectKind { return o.kind }

// Class returns the object's runtime class
func (o *HeapObject) Class() *HeapObject {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.class
}

// MetaClass returns the object's per-instance metaclass. Until a singleton
// class is attached this is the runtime class itself.
func (o *HeapObject) MetaClass() *HeapObject {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.metaClass
}

// SetMetaClass attaches a singleton metaclass to this object
func (o *HeapObject) SetMetaClass(meta *HeapObject) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.metaClass = meta
}

// Shape returns the object's current layout descriptor
func (o *HeapObject) Shape() *Shape {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.shape
}

// PropertyNames returns the live property list in insertion order,
// including properties added after construction
func (o *HeapObject) PropertyNames() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.shape.PropertyNames()
}

// GetProperty returns the current value of the named property
func (o *HeapObject) GetProperty(name string) (interface{}, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.values[name]
	return v, ok
}

// SetProperty sets a property value, transitioning the shape when the
// property is new
func (o *HeapObject) SetProperty(name string, value interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.shape.HasProperty(name) {
		o.shape = o.shape.withProperty(name)
	}
	o.values[name] = value
}

// String returns a string representation for debugging
func (o *HeapObject) String() string {
	return fmt.Sprintf("(%s %d)", o.kind, o.id)
}
