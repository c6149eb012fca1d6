package pawgraph

import "sync"

// Frame is one activation record: a self value, an optional captured block,
// named local slots, and an optional lexically enclosing frame. The parent
// is shared - several closures may capture the same enclosing frame.
type Frame struct {
	mu     sync.RWMutex
	parent *Frame
	self   interface{}
	block  *HeapObject
	locals map[string]interface{}
}

// NewFrame creates a frame with the given lexical parent, self and block
func NewFrame(parent *Frame, self interface{}, block *HeapObject) *Frame {
	return &Frame{
		parent: parent,
		self:   self,
		block:  block,
		locals: make(map[string]interface{}),
	}
}

// Parent returns the lexically enclosing frame, nil at the top of the chain
func (f *Frame) Parent() *Frame { return f.parent }

// Self returns the frame's self value
func (f *Frame) Self() interface{} {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.self
}

// Block returns the captured block object, nil if none
func (f *Frame) Block() *HeapObject {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.block
}

// SetLocal sets a local variable slot
func (f *Frame) SetLocal(name string, value interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locals[name] = value
}

// Local returns the current value of a local slot
func (f *Frame) Local(name string) (interface{}, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, exists := f.locals[name]
	return v, exists
}

// localValues returns a snapshot of the slot values
func (f *Frame) localValues() []interface{} {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]interface{}, 0, len(f.locals))
	for _, v := range f.locals {
		out = append(out, v)
	}
	return out
}

// FrameScanner extracts the heap entities reachable from one frame:
// the self value, the captured block, every identity-bearing local, and the
// same for every frame on the lexically enclosing chain. Primitive scalars
// carry no identity and are excluded.
type FrameScanner struct {
	logger *Logger
}

// NewFrameScanner creates a frame scanner
func NewFrameScanner(logger *Logger) *FrameScanner {
	return &FrameScanner{logger: logger}
}

// ObjectsInFrame returns the heap entities reachable from the frame and its
// enclosing chain. The chain is walked with a loop, not recursion; a parent
// shared between frames contributes once because the result is a set.
func (fs *FrameScanner) ObjectsInFrame(frame *Frame) *ObjectSet {
	objects := NewObjectSet()
	fs.CollectFrame(frame, func(v interface{}) { objects.Add(v) })
	return objects
}

// CollectFrame feeds the frame chain's heap entities to add
func (fs *FrameScanner) CollectFrame(frame *Frame, add func(interface{})) {
	depth := 0
	for f := frame; f != nil; f = f.Parent() {
		if self := f.Self(); isHeapEntity(self) {
			add(self)
		}
		if block := f.Block(); block != nil {
			add(block)
		}
		for _, v := range f.localValues() {
			if isHeapEntity(v) {
				add(v)
			}
		}
		depth++
	}
	fs.logger.TraceCat(CatFrame, "Scanned frame chain of depth %d", depth)
}
