package pawgraph

import "sort"

// ObjectSet is an identity-keyed set of heap entities. Membership is pointer
// identity, never structural equality: two distinct objects with equal
// contents are both tracked. Within one capture the set is monotonic - it
// only grows, and a member is never revisited.
//
// Members must be pointer-shaped values (*HeapObject, *SymbolObject) so that
// interface comparison means identity.
type ObjectSet struct {
	members map[interface{}]struct{}
}

// NewObjectSet creates an empty identity set
func NewObjectSet() *ObjectSet {
	return &ObjectSet{
		members: make(map[interface{}]struct{}),
	}
}

// Add inserts a member, returning true if it was not already present
func (s *ObjectSet) Add(v interface{}) bool {
	if _, exists := s.members[v]; exists {
		return false
	}
	s.members[v] = struct{}{}
	return true
}

// Contains reports membership by identity
func (s *ObjectSet) Contains(v interface{}) bool {
	_, exists := s.members[v]
	return exists
}

// Len returns the number of members
func (s *ObjectSet) Len() int {
	return len(s.members)
}

// Members returns the members in unspecified order
func (s *ObjectSet) Members() []interface{} {
	out := make([]interface{}, 0, len(s.members))
	for v := range s.members {
		out = append(out, v)
	}
	return out
}

// IDs projects the heap-object members to their store IDs, sorted.
// Symbols and other non-object members are skipped.
func (s *ObjectSet) IDs() []int {
	ids := make([]int, 0, len(s.members))
	for v := range s.members {
		if obj, ok := v.(*HeapObject); ok {
			ids = append(ids, obj.ID())
		}
	}
	sort.Ints(ids)
	return ids
}
