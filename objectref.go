package pawgraph

import "strings"

// ObjectKind identifies what role a heap object plays in the runtime.
// It is diagnostic only: the walker treats every kind uniformly and
// classifies storage by the shape of property values, not by kind.
type ObjectKind int

const (
	KindObject ObjectKind = iota // Plain object
	KindClass                    // Class or per-instance metaclass
	KindThread                   // Script-visible thread object
	KindFiber                    // Script-visible fiber object
	KindHash                     // Hash-shaped object (bucket storage)
	KindArray                    // Array-shaped object (ordered storage)
	KindQueue                    // Queue-shaped object (channel storage)
	KindProc                     // Block/closure object
)

// String returns the string representation of an ObjectKind
func (k ObjectKind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindClass:
		return "class"
	case KindThread:
		return "thread"
	case KindFiber:
		return "fiber"
	case KindHash:
		return "hash"
	case KindArray:
		return "array"
	case KindQueue:
		return "queue"
	case KindProc:
		return "proc"
	default:
		return "unknown"
	}
}

// ObjectKindFromString converts a string to ObjectKind
func ObjectKindFromString(s string) ObjectKind {
	switch strings.ToLower(s) {
	case "class":
		return KindClass
	case "thread":
		return KindThread
	case "fiber":
		return KindFiber
	case "hash":
		return KindHash
	case "array":
		return KindArray
	case "queue":
		return KindQueue
	case "proc":
		return KindProc
	default:
		return KindObject
	}
}
