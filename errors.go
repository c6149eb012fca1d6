package pawgraph

import (
	"strings"
	"time"
)

// LivenessError reports a capture that timed out because one or more threads
// never reached a poll point. By the time the caller sees this error every
// thread that did pause has been released again - a failed capture never
// leaves the system paused.
type LivenessError struct {
	Stuck   []string
	Timeout time.Duration
}

func (e *LivenessError) Error() string {
	return "safepoint not reached within " + e.Timeout.String() +
		" by: " + strings.Join(e.Stuck, ", ")
}

// ReentrancyError reports a capture requested by a thread that is already
// inside a safepoint. The request is rejected immediately rather than
// deadlocking against the capture in progress.
type ReentrancyError struct {
	Thread string
}

func (e *ReentrancyError) Error() string {
	return "capture requested from " + e.Thread + " which is already inside a safepoint"
}
