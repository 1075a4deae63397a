// Package outcome holds the result type of fire-and-forget operations.
// BestEffort does not implement error.
package outcome

import "log"

type BestEffort struct {
	Op      string
	Dropped bool
	Cause   error
}

func Delivered(op string) BestEffort {
	return BestEffort{Op: op}
}

// Drop records a failed best-effort operation and logs it.
func Drop(op string, cause error) BestEffort {
	log.Printf("Dropped %s: %v", op, cause)
	return BestEffort{Op: op, Dropped: true, Cause: cause}
}

// Skipped is an operation that was intentionally not attempted, such as a
// throttled nudge.
func Skipped(op string, reason string) BestEffort {
	return BestEffort{Op: op, Dropped: true, Cause: skipReason(reason)}
}

func (b BestEffort) OK() bool {
	return !b.Dropped
}

func (b BestEffort) String() string {
	if !b.Dropped {
		return b.Op + ": delivered"
	}
	return b.Op + ": dropped: " + b.Cause.Error()
}

type skipReason string

func (s skipReason) Error() string {
	return string(s)
}
