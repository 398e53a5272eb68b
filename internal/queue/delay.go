// Package queue implements the Work Queue contract (session.WorkQueue): an
// in-process timer-based queue for development and a Redis sorted-set
// delay queue for production, plus the pure delay policy shared by both.
package queue

import "durableagent/internal/session"

const (
	baseDelayHigh   int64 = 200
	baseDelayNormal int64 = 1000
	baseDelayLow    int64 = 5000

	toolResultBump    int64 = 1000
	errorBackoffStep  int64 = 1000
	errorBackoffCap   int64 = 10000
)

// DelayInputs are the step-context facts CalculateDelay is a pure function
// of, per spec.md §4.3.
type DelayInputs struct {
	Priority     session.Priority
	HasToolCalls bool
	HasErrors    bool
	StepIndex    int
}

// CalculateDelay computes the milliseconds to wait before dispatching the
// next step. Pure function of the previous step's outcome: base delay by
// priority, +1000ms if the previous step emitted a tool_result, plus a
// capped step_index-scaled backoff if it emitted an error.
func CalculateDelay(in DelayInputs) int64 {
	var delay int64
	switch in.Priority {
	case session.PriorityHigh:
		delay = baseDelayHigh
	case session.PriorityLow:
		delay = baseDelayLow
	default:
		delay = baseDelayNormal
	}

	if in.HasToolCalls {
		delay += toolResultBump
	}
	if in.HasErrors {
		backoff := int64(in.StepIndex) * errorBackoffStep
		if backoff > errorBackoffCap {
			backoff = errorBackoffCap
		}
		delay += backoff
	}
	return delay
}
