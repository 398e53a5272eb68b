package executor

import (
	"context"
	"encoding/json"

	"durableagent/internal/session"
)

// FinishExecutor is a total function with no next context, encoded as a
// distinct executor type rather than a flag on another instruction's
// result, per spec.md §9's explicit guidance.
type FinishExecutor struct {
	Stream session.EventStream
}

func (e *FinishExecutor) Execute(ctx context.Context, task session.QueuedTask, state *session.Session) (*session.ExecutionResult, error) {
	newState := state.Clone()
	var events []session.Event

	var payload FinishPayload
	_ = json.Unmarshal(task.Context.Payload, &payload)
	if payload.Reason == "" {
		payload.Reason = "completed"
	}

	newState.Status = session.StatusDone

	completeEvt := newEvent(session.EventStepComplete, task.StepIndex, payload)
	if err := publish(ctx, e.Stream, task.SessionID, &completeEvt, &events); err != nil {
		return nil, err
	}

	return &session.ExecutionResult{Events: events, NewState: newState}, nil
}
