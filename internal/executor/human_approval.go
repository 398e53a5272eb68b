package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"durableagent/internal/session"
)

// HumanApprovalExecutor is a total function: it sets status to
// waiting_for_human_input, stores exactly one pending_* field, and returns
// no next context — halting continuation until an intervention arrives.
// Grounded on itsneelabh-gomind/orchestration/hitl_controller.go's
// checkpoint/notify pattern, adapted to the spec's single-session-record
// model (no separate checkpoint store; the session itself is the
// checkpoint, Session invariant I1).
type HumanApprovalExecutor struct {
	Stream session.EventStream
}

func (e *HumanApprovalExecutor) Execute(ctx context.Context, task session.QueuedTask, state *session.Session) (*session.ExecutionResult, error) {
	newState := state.Clone()
	var events []session.Event

	var req ApprovalRequestPayload
	if err := json.Unmarshal(task.Context.Payload, &req); err != nil {
		return nil, fmt.Errorf("human approval executor: decode context payload: %w", err)
	}

	newState.ClearPending()
	switch {
	case len(req.ToolCalls) > 0:
		newState.PendingToolsCalling = req.ToolCalls
	case req.Prompt != "":
		newState.PendingHumanPrompt = req.Prompt
	case len(req.Options) > 0:
		newState.PendingHumanSelect = req.Options
	default:
		return nil, fmt.Errorf("human approval executor: context carries no approval/prompt/select payload")
	}
	newState.Status = session.StatusWaitingForHumanInput

	reqEvt := newEvent(session.EventHumanApprovalRequest, task.StepIndex, req)
	if err := publish(ctx, e.Stream, task.SessionID, &reqEvt, &events); err != nil {
		return nil, err
	}

	if len(req.ToolCalls) > 0 {
		chunkEvt := newEvent(session.EventStreamChunk, task.StepIndex, map[string]interface{}{
			"chunk_type": "tool_calls",
			"tool_calls": req.ToolCalls,
		})
		if err := publish(ctx, e.Stream, task.SessionID, &chunkEvt, &events); err != nil {
			return nil, err
		}
	}

	return &session.ExecutionResult{Events: events, NewState: newState}, nil
}
