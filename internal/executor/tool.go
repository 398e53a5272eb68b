package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"durableagent/internal/session"
	"durableagent/internal/toolhost"
)

// ToolExecutor dispatches a pending tool call through a toolhost.Host,
// grounded on meridian's tools.ToolExecutor minimal Execute contract
// (internal/service/llm/tools/executor.go), generalized from a single
// in-process tool to a host abstraction so JSON-argument parsing errors and
// tool faults both map cleanly to the spec's error-event semantics.
type ToolExecutor struct {
	Host   toolhost.Host
	Stream session.EventStream
}

// toolCallFromContext extracts the tool call a phase=llm_result context
// routed here carries: the first entry of its tool calls. One call_tool
// step runs one tool call; further calls of a multi-call turn are not run,
// since the tool_result that follows routes back to call_llm.
func toolCallFromContext(rc session.RuntimeContext) (session.ToolCall, error) {
	var payload LLMResultPayload
	if err := json.Unmarshal(rc.Payload, &payload); err != nil {
		return session.ToolCall{}, fmt.Errorf("tool executor: decode context payload: %w", err)
	}
	if len(payload.ToolCalls) == 0 {
		return session.ToolCall{}, fmt.Errorf("tool executor: no tool call present in context")
	}
	return payload.ToolCalls[0], nil
}

func (e *ToolExecutor) Execute(ctx context.Context, task session.QueuedTask, state *session.Session) (*session.ExecutionResult, error) {
	newState := state.Clone()
	var events []session.Event

	call, err := toolCallFromContext(task.Context)
	if err != nil {
		return nil, err
	}

	startEvt := newEvent(session.EventToolStart, task.StepIndex, map[string]interface{}{"tool_call": call})
	if err := publish(ctx, e.Stream, task.SessionID, &startEvt, &events); err != nil {
		return nil, err
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		errEvt := newEvent(session.EventError, task.StepIndex, map[string]string{
			"phase": "call_tool", "error": "malformed tool arguments: " + err.Error(),
		})
		_ = publish(ctx, e.Stream, task.SessionID, &errEvt, &events)
		return &session.ExecutionResult{Events: events, NewState: state.Clone()}, fmt.Errorf("tool executor: parse arguments: %w", err)
	}

	started := time.Now()
	result, toolErr := e.Host.Execute(ctx, call.Function.Name, args)
	elapsed := time.Since(started).Milliseconds()

	if toolErr != nil {
		errEvt := newEvent(session.EventError, task.StepIndex, map[string]string{
			"phase": "call_tool", "error": toolErr.Error(),
		})
		_ = publish(ctx, e.Stream, task.SessionID, &errEvt, &events)
		// Tool faults leave state unchanged so the Step Engine can decide
		// to retry or recover, per spec.md §4.4.
		return &session.ExecutionResult{Events: events, NewState: state.Clone()}, nil
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		resultJSON = []byte(fmt.Sprintf("%v", result))
	}

	newState.Messages = append(newState.Messages, session.Message{
		Role:       session.RoleTool,
		Content:    string(resultJSON),
		ToolCallID: call.ID,
	})

	completeEvt := newEvent(session.EventToolComplete, task.StepIndex, map[string]interface{}{
		"tool_call_id":      call.ID,
		"execution_time_ms": elapsed,
		"result":            json.RawMessage(resultJSON),
	})
	if err := publish(ctx, e.Stream, task.SessionID, &completeEvt, &events); err != nil {
		return nil, err
	}

	payload := ToolResultPayload{ToolCallID: call.ID, Result: string(resultJSON)}
	payloadBytes, _ := json.Marshal(payload)

	return &session.ExecutionResult{
		Events:   events,
		NewState: newState,
		NextContext: &session.RuntimeContext{
			Phase:   session.PhaseToolResult,
			Payload: payloadBytes,
			Session: session.SessionSnapshot{
				StepCount:    newState.StepCount,
				MessageCount: len(newState.Messages),
				Status:       newState.Status,
			},
		},
	}, nil
}
