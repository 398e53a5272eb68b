package executor

import (
	"context"
	"encoding/json"
	"testing"

	"durableagent/internal/eventstream"
	"durableagent/internal/session"
)

func TestHumanApprovalExecutor_ToolCallsPause_SetsPendingToolsCalling(t *testing.T) {
	stream := eventstream.NewMemoryStream(100)
	ex := &HumanApprovalExecutor{Stream: stream}

	call := calcToolCall()
	payload, _ := json.Marshal(ApprovalRequestPayload{ToolCalls: []session.ToolCall{call}})
	task := session.QueuedTask{SessionID: "s1", Context: session.RuntimeContext{Payload: payload}}

	result, err := ex.Execute(context.Background(), task, &session.Session{ID: "s1"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.NewState.Status != session.StatusWaitingForHumanInput {
		t.Errorf("expected status waiting_for_human_input, got %s", result.NewState.Status)
	}
	if len(result.NewState.PendingToolsCalling) != 1 || result.NewState.PendingToolsCalling[0].ID != "t1" {
		t.Fatalf("expected pending_tools_calling=[t1], got %+v", result.NewState.PendingToolsCalling)
	}
	if !result.NewState.HasPending() {
		t.Errorf("expected exactly one pending_* field set")
	}
	if result.NextContext != nil {
		t.Errorf("expected no next context: human approval is a total function, got %+v", result.NextContext)
	}
}

func TestHumanApprovalExecutor_PromptPause_SetsPendingHumanPrompt(t *testing.T) {
	stream := eventstream.NewMemoryStream(100)
	ex := &HumanApprovalExecutor{Stream: stream}

	payload, _ := json.Marshal(ApprovalRequestPayload{Prompt: "continue?"})
	task := session.QueuedTask{SessionID: "s1", Context: session.RuntimeContext{Payload: payload}}

	result, err := ex.Execute(context.Background(), task, &session.Session{ID: "s1"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.NewState.PendingHumanPrompt != "continue?" {
		t.Errorf("expected pending_human_prompt='continue?', got %q", result.NewState.PendingHumanPrompt)
	}
}

func TestHumanApprovalExecutor_SelectPause_SetsPendingHumanSelect(t *testing.T) {
	stream := eventstream.NewMemoryStream(100)
	ex := &HumanApprovalExecutor{Stream: stream}

	payload, _ := json.Marshal(ApprovalRequestPayload{Options: []string{"a", "b"}})
	task := session.QueuedTask{SessionID: "s1", Context: session.RuntimeContext{Payload: payload}}

	result, err := ex.Execute(context.Background(), task, &session.Session{ID: "s1"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(result.NewState.PendingHumanSelect) != 2 {
		t.Fatalf("expected pending_human_select=[a b], got %+v", result.NewState.PendingHumanSelect)
	}
}

func TestHumanApprovalExecutor_EmptyPayload_IsAnError(t *testing.T) {
	stream := eventstream.NewMemoryStream(100)
	ex := &HumanApprovalExecutor{Stream: stream}

	task := session.QueuedTask{SessionID: "s1", Context: session.RuntimeContext{Payload: json.RawMessage(`{}`)}}
	if _, err := ex.Execute(context.Background(), task, &session.Session{ID: "s1"}); err == nil {
		t.Fatal("expected an error when the context carries no approval/prompt/select payload")
	}
}
