// Package executor implements the four instruction executors (§4.4): LLM,
// tool, human-approval, and finish. Selected by instruction tag through a
// Registry, grounded on meridian's provider/executor lookup-table
// conventions, generalized per spec.md §9's explicit guidance from a
// per-provider registry to a per-instruction-tag one.
package executor

import (
	"encoding/json"

	"durableagent/internal/session"
)

// UserInputPayload is the RuntimeContext.Payload shape for phase
// user_input: the latest message to send to the model.
type UserInputPayload struct {
	Message session.Message `json:"message"`
}

// LLMResultPayload is the RuntimeContext.Payload shape for phase
// llm_result: the assistant turn just produced.
type LLMResultPayload struct {
	Result       string            `json:"result"`
	ToolCalls    []session.ToolCall `json:"tool_calls,omitempty"`
	HasToolCalls bool              `json:"has_tool_calls"`
}

// ToolResultPayload is the RuntimeContext.Payload shape for phase
// tool_result: the tool's output and the call it answers.
type ToolResultPayload struct {
	ToolCallID string `json:"tool_call_id"`
	Result     string `json:"result"`
	IsError    bool   `json:"is_error"`
}

// HumanInputPayload is the RuntimeContext.Payload shape for phase
// human_input: the response a human supplied to unblock a paused session.
type HumanInputPayload struct {
	Input      string `json:"input"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ApprovalRequestPayload is carried on the context handed to the
// human-approval executor; it names which of the three mutually exclusive
// pending_* fields to populate.
type ApprovalRequestPayload struct {
	ToolCalls []session.ToolCall `json:"tool_calls,omitempty"`
	Prompt    string             `json:"prompt,omitempty"`
	Options   []string           `json:"options,omitempty"`
}

// FinishPayload carries the reason a session finished.
type FinishPayload struct {
	Reason       string `json:"reason"`
	ReasonDetail string `json:"reason_detail,omitempty"`
}

func marshalPayload(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func newEvent(typ session.EventType, stepIndex int, payload interface{}) session.Event {
	return session.Event{
		Type:      typ,
		StepIndex: stepIndex,
		Timestamp: nowMillis(),
		Data:      marshalPayload(payload),
	}
}
