package runner

import (
	"encoding/json"
	"testing"

	"durableagent/internal/executor"
	"durableagent/internal/session"
)

func TestDefaultRunner(t *testing.T) {
	state := &session.Session{}

	cases := []struct {
		name    string
		rc      session.RuntimeContext
		policy  ApprovalPolicy
		want    session.Instruction
	}{
		{
			name: "user input calls llm",
			rc:   session.RuntimeContext{Phase: session.PhaseUserInput},
			want: session.InstructionCallLLM,
		},
		{
			name: "llm result without tool calls finishes",
			rc: session.RuntimeContext{
				Phase:   session.PhaseLLMResult,
				Payload: marshal(t, executor.LLMResultPayload{Result: "hello"}),
			},
			want: session.InstructionFinish,
		},
		{
			name: "llm result with tool calls executes tool",
			rc: session.RuntimeContext{
				Phase: session.PhaseLLMResult,
				Payload: marshal(t, executor.LLMResultPayload{
					HasToolCalls: true,
					ToolCalls:    []session.ToolCall{{ID: "t1"}},
				}),
			},
			want: session.InstructionCallTool,
		},
		{
			name: "llm result with tool calls requests approval under policy",
			rc: session.RuntimeContext{
				Phase: session.PhaseLLMResult,
				Payload: marshal(t, executor.LLMResultPayload{
					HasToolCalls: true,
					ToolCalls:    []session.ToolCall{{ID: "t1"}},
				}),
			},
			policy: func(session.ToolCall, *session.Session) bool { return true },
			want:   session.InstructionRequestHumanApprove,
		},
		{
			name: "tool result calls llm",
			rc:   session.RuntimeContext{Phase: session.PhaseToolResult},
			want: session.InstructionCallLLM,
		},
		{
			name: "human input calls llm",
			rc:   session.RuntimeContext{Phase: session.PhaseHumanInput},
			want: session.InstructionCallLLM,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			run := Default(tc.policy)
			got := run(tc.rc, state)
			if got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func marshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}
