// Package runner provides the default agent decision function: a pure
// mapping from (phase, state) to the next instruction, per spec.md §4.5.
package runner

import (
	"encoding/json"

	"durableagent/internal/executor"
	"durableagent/internal/session"
)

// ApprovalPolicy decides whether a tool call requires human approval
// before execution. Injected so callers can plug in allow-lists,
// cost-sensitive tools, etc.; the zero value (nil) never requires
// approval.
type ApprovalPolicy func(call session.ToolCall, state *session.Session) bool

// Default is spec.md §4.5 step 4's simple default runner: phase
// user_input always calls the model; phase llm_result with tool calls
// either requests approval (if policy demands) or calls the tool; phase
// tool_result or human_input calls the model again; anything else finishes.
// Pure: no I/O, no mutation of state.
func Default(policy ApprovalPolicy) session.Runner {
	return func(rc session.RuntimeContext, state *session.Session) session.Instruction {
		switch rc.Phase {
		case session.PhaseUserInput:
			return session.InstructionCallLLM

		case session.PhaseLLMResult:
			var payload executor.LLMResultPayload
			_ = json.Unmarshal(rc.Payload, &payload)
			if payload.HasToolCalls && len(payload.ToolCalls) > 0 {
				if policy != nil && policy(payload.ToolCalls[0], state) {
					return session.InstructionRequestHumanApprove
				}
				return session.InstructionCallTool
			}
			return session.InstructionFinish

		case session.PhaseToolResult:
			return session.InstructionCallLLM

		case session.PhaseHumanInput:
			return session.InstructionCallLLM

		default:
			return session.InstructionFinish
		}
	}
}
