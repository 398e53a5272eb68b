package executor

import (
	"context"
	"time"

	"durableagent/internal/session"
)

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// publish publishes evt to the stream and appends it to acc, the running
// event list an executor returns for step-history capture.
func publish(ctx context.Context, stream session.EventStream, sessionID string, evt *session.Event, acc *[]session.Event) error {
	id, err := stream.Publish(ctx, sessionID, *evt)
	if err != nil {
		return err
	}
	evt.ID = id
	evt.SessionID = sessionID
	*acc = append(*acc, *evt)
	return nil
}

// Registry dispatches an instruction to its executor, the lookup table
// described in spec.md §9: executors as a map keyed by instruction tag
// rather than a type switch or naming convention.
type Registry struct {
	executors map[session.Instruction]session.Executor
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[session.Instruction]session.Executor)}
}

// Register binds an executor to an instruction tag.
func (r *Registry) Register(instr session.Instruction, ex session.Executor) {
	r.executors[instr] = ex
}

// Get resolves the executor for an instruction, reporting false if none is
// registered (a logic error the Step Engine maps to status=error, §7).
func (r *Registry) Get(instr session.Instruction) (session.Executor, bool) {
	ex, ok := r.executors[instr]
	return ex, ok
}

// NewDefaultRegistry wires the four standard executors.
func NewDefaultRegistry(llm *LLMExecutor, tool *ToolExecutor, approval *HumanApprovalExecutor, finish *FinishExecutor) *Registry {
	r := NewRegistry()
	r.Register(session.InstructionCallLLM, llm)
	r.Register(session.InstructionCallTool, tool)
	r.Register(session.InstructionRequestHumanApprove, approval)
	r.Register(session.InstructionFinish, finish)
	return r
}
