package session

import "context"

// StateStore is the durability contract (C1): per-session state, bounded
// step history, and a field-addressable metadata record, all TTL'd.
type StateStore interface {
	SaveState(ctx context.Context, id string, state *Session) error
	LoadState(ctx context.Context, id string) (*Session, error)
	SaveStepResult(ctx context.Context, id string, result StepResult, state *Session) error
	CreateMetadata(ctx context.Context, id string, meta SessionMetadata) error
	GetMetadata(ctx context.Context, id string) (*SessionMetadata, error)
	ListActive(ctx context.Context) ([]SessionMetadata, error)
	GetHistory(ctx context.Context, id string, limit int) ([]StepResult, error)
	DeleteSession(ctx context.Context, id string) error
	CleanupExpired(ctx context.Context) (int, error)
}

// EventBatch is delivered to a Subscribe handler in arrival order.
type EventBatch []Event

// EventHandler processes one in-order batch of events. A non-nil return
// stops the subscription.
type EventHandler func(EventBatch) error

// EventStream is the append-only, replayable per-session log contract (C2).
type EventStream interface {
	Publish(ctx context.Context, id string, evt Event) (string, error)
	History(ctx context.Context, id string, count int) ([]Event, error)
	Subscribe(ctx context.Context, id string, fromID string, handler EventHandler) error
	Cleanup(ctx context.Context, id string) error
}

// ScheduleParams describes a single task to be dispatched after a delay.
type ScheduleParams struct {
	Task  QueuedTask
	Delay int64 // milliseconds
}

// QueueStats summarizes work-queue occupancy.
type QueueStats struct {
	Queued   int64 `json:"queued"`
	InFlight int64 `json:"in_flight"`
}

// QueueHealth reports whether the queue backend is reachable.
type QueueHealth struct {
	OK      bool   `json:"ok"`
	Backend string `json:"backend"`
}

// WorkQueue is the at-least-once delayed dispatch contract (C3).
type WorkQueue interface {
	ScheduleNextStep(ctx context.Context, params ScheduleParams) (string, error)
	ScheduleImmediate(ctx context.Context, task QueuedTask) (string, error)
	ScheduleBatch(ctx context.Context, params []ScheduleParams) ([]string, error)
	Cancel(ctx context.Context, taskID string) error
	Stats(ctx context.Context) (QueueStats, error)
	Health(ctx context.Context) (QueueHealth, error)
}

// Instruction is the runner's decision of what a step does next: a tagged
// union encoded as a distinct type, not a convention-based flag.
type Instruction string

const (
	InstructionCallLLM             Instruction = "call_llm"
	InstructionCallTool             Instruction = "call_tool"
	InstructionRequestHumanApprove  Instruction = "request_human_approve"
	InstructionFinish               Instruction = "finish"
)

func (i Instruction) Valid() bool {
	switch i {
	case InstructionCallLLM, InstructionCallTool, InstructionRequestHumanApprove, InstructionFinish:
		return true
	}
	return false
}

// ExecutionResult is what an Executor produces: the events it published
// (also returned here for step-history capture), the resulting state, and
// an optional next context. A nil NextContext halts continuation
// (request_human_approve and finish are total functions — they never
// produce one).
type ExecutionResult struct {
	Events      []Event
	NewState    *Session
	NextContext *RuntimeContext
}

// Executor implements one instruction kind (§4.4). Implementations publish
// events directly to the EventStream as they execute (for streaming
// faithfulness) and also return the full event list for step-history
// capture.
type Executor interface {
	Execute(ctx context.Context, task QueuedTask, state *Session) (*ExecutionResult, error)
}

// Runner is the pure decision function mapping (context, state) to the next
// instruction. Pure: no I/O, no mutation.
type Runner func(rc RuntimeContext, state *Session) Instruction
