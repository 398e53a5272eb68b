// Package step implements the Step Engine (C5): the single per-step driver
// invoked once per queue callback. Grounded on meridian's
// streaming/service.go:startStreamingExecution for the
// "load -> prepare -> execute -> persist" shape, and on
// itsneelabh-gomind/orchestration/task_worker.go for the
// queue-callback-driven dispatch loop (pop a task, execute, decide the
// next enqueue) — here invoked over HTTP instead of BRPOP.
package step

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"durableagent/internal/executor"
	"durableagent/internal/queue"
	"durableagent/internal/session"
)

// ErrSessionNotFound is returned when the task names a session with no
// persisted state: a terminal condition the caller maps to 404, never
// retried.
var ErrSessionNotFound = errors.New("step: session not found")

// ErrNoInstruction is a logic error: the runner produced an instruction
// with no registered executor.
var ErrNoInstruction = errors.New("step: runner produced unregistered instruction")

// StepBudget is the default soft wall-clock budget per step (spec.md §5).
const StepBudget = 120 * time.Second

// Summary is the structured response returned to the queue callback
// caller, per spec.md §6.
type Summary struct {
	SessionID        string `json:"session_id"`
	StepIndex        int    `json:"step_index"`
	Status           session.Status `json:"status"`
	TotalSteps       int    `json:"total_steps"`
	ExecutionTimeMs  int64  `json:"execution_time_ms"`
	HasNextContext   bool   `json:"has_next_context"`
}

// Engine is the Step Engine: loads state, asks the runner for an
// instruction, dispatches it, persists the result, and decides whether to
// enqueue the next step.
type Engine struct {
	Store    session.StateStore
	Stream   session.EventStream
	Queue    session.WorkQueue
	Registry *executor.Registry
	Runner   session.Runner
	Budget   time.Duration
}

// NewEngine builds an Engine with the default 120s step budget.
func NewEngine(store session.StateStore, stream session.EventStream, q session.WorkQueue, reg *executor.Registry, run session.Runner) *Engine {
	return &Engine{Store: store, Stream: stream, Queue: q, Registry: reg, Runner: run, Budget: StepBudget}
}

// ExecuteStep runs the nine-step algorithm of spec.md §4.5 for one queue
// callback.
func (e *Engine) ExecuteStep(ctx context.Context, task session.QueuedTask) (*Summary, error) {
	budget := e.Budget
	if budget <= 0 {
		budget = StepBudget
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	// 1. Load.
	state, err := e.Store.LoadState(ctx, task.SessionID)
	if err != nil {
		return nil, fmt.Errorf("step: load state: %w", err)
	}
	if state == nil {
		return nil, ErrSessionNotFound
	}

	// Idempotency guard (spec.md §9): a retried delivery for an
	// already-committed step index is acknowledged without re-execution.
	if task.StepIndex < state.StepCount {
		return &Summary{
			SessionID: task.SessionID, StepIndex: task.StepIndex,
			Status: state.Status, TotalSteps: state.StepCount,
		}, nil
	}

	// 2. Publish step_start.
	if err := e.publishStepStart(ctx, task, state); err != nil {
		return nil, err
	}

	rc := task.Context
	ws := &workingState{Session: state.Clone()}

	// 3. Human-intervention branch.
	if task.Intervention != nil {
		summary, handled, err := e.handleIntervention(ctx, task, ws)
		if err != nil || handled {
			return summary, err
		}
		rc = ws.pendingRuntimeContext
	}

	// 4. Decide.
	instr := e.Runner(rc, ws.session())
	ex, ok := e.Registry.Get(instr)
	if !ok {
		return e.failLogicError(ctx, task, ws.session(), fmt.Sprintf("unregistered instruction %q", instr))
	}

	// 5. Execute.
	started := time.Now()
	taskForExec := task
	taskForExec.Context = rc
	result, execErr := ex.Execute(ctx, taskForExec, ws.session())
	elapsed := time.Since(started).Milliseconds()
	if execErr != nil {
		return e.failExecutorFault(ctx, task, execErr)
	}

	newState := result.NewState
	newState.StepCount = task.StepIndex + 1
	newState.LastModified = time.Now()
	costDelta := newState.Cost.Total - state.Cost.Total

	// 6. Persist.
	stepResult := session.StepResult{
		StepIndex:       task.StepIndex,
		ExecutionTimeMs: elapsed,
		Timestamp:       time.Now(),
		Status:          newState.Status,
		CostDelta:       costDelta,
		Events:          result.Events,
	}
	if err := e.Store.SaveStepResult(ctx, task.SessionID, stepResult, newState); err != nil {
		return nil, fmt.Errorf("step: save step result: %w", err)
	}

	// 7. Publish step_complete.
	completeEvt := session.Event{
		Type:      session.EventStepComplete,
		StepIndex: task.StepIndex,
		Timestamp: time.Now().UnixMilli(),
		Data: mustMarshal(map[string]interface{}{
			"status":           newState.Status,
			"total_steps":      newState.StepCount,
			"execution_time_ms": elapsed,
			"has_next_context": result.NextContext != nil,
		}),
	}
	if _, err := e.Stream.Publish(ctx, task.SessionID, completeEvt); err != nil {
		return nil, fmt.Errorf("step: publish step_complete: %w", err)
	}

	// Normal completion (as opposed to the rejection-intervention shortcut
	// above, which publishes its own done event) still owes the client a
	// done event: spec.md §8 S1's event sequence ends "..., step_complete,
	// done", and the SSE handler only closes the stream on done/error.
	if newState.Status == session.StatusDone {
		doneEvt := session.Event{
			Type:      session.EventDone,
			StepIndex: task.StepIndex,
			Timestamp: time.Now().UnixMilli(),
		}
		if _, err := e.Stream.Publish(ctx, task.SessionID, doneEvt); err != nil {
			return nil, fmt.Errorf("step: publish done: %w", err)
		}
	}

	// 8. Continue?
	if e.shouldContinue(task, newState, result.NextContext) {
		e.enqueueNext(ctx, task, newState, result.NextContext, result.Events)
	}

	// 9. Return.
	return &Summary{
		SessionID:       task.SessionID,
		StepIndex:       task.StepIndex,
		Status:          newState.Status,
		TotalSteps:      newState.StepCount,
		ExecutionTimeMs: elapsed,
		HasNextContext:  result.NextContext != nil,
	}, nil
}

func (e *Engine) publishStepStart(ctx context.Context, task session.QueuedTask, state *session.Session) error {
	evt := session.Event{
		Type:      session.EventStepStart,
		StepIndex: task.StepIndex,
		Timestamp: time.Now().UnixMilli(),
	}
	if _, err := e.Stream.Publish(ctx, task.SessionID, evt); err != nil {
		return fmt.Errorf("step: publish step_start: %w", err)
	}
	return nil
}

// workingState wraps a cloned Session with the context synthesized by the
// intervention branch, keeping the branch's output contained to one value
// instead of threading a second return everywhere.
type workingState struct {
	*session.Session
	pendingRuntimeContext session.RuntimeContext
}

func (w *workingState) session() *session.Session { return w.Session }

func (e *Engine) handleIntervention(ctx context.Context, task session.QueuedTask, state *workingState) (*Summary, bool, error) {
	iv := task.Intervention

	switch {
	case iv.ApprovedToolCall != nil:
		if state.Status != session.StatusWaitingForHumanInput {
			return nil, false, fmt.Errorf("step: approval intervention on non-waiting session")
		}
		state.ClearPending()
		state.Status = session.StatusRunning
		payload := executor.LLMResultPayload{
			ToolCalls: []session.ToolCall{*iv.ApprovedToolCall}, HasToolCalls: true,
		}
		state.pendingRuntimeContext = session.RuntimeContext{
			Phase:   session.PhaseLLMResult,
			Payload: mustMarshal(payload),
		}
		return nil, false, nil

	case iv.RejectionReason != "":
		state.ClearPending()
		state.Status = session.StatusDone
		state.StepCount = task.StepIndex + 1
		state.LastModified = time.Now()

		doneEvt := session.Event{
			Type: session.EventDone, StepIndex: task.StepIndex, Timestamp: time.Now().UnixMilli(),
			Data: mustMarshal(executor.FinishPayload{Reason: "rejected", ReasonDetail: iv.RejectionReason}),
		}
		if _, err := e.Stream.Publish(ctx, task.SessionID, doneEvt); err != nil {
			return nil, true, fmt.Errorf("step: publish done: %w", err)
		}
		result := session.StepResult{
			StepIndex: task.StepIndex, Timestamp: time.Now(), Status: state.Status,
			Events: []session.Event{doneEvt},
		}
		if err := e.Store.SaveStepResult(ctx, task.SessionID, result, state.Session); err != nil {
			return nil, true, fmt.Errorf("step: save step result: %w", err)
		}
		return &Summary{SessionID: task.SessionID, StepIndex: task.StepIndex, Status: state.Status, TotalSteps: state.StepCount}, true, nil

	case iv.HumanInput != "":
		wasPrompted := state.PendingHumanPrompt != "" || len(state.PendingHumanSelect) > 0
		toolCallID := toolCallIDFromPending(state.Session)
		state.ClearPending()
		if wasPrompted {
			state.Messages = append(state.Messages, session.Message{Role: session.RoleUser, Content: iv.HumanInput})
		} else {
			state.Messages = append(state.Messages, session.Message{
				Role: session.RoleTool, Content: iv.HumanInput, ToolCallID: toolCallID,
			})
		}
		state.Status = session.StatusRunning
		state.pendingRuntimeContext = session.RuntimeContext{Phase: session.PhaseHumanInput}
		return nil, false, nil
	}

	return nil, false, fmt.Errorf("step: intervention payload carries no recognized field")
}

func toolCallIDFromPending(s *session.Session) string {
	if len(s.PendingToolsCalling) > 0 {
		return s.PendingToolsCalling[0].ID
	}
	return ""
}

func (e *Engine) failLogicError(ctx context.Context, task session.QueuedTask, state *session.Session, detail string) (*Summary, error) {
	state.Status = session.StatusError
	state.Error = &session.ErrorDescriptor{Phase: "decide", Message: "logic error", Detail: detail}
	state.StepCount = task.StepIndex + 1
	state.LastModified = time.Now()

	evt := session.Event{
		Type: session.EventError, StepIndex: task.StepIndex, Timestamp: time.Now().UnixMilli(),
		Data: mustMarshal(map[string]string{"phase": "decide", "error": detail}),
	}
	if _, err := e.Stream.Publish(ctx, task.SessionID, evt); err != nil {
		return nil, fmt.Errorf("step: publish error event: %w", err)
	}
	result := session.StepResult{StepIndex: task.StepIndex, Timestamp: time.Now(), Status: state.Status, Events: []session.Event{evt}}
	if err := e.Store.SaveStepResult(ctx, task.SessionID, result, state); err != nil {
		return nil, fmt.Errorf("step: save step result: %w", err)
	}
	// Logic errors do not ask the queue to retry (§7): return success with
	// status=error captured in the summary.
	return &Summary{SessionID: task.SessionID, StepIndex: task.StepIndex, Status: state.Status, TotalSteps: state.StepCount}, nil
}

// executorFaultError wraps an executor fault so the HTTP layer can map it
// to a 500, asking the queue to retry (§7).
type executorFaultError struct{ err error }

func (e *executorFaultError) Error() string { return "step: executor fault: " + e.err.Error() }
func (e *executorFaultError) Unwrap() error { return e.err }

func (e *Engine) failExecutorFault(ctx context.Context, task session.QueuedTask, execErr error) (*Summary, error) {
	return nil, &executorFaultError{err: execErr}
}

func (e *Engine) shouldContinue(task session.QueuedTask, state *session.Session, next *session.RuntimeContext) bool {
	if state.Status.Terminal() || state.Status == session.StatusWaitingForHumanInput || state.Status == session.StatusInterrupted {
		return false
	}
	if state.MaxSteps > 0 && state.StepCount >= state.MaxSteps {
		return false
	}
	if state.CostLimit != nil && state.Cost.Total >= state.CostLimit.MaxTotalCost && state.CostLimit.OnExceeded == session.OnExceededStop {
		return false
	}
	if next == nil {
		return false
	}
	if task.ForceComplete {
		return false
	}
	return true
}

func (e *Engine) enqueueNext(ctx context.Context, task session.QueuedTask, state *session.Session, next *session.RuntimeContext, events []session.Event) {
	hasToolCalls := false
	hasErrors := false
	if next != nil {
		var payload executor.LLMResultPayload
		if json.Unmarshal(next.Payload, &payload) == nil {
			hasToolCalls = payload.HasToolCalls
		}
	}
	for _, evt := range events {
		if evt.Type == session.EventError {
			hasErrors = true
			break
		}
	}

	priority := session.PriorityNormal
	delay := queue.CalculateDelay(queue.DelayInputs{
		Priority: priority, HasToolCalls: hasToolCalls, HasErrors: hasErrors, StepIndex: task.StepIndex,
	})

	nextTask := session.QueuedTask{
		SessionID: task.SessionID,
		StepIndex: state.StepCount,
		Context:   *next,
		Priority:  priority,
	}
	// Best-effort: a scheduling failure here is surfaced by the queue's
	// own health/backoff path, not fatal to this step's already-committed
	// result (the step itself succeeded and was persisted).
	_, _ = e.Queue.ScheduleNextStep(ctx, session.ScheduleParams{Task: nextTask, Delay: delay})
}

func mustMarshal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
