// Package coordinator implements the Session Coordinator (C6): the public
// surface for creating sessions, handling human intervention, and querying
// status. Grounded on meridian's streaming.Service
// (internal/service/llm/streaming/service.go — CreateTurn -> transactional
// setup -> background execution -> registry registration) and on
// itsneelabh-gomind/orchestration/hitl_api.go's
// validate-against-pending-field shape for intervention handling.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"durableagent/internal/domain"
	"durableagent/internal/executor"
	"durableagent/internal/session"
)

// Coordinator is thin orchestration over the State Store, Event Stream,
// and Work Queue.
type Coordinator struct {
	Store  session.StateStore
	Stream session.EventStream
	Queue  session.WorkQueue
}

// New builds a Coordinator.
func New(store session.StateStore, stream session.EventStream, q session.WorkQueue) *Coordinator {
	return &Coordinator{Store: store, Stream: stream, Queue: q}
}

// ModelConfig is the minimal shape spec.md §4.6 requires present on
// create_session: model and provider are mandatory.
type ModelConfig struct {
	Model    string `json:"model"`
	Provider string `json:"provider"`
}

// Validate enforces that both fields are present, the ozzo-validation
// equivalent of the manual nil-check this replaces.
func (m ModelConfig) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Model, validation.Required),
		validation.Field(&m.Provider, validation.Required),
	)
}

// CreateSessionRequest is the body of POST /session.
type CreateSessionRequest struct {
	SessionID   string            `json:"session_id,omitempty"`
	Messages    []session.Message `json:"messages,omitempty"`
	ModelConfig ModelConfig       `json:"model_config"`
	AgentConfig json.RawMessage   `json:"agent_config,omitempty"`
	UserID      string            `json:"user_id,omitempty"`
	AutoStart   *bool             `json:"auto_start,omitempty"`
	MaxSteps    int               `json:"max_steps,omitempty"`
	CostLimit   *session.CostLimit `json:"cost_limit,omitempty"`
}

// CreateSessionResult is returned by CreateSession.
type CreateSessionResult struct {
	SessionID string        `json:"session_id"`
	Status    session.Status `json:"status"`
}

// CreateSession validates the request, writes initial state and metadata,
// and — unless auto_start is explicitly false — enqueues step 0 at high
// priority with a 500ms delay.
func (c *Coordinator) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResult, error) {
	if err := req.ModelConfig.Validate(); err != nil {
		return nil, &session.ValidationError{Field: "model_config", Reason: err.Error()}
	}

	id := req.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	autoStart := true
	if req.AutoStart != nil {
		autoStart = *req.AutoStart
	}

	state := &session.Session{
		ID:           id,
		Status:       session.StatusIdle,
		Messages:     append([]session.Message(nil), req.Messages...),
		MaxSteps:     req.MaxSteps,
		CostLimit:    req.CostLimit,
		LastModified: time.Now(),
	}
	if err := c.Store.SaveState(ctx, id, state); err != nil {
		return nil, fmt.Errorf("coordinator: save initial state: %w", err)
	}

	meta := session.SessionMetadata{SessionID: id, UserID: req.UserID, AgentConfig: req.AgentConfig}
	if modelBlob, err := json.Marshal(req.ModelConfig); err == nil {
		meta.ModelConfig = modelBlob
	}
	if err := c.Store.CreateMetadata(ctx, id, meta); err != nil {
		return nil, fmt.Errorf("coordinator: create metadata: %w", err)
	}

	if autoStart {
		var payload json.RawMessage
		if len(state.Messages) > 0 {
			latest := state.Messages[len(state.Messages)-1]
			payload, _ = json.Marshal(executor.UserInputPayload{Message: latest})
		}
		task := session.QueuedTask{
			SessionID: id, StepIndex: 0, Priority: session.PriorityHigh,
			Context: session.RuntimeContext{Phase: session.PhaseUserInput, Payload: payload},
		}
		if _, err := c.Queue.ScheduleNextStep(ctx, session.ScheduleParams{Task: task, Delay: 500}); err != nil {
			return nil, fmt.Errorf("coordinator: schedule step 0: %w", err)
		}
	}

	return &CreateSessionResult{SessionID: id, Status: state.Status}, nil
}

// StartRequest is the body of POST /start: an explicit enqueue of the next
// step, distinct from create_session's implicit auto_start (spec.md §6).
type StartRequest struct {
	SessionID string                  `json:"sessionId"`
	Context   *session.RuntimeContext `json:"context,omitempty"`
	Priority  session.Priority        `json:"priority,omitempty"`
	Delay     int64                   `json:"delay,omitempty"`
}

// StartSession validates the session exists and enqueues a step for it,
// honoring the caller's priority/delay/context overrides when given.
func (c *Coordinator) StartSession(ctx context.Context, req StartRequest) error {
	if req.SessionID == "" {
		return &session.ValidationError{Field: "sessionId", Reason: "required"}
	}
	state, err := c.Store.LoadState(ctx, req.SessionID)
	if err != nil {
		return fmt.Errorf("coordinator: load state: %w", err)
	}
	if state == nil {
		return domain.ErrNotFound
	}

	priority := req.Priority
	if priority == "" {
		priority = session.PriorityHigh
	}
	delay := req.Delay
	if delay <= 0 {
		delay = 500
	}

	rc := session.RuntimeContext{Phase: session.PhaseUserInput}
	if req.Context != nil {
		rc = *req.Context
	}

	task := session.QueuedTask{
		SessionID: req.SessionID,
		StepIndex: state.StepCount,
		Context:   rc,
		Priority:  priority,
	}
	if _, err := c.Queue.ScheduleNextStep(ctx, session.ScheduleParams{Task: task, Delay: delay}); err != nil {
		return fmt.Errorf("coordinator: schedule start step: %w", err)
	}
	return nil
}

// InterventionRequest is the body of POST /human-intervention.
type InterventionRequest struct {
	SessionID string                      `json:"session_id"`
	Action    session.InterventionAction  `json:"action"`
	Data      json.RawMessage             `json:"data"`
	Reason    string                      `json:"reason,omitempty"`
}

type approveData struct {
	ApprovedToolCall session.ToolCall `json:"approvedToolCall"`
}
type selectData struct {
	Selected string `json:"selected"`
}
type inputData struct {
	Input string `json:"input"`
}

// ProcessIntervention loads state, rejects with ErrConflict if the session
// isn't waiting for human input, validates the action against the matching
// pending_* field, and enqueues an immediate step carrying the response.
func (c *Coordinator) ProcessIntervention(ctx context.Context, req InterventionRequest) error {
	state, err := c.Store.LoadState(ctx, req.SessionID)
	if err != nil {
		return fmt.Errorf("coordinator: load state: %w", err)
	}
	if state == nil {
		return domain.ErrNotFound
	}
	if state.Status != session.StatusWaitingForHumanInput {
		return domain.ErrConflict
	}

	task := session.QueuedTask{SessionID: req.SessionID, StepIndex: state.StepCount, Priority: session.PriorityHigh}

	switch req.Action {
	case session.ActionApprove:
		var d approveData
		if err := json.Unmarshal(req.Data, &d); err != nil {
			return &session.ValidationError{Field: "data.approvedToolCall", Reason: "malformed"}
		}
		if !toolCallPending(state, d.ApprovedToolCall.ID) {
			return &session.ValidationError{Field: "data.approvedToolCall.id", Reason: "not in pending_tools_calling"}
		}
		task.Intervention = &session.InterventionPayload{ApprovedToolCall: &d.ApprovedToolCall}

	case session.ActionReject:
		task.Intervention = &session.InterventionPayload{RejectionReason: req.Reason}

	case session.ActionSelect:
		var d selectData
		if err := json.Unmarshal(req.Data, &d); err != nil {
			return &session.ValidationError{Field: "data.selected", Reason: "malformed"}
		}
		if !optionPending(state, d.Selected) {
			return &session.ValidationError{Field: "data.selected", Reason: "not in pending_human_select options"}
		}
		task.Intervention = &session.InterventionPayload{HumanInput: d.Selected}

	case session.ActionInput:
		var d inputData
		if err := json.Unmarshal(req.Data, &d); err != nil {
			return &session.ValidationError{Field: "data.input", Reason: "malformed"}
		}
		task.Intervention = &session.InterventionPayload{HumanInput: d.Input}

	default:
		return &session.ValidationError{Field: "action", Reason: "unknown action"}
	}

	if _, err := c.Queue.ScheduleImmediate(ctx, task); err != nil {
		return fmt.Errorf("coordinator: schedule intervention step: %w", err)
	}
	return nil
}

func toolCallPending(s *session.Session, id string) bool {
	for _, tc := range s.PendingToolsCalling {
		if tc.ID == id {
			return true
		}
	}
	return false
}

func optionPending(s *session.Session, option string) bool {
	for _, o := range s.PendingHumanSelect {
		if o == option {
			return true
		}
	}
	return false
}

// StatusResult is returned by GetStatus.
type StatusResult struct {
	CurrentState     *session.Session         `json:"current_state"`
	Metadata         *session.SessionMetadata `json:"metadata"`
	ExecutionHistory []session.StepResult     `json:"execution_history,omitempty"`
	RecentEvents     []session.Event          `json:"recent_events,omitempty"`
	IsActive         bool                     `json:"isActive"`
	IsCompleted      bool                     `json:"isCompleted"`
	HasError         bool                     `json:"hasError"`
	NeedsHumanInput  bool                     `json:"needsHumanInput"`
}

// GetStatus returns the session's current state, metadata, and (optionally)
// history/recent events, plus derived flags for clients to poll on.
func (c *Coordinator) GetStatus(ctx context.Context, sessionID string, includeHistory bool, historyLimit int) (*StatusResult, error) {
	state, err := c.Store.LoadState(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("coordinator: load state: %w", err)
	}
	if state == nil {
		return nil, domain.ErrNotFound
	}
	meta, err := c.Store.GetMetadata(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("coordinator: get metadata: %w", err)
	}

	result := &StatusResult{
		CurrentState:    state,
		Metadata:        meta,
		IsActive:        !state.Status.Terminal() && state.Status != session.StatusInterrupted,
		IsCompleted:     state.Status == session.StatusDone,
		HasError:        state.Status == session.StatusError,
		NeedsHumanInput: state.Status == session.StatusWaitingForHumanInput,
	}

	if includeHistory {
		if historyLimit <= 0 {
			historyLimit = 50
		}
		hist, err := c.Store.GetHistory(ctx, sessionID, historyLimit)
		if err != nil {
			return nil, fmt.Errorf("coordinator: get history: %w", err)
		}
		result.ExecutionHistory = hist

		events, err := c.Stream.History(ctx, sessionID, historyLimit)
		if err != nil {
			return nil, fmt.Errorf("coordinator: get recent events: %w", err)
		}
		result.RecentEvents = events
	}

	return result, nil
}

// ListPending lists sessions currently waiting for human input, filtered by
// sessionID or userID (spec.md §7's supplemented listing semantics).
func (c *Coordinator) ListPending(ctx context.Context, sessionID, userID string) ([]session.SessionMetadata, error) {
	if sessionID != "" {
		meta, err := c.Store.GetMetadata(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if meta == nil || meta.Status != session.StatusWaitingForHumanInput {
			return nil, nil
		}
		return []session.SessionMetadata{*meta}, nil
	}

	active, err := c.Store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("coordinator: list active: %w", err)
	}
	var out []session.SessionMetadata
	for _, m := range active {
		if m.Status != session.StatusWaitingForHumanInput {
			continue
		}
		if userID != "" && m.UserID != userID {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// DeleteSession interrupts a running session (publishing an error event
// noting user deletion) then deletes all three keyspaces and the event
// log.
func (c *Coordinator) DeleteSession(ctx context.Context, sessionID string) error {
	state, err := c.Store.LoadState(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("coordinator: load state: %w", err)
	}
	if state == nil {
		return domain.ErrNotFound
	}

	if state.Status == session.StatusRunning {
		state.Status = session.StatusInterrupted
		state.Interruption = &session.Interruption{Reason: "deleted by user", CanResume: false, InterruptedAt: time.Now()}
		if err := c.Store.SaveState(ctx, sessionID, state); err != nil {
			return fmt.Errorf("coordinator: interrupt before delete: %w", err)
		}
		evt := session.Event{
			Type: session.EventError, Timestamp: time.Now().UnixMilli(),
			Data: mustMarshal(map[string]string{"phase": "delete_session", "error": "session deleted by user"}),
		}
		if _, err := c.Stream.Publish(ctx, sessionID, evt); err != nil {
			return fmt.Errorf("coordinator: publish deletion event: %w", err)
		}
	}

	if err := c.Store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("coordinator: delete session: %w", err)
	}
	if err := c.Stream.Cleanup(ctx, sessionID); err != nil {
		return fmt.Errorf("coordinator: cleanup event log: %w", err)
	}
	return nil
}

func mustMarshal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
