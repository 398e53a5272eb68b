package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"durableagent/internal/domain"
	"durableagent/internal/eventstream"
	"durableagent/internal/queue"
	"durableagent/internal/session"
	"durableagent/internal/store"
)

func newTestCoordinator() (*Coordinator, *store.MemoryStore) {
	st := store.NewMemoryStore(time.Hour)
	stream := eventstream.NewMemoryStream(1000)
	q := queue.NewTimerQueue(func(context.Context, session.QueuedTask) {})
	return New(st, stream, q), st
}

func TestCreateSession_RequiresModelConfig(t *testing.T) {
	c, _ := newTestCoordinator()
	_, err := c.CreateSession(context.Background(), CreateSessionRequest{})
	var verr *session.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCreateSession_AutoStartDefaultsTrue(t *testing.T) {
	c, st := newTestCoordinator()
	res, err := c.CreateSession(context.Background(), CreateSessionRequest{
		ModelConfig: ModelConfig{Model: "m", Provider: "p"},
		Messages:    []session.Message{{Role: session.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if res.Status != session.StatusIdle {
		t.Errorf("expected idle status, got %s", res.Status)
	}
	meta, err := st.GetMetadata(context.Background(), res.SessionID)
	if err != nil || meta == nil {
		t.Fatalf("expected metadata to exist, err=%v meta=%v", err, meta)
	}
	stats, err := c.Queue.Stats(context.Background())
	if err != nil || stats.Queued != 1 {
		t.Errorf("expected auto_start to enqueue step 0, got queued=%d err=%v", stats.Queued, err)
	}
}

func TestProcessIntervention_ConflictWhenNotWaiting(t *testing.T) {
	c, st := newTestCoordinator()
	ctx := context.Background()
	sess := &session.Session{ID: "s1", Status: session.StatusRunning}
	if err := st.SaveState(ctx, sess.ID, sess); err != nil {
		t.Fatalf("save state: %v", err)
	}

	err := c.ProcessIntervention(ctx, InterventionRequest{SessionID: "s1", Action: session.ActionReject, Reason: "no"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestProcessIntervention_RejectsUnknownApprovalID(t *testing.T) {
	c, st := newTestCoordinator()
	ctx := context.Background()
	sess := &session.Session{
		ID: "s1", Status: session.StatusWaitingForHumanInput,
		PendingToolsCalling: []session.ToolCall{{ID: "t1"}},
	}
	if err := st.SaveState(ctx, sess.ID, sess); err != nil {
		t.Fatalf("save state: %v", err)
	}

	err := c.ProcessIntervention(ctx, InterventionRequest{
		SessionID: "s1", Action: session.ActionApprove,
		Data: []byte(`{"approvedToolCall":{"id":"unknown"}}`),
	})
	var verr *session.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for unknown tool call id, got %v", err)
	}
}
