package step

import (
	"context"
	"testing"
	"time"

	"durableagent/internal/eventstream"
	"durableagent/internal/executor"
	"durableagent/internal/llmprovider"
	"durableagent/internal/queue"
	"durableagent/internal/runner"
	"durableagent/internal/session"
	"durableagent/internal/store"
	"durableagent/internal/toolhost"
)

func newTestEngine(t *testing.T) (*Engine, *store.MemoryStore, session.EventStream, *queue.TimerQueue) {
	t.Helper()
	st := store.NewMemoryStore(time.Hour)
	stream := eventstream.NewMemoryStream(1000)

	provider := llmprovider.NewMockProvider(3, "hello")
	providers := llmprovider.NewRegistry("mock", provider)

	llmEx := &executor.LLMExecutor{Providers: providers, DefaultProvider: "mock", DefaultModel: "mock-model", Stream: stream}
	toolEx := &executor.ToolExecutor{Host: toolhost.DefaultRegistry(), Stream: stream}
	approvalEx := &executor.HumanApprovalExecutor{Stream: stream}
	finishEx := &executor.FinishExecutor{Stream: stream}
	reg := executor.NewDefaultRegistry(llmEx, toolEx, approvalEx, finishEx)

	run := runner.Default(nil)

	var q *queue.TimerQueue
	var eng *Engine
	q = queue.NewTimerQueue(func(ctx context.Context, task session.QueuedTask) {
		_, _ = eng.ExecuteStep(ctx, task)
	})
	eng = NewEngine(st, stream, q, reg, run)
	return eng, st, stream, q
}

func TestExecuteStep_HappyPath(t *testing.T) {
	eng, st, _, _ := newTestEngine(t)
	ctx := context.Background()

	sess := &session.Session{
		ID:       "s1",
		Status:   session.StatusIdle,
		Messages: []session.Message{{Role: session.RoleUser, Content: "hi"}},
	}
	if err := st.SaveState(ctx, sess.ID, sess); err != nil {
		t.Fatalf("save state: %v", err)
	}
	if err := st.CreateMetadata(ctx, sess.ID, session.SessionMetadata{}); err != nil {
		t.Fatalf("create metadata: %v", err)
	}

	task := session.QueuedTask{
		SessionID: sess.ID, StepIndex: 0,
		Context: session.RuntimeContext{Phase: session.PhaseUserInput},
	}

	summary, err := eng.ExecuteStep(ctx, task)
	if err != nil {
		t.Fatalf("execute step 0: %v", err)
	}
	if !summary.HasNextContext {
		t.Fatalf("expected next context after llm call with no tool calls leads to finish decision next step")
	}

	final, err := st.LoadState(ctx, sess.ID)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if len(final.Messages) != 2 {
		t.Fatalf("expected assistant message appended, got %d messages", len(final.Messages))
	}
	if final.Messages[1].Content != "hello" {
		t.Errorf("expected accumulated content 'hello', got %q", final.Messages[1].Content)
	}
	if final.StepCount != 1 {
		t.Errorf("expected step_count=1 after one committed step, got %d", final.StepCount)
	}
}

func TestExecuteStep_IdempotentRetry(t *testing.T) {
	eng, st, _, _ := newTestEngine(t)
	ctx := context.Background()

	sess := &session.Session{ID: "s2", Status: session.StatusIdle, StepCount: 1}
	if err := st.SaveState(ctx, sess.ID, sess); err != nil {
		t.Fatalf("save state: %v", err)
	}

	task := session.QueuedTask{SessionID: sess.ID, StepIndex: 0, Context: session.RuntimeContext{Phase: session.PhaseUserInput}}
	summary, err := eng.ExecuteStep(ctx, task)
	if err != nil {
		t.Fatalf("execute stale step: %v", err)
	}
	if summary.TotalSteps != 1 {
		t.Errorf("expected stale retry to report existing step_count 1, got %d", summary.TotalSteps)
	}
}

func TestExecuteStep_MissingSession(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	_, err := eng.ExecuteStep(context.Background(), session.QueuedTask{SessionID: "missing"})
	if err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
