package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"durableagent/internal/coordinator"
	"durableagent/internal/eventstream"
	"durableagent/internal/executor"
	"durableagent/internal/llmprovider"
	"durableagent/internal/queue"
	"durableagent/internal/runner"
	"durableagent/internal/session"
	"durableagent/internal/step"
	"durableagent/internal/store"
	"durableagent/internal/toolhost"
)

func newTestApp(t *testing.T) *fiber.App {
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

	var eng *step.Engine
	q := queue.NewTimerQueue(func(ctx context.Context, task session.QueuedTask) {
		_, _ = eng.ExecuteStep(ctx, task)
	})
	eng = step.NewEngine(st, stream, q, reg, runner.Default(nil))
	coord := coordinator.New(st, stream, q)

	app := fiber.New()
	Register(app, coord, eng, stream, st, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	return resp
}

func TestRouter_CreateSessionThenGetStatus(t *testing.T) {
	app := newTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/session", map[string]interface{}{
		"model_config": map[string]string{"model": "m", "provider": "p"},
		"messages":     []map[string]string{{"role": "user", "content": "hi"}},
		"auto_start":   false,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 creating a session, got %d", resp.StatusCode)
	}
	var created coordinator.CreateSessionResult
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.SessionID == "" {
		t.Fatal("expected a generated session id")
	}

	resp = doJSON(t, app, http.MethodGet, "/session?sessionId="+created.SessionID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 getting status, got %d", resp.StatusCode)
	}
	var status coordinator.StatusResult
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status response: %v", err)
	}
	if status.CurrentState == nil || status.CurrentState.ID != created.SessionID {
		t.Fatalf("expected status for the created session, got %+v", status.CurrentState)
	}
}

func TestRouter_GetStatus_MissingSessionID_Is400(t *testing.T) {
	app := newTestApp(t)
	resp := doJSON(t, app, http.MethodGet, "/session", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without sessionId, got %d", resp.StatusCode)
	}
}

func TestRouter_GetStatus_UnknownSession_Is404(t *testing.T) {
	app := newTestApp(t)
	resp := doJSON(t, app, http.MethodGet, "/session?sessionId=nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown session, got %d", resp.StatusCode)
	}
}

func TestRouter_Start_UnknownSession_Is404(t *testing.T) {
	app := newTestApp(t)
	resp := doJSON(t, app, http.MethodPost, "/start", map[string]string{"sessionId": "nope"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 starting an unknown session, got %d", resp.StatusCode)
	}
}

func TestRouter_Start_ExistingSession_EnqueuesAndReturnsOK(t *testing.T) {
	app := newTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/session", map[string]interface{}{
		"model_config": map[string]string{"model": "m", "provider": "p"},
		"auto_start":   false,
	})
	var created coordinator.CreateSessionResult
	_ = json.NewDecoder(resp.Body).Decode(&created)

	resp = doJSON(t, app, http.MethodPost, "/start", map[string]string{"sessionId": created.SessionID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 starting an existing session, got %d", resp.StatusCode)
	}
}

func TestRouter_HumanIntervention_ConflictWhenNotWaiting(t *testing.T) {
	app := newTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/session", map[string]interface{}{
		"model_config": map[string]string{"model": "m", "provider": "p"},
		"auto_start":   false,
	})
	var created coordinator.CreateSessionResult
	_ = json.NewDecoder(resp.Body).Decode(&created)

	resp = doJSON(t, app, http.MethodPost, "/human-intervention", map[string]interface{}{
		"session_id": created.SessionID,
		"action":     "reject",
		"reason":     "no",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 when the session isn't waiting for human input, got %d", resp.StatusCode)
	}
}

func TestRouter_ExecuteStepHealth(t *testing.T) {
	app := newTestApp(t)
	resp := doJSON(t, app, http.MethodGet, "/execute-step", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from the execute-step health check, got %d", resp.StatusCode)
	}
}
