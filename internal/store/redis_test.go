package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"durableagent/internal/session"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client, time.Hour)
}

func TestRedisStore_SaveAndLoadState(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)

	state := &session.Session{ID: "sess-1", Status: session.StatusRunning, StepCount: 2}
	if err := s.SaveState(ctx, state.ID, state); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	got, err := s.LoadState(ctx, state.ID)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if got == nil || got.Status != session.StatusRunning || got.StepCount != 2 {
		t.Fatalf("loaded state mismatch: %+v", got)
	}
}

func TestRedisStore_LoadMissingSessionReturnsNil(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)

	got, err := s.LoadState(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil state, got %+v", got)
	}
}

func TestRedisStore_SaveStepResultCapsHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)
	state := &session.Session{ID: "sess-2", Status: session.StatusRunning}

	for i := 0; i < maxStepHistory+10; i++ {
		result := session.StepResult{StepIndex: i, Status: session.StatusRunning}
		if err := s.SaveStepResult(ctx, state.ID, result, state); err != nil {
			t.Fatalf("SaveStepResult at %d: %v", i, err)
		}
	}

	hist, err := s.GetHistory(ctx, state.ID, 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(hist) != maxStepHistory {
		t.Fatalf("expected history capped at %d, got %d", maxStepHistory, len(hist))
	}
}

func TestRedisStore_MetadataRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)

	meta := session.SessionMetadata{SessionID: "sess-3", UserID: "user-9"}
	if err := s.CreateMetadata(ctx, meta.SessionID, meta); err != nil {
		t.Fatalf("CreateMetadata: %v", err)
	}

	got, err := s.GetMetadata(ctx, meta.SessionID)
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if got == nil || got.UserID != "user-9" {
		t.Fatalf("metadata mismatch: %+v", got)
	}
}

func TestRedisStore_DeleteSessionRemovesAllKeyspaces(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)
	state := &session.Session{ID: "sess-4", Status: session.StatusRunning}

	if err := s.SaveState(ctx, state.ID, state); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if err := s.CreateMetadata(ctx, state.ID, session.SessionMetadata{SessionID: state.ID}); err != nil {
		t.Fatalf("CreateMetadata: %v", err)
	}
	if err := s.DeleteSession(ctx, state.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}

	got, err := s.LoadState(ctx, state.ID)
	if err != nil {
		t.Fatalf("LoadState after delete: %v", err)
	}
	if got != nil {
		t.Fatalf("expected state gone after delete, got %+v", got)
	}
	meta, err := s.GetMetadata(ctx, state.ID)
	if err != nil {
		t.Fatalf("GetMetadata after delete: %v", err)
	}
	if meta != nil {
		t.Fatalf("expected metadata gone after delete, got %+v", meta)
	}
}
