package eventstream

import (
	"context"
	"testing"
	"time"

	"durableagent/internal/session"
)

func TestMemoryStream_PublishAssignsIncreasingIDs(t *testing.T) {
	s := NewMemoryStream(10)
	ctx := context.Background()

	id1, err := s.Publish(ctx, "sess", session.Event{Type: session.EventStepStart})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	id2, err := s.Publish(ctx, "sess", session.Event{Type: session.EventStepComplete})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if id1 == id2 || id1 != "1" || id2 != "2" {
		t.Errorf("expected sequential ids 1, 2, got %s, %s", id1, id2)
	}
}

func TestMemoryStream_HistoryIsMostRecentFirstAndBounded(t *testing.T) {
	s := NewMemoryStream(2)
	ctx := context.Background()

	for _, typ := range []session.EventType{session.EventStepStart, session.EventStepComplete, session.EventDone} {
		if _, err := s.Publish(ctx, "sess", session.Event{Type: typ}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	hist, err := s.History(ctx, "sess", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected maxLen=2 to evict the oldest event, got %d entries", len(hist))
	}
	if hist[0].Type != session.EventDone || hist[1].Type != session.EventStepComplete {
		t.Errorf("expected most-recent-first order, got %v, %v", hist[0].Type, hist[1].Type)
	}
}

func TestMemoryStream_SubscribeDeliversOnlyEventsAfterFromID(t *testing.T) {
	s := NewMemoryStream(10)
	ctx := context.Background()

	id1, _ := s.Publish(ctx, "sess", session.Event{Type: session.EventStepStart})
	_, _ = s.Publish(ctx, "sess", session.Event{Type: session.EventStepComplete})

	subCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	var got []session.Event
	err := s.Subscribe(subCtx, "sess", id1, func(batch session.EventBatch) error {
		got = append(got, batch...)
		return context.Canceled
	})
	if err != nil && err != context.Canceled {
		t.Fatalf("subscribe: %v", err)
	}
	if len(got) != 1 || got[0].Type != session.EventStepComplete {
		t.Fatalf("expected exactly the one event after id %s, got %+v", id1, got)
	}
}

func TestMemoryStream_CleanupRemovesTheLog(t *testing.T) {
	s := NewMemoryStream(10)
	ctx := context.Background()
	_, _ = s.Publish(ctx, "sess", session.Event{Type: session.EventStepStart})

	if err := s.Cleanup(ctx, "sess"); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	hist, err := s.History(ctx, "sess", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 0 {
		t.Errorf("expected empty history after cleanup, got %d entries", len(hist))
	}
}
