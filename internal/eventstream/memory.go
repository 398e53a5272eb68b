// Package eventstream implements the Event Stream contract
// (session.EventStream): an append-only, replayable, per-session event log
// with live subscription. Grounded on meridian's SSEHandler.StreamTurn /
// TurnExecutor client-channel fan-out (internal/handler/sse_handler.go,
// internal/service/llm/turn_executor.go), adapted from per-connection
// broadcast channels to a replayable id-ordered log: the spec requires
// resume-from-id, which a fire-and-forget broadcast channel cannot give a
// late joiner.
package eventstream

import (
	"context"
	"strconv"
	"sync"

	"durableagent/internal/session"
)

const defaultMaxLen = 1000

// MemoryStream is a mutex-guarded, bounded, append-only log per session
// with condition-variable wakeup for blocking subscribers.
type MemoryStream struct {
	mu      sync.Mutex
	cond    *sync.Cond
	logs    map[string][]session.Event
	nextID  map[string]int64
	maxLen  int
}

// NewMemoryStream builds a MemoryStream capped at maxLen events per
// session (oldest evicted first, as spec.md's "approximate max length"
// language allows).
func NewMemoryStream(maxLen int) *MemoryStream {
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	s := &MemoryStream{
		logs:   make(map[string][]session.Event),
		nextID: make(map[string]int64),
		maxLen: maxLen,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *MemoryStream) Publish(_ context.Context, id string, evt session.Event) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.nextID[id] + 1
	s.nextID[id] = n
	evt.ID = strconv.FormatInt(n, 10)
	evt.SessionID = id

	log := append(s.logs[id], evt)
	if len(log) > s.maxLen {
		log = log[len(log)-s.maxLen:]
	}
	s.logs[id] = log

	s.cond.Broadcast()
	return evt.ID, nil
}

// History returns up to count events, most-recent first.
func (s *MemoryStream) History(_ context.Context, id string, count int) ([]session.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[id]
	if count <= 0 || count > len(log) {
		count = len(log)
	}
	out := make([]session.Event, count)
	for i := 0; i < count; i++ {
		out[i] = log[len(log)-1-i]
	}
	return out, nil
}

// Subscribe blocks, delivering batches of events with id strictly greater
// than fromID, in order, until ctx is cancelled. Each wakeup delivers
// whatever is newly available as one batch.
func (s *MemoryStream) Subscribe(ctx context.Context, id string, fromID string, handler session.EventHandler) error {
	last, _ := strconv.ParseInt(fromID, 10, 64)
	if fromID == "" {
		last = 0
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	for {
		s.mu.Lock()
		for {
			if ctx.Err() != nil {
				s.mu.Unlock()
				return nil
			}
			var batch session.EventBatch
			for _, e := range s.logs[id] {
				eid, _ := strconv.ParseInt(e.ID, 10, 64)
				if eid > last {
					batch = append(batch, e)
				}
			}
			if len(batch) > 0 {
				last, _ = strconv.ParseInt(batch[len(batch)-1].ID, 10, 64)
				s.mu.Unlock()
				if err := handler(batch); err != nil {
					return err
				}
				s.mu.Lock()
				continue
			}
			break
		}
		s.cond.Wait()
		s.mu.Unlock()
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *MemoryStream) Cleanup(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logs, id)
	delete(s.nextID, id)
	return nil
}
