// Package store implements the State Store contract (session.StateStore)
// against two backends: an in-memory map for tests and local development,
// and Redis for production, grounded on itsneelabh-gomind/orchestration's
// InMemoryStateStore / RedisTaskQueue pairing of a map-backed reference
// implementation alongside a Redis-backed production one.
package store

import (
	"context"
	"sync"
	"time"

	"durableagent/internal/session"
)

const maxStepHistory = 200

type memoryRecord struct {
	state   *session.Session
	steps   []session.StepResult
	meta    session.SessionMetadata
	expires time.Time
}

// MemoryStore is a mutex-guarded, TTL-aware StateStore used by unit tests
// and the in-process development stack.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*memoryRecord
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore builds a MemoryStore with the given session TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryStore{
		records: make(map[string]*memoryRecord),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryStore) touch(r *memoryRecord) {
	r.expires = m.now().Add(m.ttl)
}

func (m *MemoryStore) SaveState(_ context.Context, id string, state *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		r = &memoryRecord{meta: session.SessionMetadata{SessionID: id, CreatedAt: m.now()}}
		m.records[id] = r
	}
	r.state = state.Clone()
	r.meta.Status = state.Status
	r.meta.TotalCost = state.Cost.Total
	r.meta.TotalSteps = state.StepCount
	r.meta.LastActiveAt = m.now()
	m.touch(r)
	return nil
}

func (m *MemoryStore) LoadState(_ context.Context, id string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok || m.expired(r) {
		return nil, nil
	}
	return r.state.Clone(), nil
}

func (m *MemoryStore) expired(r *memoryRecord) bool {
	return !r.expires.IsZero() && m.now().After(r.expires)
}

// SaveStepResult persists the new state and prepends the step result to the
// bounded history in one logical commit. Idempotent: replaying the same
// step_index against an already-advanced state simply overwrites with the
// same values, it never duplicates a history entry for that step_index.
func (m *MemoryStore) SaveStepResult(_ context.Context, id string, result session.StepResult, state *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		r = &memoryRecord{meta: session.SessionMetadata{SessionID: id, CreatedAt: m.now()}}
		m.records[id] = r
	}
	r.state = state.Clone()

	filtered := r.steps[:0:0]
	for _, existing := range r.steps {
		if existing.StepIndex == result.StepIndex {
			continue
		}
		filtered = append(filtered, existing)
	}
	r.steps = append([]session.StepResult{result}, filtered...)
	if len(r.steps) > maxStepHistory {
		r.steps = r.steps[:maxStepHistory]
	}

	r.meta.Status = state.Status
	r.meta.TotalCost = state.Cost.Total
	r.meta.TotalSteps = state.StepCount
	r.meta.LastActiveAt = m.now()
	m.touch(r)
	return nil
}

func (m *MemoryStore) CreateMetadata(_ context.Context, id string, meta session.SessionMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	meta.SessionID = id
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = m.now()
	}
	meta.LastActiveAt = m.now()
	meta.Status = session.StatusIdle
	r, ok := m.records[id]
	if !ok {
		r = &memoryRecord{}
		m.records[id] = r
	}
	r.meta = meta
	m.touch(r)
	return nil
}

func (m *MemoryStore) GetMetadata(_ context.Context, id string) (*session.SessionMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok || m.expired(r) {
		return nil, nil
	}
	meta := r.meta
	return &meta, nil
}

func (m *MemoryStore) ListActive(_ context.Context) ([]session.SessionMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []session.SessionMetadata
	for _, r := range m.records {
		if m.expired(r) {
			continue
		}
		if !r.meta.Status.Terminal() {
			out = append(out, r.meta)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetHistory(_ context.Context, id string, limit int) ([]session.StepResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok || m.expired(r) {
		return nil, nil
	}
	if limit <= 0 || limit > len(r.steps) {
		limit = len(r.steps)
	}
	out := make([]session.StepResult, limit)
	copy(out, r.steps[:limit])
	return out, nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

// CleanupExpired sweeps records whose TTL has lapsed.
func (m *MemoryStore) CleanupExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, r := range m.records {
		if m.expired(r) {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}
