package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"durableagent/internal/session"
)

// Callback is invoked when a task's delay elapses. Grounded on meridian's
// goroutine-dispatch style (`go s.startStreamingExecution(...)` in
// streaming/service.go): no HTTP round-trip, the queue calls straight back
// into the process that scheduled it.
type Callback func(ctx context.Context, task session.QueuedTask)

// TimerQueue is the in-process, development-mode WorkQueue: schedule uses
// time.AfterFunc and invokes the registered Callback directly.
type TimerQueue struct {
	callback Callback

	mu    sync.Mutex
	timers map[string]*time.Timer
}

// NewTimerQueue builds a TimerQueue that calls cb when each task's delay
// elapses.
func NewTimerQueue(cb Callback) *TimerQueue {
	return &TimerQueue{callback: cb, timers: make(map[string]*time.Timer)}
}

func (q *TimerQueue) schedule(task session.QueuedTask, delayMs int64) string {
	id := uuid.NewString()
	timer := time.AfterFunc(time.Duration(delayMs)*time.Millisecond, func() {
		q.mu.Lock()
		delete(q.timers, id)
		q.mu.Unlock()
		q.callback(context.Background(), task)
	})

	q.mu.Lock()
	q.timers[id] = timer
	q.mu.Unlock()
	return id
}

func (q *TimerQueue) ScheduleNextStep(_ context.Context, params session.ScheduleParams) (string, error) {
	return q.schedule(params.Task, params.Delay), nil
}

func (q *TimerQueue) ScheduleImmediate(_ context.Context, task session.QueuedTask) (string, error) {
	task.Priority = session.PriorityHigh
	return q.schedule(task, 100), nil
}

func (q *TimerQueue) ScheduleBatch(ctx context.Context, params []session.ScheduleParams) ([]string, error) {
	ids := make([]string, 0, len(params))
	for _, p := range params {
		id, err := q.ScheduleNextStep(ctx, p)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Cancel is best-effort: it stops the timer if it has not already fired.
func (q *TimerQueue) Cancel(_ context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t, ok := q.timers[taskID]; ok {
		t.Stop()
		delete(q.timers, taskID)
	}
	return nil
}

func (q *TimerQueue) Stats(_ context.Context) (session.QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return session.QueueStats{Queued: int64(len(q.timers))}, nil
}

func (q *TimerQueue) Health(_ context.Context) (session.QueueHealth, error) {
	return session.QueueHealth{OK: true, Backend: "timer"}, nil
}
