package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"durableagent/internal/session"
)

const (
	redisQueueKey      = "agent:queue:delayed"
	redisInFlightKey   = "agent:queue:in-flight"
	defaultRetryAttempts = 3
)

// RedisDelayQueue is the production WorkQueue: a Redis sorted set keyed on
// `score = due-at unix millis`, polled by ZRangeByScore/ZRem and dispatched
// to CallbackURL over HTTP. This generalizes
// itsneelabh-gomind/orchestration/redis_task_queue.go's RedisTaskQueue from
// an immediate LPUSH/BRPOP FIFO to a due-time priority queue, keeping that
// file's retry-with-backoff-and-logging shape for delivery attempts.
type RedisDelayQueue struct {
	client      *redis.Client
	callbackURL string
	httpClient  *http.Client
	logger      *slog.Logger
	retries     int
	pollEvery   time.Duration

	stop chan struct{}
}

// NewRedisDelayQueue builds a RedisDelayQueue that POSTs due tasks to
// callbackURL. Starts its own polling goroutine; call Close to stop it.
func NewRedisDelayQueue(client *redis.Client, callbackURL string, logger *slog.Logger) *RedisDelayQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &RedisDelayQueue{
		client:      client,
		callbackURL: callbackURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
		retries:     defaultRetryAttempts,
		pollEvery:   200 * time.Millisecond,
		stop:        make(chan struct{}),
	}
	go q.pollLoop()
	return q
}

// Close stops the polling goroutine.
func (q *RedisDelayQueue) Close() {
	close(q.stop)
}

type queueEntry struct {
	ID   string              `json:"id"`
	Task session.QueuedTask  `json:"task"`
}

func (q *RedisDelayQueue) enqueue(ctx context.Context, task session.QueuedTask, delayMs int64) (string, error) {
	id := uuid.NewString()
	entry := queueEntry{ID: id, Task: task}
	blob, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("marshal queue entry: %w", err)
	}

	dueAt := float64(time.Now().UnixMilli() + delayMs)
	if err := q.client.ZAdd(ctx, redisQueueKey, &redis.Z{Score: dueAt, Member: blob}).Err(); err != nil {
		return "", fmt.Errorf("enqueue task: %w", err)
	}
	return id, nil
}

func (q *RedisDelayQueue) ScheduleNextStep(ctx context.Context, params session.ScheduleParams) (string, error) {
	return q.enqueue(ctx, params.Task, params.Delay)
}

func (q *RedisDelayQueue) ScheduleImmediate(ctx context.Context, task session.QueuedTask) (string, error) {
	task.Priority = session.PriorityHigh
	return q.enqueue(ctx, task, 100)
}

func (q *RedisDelayQueue) ScheduleBatch(ctx context.Context, params []session.ScheduleParams) ([]string, error) {
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

// Cancel is best-effort: queue tasks are not cancellable once dispatched
// (spec Non-goal), but a still-pending entry can be removed from the
// sorted set before its due time.
func (q *RedisDelayQueue) Cancel(ctx context.Context, taskID string) error {
	members, err := q.client.ZRangeWithScores(ctx, redisQueueKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	for _, m := range members {
		raw, ok := m.Member.(string)
		if !ok {
			continue
		}
		var entry queueEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		if entry.ID == taskID {
			q.client.ZRem(ctx, redisQueueKey, raw)
			return nil
		}
	}
	return nil
}

func (q *RedisDelayQueue) Stats(ctx context.Context) (session.QueueStats, error) {
	queued, err := q.client.ZCard(ctx, redisQueueKey).Result()
	if err != nil {
		return session.QueueStats{}, fmt.Errorf("stats: %w", err)
	}
	inFlight, err := q.client.SCard(ctx, redisInFlightKey).Result()
	if err != nil {
		return session.QueueStats{}, fmt.Errorf("stats: %w", err)
	}
	return session.QueueStats{Queued: queued, InFlight: inFlight}, nil
}

func (q *RedisDelayQueue) Health(ctx context.Context) (session.QueueHealth, error) {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return session.QueueHealth{OK: false, Backend: "redis"}, nil
	}
	return session.QueueHealth{OK: true, Backend: "redis"}, nil
}

func (q *RedisDelayQueue) pollLoop() {
	ticker := time.NewTicker(q.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			q.dispatchDue()
		}
	}
}

func (q *RedisDelayQueue) dispatchDue() {
	ctx := context.Background()
	now := float64(time.Now().UnixMilli())
	due, err := q.client.ZRangeByScore(ctx, redisQueueKey, &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil {
		q.logger.Error("poll due tasks failed", "error", err)
		return
	}
	for _, raw := range due {
		removed, err := q.client.ZRem(ctx, redisQueueKey, raw).Result()
		if err != nil || removed == 0 {
			continue // another poller already claimed it
		}
		var entry queueEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			q.logger.Error("malformed queue entry", "error", err)
			continue
		}
		go q.deliverWithRetry(entry)
	}
}

func (q *RedisDelayQueue) deliverWithRetry(entry queueEntry) {
	q.client.SAdd(context.Background(), redisInFlightKey, entry.ID)
	defer q.client.SRem(context.Background(), redisInFlightKey, entry.ID)

	body, err := json.Marshal(entry.Task)
	if err != nil {
		q.logger.Error("marshal task for delivery failed", "task_id", entry.ID, "error", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt < q.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 200 * time.Millisecond)
		}
		req, err := http.NewRequest(http.MethodPost, q.callbackURL, bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := q.httpClient.Do(req)
		if err != nil {
			lastErr = err
			q.logger.Warn("delivery attempt failed", "task_id", entry.ID, "attempt", attempt+1, "error", err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return
		}
		lastErr = fmt.Errorf("non-2xx response: %d", resp.StatusCode)
		q.logger.Warn("delivery attempt rejected", "task_id", entry.ID, "attempt", attempt+1, "status", resp.StatusCode)
	}
	q.logger.Error("delivery failed after retries", "task_id", entry.ID, "attempts", q.retries, "error", lastErr)
}
