package eventstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"durableagent/internal/session"
)

// RedisStream implements session.EventStream on Redis Streams (XADD with
// approximate trimming, XREVRANGE for history, XREAD BLOCK for live
// subscription) — the direct analogue of spec.md §4.2's
// xrevrange/xread language, grounded on the same go-redis client family
// itsneelabh-gomind/orchestration/redis_task_queue.go wraps.
type RedisStream struct {
	client *redis.Client
	ttl    time.Duration
	maxLen int64
}

// NewRedisStream builds a RedisStream with the given event-log TTL and
// approximate max length.
func NewRedisStream(client *redis.Client, ttl time.Duration, maxLen int64) *RedisStream {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &RedisStream{client: client, ttl: ttl, maxLen: maxLen}
}

func streamKey(id string) string { return "events:" + id }

func (s *RedisStream) Publish(ctx context.Context, id string, evt session.Event) (string, error) {
	evt.SessionID = id
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return "", fmt.Errorf("marshal event data: %w", err)
	}

	res, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(id),
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":       string(evt.Type),
			"step_index": evt.StepIndex,
			"session_id": evt.SessionID,
			"timestamp":  evt.Timestamp,
			"data":       string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish event: %w", err)
	}
	s.client.Expire(ctx, streamKey(id), s.ttl)
	return res, nil
}

func messageToEvent(msg redis.XMessage) session.Event {
	e := session.Event{ID: msg.ID}
	if v, ok := msg.Values["type"].(string); ok {
		e.Type = session.EventType(v)
	}
	if v, ok := msg.Values["session_id"].(string); ok {
		e.SessionID = v
	}
	if v, ok := msg.Values["step_index"]; ok {
		e.StepIndex = toInt(v)
	}
	if v, ok := msg.Values["timestamp"]; ok {
		e.Timestamp = toInt64(v)
	}
	if v, ok := msg.Values["data"].(string); ok {
		e.Data = json.RawMessage(v)
	}
	return e
}

func toInt(v interface{}) int {
	switch t := v.(type) {
	case string:
		var n int
		fmt.Sscanf(t, "%d", &n)
		return n
	case int64:
		return int(t)
	}
	return 0
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case string:
		var n int64
		fmt.Sscanf(t, "%d", &n)
		return n
	case int64:
		return t
	}
	return 0
}

func (s *RedisStream) History(ctx context.Context, id string, count int) ([]session.Event, error) {
	if count <= 0 {
		count = 100
	}
	msgs, err := s.client.XRevRangeN(ctx, streamKey(id), "+", "-", int64(count)).Result()
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	out := make([]session.Event, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageToEvent(m))
	}
	return out, nil
}

// Subscribe blocks on XREAD starting strictly after fromID, delivering
// batches in order until ctx is cancelled.
func (s *RedisStream) Subscribe(ctx context.Context, id string, fromID string, handler session.EventHandler) error {
	cursor := fromID
	if cursor == "" {
		cursor = "0"
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		res, err := s.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{streamKey(id), cursor},
			Block:   5 * time.Second,
			Count:   100,
		}).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("subscribe: %w", err)
		}
		for _, stream := range res {
			var batch session.EventBatch
			for _, m := range stream.Messages {
				batch = append(batch, messageToEvent(m))
				cursor = m.ID
			}
			if len(batch) > 0 {
				if err := handler(batch); err != nil {
					return err
				}
			}
		}
	}
}

func (s *RedisStream) Cleanup(ctx context.Context, id string) error {
	return s.client.Del(ctx, streamKey(id)).Err()
}
