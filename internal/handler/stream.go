package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"durableagent/internal/handler/sse"
	"durableagent/internal/session"
)

// StreamHandler serves GET /stream, the SSE endpoint. Grounded on
// meridian's SSEHandler.StreamTurn: headers set up front, a
// SetBodyStreamWriter goroutine that selects between live events and a
// keepalive ticker, flush-error used to detect a dead client. Adapted from
// a per-turn client-registry channel to the replayable EventStream log so
// lastEventId catchup is possible.
type StreamHandler struct {
	stream   session.EventStream
	store    session.StateStore
	logger   *slog.Logger
	sseCfg   *sse.Config
}

// NewStreamHandler builds a StreamHandler.
func NewStreamHandler(stream session.EventStream, store session.StateStore, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{stream: stream, store: store, logger: logger, sseCfg: sse.DefaultConfig()}
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// Stream handles GET /stream?sessionId=...&lastEventId=...&includeHistory=...
func (h *StreamHandler) Stream(c *fiber.Ctx) error {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "sessionId is required"})
	}
	lastEventID := c.Query("lastEventId")
	includeHistory := c.Query("includeHistory") == "true"

	if _, err := h.store.LoadState(c.Context(), sessionID); err != nil {
		return handleError(c, h.logger, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache, no-transform")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")
	c.Set("Access-Control-Allow-Origin", "*")

	logger := h.logger
	stream := h.stream
	heartbeatEvery := h.sseCfg.KeepAliveInterval

	c.Status(fiber.StatusOK).Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		if err := writeFrame(w, map[string]interface{}{
			"sessionId": sessionID,
			"timestamp": nowMillis(),
			"type":      session.EventConnected,
			"lastEventId": lastEventID,
		}); err != nil {
			return
		}

		replayFrom := lastEventID
		if includeHistory {
			hist, err := stream.History(context.Background(), sessionID, 0)
			if err == nil {
				chronological := make([]session.Event, len(hist))
				for i, e := range hist {
					chronological[len(hist)-1-i] = e
				}
				for _, e := range chronological {
					if !eventIDGreater(e.ID, lastEventID) {
						continue
					}
					if err := writeFrame(w, e); err != nil {
						return
					}
					replayFrom = e.ID
				}
			} else {
				logger.Warn("sse history replay failed", "session_id", sessionID, "error", err)
			}
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		events := make(chan session.EventBatch, 8)
		subErr := make(chan error, 1)
		go func() {
			subErr <- stream.Subscribe(ctx, sessionID, replayFrom, func(batch session.EventBatch) error {
				select {
				case events <- batch:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
		}()

		heartbeatWriter := sse.NewHeartbeatWriter(w, sessionID, nowMillis)
		ticker := time.NewTicker(heartbeatEvery)
		defer ticker.Stop()

		for {
			select {
			case batch, ok := <-events:
				if !ok {
					return
				}
				for _, e := range batch {
					if err := writeFrame(w, e); err != nil {
						return
					}
					if e.Type == session.EventDone || e.Type == session.EventError {
						return
					}
				}
			case <-ticker.C:
				if err := heartbeatWriter.WriteKeepAlive(); err != nil {
					return
				}
			case err := <-subErr:
				if err != nil {
					logger.Debug("sse subscription ended", "session_id", sessionID, "error", err)
				}
				return
			}
		}
	})

	return nil
}

func writeFrame(w *bufio.Writer, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal sse frame: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write sse frame: %w", err)
	}
	return w.Flush()
}

// eventIDGreater reports whether id is strictly greater than since as a
// decimal-string-encoded sequence number ("" since means everything qualifies).
func eventIDGreater(id, since string) bool {
	if since == "" {
		return true
	}
	a, errA := strconv.ParseInt(id, 10, 64)
	b, errB := strconv.ParseInt(since, 10, 64)
	if errA != nil || errB != nil {
		return id > since
	}
	return a > b
}
