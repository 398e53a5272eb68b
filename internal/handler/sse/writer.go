package sse

import (
	"bufio"
	"encoding/json"
	"fmt"
)

// HeartbeatWriter writes keep-alive frames for SSE connections: a JSON
// heartbeat data frame (not a bare comment), since spec framing requires
// every frame — including heartbeats — to carry
// `{"sessionId","timestamp","type":"heartbeat"}`. Grounded on meridian's
// SSEKeepAliveWriter, adapted from writing `: keepalive\n\n` to writing a
// compact JSON data frame against the *bufio.Writer the Fiber
// SetBodyStreamWriter handler hands us. A dead connection shows up as a
// write or flush error of that frame.
type HeartbeatWriter struct {
	w         *bufio.Writer
	sessionID string
	nowMillis func() int64
}

// NewHeartbeatWriter creates a heartbeat writer for one SSE connection.
func NewHeartbeatWriter(w *bufio.Writer, sessionID string, nowMillis func() int64) *HeartbeatWriter {
	return &HeartbeatWriter{w: w, sessionID: sessionID, nowMillis: nowMillis}
}

// WriteKeepAlive writes one heartbeat frame and flushes. Returns an error
// if the connection is closed or the write fails.
func (h *HeartbeatWriter) WriteKeepAlive() error {
	payload, err := json.Marshal(map[string]interface{}{
		"sessionId": h.sessionID,
		"timestamp": h.nowMillis(),
		"type":      "heartbeat",
	})
	if err != nil {
		return fmt.Errorf("marshal heartbeat: %w", err)
	}
	if _, err := fmt.Fprintf(h.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write heartbeat failed: %w", err)
	}
	if err := h.w.Flush(); err != nil {
		return fmt.Errorf("flush heartbeat failed: %w", err)
	}
	return nil
}
