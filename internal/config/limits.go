package config

import "time"

const (
	// DefaultStepHistoryLimit is the count returned by GetStatus when a
	// caller asks for execution history without naming a limit.
	DefaultStepHistoryLimit = 50

	// MaxStepHistoryLength bounds how many StepResults a StateStore keeps
	// per session (oldest trimmed first); matches the in-memory and
	// Redis-backed store implementations.
	MaxStepHistoryLength = 200

	// DefaultEventLogMaxLength bounds how many events an EventStream
	// keeps per session before evicting the oldest.
	DefaultEventLogMaxLength = 1000

	// StepWallClockBudget is the soft per-step execution budget (spec.md
	// §5): a step that runs longer is treated as an executor fault.
	StepWallClockBudget = 120 * time.Second

	// SSEHeartbeatInterval is how often the stream handler writes a
	// heartbeat frame to keep intermediaries from closing an idle
	// connection.
	SSEHeartbeatInterval = 30 * time.Second
)
