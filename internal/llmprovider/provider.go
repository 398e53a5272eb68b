// Package llmprovider abstracts model invocation as a streaming chunk
// producer, per spec.md §1's explicit framing: concrete provider adapters
// (Anthropic, OpenRouter, ...) are out of scope for this runtime. The
// shape mirrors meridian's domain/services/llm.Provider /
// StreamEvent/StreamMetadata pair (internal/domain/services/llm/provider.go,
// internal/service/llm/adapters/lorem_adapter.go), generalized from a
// single-provider backend-library split into the one interface the LLM
// executor needs.
package llmprovider

import (
	"context"

	"durableagent/internal/session"
)

// ChunkType enumerates the kinds of streaming delta an LLM turn can emit.
type ChunkType string

const (
	ChunkText      ChunkType = "text"
	ChunkToolCalls ChunkType = "tool_calls"
	ChunkReasoning ChunkType = "reasoning"
	ChunkImage     ChunkType = "image"
)

// Request is what the LLM executor hands the provider for one turn.
type Request struct {
	Messages    []session.Message
	Model       string
	Provider    string
	Temperature float64
}

// StreamEvent is one item read off a provider's streaming channel. Delta is
// set for every incremental chunk; Metadata is set once, on the final event
// before the channel closes; Error is set if the producer faults mid-stream.
type StreamEvent struct {
	Delta    *Delta
	Metadata *Metadata
	Error    error
}

// Delta is one incremental chunk of streamed output.
type Delta struct {
	ChunkType ChunkType
	Content   string
	ToolCalls []session.ToolCall
}

// Metadata is the final summary sent as the last StreamEvent before the
// provider's channel closes.
type Metadata struct {
	FinalContent string
	ToolCalls    []session.ToolCall
	Reasoning    string
	Grounding    string
	ImageList    []string
	CostDelta    float64
	Usage        session.Usage
}

// Provider is the abstracted streaming chunk producer the LLM executor
// drives. SupportsModel lets a registry pick a provider by the requested
// model name, the way meridian's adapters do.
type Provider interface {
	Name() string
	SupportsModel(model string) bool
	StreamResponse(ctx context.Context, req Request) (<-chan StreamEvent, error)
}
