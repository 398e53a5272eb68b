package executor

import (
	"context"

	"durableagent/internal/llmprovider"
	"durableagent/internal/session"
)

// scriptedTurn is one canned reply a scriptedProvider serves for a single
// StreamResponse call: the chunks it emits in order, then the final
// metadata.
type scriptedTurn struct {
	chunks []llmprovider.Delta
	meta   llmprovider.Metadata
}

// scriptedProvider serves scripted turns round-robin, letting a test drive
// an LLMExecutor through a tool call followed by a plain-text reply without
// a real model backend.
type scriptedProvider struct {
	turns []scriptedTurn
	calls int
}

func (p *scriptedProvider) Name() string                  { return "mock" }
func (p *scriptedProvider) SupportsModel(string) bool      { return true }
func (p *scriptedProvider) StreamResponse(_ context.Context, _ llmprovider.Request) (<-chan llmprovider.StreamEvent, error) {
	turn := p.turns[p.calls%len(p.turns)]
	p.calls++

	ch := make(chan llmprovider.StreamEvent, len(turn.chunks)+1)
	for _, d := range turn.chunks {
		d := d
		ch <- llmprovider.StreamEvent{Delta: &d}
	}
	m := turn.meta
	ch <- llmprovider.StreamEvent{Metadata: &m}
	close(ch)
	return ch, nil
}

func calcToolCall() session.ToolCall {
	tc := session.ToolCall{ID: "t1", Type: "function"}
	tc.Function.Name = "calc"
	tc.Function.Arguments = `{"x":2}`
	return tc
}
