package llmprovider

import (
	"context"

	"durableagent/internal/session"
)

// MockProvider is a deterministic default provider, grounded on meridian's
// LoremAdapter (internal/service/llm/adapters/lorem_adapter.go): a
// provider with no external dependency, useful for local development and
// tests, replacing a live model call with canned, chunked output.
//
// Responses are served round-robin from Replies; each is split into
// ChunkSize-rune pieces to exercise the executor's accumulation logic the
// same way a real token stream would.
type MockProvider struct {
	Replies   []string
	ChunkSize int

	calls int
}

// NewMockProvider builds a MockProvider cycling through replies, chunked
// chunkSize runes at a time (default 3).
func NewMockProvider(chunkSize int, replies ...string) *MockProvider {
	if chunkSize <= 0 {
		chunkSize = 3
	}
	if len(replies) == 0 {
		replies = []string{"hello"}
	}
	return &MockProvider{Replies: replies, ChunkSize: chunkSize}
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) SupportsModel(string) bool { return true }

func (p *MockProvider) StreamResponse(ctx context.Context, _ Request) (<-chan StreamEvent, error) {
	reply := p.Replies[p.calls%len(p.Replies)]
	p.calls++

	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		runes := []rune(reply)
		var acc string
		for i := 0; i < len(runes); i += p.ChunkSize {
			end := i + p.ChunkSize
			if end > len(runes) {
				end = len(runes)
			}
			chunk := string(runes[i:end])
			acc += chunk
			select {
			case <-ctx.Done():
				ch <- StreamEvent{Error: ctx.Err()}
				return
			case ch <- StreamEvent{Delta: &Delta{ChunkType: ChunkText, Content: chunk}}:
			}
		}
		ch <- StreamEvent{Metadata: &Metadata{
			FinalContent: acc,
			Usage:        session.Usage{PromptTokens: 1, CompletionTokens: int64(len(runes)), TotalTokens: int64(len(runes)) + 1},
		}}
	}()
	return ch, nil
}

// Registry selects a Provider by name, grounded on meridian's provider
// factory (adapters package choosing Lorem/Anthropic/OpenRouter by
// configured default provider).
type Registry struct {
	providers map[string]Provider
	def       string
}

// NewRegistry builds a Registry whose default provider is used when a
// request doesn't name one explicitly.
func NewRegistry(def string, providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider), def: def}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get resolves a provider by name, falling back to the registry default.
func (r *Registry) Get(name string) (Provider, bool) {
	if name == "" {
		name = r.def
	}
	p, ok := r.providers[name]
	return p, ok
}
