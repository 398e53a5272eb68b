// Package capabilities loads per-provider, per-model pricing tables from
// embedded YAML, grounded on meridian's internal/capabilities package
// (registry.go's embed.FS + yaml.Unmarshal load, types.go's
// ModelCapabilities/ProviderCapabilities shape). This runtime needs only
// the pricing slice of what the teacher's registry carries — cost
// accounting for the Session.Cost/CostLimit machinery — so the rest of
// the teacher's capability surface (vision/tool-call-quality/image
// generation flags) is dropped rather than carried unused.
package capabilities

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed config/*.yaml
var configFiles embed.FS

// Registry is a thread-safe, provider-keyed pricing lookup.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*ProviderPricing
}

// NewRegistry loads every config/*.yaml file embedded in this package into
// a Registry. A malformed file fails the whole load, the same
// fail-fast-at-startup posture as meridian's NewRegistry.
func NewRegistry() (*Registry, error) {
	r := &Registry{providers: make(map[string]*ProviderPricing)}

	entries, err := configFiles.ReadDir("config")
	if err != nil {
		return nil, fmt.Errorf("capabilities: read embedded config dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		data, err := configFiles.ReadFile("config/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("capabilities: read %s: %w", entry.Name(), err)
		}
		var pp ProviderPricing
		if err := yaml.Unmarshal(data, &pp); err != nil {
			return nil, fmt.Errorf("capabilities: unmarshal %s: %w", entry.Name(), err)
		}
		r.providers[pp.Provider] = &pp
	}
	return r, nil
}

// GetModelPricing resolves the pricing row for provider/model. The second
// return is false when either the provider or the model within it is
// unknown, letting callers fall back to an unpriced (zero-cost) default
// rather than failing a step over a missing pricing entry.
func (r *Registry) GetModelPricing(provider, model string) (ModelPricing, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pp, ok := r.providers[provider]
	if !ok {
		return ModelPricing{}, false
	}
	mp, ok := pp.Models[model]
	return mp, ok
}

// EstimateCost converts a token usage delta into a monetary cost using the
// resolved pricing row, both prices expressed per million tokens.
func (mp ModelPricing) EstimateCost(promptTokens, completionTokens int64) float64 {
	in := float64(promptTokens) / 1_000_000 * mp.InputPricePerMillion
	out := float64(completionTokens) / 1_000_000 * mp.OutputPricePerMillion
	return in + out
}
