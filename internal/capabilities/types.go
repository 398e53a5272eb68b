package capabilities

// ModelPricing is the per-million-token price and context budget for one
// model, grounded on meridian's capabilities.ModelCapabilities
// (internal/capabilities/types.go), trimmed to the fields the LLM
// executor needs to turn a Usage delta into a Cost delta: this runtime
// doesn't render a pricing table to users, it only needs to charge a
// session for what it spent.
type ModelPricing struct {
	DisplayName            string  `yaml:"display_name" json:"display_name"`
	InputPricePerMillion    float64 `yaml:"input_price_per_million" json:"input_price_per_million"`
	OutputPricePerMillion   float64 `yaml:"output_price_per_million" json:"output_price_per_million"`
	ContextWindow           int     `yaml:"context_window" json:"context_window"`
}

// ProviderPricing is one provider's model-keyed pricing table, the
// direct analogue of meridian's ProviderCapabilities.
type ProviderPricing struct {
	Provider string                  `yaml:"provider" json:"provider"`
	Models   map[string]ModelPricing `yaml:"models" json:"models"`
}
