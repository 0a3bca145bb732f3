package config

// CostRate is the per-1000-token USD price for one model, keyed by model
// name alone (unlike RateLimitRegistry, which is keyed by model and
// provider). Per-turn token accounting needs a price to turn token deltas
// into a cost delta; that price is external configuration, shaped like the
// rate-limit table as a flat YAML entry list.
type CostRate struct {
	Model             string  `yaml:"model"`
	InputPerThousand  float64 `yaml:"input_usd_per_1k"`
	OutputPerThousand float64 `yaml:"output_usd_per_1k"`
}

// CostRegistry is a small YAML-backed registry mapping a model name to its
// token pricing.
type CostRegistry struct {
	rates map[string]CostRate
}

// NewCostRegistry builds a registry from a flat YAML-decoded entry list.
func NewCostRegistry(entries []CostRate) *CostRegistry {
	rates := make(map[string]CostRate, len(entries))
	for _, e := range entries {
		rates[e.Model] = e
	}
	return &CostRegistry{rates: rates}
}

// CostMicros returns the USD cost, in millionths of a dollar, of
// inputTokens and outputTokens for model. An unconfigured model prices at
// zero rather than failing — absent pricing is a sweep-config gap, not a
// reason to abort an otherwise-successful turn.
func (r *CostRegistry) CostMicros(model string, inputTokens, outputTokens int) int64 {
	rate, ok := r.rates[model]
	if !ok {
		return 0
	}
	inputUSD := float64(inputTokens) / 1000 * rate.InputPerThousand
	outputUSD := float64(outputTokens) / 1000 * rate.OutputPerThousand
	return int64((inputUSD + outputUSD) * 1_000_000)
}
