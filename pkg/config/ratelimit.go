package config

import "fmt"

// RateLimitKey identifies a rate limit bucket by model and provider; the
// wait computation between turns sources its requests-per-minute figure
// from this key against external configuration.
type RateLimitKey struct {
	Model    string
	Provider Provider
}

func (k RateLimitKey) String() string {
	return fmt.Sprintf("%s/%s", k.Provider, k.Model)
}

// RateLimitRegistry is a small YAML-backed registry mapping (model,
// provider) to its requests-per-minute ceiling.
type RateLimitRegistry struct {
	limits map[RateLimitKey]float64
}

// NewRateLimitRegistry builds a registry from a flat YAML-decoded entry
// list.
func NewRateLimitRegistry(entries []RateLimitEntry) *RateLimitRegistry {
	limits := make(map[RateLimitKey]float64, len(entries))
	for _, e := range entries {
		limits[RateLimitKey{Model: e.Model, Provider: Provider(e.Provider)}] = e.RPM
	}
	return &RateLimitRegistry{limits: limits}
}

// RateLimitEntry is one row of the rate_limits YAML list.
type RateLimitEntry struct {
	Model    string  `yaml:"model"`
	Provider string  `yaml:"provider"`
	RPM      float64 `yaml:"rpm"`
}

// RPM looks up the requests-per-minute ceiling for a (model, provider)
// pair. Returns false if no entry is configured.
func (r *RateLimitRegistry) RPM(model string, provider Provider) (float64, bool) {
	v, ok := r.limits[RateLimitKey{Model: model, Provider: provider}]
	return v, ok
}
