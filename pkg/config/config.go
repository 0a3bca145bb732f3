package config

// Config is the umbrella configuration object produced by Initialize and
// threaded through admission, the scheduler, and the HTTP surface.
type Config struct {
	configDir string

	Defaults    *SystemDefaults
	Admission   *AdmissionConfig
	RateLimits  *RateLimitRegistry
	CostRates   *CostRegistry
	VisionRange int

	// PromptDir, HTTPAddr, and DatabaseDSN are resolved from the process
	// environment (not the YAML file), following the same flag/env-driven
	// wiring as the rest of this process's entrypoint.
	PromptDir   string
	HTTPAddr    string
	DatabaseDSN string
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}
