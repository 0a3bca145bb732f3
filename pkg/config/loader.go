package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// MazerunnerYAMLConfig represents the complete mazerunner.yaml file
// structure.
type MazerunnerYAMLConfig struct {
	Defaults    *SystemDefaults  `yaml:"defaults"`
	Admission   *AdmissionConfig `yaml:"admission"`
	RateLimits  []RateLimitEntry `yaml:"rate_limits"`
	CostRates   []CostRate       `yaml:"cost_rates"`
	VisionRange int              `yaml:"vision_range"`
}

// Initialize loads, merges, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Load mazerunner.yaml from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge user-provided values over built-in defaults
//  5. Resolve DatabaseDSN/HTTPAddr/PromptDir from the environment
//  6. Validate the merged configuration
//  7. Return Config ready for use
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	loader := &configLoader{configDir: configDir}
	yamlCfg, err := loader.loadMazerunnerYAML()
	if err != nil {
		return nil, NewLoadError("mazerunner.yaml", err)
	}

	defaults := DefaultSystemDefaults()
	if yamlCfg.Defaults != nil {
		if err := mergo.Merge(defaults, yamlCfg.Defaults, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging system defaults: %w", err)
		}
	}

	admission := DefaultAdmissionConfig()
	if yamlCfg.Admission != nil {
		if err := mergo.Merge(admission, yamlCfg.Admission, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging admission config: %w", err)
		}
	}

	visionRange := yamlCfg.VisionRange
	if visionRange == 0 {
		visionRange = 3
	}

	cfg := &Config{
		configDir:   configDir,
		Defaults:    defaults,
		Admission:   admission,
		RateLimits:  NewRateLimitRegistry(yamlCfg.RateLimits),
		CostRates:   NewCostRegistry(yamlCfg.CostRates),
		VisionRange: visionRange,
		DatabaseDSN: os.Getenv("MAZERUNNER_DATABASE_DSN"),
		HTTPAddr:    envOr("MAZERUNNER_HTTP_ADDR", ":8080"),
		PromptDir:   envOr("MAZERUNNER_PROMPT_DIR", filepath.Join(configDir, "prompts")),
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("configuration initialized",
		"max_concurrent_experiments", cfg.Admission.MaxConcurrentExperiments,
		"vision_range", cfg.VisionRange)

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func validate(cfg *Config) error {
	if cfg.DatabaseDSN == "" {
		return NewValidationError("config", "database", "dsn",
			fmt.Errorf("%w: MAZERUNNER_DATABASE_DSN must be set", ErrMissingRequiredField))
	}
	if cfg.VisionRange <= 0 {
		return NewValidationError("config", "vision_range", "", ErrInvalidValue)
	}
	if cfg.Admission.MaxConcurrentExperiments <= 0 {
		return NewValidationError("config", "admission.max_concurrent_experiments", "", ErrInvalidValue)
	}
	if cfg.Defaults.MaxMoves <= 0 || cfg.Defaults.MaxDurationMinutes <= 0 {
		return NewValidationError("config", "defaults", "", ErrInvalidValue)
	}
	return nil
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}

func (l *configLoader) loadMazerunnerYAML() (*MazerunnerYAMLConfig, error) {
	var cfg MazerunnerYAMLConfig
	if err := l.loadYAML("mazerunner.yaml", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
