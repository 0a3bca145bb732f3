// Package config resolves the immutable per-experiment model configuration
// from a trigger event's inline config plus system-wide defaults, and loads
// the system-wide YAML configuration file. Merge is
// system-default-then-event-override.
package config

// Provider identifies which chat backend an experiment targets.
type Provider string

const (
	ProviderManagedAgent Provider = "managed-agent"
	ProviderLocalChat    Provider = "local-chat"
)

// EventConfig is the inline, per-event LLM knob subset a trigger event may
// carry (trigger envelope's "config" object). Pointer fields distinguish
// "not supplied" from "supplied as zero value".
type EventConfig struct {
	NumCtx            *int     `yaml:"num_ctx,omitempty" json:"num_ctx,omitempty"`
	Temperature       *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	RepeatPenalty     *float64 `yaml:"repeat_penalty,omitempty" json:"repeat_penalty,omitempty"`
	NumPredict        *int     `yaml:"num_predict,omitempty" json:"num_predict,omitempty"`
	MaxActionsPerTurn *int     `yaml:"max_actions_per_turn,omitempty" json:"max_actions_per_turn,omitempty"`
}

// Empty reports whether no field was supplied.
func (c *EventConfig) Empty() bool {
	if c == nil {
		return true
	}
	return c.NumCtx == nil && c.Temperature == nil && c.RepeatPenalty == nil &&
		c.NumPredict == nil && c.MaxActionsPerTurn == nil
}

// ModelConfig is the fully-resolved, immutable configuration blob captured
// at admission time and copied verbatim onto an experiment's stored
// configuration. A resolver that produces a ModelConfig with a zero
// RecallInterval, MaxMoves, MaxDurationMinutes, or MaxActionsPerTurn has a
// bug, not a valid experiment.
type ModelConfig struct {
	NumCtx             int     `json:"num_ctx"`
	Temperature        float64 `json:"temperature"`
	RepeatPenalty      float64 `json:"repeat_penalty"`
	NumPredict         int     `json:"num_predict"`
	RecallInterval     int     `json:"recall_interval"`
	MaxRecallActions   int     `json:"max_recall_actions"`
	MaxMoves           int     `json:"max_moves"`
	MaxDurationMinutes int     `json:"max_duration_minutes"`
	MaxActionsPerTurn  int     `json:"max_actions_per_turn"`
}

// SystemDefaults holds the system-wide parameters that are stable across a
// sweep and therefore sourced from the shared config file rather than the
// triggering event (the "atomic config-in-event" rule), plus the
// managed-agent provider's LLM-knob fallbacks.
type SystemDefaults struct {
	RecallInterval     int `yaml:"recall_interval"`
	MaxRecallActions   int `yaml:"max_recall_actions"`
	MaxMoves           int `yaml:"max_moves"`
	MaxDurationMinutes int `yaml:"max_duration_minutes"`

	NumCtx            int     `yaml:"num_ctx"`
	Temperature       float64 `yaml:"temperature"`
	RepeatPenalty     float64 `yaml:"repeat_penalty"`
	NumPredict        int     `yaml:"num_predict"`
	MaxActionsPerTurn int     `yaml:"max_actions_per_turn"`
}

// DefaultSystemDefaults returns the built-in system defaults used when a
// value is absent from the YAML file.
func DefaultSystemDefaults() *SystemDefaults {
	return &SystemDefaults{
		RecallInterval:     5,
		MaxRecallActions:   50,
		MaxMoves:           200,
		MaxDurationMinutes: 30,
		NumCtx:             4096,
		Temperature:        0.2,
		RepeatPenalty:      1.1,
		NumPredict:         512,
		MaxActionsPerTurn:  8,
	}
}
