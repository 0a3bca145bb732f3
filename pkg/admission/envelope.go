// Package admission converts trigger events into scheduler runs. It owns
// the FIFO ingress queue's worker pool, envelope validation, and atomic
// model-config resolution; the turn loop scheduler it hands each admitted
// experiment to has no notion of where the experiment came from.
package admission

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/mazerunner/harness/pkg/apperrors"
	"github.com/mazerunner/harness/pkg/config"
)

// Envelope is the trigger event wire format.
type Envelope struct {
	LLMProvider     config.Provider     `json:"llm_provider"`
	ModelName       string              `json:"model_name"`
	MazeID          int64               `json:"maze_id"`
	PromptVersion   string              `json:"prompt_version"`
	GoalDescription string              `json:"goal_description,omitempty"`
	Config          *config.EventConfig `json:"config,omitempty"`
}

// ParseEnvelope decodes and validates an Envelope from raw queue payload
// bytes. A malformed or incomplete envelope fails admission with
// CONFIG_MISSING — the envelope itself is the only configuration input at
// this layer, so a missing required field is indistinguishable from
// missing configuration.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperrors.New(apperrors.KindConfigMissing, fmt.Errorf("decoding trigger envelope: %w", err))
	}
	if err := env.validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

func (e *Envelope) validate() error {
	switch e.LLMProvider {
	case config.ProviderLocalChat, config.ProviderManagedAgent:
	default:
		return apperrors.Newf(apperrors.KindConfigMissing, "unknown llm_provider %q", e.LLMProvider)
	}
	if e.ModelName == "" {
		return apperrors.Newf(apperrors.KindConfigMissing, "model_name is required")
	}
	if e.MazeID == 0 {
		return apperrors.Newf(apperrors.KindConfigMissing, "maze_id is required")
	}
	if e.PromptVersion == "" {
		return apperrors.Newf(apperrors.KindConfigMissing, "prompt_version is required")
	}
	return nil
}

// DedupToken derives a stable de-duplication token from the envelope's
// raw bytes. Hashing the raw payload — rather than a subset of
// fields — means two byte-identical redeliveries always collide and any
// genuine edit (even reordering fields) is treated as a new event, which
// is the conservative direction to err on for an at-least-once queue.
func DedupToken(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
