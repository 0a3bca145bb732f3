package config

import "github.com/mazerunner/harness/pkg/apperrors"

// ResolveModelConfig merges a trigger event's inline config with the
// system-wide defaults into the immutable ModelConfig captured on an
// experiment at admission time.
//
// local-chat requires the event to carry a non-empty config object — there
// is no shared default endpoint to fall back to, so an empty event config
// is a CONFIG_MISSING admission failure. managed-agent may omit event
// config entirely; its LLM knobs fall back to the system defaults.
func ResolveModelConfig(provider Provider, event *EventConfig, sys *SystemDefaults) (*ModelConfig, error) {
	if provider == ProviderLocalChat && event.Empty() {
		return nil, apperrors.Newf(apperrors.KindConfigMissing,
			"local-chat experiments require an inline event config")
	}

	mc := &ModelConfig{
		NumCtx:             sys.NumCtx,
		Temperature:        sys.Temperature,
		RepeatPenalty:      sys.RepeatPenalty,
		NumPredict:         sys.NumPredict,
		MaxActionsPerTurn:  sys.MaxActionsPerTurn,
		RecallInterval:     sys.RecallInterval,
		MaxRecallActions:   sys.MaxRecallActions,
		MaxMoves:           sys.MaxMoves,
		MaxDurationMinutes: sys.MaxDurationMinutes,
	}

	if event != nil {
		if event.NumCtx != nil {
			mc.NumCtx = *event.NumCtx
		}
		if event.Temperature != nil {
			mc.Temperature = *event.Temperature
		}
		if event.RepeatPenalty != nil {
			mc.RepeatPenalty = *event.RepeatPenalty
		}
		if event.NumPredict != nil {
			mc.NumPredict = *event.NumPredict
		}
		if event.MaxActionsPerTurn != nil {
			mc.MaxActionsPerTurn = *event.MaxActionsPerTurn
		}
	}

	return mc, nil
}
