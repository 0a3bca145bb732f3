// Package scheduler is the turn loop scheduler: it drives a single
// experiment, already created at admission, through alternating
// Invoke/Check phases until a termination predicate fires and it finalizes
// the experiment.
//
// Follows the same claim/execute/synthesize-a-terminal-result/finalize
// shape as a typical queue worker's poll-and-process loop, but collapsed
// to own exactly one experiment per call — a scheduler run owns an
// experiment exclusively, rather than polling a shared queue for
// arbitrary work; that polling/claiming responsibility belongs to
// pkg/admission, one layer up.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mazerunner/harness/pkg/apperrors"
	"github.com/mazerunner/harness/pkg/config"
	"github.com/mazerunner/harness/pkg/invoker"
	"github.com/mazerunner/harness/pkg/store"
	"github.com/mazerunner/harness/pkg/tools"
)

// PromptResolver fetches the versioned per-turn prompt template text an
// experiment was admitted with, per the two-level prompt architecture.
// Implemented by pkg/prompt.
type PromptResolver interface {
	Resolve(ctx context.Context, promptVersion string) (string, error)
}

// turnRunner is the subset of *invoker.Invoker the scheduler needs,
// narrowed to an interface so tests can substitute a scripted turn
// sequence without standing up a real model endpoint or MCP/database
// stack — the same pattern pkg/invoker uses for its own toolConnection.
type turnRunner interface {
	RunTurn(ctx context.Context, input invoker.TurnInput) (*invoker.TurnResult, error)
}

// Runner drives one experiment to completion.
type Runner struct {
	store      *store.Client
	invoker    turnRunner
	prompts    PromptResolver
	rateLimits *config.RateLimitRegistry
}

// New builds a Runner. inv is typically a *invoker.Invoker; tests
// substitute a scripted turnRunner instead.
func New(storeClient *store.Client, inv turnRunner, prompts PromptResolver, rateLimits *config.RateLimitRegistry) *Runner {
	return &Runner{store: storeClient, invoker: inv, prompts: prompts, rateLimits: rateLimits}
}

// Run drives experimentID from turn 1 until it finalizes. The experiment
// row must already exist (created by admission's Start transition). Run
// itself never returns until the experiment is finalized or ctx is
// cancelled; on cancellation the experiment is left RUNNING, since there is
// no external cancellation signal — a later diagnostic scan
// (pkg/store.ListOrphaned) is the only recovery path.
func (r *Runner) Run(ctx context.Context, experimentID string) error {
	exp, err := r.store.LoadExperiment(ctx, experimentID)
	if err != nil {
		return fmt.Errorf("loading experiment %s: %w", experimentID, err)
	}

	var modelConfig config.ModelConfig
	if err := json.Unmarshal(exp.ModelConfigRaw, &modelConfig); err != nil {
		return r.finalizeClassified(ctx, experimentID,
			apperrors.New(apperrors.KindInternal, fmt.Errorf("decoding stored model_config: %w", err)))
	}

	wait, err := r.interTurnWait(exp.ModelName, config.Provider(exp.LLMProvider))
	if err != nil {
		return r.finalizeClassified(ctx, experimentID, classify(err))
	}

	promptText, err := r.prompts.Resolve(ctx, exp.PromptVersion)
	if err != nil {
		return r.finalizeClassified(ctx, experimentID, apperrors.New(apperrors.KindConfigMissing, err))
	}

	for turnNumber := 1; ; turnNumber++ {
		if turnNumber > 1 {
			if err := sleepContext(ctx, wait); err != nil {
				return err
			}
		}

		pos, err := r.store.CurrentPosition(ctx, experimentID)
		if err != nil {
			return r.finalizeClassified(ctx, experimentID, apperrors.New(apperrors.KindInternal, err))
		}

		turnResult, err := r.invoker.RunTurn(ctx, invoker.TurnInput{
			ExperimentID:    experimentID,
			TurnNumber:      turnNumber,
			CurrentPosition: tools.Position{X: pos.X, Y: pos.Y},
			GoalDescription: exp.GoalDescription,
			PromptText:      promptText,
			ModelConfig:     &modelConfig,
		})
		if err != nil {
			return r.finalizeClassified(ctx, experimentID, classify(err))
		}

		if err := r.store.RecordTurnTokens(ctx, experimentID,
			turnResult.DeltaInputTokens, turnResult.DeltaOutputTokens, turnResult.DeltaCostMicros); err != nil {
			return r.finalizeClassified(ctx, experimentID, apperrors.New(apperrors.KindInternal, err))
		}
		if err := r.store.UpdateHeartbeat(ctx, experimentID); err != nil {
			return r.finalizeClassified(ctx, experimentID, apperrors.New(apperrors.KindInternal, err))
		}

		done, err := r.check(ctx, experimentID, exp, &modelConfig, turnResult)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// check evaluates the termination predicates in priority order, finalizing
// the experiment when one fires. Returns
// (true, nil) once finalized, (false, nil) to continue to Wait.
func (r *Runner) check(ctx context.Context, experimentID string, exp *store.Experiment, modelConfig *config.ModelConfig, turnResult *invoker.TurnResult) (bool, error) {
	if turnResult.Outcome == invoker.OutcomeGoalReached {
		goalFound := true
		_, err := r.store.Finalize(ctx, experimentID, store.StatusSucceeded, &goalFound, nil)
		return true, err
	}

	movements, err := r.store.CountMovements(ctx, experimentID)
	if err != nil {
		return true, r.finalizeClassified(ctx, experimentID, apperrors.New(apperrors.KindInternal, err))
	}
	if movements >= modelConfig.MaxMoves {
		cause := fmt.Errorf("total movements %d reached max_moves %d", movements, modelConfig.MaxMoves)
		return true, r.finalizeTerminal(ctx, experimentID, store.StatusFailed, apperrors.New(apperrors.KindBudgetMoves, cause))
	}

	if time.Since(exp.StartedAt) >= time.Duration(modelConfig.MaxDurationMinutes)*time.Minute {
		cause := fmt.Errorf("experiment exceeded max_duration_minutes %d", modelConfig.MaxDurationMinutes)
		return true, r.finalizeTerminal(ctx, experimentID, store.StatusTimedOut, apperrors.New(apperrors.KindBudgetTime, cause))
	}

	if turnResult.ActionsExecuted == 0 && turnResult.Outcome != invoker.OutcomeCapped {
		cause := errors.New("turn yielded with zero tool calls")
		return true, r.finalizeTerminal(ctx, experimentID, store.StatusFailed, apperrors.New(apperrors.KindAgentStalled, cause))
	}

	return false, nil
}

// interTurnWait computes the inter-turn wait as 60/rpm seconds, sourced
// per (model, provider) from external config. An unconfigured or
// non-positive rate fails fast with CONFIG_MISSING rather than silently
// running unrate-limited.
func (r *Runner) interTurnWait(model string, provider config.Provider) (time.Duration, error) {
	rpm, ok := r.rateLimits.RPM(model, provider)
	if !ok || rpm <= 0 {
		return 0, apperrors.Newf(apperrors.KindConfigMissing,
			"no positive rate limit configured for model %q provider %q", model, provider)
	}
	seconds := 60 / rpm
	return time.Duration(seconds * float64(time.Second)), nil
}

// finalizeTerminal records a classified failure/timeout as the
// experiment's last_error and returns the classified error so the caller
// (admission) can log and surface it.
func (r *Runner) finalizeTerminal(ctx context.Context, experimentID string, status store.ExecutionStatus, classified *apperrors.ClassifiedError) error {
	row := &store.ClassifiedErrorRow{Kind: string(classified.Kind), Cause: classified.Cause, Timestamp: classified.Timestamp}
	if _, err := r.store.Finalize(ctx, experimentID, status, nil, row); err != nil {
		return fmt.Errorf("finalizing experiment %s as %s: %w", experimentID, status, err)
	}
	return classified
}

// finalizeClassified finalizes as FAILED using classified's kind to decide
// nothing further — every pre-Check failure path (config resolution,
// invoke failure, internal store error) finalizes FAILED.
func (r *Runner) finalizeClassified(ctx context.Context, experimentID string, classified *apperrors.ClassifiedError) error {
	return r.finalizeTerminal(ctx, experimentID, store.StatusFailed, classified)
}

// classify recovers a *apperrors.ClassifiedError from an invoker error,
// defaulting to INTERNAL for anything unclassified.
func classify(err error) *apperrors.ClassifiedError {
	var classified *apperrors.ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}
	return apperrors.New(apperrors.KindInternal, err)
}

// sleepContext sleeps for d, returning ctx.Err() if ctx is cancelled
// first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
