package admission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/mazerunner/harness/pkg/apperrors"
	"github.com/mazerunner/harness/pkg/config"
	"github.com/mazerunner/harness/pkg/store"
)

// SchedulerRunner is the subset of *scheduler.Runner the pool needs —
// narrowed to an interface, the same pattern pkg/invoker and
// pkg/scheduler themselves use, so pool tests can script scheduler runs
// without a real model endpoint or MCP stack.
type SchedulerRunner interface {
	Run(ctx context.Context, experimentID string) error
}

// Pool is the admission worker pool: WorkerCount goroutines independently
// poll the trigger-event queue, each blocking on one full experiment
// lifecycle at a time. Follows the familiar worker-pool split (one poll
// loop per worker, a shared capacity gate, graceful shutdown that lets
// in-flight work finish) collapsed into a single type since admission has
// no per-session side effects to coordinate separately.
type Pool struct {
	store       *store.Client
	scheduler   SchedulerRunner
	sysDefaults *config.SystemDefaults
	cfg         *config.AdmissionConfig

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu                sync.RWMutex
	sessionsProcessed int
	started           bool
}

// NewPool builds a Pool. sched is invoked once per admitted experiment.
func NewPool(storeClient *store.Client, sched SchedulerRunner, sysDefaults *config.SystemDefaults, cfg *config.AdmissionConfig) *Pool {
	return &Pool{
		store:       storeClient,
		scheduler:   sched,
		sysDefaults: sysDefaults,
		cfg:         cfg,
		stopCh:      make(chan struct{}),
	}
}

// Start spawns cfg.WorkerCount poll loops. Safe to call once; subsequent
// calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	for i := 0; i < p.cfg.WorkerCount; i++ {
		id := fmt.Sprintf("admission-worker-%d", i)
		p.wg.Add(1)
		go p.run(ctx, id)
	}
}

// Stop signals every worker to stop after its current experiment (if any)
// finishes, and waits.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, workerID string) {
	defer p.wg.Done()
	log := slog.With("worker_id", workerID)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
			if err := p.pollAndAdmit(ctx, workerID); err != nil {
				if errors.Is(err, store.ErrNoTriggerEventsAvailable) || errors.Is(err, errAtCapacity) {
					p.sleep(p.pollInterval())
					continue
				}
				log.Error("admission poll failed", "error", err)
				p.sleep(time.Second)
			}
		}
	}
}

var errAtCapacity = errors.New("admission: at max_concurrent_experiments capacity")

func (p *Pool) sleep(d time.Duration) {
	select {
	case <-p.stopCh:
	case <-time.After(d):
	}
}

// pollInterval adds jitter to PollInterval, to avoid every worker waking
// in lockstep.
func (p *Pool) pollInterval() time.Duration {
	if p.cfg.PollIntervalJitter <= 0 {
		return p.cfg.PollInterval
	}
	jitter := time.Duration(rand.Int64N(int64(p.cfg.PollIntervalJitter)))
	return p.cfg.PollInterval + jitter
}

// pollAndAdmit claims one trigger event and, if admitted successfully,
// blocks on the full scheduler run for the resulting experiment.
func (p *Pool) pollAndAdmit(ctx context.Context, workerID string) error {
	running, err := p.store.CountRunningExperiments(ctx)
	if err != nil {
		return fmt.Errorf("checking running experiment count: %w", err)
	}
	if running >= p.cfg.MaxConcurrentExperiments {
		return errAtCapacity
	}

	ev, err := p.store.ClaimNextTriggerEvent(ctx)
	if err != nil {
		return err
	}

	log := slog.With("worker_id", workerID, "trigger_event_id", ev.ID)

	env, err := ParseEnvelope(ev.PayloadJSON)
	if err != nil {
		return p.failEvent(ctx, ev.ID, err, log)
	}

	modelConfig, err := config.ResolveModelConfig(env.LLMProvider, env.Config, p.sysDefaults)
	if err != nil {
		return p.failEvent(ctx, ev.ID, err, log)
	}
	configRaw, err := json.Marshal(modelConfig)
	if err != nil {
		return p.failEvent(ctx, ev.ID, apperrors.New(apperrors.KindInternal, err), log)
	}

	maze, err := p.store.LoadMaze(ctx, env.MazeID)
	if err != nil {
		return p.failEvent(ctx, ev.ID, apperrors.New(apperrors.KindConfigMissing, err), log)
	}

	exp := &store.Experiment{
		ID:              store.NewExperimentID(),
		MazeID:          env.MazeID,
		ModelName:       env.ModelName,
		PromptVersion:   env.PromptVersion,
		LLMProvider:     string(env.LLMProvider),
		GoalDescription: env.GoalDescription,
		ModelConfigRaw:  configRaw,
		StartX:          maze.StartX,
		StartY:          maze.StartY,
	}
	if err := p.store.CreateExperiment(ctx, exp); err != nil {
		return p.failEvent(ctx, ev.ID, apperrors.New(apperrors.KindInternal, err), log)
	}

	// The envelope is now durably represented by exp: re-delivery of this
	// same trigger event would only ever produce a second, independent
	// experiment — admission never mutates an existing one — so the
	// trigger event's own job is done here regardless of how the
	// experiment itself ultimately finalizes.
	if err := p.store.CompleteTriggerEvent(ctx, ev.ID, exp.ID); err != nil {
		log.Error("failed to mark trigger event complete", "error", err)
	}

	log.Info("experiment admitted", "experiment_id", exp.ID)
	p.markProcessed()

	if err := p.scheduler.Run(ctx, exp.ID); err != nil {
		log.Warn("experiment finished with a classified error", "experiment_id", exp.ID, "error", err)
	}
	return nil
}

func (p *Pool) failEvent(ctx context.Context, eventID int64, cause error, log *slog.Logger) error {
	classified := classify(cause)
	row := &store.ClassifiedErrorRow{Kind: string(classified.Kind), Cause: classified.Cause, Timestamp: classified.Timestamp}
	if err := p.store.FailTriggerEvent(ctx, eventID, row); err != nil {
		log.Error("failed to record trigger event failure", "error", err)
	}
	log.Warn("trigger event failed admission", "kind", classified.Kind, "cause", classified.Cause)
	return nil
}

func classify(err error) *apperrors.ClassifiedError {
	var classified *apperrors.ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}
	return apperrors.New(apperrors.KindInternal, err)
}

func (p *Pool) markProcessed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionsProcessed++
}

// SessionsProcessed returns how many experiments this pool has admitted
// since Start, for health reporting.
func (p *Pool) SessionsProcessed() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sessionsProcessed
}
