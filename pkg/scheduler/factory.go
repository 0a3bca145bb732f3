package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/mazerunner/harness/pkg/apperrors"
	"github.com/mazerunner/harness/pkg/config"
	"github.com/mazerunner/harness/pkg/invoker"
	"github.com/mazerunner/harness/pkg/llmclient"
	"github.com/mazerunner/harness/pkg/store"
	"github.com/mazerunner/harness/pkg/tools"
)

// Factory builds a fresh tool connection, Invoker, and Runner for each
// experiment it is asked to run, resolved against that experiment's own
// model_name/llm_provider. A trigger envelope lets every admitted
// experiment target a different model and a different provider, but a
// Runner's Invoker is bound to exactly one llmclient.Client and one model
// name at construction — a single shared Runner can't serve a process
// admitting experiments against more than one model at a time. Factory
// exists to remove that constraint at the wiring layer without touching
// Runner or Invoker themselves.
//
// Factory implements admission.SchedulerRunner, so it drops into
// admission.NewPool in place of a single pre-built *Runner.
//
// A fresh controller per unit of work built from otherwise-shared
// dependencies (database handle, worker pool), rather than one controller
// instance bound to the whole process, is a familiar split: the tool
// dispatcher, prompt resolver, cost registry, and rate limit registry are
// shared across every experiment the process runs, since none of them
// carry per-experiment or per-model state, while the LLM client, tool
// connection, Invoker, and Runner are rebuilt fresh per experiment.
type Factory struct {
	store      *store.Client
	dispatcher *tools.Dispatcher
	prompts    PromptResolver
	costRates  *config.CostRegistry
	rateLimits *config.RateLimitRegistry
}

// NewFactory builds a Factory. dispatcher must be safe to share across
// concurrently-running experiments — it is, since every Dispatcher method
// takes the experiment ID as an explicit argument rather than holding it
// as state.
func NewFactory(
	storeClient *store.Client,
	dispatcher *tools.Dispatcher,
	prompts PromptResolver,
	costRates *config.CostRegistry,
	rateLimits *config.RateLimitRegistry,
) *Factory {
	return &Factory{
		store:      storeClient,
		dispatcher: dispatcher,
		prompts:    prompts,
		costRates:  costRates,
		rateLimits: rateLimits,
	}
}

// Run implements admission.SchedulerRunner. It loads experimentID to learn
// which model and provider it was admitted against, stands up a dedicated
// MCP server/connection and Invoker for that (model, provider) pair, runs
// the turn loop to completion, and tears the connection down.
func (f *Factory) Run(ctx context.Context, experimentID string) error {
	exp, err := f.store.LoadExperiment(ctx, experimentID)
	if err != nil {
		return fmt.Errorf("factory: loading experiment %s: %w", experimentID, err)
	}

	provider := config.Provider(exp.LLMProvider)
	endpoint, err := llmclient.EndpointFromEnv(provider)
	if err != nil {
		return apperrors.New(apperrors.KindConfigMissing, fmt.Errorf("resolving endpoint for provider %q: %w", provider, err))
	}
	llm := llmclient.NewHTTPClient(endpoint, exp.ModelName)

	counter := &turnCounter{}
	server := tools.NewServer(f.dispatcher, counter.current)
	conn, err := tools.Connect(ctx, server)
	if err != nil {
		return apperrors.New(apperrors.KindTransportError, fmt.Errorf("connecting tool server for experiment %s: %w", experimentID, err))
	}
	defer conn.Close()

	inv := invoker.New(llm, conn, f.costRates, exp.ModelName)
	runner := New(f.store, &turnStamper{inv: inv, counter: counter}, f.prompts, f.rateLimits)

	return runner.Run(ctx, experimentID)
}

// turnCounter holds the turn number the in-flight RunTurn call is on. The
// tool server's turnNumber callback (pkg/tools.NewServer) has no other way
// to learn which turn a dispatched action belongs to, since stamping
// happens at the Invoker rather than the transport.
type turnCounter struct {
	n atomic.Int64
}

func (c *turnCounter) current() int { return int(c.n.Load()) }

// turnStamper adapts *invoker.Invoker to turnRunner, updating the shared
// turn counter before every call so a connection's tool server reports the
// right turn number for whichever RunTurn call is currently in flight on
// it. Safe because each Factory-built connection serves exactly one
// experiment's sequential turn loop — never more than one RunTurn call in
// flight on it at a time.
type turnStamper struct {
	inv     *invoker.Invoker
	counter *turnCounter
}

func (s *turnStamper) RunTurn(ctx context.Context, input invoker.TurnInput) (*invoker.TurnResult, error) {
	s.counter.n.Store(int64(input.TurnNumber))
	return s.inv.RunTurn(ctx, input)
}
