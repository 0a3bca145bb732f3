package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazerunner/harness/pkg/apperrors"
	"github.com/mazerunner/harness/pkg/config"
	"github.com/mazerunner/harness/pkg/store"
	"github.com/mazerunner/harness/pkg/tools"
	"github.com/mazerunner/harness/pkg/world"
	"github.com/mazerunner/harness/test/dbtest"
)

type staticPromptResolver struct{ text string }

func (p staticPromptResolver) Resolve(context.Context, string) (string, error) { return p.text, nil }

// newYieldingChatBackend serves a single-model chat backend that always
// yields with no tool calls — enough to drive the turn loop to an
// AGENT_STALLED finalization on its first turn, which is all this test
// needs to confirm the Factory wired a real Invoker, Runner, and tool
// connection together correctly end to end.
func newYieldingChatBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":           map[string]any{"role": "assistant", "content": "no moves needed"},
			"prompt_eval_count": 12,
			"eval_count":        4,
			"done_reason":       "stop",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newFactoryTestMaze(t *testing.T, ctx context.Context, c *store.Client) int64 {
	t.Helper()
	m, err := world.NewMaze(3, 1, [][]world.TileType{{world.Empty, world.Empty, world.Goal}}, 0, 0)
	require.NoError(t, err)
	mazeID, err := c.CreateMaze(ctx, "factory-"+store.NewExperimentID(), m)
	require.NoError(t, err)
	return mazeID
}

func TestFactory_Run_ResolvesProviderEndpointAndRunsExperiment(t *testing.T) {
	backend := newYieldingChatBackend(t)
	t.Setenv("MAZERUNNER_LOCAL_CHAT_URL", backend.URL)

	c := dbtest.NewTestClient(t)
	ctx := context.Background()
	mazeID := newFactoryTestMaze(t, ctx, c)

	modelConfig := config.ModelConfig{
		NumCtx: 2048, Temperature: 0.1, RepeatPenalty: 1.0, NumPredict: 64,
		RecallInterval: 5, MaxRecallActions: 10, MaxMoves: 50,
		MaxDurationMinutes: 10, MaxActionsPerTurn: 4,
	}
	raw, err := json.Marshal(modelConfig)
	require.NoError(t, err)

	exp := &store.Experiment{
		ID:             store.NewExperimentID(),
		MazeID:         mazeID,
		ModelName:      "factory-test-model",
		PromptVersion:  "v1",
		LLMProvider:    string(config.ProviderLocalChat),
		ModelConfigRaw: raw,
		StartX:         0,
		StartY:         0,
		StartedAt:      time.Now(),
	}
	require.NoError(t, c.CreateExperiment(ctx, exp))

	dispatcher := tools.NewDispatcher(c, 3)
	rateLimits := config.NewRateLimitRegistry([]config.RateLimitEntry{
		{Model: "factory-test-model", Provider: string(config.ProviderLocalChat), RPM: 600},
	})
	factory := NewFactory(c, dispatcher, staticPromptResolver{text: "find the goal"}, config.NewCostRegistry(nil), rateLimits)

	err = factory.Run(ctx, exp.ID)
	require.Error(t, err, "a single zero-action turn must finalize AGENT_STALLED")

	var classified *apperrors.ClassifiedError
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, apperrors.KindAgentStalled, classified.Kind)

	reloaded, err := c.LoadExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, reloaded.ExecutionStatus)
}

func TestFactory_Run_UnknownProviderFailsConfigMissing(t *testing.T) {
	c := dbtest.NewTestClient(t)
	ctx := context.Background()
	mazeID := newFactoryTestMaze(t, ctx, c)

	modelConfig := config.ModelConfig{MaxMoves: 50, MaxDurationMinutes: 10, MaxActionsPerTurn: 4}
	raw, err := json.Marshal(modelConfig)
	require.NoError(t, err)

	exp := &store.Experiment{
		ID:             store.NewExperimentID(),
		MazeID:         mazeID,
		ModelName:      "factory-test-model",
		PromptVersion:  "v1",
		LLMProvider:    "carrier-pigeon",
		ModelConfigRaw: raw,
		StartX:         0,
		StartY:         0,
		StartedAt:      time.Now(),
	}
	require.NoError(t, c.CreateExperiment(ctx, exp))

	dispatcher := tools.NewDispatcher(c, 3)
	factory := NewFactory(c, dispatcher, staticPromptResolver{text: "go"}, config.NewCostRegistry(nil), config.NewRateLimitRegistry(nil))

	err = factory.Run(ctx, exp.ID)
	var classified *apperrors.ClassifiedError
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, apperrors.KindConfigMissing, classified.Kind)
}
