package invoker_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazerunner/harness/pkg/config"
	"github.com/mazerunner/harness/pkg/invoker"
	"github.com/mazerunner/harness/pkg/llmclient"
	"github.com/mazerunner/harness/pkg/store"
	"github.com/mazerunner/harness/pkg/tools"
	"github.com/mazerunner/harness/pkg/world"
	"github.com/mazerunner/harness/test/dbtest"
)

// scriptedLLM plays back one response per call, driving the real
// dispatcher/MCP wiring through RunTurn end to end.
type scriptedLLM struct {
	responses []*llmclient.Response
	calls     int
}

func (s *scriptedLLM) Generate(context.Context, *llmclient.GenerateInput) (*llmclient.Response, error) {
	r := s.responses[s.calls]
	s.calls++
	return r, nil
}

// TestInvoker_RunTurn_RealDispatcherReachesGoal drives a turn through the
// real store/dispatcher/MCP stack (an immediate-goal scenario) with a
// scripted model that issues move_east twice.
func TestInvoker_RunTurn_RealDispatcherReachesGoal(t *testing.T) {
	c := dbtest.NewTestClient(t)
	ctx := context.Background()

	m, err := world.NewMaze(3, 1, [][]world.TileType{{world.Empty, world.Empty, world.Goal}}, 0, 0)
	require.NoError(t, err)
	mazeID, err := c.CreateMaze(ctx, "invoker-goal", m)
	require.NoError(t, err)

	exp := &store.Experiment{
		ID:             store.NewExperimentID(),
		MazeID:         mazeID,
		ModelName:      "test-model",
		PromptVersion:  "v1",
		LLMProvider:    "local-chat",
		ModelConfigRaw: []byte(`{"recall_interval":5,"max_recall_actions":50,"max_actions_per_turn":8}`),
		StartX:         0,
		StartY:         0,
	}
	require.NoError(t, c.CreateExperiment(ctx, exp))

	dispatcher := tools.NewDispatcher(c, 3)
	server := tools.NewServer(dispatcher, func() int { return 1 })
	conn, err := tools.Connect(ctx, server)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	llm := &scriptedLLM{responses: []*llmclient.Response{
		{ToolCalls: []llmclient.ToolCall{{ID: "call_0", Name: "move_east", Arguments: `{"experimentId":"` + exp.ID + `"}`}}},
		{ToolCalls: []llmclient.ToolCall{{ID: "call_0", Name: "move_east", Arguments: `{"experimentId":"` + exp.ID + `"}`}}},
	}}

	inv := invoker.New(llm, conn, nil, "test-model")
	result, err := inv.RunTurn(ctx, invoker.TurnInput{
		ExperimentID:    exp.ID,
		TurnNumber:      1,
		CurrentPosition: tools.Position{X: 0, Y: 0},
		GoalDescription: "reach the far wall",
		PromptText:      "Move toward the goal.",
		ModelConfig:     &config.ModelConfig{NumCtx: 2048, Temperature: 0.2, RepeatPenalty: 1.1, NumPredict: 256, MaxActionsPerTurn: 8},
	})
	require.NoError(t, err)
	assert.Equal(t, invoker.OutcomeGoalReached, result.Outcome)
	assert.Equal(t, 2, result.ActionsExecuted)

	pos, err := c.CurrentPosition(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, store.Position{X: 2, Y: 0}, pos)
}
