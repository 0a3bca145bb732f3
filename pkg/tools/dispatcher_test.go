package tools_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazerunner/harness/pkg/config"
	"github.com/mazerunner/harness/pkg/store"
	"github.com/mazerunner/harness/pkg/tools"
	"github.com/mazerunner/harness/pkg/world"
	"github.com/mazerunner/harness/test/dbtest"
)

func newExperiment(t *testing.T, ctx context.Context, c *store.Client, m *world.Maze, mazeName string, recallInterval, maxRecallActions int) *store.Experiment {
	t.Helper()
	mazeID, err := c.CreateMaze(ctx, mazeName, m)
	require.NoError(t, err)

	cfg, err := json.Marshal(config.ModelConfig{
		RecallInterval:   recallInterval,
		MaxRecallActions: maxRecallActions,
	})
	require.NoError(t, err)

	exp := &store.Experiment{
		ID:             store.NewExperimentID(),
		MazeID:         mazeID,
		ModelName:      "test-model",
		PromptVersion:  "v1",
		LLMProvider:    "local-chat",
		ModelConfigRaw: cfg,
		StartX:         m.StartX,
		StartY:         m.StartY,
		StartedAt:      time.Now(),
	}
	require.NoError(t, c.CreateExperiment(ctx, exp))
	return exp
}

// A 3x3 maze with goal at (2,1), start (0,1). Two consecutive move_east
// calls must both succeed, landing on the goal.
func TestDispatcher_Move_ReachesGoal(t *testing.T) {
	c := dbtest.NewTestClient(t)
	ctx := context.Background()

	m, err := world.NewMaze(3, 3, [][]world.TileType{
		{world.Empty, world.Empty, world.Empty},
		{world.Empty, world.Empty, world.Goal},
		{world.Empty, world.Empty, world.Empty},
	}, 0, 1)
	require.NoError(t, err)

	exp := newExperiment(t, ctx, c, m, "scenario-a", 10, 50)
	d := tools.NewDispatcher(c, 3)

	r1, err := d.Move(ctx, exp.ID, tools.East, 1, "")
	require.NoError(t, err)
	assert.True(t, r1.Success)
	assert.Equal(t, tools.Position{X: 1, Y: 1}, r1.Position)

	r2, err := d.Move(ctx, exp.ID, tools.East, 1, "")
	require.NoError(t, err)
	assert.True(t, r2.Success)
	assert.True(t, r2.Goal, "landing on the goal tile must set MoveResult.Goal")
	assert.Equal(t, tools.Position{X: 2, Y: 1}, r2.Position)

	pos, err := c.CurrentPosition(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, store.Position{X: 2, Y: 1}, pos)
}

// A 3x1 maze [EMPTY, WALL, GOAL], start (0,0). move_east must fail and
// leave the agent at (0,0).
func TestDispatcher_Move_BlockedByWall(t *testing.T) {
	c := dbtest.NewTestClient(t)
	ctx := context.Background()

	m, err := world.NewMaze(3, 1, [][]world.TileType{{world.Empty, world.Wall, world.Goal}}, 0, 0)
	require.NoError(t, err)

	exp := newExperiment(t, ctx, c, m, "scenario-b", 10, 50)
	d := tools.NewDispatcher(c, 3)

	r, err := d.Move(ctx, exp.ID, tools.East, 1, "")
	require.NoError(t, err)
	assert.False(t, r.Success)
	assert.Equal(t, tools.Position{X: 0, Y: 0}, r.Position)

	pos, err := c.CurrentPosition(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, store.Position{X: 0, Y: 0}, pos)
}

// recall_interval=3. move_east, recall, move_east. The recall must fail
// (only one move counts), reporting it needs two more moves.
func TestDispatcher_Recall_CooldownRejectsEarly(t *testing.T) {
	c := dbtest.NewTestClient(t)
	ctx := context.Background()

	m, err := world.NewMaze(5, 1, [][]world.TileType{
		{world.Empty, world.Empty, world.Empty, world.Empty, world.Goal},
	}, 0, 0)
	require.NoError(t, err)

	exp := newExperiment(t, ctx, c, m, "scenario-c", 3, 50)
	d := tools.NewDispatcher(c, 3)

	_, err = d.Move(ctx, exp.ID, tools.East, 1, "")
	require.NoError(t, err)

	rr, err := d.Recall(ctx, exp.ID, 1, "")
	require.NoError(t, err)
	assert.False(t, rr.Success)
	assert.Equal(t, 1, rr.MovesSinceLastRecall)
	assert.Equal(t, 3, rr.MovesRequired)
	assert.Contains(t, rr.Message, "need 2 more moves")

	_, err = d.Move(ctx, exp.ID, tools.East, 1, "")
	require.NoError(t, err)

	next, err := c.NextStepNumber(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, next, "failed recall still appends an auditable row")
}

// A failed move still counts toward the recall cooldown: a failed
// movement counts as a movement for cooldown purposes.
func TestDispatcher_Recall_FailedMoveCountsTowardCooldown(t *testing.T) {
	c := dbtest.NewTestClient(t)
	ctx := context.Background()

	m, err := world.NewMaze(3, 1, [][]world.TileType{{world.Empty, world.Wall, world.Goal}}, 0, 0)
	require.NoError(t, err)

	exp := newExperiment(t, ctx, c, m, "cooldown-failed-move", 1, 50)
	d := tools.NewDispatcher(c, 3)

	blocked, err := d.Move(ctx, exp.ID, tools.East, 1, "")
	require.NoError(t, err)
	require.False(t, blocked.Success)

	rr, err := d.Recall(ctx, exp.ID, 1, "")
	require.NoError(t, err)
	assert.True(t, rr.Success, "a failed move already satisfies recall_interval=1")
}

func TestDispatcher_Recall_ReturnsSeenTilesDedupedByPosition(t *testing.T) {
	c := dbtest.NewTestClient(t)
	ctx := context.Background()

	m, err := world.NewMaze(3, 1, [][]world.TileType{{world.Empty, world.Empty, world.Goal}}, 0, 0)
	require.NoError(t, err)

	exp := newExperiment(t, ctx, c, m, "recall-dedup", 1, 50)
	d := tools.NewDispatcher(c, 1)

	_, err = d.Move(ctx, exp.ID, tools.East, 1, "")
	require.NoError(t, err)

	rr, err := d.Recall(ctx, exp.ID, 1, "")
	require.NoError(t, err)
	require.True(t, rr.Success)

	seen := make(map[tools.Position]bool)
	for _, obs := range rr.Visible {
		key := tools.Position{X: obs.X, Y: obs.Y}
		assert.False(t, seen[key], "position %v must appear at most once", key)
		seen[key] = true
	}
	assert.NotEmpty(t, rr.Visible)
}
