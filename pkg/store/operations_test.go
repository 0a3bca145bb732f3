package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/mazerunner/harness/pkg/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMaze(t *testing.T) *world.Maze {
	t.Helper()
	m, err := world.NewMaze(3, 1, [][]world.TileType{{world.Empty, world.Wall, world.Goal}}, 0, 0)
	require.NoError(t, err)
	return m
}

func mustIntPtr(v int) *int { return &v }

func newRunningExperiment(t *testing.T, ctx context.Context, c *Client, mazeID int64) *Experiment {
	t.Helper()
	exp := &Experiment{
		ID:             NewExperimentID(),
		MazeID:         mazeID,
		ModelName:      "llama3",
		PromptVersion:  "v1",
		LLMProvider:    "local-chat",
		ModelConfigRaw: []byte(`{}`),
		StartX:         0,
		StartY:         0,
		StartedAt:      time.Now(),
	}
	require.NoError(t, c.CreateExperiment(ctx, exp))
	return exp
}

func TestStore_CurrentPosition_NoActionsReturnsStart(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	mazeID, err := c.CreateMaze(ctx, "line", testMaze(t))
	require.NoError(t, err)

	exp := newRunningExperiment(t, ctx, c, mazeID)

	pos, err := c.CurrentPosition(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, Position{X: 0, Y: 0}, pos)
}

func TestStore_AppendAction_SuccessfulMoveAdvancesPosition(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	mazeID, err := c.CreateMaze(ctx, "line2", testMaze(t))
	require.NoError(t, err)
	exp := newRunningExperiment(t, ctx, c, mazeID)

	action, err := c.AppendAction(ctx, exp.ID, func(_ context.Context, _ *sql.Conn, pos Position, step int) (*PendingAction, error) {
		return &PendingAction{
			TurnNumber: 1,
			Kind:       ActionMoveEast,
			FromX:      mustIntPtr(pos.X),
			FromY:      mustIntPtr(pos.Y),
			ToX:        mustIntPtr(pos.X + 1),
			ToY:        mustIntPtr(pos.Y),
			Succeeded:  true,
		}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, action.StepNumber)

	pos, err := c.CurrentPosition(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, Position{X: 1, Y: 0}, pos)
}

func TestStore_AppendAction_FailedMoveLeavesPositionInPlace(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	mazeID, err := c.CreateMaze(ctx, "line3", testMaze(t))
	require.NoError(t, err)
	exp := newRunningExperiment(t, ctx, c, mazeID)

	_, err = c.AppendAction(ctx, exp.ID, func(_ context.Context, _ *sql.Conn, pos Position, step int) (*PendingAction, error) {
		return &PendingAction{
			TurnNumber: 1,
			Kind:       ActionMoveEast,
			FromX:      mustIntPtr(pos.X),
			FromY:      mustIntPtr(pos.Y),
			Succeeded:  false,
		}, nil
	})
	require.NoError(t, err)

	pos, err := c.CurrentPosition(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, Position{X: 0, Y: 0}, pos, "failed move must not teleport the agent")
}

func TestStore_AppendAction_StepNumbersAreDense(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	mazeID, err := c.CreateMaze(ctx, "line4", testMaze(t))
	require.NoError(t, err)
	exp := newRunningExperiment(t, ctx, c, mazeID)

	for i := 0; i < 3; i++ {
		_, err := c.AppendAction(ctx, exp.ID, func(_ context.Context, _ *sql.Conn, pos Position, step int) (*PendingAction, error) {
			return &PendingAction{
				TurnNumber: 1,
				Kind:       ActionRecall,
				FromX:      mustIntPtr(pos.X),
				FromY:      mustIntPtr(pos.Y),
				Succeeded:  true,
			}, nil
		})
		require.NoError(t, err)
	}

	next, err := c.NextStepNumber(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, next)
}

func TestStore_RecordTurnTokens_AccumulatesNumerically(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	mazeID, err := c.CreateMaze(ctx, "line5", testMaze(t))
	require.NoError(t, err)
	exp := newRunningExperiment(t, ctx, c, mazeID)

	require.NoError(t, c.RecordTurnTokens(ctx, exp.ID, 10, 20, 100))
	require.NoError(t, c.RecordTurnTokens(ctx, exp.ID, 5, 7, 50))

	reloaded, err := c.LoadExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, reloaded.TotalInputTokens)
	assert.Equal(t, 27, reloaded.TotalOutputTokens)
	assert.EqualValues(t, 150, reloaded.TotalCostUSDMicros)
}

func TestStore_CountMovements_CountsFailedAndSuccessfulMovesNotRecalls(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	mazeID, err := c.CreateMaze(ctx, "line-movements", testMaze(t))
	require.NoError(t, err)
	exp := newRunningExperiment(t, ctx, c, mazeID)

	kinds := []ActionKind{ActionMoveEast, ActionMoveEast, ActionRecall}
	succeeded := []bool{true, false, true}
	for i, k := range kinds {
		kind, ok := k, succeeded[i]
		_, err := c.AppendAction(ctx, exp.ID, func(_ context.Context, _ *sql.Conn, pos Position, step int) (*PendingAction, error) {
			return &PendingAction{
				TurnNumber: 1,
				Kind:       kind,
				FromX:      mustIntPtr(pos.X),
				FromY:      mustIntPtr(pos.Y),
				Succeeded:  ok,
			}, nil
		})
		require.NoError(t, err)
	}

	n, err := c.CountMovements(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "the recall row must not be counted, and the failed move must still count")
}

func TestStore_Finalize_IsIdempotent(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	mazeID, err := c.CreateMaze(ctx, "line6", testMaze(t))
	require.NoError(t, err)
	exp := newRunningExperiment(t, ctx, c, mazeID)

	found := true
	applied, err := c.Finalize(ctx, exp.ID, StatusSucceeded, &found, nil)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = c.Finalize(ctx, exp.ID, StatusFailed, nil, &ClassifiedErrorRow{Kind: "INTERNAL"})
	require.NoError(t, err)
	assert.False(t, applied, "finalize must be a no-op once completed_at is set")

	reloaded, err := c.LoadExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, reloaded.ExecutionStatus)
	require.NotNil(t, reloaded.GoalFound)
	assert.True(t, *reloaded.GoalFound)
}

func TestStore_ListOrphaned_FindsStaleHeartbeats(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	mazeID, err := c.CreateMaze(ctx, "line7", testMaze(t))
	require.NoError(t, err)
	exp := newRunningExperiment(t, ctx, c, mazeID)

	_, err = c.sqlDB.ExecContext(ctx,
		`UPDATE experiments SET last_interaction_at = now() - interval '1 hour' WHERE id = $1`, exp.ID)
	require.NoError(t, err)

	orphans, err := c.ListOrphaned(ctx, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, exp.ID, orphans[0].ID)
}
