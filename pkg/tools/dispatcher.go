package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mazerunner/harness/pkg/apperrors"
	"github.com/mazerunner/harness/pkg/config"
	"github.com/mazerunner/harness/pkg/store"
	"github.com/mazerunner/harness/pkg/world"
)

// Dispatcher executes the five maze tools against authoritative world
// state. One Dispatcher serves every experiment; callers identify which
// one a call belongs to via experimentId, exactly as the tool schema
// requires.
type Dispatcher struct {
	store       *store.Client
	visionRange int
}

// NewDispatcher builds a Dispatcher backed by store and using visionRange
// as the cardinal line-of-sight radius R for post-move vision.
func NewDispatcher(storeClient *store.Client, visionRange int) *Dispatcher {
	return &Dispatcher{store: storeClient, visionRange: visionRange}
}

// loadMazeAndConfig fetches the maze and resolved model config an
// experiment was admitted with. Read-only; safe to call outside the
// advisory lock since both are immutable once the experiment exists.
func (d *Dispatcher) loadMazeAndConfig(ctx context.Context, experimentID string) (*world.Maze, *config.ModelConfig, error) {
	exp, err := d.store.LoadExperiment(ctx, experimentID)
	if err != nil {
		return nil, nil, apperrors.New(apperrors.KindToolDispatchFailed, err)
	}
	maze, err := d.store.LoadMaze(ctx, exp.MazeID)
	if err != nil {
		return nil, nil, apperrors.New(apperrors.KindToolDispatchFailed, err)
	}
	var cfg config.ModelConfig
	if err := json.Unmarshal(exp.ModelConfigRaw, &cfg); err != nil {
		return nil, nil, apperrors.New(apperrors.KindToolDispatchFailed, fmt.Errorf("decoding model_config: %w", err))
	}
	return maze, &cfg, nil
}

// Move executes one of the four directional tools.
func (d *Dispatcher) Move(ctx context.Context, experimentID string, dir Direction, turnNumber int, reasoning string) (*MoveResult, error) {
	maze, _, err := d.loadMazeAndConfig(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	kind := movementKind(dir)
	dx, dy := dir.delta()

	var result *MoveResult
	inserted, err := d.store.AppendAction(ctx, experimentID, func(_ context.Context, _ *sql.Conn, pos store.Position, _ int) (*store.PendingAction, error) {
		tx, ty := pos.X+dx, pos.Y+dy
		target := maze.Classify(tx, ty)

		action := &store.PendingAction{
			TurnNumber: turnNumber,
			Kind:       kind,
			FromX:      intPtr(pos.X),
			FromY:      intPtr(pos.Y),
			Reasoning:  reasoning,
		}

		if !world.CanEnter(target) {
			action.Succeeded = false
			result = &MoveResult{
				Success:  false,
				Message:  fmt.Sprintf("blocked: (%d,%d) is %s", tx, ty, target),
				Position: Position{X: pos.X, Y: pos.Y},
			}
			return action, nil
		}

		action.Succeeded = true
		action.ToX = intPtr(tx)
		action.ToY = intPtr(ty)

		seen := world.Vision(maze, tx, ty, d.visionRange)
		visible := visionToObservations(seen)
		tilesJSON, err := json.Marshal(visible)
		if err != nil {
			return nil, fmt.Errorf("marshaling tiles_seen: %w", err)
		}
		action.TilesSeenJSON = tilesJSON

		result = &MoveResult{
			Success:  true,
			Goal:     target == world.Goal,
			Message:  fmt.Sprintf("moved to (%d,%d)", tx, ty),
			Position: Position{X: tx, Y: ty},
			Visible:  visible,
		}
		return action, nil
	})
	if err != nil {
		return nil, apperrors.New(apperrors.KindToolDispatchFailed, err)
	}
	_ = inserted
	return result, nil
}

func movementKind(dir Direction) store.ActionKind {
	switch dir {
	case North:
		return store.ActionMoveNorth
	case South:
		return store.ActionMoveSouth
	case East:
		return store.ActionMoveEast
	case West:
		return store.ActionMoveWest
	}
	return store.ActionMoveNorth
}

func intPtr(v int) *int { return &v }
