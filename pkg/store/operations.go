package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewExperimentID generates a fresh, globally unique experiment identifier.
func NewExperimentID() string {
	return uuid.NewString()
}

// CreateExperiment inserts a new experiment row. Called once per admitted
// trigger event by the admission pool, before the scheduler run starts.
func (c *Client) CreateExperiment(ctx context.Context, exp *Experiment) error {
	exp.ExecutionStatus = StatusRunning
	if exp.StartedAt.IsZero() {
		exp.StartedAt = time.Now()
	}
	_, err := c.NewInsert().Model(exp).Exec(ctx)
	if err != nil {
		return fmt.Errorf("creating experiment: %w", err)
	}
	return nil
}

// LoadExperiment fetches an experiment row by id.
func (c *Client) LoadExperiment(ctx context.Context, id string) (*Experiment, error) {
	exp := new(Experiment)
	err := c.NewSelect().Model(exp).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading experiment %s: %w", id, err)
	}
	return exp, nil
}

// mostRecentAction returns the highest-step_number action for an
// experiment, or nil if none exists.
func mostRecentAction(ctx context.Context, q sqlQuerier, experimentID string) (*AgentAction, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, step_number, turn_number, kind, from_x, from_y, to_x, to_y,
		       succeeded, reasoning, tiles_seen, input_tokens, output_tokens,
		       cost_usd_micros, raw_tool_call_id, created_at
		FROM agent_actions
		WHERE experiment_id = $1
		ORDER BY step_number DESC
		LIMIT 1`, experimentID)

	a := &AgentAction{ExperimentID: experimentID}
	err := row.Scan(&a.ID, &a.StepNumber, &a.TurnNumber, &a.Kind, &a.FromX, &a.FromY, &a.ToX, &a.ToY,
		&a.Succeeded, &a.Reasoning, &a.TilesSeenJSON, &a.InputTokens, &a.OutputTokens,
		&a.CostUSDMicros, &a.RawToolCallID, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading most recent action for experiment %s: %w", experimentID, err)
	}
	return a, nil
}

// sqlQuerier is satisfied by both *sql.Conn and *sql.DB, letting
// mostRecentAction run either inside or outside an advisory-lock section.
type sqlQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CurrentPosition derives an experiment's current position per the single
// shared rule: the most recent action's to_x/to_y if both non-null, else
// its from_x/from_y, else the experiment's stored start position.
func (c *Client) CurrentPosition(ctx context.Context, experimentID string) (Position, error) {
	exp, err := c.LoadExperiment(ctx, experimentID)
	if err != nil {
		return Position{}, err
	}
	last, err := mostRecentAction(ctx, c.sqlDB, experimentID)
	if err != nil {
		return Position{}, err
	}
	return currentPositionFrom(exp.StartX, exp.StartY, last), nil
}

// NextStepNumber returns max(step_number)+1 for the experiment, or 1 if no
// actions exist yet.
func (c *Client) NextStepNumber(ctx context.Context, experimentID string) (int, error) {
	var next sql.NullInt64
	err := c.sqlDB.QueryRowContext(ctx,
		`SELECT MAX(step_number) FROM agent_actions WHERE experiment_id = $1`, experimentID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("computing next step number for experiment %s: %w", experimentID, err)
	}
	if !next.Valid {
		return 1, nil
	}
	return int(next.Int64) + 1, nil
}

// PendingAction is the pre-computed shape of an action row AppendAction
// persists; BuildAction produces one given the position and step number it
// observed under the advisory lock.
type PendingAction = AgentAction

// BuildActionFunc computes the row to insert given the experiment's
// current position and the step number it will occupy. It runs inside the
// advisory-lock critical section on the same dedicated connection, so it
// may issue additional reads against conn (e.g. counting movements since
// the last recall) with the guarantee that no concurrent append for this
// experiment can be interleaved — but it must not call back into Client
// methods that open their own connection, since that would deadlock
// against a pool exhausted by long-held locks under load.
type BuildActionFunc func(ctx context.Context, conn *sql.Conn, pos Position, stepNumber int) (*PendingAction, error)

// AppendAction atomically reads the experiment's current position,
// computes its next step number, builds the row via build, and inserts
// it — the entire (current_position, next_step_number, compute_result,
// insert) sequence held under the experiment's advisory lock.
//
// Advisory locking (not a transaction) is deliberate: a failed move must
// still leave an auditable row, and a transaction would roll back that row
// along with whatever caused the failure.
func (c *Client) AppendAction(ctx context.Context, experimentID string, build BuildActionFunc) (*AgentAction, error) {
	var inserted *AgentAction

	err := c.withExperimentLock(ctx, experimentID, func(conn *sql.Conn) error {
		exp, err := c.LoadExperiment(ctx, experimentID)
		if err != nil {
			return err
		}
		last, err := mostRecentAction(ctx, conn, experimentID)
		if err != nil {
			return err
		}
		pos := currentPositionFrom(exp.StartX, exp.StartY, last)

		var nextStep sql.NullInt64
		if err := conn.QueryRowContext(ctx,
			`SELECT MAX(step_number) FROM agent_actions WHERE experiment_id = $1`, experimentID).
			Scan(&nextStep); err != nil {
			return fmt.Errorf("computing next step number: %w", err)
		}
		step := 1
		if nextStep.Valid {
			step = int(nextStep.Int64) + 1
		}

		action, err := build(ctx, conn, pos, step)
		if err != nil {
			return fmt.Errorf("building action row: %w", err)
		}
		action.ExperimentID = experimentID
		action.StepNumber = step

		err = conn.QueryRowContext(ctx, `
			INSERT INTO agent_actions
				(experiment_id, step_number, turn_number, kind, from_x, from_y, to_x, to_y,
				 succeeded, reasoning, tiles_seen, input_tokens, output_tokens,
				 cost_usd_micros, raw_tool_call_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,now())
			RETURNING id, created_at`,
			action.ExperimentID, action.StepNumber, action.TurnNumber, string(action.Kind),
			action.FromX, action.FromY, action.ToX, action.ToY,
			action.Succeeded, action.Reasoning, action.TilesSeenJSON,
			action.InputTokens, action.OutputTokens, action.CostUSDMicros, action.RawToolCallID,
		).Scan(&action.ID, &action.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting action row: %w", err)
		}

		inserted = action
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// CountMovements returns how many movement actions (MOVE_NORTH/SOUTH/
// EAST/WEST) an experiment has recorded, counting failed moves the same as
// successful ones — consistent with the recall-cooldown counting rule
// (pkg/tools.Dispatcher), so "total_movements" means the same thing
// wherever the budget is checked.
func (c *Client) CountMovements(ctx context.Context, experimentID string) (int, error) {
	var n int
	err := c.sqlDB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM agent_actions
		WHERE experiment_id = $1
		  AND kind IN ($2, $3, $4, $5)`,
		experimentID, string(ActionMoveNorth), string(ActionMoveSouth), string(ActionMoveEast), string(ActionMoveWest)).
		Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting movements for experiment %s: %w", experimentID, err)
	}
	return n, nil
}

// RecordTurnTokens atomically accumulates token/cost deltas onto an
// experiment. Implemented as a single numeric UPDATE so the database, not
// application code, performs the addition — concurrent read-modify-write
// accumulation from application code is a well-known source of lost
// updates under contention.
func (c *Client) RecordTurnTokens(ctx context.Context, experimentID string, deltaInputTokens, deltaOutputTokens int, deltaCostUSDMicros int64) error {
	_, err := c.sqlDB.ExecContext(ctx, `
		UPDATE experiments
		SET total_input_tokens = total_input_tokens + $2,
		    total_output_tokens = total_output_tokens + $3,
		    total_cost_usd_micros = total_cost_usd_micros + $4
		WHERE id = $1`,
		experimentID, deltaInputTokens, deltaOutputTokens, deltaCostUSDMicros)
	if err != nil {
		return fmt.Errorf("recording turn tokens for experiment %s: %w", experimentID, err)
	}
	return nil
}

// UpdateHeartbeat stamps last_interaction_at to now, so orphan detection
// can tell a live, slow-moving experiment from a crashed one.
func (c *Client) UpdateHeartbeat(ctx context.Context, experimentID string) error {
	_, err := c.sqlDB.ExecContext(ctx,
		`UPDATE experiments SET last_interaction_at = now() WHERE id = $1`, experimentID)
	if err != nil {
		return fmt.Errorf("updating heartbeat for experiment %s: %w", experimentID, err)
	}
	return nil
}

// Finalize sets completed_at, execution_status, goal_found, and an
// optional classified last_error. It is idempotent: an experiment whose
// completed_at is already set is left untouched (logged by the caller,
// not here).
func (c *Client) Finalize(ctx context.Context, experimentID string, status ExecutionStatus, goalFound *bool, lastErr *ClassifiedErrorRow) (applied bool, err error) {
	var lastErrJSON []byte
	if lastErr != nil {
		lastErrJSON, err = json.Marshal(lastErr)
		if err != nil {
			return false, fmt.Errorf("marshaling last_error: %w", err)
		}
	}

	res, err := c.sqlDB.ExecContext(ctx, `
		UPDATE experiments
		SET execution_status = $2,
		    goal_found = $3,
		    last_error = $4,
		    completed_at = now()
		WHERE id = $1 AND completed_at IS NULL`,
		experimentID, string(status), goalFound, lastErrJSON)
	if err != nil {
		return false, fmt.Errorf("finalizing experiment %s: %w", experimentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking finalize result for experiment %s: %w", experimentID, err)
	}
	return n > 0, nil
}

// OrphanCandidate is a summary row returned by ListOrphaned: read-only
// diagnostics, never auto-recovered.
type OrphanCandidate struct {
	ID                string
	LastInteractionAt *time.Time
	StartedAt         time.Time
}

// ListOrphaned returns RUNNING experiments whose last_interaction_at (or,
// absent a heartbeat yet, started_at) is older than threshold — the
// periodic scan supplementing the owning-scheduler-run model.
func (c *Client) ListOrphaned(ctx context.Context, threshold time.Duration) ([]OrphanCandidate, error) {
	cutoff := time.Now().Add(-threshold)
	rows, err := c.sqlDB.QueryContext(ctx, `
		SELECT id, last_interaction_at, started_at
		FROM experiments
		WHERE execution_status = $1
		  AND COALESCE(last_interaction_at, started_at) < $2`,
		string(StatusRunning), cutoff)
	if err != nil {
		return nil, fmt.Errorf("scanning for orphaned experiments: %w", err)
	}
	defer rows.Close()

	var out []OrphanCandidate
	for rows.Next() {
		var o OrphanCandidate
		if err := rows.Scan(&o.ID, &o.LastInteractionAt, &o.StartedAt); err != nil {
			return nil, fmt.Errorf("scanning orphan candidate row: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
