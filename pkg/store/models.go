// Package store is the data store adapter: Bun-backed Postgres models for
// mazes, experiments, and agent actions, plus the advisory-lock-guarded
// mutation helpers that serialize concurrent action writers within one
// experiment.
package store

import (
	"time"

	"github.com/uptrace/bun"
)

// Maze is the static reference grid an experiment runs against. TileRows is
// stored as a JSON column of row strings ('.', '#', 'G') rather than a 2-D
// array — Postgres has no native 2-D array-of-enum type and a JSON column
// keeps the row-major encoding trivially portable — the same shape as
// using a text column for any other blob-shaped data.
type Maze struct {
	bun.BaseModel `bun:"table:mazes,alias:mz"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Name      string    `bun:"name,notnull,unique"`
	Width     int       `bun:"width,notnull"`
	Height    int       `bun:"height,notnull"`
	TileRows  []string  `bun:"tile_rows,notnull,type:jsonb"`
	StartX    int       `bun:"start_x,notnull"`
	StartY    int       `bun:"start_y,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// ExecutionStatus is the lifecycle state of an Experiment.
type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "RUNNING"
	StatusSucceeded ExecutionStatus = "SUCCEEDED"
	StatusFailed    ExecutionStatus = "FAILED"
	StatusTimedOut  ExecutionStatus = "TIMED_OUT"
	StatusAborted   ExecutionStatus = "ABORTED"
)

// ClassifiedErrorRow is the JSON-serialized shape of an experiment's
// last_error column.
type ClassifiedErrorRow struct {
	Kind      string    `json:"kind"`
	Cause     string    `json:"cause"`
	Timestamp time.Time `json:"timestamp"`
}

// Experiment is one run of an agent through a maze. It is created at
// admission and mutated only by its owning scheduler run.
type Experiment struct {
	bun.BaseModel `bun:"table:experiments,alias:ex"`

	ID              string `bun:"id,pk"`
	MazeID          int64  `bun:"maze_id,notnull"`
	ModelName       string `bun:"model_name,notnull"`
	PromptVersion   string `bun:"prompt_version,notnull"`
	LLMProvider     string `bun:"llm_provider,notnull"`
	GoalDescription string `bun:"goal_description"`
	ModelConfigRaw  []byte `bun:"model_config,notnull,type:jsonb"`

	// Cross-references to the admitting trigger event.
	ExecutionID   string `bun:"execution_id"`
	ExecutionName string `bun:"execution_name"`
	MessageID     string `bun:"message_id"`

	StartX int `bun:"start_x,notnull"`
	StartY int `bun:"start_y,notnull"`

	TotalInputTokens   int   `bun:"total_input_tokens,notnull,default:0"`
	TotalOutputTokens  int   `bun:"total_output_tokens,notnull,default:0"`
	TotalCostUSDMicros int64 `bun:"total_cost_usd_micros,notnull,default:0"`

	ExecutionStatus ExecutionStatus `bun:"execution_status,notnull"`
	GoalFound       *bool           `bun:"goal_found"`

	CreatedAt         time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	StartedAt         time.Time  `bun:"started_at,notnull"`
	CompletedAt       *time.Time `bun:"completed_at"`
	LastInteractionAt *time.Time `bun:"last_interaction_at"`

	LastErrorJSON []byte `bun:"last_error,type:jsonb"`
}

// TriggerEventStatus is the lifecycle state of a queued trigger event in
// the ingress queue's admission flow.
type TriggerEventStatus string

const (
	TriggerEventPending TriggerEventStatus = "PENDING"
	TriggerEventClaimed TriggerEventStatus = "CLAIMED"
	TriggerEventDone    TriggerEventStatus = "DONE"
	TriggerEventFailed  TriggerEventStatus = "FAILED"
)

// TriggerEvent is one admission-queue row: an unvalidated trigger envelope
// awaiting a worker to claim, validate, and turn into an Experiment.
// Follows the same work-queue-row-as-claimable-unit pattern as any
// claim-and-process queue table, narrowed to a FIFO ingress of bare JSON
// envelopes rather than a rich domain row, since admission's only job is
// to convert the envelope into an Experiment, not to track the envelope's
// own lifecycle beyond that.
type TriggerEvent struct {
	bun.BaseModel `bun:"table:trigger_events,alias:te"`

	ID            int64              `bun:"id,pk,autoincrement"`
	DedupToken    string             `bun:"dedup_token,notnull,unique"`
	PayloadJSON   []byte             `bun:"payload,notnull,type:jsonb"`
	Status        TriggerEventStatus `bun:"status,notnull"`
	ExperimentID  *string            `bun:"experiment_id"`
	LastErrorJSON []byte             `bun:"last_error,type:jsonb"`
	CreatedAt     time.Time          `bun:"created_at,notnull,default:current_timestamp"`
	ClaimedAt     *time.Time         `bun:"claimed_at"`
	CompletedAt   *time.Time         `bun:"completed_at"`
}

// ActionKind distinguishes the tool call kinds an AgentAction records.
type ActionKind string

const (
	ActionMoveNorth ActionKind = "MOVE_NORTH"
	ActionMoveSouth ActionKind = "MOVE_SOUTH"
	ActionMoveEast  ActionKind = "MOVE_EAST"
	ActionMoveWest  ActionKind = "MOVE_WEST"
	ActionRecall    ActionKind = "RECALL"
)

// IsMovement reports whether this action kind is one of the four
// directional moves (as opposed to RECALL).
func (k ActionKind) IsMovement() bool {
	return k == ActionMoveNorth || k == ActionMoveSouth || k == ActionMoveEast || k == ActionMoveWest
}

// AgentAction is a single tool-call row in an experiment's action log.
type AgentAction struct {
	bun.BaseModel `bun:"table:agent_actions,alias:aa"`

	ID           int64      `bun:"id,pk,autoincrement"`
	ExperimentID string     `bun:"experiment_id,notnull"`
	StepNumber   int        `bun:"step_number,notnull"`
	TurnNumber   int        `bun:"turn_number,notnull"`
	Kind         ActionKind `bun:"kind,notnull"`

	FromX *int `bun:"from_x"`
	FromY *int `bun:"from_y"`
	ToX   *int `bun:"to_x"`
	ToY   *int `bun:"to_y"`

	Succeeded bool   `bun:"succeeded,notnull"`
	Reasoning string `bun:"reasoning"`

	// TilesSeenJSON is the vision payload attached to move actions:
	// observed tiles after the move.
	TilesSeenJSON []byte `bun:"tiles_seen,type:jsonb"`

	InputTokens   int    `bun:"input_tokens,notnull,default:0"`
	OutputTokens  int    `bun:"output_tokens,notnull,default:0"`
	CostUSDMicros int64  `bun:"cost_usd_micros,notnull,default:0"`
	RawToolCallID string `bun:"raw_tool_call_id"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
