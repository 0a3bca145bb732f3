package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// ErrDuplicateTriggerEvent is returned by Enqueue when dedup_token already
// exists — the ingress queue de-duplicates by a stable token derived from
// the event, enforced here by a unique index rather than
// application-level locking.
var ErrDuplicateTriggerEvent = fmt.Errorf("duplicate trigger event")

// ErrNoTriggerEventsAvailable is returned by ClaimNextTriggerEvent when
// the queue is empty.
var ErrNoTriggerEventsAvailable = fmt.Errorf("no trigger events available")

// Enqueue inserts a new trigger event envelope. Returns
// ErrDuplicateTriggerEvent if dedupToken has already been enqueued.
func (c *Client) Enqueue(ctx context.Context, dedupToken string, payload []byte) (*TriggerEvent, error) {
	ev := &TriggerEvent{DedupToken: dedupToken, PayloadJSON: payload, Status: TriggerEventPending}
	_, err := c.NewInsert().Model(ev).
		On("CONFLICT (dedup_token) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("enqueuing trigger event: %w", err)
	}
	if ev.ID == 0 {
		return nil, ErrDuplicateTriggerEvent
	}
	return ev, nil
}

// ClaimNextTriggerEvent claims the oldest PENDING event using
// FOR UPDATE SKIP LOCKED on the shared pool connection, since
// trigger-event claiming needs no advisory lock of its own (unlike
// AppendAction, nothing else ever mutates a given row concurrently once
// claimed).
func (c *Client) ClaimNextTriggerEvent(ctx context.Context) (*TriggerEvent, error) {
	tx, err := c.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer tx.Rollback()

	ev := &TriggerEvent{}
	err = tx.QueryRowContext(ctx, `
		SELECT id, dedup_token, payload, status, experiment_id, last_error, created_at, claimed_at, completed_at
		FROM trigger_events
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, string(TriggerEventPending)).
		Scan(&ev.ID, &ev.DedupToken, &ev.PayloadJSON, &ev.Status, &ev.ExperimentID, &ev.LastErrorJSON,
			&ev.CreatedAt, &ev.ClaimedAt, &ev.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNoTriggerEventsAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("claiming next trigger event: %w", err)
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE trigger_events SET status = $2, claimed_at = $3 WHERE id = $1`,
		ev.ID, string(TriggerEventClaimed), now); err != nil {
		return nil, fmt.Errorf("marking trigger event %d claimed: %w", ev.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim of trigger event %d: %w", ev.ID, err)
	}

	ev.Status = TriggerEventClaimed
	ev.ClaimedAt = &now
	return ev, nil
}

// CompleteTriggerEvent marks a claimed event DONE and records the
// experiment it produced.
func (c *Client) CompleteTriggerEvent(ctx context.Context, id int64, experimentID string) error {
	_, err := c.sqlDB.ExecContext(ctx, `
		UPDATE trigger_events
		SET status = $2, experiment_id = $3, completed_at = now()
		WHERE id = $1`,
		id, string(TriggerEventDone), experimentID)
	if err != nil {
		return fmt.Errorf("completing trigger event %d: %w", id, err)
	}
	return nil
}

// FailTriggerEvent marks a claimed event FAILED with a classified cause.
// This does not retry in-place — the caller's ingress transport is
// responsible for any redelivery, which would arrive as a fresh Enqueue,
// not a mutation of this row.
func (c *Client) FailTriggerEvent(ctx context.Context, id int64, lastErr *ClassifiedErrorRow) error {
	data, err := json.Marshal(lastErr)
	if err != nil {
		return fmt.Errorf("marshaling trigger event last_error: %w", err)
	}
	_, err = c.sqlDB.ExecContext(ctx, `
		UPDATE trigger_events
		SET status = $2, last_error = $3, completed_at = now()
		WHERE id = $1`,
		id, string(TriggerEventFailed), data)
	if err != nil {
		return fmt.Errorf("failing trigger event %d: %w", id, err)
	}
	return nil
}

// CountRunningExperiments returns how many experiments are currently
// RUNNING, the check admission's bounded-concurrency gate uses before
// claiming another trigger event.
func (c *Client) CountRunningExperiments(ctx context.Context) (int, error) {
	var n int
	err := c.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM experiments WHERE execution_status = $1`, string(StatusRunning)).
		Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting running experiments: %w", err)
	}
	return n, nil
}
