package store

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
)

// advisoryLockKey derives the bigint key pg_advisory_lock expects from an
// experiment id. Postgres session-scoped advisory locks are keyed on a
// single int64 (or a pair of int32s); experiment ids here are opaque
// generated string ids (see store.NewExperimentID), not a monotonic
// integer, so the key is derived by hashing rather than parsed.
func advisoryLockKey(experimentID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(experimentID))
	return int64(h.Sum64())
}

// withExperimentLock acquires the session-scoped advisory lock for
// experimentID on a single dedicated connection, runs fn, and releases the
// lock before returning the connection to the pool — regardless of
// success or failure. fn is expected to be the full read-position,
// compute-step, append-action critical section for one action, so that two
// concurrent runners for the same experiment can never interleave their
// reads and writes.
//
// The lock is reentrant per connection and released automatically if the
// connection is dropped, so a crash mid-section never deadlocks future
// holders.
func (c *Client) withExperimentLock(ctx context.Context, experimentID string, fn func(conn *sql.Conn) error) error {
	conn, err := c.sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection for advisory lock: %w", err)
	}
	defer func() { _ = conn.Close() }()

	key := advisoryLockKey(experimentID)
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", key); err != nil {
		return fmt.Errorf("acquiring advisory lock for experiment %s: %w", experimentID, err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", key)
	}()

	return fn(conn)
}
