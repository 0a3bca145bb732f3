// Package dbtest provides the shared disposable-Postgres test helper used
// by every package whose tests need a real database: a CI_DATABASE_URL
// override with a testcontainers fallback, built against store.Client.
package dbtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mazerunner/harness/pkg/store"
)

// NewTestClient creates a migrated store.Client for the duration of a
// test. In CI (CI_DATABASE_URL set) it connects to an externally managed
// Postgres service; otherwise it spins up a disposable testcontainer.
// Skips the test when Docker is unavailable, since these are integration
// tests that need a real Postgres instance.
func NewTestClient(t *testing.T) *store.Client {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv("CI_DATABASE_URL")
	if dsn == "" {
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("mazerunner_test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			t.Skipf("docker unavailable, skipping integration test: %v", err)
		}
		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(pgContainer); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		})

		dsn, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	client, err := store.NewClient(ctx, store.Config{DSN: dsn, MaxOpenConns: 10, MaxIdleConns: 5})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}
