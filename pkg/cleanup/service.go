// Package cleanup periodically scans for orphaned experiments: RUNNING
// rows whose owning scheduler run has gone silent. There is no external
// cancellation signal and no automatic recovery — the scan is read-only
// diagnostics, surfaced so an operator can decide what to do, never
// applied as a fix itself.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/mazerunner/harness/pkg/store"
)

// Service runs a background scan of store.ListOrphaned on a fixed
// interval, logging every candidate it finds.
type Service struct {
	store     *store.Client
	interval  time.Duration
	threshold time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a cleanup service scanning for experiments RUNNING
// without a heartbeat for longer than threshold, every interval.
func NewService(storeClient *store.Client, interval, threshold time.Duration) *Service {
	return &Service{store: storeClient, interval: interval, threshold: threshold}
}

// Start launches the background scan loop. Safe to call once; a second
// call while already running is a no-op.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("orphan scan started", "interval", s.interval, "threshold", s.threshold)
}

// Stop signals the scan loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("orphan scan stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.scan(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}

func (s *Service) scan(ctx context.Context) {
	candidates, err := s.store.ListOrphaned(ctx, s.threshold)
	if err != nil {
		slog.Error("orphan scan failed", "error", err)
		return
	}
	for _, c := range candidates {
		slog.Warn("experiment appears orphaned",
			"experiment_id", c.ID,
			"started_at", c.StartedAt,
			"last_interaction_at", c.LastInteractionAt)
	}
	if len(candidates) > 0 {
		slog.Info("orphan scan complete", "orphaned_count", len(candidates))
	}
}
