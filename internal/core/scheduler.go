package core

// scheduler.go runs background maintenance.
//
// The orphan sweeper retries blob releases that failed after eviction or
// deletion. It runs once on start, then every Interval, and stops when the
// context is cancelled. Failed releases stay recorded for the next pass.

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/equipstat/internal/logging"
	"github.com/JonMunkholm/equipstat/internal/metrics"
)

// SweepConfig holds configuration for the orphan sweeper.
type SweepConfig struct {
	Interval  time.Duration // How often to run (default: 10m)
	BatchSize int           // Orphans per pass (default: 100)
}

func (c *SweepConfig) withDefaults() {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
}

// StartOrphanSweeper blocks running sweep passes until ctx is cancelled.
func (s *Service) StartOrphanSweeper(ctx context.Context, cfg SweepConfig) {
	cfg.withDefaults()
	log := logging.FromContext(ctx)
	log.Info("orphan sweeper started",
		"interval", cfg.Interval,
		"batch_size", cfg.BatchSize,
	)

	s.runSweep(ctx, cfg)

	ticker := s.opts.Clock.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("orphan sweeper stopped")
			return
		case <-ticker.Chan():
			s.runSweep(ctx, cfg)
		}
	}
}

func (s *Service) runSweep(ctx context.Context, cfg SweepConfig) {
	start := s.opts.Clock.Now()
	released, err := s.SweepOrphans(ctx, cfg.BatchSize)
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.FromContext(ctx).Error("orphan sweep failed", "error", err)
		return
	}
	if released > 0 {
		logging.FromContext(ctx).Info("released orphaned blobs",
			"released", released,
			"duration_ms", s.opts.Clock.Since(start).Milliseconds(),
		)
	}
}

// SweepOrphans attempts to release up to limit recorded orphans and returns
// how many were released. A blob that still cannot be deleted stays recorded
// with its attempt count bumped.
func (s *Service) SweepOrphans(ctx context.Context, limit int) (int, error) {
	keys, err := s.store.Orphans(ctx, limit)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return released, err
		}
		if err := s.blobs.Delete(ctx, key); err != nil {
			logging.FromContext(ctx).Warn("orphaned blob still not released",
				"blob_key", key,
				"error", err,
			)
			// Re-recording moves the key behind orphans not yet retried.
			if err := s.store.RecordOrphan(ctx, key, err); err != nil {
				return released, err
			}
			continue
		}
		if err := s.store.ResolveOrphan(ctx, key); err != nil {
			return released, err
		}
		metrics.OrphansReleased.Inc()
		released++
	}
	return released, nil
}
