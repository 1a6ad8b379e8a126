package jobs

// scheduler.go runs the retention pass in the background.
//
// Terminal jobs older than the retention window are removed on every tick.
// Failures are logged and retried on the next tick; they never stop the
// scheduler.

import (
	"context"
	"log/slog"
	"time"
)

// CleanupConfig controls the retention scheduler.
type CleanupConfig struct {
	Retention time.Duration // Age after which terminal jobs are removed (default: 24h)
	Interval  time.Duration // How often to run (default: 1h)
}

func (c CleanupConfig) withDefaults() CleanupConfig {
	if c.Retention <= 0 {
		c.Retention = 24 * time.Hour
	}
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	return c
}

// StartCleanupScheduler removes expired jobs immediately and then every
// Interval until ctx is cancelled. It blocks; run it on its own goroutine.
func (m *Manager) StartCleanupScheduler(ctx context.Context, cfg CleanupConfig) {
	cfg = cfg.withDefaults()
	slog.Info("job cleanup scheduler started",
		"retention", cfg.Retention.String(),
		"interval", cfg.Interval.String(),
	)

	m.runCleanup(ctx, cfg.Retention)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("job cleanup scheduler stopped")
			return
		case <-ticker.C:
			m.runCleanup(ctx, cfg.Retention)
		}
	}
}

func (m *Manager) runCleanup(ctx context.Context, retention time.Duration) {
	start := time.Now()
	removed, err := m.CleanupOldJobs(ctx, retention)
	if err != nil {
		slog.Error("job cleanup failed", "error", err, "removed", removed)
		return
	}
	if removed > 0 {
		slog.Info("removed expired jobs",
			"removed", removed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
