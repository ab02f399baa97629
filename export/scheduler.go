package export

import (
	"context"
	"log/slog"
	"time"

	"srishti/observability/metrics"
	"srishti/state"
)

// StateSource supplies the world-state snapshot to export on each tick.
type StateSource interface {
	State() *state.State
}

// Scheduler runs Run on a fixed interval until its context is cancelled.
type Scheduler struct {
	src       StateSource
	outputDir string
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewScheduler builds a Scheduler. now defaults to time.Now if nil.
func NewScheduler(src StateSource, outputDir string, interval time.Duration, logger *slog.Logger, now func() time.Time) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Scheduler{src: src, outputDir: outputDir, interval: interval, logger: logger, now: now}
}

// Run blocks, writing one snapshot per tick, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := Run(s.src.State(), s.outputDir, s.now())
			if err != nil {
				metrics.Instance().IncExportRun("failure")
				s.logger.Warn("export snapshot failed", "err", err)
				continue
			}
			metrics.Instance().IncExportRun("success")
			s.logger.Info("export snapshot written", "karmaRows", snap.KarmaRows, "credentialRows", snap.CredentialRows)
		}
	}
}
