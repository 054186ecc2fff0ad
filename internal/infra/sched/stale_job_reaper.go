package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"workflow-dashboard/internal/domain"
	"workflow-dashboard/internal/domain/ports/repository"
	"workflow-dashboard/internal/infra/metrics"
	"workflow-dashboard/internal/infra/redis"
)

const reaperLockKey = "lock:stale-job-reaper"

// StaleJobReaper periodically fails jobs left in processing by a worker
// that died mid-run.
type StaleJobReaper struct {
	interval   time.Duration
	staleAfter time.Duration
	jobs       repository.JobRepository
	locker     redis.Locker
	now        func() time.Time
	log        *zerolog.Logger
}

// NewStaleJobReaper builds the reaper. locker may be nil when only one
// process runs it.
func NewStaleJobReaper(interval, staleAfter time.Duration, jobs repository.JobRepository, locker redis.Locker, logger *zerolog.Logger) *StaleJobReaper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 2 * time.Hour
	}
	l := logger.With().Str("component", "StaleJobReaper").Logger()
	return &StaleJobReaper{
		interval:   interval,
		staleAfter: staleAfter,
		jobs:       jobs,
		locker:     locker,
		now:        func() time.Time { return time.Now().UTC() },
		log:        &l,
	}
}

func (w *StaleJobReaper) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Dur("stale_after", w.staleAfter).Msg("Starting stale job reaper")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping stale job reaper")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.log.Error().Err(err).Msg("stale job reaper error")
			}
		}
	}
}

// RunOnce fails every job that entered processing before now-staleAfter
// and returns how many were changed.
func (w *StaleJobReaper) RunOnce(ctx context.Context) (int, error) {
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, reaperLockKey, w.interval)
		if errors.Is(err, domain.ErrLockHeld) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		defer func() { _ = w.locker.Unlock(context.WithoutCancel(ctx), reaperLockKey, token) }()
	}

	cutoff := w.now().Add(-w.staleAfter)
	n, err := w.jobs.FailStale(ctx, repository.NoTX, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AddJobsReaped(n)
		w.log.Warn().Int("count", n).Time("started_before", cutoff).Msg("stale jobs failed")
	}
	return n, nil
}
