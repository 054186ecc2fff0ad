// Package durable runs a job as a sequence of named steps inside one attempt
// of a retried task. Every step is timed, logged and written to a journal.
// Results are not memoised: a retried attempt executes every step again.
package durable

import (
	"context"
	"sync"
	"time"

	"workflow-dashboard/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Attempt identifies one execution of a retried task. Retry is zero-based.
type Attempt struct {
	Retry    int
	MaxRetry int
}

// Number is the 1-based attempt number.
func (a Attempt) Number() int { return a.Retry + 1 }

// Final reports whether no further attempt will follow a failure of this one.
func (a Attempt) Final() bool { return a.Retry >= a.MaxRetry }

type Run struct {
	ID      string
	Attempt Attempt

	journal Journal
	log     *zerolog.Logger

	mu         sync.Mutex
	failedStep string
}

func NewRun(id string, attempt Attempt, journal Journal, logger *zerolog.Logger) *Run {
	if journal == nil {
		journal = NopJournal{}
	}
	l := logger.With().Str("run_id", id).Int("attempt", attempt.Number()).Logger()
	return &Run{ID: id, Attempt: attempt, journal: journal, log: &l}
}

// Step executes fn as the named step. The first failing step of the run is
// remembered and returned by FailedStep. fn's error is returned unchanged.
func (r *Run) Step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	r.record(ctx, StepEvent{Step: name, Kind: EventStarted, At: start.UTC()})

	err := fn(ctx)
	elapsed := time.Since(start)
	metrics.ObserveStep(name, elapsed, err == nil)

	ev := StepEvent{Step: name, Kind: EventFinished, At: time.Now().UTC(), Duration: elapsed}
	if err != nil {
		ev.Kind = EventFailed
		ev.Error = err.Error()
		r.mu.Lock()
		if r.failedStep == "" {
			r.failedStep = name
		}
		r.mu.Unlock()
		r.log.Debug().Str("step", name).Dur("duration", elapsed).Err(err).Msg("step failed")
	} else {
		r.log.Debug().Str("step", name).Dur("duration", elapsed).Msg("step finished")
	}
	r.record(ctx, ev)
	return err
}

// StepValue is Step for functions that produce a value.
func StepValue[T any](ctx context.Context, r *Run, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Step(ctx, name, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// FailedStep returns the name of the first step that failed, or "".
func (r *Run) FailedStep() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failedStep
}

func (r *Run) record(ctx context.Context, ev StepEvent) {
	ev.RunID = r.ID
	ev.Attempt = r.Attempt.Number()
	// journal writes must outlive a cancelled step context
	if err := r.journal.Record(context.WithoutCancel(ctx), ev); err != nil {
		r.log.Warn().Err(err).Str("step", ev.Step).Msg("journal write failed")
	}
}
