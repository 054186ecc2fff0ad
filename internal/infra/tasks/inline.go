package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"workflow-dashboard/internal/config"
	"workflow-dashboard/internal/domain/ports/adapter"
	"workflow-dashboard/internal/infra/durable"
	"workflow-dashboard/internal/infra/worker"
)

var _ adapter.JobDispatcher = (*InlineDispatcher)(nil)

// InlineDispatcher runs triggers on an in-process pool with the same lock,
// retry budget and task timeout as the asynq worker. Runs are lost when the
// process exits.
type InlineDispatcher struct {
	pool     *worker.Pool
	handler  *ProcessWorkflowHandler
	cfg      config.QueueConfig
	inflight sync.Map
	delay    func(n int, err error) time.Duration
	log      *zerolog.Logger
}

func NewInlineDispatcher(pool *worker.Pool, handler *ProcessWorkflowHandler, cfg config.QueueConfig, logger *zerolog.Logger) *InlineDispatcher {
	l := logger.With().Str("component", "InlineDispatcher").Logger()
	rd := RetryDelay(cfg.RetryInterval, cfg.BusyRetryDelay)
	return &InlineDispatcher{
		pool:    pool,
		handler: handler,
		cfg:     cfg,
		delay:   func(n int, err error) time.Duration { return rd(n, err, nil) },
		log:     &l,
	}
}

func (d *InlineDispatcher) Dispatch(_ context.Context, jobID, userID string) error {
	if jobID == "" || userID == "" {
		return fmt.Errorf("dispatch: job id and user id are required")
	}
	if _, loaded := d.inflight.LoadOrStore(jobID, struct{}{}); loaded {
		d.log.Info().Str("job_id", jobID).Msg("trigger already scheduled")
		return nil
	}
	r := &inlineRun{id: TaskID(jobID), p: ProcessWorkflowPayload{JobID: jobID, UserID: userID}}
	if err := d.pool.Submit(d.task(r)); err != nil {
		d.inflight.Delete(jobID)
		return fmt.Errorf("submit run: %w", err)
	}
	return nil
}

// inlineRun is one trigger moving through its attempts. retry counts real
// failures only.
type inlineRun struct {
	id    string
	p     ProcessWorkflowPayload
	retry int
}

// task runs a single attempt. A run that must wait gives its pool slot back
// and is resubmitted once the delay has passed, so a busy user never keeps
// workers away from other users.
func (d *InlineDispatcher) task(r *inlineRun) worker.Task {
	return func(ctx context.Context) error {
		err := d.attempt(ctx, r.id, durable.Attempt{Retry: r.retry, MaxRetry: d.cfg.MaxRetry}, r.p)
		switch {
		case err == nil:
			d.inflight.Delete(r.p.JobID)
			return nil
		case ctx.Err() != nil:
			d.inflight.Delete(r.p.JobID)
			return err
		case worker.IsPermanent(err):
			d.inflight.Delete(r.p.JobID)
			return err
		}

		wait := d.delay(r.retry, err)
		if IsFailure(err) {
			if r.retry >= d.cfg.MaxRetry {
				d.inflight.Delete(r.p.JobID)
				return err
			}
			r.retry++
		}
		d.later(ctx, r, wait)
		if IsFailure(err) {
			return err
		}
		return nil
	}
}

func (d *InlineDispatcher) later(ctx context.Context, r *inlineRun, wait time.Duration) {
	time.AfterFunc(wait, func() {
		if ctx.Err() != nil {
			d.inflight.Delete(r.p.JobID)
			return
		}
		err := d.pool.Submit(d.task(r))
		switch {
		case err == nil:
		case errors.Is(err, worker.ErrPoolStopped):
			d.inflight.Delete(r.p.JobID)
		default:
			d.log.Warn().Err(err).Str("job_id", r.p.JobID).Msg("resubmit deferred")
			d.later(ctx, r, d.delay(r.retry, ErrUserBusy))
		}
	})
}

func (d *InlineDispatcher) attempt(ctx context.Context, runID string, a durable.Attempt, p ProcessWorkflowPayload) error {
	if d.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.TaskTimeout)
		defer cancel()
	}
	return d.handler.Handle(ctx, runID, a, p)
}
