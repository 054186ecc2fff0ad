package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"workflow-dashboard/internal/domain"
	"workflow-dashboard/internal/infra/durable"
	"workflow-dashboard/internal/infra/redis"
	"workflow-dashboard/internal/infra/worker"
)

// PipelineRunner executes one attempt of a job's pipeline.
type PipelineRunner interface {
	Run(ctx context.Context, run *durable.Run, jobID string) error
}

// ProcessWorkflowHandler runs the pipeline for one trigger, at most one run
// per user at a time.
type ProcessWorkflowHandler struct {
	pipeline PipelineRunner
	locker   redis.Locker
	journal  durable.Journal
	lockTTL  time.Duration
	log      *zerolog.Logger
}

func NewProcessWorkflowHandler(pipeline PipelineRunner, locker redis.Locker, journal durable.Journal, lockTTL time.Duration, logger *zerolog.Logger) *ProcessWorkflowHandler {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	l := logger.With().Str("component", "ProcessWorkflowHandler").Logger()
	return &ProcessWorkflowHandler{pipeline: pipeline, locker: locker, journal: journal, lockTTL: lockTTL, log: &l}
}

// ProcessTask implements asynq.Handler.
func (h *ProcessWorkflowHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	p, err := decodePayload(t)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	retry, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	runID, ok := asynq.GetTaskID(ctx)
	if !ok {
		runID = TaskID(p.JobID)
	}
	return h.process(ctx, runID, durable.Attempt{Retry: retry, MaxRetry: RetryBudget(maxRetry)}, p)
}

// process runs one delivery. asynq only counts real failures in the retry
// count, so attempt.Retry is the number of failed runs so far. A failure on
// the last attempt is archived with SkipRetry; ErrUserBusy is always handed
// back for a later delivery.
func (h *ProcessWorkflowHandler) process(ctx context.Context, runID string, attempt durable.Attempt, p ProcessWorkflowPayload) error {
	err := h.Handle(ctx, runID, attempt, p)
	switch {
	case err == nil, errors.Is(err, ErrUserBusy):
		return err
	case worker.IsPermanent(err), attempt.Final():
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

// Handle runs one attempt under the user's lock. It returns ErrUserBusy
// without touching the job when the lock is taken.
func (h *ProcessWorkflowHandler) Handle(ctx context.Context, runID string, attempt durable.Attempt, p ProcessWorkflowPayload) error {
	key := redis.UserRunKey(p.UserID)
	token, err := h.locker.TryLock(ctx, key, h.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			h.log.Debug().Str("job_id", p.JobID).Str("user_id", p.UserID).Msg("user busy, run postponed")
			return ErrUserBusy
		}
		return fmt.Errorf("acquire user lock: %w", err)
	}
	defer func() {
		if err := h.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			h.log.Warn().Err(err).Str("user_id", p.UserID).Msg("release user lock")
		}
	}()

	run := durable.NewRun(runID, attempt, h.journal, h.log)
	return h.pipeline.Run(ctx, run, p.JobID)
}
