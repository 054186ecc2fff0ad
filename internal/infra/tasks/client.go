package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"workflow-dashboard/internal/config"
	"workflow-dashboard/internal/domain/ports/adapter"
)

var _ adapter.JobDispatcher = (*Dispatcher)(nil)

// Dispatcher enqueues trigger events on asynq.
type Dispatcher struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	cfg       config.QueueConfig
	mu        sync.RWMutex
	log       *zerolog.Logger
}

func NewDispatcher(redisOpt asynq.RedisConnOpt, cfg config.QueueConfig, logger *zerolog.Logger) *Dispatcher {
	l := logger.With().Str("component", "Dispatcher").Logger()
	return &Dispatcher{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		cfg:       cfg,
		log:       &l,
	}
}

func (d *Dispatcher) queue() string {
	if d.cfg.Name != "" {
		return d.cfg.Name
	}
	return "default"
}

func (d *Dispatcher) options(jobID string) []asynq.Option {
	opts := []asynq.Option{
		asynq.TaskID(TaskID(jobID)),
		asynq.MaxRetry(QueueMaxRetry(d.cfg.MaxRetry)),
	}
	opts = append(opts, asynq.Queue(d.queue()))
	if d.cfg.TaskTimeout > 0 {
		opts = append(opts, asynq.Timeout(d.cfg.TaskTimeout))
	}
	return opts
}

// Dispatch enqueues the trigger for jobID. A trigger still pending, waiting
// or running for the job counts as dispatched; an archived or completed one
// is replaced.
func (d *Dispatcher) Dispatch(ctx context.Context, jobID, userID string) error {
	task, err := NewProcessWorkflowTask(jobID, userID)
	if err != nil {
		return err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	info, err := d.client.EnqueueContext(ctx, task, d.options(jobID)...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		replaced, rerr := d.dropFinished(TaskID(jobID))
		if rerr != nil {
			return rerr
		}
		if !replaced {
			d.log.Info().Str("job_id", jobID).Msg("trigger already scheduled")
			return nil
		}
		info, err = d.client.EnqueueContext(ctx, task, d.options(jobID)...)
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			d.log.Info().Str("job_id", jobID).Msg("trigger already scheduled")
			return nil
		}
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeProcessWorkflow, err)
	}
	d.log.Debug().Str("job_id", jobID).Str("task_id", info.ID).Str("queue", info.Queue).Msg("trigger enqueued")
	return nil
}

// dropFinished deletes the task with id when asynq keeps it only as history.
func (d *Dispatcher) dropFinished(id string) (bool, error) {
	info, err := d.inspector.GetTaskInfo(d.queue(), id)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("inspect task %s: %w", id, err)
	}
	if !finished(info.State) {
		return false, nil
	}
	if err := d.inspector.DeleteTask(d.queue(), id); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
		return false, fmt.Errorf("delete task %s: %w", id, err)
	}
	d.log.Info().Str("task_id", id).Str("state", info.State.String()).Msg("finished trigger replaced")
	return true, nil
}

func finished(s asynq.TaskState) bool {
	return s == asynq.TaskStateArchived || s == asynq.TaskStateCompleted
}

func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return multierr.Combine(
		wrapClose("asynq client", d.client.Close()),
		wrapClose("asynq inspector", d.inspector.Close()),
	)
}

func wrapClose(what string, err error) error {
	if err != nil {
		return fmt.Errorf("close %s: %w", what, err)
	}
	return nil
}
