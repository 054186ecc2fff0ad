// Package notify reports jobs that reached a terminal status.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"workflow-dashboard/internal/config"
	"workflow-dashboard/internal/domain/model"
	"workflow-dashboard/internal/domain/ports/adapter"
)

// JobEvent is the message published for a finished job.
type JobEvent struct {
	JobID         string              `json:"job_id"`
	WorkflowID    string              `json:"workflow_id"`
	UserID        string              `json:"user_id"`
	JobType       model.JobKind       `json:"job_type"`
	Status        model.JobStatus     `json:"status"`
	FailureReason model.FailureReason `json:"failure_reason,omitempty"`
	StorageKey    string              `json:"s3_key,omitempty"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
}

func eventOf(job *model.Job) JobEvent {
	return JobEvent{
		JobID:         job.ID,
		WorkflowID:    job.WorkflowID,
		UserID:        job.UserID,
		JobType:       job.Kind,
		Status:        job.Status,
		FailureReason: job.FailureReason,
		StorageKey:    job.Key(),
		CompletedAt:   job.CompletedAt,
	}
}

func messageOf(job *model.Job) string {
	msg := fmt.Sprintf("Job %s (%s) finished: %s", job.ID, job.Kind, job.Status)
	if job.Status == model.JobStatusFailed && job.FailureReason != model.FailureNone {
		msg += " (" + string(job.FailureReason) + ")"
	}
	return msg
}

type Noop struct {
	log *zerolog.Logger
}

func NewNoop(logger *zerolog.Logger) *Noop {
	l := logger.With().Str("component", "NoopNotifier").Logger()
	return &Noop{log: &l}
}

func (n *Noop) JobFinished(_ context.Context, job *model.Job) error {
	n.log.Debug().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("job finished")
	return nil
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []adapter.Notifier

func (m Multi) JobFinished(ctx context.Context, job *model.Job) error {
	var err error
	for _, n := range m {
		err = multierr.Append(err, n.JobFinished(ctx, job))
	}
	return err
}

// New builds the notifier selected by cfg.Driver. The returned close func
// releases its connection.
func New(cfg config.NotifyConfig, logger *zerolog.Logger) (adapter.Notifier, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Driver {
	case "", "none":
		return NewNoop(logger), noop, nil
	case "telegram":
		n, err := NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, logger)
		if err != nil {
			return nil, nil, err
		}
		return n, noop, nil
	case "nats":
		n, err := ConnectNATS(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			return nil, nil, err
		}
		return n, n.Close, nil
	default:
		return nil, nil, fmt.Errorf("notify driver %q not supported", cfg.Driver)
	}
}
