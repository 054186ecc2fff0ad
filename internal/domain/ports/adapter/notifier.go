package adapter

import (
	"context"

	"workflow-dashboard/internal/domain/model"
)

// Notifier reports jobs that reached a terminal status.
type Notifier interface {
	JobFinished(ctx context.Context, job *model.Job) error
}
