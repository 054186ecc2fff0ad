package repository

import (
	"context"

	"workflow-dashboard/internal/domain/model"
)

type FileRepository interface {
	// CreateMany inserts files, skipping keys that already exist, and returns
	// how many rows were written.
	CreateMany(ctx context.Context, tx Tx, files []*model.File) (int, error)
	ListByJob(ctx context.Context, tx Tx, userID, jobID string) ([]*model.File, error)
	// OwnedKeys returns the subset of keys backing a File or WorkflowFile of userID.
	OwnedKeys(ctx context.Context, tx Tx, userID string, keys []string) (map[string]bool, error)
}
