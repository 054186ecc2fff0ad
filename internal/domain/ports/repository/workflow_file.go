package repository

import (
	"context"

	"workflow-dashboard/internal/domain/model"
)

// WorkflowFileFilter pages a workflow's files newest first. Cursor is the id
// of the last row of the previous page; Limit is the number of rows to fetch.
type WorkflowFileFilter struct {
	UserID     string
	WorkflowID string
	Cursor     string
	Search     string
	Limit      int
}

type WorkflowFileRepository interface {
	Create(ctx context.Context, tx Tx, f *model.WorkflowFile) error
	Update(ctx context.Context, tx Tx, f *model.WorkflowFile) error
	FindByID(ctx context.Context, tx Tx, userID, workflowID, id string) (*model.WorkflowFile, error)
	List(ctx context.Context, tx Tx, f WorkflowFileFilter) ([]*model.WorkflowFile, error)
	Delete(ctx context.Context, tx Tx, userID, id string) error
}
