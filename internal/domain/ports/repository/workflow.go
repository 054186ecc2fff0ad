package repository

import (
	"context"

	"workflow-dashboard/internal/domain/model"
)

type WorkflowSort string

const (
	WorkflowSortTitle     WorkflowSort = "title"
	WorkflowSortCreatedAt WorkflowSort = "createdAt"
	WorkflowSortUpdatedAt WorkflowSort = "updatedAt"
	WorkflowSortStatus    WorkflowSort = "status"
)

type WorkflowFilter struct {
	UserID string
	Search string
	SortBy WorkflowSort
	Order  SortOrder
	Offset int
	Limit  int
}

type WorkflowRepository interface {
	Create(ctx context.Context, tx Tx, w *model.Workflow) error
	FindByIDForUser(ctx context.Context, tx Tx, userID, id string) (*model.Workflow, error)
	// Exists reports whether userID owns workflow id.
	Exists(ctx context.Context, tx Tx, userID, id string) (bool, error)
	List(ctx context.Context, tx Tx, f WorkflowFilter) ([]*model.Workflow, error)
	Count(ctx context.Context, tx Tx, f WorkflowFilter) (int, error)
	UpdateStatusMany(ctx context.Context, tx Tx, userID string, ids []string, status model.WorkflowStatus) (int, error)
}
