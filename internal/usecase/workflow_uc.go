package usecase

import (
	"context"
	"errors"
	"strings"

	"workflow-dashboard/internal/domain"
	"workflow-dashboard/internal/domain/model"
	"workflow-dashboard/internal/domain/ports/repository"
	"workflow-dashboard/internal/infra/logging"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ WorkflowUseCase = (*workflowUC)(nil)

type WorkflowQuery struct {
	Search string
	SortBy repository.WorkflowSort
	Order  repository.SortOrder
	Page   int
	Limit  int
}

type WorkflowPage struct {
	Workflows  []*model.Workflow
	Total      int
	Page       int
	Limit      int
	TotalPages int
}

type WorkflowUseCase interface {
	List(ctx context.Context, userID string, q WorkflowQuery) (*WorkflowPage, error)
	Create(ctx context.Context, userID, title, description, note string) (*model.Workflow, error)
	Get(ctx context.Context, userID, id string) (*model.Workflow, error)
	UpdateStatus(ctx context.Context, userID string, ids []string, status model.WorkflowStatus) (int, error)
}

type workflowUC struct {
	workflows repository.WorkflowRepository
	tm        repository.TransactionManager
	log       *zerolog.Logger
}

func NewWorkflowUseCase(workflows repository.WorkflowRepository, tm repository.TransactionManager, logger *zerolog.Logger) *workflowUC {
	l := logger.With().Str("component", "WorkflowUC").Logger()
	return &workflowUC{workflows: workflows, tm: tm, log: &l}
}

func (u *workflowUC) List(ctx context.Context, userID string, q WorkflowQuery) (*WorkflowPage, error) {
	defer logging.TraceDuration(u.log, "WorkflowUC.List")()

	page, limit, offset := pageBounds(q.Page, q.Limit)
	f := repository.WorkflowFilter{
		UserID: userID,
		Search: strings.TrimSpace(q.Search),
		SortBy: q.SortBy,
		Order:  q.Order,
		Offset: offset,
		Limit:  limit,
	}
	out := &WorkflowPage{Page: page, Limit: limit}
	err := u.tm.WithTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(ctx context.Context, tx repository.Tx) error {
		total, err := u.workflows.Count(ctx, tx, f)
		if err != nil {
			return err
		}
		items, err := u.workflows.List(ctx, tx, f)
		if err != nil {
			return err
		}
		out.Total, out.Workflows = total, items
		return nil
	})
	if err != nil {
		return nil, domain.Internal("could not list workflows", err)
	}
	out.TotalPages = totalPages(out.Total, limit)
	return out, nil
}

func (u *workflowUC) Create(ctx context.Context, userID, title, description, note string) (*model.Workflow, error) {
	w, err := model.NewWorkflow(userID, title, strings.TrimSpace(description), strings.TrimSpace(note))
	if err != nil {
		return nil, domain.BadRequest("title is required")
	}
	if err := u.workflows.Create(ctx, repository.NoTX, w); err != nil {
		return nil, domain.Internal("could not create workflow", err)
	}
	logging.With(logging.WithWorkflowID(ctx, w.ID), u.log).Info().Msg("workflow created")
	return w, nil
}

func (u *workflowUC) Get(ctx context.Context, userID, id string) (*model.Workflow, error) {
	w, err := u.workflows.FindByIDForUser(ctx, repository.NoTX, userID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFound("workflow not found")
		}
		return nil, domain.Internal("could not load workflow", err)
	}
	return w, nil
}

// UpdateStatus sets status on the caller's workflows among ids and returns
// how many were changed. Foreign ids are ignored.
func (u *workflowUC) UpdateStatus(ctx context.Context, userID string, ids []string, status model.WorkflowStatus) (int, error) {
	if !status.Valid() {
		return 0, domain.BadRequest("invalid workflow status")
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := u.workflows.UpdateStatusMany(ctx, repository.NoTX, userID, ids, status)
	if err != nil {
		return 0, domain.Internal("could not update workflows", err)
	}
	return n, nil
}
