package repository

import (
	"context"
	"time"

	"workflow-dashboard/internal/domain/model"
)

// JobSort is the column a job listing is ordered by.
type JobSort string

const (
	JobSortCreatedAt JobSort = "createdAt"
	JobSortUpdatedAt JobSort = "updatedAt"
	JobSortStatus    JobSort = "status"
	JobSortJobType   JobSort = "jobType"
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// JobFilter selects one user's jobs. Zero values mean "no filter".
type JobFilter struct {
	UserID     string
	WorkflowID string
	Kind       model.JobKind
	Status     model.JobStatus
	Search     string
	SortBy     JobSort
	Order      SortOrder
	Offset     int
	Limit      int
}

type JobRepository interface {
	Create(ctx context.Context, tx Tx, job *model.Job) error
	// FindByID loads a job regardless of owner. Only the pipeline uses it.
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
	FindByIDForUser(ctx context.Context, tx Tx, userID, id string) (*model.Job, error)
	List(ctx context.Context, tx Tx, f JobFilter) ([]*model.Job, error)
	Count(ctx context.Context, tx Tx, f JobFilter) (int, error)

	// SetStorageKeyIfEmpty stores key only when the job has none yet and
	// returns the key the job ends up with.
	SetStorageKeyIfEmpty(ctx context.Context, tx Tx, id, key string) (string, error)

	// UpdateStatus moves the job to status when its current status allows it
	// (see model.AllowedFrom), stamping started_at/completed_at. It returns
	// domain.ErrInvalidTransition when the guard rejects the move.
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.JobStatus, reason model.FailureReason, detail string) error

	// RecordFailure stores a failure reason without changing status.
	RecordFailure(ctx context.Context, tx Tx, id string, reason model.FailureReason, detail string) error

	// FailStale fails processing jobs started before the cutoff.
	FailStale(ctx context.Context, tx Tx, startedBefore time.Time) (int, error)

	Delete(ctx context.Context, tx Tx, userID, id string) error
}
