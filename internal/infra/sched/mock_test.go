//go:build !integration

package sched

import (
	"context"
	"time"

	"workflow-dashboard/internal/domain"
	"workflow-dashboard/internal/domain/model"
	"workflow-dashboard/internal/domain/ports/repository"
)

// mockJobRepo implements repository.JobRepository; only FailStale is used.
type mockJobRepo struct {
	FailStaleFunc func(ctx context.Context, tx repository.Tx, startedBefore time.Time) (int, error)
}

func (m *mockJobRepo) Create(context.Context, repository.Tx, *model.Job) error { return nil }
func (m *mockJobRepo) FindByID(context.Context, repository.Tx, string) (*model.Job, error) {
	return nil, domain.ErrNotFound
}
func (m *mockJobRepo) FindByIDForUser(context.Context, repository.Tx, string, string) (*model.Job, error) {
	return nil, domain.ErrNotFound
}
func (m *mockJobRepo) List(context.Context, repository.Tx, repository.JobFilter) ([]*model.Job, error) {
	return nil, nil
}
func (m *mockJobRepo) Count(context.Context, repository.Tx, repository.JobFilter) (int, error) {
	return 0, nil
}
func (m *mockJobRepo) SetStorageKeyIfEmpty(context.Context, repository.Tx, string, string) (string, error) {
	return "", nil
}
func (m *mockJobRepo) UpdateStatus(context.Context, repository.Tx, string, model.JobStatus, model.FailureReason, string) error {
	return nil
}
func (m *mockJobRepo) RecordFailure(context.Context, repository.Tx, string, model.FailureReason, string) error {
	return nil
}
func (m *mockJobRepo) FailStale(ctx context.Context, tx repository.Tx, startedBefore time.Time) (int, error) {
	if m.FailStaleFunc != nil {
		return m.FailStaleFunc(ctx, tx, startedBefore)
	}
	return 0, nil
}
func (m *mockJobRepo) Delete(context.Context, repository.Tx, string, string) error { return nil }

type mockLocker struct {
	held bool
}

func (m *mockLocker) TryLock(context.Context, string, time.Duration) (string, error) {
	if m.held {
		return "", domain.ErrLockHeld
	}
	return "t", nil
}

func (m *mockLocker) Unlock(context.Context, string, string) error { return nil }
