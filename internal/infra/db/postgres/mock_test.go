//go:build !integration

package postgres

import (
	"context"
	"time"

	"workflow-dashboard/internal/domain/model"
	"workflow-dashboard/internal/domain/ports/repository"
	red "workflow-dashboard/internal/infra/redis"
)

// mockInnerWorkflowRepo mocks the database repository that the workflow decorator wraps.
type mockInnerWorkflowRepo struct {
	ExistsFunc func(ctx context.Context, tx repository.Tx, userID, id string) (bool, error)
	calls      int
}

func (m *mockInnerWorkflowRepo) Create(ctx context.Context, tx repository.Tx, w *model.Workflow) error {
	return nil
}
func (m *mockInnerWorkflowRepo) FindByIDForUser(ctx context.Context, tx repository.Tx, userID, id string) (*model.Workflow, error) {
	return nil, nil
}
func (m *mockInnerWorkflowRepo) Exists(ctx context.Context, tx repository.Tx, userID, id string) (bool, error) {
	m.calls++
	return m.ExistsFunc(ctx, tx, userID, id)
}
func (m *mockInnerWorkflowRepo) List(ctx context.Context, tx repository.Tx, f repository.WorkflowFilter) ([]*model.Workflow, error) {
	return nil, nil
}
func (m *mockInnerWorkflowRepo) Count(ctx context.Context, tx repository.Tx, f repository.WorkflowFilter) (int, error) {
	return 0, nil
}
func (m *mockInnerWorkflowRepo) UpdateStatusMany(ctx context.Context, tx repository.Tx, userID string, ids []string, status model.WorkflowStatus) (int, error) {
	return 0, nil
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error { return nil }
func (m *mockRedisClient) Ping(ctx context.Context) error                { return nil }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return 0, nil
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (m *mockRedisClient) RPush(ctx context.Context, key string, values ...interface{}) error {
	return nil
}
func (m *mockRedisClient) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return nil, nil
}
func (m *mockRedisClient) Close() error { return nil }
