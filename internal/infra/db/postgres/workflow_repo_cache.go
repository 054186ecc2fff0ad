package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"workflow-dashboard/internal/domain/model"
	"workflow-dashboard/internal/domain/ports/repository"
	"workflow-dashboard/internal/infra/metrics"
	red "workflow-dashboard/internal/infra/redis"
)

var _ repository.WorkflowRepository = (*workflowRepoCacheDecorator)(nil)

// workflowRepoCacheDecorator caches positive ownership checks. Workflows are
// never deleted or re-owned through the API, so a cached "yes" cannot go stale.
type workflowRepoCacheDecorator struct {
	inner repository.WorkflowRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewWorkflowRepoCacheDecorator(inner repository.WorkflowRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.WorkflowRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &workflowRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: logger}
}

func workflowAccessKey(userID, id string) string {
	return fmt.Sprintf("workflow:access:%s:%s", userID, id)
}

func (d *workflowRepoCacheDecorator) Exists(ctx context.Context, tx repository.Tx, userID, id string) (bool, error) {
	key := workflowAccessKey(userID, id)
	val, err := d.cache.Get(ctx, key)
	if err == nil && val == "1" {
		metrics.IncCacheRequest("workflow_access", "hit")
		return true, nil
	}
	if err != nil && !red.IsNil(err) {
		d.log.Warn().Err(err).Str("key", key).Msg("workflow access cache read failed")
	}

	metrics.IncCacheRequest("workflow_access", "miss")
	ok, err := d.inner.Exists(ctx, tx, userID, id)
	if err != nil {
		return false, err
	}
	if ok {
		if err := d.cache.Set(ctx, key, "1", d.ttl); err != nil {
			d.log.Warn().Err(err).Str("key", key).Msg("workflow access cache write failed")
		}
	}
	return ok, nil
}

func (d *workflowRepoCacheDecorator) Create(ctx context.Context, tx repository.Tx, w *model.Workflow) error {
	return d.inner.Create(ctx, tx, w)
}

func (d *workflowRepoCacheDecorator) FindByIDForUser(ctx context.Context, tx repository.Tx, userID, id string) (*model.Workflow, error) {
	return d.inner.FindByIDForUser(ctx, tx, userID, id)
}

func (d *workflowRepoCacheDecorator) List(ctx context.Context, tx repository.Tx, f repository.WorkflowFilter) ([]*model.Workflow, error) {
	return d.inner.List(ctx, tx, f)
}

func (d *workflowRepoCacheDecorator) Count(ctx context.Context, tx repository.Tx, f repository.WorkflowFilter) (int, error) {
	return d.inner.Count(ctx, tx, f)
}

func (d *workflowRepoCacheDecorator) UpdateStatusMany(ctx context.Context, tx repository.Tx, userID string, ids []string, status model.WorkflowStatus) (int, error) {
	return d.inner.UpdateStatusMany(ctx, tx, userID, ids, status)
}
