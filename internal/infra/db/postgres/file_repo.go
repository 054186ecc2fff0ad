package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"workflow-dashboard/internal/domain/model"
	"workflow-dashboard/internal/domain/ports/repository"
)

var _ repository.FileRepository = (*fileRepo)(nil)

type fileRepo struct {
	pool *pgxpool.Pool
}

func NewFileRepo(pool *pgxpool.Pool) *fileRepo {
	return &fileRepo{pool: pool}
}

// CreateMany sends all inserts in one batch. Keys that already have a row
// are skipped, so re-collecting a folder does not fail.
func (r *fileRepo) CreateMany(ctx context.Context, tx repository.Tx, files []*model.File) (int, error) {
	if len(files) == 0 {
		return 0, nil
	}
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return 0, err
	}

	const q = `
INSERT INTO files (id, s3_key, name, url, workflow_id, user_id, job_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (s3_key) DO NOTHING;`
	b := &pgx.Batch{}
	for _, f := range files {
		b.Queue(q, f.ID, f.StorageKey, f.Name, f.URL, f.WorkflowID, f.UserID, f.JobID, f.CreatedAt, f.UpdatedAt)
	}

	br := ex.SendBatch(ctx, b)
	inserted := 0
	for i := range files {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return inserted, fmt.Errorf("insert file %d: %w", i, err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return inserted, err
	}
	return inserted, nil
}

func (r *fileRepo) ListByJob(ctx context.Context, tx repository.Tx, userID, jobID string) ([]*model.File, error) {
	const q = `
SELECT id, s3_key, name, url, workflow_id, user_id, job_id, created_at, updated_at
  FROM files WHERE job_id = $1 AND user_id = $2
 ORDER BY created_at, s3_key;`
	rows, err := queryRows(ctx, r.pool, tx, q, jobID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.File
	for rows.Next() {
		var f model.File
		if err := rows.Scan(&f.ID, &f.StorageKey, &f.Name, &f.URL, &f.WorkflowID, &f.UserID, &f.JobID, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (r *fileRepo) OwnedKeys(ctx context.Context, tx repository.Tx, userID string, keys []string) (map[string]bool, error) {
	owned := make(map[string]bool, len(keys))
	if len(keys) == 0 {
		return owned, nil
	}
	const q = `
SELECT s3_key FROM files WHERE user_id = $1 AND s3_key = ANY($2::text[])
UNION
SELECT s3_key FROM workflow_files WHERE user_id = $1 AND s3_key = ANY($2::text[]);`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		owned[k] = true
	}
	return owned, rows.Err()
}
