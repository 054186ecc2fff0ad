package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"workflow-dashboard/internal/domain"
	"workflow-dashboard/internal/domain/model"
	"workflow-dashboard/internal/domain/ports/repository"
)

var _ repository.WorkflowFileRepository = (*workflowFileRepo)(nil)

type workflowFileRepo struct {
	pool *pgxpool.Pool
}

func NewWorkflowFileRepo(pool *pgxpool.Pool) *workflowFileRepo {
	return &workflowFileRepo{pool: pool}
}

const workflowFileColumns = `id, workflow_id, user_id, s3_key, description, display_name, version, created_at, updated_at`

func (r *workflowFileRepo) Create(ctx context.Context, tx repository.Tx, f *model.WorkflowFile) error {
	const q = `
INSERT INTO workflow_files (id, workflow_id, user_id, s3_key, description, display_name, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`
	_, err := execSQL(ctx, r.pool, tx, q,
		f.ID, f.WorkflowID, f.UserID, f.StorageKey, f.Description, f.DisplayName, f.Version, f.CreatedAt, f.UpdatedAt)
	return err
}

func (r *workflowFileRepo) Update(ctx context.Context, tx repository.Tx, f *model.WorkflowFile) error {
	const q = `
UPDATE workflow_files
   SET s3_key = $3, description = $4, display_name = $5, version = $6, updated_at = $7
 WHERE id = $1 AND user_id = $2;`
	tag, err := execSQL(ctx, r.pool, tx, q, f.ID, f.UserID, f.StorageKey, f.Description, f.DisplayName, f.Version, f.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *workflowFileRepo) FindByID(ctx context.Context, tx repository.Tx, userID, workflowID, id string) (*model.WorkflowFile, error) {
	q := `SELECT ` + workflowFileColumns + ` FROM workflow_files WHERE id = $1 AND user_id = $2`
	args := []interface{}{id, userID}
	if workflowID != "" {
		q += ` AND workflow_id = $3`
		args = append(args, workflowID)
	}
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	f, err := scanWorkflowFile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return f, err
}

// List returns newest-first rows strictly after the cursor row.
func (r *workflowFileRepo) List(ctx context.Context, tx repository.Tx, f repository.WorkflowFileFilter) ([]*model.WorkflowFile, error) {
	w := &where{}
	w.add("user_id = ?", f.UserID)
	w.add("workflow_id = ?", f.WorkflowID)
	if f.Search != "" {
		w.add("(COALESCE(display_name, '') ILIKE ? OR COALESCE(description, '') ILIKE ? OR s3_key ILIKE ?)", likePattern(f.Search))
	}
	if f.Cursor != "" {
		w.add("(created_at, id) < (SELECT c.created_at, c.id FROM workflow_files c WHERE c.id = ?)", f.Cursor)
	}
	q := `SELECT ` + workflowFileColumns + ` FROM workflow_files` + w.sql() +
		` ORDER BY created_at DESC, id DESC` + w.page(f.Limit, 0)

	rows, err := queryRows(ctx, r.pool, tx, q, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.WorkflowFile
	for rows.Next() {
		wf, err := scanWorkflowFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, rows.Err()
}

func (r *workflowFileRepo) Delete(ctx context.Context, tx repository.Tx, userID, id string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM workflow_files WHERE id = $1 AND user_id = $2;`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanWorkflowFile(row pgx.Row) (*model.WorkflowFile, error) {
	var f model.WorkflowFile
	if err := row.Scan(&f.ID, &f.WorkflowID, &f.UserID, &f.StorageKey, &f.Description, &f.DisplayName, &f.Version, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}
