package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"workflow-dashboard/internal/domain"
	"workflow-dashboard/internal/domain/model"
	"workflow-dashboard/internal/domain/ports/repository"
)

var _ repository.WorkflowRepository = (*workflowRepo)(nil)

type workflowRepo struct {
	pool *pgxpool.Pool
}

func NewWorkflowRepo(pool *pgxpool.Pool) *workflowRepo {
	return &workflowRepo{pool: pool}
}

const workflowColumns = `id, user_id, title, description, status, notes, created_at, updated_at`

func (r *workflowRepo) Create(ctx context.Context, tx repository.Tx, w *model.Workflow) error {
	var notes interface{}
	if w.Notes != nil {
		b, err := json.Marshal(w.Notes)
		if err != nil {
			return fmt.Errorf("encode notes: %w", err)
		}
		notes = string(b)
	}
	const q = `
INSERT INTO workflows (id, user_id, title, description, status, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8);`
	_, err := execSQL(ctx, r.pool, tx, q, w.ID, w.UserID, w.Title, w.Description, string(w.Status), notes, w.CreatedAt, w.UpdatedAt)
	return err
}

func (r *workflowRepo) FindByIDForUser(ctx context.Context, tx repository.Tx, userID, id string) (*model.Workflow, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT `+workflowColumns+` FROM workflows WHERE id = $1 AND user_id = $2;`, id, userID)
	if err != nil {
		return nil, err
	}
	w, err := scanWorkflow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return w, err
}

func (r *workflowRepo) Exists(ctx context.Context, tx repository.Tx, userID, id string) (bool, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT EXISTS (SELECT 1 FROM workflows WHERE id = $1 AND user_id = $2);`, id, userID)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, fmt.Errorf("workflow exists: %w", err)
	}
	return ok, nil
}

func workflowWhere(f repository.WorkflowFilter) *where {
	w := &where{}
	w.add("user_id = ?", f.UserID)
	if f.Search != "" {
		w.add("(title ILIKE ? OR COALESCE(description, '') ILIKE ? OR status ILIKE ?)", likePattern(f.Search))
	}
	return w
}

var workflowSortColumns = map[repository.WorkflowSort]string{
	repository.WorkflowSortTitle:     "title",
	repository.WorkflowSortCreatedAt: "created_at",
	repository.WorkflowSortUpdatedAt: "updated_at",
	repository.WorkflowSortStatus:    "status",
}

func (r *workflowRepo) List(ctx context.Context, tx repository.Tx, f repository.WorkflowFilter) ([]*model.Workflow, error) {
	w := workflowWhere(f)
	col, ok := workflowSortColumns[f.SortBy]
	if !ok {
		col = "created_at"
	}
	q := `SELECT ` + workflowColumns + ` FROM workflows` + w.sql() +
		fmt.Sprintf(" ORDER BY %s %s, id", col, orderDir(f.Order)) + w.page(f.Limit, f.Offset)

	rows, err := queryRows(ctx, r.pool, tx, q, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, rows.Err()
}

func (r *workflowRepo) Count(ctx context.Context, tx repository.Tx, f repository.WorkflowFilter) (int, error) {
	w := workflowWhere(f)
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM workflows`+w.sql(), w.args...)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count workflows: %w", err)
	}
	return n, nil
}

func (r *workflowRepo) UpdateStatusMany(ctx context.Context, tx repository.Tx, userID string, ids []string, status model.WorkflowStatus) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const q = `
UPDATE workflows SET status = $1, updated_at = now()
 WHERE user_id = $2 AND id = ANY($3::uuid[]);`
	tag, err := execSQL(ctx, r.pool, tx, q, string(status), userID, ids)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanWorkflow(row pgx.Row) (*model.Workflow, error) {
	var (
		w      model.Workflow
		status string
		notes  []byte
	)
	if err := row.Scan(&w.ID, &w.UserID, &w.Title, &w.Description, &status, &notes, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.Status = model.WorkflowStatus(status)
	if len(notes) > 0 && string(notes) != "null" {
		var n model.WorkflowNotes
		if err := json.Unmarshal(notes, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		w.Notes = &n
	}
	return &w, nil
}
