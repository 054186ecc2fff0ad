package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"workflow-dashboard/internal/domain"
	"workflow-dashboard/internal/domain/model"
	"workflow-dashboard/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *jobRepo {
	return &jobRepo{pool: pool}
}

const jobColumns = `id, workflow_id, user_id, job_type, payload, s3_key, status,
       COALESCE(failure_reason, ''), COALESCE(failure_detail, ''),
       created_at, updated_at, started_at, completed_at`

func jsonArg(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (r *jobRepo) Create(ctx context.Context, tx repository.Tx, j *model.Job) error {
	const q = `
INSERT INTO jobs (id, workflow_id, user_id, job_type, payload, s3_key, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9);`
	_, err := execSQL(ctx, r.pool, tx, q,
		j.ID, j.WorkflowID, j.UserID, string(j.Kind), jsonArg(j.Payload), j.StorageKey, string(j.Status), j.CreatedAt, j.UpdatedAt)
	return err
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	return r.findOne(ctx, tx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1;`, id)
}

func (r *jobRepo) FindByIDForUser(ctx context.Context, tx repository.Tx, userID, id string) (*model.Job, error) {
	return r.findOne(ctx, tx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND user_id = $2;`, id, userID)
}

func (r *jobRepo) findOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Job, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return j, err
}

func jobWhere(f repository.JobFilter) *where {
	w := &where{}
	w.add("user_id = ?", f.UserID)
	if f.WorkflowID != "" {
		w.add("workflow_id = ?", f.WorkflowID)
	}
	if f.Kind != "" {
		w.add("job_type = ?", string(f.Kind))
	}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	if f.Search != "" {
		w.add("(COALESCE(s3_key, '') ILIKE ? OR job_type ILIKE ? OR status ILIKE ?)", likePattern(f.Search))
	}
	return w
}

var jobSortColumns = map[repository.JobSort]string{
	repository.JobSortCreatedAt: "created_at",
	repository.JobSortUpdatedAt: "updated_at",
	repository.JobSortStatus:    "status",
	repository.JobSortJobType:   "job_type",
}

func (r *jobRepo) List(ctx context.Context, tx repository.Tx, f repository.JobFilter) ([]*model.Job, error) {
	w := jobWhere(f)
	col, ok := jobSortColumns[f.SortBy]
	if !ok {
		col = "created_at"
	}
	q := `SELECT ` + jobColumns + ` FROM jobs` + w.sql() +
		fmt.Sprintf(" ORDER BY %s %s, id", col, orderDir(f.Order)) + w.page(f.Limit, f.Offset)

	rows, err := queryRows(ctx, r.pool, tx, q, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *jobRepo) Count(ctx context.Context, tx repository.Tx, f repository.JobFilter) (int, error) {
	w := jobWhere(f)
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM jobs`+w.sql(), w.args...)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}

func (r *jobRepo) SetStorageKeyIfEmpty(ctx context.Context, tx repository.Tx, id, key string) (string, error) {
	const q = `
UPDATE jobs SET s3_key = $2, updated_at = now()
 WHERE id = $1 AND (s3_key IS NULL OR s3_key = '')
RETURNING s3_key;`
	row, err := pickRow(ctx, r.pool, tx, q, id, key)
	if err != nil {
		return "", err
	}
	var got string
	err = row.Scan(&got)
	if err == nil {
		return got, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("set storage key: %w", err)
	}

	// Another run won the race or the key was already set.
	row, err = pickRow(ctx, r.pool, tx, `SELECT COALESCE(s3_key, '') FROM jobs WHERE id = $1;`, id)
	if err != nil {
		return "", err
	}
	if err := row.Scan(&got); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("read storage key: %w", err)
	}
	return got, nil
}

func statusStrings(ss []model.JobStatus) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

func (r *jobRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.JobStatus, reason model.FailureReason, detail string) error {
	from := model.AllowedFrom(status)
	if len(from) == 0 {
		return domain.ErrInvalidTransition
	}
	const q = `
UPDATE jobs SET
  status         = $2,
  failure_reason = CASE WHEN $2 = 'successful' THEN NULL ELSE COALESCE($3, failure_reason) END,
  failure_detail = CASE WHEN $2 = 'successful' THEN NULL ELSE COALESCE($4, failure_detail) END,
  started_at     = CASE WHEN $2 = 'processing' THEN COALESCE(started_at, now()) ELSE started_at END,
  completed_at   = CASE WHEN $2 IN ('successful', 'failed') THEN now() ELSE completed_at END,
  updated_at     = now()
WHERE id = $1 AND status = ANY($5::text[]);`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(status), nullIfEmpty(string(reason)), nullIfEmpty(detail), statusStrings(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.missingOrGuarded(ctx, tx, id)
}

func (r *jobRepo) RecordFailure(ctx context.Context, tx repository.Tx, id string, reason model.FailureReason, detail string) error {
	const q = `
UPDATE jobs SET failure_reason = $2, failure_detail = $3, updated_at = now()
 WHERE id = $1 AND status NOT IN ('successful', 'failed');`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(reason), nullIfEmpty(detail))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.missingOrGuarded(ctx, tx, id)
}

// missingOrGuarded distinguishes an absent row from a status guard miss.
func (r *jobRepo) missingOrGuarded(ctx context.Context, tx repository.Tx, id string) error {
	row, err := pickRow(ctx, r.pool, tx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1);`, id)
	if err != nil {
		return err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return fmt.Errorf("job exists: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrInvalidTransition
}

func (r *jobRepo) FailStale(ctx context.Context, tx repository.Tx, startedBefore time.Time) (int, error) {
	const q = `
UPDATE jobs SET status = 'failed', failure_reason = $2,
       failure_detail = 'processing exceeded the stale threshold',
       completed_at = now(), updated_at = now()
 WHERE status = 'processing' AND started_at < $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, startedBefore, string(model.FailureTimedOut))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *jobRepo) Delete(ctx context.Context, tx repository.Tx, userID, id string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM jobs WHERE id = $1 AND user_id = $2;`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		j              model.Job
		kind, status   string
		reason, detail string
		payload        []byte
	)
	err := row.Scan(&j.ID, &j.WorkflowID, &j.UserID, &kind, &payload, &j.StorageKey, &status,
		&reason, &detail, &j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	j.Kind = model.JobKind(kind)
	j.Status = model.JobStatus(status)
	j.FailureReason = model.FailureReason(reason)
	j.FailureDetail = detail
	if len(payload) > 0 {
		j.Payload = json.RawMessage(payload)
	}
	return &j, nil
}
