//go:build !integration

package usecase_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"workflow-dashboard/internal/domain"
	"workflow-dashboard/internal/domain/model"
	"workflow-dashboard/internal/domain/ports/adapter"
	"workflow-dashboard/internal/domain/ports/repository"
)

// =============================
// Repositories
// =============================

// ---- In-memory UserRepository ----

type memUserRepo struct {
	mu   sync.Mutex
	byID map[string]*model.User
}

func newMemUserRepo() *memUserRepo { return &memUserRepo{byID: map[string]*model.User{}} }

func (m *memUserRepo) Save(_ context.Context, _ repository.Tx, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memUserRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserRepo) FindByEmail(_ context.Context, _ repository.Tx, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// ---- In-memory WorkflowRepository ----

type memWorkflowRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Workflow
}

func newMemWorkflowRepo(ws ...*model.Workflow) *memWorkflowRepo {
	m := &memWorkflowRepo{byID: map[string]*model.Workflow{}}
	for _, w := range ws {
		m.byID[w.ID] = w
	}
	return m
}

func (m *memWorkflowRepo) Create(_ context.Context, _ repository.Tx, w *model.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *w
	m.byID[w.ID] = &cp
	return nil
}

func (m *memWorkflowRepo) FindByIDForUser(_ context.Context, _ repository.Tx, userID, id string) (*model.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.byID[id]
	if !ok || w.UserID != userID {
		return nil, domain.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *memWorkflowRepo) Exists(ctx context.Context, tx repository.Tx, userID, id string) (bool, error) {
	_, err := m.FindByIDForUser(ctx, tx, userID, id)
	return err == nil, nil
}

func (m *memWorkflowRepo) filter(f repository.WorkflowFilter) []*model.Workflow {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Workflow
	for _, w := range m.byID {
		if w.UserID != f.UserID {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(w.Title), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memWorkflowRepo) List(_ context.Context, _ repository.Tx, f repository.WorkflowFilter) ([]*model.Workflow, error) {
	return window(m.filter(f), f.Offset, f.Limit), nil
}

func (m *memWorkflowRepo) Count(_ context.Context, _ repository.Tx, f repository.WorkflowFilter) (int, error) {
	return len(m.filter(f)), nil
}

func (m *memWorkflowRepo) UpdateStatusMany(_ context.Context, _ repository.Tx, userID string, ids []string, status model.WorkflowStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range ids {
		if w, ok := m.byID[id]; ok && w.UserID == userID {
			w.Status = status
			n++
		}
	}
	return n, nil
}

// ---- In-memory JobRepository ----

type memJobRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Job
}

func newMemJobRepo() *memJobRepo { return &memJobRepo{byID: map[string]*model.Job{}} }

func (m *memJobRepo) put(j *model.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[j.ID] = j
}

func (m *memJobRepo) Create(_ context.Context, _ repository.Tx, j *model.Job) error {
	m.put(j)
	return nil
}

func (m *memJobRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) FindByIDForUser(ctx context.Context, tx repository.Tx, userID, id string) (*model.Job, error) {
	j, err := m.FindByID(ctx, tx, id)
	if err != nil || j.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return j, nil
}

func (m *memJobRepo) filter(f repository.JobFilter) []*model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Job
	for _, j := range m.byID {
		if j.UserID != f.UserID {
			continue
		}
		if f.WorkflowID != "" && j.WorkflowID != f.WorkflowID {
			continue
		}
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.Kind != "" && j.Kind != f.Kind {
			continue
		}
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

func (m *memJobRepo) List(_ context.Context, _ repository.Tx, f repository.JobFilter) ([]*model.Job, error) {
	return window(m.filter(f), f.Offset, f.Limit), nil
}

func (m *memJobRepo) Count(_ context.Context, _ repository.Tx, f repository.JobFilter) (int, error) {
	return len(m.filter(f)), nil
}

func (m *memJobRepo) SetStorageKeyIfEmpty(context.Context, repository.Tx, string, string) (string, error) {
	return "", nil
}

func (m *memJobRepo) UpdateStatus(context.Context, repository.Tx, string, model.JobStatus, model.FailureReason, string) error {
	return nil
}

func (m *memJobRepo) RecordFailure(context.Context, repository.Tx, string, model.FailureReason, string) error {
	return nil
}

func (m *memJobRepo) FailStale(context.Context, repository.Tx, time.Time) (int, error) { return 0, nil }

func (m *memJobRepo) Delete(_ context.Context, _ repository.Tx, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.byID[id]
	if !ok || j.UserID != userID {
		return domain.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

// ---- In-memory FileRepository ----

type memFileRepo struct {
	mu    sync.Mutex
	files []*model.File
	// extraOwned marks keys owned through a WorkflowFile.
	extraOwned map[string]string
}

func (m *memFileRepo) CreateMany(_ context.Context, _ repository.Tx, files []*model.File) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = append(m.files, files...)
	return len(files), nil
}

func (m *memFileRepo) ListByJob(_ context.Context, _ repository.Tx, userID, jobID string) ([]*model.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.File
	for _, f := range m.files {
		if f.JobID == jobID && f.UserID == userID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memFileRepo) OwnedKeys(_ context.Context, _ repository.Tx, userID string, keys []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]bool{}
	for _, k := range keys {
		for _, f := range m.files {
			if f.StorageKey == k && f.UserID == userID {
				out[k] = true
			}
		}
		if m.extraOwned[k] == userID {
			out[k] = true
		}
	}
	return out, nil
}

// ---- In-memory WorkflowFileRepository ----

type memWorkflowFileRepo struct {
	mu        sync.Mutex
	byID      map[string]*model.WorkflowFile
	order     []string
	createErr error
}

func newMemWorkflowFileRepo() *memWorkflowFileRepo {
	return &memWorkflowFileRepo{byID: map[string]*model.WorkflowFile{}}
}

func (m *memWorkflowFileRepo) Create(_ context.Context, _ repository.Tx, f *model.WorkflowFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *f
	m.byID[f.ID] = &cp
	m.order = append(m.order, f.ID)
	return nil
}

func (m *memWorkflowFileRepo) Update(_ context.Context, _ repository.Tx, f *model.WorkflowFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[f.ID]
	if !ok || cur.UserID != f.UserID {
		return domain.ErrNotFound
	}
	cp := *f
	m.byID[f.ID] = &cp
	return nil
}

func (m *memWorkflowFileRepo) FindByID(_ context.Context, _ repository.Tx, userID, workflowID, id string) (*model.WorkflowFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.byID[id]
	if !ok || f.UserID != userID || (workflowID != "" && f.WorkflowID != workflowID) {
		return nil, domain.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

// List returns newest first (reverse insertion order) after the cursor.
func (m *memWorkflowFileRepo) List(_ context.Context, _ repository.Tx, f repository.WorkflowFileFilter) ([]*model.WorkflowFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.WorkflowFile
	passed := f.Cursor == ""
	for i := len(m.order) - 1; i >= 0; i-- {
		wf, ok := m.byID[m.order[i]]
		if !ok {
			continue
		}
		if !passed {
			passed = wf.ID == f.Cursor
			continue
		}
		if wf.UserID != f.UserID || wf.WorkflowID != f.WorkflowID {
			continue
		}
		out = append(out, wf)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *memWorkflowFileRepo) Delete(_ context.Context, _ repository.Tx, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.byID[id]
	if !ok || f.UserID != userID {
		return domain.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func window[T any](in []T, offset, limit int) []T {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

// =============================
// Infra helpers for tests
// =============================

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
	calls      int
	lastOpts   pgx.TxOptions
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.calls++
	m.lastOpts = txOpt
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- Mock ObjectStorage ----

type MockStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string

	presignTTL time.Duration

	PutErr    error
	DeleteErr map[string]error
}

var _ adapter.ObjectStorage = (*MockStorage)(nil)

func NewMockStorage() *MockStorage { return &MockStorage{objects: map[string][]byte{}} }

func (m *MockStorage) Put(_ context.Context, key string, body []byte, _ string) (adapter.StoredObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return adapter.StoredObject{}, m.PutErr
	}
	m.objects[key] = body
	return adapter.StoredObject{Key: key, URL: m.ObjectURL(key)}, nil
}

func (m *MockStorage) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MockStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.DeleteErr[key]; err != nil {
		return err
	}
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *MockStorage) PresignGet(_ context.Context, key string, expiry time.Duration) (string, error) {
	m.mu.Lock()
	m.presignTTL = expiry
	m.mu.Unlock()
	return "https://signed.example/" + key, nil
}

func (m *MockStorage) ObjectURL(key string) string { return "https://bucket.s3.test/" + key }

func (m *MockStorage) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// ---- Mock JobDispatcher ----

type MockDispatcher struct {
	mu    sync.Mutex
	Calls [][2]string
	Err   error
}

func (m *MockDispatcher) Dispatch(_ context.Context, jobID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, [2]string{jobID, userID})
	return m.Err
}

// ---- Mock RateLimiter ----

type MockLimiter struct {
	Allowed bool
	Err     error
	Keys    []string
}

func (m *MockLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	m.Keys = append(m.Keys, key)
	return m.Allowed, m.Err
}
