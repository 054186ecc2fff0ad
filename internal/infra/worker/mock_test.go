//go:build !integration

package worker

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"workflow-dashboard/internal/domain"
	"workflow-dashboard/internal/domain/model"
	"workflow-dashboard/internal/domain/ports/adapter"
	"workflow-dashboard/internal/domain/ports/repository"
)

// memJobRepo is an in-memory JobRepository honouring the status guard.
type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
	// keyOverride, when set, is returned by SetStorageKeyIfEmpty instead of
	// the stored key.
	keyOverride *string
	keyWrites   int
}

func newMemJobRepo(jobs ...*model.Job) *memJobRepo {
	r := &memJobRepo{jobs: map[string]*model.Job{}}
	for _, j := range jobs {
		r.jobs[j.ID] = j
	}
	return r
}

func (r *memJobRepo) get(id string) *model.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := *r.jobs[id]
	return &j
}

func (r *memJobRepo) Create(_ context.Context, _ repository.Tx, j *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *j
	r.jobs[j.ID] = &cp
	return nil
}

func (r *memJobRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) FindByIDForUser(ctx context.Context, tx repository.Tx, userID, id string) (*model.Job, error) {
	j, err := r.FindByID(ctx, tx, id)
	if err != nil || j.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return j, nil
}

func (r *memJobRepo) List(context.Context, repository.Tx, repository.JobFilter) ([]*model.Job, error) {
	return nil, nil
}

func (r *memJobRepo) Count(context.Context, repository.Tx, repository.JobFilter) (int, error) {
	return 0, nil
}

func (r *memJobRepo) SetStorageKeyIfEmpty(_ context.Context, _ repository.Tx, id, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.keyOverride != nil {
		return *r.keyOverride, nil
	}
	j, ok := r.jobs[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	if j.Key() == "" {
		r.keyWrites++
		k := key
		j.StorageKey = &k
	}
	return j.Key(), nil
}

func (r *memJobRepo) UpdateStatus(_ context.Context, _ repository.Tx, id string, status model.JobStatus, reason model.FailureReason, detail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if err := j.Transition(status, time.Now().UTC()); err != nil {
		return err
	}
	if status == model.JobStatusSuccessful {
		j.FailureReason, j.FailureDetail = model.FailureNone, ""
	} else if reason != model.FailureNone {
		j.FailureReason, j.FailureDetail = reason, detail
	}
	return nil
}

func (r *memJobRepo) RecordFailure(_ context.Context, _ repository.Tx, id string, reason model.FailureReason, detail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Status.Terminal() {
		return domain.ErrInvalidTransition
	}
	j.FailureReason, j.FailureDetail = reason, detail
	return nil
}

func (r *memJobRepo) FailStale(context.Context, repository.Tx, time.Time) (int, error) { return 0, nil }

func (r *memJobRepo) Delete(_ context.Context, _ repository.Tx, _, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
	return nil
}

type memFileRepo struct {
	mu    sync.Mutex
	files []*model.File
	err   error
}

func (r *memFileRepo) CreateMany(_ context.Context, _ repository.Tx, files []*model.File) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.files = append(r.files, files...)
	return len(files), nil
}

func (r *memFileRepo) ListByJob(_ context.Context, _ repository.Tx, _, jobID string) ([]*model.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.File
	for _, f := range r.files {
		if f.JobID == jobID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *memFileRepo) OwnedKeys(context.Context, repository.Tx, string, []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

// memStorage lists keys by prefix.
type memStorage struct {
	mu      sync.Mutex
	keys    []string
	// blank is appended to every listing, standing in for directory markers
	// some stores report with an empty key.
	blank   []string
	listErr error
	lists   int
}

func (s *memStorage) add(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, keys...)
}

func (s *memStorage) Put(_ context.Context, key string, _ []byte, _ string) (adapter.StoredObject, error) {
	s.add(key)
	return adapter.StoredObject{Key: key, URL: s.ObjectURL(key)}, nil
}

func (s *memStorage) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []string
	for _, k := range s.keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return append(out, s.blank...), nil
}

func (s *memStorage) Delete(context.Context, string) error { return nil }

func (s *memStorage) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://signed/" + key, nil
}

func (s *memStorage) ObjectURL(key string) string {
	return "https://outputs.s3.eu-west-1.amazonaws.com/" + key
}

type fakeProcessor struct {
	mu       sync.Mutex
	requests []adapter.ProcessRequest
	err      error
	onInvoke func(req adapter.ProcessRequest)
}

func (f *fakeProcessor) Invoke(_ context.Context, req adapter.ProcessRequest) error {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.onInvoke != nil {
		f.onInvoke(req)
	}
	return nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	finished []model.Job
}

func (n *recordingNotifier) JobFinished(_ context.Context, job *model.Job) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finished = append(n.finished, *job)
	return nil
}
