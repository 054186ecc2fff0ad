package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"workflow-dashboard/internal/domain"
	"workflow-dashboard/internal/domain/model"
	"workflow-dashboard/internal/domain/ports/adapter"
	"workflow-dashboard/internal/domain/ports/repository"
	"workflow-dashboard/internal/infra/logging"
	red "workflow-dashboard/internal/infra/redis"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Compile-time check
var _ JobUseCase = (*jobUC)(nil)

const storageFanOut = 8

// RateLimiter admits at most limit actions per window for a key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type JobQuery struct {
	WorkflowID string
	Kind       model.JobKind
	Status     model.JobStatus
	Search     string
	SortBy     repository.JobSort
	Order      repository.SortOrder
	Page       int
	Limit      int
}

type JobPage struct {
	Jobs       []*model.Job
	Total      int
	Page       int
	Limit      int
	TotalPages int
}

type CreateJobInput struct {
	WorkflowID string
	Kind       model.JobKind
	StorageKey string
	Payload    json.RawMessage
}

type JobDetail struct {
	Job   *model.Job
	Files []*model.File
}

type DownloadURL struct {
	Key string
	URL string
}

type JobUseCase interface {
	List(ctx context.Context, userID string, q JobQuery) (*JobPage, error)
	Create(ctx context.Context, userID string, in CreateJobInput) (*model.Job, error)
	Get(ctx context.Context, userID, id string) (*JobDetail, error)
	// Process sends the trigger event for a queued job; the run itself
	// happens on a worker.
	Process(ctx context.Context, userID, id string) error
	Delete(ctx context.Context, userID, id string) error
	DownloadURLs(ctx context.Context, userID string, keys []string) ([]DownloadURL, error)
}

type JobUseCaseConfig struct {
	PresignTTL       time.Duration
	ProcessPerMinute int
}

type jobUC struct {
	jobs       repository.JobRepository
	files      repository.FileRepository
	workflows  repository.WorkflowRepository
	tm         repository.TransactionManager
	storage    adapter.ObjectStorage
	dispatcher adapter.JobDispatcher
	limiter    RateLimiter
	cfg        JobUseCaseConfig
	log        *zerolog.Logger
}

func NewJobUseCase(
	jobs repository.JobRepository,
	files repository.FileRepository,
	workflows repository.WorkflowRepository,
	tm repository.TransactionManager,
	storage adapter.ObjectStorage,
	dispatcher adapter.JobDispatcher,
	limiter RateLimiter,
	cfg JobUseCaseConfig,
	logger *zerolog.Logger,
) *jobUC {
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = adapter.DefaultPresignExpiry
	}
	l := logger.With().Str("component", "JobUC").Logger()
	return &jobUC{
		jobs:       jobs,
		files:      files,
		workflows:  workflows,
		tm:         tm,
		storage:    storage,
		dispatcher: dispatcher,
		limiter:    limiter,
		cfg:        cfg,
		log:        &l,
	}
}

func (u *jobUC) List(ctx context.Context, userID string, q JobQuery) (*JobPage, error) {
	defer logging.TraceDuration(u.log, "JobUC.List")()

	page, limit, offset := pageBounds(q.Page, q.Limit)
	f := repository.JobFilter{
		UserID:     userID,
		WorkflowID: q.WorkflowID,
		Kind:       q.Kind,
		Status:     q.Status,
		Search:     strings.TrimSpace(q.Search),
		SortBy:     q.SortBy,
		Order:      q.Order,
		Offset:     offset,
		Limit:      limit,
	}

	out := &JobPage{Page: page, Limit: limit}
	err := u.tm.WithTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(ctx context.Context, tx repository.Tx) error {
		total, err := u.jobs.Count(ctx, tx, f)
		if err != nil {
			return err
		}
		jobs, err := u.jobs.List(ctx, tx, f)
		if err != nil {
			return err
		}
		out.Total, out.Jobs = total, jobs
		return nil
	})
	if err != nil {
		return nil, domain.Internal("could not list jobs", err)
	}
	out.TotalPages = totalPages(out.Total, limit)
	return out, nil
}

func (u *jobUC) Create(ctx context.Context, userID string, in CreateJobInput) (*model.Job, error) {
	defer logging.TraceDuration(u.log, "JobUC.Create")()

	if err := u.assertWorkflow(ctx, userID, in.WorkflowID); err != nil {
		return nil, err
	}
	job, err := model.NewJob(in.WorkflowID, userID, in.Kind, in.Payload, "")
	if err != nil {
		return nil, domain.BadRequest("invalid job")
	}
	if in.StorageKey != "" {
		key, err := jobFolderKey(job.ID, in.StorageKey)
		if err != nil {
			return nil, err
		}
		job.StorageKey = &key
	}
	if err := u.jobs.Create(ctx, repository.NoTX, job); err != nil {
		return nil, domain.Internal("could not create job", err)
	}
	logging.With(logging.WithJobID(ctx, job.ID), u.log).Info().Str("job_type", string(job.Kind)).Msg("job created")
	return job, nil
}

func (u *jobUC) Get(ctx context.Context, userID, id string) (*JobDetail, error) {
	job, err := u.findJob(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	files, err := u.files.ListByJob(ctx, repository.NoTX, userID, id)
	if err != nil {
		return nil, domain.Internal("could not load job files", err)
	}
	return &JobDetail{Job: job, Files: files}, nil
}

func (u *jobUC) Process(ctx context.Context, userID, id string) error {
	defer logging.TraceDuration(u.log, "JobUC.Process")()

	if u.limiter != nil && u.cfg.ProcessPerMinute > 0 {
		ok, err := u.limiter.Allow(ctx, red.UserActionKey(userID, "process-job"), u.cfg.ProcessPerMinute, time.Minute)
		if err != nil {
			// the limiter is advisory; a redis outage must not block processing
			u.log.Warn().Err(err).Msg("rate limiter unavailable")
		} else if !ok {
			return domain.TooManyRequests("too many processing requests, try again later")
		}
	}

	job, err := u.findJob(ctx, userID, id)
	if err != nil {
		return err
	}
	if job.Status != model.JobStatusQueued {
		return domain.Conflict(fmt.Sprintf("job is %s, only queued jobs can be processed", job.Status))
	}
	if err := u.dispatcher.Dispatch(ctx, job.ID, userID); err != nil {
		return domain.Internal("could not start job processing", err)
	}
	logging.With(logging.WithJobID(ctx, job.ID), u.log).Info().Msg("job processing triggered")
	return nil
}

// Delete removes the job's output objects, then the record. When any object
// cannot be removed the record is kept so the delete can be retried.
func (u *jobUC) Delete(ctx context.Context, userID, id string) error {
	defer logging.TraceDuration(u.log, "JobUC.Delete")()

	if _, err := u.findJob(ctx, userID, id); err != nil {
		return err
	}
	files, err := u.files.ListByJob(ctx, repository.NoTX, userID, id)
	if err != nil {
		return domain.Internal("could not load job files", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(storageFanOut)
	for _, f := range files {
		key := f.StorageKey
		g.Go(func() error {
			if err := u.storage.Delete(gctx, key); err != nil {
				return fmt.Errorf("delete object %s: %w", key, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		u.log.Error().Err(err).Str("job_id", id).Msg("job objects not deleted")
		return domain.Internal("failed to delete job files from storage", err)
	}

	if err := u.jobs.Delete(ctx, repository.NoTX, userID, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFound("job not found")
		}
		return domain.Internal("could not delete job", err)
	}
	return nil
}

func (u *jobUC) DownloadURLs(ctx context.Context, userID string, keys []string) ([]DownloadURL, error) {
	defer logging.TraceDuration(u.log, "JobUC.DownloadURLs")()

	if len(keys) == 0 {
		return []DownloadURL{}, nil
	}
	for _, k := range keys {
		if strings.TrimSpace(k) == "" {
			return nil, domain.BadRequest("keys must not be empty")
		}
	}
	owned, err := u.files.OwnedKeys(ctx, repository.NoTX, userID, keys)
	if err != nil {
		return nil, domain.Internal("could not check file ownership", err)
	}
	for _, k := range keys {
		if !owned[k] {
			return nil, domain.NotFound("file not found")
		}
	}

	out := make([]DownloadURL, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(storageFanOut)
	for i, k := range keys {
		i, k := i, k
		g.Go(func() error {
			url, err := u.storage.PresignGet(gctx, k, u.cfg.PresignTTL)
			if err != nil {
				return fmt.Errorf("presign %s: %w", k, err)
			}
			out[i] = DownloadURL{Key: k, URL: url}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, domain.Internal("could not create download urls", err)
	}
	return out, nil
}

func (u *jobUC) findJob(ctx context.Context, userID, id string) (*model.Job, error) {
	job, err := u.jobs.FindByIDForUser(ctx, repository.NoTX, userID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFound("job not found")
		}
		return nil, domain.Internal("could not load job", err)
	}
	return job, nil
}

func (u *jobUC) assertWorkflow(ctx context.Context, userID, workflowID string) error {
	return assertWorkflowAccess(ctx, u.workflows, userID, workflowID)
}

func assertWorkflowAccess(ctx context.Context, workflows repository.WorkflowRepository, userID, workflowID string) error {
	if workflowID == "" {
		return domain.BadRequest("workflowId is required")
	}
	ok, err := workflows.Exists(ctx, repository.NoTX, userID, workflowID)
	if err != nil {
		return domain.Internal("could not check workflow access", err)
	}
	if !ok {
		return domain.NotFound("workflow not found")
	}
	return nil
}

// jobFolderKey nests a requested output folder under the job's own id, so
// the processor can only ever write below {jobId}/.
func jobFolderKey(jobID, requested string) (string, error) {
	folder := strings.Trim(strings.TrimSpace(requested), "/")
	if folder == "" {
		return "", domain.BadRequest("s3_key must name a folder")
	}
	for _, seg := range strings.Split(folder, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", domain.BadRequest("s3_key must name a folder")
		}
	}
	return jobID + "/" + folder, nil
}
