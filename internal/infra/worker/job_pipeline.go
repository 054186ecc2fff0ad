package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"workflow-dashboard/internal/domain"
	"workflow-dashboard/internal/domain/model"
	"workflow-dashboard/internal/domain/ports/adapter"
	"workflow-dashboard/internal/domain/ports/repository"
	"workflow-dashboard/internal/infra/durable"
	"workflow-dashboard/internal/infra/metrics"
)

// Step names as they appear in logs, metrics and the run journal.
const (
	StepLoadJob          = "get-job-details"
	StepProvisionKey     = "generate-s3-key"
	StepMarkProcessing   = "update-job-status-processing"
	StepInvokeProcessor  = "call-process-endpoint"
	StepCollectResults   = "save-resulting-files"
	StepMarkSuccessful   = "update-job-status-successful"
	StepHandleFailure    = "handle-failure"
	maxFailureDetailSize = 512
)

var stepReasons = map[string]model.FailureReason{
	StepLoadJob:         model.FailureLoad,
	StepProvisionKey:    model.FailureStorageKey,
	StepMarkProcessing:  model.FailureStatusUpdate,
	StepInvokeProcessor: model.FailureProcessor,
	StepCollectResults:  model.FailureCollection,
	StepMarkSuccessful:  model.FailureStatusUpdate,
}

func reasonForStep(step string) model.FailureReason {
	if r, ok := stepReasons[step]; ok {
		return r
	}
	return model.FailureUnknownReason
}

// IsPermanent reports whether retrying the pipeline cannot change the outcome.
func IsPermanent(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrMissingStorageKey) ||
		errors.Is(err, domain.ErrInvalidTransition)
}

type PipelineOptions struct {
	// SkipIfOutputsExist skips the processor call when the job folder already
	// holds objects, so a retry after a collection failure does not re-run it.
	SkipIfOutputsExist bool
}

// JobPipeline moves one job from queued to a terminal status.
type JobPipeline struct {
	jobs      repository.JobRepository
	files     repository.FileRepository
	storage   adapter.ObjectStorage
	processor adapter.ProcessorClient
	notifier  adapter.Notifier
	opts      PipelineOptions
	log       *zerolog.Logger
	now       func() time.Time
}

func NewJobPipeline(
	jobs repository.JobRepository,
	files repository.FileRepository,
	storage adapter.ObjectStorage,
	processor adapter.ProcessorClient,
	notifier adapter.Notifier,
	opts PipelineOptions,
	logger *zerolog.Logger,
) *JobPipeline {
	l := logger.With().Str("component", "JobPipeline").Logger()
	return &JobPipeline{
		jobs:      jobs,
		files:     files,
		storage:   storage,
		processor: processor,
		notifier:  notifier,
		opts:      opts,
		log:       &l,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run executes the pipeline for jobID as one attempt of run. Any stage error
// goes through the failure handler and is then returned unchanged.
func (p *JobPipeline) Run(ctx context.Context, run *durable.Run, jobID string) error {
	if err := p.execute(ctx, run, jobID); err != nil {
		return p.handleFailure(ctx, run, jobID, err)
	}
	return nil
}

func (p *JobPipeline) execute(ctx context.Context, run *durable.Run, jobID string) error {
	job, err := durable.StepValue(ctx, run, StepLoadJob, func(ctx context.Context) (*model.Job, error) {
		return p.loadJob(ctx, jobID)
	})
	if err != nil {
		return err
	}

	key, err := durable.StepValue(ctx, run, StepProvisionKey, func(ctx context.Context) (string, error) {
		return p.provisionKey(ctx, job)
	})
	if err != nil {
		return err
	}

	err = run.Step(ctx, StepMarkProcessing, func(ctx context.Context) error {
		return p.jobs.UpdateStatus(ctx, repository.NoTX, job.ID, model.JobStatusProcessing, model.FailureNone, "")
	})
	if err != nil {
		return err
	}

	err = run.Step(ctx, StepInvokeProcessor, func(ctx context.Context) error {
		return p.invokeProcessor(ctx, job, key)
	})
	if err != nil {
		return err
	}

	n, err := durable.StepValue(ctx, run, StepCollectResults, func(ctx context.Context) (int, error) {
		return p.collectResults(ctx, job, key)
	})
	if err != nil {
		return err
	}

	err = run.Step(ctx, StepMarkSuccessful, func(ctx context.Context) error {
		return p.jobs.UpdateStatus(ctx, repository.NoTX, job.ID, model.JobStatusSuccessful, model.FailureNone, "")
	})
	if err != nil {
		return err
	}

	metrics.IncJob(string(model.JobStatusSuccessful))
	p.log.Info().Str("job_id", job.ID).Str("folder", key).Int("files", n).Int("attempt", run.Attempt.Number()).Msg("job successful")
	p.notify(ctx, job.ID)
	return nil
}

func (p *JobPipeline) loadJob(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := p.jobs.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFound("job not found")
		}
		return nil, fmt.Errorf("load job: %w", err)
	}
	return job, nil
}

// provisionKey returns the job's folder key, creating {jobId}/{uuid} on
// first use. The conditional write keeps one key per job across reruns.
func (p *JobPipeline) provisionKey(ctx context.Context, job *model.Job) (string, error) {
	if k := job.Key(); k != "" {
		return k, nil
	}
	candidate := job.ID + "/" + uuid.NewString()
	key, err := p.jobs.SetStorageKeyIfEmpty(ctx, repository.NoTX, job.ID, candidate)
	if err != nil {
		return "", fmt.Errorf("persist storage key: %w", err)
	}
	job.StorageKey = &key
	return key, nil
}

func (p *JobPipeline) invokeProcessor(ctx context.Context, job *model.Job, key string) error {
	if p.opts.SkipIfOutputsExist && key != "" {
		existing, err := p.storage.List(ctx, key)
		if err != nil {
			return fmt.Errorf("check existing outputs: %w", err)
		}
		if len(nonEmptyKeys(existing)) > 0 {
			metrics.IncProcessorCall("skipped")
			p.log.Info().Str("job_id", job.ID).Int("objects", len(existing)).Msg("outputs already present, processor call skipped")
			return nil
		}
	}
	return p.processor.Invoke(ctx, adapter.ProcessRequest{
		Payload:      job.Payload,
		WorkflowType: string(job.Kind),
		FolderID:     key,
	})
}

// collectResults records one File per object under key and returns how many
// were written. An empty folder is not an error.
func (p *JobPipeline) collectResults(ctx context.Context, job *model.Job, key string) (int, error) {
	if strings.TrimSpace(key) == "" {
		return 0, domain.ErrMissingStorageKey
	}
	keys, err := p.storage.List(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("list outputs: %w", err)
	}
	keys = nonEmptyKeys(keys)
	if len(keys) == 0 {
		return 0, nil
	}

	at := p.now()
	files := make([]*model.File, 0, len(keys))
	for _, k := range keys {
		files = append(files, model.NewJobFile(job, k, p.storage.ObjectURL(k), at))
	}
	n, err := p.files.CreateMany(ctx, repository.NoTX, files)
	if err != nil {
		return 0, fmt.Errorf("save files: %w", err)
	}
	metrics.AddFilesCollected(n)
	return n, nil
}

func nonEmptyKeys(keys []string) []string {
	out := keys[:0:0]
	for _, k := range keys {
		if strings.TrimSpace(k) != "" {
			out = append(out, k)
		}
	}
	return out
}

// handleFailure records why the run failed. The job becomes failed only when
// no retry will follow; otherwise the reason is stored and the status kept so
// the next attempt can re-enter processing.
func (p *JobPipeline) handleFailure(ctx context.Context, run *durable.Run, jobID string, cause error) error {
	step := run.FailedStep()
	reason := reasonForStep(step)
	final := run.Attempt.Final() || IsPermanent(cause)

	p.log.Error().Err(cause).
		Str("job_id", jobID).
		Str("step", step).
		Str("reason", string(reason)).
		Int("attempt", run.Attempt.Number()).
		Bool("final", final).
		Msg("job pipeline failed")

	_ = run.Step(ctx, StepHandleFailure, func(ctx context.Context) error {
		// the attempt context may already be cancelled by the task timeout
		ctx = context.WithoutCancel(ctx)
		detail := truncate(cause.Error(), maxFailureDetailSize)

		var err error
		if final {
			err = p.jobs.UpdateStatus(ctx, repository.NoTX, jobID, model.JobStatusFailed, reason, detail)
		} else {
			err = p.jobs.RecordFailure(ctx, repository.NoTX, jobID, reason, detail)
		}
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidTransition):
			// job deleted or already terminal; nothing left to mark
			p.log.Warn().Err(err).Str("job_id", jobID).Msg("failure not recorded on job")
			return nil
		default:
			p.log.Error().Err(err).Str("job_id", jobID).Msg("could not record job failure")
			return err
		}

		if final {
			metrics.IncJob(string(model.JobStatusFailed))
			p.notify(ctx, jobID)
		}
		return nil
	})
	return cause
}

func (p *JobPipeline) notify(ctx context.Context, jobID string) {
	if p.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	job, err := p.jobs.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		p.log.Warn().Err(err).Str("job_id", jobID).Msg("notify: reload job failed")
		return
	}
	if err := p.notifier.JobFinished(ctx, job); err != nil {
		p.log.Warn().Err(err).Str("job_id", jobID).Msg("notify failed")
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return strings.ToValidUTF8(s[:n], "")
}
