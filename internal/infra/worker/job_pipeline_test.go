//go:build !integration

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflow-dashboard/internal/domain"
	"workflow-dashboard/internal/domain/model"
	"workflow-dashboard/internal/domain/ports/adapter"
	"workflow-dashboard/internal/infra/durable"
)

type pipelineFixture struct {
	jobs      *memJobRepo
	files     *memFileRepo
	storage   *memStorage
	processor *fakeProcessor
	notifier  *recordingNotifier
	journal   *durable.MemoryJournal
	pipeline  *JobPipeline
	logger    zerolog.Logger
}

func newFixture(t *testing.T, opts PipelineOptions, jobs ...*model.Job) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		jobs:      newMemJobRepo(jobs...),
		files:     &memFileRepo{},
		storage:   &memStorage{},
		processor: &fakeProcessor{},
		notifier:  &recordingNotifier{},
		journal:   &durable.MemoryJournal{},
		logger:    zerolog.Nop(),
	}
	f.pipeline = NewJobPipeline(f.jobs, f.files, f.storage, f.processor, f.notifier, opts, &f.logger)
	return f
}

func (f *pipelineFixture) run(attempt durable.Attempt) *durable.Run {
	return durable.NewRun("run-test", attempt, f.journal, &f.logger)
}

var finalAttempt = durable.Attempt{Retry: 1, MaxRetry: 1}

func newQueuedJob(t *testing.T, id string, kind model.JobKind, payload string) *model.Job {
	t.Helper()
	j, err := model.NewJob("wf-1", "user-1", kind, json.RawMessage(payload), "")
	require.NoError(t, err)
	j.ID = id
	return j
}

func TestPipelineEndToEndServiceUnits(t *testing.T) {
	job := newQueuedJob(t, "J1", model.JobKindServiceUnits, `{"company":"Acme"}`)
	f := newFixture(t, PipelineOptions{}, job)
	f.processor.onInvoke = func(req adapter.ProcessRequest) {
		f.storage.add(req.FolderID+"/out1.csv", req.FolderID+"/out2.csv")
	}

	err := f.pipeline.Run(context.Background(), f.run(durable.Attempt{MaxRetry: 1}), "J1")
	require.NoError(t, err)

	got := f.jobs.get("J1")
	assert.Equal(t, model.JobStatusSuccessful, got.Status)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	assert.Regexp(t, regexp.MustCompile(`^J1/[0-9a-f-]{36}$`), got.Key())

	require.Len(t, f.processor.requests, 1)
	body, err := json.Marshal(f.processor.requests[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"payload":{"company":"Acme"},"workflow_type":"service_units","folder_id":"`+got.Key()+`"}`, string(body))

	require.Len(t, f.files.files, 2)
	assert.Equal(t, "out1.csv", f.files.files[0].Name)
	assert.Equal(t, "out2.csv", f.files.files[1].Name)
	for _, file := range f.files.files {
		assert.Equal(t, "J1", file.JobID)
		assert.Equal(t, "wf-1", file.WorkflowID)
		assert.Equal(t, "user-1", file.UserID)
		assert.Equal(t, f.storage.ObjectURL(file.StorageKey), file.URL)
	}

	require.Len(t, f.notifier.finished, 1)
	assert.Equal(t, model.JobStatusSuccessful, f.notifier.finished[0].Status)
}

func TestPipelineTransportErrorFailsJob(t *testing.T) {
	job := newQueuedJob(t, "J2", model.JobKindUsers, `{}`)
	f := newFixture(t, PipelineOptions{}, job)
	transport := domain.Upstream("processing endpoint unreachable", errors.New("dial tcp: connection refused"))
	f.processor.err = transport

	err := f.pipeline.Run(context.Background(), f.run(finalAttempt), "J2")
	require.Error(t, err)
	assert.Same(t, error(transport), err, "original error must be re-raised unchanged")

	got := f.jobs.get("J2")
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, model.FailureProcessor, got.FailureReason)
	assert.Empty(t, f.files.files)
	require.Len(t, f.notifier.finished, 1)
	assert.Equal(t, model.JobStatusFailed, f.notifier.finished[0].Status)
}

func TestPipelineNonFinalAttemptKeepsProcessing(t *testing.T) {
	job := newQueuedJob(t, "J3", model.JobKindUsers, `{}`)
	f := newFixture(t, PipelineOptions{}, job)
	f.processor.err = domain.Upstream("processing endpoint returned 502", nil)

	err := f.pipeline.Run(context.Background(), f.run(durable.Attempt{Retry: 0, MaxRetry: 1}), "J3")
	require.Error(t, err)

	first := f.jobs.get("J3")
	assert.Equal(t, model.JobStatusProcessing, first.Status)
	assert.Equal(t, model.FailureProcessor, first.FailureReason)
	assert.Nil(t, first.CompletedAt)
	assert.Empty(t, f.notifier.finished)

	// the retry reuses the key and keeps started_at
	f.processor.err = nil
	require.NoError(t, f.pipeline.Run(context.Background(), f.run(finalAttempt), "J3"))

	second := f.jobs.get("J3")
	assert.Equal(t, model.JobStatusSuccessful, second.Status)
	assert.Equal(t, first.Key(), second.Key())
	assert.Equal(t, *first.StartedAt, *second.StartedAt)
	assert.Equal(t, model.FailureNone, second.FailureReason)
	assert.Equal(t, 1, f.jobs.keyWrites)
	require.Len(t, f.processor.requests, 2)
	assert.Equal(t, f.processor.requests[0].FolderID, f.processor.requests[1].FolderID)
}

func TestProvisionKeyIsIdempotent(t *testing.T) {
	job := newQueuedJob(t, "J4", model.JobKindUsers, `{}`)
	f := newFixture(t, PipelineOptions{}, job)
	ctx := context.Background()

	loaded, err := f.pipeline.loadJob(ctx, "J4")
	require.NoError(t, err)
	k1, err := f.pipeline.provisionKey(ctx, loaded)
	require.NoError(t, err)
	assert.Regexp(t, `^J4/.+`, k1)

	reloaded, err := f.pipeline.loadJob(ctx, "J4")
	require.NoError(t, err)
	k2, err := f.pipeline.provisionKey(ctx, reloaded)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Equal(t, 1, f.jobs.keyWrites)
}

func TestCollectResultsSkipsEmptyKeys(t *testing.T) {
	job := newQueuedJob(t, "J5", model.JobKindUsers, `{}`)
	f := newFixture(t, PipelineOptions{}, job)
	f.storage.add("J5/k/a.csv", "J5/k/b.csv", "J5/k/c.csv")
	f.storage.blank = []string{"", "  "}

	n, err := f.pipeline.collectResults(context.Background(), job, "J5/k")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, f.files.files, 3)
	for _, file := range f.files.files {
		assert.NotEmpty(t, file.StorageKey)
	}
}

func TestCollectResultsNamesFolderMarker(t *testing.T) {
	job := newQueuedJob(t, "J6", model.JobKindUsers, `{}`)
	f := newFixture(t, PipelineOptions{}, job)
	f.storage.add("J6/x/", "J6/x/one.csv")

	n, err := f.pipeline.collectResults(context.Background(), job, "J6/x")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, model.UnknownFileName, f.files.files[0].Name)
	assert.Equal(t, "one.csv", f.files.files[1].Name)
}

func TestNonEmptyKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, nonEmptyKeys([]string{"", "a", " ", "b"}))
	assert.Empty(t, nonEmptyKeys(nil))
}

func TestCollectResultsEmptyFolder(t *testing.T) {
	job := newQueuedJob(t, "J7", model.JobKindUsers, `{}`)
	f := newFixture(t, PipelineOptions{}, job)

	n, err := f.pipeline.collectResults(context.Background(), job, "J7/empty")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.files.files)
}

func TestMissingKeyFailsJobImmediately(t *testing.T) {
	job := newQueuedJob(t, "J8", model.JobKindUsers, `{}`)
	f := newFixture(t, PipelineOptions{}, job)
	empty := ""
	f.jobs.keyOverride = &empty

	_, err := f.pipeline.collectResults(context.Background(), job, "")
	require.ErrorIs(t, err, domain.ErrMissingStorageKey)

	// not the final attempt, yet the precondition failure is terminal
	err = f.pipeline.Run(context.Background(), f.run(durable.Attempt{MaxRetry: 1}), "J8")
	require.ErrorIs(t, err, domain.ErrMissingStorageKey)

	got := f.jobs.get("J8")
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, model.FailureCollection, got.FailureReason)
}

func TestPipelineJobNotFound(t *testing.T) {
	f := newFixture(t, PipelineOptions{})

	err := f.pipeline.Run(context.Background(), f.run(durable.Attempt{MaxRetry: 1}), "missing")
	require.Error(t, err)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
	assert.True(t, IsPermanent(err))
	assert.Empty(t, f.processor.requests)
}

func TestSkipIfOutputsExist(t *testing.T) {
	job := newQueuedJob(t, "J9", model.JobKindUsers, `{}`)
	key := "J9/existing"
	job.StorageKey = &key
	f := newFixture(t, PipelineOptions{SkipIfOutputsExist: true}, job)
	f.storage.add(key + "/out.csv")

	require.NoError(t, f.pipeline.Run(context.Background(), f.run(finalAttempt), "J9"))
	assert.Empty(t, f.processor.requests, "processor must not be re-invoked")
	assert.Len(t, f.files.files, 1)
	assert.Equal(t, model.JobStatusSuccessful, f.jobs.get("J9").Status)
}

func TestTerminalJobIsNotReprocessed(t *testing.T) {
	job := newQueuedJob(t, "J10", model.JobKindUsers, `{}`)
	f := newFixture(t, PipelineOptions{}, job)
	f.processor.onInvoke = func(req adapter.ProcessRequest) { f.storage.add(req.FolderID + "/a.csv") }
	require.NoError(t, f.pipeline.Run(context.Background(), f.run(finalAttempt), "J10"))

	err := f.pipeline.Run(context.Background(), f.run(durable.Attempt{MaxRetry: 1}), "J10")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, model.JobStatusSuccessful, f.jobs.get("J10").Status)
	assert.Len(t, f.processor.requests, 1)
}

func TestPipelineJournalsEverySuccessfulStep(t *testing.T) {
	job := newQueuedJob(t, "J11", model.JobKindUsers, `{}`)
	f := newFixture(t, PipelineOptions{}, job)
	require.NoError(t, f.pipeline.Run(context.Background(), f.run(finalAttempt), "J11"))

	var finished []string
	for _, ev := range f.journal.Events() {
		if ev.Kind == durable.EventFinished {
			finished = append(finished, ev.Step)
		}
	}
	assert.Equal(t, []string{
		StepLoadJob, StepProvisionKey, StepMarkProcessing,
		StepInvokeProcessor, StepCollectResults, StepMarkSuccessful,
	}, finished)
}

func TestReasonForStep(t *testing.T) {
	assert.Equal(t, model.FailureProcessor, reasonForStep(StepInvokeProcessor))
	assert.Equal(t, model.FailureCollection, reasonForStep(StepCollectResults))
	assert.Equal(t, model.FailureUnknownReason, reasonForStep(""))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("é", 5) // 10 bytes
	for n := 0; n <= len(s); n++ {
		got := truncate(s, n)
		assert.True(t, utf8.ValidString(got), "n=%d", n)
		assert.LessOrEqual(t, len(got), n)
		assert.Equal(t, n/2*2, len(got), "n=%d", n)
	}
	assert.Equal(t, "upstream", truncate("upstream", 64))
	assert.Equal(t, "ab", truncate("ab\u20ac", 4))
}
