//go:build !integration

package apiv1_test

import (
	"context"

	"workflow-dashboard/internal/domain"
	"workflow-dashboard/internal/domain/model"
	"workflow-dashboard/internal/usecase"
)

// ---- UserUseCase ----

type fakeUsers struct {
	known map[string]*model.User
}

func (f *fakeUsers) Authenticate(_ context.Context, userID string) (*model.User, error) {
	if u, ok := f.known[userID]; ok {
		return u, nil
	}
	return nil, domain.Unauthorized("User not authenticated")
}

func (f *fakeUsers) RegisterOrFetch(context.Context, string, string) (*model.User, error) {
	return nil, domain.Internal("not used", nil)
}

// ---- JobUseCase ----

type fakeJobs struct {
	ListFunc         func(ctx context.Context, userID string, q usecase.JobQuery) (*usecase.JobPage, error)
	CreateFunc       func(ctx context.Context, userID string, in usecase.CreateJobInput) (*model.Job, error)
	GetFunc          func(ctx context.Context, userID, id string) (*usecase.JobDetail, error)
	ProcessFunc      func(ctx context.Context, userID, id string) error
	DeleteFunc       func(ctx context.Context, userID, id string) error
	DownloadURLsFunc func(ctx context.Context, userID string, keys []string) ([]usecase.DownloadURL, error)

	calls int
}

func (f *fakeJobs) List(ctx context.Context, userID string, q usecase.JobQuery) (*usecase.JobPage, error) {
	f.calls++
	return f.ListFunc(ctx, userID, q)
}

func (f *fakeJobs) Create(ctx context.Context, userID string, in usecase.CreateJobInput) (*model.Job, error) {
	f.calls++
	return f.CreateFunc(ctx, userID, in)
}

func (f *fakeJobs) Get(ctx context.Context, userID, id string) (*usecase.JobDetail, error) {
	f.calls++
	return f.GetFunc(ctx, userID, id)
}

func (f *fakeJobs) Process(ctx context.Context, userID, id string) error {
	f.calls++
	return f.ProcessFunc(ctx, userID, id)
}

func (f *fakeJobs) Delete(ctx context.Context, userID, id string) error {
	f.calls++
	return f.DeleteFunc(ctx, userID, id)
}

func (f *fakeJobs) DownloadURLs(ctx context.Context, userID string, keys []string) ([]usecase.DownloadURL, error) {
	f.calls++
	return f.DownloadURLsFunc(ctx, userID, keys)
}

// ---- WorkflowUseCase ----

type fakeWorkflows struct {
	ListFunc         func(ctx context.Context, userID string, q usecase.WorkflowQuery) (*usecase.WorkflowPage, error)
	CreateFunc       func(ctx context.Context, userID, title, description, note string) (*model.Workflow, error)
	GetFunc          func(ctx context.Context, userID, id string) (*model.Workflow, error)
	UpdateStatusFunc func(ctx context.Context, userID string, ids []string, status model.WorkflowStatus) (int, error)

	calls int
}

func (f *fakeWorkflows) List(ctx context.Context, userID string, q usecase.WorkflowQuery) (*usecase.WorkflowPage, error) {
	f.calls++
	return f.ListFunc(ctx, userID, q)
}

func (f *fakeWorkflows) Create(ctx context.Context, userID, title, description, note string) (*model.Workflow, error) {
	f.calls++
	return f.CreateFunc(ctx, userID, title, description, note)
}

func (f *fakeWorkflows) Get(ctx context.Context, userID, id string) (*model.Workflow, error) {
	f.calls++
	return f.GetFunc(ctx, userID, id)
}

func (f *fakeWorkflows) UpdateStatus(ctx context.Context, userID string, ids []string, status model.WorkflowStatus) (int, error) {
	f.calls++
	return f.UpdateStatusFunc(ctx, userID, ids, status)
}

// ---- WorkflowFileUseCase ----

type fakeFiles struct {
	ListFunc   func(ctx context.Context, userID, workflowID string, q usecase.WorkflowFileQuery) (*usecase.WorkflowFilePage, error)
	GetFunc    func(ctx context.Context, userID, workflowID, id string) (*model.WorkflowFile, error)
	UpsertFunc func(ctx context.Context, userID, workflowID string, in usecase.UpsertWorkflowFileInput) (*model.WorkflowFile, error)
	DeleteFunc func(ctx context.Context, userID, workflowID, id string) error
}

func (f *fakeFiles) List(ctx context.Context, userID, workflowID string, q usecase.WorkflowFileQuery) (*usecase.WorkflowFilePage, error) {
	return f.ListFunc(ctx, userID, workflowID, q)
}

func (f *fakeFiles) Get(ctx context.Context, userID, workflowID, id string) (*model.WorkflowFile, error) {
	return f.GetFunc(ctx, userID, workflowID, id)
}

func (f *fakeFiles) Upsert(ctx context.Context, userID, workflowID string, in usecase.UpsertWorkflowFileInput) (*model.WorkflowFile, error) {
	return f.UpsertFunc(ctx, userID, workflowID, in)
}

func (f *fakeFiles) Delete(ctx context.Context, userID, workflowID, id string) error {
	return f.DeleteFunc(ctx, userID, workflowID, id)
}
