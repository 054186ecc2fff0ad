package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"workflow-dashboard/internal/domain"
	"workflow-dashboard/internal/domain/model"
	"workflow-dashboard/internal/domain/ports/adapter"
	"workflow-dashboard/internal/domain/ports/repository"
	"workflow-dashboard/internal/infra/logging"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// Compile-time check
var _ WorkflowFileUseCase = (*workflowFileUC)(nil)

const defaultContentType = "application/octet-stream"

type WorkflowFileQuery struct {
	Cursor string
	Search string
	Limit  int
}

type WorkflowFilePage struct {
	Files      []*model.WorkflowFile
	NextCursor string
	HasMore    bool
}

// UpsertWorkflowFileInput creates a file when ID is empty and updates it
// otherwise. Nil pointers leave the stored value unchanged.
type UpsertWorkflowFileInput struct {
	ID          string
	StorageKey  string
	FileData    string
	FileName    string
	ContentType string
	Version     *int
	Description *string
	DisplayName *string
}

type WorkflowFileUseCase interface {
	List(ctx context.Context, userID, workflowID string, q WorkflowFileQuery) (*WorkflowFilePage, error)
	Get(ctx context.Context, userID, workflowID, id string) (*model.WorkflowFile, error)
	Upsert(ctx context.Context, userID, workflowID string, in UpsertWorkflowFileInput) (*model.WorkflowFile, error)
	Delete(ctx context.Context, userID, workflowID, id string) error
}

type workflowFileUC struct {
	files     repository.WorkflowFileRepository
	workflows repository.WorkflowRepository
	storage   adapter.ObjectStorage
	log       *zerolog.Logger
}

func NewWorkflowFileUseCase(files repository.WorkflowFileRepository, workflows repository.WorkflowRepository, storage adapter.ObjectStorage, logger *zerolog.Logger) *workflowFileUC {
	l := logger.With().Str("component", "WorkflowFileUC").Logger()
	return &workflowFileUC{files: files, workflows: workflows, storage: storage, log: &l}
}

func (u *workflowFileUC) List(ctx context.Context, userID, workflowID string, q WorkflowFileQuery) (*WorkflowFilePage, error) {
	if err := assertWorkflowAccess(ctx, u.workflows, userID, workflowID); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit < 1 {
		limit = defaultCursorPageSize
	}
	if limit > maxCursorPageSize {
		limit = maxCursorPageSize
	}

	rows, err := u.files.List(ctx, repository.NoTX, repository.WorkflowFileFilter{
		UserID:     userID,
		WorkflowID: workflowID,
		Cursor:     q.Cursor,
		Search:     strings.TrimSpace(q.Search),
		Limit:      limit + 1,
	})
	if err != nil {
		return nil, domain.Internal("could not list workflow files", err)
	}

	out := &WorkflowFilePage{Files: rows}
	if len(rows) > limit {
		out.Files = rows[:limit]
		out.HasMore = true
		out.NextCursor = out.Files[limit-1].ID
	}
	return out, nil
}

func (u *workflowFileUC) Get(ctx context.Context, userID, workflowID, id string) (*model.WorkflowFile, error) {
	if err := assertWorkflowAccess(ctx, u.workflows, userID, workflowID); err != nil {
		return nil, err
	}
	return u.find(ctx, userID, workflowID, id)
}

func (u *workflowFileUC) Upsert(ctx context.Context, userID, workflowID string, in UpsertWorkflowFileInput) (*model.WorkflowFile, error) {
	defer logging.TraceDuration(u.log, "WorkflowFileUC.Upsert")()

	if err := assertWorkflowAccess(ctx, u.workflows, userID, workflowID); err != nil {
		return nil, err
	}
	if in.ID == "" {
		return u.create(ctx, userID, workflowID, in)
	}
	return u.update(ctx, userID, workflowID, in)
}

func (u *workflowFileUC) create(ctx context.Context, userID, workflowID string, in UpsertWorkflowFileInput) (*model.WorkflowFile, error) {
	if in.FileData == "" || in.Version == nil {
		return nil, domain.BadRequest("fileData and version are required when creating a workflow file")
	}
	if *in.Version < 1 {
		return nil, domain.BadRequest("version must be at least 1")
	}
	data, err := decodeFileData(in.FileData)
	if err != nil {
		return nil, err
	}

	key, err := objectKey(workflowID, in)
	if err != nil {
		return nil, err
	}
	if _, err := u.storage.Put(ctx, key, data, contentTypeOf(in)); err != nil {
		return nil, domain.Internal("failed to upload workflow file", err)
	}

	displayName := in.DisplayName
	if displayName == nil && in.FileName != "" {
		name := in.FileName
		displayName = &name
	}
	f := model.NewWorkflowFile(workflowID, userID, key, *in.Version, in.Description, displayName)
	if err := u.files.Create(ctx, repository.NoTX, f); err != nil {
		err = multierr.Append(err, u.storage.Delete(context.WithoutCancel(ctx), key))
		u.log.Error().Err(err).Str("s3_key", key).Msg("workflow file insert failed")
		return nil, domain.Internal("could not save workflow file", err)
	}
	return f, nil
}

// update uploads replacement bytes first, points the record at the new
// object and only then removes the old one.
func (u *workflowFileUC) update(ctx context.Context, userID, workflowID string, in UpsertWorkflowFileInput) (*model.WorkflowFile, error) {
	existing, err := u.find(ctx, userID, workflowID, in.ID)
	if err != nil {
		return nil, err
	}
	if in.Version != nil && *in.Version < 1 {
		return nil, domain.BadRequest("version must be at least 1")
	}

	oldKey := existing.StorageKey
	uploaded := ""
	if in.FileData != "" {
		data, err := decodeFileData(in.FileData)
		if err != nil {
			return nil, err
		}
		uploaded, err = objectKey(workflowID, in)
		if err != nil {
			return nil, err
		}
		if _, err := u.storage.Put(ctx, uploaded, data, contentTypeOf(in)); err != nil {
			return nil, domain.Internal("failed to upload workflow file", err)
		}
		existing.StorageKey = uploaded
	}
	if in.Description != nil {
		existing.Description = in.Description
	}
	if in.DisplayName != nil {
		existing.DisplayName = in.DisplayName
	}
	if in.Version != nil {
		existing.Version = *in.Version
	}
	existing.UpdatedAt = time.Now().UTC()

	if err := u.files.Update(ctx, repository.NoTX, existing); err != nil {
		if uploaded != "" && uploaded != oldKey {
			err = multierr.Append(err, u.storage.Delete(context.WithoutCancel(ctx), uploaded))
		}
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFound("workflow file not found")
		}
		return nil, domain.Internal("could not update workflow file", err)
	}

	if uploaded != "" && oldKey != "" && oldKey != uploaded {
		if err := u.storage.Delete(ctx, oldKey); err != nil {
			u.log.Error().Err(err).Str("s3_key", oldKey).Msg("old workflow file not deleted")
			return nil, domain.Internal("failed to delete old workflow file from storage", err)
		}
	}
	return existing, nil
}

// Delete removes the object first; the record stays when that fails.
func (u *workflowFileUC) Delete(ctx context.Context, userID, workflowID, id string) error {
	if err := assertWorkflowAccess(ctx, u.workflows, userID, workflowID); err != nil {
		return err
	}
	existing, err := u.find(ctx, userID, workflowID, id)
	if err != nil {
		return err
	}
	if existing.StorageKey != "" {
		if err := u.storage.Delete(ctx, existing.StorageKey); err != nil {
			return domain.Internal("failed to delete workflow file from storage", err)
		}
	}
	if err := u.files.Delete(ctx, repository.NoTX, userID, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFound("workflow file not found")
		}
		return domain.Internal("could not delete workflow file", err)
	}
	return nil
}

func (u *workflowFileUC) find(ctx context.Context, userID, workflowID, id string) (*model.WorkflowFile, error) {
	f, err := u.files.FindByID(ctx, repository.NoTX, userID, workflowID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFound("workflow file not found")
		}
		return nil, domain.Internal("could not load workflow file", err)
	}
	return f, nil
}

// decodeFileData accepts plain base64 or a data URL ("data:...;base64,XXXX").
func decodeFileData(s string) ([]byte, error) {
	if i := strings.LastIndex(s, ","); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, domain.BadRequest("Invalid file data provided")
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, domain.BadRequest("Invalid file data provided")
	}
	return b, nil
}

// objectKey picks the object key for an upload. A caller-chosen key must
// stay inside the workflow's folder.
func objectKey(workflowID string, in UpsertWorkflowFileInput) (string, error) {
	if k := strings.TrimSpace(in.StorageKey); k != "" {
		if !insideFolder(workflowID, k) {
			return "", domain.BadRequest("s3Key must be inside the workflow folder")
		}
		return k, nil
	}
	name := strings.TrimSpace(in.FileName)
	if name == "" || strings.Contains(name, "/") {
		name = "file"
	}
	return fmt.Sprintf("%s/%s-%s", workflowID, uuid.NewString(), name), nil
}

// insideFolder reports whether key names an object below folder/.
func insideFolder(folder, key string) bool {
	rest, ok := strings.CutPrefix(key, folder+"/")
	if !ok || rest == "" {
		return false
	}
	for _, seg := range strings.Split(rest, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

func contentTypeOf(in UpsertWorkflowFileInput) string {
	if in.ContentType != "" {
		return in.ContentType
	}
	return defaultContentType
}
