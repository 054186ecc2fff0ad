package apiv1

import (
	"net/http"
	"time"

	"workflow-dashboard/internal/domain/model"
	"workflow-dashboard/internal/usecase"
)

type WorkflowFile struct {
	ID          string    `json:"id"`
	WorkflowID  string    `json:"workflowId"`
	UserID      string    `json:"userId"`
	S3Key       string    `json:"s3Key"`
	Description *string   `json:"description"`
	DisplayName *string   `json:"displayName"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type WorkflowFileList struct {
	Files      []WorkflowFile `json:"files"`
	NextCursor *string        `json:"nextCursor"`
	HasMore    bool           `json:"hasMore"`
}

type upsertWorkflowFileRequest struct {
	ID          string  `json:"id" validate:"omitempty,uuid"`
	S3Key       string  `json:"s3Key"`
	FileData    string  `json:"fileData"`
	FileName    string  `json:"fileName"`
	ContentType string  `json:"contentType"`
	Version     *int    `json:"version" validate:"omitempty,gte=1"`
	Description *string `json:"description"`
	DisplayName *string `json:"displayName"`
}

type listWorkflowFilesQuery struct {
	Cursor string `validate:"omitempty,uuid"`
	Search string
	Limit  int `validate:"gte=0,lte=50"`
}

func toWorkflowFile(f *model.WorkflowFile) WorkflowFile {
	return WorkflowFile{
		ID:          f.ID,
		WorkflowID:  f.WorkflowID,
		UserID:      f.UserID,
		S3Key:       f.StorageKey,
		Description: f.Description,
		DisplayName: f.DisplayName,
		Version:     f.Version,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

func (s *Server) listWorkflowFiles(w http.ResponseWriter, r *http.Request) {
	wfID, err := pathID(r, "workflowId", "workflow")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	in := listWorkflowFilesQuery{
		Cursor: r.URL.Query().Get("cursor"),
		Search: r.URL.Query().Get("search"),
		Limit:  limit,
	}
	if err := s.check(in); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.files.List(r.Context(), userID(r), wfID, usecase.WorkflowFileQuery{
		Cursor: in.Cursor,
		Search: in.Search,
		Limit:  in.Limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := WorkflowFileList{Files: make([]WorkflowFile, 0, len(res.Files)), HasMore: res.HasMore}
	if res.NextCursor != "" {
		c := res.NextCursor
		out.NextCursor = &c
	}
	for _, f := range res.Files {
		out.Files = append(out.Files, toWorkflowFile(f))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getWorkflowFile(w http.ResponseWriter, r *http.Request) {
	wfID, err := pathID(r, "workflowId", "workflow")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := pathID(r, "fileId", "workflow file")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := s.files.Get(r.Context(), userID(r), wfID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkflowFile(f))
}

func (s *Server) upsertWorkflowFile(w http.ResponseWriter, r *http.Request) {
	wfID, err := pathID(r, "workflowId", "workflow")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req upsertWorkflowFileRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := s.files.Upsert(r.Context(), userID(r), wfID, usecase.UpsertWorkflowFileInput{
		ID:          req.ID,
		StorageKey:  req.S3Key,
		FileData:    req.FileData,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		Version:     req.Version,
		Description: req.Description,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if req.ID == "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, toWorkflowFile(f))
}

func (s *Server) deleteWorkflowFile(w http.ResponseWriter, r *http.Request) {
	wfID, err := pathID(r, "workflowId", "workflow")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := pathID(r, "fileId", "workflow file")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.files.Delete(r.Context(), userID(r), wfID, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
