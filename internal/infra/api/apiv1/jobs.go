package apiv1

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"workflow-dashboard/internal/domain"
	"workflow-dashboard/internal/domain/model"
	"workflow-dashboard/internal/domain/ports/repository"
	"workflow-dashboard/internal/usecase"
)

type Job struct {
	ID            string          `json:"id"`
	WorkflowID    string          `json:"workflowId"`
	UserID        string          `json:"userId"`
	JobType       model.JobKind   `json:"jobType"`
	Payload       json.RawMessage `json:"payload"`
	S3Key         *string         `json:"s3_key"`
	Status        model.JobStatus `json:"status"`
	FailureReason *string         `json:"failureReason"`
	FailureDetail *string         `json:"failureDetail,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	StartedAt     *time.Time      `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at"`
	Files         []File          `json:"files,omitempty"`
}

type File struct {
	ID         string    `json:"id"`
	S3Key      string    `json:"s3_key"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	WorkflowID string    `json:"workflowId"`
	JobID      string    `json:"jobId"`
	CreatedAt  time.Time `json:"created_at"`
}

type JobList struct {
	Jobs       []Job `json:"jobs"`
	Total      int   `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

type createJobRequest struct {
	WorkflowID string          `json:"workflowId" validate:"required,uuid"`
	JobType    string          `json:"jobType" validate:"required,oneof=users service_units"`
	S3Key      string          `json:"s3_key"`
	Payload    json.RawMessage `json:"payload"`
}

type listJobsQuery struct {
	WorkflowID string `validate:"omitempty,uuid"`
	JobType    string `validate:"omitempty,oneof=users service_units"`
	Status     string `validate:"omitempty,oneof=queued processing successful failed"`
	Search     string
	SortBy     string `validate:"omitempty,oneof=createdAt updatedAt status jobType"`
	SortOrder  string `validate:"omitempty,oneof=asc desc"`
	Page       int    `validate:"gte=0"`
	Limit      int    `validate:"gte=0,lte=100"`
}

type downloadURLsRequest struct {
	Keys []string `json:"keys" validate:"required,dive,required"`
}

type DownloadURL struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

func toJob(j *model.Job) Job {
	out := Job{
		ID:          j.ID,
		WorkflowID:  j.WorkflowID,
		UserID:      j.UserID,
		JobType:     j.Kind,
		Payload:     j.Payload,
		S3Key:       j.StorageKey,
		Status:      j.Status,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
	if j.FailureReason != model.FailureNone {
		r := string(j.FailureReason)
		out.FailureReason = &r
	}
	if j.FailureDetail != "" {
		d := j.FailureDetail
		out.FailureDetail = &d
	}
	return out
}

func toFile(f *model.File) File {
	return File{
		ID:         f.ID,
		S3Key:      f.StorageKey,
		Name:       f.Name,
		URL:        f.URL,
		WorkflowID: f.WorkflowID,
		JobID:      f.JobID,
		CreatedAt:  f.CreatedAt,
	}
}

// intParam parses an optional integer query parameter.
func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, domain.BadRequest(name + " must be a positive integer")
	}
	return n, nil
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(r, "page")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	in := listJobsQuery{
		WorkflowID: q.Get("workflowId"),
		JobType:    q.Get("jobType"),
		Status:     q.Get("status"),
		Search:     q.Get("search"),
		SortBy:     q.Get("sortBy"),
		SortOrder:  q.Get("sortOrder"),
		Page:       page,
		Limit:      limit,
	}
	if err := s.check(in); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.jobs.List(r.Context(), userID(r), usecase.JobQuery{
		WorkflowID: in.WorkflowID,
		Kind:       model.JobKind(in.JobType),
		Status:     model.JobStatus(in.Status),
		Search:     in.Search,
		SortBy:     repository.JobSort(in.SortBy),
		Order:      repository.SortOrder(in.SortOrder),
		Page:       in.Page,
		Limit:      in.Limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := JobList{Jobs: make([]Job, 0, len(res.Jobs)), Total: res.Total, Page: res.Page, Limit: res.Limit, TotalPages: res.TotalPages}
	for _, j := range res.Jobs {
		out.Jobs = append(out.Jobs, toJob(j))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	job, err := s.jobs.Create(r.Context(), userID(r), usecase.CreateJobInput{
		WorkflowID: req.WorkflowID,
		Kind:       model.JobKind(req.JobType),
		StorageKey: req.S3Key,
		Payload:    payloadOf(req.Payload),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toJob(job))
}

// payloadOf accepts the payload either as JSON or as a string holding JSON.
func payloadOf(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	return raw
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "job")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	detail, err := s.jobs.Get(r.Context(), userID(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := toJob(detail.Job)
	out.Files = make([]File, 0, len(detail.Files))
	for _, f := range detail.Files {
		out.Files = append(out.Files, toFile(f))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) processJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "job")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.jobs.Process(r.Context(), userID(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"success": true})
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "job")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.jobs.Delete(r.Context(), userID(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) downloadURLs(w http.ResponseWriter, r *http.Request) {
	var req downloadURLsRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	urls, err := s.jobs.DownloadURLs(r.Context(), userID(r), req.Keys)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]DownloadURL, 0, len(urls))
	for _, u := range urls {
		out = append(out, DownloadURL{Key: u.Key, URL: u.URL})
	}
	writeJSON(w, http.StatusOK, out)
}
