package apiv1

import (
	"net/http"
	"time"

	"workflow-dashboard/internal/domain/model"
	"workflow-dashboard/internal/domain/ports/repository"
	"workflow-dashboard/internal/usecase"
)

type WorkflowNotes struct {
	Note *string `json:"note"`
}

type Workflow struct {
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	Description *string              `json:"description"`
	Status      model.WorkflowStatus `json:"status"`
	Notes       *WorkflowNotes       `json:"notes"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

type WorkflowList struct {
	Workflows  []Workflow `json:"workflows"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	Limit      int        `json:"limit"`
	TotalPages int        `json:"totalPages"`
}

type createWorkflowRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Note        string `json:"note"`
}

type updateWorkflowStatusRequest struct {
	IDs    []string `json:"ids" validate:"required,dive,uuid"`
	Status string   `json:"status" validate:"required,oneof=pending completed"`
}

type listWorkflowsQuery struct {
	Search    string
	SortBy    string `validate:"omitempty,oneof=title createdAt updatedAt status"`
	SortOrder string `validate:"omitempty,oneof=asc desc"`
	Page      int    `validate:"gte=0"`
	Limit     int    `validate:"gte=0,lte=100"`
}

func toWorkflow(wf *model.Workflow) Workflow {
	out := Workflow{
		ID:          wf.ID,
		Title:       wf.Title,
		Description: wf.Description,
		Status:      wf.Status,
		CreatedAt:   wf.CreatedAt,
		UpdatedAt:   wf.UpdatedAt,
	}
	if wf.Notes != nil {
		out.Notes = &WorkflowNotes{Note: wf.Notes.Note}
	}
	return out
}

func (s *Server) listWorkflows(w http.ResponseWriter, r *http.Request) {
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
	q := r.URL.Query()
	in := listWorkflowsQuery{
		Search:    q.Get("search"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
		Page:      page,
		Limit:     limit,
	}
	if err := s.check(in); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.workflows.List(r.Context(), userID(r), usecase.WorkflowQuery{
		Search: in.Search,
		SortBy: repository.WorkflowSort(in.SortBy),
		Order:  repository.SortOrder(in.SortOrder),
		Page:   in.Page,
		Limit:  in.Limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := WorkflowList{Workflows: make([]Workflow, 0, len(res.Workflows)), Total: res.Total, Page: res.Page, Limit: res.Limit, TotalPages: res.TotalPages}
	for _, wf := range res.Workflows {
		out.Workflows = append(out.Workflows, toWorkflow(wf))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	wf, err := s.workflows.Create(r.Context(), userID(r), req.Title, req.Description, req.Note)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkflow(wf))
}

func (s *Server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "workflowId", "workflow")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	wf, err := s.workflows.Get(r.Context(), userID(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkflow(wf))
}

func (s *Server) updateWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	var req updateWorkflowStatusRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.workflows.UpdateStatus(r.Context(), userID(r), req.IDs, model.WorkflowStatus(req.Status))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}
