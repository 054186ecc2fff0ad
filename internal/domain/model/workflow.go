package model

import (
	"strings"
	"time"

	"workflow-dashboard/internal/domain"

	"github.com/google/uuid"
)

type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "pending"
	WorkflowStatusCompleted WorkflowStatus = "completed"
)

func (s WorkflowStatus) Valid() bool {
	return s == WorkflowStatusPending || s == WorkflowStatusCompleted
}

type WorkflowNotes struct {
	Note *string `json:"note,omitempty"`
}

// Workflow is a named container owning jobs and uploaded files for one user.
type Workflow struct {
	ID          string
	UserID      string
	Title       string
	Description *string
	Status      WorkflowStatus
	Notes       *WorkflowNotes
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewWorkflow(userID, title, description, note string) (*Workflow, error) {
	title = strings.TrimSpace(title)
	if userID == "" || title == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	w := &Workflow{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Status:    WorkflowStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if description != "" {
		w.Description = &description
	}
	if note != "" {
		w.Notes = &WorkflowNotes{Note: &note}
	}
	return w, nil
}
