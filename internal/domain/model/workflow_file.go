package model

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowFile is a user-supplied, versioned input attached to a workflow.
// Exactly one storage object backs each record.
type WorkflowFile struct {
	ID          string
	WorkflowID  string
	UserID      string
	StorageKey  string
	Description *string
	DisplayName *string
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewWorkflowFile(workflowID, userID, key string, version int, description, displayName *string) *WorkflowFile {
	now := time.Now().UTC()
	return &WorkflowFile{
		ID:          uuid.NewString(),
		WorkflowID:  workflowID,
		UserID:      userID,
		StorageKey:  key,
		Description: description,
		DisplayName: displayName,
		Version:     version,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
