package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// UnknownFileName is used when an object key has no trailing path segment.
const UnknownFileName = "unknown-file"

// File is one object produced by a job run, stored under the job's folder.
type File struct {
	ID         string
	StorageKey string
	Name       string
	URL        string
	WorkflowID string
	UserID     string
	JobID      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewJobFile builds the File row for an object collected from job's folder.
func NewJobFile(job *Job, key, url string, at time.Time) *File {
	return &File{
		ID:         uuid.NewString(),
		StorageKey: key,
		Name:       FileNameFromKey(key),
		URL:        url,
		WorkflowID: job.WorkflowID,
		UserID:     job.UserID,
		JobID:      job.ID,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

// FileNameFromKey returns the last path segment of key.
func FileNameFromKey(key string) string {
	name := key
	if i := strings.LastIndex(key, "/"); i >= 0 {
		name = key[i+1:]
	}
	if name == "" {
		return UnknownFileName
	}
	return name
}
