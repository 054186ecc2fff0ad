package model

import (
	"encoding/json"
	"time"

	"workflow-dashboard/internal/domain"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSuccessful JobStatus = "successful"
	JobStatusFailed     JobStatus = "failed"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusSuccessful, JobStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccessful || s == JobStatusFailed
}

// transitions lists, per target status, the statuses a job may move from.
// processing -> processing is the re-entry of a retried run.
var transitions = map[JobStatus][]JobStatus{
	JobStatusProcessing: {JobStatusQueued, JobStatusProcessing},
	JobStatusSuccessful: {JobStatusProcessing},
	JobStatusFailed:     {JobStatusQueued, JobStatusProcessing},
}

// AllowedFrom returns the statuses from which a job may enter to.
func AllowedFrom(to JobStatus) []JobStatus {
	return transitions[to]
}

func CanTransition(from, to JobStatus) bool {
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

type JobKind string

const (
	JobKindUsers        JobKind = "users"
	JobKindServiceUnits JobKind = "service_units"
)

func (k JobKind) Valid() bool {
	return k == JobKindUsers || k == JobKindServiceUnits
}

// FailureReason says which part of the pipeline failed a job.
type FailureReason string

const (
	FailureNone          FailureReason = ""
	FailureLoad          FailureReason = "load_failed"
	FailureStorageKey    FailureReason = "storage_key_failed"
	FailureStatusUpdate  FailureReason = "status_update_failed"
	FailureProcessor     FailureReason = "processor_failed"
	FailureCollection    FailureReason = "collection_failed"
	FailureTimedOut      FailureReason = "timed_out"
	FailureUnknownReason FailureReason = "unknown"
)

type Job struct {
	ID            string
	WorkflowID    string
	UserID        string
	Kind          JobKind
	Payload       json.RawMessage
	StorageKey    *string
	Status        JobStatus
	FailureReason FailureReason
	FailureDetail string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// NewJob builds a queued job owned by userID.
func NewJob(workflowID, userID string, kind JobKind, payload json.RawMessage, storageKey string) (*Job, error) {
	if workflowID == "" || userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if !kind.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	j := &Job{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		UserID:     userID,
		Kind:       kind,
		Payload:    payload,
		Status:     JobStatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if storageKey != "" {
		j.StorageKey = &storageKey
	}
	return j, nil
}

// Key returns the storage-folder key or "" when none is provisioned.
func (j *Job) Key() string {
	if j == nil || j.StorageKey == nil {
		return ""
	}
	return *j.StorageKey
}

// Transition moves the job to status `to` and stamps the matching timestamp.
// started_at is only written on the first entry into processing; completed_at
// only on entry into a terminal status.
func (j *Job) Transition(to JobStatus, at time.Time) error {
	if !CanTransition(j.Status, to) {
		return domain.ErrInvalidTransition
	}
	switch to {
	case JobStatusProcessing:
		if j.StartedAt == nil {
			t := at
			j.StartedAt = &t
		}
	case JobStatusSuccessful, JobStatusFailed:
		t := at
		j.CompletedAt = &t
	}
	j.Status = to
	j.UpdatedAt = at
	return nil
}
