package adapter

import "context"

// JobDispatcher sends the trigger event that starts a pipeline run for a job.
// userID is the concurrency partition key.
type JobDispatcher interface {
	Dispatch(ctx context.Context, jobID, userID string) error
}
