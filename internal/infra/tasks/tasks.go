// Package tasks carries the trigger event that starts a job pipeline run,
// either through asynq or through the in-process pool.
package tasks

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"workflow-dashboard/internal/config"
)

// TypeProcessWorkflow is the trigger event name.
const TypeProcessWorkflow = "process-workflow-events"

// ErrUserBusy is returned while another run of the same user is in flight.
// It is not counted as a failure, so it does not consume a retry.
var ErrUserBusy = errors.New("another run of this user is in progress")

// busyHeadroom is added to the task's asynq MaxRetry. asynq archives a task
// once Retried reaches MaxRetry, whatever the error; busy postponements never
// raise Retried, so with one slot above the real budget they always come
// back. The real budget is enforced by the handler with SkipRetry.
const busyHeadroom = 1

// QueueMaxRetry is the asynq MaxRetry for a real retry budget of maxRetry.
func QueueMaxRetry(maxRetry int) int {
	if maxRetry < 0 {
		maxRetry = 0
	}
	return maxRetry + busyHeadroom
}

// RetryBudget inverts QueueMaxRetry.
func RetryBudget(queueMaxRetry int) int {
	if n := queueMaxRetry - busyHeadroom; n > 0 {
		return n
	}
	return 0
}

// ProcessWorkflowPayload is the trigger event body. UserID is the
// concurrency partition key.
type ProcessWorkflowPayload struct {
	JobID  string `json:"job_id"`
	UserID string `json:"user_id"`
}

// TaskID is the task id of a job's trigger; a second trigger for the same
// job conflicts while the first is still known to the queue.
func TaskID(jobID string) string {
	return "process-workflow:" + jobID
}

func NewProcessWorkflowTask(jobID, userID string, opts ...asynq.Option) (*asynq.Task, error) {
	if jobID == "" || userID == "" {
		return nil, errors.New("job id and user id are required")
	}
	b, err := json.Marshal(ProcessWorkflowPayload{JobID: jobID, UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return asynq.NewTask(TypeProcessWorkflow, b, opts...), nil
}

func decodePayload(t *asynq.Task) (ProcessWorkflowPayload, error) {
	var p ProcessWorkflowPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", t.Type(), err)
	}
	if p.JobID == "" || p.UserID == "" {
		return p, fmt.Errorf("%s payload without job or user id", t.Type())
	}
	return p, nil
}

// RedisOpt builds the asynq connection from the shared redis settings.
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.URL,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}
