package adapter

import (
	"context"
	"encoding/json"
)

// ProcessRequest is the body sent to the external processing endpoint.
type ProcessRequest struct {
	Payload      json.RawMessage `json:"payload"`
	WorkflowType string          `json:"workflow_type"`
	FolderID     string          `json:"folder_id"`
}

// ProcessorClient triggers the out-of-process transformation of a job. The
// response body is not consumed; only transport/HTTP failures are reported.
type ProcessorClient interface {
	Invoke(ctx context.Context, req ProcessRequest) error
}
