// Package processor calls the external endpoint that turns a job payload
// into output files under the job's storage folder.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"workflow-dashboard/internal/domain"
	"workflow-dashboard/internal/domain/ports/adapter"
	"workflow-dashboard/internal/infra/metrics"
)

var _ adapter.ProcessorClient = (*HTTPClient)(nil)

// HTTPClient POSTs ProcessRequest bodies to a fixed endpoint with a bearer token.
type HTTPClient struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPClient returns a client for endpoint. A zero timeout leaves the
// call bounded only by the caller's context.
func NewHTTPClient(endpoint, token string, timeout time.Duration) (*HTTPClient, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("processor endpoint empty")
	}
	return &HTTPClient{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Invoke sends req and discards the response body. Transport errors and
// non-2xx replies are reported as domain.CodeUpstream errors.
func (c *HTTPClient) Invoke(ctx context.Context, req adapter.ProcessRequest) error {
	if len(req.Payload) == 0 {
		req.Payload = json.RawMessage("null")
	}
	b, err := json.Marshal(req)
	if err != nil {
		return domain.Internal("could not encode processing request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(b))
	if err != nil {
		return domain.Internal("could not build processing request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		metrics.IncProcessorCall("transport_error")
		return domain.Upstream("processing endpoint unreachable", fmt.Errorf("%w: %w", domain.ErrUpstream, err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.IncProcessorCall("http_error")
		return domain.Upstream(
			fmt.Sprintf("processing endpoint returned %d", resp.StatusCode),
			fmt.Errorf("%w: http %d", domain.ErrUpstream, resp.StatusCode),
		)
	}
	metrics.IncProcessorCall("ok")
	return nil
}
