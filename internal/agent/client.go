package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client talks HTTP JSON to the agent runtime. The runtime owns orchestration,
// compliance checks and playbook execution; this client only submits work,
// polls status and requests cancellation.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for the runtime at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// RunChat submits a chat turn. The response is either a synchronous result or
// a job handle (see ChatResponse.IsAsync).
func (c *Client) RunChat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/agent/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var resp ChatResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	return &resp, nil
}

// JobStatus fetches one status snapshot for a background job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/agent/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build job status request: %w", err)
	}

	var status JobStatus
	if err := c.do(httpReq, &status); err != nil {
		return nil, fmt.Errorf("job status request failed for job %s: %w", jobID, err)
	}
	return &status, nil
}

// CancelJob asks the runtime to stop a job. Best-effort: callers are expected
// to clear local state whether or not this succeeds.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/agent/jobs/"+url.PathEscape(jobID)+"/cancel", nil)
	if err != nil {
		return fmt.Errorf("failed to build cancel request: %w", err)
	}

	if err := c.do(httpReq, nil); err != nil {
		return fmt.Errorf("cancel request failed for job %s: %w", jobID, err)
	}
	return nil
}

// do executes the request and decodes a JSON body into out when out is
// non-nil. Non-2xx statuses are surfaced as errors with the response body
// included for diagnosis.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
