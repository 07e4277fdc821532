package agent

import (
	"encoding/json"

	"canopy-backend/internal/models"
)

// ChatOptions is the validated configuration for one agent invocation.
type ChatOptions struct {
	IntelligenceLevel models.IntelligenceLevel `json:"intelligence_level"`
	AudioBase64       string                   `json:"audio_base64,omitempty"`
	Attachments       []AttachmentPayload      `json:"attachments,omitempty"`
}

// AttachmentPayload is the wire form of one user attachment.
type AttachmentPayload struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Base64 string `json:"base64"`
}

// ChatRequest is the body sent to the agent runtime's chat entry point.
type ChatRequest struct {
	Text    string         `json:"text"`
	Persona models.Persona `json:"persona"`
	Options ChatOptions    `json:"options"`
}

// ToolCallRecord describes one tool invocation reported with a synchronous
// result.
type ToolCallRecord struct {
	ID          string `json:"id"`
	ToolName    string `json:"tool_name"`
	Description string `json:"description"`
	DurationMs  int64  `json:"duration_ms,omitempty"`
}

// ChatResponse is what the chat entry point returns. Exactly one of two
// shapes arrives: a synchronous result (Content set, JobID empty) or an
// asynchronous job handle (JobID set, everything else empty).
type ChatResponse struct {
	Content   string           `json:"content,omitempty"`
	Metadata  json.RawMessage  `json:"metadata,omitempty"`
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`
	JobID     string           `json:"job_id,omitempty"`
}

// IsAsync reports whether the response handed back a background job instead
// of a final result.
func (r *ChatResponse) IsAsync() bool {
	return r.JobID != ""
}

// JobState is the coarse status of a background agent job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Terminal reports whether the job has finished, successfully or not.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobResult is the final payload of a completed job.
type JobResult struct {
	Content  string          `json:"content"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// JobStatus is one snapshot of a background job as returned by the status
// endpoint. Thoughts is the full progress list so far, in arrival order.
type JobStatus struct {
	Status           JobState         `json:"status"`
	Result           *JobResult       `json:"result,omitempty"`
	Error            string           `json:"error,omitempty"`
	Thoughts         []models.Thought `json:"thoughts,omitempty"`
	RequiresApproval bool             `json:"requires_approval,omitempty"`
}
