package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageRole identifies who produced a conversation message.
type MessageRole string

const (
	RoleUser  MessageRole = "user"
	RoleAgent MessageRole = "agent"
)

// StepStatus is the lifecycle status of a single tool-call step.
// Transitions are monotonic: a step never returns to pending.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// ToolCallStep is one backend tool invocation surfaced while an agent job runs.
type ToolCallStep struct {
	ID          string     `json:"id"`
	ToolName    string     `json:"tool_name"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
	DurationMs  int64      `json:"duration_ms,omitempty"`
}

// ThinkingState tracks intermediate progress on an agent message while its
// backend job is still running.
type ThinkingState struct {
	IsThinking bool           `json:"is_thinking"`
	Steps      []ToolCallStep `json:"steps,omitempty"`
}

// MessageMetadata carries structured annotations attached to a finalized
// agent message.
type MessageMetadata struct {
	JobID            string          `json:"job_id,omitempty"`
	Persona          string          `json:"persona,omitempty"`
	RequiresApproval bool            `json:"requires_approval,omitempty"`
	Extra            json.RawMessage `json:"extra,omitempty"`
}

// ConversationMessage is a single turn entry in a chat session. Agent messages
// are created as placeholders with Thinking.IsThinking set and mutated in
// place (through the conversation store API) as job progress arrives.
type ConversationMessage struct {
	ID        uuid.UUID        `json:"id"`
	Role      MessageRole      `json:"role"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
	Thinking  *ThinkingState   `json:"thinking,omitempty"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

// Thought is one intermediate progress record reported by the agent runtime
// while a job runs, distinct from the final answer.
type Thought struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// JobHandle ties an in-flight backend job to the agent placeholder message it
// will eventually finalize. At most one handle is active per conversation.
type JobHandle struct {
	JobID     string
	MessageID uuid.UUID
}

// AttachmentKind categorizes a user-supplied attachment.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentFile  AttachmentKind = "file"
)

// AttachmentDraft is a transient, client-supplied attachment. It is converted
// to a base64 payload at submission time and discarded after dispatch.
type AttachmentDraft struct {
	ID          uuid.UUID
	Name        string
	ContentType string
	Kind        AttachmentKind
	Data        []byte
}

// KindForContentType maps a MIME content type onto an attachment kind.
func KindForContentType(contentType string) AttachmentKind {
	if len(contentType) >= 6 && contentType[:6] == "image/" {
		return AttachmentImage
	}
	return AttachmentFile
}
