package models

import (
	"time"

	"github.com/google/uuid"
)

// --- Request Structs ---

// SignupRequest defines the expected body for the signup endpoint.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest defines the expected body for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// --- Response Structs ---

// UserResponse defines the user information returned by the API.
// Avoid returning sensitive info like HashedPassword.
type UserResponse struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	OrganizationID uuid.UUID `json:"organization_id"`
}

// AuthResponse defines the response body for successful authentication.
type AuthResponse struct {
	AccessToken string       `json:"access_token"`
	User        UserResponse `json:"user"`
}

// ErrorResponse defines the standard structure for API errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// --- Chat Session DTOs ---

// CreateSessionRequest defines the body for starting a new chat session.
type CreateSessionRequest struct {
	Title   string `json:"title,omitempty"`
	Persona string `json:"persona"`
}

// SessionResponse defines the standard representation of a chat session.
type SessionResponse struct {
	ID             uuid.UUID             `json:"id"`
	OrganizationID uuid.UUID             `json:"organization_id"`
	Title          string                `json:"title"`
	Persona        string                `json:"persona"`
	Messages       []ConversationMessage `json:"messages"`
	TurnState      string                `json:"turn_state"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// ListSessionsResponse defines the response for listing sessions.
type ListSessionsResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

// SubmitMessageRequest defines the JSON body for submitting a message to a
// session. Attachments may alternatively arrive as multipart file parts.
type SubmitMessageRequest struct {
	Text              string `json:"text"`
	AudioBase64       string `json:"audio_base64,omitempty"`
	IntelligenceLevel string `json:"intelligence_level,omitempty"`
}

// SubmitMessageResponse reports what the submission produced: either a
// finalized turn (sync) or an in-flight job being polled.
type SubmitMessageResponse struct {
	UserMessage  ConversationMessage `json:"user_message"`
	AgentMessage ConversationMessage `json:"agent_message"`
	JobID        string              `json:"job_id,omitempty"`
	TurnState    string              `json:"turn_state"`
}

// --- Playbook DTOs ---

// CreatePlaybookRequest defines the body for creating a playbook.
type CreatePlaybookRequest struct {
	Name        string `json:"name"`
	CronTrigger string `json:"cron_trigger"`
	Persona     string `json:"persona"`
	Prompt      string `json:"prompt"`
	Enabled     *bool  `json:"enabled,omitempty"`
}

// UpdatePlaybookRequest defines the body for updating a playbook. Only fields
// present in the request are updated.
type UpdatePlaybookRequest struct {
	Name        *string `json:"name"`
	CronTrigger *string `json:"cron_trigger"`
	Persona     *string `json:"persona"`
	Prompt      *string `json:"prompt"`
	Enabled     *bool   `json:"enabled"`
}

// PlaybookResponse defines the standard representation of a playbook.
type PlaybookResponse struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Name           string    `json:"name"`
	CronTrigger    string    `json:"cron_trigger"`
	Persona        string    `json:"persona"`
	Prompt         string    `json:"prompt"`
	Enabled        bool      `json:"enabled"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ListPlaybooksResponse defines the response for listing playbooks.
type ListPlaybooksResponse struct {
	Playbooks []PlaybookResponse `json:"playbooks"`
}

// PlaybookRunResponse defines the representation of one playbook dispatch.
type PlaybookRunResponse struct {
	ID            uuid.UUID  `json:"id"`
	PlaybookID    uuid.UUID  `json:"playbook_id"`
	JobID         string     `json:"job_id"`
	Status        string     `json:"status"`
	ResultContent string     `json:"result_content,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// ListPlaybookRunsResponse defines the response for listing playbook runs.
type ListPlaybookRunsResponse struct {
	Runs []PlaybookRunResponse `json:"runs"`
}

// --- Notification Channel DTOs ---

// CreateChannelRequest defines the body for registering a notification
// channel. Token is accepted raw here and stored encrypted; it is never
// returned in responses.
type CreateChannelRequest struct {
	Kind   ChannelKind `json:"kind"`
	Name   string      `json:"name"`
	Target string      `json:"target"`
	Token  string      `json:"token"`
}

// ChannelResponse defines the data returned for a notification channel. It
// excludes the stored token.
type ChannelResponse struct {
	ID             uuid.UUID   `json:"id"`
	OrganizationID uuid.UUID   `json:"organization_id"`
	Kind           ChannelKind `json:"kind"`
	Name           string      `json:"name"`
	Target         string      `json:"target"`
	IsActive       bool        `json:"is_active"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// ListChannelsResponse defines the response for listing notification channels.
type ListChannelsResponse struct {
	Channels []ChannelResponse `json:"channels"`
}
