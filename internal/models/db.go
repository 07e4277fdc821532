package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// User represents a dashboard operator account in the database.
type User struct {
	ID             uuid.UUID `db:"id"`
	OrganizationID uuid.UUID `db:"organization_id"`
	Email          string    `db:"email"`
	HashedPassword string    `db:"hashed_password"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Organization represents a retail/brand operator tenant.
type Organization struct {
	ID        uuid.UUID `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ChatSession represents a persisted conversation. Messages are stored as a
// JSONB array of ConversationMessage.
type ChatSession struct {
	ID             uuid.UUID       `db:"id"`
	OrganizationID uuid.UUID       `db:"organization_id"`
	Title          string          `db:"title"`
	Persona        string          `db:"persona"`
	Messages       json.RawMessage `db:"messages"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// Playbook is a declarative automation template: a cron trigger plus an agent
// prompt dispatched on that schedule.
type Playbook struct {
	ID             uuid.UUID `db:"id"`
	OrganizationID uuid.UUID `db:"organization_id"`
	Name           string    `db:"name"`
	CronTrigger    string    `db:"cron_trigger"`
	Persona        string    `db:"persona"`
	Prompt         string    `db:"prompt"`
	Enabled        bool      `db:"enabled"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// PlaybookRun records one dispatch of a playbook and its terminal outcome.
type PlaybookRun struct {
	ID             uuid.UUID  `db:"id"`
	PlaybookID     uuid.UUID  `db:"playbook_id"`
	OrganizationID uuid.UUID  `db:"organization_id"`
	JobID          string     `db:"job_id"`
	Status         string     `db:"status"` // RUNNING, COMPLETED, FAILED
	ResultContent  string     `db:"result_content"`
	StartedAt      time.Time  `db:"started_at"`
	FinishedAt     *time.Time `db:"finished_at"`
}

// ChannelKind identifies a notification delivery mechanism.
type ChannelKind string

const (
	ChannelKindSlack ChannelKind = "SLACK"
)

// NotificationChannel is an org-scoped destination for job and playbook-run
// notifications. The access token is encrypted at rest.
type NotificationChannel struct {
	ID             uuid.UUID   `db:"id"`
	OrganizationID uuid.UUID   `db:"organization_id"`
	Kind           ChannelKind `db:"kind"`
	Name           string      `db:"name"`
	Target         string      `db:"target"` // e.g. Slack channel ID
	EncryptedToken []byte      `db:"encrypted_token"`
	IsActive       bool        `db:"is_active"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}
