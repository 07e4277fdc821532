package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"canopy-backend/internal/models"
)

// ErrNotFound is returned when a specific record is not found.
var ErrNotFound = errors.New("record not found")

// CreateSessionParams contains parameters for creating a chat session.
type CreateSessionParams struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Title          string
	Persona        string
	Messages       []byte // JSON marshaled ConversationMessage array
}

// CreatePlaybookParams contains parameters for creating a playbook.
type CreatePlaybookParams struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	CronTrigger    string
	Persona        string
	Prompt         string
	Enabled        bool
}

// UpdatePlaybookParams contains parameters for updating a playbook.
// Pointer fields allow partial updates.
type UpdatePlaybookParams struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           *string
	CronTrigger    *string
	Persona        *string
	Prompt         *string
	Enabled        *bool
}

// CreatePlaybookRunParams contains parameters for recording a playbook dispatch.
type CreatePlaybookRunParams struct {
	ID             uuid.UUID
	PlaybookID     uuid.UUID
	OrganizationID uuid.UUID
	JobID          string
	Status         string
}

// CreateChannelParams contains parameters for creating a notification channel.
// EncryptedToken holds the AES-GCM ciphertext; encryption happens in the
// service layer.
type CreateChannelParams struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Kind           string
	Name           string
	Target         string
	EncryptedToken []byte
	IsActive       bool
}

// Store defines the interface for database operations.
// This allows for mocking in tests and potential DB backend switching.
type Store interface {
	// User operations
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error

	// Organization operations
	CreateOrganization(ctx context.Context, org *models.Organization) error

	// Chat session operations
	CreateSession(ctx context.Context, arg CreateSessionParams) (*models.ChatSession, error)
	GetSessionByID(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.ChatSession, error)
	ListSessionsByOrg(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]models.ChatSession, error)
	SaveSessionMessages(ctx context.Context, id uuid.UUID, orgID uuid.UUID, messages []byte) error
	DeleteSession(ctx context.Context, id uuid.UUID, orgID uuid.UUID) error

	// Playbook operations
	CreatePlaybook(ctx context.Context, arg CreatePlaybookParams) (*models.Playbook, error)
	GetPlaybookByID(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.Playbook, error)
	ListPlaybooksByOrg(ctx context.Context, orgID uuid.UUID) ([]models.Playbook, error)
	ListEnabledPlaybooks(ctx context.Context) ([]models.Playbook, error)
	UpdatePlaybook(ctx context.Context, arg UpdatePlaybookParams) (*models.Playbook, error)
	DeletePlaybook(ctx context.Context, id uuid.UUID, orgID uuid.UUID) error

	// Playbook run operations
	CreatePlaybookRun(ctx context.Context, arg CreatePlaybookRunParams) (*models.PlaybookRun, error)
	FinishPlaybookRun(ctx context.Context, id uuid.UUID, status string, resultContent string) error
	ListPlaybookRuns(ctx context.Context, playbookID uuid.UUID, orgID uuid.UUID, limit int) ([]models.PlaybookRun, error)

	// Notification channel operations
	CreateChannel(ctx context.Context, arg CreateChannelParams) (*models.NotificationChannel, error)
	GetChannelByID(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.NotificationChannel, error)
	ListChannelsByOrg(ctx context.Context, orgID uuid.UUID) ([]models.NotificationChannel, error)
	ListActiveChannelsByOrg(ctx context.Context, orgID uuid.UUID) ([]models.NotificationChannel, error)
	DeleteChannel(ctx context.Context, id uuid.UUID, orgID uuid.UUID) error
}
