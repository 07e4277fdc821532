package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"canopy-backend/internal/models"
	"canopy-backend/internal/store"
)

// Compile-time check to ensure PostgresStore implements store.Store
var _ store.Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetUserByEmail retrieves a user by their email address.
// Returns store.ErrNotFound if the user does not exist.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, organization_id, email, hashed_password, created_at, updated_at
		FROM users
		WHERE email = $1`

	user := &models.User{}
	err := s.db.QueryRow(ctx, query, email).Scan(
		&user.ID,
		&user.OrganizationID,
		&user.Email,
		&user.HashedPassword,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		log.Printf("ERROR [PostgresStore] GetUserByEmail: failed to query/scan user for email %s: %v", email, err)
		return nil, fmt.Errorf("database error fetching user by email: %w", err)
	}

	return user, nil
}

// CreateUser inserts a new user record into the database.
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, organization_id, email, hashed_password)
		VALUES ($1, $2, $3, $4)`
	// created_at and updated_at have database defaults (NOW())

	_, err := s.db.Exec(ctx, query,
		user.ID,
		user.OrganizationID,
		user.Email,
		user.HashedPassword,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			// "23505" is unique_violation (e.g., duplicate email)
			log.Printf("ERROR [PostgresStore] CreateUser: PostgreSQL error for email %s: Code=%s, Message=%s", user.Email, pgErr.Code, pgErr.Message)
		} else {
			log.Printf("ERROR [PostgresStore] CreateUser: failed to insert user %s: %v", user.Email, err)
		}
		return fmt.Errorf("database error creating user: %w", err)
	}

	return nil
}

// CreateOrganization inserts a new organization record into the database.
func (s *PostgresStore) CreateOrganization(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (id, name)
		VALUES ($1, $2)`

	_, err := s.db.Exec(ctx, query, org.ID, org.Name)
	if err != nil {
		log.Printf("ERROR [PostgresStore] CreateOrganization: failed to insert org %s: %v", org.Name, err)
		return fmt.Errorf("database error creating organization: %w", err)
	}

	return nil
}

// --- Chat Session Methods ---

const createSession = `
INSERT INTO chat_sessions (id, organization_id, title, persona, messages)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, organization_id, title, persona, messages, created_at, updated_at;`

func (s *PostgresStore) CreateSession(ctx context.Context, arg store.CreateSessionParams) (*models.ChatSession, error) {
	id := arg.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	messages := arg.Messages
	if messages == nil {
		messages = []byte("[]")
	}

	row := s.db.QueryRow(ctx, createSession, id, arg.OrganizationID, arg.Title, arg.Persona, messages)

	var session models.ChatSession
	err := row.Scan(
		&session.ID,
		&session.OrganizationID,
		&session.Title,
		&session.Persona,
		&session.Messages,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("error scanning chat session: %w", err)
	}

	return &session, nil
}

const getSessionByID = `
SELECT id, organization_id, title, persona, messages, created_at, updated_at
FROM chat_sessions
WHERE id = $1 AND organization_id = $2;`

func (s *PostgresStore) GetSessionByID(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.ChatSession, error) {
	row := s.db.QueryRow(ctx, getSessionByID, id, orgID)

	var session models.ChatSession
	err := row.Scan(
		&session.ID,
		&session.OrganizationID,
		&session.Title,
		&session.Persona,
		&session.Messages,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning chat session: %w", err)
	}

	return &session, nil
}

const listSessionsByOrg = `
SELECT id, organization_id, title, persona, messages, created_at, updated_at
FROM chat_sessions
WHERE organization_id = $1
ORDER BY updated_at DESC
LIMIT $2 OFFSET $3;`

func (s *PostgresStore) ListSessionsByOrg(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]models.ChatSession, error) {
	rows, err := s.db.Query(ctx, listSessionsByOrg, orgID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("error querying chat sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.ChatSession
	for rows.Next() {
		var session models.ChatSession
		err := rows.Scan(
			&session.ID,
			&session.OrganizationID,
			&session.Title,
			&session.Persona,
			&session.Messages,
			&session.CreatedAt,
			&session.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning chat session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat session rows: %w", err)
	}

	return sessions, nil
}

const saveSessionMessages = `
UPDATE chat_sessions
SET messages = $3, updated_at = NOW()
WHERE id = $1 AND organization_id = $2;`

// SaveSessionMessages replaces the session's message log. Called on the
// debounced save path, so it must stay a single cheap statement.
func (s *PostgresStore) SaveSessionMessages(ctx context.Context, id uuid.UUID, orgID uuid.UUID, messages []byte) error {
	tag, err := s.db.Exec(ctx, saveSessionMessages, id, orgID, messages)
	if err != nil {
		return fmt.Errorf("error saving session messages: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const deleteSession = `
DELETE FROM chat_sessions
WHERE id = $1 AND organization_id = $2;`

func (s *PostgresStore) DeleteSession(ctx context.Context, id uuid.UUID, orgID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, deleteSession, id, orgID)
	if err != nil {
		return fmt.Errorf("error deleting chat session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
