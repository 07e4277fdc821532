package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"canopy-backend/internal/models"
	"canopy-backend/internal/store"
)

// --- Notification Channel Methods ---

const channelColumns = `id, organization_id, kind, name, target, encrypted_token, is_active, created_at, updated_at`

func scanChannel(row pgx.Row) (*models.NotificationChannel, error) {
	var ch models.NotificationChannel
	err := row.Scan(
		&ch.ID,
		&ch.OrganizationID,
		&ch.Kind,
		&ch.Name,
		&ch.Target,
		&ch.EncryptedToken,
		&ch.IsActive,
		&ch.CreatedAt,
		&ch.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning notification channel: %w", err)
	}
	return &ch, nil
}

// CreateChannel inserts a new notification channel record.
func (s *PostgresStore) CreateChannel(ctx context.Context, arg store.CreateChannelParams) (*models.NotificationChannel, error) {
	id := arg.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	query := `
		INSERT INTO notification_channels (id, organization_id, kind, name, target, encrypted_token, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + channelColumns + `;`

	ch, err := scanChannel(s.db.QueryRow(ctx, query,
		id, arg.OrganizationID, arg.Kind, arg.Name, arg.Target, arg.EncryptedToken, arg.IsActive))
	if err != nil {
		log.Printf("ERROR [PostgresStore] CreateChannel: failed for OrgID %s: %v", arg.OrganizationID, err)
		return nil, fmt.Errorf("database error creating notification channel: %w", err)
	}

	return ch, nil
}

// GetChannelByID retrieves a specific channel by its ID and organization ID.
func (s *PostgresStore) GetChannelByID(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.NotificationChannel, error) {
	query := `SELECT ` + channelColumns + ` FROM notification_channels WHERE id = $1 AND organization_id = $2;`
	return scanChannel(s.db.QueryRow(ctx, query, id, orgID))
}

// ListChannelsByOrg retrieves all channels for an organization.
func (s *PostgresStore) ListChannelsByOrg(ctx context.Context, orgID uuid.UUID) ([]models.NotificationChannel, error) {
	query := `SELECT ` + channelColumns + ` FROM notification_channels WHERE organization_id = $1 ORDER BY created_at DESC;`
	return s.queryChannels(ctx, query, orgID)
}

// ListActiveChannelsByOrg retrieves the channels notifications are delivered
// to.
func (s *PostgresStore) ListActiveChannelsByOrg(ctx context.Context, orgID uuid.UUID) ([]models.NotificationChannel, error) {
	query := `SELECT ` + channelColumns + ` FROM notification_channels WHERE organization_id = $1 AND is_active ORDER BY created_at;`
	return s.queryChannels(ctx, query, orgID)
}

func (s *PostgresStore) queryChannels(ctx context.Context, query string, args ...any) ([]models.NotificationChannel, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying notification channels: %w", err)
	}
	defer rows.Close()

	var channels []models.NotificationChannel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, *ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification channel rows: %w", err)
	}

	return channels, nil
}

// DeleteChannel removes a channel.
func (s *PostgresStore) DeleteChannel(ctx context.Context, id uuid.UUID, orgID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM notification_channels WHERE id = $1 AND organization_id = $2;`, id, orgID)
	if err != nil {
		return fmt.Errorf("error deleting notification channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
