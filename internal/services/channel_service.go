package services

import (
	"context"
	"crypto/cipher"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"canopy-backend/internal/crypto"
	"canopy-backend/internal/models"
	"canopy-backend/internal/notify"
	"canopy-backend/internal/store"
)

// Custom errors for channel service
var (
	ErrUnsupportedChannelKind = errors.New("unsupported channel kind")
	ErrInvalidChannelTarget   = errors.New("invalid channel target")
)

// ChannelService manages notification channels. Tokens are encrypted with
// AES-GCM before they reach the store and only decrypted at send time.
type ChannelService struct {
	store    store.Store
	aead     cipher.AEAD
	registry *notify.Registry
}

// NewChannelService creates a new ChannelService.
func NewChannelService(s store.Store, aead cipher.AEAD, registry *notify.Registry) *ChannelService {
	return &ChannelService{
		store:    s,
		aead:     aead,
		registry: registry,
	}
}

// CreateChannel validates and registers a notification channel.
func (s *ChannelService) CreateChannel(ctx context.Context, orgID uuid.UUID, req models.CreateChannelRequest) (*models.ChannelResponse, error) {
	notifier, err := s.registry.Get(req.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedChannelKind, err)
	}

	if err := notifier.ValidateTarget(req.Target); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChannelTarget, err)
	}
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidChannelTarget)
	}
	if req.Token == "" {
		return nil, fmt.Errorf("%w: token is required", ErrInvalidChannelTarget)
	}

	encryptedToken, err := crypto.EncryptToken(s.aead, req.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt channel token: %w", err)
	}

	ch, err := s.store.CreateChannel(ctx, store.CreateChannelParams{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Kind:           string(req.Kind),
		Name:           req.Name,
		Target:         req.Target,
		EncryptedToken: encryptedToken,
		IsActive:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create channel in store: %w", err)
	}

	return mapChannelToResponse(ch), nil
}

// ListChannels retrieves all channels for an organization.
func (s *ChannelService) ListChannels(ctx context.Context, orgID uuid.UUID) (*models.ListChannelsResponse, error) {
	channels, err := s.store.ListChannelsByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels from store: %w", err)
	}

	responses := make([]models.ChannelResponse, 0, len(channels))
	for i := range channels {
		responses = append(responses, *mapChannelToResponse(&channels[i]))
	}

	return &models.ListChannelsResponse{Channels: responses}, nil
}

// GetChannelByID retrieves a single channel.
func (s *ChannelService) GetChannelByID(ctx context.Context, orgID, channelID uuid.UUID) (*models.ChannelResponse, error) {
	ch, err := s.store.GetChannelByID(ctx, channelID, orgID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return mapChannelToResponse(ch), nil
}

// DeleteChannel removes a channel.
func (s *ChannelService) DeleteChannel(ctx context.Context, orgID, channelID uuid.UUID) error {
	if err := s.store.DeleteChannel(ctx, channelID, orgID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	return nil
}

// SendToOrg delivers text to every active channel of the organization.
// Best-effort: individual delivery failures are logged and do not stop the
// fan-out.
func (s *ChannelService) SendToOrg(ctx context.Context, orgID uuid.UUID, text string) {
	channels, err := s.store.ListActiveChannelsByOrg(ctx, orgID)
	if err != nil {
		log.Printf("ERROR [ChannelService] failed to list active channels for org %s: %v", orgID, err)
		return
	}

	for i := range channels {
		ch := &channels[i]

		notifier, err := s.registry.Get(ch.Kind)
		if err != nil {
			log.Printf("WARN [ChannelService] channel %s has unregistered kind %s", ch.ID, ch.Kind)
			continue
		}

		token, err := crypto.DecryptToken(s.aead, ch.EncryptedToken)
		if err != nil {
			log.Printf("ERROR [ChannelService] failed to decrypt token for channel %s: %v", ch.ID, err)
			continue
		}

		if err := notifier.Send(ctx, ch.Target, token, text); err != nil {
			log.Printf("WARN [ChannelService] delivery to channel %s failed: %v", ch.ID, err)
		}
	}
}

func mapChannelToResponse(ch *models.NotificationChannel) *models.ChannelResponse {
	return &models.ChannelResponse{
		ID:             ch.ID,
		OrganizationID: ch.OrganizationID,
		Kind:           ch.Kind,
		Name:           ch.Name,
		Target:         ch.Target,
		IsActive:       ch.IsActive,
		CreatedAt:      ch.CreatedAt,
		UpdatedAt:      ch.UpdatedAt,
	}
}
