// Package notify delivers terminal job and playbook-run notifications to
// operator-configured channels.
package notify

import (
	"context"
	"fmt"
	"log"

	"canopy-backend/internal/models"
)

// Notifier delivers one notification to an external destination.
type Notifier interface {
	// Send posts text to target, authenticating with the decrypted token.
	Send(ctx context.Context, target string, token string, text string) error

	// ValidateTarget checks a target identifier before a channel is saved.
	ValidateTarget(target string) error
}

// Registry holds the mapping between channel kinds and their Notifier
// implementations.
type Registry struct {
	notifiers map[models.ChannelKind]Notifier
}

// NewRegistry creates a new notifier registry.
func NewRegistry() *Registry {
	return &Registry{
		notifiers: make(map[models.ChannelKind]Notifier),
	}
}

// Register adds a notifier implementation to the registry.
func (r *Registry) Register(kind models.ChannelKind, n Notifier) {
	if _, exists := r.notifiers[kind]; exists {
		log.Printf("WARN [NotifyRegistry] Channel kind '%s' is already registered. Overwriting.", kind)
	}
	r.notifiers[kind] = n
	log.Printf("[NotifyRegistry] Registered notifier for channel kind: %s", kind)
}

// Get retrieves a notifier by channel kind.
func (r *Registry) Get(kind models.ChannelKind) (Notifier, error) {
	n, exists := r.notifiers[kind]
	if !exists {
		return nil, fmt.Errorf("no notifier registered for channel kind: %s", kind)
	}
	return n, nil
}
