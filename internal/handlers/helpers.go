package handlers

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"canopy-backend/internal/auth"
)

// GetOrgIDFromContext extracts the organization ID injected by the JWT
// middleware.
func GetOrgIDFromContext(ctx context.Context) (uuid.UUID, error) {
	orgID, ok := auth.GetOrgIDFromContext(ctx)
	if !ok || orgID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("organization ID not found in context")
	}
	return orgID, nil
}
