package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"canopy-backend/internal/models"
	"canopy-backend/internal/services"
	"canopy-backend/internal/store"
	"canopy-backend/pkg/httputil"
)

// ChannelHandlers handles HTTP requests related to notification channels.
type ChannelHandlers struct {
	channelService *services.ChannelService
}

// NewChannelHandlers creates a new ChannelHandlers instance.
func NewChannelHandlers(channelService *services.ChannelService) *ChannelHandlers {
	return &ChannelHandlers{
		channelService: channelService,
	}
}

// HandleCreateChannel handles POST /v1/channels.
func (h *ChannelHandlers) HandleCreateChannel(w http.ResponseWriter, r *http.Request) {
	orgID, err := GetOrgIDFromContext(r.Context())
	if err != nil {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req models.CreateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	channel, err := h.channelService.CreateChannel(r.Context(), orgID, req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnsupportedChannelKind),
			errors.Is(err, services.ErrInvalidChannelTarget):
			httputil.RespondError(w, http.StatusBadRequest, err.Error())
		default:
			httputil.RespondError(w, http.StatusInternalServerError, "Failed to create channel")
		}
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, channel)
}

// HandleListChannels handles GET /v1/channels.
func (h *ChannelHandlers) HandleListChannels(w http.ResponseWriter, r *http.Request) {
	orgID, err := GetOrgIDFromContext(r.Context())
	if err != nil {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	channels, err := h.channelService.ListChannels(r.Context(), orgID)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to list channels")
		return
	}

	httputil.RespondJSON(w, http.StatusOK, channels)
}

// HandleGetChannel handles GET /v1/channels/{channelID}.
func (h *ChannelHandlers) HandleGetChannel(w http.ResponseWriter, r *http.Request) {
	orgID, err := GetOrgIDFromContext(r.Context())
	if err != nil {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	channelID, err := uuid.Parse(chi.URLParam(r, "channelID"))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid channel ID")
		return
	}

	channel, err := h.channelService.GetChannelByID(r.Context(), orgID, channelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.RespondError(w, http.StatusNotFound, "Channel not found")
			return
		}
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to get channel")
		return
	}

	httputil.RespondJSON(w, http.StatusOK, channel)
}

// HandleDeleteChannel handles DELETE /v1/channels/{channelID}.
func (h *ChannelHandlers) HandleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	orgID, err := GetOrgIDFromContext(r.Context())
	if err != nil {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	channelID, err := uuid.Parse(chi.URLParam(r, "channelID"))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid channel ID")
		return
	}

	if err := h.channelService.DeleteChannel(r.Context(), orgID, channelID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.RespondError(w, http.StatusNotFound, "Channel not found")
			return
		}
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to delete channel")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
