package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"canopy-backend/internal/models"
	"canopy-backend/internal/services"
	"canopy-backend/internal/store"
	"canopy-backend/pkg/httputil"
)

// PlaybookHandlers handles HTTP requests related to scheduled playbooks.
type PlaybookHandlers struct {
	playbookService *services.PlaybookService
}

// NewPlaybookHandlers creates a new PlaybookHandlers instance.
func NewPlaybookHandlers(playbookService *services.PlaybookService) *PlaybookHandlers {
	return &PlaybookHandlers{
		playbookService: playbookService,
	}
}

// HandleCreatePlaybook handles POST /v1/playbooks.
func (h *PlaybookHandlers) HandleCreatePlaybook(w http.ResponseWriter, r *http.Request) {
	orgID, err := GetOrgIDFromContext(r.Context())
	if err != nil {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req models.CreatePlaybookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	playbook, err := h.playbookService.CreatePlaybook(r.Context(), orgID, req)
	if err != nil {
		if isPlaybookValidationErr(err) {
			httputil.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to create playbook")
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, playbook)
}

// HandleListPlaybooks handles GET /v1/playbooks.
func (h *PlaybookHandlers) HandleListPlaybooks(w http.ResponseWriter, r *http.Request) {
	orgID, err := GetOrgIDFromContext(r.Context())
	if err != nil {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	playbooks, err := h.playbookService.ListPlaybooks(r.Context(), orgID)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to list playbooks")
		return
	}

	httputil.RespondJSON(w, http.StatusOK, playbooks)
}

// HandleGetPlaybook handles GET /v1/playbooks/{playbookID}.
func (h *PlaybookHandlers) HandleGetPlaybook(w http.ResponseWriter, r *http.Request) {
	orgID, err := GetOrgIDFromContext(r.Context())
	if err != nil {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	playbookID, err := uuid.Parse(chi.URLParam(r, "playbookID"))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid playbook ID")
		return
	}

	playbook, err := h.playbookService.GetPlaybookByID(r.Context(), orgID, playbookID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.RespondError(w, http.StatusNotFound, "Playbook not found")
			return
		}
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to get playbook")
		return
	}

	httputil.RespondJSON(w, http.StatusOK, playbook)
}

// HandleUpdatePlaybook handles PATCH /v1/playbooks/{playbookID}.
func (h *PlaybookHandlers) HandleUpdatePlaybook(w http.ResponseWriter, r *http.Request) {
	orgID, err := GetOrgIDFromContext(r.Context())
	if err != nil {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	playbookID, err := uuid.Parse(chi.URLParam(r, "playbookID"))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid playbook ID")
		return
	}

	var req models.UpdatePlaybookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	playbook, err := h.playbookService.UpdatePlaybook(r.Context(), orgID, playbookID, req)
	if err != nil {
		switch {
		case isPlaybookValidationErr(err):
			httputil.RespondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrNotFound):
			httputil.RespondError(w, http.StatusNotFound, "Playbook not found")
		default:
			httputil.RespondError(w, http.StatusInternalServerError, "Failed to update playbook")
		}
		return
	}

	httputil.RespondJSON(w, http.StatusOK, playbook)
}

// HandleDeletePlaybook handles DELETE /v1/playbooks/{playbookID}.
func (h *PlaybookHandlers) HandleDeletePlaybook(w http.ResponseWriter, r *http.Request) {
	orgID, err := GetOrgIDFromContext(r.Context())
	if err != nil {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	playbookID, err := uuid.Parse(chi.URLParam(r, "playbookID"))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid playbook ID")
		return
	}

	if err := h.playbookService.DeletePlaybook(r.Context(), orgID, playbookID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.RespondError(w, http.StatusNotFound, "Playbook not found")
			return
		}
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to delete playbook")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleRunPlaybook handles POST /v1/playbooks/{playbookID}/run.
func (h *PlaybookHandlers) HandleRunPlaybook(w http.ResponseWriter, r *http.Request) {
	orgID, err := GetOrgIDFromContext(r.Context())
	if err != nil {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	playbookID, err := uuid.Parse(chi.URLParam(r, "playbookID"))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid playbook ID")
		return
	}

	run, err := h.playbookService.RunNow(r.Context(), orgID, playbookID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.RespondError(w, http.StatusNotFound, "Playbook not found")
			return
		}
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to run playbook")
		return
	}

	httputil.RespondJSON(w, http.StatusAccepted, run)
}

// HandleListPlaybookRuns handles GET /v1/playbooks/{playbookID}/runs.
func (h *PlaybookHandlers) HandleListPlaybookRuns(w http.ResponseWriter, r *http.Request) {
	orgID, err := GetOrgIDFromContext(r.Context())
	if err != nil {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	playbookID, err := uuid.Parse(chi.URLParam(r, "playbookID"))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid playbook ID")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	runs, err := h.playbookService.ListRuns(r.Context(), orgID, playbookID, limit)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.RespondError(w, http.StatusNotFound, "Playbook not found")
			return
		}
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to list playbook runs")
		return
	}

	httputil.RespondJSON(w, http.StatusOK, runs)
}

func isPlaybookValidationErr(err error) bool {
	return errors.Is(err, services.ErrPlaybookValidation) ||
		errors.Is(err, services.ErrInvalidCronTrigger) ||
		errors.Is(err, services.ErrInvalidPersona)
}
