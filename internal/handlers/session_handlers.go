package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"canopy-backend/internal/chat"
	"canopy-backend/internal/models"
	"canopy-backend/internal/services"
	"canopy-backend/internal/store"
	"canopy-backend/pkg/httputil"
)

// maxAttachmentMemory caps in-memory buffering of multipart submissions.
const maxAttachmentMemory = 32 << 20 // 32 MiB

// SessionHandlers handles HTTP requests related to chat sessions.
type SessionHandlers struct {
	sessionService *services.SessionService
}

// NewSessionHandlers creates a new SessionHandlers instance.
func NewSessionHandlers(sessionService *services.SessionService) *SessionHandlers {
	return &SessionHandlers{
		sessionService: sessionService,
	}
}

// HandleCreateSession handles POST /v1/sessions.
func (h *SessionHandlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	orgID, err := GetOrgIDFromContext(r.Context())
	if err != nil {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.sessionService.CreateSession(r.Context(), orgID, req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidPersona) {
			httputil.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, session)
}

// HandleListSessions handles GET /v1/sessions.
func (h *SessionHandlers) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	orgID, err := GetOrgIDFromContext(r.Context())
	if err != nil {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	sessions, err := h.sessionService.ListSessions(r.Context(), orgID, limit, offset)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	httputil.RespondJSON(w, http.StatusOK, sessions)
}

// HandleGetSession handles GET /v1/sessions/{sessionID}.
func (h *SessionHandlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	orgID, err := GetOrgIDFromContext(r.Context())
	if err != nil {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	session, err := h.sessionService.GetSession(r.Context(), orgID, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.RespondError(w, http.StatusNotFound, "Session not found")
			return
		}
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	httputil.RespondJSON(w, http.StatusOK, session)
}

// HandleSubmitMessage handles POST /v1/sessions/{sessionID}/messages.
// Accepts either a JSON body or a multipart form with file parts named
// "attachments".
func (h *SessionHandlers) HandleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	orgID, err := GetOrgIDFromContext(r.Context())
	if err != nil {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	input, err := parseSubmitInput(r)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.sessionService.SubmitMessage(r.Context(), orgID, sessionID, *input)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptySubmission):
			httputil.RespondError(w, http.StatusBadRequest, "Nothing to submit")
		case errors.Is(err, chat.ErrTurnInFlight):
			httputil.RespondError(w, http.StatusConflict, "A submission is already in flight for this session")
		case errors.Is(err, store.ErrNotFound):
			httputil.RespondError(w, http.StatusNotFound, "Session not found")
		default:
			httputil.RespondError(w, http.StatusInternalServerError, "Failed to submit message")
		}
		return
	}

	httputil.RespondJSON(w, http.StatusAccepted, resp)
}

// HandleDeleteSession handles DELETE /v1/sessions/{sessionID}.
func (h *SessionHandlers) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	orgID, err := GetOrgIDFromContext(r.Context())
	if err != nil {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	if err := h.sessionService.DeleteSession(r.Context(), orgID, sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.RespondError(w, http.StatusNotFound, "Session not found")
			return
		}
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleCancelJob handles POST /v1/sessions/{sessionID}/cancel.
func (h *SessionHandlers) HandleCancelJob(w http.ResponseWriter, r *http.Request) {
	orgID, err := GetOrgIDFromContext(r.Context())
	if err != nil {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	if err := h.sessionService.CancelJob(r.Context(), orgID, sessionID); err != nil {
		switch {
		case errors.Is(err, chat.ErrNoActiveJob):
			httputil.RespondError(w, http.StatusConflict, "No active job to cancel")
		case errors.Is(err, store.ErrNotFound):
			httputil.RespondError(w, http.StatusNotFound, "Session not found")
		default:
			httputil.RespondError(w, http.StatusInternalServerError, "Failed to cancel job")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// parseSubmitInput builds a chat.SubmitInput from either a JSON or multipart
// request body.
func parseSubmitInput(r *http.Request) (*chat.SubmitInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if !strings.HasPrefix(mediaType, "multipart/") {
		var req models.SubmitMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, errors.New("invalid request body")
		}
		level, err := models.ParseIntelligenceLevel(req.IntelligenceLevel)
		if err != nil {
			return nil, err
		}
		return &chat.SubmitInput{
			Text:              req.Text,
			AudioBase64:       req.AudioBase64,
			IntelligenceLevel: level,
		}, nil
	}

	if err := r.ParseMultipartForm(maxAttachmentMemory); err != nil {
		return nil, errors.New("invalid multipart body")
	}

	level, err := models.ParseIntelligenceLevel(r.FormValue("intelligence_level"))
	if err != nil {
		return nil, err
	}

	input := &chat.SubmitInput{
		Text:              r.FormValue("text"),
		AudioBase64:       r.FormValue("audio_base64"),
		IntelligenceLevel: level,
	}

	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["attachments"] {
			file, err := header.Open()
			if err != nil {
				return nil, errors.New("failed to open attachment")
			}
			data, err := io.ReadAll(file)
			file.Close()
			if err != nil {
				return nil, errors.New("failed to read attachment")
			}

			contentType := header.Header.Get("Content-Type")
			input.Attachments = append(input.Attachments, models.AttachmentDraft{
				ID:          uuid.New(),
				Name:        header.Filename,
				ContentType: contentType,
				Kind:        models.KindForContentType(contentType),
				Data:        data,
			})
		}
	}

	return input, nil
}
