package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"canopy-backend/internal/chat"
	"canopy-backend/internal/config"
	"canopy-backend/internal/models"
	"canopy-backend/internal/store"
)

// ErrInvalidPersona is returned when a session or submission names an
// unknown persona.
var ErrInvalidPersona = errors.New("invalid persona")

// SessionService owns chat sessions: creation, listing, message submission
// through the conversation engine, cancellation, and debounced persistence of
// the active session whenever its message list changes.
type SessionService struct {
	store          store.Store
	agent          chat.AgentClient
	channelService *ChannelService
	cfg            *config.Config

	mu       sync.Mutex
	runtimes map[uuid.UUID]*sessionRuntime
}

// sessionRuntime is the live in-memory state of one session: its engine and
// the debounced saver flushing message snapshots back to the store.
type sessionRuntime struct {
	engine *chat.Engine
	saver  *debouncedSaver
	orgID  uuid.UUID
}

// NewSessionService creates a new SessionService.
func NewSessionService(s store.Store, agentClient chat.AgentClient, channelService *ChannelService, cfg *config.Config) *SessionService {
	return &SessionService{
		store:          s,
		agent:          agentClient,
		channelService: channelService,
		cfg:            cfg,
		runtimes:       make(map[uuid.UUID]*sessionRuntime),
	}
}

// CreateSession creates a new chat session for the organization.
func (s *SessionService) CreateSession(ctx context.Context, orgID uuid.UUID, req models.CreateSessionRequest) (*models.SessionResponse, error) {
	persona, err := models.ParsePersona(req.Persona)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPersona, err)
	}

	title := req.Title
	if title == "" {
		title = "New conversation"
	}

	dbSession, err := s.store.CreateSession(ctx, store.CreateSessionParams{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Title:          title,
		Persona:        string(persona),
		Messages:       []byte("[]"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session in store: %w", err)
	}

	return s.mapSessionToResponse(dbSession, nil)
}

// GetSession retrieves one session. When the session has a live engine, the
// in-memory message log wins over the persisted copy (the debounced save may
// lag behind).
func (s *SessionService) GetSession(ctx context.Context, orgID, sessionID uuid.UUID) (*models.SessionResponse, error) {
	dbSession, err := s.store.GetSessionByID(ctx, sessionID, orgID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get session from store: %w", err)
	}

	s.mu.Lock()
	rt := s.runtimes[sessionID]
	s.mu.Unlock()

	return s.mapSessionToResponse(dbSession, rt)
}

// ListSessions retrieves sessions for an organization.
func (s *SessionService) ListSessions(ctx context.Context, orgID uuid.UUID, limit, offset int) (*models.ListSessionsResponse, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	dbSessions, err := s.store.ListSessionsByOrg(ctx, orgID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions from store: %w", err)
	}

	responses := make([]models.SessionResponse, 0, len(dbSessions))
	for i := range dbSessions {
		s.mu.Lock()
		rt := s.runtimes[dbSessions[i].ID]
		s.mu.Unlock()

		resp, err := s.mapSessionToResponse(&dbSessions[i], rt)
		if err != nil {
			return nil, fmt.Errorf("failed to map session at index %d: %w", i, err)
		}
		responses = append(responses, *resp)
	}

	return &models.ListSessionsResponse{Sessions: responses}, nil
}

// SubmitMessage runs one conversation turn on the session's engine.
// chat.ErrEmptySubmission and chat.ErrTurnInFlight pass through for the
// handler to map onto status codes.
func (s *SessionService) SubmitMessage(ctx context.Context, orgID, sessionID uuid.UUID, in chat.SubmitInput) (*models.SubmitMessageResponse, error) {
	rt, err := s.runtime(ctx, orgID, sessionID)
	if err != nil {
		return nil, err
	}

	result, err := rt.engine.Submit(ctx, in)
	if err != nil {
		return nil, err
	}

	userMsg, _ := rt.engine.Store().Message(result.UserMessageID)
	agentMsg, _ := rt.engine.Store().Message(result.AgentMessageID)

	return &models.SubmitMessageResponse{
		UserMessage:  userMsg,
		AgentMessage: agentMsg,
		JobID:        result.JobID,
		TurnState:    string(result.State),
	}, nil
}

// DeleteSession removes a session and drops its live runtime, cancelling any
// job still polling.
func (s *SessionService) DeleteSession(ctx context.Context, orgID, sessionID uuid.UUID) error {
	s.mu.Lock()
	rt := s.runtimes[sessionID]
	delete(s.runtimes, sessionID)
	s.mu.Unlock()

	if rt != nil {
		if err := rt.engine.Cancel(ctx); err != nil && !errors.Is(err, chat.ErrNoActiveJob) {
			log.Printf("WARN [SessionService] failed to cancel job while deleting session %s: %v", sessionID, err)
		}
	}

	if err := s.store.DeleteSession(ctx, sessionID, orgID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// CancelJob cancels the session's active background job, if any.
func (s *SessionService) CancelJob(ctx context.Context, orgID, sessionID uuid.UUID) error {
	rt, err := s.runtime(ctx, orgID, sessionID)
	if err != nil {
		return err
	}
	return rt.engine.Cancel(ctx)
}

// runtime returns the live engine for a session, creating it from the
// persisted message log on first use.
func (s *SessionService) runtime(ctx context.Context, orgID, sessionID uuid.UUID) (*sessionRuntime, error) {
	s.mu.Lock()
	if rt, ok := s.runtimes[sessionID]; ok {
		s.mu.Unlock()
		if rt.orgID != orgID {
			return nil, store.ErrNotFound
		}
		return rt, nil
	}
	s.mu.Unlock()

	dbSession, err := s.store.GetSessionByID(ctx, sessionID, orgID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get session from store: %w", err)
	}

	persona, err := models.ParsePersona(dbSession.Persona)
	if err != nil {
		return nil, fmt.Errorf("session %s has %w: %v", sessionID, ErrInvalidPersona, err)
	}

	var messages []models.ConversationMessage
	if len(dbSession.Messages) > 0 {
		if err := json.Unmarshal(dbSession.Messages, &messages); err != nil {
			return nil, fmt.Errorf("failed to parse session messages: %w", err)
		}
	}

	saver := newDebouncedSaver(s.cfg.SessionSaveDebounce, func(snapshot []models.ConversationMessage) {
		s.persistMessages(sessionID, orgID, snapshot)
	})

	convo := chat.NewConversationStore(saver.Trigger)
	convo.Replace(messages)

	engine := chat.NewEngine(convo, s.agent, chat.Config{
		Persona: persona,
		Policy: chat.PollPolicy{
			InitialInterval:      s.cfg.PollInterval,
			MaxInterval:          s.cfg.PollMaxInterval,
			BackoffFactor:        1.5,
			Deadline:             s.cfg.PollDeadline,
			MaxConsecutiveErrors: 5,
		},
		OnTerminal: func(outcome chat.TurnOutcome) {
			s.notifyTerminal(orgID, outcome)
		},
	})

	rt := &sessionRuntime{engine: engine, saver: saver, orgID: orgID}

	s.mu.Lock()
	// Another request may have raced us here; keep the first runtime.
	if existing, ok := s.runtimes[sessionID]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.runtimes[sessionID] = rt
	s.mu.Unlock()

	return rt, nil
}

// FlushAll writes every pending debounced snapshot immediately. Called on
// shutdown so the last burst of message changes is not lost.
func (s *SessionService) FlushAll() {
	s.mu.Lock()
	runtimes := make([]*sessionRuntime, 0, len(s.runtimes))
	for _, rt := range s.runtimes {
		runtimes = append(runtimes, rt)
	}
	s.mu.Unlock()

	for _, rt := range runtimes {
		rt.saver.flush()
	}
}

// persistMessages is the debounced save sink. Failures are logged only: the
// save path is non-critical and must never surface into the chat flow.
func (s *SessionService) persistMessages(sessionID, orgID uuid.UUID, snapshot []models.ConversationMessage) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		log.Printf("ERROR [SessionService] failed to marshal messages for session %s: %v", sessionID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.store.SaveSessionMessages(ctx, sessionID, orgID, payload); err != nil {
		log.Printf("ERROR [SessionService] failed to save session %s: %v", sessionID, err)
	}
}

// notifyTerminal fans a finished turn out to the org's active notification
// channels. Fire-and-forget.
func (s *SessionService) notifyTerminal(orgID uuid.UUID, outcome chat.TurnOutcome) {
	if s.channelService == nil {
		return
	}

	var text string
	switch outcome.State {
	case chat.StateTerminalSuccess:
		text = fmt.Sprintf("Agent job %s finished: %s", outcome.JobID, truncate(outcome.Content, 300))
	case chat.StateTerminalFailure:
		text = fmt.Sprintf("Agent job %s failed: %s", outcome.JobID, truncate(outcome.Content, 300))
	default:
		return // cancellations are operator-initiated, no notification
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s.channelService.SendToOrg(ctx, orgID, text)
	}()
}

func (s *SessionService) mapSessionToResponse(dbSession *models.ChatSession, rt *sessionRuntime) (*models.SessionResponse, error) {
	var messages []models.ConversationMessage
	turnState := string(chat.StateIdle)

	if rt != nil {
		messages = rt.engine.Store().Messages()
		turnState = string(rt.engine.State())
	} else if len(dbSession.Messages) > 0 {
		if err := json.Unmarshal(dbSession.Messages, &messages); err != nil {
			return nil, fmt.Errorf("failed to parse session messages: %w", err)
		}
	}
	if messages == nil {
		messages = []models.ConversationMessage{}
	}

	return &models.SessionResponse{
		ID:             dbSession.ID,
		OrganizationID: dbSession.OrganizationID,
		Title:          dbSession.Title,
		Persona:        dbSession.Persona,
		Messages:       messages,
		TurnState:      turnState,
		CreatedAt:      dbSession.CreatedAt,
		UpdatedAt:      dbSession.UpdatedAt,
	}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// debouncedSaver coalesces bursts of message-store changes into one save per
// quiet window.
type debouncedSaver struct {
	mu      sync.Mutex
	timer   *time.Timer
	delay   time.Duration
	pending []models.ConversationMessage
	save    func([]models.ConversationMessage)
}

func newDebouncedSaver(delay time.Duration, save func([]models.ConversationMessage)) *debouncedSaver {
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &debouncedSaver{delay: delay, save: save}
}

// Trigger records the latest snapshot and (re)arms the flush timer.
func (d *debouncedSaver) Trigger(snapshot []models.ConversationMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = snapshot
	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, d.flush)
	} else {
		d.timer.Reset(d.delay)
	}
}

func (d *debouncedSaver) flush() {
	d.mu.Lock()
	snapshot := d.pending
	d.pending = nil
	d.mu.Unlock()

	if snapshot != nil {
		d.save(snapshot)
	}
}
