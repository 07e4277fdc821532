// Package chat implements the conversation engine behind the dashboard's
// agent chat: message submission, background job polling with progress
// ("thinking") streaming, and cooperative cancellation.
package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"canopy-backend/internal/agent"
	"canopy-backend/internal/metrics"
	"canopy-backend/internal/models"
)

// AgentClient is the slice of the agent runtime the engine needs. *agent.Client
// satisfies it; tests substitute fakes.
type AgentClient interface {
	RunChat(ctx context.Context, req agent.ChatRequest) (*agent.ChatResponse, error)
	JobStatus(ctx context.Context, jobID string) (*agent.JobStatus, error)
	CancelJob(ctx context.Context, jobID string) error
}

var _ AgentClient = (*agent.Client)(nil)

// TurnState is the lifecycle state of the current conversation turn.
type TurnState string

const (
	StateIdle            TurnState = "idle"
	StateSubmitting      TurnState = "submitting"
	StateSyncDone        TurnState = "sync_done"
	StateAwaitingJob     TurnState = "awaiting_job"
	StatePolling         TurnState = "polling"
	StateTerminalSuccess TurnState = "terminal_success"
	StateTerminalFailure TurnState = "terminal_failure"
	StateCancelled       TurnState = "cancelled"
)

var (
	// ErrEmptySubmission is returned when text, audio and attachments are all
	// empty. The engine performs no state change.
	ErrEmptySubmission = errors.New("nothing to submit")

	// ErrTurnInFlight is returned while a prior turn is unresolved. The
	// engine performs no state change.
	ErrTurnInFlight = errors.New("a submission is already in flight")

	// ErrNoActiveJob is returned by Cancel when no background job is active.
	ErrNoActiveJob = errors.New("no active job to cancel")
)

const (
	// voiceLabel is the display text for audio-only submissions.
	voiceLabel = "[Voice message]"

	// fallbackContent is written when a job completes with empty content.
	fallbackContent = "Task completed (no content returned)"

	// transportFailureContent finalizes the placeholder when the submission
	// itself failed before any job existed.
	transportFailureContent = "Something went wrong reaching the agent. Please try again."

	// stalledFailureContent finalizes the placeholder when polling gave up.
	stalledFailureContent = "The agent stopped responding before finishing. Please try again."
)

// PollPolicy bounds the job poll loop. The original dashboard polled without
// any cap; the deadline and error budget here close that gap.
type PollPolicy struct {
	InitialInterval      time.Duration
	MaxInterval          time.Duration
	BackoffFactor        float64
	Deadline             time.Duration
	MaxConsecutiveErrors int
}

// DefaultPollPolicy returns the production polling bounds.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		InitialInterval:      2 * time.Second,
		MaxInterval:          15 * time.Second,
		BackoffFactor:        1.5,
		Deadline:             10 * time.Minute,
		MaxConsecutiveErrors: 5,
	}
}

// TurnOutcome summarizes a finished turn for observers (notifications,
// playbook run bookkeeping).
type TurnOutcome struct {
	JobID   string
	State   TurnState
	Content string
}

// SubmitInput carries one user submission. At least one of Text, AudioBase64
// or Attachments must be non-empty.
type SubmitInput struct {
	Text              string
	AudioBase64       string
	Attachments       []models.AttachmentDraft
	IntelligenceLevel models.IntelligenceLevel
}

// SubmitResult reports the messages a submission appended and, for
// asynchronous turns, the job now being polled.
type SubmitResult struct {
	UserMessageID  uuid.UUID
	AgentMessageID uuid.UUID
	JobID          string
	State          TurnState
}

// Config configures an Engine for one chat session.
type Config struct {
	Persona    models.Persona
	Policy     PollPolicy
	OnTerminal func(TurnOutcome)
}

// Engine drives the per-session turn state machine:
//
//	idle -> submitting -> (sync_done | awaiting_job) -> polling ->
//	(terminal_success | terminal_failure | cancelled) -> idle
//
// Exactly one submission may be in flight at a time; the processing gate
// rejects new submissions until the prior turn resolves.
type Engine struct {
	store  *ConversationStore
	agent  AgentClient
	cfg    Config
	policy PollPolicy

	mu         sync.Mutex
	state      TurnState
	processing bool
	handle     *models.JobHandle
	cancelPoll context.CancelFunc
}

// NewEngine creates an engine bound to one conversation store and agent
// client.
func NewEngine(store *ConversationStore, client AgentClient, cfg Config) *Engine {
	policy := cfg.Policy
	if policy.InitialInterval <= 0 {
		policy = DefaultPollPolicy()
	}
	return &Engine{
		store:  store,
		agent:  client,
		cfg:    cfg,
		policy: policy,
		state:  StateIdle,
	}
}

// Store exposes the engine's conversation store.
func (e *Engine) Store() *ConversationStore { return e.store }

// State returns the current turn state. Terminal states persist until the
// next submission begins.
func (e *Engine) State() TurnState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Processing reports whether a turn is unresolved.
func (e *Engine) Processing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processing
}

// ActiveJob returns a copy of the active job handle, if any.
func (e *Engine) ActiveJob() *models.JobHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle == nil {
		return nil
	}
	h := *e.handle
	return &h
}

// Submit runs one conversation turn. Empty submissions and submissions while
// a turn is in flight are rejected without any state change. Transport
// failures are not returned as errors: they finalize the placeholder message
// in-band, matching how the rendering layer consumes failures.
func (e *Engine) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if strings.TrimSpace(in.Text) == "" && in.AudioBase64 == "" && len(in.Attachments) == 0 {
		return nil, ErrEmptySubmission
	}

	e.mu.Lock()
	if e.processing {
		e.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	e.processing = true
	e.state = StateSubmitting
	e.mu.Unlock()

	level := in.IntelligenceLevel
	if level == "" {
		level = models.IntelligenceStandard
	}

	userID := e.store.Append(models.ConversationMessage{
		Role:    models.RoleUser,
		Content: displayText(in),
	})
	// The placeholder goes in before any network work so the UI shows a
	// thinking state with no visible gap.
	placeholderID := e.store.Append(models.ConversationMessage{
		Role:     models.RoleAgent,
		Thinking: &models.ThinkingState{IsThinking: true},
	})

	payloads, err := encodeAttachments(ctx, in.Attachments)
	if err != nil {
		log.Printf("ERROR [chat] failed to encode attachments: %v", err)
		e.finalizeTransport(placeholderID)
		return e.result(userID, placeholderID, ""), nil
	}

	resp, err := e.agent.RunChat(ctx, agent.ChatRequest{
		Text:    in.Text,
		Persona: e.cfg.Persona,
		Options: agent.ChatOptions{
			IntelligenceLevel: level,
			AudioBase64:       in.AudioBase64,
			Attachments:       payloads,
		},
	})
	if err != nil {
		log.Printf("ERROR [chat] agent chat call failed: %v", err)
		e.finalizeTransport(placeholderID)
		return e.result(userID, placeholderID, ""), nil
	}

	if !resp.IsAsync() {
		e.finalizeSync(placeholderID, resp)
		metrics.SyncResponses.Inc()
		return e.result(userID, placeholderID, ""), nil
	}

	handle := &models.JobHandle{JobID: resp.JobID, MessageID: placeholderID}
	pollCtx, cancel := context.WithTimeout(context.Background(), e.policy.Deadline)

	e.mu.Lock()
	e.handle = handle
	e.cancelPoll = cancel
	e.state = StateAwaitingJob
	e.mu.Unlock()

	metrics.JobsStarted.Inc()
	go e.runPoll(pollCtx, handle)

	return e.result(userID, placeholderID, handle.JobID), nil
}

// Cancel stops the active background job: a best-effort backend cancellation
// first, then local state is cleared regardless of the backend's answer so
// progress stops showing promptly.
func (e *Engine) Cancel(ctx context.Context) error {
	e.mu.Lock()
	handle := e.handle
	e.mu.Unlock()
	if handle == nil {
		return ErrNoActiveJob
	}

	if err := e.agent.CancelJob(ctx, handle.JobID); err != nil {
		log.Printf("WARN [chat] best-effort cancel of job %s failed: %v", handle.JobID, err)
	}

	e.mu.Lock()
	if e.handle == nil || e.handle.JobID != handle.JobID {
		// The poller finalized while the cancel call was in flight.
		e.mu.Unlock()
		return nil
	}
	cancel := e.cancelPoll
	e.handle = nil
	e.cancelPoll = nil
	e.processing = false
	e.state = StateCancelled
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	e.store.Update(handle.MessageID, func(m *models.ConversationMessage) {
		if m.Thinking != nil {
			m.Thinking.IsThinking = false
		}
	})

	metrics.JobsCancelled.Inc()
	e.emitTerminal(TurnOutcome{JobID: handle.JobID, State: StateCancelled})
	return nil
}

// runPoll is the job poller: strictly sequential poll -> wait -> poll, never
// overlapping for one job, until a terminal status, the deadline, or
// cancellation.
func (e *Engine) runPoll(ctx context.Context, handle *models.JobHandle) {
	e.mu.Lock()
	if e.handle != nil && e.handle.JobID == handle.JobID {
		e.state = StatePolling
	}
	e.mu.Unlock()

	interval := e.policy.InitialInterval
	consecutiveErrs := 0

	for {
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.abandon(ctx, handle)
			return
		case <-timer.C:
		}

		status, err := e.agent.JobStatus(ctx, handle.JobID)
		metrics.PollTicks.Inc()
		if err != nil {
			if ctx.Err() != nil {
				e.abandon(ctx, handle)
				return
			}
			consecutiveErrs++
			log.Printf("WARN [chat] poll for job %s failed (%d consecutive): %v", handle.JobID, consecutiveErrs, err)
			if consecutiveErrs >= e.policy.MaxConsecutiveErrors {
				e.finalizeFailure(handle, stalledFailureContent, nil)
				return
			}
			interval = e.nextInterval(interval)
			continue
		}
		consecutiveErrs = 0

		e.renderTick(handle, status)

		if status.Status.Terminal() {
			if status.Status == agent.JobCompleted {
				e.finalizeSuccess(handle, status)
			} else {
				e.finalizeFailure(handle, failureContent(status.Error), status)
			}
			return
		}

		interval = e.nextInterval(interval)
	}
}

// renderTick reconciles one poller snapshot into the placeholder message. It
// recomputes the full steps list from the full thoughts list every time, so
// duplicate or out-of-order ticks never corrupt state.
func (e *Engine) renderTick(handle *models.JobHandle, status *agent.JobStatus) {
	steps := stepsFromThoughts(status.Thoughts)
	e.store.Update(handle.MessageID, func(m *models.ConversationMessage) {
		m.Thinking = &models.ThinkingState{IsThinking: true, Steps: steps}
	})
}

// abandon handles poll-context termination: a deadline finalizes the turn as
// a failure, a cancellation was already resolved by Cancel.
func (e *Engine) abandon(ctx context.Context, handle *models.JobHandle) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.Printf("WARN [chat] poll deadline expired for job %s", handle.JobID)
		e.finalizeFailure(handle, stalledFailureContent, nil)
	}
}

// release clears the in-flight turn if handle is still the active one.
// Returns false when another path (cancel, a racing finalize) already
// released it.
func (e *Engine) release(handle *models.JobHandle, terminal TurnState) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle == nil || e.handle.JobID != handle.JobID {
		return false
	}
	if e.cancelPoll != nil {
		e.cancelPoll()
		e.cancelPoll = nil
	}
	e.handle = nil
	e.processing = false
	e.state = terminal
	return true
}

func (e *Engine) finalizeSuccess(handle *models.JobHandle, status *agent.JobStatus) {
	if !e.release(handle, StateTerminalSuccess) {
		return
	}

	content := fallbackContent
	var extra []byte
	if status.Result != nil {
		if strings.TrimSpace(status.Result.Content) != "" {
			content = status.Result.Content
		}
		extra = status.Result.Metadata
	}
	steps := stepsFromThoughts(status.Thoughts)

	e.store.Update(handle.MessageID, func(m *models.ConversationMessage) {
		m.Content = content
		m.Thinking = &models.ThinkingState{IsThinking: false, Steps: steps}
		m.Metadata = &models.MessageMetadata{
			JobID:            handle.JobID,
			Persona:          string(e.cfg.Persona),
			RequiresApproval: status.RequiresApproval,
			Extra:            extra,
		}
	})

	metrics.JobsCompleted.Inc()
	e.emitTerminal(TurnOutcome{JobID: handle.JobID, State: StateTerminalSuccess, Content: content})
}

func (e *Engine) finalizeFailure(handle *models.JobHandle, content string, status *agent.JobStatus) {
	if !e.release(handle, StateTerminalFailure) {
		return
	}

	var steps []models.ToolCallStep
	if status != nil {
		steps = stepsFromThoughts(status.Thoughts)
	}

	e.store.Update(handle.MessageID, func(m *models.ConversationMessage) {
		m.Content = content
		m.Thinking = &models.ThinkingState{IsThinking: false, Steps: steps}
		m.Metadata = &models.MessageMetadata{JobID: handle.JobID, Persona: string(e.cfg.Persona)}
	})

	metrics.JobsFailed.Inc()
	e.emitTerminal(TurnOutcome{JobID: handle.JobID, State: StateTerminalFailure, Content: content})
}

// finalizeSync finalizes the placeholder from a synchronous agent response.
func (e *Engine) finalizeSync(messageID uuid.UUID, resp *agent.ChatResponse) {
	content := resp.Content
	if strings.TrimSpace(content) == "" {
		content = fallbackContent
	}

	steps := make([]models.ToolCallStep, len(resp.ToolCalls))
	for i, tc := range resp.ToolCalls {
		steps[i] = models.ToolCallStep{
			ID:          tc.ID,
			ToolName:    tc.ToolName,
			Description: tc.Description,
			Status:      models.StepCompleted,
			DurationMs:  tc.DurationMs,
		}
	}

	e.store.Update(messageID, func(m *models.ConversationMessage) {
		m.Content = content
		m.Thinking = &models.ThinkingState{IsThinking: false, Steps: steps}
		m.Metadata = &models.MessageMetadata{Persona: string(e.cfg.Persona), Extra: resp.Metadata}
	})

	e.mu.Lock()
	e.processing = false
	e.state = StateSyncDone
	e.mu.Unlock()
}

// finalizeTransport finalizes the placeholder after a pre-job failure
// (encoding or the chat call itself). No retry is attempted.
func (e *Engine) finalizeTransport(messageID uuid.UUID) {
	e.store.Update(messageID, func(m *models.ConversationMessage) {
		m.Content = transportFailureContent
		m.Thinking = &models.ThinkingState{IsThinking: false}
	})

	e.mu.Lock()
	e.processing = false
	e.state = StateTerminalFailure
	e.mu.Unlock()
}

func (e *Engine) result(userID, agentID uuid.UUID, jobID string) *SubmitResult {
	return &SubmitResult{
		UserMessageID:  userID,
		AgentMessageID: agentID,
		JobID:          jobID,
		State:          e.State(),
	}
}

func (e *Engine) nextInterval(current time.Duration) time.Duration {
	factor := e.policy.BackoffFactor
	if factor <= 1 {
		return current
	}
	next := time.Duration(float64(current) * factor)
	if e.policy.MaxInterval > 0 && next > e.policy.MaxInterval {
		next = e.policy.MaxInterval
	}
	return next
}

func (e *Engine) emitTerminal(outcome TurnOutcome) {
	if e.cfg.OnTerminal != nil {
		e.cfg.OnTerminal(outcome)
	}
}

// failureContent formats the terminal content for a failed or cancelled job.
func failureContent(errText string) string {
	if strings.TrimSpace(errText) == "" {
		return "The agent could not complete this task. Please try again."
	}
	return fmt.Sprintf("The agent could not complete this task: %s", errText)
}

// stepsFromThoughts maps progress records 1:1 onto tool-call steps. Thoughts
// only surface once their sub-step is done, so the status is completed even
// while the job itself still runs.
func stepsFromThoughts(thoughts []models.Thought) []models.ToolCallStep {
	steps := make([]models.ToolCallStep, len(thoughts))
	for i, t := range thoughts {
		steps[i] = models.ToolCallStep{
			ID:          t.ID,
			ToolName:    t.Title,
			Description: t.Detail,
			Status:      models.StepCompleted,
		}
	}
	return steps
}

// displayText derives the user message label: audio takes a fixed placeholder,
// otherwise the text, otherwise an attachment count.
func displayText(in SubmitInput) string {
	switch {
	case in.AudioBase64 != "":
		return voiceLabel
	case strings.TrimSpace(in.Text) != "":
		return in.Text
	default:
		return fmt.Sprintf("Sent %d attachment(s)", len(in.Attachments))
	}
}

// encodeAttachments converts attachment drafts to base64 payloads. Each file
// encodes in its own goroutine and all must finish before dispatch.
func encodeAttachments(ctx context.Context, drafts []models.AttachmentDraft) ([]agent.AttachmentPayload, error) {
	if len(drafts) == 0 {
		return nil, nil
	}

	payloads := make([]agent.AttachmentPayload, len(drafts))
	g, _ := errgroup.WithContext(ctx)
	for i, d := range drafts {
		i, d := i, d
		g.Go(func() error {
			payloads[i] = agent.AttachmentPayload{
				Name:   d.Name,
				Type:   d.ContentType,
				Base64: base64.StdEncoding.EncodeToString(d.Data),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to encode attachments: %w", err)
	}
	return payloads, nil
}
