// Package playbook dispatches scheduled agent automations: a playbook is a
// cron trigger plus a persona-scoped prompt, and each dispatch is one
// conversation-engine turn whose terminal outcome is recorded as a run.
package playbook

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"canopy-backend/internal/chat"
	"canopy-backend/internal/models"
	"canopy-backend/internal/store"
)

// Run statuses recorded in playbook_runs.
const (
	RunStatusRunning   = "RUNNING"
	RunStatusCompleted = "COMPLETED"
	RunStatusFailed    = "FAILED"
)

// Runner executes one playbook dispatch through the conversation engine and
// records its outcome.
type Runner struct {
	store  store.Store
	agent  chat.AgentClient
	policy chat.PollPolicy

	// Notify, if set, is called with a summary when a run finishes.
	Notify func(ctx context.Context, orgID uuid.UUID, text string)
}

// NewRunner creates a Runner.
func NewRunner(s store.Store, agentClient chat.AgentClient, policy chat.PollPolicy) *Runner {
	return &Runner{
		store:  s,
		agent:  agentClient,
		policy: policy,
	}
}

// Run dispatches the playbook prompt as a single engine turn. Synchronous
// agent answers record a finished run immediately; asynchronous jobs record a
// RUNNING run and finish it when the engine's poller reaches a terminal
// state.
func (r *Runner) Run(ctx context.Context, pb *models.Playbook) (*models.PlaybookRun, error) {
	persona, err := models.ParsePersona(pb.Persona)
	if err != nil {
		return nil, fmt.Errorf("playbook %s has invalid persona: %w", pb.ID, err)
	}

	convo := chat.NewConversationStore(nil)
	outcomeCh := make(chan chat.TurnOutcome, 1)

	engine := chat.NewEngine(convo, r.agent, chat.Config{
		Persona: persona,
		Policy:  r.policy,
		OnTerminal: func(o chat.TurnOutcome) {
			outcomeCh <- o
		},
	})

	result, err := engine.Submit(ctx, chat.SubmitInput{Text: pb.Prompt})
	if err != nil {
		return nil, fmt.Errorf("failed to submit playbook prompt: %w", err)
	}

	// Synchronous answer: the turn already finalized, no job to track.
	if result.JobID == "" {
		msg, _ := convo.Message(result.AgentMessageID)
		status := RunStatusCompleted
		if result.State == chat.StateTerminalFailure {
			status = RunStatusFailed
		}
		run, err := r.recordFinished(ctx, pb, status, msg.Content)
		if err != nil {
			return nil, err
		}
		r.notify(pb, status, msg.Content)
		return run, nil
	}

	run, err := r.store.CreatePlaybookRun(ctx, store.CreatePlaybookRunParams{
		ID:             uuid.New(),
		PlaybookID:     pb.ID,
		OrganizationID: pb.OrganizationID,
		JobID:          result.JobID,
		Status:         RunStatusRunning,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record playbook run: %w", err)
	}

	go r.awaitOutcome(pb, run.ID, outcomeCh)

	return run, nil
}

// awaitOutcome blocks on the engine's terminal callback. The poll policy
// bounds how long that can take, so this goroutine cannot leak.
func (r *Runner) awaitOutcome(pb *models.Playbook, runID uuid.UUID, outcomeCh <-chan chat.TurnOutcome) {
	outcome := <-outcomeCh

	status := RunStatusFailed
	if outcome.State == chat.StateTerminalSuccess {
		status = RunStatusCompleted
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.store.FinishPlaybookRun(ctx, runID, status, outcome.Content); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Printf("ERROR [playbook] failed to finish run %s: %v", runID, err)
	}

	r.notify(pb, status, outcome.Content)
}

func (r *Runner) recordFinished(ctx context.Context, pb *models.Playbook, status, content string) (*models.PlaybookRun, error) {
	run, err := r.store.CreatePlaybookRun(ctx, store.CreatePlaybookRunParams{
		ID:             uuid.New(),
		PlaybookID:     pb.ID,
		OrganizationID: pb.OrganizationID,
		Status:         status,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record playbook run: %w", err)
	}
	if err := r.store.FinishPlaybookRun(ctx, run.ID, status, content); err != nil {
		log.Printf("ERROR [playbook] failed to finish run %s: %v", run.ID, err)
	}
	run.Status = status
	run.ResultContent = content
	return run, nil
}

func (r *Runner) notify(pb *models.Playbook, status, content string) {
	if r.Notify == nil {
		return
	}

	text := fmt.Sprintf("Playbook %q %s", pb.Name, status)
	if content != "" {
		if len(content) > 300 {
			content = content[:300] + "..."
		}
		text += ": " + content
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	r.Notify(ctx, pb.OrganizationID, text)
}
