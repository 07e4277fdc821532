package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canopy-backend/internal/agent"
	"canopy-backend/internal/models"
)

// fakeAgent scripts the agent runtime: one canned chat response and a sequence
// of job status snapshots, returned in order (the last one repeats).
type fakeAgent struct {
	mu sync.Mutex

	chatResp *agent.ChatResponse
	chatErr  error

	statuses  []statusReply
	statusIdx int
	cancelled []string
	cancelErr error
	chatCalls int
	pollCalls int
}

type statusReply struct {
	status *agent.JobStatus
	err    error
}

func (f *fakeAgent) RunChat(ctx context.Context, req agent.ChatRequest) (*agent.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatCalls++
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return f.chatResp, nil
}

func (f *fakeAgent) JobStatus(ctx context.Context, jobID string) (*agent.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollCalls++
	if len(f.statuses) == 0 {
		return nil, errors.New("no scripted status")
	}
	reply := f.statuses[f.statusIdx]
	if f.statusIdx < len(f.statuses)-1 {
		f.statusIdx++
	}
	return reply.status, reply.err
}

func (f *fakeAgent) CancelJob(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, jobID)
	return f.cancelErr
}

func (f *fakeAgent) cancelledJobs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

func testPolicy() PollPolicy {
	return PollPolicy{
		InitialInterval:      time.Millisecond,
		MaxInterval:          5 * time.Millisecond,
		BackoffFactor:        1.5,
		Deadline:             2 * time.Second,
		MaxConsecutiveErrors: 3,
	}
}

func newTestEngine(t *testing.T, client AgentClient) *Engine {
	t.Helper()
	store := NewConversationStore(nil)
	return NewEngine(store, client, Config{
		Persona: models.PersonaSalesScout,
		Policy:  testPolicy(),
	})
}

func waitForState(t *testing.T, e *Engine, want TurnState) {
	t.Helper()
	require.Eventually(t, func() bool {
		return e.State() == want
	}, 2*time.Second, time.Millisecond, "engine never reached state %s", want)
}

func TestSubmitValidation(t *testing.T) {
	t.Run("empty submission is rejected without state change", func(t *testing.T) {
		fake := &fakeAgent{}
		e := newTestEngine(t, fake)

		_, err := e.Submit(context.Background(), SubmitInput{Text: "   "})
		require.ErrorIs(t, err, ErrEmptySubmission)
		assert.Equal(t, 0, e.Store().Len())
		assert.Equal(t, StateIdle, e.State())
		assert.False(t, e.Processing())
	})

	t.Run("audio-only submission is accepted", func(t *testing.T) {
		fake := &fakeAgent{chatResp: &agent.ChatResponse{Content: "heard you"}}
		e := newTestEngine(t, fake)

		res, err := e.Submit(context.Background(), SubmitInput{AudioBase64: "Zm9v"})
		require.NoError(t, err)

		userMsg, ok := e.Store().Message(res.UserMessageID)
		require.True(t, ok)
		assert.Equal(t, "[Voice message]", userMsg.Content)
	})

	t.Run("second submission while in flight is rejected", func(t *testing.T) {
		fake := &fakeAgent{
			chatResp: &agent.ChatResponse{JobID: "job-busy"},
			statuses: []statusReply{{status: &agent.JobStatus{Status: agent.JobRunning}}},
		}
		e := newTestEngine(t, fake)

		_, err := e.Submit(context.Background(), SubmitInput{Text: "first"})
		require.NoError(t, err)

		before := e.Store().Len()
		_, err = e.Submit(context.Background(), SubmitInput{Text: "second"})
		require.ErrorIs(t, err, ErrTurnInFlight)
		assert.Equal(t, before, e.Store().Len(), "rejected submission must not append messages")
	})
}

func TestSubmitSync(t *testing.T) {
	t.Run("synchronous response finalizes the placeholder", func(t *testing.T) {
		fake := &fakeAgent{chatResp: &agent.ChatResponse{
			Content: "Here are your numbers.",
			ToolCalls: []agent.ToolCallRecord{
				{ID: "tc1", ToolName: "query_sales", Description: "Pulled weekly sales", DurationMs: 120},
			},
		}}
		e := newTestEngine(t, fake)

		res, err := e.Submit(context.Background(), SubmitInput{Text: "How are sales?"})
		require.NoError(t, err)
		assert.Equal(t, StateSyncDone, res.State)
		assert.Empty(t, res.JobID)
		assert.False(t, e.Processing())

		msg, ok := e.Store().Message(res.AgentMessageID)
		require.True(t, ok)
		assert.Equal(t, "Here are your numbers.", msg.Content)
		require.NotNil(t, msg.Thinking)
		assert.False(t, msg.Thinking.IsThinking)
		require.Len(t, msg.Thinking.Steps, 1)
		assert.Equal(t, "query_sales", msg.Thinking.Steps[0].ToolName)
		assert.Equal(t, models.StepCompleted, msg.Thinking.Steps[0].Status)
	})

	t.Run("blank synchronous content falls back to a stub", func(t *testing.T) {
		fake := &fakeAgent{chatResp: &agent.ChatResponse{Content: "  \n "}}
		e := newTestEngine(t, fake)

		res, err := e.Submit(context.Background(), SubmitInput{Text: "hello"})
		require.NoError(t, err)

		msg, _ := e.Store().Message(res.AgentMessageID)
		assert.Equal(t, "Task completed (no content returned)", msg.Content)
	})

	t.Run("transport failure finalizes in-band, not as an error", func(t *testing.T) {
		fake := &fakeAgent{chatErr: errors.New("connection refused")}
		e := newTestEngine(t, fake)

		res, err := e.Submit(context.Background(), SubmitInput{Text: "hello"})
		require.NoError(t, err)
		assert.Equal(t, StateTerminalFailure, res.State)
		assert.False(t, e.Processing())

		msg, _ := e.Store().Message(res.AgentMessageID)
		assert.Contains(t, msg.Content, "Something went wrong")
		require.NotNil(t, msg.Thinking)
		assert.False(t, msg.Thinking.IsThinking)
	})
}

func TestSubmitAsync(t *testing.T) {
	t.Run("job polls to success and renders progress", func(t *testing.T) {
		fake := &fakeAgent{
			chatResp: &agent.ChatResponse{JobID: "job-1"},
			statuses: []statusReply{
				{status: &agent.JobStatus{
					Status:   agent.JobRunning,
					Thoughts: []models.Thought{{ID: "t1", Title: "Searching", Detail: "Chicago dispensaries"}},
				}},
				{status: &agent.JobStatus{
					Status:           agent.JobCompleted,
					Result:           &agent.JobResult{Content: "Top 3 dispensaries by foot traffic: ..."},
					Thoughts:         []models.Thought{{ID: "t1", Title: "Searching", Detail: "Chicago dispensaries"}},
					RequiresApproval: true,
				}},
			},
		}
		e := newTestEngine(t, fake)

		res, err := e.Submit(context.Background(), SubmitInput{Text: "Scout Chicago for me"})
		require.NoError(t, err)
		assert.Equal(t, "job-1", res.JobID)
		assert.Equal(t, StateAwaitingJob, res.State)

		waitForState(t, e, StateTerminalSuccess)
		assert.False(t, e.Processing())
		assert.Nil(t, e.ActiveJob())

		msg, ok := e.Store().Message(res.AgentMessageID)
		require.True(t, ok)
		assert.Equal(t, "Top 3 dispensaries by foot traffic: ...", msg.Content)
		require.NotNil(t, msg.Thinking)
		assert.False(t, msg.Thinking.IsThinking)
		require.Len(t, msg.Thinking.Steps, 1)
		assert.Equal(t, "Searching", msg.Thinking.Steps[0].ToolName)
		assert.Equal(t, "Chicago dispensaries", msg.Thinking.Steps[0].Description)

		require.NotNil(t, msg.Metadata)
		assert.Equal(t, "job-1", msg.Metadata.JobID)
		assert.Equal(t, string(models.PersonaSalesScout), msg.Metadata.Persona)
		assert.True(t, msg.Metadata.RequiresApproval)
	})

	t.Run("duplicate progress ticks do not duplicate steps", func(t *testing.T) {
		thoughts := []models.Thought{{ID: "t1", Title: "Searching", Detail: "menus"}}
		fake := &fakeAgent{
			chatResp: &agent.ChatResponse{JobID: "job-dup"},
			statuses: []statusReply{
				{status: &agent.JobStatus{Status: agent.JobRunning, Thoughts: thoughts}},
				{status: &agent.JobStatus{Status: agent.JobRunning, Thoughts: thoughts}},
				{status: &agent.JobStatus{Status: agent.JobRunning, Thoughts: thoughts}},
				{status: &agent.JobStatus{Status: agent.JobCompleted, Result: &agent.JobResult{Content: "done"}, Thoughts: thoughts}},
			},
		}
		e := newTestEngine(t, fake)

		res, err := e.Submit(context.Background(), SubmitInput{Text: "go"})
		require.NoError(t, err)
		waitForState(t, e, StateTerminalSuccess)

		msg, _ := e.Store().Message(res.AgentMessageID)
		require.NotNil(t, msg.Thinking)
		assert.Len(t, msg.Thinking.Steps, 1)
	})

	t.Run("completed job with empty content gets the fallback", func(t *testing.T) {
		fake := &fakeAgent{
			chatResp: &agent.ChatResponse{JobID: "job-empty"},
			statuses: []statusReply{
				{status: &agent.JobStatus{Status: agent.JobCompleted, Result: &agent.JobResult{Content: "   "}}},
			},
		}
		e := newTestEngine(t, fake)

		res, err := e.Submit(context.Background(), SubmitInput{Text: "go"})
		require.NoError(t, err)
		waitForState(t, e, StateTerminalSuccess)

		msg, _ := e.Store().Message(res.AgentMessageID)
		assert.Equal(t, "Task completed (no content returned)", msg.Content)
	})

	t.Run("failed job finalizes with the backend error", func(t *testing.T) {
		fake := &fakeAgent{
			chatResp: &agent.ChatResponse{JobID: "job-fail"},
			statuses: []statusReply{
				{status: &agent.JobStatus{Status: agent.JobFailed, Error: "budget exceeded"}},
			},
		}
		e := newTestEngine(t, fake)

		res, err := e.Submit(context.Background(), SubmitInput{Text: "go"})
		require.NoError(t, err)
		waitForState(t, e, StateTerminalFailure)

		msg, _ := e.Store().Message(res.AgentMessageID)
		assert.Contains(t, msg.Content, "budget exceeded")
		require.NotNil(t, msg.Thinking)
		assert.False(t, msg.Thinking.IsThinking)
	})

	t.Run("consecutive poll errors exhaust the budget", func(t *testing.T) {
		fake := &fakeAgent{
			chatResp: &agent.ChatResponse{JobID: "job-err"},
			statuses: []statusReply{{err: errors.New("status endpoint down")}},
		}
		e := newTestEngine(t, fake)

		res, err := e.Submit(context.Background(), SubmitInput{Text: "go"})
		require.NoError(t, err)
		waitForState(t, e, StateTerminalFailure)

		msg, _ := e.Store().Message(res.AgentMessageID)
		assert.Contains(t, msg.Content, "stopped responding")
	})

	t.Run("poll deadline finalizes the turn as a failure", func(t *testing.T) {
		fake := &fakeAgent{
			chatResp: &agent.ChatResponse{JobID: "job-slow"},
			statuses: []statusReply{{status: &agent.JobStatus{Status: agent.JobRunning}}},
		}
		store := NewConversationStore(nil)
		policy := testPolicy()
		policy.Deadline = 20 * time.Millisecond
		e := NewEngine(store, fake, Config{Persona: models.PersonaSalesScout, Policy: policy})

		res, err := e.Submit(context.Background(), SubmitInput{Text: "go"})
		require.NoError(t, err)
		waitForState(t, e, StateTerminalFailure)

		msg, _ := store.Message(res.AgentMessageID)
		assert.Contains(t, msg.Content, "stopped responding")
		assert.False(t, e.Processing())
	})

	t.Run("terminal outcome is emitted once", func(t *testing.T) {
		var (
			mu       sync.Mutex
			outcomes []TurnOutcome
		)
		fake := &fakeAgent{
			chatResp: &agent.ChatResponse{JobID: "job-once"},
			statuses: []statusReply{
				{status: &agent.JobStatus{Status: agent.JobCompleted, Result: &agent.JobResult{Content: "ok"}}},
			},
		}
		store := NewConversationStore(nil)
		e := NewEngine(store, fake, Config{
			Persona: models.PersonaSalesScout,
			Policy:  testPolicy(),
			OnTerminal: func(o TurnOutcome) {
				mu.Lock()
				outcomes = append(outcomes, o)
				mu.Unlock()
			},
		})

		_, err := e.Submit(context.Background(), SubmitInput{Text: "go"})
		require.NoError(t, err)
		waitForState(t, e, StateTerminalSuccess)

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, outcomes, 1)
		assert.Equal(t, "job-once", outcomes[0].JobID)
		assert.Equal(t, StateTerminalSuccess, outcomes[0].State)
		assert.Equal(t, "ok", outcomes[0].Content)
	})

	t.Run("engine accepts a new turn after a terminal state", func(t *testing.T) {
		fake := &fakeAgent{
			chatResp: &agent.ChatResponse{JobID: "job-a"},
			statuses: []statusReply{
				{status: &agent.JobStatus{Status: agent.JobCompleted, Result: &agent.JobResult{Content: "first"}}},
			},
		}
		e := newTestEngine(t, fake)

		_, err := e.Submit(context.Background(), SubmitInput{Text: "one"})
		require.NoError(t, err)
		waitForState(t, e, StateTerminalSuccess)

		fake.mu.Lock()
		fake.chatResp = &agent.ChatResponse{Content: "second, sync this time"}
		fake.mu.Unlock()

		res, err := e.Submit(context.Background(), SubmitInput{Text: "two"})
		require.NoError(t, err)
		assert.Equal(t, StateSyncDone, res.State)
		assert.Equal(t, 4, e.Store().Len())
	})
}

func TestCancel(t *testing.T) {
	t.Run("cancel with no active job returns ErrNoActiveJob", func(t *testing.T) {
		e := newTestEngine(t, &fakeAgent{})
		require.ErrorIs(t, e.Cancel(context.Background()), ErrNoActiveJob)
	})

	t.Run("cancel clears the active job and stops progress", func(t *testing.T) {
		fake := &fakeAgent{
			chatResp: &agent.ChatResponse{JobID: "job-c"},
			statuses: []statusReply{{status: &agent.JobStatus{
				Status:   agent.JobRunning,
				Thoughts: []models.Thought{{ID: "t1", Title: "Working"}},
			}}},
		}
		e := newTestEngine(t, fake)

		res, err := e.Submit(context.Background(), SubmitInput{Text: "go"})
		require.NoError(t, err)

		require.NoError(t, e.Cancel(context.Background()))
		assert.Equal(t, StateCancelled, e.State())
		assert.False(t, e.Processing())
		assert.Nil(t, e.ActiveJob())
		assert.Equal(t, []string{"job-c"}, fake.cancelledJobs())

		msg, _ := e.Store().Message(res.AgentMessageID)
		if msg.Thinking != nil {
			assert.False(t, msg.Thinking.IsThinking)
		}
	})

	t.Run("cancel proceeds locally when the backend call fails", func(t *testing.T) {
		fake := &fakeAgent{
			chatResp:  &agent.ChatResponse{JobID: "job-d"},
			statuses:  []statusReply{{status: &agent.JobStatus{Status: agent.JobRunning}}},
			cancelErr: errors.New("backend unavailable"),
		}
		e := newTestEngine(t, fake)

		_, err := e.Submit(context.Background(), SubmitInput{Text: "go"})
		require.NoError(t, err)

		require.NoError(t, e.Cancel(context.Background()))
		assert.Equal(t, StateCancelled, e.State())
	})
}

func TestDisplayText(t *testing.T) {
	assert.Equal(t, "[Voice message]", displayText(SubmitInput{AudioBase64: "x", Text: "typed too"}))
	assert.Equal(t, "hello", displayText(SubmitInput{Text: "hello"}))
	assert.Equal(t, "Sent 2 attachment(s)", displayText(SubmitInput{
		Attachments: []models.AttachmentDraft{{Name: "a.png"}, {Name: "b.pdf"}},
	}))
}

func TestNextInterval(t *testing.T) {
	e := NewEngine(NewConversationStore(nil), &fakeAgent{}, Config{Policy: PollPolicy{
		InitialInterval: 2 * time.Second,
		MaxInterval:     5 * time.Second,
		BackoffFactor:   2,
	}})

	assert.Equal(t, 4*time.Second, e.nextInterval(2*time.Second))
	assert.Equal(t, 5*time.Second, e.nextInterval(4*time.Second), "interval must cap at MaxInterval")

	flat := NewEngine(NewConversationStore(nil), &fakeAgent{}, Config{Policy: PollPolicy{
		InitialInterval: time.Second,
		BackoffFactor:   1,
	}})
	assert.Equal(t, time.Second, flat.nextInterval(time.Second))
}
