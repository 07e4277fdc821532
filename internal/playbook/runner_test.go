package playbook

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canopy-backend/internal/agent"
	"canopy-backend/internal/chat"
	"canopy-backend/internal/models"
	"canopy-backend/internal/store"
)

// fakeStore records playbook runs in memory. Only the methods the runner and
// scheduler touch are live; the rest satisfy the interface.
type fakeStore struct {
	mu       sync.Mutex
	enabled  []models.Playbook
	runs     map[uuid.UUID]*models.PlaybookRun
	finished map[uuid.UUID]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:     make(map[uuid.UUID]*models.PlaybookRun),
		finished: make(map[uuid.UUID]string),
	}
}

func (f *fakeStore) CreatePlaybookRun(ctx context.Context, arg store.CreatePlaybookRunParams) (*models.PlaybookRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run := &models.PlaybookRun{
		ID:             arg.ID,
		PlaybookID:     arg.PlaybookID,
		OrganizationID: arg.OrganizationID,
		JobID:          arg.JobID,
		Status:         arg.Status,
		StartedAt:      time.Now().UTC(),
	}
	f.runs[run.ID] = run
	return run, nil
}

func (f *fakeStore) FinishPlaybookRun(ctx context.Context, id uuid.UUID, status, resultContent string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	run.Status = status
	run.ResultContent = resultContent
	f.finished[id] = status
	return nil
}

func (f *fakeStore) ListEnabledPlaybooks(ctx context.Context) ([]models.Playbook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Playbook(nil), f.enabled...), nil
}

func (f *fakeStore) finishedStatus(id uuid.UUID) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.finished[id]
	return status, ok
}

// Unused interface surface.
func (f *fakeStore) GetUserByEmail(context.Context, string) (*models.User, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) CreateUser(context.Context, *models.User) error                 { return nil }
func (f *fakeStore) CreateOrganization(context.Context, *models.Organization) error { return nil }
func (f *fakeStore) CreateSession(context.Context, store.CreateSessionParams) (*models.ChatSession, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) GetSessionByID(context.Context, uuid.UUID, uuid.UUID) (*models.ChatSession, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) ListSessionsByOrg(context.Context, uuid.UUID, int, int) ([]models.ChatSession, error) {
	return nil, nil
}
func (f *fakeStore) SaveSessionMessages(context.Context, uuid.UUID, uuid.UUID, []byte) error {
	return nil
}
func (f *fakeStore) DeleteSession(context.Context, uuid.UUID, uuid.UUID) error { return nil }
func (f *fakeStore) CreatePlaybook(context.Context, store.CreatePlaybookParams) (*models.Playbook, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) GetPlaybookByID(context.Context, uuid.UUID, uuid.UUID) (*models.Playbook, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) ListPlaybooksByOrg(context.Context, uuid.UUID) ([]models.Playbook, error) {
	return nil, nil
}
func (f *fakeStore) UpdatePlaybook(context.Context, store.UpdatePlaybookParams) (*models.Playbook, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) DeletePlaybook(context.Context, uuid.UUID, uuid.UUID) error { return nil }
func (f *fakeStore) ListPlaybookRuns(context.Context, uuid.UUID, uuid.UUID, int) ([]models.PlaybookRun, error) {
	return nil, nil
}
func (f *fakeStore) CreateChannel(context.Context, store.CreateChannelParams) (*models.NotificationChannel, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) GetChannelByID(context.Context, uuid.UUID, uuid.UUID) (*models.NotificationChannel, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) ListChannelsByOrg(context.Context, uuid.UUID) ([]models.NotificationChannel, error) {
	return nil, nil
}
func (f *fakeStore) ListActiveChannelsByOrg(context.Context, uuid.UUID) ([]models.NotificationChannel, error) {
	return nil, nil
}
func (f *fakeStore) DeleteChannel(context.Context, uuid.UUID, uuid.UUID) error { return nil }

// fakeRunnerAgent answers one scripted chat response and one job status.
type fakeRunnerAgent struct {
	chatResp *agent.ChatResponse
	status   *agent.JobStatus
}

func (f *fakeRunnerAgent) RunChat(context.Context, agent.ChatRequest) (*agent.ChatResponse, error) {
	return f.chatResp, nil
}
func (f *fakeRunnerAgent) JobStatus(context.Context, string) (*agent.JobStatus, error) {
	return f.status, nil
}
func (f *fakeRunnerAgent) CancelJob(context.Context, string) error { return nil }

func fastPolicy() chat.PollPolicy {
	return chat.PollPolicy{
		InitialInterval:      time.Millisecond,
		MaxInterval:          5 * time.Millisecond,
		BackoffFactor:        1.5,
		Deadline:             2 * time.Second,
		MaxConsecutiveErrors: 3,
	}
}

func testPlaybook() *models.Playbook {
	return &models.Playbook{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		Name:           "Morning inventory digest",
		CronTrigger:    "0 8 * * *",
		Persona:        string(models.PersonaInventoryAnalyst),
		Prompt:         "Summarize overnight inventory movement",
		Enabled:        true,
	}
}

func TestRunnerSyncDispatch(t *testing.T) {
	fs := newFakeStore()
	r := NewRunner(fs, &fakeRunnerAgent{
		chatResp: &agent.ChatResponse{Content: "Nothing moved overnight."},
	}, fastPolicy())

	var (
		mu       sync.Mutex
		notified []string
	)
	r.Notify = func(ctx context.Context, orgID uuid.UUID, text string) {
		mu.Lock()
		notified = append(notified, text)
		mu.Unlock()
	}

	run, err := r.Run(context.Background(), testPlaybook())
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, run.Status)
	assert.Equal(t, "Nothing moved overnight.", run.ResultContent)
	assert.Empty(t, run.JobID)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, notified, 1)
	assert.Contains(t, notified[0], "Morning inventory digest")
	assert.Contains(t, notified[0], RunStatusCompleted)
}

func TestRunnerAsyncDispatch(t *testing.T) {
	t.Run("job completion finishes the run", func(t *testing.T) {
		fs := newFakeStore()
		r := NewRunner(fs, &fakeRunnerAgent{
			chatResp: &agent.ChatResponse{JobID: "job-pb-1"},
			status: &agent.JobStatus{
				Status: agent.JobCompleted,
				Result: &agent.JobResult{Content: "Digest ready."},
			},
		}, fastPolicy())

		run, err := r.Run(context.Background(), testPlaybook())
		require.NoError(t, err)
		assert.Equal(t, RunStatusRunning, run.Status)
		assert.Equal(t, "job-pb-1", run.JobID)

		require.Eventually(t, func() bool {
			status, ok := fs.finishedStatus(run.ID)
			return ok && status == RunStatusCompleted
		}, 2*time.Second, time.Millisecond)
	})

	t.Run("job failure records a failed run", func(t *testing.T) {
		fs := newFakeStore()
		r := NewRunner(fs, &fakeRunnerAgent{
			chatResp: &agent.ChatResponse{JobID: "job-pb-2"},
			status:   &agent.JobStatus{Status: agent.JobFailed, Error: "tool crashed"},
		}, fastPolicy())

		run, err := r.Run(context.Background(), testPlaybook())
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			status, ok := fs.finishedStatus(run.ID)
			return ok && status == RunStatusFailed
		}, 2*time.Second, time.Millisecond)
	})
}

func TestRunnerRejectsInvalidPersona(t *testing.T) {
	fs := newFakeStore()
	r := NewRunner(fs, &fakeRunnerAgent{}, fastPolicy())

	pb := testPlaybook()
	pb.Persona = "mystery_persona"

	_, err := r.Run(context.Background(), pb)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid persona")
}
