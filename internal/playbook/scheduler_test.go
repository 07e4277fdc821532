package playbook

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canopy-backend/internal/agent"
	"canopy-backend/internal/models"
)

func TestValidTrigger(t *testing.T) {
	assert.True(t, ValidTrigger("0 8 * * *"))
	assert.True(t, ValidTrigger("*/15 * * * *"))
	assert.True(t, ValidTrigger("@daily"))

	assert.False(t, ValidTrigger(""))
	assert.False(t, ValidTrigger("every morning"))
	assert.False(t, ValidTrigger("99 99 * * *"))
}

func TestSchedulerTick(t *testing.T) {
	due := testPlaybook()
	due.Name = "Morning digest"
	due.CronTrigger = "0 8 * * *"

	notDue := testPlaybook()
	notDue.Name = "Evening digest"
	notDue.CronTrigger = "0 20 * * *"

	badCron := testPlaybook()
	badCron.Name = "Broken trigger"
	badCron.CronTrigger = "not-a-cron"

	fs := newFakeStore()
	fs.enabled = []models.Playbook{*due, *notDue, *badCron}

	dispatched := make(chan string, 3)
	runner := NewRunner(fs, &fakeRunnerAgent{
		chatResp: &agent.ChatResponse{Content: "done"},
	}, fastPolicy())
	runner.Notify = func(ctx context.Context, orgID uuid.UUID, text string) {
		dispatched <- text
	}

	s := NewScheduler(fs, runner)
	eightAM := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	s.tick(context.Background(), eightAM)

	select {
	case text := <-dispatched:
		assert.Contains(t, text, due.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("due playbook was never dispatched")
	}

	// Only the 08:00 playbook is due; the rest must stay quiet.
	select {
	case text := <-dispatched:
		t.Fatalf("unexpected extra dispatch: %s", text)
	case <-time.After(50 * time.Millisecond):
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.Len(t, fs.finished, 1)
}
