package playbook

import (
	"context"
	"log"
	"time"

	"github.com/adhocore/gronx"

	"canopy-backend/internal/models"
	"canopy-backend/internal/store"
)

// Scheduler wakes once a minute, checks every enabled playbook's cron trigger
// against the current minute, and dispatches the due ones through the Runner.
type Scheduler struct {
	store  store.Store
	runner *Runner
	gron   *gronx.Gronx
}

// NewScheduler creates a Scheduler.
func NewScheduler(s store.Store, runner *Runner) *Scheduler {
	return &Scheduler{
		store:  s,
		runner: runner,
		gron:   gronx.New(),
	}
}

// Start runs the scheduling loop until ctx is cancelled. It ticks on minute
// boundaries so each cron slot is evaluated exactly once.
func (s *Scheduler) Start(ctx context.Context) {
	log.Println("[PlaybookScheduler] started")
	for {
		now := time.Now()
		next := now.Truncate(time.Minute).Add(time.Minute)

		select {
		case <-ctx.Done():
			log.Println("[PlaybookScheduler] stopping")
			return
		case <-time.After(time.Until(next)):
		}

		s.tick(ctx, next)
	}
}

// tick dispatches every playbook due at the given minute.
func (s *Scheduler) tick(ctx context.Context, at time.Time) {
	playbooks, err := s.store.ListEnabledPlaybooks(ctx)
	if err != nil {
		log.Printf("ERROR [PlaybookScheduler] failed to list enabled playbooks: %v", err)
		return
	}

	for i := range playbooks {
		pb := playbooks[i]

		due, err := s.gron.IsDue(pb.CronTrigger, at)
		if err != nil {
			log.Printf("WARN [PlaybookScheduler] playbook %s has bad cron %q: %v", pb.ID, pb.CronTrigger, err)
			continue
		}
		if !due {
			continue
		}

		log.Printf("[PlaybookScheduler] dispatching playbook %s (%q)", pb.ID, pb.Name)
		go s.dispatch(ctx, pb)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, pb models.Playbook) {
	if _, err := s.runner.Run(ctx, &pb); err != nil {
		log.Printf("ERROR [PlaybookScheduler] dispatch of playbook %s failed: %v", pb.ID, err)
	}
}

// ValidTrigger reports whether expr is an acceptable cron expression for a
// playbook trigger.
func ValidTrigger(expr string) bool {
	return gronx.IsValid(expr)
}
