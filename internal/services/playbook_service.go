package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"canopy-backend/internal/models"
	"canopy-backend/internal/playbook"
	"canopy-backend/internal/store"
)

// Custom errors for playbook service
var (
	ErrInvalidCronTrigger = errors.New("invalid cron trigger expression")
	ErrPlaybookValidation = errors.New("playbook validation failed")
)

// PlaybookService handles playbook CRUD and manual dispatch.
type PlaybookService struct {
	store  store.Store
	runner *playbook.Runner
}

// NewPlaybookService creates a new PlaybookService.
func NewPlaybookService(s store.Store, runner *playbook.Runner) *PlaybookService {
	return &PlaybookService{
		store:  s,
		runner: runner,
	}
}

// CreatePlaybook validates and creates a new playbook.
func (s *PlaybookService) CreatePlaybook(ctx context.Context, orgID uuid.UUID, req models.CreatePlaybookRequest) (*models.PlaybookResponse, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrPlaybookValidation)
	}
	if req.Prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrPlaybookValidation)
	}
	if _, err := models.ParsePersona(req.Persona); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlaybookValidation, err)
	}
	if !playbook.ValidTrigger(req.CronTrigger) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCronTrigger, req.CronTrigger)
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	pb, err := s.store.CreatePlaybook(ctx, store.CreatePlaybookParams{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Name:           req.Name,
		CronTrigger:    req.CronTrigger,
		Persona:        req.Persona,
		Prompt:         req.Prompt,
		Enabled:        enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create playbook in store: %w", err)
	}

	return mapPlaybookToResponse(pb), nil
}

// GetPlaybookByID retrieves a specific playbook.
func (s *PlaybookService) GetPlaybookByID(ctx context.Context, orgID, playbookID uuid.UUID) (*models.PlaybookResponse, error) {
	pb, err := s.store.GetPlaybookByID(ctx, playbookID, orgID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get playbook from store: %w", err)
	}
	return mapPlaybookToResponse(pb), nil
}

// ListPlaybooks retrieves all playbooks for an organization.
func (s *PlaybookService) ListPlaybooks(ctx context.Context, orgID uuid.UUID) (*models.ListPlaybooksResponse, error) {
	playbooks, err := s.store.ListPlaybooksByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list playbooks from store: %w", err)
	}

	responses := make([]models.PlaybookResponse, 0, len(playbooks))
	for i := range playbooks {
		responses = append(responses, *mapPlaybookToResponse(&playbooks[i]))
	}

	return &models.ListPlaybooksResponse{Playbooks: responses}, nil
}

// UpdatePlaybook applies a partial update.
func (s *PlaybookService) UpdatePlaybook(ctx context.Context, orgID, playbookID uuid.UUID, req models.UpdatePlaybookRequest) (*models.PlaybookResponse, error) {
	if req.Persona != nil {
		if _, err := models.ParsePersona(*req.Persona); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPlaybookValidation, err)
		}
	}
	if req.CronTrigger != nil && !playbook.ValidTrigger(*req.CronTrigger) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCronTrigger, *req.CronTrigger)
	}

	pb, err := s.store.UpdatePlaybook(ctx, store.UpdatePlaybookParams{
		ID:             playbookID,
		OrganizationID: orgID,
		Name:           req.Name,
		CronTrigger:    req.CronTrigger,
		Persona:        req.Persona,
		Prompt:         req.Prompt,
		Enabled:        req.Enabled,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update playbook in store: %w", err)
	}

	return mapPlaybookToResponse(pb), nil
}

// DeletePlaybook removes a playbook.
func (s *PlaybookService) DeletePlaybook(ctx context.Context, orgID, playbookID uuid.UUID) error {
	if err := s.store.DeletePlaybook(ctx, playbookID, orgID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete playbook: %w", err)
	}
	return nil
}

// RunNow dispatches a playbook immediately, outside its schedule.
func (s *PlaybookService) RunNow(ctx context.Context, orgID, playbookID uuid.UUID) (*models.PlaybookRunResponse, error) {
	pb, err := s.store.GetPlaybookByID(ctx, playbookID, orgID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get playbook from store: %w", err)
	}

	run, err := s.runner.Run(ctx, pb)
	if err != nil {
		return nil, fmt.Errorf("failed to run playbook: %w", err)
	}

	return mapRunToResponse(run), nil
}

// ListRuns retrieves recent runs of a playbook.
func (s *PlaybookService) ListRuns(ctx context.Context, orgID, playbookID uuid.UUID, limit int) (*models.ListPlaybookRunsResponse, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	runs, err := s.store.ListPlaybookRuns(ctx, playbookID, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list playbook runs from store: %w", err)
	}

	responses := make([]models.PlaybookRunResponse, 0, len(runs))
	for i := range runs {
		responses = append(responses, *mapRunToResponse(&runs[i]))
	}

	return &models.ListPlaybookRunsResponse{Runs: responses}, nil
}

func mapPlaybookToResponse(pb *models.Playbook) *models.PlaybookResponse {
	return &models.PlaybookResponse{
		ID:             pb.ID,
		OrganizationID: pb.OrganizationID,
		Name:           pb.Name,
		CronTrigger:    pb.CronTrigger,
		Persona:        pb.Persona,
		Prompt:         pb.Prompt,
		Enabled:        pb.Enabled,
		CreatedAt:      pb.CreatedAt,
		UpdatedAt:      pb.UpdatedAt,
	}
}

func mapRunToResponse(run *models.PlaybookRun) *models.PlaybookRunResponse {
	return &models.PlaybookRunResponse{
		ID:            run.ID,
		PlaybookID:    run.PlaybookID,
		JobID:         run.JobID,
		Status:        run.Status,
		ResultContent: run.ResultContent,
		StartedAt:     run.StartedAt,
		FinishedAt:    run.FinishedAt,
	}
}
