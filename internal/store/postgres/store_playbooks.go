package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"canopy-backend/internal/models"
	"canopy-backend/internal/store"
)

// --- Playbook Methods ---

const playbookColumns = `id, organization_id, name, cron_trigger, persona, prompt, enabled, created_at, updated_at`

func scanPlaybook(row pgx.Row) (*models.Playbook, error) {
	var pb models.Playbook
	err := row.Scan(
		&pb.ID,
		&pb.OrganizationID,
		&pb.Name,
		&pb.CronTrigger,
		&pb.Persona,
		&pb.Prompt,
		&pb.Enabled,
		&pb.CreatedAt,
		&pb.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning playbook: %w", err)
	}
	return &pb, nil
}

func (s *PostgresStore) CreatePlaybook(ctx context.Context, arg store.CreatePlaybookParams) (*models.Playbook, error) {
	id := arg.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	query := `
		INSERT INTO playbooks (id, organization_id, name, cron_trigger, persona, prompt, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + playbookColumns + `;`

	return scanPlaybook(s.db.QueryRow(ctx, query,
		id, arg.OrganizationID, arg.Name, arg.CronTrigger, arg.Persona, arg.Prompt, arg.Enabled))
}

func (s *PostgresStore) GetPlaybookByID(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.Playbook, error) {
	query := `SELECT ` + playbookColumns + ` FROM playbooks WHERE id = $1 AND organization_id = $2;`
	return scanPlaybook(s.db.QueryRow(ctx, query, id, orgID))
}

func (s *PostgresStore) ListPlaybooksByOrg(ctx context.Context, orgID uuid.UUID) ([]models.Playbook, error) {
	query := `SELECT ` + playbookColumns + ` FROM playbooks WHERE organization_id = $1 ORDER BY created_at DESC;`

	rows, err := s.db.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("error querying playbooks: %w", err)
	}
	defer rows.Close()

	return collectPlaybooks(rows)
}

// ListEnabledPlaybooks returns enabled playbooks across all organizations.
// Used by the scheduler, which evaluates cron due-ness itself.
func (s *PostgresStore) ListEnabledPlaybooks(ctx context.Context) ([]models.Playbook, error) {
	query := `SELECT ` + playbookColumns + ` FROM playbooks WHERE enabled ORDER BY created_at;`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying enabled playbooks: %w", err)
	}
	defer rows.Close()

	return collectPlaybooks(rows)
}

func collectPlaybooks(rows pgx.Rows) ([]models.Playbook, error) {
	var playbooks []models.Playbook
	for rows.Next() {
		pb, err := scanPlaybook(rows)
		if err != nil {
			return nil, err
		}
		playbooks = append(playbooks, *pb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating playbook rows: %w", err)
	}
	return playbooks, nil
}

// UpdatePlaybook applies a partial update built from the non-nil fields.
func (s *PostgresStore) UpdatePlaybook(ctx context.Context, arg store.UpdatePlaybookParams) (*models.Playbook, error) {
	setClauses := []string{"updated_at = NOW()"}
	args := []any{arg.ID, arg.OrganizationID}
	idx := 3

	addSet := func(column string, value any) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, value)
		idx++
	}

	if arg.Name != nil {
		addSet("name", *arg.Name)
	}
	if arg.CronTrigger != nil {
		addSet("cron_trigger", *arg.CronTrigger)
	}
	if arg.Persona != nil {
		addSet("persona", *arg.Persona)
	}
	if arg.Prompt != nil {
		addSet("prompt", *arg.Prompt)
	}
	if arg.Enabled != nil {
		addSet("enabled", *arg.Enabled)
	}

	query := `
		UPDATE playbooks
		SET ` + strings.Join(setClauses, ", ") + `
		WHERE id = $1 AND organization_id = $2
		RETURNING ` + playbookColumns + `;`

	return scanPlaybook(s.db.QueryRow(ctx, query, args...))
}

func (s *PostgresStore) DeletePlaybook(ctx context.Context, id uuid.UUID, orgID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM playbooks WHERE id = $1 AND organization_id = $2;`, id, orgID)
	if err != nil {
		return fmt.Errorf("error deleting playbook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- Playbook Run Methods ---

const playbookRunColumns = `id, playbook_id, organization_id, job_id, status, result_content, started_at, finished_at`

func scanPlaybookRun(row pgx.Row) (*models.PlaybookRun, error) {
	var run models.PlaybookRun
	err := row.Scan(
		&run.ID,
		&run.PlaybookID,
		&run.OrganizationID,
		&run.JobID,
		&run.Status,
		&run.ResultContent,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning playbook run: %w", err)
	}
	return &run, nil
}

func (s *PostgresStore) CreatePlaybookRun(ctx context.Context, arg store.CreatePlaybookRunParams) (*models.PlaybookRun, error) {
	id := arg.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	query := `
		INSERT INTO playbook_runs (id, playbook_id, organization_id, job_id, status, result_content)
		VALUES ($1, $2, $3, $4, $5, '')
		RETURNING ` + playbookRunColumns + `;`

	return scanPlaybookRun(s.db.QueryRow(ctx, query, id, arg.PlaybookID, arg.OrganizationID, arg.JobID, arg.Status))
}

func (s *PostgresStore) FinishPlaybookRun(ctx context.Context, id uuid.UUID, status string, resultContent string) error {
	query := `
		UPDATE playbook_runs
		SET status = $2, result_content = $3, finished_at = NOW()
		WHERE id = $1;`

	tag, err := s.db.Exec(ctx, query, id, status, resultContent)
	if err != nil {
		return fmt.Errorf("error finishing playbook run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListPlaybookRuns(ctx context.Context, playbookID uuid.UUID, orgID uuid.UUID, limit int) ([]models.PlaybookRun, error) {
	query := `
		SELECT ` + playbookRunColumns + `
		FROM playbook_runs
		WHERE playbook_id = $1 AND organization_id = $2
		ORDER BY started_at DESC
		LIMIT $3;`

	rows, err := s.db.Query(ctx, query, playbookID, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying playbook runs: %w", err)
	}
	defer rows.Close()

	var runs []models.PlaybookRun
	for rows.Next() {
		run, err := scanPlaybookRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating playbook run rows: %w", err)
	}

	return runs, nil
}
