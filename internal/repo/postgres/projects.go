package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/get2b/get2b-go/internal/domain"
	"github.com/get2b/get2b-go/internal/repo"
)

const (
	insertProjectQuery = `INSERT INTO projects (project_id, name, current_stage)
		VALUES ($1,$2,$3)
		ON CONFLICT (project_id) DO NOTHING`
	selectProjectQuery = `SELECT project_id, name, current_stage, scenario_mode_enabled, active_scenario_id, created_at, updated_at
		FROM projects
		WHERE project_id = $1`
	activateScenarioQuery = `UPDATE projects
		SET scenario_mode_enabled = true, active_scenario_id = $2, updated_at = now()
		WHERE project_id = $1`
	setActiveScenarioQuery = `UPDATE projects
		SET active_scenario_id = $2, updated_at = now()
		WHERE project_id = $1`
)

type ProjectStore struct {
	db DB
}

func NewProjectStore(db DB) *ProjectStore {
	if db == nil {
		return nil
	}
	return &ProjectStore{db: db}
}

func (s *ProjectStore) Create(ctx context.Context, project domain.Project) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("project store not initialized")
	}
	id := strings.TrimSpace(project.ID)
	if id == "" {
		return fmt.Errorf("project id is required")
	}
	stage := project.CurrentStage
	if stage == 0 {
		stage = 1
	}
	if _, err := s.db.ExecContext(ctx, insertProjectQuery, id, strings.TrimSpace(project.Name), stage); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *ProjectStore) Get(ctx context.Context, id string) (domain.Project, error) {
	if s == nil || s.db == nil {
		return domain.Project{}, fmt.Errorf("project store not initialized")
	}
	var (
		p      domain.Project
		active sql.NullString
	)
	err := s.db.QueryRowContext(ctx, selectProjectQuery, strings.TrimSpace(id)).
		Scan(&p.ID, &p.Name, &p.CurrentStage, &p.ScenarioModeEnabled, &active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Project{}, classify(err, "project "+id)
	}
	p.ActiveScenarioID = stringPtr(active)
	return p, nil
}

func (s *ProjectStore) ActivateScenario(ctx context.Context, projectID, scenarioID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("project store not initialized")
	}
	res, err := s.db.ExecContext(ctx, activateScenarioQuery, projectID, scenarioID)
	if err != nil {
		return fmt.Errorf("activate scenario: %w", classify(err, "project "+projectID))
	}
	return requireRow(res, "project "+projectID)
}

func (s *ProjectStore) SetActiveScenario(ctx context.Context, projectID string, scenarioID *string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("project store not initialized")
	}
	res, err := s.db.ExecContext(ctx, setActiveScenarioQuery, projectID, nullableString(scenarioID))
	if err != nil {
		return fmt.Errorf("set active scenario: %w", classify(err, "project "+projectID))
	}
	return requireRow(res, "project "+projectID)
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, repo.ErrNotFound)
	}
	return nil
}
