package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/get2b/get2b-go/internal/domain"
	"github.com/get2b/get2b-go/internal/repo"
)

type ProjectStore struct {
	db  DB
	now func() time.Time
}

func (s *ProjectStore) Create(ctx context.Context, project domain.Project) error {
	id := strings.TrimSpace(project.ID)
	if id == "" {
		return fmt.Errorf("project id is required")
	}
	stage := project.CurrentStage
	if stage == 0 {
		stage = 1
	}
	now := formatTime(s.now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (project_id, name, current_stage, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (project_id) DO NOTHING`,
		id, strings.TrimSpace(project.Name), stage, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *ProjectStore) Get(ctx context.Context, id string) (domain.Project, error) {
	var (
		p                domain.Project
		active           sql.NullString
		created, updated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT project_id, name, current_stage, scenario_mode_enabled, active_scenario_id, created_at, updated_at
		FROM projects WHERE project_id = ?`,
		strings.TrimSpace(id),
	).Scan(&p.ID, &p.Name, &p.CurrentStage, &p.ScenarioModeEnabled, &active, &created, &updated)
	if err != nil {
		return domain.Project{}, classify(err, "project "+id)
	}
	p.ActiveScenarioID = stringPtr(active)
	if p.CreatedAt, err = parseTime(created); err != nil {
		return domain.Project{}, err
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (s *ProjectStore) ActivateScenario(ctx context.Context, projectID, scenarioID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET scenario_mode_enabled = 1, active_scenario_id = ?, updated_at = ? WHERE project_id = ?`,
		scenarioID, formatTime(s.now()), projectID,
	)
	if err != nil {
		return fmt.Errorf("activate scenario: %w", classify(err, "project "+projectID))
	}
	return requireRow(res, "project "+projectID)
}

func (s *ProjectStore) SetActiveScenario(ctx context.Context, projectID string, scenarioID *string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET active_scenario_id = ?, updated_at = ? WHERE project_id = ?`,
		nullableString(scenarioID), formatTime(s.now()), projectID,
	)
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
