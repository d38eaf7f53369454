package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/get2b/get2b-go/internal/domain"
	"github.com/get2b/get2b-go/internal/repo"
)

const scenarioColumns = `id, project_id, parent_node_id, name, description, created_by, creator_role, branched_at_step,
	tree_depth, tree_path, status, frozen_at, selected_at, created_at, updated_at`

// ScenarioStore performs in Go what the Postgres store delegates to the
// create_scenario_branch and freeze_other_scenarios procedures. Callers
// run it inside a transaction.
type ScenarioStore struct {
	db    DB
	now   func() time.Time
	newID func() string
}

func (s *ScenarioStore) CreateBranch(ctx context.Context, spec domain.BranchSpec) (string, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE project_id = ?`, spec.ProjectID).Scan(&exists)
	if err != nil {
		return "", classify(err, "project "+spec.ProjectID)
	}

	id := s.newID()
	depth := 0
	path := []string{}
	if spec.ParentNodeID != nil {
		var (
			parentProject string
			parentDepth   int
			parentPath    string
		)
		err := s.db.QueryRowContext(ctx,
			`SELECT project_id, tree_depth, tree_path FROM scenario_nodes WHERE id = ?`,
			*spec.ParentNodeID,
		).Scan(&parentProject, &parentDepth, &parentPath)
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.NewStoreError(fmt.Sprintf("parent scenario %s not found", *spec.ParentNodeID), err)
		}
		if err != nil {
			return "", fmt.Errorf("load parent scenario: %w", err)
		}
		if parentProject != spec.ProjectID {
			return "", domain.NewStoreError(fmt.Sprintf("parent scenario %s belongs to another project", *spec.ParentNodeID), nil)
		}
		if err := json.Unmarshal([]byte(parentPath), &path); err != nil {
			return "", fmt.Errorf("decode parent tree path: %w", err)
		}
		depth = parentDepth + 1
	}
	pathJSON, err := json.Marshal(append(path, id))
	if err != nil {
		return "", err
	}

	now := formatTime(s.now())
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scenario_nodes (id, project_id, parent_node_id, name, description, created_by,
			creator_role, branched_at_step, tree_depth, tree_path, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'active', ?, ?)`,
		id, spec.ProjectID, nullableString(spec.ParentNodeID), spec.Name, nullableString(spec.Description),
		nullableString(spec.CreatedBy), string(spec.CreatorRole), nullableInt(spec.BranchedAtStep),
		depth, string(pathJSON), now, now,
	)
	if err != nil {
		return "", classify(err, "project "+spec.ProjectID)
	}
	return id, nil
}

func (s *ScenarioStore) FreezeOthers(ctx context.Context, projectID, nodeID string) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM scenario_nodes WHERE id = ? AND project_id = ?`, nodeID, projectID,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewStoreError(fmt.Sprintf("scenario %s not found in project %s", nodeID, projectID), err)
	}
	if err != nil {
		return err
	}

	now := formatTime(s.now())
	if _, err := s.db.ExecContext(ctx,
		`UPDATE scenario_nodes
		SET status = 'frozen', frozen_at = ?, selected_at = NULL, updated_at = ?
		WHERE project_id = ? AND id <> ? AND status <> 'archived'`,
		now, now, projectID, nodeID,
	); err != nil {
		return classify(err, "scenario "+nodeID)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE scenario_nodes
		SET status = 'selected', selected_at = ?, frozen_at = NULL, updated_at = ?
		WHERE id = ?`,
		now, now, nodeID,
	); err != nil {
		return classify(err, "scenario "+nodeID)
	}
	return nil
}

func (s *ScenarioStore) Get(ctx context.Context, id string) (domain.ScenarioNode, error) {
	id = strings.TrimSpace(id)
	node, err := scanScenario(s.db.QueryRowContext(ctx,
		`SELECT `+scenarioColumns+` FROM scenario_nodes WHERE id = ?`, id))
	if err != nil {
		return domain.ScenarioNode{}, classify(err, "scenario "+id)
	}
	return node, nil
}

func (s *ScenarioStore) ListByProject(ctx context.Context, projectID string) ([]domain.ScenarioNode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scenarioColumns+` FROM scenario_nodes
		WHERE project_id = ?
		ORDER BY tree_depth, created_at, rowid`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ScenarioNode, 0)
	for rows.Next() {
		node, err := scanScenario(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scenarios: %w", err)
	}
	return out, nil
}

func (s *ScenarioStore) DeleteNodes(ctx context.Context, projectID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, projectID)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM scenario_nodes WHERE project_id = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete scenarios: %w", classify(err, "scenario"))
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScenario(row rowScanner) (domain.ScenarioNode, error) {
	var (
		n                    domain.ScenarioNode
		parent, description  sql.NullString
		createdBy            sql.NullString
		role, status         string
		branchedAt           sql.NullInt64
		pathJSON             string
		frozenAt, selectedAt sql.NullString
		created, updated     string
	)
	err := row.Scan(
		&n.ID, &n.ProjectID, &parent, &n.Name, &description, &createdBy, &role,
		&branchedAt, &n.TreeDepth, &pathJSON, &status, &frozenAt, &selectedAt, &created, &updated,
	)
	if err != nil {
		return domain.ScenarioNode{}, err
	}
	if err := json.Unmarshal([]byte(pathJSON), &n.TreePath); err != nil {
		return domain.ScenarioNode{}, fmt.Errorf("decode tree path: %w", err)
	}
	n.ParentNodeID = stringPtr(parent)
	n.Description = stringPtr(description)
	n.CreatedBy = stringPtr(createdBy)
	n.CreatorRole = domain.CreatorRole(role)
	n.BranchedAtStep = intPtr(branchedAt)
	n.Status = domain.NodeStatus(status)
	if n.FrozenAt, err = parseNullTime(frozenAt); err != nil {
		return domain.ScenarioNode{}, err
	}
	if n.SelectedAt, err = parseNullTime(selectedAt); err != nil {
		return domain.ScenarioNode{}, err
	}
	if n.CreatedAt, err = parseTime(created); err != nil {
		return domain.ScenarioNode{}, err
	}
	if n.UpdatedAt, err = parseTime(updated); err != nil {
		return domain.ScenarioNode{}, err
	}
	return n, nil
}

var _ repo.ScenarioRepository = (*ScenarioStore)(nil)

func defaultID() string { return uuid.NewString() }
