package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/get2b/get2b-go/internal/domain"
)

const (
	createBranchQuery   = `SELECT create_scenario_branch($1,$2,$3,$4,$5,$6,$7)`
	freezeOthersQuery   = `SELECT freeze_other_scenarios($1,$2)`
	scenarioColumns     = `id, project_id, parent_node_id, name, description, created_by, creator_role, branched_at_step, tree_depth, to_jsonb(tree_path), status, frozen_at, selected_at, created_at, updated_at`
	selectScenarioQuery = `SELECT ` + scenarioColumns + `
		FROM scenario_nodes
		WHERE id = $1`
	listScenariosQuery = `SELECT ` + scenarioColumns + `
		FROM scenario_nodes
		WHERE project_id = $1
		ORDER BY tree_depth, created_at, id`
	deleteScenariosQuery = `DELETE FROM scenario_nodes
		WHERE project_id = $1 AND id = ANY($2)`
)

type ScenarioStore struct {
	db DB
}

func NewScenarioStore(db DB) *ScenarioStore {
	if db == nil {
		return nil
	}
	return &ScenarioStore{db: db}
}

// CreateBranch calls create_scenario_branch, which places the node in the
// tree and computes its depth and path.
func (s *ScenarioStore) CreateBranch(ctx context.Context, spec domain.BranchSpec) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("scenario store not initialized")
	}
	var id string
	err := s.db.QueryRowContext(
		ctx,
		createBranchQuery,
		spec.ProjectID,
		nullableString(spec.ParentNodeID),
		spec.Name,
		nullableString(spec.Description),
		nullableString(spec.CreatedBy),
		string(spec.CreatorRole),
		nullableInt(spec.BranchedAtStep),
	).Scan(&id)
	if err != nil {
		return "", classify(err, "project "+spec.ProjectID)
	}
	return id, nil
}

func (s *ScenarioStore) FreezeOthers(ctx context.Context, projectID, nodeID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("scenario store not initialized")
	}
	if _, err := s.db.ExecContext(ctx, freezeOthersQuery, projectID, nodeID); err != nil {
		return classify(err, "scenario "+nodeID)
	}
	return nil
}

func (s *ScenarioStore) Get(ctx context.Context, id string) (domain.ScenarioNode, error) {
	if s == nil || s.db == nil {
		return domain.ScenarioNode{}, fmt.Errorf("scenario store not initialized")
	}
	id = strings.TrimSpace(id)
	node, err := scanScenario(s.db.QueryRowContext(ctx, selectScenarioQuery, id))
	if err != nil {
		return domain.ScenarioNode{}, classify(err, "scenario "+id)
	}
	return node, nil
}

func (s *ScenarioStore) ListByProject(ctx context.Context, projectID string) ([]domain.ScenarioNode, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("scenario store not initialized")
	}
	rows, err := s.db.QueryContext(ctx, listScenariosQuery, projectID)
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
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("scenario store not initialized")
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, deleteScenariosQuery, projectID, ids)
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
		n           domain.ScenarioNode
		parent      sql.NullString
		description sql.NullString
		createdBy   sql.NullString
		role        string
		branchedAt  sql.NullInt64
		pathJSON    []byte
		status      string
		frozenAt    sql.NullTime
		selectedAt  sql.NullTime
	)
	err := row.Scan(
		&n.ID, &n.ProjectID, &parent, &n.Name, &description, &createdBy, &role,
		&branchedAt, &n.TreeDepth, &pathJSON, &status, &frozenAt, &selectedAt, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return domain.ScenarioNode{}, err
	}
	if len(pathJSON) > 0 {
		if err := json.Unmarshal(pathJSON, &n.TreePath); err != nil {
			return domain.ScenarioNode{}, fmt.Errorf("decode tree path: %w", err)
		}
	}
	n.ParentNodeID = stringPtr(parent)
	n.Description = stringPtr(description)
	n.CreatedBy = stringPtr(createdBy)
	n.CreatorRole = domain.CreatorRole(role)
	n.BranchedAtStep = intPtr(branchedAt)
	n.Status = domain.NodeStatus(status)
	n.FrozenAt = timePtr(frozenAt)
	n.SelectedAt = timePtr(selectedAt)
	return n, nil
}
