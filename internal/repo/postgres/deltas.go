package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/get2b/get2b-go/internal/domain"
)

const (
	deltaColumns     = `d.id, d.scenario_node_id, d.step_number, d.step_config, d.manual_data, d.uploaded_files, d.changed_by, d.change_reason, d.created_at, d.updated_at`
	selectDeltaQuery = `SELECT ` + deltaColumns + `
		FROM scenario_deltas d
		WHERE d.scenario_node_id = $1 AND d.step_number = $2
		FOR UPDATE`
	listDeltasByProjectQuery = `SELECT ` + deltaColumns + `
		FROM scenario_deltas d
		JOIN scenario_nodes n ON n.id = d.scenario_node_id
		WHERE n.project_id = $1
		ORDER BY d.scenario_node_id, d.step_number`
	upsertDeltaQuery = `INSERT INTO scenario_deltas (
			id,
			scenario_node_id,
			step_number,
			step_config,
			manual_data,
			uploaded_files,
			changed_by,
			change_reason
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (scenario_node_id, step_number) DO UPDATE SET
			step_config = EXCLUDED.step_config,
			manual_data = EXCLUDED.manual_data,
			uploaded_files = EXCLUDED.uploaded_files,
			changed_by = EXCLUDED.changed_by,
			change_reason = EXCLUDED.change_reason,
			updated_at = now()
		RETURNING id`
)

type DeltaStore struct {
	db DB
}

func NewDeltaStore(db DB) *DeltaStore {
	if db == nil {
		return nil
	}
	return &DeltaStore{db: db}
}

// Get locks the row when called inside a transaction.
func (s *DeltaStore) Get(ctx context.Context, scenarioNodeID string, stepNumber int) (domain.StepDelta, error) {
	if s == nil || s.db == nil {
		return domain.StepDelta{}, fmt.Errorf("delta store not initialized")
	}
	d, err := scanDelta(s.db.QueryRowContext(ctx, selectDeltaQuery, strings.TrimSpace(scenarioNodeID), stepNumber))
	if err != nil {
		return domain.StepDelta{}, classify(err, fmt.Sprintf("delta %s/%d", scenarioNodeID, stepNumber))
	}
	return d, nil
}

func (s *DeltaStore) Upsert(ctx context.Context, delta domain.StepDelta) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("delta store not initialized")
	}
	manual, err := encodeManualData(delta.ManualData)
	if err != nil {
		return "", fmt.Errorf("encode manual data: %w", err)
	}
	files, err := encodeFiles(delta.UploadedFiles)
	if err != nil {
		return "", fmt.Errorf("encode uploaded files: %w", err)
	}
	id := strings.TrimSpace(delta.ID)
	if id == "" {
		id = uuid.NewString()
	}

	var stored string
	err = s.db.QueryRowContext(
		ctx,
		upsertDeltaQuery,
		id,
		delta.ScenarioNodeID,
		delta.StepNumber,
		nullableJSON(delta.StepConfig),
		manual,
		files,
		nullableString(delta.ChangedBy),
		nullableString(delta.ChangeReason),
	).Scan(&stored)
	if err != nil {
		return "", classify(err, "scenario "+delta.ScenarioNodeID)
	}
	return stored, nil
}

func (s *DeltaStore) ListByProject(ctx context.Context, projectID string) ([]domain.StepDelta, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("delta store not initialized")
	}
	rows, err := s.db.QueryContext(ctx, listDeltasByProjectQuery, projectID)
	if err != nil {
		return nil, fmt.Errorf("list deltas: %w", err)
	}
	defer rows.Close()

	out := make([]domain.StepDelta, 0)
	for rows.Next() {
		d, err := scanDelta(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deltas: %w", err)
	}
	return out, nil
}

func scanDelta(row rowScanner) (domain.StepDelta, error) {
	var (
		d            domain.StepDelta
		config       []byte
		manual       []byte
		files        []byte
		changedBy    sql.NullString
		changeReason sql.NullString
	)
	if err := row.Scan(&d.ID, &d.ScenarioNodeID, &d.StepNumber, &config, &manual, &files, &changedBy, &changeReason, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return domain.StepDelta{}, err
	}
	var err error
	if d.ManualData, err = decodeManualData(manual); err != nil {
		return domain.StepDelta{}, fmt.Errorf("decode manual data: %w", err)
	}
	if d.UploadedFiles, err = decodeFiles(files); err != nil {
		return domain.StepDelta{}, fmt.Errorf("decode uploaded files: %w", err)
	}
	if len(config) > 0 {
		d.StepConfig = append([]byte(nil), config...)
	}
	d.ChangedBy = stringPtr(changedBy)
	d.ChangeReason = stringPtr(changeReason)
	return d, nil
}
