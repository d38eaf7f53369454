package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/get2b/get2b-go/internal/domain"
)

const deltaColumns = `d.id, d.scenario_node_id, d.step_number, d.step_config, d.manual_data, d.uploaded_files,
	d.changed_by, d.change_reason, d.created_at, d.updated_at`

type DeltaStore struct {
	db    DB
	now   func() time.Time
	newID func() string
}

func (s *DeltaStore) Get(ctx context.Context, scenarioNodeID string, stepNumber int) (domain.StepDelta, error) {
	d, err := scanDelta(s.db.QueryRowContext(ctx,
		`SELECT `+deltaColumns+` FROM scenario_deltas d WHERE d.scenario_node_id = ? AND d.step_number = ?`,
		strings.TrimSpace(scenarioNodeID), stepNumber,
	))
	if err != nil {
		return domain.StepDelta{}, classify(err, fmt.Sprintf("delta %s/%d", scenarioNodeID, stepNumber))
	}
	return d, nil
}

func (s *DeltaStore) Upsert(ctx context.Context, delta domain.StepDelta) (string, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM scenario_nodes WHERE id = ?`, delta.ScenarioNodeID).Scan(&exists)
	if err != nil {
		return "", classify(err, "scenario "+delta.ScenarioNodeID)
	}

	manual := delta.ManualData
	if manual == nil {
		manual = map[string]any{}
	}
	manualJSON, err := json.Marshal(manual)
	if err != nil {
		return "", fmt.Errorf("encode manual data: %w", err)
	}
	files := make([]fileJSON, 0, len(delta.UploadedFiles))
	for _, f := range delta.UploadedFiles {
		files = append(files, fileJSON(f))
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return "", fmt.Errorf("encode uploaded files: %w", err)
	}
	var config any
	if len(delta.StepConfig) > 0 {
		config = string(delta.StepConfig)
	}
	id := strings.TrimSpace(delta.ID)
	if id == "" {
		id = s.newID()
	}
	now := formatTime(s.now())

	var stored string
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO scenario_deltas (id, scenario_node_id, step_number, step_config, manual_data,
			uploaded_files, changed_by, change_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (scenario_node_id, step_number) DO UPDATE SET
			step_config = excluded.step_config,
			manual_data = excluded.manual_data,
			uploaded_files = excluded.uploaded_files,
			changed_by = excluded.changed_by,
			change_reason = excluded.change_reason,
			updated_at = excluded.updated_at
		RETURNING id`,
		id, delta.ScenarioNodeID, delta.StepNumber, config, string(manualJSON), string(filesJSON),
		nullableString(delta.ChangedBy), nullableString(delta.ChangeReason), now, now,
	).Scan(&stored)
	if err != nil {
		return "", classify(err, "scenario "+delta.ScenarioNodeID)
	}
	return stored, nil
}

func (s *DeltaStore) ListByProject(ctx context.Context, projectID string) ([]domain.StepDelta, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+deltaColumns+`
		FROM scenario_deltas d
		JOIN scenario_nodes n ON n.id = d.scenario_node_id
		WHERE n.project_id = ?
		ORDER BY d.scenario_node_id, d.step_number`,
		projectID,
	)
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

type fileJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

func scanDelta(row rowScanner) (domain.StepDelta, error) {
	var (
		d                       domain.StepDelta
		config                  sql.NullString
		manual, files           string
		changedBy, changeReason sql.NullString
		created, updated        string
	)
	err := row.Scan(&d.ID, &d.ScenarioNodeID, &d.StepNumber, &config, &manual, &files,
		&changedBy, &changeReason, &created, &updated)
	if err != nil {
		return domain.StepDelta{}, err
	}
	if config.Valid {
		d.StepConfig = json.RawMessage(config.String)
	}
	d.ManualData = map[string]any{}
	if err := json.Unmarshal([]byte(manual), &d.ManualData); err != nil {
		return domain.StepDelta{}, fmt.Errorf("decode manual data: %w", err)
	}
	if d.ManualData == nil {
		d.ManualData = map[string]any{}
	}
	var decoded []fileJSON
	if err := json.Unmarshal([]byte(files), &decoded); err != nil {
		return domain.StepDelta{}, fmt.Errorf("decode uploaded files: %w", err)
	}
	d.UploadedFiles = make([]domain.UploadedFile, 0, len(decoded))
	for _, f := range decoded {
		d.UploadedFiles = append(d.UploadedFiles, domain.UploadedFile(f))
	}
	d.ChangedBy = stringPtr(changedBy)
	d.ChangeReason = stringPtr(changeReason)
	if d.CreatedAt, err = parseTime(created); err != nil {
		return domain.StepDelta{}, err
	}
	if d.UpdatedAt, err = parseTime(updated); err != nil {
		return domain.StepDelta{}, err
	}
	return d, nil
}
