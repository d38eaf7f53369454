package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	MinStep = 1
	MaxStep = 7
)

func ValidStep(step int) bool {
	return step >= MinStep && step <= MaxStep
}

type UploadedFile struct {
	ID   string
	Name string
	URL  string
	Type string
}

// StepDelta is the override a scenario node holds for one workflow step.
// At most one exists per (ScenarioNodeID, StepNumber).
type StepDelta struct {
	ID             string
	ScenarioNodeID string
	StepNumber     int
	StepConfig     json.RawMessage
	ManualData     map[string]any
	UploadedFiles  []UploadedFile
	ChangedBy      *string
	ChangeReason   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RecordDeltaInput is a step delta write as received from a caller.
// A nil StepConfig, ManualData or UploadedFiles means the field was
// omitted; a StepConfig holding the JSON literal null is an explicit
// clear.
type RecordDeltaInput struct {
	ScenarioNodeID string
	StepNumber     *int
	StepConfig     json.RawMessage
	ManualData     map[string]any
	UploadedFiles  []UploadedFile
	ChangedBy      *string
	ChangeReason   *string
}

type DeltaSpec struct {
	ScenarioNodeID string
	StepNumber     int
	StepConfig     json.RawMessage
	ManualData     map[string]any
	UploadedFiles  []UploadedFile
	ChangedBy      *string
	ChangeReason   *string
}

func (in RecordDeltaInput) Validate() (DeltaSpec, error) {
	nodeID := strings.TrimSpace(in.ScenarioNodeID)
	if nodeID == "" || in.StepNumber == nil {
		return DeltaSpec{}, NewValidationError("required fields missing")
	}
	if !ValidStep(*in.StepNumber) {
		return DeltaSpec{}, NewValidationError("step number out of range")
	}
	if len(in.StepConfig) > 0 && !json.Valid(in.StepConfig) {
		return DeltaSpec{}, NewValidationError("step_config must be valid JSON")
	}
	for i, f := range in.UploadedFiles {
		if strings.TrimSpace(f.ID) == "" || strings.TrimSpace(f.URL) == "" {
			return DeltaSpec{}, NewValidationError(fmt.Sprintf("uploaded_files[%d]: id and url are required", i))
		}
	}
	return DeltaSpec{
		ScenarioNodeID: nodeID,
		StepNumber:     *in.StepNumber,
		StepConfig:     in.StepConfig,
		ManualData:     in.ManualData,
		UploadedFiles:  in.UploadedFiles,
		ChangedBy:      trimmedOrNil(in.ChangedBy),
		ChangeReason:   in.ChangeReason,
	}, nil
}

type DeltaPolicy string

const (
	// DeltaReplace overwrites the stored delta wholesale; omitted fields
	// fall back to their empty values.
	DeltaReplace DeltaPolicy = "replace"
	// DeltaMerge keeps stored values for omitted fields.
	DeltaMerge DeltaPolicy = "merge"
)

func ParseDeltaPolicy(raw string) (DeltaPolicy, error) {
	switch p := DeltaPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return DeltaReplace, nil
	case DeltaReplace, DeltaMerge:
		return p, nil
	default:
		return "", fmt.Errorf("invalid delta policy %q (expected replace or merge)", raw)
	}
}

// Apply builds the row to store for spec. existing is the currently
// stored delta for the same node and step, or nil.
func (s DeltaSpec) Apply(policy DeltaPolicy, existing *StepDelta) StepDelta {
	out := StepDelta{
		ScenarioNodeID: s.ScenarioNodeID,
		StepNumber:     s.StepNumber,
		StepConfig:     normalizeConfig(s.StepConfig),
		ManualData:     s.ManualData,
		UploadedFiles:  s.UploadedFiles,
		ChangedBy:      s.ChangedBy,
		ChangeReason:   s.ChangeReason,
	}
	if existing != nil {
		out.ID = existing.ID
		out.CreatedAt = existing.CreatedAt
	}

	if policy == DeltaMerge && existing != nil {
		if s.StepConfig == nil {
			out.StepConfig = existing.StepConfig
		}
		if s.ManualData == nil {
			out.ManualData = existing.ManualData
		}
		if s.UploadedFiles == nil {
			out.UploadedFiles = existing.UploadedFiles
		}
	}

	if out.ManualData == nil {
		out.ManualData = map[string]any{}
	}
	if out.UploadedFiles == nil {
		out.UploadedFiles = []UploadedFile{}
	}
	return out
}

func normalizeConfig(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return json.RawMessage(trimmed)
}
