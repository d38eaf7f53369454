package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDeltaInput_ValidateOrder(t *testing.T) {
	_, err := RecordDeltaInput{StepNumber: intPtr(3)}.Validate()
	require.Error(t, err)
	assert.Equal(t, "required fields missing", err.Error())

	_, err = RecordDeltaInput{ScenarioNodeID: "S1"}.Validate()
	assert.Equal(t, "required fields missing", err.Error())

	// presence is checked before range
	_, err = RecordDeltaInput{StepNumber: intPtr(99)}.Validate()
	assert.Equal(t, "required fields missing", err.Error())

	for _, step := range []int{0, 8, -1} {
		_, err = RecordDeltaInput{ScenarioNodeID: "S1", StepNumber: intPtr(step)}.Validate()
		require.Error(t, err)
		assert.True(t, IsValidation(err))
		assert.Equal(t, "step number out of range", err.Error())
	}

	_, err = RecordDeltaInput{ScenarioNodeID: "S1", StepNumber: intPtr(2), StepConfig: json.RawMessage(`{bad`)}.Validate()
	assert.True(t, IsValidation(err))

	_, err = RecordDeltaInput{ScenarioNodeID: "S1", StepNumber: intPtr(2), UploadedFiles: []UploadedFile{{Name: "x"}}}.Validate()
	assert.True(t, IsValidation(err))

	spec, err := RecordDeltaInput{ScenarioNodeID: "S1", StepNumber: intPtr(7)}.Validate()
	require.NoError(t, err)
	assert.Equal(t, 7, spec.StepNumber)
}

func TestDeltaSpec_ApplyReplace(t *testing.T) {
	created := time.Unix(1700000000, 0).UTC()
	existing := &StepDelta{
		ID:            "D1",
		StepConfig:    json.RawMessage(`"catalog"`),
		ManualData:    map[string]any{"x": 1.0},
		UploadedFiles: []UploadedFile{{ID: "f1", URL: "u"}},
		CreatedAt:     created,
	}
	spec := DeltaSpec{ScenarioNodeID: "S1", StepNumber: 3, ManualData: map[string]any{"y": 2.0}}

	got := spec.Apply(DeltaReplace, existing)
	assert.Equal(t, "D1", got.ID)
	assert.Equal(t, created, got.CreatedAt)
	assert.Nil(t, got.StepConfig)
	assert.Equal(t, map[string]any{"y": 2.0}, got.ManualData)
	assert.Equal(t, []UploadedFile{}, got.UploadedFiles)

	fresh := DeltaSpec{ScenarioNodeID: "S1", StepNumber: 3}.Apply(DeltaReplace, nil)
	assert.Empty(t, fresh.ID)
	assert.Equal(t, map[string]any{}, fresh.ManualData)
	assert.Equal(t, []UploadedFile{}, fresh.UploadedFiles)
}

func TestDeltaSpec_ApplyMerge(t *testing.T) {
	existing := &StepDelta{
		ID:            "D1",
		StepConfig:    json.RawMessage(`"catalog"`),
		ManualData:    map[string]any{"x": 1.0},
		UploadedFiles: []UploadedFile{{ID: "f1", URL: "u"}},
	}

	got := DeltaSpec{ScenarioNodeID: "S1", StepNumber: 3, ManualData: map[string]any{"y": 2.0}}.Apply(DeltaMerge, existing)
	assert.Equal(t, json.RawMessage(`"catalog"`), got.StepConfig)
	assert.Equal(t, map[string]any{"y": 2.0}, got.ManualData)
	assert.Equal(t, existing.UploadedFiles, got.UploadedFiles)

	cleared := DeltaSpec{ScenarioNodeID: "S1", StepNumber: 3, StepConfig: json.RawMessage(`null`)}.Apply(DeltaMerge, existing)
	assert.Nil(t, cleared.StepConfig)
	assert.Equal(t, existing.ManualData, cleared.ManualData)
}

func TestParseDeltaPolicy(t *testing.T) {
	p, err := ParseDeltaPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DeltaReplace, p)

	p, err = ParseDeltaPolicy(" MERGE ")
	require.NoError(t, err)
	assert.Equal(t, DeltaMerge, p)

	_, err = ParseDeltaPolicy("append")
	assert.Error(t, err)
}
