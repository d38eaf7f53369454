package domain

import (
	"encoding/json"
	"sort"
)

type ResolvedStep struct {
	StepNumber    int
	StepConfig    json.RawMessage
	ManualData    map[string]any
	UploadedFiles []UploadedFile
	SourceNodeID  string
	SourceDepth   int
}

// ResolvedScenario is the effective state of every overridden step for a
// scenario, after applying the deltas of its ancestors.
type ResolvedScenario struct {
	ScenarioID  string
	Steps       []ResolvedStep
	StepConfigs map[int]json.RawMessage
	ManualData  map[int]map[string]any
}

// Resolve merges deltas along path (root first). For each step the delta
// of the deepest node on the path wins.
func Resolve(scenarioID string, path []ScenarioNode, deltas []StepDelta) ResolvedScenario {
	byNode := make(map[string][]StepDelta)
	for _, d := range deltas {
		byNode[d.ScenarioNodeID] = append(byNode[d.ScenarioNodeID], d)
	}

	steps := make(map[int]ResolvedStep)
	for depth, node := range path {
		for _, d := range byNode[node.ID] {
			steps[d.StepNumber] = ResolvedStep{
				StepNumber:    d.StepNumber,
				StepConfig:    d.StepConfig,
				ManualData:    d.ManualData,
				UploadedFiles: d.UploadedFiles,
				SourceNodeID:  node.ID,
				SourceDepth:   depth,
			}
		}
	}

	out := ResolvedScenario{
		ScenarioID:  scenarioID,
		Steps:       make([]ResolvedStep, 0, len(steps)),
		StepConfigs: map[int]json.RawMessage{},
		ManualData:  map[int]map[string]any{},
	}
	for _, s := range steps {
		out.Steps = append(out.Steps, s)
		if s.StepConfig != nil {
			out.StepConfigs[s.StepNumber] = s.StepConfig
		}
		if len(s.ManualData) > 0 {
			out.ManualData[s.StepNumber] = s.ManualData
		}
	}
	sort.Slice(out.Steps, func(i, j int) bool { return out.Steps[i].StepNumber < out.Steps[j].StepNumber })
	return out
}
