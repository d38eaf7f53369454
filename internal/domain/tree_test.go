package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleNodes() []ScenarioNode {
	return []ScenarioNode{
		{ID: "root", ProjectID: "P1", Name: "Original", Status: NodeFrozen, TreePath: []string{"root"}},
		{ID: "a", ProjectID: "P1", ParentNodeID: strPtr("root"), Name: "Alt supplier", Status: NodeSelected, TreeDepth: 1},
		{ID: "b", ProjectID: "P1", ParentNodeID: strPtr("root"), Name: "Cheaper", Status: NodeFrozen, TreeDepth: 1},
		{ID: "a1", ProjectID: "P1", ParentNodeID: strPtr("a"), Name: "Alt payment", Status: NodeActive, TreeDepth: 2},
		{ID: "orphan", ProjectID: "P1", ParentNodeID: strPtr("missing"), Name: "Orphan", Status: NodeActive},
	}
}

func TestBuildTree(t *testing.T) {
	nodes := sampleNodes()
	deltas := []StepDelta{
		{ScenarioNodeID: "a", StepNumber: 5},
		{ScenarioNodeID: "a", StepNumber: 2},
		{ScenarioNodeID: "a1", StepNumber: 4},
	}

	tree := BuildTree(nodes, deltas, strPtr("a1"))

	type shape struct {
		ID       string
		Changed  []int
		Active   bool
		Frozen   bool
		Selected bool
		Children []shape
	}
	var flatten func(ns []TreeNode) []shape
	flatten = func(ns []TreeNode) []shape {
		out := []shape{}
		for _, n := range ns {
			out = append(out, shape{
				ID: n.Node.ID, Changed: n.ChangedSteps, Active: n.IsActive,
				Frozen: n.IsFrozen, Selected: n.IsSelected, Children: flatten(n.Children),
			})
		}
		return out
	}

	want := []shape{
		{ID: "root", Changed: []int{}, Frozen: true, Children: []shape{
			{ID: "a", Changed: []int{2, 5}, Selected: true, Children: []shape{
				{ID: "a1", Changed: []int{4}, Active: true, Children: []shape{}},
			}},
			{ID: "b", Changed: []int{}, Frozen: true, Children: []shape{}},
		}},
		{ID: "orphan", Changed: []int{}, Children: []shape{}},
	}
	if diff := cmp.Diff(want, flatten(tree)); diff != "" {
		t.Fatalf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestPathToAndDescendants(t *testing.T) {
	nodes := sampleNodes()

	path, err := PathTo(nodes, "a1")
	require.NoError(t, err)
	ids := make([]string, 0, len(path))
	for _, n := range path {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"root", "a", "a1"}, ids)

	_, err = PathTo(nodes, "nope")
	assert.Error(t, err)

	assert.ElementsMatch(t, []string{"root", "a", "b", "a1"}, Descendants(nodes, "root"))
	assert.Equal(t, []string{"b"}, Descendants(nodes, "b"))
}

func TestPathTo_Cycle(t *testing.T) {
	nodes := []ScenarioNode{
		{ID: "x", ParentNodeID: strPtr("y")},
		{ID: "y", ParentNodeID: strPtr("x")},
	}
	_, err := PathTo(nodes, "x")
	assert.ErrorContains(t, err, "cycle")
}

func TestResolve_DeepestWins(t *testing.T) {
	path, err := PathTo(sampleNodes(), "a1")
	require.NoError(t, err)

	deltas := []StepDelta{
		{ScenarioNodeID: "root", StepNumber: 1, StepConfig: json.RawMessage(`"catalog"`), ManualData: map[string]any{"company": "Acme"}},
		{ScenarioNodeID: "root", StepNumber: 2, StepConfig: json.RawMessage(`"catalog"`)},
		{ScenarioNodeID: "a", StepNumber: 2, StepConfig: json.RawMessage(`"manual"`), ManualData: map[string]any{"items": 3.0}},
		{ScenarioNodeID: "a1", StepNumber: 2, ManualData: map[string]any{"items": 4.0}},
		{ScenarioNodeID: "b", StepNumber: 6, StepConfig: json.RawMessage(`"manual"`)},
	}

	got := Resolve("a1", path, deltas)

	want := ResolvedScenario{
		ScenarioID: "a1",
		Steps: []ResolvedStep{
			{StepNumber: 1, StepConfig: json.RawMessage(`"catalog"`), ManualData: map[string]any{"company": "Acme"}, SourceNodeID: "root", SourceDepth: 0},
			{StepNumber: 2, ManualData: map[string]any{"items": 4.0}, SourceNodeID: "a1", SourceDepth: 2},
		},
		StepConfigs: map[int]json.RawMessage{1: json.RawMessage(`"catalog"`)},
		ManualData: map[int]map[string]any{
			1: {"company": "Acme"},
			2: {"items": 4.0},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("resolve mismatch (-want +got):\n%s", diff)
	}
}
