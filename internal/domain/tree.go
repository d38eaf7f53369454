package domain

import (
	"fmt"
	"sort"
)

// TreeNode is a ScenarioNode with its children and the steps it overrides.
type TreeNode struct {
	Node         ScenarioNode
	Children     []TreeNode
	ChangedSteps []int
	IsActive     bool
	IsFrozen     bool
	IsSelected   bool
}

// BuildTree nests nodes under their parents, keeping input order among
// siblings. Nodes whose parent is not in nodes become roots.
func BuildTree(nodes []ScenarioNode, deltas []StepDelta, activeID *string) []TreeNode {
	changed := make(map[string][]int)
	for _, d := range deltas {
		changed[d.ScenarioNodeID] = append(changed[d.ScenarioNodeID], d.StepNumber)
	}
	for id := range changed {
		sort.Ints(changed[id])
	}

	known := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		known[n.ID] = struct{}{}
	}

	children := make(map[string][]ScenarioNode)
	var roots []ScenarioNode
	for _, n := range nodes {
		if n.ParentNodeID != nil {
			if _, ok := known[*n.ParentNodeID]; ok && *n.ParentNodeID != n.ID {
				children[*n.ParentNodeID] = append(children[*n.ParentNodeID], n)
				continue
			}
		}
		roots = append(roots, n)
	}

	visited := make(map[string]struct{}, len(nodes))
	var build func(n ScenarioNode) TreeNode
	build = func(n ScenarioNode) TreeNode {
		visited[n.ID] = struct{}{}
		out := TreeNode{
			Node:         n,
			Children:     []TreeNode{},
			ChangedSteps: changed[n.ID],
			IsActive:     activeID != nil && *activeID == n.ID,
			IsFrozen:     n.Status == NodeFrozen,
			IsSelected:   n.Status == NodeSelected,
		}
		if out.ChangedSteps == nil {
			out.ChangedSteps = []int{}
		}
		for _, child := range children[n.ID] {
			if _, seen := visited[child.ID]; seen {
				continue
			}
			out.Children = append(out.Children, build(child))
		}
		return out
	}

	out := make([]TreeNode, 0, len(roots))
	for _, r := range roots {
		out = append(out, build(r))
	}
	return out
}

// PathTo returns the nodes from the root down to id.
func PathTo(nodes []ScenarioNode, id string) ([]ScenarioNode, error) {
	byID := make(map[string]ScenarioNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	var reversed []ScenarioNode
	seen := make(map[string]struct{})
	cur, ok := byID[id]
	if !ok {
		return nil, fmt.Errorf("scenario %s not in project tree", id)
	}
	for {
		if _, loop := seen[cur.ID]; loop {
			return nil, fmt.Errorf("scenario tree has a cycle at %s", cur.ID)
		}
		seen[cur.ID] = struct{}{}
		reversed = append(reversed, cur)
		if cur.ParentNodeID == nil {
			break
		}
		parent, ok := byID[*cur.ParentNodeID]
		if !ok {
			break
		}
		cur = parent
	}

	path := make([]ScenarioNode, len(reversed))
	for i, n := range reversed {
		path[len(reversed)-1-i] = n
	}
	return path, nil
}

// Descendants returns id and every node below it.
func Descendants(nodes []ScenarioNode, id string) []string {
	children := make(map[string][]string)
	for _, n := range nodes {
		if n.ParentNodeID != nil {
			children[*n.ParentNodeID] = append(children[*n.ParentNodeID], n.ID)
		}
	}
	out := []string{id}
	seen := map[string]struct{}{id: {}}
	for i := 0; i < len(out); i++ {
		for _, child := range children[out[i]] {
			if _, ok := seen[child]; ok {
				continue
			}
			seen[child] = struct{}{}
			out = append(out, child)
		}
	}
	return out
}
