package domain

import (
	"fmt"
	"strings"
	"time"
)

type CreatorRole string

const (
	CreatorClient   CreatorRole = "client"
	CreatorManager  CreatorRole = "manager"
	CreatorSupplier CreatorRole = "supplier"
)

// ParseCreatorRole maps an empty role to client.
func ParseCreatorRole(raw string) (CreatorRole, error) {
	switch role := CreatorRole(strings.ToLower(strings.TrimSpace(raw))); role {
	case "":
		return CreatorClient, nil
	case CreatorClient, CreatorManager, CreatorSupplier:
		return role, nil
	default:
		return "", NewValidationError(fmt.Sprintf("invalid creator_role %q", raw))
	}
}

type NodeStatus string

const (
	NodeActive   NodeStatus = "active"
	NodeFrozen   NodeStatus = "frozen"
	NodeSelected NodeStatus = "selected"
	NodeArchived NodeStatus = "archived"
)

// ScenarioNode is one branch of a project's workflow. Nodes form a tree
// per project; TreePath holds ancestor ids followed by the node's own id.
type ScenarioNode struct {
	ID             string
	ProjectID      string
	ParentNodeID   *string
	Name           string
	Description    *string
	CreatedBy      *string
	CreatorRole    CreatorRole
	BranchedAtStep *int
	TreeDepth      int
	TreePath       []string
	Status         NodeStatus
	FrozenAt       *time.Time
	SelectedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type CreateBranchInput struct {
	ProjectID      string
	ParentNodeID   *string
	Name           string
	Description    *string
	CreatedBy      *string
	CreatorRole    string
	BranchedAtStep *int
}

// BranchSpec is a validated CreateBranchInput. Optional fields stay nil
// and reach the store as explicit NULL.
type BranchSpec struct {
	ProjectID      string
	ParentNodeID   *string
	Name           string
	Description    *string
	CreatedBy      *string
	CreatorRole    CreatorRole
	BranchedAtStep *int
}

func (in CreateBranchInput) Validate() (BranchSpec, error) {
	projectID := strings.TrimSpace(in.ProjectID)
	name := strings.TrimSpace(in.Name)
	if projectID == "" || name == "" {
		return BranchSpec{}, NewValidationError("project_id and name are required")
	}
	role, err := ParseCreatorRole(in.CreatorRole)
	if err != nil {
		return BranchSpec{}, err
	}
	if in.BranchedAtStep != nil && !ValidStep(*in.BranchedAtStep) {
		return BranchSpec{}, NewValidationError("branched_at_step out of range")
	}
	return BranchSpec{
		ProjectID:      projectID,
		ParentNodeID:   trimmedOrNil(in.ParentNodeID),
		Name:           name,
		Description:    in.Description,
		CreatedBy:      trimmedOrNil(in.CreatedBy),
		CreatorRole:    role,
		BranchedAtStep: in.BranchedAtStep,
	}, nil
}

type SelectBranchInput struct {
	ProjectID  string
	ScenarioID string
}

func (in SelectBranchInput) Validate() (SelectBranchInput, error) {
	out := SelectBranchInput{
		ProjectID:  strings.TrimSpace(in.ProjectID),
		ScenarioID: strings.TrimSpace(in.ScenarioID),
	}
	if out.ProjectID == "" || out.ScenarioID == "" {
		return SelectBranchInput{}, NewValidationError("project_id and scenario_id are required")
	}
	return out, nil
}

// PointerTarget picks the node the project pointer should name: current
// while it is still a live node of the project, else the selected node if
// any, else nil.
func PointerTarget(nodes []ScenarioNode, current *string) *string {
	if current != nil {
		for _, n := range nodes {
			if n.ID == *current && n.Status != NodeArchived {
				id := n.ID
				return &id
			}
		}
	}
	for _, n := range nodes {
		if n.Status == NodeSelected {
			id := n.ID
			return &id
		}
	}
	return nil
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}
