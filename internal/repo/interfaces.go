package repo

import (
	"context"
	"errors"

	"github.com/get2b/get2b-go/internal/domain"
	"github.com/get2b/get2b-go/internal/platform/auditlog"
)

var ErrNotFound = errors.New("not found")

// ProjectRepository owns the scenario pointer columns of projects.
type ProjectRepository interface {
	Create(ctx context.Context, project domain.Project) error
	Get(ctx context.Context, id string) (domain.Project, error)
	// ActivateScenario turns scenario mode on and points the project at
	// scenarioID.
	ActivateScenario(ctx context.Context, projectID, scenarioID string) error
	SetActiveScenario(ctx context.Context, projectID string, scenarioID *string) error
}

// ScenarioRepository manages the scenario tree of a project.
type ScenarioRepository interface {
	CreateBranch(ctx context.Context, spec domain.BranchSpec) (string, error)
	// FreezeOthers marks nodeID selected and every other live node of the
	// project frozen.
	FreezeOthers(ctx context.Context, projectID, nodeID string) error
	Get(ctx context.Context, id string) (domain.ScenarioNode, error)
	ListByProject(ctx context.Context, projectID string) ([]domain.ScenarioNode, error)
	DeleteNodes(ctx context.Context, projectID string, ids []string) (int64, error)
}

// DeltaRepository stores one delta per (scenario node, step).
type DeltaRepository interface {
	Get(ctx context.Context, scenarioNodeID string, stepNumber int) (domain.StepDelta, error)
	// Upsert inserts or overwrites the delta for its (node, step) pair and
	// returns the pair's stable id.
	Upsert(ctx context.Context, delta domain.StepDelta) (string, error)
	ListByProject(ctx context.Context, projectID string) ([]domain.StepDelta, error)
}

type AuditRepository interface {
	Append(ctx context.Context, event auditlog.Event) error
}

// Repositories groups the repositories bound to one connection or
// transaction.
type Repositories interface {
	Projects() ProjectRepository
	Scenarios() ScenarioRepository
	Deltas() DeltaRepository
	Audit() AuditRepository
}

// Store is a storage backend. Writes that must commit together go
// through WithinTx.
type Store interface {
	Repositories
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error
	Ping(ctx context.Context) error
	Close() error
}
