package scenarios

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/get2b/get2b-go/internal/domain"
	"github.com/get2b/get2b-go/internal/platform/auditlog"
	"github.com/get2b/get2b-go/internal/platform/objectstore"
	"github.com/get2b/get2b-go/internal/repo"
)

// ErrUploadsDisabled is returned by PresignUpload when no object store is
// configured.
var ErrUploadsDisabled = errors.New("file uploads are not configured")

// Notifier receives scenario events after they commit.
type Notifier interface {
	NotifyScenario(ctx context.Context, event domain.ScenarioEvent) error
}

type AuditInfo struct {
	Actor     string
	RequestID string
	UserAgent string
	IP        net.IP
	Service   string
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithUploads(p objectstore.Presigner) Option {
	return func(s *Service) { s.uploads = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithCatalog(c domain.Catalog) Option {
	return func(s *Service) { s.catalog = c }
}

type Service struct {
	store    repo.Store
	policy   domain.DeltaPolicy
	notifier Notifier
	uploads  objectstore.Presigner
	catalog  domain.Catalog
	logger   *slog.Logger
	now      func() time.Time
}

func New(store repo.Store, cfg Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	policy := cfg.DeltaPolicy
	if policy == "" {
		policy = domain.DeltaReplace
	}
	if _, err := domain.ParseDeltaPolicy(string(policy)); err != nil {
		return nil, err
	}
	s := &Service{
		store:   store,
		policy:  policy,
		catalog: domain.DefaultCatalog(),
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateBranch adds a scenario node and points the project at it.
func (s *Service) CreateBranch(ctx context.Context, info AuditInfo, in domain.CreateBranchInput) (string, error) {
	spec, err := in.Validate()
	if err != nil {
		return "", err
	}

	var id string
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repo.Repositories) error {
		created, err := tx.Scenarios().CreateBranch(ctx, spec)
		if err != nil {
			return storeFailure(err)
		}
		if err := tx.Projects().ActivateScenario(ctx, spec.ProjectID, created); err != nil {
			return fmt.Errorf("update project pointer: %w", storeFailure(err))
		}
		payload := map[string]any{
			"project_id":   spec.ProjectID,
			"name":         spec.Name,
			"creator_role": string(spec.CreatorRole),
		}
		if spec.ParentNodeID != nil {
			payload["parent_node_id"] = *spec.ParentNodeID
		}
		if spec.BranchedAtStep != nil {
			payload["branched_at_step"] = *spec.BranchedAtStep
		}
		if err := tx.Audit().Append(ctx, s.auditEvent(info, "scenario.create", created, payload)); err != nil {
			return err
		}
		id = created
		return nil
	})
	if err != nil {
		return "", err
	}

	s.notify(ctx, domain.ScenarioEvent{
		Kind:        domain.EventScenarioCreated,
		ProjectID:   spec.ProjectID,
		ScenarioID:  id,
		Name:        spec.Name,
		CreatorRole: spec.CreatorRole,
		Actor:       actorOf(info),
	})
	return id, nil
}

// SelectBranch marks the scenario selected, freezes every other node of
// the project and points the project at it.
func (s *Service) SelectBranch(ctx context.Context, info AuditInfo, in domain.SelectBranchInput) error {
	in, err := in.Validate()
	if err != nil {
		return err
	}

	var name string
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repo.Repositories) error {
		if err := tx.Scenarios().FreezeOthers(ctx, in.ProjectID, in.ScenarioID); err != nil {
			return storeFailure(err)
		}
		scenarioID := in.ScenarioID
		if err := tx.Projects().SetActiveScenario(ctx, in.ProjectID, &scenarioID); err != nil {
			return fmt.Errorf("update project pointer: %w", storeFailure(err))
		}
		if node, err := tx.Scenarios().Get(ctx, in.ScenarioID); err == nil {
			name = node.Name
		}
		return tx.Audit().Append(ctx, s.auditEvent(info, "scenario.select", in.ScenarioID, map[string]any{
			"project_id": in.ProjectID,
		}))
	})
	if err != nil {
		return err
	}

	s.notify(ctx, domain.ScenarioEvent{
		Kind:       domain.EventScenarioSelected,
		ProjectID:  in.ProjectID,
		ScenarioID: in.ScenarioID,
		Name:       name,
		Actor:      actorOf(info),
	})
	return nil
}

// RecordStepDelta upserts the delta for (scenario node, step) under the
// configured policy and returns its id.
func (s *Service) RecordStepDelta(ctx context.Context, info AuditInfo, in domain.RecordDeltaInput) (string, error) {
	spec, err := in.Validate()
	if err != nil {
		return "", err
	}

	var id string
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repo.Repositories) error {
		var existing *domain.StepDelta
		if s.policy == domain.DeltaMerge {
			current, err := tx.Deltas().Get(ctx, spec.ScenarioNodeID, spec.StepNumber)
			switch {
			case err == nil:
				existing = &current
			case errors.Is(err, repo.ErrNotFound):
			default:
				return err
			}
		}

		delta := spec.Apply(s.policy, existing)
		upserted, err := tx.Deltas().Upsert(ctx, delta)
		if err != nil {
			return storeFailure(err)
		}
		if err := tx.Audit().Append(ctx, s.auditEvent(info, "scenario.step_delta", upserted, map[string]any{
			"scenario_node_id": spec.ScenarioNodeID,
			"step_number":      spec.StepNumber,
			"policy":           string(s.policy),
			"files":            len(delta.UploadedFiles),
		})); err != nil {
			return err
		}
		id = upserted
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

type TreeResult struct {
	Project domain.Project
	Nodes   []domain.ScenarioNode
	Deltas  []domain.StepDelta
	Tree    []domain.TreeNode
}

// Tree loads the project's scenario tree. A project pointer that is unset
// or names a missing node is repaired, on behalf of info, before the tree
// is built.
func (s *Service) Tree(ctx context.Context, info AuditInfo, projectID string) (TreeResult, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return TreeResult{}, domain.NewValidationError("project_id is required")
	}

	var out TreeResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.store.Projects().Get(gctx, projectID)
		out.Project = p
		return err
	})
	g.Go(func() error {
		nodes, err := s.store.Scenarios().ListByProject(gctx, projectID)
		out.Nodes = nodes
		return err
	})
	g.Go(func() error {
		deltas, err := s.store.Deltas().ListByProject(gctx, projectID)
		out.Deltas = deltas
		return err
	})
	if err := g.Wait(); err != nil {
		return TreeResult{}, err
	}

	active := out.Project.ActiveScenarioID
	if target := domain.PointerTarget(out.Nodes, active); !sameID(target, active) {
		repaired, err := s.Reconcile(ctx, info, projectID)
		if err != nil {
			s.logger.Warn("scenario pointer repair failed", "project_id", projectID, "error", err)
			repaired = target
		}
		out.Project.ActiveScenarioID = repaired
	}

	out.Tree = domain.BuildTree(out.Nodes, out.Deltas, out.Project.ActiveScenarioID)
	return out, nil
}

// Resolve computes the effective step state of a scenario from its own
// deltas and those of its ancestors.
func (s *Service) Resolve(ctx context.Context, scenarioID string) (domain.ResolvedScenario, error) {
	scenarioID = strings.TrimSpace(scenarioID)
	if scenarioID == "" {
		return domain.ResolvedScenario{}, domain.NewValidationError("scenario_id is required")
	}

	node, err := s.store.Scenarios().Get(ctx, scenarioID)
	if err != nil {
		return domain.ResolvedScenario{}, err
	}

	var (
		nodes  []domain.ScenarioNode
		deltas []domain.StepDelta
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		nodes, err = s.store.Scenarios().ListByProject(gctx, node.ProjectID)
		return err
	})
	g.Go(func() error {
		var err error
		deltas, err = s.store.Deltas().ListByProject(gctx, node.ProjectID)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.ResolvedScenario{}, err
	}

	path, err := domain.PathTo(nodes, scenarioID)
	if err != nil {
		return domain.ResolvedScenario{}, err
	}
	return domain.Resolve(scenarioID, path, deltas), nil
}

// Delete removes a scenario node with its descendants and their deltas.
// The selected scenario cannot be deleted.
func (s *Service) Delete(ctx context.Context, info AuditInfo, scenarioID string) (int64, error) {
	scenarioID = strings.TrimSpace(scenarioID)
	if scenarioID == "" {
		return 0, domain.NewValidationError("scenario_id is required")
	}

	var (
		removed int64
		node    domain.ScenarioNode
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repo.Repositories) error {
		var err error
		node, err = tx.Scenarios().Get(ctx, scenarioID)
		if err != nil {
			return err
		}
		nodes, err := tx.Scenarios().ListByProject(ctx, node.ProjectID)
		if err != nil {
			return err
		}

		ids := domain.Descendants(nodes, scenarioID)
		doomed := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			doomed[id] = struct{}{}
		}
		for _, n := range nodes {
			if _, ok := doomed[n.ID]; ok && n.Status == domain.NodeSelected {
				return domain.NewValidationError("cannot delete the selected scenario")
			}
		}

		// Children may go by cascade before their own row is matched, so
		// the affected-row count undercounts.
		if _, err := tx.Scenarios().DeleteNodes(ctx, node.ProjectID, ids); err != nil {
			return storeFailure(err)
		}
		removed = int64(len(ids))

		project, err := tx.Projects().Get(ctx, node.ProjectID)
		if err != nil {
			return err
		}
		if project.ActiveScenarioID != nil {
			if _, ok := doomed[*project.ActiveScenarioID]; ok {
				if err := tx.Projects().SetActiveScenario(ctx, node.ProjectID, nil); err != nil {
					return fmt.Errorf("update project pointer: %w", storeFailure(err))
				}
			}
		}

		return tx.Audit().Append(ctx, s.auditEvent(info, "scenario.delete", scenarioID, map[string]any{
			"project_id": node.ProjectID,
			"removed":    ids,
		}))
	})
	if err != nil {
		return 0, err
	}

	s.notify(ctx, domain.ScenarioEvent{
		Kind:        domain.EventScenarioDeleted,
		ProjectID:   node.ProjectID,
		ScenarioID:  scenarioID,
		Name:        node.Name,
		CreatorRole: node.CreatorRole,
		Actor:       actorOf(info),
		Removed:     int(removed),
	})
	return removed, nil
}

// Reconcile re-derives the project's active_scenario_id from its nodes
// and stores it when it differs. It returns the resulting pointer.
func (s *Service) Reconcile(ctx context.Context, info AuditInfo, projectID string) (*string, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, domain.NewValidationError("project_id is required")
	}

	var target *string
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repo.Repositories) error {
		project, err := tx.Projects().Get(ctx, projectID)
		if err != nil {
			return err
		}
		nodes, err := tx.Scenarios().ListByProject(ctx, projectID)
		if err != nil {
			return err
		}

		target = domain.PointerTarget(nodes, project.ActiveScenarioID)
		if sameID(target, project.ActiveScenarioID) {
			return nil
		}
		if err := tx.Projects().SetActiveScenario(ctx, projectID, target); err != nil {
			return fmt.Errorf("update project pointer: %w", storeFailure(err))
		}
		s.logger.Info("scenario pointer repaired",
			"project_id", projectID,
			"from", derefOr(project.ActiveScenarioID, ""),
			"to", derefOr(target, ""),
		)
		event := s.auditEvent(info, "scenario.reconcile", projectID, map[string]any{
			"from": project.ActiveScenarioID,
			"to":   target,
		})
		event.ResourceType = "project"
		return tx.Audit().Append(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	return target, nil
}

type PresignedFile struct {
	UploadURL string
	ExpiresAt time.Time
	File      domain.UploadedFile
}

// PresignUpload issues an upload URL for a file attached to a step of a
// scenario. File is the reference to send back with the step delta.
func (s *Service) PresignUpload(ctx context.Context, scenarioID string, step int, name, contentType string) (PresignedFile, error) {
	scenarioID = strings.TrimSpace(scenarioID)
	name = strings.TrimSpace(name)
	if scenarioID == "" || name == "" {
		return PresignedFile{}, domain.NewValidationError("scenario_id and name are required")
	}
	if !domain.ValidStep(step) {
		return PresignedFile{}, domain.NewValidationError("step number out of range")
	}
	if s.uploads == nil {
		return PresignedFile{}, ErrUploadsDisabled
	}
	if _, err := s.store.Scenarios().Get(ctx, scenarioID); err != nil {
		return PresignedFile{}, err
	}

	up, err := s.uploads.PresignUpload(ctx, objectstore.UploadRequest{
		ScenarioNodeID: scenarioID,
		StepNumber:     step,
		Name:           name,
		ContentType:    contentType,
	})
	if err != nil {
		return PresignedFile{}, err
	}
	return PresignedFile{
		UploadURL: up.UploadURL,
		ExpiresAt: up.ExpiresAt,
		File: domain.UploadedFile{
			ID:   up.FileID,
			Name: name,
			URL:  up.GetURL,
			Type: contentType,
		},
	}, nil
}

func (s *Service) Gating(stage int) domain.StageGating {
	return s.catalog.Gating(stage)
}

func (s *Service) notify(ctx context.Context, event domain.ScenarioEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyScenario(ctx, event); err != nil {
		s.logger.Warn("scenario notification failed",
			"kind", string(event.Kind),
			"project_id", event.ProjectID,
			"scenario_id", event.ScenarioID,
			"error", err,
		)
	}
}

func (s *Service) auditEvent(info AuditInfo, action, resourceID string, payload map[string]any) auditlog.Event {
	if info.Service != "" {
		payload["service"] = info.Service
	}
	return auditlog.Event{
		OccurredAt:   s.now().UTC(),
		Actor:        actorOf(info),
		Action:       action,
		ResourceType: "scenario",
		ResourceID:   resourceID,
		RequestID:    info.RequestID,
		IP:           info.IP,
		UserAgent:    info.UserAgent,
		Payload:      payload,
	}
}

// storeFailure reports an unexpected failure of a write as a StoreError so
// its message reaches the caller. Validation and not-found errors keep
// their own meaning.
func storeFailure(err error) error {
	switch {
	case err == nil,
		domain.IsValidation(err),
		domain.IsStore(err),
		errors.Is(err, repo.ErrNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return domain.NewStoreError(err.Error(), err)
	}
}

func actorOf(info AuditInfo) string {
	if a := strings.TrimSpace(info.Actor); a != "" {
		return a
	}
	return "system"
}

func sameID(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func derefOr(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}
