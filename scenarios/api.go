package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/get2b/get2b-go/internal/domain"
	"github.com/get2b/get2b-go/internal/platform/auth"
	"github.com/get2b/get2b-go/internal/platform/httpserver"
	"github.com/get2b/get2b-go/internal/repo"
	"github.com/get2b/get2b-go/internal/service/scenarios"
)

type scenariosAPI struct {
	logger *slog.Logger
	svc    *scenarios.Service
}

func newScenariosAPI(logger *slog.Logger, svc *scenarios.Service) *scenariosAPI {
	return &scenariosAPI{logger: logger, svc: svc}
}

func (api *scenariosAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/scenarios/create", api.handleCreate)
	mux.HandleFunc("POST /api/scenarios/select", api.handleSelect)
	mux.HandleFunc("POST /api/scenarios/update-step", api.handleUpdateStep)
	mux.HandleFunc("GET /api/scenarios/tree", api.handleTree)
	mux.HandleFunc("GET /api/scenarios/resolve", api.handleResolve)
	mux.HandleFunc("POST /api/scenarios/reconcile", api.handleReconcile)
	mux.HandleFunc("DELETE /api/scenarios/nodes/{scenario_id}", api.handleDelete)
	mux.HandleFunc("POST /api/scenarios/nodes/{scenario_id}/steps/{step_number}/uploads", api.handlePresign)
	mux.HandleFunc("GET /api/workflow/gating", api.handleGating)
}

type createRequest struct {
	ProjectID      string  `json:"project_id"`
	ParentNodeID   *string `json:"parent_node_id"`
	Name           string  `json:"name"`
	Description    *string `json:"description"`
	CreatedBy      *string `json:"created_by"`
	CreatorRole    *string `json:"creator_role"`
	BranchedAtStep *int    `json:"branched_at_step"`
}

func (api *scenariosAPI) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeFailure(w, http.StatusBadRequest, "invalid json")
		return
	}
	role := ""
	if req.CreatorRole != nil {
		role = *req.CreatorRole
	}

	id, err := api.svc.CreateBranch(r.Context(), auditInfo(r), domain.CreateBranchInput{
		ProjectID:      req.ProjectID,
		ParentNodeID:   req.ParentNodeID,
		Name:           req.Name,
		Description:    req.Description,
		CreatedBy:      req.CreatedBy,
		CreatorRole:    role,
		BranchedAtStep: req.BranchedAtStep,
	})
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"scenario_id": id,
	})
}

type selectRequest struct {
	ProjectID  string `json:"project_id"`
	ScenarioID string `json:"scenario_id"`
}

func (api *scenariosAPI) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeFailure(w, http.StatusBadRequest, "invalid json")
		return
	}
	err := api.svc.SelectBranch(r.Context(), auditInfo(r), domain.SelectBranchInput{
		ProjectID:  req.ProjectID,
		ScenarioID: req.ScenarioID,
	})
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

type uploadedFileJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

type updateStepRequest struct {
	ScenarioNodeID string             `json:"scenario_node_id"`
	StepNumber     *int               `json:"step_number"`
	StepConfig     json.RawMessage    `json:"step_config"`
	ManualData     map[string]any     `json:"manual_data"`
	UploadedFiles  []uploadedFileJSON `json:"uploaded_files"`
	ChangedBy      *string            `json:"changed_by"`
	ChangeReason   *string            `json:"change_reason"`
}

func (api *scenariosAPI) handleUpdateStep(w http.ResponseWriter, r *http.Request) {
	var req updateStepRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeFailure(w, http.StatusBadRequest, "invalid json")
		return
	}

	var files []domain.UploadedFile
	if req.UploadedFiles != nil {
		files = make([]domain.UploadedFile, 0, len(req.UploadedFiles))
		for _, f := range req.UploadedFiles {
			files = append(files, domain.UploadedFile(f))
		}
	}

	id, err := api.svc.RecordStepDelta(r.Context(), auditInfo(r), domain.RecordDeltaInput{
		ScenarioNodeID: req.ScenarioNodeID,
		StepNumber:     req.StepNumber,
		StepConfig:     req.StepConfig,
		ManualData:     req.ManualData,
		UploadedFiles:  files,
		ChangedBy:      req.ChangedBy,
		ChangeReason:   req.ChangeReason,
	})
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"delta_id": id,
	})
}

type nodeJSON struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"project_id"`
	ParentNodeID   *string    `json:"parent_node_id"`
	Name           string     `json:"name"`
	Description    *string    `json:"description"`
	CreatedBy      *string    `json:"created_by"`
	CreatorRole    string     `json:"creator_role"`
	BranchedAtStep *int       `json:"branched_at_step"`
	TreeDepth      int        `json:"tree_depth"`
	TreePath       []string   `json:"tree_path"`
	Status         string     `json:"status"`
	FrozenAt       *time.Time `json:"frozen_at"`
	SelectedAt     *time.Time `json:"selected_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type treeNodeJSON struct {
	nodeJSON
	Children     []treeNodeJSON `json:"children"`
	ChangedSteps []int          `json:"changedSteps"`
	IsActive     bool           `json:"isActive"`
	IsFrozen     bool           `json:"isFrozen"`
	IsSelected   bool           `json:"isSelected"`
}

func toNodeJSON(n domain.ScenarioNode) nodeJSON {
	path := n.TreePath
	if path == nil {
		path = []string{}
	}
	return nodeJSON{
		ID:             n.ID,
		ProjectID:      n.ProjectID,
		ParentNodeID:   n.ParentNodeID,
		Name:           n.Name,
		Description:    n.Description,
		CreatedBy:      n.CreatedBy,
		CreatorRole:    string(n.CreatorRole),
		BranchedAtStep: n.BranchedAtStep,
		TreeDepth:      n.TreeDepth,
		TreePath:       path,
		Status:         string(n.Status),
		FrozenAt:       n.FrozenAt,
		SelectedAt:     n.SelectedAt,
		CreatedAt:      n.CreatedAt,
		UpdatedAt:      n.UpdatedAt,
	}
}

func toTreeJSON(nodes []domain.TreeNode) []treeNodeJSON {
	out := make([]treeNodeJSON, 0, len(nodes))
	for _, n := range nodes {
		changed := n.ChangedSteps
		if changed == nil {
			changed = []int{}
		}
		out = append(out, treeNodeJSON{
			nodeJSON:     toNodeJSON(n.Node),
			Children:     toTreeJSON(n.Children),
			ChangedSteps: changed,
			IsActive:     n.IsActive,
			IsFrozen:     n.IsFrozen,
			IsSelected:   n.IsSelected,
		})
	}
	return out
}

func (api *scenariosAPI) handleTree(w http.ResponseWriter, r *http.Request) {
	out, err := api.svc.Tree(r.Context(), auditInfo(r), r.URL.Query().Get("project_id"))
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	nodes := make([]nodeJSON, 0, len(out.Nodes))
	for _, n := range out.Nodes {
		nodes = append(nodes, toNodeJSON(n))
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"project_id":         out.Project.ID,
		"active_scenario_id": out.Project.ActiveScenarioID,
		"tree":               toTreeJSON(out.Tree),
		"nodes":              nodes,
	})
}

type resolvedStepJSON struct {
	StepNumber    int                `json:"step_number"`
	StepConfig    json.RawMessage    `json:"step_config"`
	ManualData    map[string]any     `json:"manual_data"`
	UploadedFiles []uploadedFileJSON `json:"uploaded_files"`
	SourceNodeID  string             `json:"source_node_id"`
	SourceDepth   int                `json:"source_depth"`
}

func (api *scenariosAPI) handleResolve(w http.ResponseWriter, r *http.Request) {
	out, err := api.svc.Resolve(r.Context(), r.URL.Query().Get("scenario_id"))
	if err != nil {
		api.writeError(w, r, err)
		return
	}

	steps := make([]resolvedStepJSON, 0, len(out.Steps))
	for _, s := range out.Steps {
		files := make([]uploadedFileJSON, 0, len(s.UploadedFiles))
		for _, f := range s.UploadedFiles {
			files = append(files, uploadedFileJSON(f))
		}
		config := s.StepConfig
		if config == nil {
			config = json.RawMessage("null")
		}
		steps = append(steps, resolvedStepJSON{
			StepNumber:    s.StepNumber,
			StepConfig:    config,
			ManualData:    s.ManualData,
			UploadedFiles: files,
			SourceNodeID:  s.SourceNodeID,
			SourceDepth:   s.SourceDepth,
		})
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"resolved": map[string]any{
			"scenario_id": out.ScenarioID,
			"steps":       steps,
			"stepConfigs": out.StepConfigs,
			"manualData":  out.ManualData,
		},
	})
}

type reconcileRequest struct {
	ProjectID string `json:"project_id"`
}

func (api *scenariosAPI) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeFailure(w, http.StatusBadRequest, "invalid json")
		return
	}
	active, err := api.svc.Reconcile(r.Context(), auditInfo(r), req.ProjectID)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"active_scenario_id": active,
	})
}

func (api *scenariosAPI) handleDelete(w http.ResponseWriter, r *http.Request) {
	removed, err := api.svc.Delete(r.Context(), auditInfo(r), r.PathValue("scenario_id"))
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"removed": removed,
	})
}

type presignRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (api *scenariosAPI) handlePresign(w http.ResponseWriter, r *http.Request) {
	step, err := strconv.Atoi(r.PathValue("step_number"))
	if err != nil {
		api.writeFailure(w, http.StatusBadRequest, "step number out of range")
		return
	}
	var req presignRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeFailure(w, http.StatusBadRequest, "invalid json")
		return
	}

	out, err := api.svc.PresignUpload(r.Context(), r.PathValue("scenario_id"), step, req.Name, req.Type)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"upload_url": out.UploadURL,
		"expires_at": out.ExpiresAt.UTC(),
		"file":       uploadedFileJSON(out.File),
	})
}

type stepGateJSON struct {
	StepID  int    `json:"step_id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

type gatingJSON struct {
	Stage     int            `json:"stage"`
	StageName string         `json:"stage_name"`
	Steps     []stepGateJSON `json:"steps"`
}

func gatingResponse(g domain.StageGating) gatingJSON {
	out := gatingJSON{
		Stage:     g.Stage,
		StageName: g.StageName,
		Steps:     make([]stepGateJSON, 0, len(g.Steps)),
	}
	for _, s := range g.Steps {
		out.Steps = append(out.Steps, stepGateJSON(s))
	}
	return out
}

func (api *scenariosAPI) handleGating(w http.ResponseWriter, r *http.Request) {
	stage, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("stage")))
	if err != nil {
		api.writeFailure(w, http.StatusBadRequest, "stage must be an integer")
		return
	}
	g := gatingResponse(api.svc.Gating(stage))
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"stage":      g.Stage,
		"stage_name": g.StageName,
		"steps":      g.Steps,
	})
}

func (api *scenariosAPI) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *domain.ValidationError
		storeErr      *domain.StoreError
	)
	switch {
	case errors.As(err, &validationErr):
		api.writeFailure(w, http.StatusBadRequest, validationErr.Message)
	case errors.As(err, &storeErr):
		api.writeFailure(w, http.StatusBadRequest, storeErr.Message)
	case errors.Is(err, repo.ErrNotFound):
		api.writeFailure(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scenarios.ErrUploadsDisabled):
		api.writeFailure(w, http.StatusServiceUnavailable, err.Error())
	default:
		requestID, _ := httpserver.RequestIDFromContext(r.Context())
		api.logger.Error("scenario request failed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		api.writeFailure(w, http.StatusInternalServerError, "internal error")
	}
}

func (api *scenariosAPI) writeFailure(w http.ResponseWriter, status int, message string) {
	httpserver.WriteJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func auditInfo(r *http.Request) scenarios.AuditInfo {
	requestID, _ := httpserver.RequestIDFromContext(r.Context())
	if requestID == "" {
		requestID = r.Header.Get("X-Request-Id")
	}
	return scenarios.AuditInfo{
		Actor:     auth.ActorFromContext(r.Context()),
		RequestID: requestID,
		UserAgent: r.UserAgent(),
		IP:        requestIP(r.RemoteAddr),
		Service:   serviceName,
	}
}

func requestIP(remoteAddr string) net.IP {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}
