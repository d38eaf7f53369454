package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/get2b/get2b-go/internal/domain"
	"github.com/get2b/get2b-go/internal/platform/apispec"
	"github.com/get2b/get2b-go/internal/platform/auditlog"
	"github.com/get2b/get2b-go/internal/platform/auth"
	"github.com/get2b/get2b-go/internal/platform/httpserver"
	"github.com/get2b/get2b-go/internal/repo"
	"github.com/get2b/get2b-go/internal/repo/sqlite"
	"github.com/get2b/get2b-go/internal/service/scenarios"
)

type auditCapture struct {
	repo.Store
	mu     sync.Mutex
	events []auditlog.Event
}

func (c *auditCapture) Audit() repo.AuditRepository { return c }

func (c *auditCapture) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repo.Repositories) error) error {
	return c.Store.WithinTx(ctx, func(ctx context.Context, tx repo.Repositories) error {
		return fn(ctx, captureTx{Repositories: tx, capture: c})
	})
}

type captureTx struct {
	repo.Repositories
	capture *auditCapture
}

func (t captureTx) Audit() repo.AuditRepository { return t.capture }

func (c *auditCapture) Append(ctx context.Context, event auditlog.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

type denyAll struct{}

func (denyAll) Authenticate(ctx context.Context, r *http.Request) (auth.Identity, error) {
	return auth.Identity{}, auth.ErrUnauthenticated
}

type testServer struct {
	handler http.Handler
	store   *auditCapture
}

func newTestServer(t *testing.T, authn auth.Authenticator) testServer {
	t.Helper()
	ctx := context.Background()
	inner, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = inner.Close() })
	require.NoError(t, inner.Projects().Create(ctx, domain.Project{ID: "P1", Name: "Deal"}))

	store := &auditCapture{Store: inner}
	svc, err := scenarios.New(store, scenarios.Config{})
	require.NoError(t, err)

	doc, err := apispec.Load(ctx)
	require.NoError(t, err)
	validator, err := apispec.NewValidator(doc)
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	h := newHandler(logger, handlerConfig{
		Service:       svc,
		Store:         store,
		Authenticator: authn,
		Validator:     validator,
		Readiness: []httpserver.ReadinessCheck{{
			Name:  "sqlite",
			Check: store.Ping,
		}},
	})
	return testServer{handler: h, store: store}
}

func (s testServer) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func (s testServer) create(t *testing.T, body string) string {
	t.Helper()
	status, out := s.do(t, http.MethodPost, "/api/scenarios/create", body)
	require.Equal(t, http.StatusOK, status, out)
	id, _ := out["scenario_id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestScenarioFlow(t *testing.T) {
	s := newTestServer(t, nil)

	s1 := s.create(t, `{"project_id":"P1","name":"Alt supplier","creator_role":"supplier"}`)
	s2 := s.create(t, `{"project_id":"P1","name":"Cheaper","parent_node_id":"`+s1+`","branched_at_step":3}`)

	status, out := s.do(t, http.MethodPost, "/api/scenarios/update-step",
		`{"scenario_node_id":"`+s1+`","step_number":3,"step_config":{"method":"bank"}}`)
	require.Equal(t, http.StatusOK, status, out)
	first := out["delta_id"]

	status, out = s.do(t, http.MethodPost, "/api/scenarios/update-step",
		`{"scenario_node_id":"`+s1+`","step_number":3,"step_config":{"method":"crypto"},"manual_data":{"note":"x"}}`)
	require.Equal(t, http.StatusOK, status, out)
	assert.Equal(t, first, out["delta_id"])

	status, out = s.do(t, http.MethodPost, "/api/scenarios/select", `{"project_id":"P1","scenario_id":"`+s2+`"}`)
	require.Equal(t, http.StatusOK, status, out)
	assert.Equal(t, map[string]any{"success": true}, out)

	status, out = s.do(t, http.MethodGet, "/api/scenarios/tree?project_id=P1", "")
	require.Equal(t, http.StatusOK, status, out)
	assert.Equal(t, s2, out["active_scenario_id"])
	assert.Len(t, out["nodes"], 2)
	tree := out["tree"].([]any)
	require.Len(t, tree, 1)
	root := tree[0].(map[string]any)
	assert.Equal(t, s1, root["id"])
	assert.Equal(t, "supplier", root["creator_role"])
	assert.Equal(t, true, root["isFrozen"])
	assert.Equal(t, []any{float64(3)}, root["changedSteps"])
	child := root["children"].([]any)[0].(map[string]any)
	assert.Equal(t, true, child["isSelected"])
	assert.Equal(t, true, child["isActive"])
	assert.Equal(t, float64(1), child["tree_depth"])
	assert.Equal(t, []any{s1, s2}, child["tree_path"])

	status, out = s.do(t, http.MethodGet, "/api/scenarios/resolve?scenario_id="+s2, "")
	require.Equal(t, http.StatusOK, status, out)
	resolved := out["resolved"].(map[string]any)
	assert.Equal(t, s2, resolved["scenario_id"])
	steps := resolved["steps"].([]any)
	require.Len(t, steps, 1)
	step := steps[0].(map[string]any)
	assert.Equal(t, s1, step["source_node_id"])
	assert.Equal(t, float64(0), step["source_depth"])
	assert.Equal(t, map[string]any{"method": "crypto"}, resolved["stepConfigs"].(map[string]any)["3"])

	var actions []string
	for _, e := range s.store.events {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{
		"scenario.create", "scenario.create",
		"scenario.step_delta", "scenario.step_delta",
		"scenario.select",
	}, actions)
}

func TestCreate_IgnoresUnknownFields(t *testing.T) {
	s := newTestServer(t, nil)

	status, out := s.do(t, http.MethodPost, "/api/scenarios/create", `{"project_id":"P1","name":"x","colour":"red"}`)
	require.Equal(t, http.StatusOK, status, out)
	assert.Equal(t, true, out["success"])
}

func TestTree_AfterCreateKeepsNewBranchActive(t *testing.T) {
	s := newTestServer(t, nil)
	s1 := s.create(t, `{"project_id":"P1","name":"S1"}`)

	status, out := s.do(t, http.MethodPost, "/api/scenarios/select", `{"project_id":"P1","scenario_id":"`+s1+`"}`)
	require.Equal(t, http.StatusOK, status, out)
	s2 := s.create(t, `{"project_id":"P1","name":"S2","parent_node_id":"`+s1+`"}`)

	status, out = s.do(t, http.MethodGet, "/api/scenarios/tree?project_id=P1", "")
	require.Equal(t, http.StatusOK, status, out)
	assert.Equal(t, s2, out["active_scenario_id"])

	status, out = s.do(t, http.MethodGet, "/api/scenarios/tree?project_id=P1", "")
	require.Equal(t, http.StatusOK, status, out)
	assert.Equal(t, s2, out["active_scenario_id"])
	for _, e := range s.store.events {
		assert.NotEqual(t, "scenario.reconcile", e.Action)
	}
}

func TestCreate_Failures(t *testing.T) {
	s := newTestServer(t, nil)

	status, out := s.do(t, http.MethodPost, "/api/scenarios/create", `{"project_id":"P1","name":"  "}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, map[string]any{"success": false, "error": "project_id and name are required"}, out)

	status, out = s.do(t, http.MethodPost, "/api/scenarios/create", `{"project_id":"P1","name":"x"`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, false, out["success"])

	status, out = s.do(t, http.MethodPost, "/api/scenarios/create", `{"project_id":"P1","name":"x","branched_at_step":"three"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, false, out["success"])

	status, out = s.do(t, http.MethodPost, "/api/scenarios/create", `{"project_id":"P1","name":"x","parent_node_id":"ghost"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "parent scenario ghost not found", out["error"])
	assert.Empty(t, s.store.events)
}

func TestSelect_StoreMessagePassesThrough(t *testing.T) {
	s := newTestServer(t, nil)

	status, out := s.do(t, http.MethodPost, "/api/scenarios/select", `{"project_id":"P1"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "project_id and scenario_id are required", out["error"])

	status, out = s.do(t, http.MethodPost, "/api/scenarios/select", `{"project_id":"P1","scenario_id":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "scenario nope not found in project P1", out["error"])
}

func TestUpdateStep_Failures(t *testing.T) {
	s := newTestServer(t, nil)

	status, out := s.do(t, http.MethodPost, "/api/scenarios/update-step", `{"scenario_node_id":"S1"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "required fields missing", out["error"])

	status, out = s.do(t, http.MethodPost, "/api/scenarios/update-step", `{"scenario_node_id":"S1","step_number":8}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "step number out of range", out["error"])

	status, out = s.do(t, http.MethodPost, "/api/scenarios/update-step", `{"scenario_node_id":"ghost","step_number":2}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, false, out["success"])
}

func TestDeleteAndReconcile(t *testing.T) {
	s := newTestServer(t, nil)
	root := s.create(t, `{"project_id":"P1","name":"Root"}`)
	s.create(t, `{"project_id":"P1","name":"Child","parent_node_id":"`+root+`"}`)

	status, out := s.do(t, http.MethodDelete, "/api/scenarios/nodes/"+root, "")
	require.Equal(t, http.StatusOK, status, out)
	assert.Equal(t, float64(2), out["removed"])

	status, out = s.do(t, http.MethodDelete, "/api/scenarios/nodes/"+root, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, false, out["success"])

	status, out = s.do(t, http.MethodPost, "/api/scenarios/reconcile", `{"project_id":"P1"}`)
	require.Equal(t, http.StatusOK, status, out)
	assert.Nil(t, out["active_scenario_id"])

	status, _ = s.do(t, http.MethodPost, "/api/scenarios/reconcile", `{"project_id":"P404"}`)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPresign_Disabled(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.create(t, `{"project_id":"P1","name":"Root"}`)

	status, out := s.do(t, http.MethodPost, "/api/scenarios/nodes/"+id+"/steps/3/uploads", `{"name":"invoice.pdf","type":"application/pdf"}`)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "file uploads are not configured", out["error"])
}

func TestGating(t *testing.T) {
	s := newTestServer(t, nil)

	status, out := s.do(t, http.MethodGet, "/api/workflow/gating?stage=1", "")
	require.Equal(t, http.StatusOK, status, out)
	assert.Equal(t, "Data preparation", out["stage_name"])
	var enabled []float64
	for _, raw := range out["steps"].([]any) {
		step := raw.(map[string]any)
		if step["enabled"] == true {
			enabled = append(enabled, step["step_id"].(float64))
		}
	}
	assert.Equal(t, []float64{1, 2, 4, 5}, enabled)

	status, _ = s.do(t, http.MethodGet, "/api/workflow/gating", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAuthDenyIsAudited(t *testing.T) {
	s := newTestServer(t, denyAll{})

	status, out := s.do(t, http.MethodPost, "/api/scenarios/create", `{"project_id":"P1","name":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", out["error"])
	require.Len(t, s.store.events, 1)
	assert.Equal(t, "auth.unauthorized", s.store.events[0].Action)
	assert.Equal(t, "POST /api/scenarios/create", s.store.events[0].ResourceID)

	status, out = s.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, status, out)
	status, out = s.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, status, out)
	assert.Equal(t, "ready", out["status"])
	status, _ = s.do(t, http.MethodGet, "/openapi.yaml", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestGatingCommand(t *testing.T) {
	var buf bytes.Buffer
	cmd := newRootCmd(slog.New(slog.DiscardHandler))
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"gating", "--stage", "2"})
	require.NoError(t, cmd.Execute())

	var out gatingJSON
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, 2, out.Stage)
	require.Len(t, out.Steps, 7)
	for _, s := range out.Steps {
		assert.True(t, s.Enabled, "step %d", s.StepID)
	}
}
