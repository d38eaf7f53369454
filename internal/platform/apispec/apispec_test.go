package apispec

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newValidatedHandler(t *testing.T) (http.Handler, *bool, *string) {
	t.Helper()
	doc, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	v, err := NewValidator(doc)
	if err != nil {
		t.Fatalf("NewValidator() err=%v", err)
	}
	called := false
	var body string
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.WriteHeader(http.StatusOK)
	}))
	return h, &called, &body
}

func TestLoad(t *testing.T) {
	doc, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	for _, path := range []string{"/api/scenarios/create", "/api/scenarios/select", "/api/scenarios/update-step", "/api/workflow/gating"} {
		if doc.Paths.Find(path) == nil {
			t.Fatalf("path %s missing", path)
		}
	}
}

func TestValidator_PassesValidBodyThrough(t *testing.T) {
	h, called, body := newValidatedHandler(t)
	payload := `{"scenario_node_id":"S1","step_number":3,"manual_data":{"x":1},"step_config":"manual"}`
	req := httptest.NewRequest(http.MethodPost, "http://example.test/api/scenarios/update-step", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !*called {
		t.Fatalf("status=%d called=%v body=%s", rec.Code, *called, rec.Body.String())
	}
	if *body != payload {
		t.Fatalf("handler saw body %q, want %q", *body, payload)
	}
}

func TestValidator_RejectsWrongType(t *testing.T) {
	h, called, _ := newValidatedHandler(t)
	req := httptest.NewRequest(http.MethodPost, "http://example.test/api/scenarios/update-step",
		strings.NewReader(`{"scenario_node_id":"S1","step_number":"three"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest || *called {
		t.Fatalf("status=%d called=%v", rec.Code, *called)
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["success"] != false {
		t.Fatalf("body=%v", out)
	}
	if msg, _ := out["error"].(string); !strings.Contains(msg, "step_number") {
		t.Fatalf("error=%q, want mention of step_number", msg)
	}
}

func TestValidator_RejectsBadPathParam(t *testing.T) {
	h, called, _ := newValidatedHandler(t)
	req := httptest.NewRequest(http.MethodPost, "http://example.test/api/scenarios/nodes/S1/steps/two/uploads",
		strings.NewReader(`{"name":"a.pdf"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest || *called {
		t.Fatalf("status=%d called=%v", rec.Code, *called)
	}
}

func TestValidator_UnknownPathPassesThrough(t *testing.T) {
	h, called, _ := newValidatedHandler(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.test/healthz", nil))
	if rec.Code != http.StatusOK || !*called {
		t.Fatalf("status=%d called=%v", rec.Code, *called)
	}
}

func TestValidator_UndocumentedMethodPassesThrough(t *testing.T) {
	h, called, _ := newValidatedHandler(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.test/api/scenarios/create", nil))
	if !*called {
		t.Fatalf("expected request to reach the mux, status=%d", rec.Code)
	}
}

func TestHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.test/openapi.yaml", nil))
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "openapi: 3.0.3") {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/yaml" {
		t.Fatalf("content-type=%q", ct)
	}
}
