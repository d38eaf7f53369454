package apispec

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"

	"github.com/get2b/get2b-go/internal/platform/httpserver"
)

//go:embed openapi.yaml
var document []byte

// Document returns the raw embedded OpenAPI document.
func Document() []byte {
	out := make([]byte, len(document))
	copy(out, document)
	return out
}

// Load parses and validates the embedded document.
func Load(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(document)
	if err != nil {
		return nil, fmt.Errorf("load openapi: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi: %w", err)
	}
	return doc, nil
}

// Handler serves the document as YAML.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(document)
		}
	})
}

// Validator checks requests against the document before they reach the
// API handlers. Requests for paths the document does not describe pass
// through untouched.
type Validator struct {
	router routers.Router
}

func NewValidator(doc *openapi3.T) (*Validator, error) {
	if doc == nil {
		return nil, errors.New("openapi document is required")
	}
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("openapi router: %w", err)
	}
	return &Validator{router: router}, nil
}

func (v *Validator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, params, err := v.router.FindRoute(r)
		if err != nil {
			// the mux answers unknown paths and methods
			next.ServeHTTP(w, r)
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: params,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			},
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			httpserver.WriteJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"error":   describe(err),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func describe(err error) string {
	var reqErr *openapi3filter.RequestError
	if !errors.As(err, &reqErr) {
		return "invalid request"
	}

	var schemaErr *openapi3.SchemaError
	if errors.As(reqErr.Err, &schemaErr) {
		field := strings.Join(schemaErr.JSONPointer(), ".")
		if reqErr.Parameter != nil {
			field = reqErr.Parameter.Name
		}
		if field == "" {
			return "invalid request body: " + schemaErr.Reason
		}
		return fmt.Sprintf("invalid field %s: %s", field, schemaErr.Reason)
	}
	if reqErr.Parameter != nil {
		return fmt.Sprintf("invalid %s parameter %s", reqErr.Parameter.In, reqErr.Parameter.Name)
	}
	if reqErr.Reason != "" {
		return reqErr.Reason
	}
	return "invalid request"
}
