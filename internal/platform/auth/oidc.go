package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCAuthenticator verifies bearer ID tokens issued by the identity
// provider. Session issuance lives with the provider, not here.
type OIDCAuthenticator struct {
	cfg      Config
	verifier *oidc.IDTokenVerifier
	endpoint oauth2.Endpoint
}

func NewOIDCAuthenticator(ctx context.Context, cfg Config) (*OIDCAuthenticator, error) {
	if cfg.Mode != ModeOIDC {
		return nil, fmt.Errorf("auth mode must be oidc (got %q)", cfg.Mode)
	}
	provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: %w", err)
	}
	return &OIDCAuthenticator{
		cfg:      cfg,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.OIDCClientID}),
		endpoint: provider.Endpoint(),
	}, nil
}

// TokenEndpoint is advertised to clients that need to refresh tokens.
func (a *OIDCAuthenticator) TokenEndpoint() string {
	return a.endpoint.TokenURL
}

func (a *OIDCAuthenticator) Authenticate(ctx context.Context, r *http.Request) (Identity, error) {
	rawToken := bearerToken(r)
	if rawToken == "" {
		return Identity{}, ErrUnauthenticated
	}

	idToken, err := a.verifier.Verify(ctx, rawToken)
	if err != nil {
		return Identity{}, err
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return Identity{}, err
	}
	return identityFromClaims(claims, a.cfg.EmailClaim, a.cfg.RolesClaim), nil
}

func identityFromClaims(claims map[string]any, emailClaim, rolesClaim string) Identity {
	subject, _ := claims["sub"].(string)
	email, _ := claims[emailClaim].(string)
	return Identity{
		Subject: subject,
		Email:   email,
		Roles:   extractRolesClaim(claims, rolesClaim),
	}
}

func bearerToken(r *http.Request) string {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if authz == "" {
		return ""
	}
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func extractRolesClaim(claims map[string]any, key string) []string {
	switch typed := claims[key].(type) {
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			s, ok := item.(string)
			if !ok {
				continue
			}
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return parseCSV(strings.Join(typed, ","))
	case string:
		return parseCSV(typed)
	default:
		return nil
	}
}
