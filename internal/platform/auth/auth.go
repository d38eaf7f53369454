package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/get2b/get2b-go/internal/platform/env"
)

type Mode string

const (
	ModeOIDC     Mode = "oidc"
	ModeGateway  Mode = "gateway"
	ModeDev      Mode = "dev"
	ModeDisabled Mode = "disabled"
)

var ErrUnauthenticated = errors.New("unauthenticated")

type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (Identity, error)
}

type Config struct {
	Mode Mode

	RolesClaim string
	EmailClaim string

	OIDCIssuerURL string
	OIDCClientID  string

	GatewaySecret  string
	GatewayMaxSkew time.Duration

	DevSubject string
	DevEmail   string
	DevRoles   []string
}

func ConfigFromEnv() (Config, error) {
	modeRaw, err := env.OneOf("AUTH_MODE", string(ModeOIDC),
		string(ModeOIDC), string(ModeGateway), string(ModeDev), string(ModeDisabled))
	if err != nil {
		return Config{}, err
	}
	skew, err := env.Duration("AUTH_GATEWAY_MAX_SKEW", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Mode:           Mode(modeRaw),
		RolesClaim:     env.String("AUTH_ROLES_CLAIM", "roles"),
		EmailClaim:     env.String("AUTH_EMAIL_CLAIM", "email"),
		OIDCIssuerURL:  env.String("OIDC_ISSUER_URL", ""),
		OIDCClientID:   env.String("OIDC_CLIENT_ID", ""),
		GatewaySecret:  env.String("GET2B_INTERNAL_AUTH_SECRET", ""),
		GatewayMaxSkew: skew,
		DevSubject:     env.String("DEV_AUTH_SUBJECT", "dev-user"),
		DevEmail:       env.String("DEV_AUTH_EMAIL", "dev-user@example.local"),
		DevRoles:       parseCSV(env.String("DEV_AUTH_ROLES", "admin")),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.RolesClaim) == "" {
		return errors.New("AUTH_ROLES_CLAIM is required")
	}
	if strings.TrimSpace(c.EmailClaim) == "" {
		return errors.New("AUTH_EMAIL_CLAIM is required")
	}

	switch c.Mode {
	case ModeOIDC:
		if strings.TrimSpace(c.OIDCIssuerURL) == "" {
			return errors.New("OIDC_ISSUER_URL is required when AUTH_MODE=oidc")
		}
		if strings.TrimSpace(c.OIDCClientID) == "" {
			return errors.New("OIDC_CLIENT_ID is required when AUTH_MODE=oidc")
		}
	case ModeGateway:
		if strings.TrimSpace(c.GatewaySecret) == "" {
			return errors.New("GET2B_INTERNAL_AUTH_SECRET is required when AUTH_MODE=gateway")
		}
	case ModeDev:
		if strings.TrimSpace(c.DevSubject) == "" {
			return errors.New("DEV_AUTH_SUBJECT is required when AUTH_MODE=dev")
		}
		if len(c.DevRoles) == 0 {
			return errors.New("DEV_AUTH_ROLES must be non-empty when AUTH_MODE=dev")
		}
	case ModeDisabled:
	default:
		return fmt.Errorf("unsupported auth mode: %q", c.Mode)
	}
	return nil
}

// NewAuthenticator builds the authenticator for cfg.Mode. It returns nil for
// ModeDisabled; callers skip the middleware in that case.
func NewAuthenticator(ctx context.Context, cfg Config) (Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case ModeOIDC:
		return NewOIDCAuthenticator(ctx, cfg)
	case ModeGateway:
		return NewGatewayHeadersAuthenticator(cfg.GatewaySecret, cfg.GatewayMaxSkew)
	case ModeDev:
		return NewDevAuthenticator(cfg), nil
	default:
		return nil, nil
	}
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		item := strings.ToLower(strings.TrimSpace(part))
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
