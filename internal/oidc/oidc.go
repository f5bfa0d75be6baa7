package oidc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/docvault/docvault/backend/go-services/internal/config"
	"github.com/docvault/docvault/backend/go-services/pkg/logger"
	"github.com/docvault/docvault/backend/go-services/pkg/middleware"
)

// ErrNotConfigured is returned when no identity provider is configured and
// insecure tokens are not allowed.
var ErrNotConfigured = errors.New("identity provider not configured")

// Verifier wraps the OIDC provider and token verifier
type Verifier struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
}

// NewVerifier creates a new OIDC verifier for the given issuer and client ID
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})
	return &Verifier{provider: provider, verifier: verifier}, nil
}

// Verify verifies the provided raw ID token and returns a middleware.Token
func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}

// Issuer returns the realm issuer URL of a Keycloak configuration, or "" when
// the URL or realm is missing.
func Issuer(kc config.KeycloakConfig) string {
	base := strings.TrimRight(strings.TrimSpace(kc.URL), "/")
	realm := strings.TrimSpace(kc.Realm)
	if base == "" || realm == "" {
		return ""
	}
	return base + "/realms/" + realm
}

// FromConfig returns the ID token verifier for the configured realm. When the
// realm cannot be reached and AllowInsecure is set, it falls back to the
// signature-less verifier.
func FromConfig(ctx context.Context, kc config.KeycloakConfig) (middleware.Verifier, error) {
	issuer := Issuer(kc)
	if issuer != "" {
		ver, err := NewVerifier(ctx, issuer, kc.ClientID)
		if err == nil {
			return ver, nil
		}
		if !kc.AllowInsecure {
			return nil, err
		}
		logger.Warnf("OIDC discovery for %s failed, accepting unsigned ID tokens: %v", issuer, err)
		return NewInsecureVerifier(), nil
	}
	if kc.AllowInsecure {
		logger.Warn("no Keycloak realm configured, accepting unsigned ID tokens")
		return NewInsecureVerifier(), nil
	}
	return nil, ErrNotConfigured
}

// Claims verifies raw and decodes its claims into a map.
func Claims(ctx context.Context, ver middleware.Verifier, raw string) (map[string]interface{}, error) {
	tok, err := ver.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	var claims map[string]interface{}
	if err := tok.Claims(&claims); err != nil {
		return nil, err
	}
	return claims, nil
}
