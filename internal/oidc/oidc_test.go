package oidc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/docvault/docvault/backend/go-services/internal/config"
	"github.com/stretchr/testify/require"
)

func unsigned(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	b, err := json.Marshal(claims)
	require.NoError(t, err)
	return "eyJhbGciOiJSUzI1NiIsInR5cCI6IkpXVCJ9." + base64.RawURLEncoding.EncodeToString(b) + ".sig"
}

func TestIssuer(t *testing.T) {
	require.Equal(t, "https://kc.example/realms/vault", Issuer(config.KeycloakConfig{URL: "https://kc.example/", Realm: "vault"}))
	require.Empty(t, Issuer(config.KeycloakConfig{URL: "https://kc.example"}))
}

func TestInsecureVerifierClaims(t *testing.T) {
	raw := unsigned(t, map[string]interface{}{"sub": "u1", "email": "a@b.c"})
	claims, err := Claims(context.Background(), NewInsecureVerifier(), raw)
	require.NoError(t, err)
	require.Equal(t, "u1", claims["sub"])
	require.Equal(t, "a@b.c", claims["email"])
}

func TestInsecureVerifierRejectsGarbage(t *testing.T) {
	_, err := NewInsecureVerifier().Verify(context.Background(), "not-a-jwt")
	require.Error(t, err)

	_, err = NewInsecureVerifier().Verify(context.Background(), unsigned(t, map[string]interface{}{"email": "a@b.c"}))
	require.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	_, err := FromConfig(context.Background(), config.KeycloakConfig{})
	require.ErrorIs(t, err, ErrNotConfigured)

	ver, err := FromConfig(context.Background(), config.KeycloakConfig{AllowInsecure: true})
	require.NoError(t, err)
	require.IsType(t, &InsecureVerifier{}, ver)
}

func TestInsecureVerifierRejectsExpired(t *testing.T) {
	v := NewInsecureVerifier()
	v.now = func() time.Time { return time.Unix(2000, 0) }

	_, err := v.Verify(context.Background(), unsigned(t, map[string]interface{}{"sub": "u1", "exp": 1000}))
	require.Error(t, err)

	_, err = v.Verify(context.Background(), unsigned(t, map[string]interface{}{"sub": "u1", "exp": 3000}))
	require.NoError(t, err)
}
