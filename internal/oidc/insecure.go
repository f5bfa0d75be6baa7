package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/docvault/docvault/backend/go-services/pkg/middleware"
	"github.com/golang-jwt/jwt/v5"
)

type insecureToken struct {
	claims jwt.MapClaims
}

func (t *insecureToken) Claims(v interface{}) error {
	b, err := json.Marshal(t.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// InsecureVerifier reads ID token claims without checking the signature.
// Expired tokens and tokens without a subject are still rejected. Only
// enabled through ALLOW_INSECURE_TOKEN or the in-memory dev server.
type InsecureVerifier struct {
	now func() time.Time
}

func NewInsecureVerifier() *InsecureVerifier { return &InsecureVerifier{now: time.Now} }

func (v *InsecureVerifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, err
	}
	if sub, _ := claims.GetSubject(); sub == "" {
		return nil, errors.New("token has no subject")
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, err
	}
	if exp != nil && !v.now().Before(exp.Time) {
		return nil, jwt.ErrTokenExpired
	}
	return &insecureToken{claims: claims}, nil
}
