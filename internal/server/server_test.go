package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/docvault/docvault/backend/go-services/internal/config"
	"github.com/docvault/docvault/backend/go-services/internal/document/repository"
	"github.com/docvault/docvault/backend/go-services/internal/oidc"
	"github.com/docvault/docvault/backend/go-services/internal/sessions"
	"github.com/docvault/docvault/backend/go-services/internal/storage"
	"github.com/docvault/docvault/backend/go-services/internal/tokens"
	"github.com/docvault/docvault/backend/go-services/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.JWT.Secret = "server-test-secret-32-bytes-xxxxx"
	cfg.Server.ManagerIdle = time.Minute
	cfg.Reminder.Interval = time.Minute
	cfg.Reminder.Window = time.Minute
	return cfg
}

func newTestServer(t *testing.T, checks map[string]Check) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	s := New(cfg, Components{
		Users:        users.NewService(users.NewMemoryUserRepository()),
		Sessions:     sessions.NewService(sessions.NewMemoryRepository()),
		IDTokens:     oidc.NewInsecureVerifier(),
		AccessTokens: tokens.NewVerifier(cfg.JWT.Secret),
		Store:        repository.NewMemoryRepo(),
		Blobs:        storage.NewMemoryStorage(),
		Checks:       checks,
	})
	t.Cleanup(s.Close)
	return s
}

func do(s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Engine.ServeHTTP(w, req)
	return w
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, map[string]Check{
		"mongo": func(context.Context) error { return nil },
	})
	require.Equal(t, http.StatusOK, do(s, http.MethodGet, "/health", "", "").Code)
	require.Equal(t, http.StatusOK, do(s, http.MethodGet, "/ready", "", "").Code)

	s = newTestServer(t, map[string]Check{
		"mongo": func(context.Context) error { return nil },
		"redis": func(context.Context) error { return errors.New("down") },
	})
	w := do(s, http.MethodGet, "/ready", "", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var got struct {
		Deps map[string]bool `json:"deps"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, map[string]bool{"mongo": true, "redis": false}, got.Deps)
}

func TestDocumentAPIRequiresToken(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/api/documents", "", "").Code)
	require.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/api/documents", "forged", "").Code)
}

func TestLoginCreateLogout(t *testing.T) {
	s := newTestServer(t, nil)

	claims, _ := json.Marshal(map[string]string{"sub": "alice", "email": "alice@example.com", "name": "Alice"})
	idTok := "eyJhbGciOiJSUzI1NiIsInR5cCI6IkpXVCJ9." + base64.RawURLEncoding.EncodeToString(claims) + ".sig"
	w := do(s, http.MethodPost, "/auth/login", "", fmt.Sprintf(`{"mode":"id_token","id_token":%q}`, idTok))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))

	w = do(s, http.MethodGet, "/api/v1/me", login.AccessToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "alice@example.com")

	w = do(s, http.MethodPost, "/api/documents", login.AccessToken, `{"title":"Lease","category":"Legal"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.Eventually(t, func() bool {
		w := do(s, http.MethodGet, "/api/documents", login.AccessToken, "")
		return w.Code == http.StatusOK && strings.Contains(w.Body.String(), "Lease")
	}, 2*time.Second, 20*time.Millisecond)

	// the manager outlives the request for the idle grace period
	_, live := s.Registry.Lookup("alice")
	require.True(t, live)

	w = do(s, http.MethodPost, "/auth/logout", login.AccessToken, fmt.Sprintf(`{"refreshToken":%q}`, login.RefreshToken))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, live = s.Registry.Lookup("alice")
	require.False(t, live)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, nil)
	s.cfg.Server.Host = "127.0.0.1"
	s.cfg.Server.Port = "0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
