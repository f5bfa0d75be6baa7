package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/docvault/docvault/backend/go-services/internal/config"
	"github.com/docvault/docvault/backend/go-services/internal/oidc"
	"github.com/docvault/docvault/backend/go-services/internal/sessions"
	"github.com/docvault/docvault/backend/go-services/internal/tokens"
	"github.com/docvault/docvault/backend/go-services/internal/users"
	"github.com/docvault/docvault/backend/go-services/pkg/logger"
	"github.com/docvault/docvault/backend/go-services/pkg/middleware"
	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
)

// LoginRequest selects how the caller proves its identity:
//   - "password": resource owner password grant against the realm (dev/testing)
//   - "auth_code": authorization code exchange
//   - "id_token": an ID token the client already obtained from the realm
type LoginRequest struct {
	Mode        string `json:"mode" binding:"required"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
	IDToken     string `json:"id_token"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
	// All ends every refresh session of the user, not just this one.
	All bool `json:"all"`
}

// AuthHandler holds dependencies
type AuthHandler struct {
	cfg         *config.Config
	usersSvc    *users.Service
	sessionsSvc *sessions.Service
	idTokens    middleware.Verifier
	signOut     func(sub string)
}

// NewAuthHandler builds the /auth routes. idTokens verifies realm ID tokens;
// when nil, login is unavailable but refresh and logout still work.
func NewAuthHandler(cfg *config.Config, u *users.Service, s *sessions.Service, idTokens middleware.Verifier) *AuthHandler {
	return &AuthHandler{cfg: cfg, usersSvc: u, sessionsSvc: s, idTokens: idTokens}
}

// OnSignOut registers fn to run after a successful logout, with the user's sub.
func (h *AuthHandler) OnSignOut(fn func(sub string)) { h.signOut = fn }

// Register routes under /auth
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	a.POST("/login", h.Login)
	a.POST("/refresh", h.Refresh)
	a.POST("/logout", h.Logout)
}

func (h *AuthHandler) accessTTL() time.Duration {
	if h.cfg.JWT.AccessTokenTTL > 0 {
		return h.cfg.JWT.AccessTokenTTL
	}
	return 15 * time.Minute
}

func (h *AuthHandler) refreshTTL() time.Duration {
	if h.cfg.JWT.RefreshTokenTTL > 0 {
		return h.cfg.JWT.RefreshTokenTTL
	}
	return 7 * 24 * time.Hour
}

// Login verifies the realm identity, upserts the user and issues an access
// token plus a refresh session.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.idTokens == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "identity provider not configured"})
		return
	}

	var idToken string
	switch req.Mode {
	case "id_token":
		if req.IDToken == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id_token required"})
			return
		}
		idToken = req.IDToken
	case "password", "auth_code":
		if req.Mode == "auth_code" && (req.Code == "" || req.RedirectURI == "") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "code and redirect_uri required for auth_code mode"})
			return
		}
		issuer := oidc.Issuer(h.cfg.Keycloak)
		if issuer == "" {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Keycloak not configured"})
			return
		}
		tok, err := exchange(c.Request.Context(), h.cfg.Keycloak, issuer, req)
		if err != nil {
			logger.Warnf("%s token exchange failed: %v", req.Mode, err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed", "details": err.Error()})
			return
		}
		idToken = tok
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported mode"})
		return
	}

	claims, err := oidc.Claims(c.Request.Context(), h.idTokens, idToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid id token", "details": err.Error()})
		return
	}
	u, err := h.usersSvc.UpsertFromClaims(c.Request.Context(), claims)
	if err != nil {
		logger.Errorf("user upsert error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user upsert failed"})
		return
	}
	if u == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "id token has no subject"})
		return
	}
	rft, err := h.sessionsSvc.CreateSession(c.Request.Context(), u.Sub, h.refreshTTL())
	if err != nil {
		logger.Errorf("failed to create session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	access, err := tokens.GenerateAccessToken(h.cfg, u, h.accessTTL())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  access,
		"refreshToken": rft,
		"user":         u,
		"expiresIn":    int(h.accessTTL().Seconds()),
	})
}

// Refresh rotates the refresh token and returns a new access token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, next, err := h.sessionsSvc.Rotate(c.Request.Context(), req.RefreshToken, h.refreshTTL())
	if errors.Is(err, sessions.ErrInvalidRefresh) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	if err != nil {
		logger.Errorf("refresh rotation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "validation failed"})
		return
	}
	u, err := h.usersSvc.GetBySub(c.Request.Context(), sess.Sub)
	if err != nil || u == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
		return
	}
	access, err := tokens.GenerateAccessToken(h.cfg, u, h.accessTTL())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  access,
		"refreshToken": next,
		"expiresIn":    int(h.accessTTL().Seconds()),
	})
}

// Logout revokes the refresh session, blacklists the presented access token
// for the rest of its lifetime and signs the user's document manager out.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req logoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	var sub string
	if raw, ok := bearer(c.GetHeader("Authorization")); ok {
		if claims, err := oidc.Claims(ctx, tokens.NewVerifier(h.cfg.JWT.Secret), raw); err == nil {
			sub, _ = claims["sub"].(string)
			if ttl, err := tokens.RemainingTTL(h.cfg.JWT.Secret, raw); err == nil && ttl > 0 {
				if err := sessions.BlacklistAccessToken(ctx, raw, ttl); err != nil {
					logger.Errorf("blacklist access token: %v", err)
					c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to blacklist access token"})
					return
				}
			}
		}
	}
	if req.RefreshToken != "" {
		sess, err := h.sessionsSvc.ValidateRefresh(ctx, req.RefreshToken)
		if err == nil && sess != nil && sub == "" {
			sub = sess.Sub
		}
		if err := h.sessionsSvc.DeleteRefresh(ctx, req.RefreshToken); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove session"})
			return
		}
	}
	if sub == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "access token or refresh token required"})
		return
	}
	if req.All {
		if err := h.sessionsSvc.EndAll(ctx, sub); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove sessions"})
			return
		}
	}
	if h.signOut != nil {
		h.signOut(sub)
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func bearer(header string) (string, bool) {
	scheme, tok, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tok) == "" {
		return "", false
	}
	return strings.TrimSpace(tok), true
}

// exchange runs the password or authorization code grant against the realm
// token endpoint and returns the ID token. AuthStyleAutoDetect retries with
// client_secret_post when the realm rejects HTTP Basic client auth.
func exchange(ctx context.Context, kc config.KeycloakConfig, issuer string, req LoginRequest) (string, error) {
	conf := &oauth2.Config{
		ClientID:     kc.ClientID,
		ClientSecret: kc.ClientSecret,
		RedirectURL:  req.RedirectURI,
		Endpoint: oauth2.Endpoint{
			TokenURL:  issuer + "/protocol/openid-connect/token",
			AuthStyle: oauth2.AuthStyleAutoDetect,
		},
		Scopes: []string{"openid", "email", "profile"},
	}
	var (
		tok *oauth2.Token
		err error
	)
	if req.Mode == "password" {
		tok, err = conf.PasswordCredentialsToken(ctx, req.Username, req.Password)
	} else {
		logger.Debugf("auth_code exchange: code length=%d redirect_uri=%s", len(req.Code), req.RedirectURI)
		tok, err = conf.Exchange(ctx, req.Code)
	}
	if err != nil {
		return "", err
	}
	id, _ := tok.Extra("id_token").(string)
	if id == "" {
		return "", fmt.Errorf("token endpoint returned no id_token")
	}
	return id, nil
}

// Me returns the stored profile of the authenticated caller, falling back to
// the token claims when the directory has no entry yet.
func (h *AuthHandler) Me(c *gin.Context) {
	v, _ := c.Get("claims")
	claims, _ := v.(map[string]interface{})
	sub, _ := claims["sub"].(string)
	if sub == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	u, err := h.usersSvc.GetBySub(c.Request.Context(), sub)
	if err != nil || u == nil {
		c.JSON(http.StatusOK, gin.H{"claims": claims})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}
