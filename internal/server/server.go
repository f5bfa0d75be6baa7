// Package server assembles the HTTP surface shared by the service binaries.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/docvault/docvault/backend/go-services/handlers"
	"github.com/docvault/docvault/backend/go-services/internal/config"
	"github.com/docvault/docvault/backend/go-services/internal/document/handler"
	"github.com/docvault/docvault/backend/go-services/internal/document/repository"
	"github.com/docvault/docvault/backend/go-services/internal/document/service"
	"github.com/docvault/docvault/backend/go-services/internal/notify"
	"github.com/docvault/docvault/backend/go-services/internal/sessions"
	"github.com/docvault/docvault/backend/go-services/internal/storage"
	"github.com/docvault/docvault/backend/go-services/internal/users"
	"github.com/docvault/docvault/backend/go-services/pkg/logger"
	"github.com/docvault/docvault/backend/go-services/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

// Components are the collaborators the entrypoint constructed.
type Components struct {
	Users    *users.Service
	Sessions *sessions.Service
	// IDTokens verifies realm ID tokens at login; nil disables login.
	IDTokens middleware.Verifier
	// AccessTokens verifies the service's own access tokens on /api.
	AccessTokens middleware.Verifier
	Store        repository.Store
	Blobs        storage.BlobStore
	Notifier     notify.Notifier
	Permissions  handler.PermissionStore
	Redis        *redis.Client
	Checks       map[string]Check
}

// Server owns the router, the per-user manager registry and the socket hub.
type Server struct {
	Engine   *gin.Engine
	Registry *service.Registry
	Hub      *notify.Hub

	cfg     *config.Config
	checks  map[string]Check
	started time.Time
}

// New wires every route. The hub starts immediately; Close stops it.
func New(cfg *config.Config, c Components) *Server {
	hub := notify.NewHub()
	go hub.Run()

	deps := service.Deps{
		Store:    c.Store,
		Blobs:    c.Blobs,
		Users:    c.Users,
		Notifier: c.Notifier,
		Toaster:  hub,
	}
	opts := service.Options{
		ReminderInterval: cfg.Reminder.Interval,
		ReminderWindow:   cfg.Reminder.Window,
	}
	registry := service.NewRegistry(func() *service.Manager {
		return service.NewManager(deps, opts)
	}, cfg.Server.ManagerIdle)

	s := &Server{
		Engine:   gin.New(),
		Registry: registry,
		Hub:      hub,
		cfg:      cfg,
		checks:   c.Checks,
		started:  time.Now(),
	}
	r := s.Engine
	r.Use(gin.Logger(), gin.Recovery(), middleware.CORS(cfg.Server.CORSOrigins...))
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && c.Redis != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(c.Redis, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "healthy") })
	r.GET("/ready", s.ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterSwagger(r)
	handler.RegisterShareRoutes(r, c.Store)

	auth := handlers.NewAuthHandler(cfg, c.Users, c.Sessions, c.IDTokens)
	auth.OnSignOut(registry.SignOut)
	auth.Register(r.Group("/"))

	if c.AccessTokens == nil {
		logger.Warn("no access token verifier configured; document API disabled")
		return s
	}
	api := r.Group("/", middleware.AuthMiddleware(c.AccessTokens))
	api.GET("/api/v1/me", auth.Me)
	handler.RegisterDocumentRoutes(api, handler.Deps{
		Registry:    registry,
		Users:       c.Users,
		Store:       c.Store,
		Blobs:       c.Blobs,
		Hub:         hub,
		Permissions: c.Permissions,
	})
	return s
}

func (s *Server) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	ok := true
	deps := map[string]bool{}
	for name, check := range s.checks {
		err := check(ctx)
		deps[name] = err == nil
		if err != nil {
			logger.Warnf("readiness: %s: %v", name, err)
			ok = false
		}
	}
	status, code := "ready", http.StatusOK
	if !ok {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(s.started).String()})
}

// Close tears down every manager and socket.
func (s *Server) Close() {
	s.Registry.Close()
	s.Hub.Stop()
}

// Run serves until ctx is cancelled, then drains in-flight requests and
// closes the server.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Engine,
		ReadTimeout: s.cfg.Server.ReadTimeout,
		// sockets are long-lived; per-write deadlines live in the hub
		WriteTimeout: 0,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		s.Close()
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
