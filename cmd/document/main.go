// Command document runs the vault API with every store held in memory. Login
// accepts unsigned ID tokens, so it is for local development only.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/docvault/docvault/backend/go-services/internal/config"
	"github.com/docvault/docvault/backend/go-services/internal/document/repository"
	"github.com/docvault/docvault/backend/go-services/internal/notify"
	"github.com/docvault/docvault/backend/go-services/internal/oidc"
	"github.com/docvault/docvault/backend/go-services/internal/server"
	"github.com/docvault/docvault/backend/go-services/internal/sessions"
	"github.com/docvault/docvault/backend/go-services/internal/storage"
	"github.com/docvault/docvault/backend/go-services/internal/tokens"
	"github.com/docvault/docvault/backend/go-services/internal/users"
	"github.com/docvault/docvault/backend/go-services/pkg/logger"
	"github.com/docvault/docvault/backend/go-services/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

const devSecret = "docvault-dev-secret-do-not-use-in-prod"

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if port := os.Getenv("DOC_SERVICE_PORT"); port != "" {
		cfg.Server.Port = port
	} else {
		cfg.Server.Port = "5010"
	}
	if cfg.JWT.Secret == "" {
		cfg.JWT.Secret = devSecret
	}
	cfg.RateLimit.UseRedis = false

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// BLOB_BACKEND defaults to memory; a MinIO or S3 bucket can still be used
	blobs, err := storage.New(cfg.Blob)
	if err != nil {
		logger.Fatalf("blob storage: %v", err)
	}

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	srv := server.New(cfg, server.Components{
		Users:        users.NewService(users.NewMemoryUserRepository()),
		Sessions:     sessions.NewService(sessions.NewMemoryRepository()),
		IDTokens:     oidc.NewInsecureVerifier(),
		AccessTokens: tokens.NewVerifier(cfg.JWT.Secret),
		Store:        repository.NewMemoryRepo(),
		Blobs:        blobs,
		Notifier:     notify.NoopNotifier{},
	})
	logger.Warn("in-memory document server: data is lost on exit and ID tokens are not verified")
	if err := srv.Run(ctx); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
