package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docvault/docvault/backend/go-services/internal/config"
	"github.com/docvault/docvault/backend/go-services/internal/database"
	"github.com/docvault/docvault/backend/go-services/internal/document/handler"
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
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: keycloak=%v mongo=%v redis=%v blob=%s notify=%s",
		cfg.Keycloak.URL != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.Blob.Backend, cfg.Notify.Channel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]server.Check{}

	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
		} else {
			logger.Infof("connected to Redis at %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
		defer rdb.Close()
		sessions.SetBlacklistClient(rdb)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	if cfg.MongoDB.URI == "" {
		logger.Fatalf("MONGODB_URI is required; use cmd/document for an in-memory server")
	}
	client := connectMongo(ctx, cfg)
	defer func() { _ = client.Disconnect(context.Background()) }()
	checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
	if err := database.CheckChangeStreams(ctx, client); err != nil {
		logger.Warnf("live document subscriptions unavailable: %v", err)
	}
	db := client.Database(cfg.MongoDB.Database)

	userSvc := users.NewService(users.NewMongoUserRepository(db.Collection("users")))
	var sessionsSvc *sessions.Service
	if rdb != nil {
		sessionsSvc = sessions.NewService(sessions.NewRedisRepository(rdb, "session:"))
		logger.Info("using Redis for session storage")
	} else {
		sessionsSvc = sessions.NewService(sessions.NewMongoRepository(db.Collection("sessions")))
	}
	store := repository.NewMongoRepo(db.Collection("documents"))

	blobs, err := storage.New(cfg.Blob)
	if err != nil {
		logger.Fatalf("blob storage: %v", err)
	}

	comps := server.Components{
		Users:        userSvc,
		Sessions:     sessionsSvc,
		AccessTokens: tokens.NewVerifier(cfg.JWT.Secret),
		Store:        store,
		Blobs:        blobs,
		Redis:        rdb,
		Checks:       checks,
	}
	comps.Notifier, comps.Permissions = notifier(cfg, rdb)

	idTokens, err := oidc.FromConfig(ctx, cfg.Keycloak)
	if err != nil {
		logger.Warnf("login disabled: %v", err)
	} else {
		comps.IDTokens = idTokens
	}

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	srv := server.New(cfg, comps)
	if err := srv.Run(ctx); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}

// connectMongo retries with backoff to tolerate startup races with the database.
func connectMongo(ctx context.Context, cfg *config.Config) *mongo.Client {
	const maxAttempts = 5
	backoff := time.Second
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		client, err := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
		if err == nil {
			return client
		}
		lastErr = err
		logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, err)
		if attempt < maxAttempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				logger.Fatalf("interrupted while connecting to MongoDB")
			}
			backoff *= 2
		}
	}
	logger.Fatalf("could not connect to MongoDB after %d attempts: %v", maxAttempts, lastErr)
	return nil
}

// notifier picks the system notification channel. Only the Redis channel
// records per-user permission.
func notifier(cfg *config.Config, rdb *redis.Client) (notify.Notifier, handler.PermissionStore) {
	switch cfg.Notify.Channel {
	case "redis":
		if rdb == nil {
			logger.Warn("NOTIFY_CHANNEL=redis without a Redis client; reminders fall back to toasts")
			return notify.NoopNotifier{}, nil
		}
		n := notify.NewRedisNotifier(rdb)
		return n, n
	case "email":
		return notify.NewEmailNotifier(cfg.Notify.ResendAPIKey, cfg.Notify.FromEmail, cfg.Notify.FromName, cfg.IsDevelopment()), nil
	}
	return notify.NoopNotifier{}, nil
}
