package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/docvault/docvault/backend/go-services/internal/storage"
	"github.com/docvault/docvault/backend/go-services/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Keycloak  KeycloakConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Blob      storage.Config
	Notify    NotifyConfig
	Reminder  ReminderConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// ManagerIdle is how long a user's document subscription outlives its
	// last request or socket.
	ManagerIdle time.Duration
	// CORSOrigins restricts browser origins; empty allows any.
	CORSOrigins []string
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type KeycloakConfig struct {
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
	// AllowInsecure accepts unsigned ID tokens; integration tests only.
	AllowInsecure bool
}

type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// NotifyConfig selects the system notification channel: "redis", "email" or "none".
type NotifyConfig struct {
	Channel      string
	ResendAPIKey string
	FromEmail    string
	FromName     string
}

type ReminderConfig struct {
	Interval time.Duration
	Window   time.Duration
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "" || c.Server.Environment == "development"
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5001")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("SERVER_MANAGER_IDLE_SECONDS", 30)
	v.SetDefault("MONGODB_DATABASE", "docvault")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("JWT_ACCESS_TOKEN_TTL", 15)
	v.SetDefault("JWT_REFRESH_TOKEN_TTL", 10080)
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("BLOB_BACKEND", "memory")
	v.SetDefault("MINIO_BUCKET", "docvault")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("NOTIFY_CHANNEL", "none")
	v.SetDefault("NOTIFY_FROM_EMAIL", "noreply@docvault.local")
	v.SetDefault("NOTIFY_FROM_NAME", "DocVault")
	v.SetDefault("REMINDER_INTERVAL_SECONDS", 60)
	v.SetDefault("REMINDER_WINDOW_SECONDS", 60)

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			ManagerIdle:  time.Duration(v.GetInt("SERVER_MANAGER_IDLE_SECONDS")) * time.Second,
			CORSOrigins:  splitList(v.GetString("CORS_ORIGINS")),
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Keycloak: KeycloakConfig{
			URL:           v.GetString("KEYCLOAK_URL"),
			Realm:         v.GetString("KEYCLOAK_REALM"),
			ClientID:      v.GetString("KEYCLOAK_CLIENT_ID"),
			ClientSecret:  v.GetString("KEYCLOAK_CLIENT_SECRET"),
			AllowInsecure: strings.EqualFold(strings.TrimSpace(v.GetString("ALLOW_INSECURE_TOKEN")), "true"),
		},
		JWT: JWTConfig{
			Secret:          os.Getenv("JWT_SECRET"),
			AccessTokenTTL:  time.Duration(v.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
			RefreshTokenTTL: time.Duration(v.GetInt("JWT_REFRESH_TOKEN_TTL")) * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Blob: storage.Config{
			Backend: strings.ToLower(v.GetString("BLOB_BACKEND")),
			MinIO: storage.MinIOConfig{
				Endpoint:  v.GetString("MINIO_ENDPOINT"),
				AccessKey: v.GetString("MINIO_ACCESS_KEY"),
				SecretKey: v.GetString("MINIO_SECRET_KEY"),
				UseSSL:    v.GetBool("MINIO_USE_SSL"),
				Bucket:    v.GetString("MINIO_BUCKET"),
			},
			S3: storage.S3Config{
				Region:    v.GetString("S3_REGION"),
				Bucket:    v.GetString("S3_BUCKET"),
				AccessKey: v.GetString("S3_ACCESS_KEY"),
				SecretKey: v.GetString("S3_SECRET_KEY"),
				Endpoint:  v.GetString("S3_ENDPOINT"),
			},
		},
		Notify: NotifyConfig{
			Channel:      strings.ToLower(v.GetString("NOTIFY_CHANNEL")),
			ResendAPIKey: os.Getenv("RESEND_API_KEY"),
			FromEmail:    v.GetString("NOTIFY_FROM_EMAIL"),
			FromName:     v.GetString("NOTIFY_FROM_NAME"),
		},
		Reminder: ReminderConfig{
			Interval: time.Duration(v.GetInt("REMINDER_INTERVAL_SECONDS")) * time.Second,
			Window:   time.Duration(v.GetInt("REMINDER_WINDOW_SECONDS")) * time.Second,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	// Basic validation
	if cfg.JWT.Secret == "" {
		logger.Warn("JWT_SECRET is not set; set a secure value in production")
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Blob.Backend {
	case "memory", "minio", "s3":
	default:
		return errors.New("BLOB_BACKEND must be memory, minio or s3")
	}
	switch c.Notify.Channel {
	case "none", "redis", "email":
	default:
		return errors.New("NOTIFY_CHANNEL must be none, redis or email")
	}
	if c.Notify.Channel == "redis" && c.Redis.Host == "" {
		return errors.New("NOTIFY_CHANNEL=redis requires REDIS_HOST")
	}
	if c.Reminder.Interval <= 0 || c.Reminder.Window <= 0 {
		return errors.New("reminder interval and window must be positive")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
