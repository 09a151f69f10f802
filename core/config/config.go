package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"actcollective.org/momentum/core/db"
	"actcollective.org/momentum/internal/model"
)

type Config struct {
	OTel       OTelConfig
	GitLab     GitLabConfig
	Queue      QueueConfig
	Thresholds model.Thresholds
	Env        string
	Port       string
	DB         db.Config
	// SQLitePath backs the embedded snapshot store when no Postgres DSN is
	// configured.
	SQLitePath string
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

type GitLabConfig struct {
	BaseURL   string
	Token     string
	ProjectID string
}

type QueueConfig struct {
	RedisURL      string
	RedisStream   string
	RedisGroup    string
	RedisDLQ      string
	RedisConsumer string
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeWorker ServiceType = "worker"
	ServiceTypeCLI    ServiceType = "cli"
)

// Load loads configuration from environment variables. In development it
// first loads a service-specific .env file (.env.server, .env.worker),
// falling back to .env. Anomaly thresholds can additionally come from a
// momentum.yaml file; environment variables win over the file.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("MOMENTUM_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	cfg := Config{
		Env:        getEnv("MOMENTUM_ENV", "development"),
		Port:       getEnv("PORT", "8080"),
		SQLitePath: getEnv("SQLITE_PATH", "momentum.db"),
		DB: db.Config{
			DSN:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt32("DB_MAX_CONNS", 10),
			MinConns: getEnvInt32("DB_MIN_CONNS", 2),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "momentum"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		GitLab: GitLabConfig{
			BaseURL:   getEnv("GITLAB_BASE_URL", ""),
			Token:     getEnv("GITLAB_TOKEN", ""),
			ProjectID: getEnv("GITLAB_PROJECT_ID", ""),
		},
		Queue: QueueConfig{
			RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
			RedisStream:   getEnv("REDIS_STREAM", "momentum_runs"),
			RedisGroup:    getEnv("REDIS_CONSUMER_GROUP", "momentum_group"),
			RedisDLQ:      getEnv("REDIS_DLQ_STREAM", "momentum_runs_dlq"),
			RedisConsumer: getEnv("REDIS_CONSUMER_NAME", string(serviceType)),
		},
		Thresholds: loadThresholds(),
	}

	return cfg, nil
}

// thresholdsFile mirrors the momentum.yaml layout.
type thresholdsFile struct {
	Thresholds model.Thresholds `yaml:"thresholds"`
}

func loadThresholds() model.Thresholds {
	t := model.DefaultThresholds()

	if path := getEnv("MOMENTUM_CONFIG", "momentum.yaml"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			var file thresholdsFile
			if err := yaml.Unmarshal(data, &file); err == nil {
				t = file.Thresholds.Normalized()
			}
		}
	}

	if v := getEnvInt("WIP_LIMIT", 0); v > 0 {
		t.WIPLimit = v
	}
	if v := getEnvInt("STUCK_AFTER_DAYS", 0); v > 0 {
		t.StuckAfterDays = v
	}
	if v := getEnvInt("BLOCKED_AFTER_DAYS", 0); v > 0 {
		t.BlockedAfterDays = v
	}
	return t.Normalized()
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// UsePostgres reports whether the durable store is Postgres rather than the
// embedded fallback.
func (c Config) UsePostgres() bool {
	return c.DB.DSN != ""
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c GitLabConfig) Enabled() bool {
	return c.ProjectID != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}
