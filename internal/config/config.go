package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Verification VerificationConfig
	Email        EmailConfig
	Storage      StorageConfig
	Webhook      WebhookConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection and trigger stream values.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	Stream        string
	ConsumerGroup string
	ConsumerName  string
	CountersKey   string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// VerificationConfig tunes the email verification challenge.
type VerificationConfig struct {
	Cooldown     time.Duration
	CodeTTL      time.Duration
	MaxAttempts  int
	TemplateName string
}

// EmailConfig controls outbound email records.
type EmailConfig struct {
	From       string
	MaxRetries int
}

// StorageConfig describes the S3-compatible bucket for generated documents.
type StorageConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
	PresignExpiry   time.Duration
}

// WebhookConfig secures trigger ingress endpoints.
type WebhookConfig struct {
	Secret string
}

const devJWTSecret = "dev-secret"

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker-1"
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "clearance-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:          getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:      os.Getenv("REDIS_PASSWORD"),
			DB:            redisDB,
			Stream:        getEnv("REDIS_TRIGGER_STREAM", "clearance:triggers"),
			ConsumerGroup: getEnv("REDIS_TRIGGER_GROUP", "clearance-workers"),
			ConsumerName:  getEnv("REDIS_TRIGGER_CONSUMER", hostname),
			CountersKey:   getEnv("REDIS_COUNTERS_KEY", "counters:dashboard"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", devJWTSecret),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 10),
		},
		Verification: VerificationConfig{
			Cooldown:     time.Duration(getEnvAsInt("VERIFICATION_COOLDOWN_SECONDS", 60)) * time.Second,
			CodeTTL:      getEnvAsDuration("VERIFICATION_CODE_TTL", 10*time.Minute),
			MaxAttempts:  getEnvAsInt("VERIFICATION_MAX_ATTEMPTS", 5),
			TemplateName: getEnv("VERIFICATION_TEMPLATE", "verification_code"),
		},
		Email: EmailConfig{
			From:       getEnv("EMAIL_FROM", "noreply@example.com"),
			MaxRetries: getEnvAsInt("EMAIL_MAX_RETRIES", 3),
		},
		Storage: StorageConfig{
			Bucket:          os.Getenv("STORAGE_S3_BUCKET"),
			Region:          getEnv("STORAGE_S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("STORAGE_S3_ENDPOINT"),
			PathStyle:       getEnvAsBool("STORAGE_S3_PATH_STYLE", false),
			AccessKeyID:     os.Getenv("STORAGE_S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("STORAGE_S3_SECRET_ACCESS_KEY"),
			PresignExpiry:   getEnvAsDuration("STORAGE_PRESIGN_EXPIRY", 7*24*time.Hour),
		},
		Webhook: WebhookConfig{
			Secret: os.Getenv("WEBHOOK_SECRET"),
		},
	}

	if strings.EqualFold(cfg.App.Env, "production") && cfg.Auth.JWTSecret == devJWTSecret {
		return nil, fmt.Errorf("AUTH_JWT_SECRET must be set in production")
	}
	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
