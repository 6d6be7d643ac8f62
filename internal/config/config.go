package config

import (
	"errors"
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
	Notification NotificationConfig
	Signature    SignatureConfig
	Reminder     ReminderConfig
	Expiry       ExpiryConfig
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

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines staff authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom   string
	WebhookURL  string
	SignBaseURL string
}

// SignatureConfig bounds token issuance and inbound signing payloads.
type SignatureConfig struct {
	TokenTTL               time.Duration
	TokenMaxAttempts       int
	MaxPayloadBytes        int
	DisputeReasonMinLength int
	DisputeReasonMaxLength int
}

// ReminderConfig drives the reminder sweep.
type ReminderConfig struct {
	SweepInterval time.Duration
	Spacing       time.Duration
	MaxReminders  int
	BatchSize     int
	LeaseTTL      time.Duration
}

// ExpiryConfig drives the expiry sweep.
type ExpiryConfig struct {
	SweepInterval time.Duration
	BatchSize     int
	LeaseTTL      time.Duration
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))
	leaseTTL := getEnvAsDuration("SWEEP_LEASE_TTL", 5*time.Minute)

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "asset-handover-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			EmailFrom:   getEnv("NOTIFY_EMAIL_FROM", "it-assets@example.com"),
			WebhookURL:  getEnv("NOTIFY_WEBHOOK_URL", ""),
			SignBaseURL: getEnv("SIGN_BASE_URL", "http://localhost:8080/sign"),
		},
		Signature: SignatureConfig{
			TokenTTL:               getEnvAsDuration("SIGNATURE_TOKEN_TTL", 7*24*time.Hour),
			TokenMaxAttempts:       getEnvAsInt("SIGNATURE_TOKEN_MAX_ATTEMPTS", 5),
			MaxPayloadBytes:        getEnvAsInt("MAX_SIGNATURE_PAYLOAD_BYTES", 1<<20),
			DisputeReasonMinLength: getEnvAsInt("DISPUTE_REASON_MIN_LENGTH", 10),
			DisputeReasonMaxLength: getEnvAsInt("DISPUTE_REASON_MAX_LENGTH", 2000),
		},
		Reminder: ReminderConfig{
			SweepInterval: getEnvAsDuration("REMINDER_SWEEP_INTERVAL", time.Hour),
			Spacing:       getEnvAsDuration("REMINDER_SPACING", 72*time.Hour),
			MaxReminders:  getEnvAsInt("MAX_REMINDERS", 3),
			BatchSize:     getEnvAsInt("REMINDER_BATCH_SIZE", 100),
			LeaseTTL:      leaseTTL,
		},
		Expiry: ExpiryConfig{
			SweepInterval: getEnvAsDuration("EXPIRY_SWEEP_INTERVAL", 15*time.Minute),
			BatchSize:     getEnvAsInt("EXPIRY_BATCH_SIZE", 500),
			LeaseTTL:      leaseTTL,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the signing workflow cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Signature.TokenTTL <= 0 {
		problems = append(problems, "SIGNATURE_TOKEN_TTL must be > 0")
	}
	if c.Signature.TokenMaxAttempts <= 0 {
		problems = append(problems, "SIGNATURE_TOKEN_MAX_ATTEMPTS must be > 0")
	}
	if c.Signature.MaxPayloadBytes <= 0 {
		problems = append(problems, "MAX_SIGNATURE_PAYLOAD_BYTES must be > 0")
	}
	if c.Signature.DisputeReasonMinLength < 0 {
		problems = append(problems, "DISPUTE_REASON_MIN_LENGTH must be >= 0")
	}
	if c.Signature.DisputeReasonMaxLength < c.Signature.DisputeReasonMinLength {
		problems = append(problems, "DISPUTE_REASON_MAX_LENGTH must be >= DISPUTE_REASON_MIN_LENGTH")
	}
	if c.Reminder.SweepInterval <= 0 {
		problems = append(problems, "REMINDER_SWEEP_INTERVAL must be > 0")
	}
	if c.Reminder.Spacing < 0 {
		problems = append(problems, "REMINDER_SPACING must be >= 0")
	}
	if c.Reminder.MaxReminders < 0 {
		problems = append(problems, "MAX_REMINDERS must be >= 0")
	}
	if c.Reminder.BatchSize <= 0 || c.Expiry.BatchSize <= 0 {
		problems = append(problems, "sweep batch sizes must be > 0")
	}
	if c.Expiry.SweepInterval <= 0 {
		problems = append(problems, "EXPIRY_SWEEP_INTERVAL must be > 0")
	}
	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
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

// AccessTokenTTL returns the staff bearer token lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
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

// getEnvAsDuration accepts Go durations ("90m") or bare seconds ("5400").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(val); err == nil {
		return parsed
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
