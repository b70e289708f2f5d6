// Package config loads XenovaLaw server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Document storage backends.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config holds all configuration for the server.
type Config struct {
	DataDir     string
	BindAddress string
	Port        int
	MetricsPort int // 0 disables the metrics listener

	DatabaseDriver string
	PostgresDSN    string

	SessionSecret string
	SessionTTL    time.Duration
	AdminKey      string

	LogLevel  string
	LogFormat string
	LogFile   string

	AnthropicAPIKey string
	AIModel         string
	AIBaseURL       string
	AITimeout       time.Duration

	DocumentStorage string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	MaxUploadMB     int

	RedisURL          string
	LoginRateLimit    int // attempts per RateLimitWindow per client IP
	APIRateLimit      int // requests per RateLimitWindow per user, 0 disables
	RateLimitWindow   time.Duration
	KafkaBrokers      []string
	KafkaUsageTopic   string
	ShutdownTimeout   time.Duration
	ReadHeaderTimeout time.Duration
}

// SQLitePath returns the path of the embedded database file.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "xenova.db")
}

// DocumentsDir returns the directory used by the local document store.
func (c *Config) DocumentsDir() string {
	return filepath.Join(c.DataDir, "documents")
}

// ListenAddr returns the HTTP listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.Port)
}

// MaxUploadBytes returns the document upload ceiling in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// Load reads configuration from environment variables.
// A .env file is loaded if present but not required.
func Load() (*Config, error) {
	cfg, err := loadFromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// LoadForCLI is Load without the server-only requirements (session secret,
// admin key). Administrative commands only need the store settings.
func LoadForCLI() (*Config, error) {
	cfg, err := loadFromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.validateStore(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func loadFromEnv() (*Config, error) {
	// Best-effort .env loading (not required)
	_ = godotenv.Load()

	var errs []string
	intVar := func(key string, fallback int) int {
		n, err := envOrDefaultInt(key, fallback)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return n
	}
	durationVar := func(key string, fallback time.Duration) time.Duration {
		d, err := envOrDefaultDuration(key, fallback)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return d
	}

	cfg := &Config{
		DataDir:           envOrDefault("XENOVA_DATA_DIR", "./data"),
		BindAddress:       envOrDefault("XENOVA_BIND_ADDRESS", "0.0.0.0"),
		Port:              intVar("XENOVA_PORT", 8080),
		MetricsPort:       intVar("XENOVA_METRICS_PORT", 9091),
		DatabaseDriver:    strings.ToLower(envOrDefault("XENOVA_DB_DRIVER", DriverSQLite)),
		PostgresDSN:       strings.TrimSpace(os.Getenv("XENOVA_POSTGRES_DSN")),
		SessionSecret:     strings.TrimSpace(os.Getenv("XENOVA_SESSION_SECRET")),
		SessionTTL:        durationVar("XENOVA_SESSION_TTL", 12*time.Hour),
		AdminKey:          strings.TrimSpace(os.Getenv("XENOVA_ADMIN_KEY")),
		LogLevel:          envOrDefault("XENOVA_LOG_LEVEL", "info"),
		LogFormat:         envOrDefault("XENOVA_LOG_FORMAT", "auto"),
		LogFile:           strings.TrimSpace(os.Getenv("XENOVA_LOG_FILE")),
		AnthropicAPIKey:   strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
		AIModel:           envOrDefault("XENOVA_AI_MODEL", "claude-sonnet-4-20250514"),
		AIBaseURL:         strings.TrimSpace(os.Getenv("XENOVA_AI_BASE_URL")),
		AITimeout:         durationVar("XENOVA_AI_TIMEOUT", 60*time.Second),
		DocumentStorage:   strings.ToLower(envOrDefault("XENOVA_DOCUMENT_STORAGE", StorageLocal)),
		S3Bucket:          strings.TrimSpace(os.Getenv("XENOVA_S3_BUCKET")),
		S3Region:          envOrDefault("XENOVA_S3_REGION", "us-east-1"),
		S3Endpoint:        strings.TrimSpace(os.Getenv("XENOVA_S3_ENDPOINT")),
		MaxUploadMB:       intVar("XENOVA_MAX_UPLOAD_MB", 25),
		RedisURL:          strings.TrimSpace(os.Getenv("XENOVA_REDIS_URL")),
		LoginRateLimit:    intVar("XENOVA_LOGIN_RATE_LIMIT", 10),
		APIRateLimit:      intVar("XENOVA_API_RATE_LIMIT", 600),
		RateLimitWindow:   durationVar("XENOVA_RATE_LIMIT_WINDOW", time.Minute),
		KafkaBrokers:      splitList(os.Getenv("XENOVA_KAFKA_BROKERS")),
		KafkaUsageTopic:   envOrDefault("XENOVA_KAFKA_USAGE_TOPIC", "xenova.ai-usage"),
		ShutdownTimeout:   durationVar("XENOVA_SHUTDOWN_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: durationVar("XENOVA_READ_HEADER_TIMEOUT", 10*time.Second),
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.SessionSecret == "" {
		missing = append(missing, "XENOVA_SESSION_SECRET")
	}
	if c.AdminKey == "" {
		missing = append(missing, "XENOVA_ADMIN_KEY")
	}
	if c.DatabaseDriver == DriverPostgres && c.PostgresDSN == "" {
		missing = append(missing, "XENOVA_POSTGRES_DSN")
	}
	if c.DocumentStorage == StorageS3 && c.S3Bucket == "" {
		missing = append(missing, "XENOVA_S3_BUCKET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if len(c.SessionSecret) < 32 {
		return fmt.Errorf("XENOVA_SESSION_SECRET must be at least 32 characters")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("XENOVA_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("XENOVA_METRICS_PORT must be between 0 and 65535, got %d", c.MetricsPort)
	}
	if c.MetricsPort != 0 && c.MetricsPort == c.Port {
		return fmt.Errorf("XENOVA_METRICS_PORT must differ from XENOVA_PORT")
	}
	switch c.DocumentStorage {
	case StorageLocal, StorageS3:
	default:
		return fmt.Errorf("XENOVA_DOCUMENT_STORAGE must be %q or %q, got %q", StorageLocal, StorageS3, c.DocumentStorage)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("XENOVA_MAX_UPLOAD_MB must be greater than 0, got %d", c.MaxUploadMB)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("XENOVA_SESSION_TTL must be positive")
	}
	if c.AITimeout <= 0 {
		return fmt.Errorf("XENOVA_AI_TIMEOUT must be positive")
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("XENOVA_RATE_LIMIT_WINDOW must be positive")
	}
	return c.validateStore()
}

func (c *Config) validateStore() error {
	switch c.DatabaseDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.DataDir) == "" {
			return fmt.Errorf("XENOVA_DATA_DIR is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("missing required environment variables: XENOVA_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("XENOVA_DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DatabaseDriver)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) (int, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
		}
		return n, nil
	}
	return fallback, nil
}

func envOrDefaultDuration(key string, fallback time.Duration) (time.Duration, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
