/*
Package configs is responsible for loading and parsing the application's configuration settings.

Settings come from operating system environment variables; a .env file in the working directory,
when present, is loaded first without overriding variables that are already set.
*/
package configs

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Mute storage backends.
const (
	MuteBackendPostgres = "postgres"
	MuteBackendMongo    = "mongo"
)

// AppConfig contains all configuration parameters required for the application to run.
type AppConfig struct {
	// General Server Settings
	Environment string
	Port        int

	// Security Settings
	AllowedOrigins    []string
	JWTPublicKey      string
	InternalAPISecret string

	// Database Settings
	DatabaseDSN   string
	MuteBackend   string
	MongoURI      string
	MongoDatabase string
	RedisURL      string

	// Backend Services
	StatisticServiceURL  string
	FriendsServiceURL    string
	FriendsServiceSecret string
	BackendTimeout       time.Duration

	// Caches
	FriendsCacheTTL time.Duration
	MuteCacheTTL    time.Duration

	// Chat
	HistoryMaxMessages     int
	HistoryVisibleMessages int
	DefaultRooms           []string

	// S3 Storage Settings (moderation audit archive; disabled when the bucket is empty)
	S3BucketName      string
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3AuditPrefix     string
}

// IsDevelopment reports whether the service runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// AuditEnabled reports whether removed messages are archived to S3.
func (c *AppConfig) AuditEnabled() bool {
	return c.S3BucketName != ""
}

// DefaultRoomList is used when DEFAULT_ROOMS is not set.
var DefaultRoomList = []string{"W3C Lounge", "1 vs 1", "2 vs 2", "4 vs 4", "FFA", "Tournaments", "Clan Search"}

// LoadConfig reads and parses the application configuration from the environment.
// It provides default values for each configuration item and performs necessary type conversions and validation.
func LoadConfig() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return loadFromEnv()
}

func loadFromEnv() (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error

	// --- General Server Settings ---
	cfg.Environment = getString("ENVIRONMENT", "development")

	if cfg.Port, err = getInt("PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	// --- Security Settings ---
	cfg.AllowedOrigins = getList("ALLOWED_ORIGINS", []string{})

	cfg.JWTPublicKey = os.Getenv("JWT_PUBLIC_KEY")
	if cfg.JWTPublicKey == "" {
		return nil, fmt.Errorf("JWT_PUBLIC_KEY environment variable is required to validate identity tokens")
	}

	cfg.InternalAPISecret = os.Getenv("INTERNAL_API_SECRET")
	if cfg.InternalAPISecret == "" {
		if cfg.IsDevelopment() {
			cfg.InternalAPISecret = "dev_internal_secret_change_me"
		} else {
			return nil, fmt.Errorf("INTERNAL_API_SECRET environment variable is required in %s environment for security", cfg.Environment)
		}
	}

	// --- Database Settings ---
	// An empty DATABASE_URL in development keeps mutes, settings and blocks in memory.
	cfg.DatabaseDSN = os.Getenv("DATABASE_URL")
	if cfg.DatabaseDSN == "" && !cfg.IsDevelopment() {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required in %s environment", cfg.Environment)
	}

	cfg.MuteBackend = strings.ToLower(getString("MUTE_BACKEND", MuteBackendPostgres))
	switch cfg.MuteBackend {
	case MuteBackendPostgres:
	case MuteBackendMongo:
		cfg.MongoURI = os.Getenv("MONGO_URI")
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("MONGO_URI environment variable is required when MUTE_BACKEND=%s", MuteBackendMongo)
		}
	default:
		return nil, fmt.Errorf("invalid MUTE_BACKEND %q (want %s or %s)", cfg.MuteBackend, MuteBackendPostgres, MuteBackendMongo)
	}
	cfg.MongoDatabase = getString("MONGO_DATABASE", "W3Champions-Chat-Service")

	cfg.RedisURL = os.Getenv("REDIS_URL")

	// --- Backend Services ---
	cfg.StatisticServiceURL = getString("STATISTIC_SERVICE_URL", "https://statistic-service.test.w3champions.com")
	cfg.FriendsServiceURL = getString("FRIENDS_SERVICE_URL", cfg.StatisticServiceURL)
	cfg.FriendsServiceSecret = getString("FRIENDS_SERVICE_SECRET", cfg.InternalAPISecret)

	if cfg.BackendTimeout, err = getDuration("BACKEND_TIMEOUT", 3*time.Second); err != nil {
		return nil, err
	}

	// --- Caches ---
	if cfg.FriendsCacheTTL, err = getDuration("FRIENDS_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MuteCacheTTL, err = getDuration("MUTE_CACHE_TTL", 30*time.Second); err != nil {
		return nil, err
	}

	// --- Chat ---
	if cfg.HistoryMaxMessages, err = getInt("HISTORY_MAX_MESSAGES", 1000); err != nil {
		return nil, err
	}
	if cfg.HistoryVisibleMessages, err = getInt("HISTORY_VISIBLE_MESSAGES", 100); err != nil {
		return nil, err
	}
	if cfg.HistoryMaxMessages <= 0 || cfg.HistoryVisibleMessages <= 0 {
		return nil, fmt.Errorf("history sizes must be positive")
	}
	if cfg.HistoryVisibleMessages > cfg.HistoryMaxMessages {
		return nil, fmt.Errorf("HISTORY_VISIBLE_MESSAGES (%d) exceeds HISTORY_MAX_MESSAGES (%d)", cfg.HistoryVisibleMessages, cfg.HistoryMaxMessages)
	}
	cfg.DefaultRooms = getList("DEFAULT_ROOMS", DefaultRoomList)

	// --- S3 Storage Settings ---
	cfg.S3BucketName = os.Getenv("S3_BUCKET_NAME")
	cfg.S3Endpoint = os.Getenv("S3_ENDPOINT")
	cfg.S3Region = os.Getenv("S3_REGION")
	cfg.S3AccessKeyID = os.Getenv("S3_ACCESS_KEY_ID")
	cfg.S3SecretAccessKey = os.Getenv("S3_SECRET_ACCESS_KEY")
	cfg.S3AuditPrefix = getString("S3_AUDIT_PREFIX", "chat-moderation")
	if cfg.AuditEnabled() && (cfg.S3AccessKeyID == "" || cfg.S3SecretAccessKey == "") {
		return nil, fmt.Errorf("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY are required when S3_BUCKET_NAME is set")
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}

// getList splits a comma separated variable, dropping empty entries.
func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return fallback
	}

	var out []string
	for _, item := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
