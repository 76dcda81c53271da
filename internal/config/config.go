// Package config loads the tagrules server configuration from the
// environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Storage backends accepted in TAGRULES_DATABASE_URL.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

const sqliteScheme = "sqlite://"

type Config struct {
	DatabaseURL string // TAGRULES_DATABASE_URL (postgres URL or sqlite://path; default "sqlite://tagrules.db")
	GRPCAddr    string // TAGRULES_GRPC_ADDR (default ":9090")
	HTTPAddr    string // TAGRULES_HTTP_ADDR (default ":8080")
	NATSURL     string // TAGRULES_NATS_URL (optional, empty = no events)
	RedisURL    string // TAGRULES_REDIS_URL (optional, empty = no snapshot cache)
	AuthToken   string // TAGRULES_AUTH_TOKEN (optional, empty = auth disabled)
	InstanceID  string // TAGRULES_INSTANCE_ID (default: hostname)

	// Presence
	PresenceTTL time.Duration // TAGRULES_PRESENCE_TTL (default 15m): idle threshold for editors

	// Sync settings
	SyncInterval   time.Duration // TAGRULES_SYNC_INTERVAL (default 3m; 0 = disabled)
	SyncS3Bucket   string        // TAGRULES_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // TAGRULES_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // TAGRULES_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // TAGRULES_SYNC_S3_KEY (default "tagrules/rules.json")
	SyncGitRepo    string        // TAGRULES_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        // TAGRULES_SYNC_GIT_FILE (default "rules.json")
	SyncGitBranch  string        // TAGRULES_SYNC_GIT_BRANCH (default "main")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:    envOrDefault("TAGRULES_DATABASE_URL", sqliteScheme+"tagrules.db"),
		GRPCAddr:       envOrDefault("TAGRULES_GRPC_ADDR", ":9090"),
		HTTPAddr:       envOrDefault("TAGRULES_HTTP_ADDR", ":8080"),
		NATSURL:        os.Getenv("TAGRULES_NATS_URL"),
		RedisURL:       os.Getenv("TAGRULES_REDIS_URL"),
		AuthToken:      os.Getenv("TAGRULES_AUTH_TOKEN"),
		InstanceID:     os.Getenv("TAGRULES_INSTANCE_ID"),
		SyncS3Bucket:   os.Getenv("TAGRULES_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("TAGRULES_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("TAGRULES_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      envOrDefault("TAGRULES_SYNC_S3_KEY", "tagrules/rules.json"),
		SyncGitRepo:    os.Getenv("TAGRULES_SYNC_GIT_REPO"),
		SyncGitFile:    envOrDefault("TAGRULES_SYNC_GIT_FILE", "rules.json"),
		SyncGitBranch:  envOrDefault("TAGRULES_SYNC_GIT_BRANCH", "main"),
	}
	if _, _, err := c.Backend(); err != nil {
		return nil, err
	}
	if c.InstanceID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "tagrules"
		}
		c.InstanceID = host
	}

	var err error
	if c.SyncInterval, err = durationEnv("TAGRULES_SYNC_INTERVAL", "3m"); err != nil {
		return nil, err
	}
	if c.PresenceTTL, err = durationEnv("TAGRULES_PRESENCE_TTL", "15m"); err != nil {
		return nil, err
	}
	return c, nil
}

// Backend splits DatabaseURL into a backend name and the DSN or file path
// to open it with.
func (c *Config) Backend() (backend, target string, err error) {
	switch {
	case strings.HasPrefix(c.DatabaseURL, sqliteScheme):
		path := strings.TrimPrefix(c.DatabaseURL, sqliteScheme)
		if path == "" {
			return "", "", fmt.Errorf("TAGRULES_DATABASE_URL: sqlite path is empty")
		}
		return BackendSQLite, path, nil
	case strings.HasPrefix(c.DatabaseURL, "postgres://"), strings.HasPrefix(c.DatabaseURL, "postgresql://"):
		return BackendPostgres, c.DatabaseURL, nil
	default:
		return "", "", fmt.Errorf("TAGRULES_DATABASE_URL: unsupported scheme in %q", c.DatabaseURL)
	}
}

func durationEnv(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
