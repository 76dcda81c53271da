package config

import (
	"testing"
	"time"
)

var allEnvVars = []string{
	"TAGRULES_DATABASE_URL", "TAGRULES_GRPC_ADDR", "TAGRULES_HTTP_ADDR",
	"TAGRULES_NATS_URL", "TAGRULES_REDIS_URL", "TAGRULES_AUTH_TOKEN",
	"TAGRULES_INSTANCE_ID", "TAGRULES_PRESENCE_TTL",
	"TAGRULES_SYNC_INTERVAL", "TAGRULES_SYNC_S3_BUCKET", "TAGRULES_SYNC_S3_ENDPOINT",
	"TAGRULES_SYNC_S3_REGION", "TAGRULES_SYNC_S3_KEY", "TAGRULES_SYNC_GIT_REPO",
	"TAGRULES_SYNC_GIT_FILE", "TAGRULES_SYNC_GIT_BRANCH",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	for _, tc := range []struct {
		name        string
		env         map[string]string
		wantErr     bool
		wantBackend string
		wantTarget  string
		wantGRPC    string
		wantHTTP    string
		wantNATS    string
		wantRedis   string
	}{
		{
			name:        "Defaults",
			env:         map[string]string{},
			wantBackend: BackendSQLite,
			wantTarget:  "tagrules.db",
			wantGRPC:    ":9090",
			wantHTTP:    ":8080",
		},
		{
			name: "Postgres",
			env: map[string]string{
				"TAGRULES_DATABASE_URL": "postgres://db:5432/tagrules",
				"TAGRULES_GRPC_ADDR":    ":5050",
				"TAGRULES_HTTP_ADDR":    ":3000",
				"TAGRULES_NATS_URL":     "nats://localhost:4222",
				"TAGRULES_REDIS_URL":    "redis://localhost:6379/0",
			},
			wantBackend: BackendPostgres,
			wantTarget:  "postgres://db:5432/tagrules",
			wantGRPC:    ":5050",
			wantHTTP:    ":3000",
			wantNATS:    "nats://localhost:4222",
			wantRedis:   "redis://localhost:6379/0",
		},
		{
			name:        "SQLitePath",
			env:         map[string]string{"TAGRULES_DATABASE_URL": "sqlite:///var/lib/tagrules/rules.db"},
			wantBackend: BackendSQLite,
			wantTarget:  "/var/lib/tagrules/rules.db",
			wantGRPC:    ":9090",
			wantHTTP:    ":8080",
		},
		{
			name:    "EmptySQLitePath",
			env:     map[string]string{"TAGRULES_DATABASE_URL": "sqlite://"},
			wantErr: true,
		},
		{
			name:    "UnknownScheme",
			env:     map[string]string{"TAGRULES_DATABASE_URL": "mysql://db/tagrules"},
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			backend, target, _ := cfg.Backend()
			if backend != tc.wantBackend || target != tc.wantTarget {
				t.Errorf("Backend() = %q, %q; want %q, %q", backend, target, tc.wantBackend, tc.wantTarget)
			}
			if cfg.GRPCAddr != tc.wantGRPC {
				t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, tc.wantGRPC)
			}
			if cfg.HTTPAddr != tc.wantHTTP {
				t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, tc.wantHTTP)
			}
			if cfg.NATSURL != tc.wantNATS {
				t.Errorf("NATSURL = %q, want %q", cfg.NATSURL, tc.wantNATS)
			}
			if cfg.RedisURL != tc.wantRedis {
				t.Errorf("RedisURL = %q, want %q", cfg.RedisURL, tc.wantRedis)
			}
			if cfg.InstanceID == "" {
				t.Error("InstanceID should default to the hostname")
			}
		})
	}
}

func TestLoadDurations(t *testing.T) {
	clearAllEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SyncInterval != 3*time.Minute {
		t.Errorf("SyncInterval = %v, want 3m", cfg.SyncInterval)
	}
	if cfg.PresenceTTL != 15*time.Minute {
		t.Errorf("PresenceTTL = %v, want 15m", cfg.PresenceTTL)
	}

	t.Setenv("TAGRULES_SYNC_INTERVAL", "0s")
	t.Setenv("TAGRULES_PRESENCE_TTL", "90s")
	if cfg, err = Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SyncInterval != 0 || cfg.PresenceTTL != 90*time.Second {
		t.Errorf("got SyncInterval=%v PresenceTTL=%v", cfg.SyncInterval, cfg.PresenceTTL)
	}

	for _, key := range []string{"TAGRULES_SYNC_INTERVAL", "TAGRULES_PRESENCE_TTL"} {
		t.Run(key, func(t *testing.T) {
			clearAllEnv(t)
			t.Setenv(key, "not-a-duration")
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for invalid %s", key)
			}
		})
	}
}

func TestLoadSyncSettings(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("TAGRULES_SYNC_S3_BUCKET", "my-bucket")
	t.Setenv("TAGRULES_SYNC_S3_ENDPOINT", "http://minio:9000")
	t.Setenv("TAGRULES_SYNC_S3_REGION", "eu-west-1")
	t.Setenv("TAGRULES_SYNC_S3_KEY", "custom/rules.json")
	t.Setenv("TAGRULES_SYNC_GIT_REPO", "/tmp/repo")
	t.Setenv("TAGRULES_SYNC_GIT_BRANCH", "backup")
	t.Setenv("TAGRULES_INSTANCE_ID", "node-7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SyncS3Bucket != "my-bucket" || cfg.SyncS3Endpoint != "http://minio:9000" ||
		cfg.SyncS3Region != "eu-west-1" || cfg.SyncS3Key != "custom/rules.json" {
		t.Errorf("unexpected S3 settings: %+v", cfg)
	}
	if cfg.SyncGitRepo != "/tmp/repo" || cfg.SyncGitFile != "rules.json" || cfg.SyncGitBranch != "backup" {
		t.Errorf("unexpected git settings: %+v", cfg)
	}
	if cfg.InstanceID != "node-7" {
		t.Errorf("InstanceID = %q", cfg.InstanceID)
	}
}

func TestEnvOrDefault(t *testing.T) {
	for _, tc := range []struct {
		name     string
		key      string
		envVal   string
		fallback string
		want     string
	}{
		{"EmptyUsesDefault", "TEST_ENVDEFAULT_EMPTY", "", "default-val", "default-val"},
		{"SetUsesEnv", "TEST_ENVDEFAULT_SET", "custom", "default-val", "custom"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.envVal)
			if got := envOrDefault(tc.key, tc.fallback); got != tc.want {
				t.Errorf("envOrDefault(%q, %q) = %q, want %q", tc.key, tc.fallback, got, tc.want)
			}
		})
	}
}
