package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "SERVER_PORT=9090\nMAX_BATCH_SIZE=50\nDB_HOST=pg.internal\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfig(envPath)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Fatalf("expected overridden port 9090, got %s", cfg.Server.Port)
	}
	if cfg.MaxBatchSize != 50 {
		t.Fatalf("expected MAX_BATCH_SIZE=50, got %d", cfg.MaxBatchSize)
	}
	if cfg.Postgres.Host != "pg.internal" {
		t.Fatalf("expected overridden DB_HOST, got %s", cfg.Postgres.Host)
	}
	if cfg.Postgres.SSLMode != "disable" {
		t.Fatalf("expected default DB_SSLMODE=disable, got %s", cfg.Postgres.SSLMode)
	}
	if cfg.WorkerPoolSize != 8 {
		t.Fatalf("expected default WORKER_POOL_SIZE=8, got %d", cfg.WorkerPoolSize)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatalf("expected an error for a missing .env file")
	}
}
