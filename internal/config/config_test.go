package config

import (
	"os"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	os.Unsetenv("STORAGE_BACKEND")
	os.Setenv("REDIS_HOST", "localhost")
	os.Setenv("REDIS_PORT", "6379")
	os.Setenv("JWT_SECRET", "testsecret123456789012345678901234")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Storage.Backend != BackendMemory {
		t.Fatalf("default backend = %q, want %q", cfg.Storage.Backend, BackendMemory)
	}
	if cfg.Server.Port == "" || cfg.Redis.Host == "" {
		t.Fatalf("unexpected empty config values: %+v", cfg)
	}
}

func TestLoadConfigMongoBackend(t *testing.T) {
	os.Setenv("STORAGE_BACKEND", "mongo")
	os.Setenv("MONGODB_URI", "mongodb://localhost:27017/testdb")
	os.Setenv("MONGODB_DATABASE", "permitflow_test")
	defer os.Unsetenv("STORAGE_BACKEND")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.MongoDB.URI == "" || cfg.MongoDB.Database != "permitflow_test" {
		t.Fatalf("unexpected mongo config: %+v", cfg.MongoDB)
	}
}

func TestLoadConfigPostgresRequiresDSN(t *testing.T) {
	os.Setenv("STORAGE_BACKEND", "postgres")
	os.Unsetenv("POSTGRES_DSN")
	defer os.Unsetenv("STORAGE_BACKEND")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for postgres backend without DSN")
	}
}

func TestLoadConfigUnknownBackend(t *testing.T) {
	os.Setenv("STORAGE_BACKEND", "cassandra")
	defer os.Unsetenv("STORAGE_BACKEND")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
