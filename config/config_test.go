package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestLoadSQLiteTestMode(t *testing.T) {
	cfg, err := LoadFrom(lookupFrom(map[string]string{
		"STORE_DRIVER":                 "sqlite",
		"SQLITE_PATH":                  "/tmp/board.db",
		"AUTH0_TEST_MODE":              "1",
		"TEST_JWT_SECRET":              "secret",
		"FUNCTIONS_CUSTOMHANDLER_PORT": "7071",
		"CACHE_TTL":                    "30s",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr() != ":7071" {
		t.Fatalf("unexpected listen addr %s", cfg.ListenAddr())
	}
	if cfg.Redis.CacheTTL != 30*time.Second || cfg.Redis.DeduperTTL != 24*time.Hour {
		t.Fatalf("unexpected ttls %+v", cfg.Redis)
	}
	if !cfg.Auth.TestMode || cfg.SQLitePath != "/tmp/board.db" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadMissingStorage(t *testing.T) {
	_, err := LoadFrom(lookupFrom(map[string]string{"AUTH0_TEST_MODE": "1"}))
	if err == nil || !strings.Contains(err.Error(), "missing storage config") {
		t.Fatalf("expected missing storage error, got %v", err)
	}
}

func TestLoadMissingAuth(t *testing.T) {
	_, err := LoadFrom(lookupFrom(map[string]string{"STORE_DRIVER": "sqlite"}))
	if err == nil || !strings.Contains(err.Error(), "missing Auth0 config") {
		t.Fatalf("expected missing auth error, got %v", err)
	}
}

func TestLoadTestModeRequiresSecret(t *testing.T) {
	_, err := LoadFrom(lookupFrom(map[string]string{"STORE_DRIVER": "sqlite", "AUTH0_TEST_MODE": "true"}))
	if err == nil || !strings.Contains(err.Error(), "TEST_JWT_SECRET") {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	_, err := LoadFrom(lookupFrom(map[string]string{
		"STORE_DRIVER":    "sqlite",
		"AUTH0_TEST_MODE": "1",
		"DEDUPER_TTL":     "forever",
	}))
	if err == nil || !strings.Contains(err.Error(), "DEDUPER_TTL") {
		t.Fatalf("expected DEDUPER_TTL error, got %v", err)
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workboard.yaml")
	doc := `
storeDriver: aztables
tables:
  connectionString: UseDevelopmentStorage=true
  tasks: TasksFromFile
redis:
  cacheTTL: 2m
auth:
  domain: example.auth0.com
  audience: workboard
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadFrom(lookupFrom(map[string]string{
		"CONFIG_FILE": path,
		"TASKS_TABLE": "TasksFromEnv",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Tables.Tasks != "TasksFromEnv" {
		t.Fatalf("env must win over file, got %s", cfg.Tables.Tasks)
	}
	if cfg.Tables.Members != "Members" {
		t.Fatalf("defaults should survive the overlay, got %s", cfg.Tables.Members)
	}
	if cfg.Redis.CacheTTL != 2*time.Minute {
		t.Fatalf("unexpected cache ttl %v", cfg.Redis.CacheTTL)
	}
}

func TestRedisOptions(t *testing.T) {
	opts, err := RedisOptions("redis://:secret@localhost:6380/2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("unexpected options %+v", opts)
	}

	opts, err = RedisOptions("cache.redis.cache.windows.net:6380,password=abc=,ssl=True,abortConnect=False")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "cache.redis.cache.windows.net:6380" || opts.Password != "abc=" || opts.TLSConfig == nil {
		t.Fatalf("unexpected options %+v", opts)
	}

	if _, err := RedisOptions(""); err == nil {
		t.Fatalf("expected error for empty connection string")
	}
}
