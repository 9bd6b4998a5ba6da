package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taskd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("TASKD_TEST_TOKEN", "s3cret")

	path := writeConfig(t, `
version: "1"
log:
  level: debug
  format: json
database:
  driver: postgres
  dsn: "host=db password=${TASKD_TEST_DB_PASS:-pw}"
scheduler:
  fallback_delay: 45s
shutdown:
  transport: websocket
  endpoint: ws://127.0.0.1:9000/events
gateway:
  bind: 127.0.0.1:8090
  auth:
    bearer_token: ${TASKD_TEST_TOKEN}
jobs:
  vacuum:
    kind: sql_exec
    interval: 1h
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Database.DSN != "host=db password=pw" {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
	if cfg.Scheduler.FallbackDelay != 45*time.Second {
		t.Errorf("fallback = %v", cfg.Scheduler.FallbackDelay)
	}
	if cfg.Shutdown.Transport != "websocket" {
		t.Errorf("transport = %q", cfg.Shutdown.Transport)
	}
	if cfg.Gateway.Auth.BearerToken != "s3cret" {
		t.Errorf("token = %q", cfg.Gateway.Auth.BearerToken)
	}
	node := cfg.Jobs["vacuum"]
	if JobKind(&node) != "sql_exec" {
		t.Errorf("vacuum kind = %q", JobKind(&node))
	}
}

func TestLoad_UnresolvedVariable(t *testing.T) {
	path := writeConfig(t, "version: \"1\"\ngateway:\n  bind: ${TASKD_TEST_MISSING_VAR}\n")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "TASKD_TEST_MISSING_VAR") {
		t.Errorf("expected unresolved variable error, got %v", err)
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "version: \"1\"\nmodules: {}\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown top-level key")
	}
}

func TestLoad_Empty(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Validate(cfg); err == nil {
		t.Error("empty config must not validate")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error")
	}
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	if got, err := ResolvePath("/etc/taskd.yaml"); err != nil || got != "/etc/taskd.yaml" {
		t.Errorf("explicit = %q, %v", got, err)
	}

	want := filepath.Join(dir, "taskd", "taskd.yaml")
	if err := os.MkdirAll(filepath.Dir(want), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(want, []byte("version: \"1\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got, err := ResolvePath(""); err != nil || got != want {
		t.Errorf("ResolvePath = %q, %v, want %q", got, err, want)
	}
}

func TestDefaultDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/xdg/data")
	if got := DefaultDataDir(); got != "/xdg/data/taskd" {
		t.Errorf("DefaultDataDir = %q", got)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TASKD_TEST_HOST", "db.internal")
	t.Setenv("TASKD_TEST_EMPTY", "")

	tests := []struct {
		in      string
		want    string
		wantErr string
	}{
		{in: "host: ${TASKD_TEST_HOST}", want: "host: db.internal"},
		{in: "host: ${TASKD_TEST_UNSET:-localhost}", want: "host: localhost"},
		{in: "host: ${TASKD_TEST_UNSET:-}", want: "host: "},
		{in: "v: ${TASKD_TEST_EMPTY:-fallback}", want: "v: "},
		{in: "literal: $${TASKD_TEST_HOST}", want: "literal: ${TASKD_TEST_HOST}"},
		{in: "a: ${TASKD_TEST_A}\nb: ${TASKD_TEST_B}\nc: ${TASKD_TEST_A}", wantErr: "unresolved variables: TASKD_TEST_A, TASKD_TEST_B"},
	}

	for _, tt := range tests {
		got, err := expandEnv([]byte(tt.in))
		if tt.wantErr != "" {
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("expandEnv(%q) error = %v, want %q", tt.in, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("expandEnv(%q): %v", tt.in, err)
			continue
		}
		if string(got) != tt.want {
			t.Errorf("expandEnv(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
