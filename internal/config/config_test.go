package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	t.Setenv("CREWD_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gateway.Port != 17432 {
		t.Errorf("expected default gateway port 17432, got %d", cfg.Gateway.Port)
	}
	if cfg.Gateway.QueueCapacity != 100 {
		t.Errorf("expected default queue capacity 100, got %d", cfg.Gateway.QueueCapacity)
	}
	if cfg.Watchdog.HeartbeatTimeout != 2*time.Minute {
		t.Errorf("expected default heartbeat timeout 2m, got %v", cfg.Watchdog.HeartbeatTimeout)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crewd.yaml")
	content := `
gateway:
  port: 9000
store:
  path: /tmp/custom.db
watchdog:
  enabled: false
  sweep: "*/5 * * * *"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CREWD_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gateway.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Gateway.Port)
	}
	if cfg.Store.Path != "/tmp/custom.db" {
		t.Errorf("expected custom store path, got %q", cfg.Store.Path)
	}
	if cfg.Watchdog.Enabled {
		t.Error("expected watchdog disabled")
	}
	if cfg.Watchdog.Sweep != "*/5 * * * *" {
		t.Errorf("unexpected sweep: %q", cfg.Watchdog.Sweep)
	}
	// NATS keeps defaults when not set in file
	if cfg.NATS.Port != 4222 {
		t.Errorf("expected default nats port, got %d", cfg.NATS.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CREWD_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("CREWD_GATEWAY_PORT", "12345")
	t.Setenv("CREWD_STORE_PATH", "/tmp/env.db")
	t.Setenv("CREWD_VAULT_PASSPHRASE", "hunter2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gateway.Port != 12345 {
		t.Errorf("expected env port 12345, got %d", cfg.Gateway.Port)
	}
	if cfg.Store.Path != "/tmp/env.db" {
		t.Errorf("expected env store path, got %q", cfg.Store.Path)
	}
	if cfg.Vault.Passphrase != "hunter2" {
		t.Errorf("expected env passphrase, got %q", cfg.Vault.Passphrase)
	}
}
