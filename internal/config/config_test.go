package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `platform: linux
log_level: debug
boot_records: false
command_timeout: 30s
capture_dir: /tmp/captures
commands:
  lshw: /opt/lshw/bin/lshw
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Platform != "linux" {
		t.Errorf("expected platform linux, got %s", cfg.Platform)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.LogLevel)
	}
	if cfg.BootRecordsEnabled() {
		t.Error("expected boot records disabled")
	}
	if cfg.CommandTimeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %s", cfg.CommandTimeout)
	}
	if cfg.CaptureDir != "/tmp/captures" {
		t.Errorf("expected capture dir /tmp/captures, got %s", cfg.CaptureDir)
	}
	if cfg.Commands["lshw"] != "/opt/lshw/bin/lshw" {
		t.Errorf("expected lshw override, got %v", cfg.Commands)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log_level: \"\"\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Platform != "auto" {
		t.Errorf("expected platform auto, got %s", cfg.Platform)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.LogLevel)
	}
	if !cfg.BootRecordsEnabled() {
		t.Error("expected boot records enabled by default")
	}
	if cfg.CommandTimeout != 10*time.Second {
		t.Errorf("expected 10s timeout, got %s", cfg.CommandTimeout)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
	if _, err := Load(writeConfig(t, "platform: [linux\n")); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestCommandPaths(t *testing.T) {
	t.Setenv("RESOURCEPATH", "/opt/disktopo")

	cfg := Default()
	cfg.Commands["smartctl"] = "/usr/local/sbin/smartctl"

	paths := cfg.CommandPaths()
	if paths["blkid"] != filepath.Join("/opt/disktopo", "bin", "blkid") {
		t.Errorf("expected blkid under RESOURCEPATH, got %s", paths["blkid"])
	}
	if paths["smartctl"] != "/usr/local/sbin/smartctl" {
		t.Errorf("expected explicit override to win, got %s", paths["smartctl"])
	}
	if _, ok := paths["lshw"]; ok {
		t.Error("lshw is not bundled and should not be overridden")
	}
}
