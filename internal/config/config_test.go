package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_Valid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "medic.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Unit.Name != "claude" {
		t.Errorf("Unit.Name = %q, want default claude", cfg.Unit.Name)
	}
	if cfg.Monitor.WarningMB != 2048 {
		t.Errorf("WarningMB = %v, want default 2048", cfg.Monitor.WarningMB)
	}
}

func TestLoad_ParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medic.toml")
	content := `
[unit]
name = "claude-main"
command = ["claude", "--continue"]
working_dir = "/work/repo"

[monitor]
warning_mb = 1000
critical_mb = 2000
emergency_mb = 3000
interval_seconds = 2.5

[restart]
max_attempts = 5
initial_backoff_seconds = 2.0
max_backoff_seconds = 60.0
backoff_multiplier = 2.0
circuit_breaker_threshold = 3
circuit_breaker_window_seconds = 900
circuit_breaker_reset_seconds = 1800

[state]
dir = "/var/lib/medic"
capture_timeout_seconds = 5

[supervisor]
grace_seconds = 15
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Unit.Name != "claude-main" {
		t.Errorf("Unit.Name = %q", cfg.Unit.Name)
	}
	if len(cfg.Unit.Command) != 2 || cfg.Unit.Command[1] != "--continue" {
		t.Errorf("Command = %v", cfg.Unit.Command)
	}
	if cfg.Restart.MaxAttempts != 5 || cfg.Restart.BreakerThreshold != 3 {
		t.Errorf("restart config = %+v", cfg.Restart)
	}
	if got := cfg.Interval(); got != 2500*time.Millisecond {
		t.Errorf("Interval = %v, want 2.5s", got)
	}
	if got := cfg.Grace(); got != 15*time.Second {
		t.Errorf("Grace = %v, want 15s", got)
	}
	if got := cfg.CaptureTimeout(); got != 5*time.Second {
		t.Errorf("CaptureTimeout = %v, want 5s", got)
	}
	if cfg.StateDir() != "/var/lib/medic" {
		t.Errorf("StateDir = %q", cfg.StateDir())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MEDIC_STATE_DIR", "/tmp/medic-env")
	t.Setenv("MEDIC_UNIT", "env-unit")
	t.Setenv("MEDIC_WARNING_MB", "512")
	t.Setenv("MEDIC_MAX_ATTEMPTS", "3")

	cfg, err := Load(filepath.Join(t.TempDir(), "medic.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StateDir() != "/tmp/medic-env" {
		t.Errorf("StateDir = %q, want env override", cfg.StateDir())
	}
	if cfg.Unit.Name != "env-unit" {
		t.Errorf("Unit.Name = %q, want env override", cfg.Unit.Name)
	}
	if cfg.Monitor.WarningMB != 512 {
		t.Errorf("WarningMB = %v, want 512", cfg.Monitor.WarningMB)
	}
	if cfg.Restart.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.Restart.MaxAttempts)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medic.toml")
	content := `
[restart]
max_attempts = 0
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for max_attempts = 0")
	}
}

func TestLoad_RejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medic.toml")
	if err := os.WriteFile(path, []byte("[unit\nname = "), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestConfig_PathLayout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.State.Dir = "/srv/medic"

	unitDir := cfg.UnitDir("Claude Main!")
	if unitDir != "/srv/medic/units/claude-main" {
		t.Errorf("UnitDir = %q", unitDir)
	}
	paths := map[string]string{
		"status":  cfg.StatusFile("Claude Main!"),
		"pid":     cfg.PIDFile("Claude Main!"),
		"lock":    cfg.LockFile("Claude Main!"),
		"history": cfg.HistoryFile("Claude Main!"),
		"log":     cfg.LogFile("Claude Main!"),
	}
	for name, p := range paths {
		if filepath.Dir(p) != unitDir && filepath.Dir(filepath.Dir(p)) != unitDir {
			t.Errorf("%s path %q not under unit dir %q", name, p, unitDir)
		}
	}
	if got := cfg.SnapshotsDir("Claude Main!"); got != filepath.Join(unitDir, "snapshots") {
		t.Errorf("SnapshotsDir = %q", got)
	}
}

func TestValidate_Thresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Monitor.CriticalMB = cfg.Monitor.WarningMB
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when critical equals warning")
	}
}
