// Package config loads and validates medic configuration: a TOML file
// layered under MEDIC_* environment overrides, plus the path layout
// for per-unit state on disk.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/steveyegge/medic/internal/monitor"
	"github.com/steveyegge/medic/internal/restart"
	"github.com/steveyegge/medic/internal/util"
)

// ConfigFileName is the file medic looks for in the working directory
// and under the state dir.
const ConfigFileName = "medic.toml"

// defaultDirName is the state root under $HOME when state.dir is not
// configured.
const defaultDirName = ".medic"

// Config is the full medic configuration.
type Config struct {
	Unit struct {
		// Name identifies the supervised unit; it becomes the unit
		// directory slug.
		Name string `toml:"name"`

		// Command is the argv to supervise.
		Command []string `toml:"command"`

		// WorkingDir for the subprocess. Empty inherits medic's.
		WorkingDir string `toml:"working_dir"`
	} `toml:"unit"`

	Monitor struct {
		WarningMB       float64 `toml:"warning_mb"`
		CriticalMB      float64 `toml:"critical_mb"`
		EmergencyMB     float64 `toml:"emergency_mb"`
		IntervalSeconds float64 `toml:"interval_seconds"`
	} `toml:"monitor"`

	Restart restart.Config `toml:"restart"`

	State struct {
		// Dir is the state root. Empty resolves to ~/.medic.
		Dir string `toml:"dir"`

		// CaptureTimeoutSeconds bounds snapshot capture.
		CaptureTimeoutSeconds float64 `toml:"capture_timeout_seconds"`
	} `toml:"state"`

	Supervisor struct {
		// GraceSeconds is how long a subprocess gets between SIGTERM
		// and SIGKILL.
		GraceSeconds float64 `toml:"grace_seconds"`
	} `toml:"supervisor"`
}

// DefaultConfig returns the configuration used when no file is
// present.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Unit.Name = "claude"
	cfg.Unit.Command = []string{"claude"}

	th := monitor.DefaultThresholds()
	cfg.Monitor.WarningMB = th.WarningMB
	cfg.Monitor.CriticalMB = th.CriticalMB
	cfg.Monitor.EmergencyMB = th.EmergencyMB
	cfg.Monitor.IntervalSeconds = 30

	cfg.Restart = restart.DefaultConfig()
	cfg.State.CaptureTimeoutSeconds = 10
	cfg.Supervisor.GraceSeconds = 10
	return cfg
}

// Load reads a config file over the defaults and applies environment
// overrides. A missing file is not an error: defaults plus overrides
// are returned. The result is validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		} else if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile checks the working directory, then the state root.
func findConfigFile() string {
	if _, err := os.Stat(ConfigFileName); err == nil {
		return ConfigFileName
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, defaultDirName, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// applyEnvOverrides layers MEDIC_* variables over the loaded config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MEDIC_STATE_DIR"); v != "" {
		cfg.State.Dir = v
	}
	if v := os.Getenv("MEDIC_UNIT"); v != "" {
		cfg.Unit.Name = v
	}
	envFloat("MEDIC_WARNING_MB", &cfg.Monitor.WarningMB)
	envFloat("MEDIC_CRITICAL_MB", &cfg.Monitor.CriticalMB)
	envFloat("MEDIC_EMERGENCY_MB", &cfg.Monitor.EmergencyMB)
	envFloat("MEDIC_INTERVAL_SECONDS", &cfg.Monitor.IntervalSeconds)
	envInt("MEDIC_MAX_ATTEMPTS", &cfg.Restart.MaxAttempts)
	envFloat("MEDIC_GRACE_SECONDS", &cfg.Supervisor.GraceSeconds)
	envFloat("MEDIC_CAPTURE_TIMEOUT_SECONDS", &cfg.State.CaptureTimeoutSeconds)
}

func envFloat(name string, dst *float64) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	var parsed float64
	if _, err := fmt.Sscanf(v, "%g", &parsed); err == nil {
		*dst = parsed
	}
}

func envInt(name string, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	var parsed int
	if _, err := fmt.Sscanf(v, "%d", &parsed); err == nil {
		*dst = parsed
	}
}

// Validate checks the whole configuration. Errors here are fatal at
// startup, before any subprocess is launched.
func (c *Config) Validate() error {
	if c.Unit.Name == "" {
		return fmt.Errorf("unit.name must not be empty")
	}
	if len(c.Unit.Command) == 0 {
		return fmt.Errorf("unit.command must not be empty")
	}
	if err := c.Thresholds().Validate(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	if c.Monitor.IntervalSeconds < 1 {
		return fmt.Errorf("monitor.interval_seconds must be >= 1, got %v", c.Monitor.IntervalSeconds)
	}
	if err := c.Restart.Validate(); err != nil {
		return fmt.Errorf("restart: %w", err)
	}
	if c.State.CaptureTimeoutSeconds < 1 {
		return fmt.Errorf("state.capture_timeout_seconds must be >= 1, got %v", c.State.CaptureTimeoutSeconds)
	}
	if c.Supervisor.GraceSeconds < 1 {
		return fmt.Errorf("supervisor.grace_seconds must be >= 1, got %v", c.Supervisor.GraceSeconds)
	}
	return nil
}

// Thresholds returns the monitor thresholds.
func (c *Config) Thresholds() monitor.Thresholds {
	return monitor.Thresholds{
		WarningMB:   c.Monitor.WarningMB,
		CriticalMB:  c.Monitor.CriticalMB,
		EmergencyMB: c.Monitor.EmergencyMB,
	}
}

// Interval returns the sampling interval.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Monitor.IntervalSeconds * float64(time.Second))
}

// Grace returns the termination grace period.
func (c *Config) Grace() time.Duration {
	return time.Duration(c.Supervisor.GraceSeconds * float64(time.Second))
}

// CaptureTimeout bounds snapshot capture.
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.State.CaptureTimeoutSeconds * float64(time.Second))
}

// StateDir resolves the state root.
func (c *Config) StateDir() string {
	if c.State.Dir != "" {
		return c.State.Dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultDirName
	}
	return filepath.Join(home, defaultDirName)
}

// UnitDir is the per-unit state directory.
func (c *Config) UnitDir(unit string) string {
	return filepath.Join(c.StateDir(), "units", util.UnitSlug(unit))
}

// SnapshotsDir holds the unit's snapshot files.
func (c *Config) SnapshotsDir(unit string) string {
	return filepath.Join(c.UnitDir(unit), "snapshots")
}

// LogsDir holds the unit's log files.
func (c *Config) LogsDir(unit string) string {
	return filepath.Join(c.UnitDir(unit), "logs")
}

// LogFile is the supervisor log for the unit.
func (c *Config) LogFile(unit string) string {
	return filepath.Join(c.LogsDir(unit), "medic.log")
}

// StatusFile is where the supervisor publishes its status.
func (c *Config) StatusFile(unit string) string {
	return filepath.Join(c.UnitDir(unit), "status.json")
}

// PIDFile records the running supervisor's pid.
func (c *Config) PIDFile(unit string) string {
	return filepath.Join(c.UnitDir(unit), "supervisor.pid")
}

// LockFile is the per-unit exclusivity lock.
func (c *Config) LockFile(unit string) string {
	return filepath.Join(c.UnitDir(unit), "supervisor.lock")
}

// HistoryFile is the persisted restart history.
func (c *Config) HistoryFile(unit string) string {
	return filepath.Join(c.UnitDir(unit), "restart_history.json")
}
