// Package monitor samples OS-level memory and CPU usage for a
// supervised process and classifies each sample against configured
// thresholds. Severity drives the supervisor's restart decisions:
// CRITICAL and EMERGENCY are the only restart-worthy levels.
package monitor

import (
	"fmt"
	"time"
)

// Severity classifies a resource sample against the thresholds.
type Severity int

const (
	// SeverityNormal means usage is below the warning threshold.
	SeverityNormal Severity = iota

	// SeverityWarning means usage is elevated but not restart-worthy.
	SeverityWarning

	// SeverityCritical means usage crossed the critical threshold.
	SeverityCritical

	// SeverityEmergency means usage crossed the emergency threshold.
	SeverityEmergency
)

// String returns the severity name used in logs and status files.
func (s Severity) String() string {
	switch s {
	case SeverityNormal:
		return "NORMAL"
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	case SeverityEmergency:
		return "EMERGENCY"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Restartworthy reports whether the severity should trigger a restart.
func (s Severity) Restartworthy() bool {
	return s == SeverityCritical || s == SeverityEmergency
}

// MarshalText serializes the severity as its name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a severity name.
func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "NORMAL":
		*s = SeverityNormal
	case "WARNING":
		*s = SeverityWarning
	case "CRITICAL":
		*s = SeverityCritical
	case "EMERGENCY":
		*s = SeverityEmergency
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}

// Thresholds holds the memory classification boundaries in MB.
type Thresholds struct {
	// WarningMB is where NORMAL ends and WARNING begins.
	WarningMB float64 `toml:"warning_mb" json:"warning_mb"`

	// CriticalMB is where WARNING ends and CRITICAL begins.
	CriticalMB float64 `toml:"critical_mb" json:"critical_mb"`

	// EmergencyMB is where CRITICAL ends and EMERGENCY begins.
	EmergencyMB float64 `toml:"emergency_mb" json:"emergency_mb"`
}

// DefaultThresholds returns boundaries suited to an interactive AI
// coding session, which routinely grows past a gigabyte before it is
// in real trouble.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WarningMB:   2048,
		CriticalMB:  3072,
		EmergencyMB: 4096,
	}
}

// Validate checks that the boundaries are positive and ordered.
func (t Thresholds) Validate() error {
	if t.WarningMB < 1 {
		return fmt.Errorf("warning_mb must be >= 1, got %v", t.WarningMB)
	}
	if t.CriticalMB <= t.WarningMB {
		return fmt.Errorf("critical_mb (%v) must be > warning_mb (%v)", t.CriticalMB, t.WarningMB)
	}
	if t.EmergencyMB <= t.CriticalMB {
		return fmt.Errorf("emergency_mb (%v) must be > critical_mb (%v)", t.EmergencyMB, t.CriticalMB)
	}
	return nil
}

// Classify maps a memory reading to its severity level.
func (t Thresholds) Classify(currentMB float64) Severity {
	switch {
	case currentMB >= t.EmergencyMB:
		return SeverityEmergency
	case currentMB >= t.CriticalMB:
		return SeverityCritical
	case currentMB >= t.WarningMB:
		return SeverityWarning
	default:
		return SeverityNormal
	}
}

// Sample is one resource observation for a supervised process.
// Samples are ephemeral: produced continuously, never persisted.
type Sample struct {
	UnitID     string    `json:"unit_id"`
	PID        int       `json:"pid"`
	CurrentMB  float64   `json:"current_mb"`
	CPUPercent float64   `json:"cpu_percent"`
	Timestamp  time.Time `json:"timestamp"`
	Severity   Severity  `json:"severity"`
}
