// Package restart decides whether and when a supervised unit may be
// relaunched. It tracks per-unit restart attempts, enforces exponential
// backoff, and guards against crash loops with a three-state circuit
// breaker (CLOSED, OPEN, HALF_OPEN).
package restart

import (
	"fmt"
	"time"
)

// BreakerState is the circuit-breaker state for a single unit.
type BreakerState string

const (
	// BreakerClosed allows restarts normally.
	BreakerClosed BreakerState = "CLOSED"

	// BreakerOpen blocks restarts after too many recent failures.
	BreakerOpen BreakerState = "OPEN"

	// BreakerHalfOpen allows a single trial restart after the cooldown.
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// Terminal denial reasons surfaced by ShouldRestart. The supervisor
// reports these verbatim when it stops supervising a unit.
const (
	ReasonMaxAttempts = "maximum restart attempts reached"
	ReasonBreakerOpen = "circuit breaker open"
)

// Attempt is one recorded restart attempt. Immutable once recorded.
type Attempt struct {
	// Timestamp is when the attempt was recorded.
	Timestamp time.Time `json:"timestamp"`

	// Success reports whether the relaunch itself succeeded.
	Success bool `json:"success"`

	// FailureReason describes why the relaunch failed (empty on success).
	FailureReason string `json:"failure_reason,omitempty"`
}

// History tracks restart information for a single unit.
// It is owned by Policy and persisted to disk to survive supervisor restarts.
type History struct {
	// UnitID is the supervised unit identifier.
	UnitID string `json:"unit_id"`

	// Attempts is the append-only sequence of restart attempts.
	Attempts []Attempt `json:"attempts"`

	// Breaker is the current circuit-breaker state.
	Breaker BreakerState `json:"circuit_breaker_state"`

	// WindowStart is when the current failure window began (nil when unset).
	WindowStart *time.Time `json:"last_failure_window_start,omitempty"`

	// WindowFailures counts failures recorded inside the current window.
	WindowFailures int `json:"window_failures"`
}

// clone returns a deep copy safe to hand to callers.
func (h *History) clone() *History {
	c := *h
	c.Attempts = append([]Attempt(nil), h.Attempts...)
	if h.WindowStart != nil {
		ws := *h.WindowStart
		c.WindowStart = &ws
	}
	return &c
}

// Config holds the restart policy tuning knobs.
// It is immutable once handed to New; Validate runs at construction,
// not on every call.
type Config struct {
	// MaxAttempts is the lifetime cap on restart attempts per unit.
	MaxAttempts int `toml:"max_attempts" json:"max_attempts"`

	// InitialBackoff is the delay in seconds before the second attempt.
	// The first attempt is never delayed.
	InitialBackoff float64 `toml:"initial_backoff_seconds" json:"initial_backoff_seconds"`

	// MaxBackoff caps the backoff delay in seconds.
	MaxBackoff float64 `toml:"max_backoff_seconds" json:"max_backoff_seconds"`

	// BackoffMultiplier is the exponential growth factor.
	BackoffMultiplier float64 `toml:"backoff_multiplier" json:"backoff_multiplier"`

	// BreakerThreshold is the number of failures within the window that
	// trips the circuit breaker.
	BreakerThreshold int `toml:"circuit_breaker_threshold" json:"circuit_breaker_threshold"`

	// BreakerWindow is the failure-counting window in seconds.
	BreakerWindow int `toml:"circuit_breaker_window_seconds" json:"circuit_breaker_window_seconds"`

	// BreakerReset is the cooldown in seconds after which an OPEN breaker
	// transitions to HALF_OPEN.
	BreakerReset int `toml:"circuit_breaker_reset_seconds" json:"circuit_breaker_reset_seconds"`
}

// DefaultConfig returns the stock policy tuning.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       10,
		InitialBackoff:    30,
		MaxBackoff:        600,
		BackoffMultiplier: 2.0,
		BreakerThreshold:  5,
		BreakerWindow:     900,
		BreakerReset:      1800,
	}
}

// Validate checks the configuration for values that would make the
// policy misbehave. Called once at construction.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1, got %d", c.MaxAttempts)
	}
	if c.InitialBackoff < 0 {
		return fmt.Errorf("initial_backoff_seconds must be >= 0, got %v", c.InitialBackoff)
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max_backoff_seconds (%v) must be >= initial_backoff_seconds (%v)",
			c.MaxBackoff, c.InitialBackoff)
	}
	if c.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be >= 1, got %v", c.BackoffMultiplier)
	}
	if c.BreakerThreshold < 1 {
		return fmt.Errorf("circuit_breaker_threshold must be >= 1, got %d", c.BreakerThreshold)
	}
	if c.BreakerWindow < 1 {
		return fmt.Errorf("circuit_breaker_window_seconds must be >= 1, got %d", c.BreakerWindow)
	}
	if c.BreakerReset < 1 {
		return fmt.Errorf("circuit_breaker_reset_seconds must be >= 1, got %d", c.BreakerReset)
	}
	return nil
}

// WindowDuration returns the failure window as a time.Duration.
func (c Config) WindowDuration() time.Duration {
	return time.Duration(c.BreakerWindow) * time.Second
}

// ResetDuration returns the breaker cooldown as a time.Duration.
func (c Config) ResetDuration() time.Duration {
	return time.Duration(c.BreakerReset) * time.Second
}
