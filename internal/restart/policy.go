package restart

import (
	"io"
	"log"
	"sync"
	"time"
)

// Policy answers "should this unit be restarted now?" and records the
// outcome of each relaunch. Histories are created lazily per unit and
// live in memory; attach a state file with NewWithStateFile to survive
// supervisor restarts.
//
// All methods are safe for concurrent use. A single mutex guards the
// history map; read-modify-write sequences (backoff calculation,
// attempt recording, breaker transitions) hold it for their full
// duration so no updates are lost.
type Policy struct {
	cfg    Config
	logger *log.Logger

	mu    sync.RWMutex
	units map[string]*History

	// statePath is the optional JSON persistence file ("" = memory only).
	statePath string
}

// New creates an in-memory Policy. Returns an error if cfg is invalid.
// A nil logger discards policy log output.
func New(cfg Config, logger *log.Logger) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Policy{
		cfg:    cfg,
		logger: logger,
		units:  make(map[string]*History),
	}, nil
}

// NewWithStateFile creates a Policy that persists its histories to
// statePath as indented JSON. Existing state is loaded immediately;
// a missing file is not an error.
func NewWithStateFile(cfg Config, logger *log.Logger, statePath string) (*Policy, error) {
	p, err := New(cfg, logger)
	if err != nil {
		return nil, err
	}
	p.statePath = statePath
	if err := p.Load(); err != nil {
		return nil, err
	}
	return p, nil
}

// Config returns the policy configuration.
func (p *Policy) Config() Config {
	return p.cfg
}

// ShouldRestart reports whether the unit may be restarted now, with a
// denial reason when not. The attempt cap dominates: once a unit has
// reached MaxAttempts recorded attempts the answer is no regardless of
// breaker state. An OPEN breaker also denies; CLOSED and HALF_OPEN
// allow (HALF_OPEN permits the trial restart).
//
// The breaker cooldown check runs first, so a unit whose cooldown has
// elapsed is answered in its HALF_OPEN state without a separate
// CheckBreakerReset call.
func (p *Policy) ShouldRestart(unitID string) (bool, string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	hist := p.units[unitID]
	if hist == nil {
		// No history yet - allow restart
		return true, ""
	}

	if p.checkResetLocked(hist, time.Now()) {
		p.saveLocked()
	}

	if len(hist.Attempts) >= p.cfg.MaxAttempts {
		return false, ReasonMaxAttempts
	}
	if hist.Breaker == BreakerOpen {
		return false, ReasonBreakerOpen
	}
	return true, ""
}

// Backoff returns the delay to observe before the unit's next restart
// attempt. The first attempt (no history) gets zero delay; attempt N
// gets initial * multiplier^(N-1) seconds capped at the maximum.
//
// Backoff must be read, and its delay observed, before RecordAttempt is
// called for the same attempt: the count used here is the count prior
// to recording.
func (p *Policy) Backoff(unitID string) time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	hist := p.units[unitID]
	if hist == nil {
		return 0
	}
	return p.backoffForCount(len(hist.Attempts))
}

// backoffForCount computes the backoff for a given prior attempt count.
func (p *Policy) backoffForCount(count int) time.Duration {
	if count == 0 {
		return 0
	}
	seconds := p.cfg.InitialBackoff * pow(p.cfg.BackoffMultiplier, count-1)
	if seconds > p.cfg.MaxBackoff {
		seconds = p.cfg.MaxBackoff
	}
	return time.Duration(seconds * float64(time.Second))
}

// pow returns base^exp as a float64.
func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// RecordAttempt appends a restart attempt for the unit and updates the
// circuit breaker. success refers to the relaunch itself, not to the
// condition that triggered the restart. failureReason is recorded only
// when success is false.
//
// A success while HALF_OPEN closes the breaker and clears the failure
// window. A failure starts a fresh window when none is active or the
// current one has expired; otherwise it increments the in-window
// counter, tripping the breaker to OPEN at the threshold.
func (p *Policy) RecordAttempt(unitID string, success bool, failureReason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	hist := p.unitLocked(unitID)

	attempt := Attempt{Timestamp: now, Success: success}
	if !success {
		attempt.FailureReason = failureReason
	}
	hist.Attempts = append(hist.Attempts, attempt)

	if success {
		if hist.Breaker == BreakerHalfOpen {
			hist.Breaker = BreakerClosed
			p.logger.Printf("Circuit breaker for %s: HALF_OPEN -> CLOSED (trial restart succeeded)", unitID)
		}
		hist.WindowStart = nil
		hist.WindowFailures = 0
	} else {
		if hist.WindowStart == nil || now.Sub(*hist.WindowStart) > p.cfg.WindowDuration() {
			// Fresh window - prior failures no longer count
			hist.WindowStart = &now
			hist.WindowFailures = 1
		} else {
			hist.WindowFailures++
		}
		if hist.WindowFailures >= p.cfg.BreakerThreshold && hist.Breaker != BreakerOpen {
			hist.Breaker = BreakerOpen
			p.logger.Printf("Circuit breaker for %s: %d failures in %v, opening",
				unitID, hist.WindowFailures, p.cfg.WindowDuration())
		}
	}

	p.saveLocked()
}

// CheckBreakerReset transitions the unit's breaker from OPEN to
// HALF_OPEN once the cooldown has elapsed at the supplied time.
// Safe to call periodically; does nothing for units that are not OPEN.
func (p *Policy) CheckBreakerReset(unitID string, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	hist := p.units[unitID]
	if hist == nil {
		return
	}
	if p.checkResetLocked(hist, now) {
		p.saveLocked()
	}
}

// checkResetLocked applies the OPEN -> HALF_OPEN cooldown transition.
// Caller holds p.mu. Reports whether a transition happened.
func (p *Policy) checkResetLocked(hist *History, now time.Time) bool {
	if hist.Breaker != BreakerOpen || hist.WindowStart == nil {
		return false
	}
	if now.Sub(*hist.WindowStart) < p.cfg.ResetDuration() {
		return false
	}
	hist.Breaker = BreakerHalfOpen
	p.logger.Printf("Circuit breaker for %s: OPEN -> HALF_OPEN (cooldown elapsed)", hist.UnitID)
	return true
}

// ConsecutiveFailures returns the number of trailing failed attempts
// since the unit's last success. Zero when there is no history or the
// latest attempt succeeded.
func (p *Policy) ConsecutiveFailures(unitID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	hist := p.units[unitID]
	if hist == nil {
		return 0
	}
	count := 0
	for i := len(hist.Attempts) - 1; i >= 0; i-- {
		if hist.Attempts[i].Success {
			break
		}
		count++
	}
	return count
}

// AttemptCount returns the number of recorded attempts for the unit.
func (p *Policy) AttemptCount(unitID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	hist := p.units[unitID]
	if hist == nil {
		return 0
	}
	return len(hist.Attempts)
}

// Reset drops the unit's history entirely, returning it to a fresh
// CLOSED state on next use. Idempotent: resetting an absent unit is a
// no-op.
func (p *Policy) Reset(unitID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.units[unitID]; !ok {
		return
	}
	delete(p.units, unitID)
	p.logger.Printf("Restart history for %s reset", unitID)
	p.saveLocked()
}

// Status returns a copy of the unit's history, or nil if none exists.
func (p *Policy) Status(unitID string) *History {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if hist := p.units[unitID]; hist != nil {
		return hist.clone()
	}
	return nil
}

// AllStatus returns copies of every tracked unit's history.
func (p *Policy) AllStatus() map[string]*History {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make(map[string]*History, len(p.units))
	for id, hist := range p.units {
		result[id] = hist.clone()
	}
	return result
}

// unitLocked returns the unit's history, creating it lazily.
// Caller holds p.mu.
func (p *Policy) unitLocked(unitID string) *History {
	hist := p.units[unitID]
	if hist == nil {
		hist = &History{UnitID: unitID, Breaker: BreakerClosed}
		p.units[unitID] = hist
	}
	return hist
}
