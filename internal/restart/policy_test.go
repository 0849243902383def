package restart

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// testConfig is the worked example used throughout: backoffs for
// attempts 1..7 are 0, 2, 4, 8, 16, 32, 60 seconds.
func testConfig() Config {
	return Config{
		MaxAttempts:       5,
		InitialBackoff:    2.0,
		MaxBackoff:        60.0,
		BackoffMultiplier: 2.0,
		BreakerThreshold:  3,
		BreakerWindow:     900,
		BreakerReset:      1800,
	}
}

func newTestPolicy(t *testing.T, cfg Config) *Policy {
	t.Helper()
	p, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return p
}

func TestBackoff_FirstAttemptZero(t *testing.T) {
	p := newTestPolicy(t, testConfig())

	if got := p.Backoff("unit-a"); got != 0 {
		t.Errorf("Backoff with no history = %v, want 0", got)
	}
}

func TestBackoff_ExponentialGrowth(t *testing.T) {
	p := newTestPolicy(t, testConfig())

	// Backoff is computed before each attempt is recorded, so the delay
	// for attempt N reflects the N-1 attempts already on record.
	wantSeconds := []float64{0, 2, 4, 8, 16, 32, 60}
	for i, want := range wantSeconds {
		got := p.Backoff("claude")
		wantDur := time.Duration(want * float64(time.Second))
		if got != wantDur {
			t.Errorf("attempt %d: Backoff = %v, want %v", i+1, got, wantDur)
		}
		p.RecordAttempt("claude", false, "out of memory")
	}
}

func TestBackoff_CappedAtMax(t *testing.T) {
	p := newTestPolicy(t, testConfig())

	for i := 0; i < 20; i++ {
		p.RecordAttempt("claude", false, "crash")
	}
	if got, want := p.Backoff("claude"), 60*time.Second; got != want {
		t.Errorf("Backoff after 20 attempts = %v, want cap %v", got, want)
	}
}

func TestShouldRestart_NoHistory(t *testing.T) {
	p := newTestPolicy(t, testConfig())

	ok, reason := p.ShouldRestart("never-seen")
	if !ok {
		t.Errorf("ShouldRestart for unknown unit = false (%q), want true", reason)
	}
	if reason != "" {
		t.Errorf("reason = %q, want empty", reason)
	}
}

func TestShouldRestart_MaxAttemptsReached(t *testing.T) {
	p := newTestPolicy(t, testConfig())

	// Successes keep the breaker CLOSED; the cap applies anyway.
	for i := 0; i < 5; i++ {
		p.RecordAttempt("claude", true, "")
	}

	ok, reason := p.ShouldRestart("claude")
	if ok {
		t.Error("ShouldRestart at MaxAttempts = true, want false")
	}
	if reason != ReasonMaxAttempts {
		t.Errorf("reason = %q, want %q", reason, ReasonMaxAttempts)
	}
}

func TestShouldRestart_MaxAttemptsDominatesBreaker(t *testing.T) {
	p := newTestPolicy(t, testConfig())

	// Trip the breaker and exceed the cap at the same time.
	for i := 0; i < 5; i++ {
		p.RecordAttempt("claude", false, "crash")
	}
	if st := p.Status("claude"); st.Breaker != BreakerOpen {
		t.Fatalf("breaker = %s, want OPEN", st.Breaker)
	}

	_, reason := p.ShouldRestart("claude")
	if reason != ReasonMaxAttempts {
		t.Errorf("reason = %q, want %q (attempt cap dominates)", reason, ReasonMaxAttempts)
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	p := newTestPolicy(t, testConfig())

	p.RecordAttempt("claude", false, "crash")
	p.RecordAttempt("claude", false, "crash")
	if st := p.Status("claude"); st.Breaker != BreakerClosed {
		t.Fatalf("breaker after 2 failures = %s, want CLOSED", st.Breaker)
	}

	p.RecordAttempt("claude", false, "crash")
	st := p.Status("claude")
	if st.Breaker != BreakerOpen {
		t.Errorf("breaker after 3 failures = %s, want OPEN", st.Breaker)
	}

	ok, reason := p.ShouldRestart("claude")
	if ok {
		t.Error("ShouldRestart with OPEN breaker = true, want false")
	}
	if reason != ReasonBreakerOpen {
		t.Errorf("reason = %q, want %q", reason, ReasonBreakerOpen)
	}
}

func TestBreaker_CooldownToHalfOpen(t *testing.T) {
	p := newTestPolicy(t, testConfig())

	for i := 0; i < 3; i++ {
		p.RecordAttempt("claude", false, "crash")
	}
	if st := p.Status("claude"); st.Breaker != BreakerOpen {
		t.Fatalf("breaker = %s, want OPEN", st.Breaker)
	}

	// Cooldown not yet elapsed: stays OPEN.
	p.CheckBreakerReset("claude", time.Now())
	if st := p.Status("claude"); st.Breaker != BreakerOpen {
		t.Errorf("breaker before cooldown = %s, want OPEN", st.Breaker)
	}

	// Age the window start past the cooldown.
	aged := time.Now().Add(-time.Duration(testConfig().BreakerReset+1) * time.Second)
	p.mu.Lock()
	p.units["claude"].WindowStart = &aged
	p.mu.Unlock()

	p.CheckBreakerReset("claude", time.Now())
	if st := p.Status("claude"); st.Breaker != BreakerHalfOpen {
		t.Errorf("breaker after cooldown = %s, want HALF_OPEN", st.Breaker)
	}

	ok, _ := p.ShouldRestart("claude")
	if !ok {
		t.Error("ShouldRestart in HALF_OPEN = false, want true (trial allowed)")
	}
}

func TestShouldRestart_RunsCooldownPreCheck(t *testing.T) {
	p := newTestPolicy(t, testConfig())

	for i := 0; i < 3; i++ {
		p.RecordAttempt("claude", false, "crash")
	}

	aged := time.Now().Add(-time.Duration(testConfig().BreakerReset+1) * time.Second)
	p.mu.Lock()
	p.units["claude"].WindowStart = &aged
	p.mu.Unlock()

	// No explicit CheckBreakerReset: ShouldRestart does the pre-check.
	ok, reason := p.ShouldRestart("claude")
	if !ok {
		t.Errorf("ShouldRestart after cooldown = false (%q), want true", reason)
	}
	if st := p.Status("claude"); st.Breaker != BreakerHalfOpen {
		t.Errorf("breaker = %s, want HALF_OPEN", st.Breaker)
	}
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	p := newTestPolicy(t, testConfig())

	for i := 0; i < 3; i++ {
		p.RecordAttempt("claude", false, "crash")
	}
	aged := time.Now().Add(-time.Duration(testConfig().BreakerReset+1) * time.Second)
	p.mu.Lock()
	p.units["claude"].WindowStart = &aged
	p.mu.Unlock()
	p.CheckBreakerReset("claude", time.Now())

	p.RecordAttempt("claude", true, "")

	st := p.Status("claude")
	if st.Breaker != BreakerClosed {
		t.Errorf("breaker after HALF_OPEN success = %s, want CLOSED", st.Breaker)
	}
	if st.WindowStart != nil {
		t.Error("WindowStart not cleared after HALF_OPEN success")
	}
	if st.WindowFailures != 0 {
		t.Errorf("WindowFailures = %d, want 0", st.WindowFailures)
	}

	// A fresh streak is needed to re-trip: threshold-1 failures stay CLOSED.
	p.RecordAttempt("claude", false, "crash")
	p.RecordAttempt("claude", false, "crash")
	if st := p.Status("claude"); st.Breaker != BreakerClosed {
		t.Errorf("breaker after 2 post-close failures = %s, want CLOSED", st.Breaker)
	}
}

func TestBreaker_WindowExpiryResetsCounter(t *testing.T) {
	p := newTestPolicy(t, testConfig())

	p.RecordAttempt("claude", false, "crash")
	p.RecordAttempt("claude", false, "crash")

	// Expire the window, then fail again: the counter restarts at 1
	// even though total failures now exceed the threshold.
	expired := time.Now().Add(-time.Duration(testConfig().BreakerWindow+1) * time.Second)
	p.mu.Lock()
	p.units["claude"].WindowStart = &expired
	p.mu.Unlock()

	p.RecordAttempt("claude", false, "crash")

	st := p.Status("claude")
	if st.WindowFailures != 1 {
		t.Errorf("WindowFailures after expiry = %d, want 1", st.WindowFailures)
	}
	if st.Breaker != BreakerClosed {
		t.Errorf("breaker = %s, want CLOSED (threshold not met in new window)", st.Breaker)
	}
	if len(st.Attempts) != 3 {
		t.Errorf("attempt count = %d, want 3 (attempts are append-only)", len(st.Attempts))
	}
}

func TestRecordAttempt_Concurrent(t *testing.T) {
	p := newTestPolicy(t, Config{
		MaxAttempts:       100,
		InitialBackoff:    1,
		MaxBackoff:        10,
		BackoffMultiplier: 2.0,
		BreakerThreshold:  50,
		BreakerWindow:     900,
		BreakerReset:      1800,
	})

	const callers = 10
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p.RecordAttempt("claude", n%2 == 0, fmt.Sprintf("failure %d", n))
		}(i)
	}
	wg.Wait()

	if got := p.AttemptCount("claude"); got != callers {
		t.Errorf("attempt count after %d concurrent records = %d, want %d", callers, got, callers)
	}
}

func TestConsecutiveFailures(t *testing.T) {
	p := newTestPolicy(t, testConfig())

	if got := p.ConsecutiveFailures("claude"); got != 0 {
		t.Errorf("ConsecutiveFailures with no history = %d, want 0", got)
	}

	p.RecordAttempt("claude", false, "crash")
	p.RecordAttempt("claude", true, "")
	p.RecordAttempt("claude", false, "oom")
	p.RecordAttempt("claude", false, "oom")

	if got := p.ConsecutiveFailures("claude"); got != 2 {
		t.Errorf("ConsecutiveFailures = %d, want 2", got)
	}

	p.RecordAttempt("claude", true, "")
	if got := p.ConsecutiveFailures("claude"); got != 0 {
		t.Errorf("ConsecutiveFailures after success = %d, want 0", got)
	}
}

func TestReset_Idempotent(t *testing.T) {
	p := newTestPolicy(t, testConfig())

	p.RecordAttempt("claude", false, "crash")
	p.RecordAttempt("claude", false, "crash")

	p.Reset("claude")
	if got := p.AttemptCount("claude"); got != 0 {
		t.Errorf("attempt count after reset = %d, want 0", got)
	}
	if st := p.Status("claude"); st != nil {
		t.Errorf("Status after reset = %+v, want nil", st)
	}

	// Second reset has the same effect as the first.
	p.Reset("claude")
	if got := p.AttemptCount("claude"); got != 0 {
		t.Errorf("attempt count after double reset = %d, want 0", got)
	}
	if st := p.Status("claude"); st != nil {
		t.Errorf("Status after double reset = %+v, want nil", st)
	}

	// The unit is usable again afterwards.
	ok, _ := p.ShouldRestart("claude")
	if !ok {
		t.Error("ShouldRestart after reset = false, want true")
	}
}

func TestStatus_ReturnsCopy(t *testing.T) {
	p := newTestPolicy(t, testConfig())

	p.RecordAttempt("claude", false, "crash")
	st := p.Status("claude")
	st.Attempts[0].Success = true
	st.Breaker = BreakerOpen

	fresh := p.Status("claude")
	if fresh.Attempts[0].Success {
		t.Error("mutating a Status copy leaked into the policy's history")
	}
	if fresh.Breaker != BreakerClosed {
		t.Errorf("breaker = %s, want CLOSED", fresh.Breaker)
	}
}

func TestAllStatus(t *testing.T) {
	p := newTestPolicy(t, testConfig())

	p.RecordAttempt("claude", false, "crash")
	p.RecordAttempt("aider", true, "")

	all := p.AllStatus()
	if len(all) != 2 {
		t.Fatalf("AllStatus len = %d, want 2", len(all))
	}
	if all["claude"] == nil || all["aider"] == nil {
		t.Error("AllStatus missing a tracked unit")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := testConfig()
	if err := valid.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"negative initial backoff", func(c *Config) { c.InitialBackoff = -1 }},
		{"max below initial", func(c *Config) { c.MaxBackoff = 1 }},
		{"multiplier below one", func(c *Config) { c.BackoffMultiplier = 0.5 }},
		{"zero threshold", func(c *Config) { c.BreakerThreshold = 0 }},
		{"zero window", func(c *Config) { c.BreakerWindow = 0 }},
		{"zero reset", func(c *Config) { c.BreakerReset = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() accepted an invalid config")
			}
		})
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BreakerThreshold = 0
	if _, err := New(cfg, nil); err == nil {
		t.Error("New() accepted an invalid config")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig() invalid: %v", err)
	}
}
