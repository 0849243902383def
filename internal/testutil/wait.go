package testutil

import (
	"testing"
	"time"
)

// WaitFor polls cond until it returns true or the timeout elapses.
// Reports whether the condition was met.
func WaitFor(t *testing.T, cond func() bool, timeout time.Duration) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return false
}

// MustWaitFor is WaitFor that fails the test on timeout. what names the
// awaited condition in the failure message.
func MustWaitFor(t *testing.T, cond func() bool, timeout time.Duration, what string) {
	t.Helper()
	if !WaitFor(t, cond, timeout) {
		t.Fatalf("timed out after %v waiting for %s", timeout, what)
	}
}
