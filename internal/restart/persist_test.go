package restart

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPolicy_SaveLoadRoundTrip(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "restart_history.json")

	p, err := NewWithStateFile(testConfig(), nil, statePath)
	if err != nil {
		t.Fatalf("NewWithStateFile() error: %v", err)
	}

	p.RecordAttempt("claude", false, "out of memory")
	p.RecordAttempt("claude", false, "out of memory")
	p.RecordAttempt("aider", true, "")

	// A second policy reading the same file sees the same histories.
	p2, err := NewWithStateFile(testConfig(), nil, statePath)
	if err != nil {
		t.Fatalf("NewWithStateFile() reload error: %v", err)
	}

	st := p2.Status("claude")
	if st == nil {
		t.Fatal("reloaded policy missing claude history")
	}
	if len(st.Attempts) != 2 {
		t.Errorf("reloaded attempt count = %d, want 2", len(st.Attempts))
	}
	if st.Attempts[0].FailureReason != "out of memory" {
		t.Errorf("failure reason = %q, want %q", st.Attempts[0].FailureReason, "out of memory")
	}
	if st.WindowFailures != 2 {
		t.Errorf("reloaded WindowFailures = %d, want 2", st.WindowFailures)
	}
	if got := p2.AttemptCount("aider"); got != 1 {
		t.Errorf("reloaded aider attempt count = %d, want 1", got)
	}
}

func TestPolicy_LoadMissingFile(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "does-not-exist.json")

	p, err := NewWithStateFile(testConfig(), nil, statePath)
	if err != nil {
		t.Fatalf("NewWithStateFile() with missing file: %v", err)
	}
	if got := p.AttemptCount("claude"); got != 0 {
		t.Errorf("attempt count = %d, want 0", got)
	}
}

func TestPolicy_LoadCorruptFile(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "restart_history.json")
	if err := os.WriteFile(statePath, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewWithStateFile(testConfig(), nil, statePath); err == nil {
		t.Error("NewWithStateFile() accepted a corrupt state file")
	}
}

func TestPolicy_ResetPersists(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "restart_history.json")

	p, err := NewWithStateFile(testConfig(), nil, statePath)
	if err != nil {
		t.Fatalf("NewWithStateFile() error: %v", err)
	}
	p.RecordAttempt("claude", false, "crash")
	p.Reset("claude")

	p2, err := NewWithStateFile(testConfig(), nil, statePath)
	if err != nil {
		t.Fatalf("NewWithStateFile() reload error: %v", err)
	}
	if st := p2.Status("claude"); st != nil {
		t.Errorf("reset did not persist: reloaded history = %+v", st)
	}
}

func TestPolicy_MemoryOnlySaveIsNoop(t *testing.T) {
	p := newTestPolicy(t, testConfig())
	p.RecordAttempt("claude", false, "crash")
	if err := p.Save(); err != nil {
		t.Errorf("Save() on memory-only policy = %v, want nil", err)
	}
}
