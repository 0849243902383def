package cmd

import (
	"os"
	"testing"

	"github.com/steveyegge/medic/internal/testutil"
)

func TestResolveUnit(t *testing.T) {
	fx := testutil.NewUnitFixture(t, "claude")

	if got := resolveUnit(fx.Cfg, ""); got != "claude" {
		t.Errorf("resolveUnit with no flag = %q, want claude", got)
	}
	if got := resolveUnit(fx.Cfg, "reviewer"); got != "reviewer" {
		t.Errorf("resolveUnit with flag = %q, want reviewer", got)
	}
}

func TestSupervisorPID(t *testing.T) {
	fx := testutil.NewUnitFixture(t, "claude")
	cfg := fx.Cfg

	if pid := supervisorPID(cfg, "claude"); pid != 0 {
		t.Errorf("pid with no file = %d, want 0", pid)
	}

	if err := os.WriteFile(cfg.PIDFile("claude"), []byte("4321\n"), 0644); err != nil {
		t.Fatalf("write pid file: %v", err)
	}
	if pid := supervisorPID(cfg, "claude"); pid != 4321 {
		t.Errorf("pid = %d, want 4321", pid)
	}

	if err := os.WriteFile(cfg.PIDFile("claude"), []byte("not a pid"), 0644); err != nil {
		t.Fatalf("write pid file: %v", err)
	}
	if pid := supervisorPID(cfg, "claude"); pid != 0 {
		t.Errorf("pid with garbage file = %d, want 0", pid)
	}
}
