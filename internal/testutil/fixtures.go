package testutil

import (
	"os"
	"testing"

	"github.com/steveyegge/medic/internal/config"
)

// UnitFixture provisions an isolated state tree and configuration for
// one supervised unit. Everything lives under a t.TempDir, so fixtures
// never collide and clean up with the test.
type UnitFixture struct {
	Cfg  *config.Config
	Unit string
}

// NewUnitFixture builds a fixture for the named unit with a throwaway
// state dir and a placeholder command.
func NewUnitFixture(t *testing.T, unit string) *UnitFixture {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Unit.Name = unit
	cfg.Unit.Command = []string{"claude", "--continue"}
	cfg.State.Dir = t.TempDir()

	f := &UnitFixture{Cfg: cfg, Unit: unit}
	if err := os.MkdirAll(cfg.UnitDir(unit), 0o755); err != nil {
		t.Fatalf("creating unit dir: %v", err)
	}
	return f
}
