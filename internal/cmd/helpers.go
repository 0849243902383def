package cmd

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/steveyegge/medic/internal/config"
	"github.com/steveyegge/medic/internal/launcher"
)

// probe answers process-table questions for pids medic does not own
// (a supervisor started by another invocation, or its child).
var probe = launcher.NewExecLauncher(nil)

// resolveUnit picks the unit a command operates on: the --unit flag
// when given, otherwise the configured unit name.
func resolveUnit(cfg *config.Config, flagUnit string) string {
	if flagUnit != "" {
		return flagUnit
	}
	return cfg.Unit.Name
}

// supervisorPID reads the unit's pid file. Returns 0 when the file is
// absent or unparseable.
func supervisorPID(cfg *config.Config, unit string) int {
	data, err := os.ReadFile(cfg.PIDFile(unit))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// openUnitLogger opens the unit's append-only log file and wraps it in
// the logger every collaborator shares. The caller closes the file.
func openUnitLogger(cfg *config.Config, unit string) (*log.Logger, *os.File, error) {
	if err := os.MkdirAll(cfg.LogsDir(unit), 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log dir: %w", err)
	}
	f, err := os.OpenFile(cfg.LogFile(unit), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return log.New(f, "", log.LstdFlags), f, nil
}
