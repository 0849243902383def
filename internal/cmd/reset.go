package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/medic/internal/config"
	"github.com/steveyegge/medic/internal/restart"
	"github.com/steveyegge/medic/internal/ui"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset a unit's restart history",
	Long: `Reset drops the unit's restart attempts and circuit-breaker
state so a supervisor that exhausted its attempts can start fresh.
Idempotent: resetting an empty history is a no-op.

The history file is shared with any running supervisor through a file
lock, so resetting while a supervisor runs is safe.`,
	GroupID: GroupSupervise,
	Args:    cobra.NoArgs,
	RunE:    runReset,
}

var resetUnit string

func init() {
	resetCmd.Flags().StringVarP(&resetUnit, "unit", "u", "", "Unit to reset (default: configured unit)")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	unit := resolveUnit(cfg, resetUnit)

	policy, err := restart.NewWithStateFile(cfg.Restart, nil, cfg.HistoryFile(unit))
	if err != nil {
		return err
	}
	before := policy.AttemptCount(unit)
	policy.Reset(unit)

	if before == 0 {
		fmt.Printf("%s No restart history for %s\n", ui.RenderMuted("○"), unit)
		return nil
	}
	fmt.Printf("%s Restart history for %s reset (%d attempt(s) dropped)\n", ui.RenderPassIcon(), unit, before)
	return nil
}
