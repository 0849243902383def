package cmd

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/medic/internal/config"
	"github.com/steveyegge/medic/internal/ui"
	"github.com/steveyegge/medic/internal/util"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running supervisor",
	Long: `Stop signals the unit's supervisor with SIGTERM and waits for
it to exit. The supervisor shuts its subprocess down gracefully and
captures a final snapshot on the way out.`,
	GroupID: GroupSupervise,
	Args:    cobra.NoArgs,
	RunE:    runStop,
}

var stopUnit string

// errStillRunning marks the retryable state while waiting for a
// signaled supervisor to leave the process table.
var errStillRunning = errors.New("supervisor still running")

func init() {
	stopCmd.Flags().StringVarP(&stopUnit, "unit", "u", "", "Unit to stop (default: configured unit)")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	unit := resolveUnit(cfg, stopUnit)

	pid := supervisorPID(cfg, unit)
	if pid == 0 || !probe.IsAlive(pid) {
		fmt.Printf("%s No supervisor running for %s\n", ui.RenderMuted("○"), unit)
		return nil
	}

	if err := probe.Signal(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signaling supervisor (pid %d): %w", pid, err)
	}

	// The supervisor drains its shutdown path (terminate the child,
	// capture a final snapshot) before exiting, so the wait window is
	// generous.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_, err = util.Retry(ctx, util.RetryConfig{
		MaxAttempts:  60,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     250 * time.Millisecond,
		Multiplier:   1.0,
		Jitter:       false,
		IsRetryable:  func(err error) bool { return errors.Is(err, errStillRunning) },
	}, func() (struct{}, error) {
		if probe.IsAlive(pid) {
			return struct{}{}, errStillRunning
		}
		return struct{}{}, nil
	})
	if err != nil {
		fmt.Printf("%s Supervisor (pid %d) did not exit; its child may still be shutting down\n", ui.RenderWarnIcon(), pid)
		return NewSilentExit(1)
	}

	fmt.Printf("%s Supervisor stopped (was PID %d)\n", ui.RenderPassIcon(), pid)
	return nil
}
