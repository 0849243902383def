package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/medic/internal/config"
	"github.com/steveyegge/medic/internal/launcher"
	"github.com/steveyegge/medic/internal/monitor"
	"github.com/steveyegge/medic/internal/restart"
	"github.com/steveyegge/medic/internal/state"
	"github.com/steveyegge/medic/internal/supervisor"
	"github.com/steveyegge/medic/internal/telemetry"
	"github.com/steveyegge/medic/internal/ui"
	"github.com/steveyegge/medic/internal/util"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command> [args...]",
	Short: "Supervise a command in the foreground",
	Long: `Run launches the given command under supervision and keeps it
healthy: memory is sampled on an interval, context is captured to a
snapshot before any restart, and the restart policy decides whether a
crashed or bloated process comes back.

The unit name defaults to a slug of the command's basename; pass
--unit to supervise several instances of the same tool side by side.

Exits 0 when the process ends cleanly, 1 when the policy denies a
restart or supervision fails.`,
	Example: `  medic run -- claude --continue
  medic run --unit reviewer --context "resume the API review" -- claude
  medic run --critical-mb 4096 -- npx some-agent`,
	GroupID: GroupSupervise,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runRun,
}

var (
	runUnit        string
	runContextArg  string
	runConfigPath  string
	runWarningMB   float64
	runCriticalMB  float64
	runEmergencyMB float64
	runInterval    float64
	runMaxAttempts int
)

func init() {
	runCmd.Flags().StringVarP(&runUnit, "unit", "u", "", "Unit name (default: slug of the command basename)")
	runCmd.Flags().StringVar(&runContextArg, "context", "", "One-shot context appended to the first launch only")
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "Config file (default: ./medic.toml, then ~/.medic/medic.toml)")
	runCmd.Flags().Float64Var(&runWarningMB, "warning-mb", 0, "Warning memory threshold in MB")
	runCmd.Flags().Float64Var(&runCriticalMB, "critical-mb", 0, "Critical memory threshold in MB")
	runCmd.Flags().Float64Var(&runEmergencyMB, "emergency-mb", 0, "Emergency memory threshold in MB")
	runCmd.Flags().Float64Var(&runInterval, "interval", 0, "Memory sampling interval in seconds")
	runCmd.Flags().IntVar(&runMaxAttempts, "max-attempts", 0, "Maximum restart attempts before giving up")

	// Everything after the first positional belongs to the supervised
	// command, so "medic run claude --continue" works without "--".
	runCmd.Flags().SetInterspersed(false)

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg, args)
	if err := cfg.Validate(); err != nil {
		return err
	}
	unit := cfg.Unit.Name

	logger, logFile, err := openUnitLogger(cfg, unit)
	if err != nil {
		return err
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.Init(ctx, "medic", Version)
	if err != nil {
		logger.Printf("Warning: telemetry init failed: %v", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Printf("Warning: telemetry shutdown: %v", err)
			}
		}()
	}

	policy, err := restart.NewWithStateFile(cfg.Restart, logger, cfg.HistoryFile(unit))
	if err != nil {
		return err
	}

	workDir := cfg.Unit.WorkingDir
	if workDir == "" {
		if wd, err := os.Getwd(); err == nil {
			workDir = wd
		}
	}

	launch := launcher.NewExecLauncher(logger)
	sampler := monitor.NewSampler(cfg.Thresholds(), cfg.Interval(), logger)
	manager := state.NewManagerWithSources(unit, cfg.SnapshotsDir(unit), logger, nil, state.NewGitProject(workDir))

	sup := supervisor.New(cfg, launch, policy, sampler, manager, logger)
	sup.Stdout = os.Stdout
	sup.Stderr = os.Stderr

	fmt.Printf("%s Supervising %s: %s\n", ui.RenderPassIcon(), unit, strings.Join(cfg.Unit.Command, " "))
	fmt.Printf("  %s\n", ui.RenderMuted("log: "+ui.ShortenPath(cfg.LogFile(unit))))

	err = sup.Run(ctx, runContextArg)
	stop()
	switch {
	case err == nil:
		fmt.Printf("%s %s finished\n", ui.RenderPassIcon(), unit)
		return nil
	case errors.Is(err, supervisor.ErrAlreadyRunning):
		fmt.Printf("%s %v\n", ui.RenderWarnIcon(), err)
		return NewSilentExit(1)
	case errors.Is(err, supervisor.ErrRestartDenied):
		fmt.Printf("%s %v\n", ui.RenderFailIcon(), err)
		return NewSilentExit(1)
	default:
		return err
	}
}

// applyRunFlags layers CLI flags over the loaded config. Flags win
// over both the file and the environment.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, args []string) {
	cfg.Unit.Command = args
	switch {
	case runUnit != "":
		cfg.Unit.Name = runUnit
	case os.Getenv("MEDIC_UNIT") != "":
		// Already applied by the config loader.
	default:
		cfg.Unit.Name = util.UnitSlug(filepath.Base(args[0]))
	}
	if cmd.Flags().Changed("warning-mb") {
		cfg.Monitor.WarningMB = runWarningMB
	}
	if cmd.Flags().Changed("critical-mb") {
		cfg.Monitor.CriticalMB = runCriticalMB
	}
	if cmd.Flags().Changed("emergency-mb") {
		cfg.Monitor.EmergencyMB = runEmergencyMB
	}
	if cmd.Flags().Changed("interval") {
		cfg.Monitor.IntervalSeconds = runInterval
	}
	if cmd.Flags().Changed("max-attempts") {
		cfg.Restart.MaxAttempts = runMaxAttempts
	}
}
