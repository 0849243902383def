package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/medic/internal/config"
	"github.com/steveyegge/medic/internal/restart"
	"github.com/steveyegge/medic/internal/state"
	"github.com/steveyegge/medic/internal/style"
	"github.com/steveyegge/medic/internal/supervisor"
	"github.com/steveyegge/medic/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show supervisor status for a unit",
	Long: `Status reads the unit's persisted state (status file, restart
history, snapshot store) and reports what the supervisor is doing. It
never talks to the supervisor process directly, so it works the same
on live, stopped, and crashed supervisors.`,
	GroupID: GroupDiag,
	Args:    cobra.NoArgs,
	RunE:    runStatus,
}

var (
	statusUnit string
	statusJSON bool
)

func init() {
	statusCmd.Flags().StringVarP(&statusUnit, "unit", "u", "", "Unit to inspect (default: configured unit)")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Emit machine-readable JSON")
	rootCmd.AddCommand(statusCmd)
}

// statusReport is the JSON shape of medic status --json.
type statusReport struct {
	Unit           string              `json:"unit"`
	Running        bool                `json:"running"`
	Stale          bool                `json:"stale,omitempty"`
	OrphanChildPID int                 `json:"orphan_child_pid,omitempty"`
	Status         *supervisor.Status  `json:"status,omitempty"`
	History        *restart.History    `json:"history,omitempty"`
	LatestSnapshot *state.SnapshotInfo `json:"latest_snapshot,omitempty"`
	LastRestored   string              `json:"last_restored,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	unit := resolveUnit(cfg, statusUnit)

	report := buildStatusReport(cfg, unit)
	if statusJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	if ui.IsAgentMode() {
		fmt.Println(agentStatusLine(cfg, report))
		return nil
	}
	renderStatus(cfg, unit, report)
	return nil
}

// agentStatusLine is the one-line key=value form emitted in agent mode,
// sized for a context window rather than a human reader.
func agentStatusLine(cfg *config.Config, report *statusReport) string {
	parts := []string{"unit=" + report.Unit}
	st := report.Status
	if st == nil {
		return strings.Join(append(parts, "state=none"), " ")
	}

	switch {
	case report.Running:
		parts = append(parts, "state=running", fmt.Sprintf("pid=%d", st.PID))
	case report.Stale:
		parts = append(parts, "state=stale")
	default:
		parts = append(parts, "state=stopped")
	}
	if st.ChildPID > 0 {
		parts = append(parts, fmt.Sprintf("child=%d", st.ChildPID))
	}
	if report.Running {
		parts = append(parts,
			fmt.Sprintf("mem_mb=%.0f", st.CurrentMB),
			"sev="+st.MemoryState.String())
	}

	attempts := st.RestartCount
	if report.History != nil {
		attempts = len(report.History.Attempts)
	}
	parts = append(parts, fmt.Sprintf("restarts=%d/%d", attempts, cfg.Restart.MaxAttempts))
	if report.History != nil {
		parts = append(parts, "breaker="+string(report.History.Breaker))
	}
	if report.OrphanChildPID > 0 {
		parts = append(parts, fmt.Sprintf("orphan_child=%d", report.OrphanChildPID))
	}
	return strings.Join(parts, " ")
}

// buildStatusReport assembles everything the unit's state directory
// knows. Each piece is independent: a missing status file still lets
// history and snapshots render.
func buildStatusReport(cfg *config.Config, unit string) *statusReport {
	report := &statusReport{Unit: unit}

	if st, err := supervisor.ReadStatusFile(cfg.StatusFile(unit)); err == nil {
		report.Status = st
		alive := st.PID > 0 && probe.IsAlive(st.PID)
		report.Running = st.Enabled && alive
		report.Stale = st.Enabled && !alive
		if !report.Running && st.ChildPID > 0 && probe.IsAlive(st.ChildPID) {
			report.OrphanChildPID = st.ChildPID
		}
	}

	if policy, err := restart.NewWithStateFile(cfg.Restart, nil, cfg.HistoryFile(unit)); err == nil {
		report.History = policy.Status(unit)
	}

	mgr := state.NewManager(unit, cfg.SnapshotsDir(unit), nil)
	if infos, err := mgr.List(); err == nil && len(infos) > 0 {
		latest := infos[len(infos)-1]
		report.LatestSnapshot = &latest
	}
	report.LastRestored = mgr.LastRestored()
	return report
}

func renderStatus(cfg *config.Config, unit string, report *statusReport) {
	st := report.Status
	if st == nil {
		fmt.Printf("%s No supervision state for %s\n", ui.RenderMuted("○"), unit)
		fmt.Println()
		fmt.Printf("  Start with: %s\n", ui.RenderMuted("medic run --unit "+unit+" -- <command>"))
		return
	}

	switch {
	case report.Running:
		fmt.Printf("%s Supervisor running (PID %d, v%s)\n", ui.RenderPassIcon(), st.PID, Version)
	case report.Stale:
		fmt.Printf("%s Supervisor dead (stale state, was PID %d)\n", ui.RenderWarnIcon(), st.PID)
	default:
		fmt.Printf("%s Supervisor not running\n", ui.RenderMuted("○"))
	}
	fmt.Println()

	fmt.Printf("  Unit:        %s\n", unit)
	fmt.Printf("  State:       %s\n", style.StateLabel(string(st.State)))
	if st.ChildPID > 0 {
		child := fmt.Sprintf("PID %d", st.ChildPID)
		if !st.ChildStartedAt.IsZero() {
			child += fmt.Sprintf(", up %s", style.Uptime(time.Since(st.ChildStartedAt)))
		}
		fmt.Printf("  Child:       %s\n", child)
	}
	if st.CurrentMB > 0 || st.State == supervisor.StateRunning {
		fmt.Printf("  Memory:      %s (%s), CPU %.1f%%\n",
			style.MemoryMB(st.CurrentMB), style.SeverityLabel(st.MemoryState.String()), st.CPUPercent)
	}

	restarts := fmt.Sprintf("%d of %d", st.RestartCount, cfg.Restart.MaxAttempts)
	if report.History != nil {
		restarts = fmt.Sprintf("%d of %d", len(report.History.Attempts), cfg.Restart.MaxAttempts)
	}
	fmt.Printf("  Restarts:    %s\n", restarts)
	if report.History != nil {
		fmt.Printf("  Breaker:     %s\n", style.BreakerLabel(string(report.History.Breaker)))
	}
	if st.LastReason != "" {
		fmt.Printf("  Last event:  %s\n", st.LastReason)
	}
	if snap := report.LatestSnapshot; snap != nil {
		detail := fmt.Sprintf("%s, %s", ui.RelativeTime(snap.CapturedAt), style.Humanize(string(snap.Trigger)))
		if snap.Restored {
			detail += ", restored"
		}
		fmt.Printf("  Snapshot:    %s (%s)\n", snap.ID, detail)
	}
	if !st.StartedAt.IsZero() {
		fmt.Printf("  Started:     %s (%s)\n",
			st.StartedAt.Format("2006-01-02 15:04:05"), ui.RelativeTime(st.StartedAt))
	}
	if !st.UpdatedAt.IsZero() {
		fmt.Printf("  Updated:     %s\n", ui.RelativeTime(st.UpdatedAt))
	}
	fmt.Printf("  Log:         %s\n", ui.ShortenPath(cfg.LogFile(unit)))

	if report.OrphanChildPID > 0 {
		fmt.Println()
		fmt.Printf("  %s Child still running unsupervised (PID %d)\n", ui.RenderWarnIcon(), report.OrphanChildPID)
		fmt.Printf("    %s\n", ui.RenderMuted("the supervisor died without stopping it; kill the pid or start a new medic run"))
	}
}
