package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/medic/internal/config"
	"github.com/steveyegge/medic/internal/state"
	"github.com/steveyegge/medic/internal/style"
	"github.com/steveyegge/medic/internal/ui"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Inspect the snapshot store",
	Long: `Snapshots are the context captures taken before each restart.
These commands audit the store; nothing here mutates it.`,
	GroupID: GroupDiag,
	RunE:    requireSubcommand,
}

var snapshotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List captured snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotsList,
}

var snapshotsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one snapshot as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotsShow,
}

var snapshotsValidateCmd = &cobra.Command{
	Use:   "validate <id>",
	Short: "Check a snapshot for structural problems",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotsValidate,
}

var snapshotsUnit string

func init() {
	snapshotsCmd.PersistentFlags().StringVarP(&snapshotsUnit, "unit", "u", "", "Unit to inspect (default: configured unit)")
	snapshotsCmd.AddCommand(snapshotsListCmd)
	snapshotsCmd.AddCommand(snapshotsShowCmd)
	snapshotsCmd.AddCommand(snapshotsValidateCmd)
	rootCmd.AddCommand(snapshotsCmd)
}

func snapshotManager() (*state.Manager, string, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, "", err
	}
	unit := resolveUnit(cfg, snapshotsUnit)
	return state.NewManager(unit, cfg.SnapshotsDir(unit), nil), unit, nil
}

func runSnapshotsList(cmd *cobra.Command, args []string) error {
	mgr, unit, err := snapshotManager()
	if err != nil {
		return err
	}
	infos, err := mgr.List()
	if err != nil {
		return fmt.Errorf("listing snapshots: %w", err)
	}
	if len(infos) == 0 {
		fmt.Printf("%s No snapshots for %s\n", ui.RenderMuted("○"), unit)
		return nil
	}

	table := style.NewTable(
		style.Column{Name: "ID", Width: 38},
		style.Column{Name: "AGE", Width: 10},
		style.Column{Name: "TRIGGER", Width: 8},
		style.Column{Name: "MEMORY", Width: 9, Align: style.AlignRight},
		style.Column{Name: "RESTORED", Width: 8},
	)
	// List returns mint order; newest on top reads better.
	for i := len(infos) - 1; i >= 0; i-- {
		info := infos[i]
		restored := ""
		if info.Restored {
			restored = "yes"
		}
		table.AddRow(
			info.ID,
			ui.RelativeTime(info.CapturedAt),
			style.Humanize(string(info.Trigger)),
			style.MemoryMB(info.MemoryMB),
			restored,
		)
	}
	fmt.Print(table.Render())
	fmt.Printf("\n%s\n", ui.RenderMuted(fmt.Sprintf("%d snapshot(s) for %s", len(infos), unit)))
	return nil
}

func runSnapshotsShow(cmd *cobra.Command, args []string) error {
	mgr, _, err := snapshotManager()
	if err != nil {
		return err
	}
	snap, err := mgr.Load(args[0])
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runSnapshotsValidate(cmd *cobra.Command, args []string) error {
	mgr, _, err := snapshotManager()
	if err != nil {
		return err
	}
	snap, err := mgr.Load(args[0])
	if err != nil {
		return err
	}
	issues := mgr.Validate(snap)
	if len(issues) == 0 {
		fmt.Printf("%s Snapshot %s is valid\n", ui.RenderPassIcon(), snap.ID)
		return nil
	}

	fmt.Printf("%s Snapshot %s has %d problem(s)\n", ui.RenderFailIcon(), snap.ID, len(issues))
	for i, issue := range issues {
		branch := ui.TreeBranch
		if i == len(issues)-1 {
			branch = ui.TreeLast
		}
		fmt.Printf("  %s%s\n", ui.MutedStyle.Render(branch), issue)
	}
	return NewSilentExit(1)
}
