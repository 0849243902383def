package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/steveyegge/medic/internal/config"
)

var logsCmd = &cobra.Command{
	Use:     "logs",
	Short:   "Show supervisor logs for a unit",
	GroupID: GroupDiag,
	Args:    cobra.NoArgs,
	RunE:    runLogs,
}

var (
	logsUnit   string
	logsLines  int
	logsFollow bool
)

func init() {
	logsCmd.Flags().StringVarP(&logsUnit, "unit", "u", "", "Unit to inspect (default: configured unit)")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 50, "Number of lines to show")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output")
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	unit := resolveUnit(cfg, logsUnit)

	logFile := cfg.LogFile(unit)
	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		return fmt.Errorf("no log file found at %s", logFile)
	}

	if logsFollow {
		tailCmd := exec.Command("tail", "-f", logFile)
		tailCmd.Stdout = os.Stdout
		tailCmd.Stderr = os.Stderr
		return tailCmd.Run()
	}

	tailCmd := exec.Command("tail", "-n", fmt.Sprintf("%d", logsLines), logFile)
	tailCmd.Stdout = os.Stdout
	tailCmd.Stderr = os.Stderr
	return tailCmd.Run()
}
