// Package cmd provides CLI commands for the medic tool.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:     "medic",
	Short:   "Medic - Process supervision for long-running coding sessions",
	Version: Version,
	Long: `Medic supervises a long-running coding session process.

It watches the subprocess for memory growth and crashes, captures
session context before a restart becomes unavoidable, and restores
that context on relaunch, governed by an exponential-backoff restart
policy with a circuit breaker.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command and returns an exit code.
// The caller (main) should call os.Exit with this code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		// Silent exits carry their code; the command already printed
		// whatever the user needed to see.
		if code, ok := IsSilentExit(err); ok {
			return code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// Command group IDs - used by subcommands to organize help output
const (
	GroupSupervise = "supervise"
	GroupDiag      = "diag"
)

func init() {
	// Enable prefix matching for subcommands (e.g., "medic snap li" -> "medic snapshots list")
	cobra.EnablePrefixMatching = true

	// Define command groups (order determines help output order)
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupSupervise, Title: "Supervision:"},
		&cobra.Group{ID: GroupDiag, Title: "Diagnostics:"},
	)

	rootCmd.SetHelpCommandGroupID(GroupDiag)
	rootCmd.SetCompletionCommandGroupID(GroupDiag)
}

// buildCommandPath walks the command hierarchy to build the full
// command path, e.g. "medic snapshots list".
func buildCommandPath(cmd *cobra.Command) string {
	var parts []string
	for c := cmd; c != nil; c = c.Parent() {
		parts = append([]string{c.Name()}, parts...)
	}
	return strings.Join(parts, " ")
}

// requireSubcommand returns a RunE for parent commands that need a
// subcommand. Without this, cobra silently shows help and exits 0 for
// unknown subcommands like "medic snapshots foobar", masking errors.
func requireSubcommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("requires a subcommand\n\nRun '%s --help' for usage", buildCommandPath(cmd))
	}
	return fmt.Errorf("unknown command %q for %q\n\nRun '%s --help' for available commands",
		args[0], buildCommandPath(cmd), buildCommandPath(cmd))
}
