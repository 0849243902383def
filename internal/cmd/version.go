package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the medic release version. Overridden at build time with
// -ldflags "-X github.com/steveyegge/medic/internal/cmd.Version=…".
var Version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Print the medic version",
	GroupID: GroupDiag,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("medic v%s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
