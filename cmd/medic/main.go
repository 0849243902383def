// medic supervises long-running coding session processes.
package main

import (
	"os"

	"github.com/steveyegge/medic/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
