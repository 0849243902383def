// Package launcher starts and stops supervised subprocesses. The
// Launcher interface is the supervisor's only view of the OS process
// layer, so tests swap in the scripted Double and the control loop
// never touches os/exec directly.
package launcher

import (
	"errors"
	"io"
	"os"
	"time"
)

// ErrUnknownPID is returned for operations on a pid the launcher never
// started.
var ErrUnknownPID = errors.New("launcher: unknown pid")

// Spec describes one subprocess launch.
type Spec struct {
	// Command is the argv; Command[0] is the binary to run.
	Command []string

	// WorkingDir is the child's working directory. Empty inherits the
	// supervisor's.
	WorkingDir string

	// Env is the full child environment as "NAME=value" entries. Nil
	// inherits the supervisor's environment.
	Env []string

	// Stdout and Stderr receive child output. Nil discards.
	Stdout io.Writer
	Stderr io.Writer
}

// ExitResult reports how a subprocess ended. Code is the exit status,
// or -1 when the process was killed by a signal. Err is set only when
// the outcome could not be determined.
type ExitResult struct {
	Code int
	Err  error
}

// Launcher is the process collaborator the supervisor drives.
type Launcher interface {
	// Start launches the subprocess and returns its pid.
	Start(spec Spec) (int, error)

	// Wait returns a channel that delivers the exit result exactly
	// once. For an unknown pid the result carries ErrUnknownPID.
	Wait(pid int) <-chan ExitResult

	// Signal delivers sig to the process.
	Signal(pid int, sig os.Signal) error

	// IsAlive reports whether the process currently exists.
	IsAlive(pid int) bool

	// CPUMem reports recent CPU percent and resident memory in MB.
	// Zeros when the process cannot be read.
	CPUMem(pid int) (cpuPercent float64, memMB float64)

	// Terminate stops the process: graceful signal first, then a kill
	// once grace elapses. It returns after the process is gone.
	Terminate(pid int, grace time.Duration) error
}
