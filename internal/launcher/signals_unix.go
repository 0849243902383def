//go:build !windows

package launcher

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setSysProcAttr puts the child in its own process group so Terminate
// can signal the whole tree, not just the immediate child.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func toUnixSignal(sig os.Signal) (syscall.Signal, error) {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return 0, fmt.Errorf("unsupported signal %v", sig)
	}
	return s, nil
}

// signalPID delivers sig to a single process.
func signalPID(pid int, sig os.Signal) error {
	s, err := toUnixSignal(sig)
	if err != nil {
		return err
	}
	return unix.Kill(pid, s)
}

// signalGroup delivers sig to the process group led by pid, falling
// back to the process itself if no such group exists.
func signalGroup(pid int, sig os.Signal) error {
	s, err := toUnixSignal(sig)
	if err != nil {
		return err
	}
	if err := unix.Kill(-pid, s); err != nil {
		return unix.Kill(pid, s)
	}
	return nil
}

// processAlive reports whether pid exists. EPERM still means alive,
// just owned by someone else.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
