//go:build windows

package launcher

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Medic supervises Unix processes; these stubs let the code compile on
// Windows with signal delivery reported as unsupported.

func setSysProcAttr(cmd *exec.Cmd) {}

func signalPID(pid int, sig os.Signal) error {
	return errors.New("signal delivery not supported on windows")
}

func signalGroup(pid int, sig os.Signal) error {
	return errors.New("signal delivery not supported on windows")
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	out, err := exec.Command("tasklist", "/FI", fmt.Sprintf("PID eq %d", pid), "/FO", "CSV", "/NH").Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), fmt.Sprintf("\"%d\"", pid))
}
