package launcher

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/steveyegge/medic/internal/monitor"
)

// killWait bounds how long Terminate waits for the reaper after a
// SIGKILL. Past this something is wedged in the kernel and returning
// an error beats hanging the control loop.
const killWait = 10 * time.Second

// managedProc tracks one started subprocess. waitDone is closed by
// monitorExit once cmd.Wait returns; monitorExit is the sole caller of
// cmd.Wait, and everything else coordinates through the channel so
// Wait is never invoked twice.
type managedProc struct {
	cmd      *exec.Cmd
	waitDone chan struct{}
	result   ExitResult
}

// ExecLauncher runs subprocesses with os/exec, each in its own process
// group.
type ExecLauncher struct {
	logger *log.Logger
	source monitor.ProcSource

	mu    sync.Mutex
	procs map[int]*managedProc
}

// NewExecLauncher builds the real launcher.
func NewExecLauncher(logger *log.Logger) *ExecLauncher {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &ExecLauncher{
		logger: logger,
		source: monitor.NewProcSource(),
		procs:  make(map[int]*managedProc),
	}
}

// Start launches the subprocess described by spec.
func (l *ExecLauncher) Start(spec Spec) (int, error) {
	if len(spec.Command) == 0 {
		return 0, fmt.Errorf("empty command")
	}
	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.WorkingDir
	cmd.Env = spec.Env
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	setSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting %s: %w", spec.Command[0], err)
	}
	pid := cmd.Process.Pid
	p := &managedProc{cmd: cmd, waitDone: make(chan struct{})}

	l.mu.Lock()
	l.procs[pid] = p
	l.mu.Unlock()

	go l.monitorExit(pid, p)
	l.logger.Printf("Started %s (pid %d)", spec.Command[0], pid)
	return pid, nil
}

// monitorExit reaps the subprocess and records its outcome.
func (l *ExecLauncher) monitorExit(pid int, p *managedProc) {
	err := p.cmd.Wait()
	p.result = exitResult(err)
	close(p.waitDone)
	if p.result.Err != nil {
		l.logger.Printf("Process %d wait failed: %v", pid, p.result.Err)
	} else {
		l.logger.Printf("Process %d exited with code %d", pid, p.result.Code)
	}
}

func exitResult(err error) ExitResult {
	if err == nil {
		return ExitResult{Code: 0}
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return ExitResult{Code: ee.ExitCode()}
	}
	return ExitResult{Code: -1, Err: err}
}

func (l *ExecLauncher) proc(pid int) *managedProc {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.procs[pid]
}

// Wait returns a single-delivery channel with the exit result.
func (l *ExecLauncher) Wait(pid int) <-chan ExitResult {
	ch := make(chan ExitResult, 1)
	p := l.proc(pid)
	if p == nil {
		ch <- ExitResult{Code: -1, Err: ErrUnknownPID}
		return ch
	}
	go func() {
		<-p.waitDone
		ch <- p.result
	}()
	return ch
}

// Signal delivers sig. Pids the launcher does not own are signaled
// directly, which lets CLI commands poke supervisors found in pid
// files.
func (l *ExecLauncher) Signal(pid int, sig os.Signal) error {
	if p := l.proc(pid); p != nil {
		return p.cmd.Process.Signal(sig)
	}
	return signalPID(pid, sig)
}

// IsAlive reports whether the process still exists.
func (l *ExecLauncher) IsAlive(pid int) bool {
	if p := l.proc(pid); p != nil {
		select {
		case <-p.waitDone:
			return false
		default:
			return true
		}
	}
	return processAlive(pid)
}

// CPUMem reads current usage, zeros if the process is unreadable.
func (l *ExecLauncher) CPUMem(pid int) (float64, float64) {
	memMB, cpuPercent, err := l.source.Stats(pid)
	if err != nil {
		return 0, 0
	}
	return cpuPercent, memMB
}

// Terminate stops the process group: SIGTERM, wait out the grace
// period, then SIGKILL. Returns once the process has been reaped.
func (l *ExecLauncher) Terminate(pid int, grace time.Duration) error {
	if grace <= 0 {
		grace = 5 * time.Second
	}
	p := l.proc(pid)
	if p == nil {
		return l.terminateUnowned(pid, grace)
	}

	select {
	case <-p.waitDone:
		return nil
	default:
	}

	if err := signalGroup(pid, syscall.SIGTERM); err != nil {
		l.logger.Printf("Warning: SIGTERM to pid %d: %v", pid, err)
	}
	select {
	case <-p.waitDone:
		return nil
	case <-time.After(grace):
	}

	l.logger.Printf("Process %d survived %s grace, sending SIGKILL", pid, grace)
	if err := signalGroup(pid, syscall.SIGKILL); err != nil {
		l.logger.Printf("Warning: SIGKILL to pid %d: %v", pid, err)
	}
	select {
	case <-p.waitDone:
		return nil
	case <-time.After(killWait):
		return fmt.Errorf("pid %d not reaped %s after SIGKILL", pid, killWait)
	}
}

// terminateUnowned handles pids from stale pid files, where there is
// no Wait channel and liveness must be polled.
func (l *ExecLauncher) terminateUnowned(pid int, grace time.Duration) error {
	if !processAlive(pid) {
		return nil
	}
	if err := signalGroup(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("SIGTERM to pid %d: %w", pid, err)
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err := signalGroup(pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("SIGKILL to pid %d: %w", pid, err)
	}
	deadline = time.Now().Add(killWait)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("pid %d still alive after SIGKILL", pid)
}
