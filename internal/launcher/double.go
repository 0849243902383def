package launcher

import (
	"os"
	"sync"
	"time"
)

// Double is a scripted Launcher for control-loop tests. Starts hand
// out sequential fake pids; tests end processes with Exit and script
// failures with QueueStartFailure. No OS processes are involved.
type Double struct {
	// CPU and MemMB are returned by CPUMem for any live pid.
	CPU   float64
	MemMB float64

	mu           sync.Mutex
	nextPID      int
	startErrs    []error
	starts       []Spec
	alive        map[int]bool
	waits        map[int]chan ExitResult
	terminated   []int
	autoExit     bool
	autoExitCode int
}

var _ Launcher = (*Double)(nil)

// NewDouble builds an empty scripted launcher.
func NewDouble() *Double {
	return &Double{
		nextPID: 1000,
		alive:   make(map[int]bool),
		waits:   make(map[int]chan ExitResult),
	}
}

// QueueStartFailure makes the next Start call fail with err. Queued
// failures are consumed in order before Starts succeed again.
func (d *Double) QueueStartFailure(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startErrs = append(d.startErrs, err)
}

// SetAutoExit makes every subsequently started process exit on its own
// with the given code as soon as it starts. Crash-loop tests use this
// so each relaunch dies without per-pid scripting.
func (d *Double) SetAutoExit(code int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.autoExit = true
	d.autoExitCode = code
}

func (d *Double) Start(spec Spec) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.startErrs) > 0 {
		err := d.startErrs[0]
		d.startErrs = d.startErrs[1:]
		return 0, err
	}
	d.nextPID++
	pid := d.nextPID
	d.starts = append(d.starts, spec)
	d.alive[pid] = true
	d.waits[pid] = make(chan ExitResult, 1)
	if d.autoExit {
		d.alive[pid] = false
		d.waits[pid] <- ExitResult{Code: d.autoExitCode}
	}
	return pid, nil
}

func (d *Double) Wait(pid int) <-chan ExitResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.waits[pid]; ok {
		return ch
	}
	ch := make(chan ExitResult, 1)
	ch <- ExitResult{Code: -1, Err: ErrUnknownPID}
	return ch
}

func (d *Double) Signal(pid int, sig os.Signal) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.alive[pid] {
		return ErrUnknownPID
	}
	return nil
}

func (d *Double) IsAlive(pid int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.alive[pid]
}

func (d *Double) CPUMem(pid int) (float64, float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.alive[pid] {
		return 0, 0
	}
	return d.CPU, d.MemMB
}

func (d *Double) Terminate(pid int, grace time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.terminated = append(d.terminated, pid)
	if !d.alive[pid] {
		return nil
	}
	d.alive[pid] = false
	if ch, ok := d.waits[pid]; ok {
		select {
		case ch <- ExitResult{Code: -1}:
		default:
		}
	}
	return nil
}

// Exit simulates the process ending on its own with the given code.
func (d *Double) Exit(pid, code int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.alive[pid] {
		return
	}
	d.alive[pid] = false
	if ch, ok := d.waits[pid]; ok {
		select {
		case ch <- ExitResult{Code: code}:
		default:
		}
	}
}

// StartCount reports how many Starts succeeded.
func (d *Double) StartCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.starts)
}

// Starts returns a copy of the specs passed to successful Starts.
func (d *Double) Starts() []Spec {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Spec, len(d.starts))
	copy(out, d.starts)
	return out
}

// LastPID returns the most recently started pid, 0 if none.
func (d *Double) LastPID() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.starts) == 0 {
		return 0
	}
	return d.nextPID
}

// TerminatedPIDs returns a copy of the pids Terminate was called on.
func (d *Double) TerminatedPIDs() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int, len(d.terminated))
	copy(out, d.terminated)
	return out
}
