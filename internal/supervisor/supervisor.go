// Package supervisor runs the resilience loop for one unit: launch the
// configured subprocess, watch its memory, capture context when it has
// to die, and bring it back under the restart policy.
package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/steveyegge/medic/internal/config"
	"github.com/steveyegge/medic/internal/launcher"
	"github.com/steveyegge/medic/internal/monitor"
	"github.com/steveyegge/medic/internal/restart"
	"github.com/steveyegge/medic/internal/state"
	"github.com/steveyegge/medic/internal/telemetry"
	"github.com/steveyegge/medic/internal/util"
)

// State is the supervisor lifecycle phase surfaced in status.json.
type State string

const (
	// StateStarting means a launch (or relaunch) is in progress.
	StateStarting State = "STARTING"

	// StateRunning means the subprocess is up and being sampled.
	StateRunning State = "RUNNING"

	// StateRestarting means a restart condition fired and the loop is
	// between snapshot capture and the next launch.
	StateRestarting State = "RESTARTING"

	// StateStopped means supervision has ended.
	StateStopped State = "STOPPED"
)

var (
	// ErrAlreadyRunning means another supervisor holds the unit lock.
	ErrAlreadyRunning = errors.New("supervisor already running")

	// ErrRestartDenied means the restart policy refused a restart and
	// supervision stopped. The denial reason is appended to the error.
	ErrRestartDenied = errors.New("restart denied")
)

// Status is the supervisor's externally visible state. It is written
// to status.json after every material change so the CLI can report on
// a unit without talking to the supervisor process.
type Status struct {
	// Enabled is true while a Run call is supervising the unit.
	Enabled bool `json:"enabled"`

	// Unit is the supervised unit identifier.
	Unit string `json:"unit"`

	// State is the lifecycle phase.
	State State `json:"state"`

	// PID is the supervisor's own process id.
	PID int `json:"pid"`

	// ChildPID is the supervised subprocess, 0 when none is running.
	ChildPID int `json:"child_pid"`

	// ChildStartedAt is when the current subprocess launched.
	ChildStartedAt time.Time `json:"child_started_at"`

	// RestartCount is the number of recorded restart attempts.
	RestartCount int `json:"restart_count"`

	// MemoryState is the severity of the most recent memory sample.
	MemoryState monitor.Severity `json:"memory_state"`

	// CurrentMB and CPUPercent come from the most recent sample.
	CurrentMB  float64 `json:"current_mb"`
	CPUPercent float64 `json:"cpu_percent"`

	// StartedAt is when supervision began.
	StartedAt time.Time `json:"started_at"`

	// UpdatedAt is when this status was last written.
	UpdatedAt time.Time `json:"updated_at"`

	// LastReason describes the most recent restart trigger, denial, or
	// exit. Empty until something noteworthy happens.
	LastReason string `json:"last_reason,omitempty"`
}

// ReadStatusFile loads a status.json written by a supervisor. The
// caller decides whether the recorded supervisor pid is still alive.
func ReadStatusFile(path string) (*Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &st, nil
}

// Supervisor owns the resilience loop for a single unit. Construct one
// with New and drive it with Run; Status may be read from any
// goroutine while Run is in flight.
type Supervisor struct {
	cfg     *config.Config
	unitID  string
	logger  *log.Logger
	launch  launcher.Launcher
	policy  *restart.Policy
	sampler *monitor.Sampler
	manager *state.Manager

	// Stdout and Stderr receive the subprocess's output streams.
	// Nil discards.
	Stdout io.Writer
	Stderr io.Writer

	mu     sync.Mutex
	status Status

	metrics *supervisorMetrics

	// Per-launch bookkeeping consumed by snapshot capture.
	childCommand      []string
	childEnv          []string
	recoveryAttempted bool
	recoverySucceeded bool
	lastBreaker       restart.BreakerState
}

// New wires a supervisor from its collaborators. A nil logger discards
// log output. The unit comes from cfg.Unit.Name.
func New(cfg *config.Config, launch launcher.Launcher, policy *restart.Policy, sampler *monitor.Sampler, manager *state.Manager, logger *log.Logger) *Supervisor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	unit := cfg.Unit.Name
	metrics, err := newSupervisorMetrics(unit)
	if err != nil {
		logger.Printf("Warning: metrics registration failed: %v", err)
		metrics = nil
	}
	return &Supervisor{
		cfg:     cfg,
		unitID:  unit,
		logger:  logger,
		launch:  launch,
		policy:  policy,
		sampler: sampler,
		manager: manager,
		metrics: metrics,
		status: Status{
			Unit:        unit,
			State:       StateStopped,
			MemoryState: monitor.SeverityNormal,
		},
		lastBreaker: restart.BreakerClosed,
	}
}

// Status returns a copy of the current status.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.status.State = st
	s.status.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()
	s.writeStatus()
}

func (s *Supervisor) setLastReason(reason string) {
	s.mu.Lock()
	s.status.LastReason = reason
	s.mu.Unlock()
}

// writeStatus persists status.json for the CLI. Best effort: a failed
// write is logged and supervision continues.
func (s *Supervisor) writeStatus() {
	s.mu.Lock()
	snapshot := s.status
	s.mu.Unlock()
	if err := util.AtomicWriteJSON(s.cfg.StatusFile(s.unitID), snapshot); err != nil {
		s.logger.Printf("Warning: failed to write status file: %v", err)
	}
}

// noteSample folds a memory sample into the status and telemetry.
// WARNING severity is logged but does not interrupt the subprocess.
func (s *Supervisor) noteSample(ctx context.Context, sample monitor.Sample) {
	s.mu.Lock()
	s.status.MemoryState = sample.Severity
	s.status.CurrentMB = sample.CurrentMB
	s.status.CPUPercent = sample.CPUPercent
	s.status.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()
	s.writeStatus()

	s.metrics.updateSample(sample.CurrentMB, sample.CPUPercent)
	telemetry.RecordSample(ctx, s.unitID, sample.Severity.String(), sample.CurrentMB, sample.CPUPercent)
	if sample.Severity == monitor.SeverityWarning {
		s.logger.Printf("Warning: %s memory at %.0f MB (pid %d)", s.unitID, sample.CurrentMB, sample.PID)
	}
}

// noteBreaker diffs the circuit breaker against its last observed
// state and records a transition when it moved. The policy owns the
// state machine; this is purely observational.
func (s *Supervisor) noteBreaker(ctx context.Context) {
	hist := s.policy.Status(s.unitID)
	if hist == nil {
		return
	}
	s.mu.Lock()
	prev := s.lastBreaker
	s.lastBreaker = hist.Breaker
	s.mu.Unlock()
	if prev != hist.Breaker {
		telemetry.RecordBreakerTransition(ctx, s.unitID, string(prev), string(hist.Breaker))
	}
}

// finish maps a loop-terminating error to Run's contract: context
// cancellation is a clean stop, anything else propagates.
func (s *Supervisor) finish(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.logger.Printf("Supervision of %s canceled", s.unitID)
		return nil
	}
	return err
}
