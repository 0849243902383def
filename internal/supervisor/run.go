package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gofrs/flock"

	"github.com/steveyegge/medic/internal/launcher"
	"github.com/steveyegge/medic/internal/monitor"
	"github.com/steveyegge/medic/internal/state"
	"github.com/steveyegge/medic/internal/telemetry"
)

// Environment variables injected into every supervised subprocess.
const (
	// EnvUnit carries the unit identifier.
	EnvUnit = "MEDIC_UNIT"

	// EnvRestartCount carries how many restarts preceded this launch.
	EnvRestartCount = "MEDIC_RESTART_COUNT"

	// EnvRestoredSnapshot carries the id of the snapshot whose context
	// was restored for this launch, unset on a cold start.
	EnvRestoredSnapshot = "MEDIC_RESTORED_SNAPSHOT"
)

// exitOutcome classifies why superviseChild returned.
type exitOutcome int

const (
	outcomeCanceled exitOutcome = iota
	outcomeClean
	outcomeCrash
	outcomeMemory
)

type superviseResult struct {
	outcome exitOutcome
	exit    launcher.ExitResult
	sample  monitor.Sample
}

// pendingRestart is carried across the loop between a restart decision
// and the relaunch it authorized.
type pendingRestart struct {
	trigger state.Trigger
	backoff time.Duration
}

// Run supervises the configured unit until its subprocess exits
// cleanly, the restart policy denies a restart, or ctx is canceled.
//
// initialContext, when non-empty, is appended to the subprocess argv
// for the first launch only; relaunches rely on the restored snapshot
// instead.
//
// Cancellation is a clean stop and returns nil: the subprocess is
// terminated gracefully and a final snapshot is captured. A policy
// denial returns an error wrapping ErrRestartDenied. A second Run for
// the same unit fails with ErrAlreadyRunning.
func (s *Supervisor) Run(ctx context.Context, initialContext string) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.cfg.UnitDir(s.unitID), 0755); err != nil {
		return fmt.Errorf("creating unit dir: %w", err)
	}

	// One supervisor per unit. The lock file outlives crashes; flock
	// releases with the process, so stale files are harmless.
	fileLock := flock.New(s.cfg.LockFile(s.unitID))
	locked, err := fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring unit lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: lock on %s held by another process", ErrAlreadyRunning, s.unitID)
	}
	defer func() { _ = fileLock.Unlock() }()

	pidFile := s.cfg.PIDFile(s.unitID)
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}
	defer func() { _ = os.Remove(pidFile) }()

	s.logger.Printf("Supervising %s (supervisor pid %d)", s.unitID, os.Getpid())
	s.mu.Lock()
	s.status.Enabled = true
	s.status.PID = os.Getpid()
	s.status.StartedAt = time.Now().UTC()
	s.status.RestartCount = s.policy.AttemptCount(s.unitID)
	s.mu.Unlock()
	defer s.markStopped()

	oneShot := initialContext
	var pending *pendingRestart

	for {
		if ctx.Err() != nil {
			return nil
		}
		s.setState(StateStarting)

		restored := s.restoreSnapshot(ctx)
		launchCount := s.policy.AttemptCount(s.unitID)
		if pending != nil {
			launchCount++
		}
		pid, startedAt, err := s.launchChild(restored, oneShot, launchCount)
		oneShot = ""
		telemetry.RecordLaunch(ctx, s.unitID, pid, err)

		if pending != nil {
			failReason := ""
			if err != nil {
				failReason = fmt.Sprintf("relaunch failed: %v", err)
			}
			s.policy.RecordAttempt(s.unitID, err == nil, failReason)
			telemetry.RecordRestartAttempt(ctx, s.unitID, string(pending.trigger),
				s.policy.AttemptCount(s.unitID), pending.backoff.Seconds(), err)
			s.noteBreaker(ctx)
			s.mu.Lock()
			s.status.RestartCount = s.policy.AttemptCount(s.unitID)
			s.mu.Unlock()
		}

		if err != nil {
			if pending == nil {
				s.logger.Printf("Initial launch failed: %v", err)
				return fmt.Errorf("starting %s: %w", s.unitID, err)
			}
			s.logger.Printf("Relaunch failed: %v", err)
			next, gerr := s.gate(ctx, pending.trigger)
			if gerr != nil {
				return s.finish(gerr)
			}
			pending = next
			continue
		}
		pending = nil
		s.setState(StateRunning)

		res := s.superviseChild(ctx, pid)
		switch res.outcome {
		case outcomeCanceled:
			s.shutdownChild(pid, startedAt)
			s.logger.Printf("Supervision of %s canceled", s.unitID)
			return nil

		case outcomeClean:
			s.setLastReason("process exited cleanly")
			s.logger.Printf("%s exited cleanly, supervision complete", s.unitID)
			return nil

		default:
			trigger, reason := describeOutcome(res)
			s.logger.Printf("Restart condition for %s: %s", s.unitID, reason)
			s.setLastReason(reason)
			s.setState(StateRestarting)

			// Capture before the gate so context is preserved even
			// when this turns out to be the final denial.
			s.captureRestartSnapshot(ctx, pid, startedAt, trigger, reason, res)

			next, gerr := s.gate(ctx, trigger)
			if gerr != nil {
				s.terminateChild(pid)
				return s.finish(gerr)
			}
			s.terminateChild(pid)
			pending = next
		}
	}
}

// gate asks the policy for permission and observes the backoff. On
// success it returns the pendingRestart to carry into the relaunch; on
// denial it returns an ErrRestartDenied-wrapped error, and on
// cancellation during backoff it returns ctx.Err().
func (s *Supervisor) gate(ctx context.Context, trigger state.Trigger) (*pendingRestart, error) {
	allowed, denyReason := s.policy.ShouldRestart(s.unitID)
	s.noteBreaker(ctx)
	if !allowed {
		s.logger.Printf("Not restarting %s: %s", s.unitID, denyReason)
		telemetry.RecordRestartDenied(ctx, s.unitID, denyReason)
		s.setLastReason(denyReason)
		return nil, fmt.Errorf("%w: %s", ErrRestartDenied, denyReason)
	}

	backoff := s.policy.Backoff(s.unitID)
	if backoff > 0 {
		s.logger.Printf("Waiting %s before restarting %s", backoff, s.unitID)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &pendingRestart{trigger: trigger, backoff: backoff}, nil
}

// launchChild starts the subprocess with the unit's command plus the
// injected environment. oneShot, when non-empty, is appended as a
// final argv element.
func (s *Supervisor) launchChild(restored *state.Snapshot, oneShot string, restartCount int) (int, time.Time, error) {
	argv := append([]string(nil), s.cfg.Unit.Command...)
	if oneShot != "" {
		argv = append(argv, oneShot)
	}

	env := append(os.Environ(),
		EnvUnit+"="+s.unitID,
		EnvRestartCount+"="+strconv.Itoa(restartCount),
	)
	if restored != nil {
		env = append(env, EnvRestoredSnapshot+"="+restored.ID)
	}
	env = append(env, telemetry.OTELEnvForSubprocess(s.unitID, restartCount)...)

	pid, err := s.launch.Start(launcher.Spec{
		Command:    argv,
		WorkingDir: s.cfg.Unit.WorkingDir,
		Env:        env,
		Stdout:     s.Stdout,
		Stderr:     s.Stderr,
	})
	if err != nil {
		return 0, time.Time{}, err
	}
	startedAt := time.Now().UTC()

	s.mu.Lock()
	s.status.ChildPID = pid
	s.status.ChildStartedAt = startedAt
	s.status.MemoryState = monitor.SeverityNormal
	s.status.CurrentMB = 0
	s.status.CPUPercent = 0
	s.childCommand = argv
	s.childEnv = env
	s.recoveryAttempted = restored != nil
	s.recoverySucceeded = restored != nil
	s.mu.Unlock()
	s.writeStatus()
	s.metrics.markLaunched(startedAt)
	return pid, startedAt, nil
}

// superviseChild watches one subprocess until it exits, a restart-worthy
// memory sample arrives, or ctx is canceled. The sampler goroutine is
// stopped before returning.
func (s *Supervisor) superviseChild(ctx context.Context, pid int) superviseResult {
	sampleCtx, stopSampler := context.WithCancel(ctx)
	defer stopSampler()

	samples := make(chan monitor.Sample, 1)
	go s.sampler.Run(sampleCtx, s.unitID, pid, samples)
	exited := s.launch.Wait(pid)

	for {
		select {
		case <-ctx.Done():
			return superviseResult{outcome: outcomeCanceled}
		case exit := <-exited:
			if exit.Code == 0 && exit.Err == nil {
				return superviseResult{outcome: outcomeClean, exit: exit}
			}
			return superviseResult{outcome: outcomeCrash, exit: exit}
		case sample := <-samples:
			s.noteSample(ctx, sample)
			if sample.Severity.Restartworthy() {
				return superviseResult{outcome: outcomeMemory, sample: sample}
			}
		}
	}
}

// describeOutcome maps a crash or memory outcome to its snapshot
// trigger and human-readable reason.
func describeOutcome(res superviseResult) (state.Trigger, string) {
	if res.outcome == outcomeMemory {
		return state.TriggerMemory,
			fmt.Sprintf("memory %s: %.0f MB", res.sample.Severity, res.sample.CurrentMB)
	}
	switch {
	case res.exit.Err != nil:
		return state.TriggerCrash, fmt.Sprintf("process wait failed: %v", res.exit.Err)
	case res.exit.Code >= 0:
		return state.TriggerCrash, fmt.Sprintf("process exited with code %d", res.exit.Code)
	default:
		return state.TriggerCrash, "process killed by signal"
	}
}

// captureRestartSnapshot persists a snapshot for a crash or memory
// restart. Memory outcomes reuse the triggering sample's readings; a
// crashed process reads as zeros.
func (s *Supervisor) captureRestartSnapshot(ctx context.Context, pid int, startedAt time.Time, trigger state.Trigger, reason string, res superviseResult) {
	memMB, cpu := res.sample.CurrentMB, res.sample.CPUPercent
	if res.outcome != outcomeMemory {
		cpu, memMB = s.launch.CPUMem(pid)
	}
	in := s.captureInput(pid, startedAt, trigger, reason, memMB, cpu)
	if res.outcome == outcomeCrash {
		in.ErrorType = "process_exit"
		in.ErrorMessage = reason
	}
	s.captureAndPersist(ctx, in)
}

// shutdownChild handles cancellation while the subprocess is running:
// read final metrics, terminate gracefully, then capture a manual
// snapshot so the next supervisor can restore it.
func (s *Supervisor) shutdownChild(pid int, startedAt time.Time) {
	s.logger.Printf("Shutting down %s (pid %d)", s.unitID, pid)
	cpu, memMB := s.launch.CPUMem(pid)
	s.terminateChild(pid)

	in := s.captureInput(pid, startedAt, state.TriggerManual, "supervisor shutdown", memMB, cpu)
	s.captureAndPersist(context.Background(), in)
}

func (s *Supervisor) terminateChild(pid int) {
	s.metrics.markDown()
	if err := s.launch.Terminate(pid, s.cfg.Grace()); err != nil {
		s.logger.Printf("Warning: terminating pid %d: %v", pid, err)
	}
}

// captureInput assembles the supervisor's view of the subprocess for
// the state manager. Env is sanitized here so secrets never leave this
// process in snapshot form.
func (s *Supervisor) captureInput(pid int, startedAt time.Time, trigger state.Trigger, reason string, memMB, cpu float64) state.CaptureInput {
	s.mu.Lock()
	cmd := append([]string(nil), s.childCommand...)
	env := append([]string(nil), s.childEnv...)
	recAttempted := s.recoveryAttempted
	recSucceeded := s.recoverySucceeded
	s.mu.Unlock()

	return state.CaptureInput{
		Reason:            reason,
		Trigger:           trigger,
		PID:               pid,
		ParentPID:         os.Getpid(),
		Command:           cmd,
		WorkingDir:        s.cfg.Unit.WorkingDir,
		Env:               state.SanitizeEnviron(env),
		StartedAt:         startedAt,
		MemoryMB:          memMB,
		CPUPercent:        cpu,
		RestartCount:      s.policy.AttemptCount(s.unitID),
		RecoveryAttempted: recAttempted,
		RecoverySucceeded: recSucceeded,
	}
}

// captureAndPersist runs a bounded capture and writes the snapshot.
// Failures degrade to log lines; supervision never stops over a lost
// snapshot.
func (s *Supervisor) captureAndPersist(ctx context.Context, in state.CaptureInput) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.CaptureTimeout())
	defer cancel()

	snap := s.manager.Capture(cctx, in)
	if snap == nil {
		s.logger.Printf("Warning: snapshot capture failed for %s", s.unitID)
		telemetry.RecordSnapshotCapture(ctx, s.unitID, "", string(in.Trigger), errors.New("capture failed"))
		return
	}
	err := s.manager.Persist(snap)
	if err != nil {
		s.logger.Printf("Warning: persisting snapshot %s: %v", snap.ID, err)
	}
	telemetry.RecordSnapshotCapture(ctx, s.unitID, snap.ID, string(in.Trigger), err)
}

// restoreSnapshot consumes the newest unconsumed snapshot, if any.
func (s *Supervisor) restoreSnapshot(ctx context.Context) *state.Snapshot {
	snap := s.manager.Restore()
	if snap == nil {
		return nil
	}
	s.logger.Printf("Restoring context from snapshot %s (trigger=%s)", snap.ID, snap.Restart.Trigger)
	telemetry.RecordSnapshotRestore(ctx, s.unitID, snap.ID, nil)
	return snap
}

// markStopped finalizes the status file when Run returns.
func (s *Supervisor) markStopped() {
	s.metrics.markDown()
	s.mu.Lock()
	s.status.Enabled = false
	s.status.State = StateStopped
	s.status.ChildPID = 0
	s.status.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()
	s.writeStatus()
}
