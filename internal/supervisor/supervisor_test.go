package supervisor_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/medic/internal/config"
	"github.com/steveyegge/medic/internal/launcher"
	"github.com/steveyegge/medic/internal/monitor"
	"github.com/steveyegge/medic/internal/restart"
	"github.com/steveyegge/medic/internal/state"
	"github.com/steveyegge/medic/internal/supervisor"
	"github.com/steveyegge/medic/internal/testutil"
)

const testUnit = "claude"

// memSource is a scripted ProcSource. Readings default to def MB and
// can be overridden per pid, so a test can push one child over a
// threshold without racing the relaunch.
type memSource struct {
	mu     sync.Mutex
	def    float64
	perPID map[int]float64
}

func newMemSource(def float64) *memSource {
	return &memSource{def: def, perPID: make(map[int]float64)}
}

func (m *memSource) Stats(pid int) (float64, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.perPID[pid]; ok {
		return v, 12.5, nil
	}
	return m.def, 12.5, nil
}

func (m *memSource) setPID(pid int, mem float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perPID[pid] = mem
}

type harness struct {
	cfg    *config.Config
	double *launcher.Double
	policy *restart.Policy
	source *memSource
	mgr    *state.Manager
	sup    *supervisor.Supervisor
}

// newHarness wires a supervisor over a scripted launcher and proc
// source. Backoffs are zeroed so restart loops run at full speed;
// mutate adjusts the config before the policy is built.
func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()

	fix := testutil.NewUnitFixture(t, testUnit)
	cfg := fix.Cfg
	cfg.Restart.InitialBackoff = 0
	cfg.Restart.MaxBackoff = 0
	if mutate != nil {
		mutate(cfg)
	}

	policy, err := restart.New(cfg.Restart, nil)
	require.NoError(t, err)

	source := newMemSource(50)
	sampler := monitor.NewSamplerWithSource(cfg.Thresholds(), 5*time.Millisecond, nil, source)
	mgr := state.NewManager(testUnit, cfg.SnapshotsDir(testUnit), nil)
	double := launcher.NewDouble()

	return &harness{
		cfg:    cfg,
		double: double,
		policy: policy,
		source: source,
		mgr:    mgr,
		sup:    supervisor.New(cfg, double, policy, sampler, mgr, nil),
	}
}

func (h *harness) run(ctx context.Context, initialContext string) <-chan error {
	done := make(chan error, 1)
	go func() { done <- h.sup.Run(ctx, initialContext) }()
	return done
}

func waitErr(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop in time")
		return nil
	}
}

func (h *harness) waitStarts(t *testing.T, n int) {
	t.Helper()
	testutil.MustWaitFor(t, func() bool {
		return h.double.StartCount() >= n
	}, 5*time.Second, "subprocess launch")
}

func TestRun_CleanExitEndsSupervision(t *testing.T) {
	h := newHarness(t, nil)

	done := h.run(context.Background(), "")
	h.waitStarts(t, 1)
	h.double.Exit(h.double.LastPID(), 0)
	require.NoError(t, waitErr(t, done))

	st := h.sup.Status()
	assert.False(t, st.Enabled)
	assert.Equal(t, supervisor.StateStopped, st.State)
	assert.Equal(t, "process exited cleanly", st.LastReason)
	assert.Equal(t, 1, h.double.StartCount())
	assert.Equal(t, 0, h.policy.AttemptCount(testUnit))
}

func TestRun_CrashRestartsWithRestoredContext(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := h.run(ctx, "")
	h.waitStarts(t, 1)
	first := h.double.LastPID()
	h.double.Exit(first, 3)
	h.waitStarts(t, 2)
	cancel()
	require.NoError(t, waitErr(t, done))

	require.Equal(t, 1, h.policy.AttemptCount(testUnit))
	hist := h.policy.Status(testUnit)
	require.NotNil(t, hist)
	require.Len(t, hist.Attempts, 1)
	assert.True(t, hist.Attempts[0].Success)

	infos, err := h.mgr.List()
	require.NoError(t, err)
	require.NotEmpty(t, infos)
	assert.Equal(t, state.TriggerCrash, infos[0].Trigger)
	assert.Contains(t, infos[0].Reason, "exited with code 3")
	assert.True(t, infos[0].Restored, "crash snapshot should be consumed by the relaunch")

	starts := h.double.Starts()
	require.Len(t, starts, 2)
	assert.Contains(t, starts[0].Env, supervisor.EnvRestartCount+"=0")
	assert.Contains(t, starts[1].Env, supervisor.EnvRestartCount+"=1")
	assert.Contains(t, starts[1].Env, supervisor.EnvRestoredSnapshot+"="+infos[0].ID)
}

func TestRun_MemoryPressureRestarts(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := h.run(ctx, "")
	h.waitStarts(t, 1)
	first := h.double.LastPID()
	h.source.setPID(first, 5000)
	h.waitStarts(t, 2)
	cancel()
	require.NoError(t, waitErr(t, done))

	assert.Equal(t, 1, h.policy.AttemptCount(testUnit))
	assert.Contains(t, h.double.TerminatedPIDs(), first)

	infos, err := h.mgr.List()
	require.NoError(t, err)
	require.NotEmpty(t, infos)
	assert.Equal(t, state.TriggerMemory, infos[0].Trigger)
	assert.InDelta(t, 5000, infos[0].MemoryMB, 0.1)
	assert.Contains(t, infos[0].Reason, "EMERGENCY")
}

func TestRun_WarningDoesNotRestart(t *testing.T) {
	h := newHarness(t, nil)

	done := h.run(context.Background(), "")
	h.waitStarts(t, 1)
	first := h.double.LastPID()
	h.source.setPID(first, 2500)

	testutil.MustWaitFor(t, func() bool {
		return h.sup.Status().MemoryState == monitor.SeverityWarning
	}, 5*time.Second, "warning sample")

	assert.Equal(t, 1, h.double.StartCount())
	h.double.Exit(first, 0)
	require.NoError(t, waitErr(t, done))
	assert.Equal(t, 0, h.policy.AttemptCount(testUnit))
}

func TestRun_MaxAttemptsDenied(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Restart.MaxAttempts = 2
	})
	h.double.SetAutoExit(1)

	done := h.run(context.Background(), "")
	err := waitErr(t, done)
	require.ErrorIs(t, err, supervisor.ErrRestartDenied)
	assert.Contains(t, err.Error(), "maximum restart attempts reached")

	assert.Equal(t, 3, h.double.StartCount(), "initial launch plus two permitted restarts")
	st := h.sup.Status()
	assert.Equal(t, supervisor.StateStopped, st.State)
	assert.Equal(t, "maximum restart attempts reached", st.LastReason)
	assert.Equal(t, 2, st.RestartCount)
}

func TestRun_BreakerOpensOnRelaunchFailures(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Restart.MaxAttempts = 10
		cfg.Restart.BreakerThreshold = 2
	})
	ctx := context.Background()

	done := h.run(ctx, "")
	h.waitStarts(t, 1)
	h.double.QueueStartFailure(errors.New("spawn failed"))
	h.double.QueueStartFailure(errors.New("spawn failed"))
	h.double.Exit(h.double.LastPID(), 1)

	err := waitErr(t, done)
	require.ErrorIs(t, err, supervisor.ErrRestartDenied)
	assert.Contains(t, err.Error(), "circuit breaker open")

	hist := h.policy.Status(testUnit)
	require.NotNil(t, hist)
	assert.Equal(t, restart.BreakerOpen, hist.Breaker)
	assert.Equal(t, 2, h.policy.ConsecutiveFailures(testUnit))
	assert.Equal(t, 1, h.double.StartCount())
}

func TestRun_SecondSupervisorRefused(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := h.run(ctx, "")
	h.waitStarts(t, 1)

	policy2, err := restart.New(h.cfg.Restart, nil)
	require.NoError(t, err)
	sampler2 := monitor.NewSamplerWithSource(h.cfg.Thresholds(), 5*time.Millisecond, nil, newMemSource(50))
	mgr2 := state.NewManager(testUnit, h.cfg.SnapshotsDir(testUnit), nil)
	second := supervisor.New(h.cfg, launcher.NewDouble(), policy2, sampler2, mgr2, nil)

	err = second.Run(ctx, "")
	require.ErrorIs(t, err, supervisor.ErrAlreadyRunning)

	cancel()
	require.NoError(t, waitErr(t, done))
}

func TestRun_ShutdownCapturesManualSnapshot(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := h.run(ctx, "")
	h.waitStarts(t, 1)
	pid := h.double.LastPID()
	cancel()
	require.NoError(t, waitErr(t, done))

	assert.Contains(t, h.double.TerminatedPIDs(), pid)

	infos, err := h.mgr.List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, state.TriggerManual, infos[0].Trigger)
	assert.Equal(t, "supervisor shutdown", infos[0].Reason)

	st, err := supervisor.ReadStatusFile(h.cfg.StatusFile(testUnit))
	require.NoError(t, err)
	assert.Equal(t, testUnit, st.Unit)
	assert.Equal(t, supervisor.StateStopped, st.State)
	assert.False(t, st.Enabled)

	_, err = os.Stat(h.cfg.PIDFile(testUnit))
	assert.True(t, os.IsNotExist(err), "pid file should be removed on exit")
}

func TestRun_OneShotContextFirstLaunchOnly(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := h.run(ctx, "fix the flaky integration test")
	h.waitStarts(t, 1)
	h.double.Exit(h.double.LastPID(), 2)
	h.waitStarts(t, 2)
	cancel()
	require.NoError(t, waitErr(t, done))

	starts := h.double.Starts()
	require.Len(t, starts, 2)
	assert.Equal(t, []string{"claude", "--continue", "fix the flaky integration test"}, starts[0].Command)
	assert.Equal(t, []string{"claude", "--continue"}, starts[1].Command)
}

func TestRun_RestoresSeededSnapshot(t *testing.T) {
	h := newHarness(t, nil)

	seed := h.mgr.Capture(context.Background(), state.CaptureInput{
		Reason:    "previous shutdown",
		Trigger:   state.TriggerManual,
		PID:       999,
		Command:   []string{"claude"},
		StartedAt: time.Now().Add(-time.Hour),
	})
	require.NotNil(t, seed)
	require.NoError(t, h.mgr.Persist(seed))

	done := h.run(context.Background(), "")
	h.waitStarts(t, 1)
	h.double.Exit(h.double.LastPID(), 0)
	require.NoError(t, waitErr(t, done))

	starts := h.double.Starts()
	require.Len(t, starts, 1)
	assert.Contains(t, starts[0].Env, supervisor.EnvRestoredSnapshot+"="+seed.ID)
	assert.Equal(t, seed.ID, h.mgr.LastRestored())
}

func TestRun_InitialLaunchFailureIsFatal(t *testing.T) {
	h := newHarness(t, nil)
	h.double.QueueStartFailure(errors.New("claude not found"))

	done := h.run(context.Background(), "")
	err := waitErr(t, done)
	require.Error(t, err)
	assert.NotErrorIs(t, err, supervisor.ErrRestartDenied)
	assert.Contains(t, err.Error(), "claude not found")

	assert.Equal(t, 0, h.double.StartCount())
	assert.Equal(t, 0, h.policy.AttemptCount(testUnit))
}
