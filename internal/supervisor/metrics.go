package supervisor

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/steveyegge/medic/supervisor"

// supervisorMetrics holds the observable gauges for one supervised
// unit. Values are written by the control loop and collected by the
// SDK on each export interval. All methods are nil-safe so callers
// don't need to guard against disabled telemetry.
type supervisorMetrics struct {
	unit string

	mu             sync.RWMutex
	memoryMB       float64
	cpuPercent     float64
	childStartedAt time.Time
	running        bool
}

// newSupervisorMetrics registers the unit gauges against the global
// MeterProvider. Must be called after telemetry.Init so the provider
// is set; without one the instruments are no-ops.
func newSupervisorMetrics(unit string) (*supervisorMetrics, error) {
	m := otel.GetMeterProvider().Meter(meterName)
	sm := &supervisorMetrics{unit: unit}

	memGauge, err := m.Float64ObservableGauge("medic.unit.memory_mb",
		metric.WithDescription("Resident memory of the supervised subprocess"),
		metric.WithUnit("MBy"),
	)
	if err != nil {
		return nil, err
	}

	cpuGauge, err := m.Float64ObservableGauge("medic.unit.cpu_percent",
		metric.WithDescription("CPU usage of the supervised subprocess"),
	)
	if err != nil {
		return nil, err
	}

	uptimeGauge, err := m.Float64ObservableGauge("medic.unit.uptime_seconds",
		metric.WithDescription("Uptime of the current subprocess incarnation"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	runningGauge, err := m.Int64ObservableGauge("medic.unit.running",
		metric.WithDescription("Whether a supervised subprocess is up (1=running, 0=down)"),
	)
	if err != nil {
		return nil, err
	}

	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		sm.mu.RLock()
		defer sm.mu.RUnlock()

		attrs := metric.WithAttributes(attribute.String("medic.unit", sm.unit))
		var uptime float64
		var runningInt int64
		if sm.running {
			runningInt = 1
			if !sm.childStartedAt.IsZero() {
				uptime = time.Since(sm.childStartedAt).Seconds()
			}
		}
		o.ObserveFloat64(memGauge, sm.memoryMB, attrs)
		o.ObserveFloat64(cpuGauge, sm.cpuPercent, attrs)
		o.ObserveFloat64(uptimeGauge, uptime, attrs)
		o.ObserveInt64(runningGauge, runningInt, attrs)
		return nil
	}, memGauge, cpuGauge, uptimeGauge, runningGauge)
	if err != nil {
		return nil, err
	}

	return sm, nil
}

// markLaunched records a fresh subprocess incarnation.
func (sm *supervisorMetrics) markLaunched(startedAt time.Time) {
	if sm == nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.childStartedAt = startedAt
	sm.running = true
	sm.memoryMB = 0
	sm.cpuPercent = 0
}

// markDown records that the subprocess is gone or about to be killed.
func (sm *supervisorMetrics) markDown() {
	if sm == nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.running = false
}

// updateSample stores the latest monitor reading.
func (sm *supervisorMetrics) updateSample(memMB, cpuPercent float64) {
	if sm == nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.memoryMB = memMB
	sm.cpuPercent = cpuPercent
}
