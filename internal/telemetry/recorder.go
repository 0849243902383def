// Recording helpers for supervision events. Each helper increments a
// metric counter and, where the event is worth a line, emits an OTel
// log event.

package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterRecorderName = "github.com/steveyegge/medic"
	loggerName        = "medic"
)

// recorderInstruments holds all lazy-initialized OTel metric
// instruments.
type recorderInstruments struct {
	// Counters
	sampleTotal          metric.Int64Counter
	launchTotal          metric.Int64Counter
	restartAttemptTotal  metric.Int64Counter
	restartDenialTotal   metric.Int64Counter
	breakerTotal         metric.Int64Counter
	snapshotCaptureTotal metric.Int64Counter
	snapshotRestoreTotal metric.Int64Counter

	// Histograms
	memoryHist  metric.Float64Histogram
	backoffHist metric.Float64Histogram
}

var (
	instOnce sync.Once
	inst     recorderInstruments
)

// initInstruments registers the recorder instruments against the
// current global MeterProvider. Called from telemetry.Init once the
// real provider is set, and lazily on first use as a safety net.
func initInstruments() {
	instOnce.Do(func() {
		m := otel.GetMeterProvider().Meter(meterRecorderName)

		inst.sampleTotal, _ = m.Int64Counter("medic.monitor.samples.total",
			metric.WithDescription("Total resource samples taken, by severity"),
		)
		inst.launchTotal, _ = m.Int64Counter("medic.launch.total",
			metric.WithDescription("Total subprocess launches"),
		)
		inst.restartAttemptTotal, _ = m.Int64Counter("medic.restart.attempts.total",
			metric.WithDescription("Total recorded restart attempts"),
		)
		inst.restartDenialTotal, _ = m.Int64Counter("medic.restart.denials.total",
			metric.WithDescription("Total restarts denied by policy, by reason"),
		)
		inst.breakerTotal, _ = m.Int64Counter("medic.breaker.transitions.total",
			metric.WithDescription("Total circuit breaker state transitions"),
		)
		inst.snapshotCaptureTotal, _ = m.Int64Counter("medic.snapshot.captures.total",
			metric.WithDescription("Total state snapshot captures"),
		)
		inst.snapshotRestoreTotal, _ = m.Int64Counter("medic.snapshot.restores.total",
			metric.WithDescription("Total state snapshot restores"),
		)

		inst.memoryHist, _ = m.Float64Histogram("medic.monitor.memory_mb",
			metric.WithDescription("Sampled resident memory of the supervised process"),
			metric.WithUnit("MBy"),
		)
		inst.backoffHist, _ = m.Float64Histogram("medic.restart.backoff_seconds",
			metric.WithDescription("Backoff delay observed before restart attempts"),
			metric.WithUnit("s"),
		)
	})
}

// statusStr returns "ok" or "error" depending on whether err is nil.
func statusStr(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// emit sends an OTel log event with the given body and attributes.
func emit(ctx context.Context, body string, sev otellog.Severity, attrs ...otellog.KeyValue) {
	logger := global.GetLoggerProvider().Logger(loggerName)
	var r otellog.Record
	r.SetBody(otellog.StringValue(body))
	r.SetSeverity(sev)
	r.AddAttributes(attrs...)
	logger.Emit(ctx, r)
}

// errKV returns a log KeyValue with the error message, or empty string
// if nil.
func errKV(err error) otellog.KeyValue {
	if err != nil {
		return otellog.String("error", err.Error())
	}
	return otellog.String("error", "")
}

// severity returns SeverityInfo on success, SeverityError on failure.
func severity(err error) otellog.Severity {
	if err != nil {
		return otellog.SeverityError
	}
	return otellog.SeverityInfo
}

// RecordSample records one resource sample. Counted always; a log
// event is emitted only above NORMAL, since samples recur every tick.
func RecordSample(ctx context.Context, unit, sampleSeverity string, memMB, cpuPercent float64) {
	initInstruments()
	attrs := metric.WithAttributes(
		attribute.String("unit", unit),
		attribute.String("severity", sampleSeverity),
	)
	inst.sampleTotal.Add(ctx, 1, attrs)
	inst.memoryHist.Record(ctx, memMB, attrs)
	if sampleSeverity == "NORMAL" {
		return
	}
	sev := otellog.SeverityWarn
	if sampleSeverity == "CRITICAL" || sampleSeverity == "EMERGENCY" {
		sev = otellog.SeverityError
	}
	emit(ctx, "monitor.sample", sev,
		otellog.String("unit", unit),
		otellog.String("severity", sampleSeverity),
		otellog.Float64("memory_mb", memMB),
		otellog.Float64("cpu_percent", cpuPercent),
	)
}

// RecordLaunch records a subprocess launch attempt (metrics + log
// event).
func RecordLaunch(ctx context.Context, unit string, pid int, err error) {
	initInstruments()
	status := statusStr(err)
	inst.launchTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("unit", unit),
			attribute.String("status", status),
		),
	)
	emit(ctx, "launch", severity(err),
		otellog.String("unit", unit),
		otellog.Int64("pid", int64(pid)),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordRestartAttempt records one restart attempt with the backoff
// that preceded it (metrics + log event).
func RecordRestartAttempt(ctx context.Context, unit, trigger string, attempt int, backoffSeconds float64, err error) {
	initInstruments()
	status := statusStr(err)
	attrs := metric.WithAttributes(
		attribute.String("unit", unit),
		attribute.String("status", status),
		attribute.String("trigger", trigger),
	)
	inst.restartAttemptTotal.Add(ctx, 1, attrs)
	inst.backoffHist.Record(ctx, backoffSeconds, attrs)
	emit(ctx, "restart.attempt", severity(err),
		otellog.String("unit", unit),
		otellog.String("trigger", trigger),
		otellog.Int64("attempt", int64(attempt)),
		otellog.Float64("backoff_seconds", backoffSeconds),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordRestartDenied records a terminal policy denial (metrics + log
// event).
func RecordRestartDenied(ctx context.Context, unit, reason string) {
	initInstruments()
	inst.restartDenialTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("unit", unit),
			attribute.String("reason", reason),
		),
	)
	emit(ctx, "restart.denied", otellog.SeverityError,
		otellog.String("unit", unit),
		otellog.String("reason", reason),
	)
}

// RecordBreakerTransition records a circuit breaker state change
// (metrics + log event).
func RecordBreakerTransition(ctx context.Context, unit, from, to string) {
	initInstruments()
	inst.breakerTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("unit", unit),
			attribute.String("to", to),
		),
	)
	emit(ctx, "breaker.transition", otellog.SeverityWarn,
		otellog.String("unit", unit),
		otellog.String("from", from),
		otellog.String("to", to),
	)
}

// RecordSnapshotCapture records a state capture (metrics + log event).
func RecordSnapshotCapture(ctx context.Context, unit, id, trigger string, err error) {
	initInstruments()
	status := statusStr(err)
	inst.snapshotCaptureTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("unit", unit),
			attribute.String("status", status),
			attribute.String("trigger", trigger),
		),
	)
	emit(ctx, "snapshot.capture", severity(err),
		otellog.String("unit", unit),
		otellog.String("snapshot_id", id),
		otellog.String("trigger", trigger),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordSnapshotRestore records a state restore (metrics + log event).
func RecordSnapshotRestore(ctx context.Context, unit, id string, err error) {
	initInstruments()
	status := statusStr(err)
	inst.snapshotRestoreTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("unit", unit),
			attribute.String("status", status),
		),
	)
	emit(ctx, "snapshot.restore", severity(err),
		otellog.String("unit", unit),
		otellog.String("snapshot_id", id),
		otellog.String("status", status),
		errKV(err),
	)
}
