package telemetry

import (
	"fmt"
	"os"
	"strings"
)

// buildUnitResourceAttrs builds an OTEL_RESOURCE_ATTRIBUTES value
// carrying the supervision context, so a supervised process with its
// own telemetry reports under the same labels.
func buildUnitResourceAttrs(unit string, restartCount int) string {
	var attrs []string
	if unit != "" {
		attrs = append(attrs, "medic.unit="+unit)
	}
	attrs = append(attrs, fmt.Sprintf("medic.restart_count=%d", restartCount))
	return strings.Join(attrs, ",")
}

// OTELEnvForSubprocess returns OTEL environment variables to inject
// into the supervised subprocess when its env slice is built
// explicitly. The child inherits the same endpoints medic exports to,
// plus resource attributes identifying the unit and restart
// generation.
//
// Returns nil when telemetry is not active (MEDIC_OTEL_METRICS_URL
// not set).
func OTELEnvForSubprocess(unit string, restartCount int) []string {
	metricsURL := os.Getenv(EnvMetricsURL)
	if metricsURL == "" {
		return nil
	}
	env := []string{
		"OTEL_RESOURCE_ATTRIBUTES=" + buildUnitResourceAttrs(unit, restartCount),
		"OTEL_EXPORTER_OTLP_METRICS_ENDPOINT=" + metricsURL,
	}
	if logsURL := os.Getenv(EnvLogsURL); logsURL != "" {
		env = append(env, "OTEL_EXPORTER_OTLP_LOGS_ENDPOINT="+logsURL)
	}
	return env
}
