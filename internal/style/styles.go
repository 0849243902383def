// Package style renders medic's terminal output: the color palette,
// severity and lifecycle labels, and fixed-width tables.
package style

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Color palette
var (
	colorHealthy   = lipgloss.Color("76")  // green
	colorWarning   = lipgloss.Color("214") // orange
	colorCritical  = lipgloss.Color("196") // bright red
	colorEmergency = lipgloss.Color("201") // magenta
	colorMuted     = lipgloss.Color("242") // gray
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	sepStyle    = lipgloss.NewStyle().Foreground(colorMuted)

	healthyStyle   = lipgloss.NewStyle().Foreground(colorHealthy)
	warningStyle   = lipgloss.NewStyle().Foreground(colorWarning)
	criticalStyle  = lipgloss.NewStyle().Foreground(colorCritical).Bold(true)
	emergencyStyle = lipgloss.NewStyle().Foreground(colorEmergency).Bold(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(colorMuted)
)

var titler = cases.Title(language.English)

// Humanize turns an ALL_CAPS state token into display form,
// e.g. "HALF_OPEN" becomes "Half Open".
func Humanize(token string) string {
	return titler.String(strings.ToLower(strings.ReplaceAll(token, "_", " ")))
}

// SeverityLabel returns a styled, humanized memory severity name.
func SeverityLabel(severity string) string {
	label := Humanize(severity)
	switch strings.ToUpper(severity) {
	case "NORMAL":
		return healthyStyle.Render(label)
	case "WARNING":
		return warningStyle.Render(label)
	case "CRITICAL":
		return criticalStyle.Render(label)
	case "EMERGENCY":
		return emergencyStyle.Render(label)
	default:
		return label
	}
}

// StateLabel returns a styled, humanized supervisor lifecycle state.
func StateLabel(state string) string {
	label := Humanize(state)
	switch strings.ToUpper(state) {
	case "RUNNING":
		return healthyStyle.Render(label)
	case "STARTING", "RESTARTING":
		return warningStyle.Render(label)
	case "STOPPED":
		return mutedStyle.Render(label)
	default:
		return label
	}
}

// BreakerLabel returns a styled, humanized circuit-breaker state.
func BreakerLabel(breaker string) string {
	label := Humanize(breaker)
	switch strings.ToUpper(breaker) {
	case "CLOSED":
		return healthyStyle.Render(label)
	case "HALF_OPEN":
		return warningStyle.Render(label)
	case "OPEN":
		return criticalStyle.Render(label)
	default:
		return label
	}
}

// MemoryMB formats a memory reading for display.
func MemoryMB(mb float64) string {
	if mb >= 1024 {
		return fmt.Sprintf("%.1f GB", mb/1024)
	}
	return fmt.Sprintf("%.0f MB", mb)
}

// Uptime formats a duration as a compact h/m/s string.
func Uptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
