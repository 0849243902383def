package ui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

func init() {
	// Honor NO_COLOR and CLICOLOR before anything renders.
	if !ShouldUseColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// Shared styles for command output. Exported so verbs can compose
// their own lines without redefining the palette.
var (
	PassStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("76"))
	WarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	FailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	MutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

// Tree fragments for nested detail lines under a check or status row.
const (
	TreeBranch = "├─ "
	TreeLast   = "└─ "
)

// RenderPassIcon returns the success marker.
func RenderPassIcon() string {
	return PassStyle.Render("✓")
}

// RenderWarnIcon returns the warning marker.
func RenderWarnIcon() string {
	return WarnStyle.Render("!")
}

// RenderFailIcon returns the failure marker.
func RenderFailIcon() string {
	return FailStyle.Render("✗")
}

// RenderMuted renders de-emphasized text.
func RenderMuted(s string) string {
	return MutedStyle.Render(s)
}

// ShortenPath replaces the home directory prefix with ~ for display.
func ShortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == home {
		return "~"
	}
	if strings.HasPrefix(path, home+string(os.PathSeparator)) {
		return "~" + path[len(home):]
	}
	return path
}

// RelativeTime formats a timestamp as a compact age, e.g. "2m ago".
func RelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
