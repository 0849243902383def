// Package state captures, persists, and restores supervised-process
// context across restarts. A snapshot bundles process, session, and
// project records plus the restart event that produced it. Snapshots
// are written one file per capture, restored at most once, and kept
// afterward for audit.
package state

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StateVersion is the snapshot schema version. Restore refuses
// snapshots written with a different version.
const StateVersion = 1

const (
	// maxOpenFiles caps the open-file list in ProcessState.
	maxOpenFiles = 100

	// maxRecentSummaries caps the summary list in SessionState.
	maxRecentSummaries = 20
)

// Trigger identifies what initiated a restart.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerMemory    Trigger = "memory"
	TriggerCrash     Trigger = "crash"
	TriggerScheduled Trigger = "scheduled"
)

// Valid reports whether t is one of the defined triggers.
func (t Trigger) Valid() bool {
	switch t {
	case TriggerManual, TriggerMemory, TriggerCrash, TriggerScheduled:
		return true
	}
	return false
}

// ProcessState records the supervised process as the OS saw it at
// capture time. Env is already sanitized; secret-looking values never
// reach disk in cleartext.
type ProcessState struct {
	PID        int               `json:"pid"`
	ParentPID  int               `json:"parent_pid"`
	Command    []string          `json:"command"`
	WorkingDir string            `json:"working_dir"`
	Env        map[string]string `json:"env"`
	MemoryMB   float64           `json:"memory_mb"`
	CPUPercent float64           `json:"cpu_percent"`
	OpenFiles  []string          `json:"open_files"`
	StartedAt  time.Time         `json:"started_at"`
	CapturedAt time.Time         `json:"captured_at"`
}

// SessionState is the domain-context record supplied by a
// SessionSource. Pure data; the supervisor never interprets it.
type SessionState struct {
	SessionID       string            `json:"session_id"`
	RecentSummaries []string          `json:"recent_summaries"`
	OpenFiles       []string          `json:"open_files"`
	RecentFiles     []string          `json:"recent_files"`
	PinnedFiles     []string          `json:"pinned_files"`
	Preferences     map[string]string `json:"preferences"`
}

// ProjectState records the workspace the session was operating in.
type ProjectState struct {
	Path            string            `json:"path"`
	Name            string            `json:"name"`
	Branch          string            `json:"branch"`
	Commit          string            `json:"commit"`
	VCSStatus       string            `json:"vcs_status"`
	ModifiedFiles   []string          `json:"modified_files"`
	Dependencies    map[string]string `json:"dependencies"`
	Env             map[string]string `json:"env"`
	LastBuildResult string            `json:"last_build_result"`
	LastTestResult  string            `json:"last_test_result"`
}

// RestartEvent records why a snapshot was taken and what the restart
// machinery knew at the time.
type RestartEvent struct {
	ID                  string    `json:"id"`
	RestartCount        int       `json:"restart_count"`
	Timestamp           time.Time `json:"timestamp"`
	PreviousUptime      float64   `json:"previous_uptime_seconds"`
	Reason              string    `json:"reason"`
	Trigger             Trigger   `json:"trigger"`
	MemoryAtRestartMB   float64   `json:"memory_at_restart_mb"`
	ErrorType           string    `json:"error_type,omitempty"`
	ErrorMessage        string    `json:"error_message,omitempty"`
	ErrorTrace          string    `json:"error_trace,omitempty"`
	RecoveryAttempted   bool      `json:"recovery_attempted"`
	RecoverySucceeded   bool      `json:"recovery_succeeded"`
	PreservedCategories []string  `json:"preserved_categories"`
}

// Snapshot is one captured state bundle.
type Snapshot struct {
	StateVersion int          `json:"state_version"`
	ID           string       `json:"id"`
	UnitID       string       `json:"unit_id"`
	Process      ProcessState `json:"process"`
	Session      SessionState `json:"session"`
	Project      ProjectState `json:"project"`
	Restart      RestartEvent `json:"restart"`
}

// SnapshotInfo is the listing view of a persisted snapshot.
type SnapshotInfo struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	CapturedAt time.Time `json:"captured_at"`
	Trigger    Trigger   `json:"trigger"`
	Reason     string    `json:"reason"`
	MemoryMB   float64   `json:"memory_mb"`
	Restored   bool      `json:"restored"`
}

// snapTimeLayout renders microsecond precision so IDs minted in the
// same second still sort in mint order.
const snapTimeLayout = "20060102T150405.000000"

// NewSnapshotID mints a sortable snapshot identifier. Lexical order of
// IDs matches chronological order of their mint times; the uuid tail
// disambiguates captures within the same microsecond.
func NewSnapshotID(t time.Time) string {
	return fmt.Sprintf("snap-%s-%s", t.UTC().Format(snapTimeLayout), uuid.New().String()[:8])
}
