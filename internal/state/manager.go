package state

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/steveyegge/medic/internal/util"
)

// restoredMarker records the id of the last consumed snapshot. Restore
// never re-applies an id at or before the marker.
const restoredMarker = ".last-restored"

// SessionSource supplies the domain-context record at capture time.
// Implementations live with whatever owns the session (an MCP bridge,
// a log scraper); the manager only asks for a value.
type SessionSource interface {
	SessionState(ctx context.Context) (SessionState, error)
}

// ProjectSource supplies the workspace record at capture time.
type ProjectSource interface {
	ProjectState(ctx context.Context) (ProjectState, error)
}

// CaptureInput is everything the supervisor already knows about the
// process being snapshotted. The manager fills in the rest.
type CaptureInput struct {
	Reason            string
	Trigger           Trigger
	PID               int
	ParentPID         int
	Command           []string
	WorkingDir        string
	Env               map[string]string
	StartedAt         time.Time
	MemoryMB          float64
	CPUPercent        float64
	RestartCount      int
	ErrorType         string
	ErrorMessage      string
	RecoveryAttempted bool
	RecoverySucceeded bool
}

// Manager captures and round-trips snapshots for one unit. All files
// live under a single per-unit snapshots directory, so managers for
// different units never contend.
type Manager struct {
	unitID  string
	dir     string
	logger  *log.Logger
	session SessionSource
	project ProjectSource
}

// NewManager builds a manager without session or project sources;
// those records stay zero-valued in captures.
func NewManager(unitID, dir string, logger *log.Logger) *Manager {
	return NewManagerWithSources(unitID, dir, logger, nil, nil)
}

// NewManagerWithSources builds a manager with collaborator sources.
// Either source may be nil.
func NewManagerWithSources(unitID, dir string, logger *log.Logger, session SessionSource, project ProjectSource) *Manager {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Manager{
		unitID:  unitID,
		dir:     dir,
		logger:  logger,
		session: session,
		project: project,
	}
}

// Capture assembles a snapshot from the supervisor's view of the
// process plus the collaborator sources. It returns nil instead of an
// error: a failed or timed-out capture is logged and the restart
// proceeds without preserved context. The caller bounds the work with
// ctx; an expired ctx aborts between collection steps.
func (m *Manager) Capture(ctx context.Context, in CaptureInput) *Snapshot {
	now := time.Now().UTC()

	session, ok := m.collectSession(ctx)
	if !ok {
		return nil
	}
	project, ok := m.collectProject(ctx)
	if !ok {
		return nil
	}
	if err := ctx.Err(); err != nil {
		m.logger.Printf("Warning: state capture for %s aborted: %v", m.unitID, err)
		return nil
	}

	openFiles := openFilesForPID(in.PID)
	if len(openFiles) > maxOpenFiles {
		openFiles = openFiles[:maxOpenFiles]
	}
	if n := len(session.RecentSummaries); n > maxRecentSummaries {
		session.RecentSummaries = session.RecentSummaries[n-maxRecentSummaries:]
	}

	var uptime float64
	if !in.StartedAt.IsZero() {
		uptime = now.Sub(in.StartedAt).Seconds()
	}

	id := NewSnapshotID(now)
	snap := &Snapshot{
		StateVersion: StateVersion,
		ID:           id,
		UnitID:       m.unitID,
		Process: ProcessState{
			PID:        in.PID,
			ParentPID:  in.ParentPID,
			Command:    in.Command,
			WorkingDir: in.WorkingDir,
			Env:        SanitizeEnv(in.Env),
			MemoryMB:   in.MemoryMB,
			CPUPercent: in.CPUPercent,
			OpenFiles:  openFiles,
			StartedAt:  in.StartedAt,
			CapturedAt: now,
		},
		Session: session,
		Project: project,
		Restart: RestartEvent{
			ID:                  id,
			RestartCount:        in.RestartCount,
			Timestamp:           now,
			PreviousUptime:      uptime,
			Reason:              in.Reason,
			Trigger:             in.Trigger,
			MemoryAtRestartMB:   in.MemoryMB,
			ErrorType:           in.ErrorType,
			ErrorMessage:        in.ErrorMessage,
			RecoveryAttempted:   in.RecoveryAttempted,
			RecoverySucceeded:   in.RecoverySucceeded,
			PreservedCategories: []string{"process", "session", "project"},
		},
	}
	m.logger.Printf("Captured snapshot %s for %s (trigger=%s, reason=%q)", id, m.unitID, in.Trigger, in.Reason)
	return snap
}

func (m *Manager) collectSession(ctx context.Context) (SessionState, bool) {
	if m.session == nil {
		return SessionState{}, true
	}
	session, err := m.session.SessionState(ctx)
	if err != nil {
		m.logger.Printf("Warning: collecting session state for %s: %v", m.unitID, err)
		return SessionState{}, false
	}
	return session, true
}

func (m *Manager) collectProject(ctx context.Context) (ProjectState, bool) {
	if m.project == nil {
		return ProjectState{}, true
	}
	project, err := m.project.ProjectState(ctx)
	if err != nil {
		m.logger.Printf("Warning: collecting project state for %s: %v", m.unitID, err)
		return ProjectState{}, false
	}
	project.Env = SanitizeEnv(project.Env)
	return project, true
}

// Persist writes the snapshot as indented JSON under the snapshots
// directory. The write is atomic so a reader never sees a torn file.
func (m *Manager) Persist(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}
	if snap.ID == "" {
		return fmt.Errorf("snapshot has no id")
	}
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}
	if err := util.AtomicWriteJSON(m.snapshotPath(snap.ID), snap); err != nil {
		return fmt.Errorf("writing snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// Restore loads the newest snapshot not yet consumed and advances the
// consumed marker. It returns nil when there is nothing to restore or
// the newest candidate has an unsupported schema version. The snapshot
// file itself is kept.
func (m *Manager) Restore() *Snapshot {
	ids, err := m.snapshotIDs()
	if err != nil || len(ids) == 0 {
		return nil
	}
	last := m.LastRestored()
	newest := ids[len(ids)-1]
	if last != "" && newest <= last {
		return nil
	}

	snap, err := m.load(newest)
	if err != nil {
		m.logger.Printf("Warning: loading snapshot %s: %v", newest, err)
		return nil
	}
	if snap.StateVersion != StateVersion {
		m.logger.Printf("Warning: snapshot %s has unsupported state_version %d (want %d), not restoring", newest, snap.StateVersion, StateVersion)
		return nil
	}

	if err := util.AtomicWriteFile(m.markerPath(), []byte(newest+"\n"), 0644); err != nil {
		m.logger.Printf("Warning: recording restored marker for %s: %v", newest, err)
	}
	m.logger.Printf("Restored snapshot %s for %s", newest, m.unitID)
	return snap
}

// Validate reports non-fatal issues with a snapshot. An empty list
// means no problems found.
func (m *Manager) Validate(snap *Snapshot) []string {
	if snap == nil {
		return []string{"snapshot is nil"}
	}
	var issues []string
	if snap.StateVersion != StateVersion {
		issues = append(issues, fmt.Sprintf("state_version %d not supported (want %d)", snap.StateVersion, StateVersion))
	}
	if snap.ID == "" {
		issues = append(issues, "missing snapshot id")
	}
	if snap.Process.PID <= 0 {
		issues = append(issues, "process pid not recorded")
	}
	if path := snap.Project.Path; path != "" {
		if _, err := os.Stat(path); err != nil {
			issues = append(issues, fmt.Sprintf("project path %s not accessible: %v", path, err))
		}
	}
	if !snap.Restart.Trigger.Valid() {
		issues = append(issues, fmt.Sprintf("unknown trigger %q", snap.Restart.Trigger))
	}
	return issues
}

// List returns metadata for every persisted snapshot, oldest first.
func (m *Manager) List() ([]SnapshotInfo, error) {
	ids, err := m.snapshotIDs()
	if err != nil {
		return nil, err
	}
	last := m.LastRestored()
	infos := make([]SnapshotInfo, 0, len(ids))
	for _, id := range ids {
		snap, err := m.load(id)
		if err != nil {
			m.logger.Printf("Warning: skipping unreadable snapshot %s: %v", id, err)
			continue
		}
		infos = append(infos, SnapshotInfo{
			ID:         id,
			Path:       m.snapshotPath(id),
			CapturedAt: snap.Process.CapturedAt,
			Trigger:    snap.Restart.Trigger,
			Reason:     snap.Restart.Reason,
			MemoryMB:   snap.Restart.MemoryAtRestartMB,
			Restored:   last != "" && id <= last,
		})
	}
	return infos, nil
}

// Load reads one snapshot by id, for diagnostics commands.
func (m *Manager) Load(id string) (*Snapshot, error) {
	return m.load(id)
}

// LastRestored returns the id recorded in the consumed marker, or ""
// if nothing has been restored yet.
func (m *Manager) LastRestored() string {
	data, err := os.ReadFile(m.markerPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Dir returns the snapshots directory.
func (m *Manager) Dir() string {
	return m.dir
}

func (m *Manager) snapshotPath(id string) string {
	return filepath.Join(m.dir, id+".json")
}

func (m *Manager) markerPath() string {
	return filepath.Join(m.dir, restoredMarker)
}

// snapshotIDs lists persisted ids in ascending order. IDs sort
// lexically in mint order, so no timestamp parsing is needed.
func (m *Manager) snapshotIDs() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshot dir: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "snap-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Manager) load(id string) (*Snapshot, error) {
	data, err := os.ReadFile(m.snapshotPath(id))
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", id, err)
	}
	return &snap, nil
}
