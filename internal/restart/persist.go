package restart

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/steveyegge/medic/internal/util"
)

// historyFile is the on-disk shape of the persisted history map.
type historyFile struct {
	Units map[string]*History `json:"units"`
}

// Load replaces the in-memory histories with the contents of the state
// file. A missing file leaves the policy empty and is not an error.
// No-op for memory-only policies.
func (p *Policy) Load() error {
	if p.statePath == "" {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var data []byte
	err := p.fileLock().WithLock(func() error {
		var readErr error
		data, readErr = os.ReadFile(p.statePath)
		return readErr
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading restart history: %w", err)
	}

	var state historyFile
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("unmarshaling restart history: %w", err)
	}
	if state.Units == nil {
		state.Units = make(map[string]*History)
	}
	p.units = state.Units
	return nil
}

// Save writes the current histories to the state file.
// No-op for memory-only policies.
func (p *Policy) Save() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.writeStateLocked()
}

// saveLocked persists best-effort from a caller already holding p.mu.
// Persistence failures are logged, never propagated: the in-memory map
// stays authoritative.
func (p *Policy) saveLocked() {
	if err := p.writeStateLocked(); err != nil {
		p.logger.Printf("Warning: saving restart history: %v", err)
	}
}

// writeStateLocked marshals and writes the state file under the
// cross-process file lock. Caller holds p.mu.
func (p *Policy) writeStateLocked() error {
	if p.statePath == "" {
		return nil
	}

	data, err := json.MarshalIndent(historyFile{Units: p.units}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling restart history: %w", err)
	}

	return p.fileLock().WithLock(func() error {
		if err := os.MkdirAll(filepath.Dir(p.statePath), 0755); err != nil {
			return fmt.Errorf("creating state directory: %w", err)
		}
		if err := os.WriteFile(p.statePath, data, 0644); err != nil {
			return fmt.Errorf("writing restart history: %w", err)
		}
		return nil
	})
}

// fileLock returns the cross-process lock guarding the state file.
// Operator resets run in a separate process from the supervisor, so
// in-process locking alone cannot keep the file whole.
func (p *Policy) fileLock() *util.FileLock {
	return util.NewFileLock(p.statePath + ".lock")
}
