//go:build linux

package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// openFilesForPID lists regular paths open in the process, via
// /proc/<pid>/fd. Best-effort: permission errors and vanished fds
// yield a shorter list, never a failure. Pipes, sockets, and anonymous
// inodes are skipped.
func openFilesForPID(pid int) []string {
	fdDir := fmt.Sprintf("/proc/%d/fd", pid)
	entries, err := os.ReadDir(fdDir)
	if err != nil {
		return nil
	}
	var paths []string
	for _, entry := range entries {
		target, err := os.Readlink(filepath.Join(fdDir, entry.Name()))
		if err != nil {
			continue
		}
		if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "/dev/") || strings.HasPrefix(target, "/proc/") {
			continue
		}
		paths = append(paths, target)
	}
	sort.Strings(paths)
	return paths
}
