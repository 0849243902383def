//go:build !linux && !windows

package monitor

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// psProcSource shells out to ps on platforms without /proc. macOS and
// the BSDs all accept these POSIX format specifiers.
type psProcSource struct{}

func newProcSource() ProcSource {
	return &psProcSource{}
}

func (s *psProcSource) Stats(pid int) (float64, float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "ps", "-o", "rss=,pcpu=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return 0, 0, fmt.Errorf("ps for pid %d: %w", pid, err)
	}
	return parsePSOutput(string(out))
}

// parsePSOutput parses "rss pcpu" as printed by ps, with rss in KB.
func parsePSOutput(out string) (float64, float64, error) {
	fields := strings.Fields(out)
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("unexpected ps output %q", strings.TrimSpace(out))
	}
	rssKB, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing rss %q: %w", fields[0], err)
	}
	pcpu, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing pcpu %q: %w", fields[1], err)
	}
	return rssKB / 1024, pcpu, nil
}
