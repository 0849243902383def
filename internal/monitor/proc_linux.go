//go:build linux

package monitor

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// userHZ is the kernel clock tick rate that /proc/<pid>/stat times are
// reported in. Linux fixes this at 100 for userspace regardless of the
// kernel's internal HZ.
const userHZ = 100

// tickReading is one cumulative CPU time observation, kept between
// samples so usage can be computed from the delta.
type tickReading struct {
	pid   int
	ticks uint64
	at    time.Time
}

// linuxProcSource reads per-process usage from /proc.
type linuxProcSource struct {
	mu   sync.Mutex
	prev tickReading
}

func newProcSource() ProcSource {
	return &linuxProcSource{}
}

// Stats reads resident memory from /proc/<pid>/status and CPU usage
// from consecutive /proc/<pid>/stat readings. The first observation of
// a PID reports zero CPU because there is no previous reading to
// delta against.
func (s *linuxProcSource) Stats(pid int) (float64, float64, error) {
	memMB, err := readVmRSSMBFrom(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return 0, 0, err
	}
	ticks, err := readCPUTicksFrom(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, 0, err
	}

	now := time.Now()
	s.mu.Lock()
	prev := s.prev
	s.prev = tickReading{pid: pid, ticks: ticks, at: now}
	s.mu.Unlock()

	if prev.pid != pid || prev.at.IsZero() {
		return memMB, 0, nil
	}
	elapsed := now.Sub(prev.at).Seconds()
	if elapsed <= 0 || ticks < prev.ticks {
		return memMB, 0, nil
	}
	cpuSeconds := float64(ticks-prev.ticks) / userHZ
	return memMB, cpuSeconds / elapsed * 100, nil
}

// readVmRSSMBFrom parses the VmRSS line out of a /proc status file.
func readVmRSSMBFrom(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, "VmRSS:"))
		if len(fields) < 1 {
			return 0, fmt.Errorf("malformed VmRSS line in %s: %q", path, line)
		}
		kb, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing VmRSS from %s: %w", path, err)
		}
		return float64(kb) / 1024, nil
	}
	// Kernel threads have no VmRSS line. Nothing we supervise should
	// be one, but report it as zero rather than an error.
	return 0, nil
}

// readCPUTicksFrom parses cumulative utime+stime out of a /proc stat
// file. The comm field may contain spaces and parentheses, so parsing
// starts after the final ')'.
func readCPUTicksFrom(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	line := strings.TrimSpace(string(data))
	end := strings.LastIndexByte(line, ')')
	if end < 0 || end+2 > len(line) {
		return 0, fmt.Errorf("malformed stat line in %s", path)
	}
	// After the comm field: state ppid pgrp session tty_nr tpgid flags
	// minflt cminflt majflt cmajflt utime stime ...
	fields := strings.Fields(line[end+1:])
	if len(fields) < 13 {
		return 0, fmt.Errorf("stat line in %s has %d fields, want >= 13", path, len(fields))
	}
	utime, err := strconv.ParseUint(fields[11], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing utime from %s: %w", path, err)
	}
	stime, err := strconv.ParseUint(fields[12], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing stime from %s: %w", path, err)
	}
	return utime + stime, nil
}
