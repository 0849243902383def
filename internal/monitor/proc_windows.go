//go:build windows

package monitor

import "errors"

// windowsProcSource is a stub. Medic supervises Unix processes, but
// this allows the code to compile on Windows. Every sample comes back
// zero and NORMAL.
type windowsProcSource struct{}

func newProcSource() ProcSource {
	return &windowsProcSource{}
}

func (s *windowsProcSource) Stats(pid int) (float64, float64, error) {
	return 0, 0, errors.New("process sampling not supported on windows")
}
