package cmd

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsSilentExit(t *testing.T) {
	code, ok := IsSilentExit(NewSilentExit(3))
	if !ok || code != 3 {
		t.Errorf("IsSilentExit = (%d, %v), want (3, true)", code, ok)
	}

	// Survives wrapping
	wrapped := fmt.Errorf("while stopping: %w", NewSilentExit(1))
	code, ok = IsSilentExit(wrapped)
	if !ok || code != 1 {
		t.Errorf("IsSilentExit(wrapped) = (%d, %v), want (1, true)", code, ok)
	}

	if _, ok := IsSilentExit(errors.New("plain")); ok {
		t.Error("plain error should not be a silent exit")
	}
	if _, ok := IsSilentExit(nil); ok {
		t.Error("nil should not be a silent exit")
	}
}
