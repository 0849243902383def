package util

import "testing"

func TestUnitSlug(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "command basename",
			input:    "claude",
			expected: "claude",
		},
		{
			name:     "uppercase and dots",
			input:    "Claude.AppImage",
			expected: "claude-appimage",
		},
		{
			name:     "spaces and args",
			input:    "my coding agent",
			expected: "my-coding-agent",
		},
		{
			name:     "special chars collapsed",
			input:    "agent!!@@##v2",
			expected: "agent-v2",
		},
		{
			name:     "multiple separators",
			input:    "too   many---dashes",
			expected: "too-many-dashes",
		},
		{
			name:     "already a slug",
			input:    "already-clean-slug",
			expected: "already-clean-slug",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "unit",
		},
		{
			name:     "only special chars",
			input:    "!@#$%^&*()",
			expected: "unit",
		},
		{
			name:     "long name truncated at word boundary",
			input:    "an-extremely-long-supervised-command-name-that-keeps-going",
			expected: "an-extremely-long-supervised-command",
		},
		{
			name:     "leading and trailing punctuation",
			input:    "---wrapped-name---",
			expected: "wrapped-name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := UnitSlug(tt.input)
			if result != tt.expected {
				t.Errorf("UnitSlug(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
