// Package util provides shared utility functions.
package util

import "strings"

// maxUnitSlugLen caps derived unit identifiers so they stay readable in
// paths and log lines.
const maxUnitSlugLen = 40

// UnitSlug derives a filesystem- and log-friendly unit identifier from
// an arbitrary string (typically the supervised command's basename).
// Lowercases, maps runs of non-alphanumerics to single dashes, trims,
// and truncates at a word boundary. Returns "unit" when nothing
// usable remains.
func UnitSlug(s string) string {
	s = strings.ToLower(s)

	var b strings.Builder
	lastDash := true // suppress leading dash
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}

	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "unit"
	}

	if len(slug) > maxUnitSlugLen {
		truncated := slug[:maxUnitSlugLen]
		// Prefer cutting at the last dash so we don't end mid-word.
		if idx := strings.LastIndex(truncated, "-"); idx > maxUnitSlugLen/2 {
			truncated = truncated[:idx]
		}
		slug = strings.Trim(truncated, "-")
	}

	return slug
}
