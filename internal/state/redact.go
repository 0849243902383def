package state

import "strings"

// RedactedValue replaces every secret-looking environment value in a
// snapshot. The original value is never written to disk.
const RedactedValue = "[REDACTED]"

// sensitiveNamePatterns match variable names, not values. Matching is
// case-insensitive substring: AWS_SECRET_ACCESS_KEY, GithubToken, and
// npm_config_authtoken all redact.
var sensitiveNamePatterns = []string{
	"TOKEN",
	"KEY",
	"SECRET",
	"PASSWORD",
	"CREDENTIAL",
	"AUTH",
	"PRIVATE",
}

// IsSensitiveName reports whether an environment variable name looks
// like it holds a secret.
func IsSensitiveName(name string) bool {
	upper := strings.ToUpper(name)
	for _, pattern := range sensitiveNamePatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}

// SanitizeEnv returns a copy of env with sensitive values replaced by
// RedactedValue. The input map is not modified.
func SanitizeEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	out := make(map[string]string, len(env))
	for name, value := range env {
		if IsSensitiveName(name) {
			out[name] = RedactedValue
		} else {
			out[name] = value
		}
	}
	return out
}

// SanitizeEnviron converts an os.Environ-style "NAME=value" list into
// a sanitized map. Entries without '=' are skipped.
func SanitizeEnviron(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		if IsSensitiveName(name) {
			out[name] = RedactedValue
		} else {
			out[name] = value
		}
	}
	return out
}
