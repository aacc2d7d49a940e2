// Package redact strips credentials from strings and configuration maps
// before they reach a log line.
//
// Kiroku holds three kinds of secret: the Supabase service key, the hosted
// model token and The News API token. None of them may appear in logs, in
// error bodies returned to HTTP callers, or in the startup config dump.
// Redaction here is best-effort and works on string representations only.
package redact

import (
	"strings"
)

// Placeholder replaces every redacted value.
const Placeholder = "[REDACTED]"

// String replaces every occurrence of each sensitive value in s with
// Placeholder. Values shorter than 4 characters are ignored so that an
// empty or trivial secret does not shred the whole line.
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, Placeholder)
	}
	return s
}

// Map returns a copy of m where non-empty string values under secret-looking
// keys are replaced by Placeholder. Nested maps are walked.
func Map(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			out[k] = Map(val)
		case string:
			if val != "" && isSensitiveKey(k) {
				out[k] = Placeholder
			} else {
				out[k] = val
			}
		default:
			out[k] = v
		}
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range []string{"password", "token", "secret", "api_key", "apikey", "credential", "auth"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
