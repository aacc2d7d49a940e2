// Package environment reads typed settings from process environment variables.
//
// Every helper treats an unset variable and an empty one the same way and
// falls back to the supplied default. Helpers never exit the process; the
// caller decides whether a missing value is fatal.
package environment

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Lookup returns the raw value of name and whether it was present and
// non-empty.
func Lookup(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	return v, v != ""
}

// StringOr returns the value of name, or fallback when it is unset.
func StringOr(name, fallback string) string {
	if v, ok := Lookup(name); ok {
		return v
	}
	return fallback
}

// BoolOr parses name with strconv.ParseBool. Values that do not parse
// yield fallback.
func BoolOr(name string, fallback bool) bool {
	v, ok := Lookup(name)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// IntOr parses name as a base-10 integer.
func IntOr(name string, fallback int) int {
	v, ok := Lookup(name)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// Float64Or parses name as a float64 (e.g. a sampling temperature).
func Float64Or(name string, fallback float64) float64 {
	v, ok := Lookup(name)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// DurationOr parses name with time.ParseDuration ("30s", "5m").
func DurationOr(name string, fallback time.Duration) time.Duration {
	v, ok := Lookup(name)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// StringSliceOr splits name on commas and drops blank elements.
func StringSliceOr(name string, fallback []string) []string {
	v, ok := Lookup(name)
	if !ok {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

// OneOf returns the lower-cased value of name when it is one of allowed,
// fallback when unset, and an error for anything else.
func OneOf(name, fallback string, allowed ...string) (string, error) {
	v, ok := Lookup(name)
	if !ok {
		return fallback, nil
	}
	v = strings.ToLower(v)
	if !slices.Contains(allowed, v) {
		return "", fmt.Errorf("environment variable %q: %q is not one of %s", name, v, strings.Join(allowed, ", "))
	}
	return v, nil
}
