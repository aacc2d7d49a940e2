// Package version exposes build metadata injected through -ldflags.
package version

import "fmt"

var (
	// Version is the release tag.
	Version = "v0.0.0-dev"

	// GitCommit is the short commit hash the binary was built from.
	GitCommit = "unknown"

	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// Info returns a one-line human readable description of the build.
func Info() string {
	return fmt.Sprintf("%s (%s) built at %s", Version, GitCommit, BuildTime)
}

// UserAgent is sent on outbound HTTP requests made by Kiroku.
func UserAgent() string {
	return "kiroku/" + Version
}
