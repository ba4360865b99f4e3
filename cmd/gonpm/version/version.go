// Package version provides build-time version information for the gonpm CLI.
// Version information is injected at build time using -ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Build-time variables injected via -ldflags -X
var (
	// Version is the semantic version (e.g., "v0.1.0" or "dev")
	Version = "dev"

	// Commit is the git commit SHA (short form)
	Commit = "none"

	// Date is the build timestamp (ISO 8601)
	Date = "unknown"

	// GoVersion is the Go version used to build the binary
	GoVersion = runtime.Version()
)

// Info returns a one-line version string.
// Example: "gonpm version v0.1.0 (commit: a1b2c3d, built: 2026-01-04T12:00:00Z)"
func Info() string {
	return fmt.Sprintf("gonpm version %s (commit: %s, built: %s)", Version, Commit, Date)
}

// FullInfo adds the Go version to Info.
func FullInfo() string {
	return fmt.Sprintf("gonpm version %s (commit: %s, built: %s, go: %s)",
		Version, Commit, Date, GoVersion)
}

// UserAgent is the User-Agent sent to registries.
func UserAgent() string {
	return fmt.Sprintf("gonpm/%s (%s; %s/%s)", Version, GoVersion, runtime.GOOS, runtime.GOARCH)
}
