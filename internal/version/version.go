// Package version holds the build version string.
package version

// Version is the conformer release version. Overridden at build time via
// -ldflags "-X github.com/aristath/conformer/internal/version.Version=...".
var Version = "0.3.0"
