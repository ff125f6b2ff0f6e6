// Package buildinfo holds version metadata stamped at build time via ldflags.
package buildinfo

import "runtime"

// Set with -ldflags "-X github.com/mcpguard/mcpverify/internal/buildinfo.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// UserAgent is sent on every outbound HTTP request.
func UserAgent() string {
	return "mcpverify/" + Version + " (" + runtime.GOOS + "/" + runtime.GOARCH + ")"
}

// String returns a one-line summary for logging.
func String() string {
	return "mcpverify " + Version + " (" + GitCommit + ")"
}
