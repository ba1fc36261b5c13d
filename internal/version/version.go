// Package version carries build metadata stamped by ldflags.
package version

import "runtime"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String is the human-readable build line printed by `viva version`.
func String() string {
	return "viva " + Version + " (commit=" + Commit + ", date=" + Date + ", go=" + runtime.Version() + ")"
}

// UserAgent identifies viva to the exam server.
func UserAgent() string {
	return "viva/" + Version + " (" + runtime.GOOS + "; " + runtime.GOARCH + ")"
}
