package version

import "fmt"

// Version is set via build-time ldflags in release builds:
// go build -ldflags "-X git.home.luguber.info/inful/docgate/internal/version.Version=v0.3.0".
var Version = "dev"

// Build metadata, also injected with ldflags.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders version, commit and build time on one line.
func String() string {
	return fmt.Sprintf("docgate %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}

// UserAgent is sent with outbound HTTP requests made by the link checker.
func UserAgent() string {
	return "docgate-linkcheck/" + Version
}
