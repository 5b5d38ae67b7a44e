// Package version carries build metadata injected with ldflags.
package version

import "fmt"

// Set at build time, e.g.
// go build -ldflags "-X linechat/pkg/version.Version=v0.3.0 -X linechat/pkg/version.Commit=$(git rev-parse --short HEAD)".
//
//nolint:gochecknoglobals // ldflags can only target package-level vars.
var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"

	// Commit is the git commit SHA of the build.
	Commit = "none"

	// Date is the build date in ISO format.
	Date = "unknown"
)

// String returns a one-line description of the build.
func String() string {
	return fmt.Sprintf("linechat %s (commit %s, built %s)", Version, Commit, Date)
}
