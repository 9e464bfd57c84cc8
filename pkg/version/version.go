// Package version carries build metadata injected at link time.
package version

import "runtime/debug"

// Set via -ldflags "-X github.com/Sumatoshi-tech/timelinetree/pkg/version.Version=..."
// and friends by the release build.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// InitBinaryVersion fills in the commit from embedded build info when the
// binary was built without ldflags, as `go install` does.
func InitBinaryVersion() {
	if Commit != "unknown" {
		return
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			Commit = setting.Value

			return
		}
	}
}
