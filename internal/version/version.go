// Package version holds build metadata stamped in at link time:
//
//	go build -ldflags "-X github.com/onit-labs/xmtp-bot/internal/version.Version=1.0.0 \
//	                   -X github.com/onit-labs/xmtp-bot/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

import (
	"runtime"
	"runtime/debug"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the build metadata reported by `onit-agent version`.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get returns the build metadata. Without ldflags, the commit and build time
// fall back to the VCS stamp embedded by the Go toolchain.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && info.Commit == "unknown":
			info.Commit = s.Value
			if len(info.Commit) > 7 {
				info.Commit = info.Commit[:7]
			}
		case s.Key == "vcs.time" && info.BuildTime == "unknown":
			info.BuildTime = s.Value
		}
	}
	return info
}

func (i Info) String() string {
	return i.Version + " (" + i.Commit + ") built " + i.BuildTime + " with " + i.GoVersion
}

// UserAgent identifies the bridge to the services it calls.
func UserAgent() string {
	return "onit-agent/" + Version
}
