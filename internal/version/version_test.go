package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()
	if info.Version != Version {
		t.Errorf("Version = %q, want %q", info.Version, Version)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
	if !strings.HasPrefix(info.String(), Version+" (") {
		t.Errorf("String() = %q", info.String())
	}
}

func TestUserAgent(t *testing.T) {
	if got := UserAgent(); got != "onit-agent/"+Version {
		t.Errorf("UserAgent() = %q", got)
	}
}
