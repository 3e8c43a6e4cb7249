package webrtc

import (
	"os"
	"runtime"
	"testing"
	"time"
)

func isCI() bool {
	return os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true"
}

// ciTimeout stretches timeouts on shared CI runners.
func ciTimeout(base time.Duration) time.Duration {
	if !isCI() {
		return base
	}
	if runtime.GOOS == "windows" {
		return base * 3
	}
	return base * 2
}

// skipNetwork skips tests that need real ICE gathering.
func skipNetwork(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping network test in short mode")
	}
	if isCI() && os.Getenv("SKIP_NETWORK_TESTS") == "true" {
		t.Skip("skipping network test in CI environment")
	}
}
