package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()

	if info.Version == "" {
		t.Error("expected non-empty version")
	}
	if info.GoVersion == "" {
		t.Error("expected non-empty Go version")
	}
	if info.Platform == "" {
		t.Error("expected non-empty platform")
	}
}

func TestString(t *testing.T) {
	info := Get()
	str := info.String()

	if !strings.Contains(str, "gatekeepr version") {
		t.Error("expected version string to contain 'gatekeepr version'")
	}
	if !strings.Contains(str, info.Version) {
		t.Error("expected version string to contain version number")
	}
}

func TestShort(t *testing.T) {
	originalCommit := GitCommit
	GitCommit = "1234567890abcdef"
	defer func() { GitCommit = originalCommit }()

	short := Get().Short()
	if !strings.Contains(short, "1234567") {
		t.Error("expected short version to contain short commit hash")
	}
	if strings.Contains(short, "1234567890") {
		t.Error("expected commit hash to be truncated")
	}
}
