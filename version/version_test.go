package version

import (
	"strings"
	"testing"
)

func TestGetVersionInfo_UsesLdflags(t *testing.T) {
	prevV, prevC := Version, GitCommit
	defer func() { Version, GitCommit = prevV, prevC }()

	Version, GitCommit = "1.2.0", "abc1234"
	info := GetVersionInfo()
	if info.Version != "1.2.0" {
		t.Errorf("expected version 1.2.0, got %q", info.Version)
	}
	if info.GitCommit != "abc1234" {
		t.Errorf("expected commit abc1234, got %q", info.GitCommit)
	}
	if !info.IsRelease {
		t.Error("expected release build")
	}
	if !strings.HasPrefix(GetVersion(), "1.2.0-abc1234") {
		t.Errorf("unexpected GetVersion %q", GetVersion())
	}
}

func TestGetVersionInfo_DevIsNotRelease(t *testing.T) {
	prev := Version
	defer func() { Version = prev }()

	Version = "dev"
	if GetVersionInfo().IsRelease {
		t.Error("dev builds are not releases")
	}
}

func TestShortCommit(t *testing.T) {
	if got := shortCommit("0123456789abcdef"); got != "0123456" {
		t.Errorf("expected 0123456, got %q", got)
	}
	if got := shortCommit("abc"); got != "abc" {
		t.Errorf("expected abc, got %q", got)
	}
}
