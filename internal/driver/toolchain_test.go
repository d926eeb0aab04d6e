package driver

import (
	"testing"

	"github.com/xyproto/soxlink/internal/arch"
)

func TestCrossPrefixLinux(t *testing.T) {
	p := arch.Platform{Arch: arch.ARM64, OS: arch.Linux}
	if got, want := crossPrefix(p), "aarch64-linux-gnu"; got != want {
		t.Errorf("crossPrefix() = %q, want %q", got, want)
	}
}

func TestCrossPrefixMacOS(t *testing.T) {
	p := arch.Platform{Arch: arch.X86_64, OS: arch.MacOS}
	if got, want := crossPrefix(p), "x86_64-darwin"; got != want {
		t.Errorf("crossPrefix() = %q, want %q", got, want)
	}
}

func TestJoinComma(t *testing.T) {
	if got, want := joinComma([]string{"a", "b", "c"}), "a, b, c"; got != want {
		t.Errorf("joinComma() = %q, want %q", got, want)
	}
	if got, want := joinComma(nil), ""; got != want {
		t.Errorf("joinComma(nil) = %q, want %q", got, want)
	}
}

func TestRuntimeArchiveCandidatesIncludesArchQualifiedPath(t *testing.T) {
	p := arch.Platform{Arch: arch.X86_64, OS: arch.Linux}
	candidates := runtimeArchiveCandidates(p)
	if len(candidates) == 0 {
		t.Fatal("expected at least one candidate path")
	}
	if candidates[0] != "build/libsox_runtime_x86_64.a" {
		t.Errorf("expected the arch-qualified candidate first, got %q", candidates[0])
	}
}

func TestToolchainNotFoundErrorMessage(t *testing.T) {
	err := &toolchainNotFoundError{
		platform: arch.Platform{Arch: arch.ARM64, OS: arch.Linux},
		tried:    []string{"aarch64-linux-gnu-gcc", "gcc"},
	}
	msg := err.Error()
	if msg == "" {
		t.Fatal("expected a non-empty error message")
	}
}
