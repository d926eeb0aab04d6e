package driver

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/xyproto/soxlink/internal/arch"
	"github.com/xyproto/soxlink/internal/diag"
)

// systemCompiler locates the preferred system compiler driver for System
// mode (spec.md §4.7: "clang on macOS else gcc, falling back to ld").
// Cross-compilation scans PATH for "<arch>-<os>-gnu-<gcc|clang>"-prefixed
// toolchains, the way a GNU cross toolchain package names its binaries.
//
// Grounded on the teacher's exec.LookPath use in run.go (checking for
// "wine" before shelling out to it) — same "probe PATH, fail loud if
// absent" idiom, generalized here into an ordered candidate list.
func systemCompiler(p arch.Platform, host arch.Platform) (string, error) {
	var candidates []string
	if p != host {
		prefix := crossPrefix(p)
		candidates = append(candidates, prefix+"-gcc", prefix+"-clang")
	}
	if p.IsMachO() {
		candidates = append(candidates, "clang", "gcc")
	} else {
		candidates = append(candidates, "gcc", "clang")
	}
	candidates = append(candidates, "ld")

	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", &toolchainNotFoundError{platform: p, tried: candidates}
}

func crossPrefix(p arch.Platform) string {
	archName := "x86_64"
	if p.Arch == arch.ARM64 {
		archName = "aarch64"
	}
	osName := "linux-gnu"
	if p.IsMachO() {
		osName = "darwin"
	}
	return archName + "-" + osName
}

type toolchainNotFoundError struct {
	platform arch.Platform
	tried    []string
}

func (e *toolchainNotFoundError) Error() string {
	return "driver: no system compiler found for " + e.platform.String() + " (tried: " + joinComma(e.tried) + ")"
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

// runtimeArchiveCandidates is the ordered lookup list spec.md §4.7
// specifies: an arch-qualified path first, then a generic one, then
// common debug/release subdirectories.
func runtimeArchiveCandidates(p arch.Platform) []string {
	return []string{
		filepath.Join("build", "libsox_runtime_"+p.Arch.String()+".a"),
		filepath.Join("build", "libsox_runtime.a"),
		filepath.Join("build", "debug", "libsox_runtime.a"),
		filepath.Join("build", "release", "libsox_runtime.a"),
	}
}

// FindRuntimeArchive walks runtimeArchiveCandidates (or the SOX_RUNTIME_DIR
// override) and returns the first path that exists on disk.
func FindRuntimeArchive(p arch.Platform) (string, bool) {
	if dir := diag.RuntimeArchiveDir(); dir != "" {
		path := filepath.Join(dir, "libsox_runtime.a")
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
		return "", false
	}
	for _, c := range runtimeArchiveCandidates(p) {
		if _, err := os.Stat(c); err == nil {
			return c, true
		}
	}
	return "", false
}
