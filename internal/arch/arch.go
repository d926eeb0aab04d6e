// Package arch identifies the architecture/OS pairs the linker targets.
//
// Grounded on the teacher's internal/engine/arch.go and target.go: same
// GOARCH/GOOS-flavoured parsing and String() methods, narrowed to the
// three platforms the linker actually emits for.
package arch

import (
	"fmt"
	"strings"
)

// Arch identifies a CPU instruction set.
type Arch int

const (
	Unknown Arch = iota
	X86_64
	ARM64
)

func (a Arch) String() string {
	switch a {
	case X86_64:
		return "x86_64"
	case ARM64:
		return "arm64"
	default:
		return "unknown"
	}
}

// Parse recognises GOARCH-style names and the aliases spec.md §6 lists
// for --native-arch (x64, aarch64).
func Parse(s string) (Arch, error) {
	switch strings.ToLower(s) {
	case "x86_64", "amd64", "x64", "x86-64":
		return X86_64, nil
	case "arm64", "aarch64":
		return ARM64, nil
	default:
		return Unknown, fmt.Errorf("unsupported architecture: %s (supported: x86_64, arm64)", s)
	}
}

// OS identifies a target operating system.
type OS int

const (
	OSUnknown OS = iota
	Linux
	MacOS
)

func (o OS) String() string {
	switch o {
	case Linux:
		return "linux"
	case MacOS:
		return "macos"
	default:
		return "unknown"
	}
}

// ParseOS recognises GOOS-style names and the aliases spec.md §6 lists
// for --native-os (darwin, win32 — windows/win32 are recognised but
// rejected here with an error, since Windows output is unimplemented).
func ParseOS(s string) (OS, error) {
	switch strings.ToLower(s) {
	case "linux":
		return Linux, nil
	case "macos", "darwin":
		return MacOS, nil
	case "windows", "win32":
		return OSUnknown, fmt.Errorf("unsupported OS: %s (PE/COFF output is not implemented)", s)
	default:
		return OSUnknown, fmt.Errorf("unsupported OS: %s (supported: linux, macos)", s)
	}
}

// Platform is a target (architecture, OS) pair.
type Platform struct {
	Arch Arch
	OS   OS
}

func (p Platform) String() string {
	return fmt.Sprintf("%s-%s", p.Arch, p.OS)
}

// Valid reports whether this is one of the three platforms spec.md §1
// commits to: linux/x86_64, linux/aarch64, macos/arm64.
func (p Platform) Valid() bool {
	switch {
	case p.OS == Linux && p.Arch == X86_64:
		return true
	case p.OS == Linux && p.Arch == ARM64:
		return true
	case p.OS == MacOS && p.Arch == ARM64:
		return true
	default:
		return false
	}
}

// IsMachO reports whether this platform's native executable format is Mach-O.
func (p Platform) IsMachO() bool { return p.OS == MacOS }

// IsELF reports whether this platform's native executable format is ELF.
func (p Platform) IsELF() bool { return p.OS == Linux }

// PageSize returns the page-alignment granularity spec.md §4.4 mandates:
// 4096 for ELF targets, 16384 for Mach-O targets.
func (p Platform) PageSize() uint64 {
	if p.IsMachO() {
		return 16384
	}
	return 4096
}

// BaseAddress returns the platform-fixed default load address spec.md §4.4
// names: 0x400000 for ELF, 0x100000000 for Mach-O.
func (p Platform) BaseAddress() uint64 {
	if p.IsMachO() {
		return 0x100000000
	}
	return 0x400000
}
