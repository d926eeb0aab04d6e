// Package driver implements C7 LinkerDriver (spec.md §4.7): orchestrating
// C1..C6 directly (Custom mode), shelling out to a system compiler driver
// (System mode), or picking between the two (Auto).
//
// Grounded on the teacher's flag parsing in main.go (plain stdlib flag,
// one var per option, flag.Parse then flag.Args for positional input)
// and exec.Command usage in cli.go, adapted from "run the user's C67
// program" to "link this one object into an executable".
package driver

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xyproto/soxlink/internal/arch"
)

// Mode selects how the driver produces the final executable (spec.md §4.7).
type Mode int

const (
	Auto Mode = iota
	Custom
	System
)

// Options is the parsed CLI surface (spec.md §6).
type Options struct {
	Input       string
	NativeOut   string
	NativeArch  string
	NativeOS    string
	NativeObj   bool
	NativeDebug bool
	NativeOpt   int
	Mode        Mode
	LinkRuntime bool
}

// Platform resolves the requested --native-arch/--native-os pair and
// rejects pairs outside the supported set. An empty NativeArch or NativeOS
// is an error; host defaults come from the CLI flags' default values, not
// from here.
func (o Options) Platform() (arch.Platform, error) {
	a, err := arch.Parse(o.NativeArch)
	if err != nil {
		return arch.Platform{}, err
	}
	os_, err := arch.ParseOS(o.NativeOS)
	if err != nil {
		return arch.Platform{}, err
	}
	p := arch.Platform{Arch: a, OS: os_}
	if !p.Valid() {
		return arch.Platform{}, fmt.Errorf("unsupported target %s (supported: linux/x86_64, linux/arm64, macos/arm64)", p)
	}
	return p, nil
}

// OutputPath resolves --native-out, defaulting to the input path with its
// extension stripped (spec.md §6 "default: input without extension").
func (o Options) OutputPath() string {
	if o.NativeOut != "" {
		return o.NativeOut
	}
	ext := filepath.Ext(o.Input)
	return strings.TrimSuffix(o.Input, ext)
}
