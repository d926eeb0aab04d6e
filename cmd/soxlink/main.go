// Command soxlink links ELF-64 and Mach-O 64 relocatable object files
// (and BSD ar archives of them) into a native executable.
//
// Grounded on the teacher's main.go flag surface: plain stdlib flag, one
// var per option, flag.Parse then flag.Args for the positional input,
// narrowed from a full compiler CLI down to the driver options spec.md
// §6 lists.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/xyproto/soxlink/internal/driver"
)

const versionString = "soxlink 0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("soxlink", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		nativeOut     = fs.String("native-out", "", "output executable path (default: input without extension)")
		nativeArch    = fs.String("native-arch", runtime.GOARCH, "target architecture (x86_64, arm64)")
		nativeOS      = fs.String("native-os", hostOSName(), "target OS (linux, macos)")
		nativeObj     = fs.Bool("native-obj", false, "emit an object file only (bypasses the linker)")
		nativeDebug   = fs.Bool("native-debug", false, "verbose phase logging to stderr")
		nativeOpt     = fs.Int("native-opt", 0, "forwarded to codegen; ignored by the linker")
		customLinker  = fs.Bool("custom-linker", false, "force Custom mode: run C1..C6 in-process")
		systemLinker  = fs.Bool("system-linker", false, "force System mode: shell out to a system compiler driver")
		linkRuntime   = fs.Bool("link-runtime", true, "link against the soxlink runtime archive")
		version       = fs.Bool("version", false, "print version information and exit")
	)

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *version {
		fmt.Println(versionString)
		return 0
	}

	if *customLinker && *systemLinker {
		fmt.Fprintln(os.Stderr, "soxlink: --custom-linker and --system-linker are mutually exclusive")
		return 2
	}

	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: soxlink [flags] <object-file>\n")
		fs.PrintDefaults()
		return 2
	}

	mode := driver.Auto
	switch {
	case *customLinker:
		mode = driver.Custom
	case *systemLinker:
		mode = driver.System
	}

	opts := driver.Options{
		Input:       fs.Arg(0),
		NativeOut:   *nativeOut,
		NativeArch:  *nativeArch,
		NativeOS:    *nativeOS,
		NativeObj:   *nativeObj,
		NativeDebug: *nativeDebug,
		NativeOpt:   *nativeOpt,
		Mode:        mode,
		LinkRuntime: *linkRuntime,
	}

	if _, err := os.Stat(opts.Input); err != nil {
		fmt.Fprintf(os.Stderr, "Error: IOError: %v\n", err)
		return 1
	}

	if err := driver.Run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}

func hostOSName() string {
	if runtime.GOOS == "darwin" {
		return "macos"
	}
	return runtime.GOOS
}
