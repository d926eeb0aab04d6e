package driver

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/xyproto/soxlink/internal/arch"
	"github.com/xyproto/soxlink/internal/archive"
	"github.com/xyproto/soxlink/internal/diag"
	"github.com/xyproto/soxlink/internal/layout"
	"github.com/xyproto/soxlink/internal/linker"
	"github.com/xyproto/soxlink/internal/linkerr"
	"github.com/xyproto/soxlink/internal/object"
	"github.com/xyproto/soxlink/internal/prelude"
	"github.com/xyproto/soxlink/internal/reloc"
	"github.com/xyproto/soxlink/internal/symtab"
	"github.com/xyproto/soxlink/internal/writer/elfwriter"
	"github.com/xyproto/soxlink/internal/writer/machowriter"
)

// Run dispatches to System or Custom mode per opts.Mode, resolving Auto
// against the "simple job" test spec.md §4.7 describes: exactly one
// primary input, a supported target, and a locatable runtime archive.
func Run(opts Options) error {
	p, err := opts.Platform()
	if err != nil {
		return err
	}

	if opts.NativeObj {
		return emitObjectOnly(opts)
	}

	log := diag.New(opts.NativeDebug)

	mode := opts.Mode
	if mode == Auto {
		if p.Valid() {
			if _, runtimeFound := FindRuntimeArchive(p); runtimeFound {
				mode = Custom
			} else {
				mode = System
			}
		} else {
			mode = System
		}
	}

	if mode == System {
		return runSystem(opts, p)
	}
	return runCustom(opts, p, log)
}

// emitObjectOnly honours --native-obj (spec.md §6: "emit an object file
// only, bypasses the linker"). soxlink only ever consumes already-built
// object files, so bypassing the linker means exactly that: the input is
// copied to the requested output path untouched, and none of C1..C7 runs.
func emitObjectOnly(opts Options) error {
	raw, err := os.ReadFile(opts.Input)
	if err != nil {
		return fmt.Errorf("driver: %w", err)
	}
	out := opts.NativeOut
	if out == "" {
		out = opts.Input
	}
	if out == opts.Input {
		return nil
	}
	if err := os.WriteFile(out, raw, 0644); err != nil {
		return fmt.Errorf("driver: writing %s: %w", out, err)
	}
	return nil
}

func hostPlatform() arch.Platform {
	a, _ := arch.Parse(runtime.GOARCH)
	o, _ := arch.ParseOS(runtime.GOOS)
	return arch.Platform{Arch: a, OS: o}
}

// runSystem shells out to a system compiler driver (spec.md §4.7
// "System: shell out to a preferred compiler driver").
func runSystem(opts Options, p arch.Platform) error {
	compiler, err := systemCompiler(p, hostPlatform())
	if err != nil {
		return err
	}

	args := []string{"-pie", "-o", opts.OutputPath(), opts.Input}
	if opts.LinkRuntime {
		if dir, ok := FindRuntimeArchive(p); ok {
			args = append(args, "-L"+filepath.Dir(dir), "-lsox_runtime")
		} else {
			return fmt.Errorf("driver: link_runtime requested but no runtime archive found")
		}
	}
	switch {
	case p.OS == arch.Linux && p.Arch == arch.X86_64:
		args = append(args, "-Wl,-dynamic-linker,/lib64/ld-linux-x86-64.so.2")
	case p.OS == arch.Linux && p.Arch == arch.ARM64:
		args = append(args, "-Wl,-dynamic-linker,/lib/ld-linux-aarch64.so.1")
	}

	cmd := exec.Command(compiler, args...)
	cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	return cmd.Run()
}

// runCustom invokes C1..C6 directly (spec.md §4.7 "Custom: invoke phases
// C1..C6 directly").
func runCustom(opts Options, p arch.Platform, log *diag.Logger) error {
	ctx := linker.New(p, log)

	obj, err := object.Read(opts.Input)
	if err != nil {
		return err
	}
	idx := ctx.AddObject(obj)
	object.FinalizeIndices(obj, idx)
	log.Debugf("parsed %s", obj.String())

	if opts.LinkRuntime {
		path, ok := FindRuntimeArchive(p)
		if !ok {
			return fmt.Errorf("driver: runtime archive not found for %s", p)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("driver: reading runtime archive: %w", err)
		}
		n, err := archive.Extract(raw, path, ctx)
		if err != nil {
			return err
		}
		log.Debugf("extracted %d objects from %s", n, path)
	}

	if p.IsELF() {
		preludeObj := prelude.Object(p.Arch)
		// Prepended as objects[0] by rebuilding the object list so its
		// .text contribution is the first one C4 merges, making its
		// vaddr the executable's entry point (spec.md §4.6.1).
		ctx.Objects = append([]*object.Object{preludeObj}, ctx.Objects...)
		for i, o := range ctx.Objects {
			object.FinalizeIndices(o, i)
		}
	}

	var errs linkerr.List
	symtab.CollectDefined(ctx.GlobalSymbolIndex, ctx.Objects, &errs)
	if !errs.Empty() {
		return fmt.Errorf("%s", errs.Banner())
	}
	symtab.ResolveUndefined(ctx.GlobalSymbolIndex, ctx.Objects, &errs)
	if !errs.Empty() {
		return fmt.Errorf("%s", errs.Banner())
	}

	ctx.MergedSections = layout.Merge(ctx.Objects)
	ctx.TotalSize = layout.Place(ctx.MergedSections, ctx.BaseAddress, p.PageSize())
	symtab.ComputeAddresses(ctx.Objects, ctx.MergedSections)

	loc := layout.BuildLocator(ctx.MergedSections)
	reloc.Apply(ctx.Objects, loc, ctx.BaseAddress, &errs)
	if !errs.Empty() {
		return fmt.Errorf("%s", errs.Banner())
	}

	var out []byte
	var entry uint64
	switch {
	case p.IsELF():
		out, entry, err = elfwriter.Write(p, ctx.MergedSections, ctx.BaseAddress)
	case p.IsMachO():
		mainAddr := findMain(ctx)
		text := layout.Find(ctx.MergedSections, object.SectionText)
		if mainAddr == 0 {
			log.Warnf("no _main symbol found; defaulting entry point to text base")
			mainAddr = text.Vaddr
		}
		entry = mainAddr
		out, err = machowriter.Write(p, ctx.MergedSections, ctx.BaseAddress, mainAddr)
	}
	if err != nil {
		return err
	}
	ctx.EntryPoint = entry
	ctx.ExecutableBytes = out

	return writeExecutable(opts.OutputPath(), out)
}

func findMain(ctx *linker.Context) uint64 {
	entry, ok := ctx.GlobalSymbolIndex.Get("main")
	if !ok || !entry.Symbol.Defined {
		return 0
	}
	return entry.Symbol.FinalAddress
}

// writeExecutable writes out, closes the file, then chmods it 0755
// (spec.md §5 "opened, fully written, closed, and only then chmod-ed").
// On any write error the partial file is removed.
func writeExecutable(path string, out []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("driver: %w", err)
	}
	if _, err := f.Write(out); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("driver: writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("driver: closing %s: %w", path, err)
	}
	if err := unix.Chmod(path, 0755); err != nil {
		return fmt.Errorf("driver: chmod %s: %w", path, err)
	}
	return nil
}
