// Package linker holds the central LinkerContext aggregate (spec.md §3)
// that every pipeline phase (C1..C6) mutates in a well-defined, non-
// overlapping order (spec.md §5: "strictly single-threaded and
// synchronous"). No phase keeps a package-level singleton; Context is
// always threaded through as an explicit *Context parameter, per spec.md
// §9 "Design notes — Global mutable context".
package linker

import (
	"github.com/xyproto/soxlink/internal/arch"
	"github.com/xyproto/soxlink/internal/diag"
	"github.com/xyproto/soxlink/internal/layout"
	"github.com/xyproto/soxlink/internal/object"
	"github.com/xyproto/soxlink/internal/symtab"
)

// Context is the linker's single mutable aggregate. Ownership is
// tree-shaped (spec.md §5): Context owns Objects and MergedSections;
// Objects own their Sections/Symbols/Relocations and raw bytes. Freeing
// Context (letting it fall out of scope) frees the transitive closure
// exactly once — there are no back-pointers, so nothing needs explicit
// teardown in Go.
type Context struct {
	Objects           []*object.Object
	GlobalSymbolIndex *symtab.Table
	MergedSections    []*layout.MergedSection
	BaseAddress       uint64
	TotalSize         uint64
	EntryPoint        uint64
	TargetFormat      object.Format
	Platform          arch.Platform
	ExecutableBytes   []byte

	Log *diag.Logger
}

// New creates an empty Context for the given target platform.
func New(p arch.Platform, log *diag.Logger) *Context {
	format := object.FormatELF
	if p.IsMachO() {
		format = object.FormatMachO
	}
	return &Context{
		GlobalSymbolIndex: symtab.NewTable(),
		BaseAddress:       p.BaseAddress(),
		TargetFormat:      format,
		Platform:          p,
		Log:               log,
	}
}

// AddObject appends obj to the context and returns its index. Objects are
// append-only during C1/C2 (spec.md §3 lifecycle).
func (c *Context) AddObject(obj *object.Object) int {
	idx := len(c.Objects)
	c.Objects = append(c.Objects, obj)
	return idx
}
