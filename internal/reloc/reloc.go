// Package reloc implements C5 RelocationProcessor (spec.md §4.5): for
// every relocation across every object, compute S/A/P per kind and patch
// the merged section bytes in place, range-checking every write.
//
// Grounded on the teacher's PatchPCRelocations/PatchCallSites (direct
// value-then-patch pipeline per relocation) and patchARM64PLTCalls (ARM64
// BL encode/range-check), generalized from the teacher's "patch this one
// known call site" style into a data-driven pass over object.Relocation
// records.
package reloc

import (
	"github.com/xyproto/soxlink/internal/layout"
	"github.com/xyproto/soxlink/internal/linkerr"
	"github.com/xyproto/soxlink/internal/object"
	"github.com/xyproto/soxlink/internal/reloc/patch"
	"github.com/xyproto/soxlink/internal/symtab"
)

const (
	i32Min = -(1 << 31)
	i32Max = 1 << 31
	b27Min = -(1 << 27)
	b27Max = 1 << 27
)

// Apply walks every relocation in objects and patches merged section bytes
// in place. loc must have been built from the same sections objects were
// laid out into (layout.BuildLocator), and ComputeAddresses must have
// already run so that defined symbols carry a FinalAddress. Errors
// accumulate into errs rather than aborting after the first one (spec.md
// §7 "within a phase, errors are accumulated").
func Apply(objects []*object.Object, loc *layout.Locator, baseAddress uint64, errs *linkerr.List) {
	for _, obj := range objects {
		for _, rel := range obj.Relocations {
			applyOne(objects, obj, rel, loc, baseAddress, errs)
		}
	}
}

func applyOne(objects []*object.Object, obj *object.Object, rel object.Relocation, loc *layout.Locator, baseAddress uint64, errs *linkerr.List) {
	ms, contribOffset, ok := loc.Lookup(rel.ObjectIndex, rel.SectionIndex)
	if !ok {
		return // relocation against a section that produced no merged section
	}

	width := patch.Width(rel.Kind)
	slotOffset := contribOffset + rel.Offset
	if slotOffset+uint64(width) > ms.Size {
		errs.Add(linkerr.New(linkerr.RangeOverflow,
			"relocation offset 0x%x in %q exceeds section size 0x%x", rel.Offset, obj.Filename, ms.Size))
		return
	}
	window := ms.Bytes[slotOffset : slotOffset+uint64(width)]
	P := ms.Vaddr + slotOffset

	var S uint64
	if rel.Kind != object.Relative && rel.SymbolIndex >= 0 {
		if rel.SymbolIndex >= len(obj.Symbols) {
			errs.Add(linkerr.New(linkerr.ParseError, "relocation in %q references out-of-range symbol index %d", obj.Filename, rel.SymbolIndex))
			return
		}
		sym := &obj.Symbols[rel.SymbolIndex]
		addr, resolved := symtab.FinalAddress(objects, obj, sym)
		if !resolved {
			errs.Add(linkerr.New(linkerr.UndefinedSymbol, "relocation in %q against unresolved symbol %q", obj.Filename, sym.Name).WithSymbol(sym.Name))
			return
		}
		S = addr
	}
	A := rel.Addend

	switch rel.Kind {
	case object.X64_64, object.ARM64_ABS64:
		patch.WriteField(window, rel.Kind, int64(S)+A)

	case object.X64_PC32, object.X64_PLT32:
		value := int64(S) + A - int64(P)
		if value < i32Min || value >= i32Max {
			errs.Add(linkerr.New(linkerr.RangeOverflow, "PC32 relocation in %q overflows 32 bits", obj.Filename).WithDetail(value))
			return
		}
		patch.WriteField(window, rel.Kind, value)

	case object.ARM64_CALL26, object.ARM64_JUMP26:
		value := int64(S) + A - int64(P)
		if value%4 != 0 {
			errs.Add(linkerr.New(linkerr.Misalignment, "branch target in %q is not 4-byte aligned", obj.Filename).WithDetail(value))
			return
		}
		if value < b27Min || value >= b27Max {
			errs.Add(linkerr.New(linkerr.RangeOverflow, "branch target in %q overflows 27-bit range", obj.Filename).WithDetail(value))
			return
		}
		patch.WriteField(window, rel.Kind, value)

	case object.ARM64_ADR_PREL_PG_HI21:
		page := func(x int64) int64 { return x &^ 0xFFF }
		value := page(int64(S)+A) - page(int64(P))
		patch.WriteField(window, rel.Kind, value)

	case object.ARM64_ADD_ABS_LO12_NC:
		value := (int64(S) + A) & 0xFFF
		patch.WriteField(window, rel.Kind, value)

	case object.Relative:
		patch.WriteField(window, rel.Kind, int64(baseAddress)+A)
	}
}
