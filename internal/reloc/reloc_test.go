package reloc

import (
	"encoding/binary"
	"testing"

	"github.com/xyproto/soxlink/internal/layout"
	"github.com/xyproto/soxlink/internal/linkerr"
	"github.com/xyproto/soxlink/internal/object"
	"github.com/xyproto/soxlink/internal/symtab"
)

// prepare lays out a single object's sections the way a driver run would
// before invoking Apply: merge, place, compute symbol addresses.
func prepare(obj *object.Object) ([]*object.Object, *layout.Locator, []*layout.MergedSection) {
	objects := []*object.Object{obj}
	sections := layout.Merge(objects)
	layout.Place(sections, 0x400000, 4096)
	symtab.ComputeAddresses(objects, sections)
	return objects, layout.BuildLocator(sections), sections
}

func TestApplyAbsolute64PatchesFullAddress(t *testing.T) {
	text := make([]byte, 16)
	obj := &object.Object{
		Filename: "a.o",
		Sections: []object.Section{
			{Name: ".text", Type: object.SectionText, Bytes: text, Size: uint64(len(text)), Alignment: 16},
		},
		Symbols: []object.Symbol{
			{Name: "target", Binding: object.BindGlobal, SectionIndex: 0, Value: 8, Defined: true},
		},
		Relocations: []object.Relocation{
			{Offset: 0, Kind: object.X64_64, SymbolIndex: 0, Addend: 4, SectionIndex: 0, ObjectIndex: 0},
		},
	}

	objects, loc, sections := prepare(obj)
	ms := layout.Find(sections, object.SectionText)

	var errs linkerr.List
	Apply(objects, loc, 0x400000, &errs)
	if !errs.Empty() {
		t.Fatalf("unexpected errors: %v", errs.Errs())
	}

	want := ms.Vaddr + 8 + 4 // symbol's final address + addend
	got := binary.LittleEndian.Uint64(ms.Bytes[0:8])
	if got != want {
		t.Errorf("patched value = 0x%x, want 0x%x", got, want)
	}
}

func TestApplyPC32OverflowIsAccumulated(t *testing.T) {
	text := make([]byte, 8)
	obj := &object.Object{
		Filename: "b.o",
		Sections: []object.Section{
			{Name: ".text", Type: object.SectionText, Bytes: text, Size: uint64(len(text)), Alignment: 1},
		},
		Symbols: []object.Symbol{
			// Pre-placed far enough away that S - P overflows a signed
			// 32-bit field; ComputeAddresses is deliberately not invoked
			// so this preset FinalAddress survives untouched.
			{Name: "far", Binding: object.BindGlobal, SectionIndex: 0, Value: 0, Defined: true,
				FinalAddress: 0x400000 + (1 << 33)},
		},
		Relocations: []object.Relocation{
			{Offset: 0, Kind: object.X64_PC32, SymbolIndex: 0, SectionIndex: 0, ObjectIndex: 0},
		},
	}

	objects := []*object.Object{obj}
	sections := layout.Merge(objects)
	layout.Place(sections, 0x400000, 4096)
	loc := layout.BuildLocator(sections)

	var errs linkerr.List
	Apply(objects, loc, 0x400000, &errs)
	if errs.Empty() {
		t.Fatal("expected a RangeOverflow error, got none")
	}
	if errs.Errs()[0].Kind != linkerr.RangeOverflow {
		t.Errorf("error kind = %v, want RangeOverflow", errs.Errs()[0].Kind)
	}
}

func TestApplyRelativeUsesBaseAddress(t *testing.T) {
	text := make([]byte, 8)
	obj := &object.Object{
		Filename: "c.o",
		Sections: []object.Section{
			{Name: ".text", Type: object.SectionText, Bytes: text, Size: uint64(len(text)), Alignment: 1},
		},
		Relocations: []object.Relocation{
			{Offset: 0, Kind: object.Relative, SymbolIndex: -1, Addend: 0x10, SectionIndex: 0, ObjectIndex: 0},
		},
	}
	objects, loc, sections := prepare(obj)
	ms := layout.Find(sections, object.SectionText)

	var errs linkerr.List
	Apply(objects, loc, 0x500000, &errs)
	if !errs.Empty() {
		t.Fatalf("unexpected errors: %v", errs.Errs())
	}
	want := uint64(0x500000 + 0x10)
	got := binary.LittleEndian.Uint64(ms.Bytes[0:8])
	if got != want {
		t.Errorf("patched value = 0x%x, want 0x%x", got, want)
	}
}

func TestApplyUndefinedSymbolAccumulatesError(t *testing.T) {
	text := make([]byte, 8)
	obj := &object.Object{
		Filename: "d.o",
		Sections: []object.Section{
			{Name: ".text", Type: object.SectionText, Bytes: text, Size: uint64(len(text)), Alignment: 1},
		},
		Symbols: []object.Symbol{
			{Name: "missing", Defined: false, SectionIndex: -1, DefiningObject: object.NotDefined},
		},
		Relocations: []object.Relocation{
			{Offset: 0, Kind: object.X64_64, SymbolIndex: 0, SectionIndex: 0, ObjectIndex: 0},
		},
	}
	objects, loc, _ := prepare(obj)

	var errs linkerr.List
	Apply(objects, loc, 0x400000, &errs)
	if errs.Empty() {
		t.Fatal("expected an UndefinedSymbol error, got none")
	}
	if errs.Errs()[0].Kind != linkerr.UndefinedSymbol {
		t.Errorf("error kind = %v, want UndefinedSymbol", errs.Errs()[0].Kind)
	}
}
