package prelude

import (
	"testing"

	"github.com/xyproto/soxlink/internal/arch"
	"github.com/xyproto/soxlink/internal/object"
)

func TestObjectX8664HasUndefinedMainReference(t *testing.T) {
	obj := Object(arch.X86_64)

	if len(obj.Sections) != 1 || obj.Sections[0].Type != object.SectionText {
		t.Fatalf("expected a single .text section, got %+v", obj.Sections)
	}
	if len(obj.Symbols) != 1 || obj.Symbols[0].Name != "main" || obj.Symbols[0].Defined {
		t.Fatalf("expected one undefined main symbol, got %+v", obj.Symbols)
	}
	if len(obj.Relocations) != 1 {
		t.Fatalf("expected one relocation, got %d", len(obj.Relocations))
	}
	rel := obj.Relocations[0]
	if rel.Kind != object.X64_PLT32 || rel.Addend != -4 || rel.Offset != 4 {
		t.Errorf("unexpected x86-64 prelude relocation: %+v", rel)
	}
	if obj.Sections[0].Bytes[3] != 0xe8 {
		t.Errorf("expected call opcode 0xe8 at offset 3, got 0x%x", obj.Sections[0].Bytes[3])
	}
}

func TestObjectARM64HasUndefinedMainReference(t *testing.T) {
	obj := Object(arch.ARM64)

	rel := obj.Relocations[0]
	if rel.Kind != object.ARM64_CALL26 || rel.Addend != 0 || rel.Offset != 4 {
		t.Errorf("unexpected ARM64 prelude relocation: %+v", rel)
	}
	if obj.Symbols[0].SectionIndex != -1 {
		t.Errorf("expected undefined main to carry SectionIndex -1, got %d", obj.Symbols[0].SectionIndex)
	}
}

func TestObjectARM64FirstInstructionIsMovX29Zero(t *testing.T) {
	obj := Object(arch.ARM64)

	want := []byte{0x1d, 0x00, 0x80, 0xd2} // mov x29, #0
	got := obj.Sections[0].Bytes[0:4]
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("mov x29, #0 encoding = % x, want % x", got, want)
		}
	}
}

func TestObjectDefaultsToX8664(t *testing.T) {
	want := x8664Object()
	got := Object(arch.Unknown)
	if len(got.Sections[0].Bytes) != len(want.Sections[0].Bytes) {
		t.Errorf("expected unknown arch to fall back to the x86-64 prelude")
	}
}
