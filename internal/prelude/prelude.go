// Package prelude synthesises the ELF _start stub as an ordinary
// object.Object, so it flows through symbol resolution, layout, and
// relocation patching exactly like any object the driver parsed from
// disk — rather than being spliced into the text section byte buffer
// after addresses have already been finalised.
//
// Grounded on the teacher's _start byte sequences in elf_complete.go
// (WriteCompleteDynamicELF's x86-64/ARM64 entry code), reframed from
// "hand-patched bytes written directly into the output buffer" into a
// one-relocation object the resolver and C5 RelocationProcessor handle
// the same way they handle a call to any other externally defined
// function (spec.md §4.6.1: "a synthesised _start prelude is generated
// and prepended into the text section").
package prelude

import (
	"encoding/binary"

	"github.com/xyproto/soxlink/internal/arch"
	"github.com/xyproto/soxlink/internal/object"
)

// Object builds the synthetic object a driver must add to the object
// list, in objects[0] position, before C4 SectionLayout runs — so its
// .text contribution lands first in the merged text section and its
// vaddr becomes context.entry_point. The call/bl instruction's target is
// left as an unresolved reference to "main"; C3's Phase 2 and C5 patch it
// exactly as they would any other undefined symbol reference.
func Object(a arch.Arch) *object.Object {
	if a == arch.ARM64 {
		return arm64Object()
	}
	return x8664Object()
}

func x8664Object() *object.Object {
	const size = 18
	buf := make([]byte, size)
	buf[0], buf[1], buf[2] = 0x48, 0x31, 0xed // xor rbp, rbp
	buf[3] = 0xe8                             // call rel32 (patched: S + A - P)
	// bytes 4:8 (the call's rel32 operand) are patched by reloc.Apply
	buf[8], buf[9] = 0x89, 0xc7 // mov edi, eax
	buf[10] = 0xb8              // mov eax, 60
	binary.LittleEndian.PutUint32(buf[11:15], 60)
	buf[15], buf[16] = 0x0f, 0x05 // syscall
	// buf[17] pads the prelude to the 18 bytes spec.md §4.6.1 specifies

	return &object.Object{
		Filename: "<_start>",
		Format:   object.FormatELF,
		Sections: []object.Section{
			{Name: ".text", Type: object.SectionText, Bytes: buf, Size: size, Alignment: 16},
		},
		Symbols: []object.Symbol{
			{Name: "main", Binding: object.BindGlobal, SectionIndex: -1, Defined: false, DefiningObject: object.NotDefined},
		},
		Relocations: []object.Relocation{
			// call's rel32 operand starts right after the e8 opcode.
			{Offset: 4, Kind: object.X64_PLT32, SymbolIndex: 0, Addend: -4, SectionIndex: 0},
		},
	}
}

func arm64Object() *object.Object {
	const size = 16
	buf := make([]byte, size)
	copy(buf[0:4], []byte{0x1d, 0x00, 0x80, 0xd2})  // mov x29, #0
	copy(buf[4:8], []byte{0x00, 0x00, 0x00, 0x94})   // bl main (patched: (S + A - P) >> 2, imm26)
	copy(buf[8:12], []byte{0xa8, 0x0b, 0x80, 0xd2})  // mov x8, #93
	copy(buf[12:16], []byte{0x01, 0x00, 0x00, 0xd4}) // svc #0

	return &object.Object{
		Filename: "<_start>",
		Format:   object.FormatELF,
		Sections: []object.Section{
			{Name: ".text", Type: object.SectionText, Bytes: buf, Size: size, Alignment: 16},
		},
		Symbols: []object.Symbol{
			{Name: "main", Binding: object.BindGlobal, SectionIndex: -1, Defined: false, DefiningObject: object.NotDefined},
		},
		Relocations: []object.Relocation{
			{Offset: 4, Kind: object.ARM64_CALL26, SymbolIndex: 0, Addend: 0, SectionIndex: 0},
		},
	}
}
