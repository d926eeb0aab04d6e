// Package patch implements the bit-level instruction patcher spec.md §4.5
// describes ("Instruction patcher"): small per-width functions that read
// the original instruction word little-endian, mask out the target field,
// OR in the new field, and write it back — so that re-applying with the
// original field value reconstructs the original bytes exactly (spec.md
// §8 invariant 7).
//
// Grounded on the teacher's codegen_arm64_writer.go and the ARM64 BL/ADRP
// patch sites in macho.go / elf_complete.go (patchARM64PLTCalls,
// PatchPCRelocations): same shift-and-mask idiom, generalized from
// one-off call sites into a reusable, kind-indexed set of field
// accessors.
package patch

import (
	"encoding/binary"

	"github.com/xyproto/soxlink/internal/object"
)

// Width returns the number of bytes a relocation of kind patches.
func Width(kind object.RelocationKind) int {
	switch kind {
	case object.X64_64, object.ARM64_ABS64, object.Relative:
		return 8
	default:
		return 4
	}
}

// ReadField extracts the current value of the field a relocation of kind
// occupies within window (which must be at least Width(kind) bytes).
func ReadField(window []byte, kind object.RelocationKind) int64 {
	switch kind {
	case object.X64_64, object.ARM64_ABS64, object.Relative:
		return int64(binary.LittleEndian.Uint64(window))
	case object.X64_PC32, object.X64_PLT32:
		return int64(int32(binary.LittleEndian.Uint32(window)))
	case object.ARM64_CALL26, object.ARM64_JUMP26:
		instr := binary.LittleEndian.Uint32(window)
		imm26 := instr & 0x03FFFFFF
		return signExtend(uint64(imm26), 26) << 2
	case object.ARM64_ADR_PREL_PG_HI21:
		instr := binary.LittleEndian.Uint32(window)
		immlo := (instr >> 29) & 0x3
		immhi := (instr >> 5) & 0x7FFFF
		imm21 := (immhi << 2) | immlo
		return signExtend(uint64(imm21), 21) << 12
	case object.ARM64_ADD_ABS_LO12_NC:
		instr := binary.LittleEndian.Uint32(window)
		return int64((instr >> 10) & 0xFFF)
	default:
		return 0
	}
}

// WriteField masks out the field a relocation of kind occupies within
// window and ORs in value, preserving every other bit of the instruction
// (spec.md §4.5's per-kind "Patch width / encoding" column).
func WriteField(window []byte, kind object.RelocationKind, value int64) {
	switch kind {
	case object.X64_64, object.ARM64_ABS64, object.Relative:
		binary.LittleEndian.PutUint64(window, uint64(value))
	case object.X64_PC32, object.X64_PLT32:
		binary.LittleEndian.PutUint32(window, uint32(int32(value)))
	case object.ARM64_CALL26, object.ARM64_JUMP26:
		instr := binary.LittleEndian.Uint32(window)
		imm26 := uint32(value>>2) & 0x03FFFFFF
		instr = (instr &^ 0x03FFFFFF) | imm26
		binary.LittleEndian.PutUint32(window, instr)
	case object.ARM64_ADR_PREL_PG_HI21:
		instr := binary.LittleEndian.Uint32(window)
		imm21 := uint32(value>>12) & 0x1FFFFF
		immlo := imm21 & 0x3
		immhi := (imm21 >> 2) & 0x7FFFF
		instr = (instr &^ (0x3 << 29)) &^ (0x7FFFF << 5)
		instr |= immlo << 29
		instr |= immhi << 5
		binary.LittleEndian.PutUint32(window, instr)
	case object.ARM64_ADD_ABS_LO12_NC:
		instr := binary.LittleEndian.Uint32(window)
		imm12 := uint32(value) & 0xFFF
		instr = (instr &^ (0xFFF << 10)) | (imm12 << 10)
		binary.LittleEndian.PutUint32(window, instr)
	}
}

func signExtend(v uint64, bits uint) int64 {
	shift := 64 - bits
	return int64(v<<shift) >> shift
}
