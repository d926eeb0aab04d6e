// Package elfwriter implements C6 ExecutableWriter for ELF-64 targets
// (spec.md §4.6.1): an ET_EXEC image with exactly two PT_LOAD program
// headers. The _start prelude (internal/prelude) has already been linked
// in as an ordinary object by the time Write runs, so the entry point is
// simply the merged text section's vaddr.
//
// Grounded on the teacher's elf_complete.go WriteCompleteDynamicELF — same
// "bytes.Buffer + binary.Write little-endian field by field" header and
// program header construction — simplified from a dynamically-linked PIE
// with PLT/GOT/dynsym down to the statically linked two-segment image
// spec.md §4.6.1 calls for (no PT_INTERP, no .dynamic, no PLT: the
// runtime is linked in as ordinary object code, not resolved at load
// time).
package elfwriter

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/xyproto/soxlink/internal/arch"
	"github.com/xyproto/soxlink/internal/layout"
	"github.com/xyproto/soxlink/internal/object"
)

const (
	elfHeaderSize  = 64
	progHeaderSize = 56
	numProgHeaders = 2
	emX8664        = 62
	emAArch64      = 183
	ptLoad         = 1
	pfExec         = 1
	pfWrite        = 2
	pfRead         = 4
)

// Write lays out a statically linked ET_EXEC image from sections (already
// merged, placed by internal/layout, and relocated by internal/reloc) and
// returns the full file bytes plus the entry point.
//
// sections' Vaddr/FileOffset fields (from layout.Place) are trusted
// as-is; every real file offset is ms.FileOffset plus one constant shift
// (the page reserved for the ELF/program headers), which keeps
// p_vaddr - p_offset constant per segment without the writer having to
// re-derive layout's alignment arithmetic.
func Write(p arch.Platform, sections []*layout.MergedSection, baseAddr uint64) ([]byte, uint64, error) {
	if p.Arch != arch.X86_64 && p.Arch != arch.ARM64 {
		return nil, 0, fmt.Errorf("elfwriter: unsupported architecture %s", p.Arch)
	}

	text := layout.Find(sections, object.SectionText)
	if text == nil {
		return nil, 0, fmt.Errorf("elfwriter: no text section to hold the entry prelude")
	}
	entryPoint := text.Vaddr

	headersSize := uint64(elfHeaderSize + progHeaderSize*numProgHeaders)
	shift := alignUp(headersSize, p.PageSize()) - text.FileOffset

	realOffset := func(ms *layout.MergedSection) uint64 { return ms.FileOffset + shift }

	var textSegEnd, dataSegStart, dataSegEnd, dataFilesz, bssTotal uint64
	var dataSeg *layout.MergedSection
	for _, ms := range sections {
		end := realOffset(ms) + ms.Size
		switch ms.Type {
		case object.SectionText, object.SectionRodata:
			if end > textSegEnd {
				textSegEnd = end
			}
		case object.SectionData:
			dataSeg = ms
			dataFilesz = ms.Size
			if dataSegStart == 0 || realOffset(ms) < dataSegStart {
				dataSegStart = realOffset(ms)
			}
			if end > dataSegEnd {
				dataSegEnd = end
			}
		case object.SectionBss:
			bssTotal += ms.Size
			if dataSeg == nil && (dataSegStart == 0 || realOffset(ms) < dataSegStart) {
				dataSegStart = realOffset(ms)
			}
		}
	}
	var dataVaddr uint64
	if dataSeg != nil {
		dataVaddr = dataSeg.Vaddr
	} else if bss := layout.Find(sections, object.SectionBss); bss != nil {
		dataVaddr = bss.Vaddr
	}

	var buf bytes.Buffer
	w := &buf

	writeELFHeader(w, p, entryPoint, headersSize)
	writeProgHeader(w, ptLoad, pfRead|pfExec, 0, baseAddr, textSegEnd, textSegEnd, p.PageSize())
	if dataVaddr != 0 {
		// p_memsz extends p_filesz by the zero-initialised bss region
		// (spec.md §4.6.1 "p_memsz = p_filesz + bss size").
		writeProgHeader(w, ptLoad, pfRead|pfWrite, dataSegStart, dataVaddr, dataFilesz, dataFilesz+bssTotal, p.PageSize())
	} else {
		writeProgHeader(w, ptLoad, pfRead|pfWrite, textSegEnd, baseAddr+textSegEnd, 0, 0, p.PageSize())
	}

	for _, ms := range sections {
		if ms.Type == object.SectionBss {
			continue // contributes no file bytes
		}
		padTo(w, int(realOffset(ms)))
		w.Write(ms.Bytes)
	}

	return buf.Bytes(), entryPoint, nil
}

func writeELFHeader(w *bytes.Buffer, p arch.Platform, entry, phoff uint64) {
	w.Write([]byte{0x7f, 'E', 'L', 'F'})
	w.WriteByte(2) // ELFCLASS64
	w.WriteByte(1) // ELFDATA2LSB
	w.WriteByte(1) // EV_CURRENT
	w.WriteByte(0) // ELFOSABI_NONE (generic System V, not GNU-specific)
	w.Write(make([]byte, 8))
	binary.Write(w, binary.LittleEndian, uint16(2)) // ET_EXEC
	binary.Write(w, binary.LittleEndian, uint16(machine(p.Arch)))
	binary.Write(w, binary.LittleEndian, uint32(1)) // EV_CURRENT
	binary.Write(w, binary.LittleEndian, entry)
	binary.Write(w, binary.LittleEndian, phoff)
	binary.Write(w, binary.LittleEndian, uint64(0)) // no section headers
	binary.Write(w, binary.LittleEndian, uint32(0)) // e_flags
	binary.Write(w, binary.LittleEndian, uint16(elfHeaderSize))
	binary.Write(w, binary.LittleEndian, uint16(progHeaderSize))
	binary.Write(w, binary.LittleEndian, uint16(numProgHeaders))
	binary.Write(w, binary.LittleEndian, uint16(0)) // e_shentsize
	binary.Write(w, binary.LittleEndian, uint16(0)) // e_shnum
	binary.Write(w, binary.LittleEndian, uint16(0)) // e_shstrndx
}

func writeProgHeader(w *bytes.Buffer, pType, flags uint32, offset, vaddr, filesz, memsz, align uint64) {
	binary.Write(w, binary.LittleEndian, pType)
	binary.Write(w, binary.LittleEndian, flags)
	binary.Write(w, binary.LittleEndian, offset)
	binary.Write(w, binary.LittleEndian, vaddr)
	binary.Write(w, binary.LittleEndian, vaddr) // p_paddr, unused
	binary.Write(w, binary.LittleEndian, filesz)
	binary.Write(w, binary.LittleEndian, memsz)
	binary.Write(w, binary.LittleEndian, align)
}

func machine(a arch.Arch) uint16 {
	if a == arch.ARM64 {
		return emAArch64
	}
	return emX8664
}

func alignUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

func padTo(w *bytes.Buffer, target int) {
	for w.Len() < target {
		w.WriteByte(0)
	}
}
