// Package machobj parses Mach-O 64 relocatable objects (MH_OBJECT) into
// the unified object.Object model (spec.md §4.1 "Mach-O parser").
//
// Struct layouts and constant names are grounded on the teacher's macho.go
// (MachOHeader64, SegmentCommand64, Section64 — the same fields, same
// names, this time read rather than written) and on the pack's
// blacktop-go-macho/types/commands.go for load-command-walking style.
package machobj

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/xyproto/soxlink/internal/object"
)

const (
	machMagic64 = 0xfeedfacf
	machCigam64 = 0xcffaedfe

	lcSegment64 = 0x19
	lcSymtab    = 0x2

	nExt  = 0x01
	nType = 0x0e
	nSect = 0x0e
)

// Mach-O ARM64 relocation types (the only ISA this linker's Mach-O path targets).
const (
	armRelocUnsigned = 0
	armRelocBranch26 = 2
	armRelocPage21   = 3
	armRelocPageoff12 = 4
	armRelocAddend   = 10
)

// Magic is the 4-byte little-endian Mach-O 64-bit magic spec.md §4.1 dispatches on.
var Magic = [4]byte{0xCF, 0xFA, 0xED, 0xFE}

func classify(segname, sectname string) object.SectionType {
	switch sectname {
	case "__text":
		return object.SectionText
	case "__data":
		return object.SectionData
	case "__bss":
		return object.SectionBss
	case "__const", "__cstring", "__rodata":
		return object.SectionRodata
	default:
		if segname == "__TEXT" && sectname == "__text" {
			return object.SectionText
		}
		return object.SectionUnknown
	}
}

func mapRelocType(t uint32) object.RelocationKind {
	switch t {
	case armRelocBranch26:
		return object.ARM64_CALL26
	case armRelocPage21:
		return object.ARM64_ADR_PREL_PG_HI21
	case armRelocPageoff12:
		return object.ARM64_ADD_ABS_LO12_NC
	case armRelocUnsigned:
		return object.ARM64_ABS64
	default:
		return object.RelNone
	}
}

func cstrFixed(b []byte) string {
	i := 0
	for i < len(b) && b[i] != 0 {
		i++
	}
	return string(b[:i])
}

// Parse reads a Mach-O 64 relocatable object from raw.
func Parse(raw []byte, filename string) (*object.Object, error) {
	if len(raw) < 32 {
		return nil, fmt.Errorf("machobj: truncated header in %s", filename)
	}
	magic := binary.LittleEndian.Uint32(raw[0:4])
	if magic != machMagic64 {
		return nil, fmt.Errorf("machobj: %s: unexpected magic 0x%x", filename, magic)
	}
	ncmds := binary.LittleEndian.Uint32(raw[16:20])
	sizeofcmds := binary.LittleEndian.Uint32(raw[20:24])

	if 32+uint64(sizeofcmds) > uint64(len(raw)) {
		return nil, fmt.Errorf("machobj: %s: load commands out of range", filename)
	}

	obj := &object.Object{Filename: filename, Format: object.FormatMachO, RawBytes: raw, ArchiveIndex: -1}

	// Section records, retained in load-command order, paired with their
	// index into obj.Sections (or -1 if unclassified/skipped) so that the
	// second pass over per-section relocations can map back correctly.
	type secRef struct {
		idx          int // index into obj.Sections, -1 if skipped
		reloff, nrel uint32
		addr         uint64
	}
	var secRefs []secRef

	var symoff, nsyms, stroff, strsize uint32
	haveSymtab := false

	off := uint64(32)
	for c := uint32(0); c < ncmds; c++ {
		if off+8 > uint64(len(raw)) {
			return nil, fmt.Errorf("machobj: %s: load command %d out of range", filename, c)
		}
		cmd := binary.LittleEndian.Uint32(raw[off : off+4])
		cmdsize := binary.LittleEndian.Uint32(raw[off+4 : off+8])
		if cmdsize < 8 || off+uint64(cmdsize) > uint64(len(raw)) {
			return nil, fmt.Errorf("machobj: %s: malformed load command %d", filename, c)
		}
		body := raw[off : off+uint64(cmdsize)]

		switch cmd {
		case lcSegment64:
			if len(body) < 72 {
				return nil, fmt.Errorf("machobj: %s: truncated LC_SEGMENT_64", filename)
			}
			segname := cstrFixed(body[8:24])
			nsects := binary.LittleEndian.Uint32(body[64:68])
			sectOff := 72
			for s := uint32(0); s < nsects; s++ {
				start := sectOff + int(s)*80
				if start+80 > len(body) {
					return nil, fmt.Errorf("machobj: %s: truncated section entry in %s", filename, segname)
				}
				sb := body[start : start+80]
				sectname := cstrFixed(sb[0:16])
				addr := binary.LittleEndian.Uint64(sb[32:40])
				size := binary.LittleEndian.Uint64(sb[40:48])
				offset := binary.LittleEndian.Uint32(sb[48:52])
				alignExp := binary.LittleEndian.Uint32(sb[52:56])
				reloff := binary.LittleEndian.Uint32(sb[56:60])
				nreloc := binary.LittleEndian.Uint32(sb[60:64])
				flags := binary.LittleEndian.Uint32(sb[64:68])

				sType := classify(segname, sectname)
				ref := secRef{idx: -1, reloff: reloff, nrel: nreloc, addr: addr}
				if sType != object.SectionUnknown {
					align := uint64(1) << alignExp
					if alignExp == 0 {
						align = 1
					}
					sec := object.Section{
						Name:      "__TEXT." + sectname,
						Type:      sType,
						Size:      size,
						Alignment: align,
					}
					const sZerofill = 0x1
					isZerofill := flags&0xFF == sZerofill
					if sType == object.SectionBss || isZerofill {
						sec.Type = object.SectionBss
					} else {
						if uint64(offset)+size > uint64(len(raw)) {
							return nil, fmt.Errorf("machobj: %s: section %q data out of range", filename, sectname)
						}
						sec.Bytes = append([]byte(nil), raw[offset:uint64(offset)+size]...)
					}
					switch sec.Type {
					case object.SectionText:
						sec.Flags = object.FlagRead | object.FlagExec
					case object.SectionBss, object.SectionData:
						sec.Flags = object.FlagRead | object.FlagWrite
					default:
						sec.Flags = object.FlagRead
					}
					ref.idx = len(obj.Sections)
					obj.Sections = append(obj.Sections, sec)
				}
				secRefs = append(secRefs, ref)
			}

		case lcSymtab:
			if len(body) < 24 {
				return nil, fmt.Errorf("machobj: %s: truncated LC_SYMTAB", filename)
			}
			symoff = binary.LittleEndian.Uint32(body[8:12])
			nsyms = binary.LittleEndian.Uint32(body[12:16])
			stroff = binary.LittleEndian.Uint32(body[16:20])
			strsize = binary.LittleEndian.Uint32(body[20:24])
			haveSymtab = true
		}

		off += uint64(cmdsize)
	}

	if haveSymtab {
		if uint64(stroff)+uint64(strsize) > uint64(len(raw)) {
			return nil, fmt.Errorf("machobj: %s: string table out of range", filename)
		}
		strtab := raw[stroff : uint64(stroff)+uint64(strsize)]
		const nlistSize = 16
		if uint64(symoff)+uint64(nsyms)*nlistSize > uint64(len(raw)) {
			return nil, fmt.Errorf("machobj: %s: symbol table out of range", filename)
		}
		obj.Symbols = make([]object.Symbol, nsyms)
		for i := uint32(0); i < nsyms; i++ {
			b := raw[uint64(symoff)+uint64(i)*nlistSize : uint64(symoff)+uint64(i+1)*nlistSize]
			strx := binary.LittleEndian.Uint32(b[0:4])
			ntype := b[4]
			nsect := b[5]
			value := binary.LittleEndian.Uint64(b[8:16])

			name := cstr(strtab, strx)
			// Mach-O convention: strip the leading underscore from
			// external names (spec.md §4.1).
			name = strings.TrimPrefix(name, "_")

			sym := object.Symbol{Name: name, Value: value, Type: object.SymFunc, SectionIndex: -1, DefiningObject: object.NotDefined}
			if ntype&nExt != 0 {
				sym.Binding = object.BindGlobal
			} else {
				sym.Binding = object.BindLocal
			}
			if nsect != 0 && ntype&nType == nSect {
				secArrIdx := int(nsect) - 1 // n_sect is 1-based across all segments
				if secArrIdx >= 0 && secArrIdx < len(secRefs) && secRefs[secArrIdx].idx >= 0 {
					sym.Defined = true
					sym.SectionIndex = secRefs[secArrIdx].idx
					// value is an absolute vaddr in the object; rebase to
					// an offset within the section for the unified model.
					sym.Value = value - secRefs[secArrIdx].addr
				}
			}
			obj.Symbols[i] = sym
		}
	}

	// Relocations live per-section; unpack the packed relocation_info
	// words by hand rather than trusting host bitfield layout (spec.md §4.1).
	for _, ref := range secRefs {
		if ref.idx < 0 || ref.nrel == 0 {
			continue
		}
		if uint64(ref.reloff)+uint64(ref.nrel)*8 > uint64(len(raw)) {
			return nil, fmt.Errorf("machobj: %s: relocation table out of range", filename)
		}
		var pendingAddend *int64
		for i := uint32(0); i < ref.nrel; i++ {
			b := raw[uint64(ref.reloff)+uint64(i)*8 : uint64(ref.reloff)+uint64(i+1)*8]
			rAddress := int32(binary.LittleEndian.Uint32(b[0:4]))
			packed := binary.LittleEndian.Uint32(b[4:8])

			symbolnum := packed & 0xFFFFFF
			extern := (packed >> 27) & 0x1
			rtype := (packed >> 28) & 0xF

			if rtype == armRelocAddend {
				// A modifier, not a relocation of its own: its symbolnum
				// field actually carries a sign-extended 24-bit addend
				// that attaches to the NEXT relocation in stream order
				// (spec.md §4.1, §9 note 3 — fully honoured here, unlike
				// the upstream TODO it preserves as a note).
				addend := signExtend24(symbolnum)
				pendingAddend = &addend
				continue
			}

			reloc := object.Relocation{
				Offset:       uint64(rAddress),
				Kind:         mapRelocType(rtype),
				SectionIndex: ref.idx,
				SymbolIndex:  -1,
			}
			if pendingAddend != nil {
				reloc.Addend = *pendingAddend
				pendingAddend = nil
			}
			if extern != 0 {
				reloc.SymbolIndex = int(symbolnum)
			}
			obj.Relocations = append(obj.Relocations, reloc)
		}
	}

	return obj, nil
}

func signExtend24(v uint32) int64 {
	if v&0x800000 != 0 {
		return int64(v) - 0x1000000
	}
	return int64(v)
}

func cstr(b []byte, off uint32) string {
	if int(off) >= len(b) {
		return ""
	}
	end := off
	for end < uint32(len(b)) && b[end] != 0 {
		end++
	}
	return string(b[off:end])
}
