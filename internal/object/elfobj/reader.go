// Package elfobj parses ELF-64 relocatable object files (ET_REL) into the
// unified object.Object model (spec.md §4.1 "ELF parser").
//
// Grounded on the pack's other_examples/pattyshack-bad elf/file.go
// (parser struct walking identifier -> header -> section headers in a
// fixed sequence, validating class/endianness/ABI up front) and on the
// teacher's elf_static.go/elf_complete.go for the constant-naming style
// (SHT_*, Elf64_* struct field names).
package elfobj

import (
	"encoding/binary"
	"fmt"

	"github.com/xyproto/soxlink/internal/object"
)

const (
	eiClass     = 4
	eiData      = 5
	classELF64  = 2
	dataLSB     = 1
	ehdrSize    = 64
	shdrSize    = 64
	symSize     = 24
	relaSize    = 24
	shnUndef    = 0
	shtNull     = 0
	shtProgbits = 1
	shtSymtab   = 2
	shtStrtab   = 3
	shtRela     = 4
	shtNobits   = 8

	stbLocal  = 0
	stbGlobal = 1
	stbWeak   = 2

	sttNotype  = 0
	sttObject  = 1
	sttFunc    = 2
	sttSection = 3
)

// x86-64 and AArch64 relocation type constants (System V ABI / AArch64 ELF ABI).
const (
	rX8664_64        = 1
	rX8664PC32       = 2
	rX8664PLT32      = 4
	rX8664GOTPCREL   = 9
	rAARCH64_ABS64   = 257
	rAARCH64_CALL26  = 283
	rAARCH64_JUMP26  = 282
	rAARCH64_ADR_PG  = 275
	rAARCH64_ADD_LO12 = 277
)

// Magic is the 4-byte ELF identifier spec.md §4.1 dispatches on.
var Magic = [4]byte{0x7F, 0x45, 0x4C, 0x46}

func mapRelocType(t uint32) object.RelocationKind {
	switch t {
	case rX8664_64:
		return object.X64_64
	case rX8664PC32:
		return object.X64_PC32
	case rX8664PLT32:
		return object.X64_PLT32
	case rX8664GOTPCREL:
		return object.X64_GOTPCREL
	case rAARCH64_ABS64:
		return object.ARM64_ABS64
	case rAARCH64_CALL26:
		return object.ARM64_CALL26
	case rAARCH64_JUMP26:
		return object.ARM64_JUMP26
	case rAARCH64_ADR_PG:
		return object.ARM64_ADR_PREL_PG_HI21
	case rAARCH64_ADD_LO12:
		return object.ARM64_ADD_ABS_LO12_NC
	default:
		return object.RelNone
	}
}

func classify(name string) object.SectionType {
	switch name {
	case ".text":
		return object.SectionText
	case ".data":
		return object.SectionData
	case ".bss":
		return object.SectionBss
	case ".rodata", ".rdata":
		return object.SectionRodata
	default:
		return object.SectionUnknown
	}
}

// Parse reads an ELF-64 relocatable object from raw, tagging the result
// with filename. Section header, section data, symbol table, string table
// and relocation table ranges are bounds checked against len(raw), and
// every symbol name offset against its string table; any violation is
// returned as an error (spec.md §4.1 "Errors").
func Parse(raw []byte, filename string) (*object.Object, error) {
	if len(raw) < ehdrSize {
		return nil, fmt.Errorf("elfobj: truncated header in %s", filename)
	}
	if raw[eiClass] != classELF64 {
		return nil, fmt.Errorf("elfobj: %s is not a 64-bit ELF object", filename)
	}
	if raw[eiData] != dataLSB {
		return nil, fmt.Errorf("elfobj: %s is not little-endian", filename)
	}

	shoff := binary.LittleEndian.Uint64(raw[0x28:0x30])
	shentsize := binary.LittleEndian.Uint16(raw[0x3A:0x3C])
	shnum := binary.LittleEndian.Uint16(raw[0x3C:0x3E])
	shstrndx := binary.LittleEndian.Uint16(raw[0x3E:0x40])

	if shentsize != 0 && shentsize != shdrSize {
		return nil, fmt.Errorf("elfobj: %s: unexpected section header size %d", filename, shentsize)
	}

	type rawShdr struct {
		name, typ              uint32
		flags, addr, off, size uint64
		link, info             uint32
		align, entsize         uint64
	}

	readShdr := func(i int) (rawShdr, error) {
		start := shoff + uint64(i)*shdrSize
		if start+shdrSize > uint64(len(raw)) {
			return rawShdr{}, fmt.Errorf("elfobj: %s: section header %d out of range", filename, i)
		}
		b := raw[start : start+shdrSize]
		return rawShdr{
			name:  binary.LittleEndian.Uint32(b[0:4]),
			typ:   binary.LittleEndian.Uint32(b[4:8]),
			flags: binary.LittleEndian.Uint64(b[8:16]),
			addr:  binary.LittleEndian.Uint64(b[16:24]),
			off:   binary.LittleEndian.Uint64(b[24:32]),
			size:  binary.LittleEndian.Uint64(b[32:40]),
			link:  binary.LittleEndian.Uint32(b[40:44]),
			info:  binary.LittleEndian.Uint32(b[44:48]),
			align: binary.LittleEndian.Uint64(b[48:56]),
		}, nil
	}

	if shnum == 0 {
		return &object.Object{Filename: filename, Format: object.FormatELF, ArchiveIndex: -1}, nil
	}
	if uint64(shstrndx) >= uint64(shnum) {
		return nil, fmt.Errorf("elfobj: %s: bad section string table index", filename)
	}

	shstrtab, err := readShdr(int(shstrndx))
	if err != nil {
		return nil, err
	}
	if shstrtab.off+shstrtab.size > uint64(len(raw)) {
		return nil, fmt.Errorf("elfobj: %s: section string table out of range", filename)
	}
	strtabBytes := raw[shstrtab.off : shstrtab.off+shstrtab.size]
	shName := func(off uint32) string { return cstr(strtabBytes, off) }

	raws := make([]rawShdr, shnum)
	for i := 0; i < int(shnum); i++ {
		raws[i], err = readShdr(i)
		if err != nil {
			return nil, err
		}
	}

	obj := &object.Object{Filename: filename, Format: object.FormatELF, RawBytes: raw, ArchiveIndex: -1}

	// secIndexMap[original ELF section index] -> index into obj.Sections,
	// or -1 if the section wasn't classified/kept (e.g. .symtab itself).
	secIndexMap := make([]int, shnum)
	for i := range secIndexMap {
		secIndexMap[i] = -1
	}

	var symtabIdx, strtabIdx = -1, -1
	var relaSections []int // indices into raws that are SHT_RELA

	for i, sh := range raws {
		switch sh.typ {
		case shtProgbits, shtNobits:
			name := shName(sh.name)
			align := sh.align
			if align == 0 {
				align = 1
			}
			sec := object.Section{
				Name:        name,
				Type:        classify(name),
				Size:        sh.size,
				Alignment:   align,
				ObjectIndex: 0,
			}
			if sec.Type == object.SectionUnknown {
				// Unclassified PROGBITS sections (e.g. .comment, .note) are
				// skipped: spec.md §3 only names four section types.
				continue
			}
			if sh.typ == shtProgbits {
				if sh.off+sh.size > uint64(len(raw)) {
					return nil, fmt.Errorf("elfobj: %s: section %q data out of range", filename, name)
				}
				sec.Bytes = append([]byte(nil), raw[sh.off:sh.off+sh.size]...)
			}
			switch {
			case sh.flags&0x4 != 0: // SHF_EXECINSTR
				sec.Flags = object.FlagRead | object.FlagExec
			case sh.flags&0x1 != 0: // SHF_WRITE
				sec.Flags = object.FlagRead | object.FlagWrite
			default:
				sec.Flags = object.FlagRead
			}
			secIndexMap[i] = len(obj.Sections)
			obj.Sections = append(obj.Sections, sec)
		case shtSymtab:
			symtabIdx = i
			strtabIdx = int(sh.link)
		case shtRela:
			relaSections = append(relaSections, i)
		}
	}

	if symtabIdx >= 0 {
		sh := raws[symtabIdx]
		if sh.off+sh.size > uint64(len(raw)) {
			return nil, fmt.Errorf("elfobj: %s: symtab out of range", filename)
		}
		if strtabIdx < 0 || strtabIdx >= int(shnum) {
			return nil, fmt.Errorf("elfobj: %s: invalid symtab string link", filename)
		}
		strSh := raws[strtabIdx]
		if strSh.off+strSh.size > uint64(len(raw)) {
			return nil, fmt.Errorf("elfobj: %s: symbol string table out of range", filename)
		}
		symStrtab := raw[strSh.off : strSh.off+strSh.size]

		data := raw[sh.off : sh.off+sh.size]
		n := len(data) / symSize
		obj.Symbols = make([]object.Symbol, n)
		for i := 0; i < n; i++ {
			b := data[i*symSize : (i+1)*symSize]
			nameOff := binary.LittleEndian.Uint32(b[0:4])
			info := b[4]
			shndx := binary.LittleEndian.Uint16(b[6:8])
			value := binary.LittleEndian.Uint64(b[8:16])
			size := binary.LittleEndian.Uint64(b[16:24])
			if nameOff != 0 && uint64(nameOff) >= uint64(len(symStrtab)) {
				return nil, fmt.Errorf("elfobj: %s: symbol %d name offset out of range", filename, i)
			}

			bind := info >> 4
			typ := info & 0xF

			sym := object.Symbol{
				Name:         cstr(symStrtab, nameOff),
				Value:        value,
				Size:         size,
				DefiningObject: object.NotDefined,
				SectionIndex: -1,
			}
			switch typ {
			case sttFunc:
				sym.Type = object.SymFunc
			case sttObject:
				sym.Type = object.SymObject
			case sttSection:
				sym.Type = object.SymSection
			default:
				sym.Type = object.SymNoType
			}
			switch bind {
			case stbGlobal:
				sym.Binding = object.BindGlobal
			case stbWeak:
				sym.Binding = object.BindWeak
			default:
				sym.Binding = object.BindLocal
			}

			if shndx != shnUndef {
				if int(shndx) >= len(secIndexMap) || secIndexMap[shndx] < 0 {
					// Symbol defined against a section we didn't keep
					// (e.g. absolute or a stripped debug section); left
					// undefined with no address. symtab.ResolveUndefined
					// skips local symbols, so a local one is harmless.
					sym.Defined = false
				} else {
					sym.Defined = true
					sym.SectionIndex = secIndexMap[shndx]
					// DefiningObject is filled in by object.FinalizeIndices
					// once the caller knows this object's index in Context.
				}
			}
			obj.Symbols[i] = sym
		}
	}

	for _, ri := range relaSections {
		sh := raws[ri]
		if sh.off+sh.size > uint64(len(raw)) {
			return nil, fmt.Errorf("elfobj: %s: rela section out of range", filename)
		}
		targetELFIdx := int(sh.info)
		if targetELFIdx >= len(secIndexMap) || secIndexMap[targetELFIdx] < 0 {
			continue // relocations against a section we didn't keep
		}
		targetSecIdx := secIndexMap[targetELFIdx]

		data := raw[sh.off : sh.off+sh.size]
		n := len(data) / relaSize
		for i := 0; i < n; i++ {
			b := data[i*relaSize : (i+1)*relaSize]
			offset := binary.LittleEndian.Uint64(b[0:8])
			info := binary.LittleEndian.Uint64(b[8:16])
			addend := int64(binary.LittleEndian.Uint64(b[16:24]))

			symIdx := uint32(info >> 32)
			relType := uint32(info & 0xFFFFFFFF)

			obj.Relocations = append(obj.Relocations, object.Relocation{
				Offset:       offset,
				Kind:         mapRelocType(relType),
				SymbolIndex:  int(symIdx),
				Addend:       addend,
				SectionIndex: targetSecIdx,
			})
		}
	}

	return obj, nil
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
