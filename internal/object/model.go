// Package object holds the unified in-memory object model that both the
// ELF-64 and Mach-O 64 readers (internal/object/elfobj, internal/object/machobj)
// parse into, and that every later linker phase operates on.
//
// Grounded on the teacher's elf.go/macho.go header structs for naming style,
// and on the pack's other_examples (aclements-go-obj's obj.Sym/obj.Reloc
// shape, Binject-debug/goobj2's Sym/Reloc pairing) for the reader-facing
// unified-model idea — one Symbol/Relocation/Section shape regardless of
// source format.
package object

import "fmt"

// Format is the binary container an Object was parsed from.
type Format int

const (
	FormatUnknown Format = iota
	FormatELF
	FormatMachO
)

func (f Format) String() string {
	switch f {
	case FormatELF:
		return "elf"
	case FormatMachO:
		return "macho"
	default:
		return "unknown"
	}
}

// SectionType classifies a Section by its role, not by its source-format name.
type SectionType int

const (
	SectionUnknown SectionType = iota
	SectionText
	SectionData
	SectionBss
	SectionRodata
)

func (t SectionType) String() string {
	switch t {
	case SectionText:
		return "text"
	case SectionData:
		return "data"
	case SectionBss:
		return "bss"
	case SectionRodata:
		return "rodata"
	default:
		return "unknown"
	}
}

// Flags are RWX permission bits, independent of source format.
type Flags uint8

const (
	FlagRead Flags = 1 << iota
	FlagWrite
	FlagExec
)

// SymbolType classifies what a Symbol names.
type SymbolType int

const (
	SymNoType SymbolType = iota
	SymFunc
	SymObject
	SymSection
)

// SymbolBinding is the linkage strength of a Symbol.
type SymbolBinding int

const (
	BindLocal SymbolBinding = iota
	BindGlobal
	BindWeak
)

func (b SymbolBinding) String() string {
	switch b {
	case BindGlobal:
		return "global"
	case BindWeak:
		return "weak"
	default:
		return "local"
	}
}

// RelocationKind is the closed set of relocation kinds spec.md §3 names,
// spanning both ISAs this linker patches instructions for.
type RelocationKind int

const (
	RelNone RelocationKind = iota
	X64_64
	X64_PC32
	X64_PLT32
	X64_GOTPCREL
	ARM64_ABS64
	ARM64_CALL26
	ARM64_JUMP26
	ARM64_ADR_PREL_PG_HI21
	ARM64_ADD_ABS_LO12_NC
	Relative
)

func (k RelocationKind) String() string {
	switch k {
	case X64_64:
		return "X64_64"
	case X64_PC32:
		return "X64_PC32"
	case X64_PLT32:
		return "X64_PLT32"
	case X64_GOTPCREL:
		return "X64_GOTPCREL"
	case ARM64_ABS64:
		return "ARM64_ABS64"
	case ARM64_CALL26:
		return "ARM64_CALL26"
	case ARM64_JUMP26:
		return "ARM64_JUMP26"
	case ARM64_ADR_PREL_PG_HI21:
		return "ARM64_ADR_PREL_PG_HI21"
	case ARM64_ADD_ABS_LO12_NC:
		return "ARM64_ADD_ABS_LO12_NC"
	case Relative:
		return "Relative"
	default:
		return "None"
	}
}

// Section is a per-object, pre-merge contiguous range of bytes (spec.md §3).
//
// Invariant: Alignment is a power of two, >= 1. Bss sections carry no
// backing Bytes (len(Bytes) == 0, Size is still the declared size).
type Section struct {
	Name        string
	Type        SectionType
	Bytes       []byte
	Size        uint64
	Alignment   uint64
	Flags       Flags
	Vaddr       uint64 // assigned later, during layout
	ObjectIndex int
}

// Symbol is a named entity defined or referenced by an Object (spec.md §3).
//
// Invariants: if Defined, SectionIndex >= 0 and DefiningObject >= 0. Name
// uniqueness is enforced only at global binding (locals may collide across
// objects, they're not entered into the resolver's global index).
type Symbol struct {
	Name           string
	Type           SymbolType
	Binding        SymbolBinding
	SectionIndex   int // -1 if undefined
	Value          uint64
	Size           uint64
	FinalAddress   uint64 // filled in after layout by symtab.ComputeAddresses
	Defined        bool
	DefiningObject int // -1 = undefined, -2 = satisfied by runtime archive fold
}

const (
	// NotDefined marks a Symbol.DefiningObject with no definer yet.
	NotDefined = -1
	// RuntimeSatisfied marks a Symbol.DefiningObject resolved by the
	// runtime-symbol predicate rather than an explicit definition
	// (spec.md §4.3 Phase 2).
	RuntimeSatisfied = -2
)

// Relocation is a patch instruction: N bytes at Offset within Section get
// rewritten using a value derived from the referenced Symbol and Addend
// (spec.md §3).
type Relocation struct {
	Offset       uint64
	Kind         RelocationKind
	SymbolIndex  int // index into the owning Object's Symbols; -1 = section-relative
	Addend       int64
	SectionIndex int
	ObjectIndex  int
}

// Object is one parsed relocatable object file (spec.md §3).
type Object struct {
	Filename     string
	Format       Format
	Sections     []Section
	Symbols      []Symbol
	Relocations  []Relocation
	RawBytes     []byte
	ArchiveIndex int // -1 if not extracted from an archive
}

// SectionByType returns the index of the first Section of the given type,
// or -1 if the object defines none.
func (o *Object) SectionByType(t SectionType) int {
	for i := range o.Sections {
		if o.Sections[i].Type == t {
			return i
		}
	}
	return -1
}

func (o *Object) String() string {
	return fmt.Sprintf("%s (%s, %d sections, %d symbols, %d relocations)",
		o.Filename, o.Format, len(o.Sections), len(o.Symbols), len(o.Relocations))
}
