// Package layout implements C4 SectionLayout (spec.md §4.4): merging
// same-type sections across objects and assigning page-aligned virtual
// addresses.
//
// Grounded on the teacher's elf_complete.go WriteCompleteDynamicELF, which
// builds an identical "offset/addr/size" layout map by hand while walking
// sections in a fixed order and page-aligning between segments; this
// package generalizes that one-shot inline layout into a reusable,
// format-independent pass over parsed (not freshly generated) objects.
package layout

import "github.com/xyproto/soxlink/internal/object"

// mergeOrder is the deterministic section ordering spec.md §4.4 mandates.
var mergeOrder = []object.SectionType{
	object.SectionText,
	object.SectionRodata,
	object.SectionData,
	object.SectionBss,
}

// Contribution records where one object's section data landed within a
// MergedSection's buffer.
type Contribution struct {
	SourceObject  int
	SourceSection int
	OffsetInMerged uint64
	Size          uint64
}

// MergedSection is the post-layout union of every object's section of a
// given SectionType (spec.md §3 "MergedSection").
type MergedSection struct {
	Name          string
	Type          object.SectionType
	Bytes         []byte // owned; zero-initialised placeholder for Bss
	Size          uint64
	Alignment     uint64
	Vaddr         uint64
	Flags         object.Flags
	FileOffset    uint64
	Contributions []Contribution
}

func alignUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

func sectionName(t object.SectionType) string {
	switch t {
	case object.SectionText:
		return ".text"
	case object.SectionRodata:
		return ".rodata"
	case object.SectionData:
		return ".data"
	case object.SectionBss:
		return ".bss"
	default:
		return ".unknown"
	}
}

func flagsForType(t object.SectionType) object.Flags {
	switch t {
	case object.SectionText:
		return object.FlagRead | object.FlagExec
	case object.SectionBss, object.SectionData:
		return object.FlagRead | object.FlagWrite
	default:
		return object.FlagRead
	}
}

// Merge groups every Section of the same SectionType across all objects
// into one MergedSection, in the fixed order Text -> Rodata -> Data -> Bss
// (spec.md §4.4 "Policy"). Contributions are appended in object-addition
// order and each is aligned to its own section's alignment before
// placement. A MergedSection's own alignment is the max of its
// contributors'. Types with no contributors are omitted.
func Merge(objects []*object.Object) []*MergedSection {
	var out []*MergedSection
	for _, t := range mergeOrder {
		ms := &MergedSection{Name: sectionName(t), Type: t, Flags: flagsForType(t), Alignment: 1}
		var cursor uint64
		for objIdx, obj := range objects {
			for secIdx := range obj.Sections {
				sec := &obj.Sections[secIdx]
				if sec.Type != t {
					continue
				}
				cursor = alignUp(cursor, sec.Alignment)
				if sec.Alignment > ms.Alignment {
					ms.Alignment = sec.Alignment
				}
				contrib := Contribution{
					SourceObject:   objIdx,
					SourceSection:  secIdx,
					OffsetInMerged: cursor,
					Size:           sec.Size,
				}
				ms.Contributions = append(ms.Contributions, contrib)

				if t != object.SectionBss {
					need := cursor + sec.Size
					if uint64(len(ms.Bytes)) < need {
						grown := make([]byte, need)
						copy(grown, ms.Bytes)
						ms.Bytes = grown
					}
					copy(ms.Bytes[cursor:cursor+sec.Size], sec.Bytes)
				}
				cursor += sec.Size
			}
		}
		ms.Size = cursor
		if t == object.SectionBss {
			// Bss carries no file bytes but still needs a backing buffer
			// so later phases (none, in practice — bss is never relocated
			// into) have something to address. spec.md §4.4 "Bss handling".
			ms.Bytes = make([]byte, ms.Size)
		}
		if len(ms.Contributions) > 0 {
			out = append(out, ms)
		}
	}
	return out
}

// Place assigns virtual addresses to merged sections in order, starting
// one page past baseAddr (spec.md §4.4 "first page reserved"). Every
// section's vaddr is page-aligned, using max(pageSize, section.Alignment)
// as the alignment granularity, "to enable per-segment protection bits".
func Place(sections []*MergedSection, baseAddr, pageSize uint64) (totalSize uint64) {
	cursor := baseAddr + pageSize
	var fileCursor uint64
	for _, ms := range sections {
		align := pageSize
		if ms.Alignment > align {
			align = ms.Alignment
		}
		cursor = alignUp(cursor, align)
		ms.Vaddr = cursor
		if ms.Type == object.SectionBss {
			ms.FileOffset = fileCursor // bss contributes zero file bytes
		} else {
			fileCursor = alignUp(fileCursor, align)
			ms.FileOffset = fileCursor
			fileCursor += ms.Size
		}
		cursor += ms.Size
	}
	if len(sections) == 0 {
		return 0
	}
	last := sections[len(sections)-1]
	return (last.Vaddr + last.Size) - baseAddr
}

// Find returns the MergedSection of the given type, or nil.
func Find(sections []*MergedSection, t object.SectionType) *MergedSection {
	for _, ms := range sections {
		if ms.Type == t {
			return ms
		}
	}
	return nil
}

// locatorKey identifies one (object, section) pair from the pre-merge world.
type locatorKey struct{ obj, sec int }

// Locator maps a pre-merge (objectIndex, sectionIndex) pair to where that
// section's bytes landed in a MergedSection, for symbol address
// finalisation (symtab.ComputeAddresses) and relocation patching
// (reloc.Apply) — both need the same "where did this contribution go"
// answer.
type Locator struct {
	section map[locatorKey]*MergedSection
	offset  map[locatorKey]uint64
}

// BuildLocator indexes every contribution of every section in sections.
func BuildLocator(sections []*MergedSection) *Locator {
	l := &Locator{section: make(map[locatorKey]*MergedSection), offset: make(map[locatorKey]uint64)}
	for _, ms := range sections {
		for _, c := range ms.Contributions {
			k := locatorKey{c.SourceObject, c.SourceSection}
			l.section[k] = ms
			l.offset[k] = c.OffsetInMerged
		}
	}
	return l
}

// Lookup returns the MergedSection a (objIdx, secIdx) pair landed in, and
// its byte offset within that section's buffer.
func (l *Locator) Lookup(objIdx, secIdx int) (*MergedSection, uint64, bool) {
	k := locatorKey{objIdx, secIdx}
	ms, ok := l.section[k]
	if !ok {
		return nil, 0, false
	}
	return ms, l.offset[k], true
}
