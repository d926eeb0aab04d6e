package elfwriter

import (
	"encoding/binary"
	"testing"

	"github.com/xyproto/soxlink/internal/arch"
	"github.com/xyproto/soxlink/internal/layout"
	"github.com/xyproto/soxlink/internal/object"
)

func textOnlyPlatform(t *testing.T, p arch.Platform) (*layout.MergedSection, []*layout.MergedSection) {
	t.Helper()
	text := &layout.MergedSection{
		Name: ".text", Type: object.SectionText, Alignment: 16,
		Bytes: []byte{0x90, 0x90, 0x90, 0x90}, Size: 4,
		Vaddr: 0x400000 + p.PageSize(), FileOffset: p.PageSize(),
	}
	return text, []*layout.MergedSection{text}
}

func TestWriteELFHeaderMagicAndClass(t *testing.T) {
	p := arch.Platform{Arch: arch.X86_64, OS: arch.Linux}
	_, sections := textOnlyPlatform(t, p)

	out, entry, err := Write(p, sections, 0x400000)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if string(out[0:4]) != "\x7fELF" {
		t.Fatalf("bad ELF magic: %v", out[0:4])
	}
	if out[4] != 2 {
		t.Errorf("expected ELFCLASS64, got %d", out[4])
	}
	gotEntry := binary.LittleEndian.Uint64(out[24:32])
	if gotEntry != entry {
		t.Errorf("e_entry %d does not match returned entry %d", gotEntry, entry)
	}
}

func TestWriteEntryPointIsTextVaddr(t *testing.T) {
	p := arch.Platform{Arch: arch.X86_64, OS: arch.Linux}
	text, sections := textOnlyPlatform(t, p)

	_, entry, err := Write(p, sections, 0x400000)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if entry != text.Vaddr {
		t.Errorf("expected entry point %#x to equal text vaddr %#x", entry, text.Vaddr)
	}
}

func TestWriteRejectsMissingTextSection(t *testing.T) {
	p := arch.Platform{Arch: arch.X86_64, OS: arch.Linux}
	_, _, err := Write(p, nil, 0x400000)
	if err == nil {
		t.Fatal("expected an error for a section list with no text section")
	}
}

func TestWriteARM64UsesAArch64Machine(t *testing.T) {
	p := arch.Platform{Arch: arch.ARM64, OS: arch.Linux}
	_, sections := textOnlyPlatform(t, p)

	out, _, err := Write(p, sections, 0x400000)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	machine := binary.LittleEndian.Uint16(out[18:20])
	if machine != emAArch64 {
		t.Errorf("expected e_machine %d, got %d", emAArch64, machine)
	}
}

func TestWriteTwoProgramHeadersForDataAndBss(t *testing.T) {
	p := arch.Platform{Arch: arch.X86_64, OS: arch.Linux}
	text, _ := textOnlyPlatform(t, p)
	data := &layout.MergedSection{
		Name: ".data", Type: object.SectionData, Alignment: 8,
		Bytes: []byte{1, 2, 3, 4}, Size: 4,
		Vaddr: text.Vaddr + p.PageSize(), FileOffset: text.FileOffset + 4,
	}
	bss := &layout.MergedSection{
		Name: ".bss", Type: object.SectionBss, Alignment: 8,
		Size: 16, Vaddr: data.Vaddr + 4, FileOffset: data.FileOffset + 4,
	}
	sections := []*layout.MergedSection{text, data, bss}

	out, _, err := Write(p, sections, 0x400000)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	phnum := binary.LittleEndian.Uint16(out[56:58])
	if phnum != numProgHeaders {
		t.Errorf("expected %d program headers, got %d", numProgHeaders, phnum)
	}
}
