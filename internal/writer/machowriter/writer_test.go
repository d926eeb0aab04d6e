package machowriter

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/xyproto/soxlink/internal/arch"
	"github.com/xyproto/soxlink/internal/layout"
	"github.com/xyproto/soxlink/internal/object"
)

func macOSPlatform() arch.Platform {
	return arch.Platform{Arch: arch.ARM64, OS: arch.MacOS}
}

func TestWriteHeaderMagicAndFileType(t *testing.T) {
	p := macOSPlatform()
	baseAddr := p.BaseAddress()
	text := &layout.MergedSection{
		Name: ".text", Type: object.SectionText, Alignment: 16,
		Bytes: []byte{0, 0, 0, 0}, Size: 4,
		Vaddr: baseAddr, FileOffset: 0,
	}

	out, err := Write(p, []*layout.MergedSection{text}, baseAddr, baseAddr)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	magic := binary.LittleEndian.Uint32(out[0:4])
	if magic != mhMagic64 {
		t.Fatalf("bad Mach-O magic: %#x", magic)
	}
	fileType := binary.LittleEndian.Uint32(out[12:16])
	if fileType != mhExecute {
		t.Errorf("expected MH_EXECUTE filetype, got %#x", fileType)
	}
}

func TestWriteEntryOffsetIsMainMinusBase(t *testing.T) {
	p := macOSPlatform()
	baseAddr := p.BaseAddress()
	text := &layout.MergedSection{
		Name: ".text", Type: object.SectionText, Alignment: 16,
		Bytes: make([]byte, 64), Size: 64,
		Vaddr: baseAddr, FileOffset: 0,
	}
	mainAddr := baseAddr + 32

	out, err := Write(p, []*layout.MergedSection{text}, baseAddr, mainAddr)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	// LC_MAIN's entryoff is the file offset of the entry point, which
	// under __TEXT's 1:1 vmaddr<->fileoff mapping equals mainAddr-baseAddr.
	want := mainAddr - baseAddr
	found := false
	for i := 0; i+16 <= len(out); i += 4 {
		cmd := binary.LittleEndian.Uint32(out[i:])
		if cmd == lcMain {
			entryOff := binary.LittleEndian.Uint64(out[i+8:])
			if entryOff != want {
				t.Errorf("LC_MAIN entryoff = %#x, want %#x", entryOff, want)
			}
			found = true
			break
		}
	}
	if !found {
		t.Fatal("LC_MAIN load command not found in output")
	}
}

func TestWriteRejectsMissingTextSection(t *testing.T) {
	p := macOSPlatform()
	_, err := Write(p, nil, p.BaseAddress(), p.BaseAddress())
	if err == nil {
		t.Fatal("expected an error for a section list with no text section")
	}
}

func TestWriteBssOnlyDataSegmentDoesNotUnderflow(t *testing.T) {
	p := macOSPlatform()
	baseAddr := p.BaseAddress()
	text := &layout.MergedSection{
		Name: ".text", Type: object.SectionText, Alignment: 16,
		Bytes: []byte{1, 2, 3, 4}, Size: 4,
		Vaddr: baseAddr, FileOffset: 0,
	}
	bss := &layout.MergedSection{
		Name: ".bss", Type: object.SectionBss, Alignment: 8,
		Size: 4096, Vaddr: baseAddr + p.PageSize(), FileOffset: text.FileOffset + 4,
	}

	out, err := Write(p, []*layout.MergedSection{text, bss}, baseAddr, baseAddr)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if uint64(len(out)) > 4*p.PageSize() {
		t.Fatalf("output suspiciously large (%d bytes); __DATA FileSize likely underflowed", len(out))
	}

	idx := bytes.Index(out, append([]byte("__DATA"), 0))
	if idx < 8 {
		t.Fatal("__DATA segment command not found in output")
	}
	cmdStart := idx - 8
	fileSize := binary.LittleEndian.Uint64(out[cmdStart+48:])
	if fileSize != 0 {
		t.Errorf("expected a bss-only __DATA segment to have FileSize 0, got %d", fileSize)
	}
}

func TestWriteHandlesNoDataOrBss(t *testing.T) {
	p := macOSPlatform()
	baseAddr := p.BaseAddress()
	text := &layout.MergedSection{
		Name: ".text", Type: object.SectionText, Alignment: 16,
		Bytes: []byte{1, 2, 3, 4}, Size: 4,
		Vaddr: baseAddr, FileOffset: 0,
	}

	out, err := Write(p, []*layout.MergedSection{text}, baseAddr, baseAddr)
	if err != nil {
		t.Fatalf("Write with no data/bss section should not error: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("expected non-empty output")
	}
}
