// Package archive implements C2 ArchiveReader (spec.md §4.2): iterating a
// Unix ar archive's entries and feeding each accepted object member through
// object.ReadBytes into a linker.Context.
//
// Grounded on the BSD ar format constants in the pack's
// Binject-debug/goobj2 file.go (the "!<arch>\n" signature), generalized
// here to the full 60-byte-header parser spec.md §4.2 describes, since
// goobj2 only reads Go's own flavour of the format.
package archive

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xyproto/soxlink/internal/linker"
	"github.com/xyproto/soxlink/internal/object"
)

const (
	signature  = "!<arch>\n"
	headerSize = 60
)

// Entry is one parsed archive member (spec.md §3 "ArchiveEntry").
type Entry struct {
	Name string
	Size int64
	Data []byte
}

// Parse walks raw as a BSD ar archive and returns every entry, including
// ones Extract will later skip. Exposed separately from Extract so tests
// can assert on entry framing without invoking the object reader.
func Parse(raw []byte) ([]Entry, error) {
	if len(raw) < len(signature) || string(raw[:len(signature)]) != signature {
		return nil, fmt.Errorf("archive: bad signature")
	}
	var entries []Entry
	pos := len(signature)
	for pos < len(raw) {
		if pos+headerSize > len(raw) {
			return nil, fmt.Errorf("archive: truncated header at offset %d", pos)
		}
		hdr := raw[pos : pos+headerSize]
		if hdr[58] != '`' || hdr[59] != '\n' {
			return nil, fmt.Errorf("archive: malformed header terminator at offset %d", pos)
		}
		name := strings.TrimRight(string(hdr[0:16]), " ")
		sizeStr := strings.TrimSpace(string(hdr[48:58]))
		size, err := strconv.ParseInt(sizeStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("archive: bad size field at offset %d: %w", pos, err)
		}
		pos += headerSize

		if pos+int(size) > len(raw) {
			return nil, fmt.Errorf("archive: truncated entry %q", name)
		}
		data := raw[pos : pos+int(size)]
		pos += int(size)
		if size%2 != 0 {
			// Odd-sized entries are padded to an even byte count.
			if pos < len(raw) {
				pos++
			}
		}

		if strings.HasPrefix(name, "#1/") {
			n, err := strconv.Atoi(strings.TrimPrefix(name, "#1/"))
			if err != nil || n > len(data) {
				return nil, fmt.Errorf("archive: bad BSD extended name %q", name)
			}
			name = strings.TrimRight(string(data[:n]), "\x00")
			data = data[n:]
		}

		entries = append(entries, Entry{Name: name, Size: int64(len(data)), Data: data})
	}
	return entries, nil
}

// Extract parses archive bytes from raw (the whole archive, read into one
// in-memory buffer by the caller; entries are walked front to back) and
// feeds every accepted member
// through object.ReadBytes, appending it to ctx. Special entries (names
// beginning with "__", e.g. symbol-table indexes) and entries not ending
// in ".o" are skipped. Returns the count of objects added.
func Extract(raw []byte, archiveName string, ctx *linker.Context) (int, error) {
	entries, err := Parse(raw)
	if err != nil {
		return 0, fmt.Errorf("archive: %s: %w", archiveName, err)
	}

	count := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name, "__") {
			continue
		}
		if !strings.HasSuffix(e.Name, ".o") {
			continue
		}
		obj, err := object.ReadBytes(e.Data, e.Name)
		if err != nil {
			return count, fmt.Errorf("archive: %s: member %q: %w", archiveName, e.Name, err)
		}
		idx := ctx.AddObject(obj)
		object.FinalizeIndices(obj, idx)
		count++
	}
	return count, nil
}
