package object

import (
	"fmt"
	"os"

	"github.com/xyproto/soxlink/internal/object/elfobj"
	"github.com/xyproto/soxlink/internal/object/machobj"
)

// Read loads and parses the object file at path, dispatching on its magic
// bytes (spec.md §4.1 "ObjectReader contract").
func Read(path string) (*Object, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("object: %w", err)
	}
	return ReadBytes(raw, path)
}

// ReadBytes parses an in-memory object (e.g. an archive member, which never
// has its own path on disk) tagged with filename for diagnostics.
func ReadBytes(raw []byte, filename string) (*Object, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("object: %s: file too small to contain a magic number", filename)
	}
	switch {
	case raw[0] == elfobj.Magic[0] && raw[1] == elfobj.Magic[1] && raw[2] == elfobj.Magic[2] && raw[3] == elfobj.Magic[3]:
		return elfobj.Parse(raw, filename)
	case raw[0] == machobj.Magic[0] && raw[1] == machobj.Magic[1] && raw[2] == machobj.Magic[2] && raw[3] == machobj.Magic[3]:
		return machobj.Parse(raw, filename)
	case raw[0] == machobj.Magic[3] && raw[1] == machobj.Magic[2] && raw[2] == machobj.Magic[1] && raw[3] == machobj.Magic[0]:
		// MH_CIGAM_64 (spec.md §4.1 lists both orderings as dispatching to
		// the Mach-O 64 parser); hand it to machobj.Parse rather than
		// rejecting here, and let its own magic check accept or reject it.
		return machobj.Parse(raw, filename)
	default:
		return nil, fmt.Errorf("object: %s: unsupported format (magic %x)", filename, raw[:4])
	}
}
