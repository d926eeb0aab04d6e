// Package linkerr implements the linker's error taxonomy (spec.md §7):
// a closed set of Kinds, each carrying a message plus optional symbol name
// and numeric detail, accumulated per-phase rather than fast-failed.
//
// Grounded on the teacher's errors.go (CompilerError / ErrorCollector):
// same Level+Message+Error() shape, same "collect many, report together"
// policy, simplified to the linker's needs (no source-line context, since
// there's no source text at this layer — only object files). Symbol names
// attached to an error are run through github.com/ianlancetaylor/demangle
// (the same module pattyshack-bad in the example pack depends on) so a
// C++ object's mangled names read as something a human recognises.
package linkerr

import (
	"fmt"
	"strings"

	"github.com/ianlancetaylor/demangle"
)

// Kind is the closed error taxonomy from spec.md §7.
type Kind int

const (
	ParseError Kind = iota
	UnsupportedFormat
	ArchiveError
	UndefinedSymbol
	DuplicateDefinition
	WeakSymbolConflict
	TypeMismatch
	RangeOverflow
	Misalignment
	AllocationFailed
	IOError
)

func (k Kind) String() string {
	switch k {
	case ParseError:
		return "ParseError"
	case UnsupportedFormat:
		return "UnsupportedFormat"
	case ArchiveError:
		return "ArchiveError"
	case UndefinedSymbol:
		return "UndefinedSymbol"
	case DuplicateDefinition:
		return "DuplicateDefinition"
	case WeakSymbolConflict:
		return "WeakSymbolConflict"
	case TypeMismatch:
		return "TypeMismatch"
	case RangeOverflow:
		return "RangeOverflow"
	case Misalignment:
		return "Misalignment"
	case AllocationFailed:
		return "AllocationFailed"
	case IOError:
		return "IOError"
	default:
		return "Unknown"
	}
}

// Error is a single accumulated linker error.
type Error struct {
	Kind    Kind
	Message string
	Symbol  string // optional
	Detail  int64  // optional numeric detail (offset, value, ...)
}

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithSymbol attaches a symbol name to the error and returns it, for chaining.
func (e *Error) WithSymbol(name string) *Error {
	e.Symbol = name
	return e
}

// WithDetail attaches a numeric detail to the error and returns it, for chaining.
func (e *Error) WithDetail(d int64) *Error {
	e.Detail = d
	return e
}

func (e *Error) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("%s: %s (symbol %q)", e.Kind, e.Message, displaySymbol(e.Symbol))
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// displaySymbol demangles Itanium C++ names (the "_Z..." objects a
// C++-compiled input may define) for readability; names that aren't
// mangled pass through unchanged.
func displaySymbol(name string) string {
	return demangle.Filter(name)
}

// List accumulates errors within a phase (spec.md §7: "accumulate, don't
// fast-fail"). A List implements error so a phase can return it directly;
// the driver checks for a non-empty List between phases and aborts.
type List struct {
	errs []*Error
}

// Add appends err to the list. A nil err is a no-op, so callers can write
// `list.Add(maybeErr())` without an extra nil check.
func (l *List) Add(err *Error) {
	if err == nil {
		return
	}
	l.errs = append(l.errs, err)
}

// Errs returns the accumulated errors.
func (l *List) Errs() []*Error { return l.errs }

// Empty reports whether no errors were accumulated.
func (l *List) Empty() bool { return len(l.errs) == 0 }

// Err returns l as an error if non-empty, else nil — the usual Go idiom
// for "did this operation fail".
func (l *List) Err() error {
	if l.Empty() {
		return nil
	}
	return l
}

func (l *List) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d linker error(s):\n", len(l.errs))
	for _, e := range l.errs {
		sb.WriteString("  ")
		sb.WriteString(e.Error())
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Banner renders the user-visible "Error: <kind>: <message>" header spec.md
// §7 specifies, followed by every accumulated error on its own line.
func (l *List) Banner() string {
	if l.Empty() {
		return ""
	}
	var sb strings.Builder
	first := l.errs[0]
	fmt.Fprintf(&sb, "Error: %s: %s\n", first.Kind, first.Message)
	for _, e := range l.errs {
		sb.WriteString("  ")
		sb.WriteString(e.Error())
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
