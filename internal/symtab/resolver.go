package symtab

import (
	"strings"

	"github.com/xyproto/soxlink/internal/layout"
	"github.com/xyproto/soxlink/internal/linkerr"
	"github.com/xyproto/soxlink/internal/object"
)

// runtimeOperators is the closed set of runtime operator names spec.md
// §4.3 names verbatim.
var runtimeOperators = map[string]bool{
	"sox_add": true, "sox_sub": true, "sox_mul": true, "sox_div": true,
	"sox_neg": true, "sox_eq": true, "sox_ne": true, "sox_lt": true,
	"sox_le": true, "sox_gt": true, "sox_ge": true, "sox_not": true,
}

// IsRuntimeSymbol reports whether name matches the runtime-satisfied
// predicate from spec.md §4.3 Phase 2: the sox_native_ / sox_runtime_
// prefixes, or one of the closed-set runtime operator names.
func IsRuntimeSymbol(name string) bool {
	if strings.HasPrefix(name, "sox_native_") || strings.HasPrefix(name, "sox_runtime_") {
		return true
	}
	return runtimeOperators[name]
}

// CollectDefined runs Phase 1 (spec.md §4.3): for every defined symbol in
// every object, insert into table under the weak/strong precedence policy.
// Errors (DuplicateDefinition) are accumulated into errs rather than
// returned directly, so a single run reports every duplicate.
func CollectDefined(table *Table, objects []*object.Object, errs *linkerr.List) {
	for objIdx, obj := range objects {
		for symIdx := range obj.Symbols {
			sym := &obj.Symbols[symIdx]
			if !sym.Defined {
				continue
			}
			if sym.Binding == object.BindLocal {
				// Locals never enter the global index; they can collide
				// across objects without conflict (spec.md §3 invariant).
				continue
			}

			existing, present := table.Get(sym.Name)
			if !present {
				table.Set(sym.Name, Entry{Symbol: sym, DefiningObject: objIdx})
				continue
			}

			switch {
			case existing.Symbol.Binding == object.BindGlobal && sym.Binding == object.BindGlobal:
				errs.Add(linkerr.New(linkerr.DuplicateDefinition,
					"%q is defined as a global symbol in both %q and %q",
					sym.Name, objects[existing.DefiningObject].Filename, obj.Filename).WithSymbol(sym.Name))
			case existing.Symbol.Binding == object.BindWeak && sym.Binding == object.BindGlobal:
				// Global wins over a prior weak definition.
				table.Set(sym.Name, Entry{Symbol: sym, DefiningObject: objIdx})
			case existing.Symbol.Binding == object.BindGlobal && sym.Binding == object.BindWeak:
				// Existing global wins; ignore the new weak definition.
			default:
				// Both weak: first writer wins, nothing to do.
			}
		}
	}
}

// ResolveUndefined runs Phase 2 (spec.md §4.3): for every undefined
// non-local symbol in every object, bind it against table, or mark it
// runtime-satisfied, or accumulate an UndefinedSymbol error. Local entries
// (e.g. ELF's null symbol or STT_FILE entries) are not references to
// another object's definition and are skipped. Callers must add runtime-archive
// objects to the object list (and re-run CollectDefined over them) before
// calling ResolveUndefined, so archive-provided definitions win over the
// runtime-predicate fallback (spec.md §4.3 "runtime archive objects are
// added ... before Phase 2").
func ResolveUndefined(table *Table, objects []*object.Object, errs *linkerr.List) {
	for _, obj := range objects {
		for symIdx := range obj.Symbols {
			sym := &obj.Symbols[symIdx]
			if sym.Defined || sym.Binding == object.BindLocal {
				continue
			}
			if entry, ok := table.Get(sym.Name); ok {
				sym.DefiningObject = entry.DefiningObject
				continue
			}
			if IsRuntimeSymbol(sym.Name) {
				sym.DefiningObject = object.RuntimeSatisfied
				continue
			}
			errs.Add(linkerr.New(linkerr.UndefinedSymbol,
				"undefined reference to %q (referenced from %q)", sym.Name, obj.Filename).WithSymbol(sym.Name))
		}
	}
}

// ComputeAddresses walks every defined symbol across objects and sets
// FinalAddress = mergedSection.Vaddr + contributionOffset + symbol.Value
// (spec.md §4.3 "Address finalisation"). Must run after layout.Place.
func ComputeAddresses(objects []*object.Object, sections []*layout.MergedSection) {
	loc := layout.BuildLocator(sections)
	for objIdx, obj := range objects {
		for symIdx := range obj.Symbols {
			sym := &obj.Symbols[symIdx]
			if !sym.Defined {
				continue
			}
			ms, offset, ok := loc.Lookup(objIdx, sym.SectionIndex)
			if !ok {
				continue // symbol in a section type that produced no merged section (e.g. empty bss)
			}
			sym.FinalAddress = ms.Vaddr + offset + sym.Value
		}
	}
}

// FinalAddress resolves sym's address, following DefiningObject when sym
// itself is an undefined reference bound to a definition elsewhere.
func FinalAddress(objects []*object.Object, obj *object.Object, sym *object.Symbol) (uint64, bool) {
	if sym.Defined {
		return sym.FinalAddress, true
	}
	if sym.DefiningObject < 0 {
		return 0, false
	}
	definer := objects[sym.DefiningObject]
	for i := range definer.Symbols {
		if definer.Symbols[i].Name == sym.Name && definer.Symbols[i].Defined {
			return definer.Symbols[i].FinalAddress, true
		}
	}
	return 0, false
}
