package object

// FinalizeIndices stamps obj's own Sections/Symbols/Relocations with its
// position idx within a linker.Context's Objects slice. Format readers
// don't know idx while parsing (they only see one file at a time), so the
// caller calls this immediately after Context.AddObject — spec.md §9
// "Manual pointer graphs -> arena + indices": every cross-object reference
// is an index into a context-owned vector, never a pointer.
func FinalizeIndices(obj *Object, idx int) {
	for i := range obj.Sections {
		obj.Sections[i].ObjectIndex = idx
	}
	for i := range obj.Symbols {
		if obj.Symbols[i].Defined {
			obj.Symbols[i].DefiningObject = idx
		}
	}
	for i := range obj.Relocations {
		obj.Relocations[i].ObjectIndex = idx
	}
}
