package types

import (
	"fmt"

	"fortio.org/safecast"
)

// Builtins stores TypeIDs for the primitives every module references.
type Builtins struct {
	Void     TypeID
	NoReturn TypeID
	Nil      TypeID
	Bool     TypeID
	Char     TypeID
	Int32    TypeID
	Int64    TypeID
}

// Interner owns every Type the generator will see and assigns each a
// stable TypeID on creation. Unlike a deduplicating hash-consing
// interner, composite types (classes, unions) are defined once by
// their constructor and never rediscovered by structural equality: the
// (out of scope) type checker owns identity, the interner just stores
// what it is told and never mutates a descriptor after definition.
type Interner struct {
	types    []Type
	builtins Builtins
}

// NewInterner constructs an interner seeded with built-in primitives.
func NewInterner() *Interner {
	in := &Interner{types: make([]Type, 0, 64)}
	in.internRaw(Type{Kind: KindInvalid}) // reserve slot 0
	in.builtins.Void = in.internRaw(Type{Kind: KindVoid})
	in.builtins.NoReturn = in.internRaw(Type{Kind: KindNoReturn})
	in.builtins.Nil = in.internRaw(Type{Kind: KindNil, LLVMSize: 8})
	in.builtins.Bool = in.internRaw(Type{Kind: KindBool, LLVMSize: 1})
	in.builtins.Char = in.internRaw(Type{Kind: KindChar, Width: 8, LLVMSize: 1})
	in.builtins.Int32 = in.internRaw(Type{Kind: KindInt, Width: 32, LLVMSize: 4})
	in.builtins.Int64 = in.internRaw(Type{Kind: KindInt, Width: 64, LLVMSize: 8})
	return in
}

// Builtins returns TypeIDs for the seeded primitive types.
func (in *Interner) Builtins() Builtins {
	return in.builtins
}

// DefineInt interns a fixed-width integer type.
func (in *Interner) DefineInt(width int, unsigned bool) TypeID {
	return in.internRaw(Type{Kind: KindInt, Width: width, Unsigned: unsigned, LLVMSize: width / 8})
}

// DefineFloat interns a fixed-width float type.
func (in *Interner) DefineFloat(width int) TypeID {
	return in.internRaw(Type{Kind: KindFloat, Width: width, LLVMSize: width / 8})
}

// DefinePointer interns a pointer-to-elem type.
func (in *Interner) DefinePointer(elem TypeID) TypeID {
	return in.internRaw(Type{Kind: KindPointer, Elem: elem, LLVMSize: 8})
}

// DefineCStruct interns a value-semantics C struct built from fields
// whose LLVMSize values are already known, summing them for the
// aggregate's own size (no padding; tagged-union payloads use the same
// flat byte sizing).
func (in *Interner) DefineCStruct(name string, fields []InstanceVar) TypeID {
	return in.internRaw(Type{Kind: KindCStruct, Name: name, InstanceVars: fields, LLVMSize: in.sumSizes(fields)})
}

// DefineCUnion interns a value-semantics C union: its size is the
// largest member's size since all fields alias the same storage.
func (in *Interner) DefineCUnion(name string, fields []InstanceVar) TypeID {
	return in.internRaw(Type{Kind: KindCUnion, Name: name, InstanceVars: fields, LLVMSize: in.maxSize(fields)})
}

// DefineClass interns a reference-semantics class. baseType is
// NoTypeID for a hierarchy root. A class value itself is always
// pointer-sized; InstanceVars describe the pointee's layout.
func (in *Interner) DefineClass(name string, fields []InstanceVar, baseType TypeID) TypeID {
	return in.internRaw(Type{Kind: KindClass, Name: name, InstanceVars: fields, BaseType: baseType, LLVMSize: 8})
}

// DefineHierarchy interns the open polymorphic "+" view of a class:
// the boxed {type_id, opaque_ptr} representation over base and every
// member of subtypes.
func (in *Interner) DefineHierarchy(base TypeID, subtypes []TypeID) TypeID {
	return in.internRaw(Type{Kind: KindClass, Hierarchy: true, BaseType: base, Subtypes: subtypes, LLVMSize: 12})
}

// DefineUnion interns a boxed tagged sum over members. LLVMSize is the
// tag word plus the largest member's size.
func (in *Interner) DefineUnion(members []TypeID) TypeID {
	max := 0
	for _, m := range members {
		if tt, ok := in.Lookup(m); ok && tt.LLVMSize > max {
			max = tt.LLVMSize
		}
	}
	return in.internRaw(Type{Kind: KindUnion, Members: members, LLVMSize: 4 + max})
}

// DefineNilable interns T | Nil represented as a nullable T*.
func (in *Interner) DefineNilable(elem TypeID) TypeID {
	return in.internRaw(Type{Kind: KindNilable, Elem: elem, LLVMSize: 8})
}

func (in *Interner) sumSizes(fields []InstanceVar) int {
	total := 0
	for _, f := range fields {
		if tt, ok := in.Lookup(f.Type); ok {
			total += tt.LLVMSize
		}
	}
	return total
}

func (in *Interner) maxSize(fields []InstanceVar) int {
	max := 0
	for _, f := range fields {
		if tt, ok := in.Lookup(f.Type); ok && tt.LLVMSize > max {
			max = tt.LLVMSize
		}
	}
	return max
}

// internRaw stores t unconditionally and returns its freshly assigned id.
func (in *Interner) internRaw(t Type) TypeID {
	lenTypes, err := safecast.Conv[int32](len(in.types))
	if err != nil {
		panic(fmt.Errorf("types: type table overflow: %w", err))
	}
	id := TypeID(lenTypes)
	in.types = append(in.types, t)
	return id
}

// Lookup returns the descriptor for a TypeID. Slot 0 is the reserved
// NoTypeID sentinel and never resolves.
func (in *Interner) Lookup(id TypeID) (Type, bool) {
	if id <= NoTypeID || int(id) >= len(in.types) {
		return Type{}, false
	}
	return in.types[id], true
}

// MustLookup panics when id is invalid; used where the caller has
// already established (via an earlier successful lookup or the AST
// construction that produced id) that the type must exist.
func (in *Interner) MustLookup(id TypeID) Type {
	tt, ok := in.Lookup(id)
	if !ok {
		panic(fmt.Errorf("types: invalid TypeID %d", id))
	}
	return tt
}
