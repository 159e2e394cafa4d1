package types

// The methods below are the oracle surface consumed by the code
// generator: classification predicates and structural queries, so call
// sites never inspect a Type's Kind directly.

// Union reports whether id is a boxed tagged sum type.
func (in *Interner) Union(id TypeID) bool {
	tt, ok := in.Lookup(id)
	return ok && tt.Kind == KindUnion
}

// Nilable reports whether id is the T | Nil pointer encoding.
func (in *Interner) Nilable(id TypeID) bool {
	tt, ok := in.Lookup(id)
	return ok && tt.Kind == KindNilable
}

// Hierarchy reports whether id is the open "+" view of a class.
func (in *Interner) Hierarchy(id TypeID) bool {
	tt, ok := in.Lookup(id)
	return ok && tt.Kind == KindClass && tt.Hierarchy
}

// CStruct reports whether id is a value-semantics C struct.
func (in *Interner) CStruct(id TypeID) bool {
	tt, ok := in.Lookup(id)
	return ok && tt.Kind == KindCStruct
}

// CUnion reports whether id is a value-semantics C union.
func (in *Interner) CUnion(id TypeID) bool {
	tt, ok := in.Lookup(id)
	return ok && tt.Kind == KindCUnion
}

// NilType reports whether id is exactly the Nil literal type.
func (in *Interner) NilType(id TypeID) bool {
	tt, ok := in.Lookup(id)
	return ok && tt.Kind == KindNil
}

// NoReturn reports whether id is the diverging-expression type.
func (in *Interner) NoReturn(id TypeID) bool {
	tt, ok := in.Lookup(id)
	return ok && tt.Kind == KindNoReturn
}

// Class reports whether id is any class (concrete or hierarchy) view.
func (in *Interner) Class(id TypeID) bool {
	tt, ok := in.Lookup(id)
	return ok && tt.Kind == KindClass
}

// PassedByVal reports whether a value of id's type is passed and
// returned by value rather than by reference (C structs/unions).
func (in *Interner) PassedByVal(id TypeID) bool {
	tt, ok := in.Lookup(id)
	return ok && (tt.Kind == KindCStruct || tt.Kind == KindCUnion)
}

// PassedAsSelf reports whether id's receiver arrives as a pointer
// (classes, and by-val structs/unions which are passed indirectly).
func (in *Interner) PassedAsSelf(id TypeID) bool {
	tt, ok := in.Lookup(id)
	if !ok {
		return false
	}
	return tt.Kind == KindClass || tt.Kind == KindCStruct || tt.Kind == KindCUnion
}

// Types returns the members of a union type.
func (in *Interner) Types(id TypeID) []TypeID {
	tt, ok := in.Lookup(id)
	if !ok {
		return nil
	}
	return tt.Members
}

// ConcreteTypes returns the fully expanded set of concrete alternatives
// for id: a union's members (recursively flattened through nested
// unions) or, for a hierarchy, the base type plus every subtype.
func (in *Interner) ConcreteTypes(id TypeID) []TypeID {
	tt, ok := in.Lookup(id)
	if !ok {
		return nil
	}
	switch {
	case tt.Kind == KindUnion:
		var out []TypeID
		for _, m := range tt.Members {
			out = append(out, in.ConcreteTypes(m)...)
		}
		return out
	case tt.Kind == KindClass && tt.Hierarchy:
		out := append([]TypeID{tt.BaseType}, tt.Subtypes...)
		return out
	default:
		return []TypeID{id}
	}
}

// Subtypes returns the concrete subtypes of a hierarchy's base class.
func (in *Interner) Subtypes(id TypeID) []TypeID {
	tt, ok := in.Lookup(id)
	if !ok {
		return nil
	}
	return tt.Subtypes
}

// NilableType returns the non-nil member of a nilable type.
func (in *Interner) NilableType(id TypeID) TypeID {
	tt, ok := in.Lookup(id)
	if !ok {
		return NoTypeID
	}
	return tt.Elem
}

// BaseType returns the root class of a hierarchy view.
func (in *Interner) BaseType(id TypeID) TypeID {
	tt, ok := in.Lookup(id)
	if !ok {
		return NoTypeID
	}
	return tt.BaseType
}

// TypeIDOf returns the stable runtime discrimination tag for id. For
// primitives this is the TypeID itself; it exists as a named query so
// call sites read as "ask the oracle" rather than assume the identity.
func (in *Interner) TypeIDOf(id TypeID) int32 {
	return int32(id)
}

// LLVMSize returns the byte size codegen must allocate/memset for id.
func (in *Interner) LLVMSize(id TypeID) int {
	tt, ok := in.Lookup(id)
	if !ok {
		return 0
	}
	return tt.LLVMSize
}

// IndexOfInstanceVar returns the 0-based field index of name within
// id's instance variables, or -1 if absent.
func (in *Interner) IndexOfInstanceVar(id TypeID, name string) int {
	tt, ok := in.Lookup(id)
	if !ok {
		return -1
	}
	for i, v := range tt.InstanceVars {
		if v.Name == name {
			return i
		}
	}
	return -1
}

// LookupInstanceVar returns the type of instance variable name on id.
func (in *Interner) LookupInstanceVar(id TypeID, name string) (TypeID, bool) {
	tt, ok := in.Lookup(id)
	if !ok {
		return NoTypeID, false
	}
	for _, v := range tt.InstanceVars {
		if v.Name == name {
			return v.Type, true
		}
	}
	return NoTypeID, false
}

// Implements reports whether a value of type id can be used where
// other is expected: identity, hierarchy subtyping (id is other's base
// or a registered subtype of it), or union membership.
func (in *Interner) Implements(id, other TypeID) bool {
	if id == other {
		return true
	}
	if in.Union(other) {
		for _, m := range in.Types(other) {
			if in.Implements(id, m) {
				return true
			}
		}
		return false
	}
	if in.Hierarchy(other) {
		for _, c := range in.ConcreteTypes(other) {
			if c == id {
				return true
			}
		}
	}
	idT, ok := in.Lookup(id)
	if ok && idT.Kind == KindClass {
		for b := idT.BaseType; b != NoTypeID; {
			if b == other {
				return true
			}
			bt, ok := in.Lookup(b)
			if !ok {
				break
			}
			b = bt.BaseType
		}
	}
	return false
}
