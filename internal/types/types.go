// Package types is the type oracle consumed by the code generator: it
// classifies resolved types and answers the structural queries codegen
// needs (union members, hierarchy subtypes, instance-var offsets, stable
// type ids). Type inference and the richer semantic type model that
// produces these resolved types are out of scope here.
package types

import "fmt"

// TypeID stably identifies an interned type. It doubles as the runtime
// type discrimination tag written into tagged-union and hierarchy
// payloads; ids are stable for the life of the interner.
type TypeID int32

// NoTypeID marks the absence of a type (statement nodes with no
// value). It is the zero value, so a freshly constructed node with no
// resolved type is already correctly untyped; the interner keeps slot
// 0 reserved to guarantee no real type ever takes this id.
const NoTypeID TypeID = 0

// Kind enumerates the closed set of type shapes the core understands.
type Kind uint8

const (
	KindInvalid  Kind = iota
	KindVoid          // statement result with no value
	KindNoReturn      // diverging expression type (raise, exit)
	KindNil           // the literal "nil" type
	KindBool
	KindChar  // language character; lowered to i8, see DESIGN.md open question
	KindInt   // signed/unsigned integer of a fixed width
	KindFloat // IEEE float of a fixed width
	KindPointer
	KindCStruct // value-semantics C struct
	KindCUnion  // value-semantics C union
	KindClass   // reference-semantics class, optionally a hierarchy view
	KindUnion   // boxed tagged sum type
	KindNilable // T | Nil, represented as a nullable T*
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindNoReturn:
		return "no_return"
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindChar:
		return "char"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindPointer:
		return "pointer"
	case KindCStruct:
		return "c_struct"
	case KindCUnion:
		return "c_union"
	case KindClass:
		return "class"
	case KindUnion:
		return "union"
	case KindNilable:
		return "nilable"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// InstanceVar describes one field of a class or C-struct/union type.
type InstanceVar struct {
	Name string
	Type TypeID
}

// Type is the structural descriptor stored behind a TypeID. Only the
// fields relevant to Kind are populated; callers go through the
// Interner's predicate and query methods rather than reading Type
// directly, so codegen stays behind the oracle surface.
type Type struct {
	Kind Kind

	// KindInt / KindFloat
	Width    int
	Unsigned bool

	// KindPointer / KindNilable
	Elem TypeID

	// KindCStruct / KindCUnion / KindClass
	Name         string
	InstanceVars []InstanceVar

	// KindClass
	BaseType  TypeID // NoTypeID for the root of a hierarchy
	Subtypes  []TypeID
	Hierarchy bool // true when this TypeID denotes the open "+" view

	// KindUnion
	Members []TypeID

	// LLVM byte size, used to size tagged-union payload arrays and for
	// malloc/memset sizing of boxed values.
	LLVMSize int
}
