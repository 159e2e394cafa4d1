// Package ast defines the fully type-inferred tree the code generator
// walks. Every node is one of a closed set of variants;
// the lexer/parser, normalization passes, and type inference that
// produce such a tree are out of scope here; callers build nodes
// directly or via the JSON program loader in cmd/ember.
package ast

import (
	"ember/internal/source"
	"ember/internal/symbols"
	"ember/internal/types"
)

// Kind discriminates the closed set of node variants.
type Kind uint8

const (
	KindNop Kind = iota
	KindLiteral
	KindVar
	KindCastedVar
	KindAssign
	KindIf
	KindWhile
	KindReturn
	KindBreak
	KindYield
	KindCall
	KindDef
	KindTypeDef
	KindPointerPrimitive
	KindIsA
	KindExceptionHandler
	KindSimpleOr
	KindExpressions
	KindPrimitive
)

// Node is one AST node. Exactly one of the payload fields matching Kind
// is meaningful (tagged kind plus one payload struct per kind). Type is
// the node's resolved type as produced by (out of scope) inference; it
// is the zero value types.NoTypeID for statements with no value.
type Node struct {
	Kind Kind
	Type types.TypeID
	Span source.Span

	Literal  Literal
	Var      Var
	Casted   CastedVar
	Assign   Assign
	If       If
	While    While
	Return   Return
	Break    Break
	Yield    Yield
	Call     Call
	Def      Def
	TypeDef  TypeDef
	Pointer  PointerPrimitive
	IsA      IsA
	Handler  ExceptionHandler
	SimpleOr SimpleOr
	Seq      Expressions
	Prim     Primitive
}

// LiteralKind enumerates the literal forms.
type LiteralKind uint8

const (
	LiteralNil LiteralKind = iota
	LiteralBool
	LiteralNumber
	LiteralChar
	LiteralString
	LiteralSymbol
)

// NumberKind distinguishes a number literal's declared kind (the
// kind chosen by the frontend, not re-inferred here).
type NumberKind uint8

const (
	NumberInt32 NumberKind = iota
	NumberInt64
	NumberFloat32
	NumberFloat64
)

// Literal is a constant value baked directly into the node.
type Literal struct {
	Kind      LiteralKind
	BoolVal   bool
	NumberVal NumberKind
	IntVal    int64
	FloatVal  float64
	CharVal   rune
	StringVal string
	SymbolVal string
}

// VarKind distinguishes the storage class a variable reference targets.
type VarKind uint8

const (
	VarLocal VarKind = iota
	VarInstance
	VarClass
	VarGlobal
	VarConstant
)

// Var is a read of (or assignable reference to) a binding.
type Var struct {
	Kind VarKind
	Name string
}

// CastedVar is the intermediate the type checker inserts to adapt a
// union/hierarchy/nilable read to a narrower static type; Inner is the
// underlying variable read and Node.Type carries the narrower type.
type CastedVar struct {
	Inner *Node
}

// Assign stores Value into Target, which must be a Var, CastedVar, or
// PointerPrimitive(deref) node naming an assignable place.
type Assign struct {
	Target *Node
	Value  *Node
}

// If is the conditional. Else may be nil (bare `if`, result type void).
type If struct {
	Cond *Node
	Then *Node
	Else *Node
}

// While is the loop. RunOnce makes it a do/while (body executes before
// the first condition test).
type While struct {
	Cond    *Node
	Body    *Node
	RunOnce bool
}

// Return transfers control out of the enclosing method (or, inside an
// inlined block, out of the method that contains the yielding call).
type Return struct {
	Value *Node // nil for a bare `return`
}

// Break exits the nearest enclosing while or, inside an inlined
// block, the call that yielded to it.
type Break struct {
	Value *Node
}

// Yield invokes the block attached to the enclosing call with Args.
type Yield struct {
	Args []*Node
}

// Call is a method/function invocation, optionally with an attached
// Block that is inlined rather than invoked as a real call. Targets
// lists every candidate def the call could resolve to; len(Targets) > 1
// means the call requires dynamic dispatch.
type Call struct {
	Receiver *Node // nil for a top-level function call
	Name     string
	Args     []*Node
	OutArg   []bool // true at index i when Args[i] is an out-parameter
	Block    *Block
	Targets  []symbols.SymbolID
	IsRaises bool // callee may raise; call lowering chooses invoke vs call

	// Expansion is the already-typed body a macro target expanded to;
	// when set, the call lowers by accepting it in place.
	Expansion *Node
}

// Block is the caller-supplied body attached to a call, inlined at
// each `yield` inside the callee.
type Block struct {
	Params []string
	Body   *Node
}

// Param is one formal parameter of a Def.
type Param struct {
	Name string
	Type types.TypeID
}

// Def declares a function or method. External defs (C functions) carry
// no Body and keep their C linkage name in ExternName.
type Def struct {
	Sym        symbols.SymbolID
	Name       string
	Owner      types.TypeID // NoTypeID for a top-level def
	Params     []Param
	ReturnType types.TypeID
	Body       *Node
	External   bool
	ExternName string
	Raises     bool
}

// TypeDefKind distinguishes the value/reference type declaration forms.
type TypeDefKind uint8

const (
	TypeDefClass TypeDefKind = iota
	TypeDefCStruct
	TypeDefCUnion
)

// TypeDef declares a class/struct/union type; the declared shape itself
// lives in the type oracle, this node just anchors it in the tree.
type TypeDef struct {
	Kind TypeDefKind
	ID   types.TypeID
	Name string
}

// PointerOp enumerates the raw-pointer primitives.
type PointerOp uint8

const (
	PointerMalloc PointerOp = iota
	PointerRealloc
	PointerGet   // dereference-load
	PointerSet   // dereference-store
	PointerAddr  // address-of a place
	PointerNull  // the null pointer literal for Node.Type
	PointerToInt // ptr -> integer bit pattern
	PointerFromInt
	PointerAdd // pointer + offset
)

// PointerPrimitive is a raw-pointer operation.
type PointerPrimitive struct {
	Op      PointerOp
	Pointer *Node
	Value   *Node // PointerSet source, PointerFromInt source, PointerAdd offset
	Count   *Node // PointerMalloc/PointerRealloc element count
}

// IsA is the `is_a?` runtime type test.
type IsA struct {
	Value  *Node
	Target types.TypeID
}

// Rescue is one `rescue` clause. Types is always treated as a flat
// disjunction: no subtype-chain matching is implied by listing more
// than one type.
type Rescue struct {
	Types   []types.TypeID
	VarName string // bound exception variable, "" if unused
	Body    *Node
}

// ExceptionHandler is a begin/rescue/ensure construct.
type ExceptionHandler struct {
	Body    *Node
	Rescues []Rescue
	Ensure  *Node // nil if no ensure clause
}

// SimpleOr is `a || b`: evaluate Left; if its runtime value is truthy
// per codegen_cond, that is the result, otherwise evaluate and yield
// Right. Unlike a general boolean `or`, neither side is required to be
// Bool-typed; the result widens to Node.Type exactly like an If.
type SimpleOr struct {
	Left  *Node
	Right *Node
}

// Expressions is a sequence of statements evaluated in order; its
// value is its last child's value (or void if empty).
type Expressions struct {
	Body []*Node
}

// PrimitiveOp enumerates the built-in unary and binary operations.
// Operator methods on the numeric types carry bodies made of these
// nodes over their parameter variables, so `1 + 2` monomorphizes like
// any other call while its body still lowers to a single IR
// instruction.
type PrimitiveOp uint8

const (
	PrimAdd PrimitiveOp = iota
	PrimSub
	PrimMul
	PrimDiv
	PrimRem
	PrimAnd
	PrimOr
	PrimXor
	PrimShl
	PrimShr
	PrimEq
	PrimNe
	PrimLt
	PrimLe
	PrimGt
	PrimGe
	PrimNot // unary: logical/bitwise complement
	PrimNeg // unary: arithmetic negation
	PrimCast
)

// Primitive is a built-in unary/binary operation. Right is nil for the
// unary ops; for PrimCast, Node.Type names the destination type.
type Primitive struct {
	Op    PrimitiveOp
	Left  *Node
	Right *Node
}
