package codegen

import (
	"fmt"

	"fortio.org/safecast"

	"ember/internal/ast"
	"ember/internal/types"
)

// emitExpr is the top-level dispatcher: every node kind codegen knows
// how to lower funnels through this exhaustive switch.
func (f *Frame) emitExpr(n *ast.Node) (string, string, error) {
	if n == nil {
		return "", "void", nil
	}
	switch n.Kind {
	case ast.KindNop:
		return "", "void", nil
	case ast.KindLiteral:
		return f.emitLiteral(n)
	case ast.KindVar:
		return f.emitVarRead(n)
	case ast.KindCastedVar:
		return f.emitCastedVarRead(n)
	case ast.KindAssign:
		return f.emitAssign(n)
	case ast.KindIf:
		return f.emitIf(n)
	case ast.KindWhile:
		return f.emitWhile(n)
	case ast.KindReturn:
		return f.emitReturn(n)
	case ast.KindBreak:
		return f.emitBreak(n)
	case ast.KindYield:
		return f.emitYield(n)
	case ast.KindCall:
		return f.emitCall(n)
	case ast.KindPointerPrimitive:
		return f.emitPointerPrimitive(n)
	case ast.KindIsA:
		return f.emitIsA(n)
	case ast.KindExceptionHandler:
		return f.emitExceptionHandler(n)
	case ast.KindSimpleOr:
		return f.emitSimpleOr(n)
	case ast.KindPrimitive:
		return f.emitPrimitive(n)
	case ast.KindExpressions:
		return f.emitExpressions(n)
	case ast.KindDef, ast.KindTypeDef:
		return "", "void", nil // only ever appear as top-level declarations
	default:
		return "", "", fmt.Errorf("codegen: unhandled node kind %d", n.Kind)
	}
}

// emitLiteral lowers a constant value per its LiteralKind.
func (f *Frame) emitLiteral(n *ast.Node) (string, string, error) {
	lit := n.Literal
	switch lit.Kind {
	case ast.LiteralNil:
		return "null", "ptr", nil
	case ast.LiteralBool:
		if lit.BoolVal {
			return "1", "i1", nil
		}
		return "0", "i1", nil
	case ast.LiteralNumber:
		switch lit.NumberVal {
		case ast.NumberInt32:
			return fmt.Sprintf("%d", lit.IntVal), "i32", nil
		case ast.NumberInt64:
			return fmt.Sprintf("%d", lit.IntVal), "i64", nil
		case ast.NumberFloat32:
			return fmt.Sprintf("%e", lit.FloatVal), "float", nil
		case ast.NumberFloat64:
			return fmt.Sprintf("%e", lit.FloatVal), "double", nil
		default:
			return "", "", fmt.Errorf("codegen: unknown number kind %d", lit.NumberVal)
		}
	case ast.LiteralChar:
		// Characters are byte-wide in this representation; a code point
		// past 0xFF means the frontend sent something this width cannot
		// carry. See the character-width decision in DESIGN.md.
		b, err := safecast.Conv[uint8](int32(lit.CharVal))
		if err != nil {
			return "", "", fmt.Errorf("codegen: char literal %q exceeds byte range: %w", lit.CharVal, err)
		}
		return fmt.Sprintf("%d", b), "i8", nil
	case ast.LiteralString:
		return f.gen.internString(lit.StringVal), "ptr", nil
	case ast.LiteralSymbol:
		id, err := f.gen.syms.SymbolID(lit.SymbolVal)
		if err != nil {
			return "", "", fmt.Errorf("codegen: %w", err)
		}
		return fmt.Sprintf("%d", id), "i32", nil
	default:
		return "", "", fmt.Errorf("codegen: unknown literal kind %d", lit.Kind)
	}
}

// emitIsA lowers a runtime `is_a?` test: for a union receiver, compare
// the loaded tag against every concrete alternative of Target; for a
// hierarchy receiver, compare the boxed tag against Target's subtype
// set; for a nilable receiver, a null check when tested against Nil
// and a non-null check against any other target; otherwise the answer
// is statically known true.
func (f *Frame) emitIsA(n *ast.Node) (string, string, error) {
	in := f.gen.types
	val, _, err := f.emitExpr(n.IsA.Value)
	if err != nil {
		return "", "", err
	}
	valType := n.IsA.Value.Type
	target := n.IsA.Target

	switch {
	case in.Union(valType):
		tagPtr, err := f.unionTypeIDPtr(val, valType)
		if err != nil {
			return "", "", err
		}
		tag := f.nextTemp()
		f.emitf("  %s = load i32, ptr %s\n", tag, tagPtr)
		return f.matchAnyTag(tag, in.ConcreteTypes(target))
	case in.Nilable(valType) && in.NilType(target):
		isNull, err := f.nullPointer(val)
		if err != nil {
			return "", "", err
		}
		return isNull, "i1", nil
	case in.Nilable(valType):
		isNull, err := f.nullPointer(val)
		if err != nil {
			return "", "", err
		}
		notNull := f.nextTemp()
		f.emitf("  %s = xor i1 %s, true\n", notNull, isNull)
		return notNull, "i1", nil
	case in.Hierarchy(valType):
		tag := f.nextTemp()
		f.emitf("  %s = extractvalue { i32, ptr } %s, 0\n", tag, val)
		return f.matchAnyTag(tag, in.ConcreteTypes(target))
	default:
		return "1", "i1", nil
	}
}

// matchAnyTag builds the disjunction `tag == id0 || tag == id1 || ...`
// over a set of candidate concrete types.
func (f *Frame) matchAnyTag(tag string, candidates []types.TypeID) (string, string, error) {
	if len(candidates) == 0 {
		return "0", "i1", nil
	}
	acc := ""
	for _, c := range candidates {
		cmp := f.nextTemp()
		f.emitf("  %s = icmp eq i32 %s, %d\n", cmp, tag, f.gen.types.TypeIDOf(c))
		if acc == "" {
			acc = cmp
			continue
		}
		next := f.nextTemp()
		f.emitf("  %s = or i1 %s, %s\n", next, acc, cmp)
		acc = next
	}
	return acc, "i1", nil
}

// emitSimpleOr lowers `a || b`: evaluate Left, test it truthy via
// codegenCond, and branch to a result block that phi's between Left's
// value and a lazily-evaluated Right. Each arm widens its value to the
// or's own type while still inside its block, so the join holds
// nothing but the phi.
func (f *Frame) emitSimpleOr(n *ast.Node) (string, string, error) {
	leftVal, _, err := f.emitExpr(n.SimpleOr.Left)
	if err != nil {
		return "", "", err
	}
	cond, err := f.codegenCond(leftVal, n.SimpleOr.Left.Type)
	if err != nil {
		return "", "", err
	}
	leftWidened, err := f.widenTo(leftVal, n.SimpleOr.Left.Type, n.Type)
	if err != nil {
		return "", "", err
	}

	rightBlock := f.nextBlock("or.rhs")
	joinBlock := f.nextBlock("or.join")

	leftEndBlock := f.currentBlockLabel()
	f.emitf("  br i1 %s, label %%%s, label %%%s\n", cond, joinBlock, rightBlock)

	f.startBlock(rightBlock)
	rightVal, _, err := f.emitExpr(n.SimpleOr.Right)
	if err != nil {
		return "", "", err
	}
	rightWidened, err := f.widenTo(rightVal, n.SimpleOr.Right.Type, n.Type)
	if err != nil {
		return "", "", err
	}
	rightEndBlock := f.currentBlockLabel()
	f.emitf("  br label %%%s\n", joinBlock)

	f.startBlock(joinBlock)
	resultTy, err := llvmValueType(f.gen.types, n.Type)
	if err != nil {
		return "", "", err
	}
	if f.gen.types.Union(n.Type) {
		// Each arm widened into its own union slot; the phi merges the
		// slot pointers, keeping the unions-behind-pointers invariant.
		resultTy = "ptr"
	}
	out := f.nextTemp()
	f.emitf("  %s = phi %s [ %s, %%%s ], [ %s, %%%s ]\n", out, resultTy, leftWidened, leftEndBlock, rightWidened, rightEndBlock)
	return out, resultTy, nil
}

// currentBlockLabel is a best-effort label for the block currently
// being emitted into, used only to pair phi predecessors correctly
// when the immediately preceding statement didn't introduce a new
// label (control-flow constructs always re-assert their own exit
// block's label right before branching, so this only needs to track
// the most recent explicit label this Frame wrote).
func (f *Frame) currentBlockLabel() string {
	if f.lastLabel == "" {
		return "entry"
	}
	return f.lastLabel
}

// widenTo produces a value of ty's representation from a value already
// computed at fromTy, using assign_to_union through a temporary slot
// when the two types structurally differ. For a union destination the
// slot pointer itself is the result.
func (f *Frame) widenTo(val string, fromTy, toTy types.TypeID) (string, error) {
	if fromTy == toTy {
		return val, nil
	}
	llvmTy, err := llvmValueType(f.gen.types, toTy)
	if err != nil {
		return "", err
	}
	slot := f.alloca(llvmTy, "or.widen")
	if err := f.assignToUnion(slot, toTy, fromTy, val); err != nil {
		return "", err
	}
	if f.gen.types.Union(toTy) {
		return slot, nil
	}
	out := f.nextTemp()
	f.emitf("  %s = load %s, ptr %s\n", out, llvmTy, slot)
	return out, nil
}
