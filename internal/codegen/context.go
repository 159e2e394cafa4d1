package codegen

import (
	"fmt"

	"ember/internal/ast"
	"ember/internal/types"
)

// emitExpressions lowers a statement sequence, stopping early once a
// child is known to transfer control away (return/break/raise, or an
// If/While that both its arms prove unreachable past). Its value is
// its last evaluated child's value, or void.
func (f *Frame) emitExpressions(n *ast.Node) (string, string, error) {
	var val, ty string
	for _, child := range n.Seq.Body {
		f.terminated = false
		v, t, err := f.emitExpr(child)
		if err != nil {
			return "", "", err
		}
		val, ty = v, t
		if f.terminated {
			return val, ty, nil
		}
		if f.gen.types.NoReturn(child.Type) && child.Kind == ast.KindCall {
			// A call whose static type is NoReturn (raise, exit) never
			// comes back; everything after it in this sequence is dead.
			f.terminate("  unreachable\n")
			return val, ty, nil
		}
	}
	return val, ty, nil
}

// codegenCond coerces a value of type ty into an i1, one case per
// type classification.
func (f *Frame) codegenCond(val string, ty types.TypeID) (string, error) {
	in := f.gen.types
	switch {
	case in.NilType(ty):
		return "0", nil
	case isBoolType(in, ty):
		return val, nil
	case in.Nilable(ty) || isPointerType(in, ty):
		isNull, err := f.nullPointer(val)
		if err != nil {
			return "", err
		}
		notNull := f.nextTemp()
		f.emitf("  %s = xor i1 %s, true\n", notNull, isNull)
		return notNull, nil
	case in.Hierarchy(ty):
		return "1", nil
	case in.Union(ty):
		return f.unionTruthy(val, ty)
	default:
		return "1", nil
	}
}

func isBoolType(in *types.Interner, id types.TypeID) bool {
	tt, ok := in.Lookup(id)
	return ok && tt.Kind == types.KindBool
}

func isPointerType(in *types.Interner, id types.TypeID) bool {
	tt, ok := in.Lookup(id)
	return ok && tt.Kind == types.KindPointer
}

// unionTruthy implements "truthy iff not (nil OR (bool AND !value))":
// a union value is falsy exactly when it holds a boxed nil, or a
// boxed bool whose value is false.
func (f *Frame) unionTruthy(val string, ty types.TypeID) (string, error) {
	tagPtr, err := f.unionTypeIDPtr(val, ty)
	if err != nil {
		return "", err
	}
	tag := f.nextTemp()
	f.emitf("  %s = load i32, ptr %s\n", tag, tagPtr)

	nilTag := f.gen.types.TypeIDOf(f.gen.builtins.Nil)
	boolTag := f.gen.types.TypeIDOf(f.gen.builtins.Bool)

	isNil := f.nextTemp()
	f.emitf("  %s = icmp eq i32 %s, %d\n", isNil, tag, nilTag)
	isBool := f.nextTemp()
	f.emitf("  %s = icmp eq i32 %s, %d\n", isBool, tag, boolTag)

	valPtr, err := f.unionValuePtr(val, ty)
	if err != nil {
		return "", err
	}
	boolVal := f.nextTemp()
	f.emitf("  %s = load i1, ptr %s\n", boolVal, valPtr)
	notBoolVal := f.nextTemp()
	f.emitf("  %s = xor i1 %s, true\n", notBoolVal, boolVal)

	notBoolTruthy := f.nextTemp()
	f.emitf("  %s = and i1 %s, %s\n", notBoolTruthy, isBool, notBoolVal)

	falsy := f.nextTemp()
	f.emitf("  %s = or i1 %s, %s\n", falsy, isNil, notBoolTruthy)

	truthy := f.nextTemp()
	f.emitf("  %s = xor i1 %s, true\n", truthy, falsy)
	return truthy, nil
}

// branchResult runs one If/rescue arm, reporting whether it diverged
// (already closed its block with its own terminator) and, if not, the
// label of the block it fell out of, the predecessor a join phi
// should record.
func (f *Frame) branchResult(node *ast.Node) (val, ty, endLabel string, diverged bool, err error) {
	f.terminated = false
	val, ty, err = f.emitExpr(node)
	if err != nil {
		return "", "", "", false, err
	}
	diverged = f.terminated
	if !diverged {
		endLabel = f.currentBlockLabel()
	}
	return val, ty, endLabel, diverged, nil
}

// emitIf lowers a conditional: a union-typed result
// is assembled through a pre-allocated union slot written from each
// live arm; otherwise the result is a phi over the live arms' values
// (nil-literal arms already share "ptr" representation with a nilable
// result type, so no extra widening step is needed there).
func (f *Frame) emitIf(n *ast.Node) (string, string, error) {
	in := f.gen.types
	resultIsUnion := in.Union(n.Type)
	var unionSlot, unionTy string
	if resultIsUnion {
		var err error
		unionTy, err = unionLLVMType(in, n.Type)
		if err != nil {
			return "", "", err
		}
		unionSlot = f.alloca(unionTy, "if.result")
	}

	condVal, _, err := f.emitExpr(n.If.Cond)
	if err != nil {
		return "", "", err
	}
	cond, err := f.codegenCond(condVal, n.If.Cond.Type)
	if err != nil {
		return "", "", err
	}

	thenBlock := f.nextBlock("if.then")
	joinBlock := f.nextBlock("if.join")
	var elseBlock string
	if n.If.Else != nil {
		elseBlock = f.nextBlock("if.else")
		f.emitf("  br i1 %s, label %%%s, label %%%s\n", cond, thenBlock, elseBlock)
	} else {
		f.emitf("  br i1 %s, label %%%s, label %%%s\n", cond, thenBlock, joinBlock)
	}

	f.startBlock(thenBlock)
	thenVal, _, thenEnd, thenDiverged, err := f.branchResult(n.If.Then)
	if err != nil {
		return "", "", err
	}
	if !thenDiverged {
		if resultIsUnion {
			if err := f.assignToUnion(unionSlot, n.Type, n.If.Then.Type, thenVal); err != nil {
				return "", "", err
			}
		}
		f.emitf("  br label %%%s\n", joinBlock)
	}

	var elseVal, elseEnd string
	elseDiverged := false
	if n.If.Else != nil {
		f.startBlock(elseBlock)
		elseVal, _, elseEnd, elseDiverged, err = f.branchResult(n.If.Else)
		if err != nil {
			return "", "", err
		}
		if !elseDiverged {
			if resultIsUnion {
				if err := f.assignToUnion(unionSlot, n.Type, n.If.Else.Type, elseVal); err != nil {
					return "", "", err
				}
			}
			f.emitf("  br label %%%s\n", joinBlock)
		}
	}

	// With no else clause the false edge branches straight to join, so
	// a bare if can never make the join unreachable.
	bothDiverge := thenDiverged && n.If.Else != nil && elseDiverged
	f.startBlock(joinBlock)
	if bothDiverge {
		f.terminate("  unreachable\n")
		return "", "void", nil
	}
	f.terminated = false

	if resultIsUnion {
		// Unions live behind pointers: the pre-allocated slot both arms
		// wrote through IS the if's value.
		return unionSlot, "ptr", nil
	}

	if n.Type == types.NoTypeID {
		return "", "void", nil
	}
	resultTy, err := llvmValueType(in, n.Type)
	if err != nil {
		return "", "", err
	}
	var entries []string
	if !thenDiverged {
		entries = append(entries, fmt.Sprintf("[ %s, %%%s ]", thenVal, thenEnd))
	}
	if n.If.Else != nil && !elseDiverged {
		entries = append(entries, fmt.Sprintf("[ %s, %%%s ]", elseVal, elseEnd))
	}
	if len(entries) == 0 {
		f.terminate("  unreachable\n")
		return "", "void", nil
	}
	if len(entries) == 1 {
		// Only one live predecessor reaches join (the other diverged, or
		// there is no else): its value is the result directly, no phi.
		if !thenDiverged {
			return thenVal, resultTy, nil
		}
		return elseVal, resultTy, nil
	}
	out := f.nextTemp()
	f.emitf("  %s = phi %s %s\n", out, resultTy, joinList(entries))
	return out, resultTy, nil
}

func joinList(entries []string) string {
	out := entries[0]
	for _, e := range entries[1:] {
		out += ", " + e
	}
	return out
}

// hasReachableBreak conservatively reports whether node's subtree
// contains a Break statement. It does not distinguish which enclosing
// loop/block a nested Break targets; over-reporting true only costs a
// missed unreachable-at-exit optimization, never incorrect IR.
func hasReachableBreak(node *ast.Node) bool {
	if node == nil {
		return false
	}
	switch node.Kind {
	case ast.KindBreak:
		return true
	case ast.KindExpressions:
		for _, c := range node.Seq.Body {
			if hasReachableBreak(c) {
				return true
			}
		}
	case ast.KindIf:
		return hasReachableBreak(node.If.Cond) || hasReachableBreak(node.If.Then) || hasReachableBreak(node.If.Else)
	case ast.KindWhile:
		return hasReachableBreak(node.While.Cond) || hasReachableBreak(node.While.Body)
	case ast.KindExceptionHandler:
		if hasReachableBreak(node.Handler.Body) || hasReachableBreak(node.Handler.Ensure) {
			return true
		}
		for _, r := range node.Handler.Rescues {
			if hasReachableBreak(r.Body) {
				return true
			}
		}
	case ast.KindCall:
		if hasReachableBreak(node.Call.Receiver) {
			return true
		}
		for _, a := range node.Call.Args {
			if hasReachableBreak(a) {
				return true
			}
		}
		if node.Call.Block != nil && hasReachableBreak(node.Call.Block.Body) {
			return true
		}
	case ast.KindNop, ast.KindLiteral, ast.KindVar, ast.KindCastedVar, ast.KindDef, ast.KindTypeDef:
		return false
	default:
		// Operands of the remaining kinds are not walked: report true.
		return true
	}
	return false
}

// isLiteralTrue reports whether node is the `true` boolean literal.
func isLiteralTrue(node *ast.Node) bool {
	return node != nil && node.Kind == ast.KindLiteral && node.Literal.Kind == ast.LiteralBool && node.Literal.BoolVal
}

// emitWhile lowers a loop: fresh cond/body/exit blocks, a run_once
// (do/while) variant that enters directly into body, and
// break state saved/restored around the body so a `break` inside
// targets this loop's exit.
func (f *Frame) emitWhile(n *ast.Node) (string, string, error) {
	condBlock := f.nextBlock("while.cond")
	bodyBlock := f.nextBlock("while.body")
	exitBlock := f.nextBlock("while.exit")

	savedBreakBlock, savedBreakTable := f.breakBlock, f.breakTable
	savedBreakType, savedBreakUnionSlot := f.breakType, f.breakUnionSlot
	f.breakBlock = exitBlock
	f.breakTable = nil
	f.breakType = types.NoTypeID
	f.breakUnionSlot = ""

	if n.While.RunOnce {
		f.emitf("  br label %%%s\n", bodyBlock)
	} else {
		f.emitf("  br label %%%s\n", condBlock)
	}

	f.startBlock(condBlock)
	condVal, _, err := f.emitExpr(n.While.Cond)
	if err != nil {
		return "", "", err
	}
	cond, err := f.codegenCond(condVal, n.While.Cond.Type)
	if err != nil {
		return "", "", err
	}
	f.emitf("  br i1 %s, label %%%s, label %%%s\n", cond, bodyBlock, exitBlock)

	f.startBlock(bodyBlock)
	f.terminated = false
	if _, _, err := f.emitExpr(n.While.Body); err != nil {
		return "", "", err
	}
	if !f.terminated {
		f.emitf("  br label %%%s\n", condBlock)
	}

	f.startBlock(exitBlock)
	f.terminated = false

	f.breakBlock, f.breakTable = savedBreakBlock, savedBreakTable
	f.breakType, f.breakUnionSlot = savedBreakType, savedBreakUnionSlot

	if isLiteralTrue(n.While.Cond) && !hasReachableBreak(n.While.Body) {
		f.terminate("  unreachable\n")
	}

	return "", "void", nil
}
