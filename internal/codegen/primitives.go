package codegen

import (
	"fmt"

	"ember/internal/ast"
	"ember/internal/types"
)

// emitPrimitive lowers a built-in unary/binary operation to a single
// IR instruction, selected by the operand's scalar class: integers pick
// the signed or unsigned form per the oracle's descriptor, floats the
// f-prefixed form.
func (f *Frame) emitPrimitive(n *ast.Node) (string, string, error) {
	p := n.Prim
	switch p.Op {
	case ast.PrimNot:
		return f.emitPrimNot(n)
	case ast.PrimNeg:
		return f.emitPrimNeg(n)
	case ast.PrimCast:
		return f.emitPrimCast(n)
	}

	left, leftTy, err := f.emitExpr(p.Left)
	if err != nil {
		return "", "", err
	}
	right, _, err := f.emitExpr(p.Right)
	if err != nil {
		return "", "", err
	}

	tt, ok := f.gen.types.Lookup(p.Left.Type)
	if !ok {
		return "", "", fmt.Errorf("codegen: primitive operand has unknown type %d", p.Left.Type)
	}

	switch p.Op {
	case ast.PrimEq, ast.PrimNe, ast.PrimLt, ast.PrimLe, ast.PrimGt, ast.PrimGe:
		return f.emitCompare(p.Op, tt, left, right, leftTy)
	default:
		return f.emitArith(p.Op, tt, left, right, leftTy)
	}
}

func (f *Frame) emitArith(op ast.PrimitiveOp, tt types.Type, left, right, leftTy string) (string, string, error) {
	var instr string
	isFloat := tt.Kind == types.KindFloat
	switch op {
	case ast.PrimAdd:
		instr = pick(isFloat, "fadd", "add")
	case ast.PrimSub:
		instr = pick(isFloat, "fsub", "sub")
	case ast.PrimMul:
		instr = pick(isFloat, "fmul", "mul")
	case ast.PrimDiv:
		switch {
		case isFloat:
			instr = "fdiv"
		case tt.Unsigned:
			instr = "udiv"
		default:
			instr = "sdiv"
		}
	case ast.PrimRem:
		switch {
		case isFloat:
			instr = "frem"
		case tt.Unsigned:
			instr = "urem"
		default:
			instr = "srem"
		}
	case ast.PrimAnd:
		instr = "and"
	case ast.PrimOr:
		instr = "or"
	case ast.PrimXor:
		instr = "xor"
	case ast.PrimShl:
		instr = "shl"
	case ast.PrimShr:
		instr = pick(tt.Unsigned, "lshr", "ashr")
	default:
		return "", "", fmt.Errorf("codegen: unknown arithmetic primitive %d", op)
	}
	out := f.nextTemp()
	f.emitf("  %s = %s %s %s, %s\n", out, instr, leftTy, left, right)
	return out, leftTy, nil
}

func (f *Frame) emitCompare(op ast.PrimitiveOp, tt types.Type, left, right, leftTy string) (string, string, error) {
	var cond string
	if tt.Kind == types.KindFloat {
		switch op {
		case ast.PrimEq:
			cond = "oeq"
		case ast.PrimNe:
			cond = "une"
		case ast.PrimLt:
			cond = "olt"
		case ast.PrimLe:
			cond = "ole"
		case ast.PrimGt:
			cond = "ogt"
		case ast.PrimGe:
			cond = "oge"
		}
		out := f.nextTemp()
		f.emitf("  %s = fcmp %s %s %s, %s\n", out, cond, leftTy, left, right)
		return out, "i1", nil
	}
	switch op {
	case ast.PrimEq:
		cond = "eq"
	case ast.PrimNe:
		cond = "ne"
	case ast.PrimLt:
		cond = pick(tt.Unsigned, "ult", "slt")
	case ast.PrimLe:
		cond = pick(tt.Unsigned, "ule", "sle")
	case ast.PrimGt:
		cond = pick(tt.Unsigned, "ugt", "sgt")
	case ast.PrimGe:
		cond = pick(tt.Unsigned, "uge", "sge")
	}
	out := f.nextTemp()
	f.emitf("  %s = icmp %s %s %s, %s\n", out, cond, leftTy, left, right)
	return out, "i1", nil
}

func (f *Frame) emitPrimNot(n *ast.Node) (string, string, error) {
	val, valTy, err := f.emitExpr(n.Prim.Left)
	if err != nil {
		return "", "", err
	}
	out := f.nextTemp()
	if valTy == "i1" {
		f.emitf("  %s = xor i1 %s, true\n", out, val)
	} else {
		f.emitf("  %s = xor %s %s, -1\n", out, valTy, val)
	}
	return out, valTy, nil
}

func (f *Frame) emitPrimNeg(n *ast.Node) (string, string, error) {
	val, valTy, err := f.emitExpr(n.Prim.Left)
	if err != nil {
		return "", "", err
	}
	tt, ok := f.gen.types.Lookup(n.Prim.Left.Type)
	if !ok {
		return "", "", fmt.Errorf("codegen: negation operand has unknown type %d", n.Prim.Left.Type)
	}
	out := f.nextTemp()
	if tt.Kind == types.KindFloat {
		f.emitf("  %s = fneg %s %s\n", out, valTy, val)
	} else {
		f.emitf("  %s = sub %s 0, %s\n", out, valTy, val)
	}
	return out, valTy, nil
}

// emitPrimCast converts between the scalar types by width and class:
// trunc/sext/zext between integers, fptrunc/fpext between floats, and
// the fp<->int conversions: int->fp picked by the source's signedness,
// fp->int by the destination's.
func (f *Frame) emitPrimCast(n *ast.Node) (string, string, error) {
	val, valTy, err := f.emitExpr(n.Prim.Left)
	if err != nil {
		return "", "", err
	}
	from, ok := f.gen.types.Lookup(n.Prim.Left.Type)
	if !ok {
		return "", "", fmt.Errorf("codegen: cast source has unknown type %d", n.Prim.Left.Type)
	}
	to, ok := f.gen.types.Lookup(n.Type)
	if !ok {
		return "", "", fmt.Errorf("codegen: cast destination has unknown type %d", n.Type)
	}
	dstTy, err := llvmValueType(f.gen.types, n.Type)
	if err != nil {
		return "", "", err
	}
	if valTy == dstTy {
		return val, dstTy, nil
	}

	fromInt := from.Kind == types.KindInt || from.Kind == types.KindChar || from.Kind == types.KindBool
	toInt := to.Kind == types.KindInt || to.Kind == types.KindChar
	var instr string
	switch {
	case fromInt && toInt:
		switch {
		case from.Width > to.Width:
			instr = "trunc"
		case from.Unsigned || from.Kind == types.KindBool || from.Kind == types.KindChar:
			// Chars are unsigned code units.
			instr = "zext"
		default:
			instr = "sext"
		}
	case fromInt && to.Kind == types.KindFloat:
		instr = pick(from.Unsigned, "uitofp", "sitofp")
	case from.Kind == types.KindFloat && toInt:
		instr = pick(to.Unsigned, "fptoui", "fptosi")
	case from.Kind == types.KindFloat && to.Kind == types.KindFloat:
		instr = pick(from.Width > to.Width, "fptrunc", "fpext")
	default:
		return "", "", fmt.Errorf("codegen: unsupported cast %s -> %s", from.Kind, to.Kind)
	}
	out := f.nextTemp()
	f.emitf("  %s = %s %s %s to %s\n", out, instr, valTy, val, dstTy)
	return out, dstTy, nil
}

func pick(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}
