package codegen

import (
	"strings"
	"testing"

	"ember/internal/ast"
	"ember/internal/types"
)

func litNode(ty types.TypeID, v int64) *ast.Node {
	return &ast.Node{Kind: ast.KindLiteral, Type: ty,
		Literal: ast.Literal{Kind: ast.LiteralNumber, NumberVal: ast.NumberInt32, IntVal: v}}
}

func litFloat(ty types.TypeID, v float64) *ast.Node {
	return &ast.Node{Kind: ast.KindLiteral, Type: ty,
		Literal: ast.Literal{Kind: ast.LiteralNumber, NumberVal: ast.NumberFloat64, FloatVal: v}}
}

func TestEmitPrimitive_BinaryOps(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()
	u32 := in.DefineInt(32, true)
	f64 := in.DefineFloat(64)

	tests := []struct {
		name  string
		op    ast.PrimitiveOp
		ty    types.TypeID
		float bool
		want  string
	}{
		{"signed add", ast.PrimAdd, b.Int32, false, "add i32 1, 2"},
		{"signed div", ast.PrimDiv, b.Int32, false, "sdiv i32 1, 2"},
		{"unsigned div", ast.PrimDiv, u32, false, "udiv i32 1, 2"},
		{"signed rem", ast.PrimRem, b.Int32, false, "srem i32 1, 2"},
		{"unsigned rem", ast.PrimRem, u32, false, "urem i32 1, 2"},
		{"bit and", ast.PrimAnd, b.Int32, false, "and i32 1, 2"},
		{"shift left", ast.PrimShl, b.Int32, false, "shl i32 1, 2"},
		{"arithmetic shr", ast.PrimShr, b.Int32, false, "ashr i32 1, 2"},
		{"logical shr", ast.PrimShr, u32, false, "lshr i32 1, 2"},
		{"float add", ast.PrimAdd, f64, true, "fadd double"},
		{"float div", ast.PrimDiv, f64, true, "fdiv double"},
		{"signed lt", ast.PrimLt, b.Int32, false, "icmp slt i32 1, 2"},
		{"unsigned lt", ast.PrimLt, u32, false, "icmp ult i32 1, 2"},
		{"eq", ast.PrimEq, b.Int32, false, "icmp eq i32 1, 2"},
		{"float ge", ast.PrimGe, f64, true, "fcmp oge double"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFrame(in)
			var left, right *ast.Node
			if tt.float {
				left, right = litFloat(tt.ty, 1), litFloat(tt.ty, 2)
			} else {
				left, right = litNode(tt.ty, 1), litNode(tt.ty, 2)
			}
			node := &ast.Node{Kind: ast.KindPrimitive, Type: tt.ty,
				Prim: ast.Primitive{Op: tt.op, Left: left, Right: right}}
			if _, _, err := f.emitExpr(node); err != nil {
				t.Fatalf("emitExpr: %v", err)
			}
			if body := f.body.String(); !strings.Contains(body, tt.want) {
				t.Errorf("missing %q in:\n%s", tt.want, body)
			}
		})
	}
}

func TestEmitPrimitive_Unary(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()
	f64 := in.DefineFloat(64)

	f := newTestFrame(in)
	boolNode := &ast.Node{Kind: ast.KindLiteral, Type: b.Bool, Literal: ast.Literal{Kind: ast.LiteralBool, BoolVal: true}}
	notNode := &ast.Node{Kind: ast.KindPrimitive, Type: b.Bool, Prim: ast.Primitive{Op: ast.PrimNot, Left: boolNode}}
	if _, _, err := f.emitExpr(notNode); err != nil {
		t.Fatalf("emitExpr: %v", err)
	}
	mustContain(t, f.body.String(), "xor i1 1, true")

	f2 := newTestFrame(in)
	negNode := &ast.Node{Kind: ast.KindPrimitive, Type: b.Int32, Prim: ast.Primitive{Op: ast.PrimNeg, Left: litNode(b.Int32, 5)}}
	if _, _, err := f2.emitExpr(negNode); err != nil {
		t.Fatalf("emitExpr: %v", err)
	}
	mustContain(t, f2.body.String(), "sub i32 0, 5")

	f3 := newTestFrame(in)
	fnegNode := &ast.Node{Kind: ast.KindPrimitive, Type: f64, Prim: ast.Primitive{Op: ast.PrimNeg, Left: litFloat(f64, 5)}}
	if _, _, err := f3.emitExpr(fnegNode); err != nil {
		t.Fatalf("emitExpr: %v", err)
	}
	mustContain(t, f3.body.String(), "fneg double")
}

func TestEmitPrimitive_Casts(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()
	u32 := in.DefineInt(32, true)
	f64 := in.DefineFloat(64)

	tests := []struct {
		name string
		from *ast.Node
		to   types.TypeID
		want string
	}{
		{"widen signed", litNode(b.Int32, 1), b.Int64, "sext i32 1 to i64"},
		{"widen unsigned", litNode(u32, 1), b.Int64, "zext i32 1 to i64"},
		{"narrow", &ast.Node{Kind: ast.KindLiteral, Type: b.Int64, Literal: ast.Literal{Kind: ast.LiteralNumber, NumberVal: ast.NumberInt64, IntVal: 1}}, b.Int32, "trunc"},
		{"int to float", litNode(b.Int32, 1), f64, "sitofp i32 1 to double"},
		{"unsigned to float", litNode(u32, 1), f64, "uitofp i32 1 to double"},
		{"float to int", litFloat(f64, 1), b.Int32, "fptosi"},
		{"char widens", &ast.Node{Kind: ast.KindLiteral, Type: b.Char, Literal: ast.Literal{Kind: ast.LiteralChar, CharVal: 'a'}}, b.Int32, "zext i8 97 to i32"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFrame(in)
			node := &ast.Node{Kind: ast.KindPrimitive, Type: tt.to,
				Prim: ast.Primitive{Op: ast.PrimCast, Left: tt.from}}
			if _, _, err := f.emitExpr(node); err != nil {
				t.Fatalf("emitExpr: %v", err)
			}
			if body := f.body.String(); !strings.Contains(body, tt.want) {
				t.Errorf("missing %q in:\n%s", tt.want, body)
			}
		})
	}
}
