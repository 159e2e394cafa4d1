package codegen

import (
	"strings"
	"testing"

	"ember/internal/ast"
	"ember/internal/symbols"
	"ember/internal/types"
)

func TestDynamicDispatch_UnionReceiver(t *testing.T) {
	e := newTestEnv()
	u := e.in.DefineUnion([]types.TypeID{e.b.Int32, e.b.Bool})
	d1 := e.declareDef("describe", e.b.Int32, nil, e.b.Int32, seq(e.b.Int32, e.int32(1)))
	d2 := e.declareDef("describe", e.b.Bool, nil, e.b.Int32, seq(e.b.Int32, e.int32(2)))

	x := func() *ast.Node { return e.localVar("x", u) }
	callNode := &ast.Node{Kind: ast.KindCall, Type: e.b.Int32, Call: ast.Call{
		Name:     "describe",
		Receiver: x(),
		Targets:  []symbols.SymbolID{d1.Def.Sym, d2.Def.Sym},
	}}
	main := seq(e.b.Int32,
		e.assign(x(), e.int32(7)),
		callNode,
	)
	ir := e.generate(t, &Program{Defs: []*ast.Node{d1, d2}, Main: main, MainType: e.b.Int32})

	mustContain(t, ir,
		"dispatch.case",
		"dispatch.next",
		"phi i32",
	)
	// One specialized function per candidate owner.
	if n := strings.Count(ir, "define i32 @describe."); n != 2 {
		t.Fatalf("expected 2 dispatch candidates materialized, got %d:\n%s", n, ir)
	}
	// Receiver tag compared against each candidate owner's type id.
	if n := strings.Count(ir, "icmp eq i32"); n < 2 {
		t.Fatalf("expected a tag comparison per candidate, got %d:\n%s", n, ir)
	}
	// The terminal fall-through is dead by construction.
	lastNext := strings.LastIndex(ir, "dispatch.next")
	if !strings.Contains(ir[lastNext:], "unreachable") {
		t.Fatalf("dispatch chain must end in unreachable:\n%s", ir)
	}
	checkAllocaBlocks(t, ir)
}

func TestDynamicDispatch_NilableReceiver(t *testing.T) {
	e := newTestEnv()
	obj := e.in.DefineClass("Obj", []types.InstanceVar{{Name: "value", Type: e.b.Int32}}, types.NoTypeID)
	nilable := e.in.DefineNilable(obj)

	dNil := e.declareDef("value", e.b.Nil, nil, e.b.Int32, seq(e.b.Int32, e.int32(0)))
	ivarRead := &ast.Node{Kind: ast.KindVar, Type: e.b.Int32, Var: ast.Var{Kind: ast.VarInstance, Name: "value"}}
	dObj := e.declareDef("value", obj, nil, e.b.Int32, seq(e.b.Int32, ivarRead))

	x := func() *ast.Node { return e.localVar("x", nilable) }
	callNode := &ast.Node{Kind: ast.KindCall, Type: e.b.Int32, Call: ast.Call{
		Name:     "value",
		Receiver: x(),
		Targets:  []symbols.SymbolID{dNil.Def.Sym, dObj.Def.Sym},
	}}
	main := seq(e.b.Int32,
		e.assign(x(), e.nilLit()),
		callNode,
	)
	ir := e.generate(t, &Program{Defs: []*ast.Node{dNil, dObj}, Main: main, MainType: e.b.Int32})

	mustContain(t, ir,
		// nil is the null pointer of the carrier type.
		"store ptr null",
		// Candidate matching null-checks the nilable receiver.
		"ptrtoint ptr",
		"icmp eq i64",
		// The Obj candidate reads its instance var through self.
		"getelementptr inbounds { i32 }",
	)
	if n := strings.Count(ir, "define i32 @value."); n != 2 {
		t.Fatalf("expected 2 dispatch candidates materialized, got %d:\n%s", n, ir)
	}
	checkAllocaBlocks(t, ir)
}

func TestDynamicDispatch_UnionArgument(t *testing.T) {
	e := newTestEnv()
	u := e.in.DefineUnion([]types.TypeID{e.b.Int32, e.b.Bool})
	f1 := e.declareDef("pick", types.NoTypeID, []ast.Param{{Name: "v", Type: e.b.Int32}}, e.b.Int32, seq(e.b.Int32, e.int32(1)))
	f2 := e.declareDef("pick", types.NoTypeID, []ast.Param{{Name: "v", Type: e.b.Bool}}, e.b.Int32, seq(e.b.Int32, e.int32(2)))

	x := func() *ast.Node { return e.localVar("x", u) }
	arg := x()
	callNode := &ast.Node{Kind: ast.KindCall, Type: e.b.Int32, Call: ast.Call{
		Name:    "pick",
		Args:    []*ast.Node{arg},
		Targets: []symbols.SymbolID{f1.Def.Sym, f2.Def.Sym},
	}}
	main := seq(e.b.Int32,
		e.assign(x(), e.boolLit(true)),
		callNode,
	)
	ir := e.generate(t, &Program{Defs: []*ast.Node{f1, f2}, Main: main, MainType: e.b.Int32})

	mustContain(t, ir, "dispatch.case", "unreachable")
	if n := strings.Count(ir, "define i32 @pick."); n != 2 {
		t.Fatalf("expected 2 argument-dispatch candidates, got %d:\n%s", n, ir)
	}
}
