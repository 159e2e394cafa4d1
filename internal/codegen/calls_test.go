package codegen

import (
	"strings"
	"testing"

	"ember/internal/ast"
	"ember/internal/symbols"
	"ember/internal/types"
)

func TestCall_UnionReturnPromotion(t *testing.T) {
	e := newTestEnv()
	u := e.in.DefineUnion([]types.TypeID{e.b.Int32, e.b.Bool})
	pick := e.declareDef("pick", types.NoTypeID, nil, u, seq(e.b.Int32, e.int32(1)))

	main := seq(u, e.call(pick, nil))
	ir := e.generate(t, &Program{Defs: []*ast.Node{pick}, Main: main, MainType: u})

	mustContain(t, ir,
		// The callee returns the aggregate by value...
		"define { i32, [4 x i8] } @pick.1()",
		"call { i32, [4 x i8] } @pick.1()",
		// ...and the caller promotes it back into a stack slot so it
		// keeps living behind a pointer.
		"store { i32, [4 x i8] } %t",
	)
	checkAllocaBlocks(t, ir)
}

func TestCall_OutArgumentPassesSlotPointer(t *testing.T) {
	e := newTestEnv()
	intPtr := e.in.DefinePointer(e.b.Int32)
	getValue := &ast.Node{Kind: ast.KindDef, Def: ast.Def{
		Sym:        99,
		Name:       "get_value",
		Params:     []ast.Param{{Name: "out", Type: intPtr}},
		ReturnType: types.NoTypeID,
		External:   true,
		ExternName: "get_value",
	}}

	x := func() *ast.Node { return e.localVar("x", e.b.Int32) }
	callNode := &ast.Node{Kind: ast.KindCall, Call: ast.Call{
		Name:    "get_value",
		Args:    []*ast.Node{x()},
		OutArg:  []bool{true},
		Targets: []symbols.SymbolID{99},
	}}
	main := seq(e.b.Int32,
		e.assign(x(), e.int32(0)),
		callNode,
		x(),
	)
	ir := e.generate(t, &Program{Defs: []*ast.Node{getValue}, Main: main, MainType: e.b.Int32})

	mustContain(t, ir,
		"declare void @get_value(ptr)",
		"call void @get_value(ptr %t",
	)
	// The out argument is x's own slot; the call must not load x first.
	callAt := strings.Index(ir, "call void @get_value")
	if before := ir[:callAt]; strings.Contains(before, "load i32, ptr") {
		t.Fatalf("out argument loaded its value instead of passing the slot:\n%s", ir)
	}
}

func TestCall_StructOutArgumentCopiesBack(t *testing.T) {
	e := newTestEnv()
	point := e.in.DefineCStruct("Point", []types.InstanceVar{
		{Name: "x", Type: e.b.Int32},
		{Name: "y", Type: e.b.Int32},
	})
	pointPtr := e.in.DefinePointer(point)
	getPoint := &ast.Node{Kind: ast.KindDef, Def: ast.Def{
		Sym:        98,
		Name:       "get_point",
		Params:     []ast.Param{{Name: "out", Type: pointPtr}},
		ReturnType: types.NoTypeID,
		External:   true,
		ExternName: "get_point",
	}}

	makePoint := &ast.Node{Kind: ast.KindDef, Def: ast.Def{
		Sym:        97,
		Name:       "make_point",
		ReturnType: point,
		External:   true,
		ExternName: "make_point",
	}}

	p := func() *ast.Node { return e.localVar("p", point) }
	makeCall := &ast.Node{Kind: ast.KindCall, Type: point, Call: ast.Call{
		Name:    "make_point",
		Targets: []symbols.SymbolID{97},
	}}
	callNode := &ast.Node{Kind: ast.KindCall, Call: ast.Call{
		Name:    "get_point",
		Args:    []*ast.Node{p()},
		OutArg:  []bool{true},
		Targets: []symbols.SymbolID{98},
	}}
	main := seq(types.NoTypeID,
		e.assign(p(), makeCall),
		callNode,
	)
	ir := e.generate(t, &Program{Defs: []*ast.Node{getPoint, makePoint}, Main: main, MainType: types.NoTypeID})

	// A fresh local struct slot goes to the callee, then copies back
	// into the caller's pointer after the call.
	callAt := strings.Index(ir, "call void @get_point(ptr %t")
	if callAt < 0 {
		t.Fatalf("missing out-arg call:\n%s", ir)
	}
	mustContain(t, ir[callAt:], "load { i32, i32 }, ptr", "store { i32, i32 }")
	checkAllocaBlocks(t, ir)
}

func TestCall_MacroExpansionAcceptedInPlace(t *testing.T) {
	e := newTestEnv()
	callNode := &ast.Node{Kind: ast.KindCall, Type: e.b.Int32, Call: ast.Call{
		Name:      "twice",
		Expansion: e.prim(ast.PrimMul, e.b.Int32, e.int32(3), e.int32(2)),
	}}
	main := seq(e.b.Int32, callNode)
	ir := e.generate(t, &Program{Main: main, MainType: e.b.Int32})

	mustContain(t, ir, "mul i32 3, 2")
	if strings.Contains(ir, "@twice") {
		t.Fatalf("macro call must not materialize a function:\n%s", ir)
	}
}
