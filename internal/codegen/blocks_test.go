package codegen

import (
	"strings"
	"testing"

	"ember/internal/ast"
	"ember/internal/symbols"
	"ember/internal/types"
)

func yieldOf(args ...*ast.Node) *ast.Node {
	return &ast.Node{Kind: ast.KindYield, Yield: ast.Yield{Args: args}}
}

// The S3 shape: `def each; yield 1; yield 2; yield 3; end` driven by a
// block that breaks at i == 2 and accumulates into a captured local.
func TestInlineBlock_BreakExitsCall(t *testing.T) {
	e := newTestEnv()
	each := e.declareDef("each", types.NoTypeID, nil, types.NoTypeID,
		seq(types.NoTypeID, yieldOf(e.int32(1)), yieldOf(e.int32(2)), yieldOf(e.int32(3))))

	sum := func() *ast.Node { return e.localVar("sum", e.b.Int32) }
	i := func() *ast.Node { return e.localVar("i", e.b.Int32) }

	brk := &ast.Node{Kind: ast.KindBreak, Type: e.b.NoReturn}
	blockBody := seq(e.b.Int32,
		&ast.Node{Kind: ast.KindIf, If: ast.If{
			Cond: e.prim(ast.PrimEq, e.b.Bool, i(), e.int32(2)),
			Then: brk,
		}},
		e.assign(sum(), e.prim(ast.PrimAdd, e.b.Int32, sum(), i())),
	)
	callNode := &ast.Node{Kind: ast.KindCall, Call: ast.Call{
		Name:    "each",
		Targets: []symbols.SymbolID{each.Def.Sym},
		Block:   &ast.Block{Params: []string{"i"}, Body: blockBody},
	}}

	main := seq(e.b.Int32,
		e.assign(sum(), e.int32(0)),
		callNode,
		sum(),
	)
	ir := e.generate(t, &Program{Defs: []*ast.Node{each}, Main: main, MainType: e.b.Int32})

	if strings.Contains(ir, "@each") {
		t.Fatalf("block-taking def must be inlined at the call site, never materialized:\n%s", ir)
	}
	mustContain(t, ir,
		"block.done",
		"icmp eq i32",
		"add i32",
		"ret i32",
	)
	// Each inlined yield re-emits the block body, so the break's branch
	// to the call's completion block appears once per yield, plus the
	// callee's own fall-through branch.
	if n := strings.Count(ir, "br label %block.done."); n < 4 {
		t.Fatalf("expected at least 4 branches to the completion block, got %d:\n%s", n, ir)
	}
	checkAllocaBlocks(t, ir)
}

// A `return` inside the block body must return from the function that
// contains the call, not just exit the call.
func TestInlineBlock_NonLocalReturn(t *testing.T) {
	e := newTestEnv()
	each := e.declareDef("each", types.NoTypeID, nil, types.NoTypeID,
		seq(types.NoTypeID, yieldOf(e.int32(1)), yieldOf(e.int32(2))))

	ret := &ast.Node{Kind: ast.KindReturn, Type: e.b.NoReturn, Return: ast.Return{Value: e.int32(42)}}
	callNode := &ast.Node{Kind: ast.KindCall, Call: ast.Call{
		Name:    "each",
		Targets: []symbols.SymbolID{each.Def.Sym},
		Block:   &ast.Block{Params: []string{"i"}, Body: seq(e.b.Int32, ret)},
	}}
	main := seq(e.b.Int32, callNode, e.int32(0))
	ir := e.generate(t, &Program{Defs: []*ast.Node{each}, Main: main, MainType: e.b.Int32})

	mustContain(t, ir, "ret i32 42")
	checkAllocaBlocks(t, ir)
}

// Without break/return, the block body's value flows back as the
// yield expression's value inside the callee.
func TestInlineBlock_YieldValue(t *testing.T) {
	e := newTestEnv()
	double := e.declareDef("double", types.NoTypeID, nil, e.b.Int32,
		seq(e.b.Int32, yieldOf(e.int32(21))))
	// Block body: i * 2; the callee's fall-through value is the yield's
	// result, which becomes the call's value.
	i := func() *ast.Node { return e.localVar("i", e.b.Int32) }
	callNode := &ast.Node{Kind: ast.KindCall, Type: e.b.Int32, Call: ast.Call{
		Name:    "double",
		Targets: []symbols.SymbolID{double.Def.Sym},
		Block:   &ast.Block{Params: []string{"i"}, Body: seq(e.b.Int32, e.prim(ast.PrimMul, e.b.Int32, i(), e.int32(2)))},
	}}
	main := seq(e.b.Int32, callNode)
	ir := e.generate(t, &Program{Defs: []*ast.Node{double}, Main: main, MainType: e.b.Int32})

	mustContain(t, ir, "mul i32", "block.done")
	checkAllocaBlocks(t, ir)
}
