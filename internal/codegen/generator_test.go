package codegen

import (
	"fmt"
	"strings"
	"testing"

	"ember/internal/ast"
	"ember/internal/symbols"
	"ember/internal/types"
)

// testEnv bundles the oracle, symbol table, and node constructors the
// codegen tests share. Node construction mirrors what the (out of
// scope) frontend produces: every node carries its resolved type.
type testEnv struct {
	in   *types.Interner
	syms *symbols.Table
	b    types.Builtins
	next symbols.SymbolID
}

func newTestEnv() *testEnv {
	in := types.NewInterner()
	return &testEnv{in: in, syms: symbols.NewTable(), b: in.Builtins(), next: 1}
}

func (e *testEnv) declareDef(name string, owner types.TypeID, params []ast.Param, ret types.TypeID, body *ast.Node) *ast.Node {
	sym := e.next
	e.next++
	e.syms.Declare(symbols.Def{ID: sym, Name: name, Owner: owner})
	return &ast.Node{Kind: ast.KindDef, Def: ast.Def{
		Sym: sym, Name: name, Owner: owner, Params: params, ReturnType: ret, Body: body,
	}}
}

func (e *testEnv) int32(v int64) *ast.Node {
	return &ast.Node{Kind: ast.KindLiteral, Type: e.b.Int32,
		Literal: ast.Literal{Kind: ast.LiteralNumber, NumberVal: ast.NumberInt32, IntVal: v}}
}

func (e *testEnv) boolLit(v bool) *ast.Node {
	return &ast.Node{Kind: ast.KindLiteral, Type: e.b.Bool,
		Literal: ast.Literal{Kind: ast.LiteralBool, BoolVal: v}}
}

func (e *testEnv) nilLit() *ast.Node {
	return &ast.Node{Kind: ast.KindLiteral, Type: e.b.Nil, Literal: ast.Literal{Kind: ast.LiteralNil}}
}

func (e *testEnv) localVar(name string, ty types.TypeID) *ast.Node {
	return &ast.Node{Kind: ast.KindVar, Type: ty, Var: ast.Var{Kind: ast.VarLocal, Name: name}}
}

func (e *testEnv) assign(target *ast.Node, value *ast.Node) *ast.Node {
	return &ast.Node{Kind: ast.KindAssign, Type: value.Type, Assign: ast.Assign{Target: target, Value: value}}
}

func (e *testEnv) prim(op ast.PrimitiveOp, ty types.TypeID, left, right *ast.Node) *ast.Node {
	return &ast.Node{Kind: ast.KindPrimitive, Type: ty, Prim: ast.Primitive{Op: op, Left: left, Right: right}}
}

func (e *testEnv) call(def *ast.Node, receiver *ast.Node, args ...*ast.Node) *ast.Node {
	return &ast.Node{Kind: ast.KindCall, Type: def.Def.ReturnType, Call: ast.Call{
		Name:     def.Def.Name,
		Receiver: receiver,
		Args:     args,
		Targets:  []symbols.SymbolID{def.Def.Sym},
		IsRaises: def.Def.Raises,
	}}
}

func seq(ty types.TypeID, children ...*ast.Node) *ast.Node {
	return &ast.Node{Kind: ast.KindExpressions, Type: ty, Seq: ast.Expressions{Body: children}}
}

func (e *testEnv) generate(t *testing.T, prog *Program) string {
	t.Helper()
	ir, err := Generate(prog, e.in, e.syms)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return ir
}

func mustContain(t *testing.T, ir string, wants ...string) {
	t.Helper()
	for _, w := range wants {
		if !strings.Contains(ir, w) {
			t.Errorf("emitted IR missing %q\n---\n%s", w, ir)
		}
	}
}

// checkAllocaBlocks asserts that every alloca instruction lives in
// its function's alloca block (the textual span between the "alloca:"
// label and its branch to the const block), so slots dominate all uses.
func checkAllocaBlocks(t *testing.T, ir string) {
	t.Helper()
	for i, fn := range strings.Split(ir, "define ")[1:] {
		end := strings.Index(fn, "\n}")
		if end < 0 {
			end = len(fn)
		}
		body := fn[:end]
		boundary := strings.Index(body, "br label %const")
		if boundary < 0 {
			t.Errorf("function %d has no alloca->const branch:\n%s", i, body)
			continue
		}
		if last := strings.LastIndex(body, "= alloca "); last > boundary {
			t.Errorf("function %d has an alloca outside the alloca block:\n%s", i, body)
		}
	}
}

func TestGenerate_ArithmeticLiteral(t *testing.T) {
	e := newTestEnv()
	main := seq(e.b.Int32, e.prim(ast.PrimAdd, e.b.Int32, e.int32(1), e.int32(2)))
	ir := e.generate(t, &Program{Main: main, MainType: e.b.Int32})

	mustContain(t, ir,
		"target triple",
		"define i32 @__crystal_main(i32 %argc, ptr %argv) {",
		"add i32 1, 2",
		"ret i32 %t",
	)
	checkAllocaBlocks(t, ir)
}

func TestGenerate_EntryBlockChain(t *testing.T) {
	e := newTestEnv()
	main := seq(e.b.Int32, e.int32(7))
	ir := e.generate(t, &Program{Main: main, MainType: e.b.Int32})

	allocaAt := strings.Index(ir, "alloca:")
	constAt := strings.Index(ir, "const:")
	entryAt := strings.Index(ir, "entry:")
	if !(allocaAt >= 0 && allocaAt < constAt && constAt < entryAt) {
		t.Fatalf("alloca/const/entry chain out of order:\n%s", ir)
	}
}

func TestGenerate_RuntimeDecls(t *testing.T) {
	e := newTestEnv()
	main := seq(e.b.Int32, e.int32(0))
	ir := e.generate(t, &Program{Main: main, MainType: e.b.Int32})

	mustContain(t, ir,
		"declare ptr @malloc(i64)",
		"declare ptr @realloc(ptr, i64)",
		"declare i32 @__crystal_personality(...)",
		"declare ptr @_Unwind_RaiseException(ptr)",
	)
}

func TestGenerate_StringAndSymbolTable(t *testing.T) {
	e := newTestEnv()
	str := e.in.DefineClass("String", nil, types.NoTypeID)
	e.syms.InternSymbol("go")
	e.syms.InternSymbol("ahead")

	strNode := &ast.Node{Kind: ast.KindLiteral, Type: str,
		Literal: ast.Literal{Kind: ast.LiteralString, StringVal: "hi"}}
	symNode := &ast.Node{Kind: ast.KindLiteral, Type: e.b.Int32,
		Literal: ast.Literal{Kind: ast.LiteralSymbol, SymbolVal: "go"}}
	main := seq(e.b.Int32, strNode, symNode)
	ir := e.generate(t, &Program{Main: main, MainType: e.b.Int32})

	mustContain(t, ir,
		`@str0 = private unnamed_addr constant { i32, [3 x i8] } { i32 2, [3 x i8] c"hi\00" }`,
		"@symbol_table = internal global [2 x ptr]",
	)
	// "ahead" sorts before "go", so :go is id 1.
	mustContain(t, ir, "ret i32 1")
}

func TestGenerate_IdempotentMonomorphization(t *testing.T) {
	e := newTestEnv()
	foo := e.declareDef("foo", types.NoTypeID, nil, e.b.Int32, seq(e.b.Int32, e.int32(5)))
	main := seq(e.b.Int32,
		e.call(foo, nil),
		e.call(foo, nil),
	)
	ir := e.generate(t, &Program{Defs: []*ast.Node{foo}, Main: main, MainType: e.b.Int32})

	if n := strings.Count(ir, "define i32 @foo.1("); n != 1 {
		t.Fatalf("expected exactly one materialization of foo, got %d:\n%s", n, ir)
	}
	if n := strings.Count(ir, "call i32 @foo.1()"); n != 2 {
		t.Fatalf("expected two calls to foo, got %d:\n%s", n, ir)
	}
	checkAllocaBlocks(t, ir)
}

func TestGenerate_WhileLoop(t *testing.T) {
	e := newTestEnv()
	i := func() *ast.Node { return e.localVar("i", e.b.Int32) }
	main := seq(e.b.Int32,
		e.assign(i(), e.int32(0)),
		&ast.Node{Kind: ast.KindWhile, While: ast.While{
			Cond: e.prim(ast.PrimLt, e.b.Bool, i(), e.int32(10)),
			Body: seq(e.b.Int32, e.assign(i(), e.prim(ast.PrimAdd, e.b.Int32, i(), e.int32(1)))),
		}},
		i(),
	)
	ir := e.generate(t, &Program{Main: main, MainType: e.b.Int32})

	mustContain(t, ir,
		"while.cond",
		"while.body",
		"while.exit",
		"icmp slt i32",
		"add i32",
	)
	checkAllocaBlocks(t, ir)
}

func TestGenerate_InfiniteLoopUnreachableExit(t *testing.T) {
	e := newTestEnv()
	main := seq(types.NoTypeID,
		&ast.Node{Kind: ast.KindWhile, While: ast.While{
			Cond: e.boolLit(true),
			Body: seq(e.b.Int32, e.int32(1)),
		}},
	)
	ir := e.generate(t, &Program{Main: main, MainType: types.NoTypeID})

	exitAt := strings.Index(ir, "while.exit")
	if exitAt < 0 {
		t.Fatalf("missing while.exit block:\n%s", ir)
	}
	if !strings.Contains(ir[exitAt:], "unreachable") {
		t.Fatalf("infinite loop exit should be unreachable:\n%s", ir)
	}
}

func TestGenerate_PointerPrimitives(t *testing.T) {
	e := newTestEnv()
	ptrTy := e.in.DefinePointer(e.b.Int32)
	p := func() *ast.Node { return e.localVar("p", ptrTy) }

	mallocNode := &ast.Node{Kind: ast.KindPointerPrimitive, Type: ptrTy,
		Pointer: ast.PointerPrimitive{Op: ast.PointerMalloc, Count: e.int32(4)}}
	setNode := &ast.Node{Kind: ast.KindPointerPrimitive, Type: e.b.Int32,
		Pointer: ast.PointerPrimitive{Op: ast.PointerSet, Pointer: p(), Value: e.int32(9)}}
	getNode := &ast.Node{Kind: ast.KindPointerPrimitive, Type: e.b.Int32,
		Pointer: ast.PointerPrimitive{Op: ast.PointerGet, Pointer: p()}}

	main := seq(e.b.Int32,
		e.assign(p(), mallocNode),
		setNode,
		getNode,
	)
	ir := e.generate(t, &Program{Main: main, MainType: e.b.Int32})

	mustContain(t, ir,
		"call ptr @malloc(i64",
		"call void @llvm.memset.p0.i64(ptr",
		"store i32 9, ptr",
		"load i32, ptr",
	)
}

func TestGenerate_ConstantLiteralInitializer(t *testing.T) {
	e := newTestEnv()
	constRead := &ast.Node{Kind: ast.KindVar, Type: e.b.Int32, Var: ast.Var{Kind: ast.VarConstant, Name: "K"}}
	main := seq(e.b.Int32, constRead)
	prog := &Program{
		Constants: []Constant{{Name: "K", Type: e.b.Int32, Init: e.int32(42)}},
		Main:      main,
		MainType:  e.b.Int32,
	}
	ir := e.generate(t, prog)

	mustContain(t, ir, "@const.K = internal constant i32 42")
}

func TestGenerate_ConstantNeedsConstBlock(t *testing.T) {
	e := newTestEnv()
	compute := e.declareDef("computeMax", types.NoTypeID, nil, e.b.Int32, seq(e.b.Int32, e.int32(99)))
	constRead := &ast.Node{Kind: ast.KindVar, Type: e.b.Int32, Var: ast.Var{Kind: ast.VarConstant, Name: "MAX"}}
	main := seq(e.b.Int32, e.prim(ast.PrimAdd, e.b.Int32, constRead, e.int32(1)))
	prog := &Program{
		Defs:      []*ast.Node{compute},
		Constants: []Constant{{Name: "MAX", Type: e.b.Int32, Init: e.call(compute, nil)}},
		Main:      main,
		MainType:  e.b.Int32,
	}
	ir := e.generate(t, prog)

	mustContain(t, ir, "@const.MAX = internal global i32 zeroinitializer")

	// The initializer call and its store run in the const chain, after
	// the alloca block and before main's entry code.
	mainAt := strings.Index(ir, "@__crystal_main")
	constAt := strings.Index(ir[mainAt:], "const:")
	entryAt := strings.Index(ir[mainAt:], "entry:")
	chain := ir[mainAt+constAt : mainAt+entryAt]
	mustContain(t, chain, "call i32 @computeMax.1()", "store i32", "@const.MAX")

	if n := strings.Count(ir, "call i32 @computeMax.1()"); n != 1 {
		t.Fatalf("constant initializer must run exactly once, found %d calls:\n%s", n, ir)
	}
}

func TestGenerate_UnionTypedIf(t *testing.T) {
	e := newTestEnv()
	u := e.in.DefineUnion([]types.TypeID{e.b.Int32, e.b.Bool})
	ifNode := &ast.Node{Kind: ast.KindIf, Type: u, If: ast.If{
		Cond: e.boolLit(true),
		Then: e.int32(1),
		Else: e.boolLit(false),
	}}
	main := seq(u, ifNode)
	ir := e.generate(t, &Program{Main: main, MainType: u})

	intTag := e.in.TypeIDOf(e.b.Int32)
	boolTag := e.in.TypeIDOf(e.b.Bool)
	mustContain(t, ir,
		"{ i32, [4 x i8] }",
		fmt.Sprintf("store i32 %d, ptr", intTag),
		fmt.Sprintf("store i32 %d, ptr", boolTag),
		"getelementptr inbounds { i32, [4 x i8] }",
	)
	checkAllocaBlocks(t, ir)
}

func TestGenerate_NilableCondition(t *testing.T) {
	e := newTestEnv()
	obj := e.in.DefineClass("Obj", []types.InstanceVar{{Name: "value", Type: e.b.Int32}}, types.NoTypeID)
	nilable := e.in.DefineNilable(obj)

	x := func() *ast.Node { return e.localVar("x", nilable) }
	ifNode := &ast.Node{Kind: ast.KindIf, Type: e.b.Int32, If: ast.If{
		Cond: x(),
		Then: e.int32(1),
		Else: e.int32(0),
	}}
	main := seq(e.b.Int32,
		e.assign(x(), e.nilLit()),
		ifNode,
	)
	ir := e.generate(t, &Program{Main: main, MainType: e.b.Int32})

	mustContain(t, ir,
		"ptrtoint ptr",
		"icmp eq i64",
		"xor i1",
		"phi i32 [ 1,",
	)
}

func TestGenerate_NoReturnMainBody(t *testing.T) {
	e := newTestEnv()
	ret := &ast.Node{Kind: ast.KindReturn, Type: e.b.NoReturn, Return: ast.Return{Value: e.int32(3)}}
	main := seq(e.b.Int32, ret, e.int32(9))
	ir := e.generate(t, &Program{Main: main, MainType: e.b.Int32})

	mustContain(t, ir, "ret i32 3")
	// The trailing literal after an unconditional return is dead and
	// must not be emitted.
	if strings.Contains(ir, "ret i32 9") {
		t.Fatalf("code after return leaked into IR:\n%s", ir)
	}
}
