// Package codegen lowers a fully type-inferred ast.Node tree into
// textual LLVM IR. It is a single-pass, single-threaded tree-walking
// emitter: the lexer/parser, type inference, and optimization pipeline
// that produce the tree it consumes live outside this module.
package codegen

import (
	"fmt"
	"sort"
	"strings"

	"ember/internal/ast"
	"ember/internal/symbols"
	"ember/internal/types"
)

// Program is the module-level input to Generate: every top-level def
// and type declaration, the global constants, and the statements that
// make up the entry point's body.
type Program struct {
	Defs      []*ast.Node // ast.KindDef nodes
	TypeDefs  []*ast.Node // ast.KindTypeDef nodes
	Constants []Constant
	Main      *ast.Node // ast.KindExpressions, the __crystal_main body
	MainType  types.TypeID
}

// Constant is a global constant declaration: Name is its source name,
// Init is the (possibly non-constant) initializer expression.
type Constant struct {
	Name string
	Type types.TypeID
	Init *ast.Node
}

// Generator holds every piece of state that persists across the whole
// module: the type oracle, the symbol table, interned string/symbol
// constants, and the lazily-created caches for IR functions and
// globals. A Generator must not be shared across concurrent compiles;
// callers get disjoint modules for free by constructing one Generator
// per call to Generate rather than reusing package-level state.
type Generator struct {
	types *types.Interner
	syms  *symbols.Table

	buf strings.Builder

	builtins types.Builtins

	stringConsts map[string]*stringConst
	stringOrder  []string

	funcs     map[string]*irFunc // keyed by mangled name; idempotent monomorphization cache
	funcOrder []string

	defs map[symbols.SymbolID]*ast.Node // every top-level and method Def, by its symbol

	globals     map[string]*globalSlot
	globalOrder []string

	constChainOwner *Frame // the frame whose const block hosts deferred initializers (main's)

	externs map[string]bool // C external symbols recognized by name

	tmp int
}

type stringConst struct {
	name string
	text string
}

type irFunc struct {
	name   string
	sig    funcSig
	raises bool
}

type funcSig struct {
	ret    string
	params []string
}

type globalSlot struct {
	name string
	ty   types.TypeID
}

// Generate lowers prog into a verified-shape LLVM IR module and returns
// its textual representation. Each call constructs fresh state; callers
// running concurrent compiles must use one Generator per call.
func Generate(prog *Program, typesIn *types.Interner, syms *symbols.Table) (string, error) {
	if prog == nil {
		return "", fmt.Errorf("codegen: nil program")
	}
	g := &Generator{
		types:        typesIn,
		syms:         syms,
		builtins:     typesIn.Builtins(),
		stringConsts: make(map[string]*stringConst),
		funcs:        make(map[string]*irFunc),
		globals:      make(map[string]*globalSlot),
		externs:      make(map[string]bool),
		defs:         make(map[symbols.SymbolID]*ast.Node),
	}
	for _, def := range prog.Defs {
		if def.Def.External {
			g.externs[def.Def.ExternName] = true
		}
		g.defs[def.Def.Sym] = def
	}

	g.emitPreamble()
	g.emitRuntimeDecls()

	if err := g.emitEntryPoint(prog); err != nil {
		return "", err
	}

	for _, def := range prog.Defs {
		if def.Def.External || def.Def.Owner != types.NoTypeID {
			continue // externals have no body; receiver methods monomorphize lazily on first call
		}
		if containsYield(def.Def.Body) {
			continue // block-taking defs only ever exist inlined at their call sites
		}
		if _, err := g.codegenFun(def, types.NoTypeID); err != nil {
			return "", err
		}
	}

	g.emitStringConsts()
	return g.buf.String(), nil
}

func (g *Generator) emitPreamble() {
	g.buf.WriteString("target triple = \"x86_64-unknown-linux-gnu\"\n\n")
}

// emitRuntimeDecls declares the optional runtime externs recognized by
// name, and always declares the LLVM intrinsics the builder façade
// leans on.
func (g *Generator) emitRuntimeDecls() {
	fmt.Fprintf(&g.buf, "declare ptr @malloc(i64)\n")
	fmt.Fprintf(&g.buf, "declare ptr @realloc(ptr, i64)\n")
	fmt.Fprintf(&g.buf, "declare void @llvm.memset.p0.i64(ptr, i8, i64, i1)\n")
	fmt.Fprintf(&g.buf, "declare void @llvm.memcpy.p0.p0.i64(ptr, ptr, i64, i1)\n")
	if g.externs["__crystal_malloc"] {
		fmt.Fprintf(&g.buf, "declare ptr @__crystal_malloc(i32)\n")
	}
	if g.externs["__crystal_realloc"] {
		fmt.Fprintf(&g.buf, "declare ptr @__crystal_realloc(ptr, i32)\n")
	}
	fmt.Fprintf(&g.buf, "declare i32 @__crystal_personality(...)\n")
	fmt.Fprintf(&g.buf, "declare ptr @_Unwind_RaiseException(ptr)\n")
	g.buf.WriteString("\n")
}

func (g *Generator) nextTemp() string {
	g.tmp++
	return fmt.Sprintf("%%t%d", g.tmp)
}

func (g *Generator) nextGlobalName() string {
	return fmt.Sprintf("@g%d", len(g.globalOrder))
}

// funcByMangledName looks up an already-materialized IR function.
func (g *Generator) funcByMangledName(name string) (*irFunc, bool) {
	f, ok := g.funcs[name]
	return f, ok
}

// defByID looks up a def's AST node by its symbol, the join key a
// Call.Targets entry names.
func (g *Generator) defByID(id symbols.SymbolID) (*ast.Node, bool) {
	d, ok := g.defs[id]
	return d, ok
}

// internString interns a string literal's text, returning the pointer
// to its module-level constant the first time (or every time, on a
// cache hit) it is referenced. The layout is a private constant
// [i32 length][bytes...][\0], addressed directly as "ptr" under opaque
// pointers.
func (g *Generator) internString(text string) string {
	if sc, ok := g.stringConsts[text]; ok {
		return "@" + sc.name
	}
	name := fmt.Sprintf("str%d", len(g.stringOrder))
	g.stringConsts[text] = &stringConst{name: name, text: text}
	g.stringOrder = append(g.stringOrder, text)
	return "@" + name
}

// emitStringConsts writes every interned string literal as a private
// [i32 length][bytes...][\0] constant, each symbol's text as a private
// NUL-terminated byte array, and the module-level symbol_table array
// of pointers to those symbol texts.
func (g *Generator) emitStringConsts() {
	names := make([]string, 0, len(g.stringConsts))
	for n := range g.stringConsts {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		sc := g.stringConsts[n]
		data := sc.text + "\x00"
		fmt.Fprintf(&g.buf, "@%s = private unnamed_addr constant { i32, [%d x i8] } { i32 %d, [%d x i8] c\"%s\" }\n",
			sc.name, len(data), len(sc.text), len(data), escapeLLVMString(data))
	}
	if g.syms == nil {
		return
	}
	symList := g.syms.SortedSymbols()
	if len(symList) == 0 {
		return
	}
	entries := make([]string, 0, len(symList))
	for i, s := range symList {
		gname := fmt.Sprintf("@symstr%d", i)
		data := s + "\x00"
		fmt.Fprintf(&g.buf, "%s = private unnamed_addr constant [%d x i8] c\"%s\"\n", gname, len(data), escapeLLVMString(data))
		entries = append(entries, fmt.Sprintf("ptr %s", gname))
	}
	fmt.Fprintf(&g.buf, "@symbol_table = internal global [%d x ptr] [%s]\n", len(entries), strings.Join(entries, ", "))
}

// containsYield reports whether a def body yields anywhere, which
// marks the def as block-taking: such defs are inlined at call sites
// and never materialize as standalone IR functions.
func containsYield(node *ast.Node) bool {
	if node == nil {
		return false
	}
	switch node.Kind {
	case ast.KindYield:
		return true
	case ast.KindExpressions:
		for _, c := range node.Seq.Body {
			if containsYield(c) {
				return true
			}
		}
	case ast.KindIf:
		return containsYield(node.If.Cond) || containsYield(node.If.Then) || containsYield(node.If.Else)
	case ast.KindWhile:
		return containsYield(node.While.Cond) || containsYield(node.While.Body)
	case ast.KindAssign:
		return containsYield(node.Assign.Value)
	case ast.KindExceptionHandler:
		if containsYield(node.Handler.Body) || containsYield(node.Handler.Ensure) {
			return true
		}
		for _, r := range node.Handler.Rescues {
			if containsYield(r.Body) {
				return true
			}
		}
	}
	return false
}

func escapeLLVMString(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x20 && c < 0x7f && c != '"' && c != '\\' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "\\%02X", c)
	}
	return b.String()
}
