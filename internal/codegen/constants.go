package codegen

import (
	"fmt"

	"ember/internal/ast"
)

// isConstantExpr reports whether node can be lowered to a literal IR
// constant with no instructions; anything else needs the const block.
func isConstantExpr(node *ast.Node) bool {
	return node != nil && node.Kind == ast.KindLiteral
}

// emitConstant materializes the lazy global backing a program-level
// constant at a deterministic mangled name. Literal initializers
// become the global's own `initializer` operand directly; anything
// else is detached into f's const-block chain (f is always the
// __crystal_main frame, the chain's sole owner) so it runs exactly
// exactly once before any of main's own code.
func (g *Generator) emitConstant(f *Frame, c Constant) (*Binding, error) {
	if slot, ok := g.globals[c.Name]; ok {
		return &Binding{Ptr: slot.name, DeclaredType: slot.ty}, nil
	}
	llvmTy, err := llvmValueType(g.types, c.Type)
	if err != nil {
		return nil, err
	}
	gname := fmt.Sprintf("@const.%s", c.Name)

	if isConstantExpr(c.Init) {
		val, _, err := f.emitLiteral(c.Init)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&g.buf, "%s = internal constant %s %s\n", gname, llvmTy, val)
		g.globals[c.Name] = &globalSlot{name: gname, ty: c.Type}
		return &Binding{Ptr: gname, DeclaredType: c.Type}, nil
	}

	fmt.Fprintf(&g.buf, "%s = internal global %s zeroinitializer\n", gname, llvmTy)
	g.globals[c.Name] = &globalSlot{name: gname, ty: c.Type}

	// Detach emission into the const chain: redirect the insertion
	// point to f.constBuf, emit the initializer and its store, then
	// restore the caller's insertion point.
	saved := f.cur
	savedLabel := f.lastLabel
	f.cur = f.constBuf
	f.lastLabel = "const"
	val, _, err := f.emitExpr(c.Init)
	if err != nil {
		return nil, err
	}
	initType := c.Type
	if c.Init != nil {
		initType = c.Init.Type
	}
	if err := f.codegenAssign(gname, c.Type, initType, val); err != nil {
		return nil, err
	}
	f.cur = saved
	f.lastLabel = savedLabel
	f.terminated = false

	return &Binding{Ptr: gname, DeclaredType: c.Type}, nil
}
