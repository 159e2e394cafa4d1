package codegen

import (
	"fmt"
	"strings"

	"ember/internal/ast"
	"ember/internal/symbols"
	"ember/internal/types"
)

// codegenFun materializes the IR function for def specialized to
// receiverType (types.NoTypeID for a top-level function or a def whose
// owner isn't passed as self). Functions are cached by mangled name so
// repeated calls to the same (method, receiver) pair reuse one IR
// function.
func (g *Generator) codegenFun(def *ast.Node, receiverType types.TypeID) (*irFunc, error) {
	if def.Def.External {
		return g.declareExtern(def)
	}

	// The specialization key is the def's owner when it has one: a
	// dispatch candidate reached through a union-typed receiver is still
	// the concrete owner's method, not a "union method".
	selfType := def.Def.Owner
	if selfType == types.NoTypeID {
		selfType = receiverType
	}

	mangled := symbols.MangledName(symbols.Def{ID: def.Def.Sym, Name: def.Def.Name, Owner: def.Def.Owner}, selfType)
	if existing, ok := g.funcByMangledName(mangled); ok {
		return existing, nil
	}

	hasSelf := selfType != types.NoTypeID && g.types.PassedAsSelf(selfType)

	paramTypes := make([]string, 0, len(def.Def.Params)+1)
	paramNames := make([]string, 0, len(def.Def.Params)+1)
	paramAttrs := make([]string, 0, len(def.Def.Params)+1)
	if hasSelf {
		paramTypes = append(paramTypes, "ptr")
		paramNames = append(paramNames, "self")
		paramAttrs = append(paramAttrs, "")
	}
	byVal := make([]bool, 0, len(def.Def.Params))
	for _, p := range def.Def.Params {
		pt, err := llvmArgType(g.types, p.Type)
		if err != nil {
			return nil, err
		}
		paramTypes = append(paramTypes, pt)
		paramNames = append(paramNames, p.Name)
		if g.types.PassedByVal(p.Type) {
			vt, err := llvmValueType(g.types, p.Type)
			if err != nil {
				return nil, err
			}
			paramAttrs = append(paramAttrs, fmt.Sprintf("byval(%s)", vt))
		} else {
			paramAttrs = append(paramAttrs, "")
		}
		byVal = append(byVal, g.types.PassedByVal(p.Type))
	}

	retLLVM, err := llvmType(g.types, def.Def.ReturnType)
	if err != nil {
		return nil, err
	}

	fn := &irFunc{name: mangled, sig: funcSig{ret: retLLVM, params: paramTypes}, raises: def.Def.Raises}
	g.funcs[mangled] = fn
	g.funcOrder = append(g.funcOrder, mangled)

	f := newFrame(g, mangled, selfType)
	f.funcReturnType = def.Def.ReturnType
	f.lastLabel = "entry"

	if g.types.Union(def.Def.ReturnType) {
		unionTy, err := unionLLVMType(g.types, def.Def.ReturnType)
		if err != nil {
			return nil, err
		}
		f.funcReturnUnionSlot = f.alloca(unionTy, "return.slot")
	}

	bodyIdx := 0
	if hasSelf {
		f.vars["self"] = &Binding{Ptr: "%self", DeclaredType: selfType, TreatedAsPointer: true}
		bodyIdx = 1
	}
	for i, p := range def.Def.Params {
		argLLVM := paramTypes[bodyIdx+i]
		if byVal[i] {
			// Already a pointer to the caller's struct/union; the callee
			// treats that pointer itself as the binding (no copy, no slot).
			f.vars[p.Name] = &Binding{Ptr: fmt.Sprintf("%%%s", p.Name), DeclaredType: p.Type, TreatedAsPointer: true}
			continue
		}
		slot := f.alloca(argLLVM, p.Name)
		f.emitf("  store %s %%%s, ptr %s\n", argLLVM, p.Name, slot)
		f.vars[p.Name] = &Binding{Ptr: slot, DeclaredType: p.Type}
	}

	f.terminated = false
	lastVal, _, err := f.emitExpr(def.Def.Body)
	if err != nil {
		return nil, err
	}
	if !f.terminated {
		lastType := types.NoTypeID
		if def.Def.Body != nil {
			lastType = def.Def.Body.Type
		}
		if err := f.finishReturn(lastVal, lastType); err != nil {
			return nil, err
		}
	}

	g.writeFunction(f, mangled, retLLVM, paramTypes, paramNames, paramAttrs, g.types.NoReturn(def.Def.ReturnType), false)
	return fn, nil
}

// declareExtern registers (once) the fixed-name C external def as a
// no-body `declare`, keyed by its own extern name rather than a
// mangled monomorphization name.
func (g *Generator) declareExtern(def *ast.Node) (*irFunc, error) {
	if existing, ok := g.funcByMangledName(def.Def.ExternName); ok {
		return existing, nil
	}
	paramTypes := make([]string, 0, len(def.Def.Params))
	for _, p := range def.Def.Params {
		pt, err := llvmArgType(g.types, p.Type)
		if err != nil {
			return nil, err
		}
		paramTypes = append(paramTypes, pt)
	}
	retLLVM, err := llvmType(g.types, def.Def.ReturnType)
	if err != nil {
		return nil, err
	}
	fn := &irFunc{name: def.Def.ExternName, sig: funcSig{ret: retLLVM, params: paramTypes}}
	g.funcs[def.Def.ExternName] = fn
	g.funcOrder = append(g.funcOrder, def.Def.ExternName)
	if !g.runtimeDeclared(def.Def.ExternName) {
		fmt.Fprintf(&g.buf, "declare %s @%s(%s)\n", retLLVM, def.Def.ExternName, strings.Join(paramTypes, ", "))
	}
	return fn, nil
}

// runtimeDeclared reports whether emitRuntimeDecls already wrote a
// declare for name, so declareExtern doesn't produce a duplicate.
func (g *Generator) runtimeDeclared(name string) bool {
	switch name {
	case "malloc", "realloc", "__crystal_personality", "_Unwind_RaiseException":
		return true
	case "__crystal_malloc", "__crystal_realloc":
		return g.externs[name]
	}
	return false
}

// writeFunction assembles the final alloca -> const -> entry chain
// and appends the complete function definition to the
// module buffer. isMain additionally splices in the const chain this
// Frame owns, per the deferred-constant-initialization design.
func (g *Generator) writeFunction(f *Frame, name, retLLVM string, paramTypes, paramNames, paramAttrs []string, noReturn, isMain bool) {
	sig := make([]string, len(paramTypes))
	for i, t := range paramTypes {
		if i < len(paramAttrs) && paramAttrs[i] != "" {
			sig[i] = fmt.Sprintf("%s %s %%%s", t, paramAttrs[i], paramNames[i])
			continue
		}
		sig[i] = fmt.Sprintf("%s %%%s", t, paramNames[i])
	}
	attrs := ""
	if noReturn {
		attrs = " noreturn"
	}
	if f.usesHandler {
		attrs += " personality ptr @__crystal_personality"
	}
	fmt.Fprintf(&g.buf, "define %s @%s(%s)%s {\n", retLLVM, name, strings.Join(sig, ", "), attrs)
	g.buf.WriteString("alloca:\n")
	g.buf.WriteString(f.allocaBuf.String())
	g.buf.WriteString("  br label %const\n")
	g.buf.WriteString("const:\n")
	if isMain && f.constBuf != nil {
		g.buf.WriteString(f.constBuf.String())
	}
	g.buf.WriteString("  br label %entry\n")
	g.buf.WriteString("entry:\n")
	g.buf.WriteString(f.body.String())
	g.buf.WriteString("}\n\n")
}

// emitEntryPoint lowers the module's single __crystal_main entry
// point: `(i32 argc, ptr argv) -> <program_type_or_void>`, its body
// being prog.Main and its Frame the permanent owner of the module's
// deferred constant-initialization chain.
func (g *Generator) emitEntryPoint(prog *Program) error {
	f := newFrame(g, "__crystal_main", types.NoTypeID)
	f.constBuf = &builderBuf{}
	f.funcReturnType = prog.MainType
	f.lastLabel = "entry"
	g.constChainOwner = f

	if g.types.Union(prog.MainType) {
		unionTy, err := unionLLVMType(g.types, prog.MainType)
		if err != nil {
			return err
		}
		f.funcReturnUnionSlot = f.alloca(unionTy, "return.slot")
	}

	argc := f.alloca("i32", "argc")
	f.emitf("  store i32 %%argc, ptr %s\n", argc)
	argv := f.alloca("ptr", "argv")
	f.emitf("  store ptr %%argv, ptr %s\n", argv)

	for _, c := range prog.Constants {
		if _, err := g.emitConstant(f, c); err != nil {
			return err
		}
	}

	f.terminated = false
	lastVal, _, err := f.emitExpr(prog.Main)
	if err != nil {
		return err
	}
	if !f.terminated {
		lastType := types.NoTypeID
		if prog.Main != nil {
			lastType = prog.Main.Type
		}
		if err := f.finishReturn(lastVal, lastType); err != nil {
			return err
		}
	}

	retLLVM, err := llvmType(g.types, prog.MainType)
	if err != nil {
		return err
	}
	g.writeFunction(f, "__crystal_main", retLLVM, []string{"i32", "ptr"}, []string{"argc", "argv"}, nil, false, true)
	return nil
}

// finishReturn terminates the current control path with the return
// form the function's declared type demands, given the just-produced
// value val of static type valType.
func (f *Frame) finishReturn(val string, valType types.TypeID) error {
	in := f.gen.types
	retTy := f.funcReturnType
	if retTy == types.NoTypeID {
		f.terminate("  ret void\n")
		return nil
	}
	if in.NoReturn(retTy) {
		f.terminate("  unreachable\n")
		return nil
	}
	if in.Union(retTy) {
		if valType == types.NoTypeID {
			valType = retTy
		}
		if val != "" {
			if err := f.codegenAssign(f.funcReturnUnionSlot, retTy, valType, val); err != nil {
				return err
			}
		}
		llvmTy, err := unionLLVMType(in, retTy)
		if err != nil {
			return err
		}
		out := f.nextTemp()
		f.emitf("  %s = load %s, ptr %s\n", out, llvmTy, f.funcReturnUnionSlot)
		f.terminate("  ret %s %s\n", llvmTy, out)
		return nil
	}
	if in.Nilable(retTy) && valType != types.NoTypeID && in.NilType(valType) {
		f.terminate("  ret ptr null\n")
		return nil
	}
	llvmTy, err := llvmValueType(in, retTy)
	if err != nil {
		return err
	}
	if val == "" {
		val = "zeroinitializer"
	}
	f.terminate("  ret %s %s\n", llvmTy, val)
	return nil
}

// emitReturn transfers control out of the enclosing method or, when
// a block activation has redirected f.returnBlock, out of the method
// that contains the `yield` being inlined.
func (f *Frame) emitReturn(n *ast.Node) (string, string, error) {
	var val, ty string
	valType := types.NoTypeID
	if n.Return.Value != nil {
		v, t, err := f.emitExpr(n.Return.Value)
		if err != nil {
			return "", "", err
		}
		val, ty, valType = v, t, n.Return.Value.Type
	}
	if f.returnBlock != "" {
		if f.returnType != types.NoTypeID && f.gen.types.Union(f.returnType) {
			if err := f.assignToUnion(f.returnUnionSlot, f.returnType, valType, val); err != nil {
				return "", "", err
			}
		} else if val != "" {
			f.returnTable = append(f.returnTable, phiEntry{block: f.currentBlockLabel(), value: val, ty: ty})
		}
		f.terminate("  br label %%%s\n", f.returnBlock)
		return val, ty, nil
	}
	if err := f.finishReturn(val, valType); err != nil {
		return "", "", err
	}
	return val, ty, nil
}

// emitBreak exits the nearest enclosing while or, inside an inlined
// block, the call that yielded to it.
func (f *Frame) emitBreak(n *ast.Node) (string, string, error) {
	var val, ty string
	valType := types.NoTypeID
	if n.Break.Value != nil {
		v, t, err := f.emitExpr(n.Break.Value)
		if err != nil {
			return "", "", err
		}
		val, ty, valType = v, t, n.Break.Value.Type
	}
	if f.breakBlock == "" {
		return "", "", fmt.Errorf("codegen: break outside a loop or block")
	}
	if f.breakType != types.NoTypeID && f.gen.types.Union(f.breakType) {
		if err := f.assignToUnion(f.breakUnionSlot, f.breakType, valType, val); err != nil {
			return "", "", err
		}
	} else if val != "" {
		f.breakTable = append(f.breakTable, phiEntry{block: f.currentBlockLabel(), value: val, ty: ty})
	}
	f.terminate("  br label %%%s\n", f.breakBlock)
	return val, ty, nil
}
