package codegen

import (
	"fmt"

	"ember/internal/ast"
	"ember/internal/types"
)

// inlineBlockCall lowers a call with an attached block: rather than a
// real `call`/`invoke`, the callee's body is inlined directly into the
// caller's function, with a fresh variable environment
// for its receiver/parameters and a fresh completion rendezvous that
// both its own normal fall-through and a `break` from inside the
// block converge on.
func (f *Frame) inlineBlockCall(n *ast.Node) (string, string, error) {
	call := n.Call
	if len(call.Targets) == 0 {
		return "", "", fmt.Errorf("codegen: block call %q has no resolved target", call.Name)
	}
	def, ok := f.gen.defByID(call.Targets[0])
	if !ok {
		return "", "", fmt.Errorf("codegen: unresolved block-call target for %q", call.Name)
	}

	enclosingVars := f.vars
	calleeVars := make(map[string]*Binding)
	if call.Receiver != nil {
		rv, _, err := f.emitExpr(call.Receiver)
		if err != nil {
			return "", "", err
		}
		if f.gen.types.PassedAsSelf(def.Def.Owner) {
			adapted, err := f.adaptReceiver(rv, call.Receiver.Type, def.Def.Owner)
			if err != nil {
				return "", "", err
			}
			calleeVars["self"] = &Binding{Ptr: adapted, DeclaredType: def.Def.Owner, TreatedAsPointer: true}
		}
	}
	for i, p := range def.Def.Params {
		val, _, err := f.emitExpr(call.Args[i])
		if err != nil {
			return "", "", err
		}
		llvmTy, err := llvmValueType(f.gen.types, p.Type)
		if err != nil {
			return "", "", err
		}
		slot := f.alloca(llvmTy, p.Name)
		if err := f.codegenAssign(slot, p.Type, call.Args[i].Type, val); err != nil {
			return "", "", err
		}
		calleeVars[p.Name] = &Binding{Ptr: slot, DeclaredType: p.Type}
	}
	f.vars = calleeVars

	resultIsUnion := f.gen.types.Union(n.Type)
	completionBlock := f.nextBlock("block.done")
	var completionUnionSlot, completionLLVM string
	if resultIsUnion {
		var err error
		completionLLVM, err = unionLLVMType(f.gen.types, n.Type)
		if err != nil {
			return "", "", err
		}
		completionUnionSlot = f.alloca(completionLLVM, "block.result")
	}

	savedReturnBlock, savedReturnTable := f.returnBlock, f.returnTable
	savedReturnType, savedReturnUnionSlot := f.returnType, f.returnUnionSlot
	savedBreakBlock, savedBreakTable := f.breakBlock, f.breakTable
	savedBreakType, savedBreakUnionSlot := f.breakType, f.breakUnionSlot

	act := &blockActivation{
		params:                   call.Block.Params,
		body:                     call.Block.Body,
		vars:                     enclosingVars,
		enclosingReturnBlock:     savedReturnBlock,
		enclosingReturnTable:     append([]phiEntry{}, savedReturnTable...),
		enclosingReturnType:      savedReturnType,
		enclosingReturnUnionSlot: savedReturnUnionSlot,
		completionBlock:          completionBlock,
		completionType:           n.Type,
		completionUnionSlot:      completionUnionSlot,
	}
	f.pushBlockActivation(act)

	f.returnBlock, f.returnTable, f.returnType, f.returnUnionSlot = completionBlock, nil, n.Type, completionUnionSlot
	f.breakBlock, f.breakTable, f.breakType, f.breakUnionSlot = completionBlock, nil, n.Type, completionUnionSlot

	f.terminated = false
	lastVal, lastTy, err := f.emitExpr(def.Def.Body)
	if err != nil {
		return "", "", err
	}
	if !f.terminated {
		if resultIsUnion {
			bodyType := types.NoTypeID
			if def.Def.Body != nil {
				bodyType = def.Def.Body.Type
			}
			if err := f.assignToUnion(completionUnionSlot, n.Type, bodyType, lastVal); err != nil {
				return "", "", err
			}
		} else if lastVal != "" {
			f.returnTable = append(f.returnTable, phiEntry{block: f.currentBlockLabel(), value: lastVal, ty: lastTy})
		}
		f.emitf("  br label %%%s\n", completionBlock)
	}

	// Three value sources converge on the completion rendezvous: the
	// callee body's fall-through and its own `return`s (f.returnTable),
	// callee-level `break`s (f.breakTable), and `break`s inside the
	// inlined block body, which each yield recorded on the activation.
	mergedTable := append(append(f.returnTable, f.breakTable...), act.completionTable...)

	f.popBlockActivation()
	f.vars = enclosingVars
	// A `return` inside the block body targeted the ENCLOSING method's
	// rendezvous; yields accumulated those entries on the activation, so
	// the restored return table is the activation's, not the snapshot.
	f.returnBlock, f.returnTable = savedReturnBlock, act.enclosingReturnTable
	f.returnType, f.returnUnionSlot = savedReturnType, savedReturnUnionSlot
	f.breakBlock, f.breakTable = savedBreakBlock, savedBreakTable
	f.breakType, f.breakUnionSlot = savedBreakType, savedBreakUnionSlot

	f.startBlock(completionBlock)
	f.terminated = false

	if resultIsUnion {
		return completionUnionSlot, "ptr", nil
	}
	if n.Type == types.NoTypeID || len(mergedTable) == 0 {
		return "", "void", nil
	}
	resultTy, err := llvmValueType(f.gen.types, n.Type)
	if err != nil {
		return "", "", err
	}
	if len(mergedTable) == 1 {
		return mergedTable[0].value, resultTy, nil
	}
	entries := make([]string, len(mergedTable))
	for i, e := range mergedTable {
		entries[i] = fmt.Sprintf("[ %s, %%%s ]", e.value, e.block)
	}
	out := f.nextTemp()
	f.emitf("  %s = phi %s %s\n", out, resultTy, joinList(entries))
	return out, resultTy, nil
}

// emitYield inlines the block attached to the enclosing call at the
// point of a `yield`: pop the top activation, clone
// its captured environment, bind the yielded arguments to the block's
// named parameters, redirect `return`/`break` to their targets inside
// the block body, then restore the callee's own context and push the
// activation back so later yields in the same callee body see it.
func (f *Frame) emitYield(n *ast.Node) (string, string, error) {
	act, ok := f.topBlockActivation()
	if !ok {
		return "", "", fmt.Errorf("codegen: yield outside a block-taking call")
	}
	f.popBlockActivation()

	argVals := make([]string, len(n.Yield.Args))
	argTypes := make([]types.TypeID, len(n.Yield.Args))
	for i, a := range n.Yield.Args {
		v, _, err := f.emitExpr(a)
		if err != nil {
			return "", "", err
		}
		argVals[i] = v
		argTypes[i] = a.Type
	}

	calleeVars := f.vars
	clonedVars := make(map[string]*Binding, len(act.vars))
	for k, v := range act.vars {
		clonedVars[k] = v
	}
	f.vars = clonedVars

	for i, paramName := range act.params {
		if i >= len(argVals) {
			break
		}
		llvmTy, err := llvmValueType(f.gen.types, argTypes[i])
		if err != nil {
			return "", "", err
		}
		slot := f.alloca(llvmTy, paramName)
		if err := f.codegenAssign(slot, argTypes[i], argTypes[i], argVals[i]); err != nil {
			return "", "", err
		}
		f.vars[paramName] = &Binding{Ptr: slot, DeclaredType: argTypes[i]}
	}

	savedReturnBlock, savedReturnTable := f.returnBlock, f.returnTable
	savedReturnType, savedReturnUnionSlot := f.returnType, f.returnUnionSlot
	savedBreakBlock, savedBreakTable := f.breakBlock, f.breakTable
	savedBreakType, savedBreakUnionSlot := f.breakType, f.breakUnionSlot

	f.returnBlock = act.enclosingReturnBlock
	f.returnTable = append([]phiEntry{}, act.enclosingReturnTable...)
	f.returnType = act.enclosingReturnType
	f.returnUnionSlot = act.enclosingReturnUnionSlot

	f.breakBlock = act.completionBlock
	f.breakTable = nil
	f.breakType = act.completionType
	f.breakUnionSlot = act.completionUnionSlot

	f.terminated = false
	val, ty, err := f.emitExpr(act.body)
	if err != nil {
		return "", "", err
	}
	yieldDiverged := f.terminated

	act.enclosingReturnTable = f.returnTable
	act.completionTable = append(act.completionTable, f.breakTable...)

	f.returnBlock, f.returnTable = savedReturnBlock, savedReturnTable
	f.returnType, f.returnUnionSlot = savedReturnType, savedReturnUnionSlot
	f.breakBlock, f.breakTable = savedBreakBlock, savedBreakTable
	f.breakType, f.breakUnionSlot = savedBreakType, savedBreakUnionSlot

	f.vars = calleeVars
	f.pushBlockActivation(act)

	if yieldDiverged {
		// The block body itself transferred control away (a `break` or a
		// non-local `return`); nothing after this yield in the callee
		// body is reachable.
		f.terminated = true
		return "", "void", nil
	}
	return val, ty, nil
}
