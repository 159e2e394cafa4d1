package codegen

import (
	"fmt"

	"ember/internal/ast"
	"ember/internal/types"
)

// emitDynamicDispatch lowers a call whose resolved targets are more
// than one per-subtype definition into a type-id cascade. Receiver and
// arguments are evaluated exactly once up front, then each candidate
// is tried in turn via a matched conditional branch; the terminal
// fall-through is unreachable, guaranteed dead by the closed-set type
// inference that produced the candidate list.
func (f *Frame) emitDynamicDispatch(n *ast.Node) (string, string, error) {
	call := n.Call
	in := f.gen.types

	receiverType := types.NoTypeID
	var receiverVal string
	if call.Receiver != nil {
		receiverType = call.Receiver.Type
		v, _, err := f.emitExpr(call.Receiver)
		if err != nil {
			return "", "", err
		}
		receiverVal = v
	}

	argVals := make([]string, len(call.Args))
	argTypes := make([]types.TypeID, len(call.Args))
	for i, a := range call.Args {
		v, _, err := f.emitExpr(a)
		if err != nil {
			return "", "", err
		}
		argVals[i] = v
		argTypes[i] = a.Type
	}

	// Extract the receiver's and every union argument's runtime tag
	// exactly once, before the cascade.
	var receiverTag string
	switch {
	case in.Union(receiverType):
		tagPtr, err := f.unionTypeIDPtr(receiverVal, receiverType)
		if err != nil {
			return "", "", err
		}
		receiverTag = f.nextTemp()
		f.emitf("  %s = load i32, ptr %s\n", receiverTag, tagPtr)
	case in.Hierarchy(receiverType):
		// Hierarchy values travel as { i32, ptr } aggregates, so the tag
		// comes out by value rather than through a pointer.
		receiverTag = f.nextTemp()
		f.emitf("  %s = extractvalue { i32, ptr } %s, 0\n", receiverTag, receiverVal)
	}
	argTags := make([]string, len(argVals))
	for i, at := range argTypes {
		if !in.Union(at) {
			continue
		}
		tagPtr, err := f.unionTypeIDPtr(argVals[i], at)
		if err != nil {
			return "", "", err
		}
		argTags[i] = f.nextTemp()
		f.emitf("  %s = load i32, ptr %s\n", argTags[i], tagPtr)
	}

	resultIsUnion := in.Union(n.Type)
	var unionSlot, unionTy string
	if resultIsUnion {
		var err error
		unionTy, err = unionLLVMType(in, n.Type)
		if err != nil {
			return "", "", err
		}
		unionSlot = f.alloca(unionTy, "dispatch.result")
	}

	joinBlock := f.nextBlock("dispatch.join")
	var table []phiEntry

	for _, target := range call.Targets {
		def, ok := f.gen.defByID(target)
		if !ok {
			return "", "", fmt.Errorf("codegen: unresolved dispatch candidate for %q", call.Name)
		}
		match, err := f.dispatchMatch(receiverType, receiverVal, receiverTag, def.Def.Owner, argTypes, argVals, argTags, def.Def.Params)
		if err != nil {
			return "", "", err
		}

		caseBlock := f.nextBlock("dispatch.case")
		nextBlock := f.nextBlock("dispatch.next")
		f.emitf("  br i1 %s, label %%%s, label %%%s\n", match, caseBlock, nextBlock)

		f.startBlock(caseBlock)
		val, retLLVM, err := f.callDefWithValues(def, receiverType, receiverVal, call.Receiver != nil, argTypes, argVals, call.OutArg, call.IsRaises)
		if err != nil {
			return "", "", err
		}
		if resultIsUnion {
			if err := f.assignToUnion(unionSlot, n.Type, def.Def.ReturnType, val); err != nil {
				return "", "", err
			}
		} else if val != "" {
			table = append(table, phiEntry{block: f.currentBlockLabel(), value: val, ty: retLLVM})
		}
		f.emitf("  br label %%%s\n", joinBlock)

		f.startBlock(nextBlock)
	}
	f.terminate("  unreachable\n")

	f.startBlock(joinBlock)
	f.terminated = false
	if resultIsUnion {
		return unionSlot, "ptr", nil
	}
	if n.Type == types.NoTypeID || len(table) == 0 {
		return "", "void", nil
	}
	resultTy, err := llvmValueType(in, n.Type)
	if err != nil {
		return "", "", err
	}
	if len(table) == 1 {
		return table[0].value, resultTy, nil
	}
	entries := make([]string, len(table))
	for i, e := range table {
		entries[i] = fmt.Sprintf("[ %s, %%%s ]", e.value, e.block)
	}
	out := f.nextTemp()
	f.emitf("  %s = phi %s %s\n", out, resultTy, joinList(entries))
	return out, resultTy, nil
}

// dispatchMatch computes the i1 conjunction of "receiver matches
// candidate.owner" and "each arg matches candidate's parameter type":
// union receivers/args disjoin over
// their concrete members' tags, nilable receivers/args null-check,
// everything else compares by static equality (trivially true, since
// type inference already narrowed it).
func (f *Frame) dispatchMatch(receiverType types.TypeID, receiverVal, receiverTag string, owner types.TypeID, argTypes []types.TypeID, argVals, argTags []string, params []ast.Param) (string, error) {
	in := f.gen.types
	acc := "1"
	and := func(rhs string) error {
		if acc == "1" {
			acc = rhs
			return nil
		}
		next := f.nextTemp()
		f.emitf("  %s = and i1 %s, %s\n", next, acc, rhs)
		acc = next
		return nil
	}

	if receiverType != types.NoTypeID {
		m, err := f.typeMatch(receiverType, receiverVal, receiverTag, owner)
		if err != nil {
			return "", err
		}
		if err := and(m); err != nil {
			return "", err
		}
	}
	for i, pt := range params {
		if i >= len(argTypes) {
			break
		}
		if !in.Union(argTypes[i]) && !in.Nilable(argTypes[i]) {
			continue
		}
		m, err := f.typeMatch(argTypes[i], argVals[i], argTags[i], pt.Type)
		if err != nil {
			return "", err
		}
		if err := and(m); err != nil {
			return "", err
		}
	}
	return acc, nil
}

// typeMatch tests whether a value of static type ty (its tag already
// loaded into tag, if it has one) can, at runtime, carry candidate.
func (f *Frame) typeMatch(ty types.TypeID, val, tag string, candidate types.TypeID) (string, error) {
	in := f.gen.types
	switch {
	case in.Union(ty), in.Hierarchy(ty):
		// A union candidate owner matches on any of its concrete members'
		// ids; a concrete owner is the single-id case of the same rule.
		v, _, err := f.matchAnyTag(tag, in.ConcreteTypes(candidate))
		return v, err
	case in.Nilable(ty):
		isNull, err := f.nullPointer(val)
		if err != nil {
			return "", err
		}
		if in.NilType(candidate) {
			return isNull, nil
		}
		notNull := f.nextTemp()
		f.emitf("  %s = xor i1 %s, true\n", notNull, isNull)
		return notNull, nil
	default:
		return "1", nil
	}
}

// callDefWithValues emits a single-target call/invoke using already
// evaluated receiver/argument values rather than re-walking the
// original AST expressions.
func (f *Frame) callDefWithValues(def *ast.Node, receiverType types.TypeID, receiverVal string, hasReceiver bool, argTypes []types.TypeID, argVals []string, outArg []bool, raises bool) (string, string, error) {
	args := make([]string, 0, len(argVals)+1)
	if hasReceiver && f.gen.types.PassedAsSelf(def.Def.Owner) {
		adapted, err := f.adaptReceiver(receiverVal, receiverType, def.Def.Owner)
		if err != nil {
			return "", "", err
		}
		args = append(args, fmt.Sprintf("ptr %s", adapted))
	}
	for i, v := range argVals {
		paramType := def.Def.Params[i].Type
		if i < len(outArg) && outArg[i] {
			args = append(args, fmt.Sprintf("ptr %s", v))
			continue
		}
		arg, err := f.prepareArg(v, argTypes[i], paramType)
		if err != nil {
			return "", "", err
		}
		args = append(args, arg)
	}

	fn, err := f.gen.codegenFun(def, receiverType)
	if err != nil {
		return "", "", err
	}
	out, err := f.emitCallOrInvoke(fn, args, raises)
	if err != nil {
		return "", "", err
	}
	if f.gen.types.Union(def.Def.ReturnType) {
		return f.promoteUnionResult(out, fn.sig.ret)
	}
	return out, fn.sig.ret, nil
}
