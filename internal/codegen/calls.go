package codegen

import (
	"fmt"
	"strings"

	"ember/internal/ast"
	"ember/internal/symbols"
	"ember/internal/types"
)

// emitCall lowers a call node to one of its outcomes: a macro
// target's expansion is accepted in place; an attached block means the
// callee body is inlined rather than invoked; more than one candidate
// target means dynamic dispatch; otherwise the single candidate is
// monomorphized.
func (f *Frame) emitCall(n *ast.Node) (string, string, error) {
	call := n.Call
	if call.Expansion != nil {
		return f.emitExpr(call.Expansion)
	}
	if call.Block != nil {
		return f.inlineBlockCall(n)
	}
	if len(call.Targets) == 0 {
		return "", "", fmt.Errorf("codegen: call %q has no resolved target", call.Name)
	}
	if len(call.Targets) > 1 {
		return f.emitDynamicDispatch(n)
	}
	return f.emitMonomorphicCall(n, call.Targets[0])
}

// emitMonomorphicCall lowers a call with exactly one resolved target:
// adapt the receiver, lower arguments, materialize (or reuse) the
// callee's IR function, and emit `call` or `invoke`.
func (f *Frame) emitMonomorphicCall(n *ast.Node, target symbols.SymbolID) (string, string, error) {
	call := n.Call
	def, ok := f.gen.defByID(target)
	if !ok {
		return "", "", fmt.Errorf("codegen: unresolved call target for %q", call.Name)
	}

	receiverType := types.NoTypeID
	passSelf := false
	var selfArg string
	if call.Receiver != nil {
		receiverType = call.Receiver.Type
		rv, _, err := f.emitExpr(call.Receiver)
		if err != nil {
			return "", "", err
		}
		// Value-kind owners (ints, bools) carry no self parameter; the
		// receiver is still evaluated for its effects.
		passSelf = f.gen.types.PassedAsSelf(def.Def.Owner)
		if passSelf {
			selfArg, err = f.adaptReceiver(rv, receiverType, def.Def.Owner)
			if err != nil {
				return "", "", err
			}
		}
	}

	fn, err := f.gen.codegenFun(def, receiverType)
	if err != nil {
		return "", "", err
	}

	args := make([]string, 0, len(call.Args)+1)
	if passSelf {
		args = append(args, fmt.Sprintf("ptr %s", selfArg))
	}
	outSlots := make([]outArgSlot, 0)
	for i, argNode := range call.Args {
		paramType := def.Def.Params[i].Type
		if i < len(call.OutArg) && call.OutArg[i] {
			slot, argText, err := f.lowerOutArg(argNode, paramType)
			if err != nil {
				return "", "", err
			}
			args = append(args, argText)
			outSlots = append(outSlots, slot)
			continue
		}
		val, _, err := f.emitExpr(argNode)
		if err != nil {
			return "", "", err
		}
		arg, err := f.prepareArg(val, argNode.Type, paramType)
		if err != nil {
			return "", "", err
		}
		args = append(args, arg)
	}

	out, err := f.emitCallOrInvoke(fn, args, call.IsRaises)
	if err != nil {
		return "", "", err
	}

	for _, slot := range outSlots {
		if err := f.copyOutArgBack(slot); err != nil {
			return "", "", err
		}
	}

	if f.gen.types.Union(def.Def.ReturnType) {
		return f.promoteUnionResult(out, fn.sig.ret)
	}
	return out, fn.sig.ret, nil
}

// adaptReceiver adapts a receiver value of type fromType to the
// static owner type the resolved def expects: boxing into a hierarchy
// when the target is an open supertype, narrowing a union receiver to
// its payload (loading once to adjust indirection for reference
// owners), or passing the pointer through unchanged otherwise. Under
// opaque pointers every class value is already "ptr", so no bit-cast
// instruction is ever needed to adjust nominal pointer types.
func (f *Frame) adaptReceiver(val string, fromType, toType types.TypeID) (string, error) {
	in := f.gen.types
	if fromType == toType {
		return val, nil
	}
	if in.Hierarchy(toType) && !in.Hierarchy(fromType) {
		return f.boxHierarchyValue(val, fromType)
	}
	if in.Hierarchy(fromType) && !in.Hierarchy(toType) {
		// Unboxing for a concrete candidate: the payload pointer is the
		// object itself.
		out := f.nextTemp()
		f.emitf("  %s = extractvalue { i32, ptr } %s, 1\n", out, val)
		return out, nil
	}
	if in.Union(fromType) && !in.Union(toType) {
		valPtr, err := f.unionValuePtr(val, fromType)
		if err != nil {
			return "", err
		}
		if in.PassedByVal(toType) {
			return valPtr, nil
		}
		loaded := f.nextTemp()
		f.emitf("  %s = load ptr, ptr %s\n", loaded, valPtr)
		return loaded, nil
	}
	return val, nil
}

// prepareArg adapts an already-evaluated argument value to the ABI
// form the callee's parameter expects, returning the "<type> <value>"
// text for the call's argument list. Union values travel between
// functions by value, so the caller loads the aggregate out of its
// slot pointer here (widening through a fresh slot first when the
// static types differ); nil literals flowing into a nilable parameter
// become the null pointer; everything else passes through.
func (f *Frame) prepareArg(val string, argType, paramType types.TypeID) (string, error) {
	in := f.gen.types
	if in.Union(paramType) {
		unionTy, err := unionLLVMType(in, paramType)
		if err != nil {
			return "", err
		}
		src := val
		if argType != paramType {
			slot := f.alloca(unionTy, "arg.widen")
			if err := f.assignToUnion(slot, paramType, argType, val); err != nil {
				return "", err
			}
			src = slot
		}
		loaded := f.nextTemp()
		f.emitf("  %s = load %s, ptr %s\n", loaded, unionTy, src)
		return fmt.Sprintf("%s %s", unionTy, loaded), nil
	}
	if in.Nilable(paramType) && in.NilType(argType) {
		return "ptr null", nil
	}
	if in.Union(argType) && !in.Union(paramType) && !in.Nilable(paramType) {
		// Narrowing at a dispatch-selected candidate: the matched payload
		// reads back at the parameter's concrete type.
		valPtr, err := f.unionValuePtr(val, argType)
		if err != nil {
			return "", err
		}
		if in.PassedByVal(paramType) {
			return fmt.Sprintf("ptr %s", valPtr), nil
		}
		armTy, err := llvmValueType(in, paramType)
		if err != nil {
			return "", err
		}
		loaded := f.nextTemp()
		f.emitf("  %s = load %s, ptr %s\n", loaded, armTy, valPtr)
		return fmt.Sprintf("%s %s", armTy, loaded), nil
	}
	if in.Hierarchy(paramType) && !in.Hierarchy(argType) && argType != paramType {
		boxed, err := f.boxHierarchyValue(val, argType)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("{ i32, ptr } %s", boxed), nil
	}
	argLLVM, err := llvmArgType(in, paramType)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s", argLLVM, val), nil
}

// outArgSlot records an out-argument whose value must be copied back
// into the caller's pointer after the call returns.
type outArgSlot struct {
	slot     string
	caller   string
	llvmType string
}

// lowerOutArg passes the slot pointer for an out argument rather than
// its loaded value. For C-struct/union out args, a local slot is
// pre-allocated and copied into the caller's pointer after the call.
func (f *Frame) lowerOutArg(argNode *ast.Node, paramType types.TypeID) (outArgSlot, string, error) {
	callerPtr, err := f.placePtr(argNode)
	if err != nil {
		return outArgSlot{}, "", err
	}
	elem := f.pointeeOf(paramType)
	if f.gen.types.PassedByVal(elem) {
		llvmTy, err := llvmValueType(f.gen.types, elem)
		if err != nil {
			return outArgSlot{}, "", err
		}
		local := f.alloca(llvmTy, "outarg")
		return outArgSlot{slot: local, caller: callerPtr, llvmType: llvmTy}, fmt.Sprintf("ptr %s", local), nil
	}
	return outArgSlot{}, fmt.Sprintf("ptr %s", callerPtr), nil
}

// placePtr resolves an assignable place to the pointer backing it,
// without loading. Non-place expressions (pointer primitives) already
// evaluate to a pointer.
func (f *Frame) placePtr(node *ast.Node) (string, error) {
	switch node.Kind {
	case ast.KindVar:
		b, err := f.resolveVar(node.Var)
		if err != nil {
			return "", err
		}
		return b.Ptr, nil
	case ast.KindCastedVar:
		b, err := f.resolveVar(node.Casted.Inner.Var)
		if err != nil {
			return "", err
		}
		return b.Ptr, nil
	default:
		val, _, err := f.emitExpr(node)
		return val, err
	}
}

// pointeeOf unwraps an out parameter's declared pointer type to the
// value type behind it; a parameter already declared at the value type
// passes through.
func (f *Frame) pointeeOf(paramType types.TypeID) types.TypeID {
	tt, ok := f.gen.types.Lookup(paramType)
	if ok && (tt.Kind == types.KindPointer || tt.Kind == types.KindNilable) && tt.Elem != types.NoTypeID {
		return tt.Elem
	}
	return paramType
}

func (f *Frame) copyOutArgBack(slot outArgSlot) error {
	if slot.slot == "" {
		return nil
	}
	loaded := f.nextTemp()
	f.emitf("  %s = load %s, ptr %s\n", loaded, slot.llvmType, slot.slot)
	f.emitf("  store %s %s, ptr %s\n", slot.llvmType, loaded, slot.caller)
	return nil
}

// emitCallOrInvoke chooses `call` when no handler is active or the
// callee cannot raise, else `invoke` targeting the innermost handler's
// catch block with a fresh continuation.
func (f *Frame) emitCallOrInvoke(fn *irFunc, args []string, raises bool) (string, error) {
	argList := strings.Join(args, ", ")
	handler, active := f.topHandler()
	if (raises || fn.raises) && active {
		cont := f.nextBlock("invoke.cont")
		out := ""
		if fn.sig.ret != "void" {
			out = f.nextTemp()
			f.emitf("  %s = invoke %s @%s(%s) to label %%%s unwind label %%%s\n", out, fn.sig.ret, fn.name, argList, cont, handler.catchBlock)
		} else {
			f.emitf("  invoke void @%s(%s) to label %%%s unwind label %%%s\n", fn.name, argList, cont, handler.catchBlock)
		}
		f.startBlock(cont)
		return out, nil
	}
	if fn.sig.ret != "void" {
		out := f.nextTemp()
		f.emitf("  %s = call %s @%s(%s)\n", out, fn.sig.ret, fn.name, argList)
		return out, nil
	}
	f.emitf("  call void @%s(%s)\n", fn.name, argList)
	return "", nil
}

// promoteUnionResult stores a by-value union return into a freshly
// allocated slot so it keeps living behind a pointer, matching every
// other union value in this representation.
func (f *Frame) promoteUnionResult(val, llvmTy string) (string, string, error) {
	slot := f.alloca(llvmTy, "call.result")
	f.emitf("  store %s %s, ptr %s\n", llvmTy, val, slot)
	return slot, "ptr", nil
}
