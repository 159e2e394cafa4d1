package codegen

import (
	"fmt"

	"ember/internal/ast"
	"ember/internal/types"
)

// resolveVar finds the Binding backing a variable reference. Locals
// and instance vars must already be bound by the time they are read
// (declared via an earlier Assign or a function parameter); globals,
// class vars and constants must already have their internal global,
// created by the constant engine or by a first assignment.
func (f *Frame) resolveVar(v ast.Var) (*Binding, error) {
	switch v.Kind {
	case ast.VarLocal:
		b, ok := f.vars[v.Name]
		if !ok {
			return nil, fmt.Errorf("codegen: read of undeclared local %q", v.Name)
		}
		return b, nil
	case ast.VarInstance:
		return f.instanceVarBinding(v.Name)
	case ast.VarGlobal, ast.VarClass, ast.VarConstant:
		return f.gen.lazyGlobalBinding(v.Name)
	default:
		return nil, fmt.Errorf("codegen: unknown var kind %d", v.Kind)
	}
}

// instanceVarBinding computes a GEP through the current `self` pointer
// for an instance variable read/assign target.
func (f *Frame) instanceVarBinding(name string) (*Binding, error) {
	self, ok := f.vars["self"]
	if !ok {
		return nil, fmt.Errorf("codegen: instance var %q referenced outside a method", name)
	}
	selfType := f.selfType
	idx := f.gen.types.IndexOfInstanceVar(selfType, name)
	if idx < 0 {
		return nil, fmt.Errorf("codegen: unknown instance var %q on type %d", name, selfType)
	}
	fieldType, _ := f.gen.types.LookupInstanceVar(selfType, name)
	structTy, err := llvmStructType(f.gen.types, selfType)
	if err != nil {
		return nil, err
	}
	selfPtr := self.Ptr
	if !self.TreatedAsPointer {
		loaded := f.nextTemp()
		f.emitf("  %s = load ptr, ptr %s\n", loaded, self.Ptr)
		selfPtr = loaded
	}
	ptr := f.gep(structTy, selfPtr, 0, idx)
	return &Binding{Ptr: ptr, DeclaredType: fieldType, TreatedAsPointer: f.gen.types.PassedByVal(fieldType)}, nil
}

// lazyGlobalBinding returns the internal global backing a global/class
// variable or constant. It does not create one: a read of a name that
// has no global yet is an error.
func (g *Generator) lazyGlobalBinding(name string) (*Binding, error) {
	slot, ok := g.globals[name]
	if !ok {
		return nil, fmt.Errorf("codegen: reference to undeclared global %q", name)
	}
	return &Binding{Ptr: slot.name, DeclaredType: slot.ty}, nil
}

// emitVarRead reads a variable reference at the node's requested type.
func (f *Frame) emitVarRead(n *ast.Node) (string, string, error) {
	b, err := f.resolveVar(n.Var)
	if err != nil {
		return "", "", err
	}
	return f.readBinding(b, n.Type)
}

// readBinding reads a binding whose declared type is b.DeclaredType,
// coerced to requested. This is shared between plain variable reads
// and CastedVar nodes.
func (f *Frame) readBinding(b *Binding, requested types.TypeID) (string, string, error) {
	in := f.gen.types
	declared := b.DeclaredType

	if declared == requested {
		return f.loadSlot(b)
	}
	if in.Nilable(declared) && in.NilType(requested) {
		isNull, err := f.nullPointer(mustLoadPtr(f, b))
		if err != nil {
			return "", "", err
		}
		return isNull, "i1", nil
	}
	if in.Union(declared) && !in.Union(requested) {
		return f.narrowUnionRead(b, requested)
	}
	if in.Hierarchy(requested) && (in.Class(declared) || declared == requested) {
		return f.boxHierarchy(b, requested)
	}
	if in.Nilable(requested) && declared == in.NilableType(requested) {
		return f.widenToNilable(b, requested)
	}
	// Fall back to a direct load; the type checker guarantees this is
	// only reached when declared and requested already agree on repr.
	return f.loadSlot(b)
}

func mustLoadPtr(f *Frame, b *Binding) string {
	if b.TreatedAsPointer {
		return b.Ptr
	}
	loaded := f.nextTemp()
	f.emitf("  %s = load ptr, ptr %s\n", loaded, b.Ptr)
	return loaded
}

// loadSlot loads a binding's current value, or returns its pointer
// directly when the slot already IS the value (treated-as-pointer
// bindings and unions, which always live behind a pointer).
func (f *Frame) loadSlot(b *Binding) (string, string, error) {
	if b.TreatedAsPointer || f.gen.types.Union(b.DeclaredType) {
		return b.Ptr, "ptr", nil
	}
	ty, err := llvmValueType(f.gen.types, b.DeclaredType)
	if err != nil {
		return "", "", err
	}
	out := f.nextTemp()
	f.emitf("  %s = load %s, ptr %s\n", out, ty, b.Ptr)
	return out, ty, nil
}

// narrowUnionRead bit-casts a union value slot to a concrete arm's
// pointer type and loads it (unless the arm is itself by-val).
func (f *Frame) narrowUnionRead(b *Binding, arm types.TypeID) (string, string, error) {
	valPtr, err := f.unionValuePtr(b.Ptr, b.DeclaredType)
	if err != nil {
		return "", "", err
	}
	if f.gen.types.PassedByVal(arm) {
		return valPtr, "ptr", nil
	}
	armTy, err := llvmValueType(f.gen.types, arm)
	if err != nil {
		return "", "", err
	}
	out := f.nextTemp()
	f.emitf("  %s = load %s, ptr %s\n", out, armTy, valPtr)
	return out, armTy, nil
}

// boxHierarchy wraps a concrete class value into the open hierarchy
// {type_id, opaque_ptr} representation.
func (f *Frame) boxHierarchy(b *Binding, hierarchyTy types.TypeID) (string, string, error) {
	ptr, _, err := f.loadSlot(b)
	if err != nil {
		return "", "", err
	}
	boxed, err := f.boxHierarchyValue(ptr, b.DeclaredType)
	if err != nil {
		return "", "", err
	}
	return boxed, "{ i32, ptr }", nil
}

// widenToNilable reads a concrete pointer-representable value as its
// T | Nil wrapper (a plain pointer; non-null by construction here).
func (f *Frame) widenToNilable(b *Binding, _ types.TypeID) (string, string, error) {
	return f.loadSlot(b)
}

// emitCastedVarRead reads through the intermediate the type checker
// inserts: the same coercion table as a plain variable read, driven by
// the inner variable's declared type and the CastedVar node's (the
// type checker's narrower) requested type.
func (f *Frame) emitCastedVarRead(n *ast.Node) (string, string, error) {
	inner := n.Casted.Inner
	b, err := f.resolveVar(inner.Var)
	if err != nil {
		return "", "", err
	}
	return f.readBinding(b, n.Type)
}

// emitAssign lowers an assignment: the
// target's slot (declaring fresh locals on first assignment) is
// written via codegenAssign, which always widens through
// assign_to_union when target and value types differ.
func (f *Frame) emitAssign(n *ast.Node) (string, string, error) {
	val, valTy, err := f.emitExpr(n.Assign.Value)
	if err != nil {
		return "", "", err
	}
	target := n.Assign.Target
	switch target.Kind {
	case ast.KindVar, ast.KindCastedVar:
		v := target.Var
		if target.Kind == ast.KindCastedVar {
			v = target.Casted.Inner.Var
		}
		// A first assignment declares the slot at the target's own
		// resolved type (the checker's union/nilable widening lives
		// there), falling back to the value's type for plain locals.
		declared := target.Type
		if declared == types.NoTypeID {
			declared = n.Assign.Value.Type
		}
		ptr, err := f.assignTargetSlot(v, declared)
		if err != nil {
			return "", "", err
		}
		if err := f.codegenAssign(ptr.Ptr, ptr.DeclaredType, n.Assign.Value.Type, val); err != nil {
			return "", "", err
		}
	case ast.KindPointerPrimitive:
		if target.Pointer.Op != ast.PointerSet && target.Pointer.Op != ast.PointerAddr {
			return "", "", fmt.Errorf("codegen: invalid assignment target pointer op %d", target.Pointer.Op)
		}
		ptrVal, _, err := f.emitExpr(target.Pointer.Pointer)
		if err != nil {
			return "", "", err
		}
		elem, err := f.elemTypeOf(target.Pointer.Pointer)
		if err != nil {
			return "", "", err
		}
		if err := f.codegenAssign(ptrVal, elem, n.Assign.Value.Type, val); err != nil {
			return "", "", err
		}
	default:
		return "", "", fmt.Errorf("codegen: invalid assignment target kind %d", target.Kind)
	}
	return val, valTy, nil
}

// assignTargetSlot resolves (declaring if needed) the binding a write
// targets, splitting into instance-var / global-or-class-var / local.
func (f *Frame) assignTargetSlot(v ast.Var, valueType types.TypeID) (*Binding, error) {
	switch v.Kind {
	case ast.VarInstance:
		return f.instanceVarBinding(v.Name)
	case ast.VarGlobal, ast.VarClass, ast.VarConstant:
		return f.gen.declareOrLazyGlobal(v.Name, valueType)
	case ast.VarLocal:
		if b, ok := f.vars[v.Name]; ok {
			return b, nil
		}
		ty, err := llvmValueType(f.gen.types, valueType)
		if err != nil {
			return nil, err
		}
		ptr := f.alloca(ty, v.Name)
		// By-val structs/unions bind as their slot pointer, matching the
		// ABI that passes them indirectly.
		b := &Binding{Ptr: ptr, DeclaredType: valueType, TreatedAsPointer: f.gen.types.PassedByVal(valueType)}
		f.vars[v.Name] = b
		return b, nil
	default:
		return nil, fmt.Errorf("codegen: unknown var kind %d", v.Kind)
	}
}

// declareOrLazyGlobal creates the internal global for a global/class
// variable or constant the first time it is assigned to, if a
// constant engine hasn't already created it.
func (g *Generator) declareOrLazyGlobal(name string, ty types.TypeID) (*Binding, error) {
	if slot, ok := g.globals[name]; ok {
		return &Binding{Ptr: slot.name, DeclaredType: slot.ty}, nil
	}
	llvmTy, err := llvmValueType(g.types, ty)
	if err != nil {
		return nil, err
	}
	gname := g.nextGlobalName()
	fmt.Fprintf(&g.buf, "%s = internal global %s zeroinitializer\n", gname, llvmTy)
	g.globals[name] = &globalSlot{name: gname, ty: ty}
	g.globalOrder = append(g.globalOrder, name)
	return &Binding{Ptr: gname, DeclaredType: ty}, nil
}

// codegenAssign stores value into ptr: direct store
// when types agree (loading first for unions, to copy the whole
// tagged value rather than alias it), otherwise widen via
// assign_to_union.
func (f *Frame) codegenAssign(ptr string, targetType, valueType types.TypeID, value string) error {
	if targetType == valueType {
		if f.gen.types.Union(targetType) {
			ty, err := unionLLVMType(f.gen.types, targetType)
			if err != nil {
				return err
			}
			loaded := f.nextTemp()
			f.emitf("  %s = load %s, ptr %s\n", loaded, ty, value)
			f.emitf("  store %s %s, ptr %s\n", ty, loaded, ptr)
			return nil
		}
		ty, err := llvmValueType(f.gen.types, targetType)
		if err != nil {
			return err
		}
		f.emitf("  store %s %s, ptr %s\n", ty, value, ptr)
		return nil
	}
	return f.assignToUnion(ptr, targetType, valueType, value)
}
