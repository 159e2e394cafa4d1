package codegen

import (
	"fmt"

	"ember/internal/ast"
	"ember/internal/types"
)

// emitPointerPrimitive lowers the raw-pointer operations the language
// exposes directly.
func (f *Frame) emitPointerPrimitive(n *ast.Node) (string, string, error) {
	p := n.Pointer
	switch p.Op {
	case ast.PointerMalloc:
		return f.emitPointerMalloc(n)
	case ast.PointerRealloc:
		return f.emitPointerRealloc(n)
	case ast.PointerGet:
		return f.emitPointerGet(n)
	case ast.PointerSet:
		return f.emitPointerSet(n)
	case ast.PointerAddr:
		return f.emitPointerAddr(n)
	case ast.PointerNull:
		return "null", "ptr", nil
	case ast.PointerToInt:
		return f.emitPointerToInt(n)
	case ast.PointerFromInt:
		return f.emitPointerFromInt(n)
	case ast.PointerAdd:
		return f.emitPointerAdd(n)
	default:
		return "", "", fmt.Errorf("codegen: unknown pointer op %d", p.Op)
	}
}

func (f *Frame) elemTypeOf(n *ast.Node) (types.TypeID, error) {
	elem := f.gen.types.NilableType(n.Type)
	if elem == types.NoTypeID {
		// NilableType already returns the Elem of any type, raw pointers
		// included; this path only tells an unknown type id apart from a
		// type with no Elem.
		tt, ok := f.gen.types.Lookup(n.Type)
		if !ok {
			return types.NoTypeID, fmt.Errorf("codegen: unknown pointer type %d", n.Type)
		}
		return tt.Elem, nil
	}
	return elem, nil
}

func (f *Frame) emitPointerMalloc(n *ast.Node) (string, string, error) {
	elem, err := f.elemTypeOf(n)
	if err != nil {
		return "", "", err
	}
	elemTy, err := llvmValueType(f.gen.types, elem)
	if err != nil {
		return "", "", err
	}
	count := "1"
	if n.Pointer.Count != nil {
		c, _, err := f.emitExpr(n.Pointer.Count)
		if err != nil {
			return "", "", err
		}
		count = c
	}
	return f.malloc(elemTy, count), "ptr", nil
}

func (f *Frame) emitPointerRealloc(n *ast.Node) (string, string, error) {
	elem, err := f.elemTypeOf(n)
	if err != nil {
		return "", "", err
	}
	elemTy, err := llvmValueType(f.gen.types, elem)
	if err != nil {
		return "", "", err
	}
	buf, _, err := f.emitExpr(n.Pointer.Pointer)
	if err != nil {
		return "", "", err
	}
	count, _, err := f.emitExpr(n.Pointer.Count)
	if err != nil {
		return "", "", err
	}
	return f.reallocPtr(elemTy, buf, count), "ptr", nil
}

func (f *Frame) emitPointerGet(n *ast.Node) (string, string, error) {
	ptr, _, err := f.emitExpr(n.Pointer.Pointer)
	if err != nil {
		return "", "", err
	}
	ty, err := llvmValueType(f.gen.types, n.Type)
	if err != nil {
		return "", "", err
	}
	out := f.nextTemp()
	f.emitf("  %s = load %s, ptr %s\n", out, ty, ptr)
	return out, ty, nil
}

func (f *Frame) emitPointerSet(n *ast.Node) (string, string, error) {
	ptr, _, err := f.emitExpr(n.Pointer.Pointer)
	if err != nil {
		return "", "", err
	}
	val, valTy, err := f.emitExpr(n.Pointer.Value)
	if err != nil {
		return "", "", err
	}
	elem, err := f.elemTypeOf(n.Pointer.Pointer)
	if err != nil {
		return "", "", err
	}
	if err := f.codegenAssign(ptr, elem, n.Pointer.Value.Type, val); err != nil {
		return "", "", err
	}
	return val, valTy, nil
}

// emitPointerAddr takes the address of an assignable place. For a
// variable this is simply its backing slot's pointer, never loaded.
func (f *Frame) emitPointerAddr(n *ast.Node) (string, string, error) {
	place := n.Pointer.Pointer
	switch place.Kind {
	case ast.KindVar:
		b, err := f.resolveVar(place.Var)
		if err != nil {
			return "", "", err
		}
		return b.Ptr, "ptr", nil
	case ast.KindCastedVar:
		b, err := f.resolveVar(place.Casted.Inner.Var)
		if err != nil {
			return "", "", err
		}
		return b.Ptr, "ptr", nil
	default:
		return "", "", fmt.Errorf("codegen: address-of unsupported place kind %d", place.Kind)
	}
}

func (f *Frame) emitPointerToInt(n *ast.Node) (string, string, error) {
	ptr, _, err := f.emitExpr(n.Pointer.Pointer)
	if err != nil {
		return "", "", err
	}
	ty, err := llvmValueType(f.gen.types, n.Type)
	if err != nil {
		return "", "", err
	}
	out := f.nextTemp()
	f.emitf("  %s = ptrtoint ptr %s to %s\n", out, ptr, ty)
	return out, ty, nil
}

func (f *Frame) emitPointerFromInt(n *ast.Node) (string, string, error) {
	val, valTy, err := f.emitExpr(n.Pointer.Value)
	if err != nil {
		return "", "", err
	}
	out := f.nextTemp()
	f.emitf("  %s = inttoptr %s %s to ptr\n", out, valTy, val)
	return out, "ptr", nil
}

func (f *Frame) emitPointerAdd(n *ast.Node) (string, string, error) {
	ptr, _, err := f.emitExpr(n.Pointer.Pointer)
	if err != nil {
		return "", "", err
	}
	offset, _, err := f.emitExpr(n.Pointer.Value)
	if err != nil {
		return "", "", err
	}
	elem, err := f.elemTypeOf(n)
	if err != nil {
		return "", "", err
	}
	elemTy, err := llvmValueType(f.gen.types, elem)
	if err != nil {
		return "", "", err
	}
	out := f.nextTemp()
	f.emitf("  %s = getelementptr inbounds %s, ptr %s, i64 %s\n", out, elemTy, ptr, offset)
	return out, "ptr", nil
}
