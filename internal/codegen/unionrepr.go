package codegen

import (
	"fmt"

	"ember/internal/types"
)

// unionTypeIDPtr returns a pointer to the tag word of a union value
// stored at p: GEP p,0,0.
func (f *Frame) unionTypeIDPtr(p string, unionTy types.TypeID) (string, error) {
	llvmTy, err := unionLLVMType(f.gen.types, unionTy)
	if err != nil {
		return "", err
	}
	out := f.nextTemp()
	f.emitf("  %s = getelementptr inbounds %s, ptr %s, i32 0, i32 0\n", out, llvmTy, p)
	return out, nil
}

// unionValuePtr returns a pointer to the payload bytes of a union value
// stored at p: GEP p,0,1.
func (f *Frame) unionValuePtr(p string, unionTy types.TypeID) (string, error) {
	llvmTy, err := unionLLVMType(f.gen.types, unionTy)
	if err != nil {
		return "", err
	}
	out := f.nextTemp()
	f.emitf("  %s = getelementptr inbounds %s, ptr %s, i32 0, i32 1\n", out, llvmTy, p)
	return out, nil
}

// assignToUnion stores a value of type srcType into a slot of type
// dstType at pointer dst, widening as needed, split four ways by the
// source and destination classifications.
func (f *Frame) assignToUnion(dst string, dstType, srcType types.TypeID, srcVal string) error {
	in := f.gen.types
	switch {
	case in.Nilable(dstType):
		return f.assignToNilable(dst, dstType, srcType, srcVal)
	case in.Union(srcType):
		return f.copyUnionToUnion(dst, dstType, srcType, srcVal)
	case in.Nilable(srcType):
		return f.assignNilableIntoUnion(dst, dstType, srcType, srcVal)
	default:
		return f.assignConcreteIntoUnion(dst, dstType, srcType, srcVal)
	}
}

// assignToNilable stores srcVal directly as the nullable pointer.
// When srcVal encodes the nil literal as an integer zero it is
// inttoptr'd first.
func (f *Frame) assignToNilable(dst string, dstType, srcType types.TypeID, srcVal string) error {
	val := srcVal
	srcLLVM, err := llvmValueType(f.gen.types, srcType)
	if err != nil {
		return err
	}
	if srcLLVM != "ptr" {
		tmp := f.nextTemp()
		f.emitf("  %s = inttoptr %s %s to ptr\n", tmp, srcLLVM, srcVal)
		val = tmp
	}
	f.emitf("  store ptr %s, ptr %s\n", val, dst)
	return nil
}

// copyUnionToUnion widens a union-typed value into a (possibly wider)
// union slot: a whole-value load and store for the same union type,
// otherwise a copy of the tag and of the source's payload bytes.
func (f *Frame) copyUnionToUnion(dst string, dstType, srcType types.TypeID, srcVal string) error {
	dstLLVM, err := unionLLVMType(f.gen.types, dstType)
	if err != nil {
		return err
	}
	if dstType == srcType {
		loaded := f.nextTemp()
		f.emitf("  %s = load %s, ptr %s\n", loaded, dstLLVM, srcVal)
		f.emitf("  store %s %s, ptr %s\n", dstLLVM, loaded, dst)
		return nil
	}
	// Narrower source union widening into a broader destination union:
	// read its tag and payload bytes; type ids are global, so the tag is
	// stored unchanged.
	tagPtr, err := f.unionTypeIDPtr(srcVal, srcType)
	if err != nil {
		return err
	}
	tag := f.nextTemp()
	f.emitf("  %s = load i32, ptr %s\n", tag, tagPtr)
	valPtr, err := f.unionValuePtr(srcVal, srcType)
	if err != nil {
		return err
	}
	dstTagPtr, err := f.unionTypeIDPtr(dst, dstType)
	if err != nil {
		return err
	}
	f.emitf("  store i32 %s, ptr %s\n", tag, dstTagPtr)
	dstValPtr, err := f.unionValuePtr(dst, dstType)
	if err != nil {
		return err
	}
	srcPayloadBytes, err := unionPayloadBytes(f.gen.types, srcType)
	if err != nil {
		return err
	}
	f.emitf("  call void @llvm.memcpy.p0.p0.i64(ptr %s, ptr %s, i64 %d, i1 false)\n", dstValPtr, valPtr, srcPayloadBytes)
	return nil
}

// assignNilableIntoUnion boxes a nilable value (a raw nullable pointer)
// into a union slot: the tag becomes the nil type's id when the pointer
// is null, else the nilable's non-nil member's id.
func (f *Frame) assignNilableIntoUnion(dst string, dstType, srcType types.TypeID, srcVal string) error {
	elem := f.gen.types.NilableType(srcType)
	isNull, err := f.nullPointer(srcVal)
	if err != nil {
		return err
	}
	nilTag := f.gen.types.TypeIDOf(f.gen.builtins.Nil)
	elemTag := f.gen.types.TypeIDOf(elem)
	tag := f.nextTemp()
	f.emitf("  %s = select i1 %s, i32 %d, i32 %d\n", tag, isNull, nilTag, elemTag)
	tagPtr, err := f.unionTypeIDPtr(dst, dstType)
	if err != nil {
		return err
	}
	f.emitf("  store i32 %s, ptr %s\n", tag, tagPtr)
	valPtr, err := f.unionValuePtr(dst, dstType)
	if err != nil {
		return err
	}
	f.emitf("  store ptr %s, ptr %s\n", srcVal, valPtr)
	return nil
}

// assignConcreteIntoUnion stores a concrete-typed value under its own
// type_id tag and bit-cast-stores the value into the payload slot.
func (f *Frame) assignConcreteIntoUnion(dst string, dstType, srcType types.TypeID, srcVal string) error {
	tag := f.gen.types.TypeIDOf(srcType)
	tagPtr, err := f.unionTypeIDPtr(dst, dstType)
	if err != nil {
		return err
	}
	f.emitf("  store i32 %d, ptr %s\n", tag, tagPtr)
	valPtr, err := f.unionValuePtr(dst, dstType)
	if err != nil {
		return err
	}
	srcLLVM, err := llvmValueType(f.gen.types, srcType)
	if err != nil {
		return err
	}
	f.emitf("  store %s %s, ptr %s\n", srcLLVM, srcVal, valPtr)
	return nil
}

// boxHierarchyValue wraps a concrete class pointer value into the open
// hierarchy {type_id, opaque_ptr} representation. Shared by variable
// reads that narrow/widen through a hierarchy type and by receiver
// adaptation at call sites.
func (f *Frame) boxHierarchyValue(ptr string, concreteType types.TypeID) (string, error) {
	tag := f.gen.types.TypeIDOf(concreteType)
	slot := f.alloca("{ i32, ptr }", "hierarchy.box")
	tagPtr := f.gep("{ i32, ptr }", slot, 0, 0)
	f.emitf("  store i32 %d, ptr %s\n", tag, tagPtr)
	valPtr := f.gep("{ i32, ptr }", slot, 0, 1)
	f.emitf("  store ptr %s, ptr %s\n", ptr, valPtr)
	out := f.nextTemp()
	f.emitf("  %s = load { i32, ptr }, ptr %s\n", out, slot)
	return out, nil
}

// nullPointer compares ptr-to-int(v) == 0.
func (f *Frame) nullPointer(v string) (string, error) {
	i := f.nextTemp()
	f.emitf("  %s = ptrtoint ptr %s to i64\n", i, v)
	out := f.nextTemp()
	f.emitf("  %s = icmp eq i64 %s, 0\n", out, i)
	return out, nil
}

func unionPayloadBytes(in *types.Interner, unionTy types.TypeID) (int, error) {
	tt, ok := in.Lookup(unionTy)
	if !ok {
		return 0, fmt.Errorf("codegen: unknown union type id %d", unionTy)
	}
	if tt.LLVMSize < 4 {
		return 0, fmt.Errorf("codegen: union type id %d has implausible size %d", unionTy, tt.LLVMSize)
	}
	return tt.LLVMSize - 4, nil
}
