package codegen

import (
	"fmt"
	"strings"

	"ember/internal/types"
)

// llvmType maps a language type to its value-form LLVM type string: the
// representation a variable of that type is stored and passed as.
// Union types lower to an anonymous tagged struct; nilable types lower
// to the pointer type of their non-nil member; everything else follows
// its natural scalar/aggregate shape.
func llvmType(in *types.Interner, id types.TypeID) (string, error) {
	if id == types.NoTypeID {
		return "void", nil
	}
	tt, ok := in.Lookup(id)
	if !ok {
		return "", fmt.Errorf("codegen: unknown type id %d", id)
	}
	switch tt.Kind {
	case types.KindVoid, types.KindNoReturn:
		return "void", nil
	case types.KindNil:
		return "ptr", nil
	case types.KindBool:
		return "i1", nil
	case types.KindChar:
		// Characters are byte-wide code units; see the width decision in
		// DESIGN.md.
		return "i8", nil
	case types.KindInt, types.KindFloat:
		return scalarWidthType(tt)
	case types.KindPointer:
		return "ptr", nil
	case types.KindCStruct:
		return llvmStructType(in, id)
	case types.KindCUnion:
		return fmt.Sprintf("[%d x i8]", max(tt.LLVMSize, 1)), nil
	case types.KindClass:
		if tt.Hierarchy {
			return "{ i32, ptr }", nil
		}
		return "ptr", nil
	case types.KindUnion:
		return unionLLVMType(in, id)
	case types.KindNilable:
		return "ptr", nil
	default:
		return "", fmt.Errorf("codegen: unsupported type kind %s", tt.Kind)
	}
}

// llvmValueType is llvmType with void widened to i8 so callers always
// get something an alloca/load/store can operate on.
func llvmValueType(in *types.Interner, id types.TypeID) (string, error) {
	ty, err := llvmType(in, id)
	if err != nil {
		return "", err
	}
	if ty == "void" {
		return "i8", nil
	}
	return ty, nil
}

// llvmArgType is the ABI form of id: identical to llvmValueType except
// by-val C structs/unions pass as "ptr" (with a byval attribute on the
// callee's parameter).
func llvmArgType(in *types.Interner, id types.TypeID) (string, error) {
	if in.PassedByVal(id) {
		return "ptr", nil
	}
	return llvmValueType(in, id)
}

// llvmStructType returns the struct CONTENTS for a C-struct/class
// object: the literal aggregate a malloc/alloca of the object's fields
// should use, as opposed to llvmType's value-form ("ptr" for a class).
func llvmStructType(in *types.Interner, id types.TypeID) (string, error) {
	tt, ok := in.Lookup(id)
	if !ok {
		return "", fmt.Errorf("codegen: unknown type id %d", id)
	}
	if tt.Kind != types.KindCStruct && tt.Kind != types.KindClass {
		return "", fmt.Errorf("codegen: llvm_struct_type on non-struct kind %s", tt.Kind)
	}
	fieldTypes := make([]string, 0, len(tt.InstanceVars))
	for _, f := range tt.InstanceVars {
		ft, err := llvmValueType(in, f.Type)
		if err != nil {
			return "", err
		}
		fieldTypes = append(fieldTypes, ft)
	}
	return "{ " + strings.Join(fieldTypes, ", ") + " }", nil
}

// unionLLVMType returns the anonymous tagged-struct type for a union:
// { i32, [N x i8] } sized to cover the largest member.
func unionLLVMType(in *types.Interner, id types.TypeID) (string, error) {
	tt, ok := in.Lookup(id)
	if !ok {
		return "", fmt.Errorf("codegen: unknown type id %d", id)
	}
	if tt.Kind != types.KindUnion {
		return "", fmt.Errorf("codegen: tagged-union layout requested for %s type", tt.Kind)
	}
	payload := max(tt.LLVMSize-4, 1)
	return fmt.Sprintf("{ i32, [%d x i8] }", payload), nil
}

func scalarWidthType(tt types.Type) (string, error) {
	switch tt.Kind {
	case types.KindInt:
		switch tt.Width {
		case 8:
			return "i8", nil
		case 16:
			return "i16", nil
		case 32:
			return "i32", nil
		case 64:
			return "i64", nil
		default:
			return "", fmt.Errorf("codegen: unsupported int width %d", tt.Width)
		}
	case types.KindFloat:
		switch tt.Width {
		case 32:
			return "float", nil
		case 64:
			return "double", nil
		default:
			return "", fmt.Errorf("codegen: unsupported float width %d", tt.Width)
		}
	default:
		return "", fmt.Errorf("codegen: not a scalar kind %s", tt.Kind)
	}
}
