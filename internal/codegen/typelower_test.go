package codegen

import (
	"testing"

	"ember/internal/types"
)

func TestLLVMType_Scalars(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()
	u8 := in.DefineInt(8, true)
	i16 := in.DefineInt(16, false)
	f32 := in.DefineFloat(32)
	f64 := in.DefineFloat(64)

	tests := []struct {
		name string
		id   types.TypeID
		want string
	}{
		{"void", b.Void, "void"},
		{"no_return", b.NoReturn, "void"},
		{"nil", b.Nil, "ptr"},
		{"bool", b.Bool, "i1"},
		{"char", b.Char, "i8"},
		{"int32", b.Int32, "i32"},
		{"int64", b.Int64, "i64"},
		{"uint8", u8, "i8"},
		{"int16", i16, "i16"},
		{"float32", f32, "float"},
		{"float64", f64, "double"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := llvmType(in, tt.id)
			if err != nil {
				t.Fatalf("llvmType: %v", err)
			}
			if got != tt.want {
				t.Errorf("llvmType(%s) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestLLVMType_Composites(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()

	obj := in.DefineClass("Obj", []types.InstanceVar{{Name: "n", Type: b.Int32}}, types.NoTypeID)
	sub := in.DefineClass("Sub", nil, obj)
	hier := in.DefineHierarchy(obj, []types.TypeID{sub})
	cs := in.DefineCStruct("Point", []types.InstanceVar{{Name: "x", Type: b.Int32}, {Name: "y", Type: b.Int32}})
	cu := in.DefineCUnion("Raw", []types.InstanceVar{{Name: "i", Type: b.Int64}, {Name: "b", Type: b.Bool}})
	u := in.DefineUnion([]types.TypeID{b.Int32, b.Int64})
	nb := in.DefineNilable(obj)
	ptr := in.DefinePointer(b.Int32)

	tests := []struct {
		name string
		id   types.TypeID
		want string
	}{
		{"class value form", obj, "ptr"},
		{"hierarchy value form", hier, "{ i32, ptr }"},
		{"c struct", cs, "{ i32, i32 }"},
		{"c union", cu, "[8 x i8]"},
		{"union", u, "{ i32, [8 x i8] }"},
		{"nilable", nb, "ptr"},
		{"pointer", ptr, "ptr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := llvmType(in, tt.id)
			if err != nil {
				t.Fatalf("llvmType: %v", err)
			}
			if got != tt.want {
				t.Errorf("llvmType(%s) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}

	// ABI form: by-val structs/unions pass as a pointer.
	if got, _ := llvmArgType(in, cs); got != "ptr" {
		t.Errorf("llvmArgType(struct) = %q, want ptr", got)
	}
	if got, _ := llvmArgType(in, u); got != "{ i32, [8 x i8] }" {
		t.Errorf("llvmArgType(union) = %q, want aggregate", got)
	}

	// Struct contents vs value form for a class.
	if got, _ := llvmStructType(in, obj); got != "{ i32 }" {
		t.Errorf("llvmStructType(class) = %q, want { i32 }", got)
	}
}

func TestLLVMType_UnionPayloadCoversLargestMember(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()
	small := in.DefineUnion([]types.TypeID{b.Bool, b.Char})
	big := in.DefineUnion([]types.TypeID{b.Int32, b.Int64})

	if got, _ := unionLLVMType(in, small); got != "{ i32, [1 x i8] }" {
		t.Errorf("small union = %q", got)
	}
	if got, _ := unionLLVMType(in, big); got != "{ i32, [8 x i8] }" {
		t.Errorf("big union = %q", got)
	}
	if _, err := unionLLVMType(in, b.Int32); err == nil {
		t.Error("unionLLVMType on a non-union must fail")
	}
}

func TestLLVMType_VoidWidensForValueUse(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()
	if got, _ := llvmValueType(in, b.Void); got != "i8" {
		t.Errorf("llvmValueType(void) = %q, want i8", got)
	}
	if got, _ := llvmType(in, types.NoTypeID); got != "void" {
		t.Errorf("llvmType(NoTypeID) = %q, want void", got)
	}
}
