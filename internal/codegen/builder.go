package codegen

import (
	"fmt"
	"strings"

	"ember/internal/types"
)

// builderBuf is a plain text accumulator for one basic block's worth
// of IR. Using a dedicated buffer per logical block (rather than a
// single function-wide buffer plus a movable "insertion point") is how
// this emitter gets the same effect as an LLVM builder's
// save-position/insert/restore-position dance while only ever
// appending text: alloca() always appends to the frame's allocaBuf no
// matter which buffer the caller is currently writing into.
type builderBuf struct {
	b strings.Builder
}

func (s *builderBuf) writef(format string, args ...interface{}) {
	fmt.Fprintf(&s.b, format, args...)
}

func (s *builderBuf) String() string { return s.b.String() }

// alloca emits a stack slot of type ty into the function's alloca
// block regardless of what block is currently being emitted, so every
// slot dominates all of its uses. It returns the pointer naming the
// new slot.
func (f *Frame) alloca(ty string, hint string) string {
	name := f.nextTemp()
	f.allocaBuf.writef("  %s = alloca %s ; %s\n", name, ty, hint)
	return name
}

// gep wraps a typed getelementptr with integer indices over an
// explicit aggregate type.
func (f *Frame) gep(aggTy, ptr string, indices ...int) string {
	out := f.nextTemp()
	parts := make([]string, 0, len(indices))
	for _, i := range indices {
		parts = append(parts, fmt.Sprintf("i32 %d", i))
	}
	f.emitf("  %s = getelementptr inbounds %s, ptr %s, %s\n", out, aggTy, ptr, strings.Join(parts, ", "))
	return out
}

// malloc allocates count (default 1) elements of type ty, zeroed,
// preferring a user-provided __crystal_malloc over the intrinsic
// fallback.
func (f *Frame) malloc(ty string, count string) string {
	size := f.gen.sizeOfLLVM(ty)
	n := count
	if n == "" {
		n = "1"
	}
	bytes := f.nextTemp()
	f.emitf("  %s = mul i64 %s, %d\n", bytes, n, size)
	out := f.nextTemp()
	if f.gen.externs["__crystal_malloc"] {
		bytes32 := f.nextTemp()
		f.emitf("  %s = trunc i64 %s to i32\n", bytes32, bytes)
		f.emitf("  %s = call ptr @__crystal_malloc(i32 %s)\n", out, bytes32)
	} else {
		f.emitf("  %s = call ptr @malloc(i64 %s)\n", out, bytes)
	}
	f.emitf("  call void @llvm.memset.p0.i64(ptr %s, i8 0, i64 %s, i1 false)\n", out, bytes)
	return out
}

// reallocPtr reallocates buf to newCount elements of ty, preferring a
// user-provided __crystal_realloc over the intrinsic fallback.
func (f *Frame) reallocPtr(ty, buf, newCount string) string {
	size := f.gen.sizeOfLLVM(ty)
	bytes := f.nextTemp()
	f.emitf("  %s = mul i64 %s, %d\n", bytes, newCount, size)
	out := f.nextTemp()
	if f.gen.externs["__crystal_realloc"] {
		bytes32 := f.nextTemp()
		f.emitf("  %s = trunc i64 %s to i32\n", bytes32, bytes)
		f.emitf("  %s = call ptr @__crystal_realloc(ptr %s, i32 %s)\n", out, buf, bytes32)
	} else {
		f.emitf("  %s = call ptr @realloc(ptr %s, i64 %s)\n", out, buf, bytes)
	}
	return out
}

// memsetZero zero-initializes n bytes starting at ptr.
func (f *Frame) memsetZero(ptr string, n int) {
	f.emitf("  call void @llvm.memset.p0.i64(ptr %s, i8 0, i64 %d, i1 false)\n", ptr, n)
}

// sizeOfLLVM returns a rough byte size for a value-form LLVM type
// string, used to size malloc/realloc calls for scalars and pointers.
// Aggregate sizes (structs, unions) are looked up from the type oracle
// via sizeOf instead wherever a types.TypeID is in hand.
func (g *Generator) sizeOfLLVM(ty string) int {
	switch ty {
	case "i1", "i8":
		return 1
	case "i16":
		return 2
	case "i32", "float":
		return 4
	case "i64", "double", "ptr":
		return 8
	default:
		return 8
	}
}

// sizeOf returns the byte size the type oracle recorded for id.
func (g *Generator) sizeOf(id types.TypeID) int {
	return g.types.LLVMSize(id)
}
