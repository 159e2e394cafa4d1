package codegen

import (
	"fmt"

	"ember/internal/ast"
	"ember/internal/types"
)

// Binding is a variable slot: the pointer backing its storage, the
// type it was declared with, and whether the slot itself IS the value
// (by-val structs, and a receiver that already arrived as a pointer)
// rather than something that must be loaded.
type Binding struct {
	Ptr              string
	DeclaredType     types.TypeID
	TreatedAsPointer bool
}

// phiEntry records one predecessor block/value pair for a rendezvous
// phi. When the rendezvous sink is a union slot instead, the table is
// simply unused (the union slot is written to directly at each arm).
type phiEntry struct {
	block string
	value string
	ty    string
}

// handlerFrame is one entry of the exception handler stack: call
// lowering consults the top entry to decide `invoke` vs `call`.
type handlerFrame struct {
	catchBlock string
	node       *ast.Node // the ExceptionHandler node that pushed this frame
}

// blockActivation is the block context stashed at a call-with-block
// site and consumed by `yield`. Two distinct
// rendezvous points are in play: a `return` inside the caller-supplied
// block body bypasses both the callee and this call, returning from
// the method that wrote the call-with-block statement (enclosing*); a
// `break` inside the block body only cuts the call itself short,
// rejoining at the callee's own completion rendezvous (completion*),
// the same place its normal fall-through converges.
type blockActivation struct {
	params []string
	body   *ast.Node
	vars   map[string]*Binding

	enclosingReturnBlock     string
	enclosingReturnTable     []phiEntry
	enclosingReturnType      types.TypeID
	enclosingReturnUnionSlot string

	completionBlock     string
	completionTable     []phiEntry
	completionType      types.TypeID
	completionUnionSlot string
}

// Frame is the Emission Context for one function body being emitted:
// all the mutable per-function state: variable
// environment, current receiver type, return/break rendezvous state,
// the handler stack, and the block-activation stack. It also hosts the
// builder façade's alloca-redirection buffer.
type Frame struct {
	gen *Generator

	mangledName string
	selfType    types.TypeID

	vars map[string]*Binding

	allocaBuf builderBuf

	// constBuf is non-nil only for the frame designated as the const
	// chain owner (__crystal_main); everyone else's const block is an
	// always-empty pass-through in the fixed alloca->const->entry
	// block chain.
	constBuf *builderBuf

	body builderBuf

	// cur is the insertion point: emitf/startBlock/terminate write
	// through it. It points at body except while a deferred constant
	// initializer is being spliced into constBuf (emitConstant swaps it
	// and swaps it back, acquire-restore).
	cur *builderBuf

	blockN int

	// funcReturnType/funcReturnUnionSlot back a direct (non-block-
	// redirected) `return` and the implicit end-of-body fallthrough;
	// see finishReturn.
	funcReturnType      types.TypeID
	funcReturnUnionSlot string

	returnBlock     string
	returnTable     []phiEntry
	returnType      types.TypeID
	returnUnionSlot string

	breakBlock     string
	breakTable     []phiEntry
	breakType      types.TypeID
	breakUnionSlot string

	handlers    []handlerFrame
	usesHandler bool
	blocks      []*blockActivation

	terminated bool
	lastLabel  string
}

func newFrame(g *Generator, mangledName string, selfType types.TypeID) *Frame {
	f := &Frame{
		gen:         g,
		mangledName: mangledName,
		selfType:    selfType,
		vars:        make(map[string]*Binding),
	}
	f.cur = &f.body
	return f
}

func (f *Frame) nextTemp() string { return f.gen.nextTemp() }

func (f *Frame) nextBlock(label string) string {
	f.blockN++
	return fmt.Sprintf("%s.%d", label, f.blockN)
}

// emitf writes at the function's current insertion point, i.e. the
// block currently being constructed. Alloca emission goes through
// Frame.alloca instead, which always targets allocaBuf regardless of
// what emitf is currently writing, modeling an LLVM builder's scoped
// position swap.
func (f *Frame) emitf(format string, args ...interface{}) {
	f.cur.writef(format, args...)
}

// startBlock opens a new labeled block in the body and remembers its
// label as the current predecessor for any phi this Frame emits next,
// since output is flat text rather than a block-graph the builder
// could ask "what block am I in" of directly.
func (f *Frame) startBlock(label string) {
	f.cur.writef("%s:\n", label)
	f.lastLabel = label
}

func (f *Frame) terminate(format string, args ...interface{}) {
	f.cur.writef(format, args...)
	f.terminated = true
}

// pushHandler/popHandler maintain the exception handler stack in
// strict LIFO order paired with the AST recursion frame that
// introduced them.
func (f *Frame) pushHandler(h handlerFrame) {
	f.handlers = append(f.handlers, h)
	f.usesHandler = true
}
func (f *Frame) popHandler() {
	if len(f.handlers) == 0 {
		panic(fmt.Errorf("codegen: handler stack underflow"))
	}
	f.handlers = f.handlers[:len(f.handlers)-1]
}
func (f *Frame) topHandler() (handlerFrame, bool) {
	if len(f.handlers) == 0 {
		return handlerFrame{}, false
	}
	return f.handlers[len(f.handlers)-1], true
}

func (f *Frame) pushBlockActivation(b *blockActivation) { f.blocks = append(f.blocks, b) }
func (f *Frame) popBlockActivation() *blockActivation {
	if len(f.blocks) == 0 {
		panic(fmt.Errorf("codegen: block activation stack underflow"))
	}
	top := f.blocks[len(f.blocks)-1]
	f.blocks = f.blocks[:len(f.blocks)-1]
	return top
}
func (f *Frame) topBlockActivation() (*blockActivation, bool) {
	if len(f.blocks) == 0 {
		return nil, false
	}
	return f.blocks[len(f.blocks)-1], true
}
