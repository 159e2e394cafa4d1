// Package symbols is the minimal identity layer the generator consumes:
// stable ids for defs and methods, and the mangled-name construction
// that gives every monomorphized IR function a deterministic, unique
// name. Name resolution, scoping, and visibility belong to the (out of
// scope) symbol table the real frontend builds.
package symbols

// SymbolID identifies a def (function/method) by its declaration site.
// It is independent of any concrete receiver type: the same SymbolID is
// shared by every monomorphization of a generic-over-receiver method.
type SymbolID uint32

// NoSymbolID marks the absence of a symbol reference.
const NoSymbolID SymbolID = 0

// IsValid reports whether the symbol ID refers to a real declaration.
func (id SymbolID) IsValid() bool { return id != NoSymbolID }
