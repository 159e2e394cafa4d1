package symbols

import (
	"strconv"

	"ember/internal/types"
)

// Def describes one method/function declaration site, independent of
// any concrete receiver type it may later be specialized against.
type Def struct {
	ID    SymbolID
	Name  string
	Owner types.TypeID // NoTypeID for top-level defs
}

// MangledName builds the deterministic, unique name the lazily-created
// IR function for a monomorphization of def is cached and emitted
// under: the def's identity (name plus declaration id, so overload
// sets sharing a name stay distinct even at the top level) and the
// concrete receiver type that specialized it. Only dot separators, so
// the result is a plain unquoted IR symbol.
func MangledName(def Def, receiver types.TypeID) string {
	name := def.Name + "." + strconv.Itoa(int(def.ID))
	if receiver != types.NoTypeID {
		name += "." + strconv.Itoa(int(receiver))
	}
	return name
}
