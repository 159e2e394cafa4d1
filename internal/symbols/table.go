package symbols

import (
	"fmt"
	"sort"

	"fortio.org/safecast"
)

// Table aggregates the program's defs and the set of symbol literals
// (`:foo`) encountered during emission. Symbols are assigned ids by
// sorting the set and taking the 0-based index, matching the emitted
// `symbol_table` global's ordering: two modules built
// from the same source assign identical ids regardless of encounter
// order.
type Table struct {
	Defs    map[SymbolID]Def
	symbols map[string]struct{}
}

// NewTable builds an empty table.
func NewTable() *Table {
	return &Table{
		Defs:    make(map[SymbolID]Def, 64),
		symbols: make(map[string]struct{}, 16),
	}
}

// Declare registers a def and returns it unchanged for chaining.
func (t *Table) Declare(def Def) Def {
	t.Defs[def.ID] = def
	return def
}

// InternSymbol records a symbol literal's text; ids are only final
// once SortedSymbols is called, since id assignment depends on the
// complete set encountered across the whole module.
func (t *Table) InternSymbol(text string) {
	t.symbols[text] = struct{}{}
}

// SortedSymbols returns every interned symbol's text in ascending
// order; the index into this slice is the symbol's runtime id and the
// same slice backs the emitted `symbol_table` global array.
func (t *Table) SortedSymbols() []string {
	out := make([]string, 0, len(t.symbols))
	for s := range t.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// SymbolID looks up the runtime id assigned to a symbol literal: its
// index in SortedSymbols, recomputed on each call, so the id is only
// stable once every symbol of the module has been interned.
func (t *Table) SymbolID(text string) (int32, error) {
	for i, s := range t.SortedSymbols() {
		if s == text {
			idx, err := safecast.Conv[int32](i)
			if err != nil {
				return 0, fmt.Errorf("symbols: table overflow: %w", err)
			}
			return idx, nil
		}
	}
	return 0, fmt.Errorf("symbols: unknown symbol %q", text)
}
