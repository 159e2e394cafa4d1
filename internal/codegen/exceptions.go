package codegen

import (
	"fmt"

	"ember/internal/ast"
	"ember/internal/types"
)

// emitExceptionHandler lowers a begin/rescue/ensure construct: the
// protected body runs under an active handler so
// call lowering chooses `invoke` over `call`; the catch block extracts
// the landing pad's type id and cond-branches through each rescue in
// turn; an ensure clause, if present, runs after the result merges and
// its own value is discarded.
func (f *Frame) emitExceptionHandler(n *ast.Node) (string, string, error) {
	h := n.Handler
	in := f.gen.types

	catchBlock := f.nextBlock("handler.catch")
	joinBlock := f.nextBlock("handler.join")

	resultIsUnion := in.Union(n.Type)
	var unionSlot, unionTy string
	if resultIsUnion {
		var err error
		unionTy, err = unionLLVMType(in, n.Type)
		if err != nil {
			return "", "", err
		}
		unionSlot = f.alloca(unionTy, "handler.result")
	}

	f.pushHandler(handlerFrame{catchBlock: catchBlock, node: n})
	bodyVal, bodyTy, bodyEnd, bodyDiverged, err := f.branchResult(h.Body)
	f.popHandler()
	if err != nil {
		return "", "", err
	}

	var table []phiEntry
	if !bodyDiverged {
		if resultIsUnion {
			if err := f.assignToUnion(unionSlot, n.Type, h.Body.Type, bodyVal); err != nil {
				return "", "", err
			}
		} else if bodyVal != "" {
			table = append(table, phiEntry{block: bodyEnd, value: bodyVal, ty: bodyTy})
		}
		f.emitf("  br label %%%s\n", joinBlock)
	}

	f.startBlock(catchBlock)
	f.terminated = false
	lpVal := f.nextTemp()
	f.emitf("  %s = landingpad { ptr, i32 } catch ptr null\n", lpVal)
	unwindObj := f.nextTemp()
	f.emitf("  %s = extractvalue { ptr, i32 } %s, 0\n", unwindObj, lpVal)
	typeID := f.nextTemp()
	f.emitf("  %s = extractvalue { ptr, i32 } %s, 1\n", typeID, lpVal)

	allDiverge := bodyDiverged
	for _, r := range h.Rescues {
		rescueBlock := f.nextBlock("handler.rescue")
		nextBlock := f.nextBlock("handler.next")
		if len(r.Types) == 0 {
			f.emitf("  br label %%%s\n", rescueBlock)
		} else {
			cond, _, err := f.matchAnyTag(typeID, r.Types)
			if err != nil {
				return "", "", err
			}
			f.emitf("  br i1 %s, label %%%s, label %%%s\n", cond, rescueBlock, nextBlock)
		}

		f.startBlock(rescueBlock)
		f.terminated = false
		if r.VarName != "" {
			f.vars[r.VarName] = &Binding{Ptr: unwindObj, DeclaredType: types.NoTypeID, TreatedAsPointer: true}
		}
		rescueVal, rescueTy, rescueEnd, rescueDiverged, err := f.branchResult(r.Body)
		if err != nil {
			return "", "", err
		}
		if !rescueDiverged {
			if resultIsUnion {
				if err := f.assignToUnion(unionSlot, n.Type, r.Body.Type, rescueVal); err != nil {
					return "", "", err
				}
			} else if rescueVal != "" {
				table = append(table, phiEntry{block: rescueEnd, value: rescueVal, ty: rescueTy})
			}
			f.emitf("  br label %%%s\n", joinBlock)
		}
		allDiverge = allDiverge && rescueDiverged

		f.startBlock(nextBlock)
		f.terminated = false
	}

	f.emitf("  call ptr @_Unwind_RaiseException(ptr %s)\n", unwindObj)
	f.terminate("  unreachable\n")

	f.startBlock(joinBlock)
	if allDiverge {
		// The protected body and every rescue transferred control away,
		// so nothing ever branches to the join.
		f.terminate("  unreachable\n")
		return "", "void", nil
	}
	f.terminated = false
	if len(table) == 0 && !resultIsUnion {
		if h.Ensure != nil {
			if _, _, err := f.emitExpr(h.Ensure); err != nil {
				return "", "", err
			}
		}
		return "", "void", nil
	}

	var result, resultTy string
	if resultIsUnion {
		result = unionSlot
		resultTy = "ptr"
	} else {
		resultTy, err = llvmValueType(in, n.Type)
		if err != nil {
			return "", "", err
		}
		if len(table) == 1 {
			result = table[0].value
		} else {
			entries := make([]string, len(table))
			for i, e := range table {
				entries[i] = fmt.Sprintf("[ %s, %%%s ]", e.value, e.block)
			}
			result = f.nextTemp()
			f.emitf("  %s = phi %s %s\n", result, resultTy, joinList(entries))
		}
	}

	if h.Ensure != nil {
		// The ensure clause's own value is discarded; @last stays the
		// merged result computed above.
		if _, _, err := f.emitExpr(h.Ensure); err != nil {
			return "", "", err
		}
	}
	return result, resultTy, nil
}
