package main

import (
	"encoding/json"
	"fmt"

	"ember/internal/ast"
	"ember/internal/codegen"
	"ember/internal/symbols"
	"ember/internal/types"
)

// The JSON program description is a thin stand-in for the real
// frontend: it names types by string, declares defs, and spells out
// expression trees. The loader resolves names, assigns symbol ids, and
// produces the fully typed AST codegen.Generate expects. It is
// deliberately simple: types must be declared before use, and a node
// whose type the loader cannot infer carries an explicit "type" field.

type jsonProgram struct {
	Types     []jsonType     `json:"types,omitempty"`
	Defs      []jsonDef      `json:"defs,omitempty"`
	Constants []jsonConstant `json:"constants,omitempty"`
	Main      *jsonExpr      `json:"main"`
	MainType  string         `json:"main_type,omitempty"`
}

type jsonType struct {
	Name     string      `json:"name"`
	Kind     string      `json:"kind"` // class | struct | cunion | union | nilable | hierarchy
	Fields   []jsonField `json:"fields,omitempty"`
	Members  []string    `json:"members,omitempty"`
	Elem     string      `json:"elem,omitempty"`
	Base     string      `json:"base,omitempty"`
	Subtypes []string    `json:"subtypes,omitempty"`
}

type jsonField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type jsonDef struct {
	Name   string      `json:"name"`
	Owner  string      `json:"owner,omitempty"`
	Params []jsonField `json:"params,omitempty"`
	Return string      `json:"return,omitempty"`
	Raises bool        `json:"raises,omitempty"`
	Body   *jsonExpr   `json:"body"`
}

type jsonConstant struct {
	Name string    `json:"name"`
	Type string    `json:"type"`
	Init *jsonExpr `json:"init"`
}

type jsonBlock struct {
	Params []string  `json:"params,omitempty"`
	Body   *jsonExpr `json:"body"`
}

type jsonExpr struct {
	Kind string `json:"kind"`
	Type string `json:"type,omitempty"` // explicit override where inference is too dumb

	Literal string  `json:"literal,omitempty"` // nil|bool|int32|int64|float64|char|string|symbol
	Int     int64   `json:"int,omitempty"`
	Bool    bool    `json:"bool,omitempty"`
	Float   float64 `json:"float,omitempty"`
	Str     string  `json:"str,omitempty"`

	Name string `json:"name,omitempty"`
	Op   string `json:"op,omitempty"`

	Left  *jsonExpr `json:"left,omitempty"`
	Right *jsonExpr `json:"right,omitempty"`
	Cond  *jsonExpr `json:"cond,omitempty"`
	Then  *jsonExpr `json:"then,omitempty"`
	Else  *jsonExpr `json:"else,omitempty"`
	Value *jsonExpr `json:"value,omitempty"`

	Target *jsonExpr `json:"target,omitempty"` // assign destination

	Body  []jsonExpr `json:"body,omitempty"` // seq / while body
	Args  []jsonExpr `json:"args,omitempty"`
	Block *jsonBlock `json:"block,omitempty"`
}

type programLoader struct {
	typesIn  *types.Interner
	syms     *symbols.Table
	named    map[string]types.TypeID
	defsByID map[symbols.SymbolID]*ast.Node
	targets  map[string][]symbols.SymbolID
	nextSym  symbols.SymbolID
}

func loadProgram(data []byte) (*codegen.Program, *types.Interner, *symbols.Table, error) {
	var jp jsonProgram
	if err := json.Unmarshal(data, &jp); err != nil {
		return nil, nil, nil, fmt.Errorf("parse program description: %w", err)
	}
	if jp.Main == nil {
		return nil, nil, nil, fmt.Errorf("program description has no main expression")
	}

	l := &programLoader{
		typesIn:  types.NewInterner(),
		syms:     symbols.NewTable(),
		named:    make(map[string]types.TypeID),
		defsByID: make(map[symbols.SymbolID]*ast.Node),
		targets:  make(map[string][]symbols.SymbolID),
		nextSym:  1,
	}
	b := l.typesIn.Builtins()
	l.named["Void"] = b.Void
	l.named["NoReturn"] = b.NoReturn
	l.named["Nil"] = b.Nil
	l.named["Bool"] = b.Bool
	l.named["Char"] = b.Char
	l.named["Int32"] = b.Int32
	l.named["Int64"] = b.Int64
	l.named["Float64"] = l.typesIn.DefineFloat(64)

	for _, jt := range jp.Types {
		if err := l.defineType(jt); err != nil {
			return nil, nil, nil, err
		}
	}

	prog := &codegen.Program{}

	// Declare every def before lowering any body so calls can resolve
	// forward references and overload sets.
	defNodes := make([]*ast.Node, len(jp.Defs))
	for i, jd := range jp.Defs {
		node, err := l.declareDef(jd)
		if err != nil {
			return nil, nil, nil, err
		}
		defNodes[i] = node
	}
	for i, jd := range jp.Defs {
		if jd.Body == nil {
			continue
		}
		env := make(map[string]types.TypeID, len(jd.Params)+1)
		if defNodes[i].Def.Owner != types.NoTypeID {
			env["self"] = defNodes[i].Def.Owner
		}
		for _, p := range defNodes[i].Def.Params {
			env[p.Name] = p.Type
		}
		body, err := l.lowerExpr(jd.Body, env)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("def %s: %w", jd.Name, err)
		}
		defNodes[i].Def.Body = body
	}
	prog.Defs = defNodes

	for _, jc := range jp.Constants {
		ct, err := l.resolveType(jc.Type)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("constant %s: %w", jc.Name, err)
		}
		init, err := l.lowerExpr(jc.Init, map[string]types.TypeID{})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("constant %s: %w", jc.Name, err)
		}
		prog.Constants = append(prog.Constants, codegen.Constant{Name: jc.Name, Type: ct, Init: init})
	}

	env := make(map[string]types.TypeID)
	main, err := l.lowerExpr(jp.Main, env)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("main: %w", err)
	}
	prog.Main = main
	prog.MainType = main.Type
	if jp.MainType != "" {
		mt, err := l.resolveType(jp.MainType)
		if err != nil {
			return nil, nil, nil, err
		}
		prog.MainType = mt
	}
	return prog, l.typesIn, l.syms, nil
}

func (l *programLoader) resolveType(name string) (types.TypeID, error) {
	if name == "" {
		return types.NoTypeID, nil
	}
	id, ok := l.named[name]
	if !ok {
		return types.NoTypeID, fmt.Errorf("unknown type %q (types must be declared before use)", name)
	}
	return id, nil
}

func (l *programLoader) defineType(jt jsonType) error {
	if _, exists := l.named[jt.Name]; exists {
		return fmt.Errorf("type %q declared twice", jt.Name)
	}
	fields := make([]types.InstanceVar, 0, len(jt.Fields))
	for _, f := range jt.Fields {
		ft, err := l.resolveType(f.Type)
		if err != nil {
			return fmt.Errorf("type %s field %s: %w", jt.Name, f.Name, err)
		}
		fields = append(fields, types.InstanceVar{Name: f.Name, Type: ft})
	}
	switch jt.Kind {
	case "class":
		base := types.NoTypeID
		if jt.Base != "" {
			b, err := l.resolveType(jt.Base)
			if err != nil {
				return err
			}
			base = b
		}
		l.named[jt.Name] = l.typesIn.DefineClass(jt.Name, fields, base)
	case "struct":
		l.named[jt.Name] = l.typesIn.DefineCStruct(jt.Name, fields)
	case "cunion":
		l.named[jt.Name] = l.typesIn.DefineCUnion(jt.Name, fields)
	case "union":
		members := make([]types.TypeID, 0, len(jt.Members))
		for _, m := range jt.Members {
			mt, err := l.resolveType(m)
			if err != nil {
				return fmt.Errorf("union %s: %w", jt.Name, err)
			}
			members = append(members, mt)
		}
		l.named[jt.Name] = l.typesIn.DefineUnion(members)
	case "nilable":
		elem, err := l.resolveType(jt.Elem)
		if err != nil {
			return fmt.Errorf("nilable %s: %w", jt.Name, err)
		}
		l.named[jt.Name] = l.typesIn.DefineNilable(elem)
	case "hierarchy":
		base, err := l.resolveType(jt.Base)
		if err != nil {
			return fmt.Errorf("hierarchy %s: %w", jt.Name, err)
		}
		subs := make([]types.TypeID, 0, len(jt.Subtypes))
		for _, s := range jt.Subtypes {
			st, err := l.resolveType(s)
			if err != nil {
				return fmt.Errorf("hierarchy %s: %w", jt.Name, err)
			}
			subs = append(subs, st)
		}
		l.named[jt.Name] = l.typesIn.DefineHierarchy(base, subs)
	default:
		return fmt.Errorf("type %s: unknown kind %q", jt.Name, jt.Kind)
	}
	return nil
}

func (l *programLoader) declareDef(jd jsonDef) (*ast.Node, error) {
	owner := types.NoTypeID
	if jd.Owner != "" {
		o, err := l.resolveType(jd.Owner)
		if err != nil {
			return nil, fmt.Errorf("def %s: %w", jd.Name, err)
		}
		owner = o
	}
	ret, err := l.resolveType(jd.Return)
	if err != nil {
		return nil, fmt.Errorf("def %s: %w", jd.Name, err)
	}
	params := make([]ast.Param, 0, len(jd.Params))
	for _, p := range jd.Params {
		pt, err := l.resolveType(p.Type)
		if err != nil {
			return nil, fmt.Errorf("def %s param %s: %w", jd.Name, p.Name, err)
		}
		params = append(params, ast.Param{Name: p.Name, Type: pt})
	}

	sym := l.nextSym
	l.nextSym++
	l.syms.Declare(symbols.Def{ID: sym, Name: jd.Name, Owner: owner})
	node := &ast.Node{
		Kind: ast.KindDef,
		Def: ast.Def{
			Sym:        sym,
			Name:       jd.Name,
			Owner:      owner,
			Params:     params,
			ReturnType: ret,
			Raises:     jd.Raises,
		},
	}
	l.defsByID[sym] = node
	l.targets[jd.Name] = append(l.targets[jd.Name], sym)
	return node, nil
}

var binaryOps = map[string]ast.PrimitiveOp{
	"add": ast.PrimAdd, "sub": ast.PrimSub, "mul": ast.PrimMul,
	"div": ast.PrimDiv, "rem": ast.PrimRem,
	"and": ast.PrimAnd, "or": ast.PrimOr, "xor": ast.PrimXor,
	"shl": ast.PrimShl, "shr": ast.PrimShr,
	"eq": ast.PrimEq, "ne": ast.PrimNe,
	"lt": ast.PrimLt, "le": ast.PrimLe, "gt": ast.PrimGt, "ge": ast.PrimGe,
}

func (l *programLoader) lowerExpr(je *jsonExpr, env map[string]types.TypeID) (*ast.Node, error) {
	if je == nil {
		return nil, nil
	}
	n, err := l.lowerExprInner(je, env)
	if err != nil {
		return nil, err
	}
	if je.Type != "" {
		override, err := l.resolveType(je.Type)
		if err != nil {
			return nil, err
		}
		n.Type = override
	}
	return n, nil
}

func (l *programLoader) lowerExprInner(je *jsonExpr, env map[string]types.TypeID) (*ast.Node, error) {
	b := l.typesIn.Builtins()
	switch je.Kind {
	case "literal":
		return l.lowerLiteral(je)
	case "var":
		ty, ok := env[je.Name]
		if !ok {
			return nil, fmt.Errorf("variable %q read before assignment", je.Name)
		}
		return &ast.Node{Kind: ast.KindVar, Type: ty, Var: ast.Var{Kind: ast.VarLocal, Name: je.Name}}, nil
	case "const":
		return &ast.Node{Kind: ast.KindVar, Var: ast.Var{Kind: ast.VarConstant, Name: je.Name}}, nil
	case "assign":
		value, err := l.lowerExpr(je.Value, env)
		if err != nil {
			return nil, err
		}
		target, err := l.lowerAssignTarget(je.Target, value.Type, env)
		if err != nil {
			return nil, err
		}
		return &ast.Node{Kind: ast.KindAssign, Type: value.Type, Assign: ast.Assign{Target: target, Value: value}}, nil
	case "binary":
		op, ok := binaryOps[je.Op]
		if !ok {
			return nil, fmt.Errorf("unknown binary op %q", je.Op)
		}
		left, err := l.lowerExpr(je.Left, env)
		if err != nil {
			return nil, err
		}
		right, err := l.lowerExpr(je.Right, env)
		if err != nil {
			return nil, err
		}
		ty := left.Type
		switch op {
		case ast.PrimEq, ast.PrimNe, ast.PrimLt, ast.PrimLe, ast.PrimGt, ast.PrimGe:
			ty = b.Bool
		}
		return &ast.Node{Kind: ast.KindPrimitive, Type: ty, Prim: ast.Primitive{Op: op, Left: left, Right: right}}, nil
	case "not", "neg":
		left, err := l.lowerExpr(je.Left, env)
		if err != nil {
			return nil, err
		}
		op := ast.PrimNot
		if je.Kind == "neg" {
			op = ast.PrimNeg
		}
		return &ast.Node{Kind: ast.KindPrimitive, Type: left.Type, Prim: ast.Primitive{Op: op, Left: left}}, nil
	case "if":
		cond, err := l.lowerExpr(je.Cond, env)
		if err != nil {
			return nil, err
		}
		then, err := l.lowerExpr(je.Then, env)
		if err != nil {
			return nil, err
		}
		els, err := l.lowerExpr(je.Else, env)
		if err != nil {
			return nil, err
		}
		ty := types.NoTypeID
		if then != nil && els != nil {
			ty = then.Type
		}
		return &ast.Node{Kind: ast.KindIf, Type: ty, If: ast.If{Cond: cond, Then: then, Else: els}}, nil
	case "while":
		cond, err := l.lowerExpr(je.Cond, env)
		if err != nil {
			return nil, err
		}
		body, err := l.lowerSeq(je.Body, env)
		if err != nil {
			return nil, err
		}
		return &ast.Node{Kind: ast.KindWhile, While: ast.While{Cond: cond, Body: body}}, nil
	case "seq":
		return l.lowerSeq(je.Body, env)
	case "call":
		return l.lowerCall(je, env)
	case "return":
		value, err := l.lowerExpr(je.Value, env)
		if err != nil {
			return nil, err
		}
		return &ast.Node{Kind: ast.KindReturn, Type: b.NoReturn, Return: ast.Return{Value: value}}, nil
	case "break":
		value, err := l.lowerExpr(je.Value, env)
		if err != nil {
			return nil, err
		}
		return &ast.Node{Kind: ast.KindBreak, Type: b.NoReturn, Break: ast.Break{Value: value}}, nil
	case "yield":
		args := make([]*ast.Node, 0, len(je.Args))
		for i := range je.Args {
			a, err := l.lowerExpr(&je.Args[i], env)
			if err != nil {
				return nil, err
			}
			args = append(args, a)
		}
		return &ast.Node{Kind: ast.KindYield, Yield: ast.Yield{Args: args}}, nil
	case "nop", "":
		return &ast.Node{Kind: ast.KindNop}, nil
	default:
		return nil, fmt.Errorf("unknown expression kind %q", je.Kind)
	}
}

func (l *programLoader) lowerLiteral(je *jsonExpr) (*ast.Node, error) {
	b := l.typesIn.Builtins()
	switch je.Literal {
	case "nil":
		return &ast.Node{Kind: ast.KindLiteral, Type: b.Nil, Literal: ast.Literal{Kind: ast.LiteralNil}}, nil
	case "bool":
		return &ast.Node{Kind: ast.KindLiteral, Type: b.Bool, Literal: ast.Literal{Kind: ast.LiteralBool, BoolVal: je.Bool}}, nil
	case "int32":
		return &ast.Node{Kind: ast.KindLiteral, Type: b.Int32, Literal: ast.Literal{Kind: ast.LiteralNumber, NumberVal: ast.NumberInt32, IntVal: je.Int}}, nil
	case "int64":
		return &ast.Node{Kind: ast.KindLiteral, Type: b.Int64, Literal: ast.Literal{Kind: ast.LiteralNumber, NumberVal: ast.NumberInt64, IntVal: je.Int}}, nil
	case "float64":
		f64, err := l.resolveType("Float64")
		if err != nil {
			return nil, err
		}
		return &ast.Node{Kind: ast.KindLiteral, Type: f64, Literal: ast.Literal{Kind: ast.LiteralNumber, NumberVal: ast.NumberFloat64, FloatVal: je.Float}}, nil
	case "char":
		if je.Str == "" {
			return nil, fmt.Errorf("char literal needs a one-character str field")
		}
		return &ast.Node{Kind: ast.KindLiteral, Type: b.Char, Literal: ast.Literal{Kind: ast.LiteralChar, CharVal: []rune(je.Str)[0]}}, nil
	case "string":
		ty, err := l.resolveType(je.Type)
		if err != nil || ty == types.NoTypeID {
			return nil, fmt.Errorf("string literal needs an explicit class type")
		}
		return &ast.Node{Kind: ast.KindLiteral, Type: ty, Literal: ast.Literal{Kind: ast.LiteralString, StringVal: je.Str}}, nil
	case "symbol":
		l.syms.InternSymbol(je.Str)
		return &ast.Node{Kind: ast.KindLiteral, Type: b.Int32, Literal: ast.Literal{Kind: ast.LiteralSymbol, SymbolVal: je.Str}}, nil
	default:
		return nil, fmt.Errorf("unknown literal kind %q", je.Literal)
	}
}

func (l *programLoader) lowerAssignTarget(je *jsonExpr, valueType types.TypeID, env map[string]types.TypeID) (*ast.Node, error) {
	if je == nil {
		return nil, fmt.Errorf("assignment has no target")
	}
	if je.Kind != "var" {
		return nil, fmt.Errorf("unsupported assignment target kind %q", je.Kind)
	}
	declared, ok := env[je.Name]
	if !ok {
		declared = valueType
		if je.Type != "" {
			override, err := l.resolveType(je.Type)
			if err != nil {
				return nil, err
			}
			declared = override
		}
		env[je.Name] = declared
	}
	return &ast.Node{Kind: ast.KindVar, Type: declared, Var: ast.Var{Kind: ast.VarLocal, Name: je.Name}}, nil
}

func (l *programLoader) lowerCall(je *jsonExpr, env map[string]types.TypeID) (*ast.Node, error) {
	targets, ok := l.targets[je.Name]
	if !ok {
		return nil, fmt.Errorf("call of undeclared def %q", je.Name)
	}
	args := make([]*ast.Node, 0, len(je.Args))
	for i := range je.Args {
		a, err := l.lowerExpr(&je.Args[i], env)
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	var block *ast.Block
	if je.Block != nil {
		blockEnv := make(map[string]types.TypeID, len(env)+len(je.Block.Params))
		for k, v := range env {
			blockEnv[k] = v
		}
		first := l.defsByID[targets[0]]
		for i, p := range je.Block.Params {
			// Block parameter types come from the callee's yield site; the
			// loader approximates with the callee's own parameter list when
			// present, else Int32.
			ty := l.typesIn.Builtins().Int32
			if i < len(first.Def.Params) {
				ty = first.Def.Params[i].Type
			}
			blockEnv[p] = ty
		}
		body, err := l.lowerExpr(je.Block.Body, blockEnv)
		if err != nil {
			return nil, err
		}
		block = &ast.Block{Params: je.Block.Params, Body: body}
		for k, v := range blockEnv {
			if _, fromCall := env[k]; fromCall {
				env[k] = v
			}
		}
	}
	retType := l.defsByID[targets[0]].Def.ReturnType
	return &ast.Node{
		Kind: ast.KindCall,
		Type: retType,
		Call: ast.Call{
			Name:     je.Name,
			Args:     args,
			Block:    block,
			Targets:  targets,
			IsRaises: l.defsByID[targets[0]].Def.Raises,
		},
	}, nil
}

func (l *programLoader) lowerSeq(body []jsonExpr, env map[string]types.TypeID) (*ast.Node, error) {
	children := make([]*ast.Node, 0, len(body))
	for i := range body {
		c, err := l.lowerExpr(&body[i], env)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	ty := types.NoTypeID
	if len(children) > 0 {
		ty = children[len(children)-1].Type
	}
	return &ast.Node{Kind: ast.KindExpressions, Type: ty, Seq: ast.Expressions{Body: children}}, nil
}
