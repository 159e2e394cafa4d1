package main

import (
	"strings"
	"testing"

	"ember/internal/codegen"
)

func generateFromJSON(t *testing.T, src string) string {
	t.Helper()
	prog, typesIn, syms, err := loadProgram([]byte(src))
	if err != nil {
		t.Fatalf("loadProgram: %v", err)
	}
	ir, err := codegen.Generate(prog, typesIn, syms)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return ir
}

func TestLoadProgram_Arithmetic(t *testing.T) {
	ir := generateFromJSON(t, `{
		"main": {"kind": "binary", "op": "add",
			"left":  {"kind": "literal", "literal": "int32", "int": 1},
			"right": {"kind": "literal", "literal": "int32", "int": 2}}
	}`)
	if !strings.Contains(ir, "add i32 1, 2") {
		t.Fatalf("missing addition:\n%s", ir)
	}
	if !strings.Contains(ir, "define i32 @__crystal_main") {
		t.Fatalf("missing entry point:\n%s", ir)
	}
}

func TestLoadProgram_BlockWithBreak(t *testing.T) {
	ir := generateFromJSON(t, `{
		"defs": [
			{"name": "each", "body": {"kind": "seq", "body": [
				{"kind": "yield", "args": [{"kind": "literal", "literal": "int32", "int": 1}]},
				{"kind": "yield", "args": [{"kind": "literal", "literal": "int32", "int": 2}]},
				{"kind": "yield", "args": [{"kind": "literal", "literal": "int32", "int": 3}]}
			]}}
		],
		"main": {"kind": "seq", "body": [
			{"kind": "assign", "target": {"kind": "var", "name": "sum"},
				"value": {"kind": "literal", "literal": "int32", "int": 0}},
			{"kind": "call", "name": "each", "block": {"params": ["i"], "body": {"kind": "seq", "body": [
				{"kind": "if",
					"cond": {"kind": "binary", "op": "eq",
						"left": {"kind": "var", "name": "i"},
						"right": {"kind": "literal", "literal": "int32", "int": 2}},
					"then": {"kind": "break"}},
				{"kind": "assign", "target": {"kind": "var", "name": "sum"},
					"value": {"kind": "binary", "op": "add",
						"left": {"kind": "var", "name": "sum"},
						"right": {"kind": "var", "name": "i"}}}
			]}}},
			{"kind": "var", "name": "sum"}
		]}
	}`)
	for _, want := range []string{"block.done", "icmp eq i32", "ret i32"} {
		if !strings.Contains(ir, want) {
			t.Fatalf("missing %q:\n%s", want, ir)
		}
	}
	if strings.Contains(ir, "@each") {
		t.Fatalf("block-taking def leaked a standalone function:\n%s", ir)
	}
}

func TestLoadProgram_ConstantInitChain(t *testing.T) {
	ir := generateFromJSON(t, `{
		"defs": [
			{"name": "compute", "return": "Int32",
				"body": {"kind": "literal", "literal": "int32", "int": 99}}
		],
		"constants": [
			{"name": "MAX", "type": "Int32", "init": {"kind": "call", "name": "compute"}}
		],
		"main": {"kind": "binary", "op": "add",
			"left":  {"kind": "const", "name": "MAX", "type": "Int32"},
			"right": {"kind": "literal", "literal": "int32", "int": 1}}
	}`)
	for _, want := range []string{
		"@const.MAX = internal global i32 zeroinitializer",
		"call i32 @compute.1()",
		"store i32",
	} {
		if !strings.Contains(ir, want) {
			t.Fatalf("missing %q:\n%s", want, ir)
		}
	}
}

func TestLoadProgram_UnionThroughIf(t *testing.T) {
	ir := generateFromJSON(t, `{
		"types": [
			{"name": "IntOrBool", "kind": "union", "members": ["Int32", "Bool"]}
		],
		"main_type": "IntOrBool",
		"main": {"kind": "if", "type": "IntOrBool",
			"cond": {"kind": "literal", "literal": "bool", "bool": true},
			"then": {"kind": "literal", "literal": "int32", "int": 1},
			"else": {"kind": "literal", "literal": "bool", "bool": false}}
	}`)
	if !strings.Contains(ir, "{ i32, [4 x i8] }") {
		t.Fatalf("missing tagged union layout:\n%s", ir)
	}
}

func TestLoadProgram_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"no main", `{}`},
		{"unknown type", `{"types": [{"name": "X", "kind": "union", "members": ["Nope"]}], "main": {"kind": "nop"}}`},
		{"unknown def", `{"main": {"kind": "call", "name": "ghost"}}`},
		{"undeclared variable", `{"main": {"kind": "var", "name": "x"}}`},
		{"bad expression kind", `{"main": {"kind": "wat"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, _, err := loadProgram([]byte(tt.src)); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}
