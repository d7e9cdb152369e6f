package compiler

import (
	"strings"
	"testing"
)

func parseSource(t *testing.T, src string) *Program {
	t.Helper()
	tokens, err := Lex(src)
	if err != nil {
		t.Fatalf("lex error: %v", err)
	}
	prog, err := Parse(tokens, src)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return prog
}

func TestParseContract(t *testing.T) {
	src := `use std::math::{add, sub};
use std::collections::HashMap;

contract Token {
    storage total: u64;
    storage balances: HashMap<Address, u64>;

    fn transfer(to: Address, amount: u64) -> Result<()> {
        let bal = self.balances.get(caller()).unwrap_or(0);
        let next = sub(bal, amount)?;
        self.balances.insert(caller(), next);
        Ok(())
    }

    fn total_supply() -> u64 {
        return self.total;
    }
}
`
	prog := parseSource(t, src)

	if len(prog.Uses) != 2 {
		t.Fatalf("expected 2 use declarations, got %d", len(prog.Uses))
	}
	if got := prog.Uses[0].String(); got != "use std::math::{add, sub}" {
		t.Errorf("first use = %q", got)
	}

	c := prog.Contract
	if c.Name != "Token" {
		t.Errorf("contract name = %q", c.Name)
	}
	if len(c.Storage) != 2 {
		t.Fatalf("expected 2 storage fields, got %d", len(c.Storage))
	}
	if c.Storage[0].Type.Kind != TypeU64 {
		t.Errorf("total should be u64, got %s", c.Storage[0].Type)
	}
	m := c.Storage[1].Type
	if m.Kind != TypeMap || m.Key.Kind != TypeAddress || m.Elem.Kind != TypeU64 {
		t.Errorf("balances should be HashMap<Address, u64>, got %s", m)
	}

	if len(c.Funcs) != 2 {
		t.Fatalf("expected 2 functions, got %d", len(c.Funcs))
	}
	fn := c.Funcs[0]
	if fn.Name != "transfer" || len(fn.Params) != 2 {
		t.Errorf("transfer signature wrong: %s with %d params", fn.Name, len(fn.Params))
	}
	if fn.Return == nil || fn.Return.Kind != TypeResult {
		t.Errorf("transfer should return Result, got %v", fn.Return)
	}
	if len(fn.Body.Stmts) != 4 {
		t.Fatalf("transfer body should hold 4 statements, got %d", len(fn.Body.Stmts))
	}
	// The trailing Ok(()) parses as an implicit return.
	ret, ok := fn.Body.Stmts[3].(*ReturnStmt)
	if !ok {
		t.Fatalf("last statement should be a return, got %T", fn.Body.Stmts[3])
	}
	if _, ok := ret.Value.(*OkExpr); !ok {
		t.Errorf("implicit return value should be Ok, got %T", ret.Value)
	}
}

func TestParseStatements(t *testing.T) {
	src := `contract C {
    storage n: u64;

    fn run(x: u64) {
        let y = x + 1;
        if y > 10 {
            self.n = y;
        } else {
            self.n = 0;
        }
        while y > 0 {
            y = y - 1;
        }
        require(y == 0, "loop must finish");
        emit("Done", y);
    }
}
`
	prog := parseSource(t, src)
	stmts := prog.Contract.Funcs[0].Body.Stmts
	if len(stmts) != 5 {
		t.Fatalf("expected 5 statements, got %d", len(stmts))
	}
	if _, ok := stmts[0].(*LetStmt); !ok {
		t.Errorf("stmt 0 should be let, got %T", stmts[0])
	}
	ifStmt, ok := stmts[1].(*IfStmt)
	if !ok {
		t.Fatalf("stmt 1 should be if, got %T", stmts[1])
	}
	if ifStmt.Else == nil {
		t.Error("if should carry an else block")
	}
	if _, ok := stmts[2].(*WhileStmt); !ok {
		t.Errorf("stmt 2 should be while, got %T", stmts[2])
	}
	req, ok := stmts[3].(*RequireStmt)
	if !ok {
		t.Fatalf("stmt 3 should be require, got %T", stmts[3])
	}
	if req.Msg != "loop must finish" {
		t.Errorf("require message = %q", req.Msg)
	}
	if _, ok := stmts[4].(*ExprStmt); !ok {
		t.Errorf("stmt 4 should be an expression statement, got %T", stmts[4])
	}
}

func TestParseUnaryMinus(t *testing.T) {
	src := `contract C {
    fn f(a: u64, b: u64) -> u64 {
        return -a * b;
    }
}
`
	prog := parseSource(t, src)
	ret := prog.Contract.Funcs[0].Body.Stmts[0].(*ReturnStmt)

	// Unary minus binds tighter than *.
	mul, ok := ret.Value.(*BinaryExpr)
	if !ok || mul.Op != STAR {
		t.Fatalf("top node should be *, got %s", ret.Value)
	}
	neg, ok := mul.Left.(*UnaryExpr)
	if !ok || neg.Op != MINUS {
		t.Fatalf("left of * should be unary -, got %s", mul.Left)
	}
	if _, ok := neg.Right.(*Ident); !ok {
		t.Errorf("operand of - should be an identifier, got %s", neg.Right)
	}
}

func TestParsePrecedence(t *testing.T) {
	src := `contract C {
    fn f(a: u64, b: u64, c: u64) -> bool {
        return a + b * c == a && b < c || !true;
    }
}
`
	prog := parseSource(t, src)
	ret := prog.Contract.Funcs[0].Body.Stmts[0].(*ReturnStmt)

	// || binds loosest.
	or, ok := ret.Value.(*LogicalExpr)
	if !ok || or.Op != OR_LOGICAL {
		t.Fatalf("top node should be ||, got %s", ret.Value)
	}
	and, ok := or.Left.(*LogicalExpr)
	if !ok || and.Op != AND_LOGICAL {
		t.Fatalf("left of || should be &&, got %s", or.Left)
	}
	eq, ok := and.Left.(*BinaryExpr)
	if !ok || eq.Op != EQUALS {
		t.Fatalf("left of && should be ==, got %s", and.Left)
	}
	sum, ok := eq.Left.(*BinaryExpr)
	if !ok || sum.Op != PLUS {
		t.Fatalf("left of == should be +, got %s", eq.Left)
	}
	if prod, ok := sum.Right.(*BinaryExpr); !ok || prod.Op != STAR {
		t.Fatalf("* should bind tighter than +, got %s", sum.Right)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "Missing Semicolon",
			src:  "contract C {\n fn f() {\n let x = 1\n let y = 2;\n }\n}",
			want: ";",
		},
		{
			name: "Two Contracts",
			src:  "contract A {}\ncontract B {}",
			want: "",
		},
		{
			name: "Bad Assignment Target",
			src:  "contract C {\n fn f() {\n 1 = 2;\n }\n}",
			want: "assignment",
		},
		{
			name: "Use After Contract",
			src:  "contract C {}\nuse std::math::add;",
			want: "",
		},
		{
			name: "Map Needs Two Types",
			src:  "contract C {\n storage m: HashMap<u64>;\n}",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := Lex(tt.src)
			if err != nil {
				t.Fatalf("lex error: %v", err)
			}
			_, err = Parse(tokens, tt.src)
			if err == nil {
				t.Fatal("expected a parse error")
			}
			if tt.want != "" && !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestParseErrorShowsSourceLine(t *testing.T) {
	src := "contract C {\n fn f() {\n let x = ;\n }\n}"
	tokens, err := Lex(src)
	if err != nil {
		t.Fatalf("lex error: %v", err)
	}
	_, err = Parse(tokens, src)
	if err == nil {
		t.Fatal("expected a parse error")
	}
	if !strings.Contains(err.Error(), "|>") {
		t.Errorf("error should carry the source line snippet, got: %v", err)
	}
}
