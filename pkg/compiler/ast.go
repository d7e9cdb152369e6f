package compiler

import (
	"fmt"
	"strings"
)

// TypeKind enumerates the value types of SwiftSC-Lang.
type TypeKind int

const (
	TypeU64 TypeKind = iota
	TypeBool
	TypeAddress
	TypeUnit   // ()
	TypeString // string literals only; not a storable value type
	TypeMap    // HashMap<Key, Elem>
	TypeResult // Result<Elem>; Elem nil means "any" (the type of Err(..))
)

// Type describes a SwiftSC-Lang type. Key is set for maps,
// Elem for maps and results.
type Type struct {
	Kind TypeKind
	Key  *Type
	Elem *Type
}

var (
	typeU64     = &Type{Kind: TypeU64}
	typeBool    = &Type{Kind: TypeBool}
	typeAddress = &Type{Kind: TypeAddress}
	typeUnit    = &Type{Kind: TypeUnit}
)

func (t *Type) String() string {
	switch t.Kind {
	case TypeU64:
		return "u64"
	case TypeBool:
		return "bool"
	case TypeAddress:
		return "Address"
	case TypeUnit:
		return "()"
	case TypeString:
		return "string"
	case TypeMap:
		return fmt.Sprintf("HashMap<%s, %s>", t.Key, t.Elem)
	case TypeResult:
		if t.Elem == nil {
			return "Result<_>"
		}
		return fmt.Sprintf("Result<%s>", t.Elem)
	}
	return "unknown"
}

// Equal reports structural type equality. A Result with a nil Elem
// (the type of a bare Err) matches any Result.
func (t *Type) Equal(other *Type) bool {
	if t == nil || other == nil {
		return t == other
	}
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case TypeMap:
		return t.Key.Equal(other.Key) && t.Elem.Equal(other.Elem)
	case TypeResult:
		if t.Elem == nil || other.Elem == nil {
			return true
		}
		return t.Elem.Equal(other.Elem)
	}
	return true
}

// IsScalar reports whether the type fits in a single wasm value.
func (t *Type) IsScalar() bool {
	switch t.Kind {
	case TypeU64, TypeBool, TypeAddress:
		return true
	}
	return false
}

//  Top-level declarations

// Program is one parsed source file: use declarations plus one contract.
type Program struct {
	Uses     []*UseDecl
	Contract *Contract
}

// UseDecl is a std import:
//
//	use std::math::sub;
//	use std::math::{add, sub};
//	use std::collections::HashMap;
type UseDecl struct {
	Path  []string // e.g. ["std", "math"]
	Names []string // e.g. ["add", "sub"]
	Line  int
}

func (u *UseDecl) String() string {
	return fmt.Sprintf("use %s::{%s}", strings.Join(u.Path, "::"), strings.Join(u.Names, ", "))
}

// Contract is the single contract of a source file.
type Contract struct {
	Name    string
	Storage []*StorageDecl
	Funcs   []*FuncDecl
	Line    int
}

// StorageDecl declares one persistent field:
//
//	storage balances: HashMap<Address, u64>;
type StorageDecl struct {
	Name string
	Type *Type
	Line int
}

// Param is one function parameter.
type Param struct {
	Name string
	Type *Type
}

// FuncDecl is one contract function. Return is nil for "()".
type FuncDecl struct {
	Name   string
	Params []Param
	Return *Type
	Body   *Block
	Line   int
}

//  Statement nodes

// Stmt is implemented by every statement node.
type Stmt interface {
	stmtNode()
	String() string
}

// Block is a brace-delimited statement list.
type Block struct {
	Stmts []Stmt
}

func (*Block) stmtNode() {}
func (b *Block) String() string {
	parts := make([]string, len(b.Stmts))
	for i, s := range b.Stmts {
		parts[i] = s.String()
	}
	return "{ " + strings.Join(parts, " ") + " }"
}

// LetStmt binds a new local:
//
//	let sender = caller();
//	let bal: u64 = 0;
type LetStmt struct {
	Name string
	Type *Type // nil when inferred
	Value Expr
	Line int
}

func (*LetStmt) stmtNode() {}
func (l *LetStmt) String() string {
	if l.Type != nil {
		return fmt.Sprintf("let %s: %s = %s;", l.Name, l.Type, l.Value)
	}
	return fmt.Sprintf("let %s = %s;", l.Name, l.Value)
}

// AssignStmt writes to a local or a scalar storage field.
type AssignStmt struct {
	Target Expr // Ident or StorageRef
	Value  Expr
	Line   int
}

func (*AssignStmt) stmtNode()        {}
func (a *AssignStmt) String() string { return fmt.Sprintf("%s = %s;", a.Target, a.Value) }

// IfStmt is if/else; Else is nil, another Block, or a Block wrapping
// a nested IfStmt for "else if".
type IfStmt struct {
	Cond Expr
	Then *Block
	Else *Block
	Line int
}

func (*IfStmt) stmtNode() {}
func (i *IfStmt) String() string {
	if i.Else != nil {
		return fmt.Sprintf("if %s %s else %s", i.Cond, i.Then, i.Else)
	}
	return fmt.Sprintf("if %s %s", i.Cond, i.Then)
}

// WhileStmt is a pre-test loop.
type WhileStmt struct {
	Cond Expr
	Body *Block
	Line int
}

func (*WhileStmt) stmtNode()        {}
func (w *WhileStmt) String() string { return fmt.Sprintf("while %s %s", w.Cond, w.Body) }

// ReturnStmt returns from the current function. Value is nil for "return;".
type ReturnStmt struct {
	Value Expr
	Line  int
}

func (*ReturnStmt) stmtNode() {}
func (r *ReturnStmt) String() string {
	if r.Value == nil {
		return "return;"
	}
	return fmt.Sprintf("return %s;", r.Value)
}

// RequireStmt reverts the transaction when its condition is false:
//
//	require(amount > 0, "zero amount");
type RequireStmt struct {
	Cond Expr
	Msg  string // optional; empty when omitted
	Line int
}

func (*RequireStmt) stmtNode() {}
func (r *RequireStmt) String() string {
	if r.Msg != "" {
		return fmt.Sprintf("require(%s, %q);", r.Cond, r.Msg)
	}
	return fmt.Sprintf("require(%s);", r.Cond)
}

// ExprStmt evaluates an expression for its effect, e.g. an insert call.
type ExprStmt struct {
	E    Expr
	Line int
}

func (*ExprStmt) stmtNode()        {}
func (e *ExprStmt) String() string { return e.E.String() + ";" }

//  Expression nodes

// Expr is implemented by every node that produces a value.
type Expr interface {
	exprNode()
	String() string
}

// IntLit is a compile-time integer constant.
type IntLit struct {
	Value uint64
	Line  int
}

func (*IntLit) exprNode()        {}
func (l *IntLit) String() string { return fmt.Sprintf("%d", l.Value) }

// StrLit is a string constant "...". Valid only as a require message
// or the first argument of emit.
type StrLit struct {
	Value string
	Line  int
}

func (*StrLit) exprNode()        {}
func (s *StrLit) String() string { return fmt.Sprintf("%q", s.Value) }

// BoolLit is "true" or "false".
type BoolLit struct {
	Value bool
	Line  int
}

func (*BoolLit) exprNode()        {}
func (b *BoolLit) String() string { return fmt.Sprintf("%t", b.Value) }

// Ident is a read of a named local or parameter.
type Ident struct {
	Name string
	Line int
}

func (*Ident) exprNode()        {}
func (i *Ident) String() string { return i.Name }

// StorageRef is a read of a contract storage field: self.balances.
type StorageRef struct {
	Field string
	Line  int
}

func (*StorageRef) exprNode()        {}
func (s *StorageRef) String() string { return "self." + s.Field }

// BinaryExpr represents Left Op Right for arithmetic and comparison.
type BinaryExpr struct {
	Op    TokenType
	Left  Expr
	Right Expr
	Line  int
}

func (*BinaryExpr) exprNode() {}
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

// LogicalExpr represents Left && Right or Left || Right.
// It is separate from BinaryExpr to allow short-circuit evaluation
// in code generation.
type LogicalExpr struct {
	Op    TokenType
	Left  Expr
	Right Expr
	Line  int
}

func (*LogicalExpr) exprNode() {}
func (l *LogicalExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", l.Left, l.Op, l.Right)
}

// UnaryExpr represents !Right or -Right.
type UnaryExpr struct {
	Op    TokenType
	Right Expr
	Line  int
}

func (*UnaryExpr) exprNode()        {}
func (u *UnaryExpr) String() string { return fmt.Sprintf("(%s%s)", u.Op, u.Right) }

// CallExpr is a free call: a builtin, an imported std::math function,
// or another function of the same contract.
type CallExpr struct {
	Name string
	Args []Expr
	Line int
}

func (*CallExpr) exprNode() {}
func (c *CallExpr) String() string {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", c.Name, strings.Join(parts, ", "))
}

// MethodCall is Recv.Name(Args): map methods and Result.unwrap_or.
type MethodCall struct {
	Recv Expr
	Name string
	Args []Expr
	Line int
}

func (*MethodCall) exprNode() {}
func (m *MethodCall) String() string {
	parts := make([]string, len(m.Args))
	for i, a := range m.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s.%s(%s)", m.Recv, m.Name, strings.Join(parts, ", "))
}

// TryExpr is Inner?: unwrap a Result, reverting on Err.
type TryExpr struct {
	Inner Expr
	Line  int
}

func (*TryExpr) exprNode()        {}
func (t *TryExpr) String() string { return t.Inner.String() + "?" }

// OkExpr is Ok(Inner) or Ok(()). Inner is nil for the unit form.
type OkExpr struct {
	Inner Expr
	Line  int
}

func (*OkExpr) exprNode() {}
func (o *OkExpr) String() string {
	if o.Inner == nil {
		return "Ok(())"
	}
	return fmt.Sprintf("Ok(%s)", o.Inner)
}

// ErrExpr is Err(Inner); the payload is a u64 revert code.
type ErrExpr struct {
	Inner Expr
	Line  int
}

func (*ErrExpr) exprNode()        {}
func (e *ErrExpr) String() string { return fmt.Sprintf("Err(%s)", e.Inner) }
