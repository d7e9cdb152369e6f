package compiler

import (
	"fmt"
	"strings"
)

// builtinSig describes a host builtin callable from contract code.
type builtinSig struct {
	params []*Type
	ret    *Type
}

var builtins = map[string]builtinSig{
	"caller":          {nil, typeAddress},
	"balance":         {[]*Type{typeAddress}, typeU64},
	"transfer_native": {[]*Type{typeAddress, typeU64}, typeUnit},
}

// mathFuncs are the checked-arithmetic functions of std::math.
var mathFuncs = map[string]bool{"add": true, "sub": true, "mul": true}

// checker holds the state of one Analyze run.
type checker struct {
	info *ContractInfo
	syms *SymbolTable
	fn   *FuncInfo // function currently being checked
}

// Analyze resolves imports, lays out storage, and type-checks every
// function body. The returned ContractInfo feeds code generation and
// security analysis.
func Analyze(prog *Program) (*ContractInfo, error) {
	c := &checker{
		info: &ContractInfo{
			Name:          prog.Contract.Name,
			storageByName: make(map[string]*StorageInfo),
			funcByName:    make(map[string]*FuncInfo),
			mathImports:   make(map[string]bool),
			exprTypes:     make(map[Expr]*Type),
		},
		syms: NewSymbolTable(),
	}

	if err := c.resolveUses(prog.Uses); err != nil {
		return nil, err
	}
	if err := c.layoutStorage(prog.Contract); err != nil {
		return nil, err
	}
	if err := c.collectFuncs(prog.Contract); err != nil {
		return nil, err
	}
	for _, fn := range prog.Contract.Funcs {
		if err := c.checkFunc(fn); err != nil {
			return nil, err
		}
	}
	return c.info, nil
}

func (c *checker) errf(line int, format string, args ...any) error {
	return fmt.Errorf("line %d: %s", line, fmt.Sprintf(format, args...))
}

func (c *checker) resolveUses(uses []*UseDecl) error {
	for _, u := range uses {
		path := strings.Join(u.Path, "::")
		switch path {
		case "std::math":
			for _, name := range u.Names {
				if !mathFuncs[name] {
					return c.errf(u.Line, "std::math has no member %q", name)
				}
				c.info.mathImports[name] = true
			}
		case "std::collections":
			for _, name := range u.Names {
				if name != "HashMap" {
					return c.errf(u.Line, "std::collections has no member %q", name)
				}
				c.info.hasHashMap = true
			}
		default:
			return c.errf(u.Line, "unknown import path %q", path)
		}
	}
	return nil
}

func (c *checker) layoutStorage(contract *Contract) error {
	for i, decl := range contract.Storage {
		if _, dup := c.info.storageByName[decl.Name]; dup {
			return c.errf(decl.Line, "duplicate storage field %q", decl.Name)
		}
		if err := c.validStorageType(decl); err != nil {
			return err
		}
		c.info.Storage = append(c.info.Storage, StorageInfo{
			Name: decl.Name,
			Type: decl.Type,
			Slot: int32(i),
			Line: decl.Line,
		})
		c.info.storageByName[decl.Name] = &c.info.Storage[len(c.info.Storage)-1]
	}
	return nil
}

func (c *checker) validStorageType(decl *StorageDecl) error {
	t := decl.Type
	if t.IsScalar() {
		return nil
	}
	if t.Kind == TypeMap {
		if !c.info.hasHashMap {
			return c.errf(decl.Line, "HashMap storage requires \"use std::collections::HashMap;\"")
		}
		if t.Key.Kind != TypeU64 && t.Key.Kind != TypeAddress {
			return c.errf(decl.Line, "map key type %s is not supported (use u64 or Address)", t.Key)
		}
		if !t.Elem.IsScalar() {
			return c.errf(decl.Line, "map value type %s is not supported", t.Elem)
		}
		return nil
	}
	return c.errf(decl.Line, "type %s cannot be stored", t)
}

func (c *checker) collectFuncs(contract *Contract) error {
	for i, fn := range contract.Funcs {
		if _, dup := c.info.funcByName[fn.Name]; dup {
			return c.errf(fn.Line, "duplicate function %q", fn.Name)
		}
		if _, clash := builtins[fn.Name]; clash {
			return c.errf(fn.Line, "function %q shadows a builtin", fn.Name)
		}
		ret := fn.Return
		if ret == nil {
			ret = typeUnit
		}
		if ret.Kind == TypeMap || ret.Kind == TypeString {
			return c.errf(fn.Line, "function %q cannot return %s", fn.Name, ret)
		}
		if ret.Kind == TypeResult && ret.Elem != nil && !ret.Elem.IsScalar() && ret.Elem.Kind != TypeUnit {
			return c.errf(fn.Line, "function %q cannot return %s", fn.Name, ret)
		}
		for _, p := range fn.Params {
			if !p.Type.IsScalar() {
				return c.errf(fn.Line, "parameter %q: type %s cannot be passed to a function", p.Name, p.Type)
			}
		}
		fi := &FuncInfo{Name: fn.Name, Params: fn.Params, Return: ret, Line: fn.Line, Index: i}
		c.info.Funcs = append(c.info.Funcs, fi)
		c.info.funcByName[fn.Name] = fi
	}
	return nil
}

func (c *checker) checkFunc(fn *FuncDecl) error {
	fi := c.info.funcByName[fn.Name]
	c.fn = fi
	c.syms.EnterFunction()
	defer c.syms.ExitFunction()

	for _, p := range fn.Params {
		if _, err := c.syms.Define(p.Name, p.Type); err != nil {
			return c.errf(fn.Line, "parameter %s", err)
		}
	}
	if err := c.checkBlock(fn.Body); err != nil {
		return fmt.Errorf("fn %s: %w", fn.Name, err)
	}

	if needsExplicitReturn(fi.Return) && !blockReturns(fn.Body) {
		return c.errf(fn.Line, "fn %s: missing return (not all paths return %s)", fn.Name, fi.Return)
	}
	return nil
}

// needsExplicitReturn reports whether falling off the end of the body is
// an error. Unit functions and Result<()> functions return implicitly.
func needsExplicitReturn(ret *Type) bool {
	if ret.Kind == TypeUnit {
		return false
	}
	if ret.Kind == TypeResult && (ret.Elem == nil || ret.Elem.Kind == TypeUnit) {
		return false
	}
	return true
}

// blockReturns reports whether every path through b ends in a return.
func blockReturns(b *Block) bool {
	if len(b.Stmts) == 0 {
		return false
	}
	switch last := b.Stmts[len(b.Stmts)-1].(type) {
	case *ReturnStmt:
		return true
	case *IfStmt:
		return last.Else != nil && blockReturns(last.Then) && blockReturns(last.Else)
	}
	return false
}

func (c *checker) checkBlock(b *Block) error {
	c.syms.EnterScope()
	defer c.syms.ExitScope()
	for _, stmt := range b.Stmts {
		if err := c.checkStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) checkStmt(stmt Stmt) error {
	switch s := stmt.(type) {
	case *LetStmt:
		vt, err := c.checkExpr(s.Value)
		if err != nil {
			return err
		}
		if vt.Kind == TypeResult {
			return c.errf(s.Line, "cannot bind a Result; unwrap it with ? or .unwrap_or(..)")
		}
		if vt.Kind == TypeUnit || vt.Kind == TypeString {
			return c.errf(s.Line, "cannot bind a value of type %s", vt)
		}
		if s.Type != nil && !s.Type.Equal(vt) {
			return c.errf(s.Line, "let %s: declared %s but value is %s", s.Name, s.Type, vt)
		}
		if _, err := c.syms.Define(s.Name, vt); err != nil {
			return c.errf(s.Line, "%s", err)
		}
		return nil

	case *AssignStmt:
		vt, err := c.checkExpr(s.Value)
		if err != nil {
			return err
		}
		switch target := s.Target.(type) {
		case *Ident:
			l, ok := c.syms.Lookup(target.Name)
			if !ok {
				return c.errf(s.Line, "undefined variable %q", target.Name)
			}
			c.record(target, l.Type)
			if !l.Type.Equal(vt) {
				return c.errf(s.Line, "cannot assign %s to %q of type %s", vt, target.Name, l.Type)
			}
		case *StorageRef:
			f, ok := c.info.StorageField(target.Field)
			if !ok {
				return c.errf(s.Line, "unknown storage field %q", target.Field)
			}
			if f.Type.Kind == TypeMap {
				return c.errf(s.Line, "map field %q must be written with .insert(key, value)", target.Field)
			}
			c.record(target, f.Type)
			if !f.Type.Equal(vt) {
				return c.errf(s.Line, "cannot assign %s to storage field %q of type %s", vt, target.Field, f.Type)
			}
		default:
			return c.errf(s.Line, "invalid assignment target")
		}
		return nil

	case *IfStmt:
		if err := c.checkCond(s.Cond, s.Line); err != nil {
			return err
		}
		if err := c.checkBlock(s.Then); err != nil {
			return err
		}
		if s.Else != nil {
			return c.checkBlock(s.Else)
		}
		return nil

	case *WhileStmt:
		if err := c.checkCond(s.Cond, s.Line); err != nil {
			return err
		}
		return c.checkBlock(s.Body)

	case *ReturnStmt:
		ret := c.fn.Return
		if s.Value == nil {
			if ret.Kind != TypeUnit {
				return c.errf(s.Line, "bare return in a function returning %s", ret)
			}
			return nil
		}
		vt, err := c.checkExpr(s.Value)
		if err != nil {
			return err
		}
		if !ret.Equal(vt) {
			return c.errf(s.Line, "cannot return %s from a function returning %s", vt, ret)
		}
		return nil

	case *RequireStmt:
		return c.checkCond(s.Cond, s.Line)

	case *ExprStmt:
		t, err := c.checkExpr(s.E)
		if err != nil {
			return err
		}
		switch {
		case t.Kind == TypeUnit:
		case t.Kind == TypeResult && (t.Elem == nil || t.Elem.Kind == TypeUnit):
			// A discarded Result<()> still reverts on Err.
		default:
			return c.errf(s.Line, "expression result of type %s is unused", t)
		}
		return nil
	}
	return fmt.Errorf("unhandled statement %T", stmt)
}

func (c *checker) checkCond(e Expr, line int) error {
	t, err := c.checkExpr(e)
	if err != nil {
		return err
	}
	if t.Kind != TypeBool {
		return c.errf(line, "condition must be bool, got %s", t)
	}
	return nil
}

// record stores the checked type of an expression for later passes.
func (c *checker) record(e Expr, t *Type) *Type {
	c.info.exprTypes[e] = t
	return t
}

func (c *checker) checkExpr(e Expr) (*Type, error) {
	switch n := e.(type) {
	case *IntLit:
		return c.record(e, typeU64), nil
	case *BoolLit:
		return c.record(e, typeBool), nil
	case *StrLit:
		return nil, c.errf(n.Line, "string literals are only valid as require messages or event names")

	case *Ident:
		l, ok := c.syms.Lookup(n.Name)
		if !ok {
			return nil, c.errf(n.Line, "undefined variable %q", n.Name)
		}
		return c.record(e, l.Type), nil

	case *StorageRef:
		f, ok := c.info.StorageField(n.Field)
		if !ok {
			return nil, c.errf(n.Line, "unknown storage field %q", n.Field)
		}
		if f.Type.Kind == TypeMap {
			return nil, c.errf(n.Line, "map field %q must be accessed with .get/.insert/.contains", n.Field)
		}
		return c.record(e, f.Type), nil

	case *BinaryExpr:
		return c.checkBinary(n)

	case *LogicalExpr:
		lt, err := c.checkExpr(n.Left)
		if err != nil {
			return nil, err
		}
		rt, err := c.checkExpr(n.Right)
		if err != nil {
			return nil, err
		}
		if lt.Kind != TypeBool || rt.Kind != TypeBool {
			return nil, c.errf(n.Line, "operands of %s must be bool, got %s and %s", n.Op, lt, rt)
		}
		return c.record(e, typeBool), nil

	case *UnaryExpr:
		rt, err := c.checkExpr(n.Right)
		if err != nil {
			return nil, err
		}
		if n.Op == MINUS {
			if rt.Kind != TypeU64 {
				return nil, c.errf(n.Line, "operand of unary - must be u64, got %s", rt)
			}
			return c.record(e, typeU64), nil
		}
		if rt.Kind != TypeBool {
			return nil, c.errf(n.Line, "operand of ! must be bool, got %s", rt)
		}
		return c.record(e, typeBool), nil

	case *TryExpr:
		it, err := c.checkExpr(n.Inner)
		if err != nil {
			return nil, err
		}
		if it.Kind != TypeResult {
			return nil, c.errf(n.Line, "? applied to non-Result type %s", it)
		}
		if it.Elem == nil {
			return c.record(e, typeUnit), nil
		}
		return c.record(e, it.Elem), nil

	case *OkExpr:
		if n.Inner == nil {
			return c.record(e, &Type{Kind: TypeResult, Elem: typeUnit}), nil
		}
		it, err := c.checkExpr(n.Inner)
		if err != nil {
			return nil, err
		}
		if !it.IsScalar() {
			return nil, c.errf(n.Line, "Ok payload must be a scalar value, got %s", it)
		}
		return c.record(e, &Type{Kind: TypeResult, Elem: it}), nil

	case *ErrExpr:
		it, err := c.checkExpr(n.Inner)
		if err != nil {
			return nil, err
		}
		if it.Kind != TypeU64 {
			return nil, c.errf(n.Line, "Err payload must be a u64 revert code, got %s", it)
		}
		return c.record(e, &Type{Kind: TypeResult}), nil

	case *CallExpr:
		return c.checkCall(n)

	case *MethodCall:
		return c.checkMethodCall(n)
	}
	return nil, fmt.Errorf("unhandled expression %T", e)
}

func (c *checker) checkBinary(n *BinaryExpr) (*Type, error) {
	lt, err := c.checkExpr(n.Left)
	if err != nil {
		return nil, err
	}
	rt, err := c.checkExpr(n.Right)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case PLUS, MINUS, STAR, SLASH, PERCENT:
		if lt.Kind != TypeU64 || rt.Kind != TypeU64 {
			return nil, c.errf(n.Line, "operands of %s must be u64, got %s and %s", n.Op, lt, rt)
		}
		return c.record(n, typeU64), nil
	case EQUALS, NOT_EQ:
		if !lt.IsScalar() || !lt.Equal(rt) {
			return nil, c.errf(n.Line, "cannot compare %s with %s", lt, rt)
		}
		return c.record(n, typeBool), nil
	case LESS, GREATER, LESS_EQ, GREATER_EQ:
		if lt.Kind != TypeU64 || rt.Kind != TypeU64 {
			return nil, c.errf(n.Line, "operands of %s must be u64, got %s and %s", n.Op, lt, rt)
		}
		return c.record(n, typeBool), nil
	}
	return nil, c.errf(n.Line, "unsupported binary operator %s", n.Op)
}

func (c *checker) checkCall(n *CallExpr) (*Type, error) {
	// emit("Name", value) takes a string literal, so it is special-cased.
	if n.Name == "emit" {
		if len(n.Args) != 2 {
			return nil, c.errf(n.Line, "emit takes (event name, u64 value)")
		}
		if _, ok := n.Args[0].(*StrLit); !ok {
			return nil, c.errf(n.Line, "emit: event name must be a string literal")
		}
		vt, err := c.checkExpr(n.Args[1])
		if err != nil {
			return nil, err
		}
		if vt.Kind != TypeU64 {
			return nil, c.errf(n.Line, "emit: value must be u64, got %s", vt)
		}
		c.info.addEvent(n.Args[0].(*StrLit).Value)
		return c.record(n, typeUnit), nil
	}

	if sig, ok := builtins[n.Name]; ok {
		if err := c.checkArgs(n, sig.params); err != nil {
			return nil, err
		}
		return c.record(n, sig.ret), nil
	}

	if mathFuncs[n.Name] {
		if !c.info.MathImported(n.Name) {
			return nil, c.errf(n.Line, "%s is not imported; add \"use std::math::%s;\"", n.Name, n.Name)
		}
		if err := c.checkArgs(n, []*Type{typeU64, typeU64}); err != nil {
			return nil, err
		}
		return c.record(n, &Type{Kind: TypeResult, Elem: typeU64}), nil
	}

	if fi, ok := c.info.Func(n.Name); ok {
		params := make([]*Type, len(fi.Params))
		for i, p := range fi.Params {
			params[i] = p.Type
		}
		if err := c.checkArgs(n, params); err != nil {
			return nil, err
		}
		return c.record(n, fi.Return), nil
	}

	return nil, c.errf(n.Line, "unknown function %q", n.Name)
}

func (c *checker) checkArgs(n *CallExpr, params []*Type) error {
	if len(n.Args) != len(params) {
		return c.errf(n.Line, "%s expects %d argument(s), got %d", n.Name, len(params), len(n.Args))
	}
	for i, arg := range n.Args {
		at, err := c.checkExpr(arg)
		if err != nil {
			return err
		}
		if !params[i].Equal(at) {
			return c.errf(n.Line, "%s: argument %d must be %s, got %s", n.Name, i+1, params[i], at)
		}
	}
	return nil
}

func (c *checker) checkMethodCall(n *MethodCall) (*Type, error) {
	// Map methods apply only to storage map fields.
	if ref, ok := n.Recv.(*StorageRef); ok {
		if f, found := c.info.StorageField(ref.Field); found && f.Type.Kind == TypeMap {
			c.record(ref, f.Type)
			switch n.Name {
			case "get":
				if err := c.checkMethodArgs(n, f.Type.Key); err != nil {
					return nil, err
				}
				return c.record(n, &Type{Kind: TypeResult, Elem: f.Type.Elem}), nil
			case "insert":
				if err := c.checkMethodArgs(n, f.Type.Key, f.Type.Elem); err != nil {
					return nil, err
				}
				return c.record(n, typeUnit), nil
			case "contains":
				if err := c.checkMethodArgs(n, f.Type.Key); err != nil {
					return nil, err
				}
				return c.record(n, typeBool), nil
			}
			return nil, c.errf(n.Line, "HashMap has no method %q", n.Name)
		}
	}

	if n.Name == "unwrap_or" {
		// The default only makes sense where the Err case is observable,
		// which is a map lookup: everything else traps on its Err path.
		get, ok := n.Recv.(*MethodCall)
		if !ok || get.Name != "get" {
			return nil, c.errf(n.Line, "unwrap_or is only supported on HashMap.get")
		}
		rt, err := c.checkExpr(get)
		if err != nil {
			return nil, err
		}
		if err := c.checkMethodArgs(n, rt.Elem); err != nil {
			return nil, err
		}
		return c.record(n, rt.Elem), nil
	}

	rt, err := c.checkExpr(n.Recv)
	if err != nil {
		return nil, err
	}
	return nil, c.errf(n.Line, "type %s has no method %q", rt, n.Name)
}

func (c *checker) checkMethodArgs(n *MethodCall, params ...*Type) error {
	if len(n.Args) != len(params) {
		return c.errf(n.Line, "%s expects %d argument(s), got %d", n.Name, len(params), len(n.Args))
	}
	for i, arg := range n.Args {
		at, err := c.checkExpr(arg)
		if err != nil {
			return err
		}
		if !params[i].Equal(at) {
			return c.errf(n.Line, "%s: argument %d must be %s, got %s", n.Name, i+1, params[i], at)
		}
	}
	return nil
}
