package compiler

import "fmt"

// local is one named binding in a function body.
type local struct {
	Name string
	Type *Type
	// Index is the wasm local index assigned by the code generator.
	// The checker leaves it at -1.
	Index int
}

// SymbolTable tracks the lexical scopes of a single function body.
// Scope zero holds the parameters.
type SymbolTable struct {
	scopes []map[string]*local
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{}
}

func (s *SymbolTable) EnterFunction() {
	s.scopes = []map[string]*local{make(map[string]*local)}
}

func (s *SymbolTable) ExitFunction() {
	s.scopes = nil
}

func (s *SymbolTable) EnterScope() {
	if len(s.scopes) == 0 {
		panic("EnterScope called outside function")
	}
	s.scopes = append(s.scopes, make(map[string]*local))
}

func (s *SymbolTable) ExitScope() {
	if len(s.scopes) > 0 {
		s.scopes = s.scopes[:len(s.scopes)-1]
	}
}

// Define adds a binding to the innermost scope. Redefining a name that
// already exists in the same scope is an error; shadowing an outer
// scope is allowed.
func (s *SymbolTable) Define(name string, typ *Type) (*local, error) {
	if len(s.scopes) == 0 {
		panic("Define called outside function")
	}
	top := s.scopes[len(s.scopes)-1]
	if _, exists := top[name]; exists {
		return nil, fmt.Errorf("%q is already defined in this scope", name)
	}
	l := &local{Name: name, Type: typ, Index: -1}
	top[name] = l
	return l, nil
}

// Lookup resolves a name from the innermost scope outwards.
func (s *SymbolTable) Lookup(name string) (*local, bool) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if l, ok := s.scopes[i][name]; ok {
			return l, true
		}
	}
	return nil, false
}

//  Contract-level symbol information produced by Analyze.

// StorageInfo is one declared storage field with its assigned slot.
type StorageInfo struct {
	Name string
	Type *Type
	Slot int32
	Line int
}

// FuncInfo is the signature of one contract function.
type FuncInfo struct {
	Name   string
	Params []Param
	Return *Type // normalized: never nil, unit for "fn f()"
	Line   int
	// Index is the position in Contract.Funcs declaration order.
	Index int
}

// ContractInfo is the checked symbol information of a contract:
// storage layout, function signatures, resolved imports, and the type
// of every expression in the body.
type ContractInfo struct {
	Name    string
	Storage []StorageInfo
	Funcs   []*FuncInfo

	// Events lists the emitted event names in first-use order.
	Events []string

	storageByName map[string]*StorageInfo
	funcByName    map[string]*FuncInfo

	// mathImports holds the imported std::math function names.
	mathImports map[string]bool
	// hasHashMap is set by "use std::collections::HashMap".
	hasHashMap bool

	exprTypes map[Expr]*Type
}

// StorageField resolves a storage field by name.
func (ci *ContractInfo) StorageField(name string) (*StorageInfo, bool) {
	f, ok := ci.storageByName[name]
	return f, ok
}

// Func resolves a contract function by name.
func (ci *ContractInfo) Func(name string) (*FuncInfo, bool) {
	f, ok := ci.funcByName[name]
	return f, ok
}

// MathImported reports whether a std::math function was imported.
func (ci *ContractInfo) MathImported(name string) bool {
	return ci.mathImports[name]
}

func (ci *ContractInfo) addEvent(name string) {
	for _, e := range ci.Events {
		if e == name {
			return
		}
	}
	ci.Events = append(ci.Events, name)
}

// TypeOf returns the checked type of an expression node.
func (ci *ContractInfo) TypeOf(e Expr) (*Type, error) {
	if t, ok := ci.exprTypes[e]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("no type recorded for expression %s", e)
}
