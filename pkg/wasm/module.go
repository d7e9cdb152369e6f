package wasm

import "fmt"

// ValType is a WebAssembly value type byte.
type ValType byte

const (
	I32 ValType = 0x7F
	I64 ValType = 0x7E
)

func (v ValType) String() string {
	switch v {
	case I32:
		return "i32"
	case I64:
		return "i64"
	}
	return fmt.Sprintf("valtype(0x%02X)", byte(v))
}

// FuncType is a function signature: params -> results.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether two signatures match exactly.
func (t FuncType) Equal(other FuncType) bool {
	if len(t.Params) != len(other.Params) || len(t.Results) != len(other.Results) {
		return false
	}
	for i, p := range t.Params {
		if p != other.Params[i] {
			return false
		}
	}
	for i, r := range t.Results {
		if r != other.Results[i] {
			return false
		}
	}
	return true
}

// Import is an imported function. Function imports occupy the first
// function indices of the module, before any local function.
type Import struct {
	Module    string
	Name      string
	TypeIndex uint32
}

// Function is a locally defined function. Body holds the raw instruction
// bytes of the function, including the terminating End opcode.
type Function struct {
	TypeIndex uint32
	Locals    []ValType
	Body      []byte
}

// Export is an exported function, addressed by function index
// (imports first, then local functions).
type Export struct {
	Name      string
	FuncIndex uint32
}

// DataSegment is an active data segment placed in memory 0 at Offset.
type DataSegment struct {
	Offset uint32
	Bytes  []byte
}

// Module is the section-level representation of a WebAssembly module.
// Only the sections this toolchain emits are modeled.
type Module struct {
	Types   []FuncType
	Imports []Import
	Funcs   []Function

	// MemoryPages is the minimum page count of memory 0.
	// Zero means no memory section.
	MemoryPages uint32

	Exports []Export
	Data    []DataSegment
}

// NumImports returns the number of imported functions.
func (m *Module) NumImports() uint32 {
	return uint32(len(m.Imports))
}

// TypeOf resolves the signature of the function at index fn
// (import indices first, then local functions).
func (m *Module) TypeOf(fn uint32) (FuncType, error) {
	var ti uint32
	switch {
	case fn < uint32(len(m.Imports)):
		ti = m.Imports[fn].TypeIndex
	case fn < uint32(len(m.Imports)+len(m.Funcs)):
		ti = m.Funcs[fn-uint32(len(m.Imports))].TypeIndex
	default:
		return FuncType{}, fmt.Errorf("function index %d out of range", fn)
	}
	if ti >= uint32(len(m.Types)) {
		return FuncType{}, fmt.Errorf("type index %d out of range", ti)
	}
	return m.Types[ti], nil
}

// ExportedFunc returns the function index exported under name.
func (m *Module) ExportedFunc(name string) (uint32, bool) {
	for _, e := range m.Exports {
		if e.Name == name {
			return e.FuncIndex, true
		}
	}
	return 0, false
}

// AddType interns a signature and returns its type index.
func (m *Module) AddType(t FuncType) uint32 {
	for i, existing := range m.Types {
		if existing.Equal(t) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, t)
	return uint32(len(m.Types) - 1)
}
