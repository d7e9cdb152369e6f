package vm

import "swiftsc/pkg/wasm"

// Host function indices. Contract modules import these from module "env",
// in this exact order, so the function index of a host call is its
// position in HostImports.
const (
	HostCaller = iota
	HostBalance
	HostTransferNative
	HostStorageLoad
	HostStorageHas
	HostStorageStore
	HostEmit
	HostAbort
	HostRevert

	NumHostImports
)

// HostFunc names one host import and its wasm signature.
type HostFunc struct {
	Name string
	Type wasm.FuncType
}

// HostImports is the environment ABI shared by the code generator and
// the simulator. Addresses and u64 values travel as i64; storage slots,
// data offsets and abort codes as i32.
var HostImports = [NumHostImports]HostFunc{
	HostCaller:         {Name: "caller", Type: wasm.FuncType{Results: []wasm.ValType{wasm.I64}}},
	HostBalance:        {Name: "balance", Type: wasm.FuncType{Params: []wasm.ValType{wasm.I64}, Results: []wasm.ValType{wasm.I64}}},
	HostTransferNative: {Name: "transfer_native", Type: wasm.FuncType{Params: []wasm.ValType{wasm.I64, wasm.I64}}},
	HostStorageLoad:    {Name: "storage_load", Type: wasm.FuncType{Params: []wasm.ValType{wasm.I32, wasm.I64}, Results: []wasm.ValType{wasm.I64}}},
	HostStorageHas:     {Name: "storage_has", Type: wasm.FuncType{Params: []wasm.ValType{wasm.I32, wasm.I64}, Results: []wasm.ValType{wasm.I32}}},
	HostStorageStore:   {Name: "storage_store", Type: wasm.FuncType{Params: []wasm.ValType{wasm.I32, wasm.I64, wasm.I64}}},
	HostEmit:           {Name: "emit", Type: wasm.FuncType{Params: []wasm.ValType{wasm.I32, wasm.I64}}},
	HostAbort:          {Name: "abort", Type: wasm.FuncType{Params: []wasm.ValType{wasm.I32}}},
	HostRevert:         {Name: "revert", Type: wasm.FuncType{Params: []wasm.ValType{wasm.I32}}},
}

// Revert codes passed to the abort host function.
const (
	AbortErr        int32 = 1 // explicit Err(..)
	AbortRequire    int32 = 2 // require(..) without a message
	AbortOverflow   int32 = 3 // checked std::math over/underflow
	AbortMissingKey int32 = 4 // HashMap.get on an absent key
)

// AbortReason renders a well-known abort code for diagnostics.
func AbortReason(code int32) string {
	switch code {
	case AbortErr:
		return "explicit Err"
	case AbortRequire:
		return "require failed"
	case AbortOverflow:
		return "checked arithmetic overflow"
	case AbortMissingKey:
		return "missing storage key"
	}
	return "contract error"
}
