package compiler

import (
	"fmt"
	"sort"

	"swiftsc/pkg/vm"
	"swiftsc/pkg/wasm"
)

// dataBase is the memory offset of the first pooled string. Offset zero
// is left unused so a zero data offset never aliases a real string.
const dataBase uint32 = 8

// CodeGen lowers a checked contract to a wasm module. Every contract
// function becomes one exported wasm function; u64 and Address values
// travel as i64, bool as i32.
type CodeGen struct {
	info *ContractInfo
	mod  *wasm.Module
	syms *SymbolTable

	// Per-function state.
	body      []byte
	locals    []wasm.ValType // declared locals, after the params
	numParams int

	stringPool map[string]uint32 // string -> data offset
	nextData   uint32
}

func newCodeGen(info *ContractInfo) *CodeGen {
	return &CodeGen{
		info:       info,
		mod:        &wasm.Module{},
		syms:       NewSymbolTable(),
		stringPool: make(map[string]uint32),
		nextData:   dataBase,
	}
}

// Generate lowers a checked program to a wasm module.
func Generate(prog *Program, info *ContractInfo) (*wasm.Module, error) {
	cg := newCodeGen(info)

	for _, host := range vm.HostImports {
		ti := cg.mod.AddType(host.Type)
		cg.mod.Imports = append(cg.mod.Imports, wasm.Import{Module: "env", Name: host.Name, TypeIndex: ti})
	}

	for _, fn := range prog.Contract.Funcs {
		if err := cg.genFunc(fn); err != nil {
			return nil, fmt.Errorf("fn %s: %w", fn.Name, err)
		}
	}

	cg.flushStringPool()
	return cg.mod, nil
}

//  Instruction emission helpers

func (cg *CodeGen) op(b byte) {
	cg.body = append(cg.body, b)
}

func (cg *CodeGen) opU32(b byte, v uint32) {
	cg.body = append(cg.body, b)
	cg.body = wasm.AppendUint32(cg.body, v)
}

func (cg *CodeGen) i64Const(v uint64) {
	cg.body = append(cg.body, wasm.OpI64Const)
	cg.body = wasm.AppendInt64(cg.body, int64(v))
}

func (cg *CodeGen) i32Const(v int32) {
	cg.body = append(cg.body, wasm.OpI32Const)
	cg.body = wasm.AppendInt32(cg.body, v)
}

func (cg *CodeGen) callHost(host int) {
	cg.opU32(wasm.OpCall, uint32(host))
}

// abort emits a call to the abort host import followed by unreachable,
// so the surrounding block needs no value of its own.
func (cg *CodeGen) abort(code int32) {
	cg.i32Const(code)
	cg.callHost(vm.HostAbort)
	cg.op(wasm.OpUnreachable)
}

// allocLocal declares a fresh wasm local and returns its index.
func (cg *CodeGen) allocLocal(t wasm.ValType) uint32 {
	cg.locals = append(cg.locals, t)
	return uint32(cg.numParams + len(cg.locals) - 1)
}

// valType maps a scalar language type to its wasm representation.
func valType(t *Type) wasm.ValType {
	if t.Kind == TypeBool {
		return wasm.I32
	}
	return wasm.I64
}

// fnSignature maps a function signature to wasm. Unit and Result<()>
// returns produce no wasm result; Err paths trap instead.
func fnSignature(fi *FuncInfo) wasm.FuncType {
	var t wasm.FuncType
	for _, p := range fi.Params {
		t.Params = append(t.Params, valType(p.Type))
	}
	ret := fi.Return
	if ret.Kind == TypeResult {
		if ret.Elem == nil || ret.Elem.Kind == TypeUnit {
			return t
		}
		ret = ret.Elem
	}
	if ret.Kind != TypeUnit {
		t.Results = append(t.Results, valType(ret))
	}
	return t
}

// funcIndex returns the wasm function index of a contract function.
func (cg *CodeGen) funcIndex(fi *FuncInfo) uint32 {
	return uint32(vm.NumHostImports + fi.Index)
}

func (cg *CodeGen) genFunc(fn *FuncDecl) error {
	fi, _ := cg.info.Func(fn.Name)

	cg.body = nil
	cg.locals = nil
	cg.numParams = len(fn.Params)

	cg.syms.EnterFunction()
	defer cg.syms.ExitFunction()
	for i, p := range fn.Params {
		l, err := cg.syms.Define(p.Name, p.Type)
		if err != nil {
			return err
		}
		l.Index = i
	}

	if err := cg.genBlock(fn.Body); err != nil {
		return err
	}
	cg.op(wasm.OpEnd)

	cg.mod.Funcs = append(cg.mod.Funcs, wasm.Function{
		TypeIndex: cg.mod.AddType(fnSignature(fi)),
		Locals:    cg.locals,
		Body:      cg.body,
	})
	cg.mod.Exports = append(cg.mod.Exports, wasm.Export{
		Name:      fn.Name,
		FuncIndex: cg.funcIndex(fi),
	})
	return nil
}

func (cg *CodeGen) genBlock(b *Block) error {
	cg.syms.EnterScope()
	defer cg.syms.ExitScope()
	for _, stmt := range b.Stmts {
		if err := cg.genStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (cg *CodeGen) genStmt(stmt Stmt) error {
	switch s := stmt.(type) {
	case *LetStmt:
		t, err := cg.info.TypeOf(s.Value)
		if err != nil {
			return err
		}
		if err := cg.genExpr(s.Value); err != nil {
			return err
		}
		l, err := cg.syms.Define(s.Name, t)
		if err != nil {
			return err
		}
		l.Index = int(cg.allocLocal(valType(t)))
		cg.opU32(wasm.OpLocalSet, uint32(l.Index))
		return nil

	case *AssignStmt:
		switch target := s.Target.(type) {
		case *Ident:
			l, ok := cg.syms.Lookup(target.Name)
			if !ok {
				return fmt.Errorf("undefined variable %q", target.Name)
			}
			if err := cg.genExpr(s.Value); err != nil {
				return err
			}
			cg.opU32(wasm.OpLocalSet, uint32(l.Index))
		case *StorageRef:
			f, ok := cg.info.StorageField(target.Field)
			if !ok {
				return fmt.Errorf("unknown storage field %q", target.Field)
			}
			cg.i32Const(f.Slot)
			cg.i64Const(0) // scalar fields live under key 0
			if err := cg.genExpr(s.Value); err != nil {
				return err
			}
			if f.Type.Kind == TypeBool {
				cg.op(wasm.OpI64ExtendI32U)
			}
			cg.callHost(vm.HostStorageStore)
		}
		return nil

	case *IfStmt:
		if err := cg.genExpr(s.Cond); err != nil {
			return err
		}
		cg.op(wasm.OpIf)
		cg.op(wasm.BlockEmpty)
		if err := cg.genBlock(s.Then); err != nil {
			return err
		}
		if s.Else != nil {
			cg.op(wasm.OpElse)
			if err := cg.genBlock(s.Else); err != nil {
				return err
			}
		}
		cg.op(wasm.OpEnd)
		return nil

	case *WhileStmt:
		// block { loop { !cond -> br_if 1; body; br 0 } }
		cg.op(wasm.OpBlock)
		cg.op(wasm.BlockEmpty)
		cg.op(wasm.OpLoop)
		cg.op(wasm.BlockEmpty)
		if err := cg.genExpr(s.Cond); err != nil {
			return err
		}
		cg.op(wasm.OpI32Eqz)
		cg.opU32(wasm.OpBrIf, 1)
		if err := cg.genBlock(s.Body); err != nil {
			return err
		}
		cg.opU32(wasm.OpBr, 0)
		cg.op(wasm.OpEnd)
		cg.op(wasm.OpEnd)
		return nil

	case *ReturnStmt:
		if s.Value == nil {
			cg.op(wasm.OpReturn)
			return nil
		}
		t, err := cg.info.TypeOf(s.Value)
		if err != nil {
			return err
		}
		if err := cg.genExpr(s.Value); err != nil {
			return err
		}
		if t.Kind == TypeUnit || (t.Kind == TypeResult && (t.Elem == nil || t.Elem.Kind == TypeUnit)) {
			// No wasm value to return; Err paths have already trapped.
			cg.op(wasm.OpReturn)
			return nil
		}
		cg.op(wasm.OpReturn)
		return nil

	case *RequireStmt:
		if err := cg.genExpr(s.Cond); err != nil {
			return err
		}
		cg.op(wasm.OpI32Eqz)
		cg.op(wasm.OpIf)
		cg.op(wasm.BlockEmpty)
		if s.Msg != "" {
			cg.i32Const(int32(cg.internString(s.Msg)))
			cg.callHost(vm.HostRevert)
			cg.op(wasm.OpUnreachable)
		} else {
			cg.abort(vm.AbortRequire)
		}
		cg.op(wasm.OpEnd)
		return nil

	case *ExprStmt:
		// Checked statement expressions are unit-valued, so nothing
		// is left on the operand stack.
		return cg.genExpr(s.E)
	}
	return fmt.Errorf("unhandled statement %T", stmt)
}

// genExpr emits code leaving the expression value on the operand stack
// (nothing for unit-valued expressions).
func (cg *CodeGen) genExpr(e Expr) error {
	switch n := e.(type) {
	case *IntLit:
		cg.i64Const(n.Value)
		return nil

	case *BoolLit:
		if n.Value {
			cg.i32Const(1)
		} else {
			cg.i32Const(0)
		}
		return nil

	case *Ident:
		l, ok := cg.syms.Lookup(n.Name)
		if !ok {
			return fmt.Errorf("undefined variable %q", n.Name)
		}
		cg.opU32(wasm.OpLocalGet, uint32(l.Index))
		return nil

	case *StorageRef:
		f, ok := cg.info.StorageField(n.Field)
		if !ok {
			return fmt.Errorf("unknown storage field %q", n.Field)
		}
		cg.i32Const(f.Slot)
		cg.i64Const(0)
		cg.callHost(vm.HostStorageLoad)
		if f.Type.Kind == TypeBool {
			cg.op(wasm.OpI32WrapI64)
		}
		return nil

	case *BinaryExpr:
		return cg.genBinary(n)

	case *LogicalExpr:
		return cg.genLogical(n)

	case *UnaryExpr:
		if n.Op == MINUS {
			// Two's-complement negation: -x is 0 - x with wraparound.
			cg.i64Const(0)
			if err := cg.genExpr(n.Right); err != nil {
				return err
			}
			cg.op(wasm.OpI64Sub)
			return nil
		}
		if err := cg.genExpr(n.Right); err != nil {
			return err
		}
		cg.op(wasm.OpI32Eqz)
		return nil

	case *TryExpr:
		// Result producers trap on the Err path when evaluated, so the
		// try operator itself emits nothing.
		return cg.genExpr(n.Inner)

	case *OkExpr:
		if n.Inner == nil {
			return nil
		}
		return cg.genExpr(n.Inner)

	case *ErrExpr:
		if err := cg.genExpr(n.Inner); err != nil {
			return err
		}
		cg.op(wasm.OpI32WrapI64)
		cg.callHost(vm.HostAbort)
		cg.op(wasm.OpUnreachable)
		return nil

	case *CallExpr:
		return cg.genCall(n)

	case *MethodCall:
		return cg.genMethodCall(n)
	}
	return fmt.Errorf("unhandled expression %T", e)
}

func (cg *CodeGen) genBinary(n *BinaryExpr) error {
	lt, err := cg.info.TypeOf(n.Left)
	if err != nil {
		return err
	}
	if err := cg.genExpr(n.Left); err != nil {
		return err
	}
	if err := cg.genExpr(n.Right); err != nil {
		return err
	}

	i32Operands := lt.Kind == TypeBool
	switch n.Op {
	case PLUS:
		cg.op(wasm.OpI64Add)
	case MINUS:
		cg.op(wasm.OpI64Sub)
	case STAR:
		cg.op(wasm.OpI64Mul)
	case SLASH:
		cg.op(wasm.OpI64DivU)
	case PERCENT:
		cg.op(wasm.OpI64RemU)
	case EQUALS:
		if i32Operands {
			cg.op(wasm.OpI32Eq)
		} else {
			cg.op(wasm.OpI64Eq)
		}
	case NOT_EQ:
		if i32Operands {
			cg.op(wasm.OpI32Ne)
		} else {
			cg.op(wasm.OpI64Ne)
		}
	case LESS:
		cg.op(wasm.OpI64LtU)
	case GREATER:
		cg.op(wasm.OpI64GtU)
	case LESS_EQ:
		cg.op(wasm.OpI64LeU)
	case GREATER_EQ:
		cg.op(wasm.OpI64GeU)
	default:
		return fmt.Errorf("unsupported binary operator %s", n.Op)
	}
	return nil
}

// genLogical emits short-circuit && and || with an i32-valued if.
func (cg *CodeGen) genLogical(n *LogicalExpr) error {
	if err := cg.genExpr(n.Left); err != nil {
		return err
	}
	cg.op(wasm.OpIf)
	cg.op(byte(wasm.I32))
	if n.Op == AND_LOGICAL {
		if err := cg.genExpr(n.Right); err != nil {
			return err
		}
		cg.op(wasm.OpElse)
		cg.i32Const(0)
	} else {
		cg.i32Const(1)
		cg.op(wasm.OpElse)
		if err := cg.genExpr(n.Right); err != nil {
			return err
		}
	}
	cg.op(wasm.OpEnd)
	return nil
}

func (cg *CodeGen) genCall(n *CallExpr) error {
	switch n.Name {
	case "caller":
		cg.callHost(vm.HostCaller)
		return nil
	case "balance":
		if err := cg.genExpr(n.Args[0]); err != nil {
			return err
		}
		cg.callHost(vm.HostBalance)
		return nil
	case "transfer_native":
		for _, a := range n.Args {
			if err := cg.genExpr(a); err != nil {
				return err
			}
		}
		cg.callHost(vm.HostTransferNative)
		return nil
	case "emit":
		name := n.Args[0].(*StrLit)
		cg.i32Const(int32(cg.internString(name.Value)))
		if err := cg.genExpr(n.Args[1]); err != nil {
			return err
		}
		cg.callHost(vm.HostEmit)
		return nil
	case "add", "sub", "mul":
		return cg.genCheckedMath(n)
	}

	fi, ok := cg.info.Func(n.Name)
	if !ok {
		return fmt.Errorf("unknown function %q", n.Name)
	}
	for _, a := range n.Args {
		if err := cg.genExpr(a); err != nil {
			return err
		}
	}
	cg.opU32(wasm.OpCall, cg.funcIndex(fi))
	return nil
}

// genCheckedMath lowers std::math::{add,sub,mul} inline. The failure
// branch aborts with the overflow code, so the value left on the stack
// is always the in-range result.
func (cg *CodeGen) genCheckedMath(n *CallExpr) error {
	ta := cg.allocLocal(wasm.I64)
	tb := cg.allocLocal(wasm.I64)

	if err := cg.genExpr(n.Args[0]); err != nil {
		return err
	}
	cg.opU32(wasm.OpLocalSet, ta)
	if err := cg.genExpr(n.Args[1]); err != nil {
		return err
	}
	cg.opU32(wasm.OpLocalSet, tb)

	switch n.Name {
	case "sub":
		// a < b means the subtraction would wrap.
		cg.opU32(wasm.OpLocalGet, ta)
		cg.opU32(wasm.OpLocalGet, tb)
		cg.op(wasm.OpI64LtU)
		cg.op(wasm.OpIf)
		cg.op(wasm.BlockEmpty)
		cg.abort(vm.AbortOverflow)
		cg.op(wasm.OpEnd)
		cg.opU32(wasm.OpLocalGet, ta)
		cg.opU32(wasm.OpLocalGet, tb)
		cg.op(wasm.OpI64Sub)

	case "add":
		// sum < a means the addition wrapped.
		ts := cg.allocLocal(wasm.I64)
		cg.opU32(wasm.OpLocalGet, ta)
		cg.opU32(wasm.OpLocalGet, tb)
		cg.op(wasm.OpI64Add)
		cg.opU32(wasm.OpLocalSet, ts)
		cg.opU32(wasm.OpLocalGet, ts)
		cg.opU32(wasm.OpLocalGet, ta)
		cg.op(wasm.OpI64LtU)
		cg.op(wasm.OpIf)
		cg.op(wasm.BlockEmpty)
		cg.abort(vm.AbortOverflow)
		cg.op(wasm.OpEnd)
		cg.opU32(wasm.OpLocalGet, ts)

	case "mul":
		// a != 0 && product / a != b means the product wrapped.
		ts := cg.allocLocal(wasm.I64)
		cg.opU32(wasm.OpLocalGet, ta)
		cg.opU32(wasm.OpLocalGet, tb)
		cg.op(wasm.OpI64Mul)
		cg.opU32(wasm.OpLocalSet, ts)
		cg.opU32(wasm.OpLocalGet, ta)
		cg.op(wasm.OpI64Eqz)
		cg.op(wasm.OpIf)
		cg.op(byte(wasm.I32))
		cg.i32Const(0)
		cg.op(wasm.OpElse)
		cg.opU32(wasm.OpLocalGet, ts)
		cg.opU32(wasm.OpLocalGet, ta)
		cg.op(wasm.OpI64DivU)
		cg.opU32(wasm.OpLocalGet, tb)
		cg.op(wasm.OpI64Ne)
		cg.op(wasm.OpEnd)
		cg.op(wasm.OpIf)
		cg.op(wasm.BlockEmpty)
		cg.abort(vm.AbortOverflow)
		cg.op(wasm.OpEnd)
		cg.opU32(wasm.OpLocalGet, ts)
	}
	return nil
}

func (cg *CodeGen) genMethodCall(n *MethodCall) error {
	if ref, ok := n.Recv.(*StorageRef); ok {
		if f, found := cg.info.StorageField(ref.Field); found && f.Type.Kind == TypeMap {
			switch n.Name {
			case "get":
				return cg.genMapGet(f, n.Args[0])
			case "insert":
				cg.i32Const(f.Slot)
				if err := cg.genKey(f, n.Args[0]); err != nil {
					return err
				}
				if err := cg.genExpr(n.Args[1]); err != nil {
					return err
				}
				if f.Type.Elem.Kind == TypeBool {
					cg.op(wasm.OpI64ExtendI32U)
				}
				cg.callHost(vm.HostStorageStore)
				return nil
			case "contains":
				cg.i32Const(f.Slot)
				if err := cg.genKey(f, n.Args[0]); err != nil {
					return err
				}
				cg.callHost(vm.HostStorageHas)
				return nil
			}
			return fmt.Errorf("HashMap has no method %q", n.Name)
		}
	}

	if n.Name == "unwrap_or" {
		get, ok := n.Recv.(*MethodCall)
		if !ok {
			return fmt.Errorf("unwrap_or is only supported on HashMap.get")
		}
		ref := get.Recv.(*StorageRef)
		f, _ := cg.info.StorageField(ref.Field)
		return cg.genMapGetOr(f, get.Args[0], n.Args[0])
	}
	return fmt.Errorf("unsupported method %q", n.Name)
}

// genKey evaluates a map key expression; keys always travel as i64.
func (cg *CodeGen) genKey(f *StorageInfo, key Expr) error {
	return cg.genExpr(key)
}

// genMapGet loads a map entry, reverting when the key is absent.
// This is the lowering of both get(k)? and a returned get(k).
func (cg *CodeGen) genMapGet(f *StorageInfo, key Expr) error {
	tk := cg.allocLocal(wasm.I64)
	if err := cg.genKey(f, key); err != nil {
		return err
	}
	cg.opU32(wasm.OpLocalSet, tk)

	cg.i32Const(f.Slot)
	cg.opU32(wasm.OpLocalGet, tk)
	cg.callHost(vm.HostStorageHas)
	cg.op(wasm.OpI32Eqz)
	cg.op(wasm.OpIf)
	cg.op(wasm.BlockEmpty)
	cg.abort(vm.AbortMissingKey)
	cg.op(wasm.OpEnd)

	cg.i32Const(f.Slot)
	cg.opU32(wasm.OpLocalGet, tk)
	cg.callHost(vm.HostStorageLoad)
	if f.Type.Elem.Kind == TypeBool {
		cg.op(wasm.OpI32WrapI64)
	}
	return nil
}

// genMapGetOr loads a map entry, producing the default when absent.
func (cg *CodeGen) genMapGetOr(f *StorageInfo, key, def Expr) error {
	tk := cg.allocLocal(wasm.I64)
	if err := cg.genKey(f, key); err != nil {
		return err
	}
	cg.opU32(wasm.OpLocalSet, tk)

	cg.i32Const(f.Slot)
	cg.opU32(wasm.OpLocalGet, tk)
	cg.callHost(vm.HostStorageHas)
	cg.op(wasm.OpIf)
	cg.op(byte(valType(f.Type.Elem)))
	cg.i32Const(f.Slot)
	cg.opU32(wasm.OpLocalGet, tk)
	cg.callHost(vm.HostStorageLoad)
	if f.Type.Elem.Kind == TypeBool {
		cg.op(wasm.OpI32WrapI64)
	}
	cg.op(wasm.OpElse)
	if err := cg.genExpr(def); err != nil {
		return err
	}
	cg.op(wasm.OpEnd)
	return nil
}

// internString pools a string literal and returns its memory offset.
func (cg *CodeGen) internString(s string) uint32 {
	if off, ok := cg.stringPool[s]; ok {
		return off
	}
	off := cg.nextData
	cg.stringPool[s] = off
	cg.nextData += uint32(len(s)) + 1 // spacer byte between segments
	return off
}

// flushStringPool emits one data segment per pooled string, in offset
// order, and sizes the module memory to hold them.
func (cg *CodeGen) flushStringPool() {
	if len(cg.stringPool) == 0 {
		return
	}
	strs := make([]string, 0, len(cg.stringPool))
	for s := range cg.stringPool {
		strs = append(strs, s)
	}
	sort.Slice(strs, func(i, j int) bool {
		return cg.stringPool[strs[i]] < cg.stringPool[strs[j]]
	})
	for _, s := range strs {
		cg.mod.Data = append(cg.mod.Data, wasm.DataSegment{
			Offset: cg.stringPool[s],
			Bytes:  []byte(s),
		})
	}
	cg.mod.MemoryPages = 1
}
