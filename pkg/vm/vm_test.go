package vm

import (
	"errors"
	"testing"

	"swiftsc/pkg/wasm"
)

// hostModule returns a module that imports the full host ABI, ready to
// take local functions.
func hostModule() *wasm.Module {
	m := &wasm.Module{}
	for _, h := range HostImports {
		ti := m.AddType(h.Type)
		m.Imports = append(m.Imports, wasm.Import{Module: "env", Name: h.Name, TypeIndex: ti})
	}
	return m
}

// addFunc appends a local function and exports it.
func addFunc(m *wasm.Module, name string, ft wasm.FuncType, locals []wasm.ValType, body []byte) {
	ti := m.AddType(ft)
	m.Funcs = append(m.Funcs, wasm.Function{TypeIndex: ti, Locals: locals, Body: body})
	m.Exports = append(m.Exports, wasm.Export{
		Name:      name,
		FuncIndex: m.NumImports() + uint32(len(m.Funcs)-1),
	})
}

func i64Const(v int64) []byte {
	return wasm.AppendInt64([]byte{wasm.OpI64Const}, v)
}

func TestInvokeConstant(t *testing.T) {
	m := hostModule()
	body := append(i64Const(42), wasm.OpEnd)
	addFunc(m, "answer", wasm.FuncType{Results: []wasm.ValType{wasm.I64}}, nil, body)

	inst, err := NewInstance(m, NewEnv())
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	regs, err := inst.Invoke("answer")
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(regs) != 1 || regs[0] != 42 {
		t.Errorf("answer() = %v", regs)
	}
}

func TestInvokeParams(t *testing.T) {
	m := hostModule()
	var body []byte
	body = append(body, wasm.OpLocalGet)
	body = wasm.AppendUint32(body, 0)
	body = append(body, wasm.OpLocalGet)
	body = wasm.AppendUint32(body, 1)
	body = append(body, wasm.OpI64Add, wasm.OpEnd)
	addFunc(m, "add", wasm.FuncType{
		Params:  []wasm.ValType{wasm.I64, wasm.I64},
		Results: []wasm.ValType{wasm.I64},
	}, nil, body)

	inst, err := NewInstance(m, NewEnv())
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	regs, err := inst.Invoke("add", 40, 2)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if regs[0] != 42 {
		t.Errorf("add(40, 2) = %d", regs[0])
	}
}

func TestBranching(t *testing.T) {
	// block { local.get 0; br_if 0; i64.const 1; local.set 1 } local.get 1
	var body []byte
	body = append(body, wasm.OpBlock, wasm.BlockEmpty)
	body = append(body, wasm.OpLocalGet)
	body = wasm.AppendUint32(body, 0)
	body = append(body, wasm.OpI32WrapI64)
	body = append(body, wasm.OpBrIf)
	body = wasm.AppendUint32(body, 0)
	body = append(body, i64Const(1)...)
	body = append(body, wasm.OpLocalSet)
	body = wasm.AppendUint32(body, 1)
	body = append(body, wasm.OpEnd) // block
	body = append(body, wasm.OpLocalGet)
	body = wasm.AppendUint32(body, 1)
	body = append(body, wasm.OpEnd)

	m := hostModule()
	addFunc(m, "skip_if", wasm.FuncType{
		Params:  []wasm.ValType{wasm.I64},
		Results: []wasm.ValType{wasm.I64},
	}, []wasm.ValType{wasm.I64}, body)

	inst, err := NewInstance(m, NewEnv())
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	// Nonzero argument branches over the store, leaving the local 0.
	if regs, err := inst.Invoke("skip_if", 1); err != nil || regs[0] != 0 {
		t.Errorf("skip_if(1) = %v, %v", regs, err)
	}
	if regs, err := inst.Invoke("skip_if", 0); err != nil || regs[0] != 1 {
		t.Errorf("skip_if(0) = %v, %v", regs, err)
	}
}

func TestHostCallerRoundTrip(t *testing.T) {
	m := hostModule()
	var body []byte
	body = append(body, wasm.OpCall)
	body = wasm.AppendUint32(body, HostCaller)
	body = append(body, wasm.OpEnd)
	addFunc(m, "who", wasm.FuncType{Results: []wasm.ValType{wasm.I64}}, nil, body)

	env := NewEnv()
	env.Caller = 0xBEEF
	inst, err := NewInstance(m, env)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	regs, err := inst.Invoke("who")
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if regs[0] != 0xBEEF {
		t.Errorf("who() = %#x", regs[0])
	}
}

func TestAbortBecomesRevertError(t *testing.T) {
	m := hostModule()
	var body []byte
	body = wasm.AppendInt32(append(body, wasm.OpI32Const), AbortRequire)
	body = append(body, wasm.OpCall)
	body = wasm.AppendUint32(body, HostAbort)
	body = append(body, wasm.OpUnreachable, wasm.OpEnd)
	addFunc(m, "fail", wasm.FuncType{}, nil, body)

	inst, err := NewInstance(m, NewEnv())
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	_, err = inst.Invoke("fail")
	var rev *RevertError
	if !errors.As(err, &rev) {
		t.Fatalf("expected a revert error, got %v", err)
	}
	if rev.Code != AbortRequire {
		t.Errorf("code = %d, want %d", rev.Code, AbortRequire)
	}
}

func TestCallDepthLimit(t *testing.T) {
	m := hostModule()
	var body []byte
	body = append(body, wasm.OpCall)
	body = wasm.AppendUint32(body, NumHostImports) // itself
	body = append(body, wasm.OpEnd)
	addFunc(m, "recurse", wasm.FuncType{}, nil, body)

	inst, err := NewInstance(m, NewEnv())
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	_, err = inst.Invoke("recurse")
	if !errors.Is(err, ErrCallDepth) {
		t.Fatalf("expected call depth error, got %v", err)
	}
}

func TestOutOfGas(t *testing.T) {
	// loop { br 0 }
	var body []byte
	body = append(body, wasm.OpLoop, wasm.BlockEmpty)
	body = append(body, wasm.OpBr)
	body = wasm.AppendUint32(body, 0)
	body = append(body, wasm.OpEnd, wasm.OpEnd)

	m := hostModule()
	addFunc(m, "forever", wasm.FuncType{}, nil, body)

	env := NewEnv()
	env.Metering = true
	env.GasLimit = 100
	inst, err := NewInstance(m, env)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	_, err = inst.Invoke("forever")
	if !errors.Is(err, ErrOutOfGas) {
		t.Fatalf("expected out of gas, got %v", err)
	}
}

func TestInstanceRejectsBadImports(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *wasm.Module)
	}{
		{"Missing Import", func(m *wasm.Module) { m.Imports = m.Imports[:len(m.Imports)-1] }},
		{"Wrong Name", func(m *wasm.Module) { m.Imports[0].Name = "tx_origin" }},
		{"Wrong Module", func(m *wasm.Module) { m.Imports[0].Module = "sys" }},
		{"Wrong Signature", func(m *wasm.Module) {
			m.Imports[0].TypeIndex = m.AddType(wasm.FuncType{Params: []wasm.ValType{wasm.I32}})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := hostModule()
			tt.mutate(m)
			if _, err := NewInstance(m, NewEnv()); err == nil {
				t.Error("expected an instantiation error")
			}
		})
	}
}

func TestInvokeUnknownExport(t *testing.T) {
	inst, err := NewInstance(hostModule(), NewEnv())
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	if _, err := inst.Invoke("nope"); err == nil {
		t.Error("expected an error for an unknown export")
	}
}

func TestInvokeArgCount(t *testing.T) {
	m := hostModule()
	body := []byte{wasm.OpLocalGet}
	body = wasm.AppendUint32(body, 0)
	body = append(body, wasm.OpEnd)
	addFunc(m, "id", wasm.FuncType{
		Params:  []wasm.ValType{wasm.I64},
		Results: []wasm.ValType{wasm.I64},
	}, nil, body)

	inst, err := NewInstance(m, NewEnv())
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	if _, err := inst.Invoke("id"); err == nil {
		t.Error("expected an argument count error")
	}
	if _, err := inst.Invoke("id", 1, 2); err == nil {
		t.Error("expected an argument count error")
	}
}
