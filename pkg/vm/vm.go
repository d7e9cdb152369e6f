package vm

import (
	"fmt"

	"swiftsc/pkg/wasm"
)

// maxCallDepth bounds contract-to-contract recursion.
const maxCallDepth = 256

// Instance is a loaded module bound to an environment, ready to invoke.
type Instance struct {
	mod     *wasm.Module
	env     *Env
	strings map[uint32]string
	meta    []*funcMeta
}

// funcMeta caches the per-function data the interpreter needs:
// signature, full local frame layout, and resolved control targets.
type funcMeta struct {
	typ    wasm.FuncType
	locals []wasm.ValType
	body   []byte
	ctrl   map[int]ctrlTarget
}

// ctrlTarget records, for a block/loop/if opcode at a body position,
// where its else and end opcodes sit.
type ctrlTarget struct {
	elsePos int // -1 when there is no else
	endPos  int
}

// NewInstance validates the module against the host ABI and prepares
// it for execution.
func NewInstance(mod *wasm.Module, env *Env) (*Instance, error) {
	if len(mod.Imports) != NumHostImports {
		return nil, fmt.Errorf("module imports %d functions, host provides %d", len(mod.Imports), NumHostImports)
	}
	for i, imp := range mod.Imports {
		want := HostImports[i]
		if imp.Module != "env" || imp.Name != want.Name {
			return nil, fmt.Errorf("import %d: got %s.%s, want env.%s", i, imp.Module, imp.Name, want.Name)
		}
		if int(imp.TypeIndex) >= len(mod.Types) || !mod.Types[imp.TypeIndex].Equal(want.Type) {
			return nil, fmt.Errorf("import env.%s: signature mismatch", imp.Name)
		}
	}

	in := &Instance{mod: mod, env: env, strings: make(map[uint32]string)}
	for _, seg := range mod.Data {
		in.strings[seg.Offset] = string(seg.Bytes)
	}

	for i, fn := range mod.Funcs {
		ft, err := mod.TypeOf(uint32(NumHostImports + i))
		if err != nil {
			return nil, err
		}
		ctrl, err := scanCtrl(fn.Body)
		if err != nil {
			return nil, fmt.Errorf("func %d: %v", i, err)
		}
		in.meta = append(in.meta, &funcMeta{typ: ft, locals: fn.Locals, body: fn.Body, ctrl: ctrl})
	}
	return in, nil
}

// Env returns the bound environment.
func (in *Instance) Env() *Env {
	return in.env
}

// Invoke calls an exported function. u64 and Address arguments are
// passed as their raw values; bool as 0 or 1.
func (in *Instance) Invoke(name string, args ...uint64) ([]uint64, error) {
	fn, ok := in.mod.ExportedFunc(name)
	if !ok {
		return nil, fmt.Errorf("no exported function %q", name)
	}
	ft, err := in.mod.TypeOf(fn)
	if err != nil {
		return nil, err
	}
	if len(args) != len(ft.Params) {
		return nil, fmt.Errorf("%s expects %d argument(s), got %d", name, len(ft.Params), len(args))
	}
	return in.call(fn, args, 0)
}

func (in *Instance) call(fn uint32, args []uint64, depth int) ([]uint64, error) {
	if depth > maxCallDepth {
		return nil, ErrCallDepth
	}
	if fn < NumHostImports {
		return in.callHost(fn, args)
	}
	fm := in.meta[fn-NumHostImports]

	locals := make([]uint64, len(fm.typ.Params)+len(fm.locals))
	copy(locals, args)
	return in.exec(fm, locals, depth)
}

//  Body scanning

// reader is a byte cursor over a function body.
type reader struct {
	body []byte
	pc   int
}

func (r *reader) byte() (byte, error) {
	if r.pc >= len(r.body) {
		return 0, fmt.Errorf("truncated body at offset %d", r.pc)
	}
	b := r.body[r.pc]
	r.pc++
	return b, nil
}

// ReadByte makes reader usable with the leb128 helpers.
func (r *reader) ReadByte() (byte, error) { return r.byte() }

// scanCtrl resolves block/loop/if structure ahead of execution so
// branches are O(1) jumps at run time.
func scanCtrl(body []byte) (map[int]ctrlTarget, error) {
	targets := make(map[int]ctrlTarget)
	var open []int // positions of unclosed block/loop/if opcodes
	r := &reader{body: body}

	for r.pc < len(body) {
		pos := r.pc
		op, err := r.byte()
		if err != nil {
			return nil, err
		}
		switch op {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			if _, err := r.byte(); err != nil { // block type
				return nil, err
			}
			open = append(open, pos)
			targets[pos] = ctrlTarget{elsePos: -1}
		case wasm.OpElse:
			if len(open) == 0 {
				return nil, fmt.Errorf("else without if at offset %d", pos)
			}
			ifPos := open[len(open)-1]
			if body[ifPos] != wasm.OpIf {
				return nil, fmt.Errorf("else outside if at offset %d", pos)
			}
			t := targets[ifPos]
			t.elsePos = pos
			targets[ifPos] = t
		case wasm.OpEnd:
			if len(open) == 0 {
				// Function-level end: must be the final byte.
				if r.pc != len(body) {
					return nil, fmt.Errorf("instructions after function end at offset %d", pos)
				}
				return targets, nil
			}
			top := open[len(open)-1]
			open = open[:len(open)-1]
			t := targets[top]
			t.endPos = pos
			targets[top] = t
		case wasm.OpBr, wasm.OpBrIf, wasm.OpCall, wasm.OpLocalGet, wasm.OpLocalSet, wasm.OpLocalTee:
			if _, err := wasm.ReadUint32(r); err != nil {
				return nil, err
			}
		case wasm.OpI32Const:
			if _, err := wasm.ReadInt32(r); err != nil {
				return nil, err
			}
		case wasm.OpI64Const:
			if _, err := wasm.ReadInt64(r); err != nil {
				return nil, err
			}
		case wasm.OpUnreachable, wasm.OpNop, wasm.OpReturn, wasm.OpDrop,
			wasm.OpI32Eqz, wasm.OpI32Eq, wasm.OpI32Ne,
			wasm.OpI64Eqz, wasm.OpI64Eq, wasm.OpI64Ne,
			wasm.OpI64LtU, wasm.OpI64GtU, wasm.OpI64LeU, wasm.OpI64GeU,
			wasm.OpI32And, wasm.OpI32Or,
			wasm.OpI64Add, wasm.OpI64Sub, wasm.OpI64Mul, wasm.OpI64DivU, wasm.OpI64RemU,
			wasm.OpI32WrapI64, wasm.OpI64ExtendI32U:
			// no immediates
		default:
			return nil, fmt.Errorf("unsupported opcode %s at offset %d", wasm.OpName(op), pos)
		}
	}
	return nil, fmt.Errorf("missing function end")
}

//  Execution

// ctrlFrame is one live block/loop/if during execution.
type ctrlFrame struct {
	op     byte
	pos    int
	endPos int
	stackH int // operand stack height at entry
}

func (in *Instance) exec(fm *funcMeta, locals []uint64, depth int) ([]uint64, error) {
	var stack []uint64
	var ctrl []ctrlFrame
	r := &reader{body: fm.body}

	pop := func() uint64 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}
	push := func(v uint64) { stack = append(stack, v) }
	pushBool := func(b bool) {
		if b {
			push(1)
		} else {
			push(0)
		}
	}
	finish := func() ([]uint64, error) {
		n := len(fm.typ.Results)
		if len(stack) < n {
			return nil, fmt.Errorf("operand stack underflow on return")
		}
		return append([]uint64(nil), stack[len(stack)-n:]...), nil
	}

	// branch transfers control to the d-th enclosing label; branching
	// past the outermost label returns from the function.
	branch := func(d uint32) (done bool) {
		if int(d) >= len(ctrl) {
			return true
		}
		idx := len(ctrl) - 1 - int(d)
		target := ctrl[idx]
		stack = stack[:target.stackH]
		if target.op == wasm.OpLoop {
			ctrl = ctrl[:idx+1]
			r.pc = target.pos + 2 // past opcode and block type
		} else {
			ctrl = ctrl[:idx+1]
			r.pc = target.endPos // the end opcode pops the frame
		}
		return false
	}

	for {
		if err := in.env.charge(gasInstr); err != nil {
			return nil, err
		}
		pos := r.pc
		op, err := r.byte()
		if err != nil {
			return nil, err
		}

		switch op {
		case wasm.OpUnreachable:
			return nil, fmt.Errorf("unreachable executed at offset %d", pos)
		case wasm.OpNop:

		case wasm.OpBlock, wasm.OpLoop:
			if _, err := r.byte(); err != nil {
				return nil, err
			}
			ctrl = append(ctrl, ctrlFrame{op: op, pos: pos, endPos: fm.ctrl[pos].endPos, stackH: len(stack)})

		case wasm.OpIf:
			if _, err := r.byte(); err != nil {
				return nil, err
			}
			cond := pop()
			t := fm.ctrl[pos]
			frame := ctrlFrame{op: op, pos: pos, endPos: t.endPos, stackH: len(stack)}
			if uint32(cond) != 0 {
				ctrl = append(ctrl, frame)
			} else if t.elsePos >= 0 {
				ctrl = append(ctrl, frame)
				r.pc = t.elsePos + 1
			} else {
				r.pc = t.endPos + 1
			}

		case wasm.OpElse:
			// Fallen off the then branch: skip to the matching end.
			top := ctrl[len(ctrl)-1]
			r.pc = top.endPos

		case wasm.OpEnd:
			if len(ctrl) > 0 {
				ctrl = ctrl[:len(ctrl)-1]
				continue
			}
			return finish()

		case wasm.OpBr:
			d, err := wasm.ReadUint32(r)
			if err != nil {
				return nil, err
			}
			if branch(d) {
				return finish()
			}

		case wasm.OpBrIf:
			d, err := wasm.ReadUint32(r)
			if err != nil {
				return nil, err
			}
			if uint32(pop()) != 0 {
				if branch(d) {
					return finish()
				}
			}

		case wasm.OpReturn:
			return finish()

		case wasm.OpCall:
			idx, err := wasm.ReadUint32(r)
			if err != nil {
				return nil, err
			}
			ft, err := in.mod.TypeOf(idx)
			if err != nil {
				return nil, err
			}
			n := len(ft.Params)
			if len(stack) < n {
				return nil, fmt.Errorf("operand stack underflow calling function %d", idx)
			}
			args := append([]uint64(nil), stack[len(stack)-n:]...)
			stack = stack[:len(stack)-n]
			results, err := in.call(idx, args, depth+1)
			if err != nil {
				return nil, err
			}
			stack = append(stack, results...)

		case wasm.OpDrop:
			pop()

		case wasm.OpLocalGet:
			i, err := wasm.ReadUint32(r)
			if err != nil {
				return nil, err
			}
			push(locals[i])
		case wasm.OpLocalSet:
			i, err := wasm.ReadUint32(r)
			if err != nil {
				return nil, err
			}
			locals[i] = pop()
		case wasm.OpLocalTee:
			i, err := wasm.ReadUint32(r)
			if err != nil {
				return nil, err
			}
			locals[i] = stack[len(stack)-1]

		case wasm.OpI32Const:
			v, err := wasm.ReadInt32(r)
			if err != nil {
				return nil, err
			}
			push(uint64(uint32(v)))
		case wasm.OpI64Const:
			v, err := wasm.ReadInt64(r)
			if err != nil {
				return nil, err
			}
			push(uint64(v))

		case wasm.OpI32Eqz:
			pushBool(uint32(pop()) == 0)
		case wasm.OpI32Eq:
			b, a := uint32(pop()), uint32(pop())
			pushBool(a == b)
		case wasm.OpI32Ne:
			b, a := uint32(pop()), uint32(pop())
			pushBool(a != b)

		case wasm.OpI64Eqz:
			pushBool(pop() == 0)
		case wasm.OpI64Eq:
			b, a := pop(), pop()
			pushBool(a == b)
		case wasm.OpI64Ne:
			b, a := pop(), pop()
			pushBool(a != b)
		case wasm.OpI64LtU:
			b, a := pop(), pop()
			pushBool(a < b)
		case wasm.OpI64GtU:
			b, a := pop(), pop()
			pushBool(a > b)
		case wasm.OpI64LeU:
			b, a := pop(), pop()
			pushBool(a <= b)
		case wasm.OpI64GeU:
			b, a := pop(), pop()
			pushBool(a >= b)

		case wasm.OpI32And:
			b, a := uint32(pop()), uint32(pop())
			push(uint64(a & b))
		case wasm.OpI32Or:
			b, a := uint32(pop()), uint32(pop())
			push(uint64(a | b))

		case wasm.OpI64Add:
			b, a := pop(), pop()
			push(a + b)
		case wasm.OpI64Sub:
			b, a := pop(), pop()
			push(a - b)
		case wasm.OpI64Mul:
			b, a := pop(), pop()
			push(a * b)
		case wasm.OpI64DivU:
			b, a := pop(), pop()
			if b == 0 {
				return nil, fmt.Errorf("integer divide by zero at offset %d", pos)
			}
			push(a / b)
		case wasm.OpI64RemU:
			b, a := pop(), pop()
			if b == 0 {
				return nil, fmt.Errorf("integer divide by zero at offset %d", pos)
			}
			push(a % b)

		case wasm.OpI32WrapI64:
			push(uint64(uint32(pop())))
		case wasm.OpI64ExtendI32U:
			push(uint64(uint32(pop())))

		default:
			return nil, fmt.Errorf("unsupported opcode %s at offset %d", wasm.OpName(op), pos)
		}
	}
}

//  Host dispatch

func (in *Instance) callHost(idx uint32, args []uint64) ([]uint64, error) {
	if err := in.env.charge(gasHostBase); err != nil {
		return nil, err
	}
	e := in.env

	switch idx {
	case HostCaller:
		return []uint64{e.Caller}, nil

	case HostBalance:
		return []uint64{e.BalanceOf(args[0])}, nil

	case HostTransferNative:
		if err := e.charge(gasTransfer); err != nil {
			return nil, err
		}
		return nil, e.transferNative(args[0], args[1])

	case HostStorageLoad:
		if err := e.charge(gasStorage); err != nil {
			return nil, err
		}
		v, _ := e.load(int32(uint32(args[0])), args[1])
		return []uint64{v}, nil

	case HostStorageHas:
		if err := e.charge(gasStorage); err != nil {
			return nil, err
		}
		_, ok := e.load(int32(uint32(args[0])), args[1])
		if ok {
			return []uint64{1}, nil
		}
		return []uint64{0}, nil

	case HostStorageStore:
		if err := e.charge(gasStorage); err != nil {
			return nil, err
		}
		e.store(int32(uint32(args[0])), args[1], args[2])
		return nil, nil

	case HostEmit:
		if err := e.charge(gasEmit); err != nil {
			return nil, err
		}
		name, ok := in.strings[uint32(args[0])]
		if !ok {
			name = fmt.Sprintf("event@%d", uint32(args[0]))
		}
		e.Events = append(e.Events, Event{Name: name, Value: args[1]})
		return nil, nil

	case HostAbort:
		code := int32(uint32(args[0]))
		return nil, &RevertError{Code: code, Msg: AbortReason(code)}

	case HostRevert:
		msg, ok := in.strings[uint32(args[0])]
		if !ok {
			msg = "require failed"
		}
		return nil, &RevertError{Code: AbortRequire, Msg: msg}
	}
	return nil, fmt.Errorf("unknown host function index %d", idx)
}
