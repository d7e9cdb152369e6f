package wasm

import "fmt"

// Section ids, in the order a valid module must emit them.
const (
	secType     byte = 1
	secImport   byte = 2
	secFunction byte = 3
	secMemory   byte = 5
	secExport   byte = 7
	secCode     byte = 10
	secData     byte = 11
)

var magic = []byte{0x00, 0x61, 0x73, 0x6D} // "\0asm"
var version = []byte{0x01, 0x00, 0x00, 0x00}

const funcTypeTag byte = 0x60

// Encode serializes m into the WebAssembly binary format.
func Encode(m *Module) ([]byte, error) {
	out := make([]byte, 0, 512)
	out = append(out, magic...)
	out = append(out, version...)

	if len(m.Types) > 0 {
		var body []byte
		body = AppendUint32(body, uint32(len(m.Types)))
		for _, t := range m.Types {
			body = append(body, funcTypeTag)
			body = AppendUint32(body, uint32(len(t.Params)))
			for _, p := range t.Params {
				body = append(body, byte(p))
			}
			body = AppendUint32(body, uint32(len(t.Results)))
			for _, r := range t.Results {
				body = append(body, byte(r))
			}
		}
		out = appendSection(out, secType, body)
	}

	if len(m.Imports) > 0 {
		var body []byte
		body = AppendUint32(body, uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			if imp.TypeIndex >= uint32(len(m.Types)) {
				return nil, fmt.Errorf("import %s.%s: type index %d out of range", imp.Module, imp.Name, imp.TypeIndex)
			}
			body = appendName(body, imp.Module)
			body = appendName(body, imp.Name)
			body = append(body, 0x00) // func import
			body = AppendUint32(body, imp.TypeIndex)
		}
		out = appendSection(out, secImport, body)
	}

	if len(m.Funcs) > 0 {
		var body []byte
		body = AppendUint32(body, uint32(len(m.Funcs)))
		for i, fn := range m.Funcs {
			if fn.TypeIndex >= uint32(len(m.Types)) {
				return nil, fmt.Errorf("func %d: type index %d out of range", i, fn.TypeIndex)
			}
			body = AppendUint32(body, fn.TypeIndex)
		}
		out = appendSection(out, secFunction, body)
	}

	if m.MemoryPages > 0 {
		var body []byte
		body = AppendUint32(body, 1)    // one memory
		body = append(body, 0x00)       // limits: min only
		body = AppendUint32(body, m.MemoryPages)
		out = appendSection(out, secMemory, body)
	}

	if len(m.Exports) > 0 {
		var body []byte
		body = AppendUint32(body, uint32(len(m.Exports)))
		for _, e := range m.Exports {
			if e.FuncIndex >= uint32(len(m.Imports)+len(m.Funcs)) {
				return nil, fmt.Errorf("export %q: function index %d out of range", e.Name, e.FuncIndex)
			}
			body = appendName(body, e.Name)
			body = append(body, 0x00) // func export
			body = AppendUint32(body, e.FuncIndex)
		}
		out = appendSection(out, secExport, body)
	}

	if len(m.Funcs) > 0 {
		var body []byte
		body = AppendUint32(body, uint32(len(m.Funcs)))
		for i, fn := range m.Funcs {
			entry, err := encodeCodeEntry(fn)
			if err != nil {
				return nil, fmt.Errorf("func %d: %v", i, err)
			}
			body = AppendUint32(body, uint32(len(entry)))
			body = append(body, entry...)
		}
		out = appendSection(out, secCode, body)
	}

	if len(m.Data) > 0 {
		var body []byte
		body = AppendUint32(body, uint32(len(m.Data)))
		for _, d := range m.Data {
			body = AppendUint32(body, 0) // memory 0
			body = append(body, OpI32Const)
			body = AppendInt32(body, int32(d.Offset))
			body = append(body, OpEnd)
			body = AppendUint32(body, uint32(len(d.Bytes)))
			body = append(body, d.Bytes...)
		}
		out = appendSection(out, secData, body)
	}

	return out, nil
}

// encodeCodeEntry renders locals plus body for one code-section entry.
// Consecutive locals of one type are run-length grouped as the format requires.
func encodeCodeEntry(fn Function) ([]byte, error) {
	if len(fn.Body) == 0 || fn.Body[len(fn.Body)-1] != OpEnd {
		return nil, fmt.Errorf("body must end with the end opcode")
	}

	type localRun struct {
		count uint32
		typ   ValType
	}
	var runs []localRun
	for _, l := range fn.Locals {
		if len(runs) > 0 && runs[len(runs)-1].typ == l {
			runs[len(runs)-1].count++
			continue
		}
		runs = append(runs, localRun{count: 1, typ: l})
	}

	var entry []byte
	entry = AppendUint32(entry, uint32(len(runs)))
	for _, r := range runs {
		entry = AppendUint32(entry, r.count)
		entry = append(entry, byte(r.typ))
	}
	entry = append(entry, fn.Body...)
	return entry, nil
}

func appendSection(out []byte, id byte, body []byte) []byte {
	out = append(out, id)
	out = AppendUint32(out, uint32(len(body)))
	return append(out, body...)
}

func appendName(out []byte, name string) []byte {
	out = AppendUint32(out, uint32(len(name)))
	return append(out, name...)
}
