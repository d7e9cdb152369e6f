package wasm

import (
	"bytes"
	"fmt"
	"io"
)

// Decode parses a binary module produced by Encode (or any module that
// stays within the section and instruction subset this toolchain emits).
func Decode(data []byte) (*Module, error) {
	r := bytes.NewReader(data)

	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("module too short for header")
	}
	if !bytes.Equal(header[:4], magic) {
		return nil, fmt.Errorf("bad magic %x, not a wasm module", header[:4])
	}
	if !bytes.Equal(header[4:], version) {
		return nil, fmt.Errorf("unsupported wasm version %x", header[4:])
	}

	m := &Module{}
	lastSection := byte(0)
	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		size, err := ReadUint32(r)
		if err != nil {
			return nil, fmt.Errorf("section %d: %v", id, err)
		}
		if uint32(r.Len()) < size {
			return nil, fmt.Errorf("section %d: declared size %d exceeds remaining %d bytes", id, size, r.Len())
		}
		if id != 0 && id <= lastSection {
			return nil, fmt.Errorf("section %d out of order", id)
		}

		body := make([]byte, size)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, err
		}
		sr := bytes.NewReader(body)

		switch id {
		case 0:
			// Custom section: skipped.
			continue
		case secType:
			err = decodeTypeSection(sr, m)
		case secImport:
			err = decodeImportSection(sr, m)
		case secFunction:
			err = decodeFunctionSection(sr, m)
		case secMemory:
			err = decodeMemorySection(sr, m)
		case secExport:
			err = decodeExportSection(sr, m)
		case secCode:
			err = decodeCodeSection(sr, m)
		case secData:
			err = decodeDataSection(sr, m)
		default:
			return nil, fmt.Errorf("unsupported section id %d", id)
		}
		if err != nil {
			return nil, fmt.Errorf("section %d: %v", id, err)
		}
		if sr.Len() != 0 {
			return nil, fmt.Errorf("section %d: %d trailing bytes", id, sr.Len())
		}
		lastSection = id
	}

	return m, nil
}

func decodeTypeSection(r *bytes.Reader, m *Module) error {
	count, err := ReadUint32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		tag, err := r.ReadByte()
		if err != nil {
			return err
		}
		if tag != funcTypeTag {
			return fmt.Errorf("type %d: unexpected tag 0x%02X", i, tag)
		}
		var t FuncType
		if t.Params, err = readValTypes(r); err != nil {
			return fmt.Errorf("type %d params: %v", i, err)
		}
		if t.Results, err = readValTypes(r); err != nil {
			return fmt.Errorf("type %d results: %v", i, err)
		}
		m.Types = append(m.Types, t)
	}
	return nil
}

func decodeImportSection(r *bytes.Reader, m *Module) error {
	count, err := ReadUint32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		mod, err := readName(r)
		if err != nil {
			return err
		}
		name, err := readName(r)
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		if kind != 0x00 {
			return fmt.Errorf("import %s.%s: only function imports supported, got kind %d", mod, name, kind)
		}
		ti, err := ReadUint32(r)
		if err != nil {
			return err
		}
		if ti >= uint32(len(m.Types)) {
			return fmt.Errorf("import %s.%s: type index %d out of range", mod, name, ti)
		}
		m.Imports = append(m.Imports, Import{Module: mod, Name: name, TypeIndex: ti})
	}
	return nil
}

func decodeFunctionSection(r *bytes.Reader, m *Module) error {
	count, err := ReadUint32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		ti, err := ReadUint32(r)
		if err != nil {
			return err
		}
		if ti >= uint32(len(m.Types)) {
			return fmt.Errorf("func %d: type index %d out of range", i, ti)
		}
		m.Funcs = append(m.Funcs, Function{TypeIndex: ti})
	}
	return nil
}

func decodeMemorySection(r *bytes.Reader, m *Module) error {
	count, err := ReadUint32(r)
	if err != nil {
		return err
	}
	if count != 1 {
		return fmt.Errorf("expected exactly one memory, got %d", count)
	}
	limits, err := r.ReadByte()
	if err != nil {
		return err
	}
	min, err := ReadUint32(r)
	if err != nil {
		return err
	}
	if limits == 0x01 {
		if _, err := ReadUint32(r); err != nil { // max, ignored
			return err
		}
	} else if limits != 0x00 {
		return fmt.Errorf("unsupported limits flag 0x%02X", limits)
	}
	m.MemoryPages = min
	return nil
}

func decodeExportSection(r *bytes.Reader, m *Module) error {
	count, err := ReadUint32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		name, err := readName(r)
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		idx, err := ReadUint32(r)
		if err != nil {
			return err
		}
		if kind != 0x00 {
			// Memory/global/table exports carry no meaning for the
			// simulator; they are dropped rather than rejected.
			continue
		}
		if idx >= uint32(len(m.Imports)+len(m.Funcs)) {
			return fmt.Errorf("export %q: function index %d out of range", name, idx)
		}
		m.Exports = append(m.Exports, Export{Name: name, FuncIndex: idx})
	}
	return nil
}

func decodeCodeSection(r *bytes.Reader, m *Module) error {
	count, err := ReadUint32(r)
	if err != nil {
		return err
	}
	if count != uint32(len(m.Funcs)) {
		return fmt.Errorf("code entries (%d) do not match function section (%d)", count, len(m.Funcs))
	}
	for i := uint32(0); i < count; i++ {
		size, err := ReadUint32(r)
		if err != nil {
			return err
		}
		entry := make([]byte, size)
		if _, err := io.ReadFull(r, entry); err != nil {
			return fmt.Errorf("code entry %d truncated", i)
		}
		er := bytes.NewReader(entry)

		runs, err := ReadUint32(er)
		if err != nil {
			return err
		}
		var locals []ValType
		for j := uint32(0); j < runs; j++ {
			n, err := ReadUint32(er)
			if err != nil {
				return err
			}
			tb, err := er.ReadByte()
			if err != nil {
				return err
			}
			vt := ValType(tb)
			if vt != I32 && vt != I64 {
				return fmt.Errorf("code entry %d: unsupported local type 0x%02X", i, tb)
			}
			for k := uint32(0); k < n; k++ {
				locals = append(locals, vt)
			}
		}

		body := make([]byte, er.Len())
		if _, err := io.ReadFull(er, body); err != nil {
			return err
		}
		if len(body) == 0 || body[len(body)-1] != OpEnd {
			return fmt.Errorf("code entry %d: body does not end with end opcode", i)
		}
		m.Funcs[i].Locals = locals
		m.Funcs[i].Body = body
	}
	return nil
}

func decodeDataSection(r *bytes.Reader, m *Module) error {
	count, err := ReadUint32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		memIdx, err := ReadUint32(r)
		if err != nil {
			return err
		}
		if memIdx != 0 {
			return fmt.Errorf("data segment %d: only memory 0 supported", i)
		}
		op, err := r.ReadByte()
		if err != nil {
			return err
		}
		if op != OpI32Const {
			return fmt.Errorf("data segment %d: offset must be an i32.const expression", i)
		}
		off, err := ReadInt32(r)
		if err != nil {
			return err
		}
		if end, err := r.ReadByte(); err != nil || end != OpEnd {
			return fmt.Errorf("data segment %d: unterminated offset expression", i)
		}
		size, err := ReadUint32(r)
		if err != nil {
			return err
		}
		seg := make([]byte, size)
		if _, err := io.ReadFull(r, seg); err != nil {
			return fmt.Errorf("data segment %d truncated", i)
		}
		m.Data = append(m.Data, DataSegment{Offset: uint32(off), Bytes: seg})
	}
	return nil
}

func readValTypes(r *bytes.Reader) ([]ValType, error) {
	count, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}
	var out []ValType
	for i := uint32(0); i < count; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		vt := ValType(b)
		if vt != I32 && vt != I64 {
			return nil, fmt.Errorf("unsupported value type 0x%02X", b)
		}
		out = append(out, vt)
	}
	return out, nil
}

func readName(r *bytes.Reader) (string, error) {
	size, err := ReadUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("truncated name")
	}
	return string(buf), nil
}
