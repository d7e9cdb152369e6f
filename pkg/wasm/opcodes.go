package wasm

// Opcodes for the instruction subset the code generator emits and the
// simulator interprets. Values are the standard WebAssembly binary opcodes.
const (
	OpUnreachable byte = 0x00
	OpNop         byte = 0x01
	OpBlock       byte = 0x02
	OpLoop        byte = 0x03
	OpIf          byte = 0x04
	OpElse        byte = 0x05
	OpEnd         byte = 0x0B
	OpBr          byte = 0x0C
	OpBrIf        byte = 0x0D
	OpReturn      byte = 0x0F
	OpCall        byte = 0x10

	OpDrop byte = 0x1A

	OpLocalGet byte = 0x20
	OpLocalSet byte = 0x21
	OpLocalTee byte = 0x22

	OpI32Const byte = 0x41
	OpI64Const byte = 0x42

	OpI32Eqz byte = 0x45
	OpI32Eq  byte = 0x46
	OpI32Ne  byte = 0x47

	OpI64Eqz byte = 0x50
	OpI64Eq  byte = 0x51
	OpI64Ne  byte = 0x52
	OpI64LtU byte = 0x54
	OpI64GtU byte = 0x56
	OpI64LeU byte = 0x58
	OpI64GeU byte = 0x5A

	OpI32And byte = 0x71
	OpI32Or  byte = 0x72

	OpI64Add  byte = 0x7C
	OpI64Sub  byte = 0x7D
	OpI64Mul  byte = 0x7E
	OpI64DivU byte = 0x80
	OpI64RemU byte = 0x82

	OpI32WrapI64   byte = 0xA7
	OpI64ExtendI32U byte = 0xAD
)

// BlockEmpty is the block type byte for a block with no result value.
const BlockEmpty byte = 0x40

var opNames = map[byte]string{
	OpUnreachable:   "unreachable",
	OpNop:           "nop",
	OpBlock:         "block",
	OpLoop:          "loop",
	OpIf:            "if",
	OpElse:          "else",
	OpEnd:           "end",
	OpBr:            "br",
	OpBrIf:          "br_if",
	OpReturn:        "return",
	OpCall:          "call",
	OpDrop:          "drop",
	OpLocalGet:      "local.get",
	OpLocalSet:      "local.set",
	OpLocalTee:      "local.tee",
	OpI32Const:      "i32.const",
	OpI64Const:      "i64.const",
	OpI32Eqz:        "i32.eqz",
	OpI32Eq:         "i32.eq",
	OpI32Ne:         "i32.ne",
	OpI64Eqz:        "i64.eqz",
	OpI64Eq:         "i64.eq",
	OpI64Ne:         "i64.ne",
	OpI64LtU:        "i64.lt_u",
	OpI64GtU:        "i64.gt_u",
	OpI64LeU:        "i64.le_u",
	OpI64GeU:        "i64.ge_u",
	OpI32And:        "i32.and",
	OpI32Or:         "i32.or",
	OpI64Add:        "i64.add",
	OpI64Sub:        "i64.sub",
	OpI64Mul:        "i64.mul",
	OpI64DivU:       "i64.div_u",
	OpI64RemU:       "i64.rem_u",
	OpI32WrapI64:    "i32.wrap_i64",
	OpI64ExtendI32U: "i64.extend_i32_u",
}

// OpName returns the text-format mnemonic for op, or a hex placeholder
// for opcodes outside the emitted subset.
func OpName(op byte) string {
	if n, ok := opNames[op]; ok {
		return n
	}
	return "op(0x" + hexByte(op) + ")"
}

func hexByte(b byte) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[b>>4], digits[b&0x0F]})
}
