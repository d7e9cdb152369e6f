package wasm

import (
	"fmt"
	"io"
)

// AppendUint32 appends v to dst in unsigned LEB128 form.
func AppendUint32(dst []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			dst = append(dst, b|0x80)
			continue
		}
		return append(dst, b)
	}
}

// AppendInt32 appends v to dst in signed LEB128 form.
func AppendInt32(dst []byte, v int32) []byte {
	return AppendInt64(dst, int64(v))
}

// AppendInt64 appends v to dst in signed LEB128 form.
func AppendInt64(dst []byte, v int64) []byte {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		// Sign bit of b agrees with the remaining value: done.
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(dst, b)
		}
		dst = append(dst, b|0x80)
	}
}

// ReadUint32 reads an unsigned LEB128 value of at most 32 bits.
func ReadUint32(r io.ByteReader) (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("truncated uleb128: %v", err)
		}
		if shift >= 32 {
			return 0, fmt.Errorf("uleb128 exceeds 32 bits")
		}
		result |= uint32(b&0x7F) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

// ReadInt64 reads a signed LEB128 value of at most 64 bits.
func ReadInt64(r io.ByteReader) (int64, error) {
	var result int64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("truncated sleb128: %v", err)
		}
		if shift >= 64 {
			return 0, fmt.Errorf("sleb128 exceeds 64 bits")
		}
		result |= int64(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, nil
		}
	}
}

// ReadInt32 reads a signed LEB128 value that must fit in 32 bits.
func ReadInt32(r io.ByteReader) (int32, error) {
	v, err := ReadInt64(r)
	if err != nil {
		return 0, err
	}
	if v < -1<<31 || v > 1<<31-1 {
		return 0, fmt.Errorf("sleb128 value %d exceeds 32 bits", v)
	}
	return int32(v), nil
}
