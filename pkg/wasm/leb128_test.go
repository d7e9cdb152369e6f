package wasm

import (
	"bytes"
	"testing"
)

func TestUint32RoundTrip(t *testing.T) {
	values := []uint32{0, 1, 63, 64, 127, 128, 300, 16384, 1 << 20, ^uint32(0)}
	for _, v := range values {
		enc := AppendUint32(nil, v)
		got, err := ReadUint32(bytes.NewReader(enc))
		if err != nil {
			t.Fatalf("%d: read error: %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d -> %d", v, got)
		}
	}
}

func TestInt64RoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 63, -64, 64, -65, 127, 128, -128, 1 << 40, -(1 << 40), 9223372036854775807, -9223372036854775808}
	for _, v := range values {
		enc := AppendInt64(nil, v)
		got, err := ReadInt64(bytes.NewReader(enc))
		if err != nil {
			t.Fatalf("%d: read error: %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d -> %d", v, got)
		}
	}
}

func TestInt32RoundTrip(t *testing.T) {
	values := []int32{0, -1, 1, 2147483647, -2147483648, 12345, -12345}
	for _, v := range values {
		enc := AppendInt32(nil, v)
		got, err := ReadInt32(bytes.NewReader(enc))
		if err != nil {
			t.Fatalf("%d: read error: %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d -> %d", v, got)
		}
	}
}

func TestKnownEncodings(t *testing.T) {
	// Spot checks against hand-computed LEB128 bytes.
	if got := AppendUint32(nil, 624485); !bytes.Equal(got, []byte{0xE5, 0x8E, 0x26}) {
		t.Errorf("624485 = % x", got)
	}
	if got := AppendInt64(nil, -123456); !bytes.Equal(got, []byte{0xC0, 0xBB, 0x78}) {
		t.Errorf("-123456 = % x", got)
	}
}

func TestReadUint32Truncated(t *testing.T) {
	if _, err := ReadUint32(bytes.NewReader([]byte{0x80})); err == nil {
		t.Error("expected an error for a truncated encoding")
	}
}
