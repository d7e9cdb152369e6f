// Package deploy packages build artifacts for submission to a network:
// a deterministic bundle encoding, its content address, an ed25519
// signature over it, and the JSON-RPC submission client.
package deploy

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/pkg/errors"

	"swiftsc/pkg/compiler"
)

// bundleMagic opens every encoded bundle.
var bundleMagic = []byte("SSCB")

const bundleVersion byte = 1

// Bundle is what the chain stores for a deployed contract: the wasm
// module and its ABI.
type Bundle struct {
	Contract string
	Wasm     []byte
	ABI      []byte
}

// NewBundle wraps a compiled artifact.
func NewBundle(art *compiler.Artifact) *Bundle {
	return &Bundle{Contract: art.Name, Wasm: art.Wasm, ABI: art.ABI}
}

// Encode renders the bundle deterministically: identical inputs give
// identical bytes, so the CID is stable across machines.
func (b *Bundle) Encode() []byte {
	var buf bytes.Buffer
	buf.Write(bundleMagic)
	buf.WriteByte(bundleVersion)
	writeChunk(&buf, []byte(b.Contract))
	writeChunk(&buf, b.Wasm)
	writeChunk(&buf, b.ABI)
	return buf.Bytes()
}

// DecodeBundle parses an encoded bundle.
func DecodeBundle(data []byte) (*Bundle, error) {
	r := bytes.NewReader(data)
	head := make([]byte, 5)
	if _, err := io.ReadFull(r, head); err != nil || !bytes.Equal(head[:4], bundleMagic) {
		return nil, errors.New("not a contract bundle")
	}
	if head[4] != bundleVersion {
		return nil, errors.Errorf("unsupported bundle version %d", head[4])
	}
	name, err := readChunk(r)
	if err != nil {
		return nil, errors.Wrap(err, "contract name")
	}
	wasmBytes, err := readChunk(r)
	if err != nil {
		return nil, errors.Wrap(err, "wasm module")
	}
	abi, err := readChunk(r)
	if err != nil {
		return nil, errors.Wrap(err, "abi")
	}
	if r.Len() != 0 {
		return nil, errors.Errorf("%d trailing bytes after bundle", r.Len())
	}
	return &Bundle{Contract: string(name), Wasm: wasmBytes, ABI: abi}, nil
}

// CID returns the bundle's content address: a CIDv1 over the canonical
// encoding, raw multicodec with a sha2-256 multihash.
func (b *Bundle) CID() (string, error) {
	sum, err := multihash.Sum(b.Encode(), multihash.SHA2_256, -1)
	if err != nil {
		return "", errors.Wrap(err, "could not hash bundle")
	}
	return cid.NewCidV1(cid.Raw, sum).String(), nil
}

func writeChunk(buf *bytes.Buffer, data []byte) {
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(data)))
	buf.Write(lenBytes[:])
	buf.Write(data)
}

func readChunk(r *bytes.Reader) ([]byte, error) {
	var lenBytes [4]byte
	if _, err := io.ReadFull(r, lenBytes[:]); err != nil {
		return nil, errors.New("truncated chunk length")
	}
	size := binary.BigEndian.Uint32(lenBytes[:])
	if uint32(r.Len()) < size {
		return nil, errors.Errorf("chunk length %d exceeds remaining %d bytes", size, r.Len())
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, errors.New("truncated chunk")
	}
	return data, nil
}
