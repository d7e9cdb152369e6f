package compiler

import (
	"fmt"

	"swiftsc/pkg/wasm"
)

// Artifact is the output of a full compile: the encoded wasm module and
// its JSON ABI.
type Artifact struct {
	Name string // contract name
	Wasm []byte
	ABI  []byte
}

// Compile runs the full pipeline on one source file:
// lex, parse, analyze, generate, encode.
func Compile(src string) (*Artifact, error) {
	tokens, err := Lex(src)
	if err != nil {
		return nil, fmt.Errorf("lex: %w", err)
	}

	prog, err := Parse(tokens, src)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	info, err := Analyze(prog)
	if err != nil {
		return nil, fmt.Errorf("check: %w", err)
	}

	mod, err := Generate(prog, info)
	if err != nil {
		return nil, fmt.Errorf("codegen: %w", err)
	}

	code, err := wasm.Encode(mod)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	abi, err := BuildABI(info).Marshal()
	if err != nil {
		return nil, fmt.Errorf("abi: %w", err)
	}

	return &Artifact{Name: info.Name, Wasm: code, ABI: abi}, nil
}
