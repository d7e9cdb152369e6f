package compiler

import "encoding/json"

// ABI is the JSON contract interface emitted next to the wasm module.
// Deployment tooling and the test runner read it to find callable
// functions and the storage layout.
type ABI struct {
	Contract  string       `json:"contract"`
	Functions []ABIFunc    `json:"functions"`
	Storage   []ABIStorage `json:"storage"`
	Events    []string     `json:"events,omitempty"`
}

type ABIFunc struct {
	Name    string     `json:"name"`
	Params  []ABIParam `json:"params"`
	Returns string     `json:"returns"`
}

type ABIParam struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type ABIStorage struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Slot int32  `json:"slot"`
}

// BuildABI renders the checked contract interface.
func BuildABI(info *ContractInfo) *ABI {
	abi := &ABI{Contract: info.Name, Events: info.Events}
	for _, fi := range info.Funcs {
		fn := ABIFunc{Name: fi.Name, Params: []ABIParam{}, Returns: fi.Return.String()}
		for _, p := range fi.Params {
			fn.Params = append(fn.Params, ABIParam{Name: p.Name, Type: p.Type.String()})
		}
		abi.Functions = append(abi.Functions, fn)
	}
	for _, s := range info.Storage {
		abi.Storage = append(abi.Storage, ABIStorage{Name: s.Name, Type: s.Type.String(), Slot: s.Slot})
	}
	return abi
}

// MarshalJSON output is deterministic: field order follows declaration
// order of the contract, which json.Marshal preserves for slices.
func (a *ABI) Marshal() ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}
