package vm

import (
	"errors"
	"fmt"

	"github.com/tidwall/btree"
)

// Trap and resource errors surfaced by execution.
var (
	ErrOutOfGas  = errors.New("out of gas")
	ErrCallDepth = errors.New("call depth exceeded")
)

// RevertError is a contract-initiated abort: an explicit Err, a failed
// require, checked-math overflow, or a missing storage key.
type RevertError struct {
	Code int32
	Msg  string
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("revert (code %d): %s", e.Code, e.Msg)
}

// Event is one emitted contract event.
type Event struct {
	Name  string
	Value uint64
}

// StorageEntry is one world-state cell, keyed by (slot, key).
// Scalar fields live under key 0 of their slot.
type StorageEntry struct {
	Slot  int32
	Key   uint64
	Value uint64
}

// balanceSlot holds native balances, below every contract storage slot.
const balanceSlot int32 = -1

func byStorageKey(a, b interface{}) bool {
	ea, eb := a.(*StorageEntry), b.(*StorageEntry)
	if ea.Slot != eb.Slot {
		return ea.Slot < eb.Slot
	}
	return ea.Key < eb.Key
}

// Gas costs. Plain instructions cost one unit; host calls carry
// weighted surcharges.
const (
	gasInstr    uint64 = 1
	gasHostBase uint64 = 2
	gasStorage  uint64 = 20
	gasTransfer uint64 = 50
	gasEmit     uint64 = 5
)

// Env is the synthetic chain environment a module executes against:
// ordered world state, the transaction caller, an event sink, and the
// gas meter.
type Env struct {
	// Caller is the address observed by the caller() builtin.
	Caller uint64
	// Self is the contract's own address; native transfers debit it.
	Self uint64

	// Metering enables the gas meter; when false GasUsed still
	// accumulates but GasLimit is not enforced.
	Metering bool
	GasLimit uint64
	GasUsed  uint64

	Events []Event

	state *btree.BTree
}

// NewEnv returns an empty environment with gas metering disabled.
func NewEnv() *Env {
	return &Env{state: btree.NewNonConcurrent(byStorageKey)}
}

func (e *Env) charge(n uint64) error {
	e.GasUsed += n
	if e.Metering && e.GasUsed > e.GasLimit {
		return ErrOutOfGas
	}
	return nil
}

func (e *Env) load(slot int32, key uint64) (uint64, bool) {
	item := e.state.Get(&StorageEntry{Slot: slot, Key: key})
	if item == nil {
		return 0, false
	}
	return item.(*StorageEntry).Value, true
}

func (e *Env) store(slot int32, key, value uint64) {
	e.state.Set(&StorageEntry{Slot: slot, Key: key, Value: value})
}

// SetBalance seeds the native balance of an address.
func (e *Env) SetBalance(addr, amount uint64) {
	e.store(balanceSlot, addr, amount)
}

// BalanceOf reads the native balance of an address.
func (e *Env) BalanceOf(addr uint64) uint64 {
	v, _ := e.load(balanceSlot, addr)
	return v
}

// SetStorage seeds a contract storage cell, for tests and simulation setup.
func (e *Env) SetStorage(slot int32, key, value uint64) {
	e.store(slot, key, value)
}

// StorageDump returns the contract storage cells (native balances
// excluded) in deterministic (slot, key) order.
func (e *Env) StorageDump() []StorageEntry {
	var out []StorageEntry
	e.state.Ascend(&StorageEntry{Slot: 0}, func(item interface{}) bool {
		out = append(out, *item.(*StorageEntry))
		return true
	})
	return out
}

// transferNative moves native funds from the contract account to an
// address, reverting on insufficient balance.
func (e *Env) transferNative(to, amount uint64) error {
	from := e.BalanceOf(e.Self)
	if from < amount {
		return &RevertError{Code: AbortErr, Msg: "insufficient native balance"}
	}
	e.store(balanceSlot, e.Self, from-amount)
	e.store(balanceSlot, to, e.BalanceOf(to)+amount)
	return nil
}
