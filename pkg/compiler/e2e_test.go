package compiler

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"swiftsc/pkg/vm"
)

// instantiate compiles src and binds it to env, failing the test on any
// front-end or codegen error.
func instantiate(t *testing.T, src string, env *vm.Env) *vm.Instance {
	t.Helper()
	prog, info, err := analyzeSource(t, src)
	if err != nil {
		t.Fatalf("check error: %v", err)
	}
	mod, err := Generate(prog, info)
	if err != nil {
		t.Fatalf("codegen error: %v", err)
	}
	inst, err := vm.NewInstance(mod, env)
	if err != nil {
		t.Fatalf("instantiate error: %v", err)
	}
	return inst
}

// runFn compiles src against a fresh environment and invokes one
// exported function, expecting success.
func runFn(t *testing.T, src, name string, args ...uint64) []uint64 {
	t.Helper()
	inst := instantiate(t, src, vm.NewEnv())
	results, err := inst.Invoke(name, args...)
	if err != nil {
		t.Fatalf("%s: execution error: %v", name, err)
	}
	return results
}

func TestArithmetic_E2E(t *testing.T) {
	tests := []struct {
		expr     string
		a, b     uint64
		expected uint64
	}{
		{"a + b", 6, 7, 13},
		{"a * b", 6, 7, 42},
		{"a - b", 10, 4, 6},
		{"a / b", 100, 10, 10},
		{"a % b", 10, 3, 1},
		{"a + b * 2", 1, 3, 7},
		{"(a + b) * 2", 1, 3, 8},
	}
	for _, tt := range tests {
		src := fmt.Sprintf("contract C { fn f(a: u64, b: u64) -> u64 { return %s; } }", tt.expr)
		regs := runFn(t, src, "f", tt.a, tt.b)
		if len(regs) != 1 || regs[0] != tt.expected {
			t.Errorf("%s with (%d, %d): expected %d, got %v", tt.expr, tt.a, tt.b, tt.expected, regs)
		}
	}
}

func TestUnaryMinus_E2E(t *testing.T) {
	src := "contract C { fn f(a: u64, b: u64) -> u64 { return -a + b; } }"
	// Negation wraps in two's complement.
	if got := runFn(t, src, "f", 1, 0)[0]; got != ^uint64(0) {
		t.Errorf("-1 + 0 = %d, want %d", got, ^uint64(0))
	}
	if got := runFn(t, src, "f", 5, 12)[0]; got != 7 {
		t.Errorf("-5 + 12 = %d, want 7", got)
	}
	if got := runFn(t, src, "f", 0, 0)[0]; got != 0 {
		t.Errorf("-0 + 0 = %d, want 0", got)
	}
}

func TestComparison_E2E(t *testing.T) {
	tests := []struct {
		expr     string
		a, b     uint64
		expected uint64
	}{
		{"a < b", 5, 10, 1},
		{"a < b", 10, 5, 0},
		{"a > b", 5, 3, 1},
		{"a <= b", 5, 5, 1},
		{"a >= b", 4, 5, 0},
		{"a == b", 9, 9, 1},
		{"a != b", 9, 9, 0},
	}
	for _, tt := range tests {
		src := fmt.Sprintf("contract C { fn f(a: u64, b: u64) -> bool { return %s; } }", tt.expr)
		regs := runFn(t, src, "f", tt.a, tt.b)
		if len(regs) != 1 || regs[0] != tt.expected {
			t.Errorf("%s with (%d, %d): expected %d, got %v", tt.expr, tt.a, tt.b, tt.expected, regs)
		}
	}
}

func TestControlFlow_E2E(t *testing.T) {
	src := `contract C {
    fn max(a: u64, b: u64) -> u64 {
        if a > b {
            return a;
        } else {
            return b;
        }
    }

    fn sum_to(n: u64) -> u64 {
        let total = 0;
        let i = 1;
        while i <= n {
            total = total + i;
            i = i + 1;
        }
        return total;
    }
}
`
	if regs := runFn(t, src, "max", 3, 9); regs[0] != 9 {
		t.Errorf("max(3, 9) = %d", regs[0])
	}
	if regs := runFn(t, src, "max", 12, 9); regs[0] != 12 {
		t.Errorf("max(12, 9) = %d", regs[0])
	}
	if regs := runFn(t, src, "sum_to", 10); regs[0] != 55 {
		t.Errorf("sum_to(10) = %d", regs[0])
	}
	if regs := runFn(t, src, "sum_to", 0); regs[0] != 0 {
		t.Errorf("sum_to(0) = %d", regs[0])
	}
}

func TestLogicalShortCircuit_E2E(t *testing.T) {
	// The right operand divides by zero, so it must not be evaluated
	// when the left operand already decides the outcome.
	src := `contract C {
    fn safe_and(a: u64, b: u64) -> bool {
        return b != 0 && a / b > 1;
    }

    fn safe_or(a: u64, b: u64) -> bool {
        return b == 0 || a / b > 1;
    }
}
`
	if regs := runFn(t, src, "safe_and", 10, 0); regs[0] != 0 {
		t.Errorf("safe_and(10, 0) = %d, want 0", regs[0])
	}
	if regs := runFn(t, src, "safe_and", 10, 2); regs[0] != 1 {
		t.Errorf("safe_and(10, 2) = %d, want 1", regs[0])
	}
	if regs := runFn(t, src, "safe_or", 10, 0); regs[0] != 1 {
		t.Errorf("safe_or(10, 0) = %d, want 1", regs[0])
	}
}

func TestInternalCall_E2E(t *testing.T) {
	src := `contract C {
    fn double(x: u64) -> u64 {
        return x * 2;
    }

    fn quad(x: u64) -> u64 {
        return double(double(x));
    }
}
`
	if regs := runFn(t, src, "quad", 3); regs[0] != 12 {
		t.Errorf("quad(3) = %d", regs[0])
	}
}

func TestStoragePersists_E2E(t *testing.T) {
	src := `contract Counter {
    storage count: u64;

    fn bump() {
        self.count = self.count + 1;
    }

    fn value() -> u64 {
        return self.count;
    }
}
`
	env := vm.NewEnv()
	inst := instantiate(t, src, env)

	for i := 0; i < 3; i++ {
		if _, err := inst.Invoke("bump"); err != nil {
			t.Fatalf("bump: %v", err)
		}
	}
	regs, err := inst.Invoke("value")
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if regs[0] != 3 {
		t.Errorf("count = %d after three bumps", regs[0])
	}
}

func TestMapOperations_E2E(t *testing.T) {
	src := `use std::collections::HashMap;

contract C {
    storage m: HashMap<u64, u64>;

    fn put(k: u64, v: u64) {
        self.m.insert(k, v);
    }

    fn get_or_zero(k: u64) -> u64 {
        return self.m.get(k).unwrap_or(0);
    }

    fn must_get(k: u64) -> Result<u64> {
        let v = self.m.get(k)?;
        return Ok(v);
    }

    fn has(k: u64) -> bool {
        return self.m.contains(k);
    }
}
`
	env := vm.NewEnv()
	inst := instantiate(t, src, env)

	if _, err := inst.Invoke("put", 7, 99); err != nil {
		t.Fatalf("put: %v", err)
	}
	if regs, err := inst.Invoke("get_or_zero", 7); err != nil || regs[0] != 99 {
		t.Fatalf("get_or_zero(7) = %v, %v", regs, err)
	}
	if regs, err := inst.Invoke("get_or_zero", 8); err != nil || regs[0] != 0 {
		t.Fatalf("get_or_zero(8) = %v, %v", regs, err)
	}
	if regs, err := inst.Invoke("has", 7); err != nil || regs[0] != 1 {
		t.Fatalf("has(7) = %v, %v", regs, err)
	}
	if regs, err := inst.Invoke("has", 8); err != nil || regs[0] != 0 {
		t.Fatalf("has(8) = %v, %v", regs, err)
	}

	// ? on a missing key reverts.
	_, err := inst.Invoke("must_get", 8)
	var rev *vm.RevertError
	if !errors.As(err, &rev) {
		t.Fatalf("must_get(8) should revert, got %v", err)
	}
	if rev.Code != vm.AbortMissingKey {
		t.Errorf("revert code = %d, want %d", rev.Code, vm.AbortMissingKey)
	}
}

func TestCheckedMath_E2E(t *testing.T) {
	src := `use std::math::{add, sub, mul};

contract C {
    fn checked_add(a: u64, b: u64) -> Result<u64> {
        let r = add(a, b)?;
        return Ok(r);
    }

    fn checked_sub(a: u64, b: u64) -> Result<u64> {
        let r = sub(a, b)?;
        return Ok(r);
    }

    fn checked_mul(a: u64, b: u64) -> Result<u64> {
        let r = mul(a, b)?;
        return Ok(r);
    }
}
`
	env := vm.NewEnv()
	inst := instantiate(t, src, env)

	if regs, err := inst.Invoke("checked_add", 40, 2); err != nil || regs[0] != 42 {
		t.Fatalf("checked_add(40, 2) = %v, %v", regs, err)
	}
	if regs, err := inst.Invoke("checked_sub", 10, 4); err != nil || regs[0] != 6 {
		t.Fatalf("checked_sub(10, 4) = %v, %v", regs, err)
	}
	if regs, err := inst.Invoke("checked_mul", 6, 7); err != nil || regs[0] != 42 {
		t.Fatalf("checked_mul(6, 7) = %v, %v", regs, err)
	}

	overflows := []struct {
		fn   string
		a, b uint64
	}{
		{"checked_add", ^uint64(0), 1},
		{"checked_sub", 4, 10},
		{"checked_mul", 1 << 63, 2},
	}
	for _, tt := range overflows {
		_, err := inst.Invoke(tt.fn, tt.a, tt.b)
		var rev *vm.RevertError
		if !errors.As(err, &rev) {
			t.Fatalf("%s(%d, %d) should revert, got %v", tt.fn, tt.a, tt.b, err)
		}
		if rev.Code != vm.AbortOverflow {
			t.Errorf("%s: revert code = %d, want %d", tt.fn, rev.Code, vm.AbortOverflow)
		}
	}
}

func TestRequire_E2E(t *testing.T) {
	src := `contract C {
    fn guarded(a: u64) {
        require(a > 10, "a is too small");
    }

    fn bare(a: u64) {
        require(a > 10);
    }
}
`
	env := vm.NewEnv()
	inst := instantiate(t, src, env)

	if _, err := inst.Invoke("guarded", 11); err != nil {
		t.Fatalf("guarded(11): %v", err)
	}

	_, err := inst.Invoke("guarded", 3)
	var rev *vm.RevertError
	if !errors.As(err, &rev) {
		t.Fatalf("guarded(3) should revert, got %v", err)
	}
	if !strings.Contains(rev.Msg, "a is too small") {
		t.Errorf("revert message = %q", rev.Msg)
	}

	_, err = inst.Invoke("bare", 3)
	if !errors.As(err, &rev) {
		t.Fatalf("bare(3) should revert, got %v", err)
	}
	if rev.Code != vm.AbortRequire {
		t.Errorf("revert code = %d, want %d", rev.Code, vm.AbortRequire)
	}
}

func TestExplicitErr_E2E(t *testing.T) {
	src := `contract C {
    fn reject(code: u64) -> Result<()> {
        if code > 0 {
            return Err(code);
        }
        Ok(())
    }
}
`
	env := vm.NewEnv()
	inst := instantiate(t, src, env)

	if _, err := inst.Invoke("reject", 0); err != nil {
		t.Fatalf("reject(0): %v", err)
	}
	_, err := inst.Invoke("reject", 5)
	var rev *vm.RevertError
	if !errors.As(err, &rev) {
		t.Fatalf("reject(5) should revert, got %v", err)
	}
}

func TestEvents_E2E(t *testing.T) {
	src := `contract C {
    fn touch(v: u64) {
        emit("Touched", v);
        emit("Counted", v + 1);
    }
}
`
	env := vm.NewEnv()
	inst := instantiate(t, src, env)
	if _, err := inst.Invoke("touch", 41); err != nil {
		t.Fatalf("touch: %v", err)
	}

	want := []vm.Event{{Name: "Touched", Value: 41}, {Name: "Counted", Value: 42}}
	if len(env.Events) != len(want) {
		t.Fatalf("events = %v, want %v", env.Events, want)
	}
	for i := range want {
		if env.Events[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, env.Events[i], want[i])
		}
	}
}

func TestCallerAndTransfer_E2E(t *testing.T) {
	src := `use std::collections::HashMap;

contract Vault {
    storage deposits: HashMap<Address, u64>;

    fn whoami() -> Address {
        return caller();
    }

    fn payout(to: Address, amount: u64) {
        transfer_native(to, amount);
        self.deposits.insert(to, amount);
    }

    fn holdings(who: Address) -> u64 {
        return balance(who);
    }
}
`
	env := vm.NewEnv()
	env.Caller = 0xAA
	env.Self = 0x01
	env.SetBalance(0x01, 500)

	inst := instantiate(t, src, env)

	if regs, err := inst.Invoke("whoami"); err != nil || regs[0] != 0xAA {
		t.Fatalf("whoami = %v, %v", regs, err)
	}

	if _, err := inst.Invoke("payout", 0xBB, 200); err != nil {
		t.Fatalf("payout: %v", err)
	}
	if regs, err := inst.Invoke("holdings", 0xBB); err != nil || regs[0] != 200 {
		t.Fatalf("holdings(0xBB) = %v, %v", regs, err)
	}
	if regs, err := inst.Invoke("holdings", 0x01); err != nil || regs[0] != 300 {
		t.Fatalf("holdings(0x01) = %v, %v", regs, err)
	}

	// Overdraw reverts.
	_, err := inst.Invoke("payout", 0xBB, 10_000)
	var rev *vm.RevertError
	if !errors.As(err, &rev) {
		t.Fatalf("overdraw should revert, got %v", err)
	}
}

func TestGasMetering_E2E(t *testing.T) {
	src := `contract C {
    fn spin(n: u64) -> u64 {
        let i = 0;
        while i < n {
            i = i + 1;
        }
        return i;
    }
}
`
	env := vm.NewEnv()
	env.Metering = true
	env.GasLimit = 1_000_000
	inst := instantiate(t, src, env)

	if _, err := inst.Invoke("spin", 10); err != nil {
		t.Fatalf("spin(10): %v", err)
	}
	if env.GasUsed == 0 {
		t.Error("gas meter should have advanced")
	}

	tight := vm.NewEnv()
	tight.Metering = true
	tight.GasLimit = 50
	inst = instantiate(t, src, tight)
	_, err := inst.Invoke("spin", 1_000_000)
	if !errors.Is(err, vm.ErrOutOfGas) {
		t.Fatalf("expected out-of-gas, got %v", err)
	}
}

func TestTransferContract_E2E(t *testing.T) {
	// The canonical token example end to end.
	src := `use std::math::{add, sub};
use std::collections::HashMap;

contract Token {
    storage balances: HashMap<Address, u64>;

    fn mint(to: Address, amount: u64) {
        self.balances.insert(to, amount);
    }

    fn transfer(to: Address, amount: u64) -> Result<()> {
        let sender = caller();
        let bal = self.balances.get(sender).unwrap_or(0);
        let next = sub(bal, amount)?;
        self.balances.insert(sender, next);
        self.balances.insert(to, add(self.balances.get(to).unwrap_or(0), amount)?);
        emit("Transfer", amount);
        Ok(())
    }

    fn balance_of(who: Address) -> u64 {
        return self.balances.get(who).unwrap_or(0);
    }
}
`
	env := vm.NewEnv()
	env.Caller = 0xAA
	inst := instantiate(t, src, env)

	if _, err := inst.Invoke("mint", 0xAA, 100); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := inst.Invoke("transfer", 0xBB, 30); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if regs, _ := inst.Invoke("balance_of", 0xAA); regs[0] != 70 {
		t.Errorf("balance_of(0xAA) = %d, want 70", regs[0])
	}
	if regs, _ := inst.Invoke("balance_of", 0xBB); regs[0] != 30 {
		t.Errorf("balance_of(0xBB) = %d, want 30", regs[0])
	}
	if len(env.Events) != 1 || env.Events[0].Name != "Transfer" {
		t.Errorf("events = %v", env.Events)
	}

	// Spending more than the balance hits the checked subtraction.
	_, err := inst.Invoke("transfer", 0xBB, 1_000)
	var rev *vm.RevertError
	if !errors.As(err, &rev) {
		t.Fatalf("overspend should revert, got %v", err)
	}
	if rev.Code != vm.AbortOverflow {
		t.Errorf("revert code = %d, want %d", rev.Code, vm.AbortOverflow)
	}
	// A failed transfer must not have moved funds.
	if regs, _ := inst.Invoke("balance_of", 0xAA); regs[0] != 70 {
		t.Errorf("balance_of(0xAA) after failed transfer = %d, want 70", regs[0])
	}
}
