package expr_test

import (
	"testing"

	"github.com/Urethramancer/pdas/expr"
	"github.com/Urethramancer/pdas/frag"
)

const opMax = expr.OpMachine

// testMachine knows registers r0-r7, a binary "max" operator and "not" as
// another spelling of '~'.
type testMachine struct {
	expr.Generic
}

func (testMachine) ParseOperator(c *expr.Cursor, name string, role expr.Role) expr.Op {
	switch {
	case name == "max" && role == expr.RoleBinary:
		return opMax
	case name == "max":
		return expr.OpInvalid
	case name == "not" && role == expr.RoleUnary:
		return expr.OpBitNot
	}
	return expr.OpAbsent
}

func (testMachine) ParseName(c *expr.Cursor, n *expr.Node, name string) bool {
	if len(name) == 2 && name[0] == 'r' && name[1] >= '0' && name[1] <= '7' {
		*n = expr.Node{Op: expr.OpRegister, Number: uint64(name[1] - '0')}
		return true
	}
	return false
}

func (testMachine) Apply(op expr.Op, v []uint64) (uint64, bool) {
	if op != opMax || len(v) != 2 {
		return 0, false
	}
	return max(v[0], v[1]), true
}

func (testMachine) Init(e *expr.Engine) error {
	return e.SetRank(opMax, 6)
}

func TestMachineOperators(t *testing.T) {
	e, _, list := newEngine(t, expr.WithMachine(testMachine{}))
	evalAndMatch(t, e, "3 max 7", 7)
	evalAndMatch(t, e, "1+3 max 2", 4)
	evalAndMatch(t, e, "not 0", ^uint64(0))
	if list.Errors() != 0 {
		t.Errorf("unexpected errors: %v", list.Items())
	}
}

func TestMachineOperatorDeferred(t *testing.T) {
	e, _, _ := newEngine(t, expr.WithMachine(testMachine{}))
	n, _ := e.Parse(e.Cursor("k max 9"))
	if n.Op != opMax {
		t.Fatalf("expected a machine compound, got %s", n)
	}
	k, _ := e.Symbols.Find("k")
	k.Set(frag.Absolute, frag.ZeroAddress, 12)
	if err := e.Resolve(&n); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if n.Op != expr.OpConstant || n.Number != 12 {
		t.Errorf("expected 12, got %s", n)
	}
}

func TestMachineInvalidUnary(t *testing.T) {
	e, _, list := newEngine(t, expr.WithMachine(testMachine{}))
	n, _, _ := e.EvaluateString("max")
	if list.Errors() != 1 || list.Items()[0].Msg != `invalid use of operator "max"` {
		t.Errorf("unexpected diagnostics: %v", list.Items())
	}
	if n.Op != expr.OpSymbol || n.Add.Name != "max" {
		t.Errorf("expected max to be read as a symbol, got %s", n)
	}
}

func TestRegisters(t *testing.T) {
	e, _, _ := newEngine(t, expr.WithMachine(testMachine{}))

	n, sec, _ := e.EvaluateString("r3")
	if n.Op != expr.OpRegister || n.Number != 3 {
		t.Errorf("expected register 3, got %s", n)
	}
	if sec != frag.Register {
		t.Errorf("expected register section, got %s", sec)
	}

	n, sec, _ = e.EvaluateString("r5|0")
	if n.Op != expr.OpRegister || n.Number != 5 {
		t.Errorf("expected register 5, got %s", n)
	}
	if sec != frag.Register {
		t.Errorf("expected register section, got %s", sec)
	}

	n, _, _ = e.EvaluateString("r2^r2")
	if n.Op != expr.OpConstant || n.Number != 0 {
		t.Errorf("expected r2^r2 to be 0, got %s", n)
	}
}
