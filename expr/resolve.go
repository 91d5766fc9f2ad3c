package expr

import (
	"errors"
	"fmt"

	"github.com/Urethramancer/pdas/frag"
)

// ErrPending means an expression cannot be reduced yet. Try again once more
// of the layout is known, or emit a relocation.
var ErrPending = errors.New("expression not yet resolvable")

// CycleError reports a deferred symbol whose value depends on itself.
type CycleError struct {
	Symbol *Symbol
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("symbol definition loop encountered at `%s'", e.Symbol)
}

// snapshot is the state of a symbol at one point of resolution.
type snapshot struct {
	sym     *Symbol
	value   uint64
	section *frag.Section
	frag    *frag.Frag
	// bias is the addend picked up when an equated symbol was followed to
	// the symbol it names.
	bias uint64
}

// snapshot takes the current value of s, resolving deferred values on the way.
func (e *Engine) snapshot(s *Symbol) (snapshot, error) {
	if s == nil {
		return snapshot{}, ErrPending
	}
	d, ok := s.value.Deferred()
	if !ok {
		return snapshot{sym: s, value: s.Value(), section: s.section, frag: s.frag}, nil
	}
	if s.resolving {
		return snapshot{}, &CycleError{Symbol: s}
	}

	s.resolving = true
	defer func() { s.resolving = false }()

	n := *d
	if err := e.resolve(&n, false); err != nil {
		return snapshot{}, err
	}
	switch n.Op {
	case OpConstant:
		return snapshot{sym: s, value: n.Number, section: frag.Absolute, frag: frag.ZeroAddress}, nil
	case OpRegister:
		return snapshot{sym: s, value: n.Number, section: frag.Register, frag: frag.ZeroAddress}, nil
	case OpSymbol, OpSymbolRva:
		t, err := e.snapshot(n.Add)
		if err != nil {
			return snapshot{}, err
		}
		t.value += n.Number
		t.bias += n.Number
		return t, nil
	}
	return snapshot{}, ErrPending
}

// Resolve collapses n as far as the current layout allows. It returns an
// error wrapping ErrPending when n cannot be reduced yet, including references
// to symbols that are still undefined. n is only changed on success, and
// resolving the same node again with the same inputs gives the same result.
func (e *Engine) Resolve(n *Node) error {
	return e.resolve(n, true)
}

// Reduce is Resolve for the final pass, where a reference to an undefined
// symbol is an acceptable result: it becomes a relocation.
func (e *Engine) Reduce(n *Node) error {
	return e.resolve(n, false)
}

// resolution is the outcome of reducing one node.
type resolution struct {
	op    Op
	final uint64
	left  snapshot
	// orig is the symbol the result referred to before equates were followed.
	orig *Symbol
}

func (e *Engine) resolve(n *Node, strict bool) error {
	res := resolution{op: n.Op, final: n.Number, orig: n.Add}

	var err error
	switch {
	case n.Op == OpConstant || n.Op == OpRegister:

	case n.Op == OpSymbol || n.Op == OpSymbolRva:
		if res.left, err = e.snapshot(n.Add); err != nil {
			return err
		}

	case n.Op.IsUnary():
		if res.left, err = e.snapshot(n.Add); err != nil {
			return err
		}
		if res.left.section != frag.Absolute {
			return ErrPending
		}
		switch n.Op {
		case OpLogicalNot:
			res.left.value = boolWord(res.left.value == 0, 1)
		case OpBitNot:
			res.left.value = ^res.left.value
		case OpUnaryMinus:
			res.left.value = -res.left.value
		}
		res.op = OpConstant

	case n.Op.IsBinary():
		if err = e.resolveBinary(n, &res); err != nil {
			return err
		}

	case n.Op == OpIndex || n.Op >= OpMachine:
		if err = e.resolveMachine(n, &res); err != nil {
			return err
		}

	default:
		return ErrPending
	}

	out := *n
	switch res.op {
	case OpConstant:
		out = Constant(res.final + res.left.value)

	case OpRegister:
		if n.Op != OpRegister {
			out = Node{Op: OpRegister, Number: res.final + res.left.value}
		}

	case OpSymbol:
		ls := res.left.section
		switch {
		case ls == frag.Absolute:
			out = Constant(res.final + res.left.value)
		case ls == frag.Register && res.final == 0:
			out = Node{Op: OpRegister, Number: res.left.value}
		default:
			if strict && ls == frag.Undefined {
				return fmt.Errorf("%s: %w", res.left.sym, ErrPending)
			}
			if res.left.sym != res.orig {
				res.final += res.left.bias
			}
			out = SymbolRef(res.left.sym, res.final)
		}

	case OpSymbolRva:
		if strict && res.left.section == frag.Undefined {
			return fmt.Errorf("%s: %w", res.left.sym, ErrPending)
		}
	}
	*n = out
	return nil
}

// resolveBinary reduces a binary compound. Results that are not constants
// pass one operand through as a symbol.
func (e *Engine) resolveBinary(n *Node, res *resolution) error {
	left, err := e.snapshot(n.Add)
	if err != nil {
		return err
	}
	right, err := e.snapshot(n.OpSym)
	if err != nil {
		return err
	}
	res.left = left

	op := n.Op
	switch {
	case op == OpAdd && right.section == frag.Absolute:
		res.final += right.value
		res.op = OpSymbol
		return nil
	case op == OpAdd && left.section == frag.Absolute:
		res.final += left.value
		res.left = right
		res.orig = n.OpSym
		res.op = OpSymbol
		return nil
	case op == OpSubtract && right.section == frag.Absolute:
		res.final -= right.value
		res.op = OpSymbol
		return nil
	}

	off, legal := e.comparable(op, left, right)
	if !legal {
		lz := left.section == frag.Absolute && left.value == 0
		rz := right.section == frag.Absolute && right.value == 0
		switch {
		case lz || rz:
			switch {
			case op == OpBitOr || op == OpBitXor:
				if !rz {
					res.left = right
					res.orig = n.OpSym
				}
				res.op = OpSymbol
				return nil
			case op == OpLeftShift || op == OpRightShift:
				if !lz {
					res.op = OpSymbol
					return nil
				}
			case op != OpBitAnd && op != OpMultiply:
				return ErrPending
			}

		case op == OpMultiply && left.section == frag.Absolute && left.value == 1:
			res.left = right
			res.orig = n.OpSym
			res.op = OpSymbol
			return nil

		case (op == OpMultiply || op == OpDivide) && right.section == frag.Absolute && right.value == 1:
			res.op = OpSymbol
			return nil

		case !(left.value == right.value && sameOperand(left, right)):
			return ErrPending

		case op == OpBitOr || op == OpBitAnd:
			res.op = OpSymbol
			return nil

		case op != OpBitXor:
			return ErrPending
		}
	}

	rv := right.value + uint64(off)
	var v uint64
	switch op {
	case OpEqual, OpNotEqual:
		same := left.value == rv &&
			left.section == right.section &&
			(e.layout.Finalized() || left.frag == right.frag) &&
			(left.section != frag.Undefined || left.sym == right.sym)
		v = boolWord(same == (op == OpEqual), ^uint64(0))
	case OpDivide, OpModulus:
		if rv == 0 {
			return ErrPending
		}
		v, _ = e.apply(op, left.value, rv)
	default:
		v, _ = e.apply(op, left.value, rv)
	}
	res.left.value = v
	res.op = OpConstant
	return nil
}

// comparable is the legality test for combining two snapshots. The offset
// corrects the right value for fragments whose addresses are not final.
func (e *Engine) comparable(op Op, left, right snapshot) (int64, bool) {
	if left.section == frag.Absolute && right.section == frag.Absolute {
		return 0, true
	}
	if op == OpEqual || op == OpNotEqual {
		return 0, true
	}
	if op != OpSubtract && !op.IsRelational() {
		return 0, false
	}
	if left.section != right.section {
		return 0, false
	}
	if left.section == frag.Undefined && left.sym != right.sym {
		return 0, false
	}
	if e.layout.Finalized() {
		return 0, true
	}
	if off, ok := e.layout.OffsetIsFixed(left.frag, right.frag); ok {
		return off, true
	}
	if op == OpGreater {
		return e.layout.IsGreaterThanOffset(left.value, left.frag, right.value, right.frag)
	}
	return 0, false
}

// sameOperand reports whether two snapshots are the same register or the
// same undefined symbol.
func sameOperand(left, right snapshot) bool {
	if left.section == frag.Register && right.section == frag.Register {
		return true
	}
	return left.section == frag.Undefined && right.section == frag.Undefined && left.sym == right.sym
}

// resolveMachine reduces the index operator and machine operators through the
// machine's Evaluator once every operand is absolute.
func (e *Engine) resolveMachine(n *Node, res *resolution) error {
	ev, ok := e.machine.(Evaluator)
	if !ok {
		return ErrPending
	}
	operands := make([]uint64, 0, 2)
	for _, s := range []*Symbol{n.Add, n.OpSym} {
		if s == nil {
			continue
		}
		snap, err := e.snapshot(s)
		if err != nil {
			return err
		}
		if snap.section != frag.Absolute {
			return ErrPending
		}
		operands = append(operands, snap.value)
	}
	v, ok := ev.Apply(n.Op, operands)
	if !ok {
		return ErrPending
	}
	res.left = snapshot{value: v, section: frag.Absolute}
	res.op = OpConstant
	return nil
}
