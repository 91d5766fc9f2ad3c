package expr

import (
	"github.com/Urethramancer/pdas/frag"
)

// ReadInto parses an expression whose operators all rank above rank into n
// and returns its section. At rank 0 in ModeEvaluate the result is resolved
// as far as possible.
func (e *Engine) ReadInto(c *Cursor, n *Node, rank uint, mode Mode) *frag.Section {
	e.sealed = true

	sec := e.operand(c, n, mode)
	op, size := e.operator(c)
	for op != OpInvalid && e.Rank(op) > rank {
		c.Advance(size)

		var right Node
		rsec := e.ReadInto(c, &right, e.Rank(op), mode)
		if right.Op == OpAbsent {
			e.diag.Warnf("missing operand; zero assumed")
			right = Constant(0)
		}
		if op == OpIndex {
			if c.Peek() != ']' {
				e.diag.Errorf("missing ']'")
			} else {
				c.Advance(1)
				c.SkipWhitespace()
			}
		}

		next, nextSize := e.operator(c)
		sec, rsec = e.combine(op, n, sec, &right, rsec)
		sec = e.combineSections(op, sec, rsec)
		op, size = next, nextSize
	}

	if rank == 0 && mode == ModeEvaluate {
		if err := e.Resolve(n); err != nil {
			e.report(err)
		}
	}
	c.SkipWhitespace()
	if n.Op == OpConstant {
		return frag.Absolute
	}
	return sec
}

// combine merges right into n under op, trying the folding rules in order.
func (e *Engine) combine(op Op, n *Node, sec *frag.Section, right *Node, rsec *frag.Section) (*frag.Section, *frag.Section) {
	switch {
	case op == OpAdd && right.Op == OpConstant && n.Op != OpRegister:
		n.Number += right.Number

	case e.fixedDifference(op, n, sec, right, rsec):
		// Folded in place.

	case op == OpSubtract && right.Op == OpConstant && n.Op != OpRegister:
		n.Number -= right.Number

	case op == OpAdd && n.Op == OpConstant && right.Op != OpRegister:
		right.Number += n.Number
		*n = *right
		sec = rsec

	case n.Op == OpConstant && right.Op == OpConstant && e.foldConstants(op, n, right):
		// Folded in place.

	case n.Op == OpSymbol && right.Op == OpSymbol &&
		(op == OpAdd || op == OpSubtract || (n.Number == 0 && right.Number == 0)):
		n.Op = op
		n.OpSym = right.Add
		switch op {
		case OpAdd:
			n.Number += right.Number
		case OpSubtract:
			n.Number -= right.Number
			if sec == rsec && sec.IsNormal() && !n.Add.ForceReloc() && !right.Add.ForceReloc() {
				sec, rsec = frag.Absolute, frag.Absolute
			}
		}

	default:
		*n = Node{Op: op, Add: e.MakeSymbol(*n), OpSym: e.MakeSymbol(*right)}
	}
	return sec, rsec
}

// fixedDifference folds sym - sym into a constant when both live in the same
// section and the distance between their fragments can no longer change.
func (e *Engine) fixedDifference(op Op, n *Node, sec *frag.Section, right *Node, rsec *frag.Section) bool {
	if op != OpSubtract || n.Op != OpSymbol || right.Op != OpSymbol || sec != rsec {
		return false
	}
	l, r := n.Add, right.Add
	if !(sec.IsNormal() && !l.ForceReloc() && !r.ForceReloc()) && l != r {
		return false
	}
	off, ok := e.layout.OffsetIsFixed(l.Frag(), r.Frag())
	if !ok {
		return false
	}
	n.Number += l.Value() - r.Value()
	n.Number -= right.Number
	n.Number -= uint64(off)
	n.Op = OpConstant
	n.Add = nil
	return true
}

// foldConstants applies op to two constants. Division by zero warns and
// divides by one. It returns false for operators it cannot compute.
func (e *Engine) foldConstants(op Op, n, right *Node) bool {
	r := right.Number
	if (op == OpDivide || op == OpModulus) && r == 0 {
		e.diag.Warnf("division by zero")
		r = 1
	}
	v, ok := e.apply(op, n.Number, r)
	if !ok {
		return false
	}
	n.Number = v
	return true
}

// apply computes a binary operator on two words. The divisor must not be 0.
func (e *Engine) apply(op Op, l, r uint64) (uint64, bool) {
	const all = ^uint64(0)
	switch op {
	case OpLogicalOr:
		return boolWord(l != 0 || r != 0, all), true
	case OpLogicalAnd:
		return boolWord(l != 0 && r != 0, all), true
	case OpEqual:
		return boolWord(l == r, all), true
	case OpNotEqual:
		return boolWord(l != r, all), true
	case OpLess:
		return boolWord(int64(l) < int64(r), all), true
	case OpLessEqual:
		return boolWord(int64(l) <= int64(r), all), true
	case OpGreater:
		return boolWord(int64(l) > int64(r), all), true
	case OpGreaterEqual:
		return boolWord(int64(l) >= int64(r), all), true
	case OpAdd:
		return l + r, true
	case OpSubtract:
		return l - r, true
	case OpBitOr:
		return l | r, true
	case OpBitXor:
		return l ^ r, true
	case OpBitAnd:
		return l & r, true
	case OpMultiply:
		return l * r, true
	case OpDivide:
		return uint64(int64(l) / int64(r)), true
	case OpModulus:
		return uint64(int64(l) % int64(r)), true
	case OpLeftShift:
		return l << r, true
	case OpRightShift:
		return l >> r, true
	}
	if ev, ok := e.machine.(Evaluator); ok && (op == OpIndex || op >= OpMachine) {
		return ev.Apply(op, []uint64{l, r})
	}
	return 0, false
}

// combineSections decides the section of a combination. The checks are
// ordered and deliberately asymmetric.
func (e *Engine) combineSections(op Op, l, r *frag.Section) *frag.Section {
	switch {
	case l == r:
		return l
	case l == frag.Undefined:
		return l
	case r == frag.Undefined:
		return r
	case l == frag.Expr:
		return l
	case r == frag.Expr:
		return r
	case l == frag.Register:
		return l
	case r == frag.Register:
		return r
	case r == frag.Absolute:
		return l
	case l == frag.Absolute:
		return r
	case op == OpSubtract:
		return l
	}
	e.diag.Errorf("operation combines symbols in different sections")
	return l
}
