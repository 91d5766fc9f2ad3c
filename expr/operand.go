package expr

import (
	"github.com/Urethramancer/pdas/frag"
)

// hexValue returns the value of a digit in any radix up to 16, or 100.
func hexValue(ch byte) uint64 {
	switch {
	case ch >= '0' && ch <= '9':
		return uint64(ch - '0')
	case ch >= 'a' && ch <= 'f':
		return uint64(ch-'a') + 10
	case ch >= 'A' && ch <= 'F':
		return uint64(ch-'A') + 10
	}
	return 100
}

// integer reads digits of the given radix. Overflow wraps.
func integer(c *Cursor, n *Node, radix uint64) {
	var v uint64
	for d := hexValue(c.Peek()); d < radix; d = hexValue(c.Peek()) {
		v = v*radix + d
		c.Advance(1)
	}
	*n = Constant(v)
}

// character reads one possibly escaped character of a quoted literal.
func (e *Engine) character(c *Cursor) uint64 {
	ch := c.Peek()
	if ch != '\\' {
		if c.AtEnd() || ch == 0 {
			e.diag.Warnf("single quote at the end of line; '\\n' assumed")
			return '\n'
		}
		c.Advance(1)
		return uint64(ch)
	}

	esc := c.PeekAt(1)
	switch esc {
	case '\'', '"', '\\':
		c.Advance(2)
		return uint64(esc)
	case 'a':
		c.Advance(2)
		return 0x07
	case 'b':
		c.Advance(2)
		return 0x08
	case 't':
		c.Advance(2)
		return 0x09
	case 'n':
		c.Advance(2)
		return 0x0a
	case 'v':
		c.Advance(2)
		return 0x0b
	case 'f':
		c.Advance(2)
		return 0x0c
	case 'r':
		c.Advance(2)
		return 0x0d
	case 'e':
		c.Advance(2)
		return 0x1b
	}
	if esc >= '0' && esc <= '7' {
		c.Advance(1)
		var v uint64
		for ch := c.Peek(); ch >= '0' && ch <= '7'; ch = c.Peek() {
			v = v*8 + uint64(ch-'0')
			c.Advance(1)
		}
		return v
	}

	// Unknown escape: the backslash stands for itself.
	c.Advance(1)
	return '\\'
}

// operand reads one operand into n and returns the section it lives in.
func (e *Engine) operand(c *Cursor, n *Node, mode Mode) *frag.Section {
	*n = Node{Op: OpInvalid}
	c.SkipWhitespace()

	ch := c.Peek()
	if c.AtEnd() || c.EndOfLine() != EOLNone || ch == ',' {
		n.Op = OpAbsent
		return frag.Absolute
	}

	switch {
	case ch >= '1' && ch <= '9':
		integer(c, n, 10)

	case ch == '0':
		c.Advance(1)
		switch next := c.Peek(); {
		case next == 'x' || next == 'X':
			c.Advance(1)
			integer(c, n, 16)
		case next >= '0' && next <= '7':
			integer(c, n, 8)
		case (next == 'b' || next == 'B') && (c.PeekAt(1) == '0' || c.PeekAt(1) == '1'):
			c.Advance(1)
			integer(c, n, 2)
		default:
			*n = Constant(0)
		}

	case ch == '(' || (ch == '[' && !e.machine.NeedsIndexOperator()):
		return e.group(c, n, mode)

	case ch == '+' || ch == '-' || ch == '~' || ch == '!':
		c.Advance(1)
		e.unary(c, n, mode, ch)

	case ch == '\'':
		c.Advance(1)
		v := e.character(c)
		if c.Peek() == '\'' {
			c.Advance(1)
		}
		*n = Constant(v)

	case ch == '.' && !c.Charset().IsNamePart(c.PeekAt(1)):
		e.CurrentLocation(n)
		c.Advance(1)

	case ch == '.' || c.Charset().IsNameBeginner(ch):
		e.name(c, n, mode)

	default:
		n.Op = OpAbsent
		if !e.machine.ParseOperand(c, n) || n.Op == OpAbsent {
			e.diag.Errorf("bad expression")
			c.Advance(1)
			*n = Constant(0)
		}
	}

	c.SkipWhitespace()
	switch n.Op {
	case OpSymbol:
		return n.Add.Section()
	case OpRegister:
		return frag.Register
	}
	return frag.Absolute
}

// group reads a bracketed sub-expression. A missing or wrong closer is
// reported and parsing goes on as if it was there.
func (e *Engine) group(c *Cursor, n *Node, mode Mode) *frag.Section {
	open := c.Peek()
	want := byte(')')
	if open == '[' {
		want = ']'
	}
	c.Advance(1)

	sec := e.ReadInto(c, n, 0, mode)
	switch got := c.Peek(); {
	case got == want:
		c.Advance(1)
	case c.AtEnd() || got == 0:
		e.diag.Errorf("missing '%c'", want)
	default:
		e.diag.Errorf("found '%c' but expected '%c'", got, want)
	}
	c.SkipWhitespace()
	return sec
}

// unary reads the operand of the prefix operator op. Constants are folded;
// anything symbolic becomes a unary compound over a wrapped symbol.
func (e *Engine) unary(c *Cursor, n *Node, mode Mode, op byte) {
	e.operand(c, n, mode)

	switch n.Op {
	case OpConstant:
		switch op {
		case '-':
			n.Number = -n.Number
		case '~':
			n.Number = ^n.Number
		case '!':
			n.Number = boolWord(n.Number == 0, 1)
		}

	case OpInvalid, OpAbsent:
		e.diag.Warnf("unary operator %c ignored because bad operand follows", op)

	default:
		if op == '+' {
			return
		}
		sym := e.MakeSymbol(*n)
		*n = Node{Add: sym}
		switch op {
		case '-':
			n.Op = OpUnaryMinus
		case '~':
			n.Op = OpBitNot
		case '!':
			n.Op = OpLogicalNot
		}
	}
}

// name reads an identifier: a machine operator or pseudo-operand, or a symbol.
func (e *Engine) name(c *Cursor, n *Node, mode Mode) {
	name := c.NameEnd()
	end := c.Pos()

	op := e.machine.ParseOperator(c, name, RoleUnary)
	switch op {
	case OpUnaryMinus:
		e.unary(c, n, mode, '-')
		return
	case OpBitNot:
		e.unary(c, n, mode, '~')
		return
	case OpLogicalNot:
		e.unary(c, n, mode, '!')
		return
	case OpAbsent:
		c.SetPos(end)
	case OpInvalid:
		c.SetPos(end)
		e.diag.Errorf("invalid use of operator \"%s\"", name)
	default:
		e.ReadInto(c, n, unaryRank, mode)
		sym := e.MakeSymbol(*n)
		*n = Node{Op: op, Add: sym}
		return
	}

	if e.machine.ParseName(c, n, name) {
		return
	}

	sym := e.Symbols.FindOrMake(name)
	if sym.Section() == frag.Absolute && !sym.ForceReloc() {
		if d, deferred := sym.Stored().Deferred(); !deferred || d.Op == OpConstant {
			*n = Constant(sym.Value())
			return
		}
	}
	*n = SymbolRef(sym, 0)
}

// boolWord returns t when b holds, else 0.
func boolWord(b bool, t uint64) uint64 {
	if b {
		return t
	}
	return 0
}
