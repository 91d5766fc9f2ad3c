package expr

// operator classifies the binary operator under the cursor without
// consuming it. A size of 0 means there is no operator.
func (e *Engine) operator(c *Cursor) (Op, int) {
	start := c.Pos()
	defer c.SetPos(start)

	if c.Charset().IsNameBeginner(c.Peek()) {
		name := c.NameEnd()
		if op := e.machine.ParseOperator(c, name, RoleBinary); op != OpAbsent {
			return op, c.Pos() - start
		}
		c.SetPos(start)
	}

	next := c.PeekAt(1)
	switch c.Peek() {
	case '+':
		return OpAdd, 1
	case '-':
		return OpSubtract, 1
	case '<':
		switch next {
		case '<':
			return OpLeftShift, 2
		case '>':
			return OpNotEqual, 2
		case '=':
			return OpLessEqual, 2
		}
		return OpLess, 1
	case '>':
		switch next {
		case '>':
			return OpRightShift, 2
		case '=':
			return OpGreaterEqual, 2
		}
		return OpGreater, 1
	case '=':
		if next != '=' {
			return OpInvalid, 0
		}
		return OpEqual, 2
	case '!':
		if next != '=' {
			return OpInvalid, 0
		}
		return OpNotEqual, 2
	case '|':
		if next == '|' {
			return OpLogicalOr, 2
		}
		return OpBitOr, 1
	case '&':
		if next == '&' {
			return OpLogicalAnd, 2
		}
		return OpBitAnd, 1
	case '/':
		return OpDivide, 1
	case '%':
		return OpModulus, 1
	case '*':
		return OpMultiply, 1
	case '^':
		return OpBitXor, 1
	}

	op := e.machine.ParseOperator(c, "", RoleBinary)
	return op, c.Pos() - start
}
