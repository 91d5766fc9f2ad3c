package expr

import "errors"

// ErrRanksSealed is returned by SetRank once parsing has begun.
var ErrRanksSealed = errors.New("operator ranks are fixed once parsing has started")

// unaryRank is the rank operands of unary operators are read at.
const unaryRank = 9

// defaultRanks is the precedence of every built-in operator. Machine
// operators start at rank 0 until SetRank raises them.
var defaultRanks = [...]uint{
	OpInvalid:      0,
	OpAbsent:       0,
	OpConstant:     0,
	OpSymbol:       0,
	OpSymbolRva:    0,
	OpRegister:     0,
	OpIndex:        1,
	OpLogicalOr:    2,
	OpLogicalAnd:   3,
	OpEqual:        4,
	OpNotEqual:     4,
	OpLess:         4,
	OpLessEqual:    4,
	OpGreater:      4,
	OpGreaterEqual: 4,
	OpAdd:          5,
	OpSubtract:     5,
	OpBitOr:        7,
	OpBitXor:       7,
	OpBitAnd:       7,
	OpMultiply:     8,
	OpDivide:       8,
	OpModulus:      8,
	OpLeftShift:    8,
	OpRightShift:   8,
	OpLogicalNot:   unaryRank,
	OpBitNot:       unaryRank,
	OpUnaryMinus:   unaryRank,
}

// SetRank changes the precedence of op. It only works before the first parse.
func (e *Engine) SetRank(op Op, rank uint) error {
	if e.sealed {
		return ErrRanksSealed
	}
	if op < 0 {
		return errors.New("negative operator")
	}
	for int(op) >= len(e.ranks) {
		e.ranks = append(e.ranks, 0)
	}
	e.ranks[op] = rank
	return nil
}

// Rank returns the precedence of op.
func (e *Engine) Rank(op Op) uint {
	if op < 0 || int(op) >= len(e.ranks) {
		return 0
	}
	return e.ranks[op]
}
