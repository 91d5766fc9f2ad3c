// Package expr parses assembler expressions and resolves them against the
// sections, symbols and fragments of an assembly session.
//
// Parsing folds whatever is already known; the rest is kept as a Node that
// refers to symbols, possibly synthetic ones holding deferred sub-expressions.
// Resolve collapses such a node once layout has advanced far enough.
package expr

import (
	"fmt"
	"strings"
)

// Op is the kind of a Node: a terminal or the operator combining its operands.
type Op int

const (
	OpInvalid Op = iota
	OpAbsent
	OpConstant
	OpSymbol
	OpSymbolRva
	OpRegister
	OpIndex
	OpLogicalOr
	OpLogicalAnd
	OpEqual
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpAdd
	OpSubtract
	OpBitOr
	OpBitXor
	OpBitAnd
	OpMultiply
	OpDivide
	OpModulus
	OpLeftShift
	OpRightShift
	OpLogicalNot
	OpBitNot
	OpUnaryMinus

	// OpMachine is the first operator a machine extension may claim.
	OpMachine
)

var opNames = [...]string{
	OpInvalid:      "invalid",
	OpAbsent:       "absent",
	OpConstant:     "constant",
	OpSymbol:       "symbol",
	OpSymbolRva:    "rva",
	OpRegister:     "register",
	OpIndex:        "[]",
	OpLogicalOr:    "||",
	OpLogicalAnd:   "&&",
	OpEqual:        "==",
	OpNotEqual:     "!=",
	OpLess:         "<",
	OpLessEqual:    "<=",
	OpGreater:      ">",
	OpGreaterEqual: ">=",
	OpAdd:          "+",
	OpSubtract:     "-",
	OpBitOr:        "|",
	OpBitXor:       "^",
	OpBitAnd:       "&",
	OpMultiply:     "*",
	OpDivide:       "/",
	OpModulus:      "%",
	OpLeftShift:    "<<",
	OpRightShift:   ">>",
	OpLogicalNot:   "!",
	OpBitNot:       "~",
	OpUnaryMinus:   "-",
}

func (op Op) String() string {
	if op >= 0 && int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("op%d", int(op))
}

// IsUnary reports whether op is one of the built-in unary operators.
func (op Op) IsUnary() bool {
	return op == OpLogicalNot || op == OpBitNot || op == OpUnaryMinus
}

// IsBinary reports whether op is one of the built-in binary operators other than indexing.
func (op Op) IsBinary() bool {
	return op >= OpLogicalOr && op <= OpRightShift
}

// IsRelational reports whether op orders its operands.
func (op Op) IsRelational() bool {
	return op >= OpLess && op <= OpGreaterEqual
}

// Node is one expression.
//
// A constant has no symbols. Symbol references carry Add. Binary compounds
// carry both Add and OpSym, unary compounds only Add. Number is the addend
// accumulated alongside the symbolic part, or the value of a constant, or
// the number of a register.
type Node struct {
	Op     Op
	Add    *Symbol
	OpSym  *Symbol
	Number uint64
}

// Constant returns a constant node.
func Constant(v uint64) Node {
	return Node{Op: OpConstant, Number: v}
}

// SymbolRef returns a reference to s plus addend.
func SymbolRef(s *Symbol, addend uint64) Node {
	return Node{Op: OpSymbol, Add: s, Number: addend}
}

// IsConstant reports whether the node folded to a number.
func (n Node) IsConstant() bool {
	return n.Op == OpConstant
}

func (n Node) String() string {
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n Node) write(b *strings.Builder) {
	switch n.Op {
	case OpInvalid, OpAbsent:
		b.WriteString("<" + n.Op.String() + ">")
		return
	case OpConstant:
		fmt.Fprintf(b, "%#x", n.Number)
		return
	case OpRegister:
		fmt.Fprintf(b, "%%r%d", n.Number)
		return
	case OpSymbol:
		b.WriteString(n.Add.String())
	case OpSymbolRva:
		b.WriteString("rva(" + n.Add.String() + ")")
	default:
		if n.OpSym == nil {
			b.WriteString(n.Op.String())
			b.WriteString(n.Add.String())
		} else {
			fmt.Fprintf(b, "(%s %s %s)", n.Add, n.Op, n.OpSym)
		}
	}
	if v := int64(n.Number); v > 0 {
		fmt.Fprintf(b, "+%#x", v)
	} else if v < 0 {
		fmt.Fprintf(b, "-%#x", uint64(-v))
	}
}
