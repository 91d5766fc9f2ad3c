package expr

// Role tells a machine whether an operator is wanted before or between operands.
type Role int

const (
	// RoleUnary asks for a prefix operator.
	RoleUnary Role = 1
	// RoleBinary asks for an infix operator.
	RoleBinary Role = 2
)

// Machine is the target-specific half of expression parsing.
type Machine interface {
	// ParseOperator is offered identifier-shaped words, with name set and the
	// cursor just past the name, and in the binary role any symbol the
	// engine does not know, with name empty and the cursor on it. It returns
	// OpAbsent when the text is no operator and OpInvalid when it is one
	// that may not be used here. A claimed operator ends where the cursor is
	// left.
	ParseOperator(c *Cursor, name string, role Role) Op
	// ParseOperand reads a target-specific operand into n.
	ParseOperand(c *Cursor, n *Node) bool
	// ParseName claims a name as a pseudo-operand, such as a register.
	ParseName(c *Cursor, n *Node, name string) bool
	// NeedsIndexOperator reserves '[' for indexing instead of grouping.
	NeedsIndexOperator() bool
}

// Evaluator is implemented by machines that can compute their own operators
// on absolute operands. Unary operators get one operand.
type Evaluator interface {
	Apply(op Op, operands []uint64) (uint64, bool)
}

// Initializer is implemented by machines that need the engine before parsing
// starts, typically to call SetRank for their operators.
type Initializer interface {
	Init(e *Engine) error
}

// Generic is a machine without any extension.
type Generic struct{}

// ParseOperator never claims anything.
func (Generic) ParseOperator(*Cursor, string, Role) Op { return OpAbsent }

// ParseOperand never claims anything.
func (Generic) ParseOperand(*Cursor, *Node) bool { return false }

// ParseName never claims anything.
func (Generic) ParseName(*Cursor, *Node, string) bool { return false }

// NeedsIndexOperator is false: brackets group.
func (Generic) NeedsIndexOperator() bool { return false }
