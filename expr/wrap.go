package expr

import (
	"github.com/Urethramancer/pdas/frag"
)

// MakeSymbol returns a symbol standing for n. A bare symbol reference is
// returned as is; anything else is stored in a new synthetic symbol whose
// value is deferred until it is resolved.
func (e *Engine) MakeSymbol(n Node) *Symbol {
	if n.Op == OpSymbol && n.Number == 0 {
		return n.Add
	}

	sec := frag.Expr
	switch n.Op {
	case OpConstant:
		sec = frag.Absolute
	case OpRegister:
		sec = frag.Register
	}
	sym := e.Symbols.Create(FakeLabelName, sec, 0, frag.ZeroAddress)
	sym.SetDeferred(sec, n)
	e.lines[sym] = e.diag.Pos()
	return sym
}
