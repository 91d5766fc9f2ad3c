package asm

import (
	"github.com/Urethramancer/pdas/expr"
)

type condState struct {
	// active is set while lines are assembled.
	active bool
	// taken is set once a branch was chosen, or when the whole block is
	// inside a skipped branch.
	taken   bool
	sawElse bool
}

func isConditional(name string) bool {
	switch name {
	case ".if", ".ifdef", ".ifndef", ".else", ".endif", "if", "ifdef", "ifndef", "else", "endif":
		return true
	}
	return false
}

func (a *Assembler) skipping() bool {
	return len(a.cond) > 0 && !a.cond[len(a.cond)-1].active
}

func (a *Assembler) pushCond(ok bool) {
	a.cond = append(a.cond, condState{active: ok, taken: ok})
}

// nestedSkip opens a block inside a skipped branch without reading its condition.
func (a *Assembler) nestedSkip(c *expr.Cursor) bool {
	if !a.skipping() {
		return false
	}
	a.cond = append(a.cond, condState{taken: true})
	skipStatement(c)
	return true
}

func (a *Assembler) ifExpr(c *expr.Cursor) {
	if a.nestedSkip(c) {
		return
	}
	a.pushCond(a.engine.Absolute(c) != 0)
	a.DemandEmpty(c)
}

func (a *Assembler) ifDefined(c *expr.Cursor, want bool) {
	if a.nestedSkip(c) {
		return
	}
	c.SkipWhitespace()
	name := c.NameEnd()
	if name == "" {
		a.diag.Errorf("expected symbol name")
		skipStatement(c)
		a.pushCond(false)
		return
	}
	sym, ok := a.engine.Symbols.Find(name)
	defined := ok && sym.IsDefined()
	a.pushCond(defined == want)
	a.DemandEmpty(c)
}

func (a *Assembler) elseBranch(c *expr.Cursor) {
	if len(a.cond) == 0 {
		a.diag.Errorf(".else without matching .if")
		skipStatement(c)
		return
	}
	top := &a.cond[len(a.cond)-1]
	if top.sawElse {
		a.diag.Errorf("duplicate .else")
	}
	top.sawElse = true
	top.active = !top.taken
	top.taken = true
	a.DemandEmpty(c)
}

func (a *Assembler) endif(c *expr.Cursor) {
	if len(a.cond) == 0 {
		a.diag.Errorf(".endif without matching .if")
		skipStatement(c)
		return
	}
	a.cond = a.cond[:len(a.cond)-1]
	a.DemandEmpty(c)
}
