package asm

import (
	"math/bits"

	"github.com/Urethramancer/pdas/expr"
	"github.com/Urethramancer/pdas/frag"
)

// commonSection is the section name common symbols are listed under.
const commonSection = "*COM*"

// comm handles .comm name, size[, alignment]. The symbol stays undefined
// and external, with the size as its value, for the linker to allocate.
func (a *Assembler) comm(c *expr.Cursor) {
	sym, size, power, ok := a.commonArgs(c)
	if !ok {
		return
	}
	sym.Set(frag.Undefined, frag.ZeroAddress, size)
	sym.SetExternal()
	a.commons[sym] = power
	a.DemandEmpty(c)
}

// lcomm handles .lcomm name, size[, alignment]: size bytes reserved in .bss.
func (a *Assembler) lcomm(c *expr.Cursor) {
	sym, size, power, ok := a.commonArgs(c)
	if !ok {
		return
	}

	saved := a.layout.Current()
	a.layout.SetSection(a.layout.Section(".bss", frag.FlagNoLoad))
	if power != 0 {
		a.Align(power, 0, 0)
	}
	sec, f, off := a.layout.Here()
	sym.Set(sec, f, off)
	a.Fill(size, 0)
	a.layout.SetSection(saved)
	a.DemandEmpty(c)
}

// commonArgs reads the operands shared by .comm and .lcomm. The alignment is
// a byte count and is returned as a power of two.
func (a *Assembler) commonArgs(c *expr.Cursor) (*expr.Symbol, uint64, uint, bool) {
	c.SkipWhitespace()
	name := c.NameEnd()
	if name == "" {
		a.diag.Errorf("expected symbol name")
		skipStatement(c)
		return nil, 0, 0, false
	}
	c.SkipWhitespace()
	if c.Peek() == ',' {
		c.Advance(1)
	}

	size, ok := a.absolute(c)
	if !ok {
		a.diag.Errorf("missing size expression")
		skipStatement(c)
		return nil, 0, 0, false
	}
	sym := a.engine.Symbols.FindOrMake(name)

	var power uint
	c.SkipWhitespace()
	if c.Peek() == ',' {
		c.Advance(1)
		v, ok := a.absolute(c)
		if !ok {
			a.diag.Errorf("expected alignment after size")
			skipStatement(c)
			return nil, 0, 0, false
		}
		if int64(v) < 0 {
			a.diag.Warnf("alignment negative; 0 assumed")
			v = 0
		}
		if v != 0 {
			if v&(v-1) != 0 {
				a.diag.Errorf("alignment is not a power of 2!")
			}
			power = uint(bits.TrailingZeros64(v))
		}
		if power > 31 {
			a.diag.Errorf("alignment too large: 31 assumed")
			power = 31
		}
	}

	if sym.IsDefined() {
		a.diag.Errorf("symbol '%s' is already defined", name)
		skipStatement(c)
		return nil, 0, 0, false
	}
	return sym, size, power, true
}

// absolute reads an expression that must be a number. It returns false only
// when there is no expression at all.
func (a *Assembler) absolute(c *expr.Cursor) (uint64, bool) {
	n, _ := a.engine.Evaluate(c)
	switch n.Op {
	case expr.OpAbsent:
		return 0, false
	case expr.OpConstant:
		return n.Number, true
	case expr.OpInvalid:
		return 0, true
	}
	a.diag.Errorf("bad or irreducible absolute expression")
	return 0, true
}
