package asm

import (
	"path/filepath"

	"github.com/Urethramancer/pdas/expr"
)

const maxIncludeDepth = 32

// include handles .include "file". The file is looked up as given, then in
// each include directory. Its lines are assembled in place.
func (a *Assembler) include(c *expr.Cursor) {
	c.SkipWhitespace()
	if c.Peek() != '"' {
		a.diag.Errorf("missing string")
		skipStatement(c)
		return
	}
	c.Advance(1)
	start := c.Pos()
	for !c.AtEnd() && c.Peek() != '"' {
		c.Advance(1)
	}
	if c.AtEnd() {
		a.diag.Errorf("unterminated string")
		return
	}
	name := c.Slice(start, c.Pos())
	c.Advance(1)
	a.DemandEmpty(c)

	if a.depth >= maxIncludeDepth {
		a.diag.Errorf("includes nested too deeply at '%s'", name)
		return
	}
	path, src, ok := a.open(name)
	if !ok {
		a.diag.Errorf("can't open '%s' for reading", name)
		return
	}

	pos := a.diag.Pos()
	a.depth++
	a.source(path, string(src))
	a.depth--
	a.diag.SetPos(pos)
}

func (a *Assembler) open(name string) (string, []byte, bool) {
	if src, err := a.readFile(name); err == nil {
		return name, src, true
	}
	if filepath.IsAbs(name) {
		return "", nil, false
	}
	for _, dir := range a.includeDirs {
		path := filepath.Join(dir, name)
		if src, err := a.readFile(path); err == nil {
			return path, src, true
		}
	}
	return "", nil, false
}
