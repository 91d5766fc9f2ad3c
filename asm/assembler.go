// Package asm is the line processor around the expression engine: it reads
// source text, keeps sections, symbols and fixups, and produces an object.
package asm

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Urethramancer/pdas/diag"
	"github.com/Urethramancer/pdas/expr"
	"github.com/Urethramancer/pdas/frag"
)

// ErrAssembly is wrapped by the error Assemble returns when errors were reported.
var ErrAssembly = errors.New("assembly failed")

// Assembler holds the state for one assembly.
type Assembler struct {
	layout *frag.Layout
	engine *expr.Engine
	diag   *diag.List
	target Target
	file   string

	directives map[string]Directive
	defsyms    []defsym
	fixups     []*fixup
	variants   map[*frag.Frag]diag.Pos
	relocs     map[*frag.Section][]Reloc
	cond       []condState
	ended      bool

	includeDirs []string
	readFile    func(string) ([]byte, error)
	depth       int
	commons     map[*expr.Symbol]uint
	listing     []*listLine
	obj         *Object
}

type defsym struct {
	name  string
	value uint64
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithTarget selects the machine. The default is Generic.
func WithTarget(t Target) Option {
	return func(a *Assembler) {
		a.target = t
	}
}

// WithFile sets the file name used in diagnostics.
func WithFile(name string) Option {
	return func(a *Assembler) {
		a.file = name
	}
}

// WithIncludeDirs adds directories searched by .include after the name as given.
func WithIncludeDirs(dirs ...string) Option {
	return func(a *Assembler) {
		a.includeDirs = append(a.includeDirs, dirs...)
	}
}

// WithReadFile replaces os.ReadFile for .include.
func WithReadFile(fn func(name string) ([]byte, error)) Option {
	return func(a *Assembler) {
		a.readFile = fn
	}
}

// WithSymbol predefines an absolute symbol.
func WithSymbol(name string, value uint64) Option {
	return func(a *Assembler) {
		a.defsyms = append(a.defsyms, defsym{name: name, value: value})
	}
}

// New creates an Assembler.
func New(opts ...Option) (*Assembler, error) {
	a := &Assembler{
		target:   Generic{},
		diag:     &diag.List{},
		layout:   frag.New(),
		variants: make(map[*frag.Frag]diag.Pos),
		relocs:   make(map[*frag.Section][]Reloc),
		commons:  make(map[*expr.Symbol]uint),
		readFile: os.ReadFile,
	}
	for _, o := range opts {
		o(a)
	}

	e, err := expr.New(a.layout, a.diag,
		expr.WithMachine(a.target),
		expr.WithCharset(a.target.Charset()),
	)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", a.target.Name(), err)
	}
	a.engine = e

	a.directives = builtinDirectives()
	if p, ok := a.target.(DirectiveProvider); ok {
		for name, d := range p.Directives() {
			a.directives[strings.ToLower(name)] = d
		}
	}
	for _, d := range a.defsyms {
		a.engine.Symbols.FindOrMake(d.name).Set(frag.Absolute, frag.ZeroAddress, d.value)
	}
	return a, nil
}

// Engine returns the expression engine.
func (a *Assembler) Engine() *expr.Engine {
	return a.engine
}

// Layout returns the sections being assembled into.
func (a *Assembler) Layout() *frag.Layout {
	return a.layout
}

// Target returns the machine.
func (a *Assembler) Target() Target {
	return a.target
}

// Reporter returns the diagnostics collected so far.
func (a *Assembler) Reporter() *diag.List {
	return a.diag
}

// Diagnostics returns every warning and error in report order.
func (a *Assembler) Diagnostics() []diag.Diagnostic {
	return a.diag.Items()
}

// Assemble processes src and returns the object. The object is returned even
// when errors were reported, together with an error wrapping ErrAssembly.
// An Assembler assembles one source.
func (a *Assembler) Assemble(src string) (*Object, error) {
	last := a.source(a.file, src)
	if len(a.cond) > 0 {
		a.diag.Errorf("end of file inside conditional")
	}

	a.obj = a.finish(diag.Pos{File: a.file, Line: last})
	if err := a.diag.Err(); err != nil {
		return a.obj, fmt.Errorf("%w: %w", ErrAssembly, err)
	}
	return a.obj, nil
}

// source processes the lines of one file and returns the last line number read.
func (a *Assembler) source(file, src string) int {
	src = strings.TrimSuffix(strings.ReplaceAll(src, "\r\n", "\n"), "\n")
	last := 0
	for i, line := range strings.Split(src, "\n") {
		if a.ended {
			break
		}
		last = i + 1
		a.diag.SetPos(diag.Pos{File: file, Line: last})
		a.startListLine(file, last, line)
		a.processLine(line)
	}
	return last
}

// processLine splits one physical line into statements.
func (a *Assembler) processLine(line string) {
	if line != "" && strings.IndexByte(a.target.LineCommentChars(), line[0]) >= 0 {
		return
	}
	q, _ := a.target.(StringQuoter)
	c := a.engine.Cursor(stripComment(line, a.target.CommentChars(), q != nil && q.SingleQuotedStrings()))
	for {
		c.SkipWhitespace()
		if c.AtEnd() {
			return
		}
		if c.EndOfLine() != expr.EOLNone {
			c.Advance(1)
			continue
		}
		a.statement(c)
	}
}

// statement handles one label, assignment, pseudo-op or instruction.
func (a *Assembler) statement(c *expr.Cursor) {
	ch := c.Peek()
	if ch != '.' && !c.Charset().IsNameBeginner(ch) {
		if a.skipping() {
			skipStatement(c)
			return
		}
		a.DemandEmpty(c)
		return
	}

	name := c.NameEnd()
	lower := strings.ToLower(name)
	if a.skipping() && !isConditional(lower) {
		skipStatement(c)
		return
	}

	after := c.Pos()
	c.SkipWhitespace()
	switch {
	case c.Peek() == ':':
		c.Advance(1)
		a.label(name)
		return
	case c.Peek() == '=' && c.PeekAt(1) != '=':
		c.Advance(1)
		a.assign(c, name)
		a.DemandEmpty(c)
		return
	}

	// Motorola style: name equ expr.
	word := c.Pos()
	if w := strings.ToLower(c.NameEnd()); w == "equ" || w == "set" {
		a.assign(c, name)
		a.DemandEmpty(c)
		return
	}
	c.SetPos(word)

	if d, ok := a.lookup(lower); ok {
		d(a, c)
		return
	}
	c.SetPos(after)
	if lower[0] == '.' {
		a.diag.Errorf("unknown pseudo-op '%s'", lower)
	} else {
		a.diag.Errorf("unknown instruction '%s'", name)
	}
	skipStatement(c)
}

// lookup finds a pseudo-op, with or without its leading dot.
func (a *Assembler) lookup(name string) (Directive, bool) {
	if d, ok := a.directives[name]; ok {
		return d, true
	}
	if len(name) > 1 && name[0] == '.' {
		d, ok := a.directives[name[1:]]
		return d, ok
	}
	return nil, false
}

// label defines name at the current location.
func (a *Assembler) label(name string) {
	sym := a.engine.Symbols.FindOrMake(name)
	if sym.IsDefined() {
		a.diag.Errorf("symbol `%s' is already defined", name)
		return
	}
	sec, f, off := a.layout.Here()
	sym.Set(sec, f, off)
}

// assign gives name the value of the expression under the cursor.
// Assigning to "." moves the location counter.
func (a *Assembler) assign(c *expr.Cursor, name string) {
	if name == "." {
		a.org(c, 0)
		return
	}

	sym := a.engine.Symbols.FindOrMake(name)
	n, _ := a.engine.Evaluate(c)
	switch n.Op {
	case expr.OpInvalid:
		a.diag.Errorf("invalid expression")
		n = expr.Constant(0)
	case expr.OpAbsent:
		a.diag.Errorf("missing expression")
		n = expr.Constant(0)
	}

	switch n.Op {
	case expr.OpConstant:
		sym.Set(frag.Absolute, frag.ZeroAddress, n.Number)
	case expr.OpRegister:
		sym.SetDeferred(frag.Register, n)
	default:
		sym.SetDeferred(frag.Expr, n)
	}
}

// DemandEmpty reports anything left in the statement.
func (a *Assembler) DemandEmpty(c *expr.Cursor) {
	c.SkipWhitespace()
	if c.AtEnd() || c.EndOfLine() != expr.EOLNone {
		return
	}
	if ch := c.Peek(); ch >= ' ' && ch < 0x7f {
		a.diag.Errorf("junk at the end of line, first unrecognized character is '%c'", ch)
	} else {
		a.diag.Errorf("junk at the end of line, first unrecognized character valued 0x%x", ch)
	}
	skipStatement(c)
}

// skipStatement moves the cursor to the end of the statement.
func skipStatement(c *expr.Cursor) {
	for !c.AtEnd() && c.EndOfLine() == expr.EOLNone {
		if c.Peek() == '"' {
			c.Advance(1)
			for !c.AtEnd() && c.Peek() != '"' {
				if c.Peek() == '\\' {
					c.Advance(1)
				}
				c.Advance(1)
			}
		}
		c.Advance(1)
	}
}

// stripComment cuts line at the first comment character outside quotes.
// Without single-quoted strings a quote starts a one-character literal.
func stripComment(line, chars string, singleQuoted bool) string {
	if chars == "" {
		return line
	}
	for i := 0; i < len(line); i++ {
		switch ch := line[i]; {
		case ch == '"':
			i = closingQuote(line, i, '"')
		case ch == '\'' && singleQuoted:
			i = closingQuote(line, i, '\'')
		case ch == '\'':
			if i+1 < len(line) && line[i+1] == '\\' {
				i++
			}
			i++
		case strings.IndexByte(chars, ch) >= 0:
			return line[:i]
		}
	}
	return line
}

// closingQuote returns the index of the quote closing the string opened at
// open, or len(line) when there is none. Doubled single quotes stand for one.
func closingQuote(line string, open int, delim byte) int {
	for i := open + 1; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case delim:
			if delim == '\'' && i+1 < len(line) && line[i+1] == '\'' {
				i++
				continue
			}
			return i
		}
	}
	return len(line)
}
