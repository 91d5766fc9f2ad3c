package expr

import (
	"errors"

	"github.com/Urethramancer/pdas/diag"
	"github.com/Urethramancer/pdas/frag"
)

// Mode selects whether a top-level parse also tries to resolve.
type Mode int

const (
	// ModeNormal parses and folds.
	ModeNormal Mode = iota
	// ModeEvaluate also resolves the result when it can.
	ModeEvaluate
)

// Layout is the view of code placement the engine needs.
type Layout interface {
	// OffsetIsFixed returns the amount to subtract from the difference of
	// values in a and b when their distance can no longer change.
	OffsetIsFixed(a, b *frag.Frag) (int64, bool)
	// IsGreaterThanOffset tries to prove va/fa lies after vb/fb.
	IsGreaterThanOffset(va uint64, fa *frag.Frag, vb uint64, fb *frag.Frag) (int64, bool)
	// Here returns the current section, fragment and offset in the fragment.
	Here() (*frag.Section, *frag.Frag, uint64)
	// Finalized reports whether all addresses are fixed.
	Finalized() bool
}

// Engine parses and resolves expressions for one assembly session.
// It is not safe for concurrent use.
type Engine struct {
	Symbols *SymbolTable

	layout  Layout
	machine Machine
	diag    diag.Reporter
	chars   *Charset
	ranks   []uint
	sealed  bool
	lines   map[*Symbol]diag.Pos
	looped  map[*Symbol]bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithMachine installs a machine extension.
func WithMachine(m Machine) Option {
	return func(e *Engine) {
		e.machine = m
	}
}

// WithCharset sets the character classes.
func WithCharset(cs *Charset) Option {
	return func(e *Engine) {
		e.chars = cs
	}
}

// WithSymbols shares an existing symbol table.
func WithSymbols(t *SymbolTable) Option {
	return func(e *Engine) {
		e.Symbols = t
	}
}

// New creates an engine. A nil layout gets a fresh frag.Layout and a nil
// reporter a fresh diag.List.
func New(layout Layout, rep diag.Reporter, opts ...Option) (*Engine, error) {
	if layout == nil {
		layout = frag.New()
	}
	if rep == nil {
		rep = &diag.List{}
	}
	e := &Engine{
		layout:  layout,
		machine: Generic{},
		diag:    rep,
		ranks:   append([]uint(nil), defaultRanks[:]...),
		lines:   make(map[*Symbol]diag.Pos),
		looped:  make(map[*Symbol]bool),
	}
	for _, o := range opts {
		o(e)
	}
	if e.Symbols == nil {
		e.Symbols = NewSymbolTable()
	}
	if e.chars == nil {
		e.chars = DefaultCharset()
	}
	if init, ok := e.machine.(Initializer); ok {
		if err := init.Init(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Charset returns the character classes the engine parses with.
func (e *Engine) Charset() *Charset {
	return e.chars
}

// Layout returns the layout the engine consults.
func (e *Engine) Layout() Layout {
	return e.layout
}

// Reporter returns where diagnostics go.
func (e *Engine) Reporter() diag.Reporter {
	return e.diag
}

// Cursor returns a cursor over src using the engine's character classes.
func (e *Engine) Cursor(src string) *Cursor {
	return NewCursor(src, e.chars)
}

// Parse reads one expression, folding what it can.
func (e *Engine) Parse(c *Cursor) (Node, *frag.Section) {
	var n Node
	sec := e.ReadInto(c, &n, 0, ModeNormal)
	return n, sec
}

// Evaluate reads one expression and resolves it if possible.
func (e *Engine) Evaluate(c *Cursor) (Node, *frag.Section) {
	var n Node
	sec := e.ReadInto(c, &n, 0, ModeEvaluate)
	return n, sec
}

// EvaluateString is Evaluate over a whole string. It also returns what was left unread.
func (e *Engine) EvaluateString(s string) (Node, *frag.Section, string) {
	c := e.Cursor(s)
	n, sec := e.Evaluate(c)
	return n, sec, c.Rest()
}

// Absolute reads an expression that must reduce to a number. Anything else
// is reported and read as 0.
func (e *Engine) Absolute(c *Cursor) uint64 {
	n, _ := e.Evaluate(c)
	if n.Op != OpConstant {
		if n.Op != OpAbsent {
			e.diag.Errorf("bad or irreducible absolute expression")
		}
		return 0
	}
	return n.Number
}

// CurrentLocation makes n refer to a fresh symbol at the current location.
func (e *Engine) CurrentLocation(n *Node) *frag.Section {
	sec, f, off := e.layout.Here()
	*n = SymbolRef(e.Symbols.Create(FakeLabelName, sec, off, f), 0)
	return sec
}

// SymbolPos returns where a synthetic expression symbol was made.
func (e *Engine) SymbolPos(s *Symbol) (diag.Pos, bool) {
	p, ok := e.lines[s]
	return p, ok
}

// report turns hard resolution failures into diagnostics.
func (e *Engine) report(err error) {
	e.ReportCycle(err)
}

// ReportCycle reports whether err is a definition loop. Each looping symbol
// is reported once per engine.
func (e *Engine) ReportCycle(err error) bool {
	var cycle *CycleError
	if !errors.As(err, &cycle) {
		return false
	}
	if !e.looped[cycle.Symbol] {
		e.looped[cycle.Symbol] = true
		e.diag.Errorf("%v", cycle)
	}
	return true
}
