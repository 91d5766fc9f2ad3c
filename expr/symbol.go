package expr

import (
	"github.com/Urethramancer/pdas/frag"
)

// FakeLabelName names synthetic symbols: current-location temporaries and
// the symbols wrapped around deferred expressions.
const FakeLabelName = "L0\x01"

// Value is what a symbol holds: a plain number, or an expression whose value
// is not known yet.
type Value struct {
	word uint64
	node *Node
}

// Plain returns a numeric value.
func Plain(w uint64) Value {
	return Value{word: w}
}

// Deferred returns a value computed from n when it is forced.
func Deferred(n Node) Value {
	return Value{node: &n}
}

// Word returns the plain number. For a deferred value it is the addend of the expression.
func (v Value) Word() uint64 {
	if v.node != nil {
		return v.node.Number
	}
	return v.word
}

// Deferred returns the stored expression, if any.
func (v Value) Deferred() (*Node, bool) {
	return v.node, v.node != nil
}

// Symbol is a named (or synthetic) location or value.
type Symbol struct {
	Name string

	section  *frag.Section
	frag     *frag.Frag
	value    Value
	external bool
	weak     bool

	resolving bool
}

// Section returns where the symbol lives.
func (s *Symbol) Section() *frag.Section {
	return s.section
}

// Frag returns the fragment the symbol's value is relative to.
func (s *Symbol) Frag() *frag.Frag {
	return s.frag
}

// Value returns the current numeric value: the fragment address plus the
// offset within it. Deferred symbols report the addend of their expression.
func (s *Symbol) Value() uint64 {
	if _, ok := s.value.Deferred(); ok {
		return s.value.Word()
	}
	if s.frag != nil {
		return s.frag.Address + s.value.word
	}
	return s.value.word
}

// Stored returns the tagged value as stored.
func (s *Symbol) Stored() Value {
	return s.value
}

// Set gives the symbol a plain value, an offset in f.
func (s *Symbol) Set(sec *frag.Section, f *frag.Frag, offset uint64) {
	s.section = sec
	s.frag = f
	s.value = Plain(offset)
}

// SetDeferred stores an expression as the symbol's value.
func (s *Symbol) SetDeferred(sec *frag.Section, n Node) {
	s.section = sec
	s.frag = frag.ZeroAddress
	s.value = Deferred(n)
}

// IsDefined reports whether the symbol has been given a value.
func (s *Symbol) IsDefined() bool {
	return s.section != frag.Undefined
}

// IsSynthetic reports whether the symbol was made up by the assembler.
func (s *Symbol) IsSynthetic() bool {
	return s.Name == FakeLabelName
}

// ForceReloc reports whether references must stay relocations even when the
// symbol's value looks known.
func (s *Symbol) ForceReloc() bool {
	return s.weak || s.section == frag.Undefined
}

// External reports whether the symbol was declared global.
func (s *Symbol) External() bool {
	return s.external
}

// SetExternal marks the symbol global.
func (s *Symbol) SetExternal() {
	s.external = true
}

// Weak reports whether the symbol was declared weak.
func (s *Symbol) Weak() bool {
	return s.weak
}

// SetWeak marks the symbol weak, which also makes it global.
func (s *Symbol) SetWeak() {
	s.weak = true
	s.external = true
}

func (s *Symbol) String() string {
	if s == nil {
		return "<nil>"
	}
	if n, ok := s.value.Deferred(); ok && s.IsSynthetic() {
		return n.String()
	}
	if s.IsSynthetic() {
		return "."
	}
	return s.Name
}

// SymbolTable owns every symbol of a session.
type SymbolTable struct {
	byName map[string]*Symbol
	all    []*Symbol
}

// NewSymbolTable creates an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{byName: make(map[string]*Symbol)}
}

// Find looks a named symbol up.
func (t *SymbolTable) Find(name string) (*Symbol, bool) {
	s, ok := t.byName[name]
	return s, ok
}

// FindOrMake returns the named symbol, creating it undefined if needed.
func (t *SymbolTable) FindOrMake(name string) *Symbol {
	if s, ok := t.byName[name]; ok {
		return s
	}
	s := t.Create(name, frag.Undefined, 0, frag.ZeroAddress)
	t.byName[name] = s
	return s
}

// Create makes a symbol that is not entered by name.
func (t *SymbolTable) Create(name string, sec *frag.Section, offset uint64, f *frag.Frag) *Symbol {
	s := &Symbol{Name: name, section: sec, frag: f, value: Plain(offset)}
	t.all = append(t.all, s)
	return s
}

// Named returns the symbols entered by name, in creation order.
func (t *SymbolTable) Named() []*Symbol {
	var out []*Symbol
	for _, s := range t.all {
		if t.byName[s.Name] == s {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of symbols, synthetic ones included.
func (t *SymbolTable) Len() int {
	return len(t.all)
}
