// Package frag models sections and the fragments of code placed in them.
//
// A fragment has a fixed part, whose bytes are known as soon as they are
// emitted, and an optional variable part (alignment padding, .org, .space with
// a symbolic count) whose size is only known once layout is relaxed.
package frag

// Kind classifies where a value lives.
type Kind int

const (
	// KindNormal is a section that holds code or data.
	KindNormal Kind = iota
	// KindAbsolute holds plain numbers.
	KindAbsolute
	// KindUndefined holds symbols not (yet) defined.
	KindUndefined
	// KindRegister holds machine registers.
	KindRegister
	// KindExpr hosts synthetic expression symbols.
	KindExpr
)

// Flags describe a normal section.
type Flags uint

const (
	// FlagCode marks executable sections.
	FlagCode Flags = 1 << iota
	// FlagData marks initialised data.
	FlagData
	// FlagNoLoad marks sections without file contents, like .bss.
	FlagNoLoad
	// FlagLinkOnce asks the linker to keep a single copy of the section.
	FlagLinkOnce
	// FlagDiscard and the flags after it say how duplicate link-once
	// sections are matched.
	FlagDiscard
	FlagOneOnly
	FlagSameSize
	FlagSameContents
)

// Section is a named container of fragments.
type Section struct {
	Name       string
	Kind       Kind
	Flags      Flags
	AlignPower uint

	first *Frag
	last  *Frag
}

// The pseudo sections. They never hold fragments.
var (
	Absolute  = &Section{Name: "*ABS*", Kind: KindAbsolute}
	Undefined = &Section{Name: "*UND*", Kind: KindUndefined}
	Register  = &Section{Name: "*REG*", Kind: KindRegister}
	Expr      = &Section{Name: "*EXPR*", Kind: KindExpr}
)

// ZeroAddress is the fragment absolute and synthetic symbols hang off.
var ZeroAddress = &Frag{Section: Absolute}

// NewSection creates a normal section with one empty fill fragment.
func NewSection(name string, flags Flags) *Section {
	s := &Section{Name: name, Kind: KindNormal, Flags: flags}
	f := &Frag{Section: s}
	s.first, s.last = f, f
	return s
}

// IsNormal reports whether the section holds code or data.
func (s *Section) IsNormal() bool {
	return s != nil && s.Kind == KindNormal
}

func (s *Section) String() string {
	if s == nil {
		return "<nil>"
	}
	return s.Name
}

// First returns the first fragment of the chain.
func (s *Section) First() *Frag {
	return s.first
}

// Last returns the fragment currently being filled.
func (s *Section) Last() *Frag {
	return s.last
}

// Size returns the laid-out size of the section.
func (s *Section) Size() uint64 {
	var n uint64
	for f := s.first; f != nil; f = f.Next {
		n += f.Size()
	}
	return n
}

// Bytes renders the section contents: fixed parts followed by their padding.
func (s *Section) Bytes() []byte {
	var out []byte
	for f := s.first; f != nil; f = f.Next {
		out = append(out, f.Fixed...)
		for i := uint64(0); i < f.VarSize; i++ {
			out = append(out, f.Fill)
		}
	}
	return out
}

// RecordAlignment keeps the largest alignment power requested for the section.
func (s *Section) RecordAlignment(power uint) {
	if power > s.AlignPower {
		s.AlignPower = power
	}
}
