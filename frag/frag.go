package frag

// FragKind says what the variable part of a fragment is.
type FragKind int

const (
	// Fill fragments have no variable part.
	Fill FragKind = iota
	// Align pads to a power of two.
	Align
	// Org pads up to an expression-valued offset.
	Org
	// Space repeats the fill byte an expression-valued number of times.
	Space
)

func (k FragKind) String() string {
	switch k {
	case Align:
		return "align"
	case Org:
		return "org"
	case Space:
		return "space"
	}
	return "fill"
}

// Frag is a run of bytes whose internal offsets never change.
type Frag struct {
	Section *Section
	Kind    FragKind
	// Address is the offset of the fragment from the start of its section.
	// It is zero until layout assigns it.
	Address uint64
	Fixed   []byte
	Next    *Frag

	// VarSize is the size of the variable part in the current layout.
	VarSize uint64
	// Power and MaxSkip describe Align fragments; MaxSkip 0 means no limit.
	Power   uint
	MaxSkip uint64
	// Fill is the padding byte.
	Fill byte
	// Target is the expression symbol an Org or Space fragment evaluates,
	// owned by whoever closed the fragment. Offset is added to it.
	Target any
	Offset uint64
}

// Size returns the fixed size plus the current variable size.
func (f *Frag) Size() uint64 {
	return uint64(len(f.Fixed)) + f.VarSize
}

// End returns the address right after the fixed part.
func (f *Frag) End() uint64 {
	return f.Address + uint64(len(f.Fixed))
}
