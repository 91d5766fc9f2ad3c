package frag

import (
	"errors"
	"fmt"
)

// ErrNoConvergence is returned when relaxation keeps changing sizes.
var ErrNoConvergence = errors.New("layout did not converge")

// maxPasses bounds relaxation.
const maxPasses = 64

// Layout tracks the sections of one assembly and where code is being placed.
type Layout struct {
	sections  []*Section
	byName    map[string]*Section
	current   *Section
	finalized bool
	relaxing  bool
}

// New creates a layout with .text, .data and .bss, placing code in .text.
func New() *Layout {
	l := &Layout{byName: make(map[string]*Section)}
	l.current = l.Section(".text", FlagCode)
	l.Section(".data", FlagData)
	l.Section(".bss", FlagNoLoad)
	return l
}

// Section finds or creates a normal section.
func (l *Layout) Section(name string, flags Flags) *Section {
	if s, ok := l.byName[name]; ok {
		return s
	}
	s := NewSection(name, flags)
	l.byName[name] = s
	l.sections = append(l.sections, s)
	return s
}

// Lookup finds a section by name.
func (l *Layout) Lookup(name string) (*Section, bool) {
	s, ok := l.byName[name]
	return s, ok
}

// Sections returns every normal section in creation order.
func (l *Layout) Sections() []*Section {
	return l.sections
}

// SetSection makes s the current section.
func (l *Layout) SetSection(s *Section) {
	l.current = s
}

// Current returns the current section.
func (l *Layout) Current() *Section {
	return l.current
}

// Frag returns the fragment being filled.
func (l *Layout) Frag() *Frag {
	return l.current.last
}

// Here returns the current section, fragment and offset within that fragment.
func (l *Layout) Here() (*Section, *Frag, uint64) {
	f := l.current.last
	return l.current, f, uint64(len(f.Fixed))
}

// Grow appends n bytes to the fixed part of the current fragment and returns them.
func (l *Layout) Grow(n int) []byte {
	f := l.current.last
	start := len(f.Fixed)
	f.Fixed = append(f.Fixed, make([]byte, n)...)
	return f.Fixed[start:]
}

// Append adds bytes to the fixed part of the current fragment.
func (l *Layout) Append(b ...byte) {
	f := l.current.last
	f.Fixed = append(f.Fixed, b...)
}

// CloseAlign ends the current fragment with alignment padding.
func (l *Layout) CloseAlign(power uint, fill byte, maxSkip uint64) {
	f := l.close(Align, fill)
	f.Power = power
	f.MaxSkip = maxSkip
	l.current.RecordAlignment(power)
}

// CloseVariant ends the current fragment with an Org or Space part that is
// sized later from target, an expression symbol, plus offset.
func (l *Layout) CloseVariant(kind FragKind, target any, offset uint64, fill byte) {
	f := l.close(kind, fill)
	f.Target = target
	f.Offset = offset
}

func (l *Layout) close(kind FragKind, fill byte) *Frag {
	s := l.current
	f := s.last
	f.Kind = kind
	f.Fill = fill
	next := &Frag{Section: s}
	f.Next = next
	s.last = next
	return f
}

// Finalized reports whether symbol values may be computed from fragment
// addresses. During Relax they are provisional but consistent.
func (l *Layout) Finalized() bool {
	return l.finalized || l.relaxing
}

// Finalize marks the layout as fixed. Relax must have succeeded first.
func (l *Layout) Finalize() {
	l.finalized = true
}

// OffsetIsFixed reports whether the distance between two fragments can no
// longer change, returning the amount to subtract from the difference of
// two symbol values in a and b.
func (l *Layout) OffsetIsFixed(a, b *Frag) (int64, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if l.Finalized() && a.Section == b.Section {
		return 0, true
	}
	off := int64(a.Address) - int64(b.Address)
	if a == b {
		return off, true
	}

	// b after a?
	for f := a; f.Kind == Fill; {
		off += int64(len(f.Fixed))
		f = f.Next
		if f == nil {
			break
		}
		if f == b {
			return off, true
		}
	}

	// a after b?
	off = int64(a.Address) - int64(b.Address)
	for f := b; f.Kind == Fill; {
		off -= int64(len(f.Fixed))
		f = f.Next
		if f == nil {
			break
		}
		if f == a {
			return off, true
		}
	}
	return 0, false
}

// IsGreaterThanOffset tries to prove that the location va in fragment fa
// lies strictly after vb in fb using only the minimum sizes of the fragments
// in between. On success the returned offset, added to vb, keeps the
// comparison va > vb true.
func (l *Layout) IsGreaterThanOffset(va uint64, fa *Frag, vb uint64, fb *Frag) (int64, bool) {
	if fa == nil || fb == nil || fa == fb || fa.Section != fb.Section {
		return 0, false
	}
	la := int64(va) - int64(fa.Address)
	lb := int64(vb) - int64(fb.Address)
	if lb > int64(len(fb.Fixed)) {
		return 0, false
	}

	dist := int64(len(fb.Fixed)) - lb
	for f := fb.Next; f != nil; f = f.Next {
		if f == fa {
			dist += la
			if dist <= 0 {
				return 0, false
			}
			return int64(va) - int64(vb) - dist, true
		}
		dist += int64(len(f.Fixed))
	}
	return 0, false
}

// SizeFunc computes the variable size of f when its fixed part ends at end.
type SizeFunc func(f *Frag, end uint64) (uint64, error)

// Relax assigns addresses, asking sizeOf for the size of every variable
// part, and repeats until no address or size changes.
func (l *Layout) Relax(sizeOf SizeFunc) error {
	l.relaxing = true
	defer func() { l.relaxing = false }()

	for pass := 0; pass < maxPasses; pass++ {
		changed := false
		for _, s := range l.sections {
			var addr uint64
			for f := s.first; f != nil; f = f.Next {
				if f.Address != addr {
					f.Address = addr
					changed = true
				}
				if f.Kind != Fill {
					size, err := sizeOf(f, f.End())
					if err != nil {
						return fmt.Errorf("%s: %w", s.Name, err)
					}
					if size != f.VarSize {
						f.VarSize = size
						changed = true
					}
				}
				addr += f.Size()
			}
		}
		if !changed {
			return nil
		}
	}
	return ErrNoConvergence
}

// AlignPadding returns the padding an Align fragment needs when its fixed part ends at end.
func AlignPadding(f *Frag, end uint64) uint64 {
	mask := uint64(1)<<f.Power - 1
	pad := (mask + 1 - end&mask) & mask
	if f.MaxSkip != 0 && pad > f.MaxSkip {
		return 0
	}
	return pad
}
