package asm

import (
	"fmt"
	"io"
	"strings"

	"github.com/Urethramancer/pdas/frag"
)

// Reloc is a field the linker must fill from a symbol value.
type Reloc struct {
	// Offset is the field's position in its section.
	Offset uint64
	Size   int
	// Symbol is the referenced symbol, or a section name for local references.
	Symbol string
	Addend int64
	// RVA marks values relative to the image base.
	RVA bool
}

// SectionImage is the assembled contents of one section.
type SectionImage struct {
	Name  string
	Flags frag.Flags
	// Align is the alignment as a power of two.
	Align uint
	// Data is nil for sections without contents.
	Data   []byte
	Size   uint64
	Relocs []Reloc
}

// SymbolInfo is a named symbol with its final value.
type SymbolInfo struct {
	Name     string
	Section  string
	Value    uint64
	External bool
	Weak     bool
	Defined  bool
	// Common symbols have their size as Value and Align as a power of two.
	Common bool
	Align  uint
}

// Object is the result of an assembly.
type Object struct {
	Sections []*SectionImage
	Symbols  []SymbolInfo
}

// Section returns the named section image.
func (o *Object) Section(name string) (*SectionImage, bool) {
	for _, s := range o.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Symbol returns the named symbol.
func (o *Object) Symbol(name string) (SymbolInfo, bool) {
	for _, s := range o.Symbols {
		if s.Name == name {
			return s, true
		}
	}
	return SymbolInfo{}, false
}

// Dump writes a readable listing: non-empty sections as hex lines of 16
// bytes, their relocations, and the symbols when syms is set.
func (o *Object) Dump(w io.Writer, syms bool) error {
	var b strings.Builder
	for _, s := range o.Sections {
		if s.Size == 0 && len(s.Relocs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s size %#x align %d%s\n", s.Name, s.Size, 1<<s.Align, linkOnce(s.Flags))
		for i := 0; i < len(s.Data); i += 16 {
			end := min(i+16, len(s.Data))
			fmt.Fprintf(&b, "  %04x: % x\n", i, s.Data[i:end])
		}
		for _, r := range s.Relocs {
			kind := "abs"
			if r.RVA {
				kind = "rva"
			}
			fmt.Fprintf(&b, "  reloc %04x %s%d %s%+#x\n", r.Offset, kind, r.Size*8, r.Symbol, r.Addend)
		}
	}

	if syms && len(o.Symbols) > 0 {
		b.WriteString("symbols\n")
		for _, s := range o.Symbols {
			bind := "local"
			switch {
			case s.Weak:
				bind = "weak"
			case s.External:
				bind = "global"
			}
			fmt.Fprintf(&b, "  %-16s %-8s %#x %s\n", s.Name, s.Section, s.Value, bind)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func linkOnce(flags frag.Flags) string {
	if flags&frag.FlagLinkOnce == 0 {
		return ""
	}
	switch {
	case flags&frag.FlagOneOnly != 0:
		return " linkonce one_only"
	case flags&frag.FlagSameSize != 0:
		return " linkonce same_size"
	case flags&frag.FlagSameContents != 0:
		return " linkonce same_contents"
	case flags&frag.FlagDiscard != 0:
		return " linkonce discard"
	}
	return " linkonce"
}
