package asm

import (
	"fmt"
	"io"
	"strings"

	"github.com/Urethramancer/pdas/frag"
)

// listLine is one source line and the bytes it put in its fragment.
type listLine struct {
	file  string
	line  int
	text  string
	frag  *frag.Frag
	where int
	size  int
}

// startListLine closes the previous entry and starts one for text.
func (a *Assembler) startListLine(file string, line int, text string) {
	a.closeListLine()
	f := a.layout.Frag()
	a.listing = append(a.listing, &listLine{
		file:  file,
		line:  line,
		text:  text,
		frag:  f,
		where: len(f.Fixed),
	})
}

// closeListLine records how many bytes the last line emitted. Bytes that went
// past a variable part into the next fragment are not listed.
func (a *Assembler) closeListLine() {
	if len(a.listing) == 0 {
		return
	}
	ll := a.listing[len(a.listing)-1]
	ll.size = len(ll.frag.Fixed) - ll.where
}

// WriteListing writes the source with the bytes and address of every line,
// the diagnostics under the line they belong to, and the symbols. It is
// meant to be called after Assemble.
func (a *Assembler) WriteListing(w io.Writer) error {
	a.closeListLine()

	var b strings.Builder
	for _, ll := range a.listing {
		prefix := fmt.Sprintf("%05d    ", ll.line)
		b.WriteString(prefix)
		data := ll.frag.Fixed[ll.where : ll.where+ll.size]
		for i, v := range data {
			if i > 0 && i%4 == 0 {
				b.WriteString("\n" + prefix)
			}
			fmt.Fprintf(&b, "%02X", v)
		}
		n := len(data)
		if n > 0 && n%4 == 0 {
			b.WriteString("\n" + prefix)
		}
		b.WriteString(strings.Repeat("  ", 8-n%4))
		fmt.Fprintf(&b, "%04x    %s\n", ll.frag.Address+uint64(ll.where), ll.text)

		for _, d := range a.diag.Items() {
			if d.Pos.File == ll.file && d.Pos.Line == ll.line {
				fmt.Fprintf(&b, "*****  %s: %s\n", d.Severity, d.Msg)
			}
		}
	}

	if a.obj != nil && len(a.obj.Symbols) > 0 {
		var defined, undefined []SymbolInfo
		for _, s := range a.obj.Symbols {
			if s.Defined {
				defined = append(defined, s)
			} else {
				undefined = append(undefined, s)
			}
		}
		writeSymbols(&b, "DEFINED SYMBOLS", defined)
		writeSymbols(&b, "UNDEFINED SYMBOLS", undefined)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeSymbols(b *strings.Builder, title string, syms []SymbolInfo) {
	if len(syms) == 0 {
		fmt.Fprintf(b, "\nNO %s\n", title)
		return
	}
	fmt.Fprintf(b, "\n%s:\n\n", title)
	for _, s := range syms {
		fmt.Fprintf(b, "    %08x    %s\n", s.Value, s.Name)
	}
}
