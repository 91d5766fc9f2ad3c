package asm_test

import (
	"bytes"
	"encoding/hex"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Urethramancer/pdas/asm"
	"github.com/Urethramancer/pdas/diag"
	"github.com/Urethramancer/pdas/frag"
)

func assemble(t *testing.T, name, src string, opts ...asm.Option) (*asm.Object, *asm.Assembler) {
	t.Helper()

	a, err := asm.New(opts...)
	if err != nil {
		t.Fatalf("[%s] failed to create assembler: %v", name, err)
	}
	obj, err := a.Assemble(src)
	if err != nil {
		t.Fatalf("[%s] failed to assemble:\n%s\nerror: %v", name, src, err)
	}
	return obj, a
}

// Assembles source and checks one section against an expected byte sequence (in hex).
func assembleAndMatchHex(t *testing.T, name, src, section, expectedHex string, opts ...asm.Option) *asm.Object {
	t.Helper()

	expectedHex = strings.ToLower(strings.Join(strings.Fields(expectedHex), ""))
	expected, err := hex.DecodeString(expectedHex)
	if err != nil {
		t.Fatalf("[%s] invalid expected hex string: %v", name, err)
	}

	obj, _ := assemble(t, name, src, opts...)
	s, ok := obj.Section(section)
	if !ok {
		t.Fatalf("[%s] no section %s", name, section)
	}
	if !bytes.Equal(s.Data, expected) {
		t.Errorf("[%s] section %s\nexpected: % X\ngot:      % X", name, section, expected, s.Data)
	}
	return obj
}

func TestDataDirectives(t *testing.T) {
	tests := []struct {
		name, src, hex string
	}{
		{"Bytes", ".byte 1, 2, 0xff", "01 02 ff"},
		{"Word", ".word 0x1234", "34 12"},
		{"ShortValue", ".short 1\n.value 2", "01 00 02 00"},
		{"LongInt", ".long 0x12345678\n.int -1", "78 56 34 12 ff ff ff ff"},
		{"Quad", ".quad 1", "01 00 00 00 00 00 00 00"},
		{"NoDot", "byte 7", "07"},
		{"Separators", ".byte 1; .byte 2", "01 02"},
		{"Comment", ".byte 3 # three", "03"},
		{"Strings", ".ascii \"ab\"\n.asciz \"c\\n\"\n.string \"\\x41\\101\"", "61 62 63 0a 00 41 41 00"},
		{"HashInString", `.ascii "#;"`, "23 3b"},
		{"Labels", "a: .byte 1\nb: .byte b - a", "01 01"},
		{"Forward", ".long end - start\nstart: .byte 1, 2\nend:", "02 00 00 00 01 02"},
		{"Equates", "five = 5\n.byte five, five*2\nsix equ 6\n.set seven, 7\n.equ eight, 8\n.byte six, seven, eight", "05 0a 06 07 08"},
		{"ForwardEquate", ".word later\nlater = 0x1234", "34 12"},
	}
	for _, tc := range tests {
		assembleAndMatchHex(t, tc.name, tc.src, ".text", tc.hex)
	}
}

func TestLayoutDirectives(t *testing.T) {
	tests := []struct {
		name, src, hex string
	}{
		{"Align", ".byte 1\n.align 4\n.byte 2", "01 00 00 00 02"},
		{"BalignFill", ".byte 1\n.balign 4, 0xee\n.byte 2", "01 ee ee ee 02"},
		{"P2align", ".byte 1\n.p2align 1\n.byte 2", "01 00 02"},
		{"AlignMaxSkip", ".byte 1\n.p2align 3, 0, 2\n.byte 2", "01 02"},
		{"Org", ".byte 1\n.org 4\n.byte 2", "01 00 00 00 02"},
		{"OrgFill", ".byte 1\n.org 3, 0x55\n.byte 2", "01 55 55 02"},
		{"OrgLabel", "start: .byte 1\n.org start + 2\n.byte 2", "01 00 02"},
		{"DotAssign", ".byte 1\n. = 2\n.byte 2", "01 00 02"},
		{"EquDot", ".byte 1\n.equ ., 3\n.byte 2", "01 00 00 02"},
		{"Space", ".space 3, 0x7f\n.skip 1\n.zero 2", "7f 7f 7f 00 00 00"},
		{"SpaceForward", ".space n, 0xaa\n.byte 7\nn = 2", "aa aa 07"},
		{"SpaceDifference", ".space end - start, 1\nstart: .byte 2, 3\nend:", "01 01 02 03"},
	}
	for _, tc := range tests {
		assembleAndMatchHex(t, tc.name, tc.src, ".text", tc.hex)
	}
}

func TestConditionals(t *testing.T) {
	tests := []struct {
		name, src, hex string
	}{
		{"IfElse", ".if 1\n.byte 1\n.else\n.byte 2\n.endif\n.if 0\n.byte 3\n.else\n.byte 4\n.endif", "01 04"},
		{"Nested", ".if 0\n.if 1\n.byte 1\n.else\n.byte 2\n.endif\n.else\n.byte 3\n.endif", "03"},
		{"SkippedJunk", ".if 0\n)))\nx: .bogus\n.endif\n.byte 9", "09"},
		{"Ifdef", "x = 1\n.ifdef x\n.byte 1\n.endif\n.ifndef y\n.byte 2\n.endif\n.ifdef y\n.byte 3\n.endif", "01 02"},
		{"Expression", "n = 3\n.if n == 3\n.byte 1\n.endif\n.if n > 5\n.byte 2\n.endif", "01"},
		{"End", ".byte 1\n.end\n.byte 2", "01"},
	}
	for _, tc := range tests {
		assembleAndMatchHex(t, tc.name, tc.src, ".text", tc.hex)
	}
}

func TestPredefinedSymbol(t *testing.T) {
	assembleAndMatchHex(t, "Defsym", ".if DEBUG\n.byte 0xd\n.endif", ".text", "0d", asm.WithSymbol("DEBUG", 1))
	assembleAndMatchHex(t, "NoDefsym", ".if DEBUG\n.byte 0xd\n.endif", ".text", "", asm.WithSymbol("DEBUG", 0))
}

func TestSections(t *testing.T) {
	src := `
.text
.byte 1
.data
.word 2
.section .rodata, "d"
.byte 3
.bss
.space 4
.text
.byte 5
`
	obj, _ := assemble(t, "Sections", src)

	tests := []struct {
		name, hex string
	}{
		{".text", "01 05"},
		{".data", "02 00"},
		{".rodata", "03"},
	}
	for _, tc := range tests {
		s, ok := obj.Section(tc.name)
		if !ok {
			t.Fatalf("missing section %s", tc.name)
		}
		want, _ := hex.DecodeString(strings.ReplaceAll(tc.hex, " ", ""))
		if !bytes.Equal(s.Data, want) {
			t.Errorf("section %s: expected % X, got % X", tc.name, want, s.Data)
		}
	}

	bss, _ := obj.Section(".bss")
	if bss.Data != nil || bss.Size != 4 {
		t.Errorf("expected .bss of size 4 without contents, got %d bytes of size %d", len(bss.Data), bss.Size)
	}
	if bss.Flags&frag.FlagNoLoad == 0 {
		t.Error("expected .bss to be marked without contents")
	}
}

func TestRelocations(t *testing.T) {
	src := `
.globl ext
.long ext + 4
local: .long local
.rva ext
`
	obj := assembleAndMatchHex(t, "Relocations", src, ".text", "00000000 00000000 00000000")
	text, _ := obj.Section(".text")

	want := []asm.Reloc{
		{Offset: 0, Size: 4, Symbol: "ext", Addend: 4},
		{Offset: 4, Size: 4, Symbol: ".text", Addend: 4},
		{Offset: 8, Size: 4, Symbol: "ext", RVA: true},
	}
	if len(text.Relocs) != len(want) {
		t.Fatalf("expected %d relocations, got %v", len(want), text.Relocs)
	}
	for i, r := range text.Relocs {
		if r != want[i] {
			t.Errorf("relocation %d: expected %+v, got %+v", i, want[i], r)
		}
	}
}

func TestSymbols(t *testing.T) {
	src := `
.set after, end + 2
.globl start
.weak soft
start: .byte 1
end:
soft = 9
`
	obj, _ := assemble(t, "Symbols", src)

	tests := []struct {
		name    string
		section string
		value   uint64
		bind    string
	}{
		{"after", ".text", 3, "local"},
		{"end", ".text", 1, "local"},
		{"start", ".text", 0, "global"},
		{"soft", "*ABS*", 9, "weak"},
	}
	for _, tc := range tests {
		s, ok := obj.Symbol(tc.name)
		if !ok {
			t.Errorf("missing symbol %s", tc.name)
			continue
		}
		if s.Section != tc.section || s.Value != tc.value {
			t.Errorf("%s: expected %s %#x, got %s %#x", tc.name, tc.section, tc.value, s.Section, s.Value)
		}
		bind := "local"
		switch {
		case s.Weak:
			bind = "weak"
		case s.External:
			bind = "global"
		}
		if bind != tc.bind {
			t.Errorf("%s: expected %s binding, got %s", tc.name, tc.bind, bind)
		}
	}
}

func TestDump(t *testing.T) {
	obj, _ := assemble(t, "Dump", "start: .byte 1, 2\n.globl start")

	var b strings.Builder
	if err := obj.Dump(&b, true); err != nil {
		t.Fatalf("dump failed: %v", err)
	}
	want := ".text size 0x2 align 1\n" +
		"  0000: 01 02\n" +
		"symbols\n" +
		"  start            .text    0x0 global\n"
	if b.String() != want {
		t.Errorf("unexpected dump:\n%s\nexpected:\n%s", b.String(), want)
	}
}

func TestDiagnostics(t *testing.T) {
	tests := []struct {
		name, src string
		severity  diag.Severity
		msg       string
	}{
		{"Truncated", ".byte 0x100", diag.Warning, "value 0x100 truncated to 0x0"},
		{"TruncatedNegative", ".byte -200", diag.Warning, "value 0xffffffffffffff38 truncated to 0x38"},
		{"SpaceZero", ".space 0", diag.Warning, ".space repeat count is zero, ignored"},
		{"SpaceNegative", ".space -1", diag.Warning, ".space repeat count is negative, ignored"},
		{"FillTruncated", ".space 2, 0x1ff", diag.Warning, "fill value 0x1ff truncated to 0xff"},
		{"BssFill", ".bss\n.space 2, 1", diag.Warning, "ignoring fill value in section '.bss'"},
		{"OrgUndefined", ".org nowhere", diag.Warning, `symbol "nowhere" undefined; zero assumed`},
		{"Unterminated", `.ascii "abc`, diag.Warning, `unterminated string; '"' inserted`},
		{"OrgBackwards", ".byte 1,2,3\n.org 1", diag.Error, "attempt to move .org backwards"},
		{"AlignNotPower", ".align 3", diag.Error, "alignment is not a power of 2!"},
		{"Redefined", "x: .byte 1\nx: .byte 2", diag.Error, "symbol `x' is already defined"},
		{"UnknownPseudo", ".bogus", diag.Error, "unknown pseudo-op '.bogus'"},
		{"UnknownInstruction", "frobnicate 1", diag.Error, "unknown instruction 'frobnicate'"},
		{"ElseWithoutIf", ".else", diag.Error, ".else without matching .if"},
		{"EndifWithoutIf", ".endif", diag.Error, ".endif without matching .if"},
		{"OpenIf", ".if 1", diag.Error, "end of file inside conditional"},
		{"Junk", ".byte 1 2", diag.Error, "junk at the end of line, first unrecognized character is '2'"},
		{"Err", ".err", diag.Error, ".err encountered"},
		{"EquNoComma", ".equ x 1", diag.Error, `expected comma after "x"`},
		{"Loop", "a = a + 1\n.long a", diag.Error, "symbol definition loop encountered at `a'"},
		{"NotRepresentable", ".long elsewhere * 2", diag.Error, "cannot represent expression"},
		{"RvaConstant", ".rva 4", diag.Error, "rva without symbol."},
		{"SpaceTooLarge", ".space 0x7fffffffffffffff", diag.Error, ".space repeat count too large"},
		{"SpaceTooLargeLater", ".space n\nn = 0x40000000", diag.Error, ".space repeat count too large"},
		{"OrgTooFar", ".org 0x40000000", diag.Error, ".org target 0x40000000 too far ahead"},
		{"CommNoName", ".comm", diag.Error, "expected symbol name"},
		{"CommNoSize", ".comm x", diag.Error, "missing size expression"},
		{"CommNoAlign", ".comm x, 4,", diag.Error, "expected alignment after size"},
		{"CommAlign", ".comm x, 4, 3", diag.Error, "alignment is not a power of 2!"},
		{"LcommDefined", "x: .lcomm x, 4", diag.Error, "symbol 'x' is already defined"},
		{"LinkonceType", ".linkonce sometimes", diag.Warning, "unrecognized .linkonce type 'sometimes'"},
		{"IncludeNoString", ".include nope", diag.Error, "missing string"},
		{"IncludeUnterminated", `.include "nope`, diag.Error, "unterminated string"},
	}
	for _, tc := range tests {
		a, err := asm.New()
		if err != nil {
			t.Fatalf("failed to create assembler: %v", err)
		}
		_, err = a.Assemble(tc.src)

		found := false
		for _, d := range a.Diagnostics() {
			if d.Severity == tc.severity && d.Msg == tc.msg {
				found = true
			}
		}
		if !found {
			t.Errorf("[%s] expected %s %q, got %v", tc.name, tc.severity, tc.msg, a.Diagnostics())
		}
		if tc.severity == diag.Error && !errors.Is(err, asm.ErrAssembly) {
			t.Errorf("[%s] expected ErrAssembly, got %v", tc.name, err)
		}
	}
}

func TestInclude(t *testing.T) {
	files := map[string]string{
		"defs.inc":     "one = 1\n.byte one\n",
		"lib/more.inc": ".include \"defs.inc\"\n.byte 2\n",
		"bad.inc":      ".byte 0x1ff",
		"loop.inc":     ".include \"loop.inc\"",
	}
	read := func(name string) ([]byte, error) {
		if src, ok := files[filepath.ToSlash(name)]; ok {
			return []byte(src), nil
		}
		return nil, fs.ErrNotExist
	}
	opts := []asm.Option{asm.WithFile("main.s"), asm.WithReadFile(read), asm.WithIncludeDirs("lib")}

	assembleAndMatchHex(t, "Nested", ".include \"more.inc\"\n.byte 3", ".text", "01 02 03", opts...)

	tests := []struct {
		name, src string
		severity  diag.Severity
		want      string
	}{
		{"IncludedPosition", ".byte 0\n.include \"bad.inc\"", diag.Warning, "bad.inc:1: Warning: value 0x1ff truncated to 0xff"},
		{"PositionRestored", ".include \"defs.inc\"; .byte 0x1ff", diag.Warning, "main.s:1: Warning: value 0x1ff truncated to 0xff"},
		{"Missing", ".byte 0\n.include \"nope.inc\"", diag.Error, "main.s:2: Error: can't open 'nope.inc' for reading"},
		{"Recursive", ".include \"loop.inc\"", diag.Error, "loop.inc:1: Error: includes nested too deeply at 'loop.inc'"},
	}
	for _, tc := range tests {
		a, err := asm.New(opts...)
		if err != nil {
			t.Fatalf("failed to create assembler: %v", err)
		}
		_, err = a.Assemble(tc.src)
		items := a.Diagnostics()
		if len(items) != 1 || items[0].String() != tc.want {
			t.Errorf("[%s] expected %q, got %v", tc.name, tc.want, items)
		}
		if (tc.severity == diag.Error) != errors.Is(err, asm.ErrAssembly) {
			t.Errorf("[%s] unexpected result %v", tc.name, err)
		}
	}
}

func TestCommon(t *testing.T) {
	src := `
.comm buf, 16, 8
.lcomm tmp, 4, 4
.lcomm more, 2
.long buf
.byte 1
`
	obj := assembleAndMatchHex(t, "Common", src, ".text", "00000000 01")

	buf, ok := obj.Symbol("buf")
	if !ok || !buf.Common || buf.Section != "*COM*" || buf.Value != 16 || buf.Align != 3 || !buf.External || buf.Defined {
		t.Errorf("unexpected common symbol %+v", buf)
	}
	for name, want := range map[string]uint64{"tmp": 0, "more": 4} {
		s, ok := obj.Symbol(name)
		if !ok || s.Common || s.Section != ".bss" || s.Value != want || !s.Defined {
			t.Errorf("[%s] expected .bss at %d, got %+v", name, want, s)
		}
	}

	bss, _ := obj.Section(".bss")
	if bss.Size != 6 || bss.Align != 2 {
		t.Errorf("expected .bss of size 6 aligned to 4, got size %d align %d", bss.Size, bss.Align)
	}
	text, _ := obj.Section(".text")
	if len(text.Relocs) != 1 || text.Relocs[0].Symbol != "buf" {
		t.Errorf("expected a relocation against buf, got %v", text.Relocs)
	}
}

func TestLinkOnce(t *testing.T) {
	tests := []struct {
		name, src string
		flag      frag.Flags
		line      string
	}{
		{"Default", ".section .gnu.linkonce.d.x\n.linkonce\n.byte 1", frag.FlagDiscard, ".gnu.linkonce.d.x size 0x1 align 1 linkonce discard\n"},
		{"SameSize", ".section .gnu.linkonce.d.y\n.linkonce same_size\n.byte 1", frag.FlagSameSize, ".gnu.linkonce.d.y size 0x1 align 1 linkonce same_size\n"},
	}
	for _, tc := range tests {
		obj, _ := assemble(t, tc.name, tc.src)
		s := obj.Sections[len(obj.Sections)-1]
		if s.Flags&frag.FlagLinkOnce == 0 || s.Flags&tc.flag == 0 {
			t.Errorf("[%s] unexpected flags %b", tc.name, s.Flags)
		}

		var b strings.Builder
		if err := obj.Dump(&b, false); err != nil {
			t.Fatalf("[%s] dump failed: %v", tc.name, err)
		}
		if !strings.HasPrefix(b.String(), tc.line) {
			t.Errorf("[%s] unexpected dump:\n%s", tc.name, b.String())
		}
	}
}

func TestListing(t *testing.T) {
	src := `start: .byte 1, 2
.long 0x11223344, 5
.byte 0x1ff
.long ext`
	_, a := assemble(t, "Listing", src, asm.WithFile("l.s"))

	var b strings.Builder
	if err := a.WriteListing(&b); err != nil {
		t.Fatalf("listing failed: %v", err)
	}

	pad := func(n int) string { return strings.Repeat("  ", n) }
	want := "00001    0102" + pad(6) + "0000    start: .byte 1, 2\n" +
		"00002    44332211\n00002    05000000\n00002    " + pad(8) + "0002    .long 0x11223344, 5\n" +
		"00003    FF" + pad(7) + "000a    .byte 0x1ff\n" +
		"*****  Warning: value 0x1ff truncated to 0xff\n" +
		"00004    00000000\n00004    " + pad(8) + "000b    .long ext\n" +
		"\nDEFINED SYMBOLS:\n\n    00000000    start\n" +
		"\nUNDEFINED SYMBOLS:\n\n    00000000    ext\n"
	if b.String() != want {
		t.Errorf("unexpected listing:\n%s\nexpected:\n%s", b.String(), want)
	}
}

func TestLoopReportedOnce(t *testing.T) {
	a, err := asm.New()
	if err != nil {
		t.Fatalf("failed to create assembler: %v", err)
	}
	if _, err := a.Assemble("x = x + 1\n.long x\n.long x + 2"); !errors.Is(err, asm.ErrAssembly) {
		t.Fatalf("expected ErrAssembly, got %v", err)
	}

	count := 0
	for _, d := range a.Diagnostics() {
		if d.Msg == "symbol definition loop encountered at `x'" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected the loop reported once, got %v", a.Diagnostics())
	}
}

func TestDiagnosticPosition(t *testing.T) {
	a, err := asm.New(asm.WithFile("t.s"))
	if err != nil {
		t.Fatalf("failed to create assembler: %v", err)
	}
	if _, err := a.Assemble(".byte 1\n\n.byte 0x1ff"); err != nil {
		t.Fatalf("warnings must not fail assembly: %v", err)
	}
	items := a.Diagnostics()
	if len(items) != 1 {
		t.Fatalf("expected one diagnostic, got %v", items)
	}
	if got := items[0].String(); got != "t.s:3: Warning: value 0x1ff truncated to 0xff" {
		t.Errorf("unexpected diagnostic %q", got)
	}
}
