package asm

import (
	"math/bits"
	"strings"

	"github.com/Urethramancer/pdas/expr"
	"github.com/Urethramancer/pdas/frag"
)

func builtinDirectives() map[string]Directive {
	return map[string]Directive{
		"text":     func(a *Assembler, c *expr.Cursor) { a.switchSection(c, ".text", frag.FlagCode) },
		"data":     func(a *Assembler, c *expr.Cursor) { a.switchSection(c, ".data", frag.FlagData) },
		"bss":      func(a *Assembler, c *expr.Cursor) { a.switchSection(c, ".bss", frag.FlagNoLoad) },
		"section":  (*Assembler).section,
		"linkonce": (*Assembler).linkonce,

		"byte":  constants(1),
		"word":  constants(2),
		"short": constants(2),
		"value": constants(2),
		"long":  constants(4),
		"int":   constants(4),
		"quad":  constants(8),
		"rva":   func(a *Assembler, c *expr.Cursor) { a.Constants(c, 4, true) },

		"ascii":  func(a *Assembler, c *expr.Cursor) { a.Strings(c, false) },
		"asciz":  func(a *Assembler, c *expr.Cursor) { a.Strings(c, true) },
		"string": func(a *Assembler, c *expr.Cursor) { a.Strings(c, true) },

		"space": (*Assembler).space,
		"skip":  (*Assembler).space,
		"zero":  (*Assembler).space,

		"align":   func(a *Assembler, c *expr.Cursor) { a.align(c, true) },
		"balign":  func(a *Assembler, c *expr.Cursor) { a.align(c, true) },
		"p2align": func(a *Assembler, c *expr.Cursor) { a.align(c, false) },
		"org":     (*Assembler).orgDirective,

		"equ":    (*Assembler).equ,
		"set":    (*Assembler).equ,
		"comm":   (*Assembler).comm,
		"lcomm":  (*Assembler).lcomm,
		"globl":  func(a *Assembler, c *expr.Cursor) { a.symbols(c, (*expr.Symbol).SetExternal) },
		"global": func(a *Assembler, c *expr.Cursor) { a.symbols(c, (*expr.Symbol).SetExternal) },
		"weak":   func(a *Assembler, c *expr.Cursor) { a.symbols(c, (*expr.Symbol).SetWeak) },

		"if":     (*Assembler).ifExpr,
		"ifdef":  func(a *Assembler, c *expr.Cursor) { a.ifDefined(c, true) },
		"ifndef": func(a *Assembler, c *expr.Cursor) { a.ifDefined(c, false) },
		"else":   (*Assembler).elseBranch,
		"endif":  (*Assembler).endif,

		"err":     func(a *Assembler, c *expr.Cursor) { a.diag.Errorf(".err encountered"); a.DemandEmpty(c) },
		"end":     func(a *Assembler, c *expr.Cursor) { a.ended = true; skipStatement(c) },
		"file":    func(a *Assembler, c *expr.Cursor) { skipStatement(c) },
		"include": (*Assembler).include,
	}
}

func constants(size int) Directive {
	return func(a *Assembler, c *expr.Cursor) {
		a.Constants(c, size, false)
	}
}

func (a *Assembler) switchSection(c *expr.Cursor, name string, flags frag.Flags) {
	a.layout.SetSection(a.layout.Section(name, flags))
	a.DemandEmpty(c)
}

// section handles .section name[,"flags"]. Flags: x code, w or d data, b or n
// no contents.
func (a *Assembler) section(c *expr.Cursor) {
	c.SkipWhitespace()
	name := c.NameEnd()
	if name == "" {
		a.diag.Errorf("expected section name")
		skipStatement(c)
		return
	}

	var flags frag.Flags
	switch {
	case strings.HasPrefix(name, ".text"):
		flags = frag.FlagCode
	case strings.HasPrefix(name, ".bss"):
		flags = frag.FlagNoLoad
	default:
		flags = frag.FlagData
	}

	c.SkipWhitespace()
	if c.Peek() == ',' {
		c.Advance(1)
		c.SkipWhitespace()
		if c.Peek() != '"' {
			a.diag.Errorf("expected section flags")
			skipStatement(c)
			return
		}
		c.Advance(1)
		flags = 0
		for !c.AtEnd() && c.Peek() != '"' {
			switch c.Peek() {
			case 'x':
				flags |= frag.FlagCode
			case 'w', 'd':
				flags |= frag.FlagData
			case 'b', 'n':
				flags |= frag.FlagNoLoad
			default:
				a.diag.Warnf("unknown section attribute '%c'", c.Peek())
			}
			c.Advance(1)
		}
		c.Advance(1)
	}

	a.layout.SetSection(a.layout.Section(name, flags))
	a.DemandEmpty(c)
}

// linkonce handles .linkonce [discard|one_only|same_size|same_contents] for
// the current section. The default is discard.
func (a *Assembler) linkonce(c *expr.Cursor) {
	flags := frag.FlagLinkOnce
	c.SkipWhitespace()
	if c.AtEnd() || c.EndOfLine() != expr.EOLNone {
		flags |= frag.FlagDiscard
	} else {
		switch name := c.NameEnd(); strings.ToLower(name) {
		case "discard":
			flags |= frag.FlagDiscard
		case "one_only":
			flags |= frag.FlagOneOnly
		case "same_size":
			flags |= frag.FlagSameSize
		case "same_contents":
			flags |= frag.FlagSameContents
		default:
			a.diag.Warnf("unrecognized .linkonce type '%s'", name)
		}
	}
	a.layout.Current().Flags |= flags
	a.DemandEmpty(c)
}

// Constants emits comma-separated expressions of size bytes each. With rva
// set, symbol values are emitted relative to the image base.
func (a *Assembler) Constants(c *expr.Cursor, size int, rva bool) {
	for first := true; ; first = false {
		if first && a.emptyOperands(c) {
			a.DemandEmpty(c)
			return
		}
		if !a.value(c, size, rva) {
			return
		}

		c.SkipWhitespace()
		if c.Peek() != ',' {
			break
		}
		c.Advance(1)
	}
	a.DemandEmpty(c)
}

// emptyOperands reports whether the statement has no operands at all.
func (a *Assembler) emptyOperands(c *expr.Cursor) bool {
	c.SkipWhitespace()
	return c.AtEnd() || c.EndOfLine() != expr.EOLNone
}

// Value emits one expression of size bytes. Values that do not reduce to a
// number become fixups. It returns false when the rest of the statement was
// dropped.
func (a *Assembler) Value(c *expr.Cursor, size int) bool {
	return a.value(c, size, false)
}

func (a *Assembler) value(c *expr.Cursor, size int, rva bool) bool {
	n, _ := a.engine.Evaluate(c)
	if rva {
		if n.Op == expr.OpSymbol {
			n.Op = expr.OpSymbolRva
		} else {
			a.diag.Errorf("rva without symbol.")
		}
	}

	switch n.Op {
	case expr.OpAbsent:
		a.diag.Errorf("missing expression")
		a.layout.Grow(size)
	case expr.OpInvalid:
		a.diag.Errorf("value is not a constant")
		skipStatement(c)
		return false
	case expr.OpConstant:
		a.put(a.layout.Grow(size), n.Number)
	default:
		a.Fixup(size, n)
	}
	return true
}

// Strings emits comma-separated quoted strings, each followed by a zero byte
// when zero is set.
func (a *Assembler) Strings(c *expr.Cursor, zero bool) {
	for {
		c.SkipWhitespace()
		if c.Peek() != '"' {
			a.diag.Errorf("expected string")
			skipStatement(c)
			return
		}
		c.Advance(1)
		a.Append(a.Quoted(c, '"'))
		if zero {
			a.layout.Append(0)
		}

		c.SkipWhitespace()
		if c.Peek() != ',' {
			break
		}
		c.Advance(1)
	}
	a.DemandEmpty(c)
}

// Append adds bytes to the current section.
func (a *Assembler) Append(b []byte) {
	a.layout.Append(b...)
}

// Quoted reads the body of a string up to and past the closing delim. The
// cursor must be past the opening one.
func (a *Assembler) Quoted(c *expr.Cursor, delim byte) []byte {
	var out []byte
	for {
		if c.AtEnd() {
			a.diag.Warnf("unterminated string; '%c' inserted", delim)
			return out
		}
		ch := c.Peek()
		c.Advance(1)
		switch {
		case ch == delim:
			// Doubled delimiters stand for one, Motorola style.
			if delim == '\'' && c.Peek() == '\'' {
				c.Advance(1)
				out = append(out, ch)
				continue
			}
			return out
		case ch == '\\':
			out = append(out, a.escape(c))
		default:
			out = append(out, ch)
		}
	}
}

// escape reads the character after a backslash inside a string.
func (a *Assembler) escape(c *expr.Cursor) byte {
	if c.AtEnd() {
		return '\\'
	}
	ch := c.Peek()
	c.Advance(1)
	switch ch {
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'v':
		return '\v'
	case 'a':
		return '\a'
	case 'e':
		return 0x1b
	case '\\', '"', '\'':
		return ch
	case 'x', 'X':
		var v byte
		for i := 0; i < 3 && hexDigit(c.Peek()) >= 0; i++ {
			v = v<<4 | byte(hexDigit(c.Peek()))
			c.Advance(1)
		}
		return v
	}
	if ch >= '0' && ch <= '7' {
		v := ch - '0'
		for i := 1; i < 3 && c.Peek() >= '0' && c.Peek() <= '7'; i++ {
			v = v<<3 | (c.Peek() - '0')
			c.Advance(1)
		}
		return v
	}
	a.diag.Warnf("unknown escape '\\%c' in string; ignored", ch)
	return ch
}

func hexDigit(ch byte) int {
	switch {
	case ch >= '0' && ch <= '9':
		return int(ch - '0')
	case ch >= 'a' && ch <= 'f':
		return int(ch-'a') + 10
	case ch >= 'A' && ch <= 'F':
		return int(ch-'A') + 10
	}
	return -1
}

// put stores v into dst, warning when it does not fit.
func (a *Assembler) put(dst []byte, v uint64) {
	if width := uint(len(dst)) * 8; width < 64 && v>>width != 0 && int64(v)>>(width-1) != -1 {
		a.diag.Warnf("value %#x truncated to %#x", v, v&(1<<width-1))
	}
	a.target.PutNumber(dst, v)
}

// MaxRepeat is the largest number of bytes one directive may reserve.
const MaxRepeat = 1 << 28

// Fill appends count copies of b. A count above MaxRepeat is an error and
// nothing is appended.
func (a *Assembler) Fill(count uint64, b byte) bool {
	if count > MaxRepeat {
		a.diag.Errorf("repeat count %#x too large", count)
		return false
	}
	dst := a.layout.Grow(int(count))
	for i := range dst {
		dst[i] = b
	}
	return true
}

// knownSection reads an address expression for .org. Undefined symbols are
// reported and read as zero.
func (a *Assembler) knownSection(c *expr.Cursor) (expr.Node, *frag.Section) {
	n, sec := a.engine.Evaluate(c)
	switch {
	case n.Op == expr.OpInvalid || n.Op == expr.OpAbsent:
		a.diag.Errorf("expected address expression")
		return expr.Constant(0), frag.Absolute
	case sec == frag.Undefined:
		if n.Add != nil && !n.Add.IsSynthetic() {
			a.diag.Warnf("symbol \"%s\" undefined; zero assumed", n.Add.Name)
		} else {
			a.diag.Warnf("some symbol undefined; zero assumed")
		}
		return expr.Constant(0), frag.Absolute
	}
	return n, sec
}

// space handles .space count[,fill].
func (a *Assembler) space(c *expr.Cursor) {
	n, _ := a.engine.Evaluate(c)
	if n.Op == expr.OpInvalid || n.Op == expr.OpAbsent {
		a.diag.Errorf("missing repeat count")
		skipStatement(c)
		return
	}

	var fill uint64
	c.SkipWhitespace()
	if c.Peek() == ',' {
		c.Advance(1)
		fn, _ := a.engine.Evaluate(c)
		if fn.Op != expr.OpConstant {
			a.diag.Errorf("invalid value for .space")
			skipStatement(c)
			return
		}
		fill = fn.Number
		if fill > 0xff {
			a.diag.Warnf("fill value %#x truncated to %#x", fill, fill&0xff)
			fill &= 0xff
		}
	}

	if n.Op == expr.OpConstant {
		switch count := int64(n.Number); {
		case count == 0:
			a.diag.Warnf(".space repeat count is zero, ignored")
		case count < 0:
			a.diag.Warnf(".space repeat count is negative, ignored")
		case count > MaxRepeat:
			a.diag.Errorf(".space repeat count too large")
		default:
			a.Fill(uint64(count), byte(fill))
		}
	} else {
		a.Variant(frag.Space, a.engine.MakeSymbol(n), 0, byte(fill))
	}

	a.checkFill(fill)
	a.DemandEmpty(c)
}

func (a *Assembler) checkFill(fill uint64) {
	if fill != 0 && a.layout.Current().Flags&frag.FlagNoLoad != 0 {
		a.diag.Warnf("ignoring fill value in section '%s'", a.layout.Current().Name)
	}
}

// Variant closes the current fragment with an Org or Space part.
func (a *Assembler) Variant(kind frag.FragKind, target *expr.Symbol, offset uint64, fill byte) {
	a.variants[a.layout.Frag()] = a.diag.Pos()
	a.layout.CloseVariant(kind, target, offset, fill)
}

// align handles .align/.balign (a byte count) and .p2align (a power of two),
// each with optional fill and maximum skip.
func (a *Assembler) align(c *expr.Cursor, byteCount bool) {
	v := a.engine.Absolute(c)
	power := v
	if byteCount && v != 0 {
		if v&(v-1) != 0 {
			a.diag.Errorf("alignment is not a power of 2!")
		}
		power = uint64(bits.TrailingZeros64(v))
	}
	if power > 31 {
		a.diag.Errorf("alignment too large: 31 assumed")
		power = 31
	}

	var fill, maxSkip uint64
	c.SkipWhitespace()
	if c.Peek() == ',' {
		c.Advance(1)
		c.SkipWhitespace()
		if c.Peek() != ',' {
			fill = a.engine.Absolute(c)
			c.SkipWhitespace()
		}
		if c.Peek() == ',' {
			c.Advance(1)
			maxSkip = a.engine.Absolute(c)
		}
	}
	if fill > 0xff {
		a.diag.Warnf("fill value %#x truncated to %#x", fill, fill&0xff)
	}

	a.Align(uint(power), byte(fill), maxSkip)
	a.DemandEmpty(c)
}

// Align pads the current section to 1<<power bytes.
func (a *Assembler) Align(power uint, fill byte, maxSkip uint64) {
	a.layout.CloseAlign(power, fill, maxSkip)
}

func (a *Assembler) orgDirective(c *expr.Cursor) {
	a.org(c, 0)
}

// org moves the location counter to an expression in the current section.
// A fill value may follow the expression.
func (a *Assembler) org(c *expr.Cursor, fill byte) {
	n, sec := a.knownSection(c)
	if sec != a.layout.Current() && sec != frag.Absolute && sec != frag.Expr {
		a.diag.Errorf("invalid section \"%s\"", sec)
	}

	c.SkipWhitespace()
	if c.Peek() == ',' {
		c.Advance(1)
		v := a.engine.Absolute(c)
		if v > 0xff {
			a.diag.Warnf("fill value %#x truncated to %#x", v, v&0xff)
		}
		fill = byte(v)
	}

	switch n.Op {
	case expr.OpConstant:
		a.Variant(frag.Org, nil, n.Number, fill)
	case expr.OpSymbol:
		a.Variant(frag.Org, n.Add, n.Number, fill)
	default:
		a.Variant(frag.Org, a.engine.MakeSymbol(n), 0, fill)
	}
	a.DemandEmpty(c)
}

// equ handles .equ/.set name, expr.
func (a *Assembler) equ(c *expr.Cursor) {
	c.SkipWhitespace()
	name := c.NameEnd()
	if name == "" {
		a.diag.Errorf("expected symbol name")
		skipStatement(c)
		return
	}
	c.SkipWhitespace()
	if c.Peek() != ',' {
		a.diag.Errorf("expected comma after \"%s\"", name)
		skipStatement(c)
		return
	}
	c.Advance(1)
	a.assign(c, name)
	a.DemandEmpty(c)
}

// symbols applies mark to every name in a comma-separated list.
func (a *Assembler) symbols(c *expr.Cursor, mark func(*expr.Symbol)) {
	for {
		c.SkipWhitespace()
		name := c.NameEnd()
		if name == "" {
			a.diag.Errorf("expected symbol name")
			skipStatement(c)
			return
		}
		mark(a.engine.Symbols.FindOrMake(name))

		c.SkipWhitespace()
		if c.Peek() != ',' {
			break
		}
		c.Advance(1)
	}
	a.DemandEmpty(c)
}
