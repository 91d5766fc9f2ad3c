package expr

// EOL classifies a character at the end of a logical line.
type EOL int

const (
	// EOLNone means the line goes on.
	EOLNone EOL = iota
	// EOLEnd ends the physical line.
	EOLEnd
	// EOLSeparator separates logical lines on one physical line.
	EOLSeparator
)

// Charset says which characters make up names and end lines.
type Charset struct {
	beginner [256]bool
	part     [256]bool
	eol      [256]EOL
}

// DefaultCharset returns the usual character classes: names start with a
// letter, '_', '.', '$' or '@' and continue with those or digits.
func DefaultCharset() *Charset {
	cs := &Charset{}
	for ch := 'a'; ch <= 'z'; ch++ {
		cs.SetNameChar(byte(ch), true, true)
		cs.SetNameChar(byte(ch-'a'+'A'), true, true)
	}
	for ch := '0'; ch <= '9'; ch++ {
		cs.SetNameChar(byte(ch), false, true)
	}
	for _, ch := range []byte("_.$@") {
		cs.SetNameChar(ch, true, true)
	}
	cs.eol[0] = EOLEnd
	cs.eol['\n'] = EOLEnd
	return cs
}

// SetNameChar changes the classes of ch.
func (cs *Charset) SetNameChar(ch byte, beginner, part bool) {
	cs.beginner[ch] = beginner
	cs.part[ch] = part
}

// AddSeparators marks every character of s as a line separator.
func (cs *Charset) AddSeparators(s string) {
	for i := 0; i < len(s); i++ {
		cs.eol[s[i]] = EOLSeparator
	}
}

// IsNameBeginner reports whether a name may start with ch.
func (cs *Charset) IsNameBeginner(ch byte) bool {
	return cs.beginner[ch]
}

// IsNamePart reports whether ch may appear inside a name.
func (cs *Charset) IsNamePart(ch byte) bool {
	return cs.part[ch]
}

// EndOfLine classifies ch.
func (cs *Charset) EndOfLine(ch byte) EOL {
	return cs.eol[ch]
}

// Cursor walks one line of source text. Reading past the end yields 0.
type Cursor struct {
	src   string
	pos   int
	chars *Charset
}

// NewCursor creates a cursor at the start of src.
func NewCursor(src string, cs *Charset) *Cursor {
	if cs == nil {
		cs = DefaultCharset()
	}
	return &Cursor{src: src, chars: cs}
}

// Charset returns the character classes in use.
func (c *Cursor) Charset() *Charset {
	return c.chars
}

// Pos returns the byte offset of the cursor.
func (c *Cursor) Pos() int {
	return c.pos
}

// SetPos moves the cursor to an offset previously returned by Pos.
func (c *Cursor) SetPos(pos int) {
	c.pos = pos
}

// Peek returns the character under the cursor.
func (c *Cursor) Peek() byte {
	return c.PeekAt(0)
}

// PeekAt returns the character i bytes ahead.
func (c *Cursor) PeekAt(i int) byte {
	if c.pos+i < 0 || c.pos+i >= len(c.src) {
		return 0
	}
	return c.src[c.pos+i]
}

// Advance skips n bytes.
func (c *Cursor) Advance(n int) {
	c.pos += n
	if c.pos > len(c.src) {
		c.pos = len(c.src)
	}
}

// Rest returns the unread text.
func (c *Cursor) Rest() string {
	return c.src[c.pos:]
}

// Slice returns the text between two offsets.
func (c *Cursor) Slice(from, to int) string {
	return c.src[from:to]
}

// AtEnd reports whether all text has been read.
func (c *Cursor) AtEnd() bool {
	return c.pos >= len(c.src)
}

// SkipWhitespace skips blanks and tabs.
func (c *Cursor) SkipWhitespace() {
	for c.pos < len(c.src) && (c.src[c.pos] == ' ' || c.src[c.pos] == '\t' || c.src[c.pos] == '\r') {
		c.pos++
	}
}

// EndOfLine classifies the character under the cursor.
func (c *Cursor) EndOfLine() EOL {
	return c.chars.EndOfLine(c.Peek())
}

// NameEnd reads a name starting under the cursor and returns it. Nothing is
// consumed unless the cursor is on a name beginner or a dot.
func (c *Cursor) NameEnd() string {
	start := c.pos
	if ch := c.Peek(); !c.chars.IsNameBeginner(ch) && ch != '.' {
		return ""
	}
	c.pos++
	for c.pos < len(c.src) && c.chars.IsNamePart(c.src[c.pos]) {
		c.pos++
	}
	return c.src[start:c.pos]
}
