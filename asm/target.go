package asm

import (
	"encoding/binary"

	"github.com/Urethramancer/pdas/expr"
)

// Target is a machine the assembler can produce data for.
type Target interface {
	expr.Machine
	// Name is what the target is selected by.
	Name() string
	// Charset returns the character classes of the target's syntax.
	Charset() *expr.Charset
	// CommentChars start a comment anywhere outside quotes.
	CommentChars() string
	// LineCommentChars start a comment only in the first column.
	LineCommentChars() string
	// PutNumber stores v in dst in the target's byte order, using len(dst) bytes.
	PutNumber(dst []byte, v uint64)
}

// Directive handles a pseudo-op. The cursor is past the name and any blanks.
type Directive func(a *Assembler, c *expr.Cursor)

// DirectiveProvider is implemented by targets with their own pseudo-ops. They
// take precedence over the built-in ones.
type DirectiveProvider interface {
	Directives() map[string]Directive
}

// StringQuoter is implemented by targets where single quotes delimit strings
// as well as character constants.
type StringQuoter interface {
	SingleQuotedStrings() bool
}

// Generic is a little-endian target without machine syntax.
type Generic struct {
	expr.Generic
}

// Name returns "generic".
func (Generic) Name() string { return "generic" }

// Charset returns the default character classes with ';' separating statements.
func (Generic) Charset() *expr.Charset {
	cs := expr.DefaultCharset()
	cs.AddSeparators(";")
	return cs
}

// CommentChars returns "#".
func (Generic) CommentChars() string { return "#" }

// LineCommentChars returns nothing beyond CommentChars.
func (Generic) LineCommentChars() string { return "" }

// PutNumber stores v little-endian.
func (Generic) PutNumber(dst []byte, v uint64) {
	LittleEndian(dst, v)
}

// LittleEndian stores v in dst least significant byte first.
func LittleEndian(dst []byte, v uint64) {
	switch len(dst) {
	case 2:
		binary.LittleEndian.PutUint16(dst, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(dst, v)
	default:
		for i := range dst {
			dst[i] = byte(v)
			v >>= 8
		}
	}
}

// BigEndian stores v in dst most significant byte first.
func BigEndian(dst []byte, v uint64) {
	switch len(dst) {
	case 2:
		binary.BigEndian.PutUint16(dst, uint16(v))
	case 4:
		binary.BigEndian.PutUint32(dst, uint32(v))
	case 8:
		binary.BigEndian.PutUint64(dst, v)
	default:
		for i := len(dst) - 1; i >= 0; i-- {
			dst[i] = byte(v)
			v >>= 8
		}
	}
}
