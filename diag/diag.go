// Package diag collects warnings and errors produced while assembling.
package diag

import (
	"errors"
	"fmt"
	"strings"
)

// Severity of a diagnostic.
type Severity int

const (
	// Warning is advisory; assembly continues with a substituted value.
	Warning Severity = iota
	// Error is a hard failure; assembly continues but no output is trusted.
	Error
)

func (s Severity) String() string {
	if s == Error {
		return "Error"
	}
	return "Warning"
}

// Pos is a source position.
type Pos struct {
	File string
	Line int
}

func (p Pos) String() string {
	switch {
	case p.File == "" && p.Line == 0:
		return ""
	case p.File == "":
		return fmt.Sprintf("%d", p.Line)
	case p.Line == 0:
		return p.File
	}
	return fmt.Sprintf("%s:%d", p.File, p.Line)
}

// Diagnostic is one reported message.
type Diagnostic struct {
	Pos      Pos
	Severity Severity
	Msg      string
}

func (d Diagnostic) String() string {
	if pos := d.Pos.String(); pos != "" {
		return fmt.Sprintf("%s: %s: %s", pos, d.Severity, d.Msg)
	}
	return fmt.Sprintf("%s: %s", d.Severity, d.Msg)
}

// Reporter is what the expression engine and the line processor report through.
// Reporting never unwinds the caller.
type Reporter interface {
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Pos() Pos
}

// List is a Reporter that keeps every diagnostic in order.
type List struct {
	pos   Pos
	items []Diagnostic
	errs  int
}

// SetPos sets the position attached to subsequent diagnostics.
func (l *List) SetPos(p Pos) {
	l.pos = p
}

// Pos returns the current position.
func (l *List) Pos() Pos {
	return l.pos
}

// Warnf records a warning at the current position.
func (l *List) Warnf(format string, args ...any) {
	l.items = append(l.items, Diagnostic{Pos: l.pos, Severity: Warning, Msg: fmt.Sprintf(format, args...)})
}

// Errorf records an error at the current position.
func (l *List) Errorf(format string, args ...any) {
	l.items = append(l.items, Diagnostic{Pos: l.pos, Severity: Error, Msg: fmt.Sprintf(format, args...)})
	l.errs++
}

// Items returns all diagnostics in report order.
func (l *List) Items() []Diagnostic {
	return l.items
}

// Errors returns the number of errors reported.
func (l *List) Errors() int {
	return l.errs
}

// Warnings returns the number of warnings reported.
func (l *List) Warnings() int {
	return len(l.items) - l.errs
}

// Reset drops everything recorded so far.
func (l *List) Reset() {
	l.items = nil
	l.errs = 0
}

// Err returns nil when no error was reported, otherwise one error carrying every error message.
func (l *List) Err() error {
	if l.errs == 0 {
		return nil
	}
	var msgs []string
	for _, d := range l.items {
		if d.Severity == Error {
			msgs = append(msgs, d.String())
		}
	}
	return errors.New(strings.Join(msgs, "\n"))
}
