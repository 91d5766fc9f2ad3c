// Package cli holds what the pdas commands share: target selection, symbol
// definitions from the command line and diagnostic printing.
package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/Urethramancer/pdas/asm"
	"github.com/Urethramancer/pdas/diag"
	"github.com/Urethramancer/pdas/target/m68k"
	"github.com/Urethramancer/pdas/target/script"
)

const (
	red    = "\x1b[1;31m"
	yellow = "\x1b[1;33m"
	reset  = "\x1b[0m"
)

// Target picks the machine. A script, when given, wins over the name. The
// returned function releases the target.
func Target(machine, scriptPath string) (asm.Target, func(), error) {
	if scriptPath != "" {
		t, err := script.LoadFile(scriptPath)
		if err != nil {
			return nil, nil, err
		}
		return t, t.Close, nil
	}

	switch strings.ToLower(machine) {
	case "", "generic":
		return asm.Generic{}, func() {}, nil
	case "m68k", "68000", "68k":
		return m68k.New(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown machine %q", machine)
}

// Define is a symbol given on the command line.
type Define struct {
	Name  string
	Value uint64
}

// ParseDefines reads NAME=VALUE[,NAME=VALUE...]. A missing value is 1.
// Values take Go number prefixes and may be negative.
func ParseDefines(s string) ([]Define, error) {
	var out []Define
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		name, value, found := strings.Cut(item, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("missing symbol name in %q", item)
		}
		d := Define{Name: name, Value: 1}
		if found {
			v, err := parseNumber(strings.TrimSpace(value))
			if err != nil {
				return nil, fmt.Errorf("symbol %s: %w", name, err)
			}
			d.Value = v
		}
		out = append(out, d)
	}
	return out, nil
}

// SplitList splits a comma-separated option value, dropping empty items.
func SplitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseNumber(s string) (uint64, error) {
	if strings.HasPrefix(s, "-") {
		v, err := strconv.ParseInt(s, 0, 64)
		return uint64(v), err
	}
	return strconv.ParseUint(s, 0, 64)
}

// Options turns defines into assembler options.
func Options(defs []Define) []asm.Option {
	opts := make([]asm.Option, 0, len(defs))
	for _, d := range defs {
		opts = append(opts, asm.WithSymbol(d.Name, d.Value))
	}
	return opts
}

// PrintDiagnostics writes items to f, colouring the severity when f is a terminal.
func PrintDiagnostics(f *os.File, items []diag.Diagnostic) {
	WriteDiagnostics(f, items, term.IsTerminal(int(f.Fd())))
}

// WriteDiagnostics writes one line per diagnostic.
func WriteDiagnostics(w io.Writer, items []diag.Diagnostic, colour bool) {
	for _, d := range items {
		if !colour {
			fmt.Fprintln(w, d)
			continue
		}

		sev := yellow + d.Severity.String() + reset
		if d.Severity == diag.Error {
			sev = red + d.Severity.String() + reset
		}
		if pos := d.Pos.String(); pos != "" {
			fmt.Fprintf(w, "%s: %s: %s\n", pos, sev, d.Msg)
		} else {
			fmt.Fprintf(w, "%s: %s\n", sev, d.Msg)
		}
	}
}
