package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/grimdork/climate/arg"

	"github.com/Urethramancer/pdas/asm"
	"github.com/Urethramancer/pdas/internal/cli"
)

func main() {
	opt := arg.New("pdas")
	opt.SetDefaultHelp(true)
	opt.SetOption(arg.GroupDefault, "m", "machine", "Target machine: generic or m68k.", "generic", false, arg.VarString, nil)
	opt.SetOption(arg.GroupDefault, "s", "script", "Lua script describing the target machine.", "", false, arg.VarString, nil)
	opt.SetOption(arg.GroupDefault, "o", "output", "Write the object dump here instead of stdout.", "", false, arg.VarString, nil)
	opt.SetOption(arg.GroupDefault, "l", "symbols", "Include the symbol table in the dump.", false, false, arg.VarBool, nil)
	opt.SetOption(arg.GroupDefault, "I", "include", "Directories searched by .include, comma-separated.", "", false, arg.VarString, nil)
	opt.SetOption(arg.GroupDefault, "a", "listing", "Write a listing of source, bytes and symbols to this file.", "", false, arg.VarString, nil)
	opt.SetOption(arg.GroupDefault, "D", "defsym", "Predefine symbols as NAME=VALUE[,NAME=VALUE...].", "", false, arg.VarString, nil)
	opt.SetPositional("FILE", "Source file to assemble.", "", true, arg.VarString)

	err := opt.Parse(os.Args[1:])
	if err != nil {
		if errors.Is(err, arg.ErrNoArgs) {
			opt.PrintHelp()
			return
		}
		fmt.Fprintf(os.Stderr, "Error parsing arguments: %v\n", err)
		os.Exit(1)
	}
	if opt.GetBool("help") {
		opt.PrintHelp()
		return
	}

	if err := run(opt); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opt *arg.Options) error {
	inputFile := opt.GetPosString("FILE")
	src, err := os.ReadFile(inputFile)
	if err != nil {
		return fmt.Errorf("reading input file: %w", err)
	}

	target, done, err := cli.Target(opt.GetString("machine"), opt.GetString("script"))
	if err != nil {
		return err
	}
	defer done()

	defs, err := cli.ParseDefines(opt.GetString("defsym"))
	if err != nil {
		return err
	}

	opts := append(cli.Options(defs),
		asm.WithTarget(target),
		asm.WithFile(inputFile),
		asm.WithIncludeDirs(cli.SplitList(opt.GetString("include"))...),
	)
	a, err := asm.New(opts...)
	if err != nil {
		return err
	}

	obj, err := a.Assemble(string(src))
	cli.PrintDiagnostics(os.Stderr, a.Diagnostics())
	if name := opt.GetString("listing"); name != "" {
		if lerr := writeListing(a, name); lerr != nil {
			return lerr
		}
	}
	if err != nil {
		return fmt.Errorf("%d error(s) in %s", a.Reporter().Errors(), inputFile)
	}

	var w io.Writer = os.Stdout
	if name := opt.GetString("output"); name != "" {
		f, err := os.Create(name)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return obj.Dump(w, opt.GetBool("symbols"))
}

func writeListing(a *asm.Assembler, name string) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("creating listing file: %w", err)
	}
	defer f.Close()
	return a.WriteListing(f)
}
