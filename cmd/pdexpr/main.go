package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/grimdork/climate/arg"

	"github.com/Urethramancer/pdas/asm"
	"github.com/Urethramancer/pdas/expr"
	"github.com/Urethramancer/pdas/frag"
	"github.com/Urethramancer/pdas/internal/cli"
)

func main() {
	opt := arg.New("pdexpr")
	opt.SetDefaultHelp(true)
	opt.SetOption(arg.GroupDefault, "m", "machine", "Target machine: generic or m68k.", "generic", false, arg.VarString, nil)
	opt.SetOption(arg.GroupDefault, "s", "script", "Lua script describing the target machine.", "", false, arg.VarString, nil)
	opt.SetOption(arg.GroupDefault, "D", "defsym", "Predefine symbols as NAME=VALUE[,NAME=VALUE...].", "", false, arg.VarString, nil)
	opt.SetPositional("EXPR", "Expression to evaluate.", "", true, arg.VarString)

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
	target, done, err := cli.Target(opt.GetString("machine"), opt.GetString("script"))
	if err != nil {
		return err
	}
	defer done()

	defs, err := cli.ParseDefines(opt.GetString("defsym"))
	if err != nil {
		return err
	}

	a, err := asm.New(append(cli.Options(defs), asm.WithTarget(target))...)
	if err != nil {
		return err
	}

	n, sec, rest := a.Engine().EvaluateString(opt.GetPosString("EXPR"))
	cli.PrintDiagnostics(os.Stderr, a.Diagnostics())
	if rest = strings.TrimSpace(rest); rest != "" {
		return fmt.Errorf("junk at end of expression: %q", rest)
	}
	if a.Reporter().Errors() > 0 {
		return errors.New("bad expression")
	}

	fmt.Println(describe(n, sec))
	return nil
}

func describe(n expr.Node, sec *frag.Section) string {
	switch n.Op {
	case expr.OpConstant:
		return fmt.Sprintf("%#x %d", n.Number, int64(n.Number))
	case expr.OpRegister:
		return fmt.Sprintf("register %d", n.Number)
	case expr.OpAbsent:
		return "empty"
	}
	return fmt.Sprintf("%s in %s", n, sec)
}
