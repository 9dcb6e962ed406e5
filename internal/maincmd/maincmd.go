// Package maincmd implements the pex command-line front-end: parsing
// command-line arguments and dispatching to the run/compile/disasm/repl
// commands. It is, like the surface lexer and parser, external to the
// execution core (spec §1 Non-goals).
package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/mna/mainer"
)

const binName = "pex"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] <command> [<path>]
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] <command> [<path>]
       %[1]s -h|--help
       %[1]s -v|--version

Compiler and runtime for the %[1]s pipe-oriented expression language.

The <command> can be one of:
       run                       Compile and execute a program, reading
                                  source from <path> or stdin.
       compile                   Compile a program to the binary bytecode
                                  format and write it to stdout.
       disasm                    Disassemble a program (source or already
                                  compiled bytecode) to a human-readable
                                  listing.
       repl                      Start an interactive read-eval-print loop.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.

Valid flag options for the <run> and <disasm> commands:
       --input <expr>            A PEX literal expression to use as the
                                  program's input value (default: null).
                                  Used by <run> only.
       --bytecode                Treat <path> (or stdin) as already-compiled
                                  bytecode rather than source text.

More information on the %[1]s repository:
       https://github.com/mna/pex
`, binName)
)

// Cmd is the root command, populated from os.Args by mainer.Parser.
type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`

	Input    string `flag:"input"`
	Bytecode bool   `flag:"bytecode"`

	args  []string
	cmdFn func(context.Context, mainer.Stdio, []string) error
}

func (c *Cmd) SetArgs(args []string) { c.args = args }

func (c *Cmd) SetFlags(map[string]bool) {}

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}
	if len(c.args) == 0 {
		return errors.New("no command specified")
	}
	cmdName := c.args[0]
	commands := buildCmds(c)
	c.cmdFn = commands[cmdName]
	if c.cmdFn == nil {
		return fmt.Errorf("unknown command: %s", cmdName)
	}
	return nil
}

func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{EnvVars: false, EnvPrefix: binName + "_"}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success
	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	if err := c.cmdFn(ctx, stdio, c.args[1:]); err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return mainer.Failure
	}
	return mainer.Success
}

// buildCmds mirrors the method-lookup trick used by the command names are
// derived from lowercased method names, keeping each command's flag and
// argument handling colocated with its implementation file.
func buildCmds(v interface{}) map[string]func(context.Context, mainer.Stdio, []string) error {
	cmds := make(map[string]func(context.Context, mainer.Stdio, []string) error)
	vv := reflect.ValueOf(v)
	vt := vv.Type()
	for i := 0; i < vt.NumMethod(); i++ {
		m := vt.Method(i)
		mt := m.Type
		if mt.NumIn() != 4 || mt.NumOut() != 1 {
			continue
		}
		if rt := mt.Out(0); rt.Kind() != reflect.Interface || rt.Name() != "error" {
			continue
		}
		if p0 := mt.In(0); p0.Kind() != reflect.Ptr || p0.Elem().Name() != "Cmd" {
			continue
		}
		if p1 := mt.In(1); p1.Kind() != reflect.Interface || p1.Name() != "Context" {
			continue
		}
		if p2 := mt.In(2); p2.Kind() != reflect.Struct || p2.Name() != "Stdio" {
			continue
		}
		if p3 := mt.In(3); p3.Kind() != reflect.Slice || p3.Elem().Name() != "string" {
			continue
		}
		cmds[strings.ToLower(m.Name)] = vv.Method(i).Interface().(func(context.Context, mainer.Stdio, []string) error)
	}
	return cmds
}
