package maincmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"
	"github.com/mna/pex/lang/builtins"
	"github.com/mna/pex/lang/compiler"
	"github.com/mna/pex/lang/machine"
	"github.com/mna/pex/lang/value"
)

func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	src, err := readSource(stdio.Stdin, path)
	if err != nil {
		return err
	}

	var p *compiler.Program
	if c.Bytecode {
		p, err = compiler.Decode(src)
	} else {
		p, err = compileSource(string(src))
	}
	if err != nil {
		return err
	}

	input, err := evalInputLiteral(c.Input)
	if err != nil {
		return err
	}

	vm := newVM(p)
	handler := stdioEffectHandler(stdio)
	result, err := vm.Run(input, handler)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdio.Stdout, builtins.Stringify(result))
	return nil
}

// stdioEffectHandler implements the one effect every pex program can rely
// on without a custom host: "print", which writes its arguments to stdout,
// separated by single spaces and followed by a newline, and resumes with
// null. Any other effect aborts the program with a
// descriptive error, since this CLI has no other host integration to offer.
func stdioEffectHandler(stdio mainer.Stdio) machine.EffectHandler {
	return func(name string, args []value.Value, cont *value.Continuation) {
		if name != "print" {
			fmt.Fprintf(stdio.Stderr, "unhandled effect %q\n", name)
			return
		}
		for i, a := range args {
			if i > 0 {
				fmt.Fprint(stdio.Stdout, " ")
			}
			fmt.Fprint(stdio.Stdout, builtins.Stringify(a))
		}
		fmt.Fprintln(stdio.Stdout)
		if _, err := cont.Resume(value.Null{}); err != nil {
			fmt.Fprintln(stdio.Stderr, err)
		}
	}
}
