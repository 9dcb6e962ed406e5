package maincmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"
	"github.com/mna/pex/lang/compiler"
)

func (c *Cmd) Disasm(ctx context.Context, stdio mainer.Stdio, args []string) error {
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
	fmt.Fprint(stdio.Stdout, compiler.Disassemble(p))
	return nil
}
