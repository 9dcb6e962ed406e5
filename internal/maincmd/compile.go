package maincmd

import (
	"context"

	"github.com/mna/mainer"
	"github.com/mna/pex/lang/compiler"
)

func (c *Cmd) Compile(ctx context.Context, stdio mainer.Stdio, args []string) error {
	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	src, err := readSource(stdio.Stdin, path)
	if err != nil {
		return err
	}
	p, err := compileSource(string(src))
	if err != nil {
		return err
	}
	_, err = stdio.Stdout.Write(compiler.Encode(p))
	return err
}
