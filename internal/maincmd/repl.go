package maincmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mna/mainer"
	"github.com/mna/pex/lang/builtins"
	"github.com/mna/pex/lang/value"
)

// Repl runs an interactive read-eval-print loop: each accepted form is
// compiled and run as its own program, with $$ bound to the previous
// result (null for the first line), so a session reads like a running
// pipeline typed one stage at a time. print: effects are resumed with null
// and written straight to the terminal, same as Run's handler.
func (c *Cmd) Repl(ctx context.Context, stdio mainer.Stdio, args []string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pex> ",
		HistoryFile:     "",
		InterruptPrompt: "^C",
		EOFPrompt:       "^D",
		Stdin:           io.NopCloser(stdio.Stdin),
		Stdout:          stdio.Stdout,
		Stderr:          stdio.Stderr,
	})
	if err != nil {
		return fmt.Errorf("repl: %w", err)
	}
	defer rl.Close()

	last := value.Value(value.Null{})
	handler := stdioEffectHandler(stdio)

	for {
		line, err := readMultilineForm(rl)
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("repl: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		p, err := compileSource(line)
		if err != nil {
			fmt.Fprintln(stdio.Stderr, err)
			continue
		}
		vm := newVM(p)
		result, err := vm.Run(last, handler)
		if err != nil {
			fmt.Fprintln(stdio.Stderr, err)
			continue
		}
		last = result
		fmt.Fprintln(stdio.Stdout, builtins.Stringify(result))
	}
}

// readMultilineForm reads lines from rl until parentheses balance, so a
// form spanning several lines can be typed without escaping the newline.
func readMultilineForm(rl *readline.Instance) (string, error) {
	rl.SetPrompt("pex> ")
	var b strings.Builder
	depth := 0
	first := true
	for {
		line, err := rl.Readline()
		if err != nil {
			return "", err
		}
		if !first {
			b.WriteByte('\n')
		}
		first = false
		b.WriteString(line)
		depth += strings.Count(line, "(") - strings.Count(line, ")")
		if depth <= 0 {
			return b.String(), nil
		}
		rl.SetPrompt("  ... ")
	}
}
