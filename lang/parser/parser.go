// Package parser builds a lang/ast.Program from PEX surface syntax. Like
// lang/scanner, it is a front-end concern external to the execution core; it
// exists to drive the core end to end from source text.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mna/pex/lang/ast"
	"github.com/mna/pex/lang/scanner"
	"github.com/mna/pex/lang/token"
)

// Error is a parse error tied to a source position.
type Error struct {
	Pos token.Pos
	Msg string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Pos, e.Msg) }

// Parse tokenizes and parses src into a Program.
func Parse(src string) (*ast.Program, error) {
	toks, err := scanner.ScanAll(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	return p.parseProgram()
}

type parser struct {
	toks []token.Token
	i    int
}

func (p *parser) cur() token.Token  { return p.toks[p.i] }
func (p *parser) atEnd() bool       { return p.cur().Kind == token.EOF }
func (p *parser) advance() token.Token {
	t := p.toks[p.i]
	if p.i < len(p.toks)-1 {
		p.i++
	}
	return t
}

func (p *parser) errorf(pos token.Pos, format string, args ...interface{}) error {
	return &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseProgram() (*ast.Program, error) {
	start := p.cur().Pos
	prog := &ast.Program{P: start}
	for !p.atEnd() {
		form, err := p.parseForm()
		if err != nil {
			return nil, err
		}
		prog.Forms = append(prog.Forms, form)
		if p.cur().Kind == token.SEMI {
			p.advance()
			continue
		}
		if p.atEnd() {
			break
		}
		return nil, p.errorf(p.cur().Pos, "expected ';' or end of input, got %s", p.cur().Kind)
	}
	return prog, nil
}

// parseForm parses one ';'-delimited form: either a let:/fn:/effect-name:
// special form recognized by a leading colon-suffixed identifier, or a plain
// pipeline expression.
func (p *parser) parseForm() (ast.Node, error) {
	tok := p.cur()
	if tok.Kind == token.IDENT && strings.HasSuffix(tok.Lit, ":") && len(tok.Lit) > 1 {
		keyword := tok.Lit
		switch keyword {
		case "let:":
			return p.parseLetForm(tok.Pos)
		case "fn:":
			return p.parseFnForm(tok.Pos)
		default:
			return p.parseEffectForm(tok.Pos, strings.TrimSuffix(keyword, ":"))
		}
	}
	return p.parseExpr()
}

func (p *parser) atFormEnd() bool {
	return p.atEnd() || p.cur().Kind == token.SEMI
}

func (p *parser) parseLetForm(start token.Pos) (ast.Node, error) {
	p.advance() // 'let:'
	if p.cur().Kind != token.IDENT {
		return nil, p.errorf(p.cur().Pos, "malformed let: form, expected a name, got %s", p.cur().Kind)
	}
	name := p.advance().Lit
	if p.atFormEnd() {
		return nil, p.errorf(p.cur().Pos, "malformed let: form, missing value for %q", name)
	}
	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	lf := &ast.LetForm{Name: name, Value: value, P: start}
	if p.atFormEnd() {
		return lf, nil
	}
	body, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	lf.Body = body
	if !p.atFormEnd() {
		return nil, p.errorf(p.cur().Pos, "malformed let: form, unexpected trailing token %s", p.cur().Kind)
	}
	return lf, nil
}

func (p *parser) parseFnForm(start token.Pos) (ast.Node, error) {
	p.advance() // 'fn:'
	if p.cur().Kind != token.IDENT {
		return nil, p.errorf(p.cur().Pos, "malformed fn: form, expected a name, got %s", p.cur().Kind)
	}
	name := p.advance().Lit
	if p.cur().Kind != token.LPAREN {
		return nil, p.errorf(p.cur().Pos, "malformed fn: form, expected a parameter list, got %s", p.cur().Kind)
	}
	paramList, err := p.parseList()
	if err != nil {
		return nil, err
	}
	ff := &ast.FnForm{Name: name, P: start}
	for _, elem := range paramList.(*ast.List).Elems {
		id, ok := elem.(*ast.Ident)
		if !ok {
			return nil, p.errorf(elem.Pos(), "malformed fn: form, parameter list must contain only names")
		}
		ff.Params = append(ff.Params, id.Name)
	}
	for !p.atFormEnd() {
		stmt, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ff.Body = append(ff.Body, stmt)
	}
	if len(ff.Body) == 0 {
		return nil, p.errorf(p.cur().Pos, "malformed fn: form, missing body for %q", name)
	}
	return ff, nil
}

func (p *parser) parseEffectForm(start token.Pos, name string) (ast.Node, error) {
	p.advance() // 'name:'
	ef := &ast.EffectForm{Name: name, P: start}
	for !p.atFormEnd() {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ef.Args = append(ef.Args, arg)
	}
	return ef, nil
}

// parseExpr parses a pipeline: one or more stages separated by '|'.
func (p *parser) parseExpr() (ast.Node, error) {
	start := p.cur().Pos
	first, err := p.parseStage()
	if err != nil {
		return nil, err
	}
	if p.cur().Kind != token.PIPE {
		return first, nil
	}
	stages := []ast.Node{first}
	for p.cur().Kind == token.PIPE {
		p.advance()
		stage, err := p.parseStage()
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	return &ast.Pipeline{Stages: stages, P: start}, nil
}

func (p *parser) parseStage() (ast.Node, error) {
	tok := p.cur()
	switch tok.Kind {
	case token.LPAREN:
		return p.parseList()
	case token.IDENT:
		p.advance()
		return &ast.Ident{Name: tok.Lit, P: tok.Pos}, nil
	case token.INT:
		p.advance()
		n, err := strconv.ParseInt(tok.Lit, 10, 64)
		if err != nil {
			return nil, p.errorf(tok.Pos, "invalid integer literal %q: %s", tok.Lit, err)
		}
		return &ast.Int{Value: n, P: tok.Pos}, nil
	case token.FLOAT:
		p.advance()
		f, err := strconv.ParseFloat(tok.Lit, 64)
		if err != nil {
			return nil, p.errorf(tok.Pos, "invalid float literal %q: %s", tok.Lit, err)
		}
		return &ast.Float{Value: f, P: tok.Pos}, nil
	case token.STRING:
		p.advance()
		return &ast.Str{Value: tok.Lit, P: tok.Pos}, nil
	case token.REGEX:
		p.advance()
		return &ast.Regex{Pattern: tok.Lit, Flags: tok.Flags, P: tok.Pos}, nil
	case token.DOLLAR:
		p.advance()
		return &ast.Dollar{P: tok.Pos}, nil
	case token.DOLLARDOLLAR:
		p.advance()
		return &ast.DollarDollar{P: tok.Pos}, nil
	case token.DOLLARN:
		p.advance()
		return &ast.DollarN{N: tok.N, P: tok.Pos}, nil
	default:
		return nil, p.errorf(tok.Pos, "unexpected token %s", tok.Kind)
	}
}

func (p *parser) parseList() (ast.Node, error) {
	start := p.advance().Pos // consume '('
	l := &ast.List{P: start}
	for p.cur().Kind != token.RPAREN {
		if p.atEnd() {
			return nil, p.errorf(p.cur().Pos, "unterminated list starting at %s", start)
		}
		elem, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		l.Elems = append(l.Elems, elem)
	}
	p.advance() // consume ')'
	return l, nil
}
