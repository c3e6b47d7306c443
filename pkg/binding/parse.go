package binding

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/scanner"
)

// ErrSyntax is matched by SyntaxError.
var ErrSyntax = errors.New("binding expression syntax error")

// SyntaxError reports where parsing stopped.
type SyntaxError struct {
	Text   string
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%v at column %d in %q: %s", ErrSyntax, e.Column, e.Text, e.Msg)
}

func (e *SyntaxError) Is(target error) bool { return target == ErrSyntax }

// Parse reads an expression over the closed operator set:
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { "*" unary }
//	unary   = "-" unary | primary
//	primary = number | ident | "(" expr ")"
//	        | ("min" | "max") "(" expr { "," expr } ")"
//	        | "clamp" "(" expr "," expr "," expr ")"
//	        | "joint" "(" string ")" "." channel
func Parse(text string) (Expr, error) {
	p := &parser{text: text}
	p.s.Init(strings.NewReader(text))
	p.s.Mode = scanner.ScanIdents | scanner.ScanFloats | scanner.ScanInts | scanner.ScanStrings
	p.s.Error = func(s *scanner.Scanner, msg string) {
		if p.err == nil {
			p.err = p.errorf(s.Pos().Column, "%s", msg)
		}
	}
	p.next()

	e := p.expr()
	if p.err == nil && p.tok != scanner.EOF {
		p.fail("unexpected %s", p.describe())
	}
	if p.err != nil {
		return nil, p.err
	}
	return e, nil
}

// MustParse panics on syntax errors. For presets and tests.
func MustParse(text string) Expr {
	e, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return e
}

type parser struct {
	text string
	s    scanner.Scanner
	tok  rune
	lit  string
	col  int
	err  error
}

func (p *parser) next() {
	p.tok = p.s.Scan()
	p.lit = p.s.TokenText()
	p.col = p.s.Position.Column
}

func (p *parser) errorf(col int, format string, args ...any) error {
	return &SyntaxError{Text: p.text, Column: col, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) fail(format string, args ...any) {
	if p.err == nil {
		p.err = p.errorf(p.col, format, args...)
	}
	// Stop consuming input after the first error.
	p.tok = scanner.EOF
}

func (p *parser) describe() string {
	if p.tok == scanner.EOF {
		return "end of expression"
	}
	return strconv.Quote(p.lit)
}

func (p *parser) expect(tok rune) {
	if p.tok != tok {
		p.fail("expected %q, found %s", string(tok), p.describe())
		return
	}
	p.next()
}

func (p *parser) expr() Expr {
	e := p.term()
	for p.err == nil && (p.tok == '+' || p.tok == '-') {
		op := Op(p.tok)
		p.next()
		e = Binary{Op: op, L: e, R: p.term()}
	}
	return e
}

func (p *parser) term() Expr {
	e := p.unary()
	for p.err == nil && p.tok == '*' {
		p.next()
		e = Binary{Op: OpMul, L: e, R: p.unary()}
	}
	return e
}

func (p *parser) unary() Expr {
	if p.tok == '-' {
		p.next()
		return Negate{X: p.unary()}
	}
	return p.primary()
}

func (p *parser) primary() Expr {
	switch p.tok {
	case scanner.Int, scanner.Float:
		v, err := strconv.ParseFloat(p.lit, 32)
		if err != nil {
			p.fail("invalid number %q", p.lit)
			return Const(0)
		}
		p.next()
		return Const(float32(v))

	case '(':
		p.next()
		e := p.expr()
		p.expect(')')
		return e

	case scanner.Ident:
		name := p.lit
		p.next()
		if p.tok != '(' {
			return Param(name)
		}
		return p.call(name)
	}

	p.fail("unexpected %s", p.describe())
	return Const(0)
}

func (p *parser) call(name string) Expr {
	col := p.col
	p.next() // (

	if name == "joint" {
		return p.joint()
	}

	var args []Expr
	for p.err == nil {
		args = append(args, p.expr())
		if p.tok != ',' {
			break
		}
		p.next()
	}
	p.expect(')')
	if p.err != nil {
		return Const(0)
	}

	switch name {
	case "min", "max":
		return Extremum{Max: name == "max", Args: args}
	case "clamp":
		if len(args) != 3 {
			p.err = p.errorf(col, "clamp takes 3 arguments, got %d", len(args))
			return Const(0)
		}
		return ClampExpr{X: args[0], Lo: args[1], Hi: args[2]}
	}
	p.err = p.errorf(col, "unknown function %q", name)
	return Const(0)
}

func (p *parser) joint() Expr {
	if p.tok != scanner.String {
		p.fail("joint name must be a quoted string, found %s", p.describe())
		return Const(0)
	}
	joint, err := strconv.Unquote(p.lit)
	if err != nil {
		p.fail("invalid joint name %s", p.lit)
		return Const(0)
	}
	p.next()
	p.expect(')')
	p.expect('.')
	if p.err != nil {
		return Const(0)
	}
	if p.tok != scanner.Ident {
		p.fail("expected joint channel, found %s", p.describe())
		return Const(0)
	}
	ch, err := ParseChannel(p.lit)
	if err != nil {
		p.fail("%v", err)
		return Const(0)
	}
	p.next()
	return JointRef{Joint: joint, Channel: ch}
}
