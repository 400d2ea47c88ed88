package lmisdp

import (
	"fmt"
	"math/big"
	"strings"
	"text/scanner"
)

// ============================================================
// Infix parser
// ============================================================

// Parse reads an infix expression such as "1.2 + x - 3.4*y" or
// "sqrt(2)*x^2". Decimal literals are exact rationals.
//
//	expr    := term {("+" | "-") term}
//	term    := unary {("*" | "/") unary}
//	unary   := ("-" | "+") unary | power
//	power   := primary ["^" unary]
//	primary := number | ident | ident "(" expr ")" | "(" expr ")"
func Parse(input string) (Expr, error) {
	p := newParser(input)
	e := p.expr()
	if p.err == nil && p.tok != scanner.EOF {
		p.fail("unexpected %q", p.text)
	}
	if p.err != nil {
		return nil, p.err
	}
	return e.Simplify(), nil
}

// MustParse is Parse that panics on error. Intended for literals in
// tests and examples.
func MustParse(input string) Expr {
	e, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return e
}

// ParseMatrix parses a grid of infix entries.
func ParseMatrix(rows [][]string) (*Matrix, error) {
	exprs := make([][]Expr, len(rows))
	for i, row := range rows {
		exprs[i] = make([]Expr, len(row))
		for j, s := range row {
			e, err := Parse(s)
			if err != nil {
				return nil, fmt.Errorf("entry [%d,%d]: %w", i, j, err)
			}
			exprs[i][j] = e
		}
	}
	return MatrixFromRows(exprs)
}

type parser struct {
	s     scanner.Scanner
	input string
	tok   rune
	text  string
	pos   int
	err   error
}

func newParser(input string) *parser {
	p := &parser{input: input}
	p.s.Init(strings.NewReader(input))
	p.s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats
	p.s.Error = func(s *scanner.Scanner, msg string) {
		if p.err == nil {
			p.err = &ParseError{Input: input, Offset: s.Position.Offset, Msg: msg}
		}
	}
	p.next()
	return p
}

func (p *parser) next() {
	p.tok = p.s.Scan()
	p.text = p.s.TokenText()
	p.pos = p.s.Position.Offset
}

func (p *parser) fail(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	p.err = &ParseError{Input: p.input, Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expr() Expr {
	terms := []Expr{p.term()}
	for p.err == nil && (p.tok == '+' || p.tok == '-') {
		op := p.tok
		p.next()
		t := p.term()
		if op == '-' {
			t = Neg(t)
		}
		terms = append(terms, t)
	}
	if p.err != nil {
		return N(0)
	}
	return AddOf(terms...)
}

func (p *parser) term() Expr {
	left := p.unary()
	for p.err == nil && (p.tok == '*' || p.tok == '/') {
		op := p.tok
		p.next()
		right := p.unary()
		if p.err != nil {
			break
		}
		if op == '*' {
			left = MulOf(left, right)
			continue
		}
		if n, ok := right.(*Num); ok {
			if n.IsZero() {
				p.fail("division by zero")
				break
			}
			left = MulOf(left, numRecip(n))
			continue
		}
		left = MulOf(left, PowOf(right, N(-1)))
	}
	if p.err != nil {
		return N(0)
	}
	return left
}

func (p *parser) unary() Expr {
	switch p.tok {
	case '-':
		p.next()
		return Neg(p.unary())
	case '+':
		p.next()
		return p.unary()
	}
	return p.power()
}

func (p *parser) power() Expr {
	base := p.primary()
	if p.err == nil && p.tok == '^' {
		p.next()
		exp := p.unary()
		if p.err != nil {
			return N(0)
		}
		if bn, ok := base.(*Num); ok && bn.IsZero() {
			if en, ok := exp.(*Num); ok && !en.IsPositive() {
				p.fail("zero raised to non-positive power")
				return N(0)
			}
		}
		return PowOf(base, exp)
	}
	return base
}

func (p *parser) primary() Expr {
	if p.err != nil {
		return N(0)
	}
	switch p.tok {
	case scanner.Int, scanner.Float:
		r, ok := new(big.Rat).SetString(p.text)
		if !ok {
			p.fail("bad number %q", p.text)
			return N(0)
		}
		p.next()
		return &Num{val: r}
	case scanner.Ident:
		name := p.text
		p.next()
		if p.tok != '(' {
			return S(name)
		}
		p.next()
		arg := p.expr()
		if !p.expect(')') {
			return N(0)
		}
		f, err := FuncOf(name, arg)
		if err != nil {
			p.fail("%v", err)
			return N(0)
		}
		return f
	case '(':
		p.next()
		e := p.expr()
		if !p.expect(')') {
			return N(0)
		}
		return e
	case scanner.EOF:
		p.fail("unexpected end of input")
		return N(0)
	}
	p.fail("unexpected %q", p.text)
	return N(0)
}

func (p *parser) expect(tok rune) bool {
	if p.err != nil {
		return false
	}
	if p.tok != tok {
		if p.tok == scanner.EOF {
			p.fail("missing %q", string(tok))
		} else {
			p.fail("expected %q, found %q", string(tok), p.text)
		}
		return false
	}
	p.next()
	return true
}
