package expr

import (
	"fmt"
	"sort"
	"strconv"
)

// SyntaxError reports a formula outside the accepted grammar.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d: %s", e.Pos, e.Msg)
}

type node interface{}

type numberNode struct {
	value float64
}

type identNode struct {
	name string
}

type unaryNode struct {
	op      tokenKind
	operand node
}

type binaryNode struct {
	op          tokenKind
	left, right node
}

type callNode struct {
	name string
	args []node
}

// Expr is a parsed formula.
type Expr struct {
	source string
	root   node
	idents []string
	calls  []string
}

// Parse parses a formula. A leading "name =" assignment is stripped and
// only the right-hand side is kept.
func Parse(formula string) (*Expr, error) {
	src := stripAssignment(formula)
	if src == "" {
		return nil, &SyntaxError{Msg: "empty expression"}
	}

	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %s", tok.kind)}
	}

	e := &Expr{source: src, root: root}
	e.idents, e.calls = collectNames(root)
	return e, nil
}

// String returns the normalized source of the expression.
func (e *Expr) String() string {
	return e.source
}

// Identifiers returns the distinct variable names the expression reads,
// sorted.
func (e *Expr) Identifiers() []string {
	return append([]string(nil), e.idents...)
}

// Calls returns the distinct function names the expression calls, sorted.
func (e *Expr) Calls() []string {
	return append([]string(nil), e.calls...)
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind tokenKind) (token, error) {
	tok := p.next()
	if tok.kind != kind {
		return tok, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("expected %s, found %s", kind, tok.kind)}
	}
	return tok, nil
}

// expr := term (('+' | '-') term)*
func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek().kind
		if op != tokPlus && op != tokMinus {
			return left, nil
		}
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

// term := unary (('*' | '/' | '//' | '%') unary)*
func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek().kind
		if op != tokStar && op != tokSlash && op != tokFloorDiv && op != tokPercent {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

// unary := ('+' | '-') unary | power
func (p *parser) parseUnary() (node, error) {
	if op := p.peek().kind; op == tokPlus || op == tokMinus {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: op, operand: operand}, nil
	}
	return p.parsePower()
}

// power := primary ('**' unary)?
// The exponent binds right to left and may carry its own sign.
func (p *parser) parsePower() (node, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokPower {
		return base, nil
	}
	p.next()
	exp, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &binaryNode{op: tokPower, left: base, right: exp}, nil
}

// primary := number | ident | ident '(' args ')' | '(' expr ')'
func (p *parser) parsePrimary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		v, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("invalid number %q", tok.text)}
		}
		return &numberNode{value: v}, nil
	case tokIdent:
		if p.peek().kind == tokLParen {
			p.next()
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return &callNode{name: tok.text, args: args}, nil
		}
		return &identNode{name: tok.text}, nil
	case tokLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %s", tok.kind)}
}

func (p *parser) parseArgs() ([]node, error) {
	var args []node
	if p.peek().kind == tokRParen {
		p.next()
		return args, nil
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		tok := p.next()
		switch tok.kind {
		case tokComma:
			continue
		case tokRParen:
			return args, nil
		default:
			return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("expected ',' or ')', found %s", tok.kind)}
		}
	}
}

func collectNames(root node) (idents, calls []string) {
	seenIdent := map[string]bool{}
	seenCall := map[string]bool{}

	var walk func(n node)
	walk = func(n node) {
		switch x := n.(type) {
		case *identNode:
			if !seenIdent[x.name] {
				seenIdent[x.name] = true
				idents = append(idents, x.name)
			}
		case *unaryNode:
			walk(x.operand)
		case *binaryNode:
			walk(x.left)
			walk(x.right)
		case *callNode:
			if !seenCall[x.name] {
				seenCall[x.name] = true
				calls = append(calls, x.name)
			}
			for _, arg := range x.args {
				walk(arg)
			}
		}
	}
	walk(root)

	sort.Strings(idents)
	sort.Strings(calls)
	return idents, calls
}
