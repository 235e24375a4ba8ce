// Package parser implements a recursive-descent parser producing a
// pkg/ast tree from a pkg/lexer token stream.
package parser

import (
	"strconv"

	"github.com/stamplang/stamp/pkg/ast"
	"github.com/stamplang/stamp/pkg/kind"
	"github.com/stamplang/stamp/pkg/lexer"
	"github.com/stamplang/stamp/pkg/token"
)

// Includer resolves a `use "path";` statement's path to that file's
// source text, letting the parser textually splice an included file's
// top-level statements in place before the compiler ever sees the
// combined program. The CLI wires this to the filesystem; tests can stub
// it with an in-memory map.
type Includer interface {
	IncludeFrom(path string) (string, error)
}

// Parser consumes a token stream and builds an *ast.Program.
type Parser struct {
	l        *lexer.Lexer
	includer Includer

	cur  token.Token
	peek token.Token
}

// New builds a Parser over source, with includer used to resolve `use`
// statements (may be nil if the source has none).
func New(source string, includer Includer) (*Parser, error) {
	p := &Parser{l: lexer.New(source), includer: includer}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parser) advance() error {
	p.cur = p.peek
	tok, err := p.l.NextToken()
	if err != nil {
		return err
	}
	p.peek = tok
	return nil
}

func (p *Parser) expect(k token.Kind) (token.Token, error) {
	if p.cur.Kind != k {
		return token.Token{}, kind.New(kind.ParsingError, "expected %s, got %s (%q) at line %d", k, p.cur.Kind, p.cur.Literal, p.cur.Pos.Line)
	}
	tok := p.cur
	return tok, p.advance()
}

// ParseProgram parses the whole token stream into a Program.
func (p *Parser) ParseProgram() (*ast.Program, error) {
	prog := &ast.Program{}
	for p.cur.Kind != token.EOF {
		stmts, err := p.parseTopLevel()
		if err != nil {
			return nil, err
		}
		prog.Statements = append(prog.Statements, stmts...)
	}
	return prog, nil
}

// parseTopLevel parses one source statement, returning more than one
// ast.Statement only when it was a `use` that got spliced inline.
func (p *Parser) parseTopLevel() ([]ast.Statement, error) {
	if p.cur.Kind == token.Use {
		return p.parseUse()
	}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return []ast.Statement{stmt}, nil
}

func (p *Parser) parseUse() ([]ast.Statement, error) {
	pos := p.cur.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	pathTok, err := p.expect(token.String)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Semicolon); err != nil {
		return nil, err
	}

	if p.includer == nil {
		return nil, kind.New(kind.ParsingError, "use %q at line %d: no includer configured", pathTok.Literal, pos.Line)
	}
	src, err := p.includer.IncludeFrom(pathTok.Literal)
	if err != nil {
		return nil, kind.Wrap(kind.ParsingError, err, "use %q at line %d", pathTok.Literal, pos.Line)
	}

	sub, err := New(src, p.includer)
	if err != nil {
		return nil, err
	}
	included, err := sub.ParseProgram()
	if err != nil {
		return nil, err
	}
	return included.Statements, nil
}

func (p *Parser) parseStatement() (ast.Statement, error) {
	switch p.cur.Kind {
	case token.Mut:
		return p.parseAssign(true)
	case token.If:
		return p.parseIf()
	case token.While:
		return p.parseWhile()
	case token.Break:
		pos := p.cur.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Semicolon); err != nil {
			return nil, err
		}
		return &ast.Break{Pos: pos}, nil
	case token.Continue:
		pos := p.cur.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Semicolon); err != nil {
			return nil, err
		}
		return &ast.Continue{Pos: pos}, nil
	case token.Fn:
		// The named declaration form is a statement in its own right, with
		// no trailing semicolon — like if and while, it ends at the body's
		// closing brace. An anonymous fn at statement position is just an
		// expression statement.
		if p.peek.Kind == token.Ident {
			pos := p.cur.Pos
			lit, err := p.parseFnLit()
			if err != nil {
				return nil, err
			}
			return &ast.ExprStatement{Pos: pos, Expr: lit}, nil
		}
		return p.parseExprStatement()
	case token.Ident:
		if p.peek.Kind == token.Assign {
			return p.parseAssign(false)
		}
		return p.parseExprStatement()
	default:
		return p.parseExprStatement()
	}
}

func (p *Parser) parseAssign(mut bool) (ast.Statement, error) {
	pos := p.cur.Pos
	if mut {
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Assign); err != nil {
		return nil, err
	}
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Semicolon); err != nil {
		return nil, err
	}
	return &ast.Assign{Pos: pos, Name: name.Literal, Mut: mut, Value: value}, nil
}

func (p *Parser) parseExprStatement() (ast.Statement, error) {
	pos := p.cur.Pos
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Semicolon); err != nil {
		return nil, err
	}
	return &ast.ExprStatement{Pos: pos, Expr: expr}, nil
}

func (p *Parser) parseBlock() (*ast.Block, error) {
	pos := p.cur.Pos
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	b := &ast.Block{Pos: pos}
	for p.cur.Kind != token.RBrace {
		if p.cur.Kind == token.EOF {
			return nil, kind.New(kind.ParsingError, "unterminated block starting at line %d", pos.Line)
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		b.Statements = append(b.Statements, stmt)
	}
	return b, p.advance()
}

func (p *Parser) parseIf() (ast.Statement, error) {
	pos := p.cur.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	node := &ast.If{Pos: pos, Cond: cond, Then: then}
	if p.cur.Kind == token.Else {
		if err := p.advance(); err != nil {
			return nil, err
		}
		elseBlock, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		node.ElseBlock = elseBlock
	}
	return node, nil
}

func (p *Parser) parseWhile() (ast.Statement, error) {
	pos := p.cur.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.While{Pos: pos, Cond: cond, Body: body}, nil
}

// Expression precedence, lowest to highest: comparison, additive,
// multiplicative, unary, postfix (send chains and calls), primary.

func (p *Parser) parseExpression() (ast.Expression, error) {
	return p.parseComparison()
}

func (p *Parser) parseComparison() (ast.Expression, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for isComparisonOp(p.cur.Kind) {
		op := p.cur
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &ast.Send{Pos: op.Pos, Receiver: left, Msg: token.BinaryMessage[op.Kind], Arg: right}
	}
	return left, nil
}

func isComparisonOp(k token.Kind) bool {
	switch k {
	case token.Lt, token.LtEq, token.Gt, token.GtEq, token.EqEq, token.NotEq:
		return true
	}
	return false
}

func (p *Parser) parseAdditive() (ast.Expression, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.cur.Kind == token.Plus || p.cur.Kind == token.Minus {
		op := p.cur
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &ast.Send{Pos: op.Pos, Receiver: left, Msg: token.BinaryMessage[op.Kind], Arg: right}
	}
	return left, nil
}

func isMultiplicativeOp(k token.Kind) bool {
	switch k {
	case token.Star, token.Slash, token.Percent, token.Shl, token.Shr, token.Amp, token.Pipe, token.Caret:
		return true
	}
	return false
}

func (p *Parser) parseMultiplicative() (ast.Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for isMultiplicativeOp(p.cur.Kind) {
		op := p.cur
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ast.Send{Pos: op.Pos, Receiver: left, Msg: token.BinaryMessage[op.Kind], Arg: right}
	}
	return left, nil
}

// parseUnary is the unary level of the precedence ladder and defers
// straight to parsePostfix: Stamp has no unary minus operator, matching
// the closed instruction set's lack of one. Negative integer literals are
// written as `0 - 5`.
func (p *Parser) parseUnary() (ast.Expression, error) {
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (ast.Expression, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur.Kind {
		case token.Dot:
			if err := p.advance(); err != nil {
				return nil, err
			}
			nameTok, err := p.expect(token.Ident)
			if err != nil {
				return nil, err
			}
			send := &ast.Send{Pos: nameTok.Pos, Receiver: expr, Msg: nameTok.Literal}
			if p.cur.Kind == token.LParen {
				if err := p.advance(); err != nil {
					return nil, err
				}
				if p.cur.Kind != token.RParen {
					arg, err := p.parseSendArgument(nameTok.Literal)
					if err != nil {
						return nil, err
					}
					send.Arg = arg
				}
				if _, err := p.expect(token.RParen); err != nil {
					return nil, err
				}
			}
			expr = send
		case token.LParen:
			pos := p.cur.Pos
			if err := p.advance(); err != nil {
				return nil, err
			}
			var args []ast.Expression
			for p.cur.Kind != token.RParen {
				arg, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if p.cur.Kind == token.Comma {
					if err := p.advance(); err != nil {
						return nil, err
					}
				}
			}
			if _, err := p.expect(token.RParen); err != nil {
				return nil, err
			}
			expr = &ast.FnCall{Pos: pos, Callee: expr, Args: args}
		default:
			return expr, nil
		}
	}
}

// sendArgTakesLiteralStamp reports whether msg's default-store handler reads
// its Send's stamp as raw text (a type name for clone, a literal spelling
// for store_value) rather than dereferencing a register. Every other
// message (get, push, the comparison and arithmetic operators, any
// prototype's own message) expects an actual object, so its argument must
// always be lowered to a register regardless of how simply it's spelled.
func sendArgTakesLiteralStamp(msg string) bool {
	switch msg {
	case "clone", "store_value":
		return true
	default:
		return false
	}
}

// parseSendArgument parses a Send's single optional argument. For msg
// targets whose default store wants the stamp itself (clone, store_value),
// a bare identifier or literal with nothing chained onto it parses as the
// Value shorthand, matching the compiler's inline-stamp optimization. Every
// other msg always gets a fully general expression, so its result lands in
// a register even when the source text is just a name.
func (p *Parser) parseSendArgument(msg string) (ast.Expression, error) {
	if !sendArgTakesLiteralStamp(msg) {
		return p.parseExpression()
	}
	switch p.cur.Kind {
	case token.Ident:
		if p.peek.Kind == token.Dot || p.peek.Kind == token.LParen {
			return p.parseExpression()
		}
		tok := p.cur
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.Value{Pos: tok.Pos, Literal: tok.Literal}, nil
	case token.Int, token.Char, token.String:
		if p.peek.Kind == token.Dot {
			return p.parseExpression()
		}
		tok := p.cur
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.Value{Pos: tok.Pos, Literal: tok.Literal}, nil
	default:
		return p.parseExpression()
	}
}

func (p *Parser) parsePrimary() (ast.Expression, error) {
	switch p.cur.Kind {
	case token.Ident:
		tok := p.cur
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.Ident{Pos: tok.Pos, Name: tok.Literal}, nil
	case token.Int:
		tok := p.cur
		if _, err := strconv.ParseInt(tok.Literal, 10, 32); err != nil {
			return nil, kind.Wrap(kind.ParsingError, err, "invalid integer literal %q at line %d", tok.Literal, tok.Pos.Line)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.Int{Pos: tok.Pos, Value: tok.Literal}, nil
	case token.Char:
		tok := p.cur
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.Char{Pos: tok.Pos, Value: tok.Literal}, nil
	case token.String:
		tok := p.cur
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.String{Pos: tok.Pos, Value: tok.Literal}, nil
	case token.LBracket:
		return p.parseVec()
	case token.Fn:
		return p.parseFnLit()
	case token.LParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RParen); err != nil {
			return nil, err
		}
		return expr, nil
	default:
		return nil, kind.New(kind.ParsingError, "unexpected token %s (%q) at line %d", p.cur.Kind, p.cur.Literal, p.cur.Pos.Line)
	}
}

func (p *Parser) parseVec() (ast.Expression, error) {
	pos := p.cur.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	v := &ast.Vec{Pos: pos}
	for p.cur.Kind != token.RBracket {
		elem, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		v.Elements = append(v.Elements, elem)
		if p.cur.Kind == token.Comma {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	return v, p.advance()
}

func (p *Parser) parseFnLit() (ast.Expression, error) {
	pos := p.cur.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	var name string
	if p.cur.Kind == token.Ident {
		name = p.cur.Literal
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	var params []string
	for p.cur.Kind != token.RParen {
		nameTok, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		params = append(params, nameTok.Literal)
		if p.cur.Kind == token.Comma {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.FnLit{Pos: pos, Name: name, Params: params, Body: body}, nil
}
