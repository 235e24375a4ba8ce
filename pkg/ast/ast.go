// Package ast defines the abstract syntax tree the parser produces and the
// compiler lowers to bytecode.
package ast

import "github.com/stamplang/stamp/pkg/token"

// Node is implemented by every AST node.
type Node interface {
	TokenLiteral() string
}

// Expression is a node that produces a value when lowered.
type Expression interface {
	Node
	expressionNode()
}

// Statement is a node compiled for effect; its value, if any, is discarded.
type Statement interface {
	Node
	statementNode()
}

// Program is the root node: a flat sequence of top-level statements,
// compiled into the single global lexical scope.
type Program struct {
	Statements []Statement
}

func (p *Program) TokenLiteral() string {
	if len(p.Statements) > 0 {
		return p.Statements[0].TokenLiteral()
	}
	return ""
}

// Block is a brace-delimited statement sequence, used for if/while bodies
// and function literals. It is not itself a lexical scope boundary in
// every position it appears — If's branches share their enclosing scope,
// while While's body and a function's body each open their own.
type Block struct {
	Pos        token.Position
	Statements []Statement
}

func (b *Block) TokenLiteral() string { return "{" }

// Ident is a bare name reference, lowered to a Load.
type Ident struct {
	Pos  token.Position
	Name string
}

func (i *Ident) TokenLiteral() string { return i.Name }
func (i *Ident) expressionNode()      {}

// Value is the stamp-shorthand leaf: a raw token spelling (an identifier
// or a literal's source text) used only as the sole argument of a Send,
// so the compiler can emit it as an inline StampString instead of
// allocating and lowering a full literal object first. It is never valid
// anywhere an Expression is otherwise expected — the parser only produces
// it in Send argument position.
type Value struct {
	Pos     token.Position
	Literal string
}

func (v *Value) TokenLiteral() string { return v.Literal }
func (v *Value) expressionNode()      {}

// Int is an integer literal.
type Int struct {
	Pos   token.Position
	Value string
}

func (n *Int) TokenLiteral() string { return n.Value }
func (n *Int) expressionNode()      {}

// Char is a single-character literal.
type Char struct {
	Pos   token.Position
	Value string
}

func (c *Char) TokenLiteral() string { return c.Value }
func (c *Char) expressionNode()      {}

// String is a string literal.
type String struct {
	Pos   token.Position
	Value string
}

func (s *String) TokenLiteral() string { return s.Value }
func (s *String) expressionNode()      {}

// Vec is a bracketed literal vector: [a, b, c].
type Vec struct {
	Pos      token.Position
	Elements []Expression
}

func (v *Vec) TokenLiteral() string { return "[" }
func (v *Vec) expressionNode()      {}

// Send is a message send: Receiver.Msg or Receiver.Msg(Arg). Arg is nil
// for a unary send; the closed instruction set allows at most one.
type Send struct {
	Pos      token.Position
	Receiver Expression
	Msg      string
	Arg      Expression
}

func (s *Send) TokenLiteral() string { return s.Msg }
func (s *Send) expressionNode()      {}

// FnCall is a multi-argument function invocation: Callee(Args...),
// distinct from Send because it lowers to clone_callable's pass_param/call
// protocol rather than a single Send.
type FnCall struct {
	Pos    token.Position
	Callee Expression
	Args   []Expression
}

func (f *FnCall) TokenLiteral() string { return "(" }
func (f *FnCall) expressionNode()      {}

// FnLit is a function literal: fn(params...) { body }, or the named
// declaration form fn name(params...) { body }. A named literal's
// clone_callable send carries the name, which registers the callable in
// the enclosing scope's Context — so the named form needs no separate
// Assign. The name becomes the callable's type only when it begins with an
// uppercase letter; otherwise the type stays "Callable". Name is empty for
// the anonymous form.
type FnLit struct {
	Pos    token.Position
	Name   string
	Params []string
	Body   *Block
}

func (f *FnLit) TokenLiteral() string { return "fn" }
func (f *FnLit) expressionNode()      {}

// Assign binds Name to Value. Mut is true only at the declaring
// occurrence (the one syntactically marked with the mut keyword); every
// later reassignment of the same name parses to an Assign with Mut false,
// and the interpreter resolves the name to its declaring binding, whose
// recorded mutability governs the rebind.
type Assign struct {
	Pos   token.Position
	Name  string
	Mut   bool
	Value Expression
}

func (a *Assign) TokenLiteral() string { return a.Name }
func (a *Assign) statementNode()       {}

// ExprStatement is an expression evaluated for effect, its result
// discarded — the only way to call a function or send a message without
// binding the result to a name.
type ExprStatement struct {
	Pos  token.Position
	Expr Expression
}

func (e *ExprStatement) TokenLiteral() string { return e.Expr.TokenLiteral() }
func (e *ExprStatement) statementNode()       {}

// If is a conditional with an optional else branch.
type If struct {
	Pos       token.Position
	Cond      Expression
	Then      *Block
	ElseBlock *Block
}

func (i *If) TokenLiteral() string { return "if" }
func (i *If) statementNode()       {}

// While is a pre-tested loop; its body is its own lexical scope granting
// CanBreak and CanContinue.
type While struct {
	Pos  token.Position
	Cond Expression
	Body *Block
}

func (w *While) TokenLiteral() string { return "while" }
func (w *While) statementNode()       {}

// Break and Continue jump to the nearest enclosing scope granting the
// corresponding capability; the compiler raises a BytecodeGenerationError
// if neither statement has one in scope.
type Break struct {
	Pos token.Position
}

func (b *Break) TokenLiteral() string { return "break" }
func (b *Break) statementNode()       {}

type Continue struct {
	Pos token.Position
}

func (c *Continue) TokenLiteral() string { return "continue" }
func (c *Continue) statementNode()       {}

// Use textually includes another source file's top-level statements at
// this point, resolved by the parser's IncludeFrom collaborator before
// compilation ever sees the combined program.
type Use struct {
	Pos  token.Position
	Path string
}

func (u *Use) TokenLiteral() string { return "use" }
func (u *Use) statementNode()       {}
