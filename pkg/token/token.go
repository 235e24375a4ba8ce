// Package token defines the lexical token set the lexer produces and the
// parser consumes.
package token

// Kind identifies the lexical category of a Token.
type Kind int

const (
	EOF Kind = iota
	Illegal

	Ident
	Int
	Char
	String

	Mut
	Fn
	If
	Else
	While
	Break
	Continue
	Use

	Dot       // .  (message send: recv.msg)
	Semicolon // ;  (statement terminator)
	Comma     // ,
	Assign    // :=
	LParen    // (
	RParen    // )
	LBrace    // {
	RBrace    // }
	LBracket  // [
	RBracket  // ]

	Plus     // +
	Minus    // -
	Star     // *
	Slash    // /
	Percent  // %
	Shl      // <<
	Shr      // >>
	Amp      // &
	Pipe     // |
	Caret    // ^  (xor; lowers to the default store "><")
	Lt       // <
	LtEq     // <=
	Gt       // >
	GtEq     // >=
	EqEq     // ==
	NotEq    // !=
)

var names = map[Kind]string{
	EOF: "EOF", Illegal: "ILLEGAL",
	Ident: "IDENT", Int: "INT", Char: "CHAR", String: "STRING",
	Mut: "mut", Fn: "fn", If: "if", Else: "else", While: "while",
	Break: "break", Continue: "continue", Use: "use",
	Dot: ".", Semicolon: ";", Comma: ",", Assign: ":=",
	LParen: "(", RParen: ")", LBrace: "{", RBrace: "}", LBracket: "[", RBracket: "]",
	Plus: "+", Minus: "-", Star: "*", Slash: "/", Percent: "%",
	Shl: "<<", Shr: ">>", Amp: "&", Pipe: "|", Caret: "^",
	Lt: "<", LtEq: "<=", Gt: ">", GtEq: ">=", EqEq: "==", NotEq: "!=",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return "UNKNOWN"
}

var keywords = map[string]Kind{
	"mut": Mut, "fn": Fn, "if": If, "else": Else, "while": While,
	"break": Break, "continue": Continue, "use": Use,
}

// LookupIdent returns the keyword Kind for an identifier's text, or Ident
// if it isn't a keyword.
func LookupIdent(text string) Kind {
	if k, ok := keywords[text]; ok {
		return k
	}
	return Ident
}

// BinaryMessage maps an operator token directly to the default-store
// message name it sends — every binary operator in Stamp desugars to a
// Send with no special-cased bytecode of its own. Caret is the one
// deliberate departure from its source spelling: the closed default-store
// table spells bitwise xor "><", so the lexer's single '^' token is
// translated here rather than carried through as a distinct wire message.
var BinaryMessage = map[Kind]string{
	Plus: "+", Minus: "-", Star: "*", Slash: "/", Percent: "%",
	Shl: "<<", Shr: ">>", Amp: "&", Pipe: "|", Caret: "><",
	Lt: "<", LtEq: "<=", Gt: ">", GtEq: ">=", EqEq: "==", NotEq: "!=",
}

// Position is a 1-indexed line/column location in source text.
type Position struct {
	Line   int
	Column int
}

// Token is one lexical unit: its kind, the literal text that produced it
// (for identifiers, Int/Char/String payloads — unquoted/unescaped already),
// and its source position for diagnostics.
type Token struct {
	Kind    Kind
	Literal string
	Pos     Position
}
