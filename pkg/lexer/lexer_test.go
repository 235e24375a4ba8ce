package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stamplang/stamp/pkg/token"
)

func lexAll(t *testing.T, input string) []token.Token {
	t.Helper()
	l := New(input)
	var toks []token.Token
	for {
		tok, err := l.NextToken()
		require.NoError(t, err)
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			return toks
		}
	}
}

func TestLexesDeclarationAndArithmetic(t *testing.T) {
	toks := lexAll(t, `mut i := 0; i := i + 1;`)

	kinds := make([]token.Kind, 0, len(toks))
	for _, tk := range toks {
		kinds = append(kinds, tk.Kind)
	}

	require.Equal(t, []token.Kind{
		token.Mut, token.Ident, token.Assign, token.Int, token.Semicolon,
		token.Ident, token.Assign, token.Ident, token.Plus, token.Int, token.Semicolon,
		token.EOF,
	}, kinds)
}

func TestLexesMessageSendAndFnCall(t *testing.T) {
	toks := lexAll(t, `a.push(b). sq(4).`)

	kinds := make([]token.Kind, 0, len(toks))
	for _, tk := range toks {
		kinds = append(kinds, tk.Kind)
	}

	require.Equal(t, []token.Kind{
		token.Ident, token.Dot, token.Ident, token.LParen, token.Ident, token.RParen, token.Dot,
		token.Ident, token.LParen, token.Int, token.RParen, token.Dot,
		token.EOF,
	}, kinds)
}

func TestLexesStringSpanningLinesAndChar(t *testing.T) {
	toks := lexAll(t, "\"a string\nspanning lines\"\n'x' \"hello\"")

	require.Equal(t, token.String, toks[0].Kind)
	require.Equal(t, "a string\nspanning lines", toks[0].Literal)
	require.Equal(t, token.Char, toks[1].Kind)
	require.Equal(t, "x", toks[1].Literal)
	require.Equal(t, token.String, toks[2].Kind)
	require.Equal(t, "hello", toks[2].Literal)
	require.Equal(t, token.EOF, toks[3].Kind)
}

func TestLexesLineComment(t *testing.T) {
	toks := lexAll(t, "// a line comment\n1;")
	require.Equal(t, token.Int, toks[0].Kind)
	require.Equal(t, "1", toks[0].Literal)
}

func TestUnterminatedStringIsLexingError(t *testing.T) {
	l := New(`"unterminated`)
	_, err := l.NextToken()
	require.Error(t, err)
	require.Contains(t, err.Error(), "LexingError")
}

func TestCaretLexesAsCaretToken(t *testing.T) {
	toks := lexAll(t, "a^b;")
	require.Equal(t, token.Caret, toks[1].Kind)
}

func TestShiftOperators(t *testing.T) {
	toks := lexAll(t, "a << b >> c;")
	require.Equal(t, token.Shl, toks[1].Kind)
	require.Equal(t, token.Shr, toks[3].Kind)
}
