package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stamplang/stamp/pkg/ast"
)

func parseProgram(t *testing.T, src string) *ast.Program {
	t.Helper()
	p, err := New(src, nil)
	require.NoError(t, err)
	prog, err := p.ParseProgram()
	require.NoError(t, err)
	return prog
}

func TestParsesMutableDeclarationAndReassignment(t *testing.T) {
	prog := parseProgram(t, `mut i := 0; i := i + 1;`)
	require.Len(t, prog.Statements, 2)

	decl := prog.Statements[0].(*ast.Assign)
	require.True(t, decl.Mut)
	require.Equal(t, "i", decl.Name)
	require.IsType(t, &ast.Int{}, decl.Value)

	reassign := prog.Statements[1].(*ast.Assign)
	require.False(t, reassign.Mut)
	send, ok := reassign.Value.(*ast.Send)
	require.True(t, ok)
	require.Equal(t, "+", send.Msg)
}

func TestParsesMessageSendWithShorthandValueArgument(t *testing.T) {
	prog := parseProgram(t, `a := Object.clone(Point);`)
	assign := prog.Statements[0].(*ast.Assign)
	send := assign.Value.(*ast.Send)
	require.Equal(t, "clone", send.Msg)
	val, ok := send.Arg.(*ast.Value)
	require.True(t, ok)
	require.Equal(t, "Point", val.Literal)
}

func TestParsesGetWithBareIdentifierArgumentAlwaysLowersToRegister(t *testing.T) {
	// get's default store dereferences a register, so even a bare
	// identifier argument must fall back to the full expression path —
	// unlike clone/store_value, get never takes the Value shorthand.
	prog := parseProgram(t, `first := v.get(i);`)
	assign := prog.Statements[0].(*ast.Assign)
	send := assign.Value.(*ast.Send)
	require.Equal(t, "get", send.Msg)
	_, ok := send.Arg.(*ast.Ident)
	require.True(t, ok, "argument should be lowered as a full Ident expression, not a Value shorthand")
}

func TestParsesSendWithFullExpressionArgumentFallsBackFromShorthand(t *testing.T) {
	prog := parseProgram(t, `a := x.push(y.get(0));`)
	assign := prog.Statements[0].(*ast.Assign)
	send := assign.Value.(*ast.Send)
	require.Equal(t, "push", send.Msg)
	_, ok := send.Arg.(*ast.Send)
	require.True(t, ok, "argument should be lowered as a full Send, not a Value shorthand")
}

func TestParsesFnCallWithMultipleArguments(t *testing.T) {
	prog := parseProgram(t, `result := add(a, b);`)
	assign := prog.Statements[0].(*ast.Assign)
	call := assign.Value.(*ast.FnCall)
	require.Len(t, call.Args, 2)
}

func TestParsesFnLiteralAndBinding(t *testing.T) {
	prog := parseProgram(t, `sq := fn(n) { result := n * n; };`)
	assign := prog.Statements[0].(*ast.Assign)
	lit := assign.Value.(*ast.FnLit)
	require.Empty(t, lit.Name)
	require.Equal(t, []string{"n"}, lit.Params)
	require.Len(t, lit.Body.Statements, 1)
}

func TestParsesNamedFnDeclarationWithoutTrailingSemicolon(t *testing.T) {
	prog := parseProgram(t, `
fn sq(n) { n * n; }
r := sq(5);
`)
	require.Len(t, prog.Statements, 2)
	decl := prog.Statements[0].(*ast.ExprStatement)
	lit := decl.Expr.(*ast.FnLit)
	require.Equal(t, "sq", lit.Name)
	require.Equal(t, []string{"n"}, lit.Params)
}

func TestParsesIfElseAndWhile(t *testing.T) {
	prog := parseProgram(t, `
if (a < b) {
	break;
} else {
	continue;
}
while (a < b) {
	a := a + 1;
}
`)
	require.Len(t, prog.Statements, 2)
	ifStmt := prog.Statements[0].(*ast.If)
	require.NotNil(t, ifStmt.ElseBlock)
	require.IsType(t, &ast.Break{}, ifStmt.Then.Statements[0])
	require.IsType(t, &ast.Continue{}, ifStmt.ElseBlock.Statements[0])

	whileStmt := prog.Statements[1].(*ast.While)
	require.Len(t, whileStmt.Body.Statements, 1)
}

func TestParsesVecLiteral(t *testing.T) {
	prog := parseProgram(t, `v := [1, 2, 3];`)
	assign := prog.Statements[0].(*ast.Assign)
	vec := assign.Value.(*ast.Vec)
	require.Len(t, vec.Elements, 3)
}

type stubIncluder struct{ files map[string]string }

func (s stubIncluder) IncludeFrom(path string) (string, error) { return s.files[path], nil }

func TestUseSplicesIncludedStatements(t *testing.T) {
	inc := stubIncluder{files: map[string]string{"helpers": `helper := 1;`}}
	p, err := New(`use "helpers"; main := 2;`, inc)
	require.NoError(t, err)
	prog, err := p.ParseProgram()
	require.NoError(t, err)
	require.Len(t, prog.Statements, 2)
	require.Equal(t, "helper", prog.Statements[0].(*ast.Assign).Name)
	require.Equal(t, "main", prog.Statements[1].(*ast.Assign).Name)
}

func TestUnterminatedBlockIsParsingError(t *testing.T) {
	p, err := New(`if (a) { b := 1;`, nil)
	require.NoError(t, err)
	_, err = p.ParseProgram()
	require.Error(t, err)
	require.Contains(t, err.Error(), "ParsingError")
}

func TestSecondDeclarationOfImmutableNameStillParses(t *testing.T) {
	// Rebinding an immutable name is a runtime ExecutionError, not a parse
	// error — the grammar can't see the difference between a fresh
	// declaration and a reassignment of an already-bound immutable name.
	prog := parseProgram(t, `a := 1; a := 2;`)
	require.Len(t, prog.Statements, 2)
}
