package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stamplang/stamp/pkg/ast"
	"github.com/stamplang/stamp/pkg/bytecode"
	"github.com/stamplang/stamp/pkg/parser"
)

func compileSource(t *testing.T, src string) *bytecode.Program {
	t.Helper()
	p, err := parser.New(src, nil)
	require.NoError(t, err)
	prog, err := p.ParseProgram()
	require.NoError(t, err)
	bc, err := Compile(prog, nil)
	require.NoError(t, err)
	return bc
}

func lastInstruction(b *bytecode.BasicBlock) bytecode.Instruction {
	return b.Instructions[len(b.Instructions)-1]
}

func TestCompileAssignLowersArithmeticIntoOneBlock(t *testing.T) {
	bc := compileSource(t, `a := 3 + 4;`)
	require.Len(t, bc.Blocks, 1)
	require.IsType(t, &bytecode.Store{}, lastInstruction(bc.Blocks[0]))

	var sends int
	for _, instr := range bc.Blocks[0].Instructions {
		if _, ok := instr.(*bytecode.Send); ok {
			sends++
		}
	}
	// clone+store_value for each literal (4), plus the "+" send itself.
	require.Equal(t, 5, sends)
}

func TestCompileProgramOpensExactlyOneGlobalScope(t *testing.T) {
	bc := compileSource(t, `a := 1; b := 2; c := a + b;`)
	require.Len(t, bc.Scopes, 1)
	require.True(t, bc.Scopes[0].IsGlobal)
	require.Equal(t, bytecode.BlockIndex(0), bc.Scopes[0].Beginning)
}

func TestCompileIfElseSharesEnclosingScope(t *testing.T) {
	bc := compileSource(t, `mut x := 0; if (x) { x := 1; } else { x := 2; }`)
	// Only the global scope — If never opens one of its own, per the
	// shared-scope rule in ast.Block's doc comment.
	require.Len(t, bc.Scopes, 1)
	require.True(t, bc.Scopes[0].IsGlobal)
}

func TestCompileIfWithoutElseSkipsThenOnFalse(t *testing.T) {
	bc := compileSource(t, `mut x := 0; if (x) { x := 1; }`)
	var jf *bytecode.JumpFalse
	for _, instr := range bc.Blocks[0].Instructions {
		if j, ok := instr.(*bytecode.JumpFalse); ok {
			jf = j
		}
	}
	require.NotNil(t, jf)
	require.Equal(t, bytecode.BlockIndex(len(bc.Blocks)-1), jf.Target)
}

func TestCompileIfElseBranchesCannotBothRun(t *testing.T) {
	bc := compileSource(t, `mut x := 0; if (x) { x := 1; } else { x := 2; }`)

	var jf *bytecode.JumpFalse
	var skip *bytecode.Jump
	for _, instr := range bc.Blocks[0].Instructions {
		switch i := instr.(type) {
		case *bytecode.JumpFalse:
			jf = i
		case *bytecode.Jump:
			skip = i
		}
	}
	require.NotNil(t, jf, "else branch must be reachable only by falling through false")
	require.NotNil(t, skip, "then branch must jump past else once finished")
	require.NotEqual(t, jf.Target, bytecode.BlockIndex(0), "false branch must not target block 0 itself")
	require.Equal(t, bytecode.BlockIndex(len(bc.Blocks)-1), skip.Target, "then branch must jump past else to the tail block")
	require.Equal(t, skip.Target-1, jf.Target, "false must land on the else block, which falls through into the tail")
}

func TestCompileWhileOpensLoopScopeAndPatchesBreak(t *testing.T) {
	bc := compileSource(t, `mut i := 0; while (i) { break; }`)
	require.Len(t, bc.Scopes, 2)

	loop := bc.Scopes[1]
	require.True(t, loop.Flags.Has(bytecode.CanBreak))
	require.True(t, loop.Flags.Has(bytecode.CanContinue))
	require.False(t, loop.IsGlobal)

	// The loop's tail is the second-to-last block; the last one is the
	// empty block compileWhile opens for whatever follows the loop.
	tailBlock := bc.Blocks[len(bc.Blocks)-2]
	require.Equal(t, bytecode.BlockIndex(tailBlock.Index), loop.BreakDest)

	// The body block holds two Jumps: the break first, then the loop's own
	// back edge to the condition block.
	var brk *bytecode.Jump
	for _, instr := range bc.Blocks[loop.Beginning].Instructions {
		if j, ok := instr.(*bytecode.Jump); ok {
			brk = j
			break
		}
	}
	require.NotNil(t, brk)
	require.Equal(t, loop.BreakDest, brk.Target, "break must be back-patched to the loop's tail block")
}

func TestCompileWhileBackEdgeTargetsConditionBlock(t *testing.T) {
	bc := compileSource(t, `mut i := 0; while (i) { i := i; }`)
	loop := bc.Scopes[1]
	condBlock := loop.Beginning - 1

	// The scope's last block is the loop's tail; the block before it ends
	// in the back edge to the condition.
	require.Equal(t, loop.BreakDest, loop.End)
	backEdge := lastInstruction(bc.Blocks[loop.End-1])
	j, ok := backEdge.(*bytecode.Jump)
	require.True(t, ok)
	require.Equal(t, condBlock, j.Target)
	require.Equal(t, condBlock, loop.ContinueDest)
}

func TestCompileBreakOutsideLoopIsBytecodeGenerationError(t *testing.T) {
	prog := &ast.Program{Statements: []ast.Statement{&ast.Break{}}}
	_, err := Compile(prog, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "BytecodeGenerationError")
}

func TestCompileContinueOutsideLoopIsBytecodeGenerationError(t *testing.T) {
	prog := &ast.Program{Statements: []ast.Statement{&ast.Continue{}}}
	_, err := Compile(prog, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "BytecodeGenerationError")
}

func TestCompileFnLitBodyEndsInJumpSaved(t *testing.T) {
	bc := compileSource(t, `sq := fn(n) { result := n; };`)

	var bodyEnd *bytecode.LexicalScope
	for _, s := range bc.Scopes {
		if s.Flags.Has(bytecode.CanReturn) {
			bodyEnd = s
		}
	}
	require.NotNil(t, bodyEnd)
	require.IsType(t, &bytecode.JumpSaved{}, lastInstruction(bc.Blocks[bodyEnd.End]))
}

func TestCompileFnLitSkipsOverItsOwnBodyAtDefinitionSite(t *testing.T) {
	bc := compileSource(t, `sq := fn(n) { result := n; };`)
	var skip *bytecode.Jump
	for _, instr := range bc.Blocks[0].Instructions {
		if j, ok := instr.(*bytecode.Jump); ok {
			skip = j
		}
	}
	require.NotNil(t, skip, "defining a function must not fall into its own body")
	require.Greater(t, int(skip.Target), 0)
}

func TestCompileFnCallEmitsPassParamPerArgumentThenCall(t *testing.T) {
	bc := compileSource(t, `sq := fn(n) { result := n; }; r := sq(5);`)

	var passParams, calls int
	for _, b := range bc.Blocks {
		for _, instr := range b.Instructions {
			send, ok := instr.(*bytecode.Send)
			if !ok {
				continue
			}
			switch send.Msg {
			case "pass_param":
				passParams++
			case "call":
				calls++
			}
		}
	}
	require.Equal(t, 1, passParams)
	require.Equal(t, 1, calls)
}

func TestCompileFnCallOpensFreshBlockForCallSiteContinuation(t *testing.T) {
	bc := compileSource(t, `sq := fn(n) { result := n; }; r := sq(5);`)

	for i, b := range bc.Blocks {
		for _, instr := range b.Instructions {
			if send, ok := instr.(*bytecode.Send); ok && send.Msg == "call" {
				require.Less(t, i+1, len(bc.Blocks), "a block must exist right after the call for its continuation")
			}
		}
	}
}

func TestCompileVecPushesElementsInOrder(t *testing.T) {
	bc := compileSource(t, `v := [1, 2, 3];`)
	var pushes int
	for _, instr := range bc.Blocks[0].Instructions {
		if send, ok := instr.(*bytecode.Send); ok && send.Msg == "push" {
			pushes++
		}
	}
	require.Equal(t, 3, pushes)
}

func TestCompileLiteralStampNamesLiteralValue(t *testing.T) {
	bc := compileSource(t, `a := 3;`)
	var clone *bytecode.Send
	for _, instr := range bc.Blocks[0].Instructions {
		if send, ok := instr.(*bytecode.Send); ok && send.Msg == "clone" {
			clone = send
		}
	}
	require.NotNil(t, clone)
	require.Equal(t, bytecode.StampString, clone.Stamp.Kind)
	require.Equal(t, "::lit_3", clone.Stamp.String)
}

func TestCompileUseReachingCompilerUnresolvedIsError(t *testing.T) {
	prog := &ast.Program{Statements: []ast.Statement{&ast.Use{Path: "helpers"}}}
	_, err := Compile(prog, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "BytecodeGenerationError")
}

func TestCompileStatementsExtendsAlreadyOpenGlobalScope(t *testing.T) {
	c := New(nil)
	c.AddBasicBlock()
	scope := c.AddScopeBeginningCurrentBB(0, true)

	p1, err := parser.New(`a := 1;`, nil)
	require.NoError(t, err)
	prog1, err := p1.ParseProgram()
	require.NoError(t, err)
	require.NoError(t, c.CompileStatements(prog1.Statements))

	p2, err := parser.New(`b := a + 1;`, nil)
	require.NoError(t, err)
	prog2, err := p2.ParseProgram()
	require.NoError(t, err)
	require.NoError(t, c.CompileStatements(prog2.Statements))

	require.False(t, scope.End != 0 && scope.End < bytecode.BlockIndex(c.NumBasicBlocks()-1),
		"a REPL-style scope never closes mid-session")
}
