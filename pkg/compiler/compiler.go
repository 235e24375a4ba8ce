// Package compiler lowers a pkg/ast tree into the register-based bytecode
// of pkg/bytecode: a list of basic blocks plus a stack of lexical scopes.
//
// Architecture:
//
// The Compiler (called "the generator" in the design this package follows)
// owns three pieces of growing state: the block list, the finalized scope
// list, and a monotonic register counter. Lowering a node never looks
// backward into already-emitted instructions except through a pointer the
// caller kept to an instruction it appended, so a caller (If, While) can
// patch a jump target once the rest of the branch has been lowered.
//
// Scopes are added to the scope list and pushed onto an in-progress stack
// as they open, and popped off that stack (their End set) as they close.
// A loop's ContinueDest is
// known before its body is lowered (the condition block already exists),
// but its BreakDest is only known once the body has finished and the tail
// block has been allocated, so Break instructions are back-patched: each
// one is recorded against its owning scope and fixed up once that scope's
// loop allocates its exit block.
//
// Example:
//
//	Source: a := 3 + 4;
//
//	Block 0:
//	  Load    r0, "Int"
//	  Send    r1, r0, "clone", stamp=string("::lit_3")
//	  Send    r2, r1, "store_value", stamp=string("3")
//	  Load    r3, "Int"
//	  Send    r4, r3, "clone", stamp=string("::lit_4")
//	  Send    r5, r4, "store_value", stamp=string("4")
//	  Send    r6, r2, "+", stamp=register(r5)
//	  Load    r7, "default"
//	  Store   r7, "a", r6, mutable=false
package compiler

import (
	"fmt"

	"github.com/stamplang/stamp/pkg/ast"
	"github.com/stamplang/stamp/pkg/bytecode"
	"github.com/stamplang/stamp/pkg/kind"
)

// Includer resolves a `use` reference, mirroring parser.Includer so a
// Compiler can also serve directly as the include hook for callers
// lowering an AST they built without going through pkg/parser.
type Includer interface {
	IncludeFrom(path string) (string, error)
}

// scopeFrame is the in-progress half of an open LexicalScope: the pending
// Jump instructions emitted by Break inside it, waiting on this scope's
// BreakDest to become known.
type scopeFrame struct {
	scope         *bytecode.LexicalScope
	pendingBreaks []*bytecode.Jump
}

// Compiler walks an AST and emits bytecode.BasicBlocks and
// bytecode.LexicalScopes. It is not reusable across programs: build one
// with New per compilation.
type Compiler struct {
	blocks  []*bytecode.BasicBlock
	scopes  []*bytecode.LexicalScope
	frames  []scopeFrame
	nextReg bytecode.Register

	seenNonGlobalScope bool
	includer           Includer
}

// New builds an empty Compiler, optionally configured with an Includer.
func New(includer Includer) *Compiler {
	return &Compiler{includer: includer}
}

// NextRegister allocates and returns a fresh register.
func (c *Compiler) NextRegister() bytecode.Register {
	r := c.nextReg
	c.nextReg++
	return r
}

// AddBasicBlock appends a new, empty block and returns it. Its index is
// always len(blocks)-1 at the moment of creation and never changes.
func (c *Compiler) AddBasicBlock() *bytecode.BasicBlock {
	b := &bytecode.BasicBlock{Index: bytecode.BlockIndex(len(c.blocks))}
	c.blocks = append(c.blocks, b)
	return b
}

func (c *Compiler) currentBlock() *bytecode.BasicBlock {
	return c.blocks[len(c.blocks)-1]
}

func (c *Compiler) currentBlockIndex() bytecode.BlockIndex {
	return bytecode.BlockIndex(len(c.blocks) - 1)
}

// Append appends instr to the current block.
func (c *Compiler) Append(instr bytecode.Instruction) {
	b := c.currentBlock()
	b.Instructions = append(b.Instructions, instr)
}

// AddScopeBeginning opens a fresh block and a scope that begins on it.
func (c *Compiler) AddScopeBeginning(flags bytecode.ScopeFlags, canBeGlobal bool) *bytecode.LexicalScope {
	c.AddBasicBlock()
	return c.AddScopeBeginningCurrentBB(flags, canBeGlobal)
}

// AddScopeBeginningCurrentBB opens a scope beginning on the current block.
// A scope requested with canBeGlobal is itself global only if no
// non-global scope has opened yet anywhere in the compilation — the
// hoisting rule that lets the outermost statement list and everything
// spliced into it by use share the single global Context.
func (c *Compiler) AddScopeBeginningCurrentBB(flags bytecode.ScopeFlags, canBeGlobal bool) *bytecode.LexicalScope {
	isGlobal := canBeGlobal && !c.seenNonGlobalScope
	if !isGlobal {
		c.seenNonGlobalScope = true
	}

	s := &bytecode.LexicalScope{
		Beginning: c.currentBlockIndex(),
		Flags:     flags,
		IsGlobal:  isGlobal,
	}
	c.scopes = append(c.scopes, s)
	c.frames = append(c.frames, scopeFrame{scope: s})
	return s
}

// EndScope closes the innermost open scope, setting its End to the current
// block. The caller must pass the same *LexicalScope AddScopeBeginning
// returned, and scopes must close in LIFO order (their strict-nesting
// invariant). The Jump instructions recorded against this scope by Break
// are returned for the caller to patch once it knows the loop's exit
// block — see compileWhile.
func (c *Compiler) EndScope(s *bytecode.LexicalScope) []*bytecode.Jump {
	top := len(c.frames) - 1
	if top < 0 || c.frames[top].scope != s {
		panic("compiler: EndScope called out of LIFO order")
	}
	s.End = c.currentBlockIndex()
	pending := c.frames[top].pendingBreaks
	c.frames = c.frames[:top]
	return pending
}

// IncludeFrom resolves a `use` path through the configured Includer.
func (c *Compiler) IncludeFrom(path string) (string, error) {
	if c.includer == nil {
		return "", kind.New(kind.BytecodeGenerationError, "use %q: no includer configured", path)
	}
	return c.includer.IncludeFrom(path)
}

// Program returns the finished output: blocks plus scopes, ready for
// bytecode.Write or direct interpretation.
func (c *Compiler) Program() *bytecode.Program {
	return &bytecode.Program{Blocks: c.blocks, Scopes: c.scopes}
}

// NumBasicBlocks reports how many blocks have been created so far.
func (c *Compiler) NumBasicBlocks() int { return len(c.blocks) }

// Compile lowers an entire program: a global scope wrapping every
// top-level statement.
func Compile(prog *ast.Program, includer Includer) (*bytecode.Program, error) {
	c := New(includer)
	c.AddBasicBlock()
	scope := c.AddScopeBeginningCurrentBB(0, true)
	if err := c.compileStatements(prog.Statements); err != nil {
		return nil, err
	}
	c.EndScope(scope)
	return c.Program(), nil
}

// CompileStatements lowers additional top-level statements into whatever
// scope is currently open at the top of the frame stack. A REPL uses this
// directly (instead of the one-shot Compile) to extend a program across
// input lines without ever closing the global scope it opened once at
// startup, so bindings made on one line stay visible on the next.
func (c *Compiler) CompileStatements(stmts []ast.Statement) error {
	return c.compileStatements(stmts)
}

func (c *Compiler) compileStatements(stmts []ast.Statement) error {
	for _, stmt := range stmts {
		if err := c.compileStatement(stmt); err != nil {
			return err
		}
	}
	return nil
}

// compileFnBody lowers a function body the way compileStatements does,
// except that when the body's final statement is a bare ExprStatement its
// result register is reported back to the caller as the function's implicit
// return value — there is no explicit `return` node in the grammar, so the
// value of the last expression, if any, is what JumpSaved hands back to
// get_return_value. A body ending in anything else (an Assign, an If, a
// While, …) has no implicit return value.
func (c *Compiler) compileFnBody(stmts []ast.Statement) (bytecode.Register, bool, error) {
	var lastReg bytecode.Register
	hasRetval := false
	for _, stmt := range stmts {
		if es, ok := stmt.(*ast.ExprStatement); ok {
			reg, err := c.compileExpression(es.Expr)
			if err != nil {
				return 0, false, err
			}
			lastReg, hasRetval = reg, true
			continue
		}
		hasRetval = false
		if err := c.compileStatement(stmt); err != nil {
			return 0, false, err
		}
	}
	return lastReg, hasRetval, nil
}

func (c *Compiler) compileStatement(stmt ast.Statement) error {
	switch s := stmt.(type) {
	case *ast.Assign:
		return c.compileAssign(s)
	case *ast.ExprStatement:
		_, err := c.compileExpression(s.Expr)
		return err
	case *ast.If:
		return c.compileIf(s)
	case *ast.While:
		return c.compileWhile(s)
	case *ast.Break:
		return c.compileBreak(s)
	case *ast.Continue:
		return c.compileContinue(s)
	case *ast.Use:
		return kind.New(kind.BytecodeGenerationError, "use %q reached the compiler unresolved, line %d", s.Path, s.Pos.Line)
	default:
		return kind.New(kind.BytecodeGenerationError, "unsupported statement node %T", stmt)
	}
}

// compileAssign lowers `[mut] name := value;` to evaluating value then
// storing it into the current scope's Context under name. The Context
// register comes from Load "default", the reserved name meaning "the
// innermost active scope's own binding object" per the Load contract.
func (c *Compiler) compileAssign(a *ast.Assign) error {
	valueReg, err := c.compileExpression(a.Value)
	if err != nil {
		return err
	}
	ctxReg := c.NextRegister()
	c.Append(&bytecode.Load{Dst: ctxReg, Name: "default"})
	c.Append(&bytecode.Store{Obj: ctxReg, Key: a.Name, Src: valueReg, Mutable: a.Mut})
	return nil
}

// compileExpression lowers expr and returns the register holding its
// result.
func (c *Compiler) compileExpression(expr ast.Expression) (bytecode.Register, error) {
	switch e := expr.(type) {
	case *ast.Ident:
		dst := c.NextRegister()
		c.Append(&bytecode.Load{Dst: dst, Name: e.Name})
		return dst, nil
	case *ast.Int:
		return c.compileLiteral("Int", e.Value)
	case *ast.Char:
		return c.compileLiteral("Char", e.Value)
	case *ast.String:
		return c.compileLiteral("String", e.Value)
	case *ast.Value:
		// A bare Value only ever appears as a Send argument, lowered
		// directly by compileSend's stamp logic; reaching it here means
		// a caller tried to evaluate it standalone.
		return 0, kind.New(kind.BytecodeGenerationError, "stamp shorthand %q used outside of send argument position, line %d", e.Literal, e.Pos.Line)
	case *ast.Vec:
		return c.compileVec(e)
	case *ast.Send:
		return c.compileSend(e)
	case *ast.FnCall:
		return c.compileFnCall(e)
	case *ast.FnLit:
		return c.compileFnLit(e)
	default:
		return 0, kind.New(kind.BytecodeGenerationError, "unsupported expression node %T", expr)
	}
}

// compileLiteral lowers a basic Int/Char/String literal: load the type
// prototype, clone it tagged with a unique literal name, then store_value
// the source text into it.
func (c *Compiler) compileLiteral(typeName, value string) (bytecode.Register, error) {
	protoReg := c.NextRegister()
	c.Append(&bytecode.Load{Dst: protoReg, Name: typeName})

	cloneReg := c.NextRegister()
	c.Append(&bytecode.Send{
		Dst: cloneReg, Obj: protoReg, Msg: "clone",
		Stamp: bytecode.StringStamp(fmt.Sprintf("::lit_%s", value)),
	})

	valReg := c.NextRegister()
	c.Append(&bytecode.Send{
		Dst: valReg, Obj: cloneReg, Msg: "store_value",
		Stamp: bytecode.StringStamp(value),
	})
	return valReg, nil
}

// compileVec lowers a bracketed literal by cloning the Vec prototype and
// pushing each element onto it in order.
func (c *Compiler) compileVec(v *ast.Vec) (bytecode.Register, error) {
	protoReg := c.NextRegister()
	c.Append(&bytecode.Load{Dst: protoReg, Name: "Vec"})

	vecReg := c.NextRegister()
	c.Append(&bytecode.Send{Dst: vecReg, Obj: protoReg, Msg: "clone", Stamp: bytecode.NoStamp})

	for _, elem := range v.Elements {
		elemReg, err := c.compileExpression(elem)
		if err != nil {
			return 0, err
		}
		pushReg := c.NextRegister()
		c.Append(&bytecode.Send{Dst: pushReg, Obj: vecReg, Msg: "push", Stamp: bytecode.RegisterStamp(elemReg)})
		vecReg = pushReg
	}
	return vecReg, nil
}

// compileSend lowers Receiver.Msg or Receiver.Msg(Arg). The parser only
// ever hands back an *ast.Value for messages whose default store reads the
// stamp as raw text (clone, store_value) — that becomes an inline string
// stamp with no register allocated for it at all. Every other argument is
// a nested expression, lowered and passed as a register stamp; no argument
// at all means no stamp.
func (c *Compiler) compileSend(s *ast.Send) (bytecode.Register, error) {
	recvReg, err := c.compileExpression(s.Receiver)
	if err != nil {
		return 0, err
	}

	var stamp bytecode.Stamp
	switch arg := s.Arg.(type) {
	case nil:
		stamp = bytecode.NoStamp
	case *ast.Value:
		stamp = bytecode.StringStamp(arg.Literal)
	default:
		argReg, err := c.compileExpression(arg)
		if err != nil {
			return 0, err
		}
		stamp = bytecode.RegisterStamp(argReg)
	}

	dst := c.NextRegister()
	c.Append(&bytecode.Send{Dst: dst, Obj: recvReg, Msg: s.Msg, Stamp: stamp})
	return dst, nil
}

// compileIf lowers cond, branches past the then branch on false, and when
// an else branch exists skips over it from the end of then. Neither
// branch opens its own LexicalScope — both share the enclosing scope's
// Context, unlike While's body and a function's body, which each open
// their own (see ast.Block).
func (c *Compiler) compileIf(n *ast.If) error {
	condReg, err := c.compileExpression(n.Cond)
	if err != nil {
		return err
	}

	jf := &bytecode.JumpFalse{Cond: condReg}
	c.Append(jf)

	if err := c.compileStatements(n.Then.Statements); err != nil {
		return err
	}

	if n.ElseBlock == nil {
		tail := c.AddBasicBlock()
		jf.Target = tail.Index
		return nil
	}

	skip := &bytecode.Jump{}
	c.Append(skip)

	jf.Target = bytecode.BlockIndex(c.NumBasicBlocks())
	c.AddBasicBlock()
	if err := c.compileStatements(n.ElseBlock.Statements); err != nil {
		return err
	}

	tail := c.AddBasicBlock()
	skip.Target = tail.Index
	return nil
}

// compileWhile lowers a pre-tested loop. The condition block is allocated
// first so the back-edge can target it and Continue's destination is
// known immediately; the tail block (and so BreakDest) is only known once
// the body has been lowered, so every Break inside the body is recorded
// by compileBreak and patched here once the tail exists.
func (c *Compiler) compileWhile(n *ast.While) error {
	condBlock := c.AddBasicBlock()
	condReg, err := c.compileExpression(n.Cond)
	if err != nil {
		return err
	}

	jf := &bytecode.JumpFalse{Cond: condReg}
	c.Append(jf)

	scope := c.AddScopeBeginning(bytecode.CanBreak|bytecode.CanContinue, false)
	scope.ContinueDest = condBlock.Index

	if err := c.compileStatements(n.Body.Statements); err != nil {
		return err
	}
	c.Append(&bytecode.Jump{Target: condBlock.Index})

	// The tail block is allocated before the scope closes so the scope's
	// range covers it: both ways out of the loop (break and the condition
	// going false) land on the tail, and the interpreter pops the loop
	// scope when execution falls off it. The tail stays empty; a fresh
	// block after it holds whatever follows the loop, so that code runs
	// outside the loop's scope.
	tail := c.AddBasicBlock()
	scope.BreakDest = tail.Index
	pending := c.EndScope(scope)
	for _, brk := range pending {
		brk.Target = tail.Index
	}
	jf.Target = tail.Index
	c.AddBasicBlock()
	return nil
}

// compileBreak walks the scope stack from innermost outward for the first
// scope granting CanBreak, emits a Jump with a placeholder target, and
// records it against that scope to be patched once its loop's tail block
// is known. No matching scope is a BytecodeGenerationError.
func (c *Compiler) compileBreak(b *ast.Break) error {
	for i := len(c.frames) - 1; i >= 0; i-- {
		if c.frames[i].scope.Flags.Has(bytecode.CanBreak) {
			j := &bytecode.Jump{}
			c.Append(j)
			c.frames[i].pendingBreaks = append(c.frames[i].pendingBreaks, j)
			return nil
		}
	}
	return kind.New(kind.BytecodeGenerationError, "break at line %d is not inside a loop", b.Pos.Line)
}

// compileContinue is compileBreak's mirror for CanContinue/ContinueDest,
// which is already known by the time any Continue inside the loop body
// is compiled, so no patching is needed.
func (c *Compiler) compileContinue(n *ast.Continue) error {
	for i := len(c.frames) - 1; i >= 0; i-- {
		s := c.frames[i].scope
		if s.Flags.Has(bytecode.CanContinue) {
			c.Append(&bytecode.Jump{Target: s.ContinueDest})
			return nil
		}
	}
	return kind.New(kind.BytecodeGenerationError, "continue at line %d is not inside a loop", n.Pos.Line)
}

// compileFnLit lowers `fn(params...) { body }` to the clone_callable /
// store_param / pass_body protocol: clone Callable, register each
// parameter name, skip over the body block at runtime (the body only
// ever runs via call, never by falling into it), lower the body in a
// CanReturn scope ending in JumpSaved, then hand the body's entry block
// index to pass_body. A named literal stamps clone_callable with the
// name; the clone handler registers the new callable under that name in
// the enclosing Context, so `fn sq(n) { ... }` defines sq without a
// separate Store.
func (c *Compiler) compileFnLit(f *ast.FnLit) (bytecode.Register, error) {
	protoReg := c.NextRegister()
	c.Append(&bytecode.Load{Dst: protoReg, Name: "Callable"})

	nameStamp := bytecode.NoStamp
	if f.Name != "" {
		nameStamp = bytecode.StringStamp(f.Name)
	}
	fnReg := c.NextRegister()
	c.Append(&bytecode.Send{Dst: fnReg, Obj: protoReg, Msg: "clone_callable", Stamp: nameStamp})

	for _, param := range f.Params {
		paramReg := c.NextRegister()
		c.Append(&bytecode.Send{Dst: paramReg, Obj: fnReg, Msg: "store_param", Stamp: bytecode.StringStamp(param)})
		fnReg = paramReg
	}

	skip := &bytecode.Jump{}
	c.Append(skip)

	bodyScope := c.AddScopeBeginning(bytecode.CanReturn, false)
	bodyEntry := bodyScope.Beginning
	lastReg, hasRetval, err := c.compileFnBody(f.Body.Statements)
	if err != nil {
		return 0, err
	}
	if hasRetval {
		c.Append(&bytecode.JumpSaved{HasRetval: true, Retval: lastReg})
	} else {
		c.Append(&bytecode.JumpSaved{})
	}
	c.EndScope(bodyScope)

	tail := c.AddBasicBlock()
	skip.Target = tail.Index

	passBodyReg := c.NextRegister()
	c.Append(&bytecode.Send{Dst: passBodyReg, Obj: fnReg, Msg: "pass_body", Stamp: bytecode.BlockStamp(bodyEntry)})
	return passBodyReg, nil
}

// compileFnCall lowers `Callee(Args...)`: evaluate the callee, pass each
// argument with pass_param, call, and start a fresh block so the call
// site's continuation (saved by the callee's call default store as
// call_site_block+1) is addressable.
func (c *Compiler) compileFnCall(f *ast.FnCall) (bytecode.Register, error) {
	calleeReg, err := c.compileExpression(f.Callee)
	if err != nil {
		return 0, err
	}

	for _, arg := range f.Args {
		var stamp bytecode.Stamp
		if id, ok := arg.(*ast.Ident); ok {
			stamp = bytecode.StringStamp(id.Name)
		} else {
			argReg, err := c.compileExpression(arg)
			if err != nil {
				return 0, err
			}
			stamp = bytecode.RegisterStamp(argReg)
		}
		passReg := c.NextRegister()
		c.Append(&bytecode.Send{Dst: passReg, Obj: calleeReg, Msg: "pass_param", Stamp: stamp})
		calleeReg = passReg
	}

	callReg := c.NextRegister()
	c.Append(&bytecode.Send{Dst: callReg, Obj: calleeReg, Msg: "call", Stamp: bytecode.NoStamp})

	c.AddBasicBlock()
	return callReg, nil
}
