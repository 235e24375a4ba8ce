// Package vm implements the Stamp interpreter: basic-block dispatch over a
// register file, a lexical-scope stack paired one-to-one with runtime
// Contexts (except for scopes sharing the global Context), a saved-return
// stack for function calls, and the message-send algorithm from pkg/object.
//
// Architecture:
//
// The VM owns nothing object.Send doesn't already need: it implements
// object.Interpreter so default-store handlers (call, pass_param,
// get_return_value, and Load's "default" name) can reach register file,
// scope stack, and saved-return state without pkg/object importing this
// package. The main loop pushes every scope whose range begins at the
// current block, runs the block's instructions until one of them jumps,
// pops any scope whose range is over, and advances to the next block.
// Entering a scope's beginning block again — a second call into the same
// function body — pushes it again with a fresh Context, which is what
// gives each call its own activation; a scope already on the stack (a
// loop body re-entered by its back edge) is not pushed twice, so loop
// locals persist across iterations.
package vm

import (
	"go.uber.org/zap"

	"github.com/stamplang/stamp/pkg/bytecode"
	"github.com/stamplang/stamp/pkg/kind"
	"github.com/stamplang/stamp/pkg/object"
)

// scopeEntry pairs a pushed LexicalScope with the runtime Context bound to
// it — the same object for every entry whose scope IsGlobal, a fresh one
// otherwise.
type scopeEntry struct {
	scope *bytecode.LexicalScope
	ctx   *object.Object
}

// pendingBind is a parameter binding recorded by pass_param before the
// function body's Context exists, applied the moment that Context is
// pushed.
type pendingBind struct {
	name string
	obj  *object.Object
}

// VM is a single Stamp interpreter instance: one register file, one scope
// stack, one universe of built-in prototypes. Not safe for concurrent use
// — the whole point of the design is that it doesn't need to be.
type VM struct {
	program     *bytecode.Program
	byBeginning map[bytecode.BlockIndex][]*bytecode.LexicalScope
	universe    *object.Universe

	regs []*object.Store

	scopeStack []scopeEntry
	globalCtx  *object.Object

	currentBB       bytecode.BlockIndex
	shouldTerminate bool

	savedBBs []bytecode.BlockIndex
	retval   *object.Store

	pending map[bytecode.BlockIndex][]pendingBind

	log *zap.SugaredLogger
}

// Option configures a VM at construction time.
type Option func(*VM)

// WithLogger attaches a structured logger used for the optional
// message-send trace channel (distinct from the human-facing -b/-r dumps,
// which print with fmt regardless of whether a logger is configured).
func WithLogger(l *zap.SugaredLogger) Option {
	return func(v *VM) { v.log = l }
}

// WithRegisterFileSize preallocates n register slots, used when resuming
// execution from a deserialized bytecode.DecodeResult whose
// RegisterFileSize already accounts for every register the file
// references.
func WithRegisterFileSize(n uint32) Option {
	return func(v *VM) {
		if uint32(len(v.regs)) < n {
			v.regs = append(v.regs, make([]*object.Store, n-uint32(len(v.regs)))...)
		}
	}
}

// New builds a VM ready to run prog, with a fresh Universe of built-in
// prototypes installed and bound by name into the global Context:
// Object, True, False, Int, Char, String, Vec, Callable are all
// resolvable as plain identifiers from any scope.
func New(prog *bytecode.Program, opts ...Option) *VM {
	v := &VM{
		program:   prog,
		universe:  object.NewUniverse(),
		globalCtx: object.NewContext(),
		pending:   make(map[bytecode.BlockIndex][]pendingBind),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.indexScopes()
	v.seedUniverse()
	return v
}

// indexScopes rebuilds the Beginning-block lookup the main loop consults
// on every block entry. Scopes beginning on the same block keep their
// creation order, so an outer scope is always pushed before one nested
// inside it.
func (v *VM) indexScopes() {
	v.byBeginning = make(map[bytecode.BlockIndex][]*bytecode.LexicalScope, len(v.program.Scopes))
	for _, s := range v.program.Scopes {
		v.byBeginning[s.Beginning] = append(v.byBeginning[s.Beginning], s)
	}
}

func (v *VM) seedUniverse() {
	bind := func(name string, obj *object.Object) {
		v.globalCtx.Set(name, &object.Store{Mutable: false, Value: object.StoreObject{Object: obj}})
	}
	bind("Object", v.universe.Object)
	bind("Int", v.universe.Int)
	bind("Char", v.universe.Char)
	bind("String", v.universe.String)
	bind("Vec", v.universe.Vec)
	bind("Callable", v.universe.Callable)
	bind("True", v.universe.True)
	bind("False", v.universe.False)
}

// Universe exposes the built-in prototypes this VM installed, for the CLI's
// -r register dump and for tests that want to inspect a global binding
// directly.
func (v *VM) Universe() *object.Universe { return v.universe }

// Registers returns the live register file, for the CLI's -r dump. The
// slice (and its contents) must be treated as read-only by callers.
func (v *VM) Registers() []*object.Store { return v.regs }

// GlobalContext exposes the single global Context object bindings resolve
// against once the local scope stack is exhausted.
func (v *VM) GlobalContext() *object.Object { return v.globalCtx }

// SetProgram replaces the block/scope lists Run executes against without
// resetting execution position. A REPL uses this to hand the VM a longer
// program after compiling another line's worth of statements into the same
// open-ended global scope, so Run picks up exactly where it left off
// instead of re-running blocks already executed.
func (v *VM) SetProgram(prog *bytecode.Program) {
	v.program = prog
	v.indexScopes()
}

// Run executes the program from the current block (block 0 on a fresh VM,
// or wherever the previous Run stopped) to completion, installing and
// tearing down lexical scopes as their ranges are entered and left.
func (v *VM) Run() error {
	numBlocks := bytecode.BlockIndex(len(v.program.Blocks))
	for v.currentBB < numBlocks {
		v.pushScopesBeginningHere()

		v.shouldTerminate = false
		block := v.program.Blocks[v.currentBB]
		for _, instr := range block.Instructions {
			if err := v.execute(instr); err != nil {
				return err
			}
			if v.shouldTerminate {
				break
			}
		}

		if v.shouldTerminate {
			continue
		}
		v.popScopesEndingHere()
		v.currentBB++
	}
	return nil
}

// pushScopesBeginningHere pushes every scope whose range starts at the
// current block and isn't already on the stack. A scope flagged IsGlobal
// reuses the single global Context instead of getting a fresh one;
// everything else gets a brand new, prototype-less Context — including a
// function body entered for a second call, which is how each call gets
// its own parameter bindings instead of the previous call's. A loop body
// re-entered by its back edge is already on the stack and keeps the
// Context it has.
func (v *VM) pushScopesBeginningHere() {
	for _, s := range v.byBeginning[v.currentBB] {
		if v.onStack(s) {
			continue
		}

		ctx := v.globalCtx
		if !s.IsGlobal {
			ctx = object.NewContext()
		}
		v.scopeStack = append(v.scopeStack, scopeEntry{scope: s, ctx: ctx})

		for _, p := range v.pending[s.Beginning] {
			ctx.Set(p.name, &object.Store{Mutable: true, Value: object.StoreObject{Object: p.obj}})
		}
		delete(v.pending, s.Beginning)
	}
}

func (v *VM) onStack(s *bytecode.LexicalScope) bool {
	for i := range v.scopeStack {
		if v.scopeStack[i].scope == s {
			return true
		}
	}
	return false
}

// popScopesEndingHere pops every scope on top of the stack whose range is
// over at the current block, innermost first. Comparing with <= rather
// than == is what unwinds a scope that was abandoned by a jump past its
// end block — a break out of a nested loop leaves the inner loop's scope
// on the stack until execution falls off a later block, at which point
// the inner range is behind the current block and the scope comes off
// with it.
func (v *VM) popScopesEndingHere() {
	for len(v.scopeStack) > 0 {
		top := v.scopeStack[len(v.scopeStack)-1]
		if top.scope.End > v.currentBB {
			break
		}
		v.scopeStack = v.scopeStack[:len(v.scopeStack)-1]
	}
}

// jumpTo transfers control to target, signaling the main loop to abandon
// the rest of the current block without running its scope-close step.
func (v *VM) jumpTo(target bytecode.BlockIndex) {
	v.currentBB = target
	v.shouldTerminate = true
}

func (v *VM) execute(instr bytecode.Instruction) error {
	switch i := instr.(type) {
	case *bytecode.Load:
		return v.execLoad(i)
	case *bytecode.Store:
		return v.execStore(i)
	case *bytecode.Send:
		return v.execSend(i)
	case *bytecode.Jump:
		v.jumpTo(i.Target)
		return nil
	case *bytecode.JumpTrue:
		store, err := v.ReadRegister(i.Cond)
		if err != nil {
			return err
		}
		if obj, ok := store.Value.(object.StoreObject); ok && obj.Object == v.universe.True {
			v.jumpTo(i.Target)
		}
		return nil
	case *bytecode.JumpFalse:
		store, err := v.ReadRegister(i.Cond)
		if err != nil {
			return err
		}
		if obj, ok := store.Value.(object.StoreObject); ok && obj.Object == v.universe.False {
			v.jumpTo(i.Target)
		}
		return nil
	case *bytecode.JumpSaved:
		return v.execJumpSaved(i)
	default:
		return kind.New(kind.ExecutionError, "unsupported instruction type %T", instr)
	}
}

// execLoad implements Load's contract: the reserved name "default" always
// names the innermost active scope's own Context object directly, without
// consulting the scope stack's bindings at all; any other name is
// resolved by fetchObject.
func (v *VM) execLoad(i *bytecode.Load) error {
	if i.Name == "default" {
		v.setRegister(i.Dst, &object.Store{Value: object.StoreObject{Object: v.Context()}})
		return nil
	}
	store, err := v.fetchObject(i.Name)
	if err != nil {
		return err
	}
	v.setRegister(i.Dst, store)
	return nil
}

// fetchObject walks the scope stack from innermost to outermost, then the
// global Context, looking for name.
func (v *VM) fetchObject(name string) (*object.Store, error) {
	if s, ok := v.FetchBinding(name); ok {
		return s, nil
	}
	return nil, kind.New(kind.ExecutionError, "no binding named %q", name)
}

// FetchBinding implements object.Interpreter's name resolution hook with
// the same walk Load uses.
func (v *VM) FetchBinding(name string) (*object.Store, bool) {
	for i := len(v.scopeStack) - 1; i >= 0; i-- {
		if s, ok := v.scopeStack[i].ctx.Get(name); ok {
			return s, true
		}
	}
	return v.globalCtx.Get(name)
}

// execStore implements the Store instruction's contract: bind key in the
// object held by Obj to the value held by Src, failing if an existing
// binding there is immutable. When the target is a scope Context (a Store
// whose Obj register was filled by Load "default"), the key is first
// resolved the same way Load resolves names — innermost scope outward,
// then the global Context — and an existing binding is updated in place
// where it was declared. That is what makes `i := i + 1` inside a loop
// body advance the `i` declared outside it instead of shadowing it with a
// loop-local copy. A name with no binding anywhere is created fresh in
// the target Context with the instruction's mutability.
func (v *VM) execStore(i *bytecode.Store) error {
	objStore, err := v.ReadRegister(i.Obj)
	if err != nil {
		return err
	}
	target, ok := objStore.Value.(object.StoreObject)
	if !ok {
		return kind.New(kind.ExecutionError, "store target in register %d is not an object", i.Obj)
	}
	srcStore, err := v.ReadRegister(i.Src)
	if err != nil {
		return err
	}
	if v.isScopeContext(target.Object) {
		return v.bindName(target.Object, i.Key, srcStore.Value, i.Mutable)
	}
	return target.Object.Bind(i.Key, &object.Store{Mutable: i.Mutable, Value: srcStore.Value})
}

func (v *VM) isScopeContext(o *object.Object) bool {
	if o == v.globalCtx {
		return true
	}
	for i := range v.scopeStack {
		if v.scopeStack[i].ctx == o {
			return true
		}
	}
	return false
}

// bindName rebinds key where it is already bound, walking the scope stack
// innermost-out and then the global Context; the declaring occurrence's
// mutability is what governs the rebind, and stays in force afterward. A
// key bound nowhere is declared fresh in target.
func (v *VM) bindName(target *object.Object, key string, value object.StoreValue, mutable bool) error {
	rebind := func(existing *object.Store) error {
		if !existing.Mutable {
			return kind.New(kind.ExecutionError, "cannot rebind immutable key %q", key)
		}
		existing.Value = value
		return nil
	}
	for i := len(v.scopeStack) - 1; i >= 0; i-- {
		if existing, ok := v.scopeStack[i].ctx.Get(key); ok {
			return rebind(existing)
		}
	}
	if existing, ok := v.globalCtx.Get(key); ok {
		return rebind(existing)
	}
	return target.Bind(key, &object.Store{Mutable: mutable, Value: value})
}

// execSend implements the Send instruction: dispatch through
// object.Send, wrapping whichever Result shape comes back into a *Store
// for the destination register.
func (v *VM) execSend(i *bytecode.Send) error {
	objStore, err := v.ReadRegister(i.Obj)
	if err != nil {
		return err
	}
	recv, ok := objStore.Value.(object.StoreObject)
	if !ok {
		return kind.New(kind.ExecutionError, "send %q: register %d does not hold an object", i.Msg, i.Obj)
	}

	if v.log != nil {
		v.log.Debugw("send", "hash", recv.Object.Hash, "msg", i.Msg, "type", recv.Object.Type)
	}

	result, err := object.Send(recv.Object, i.Msg, i.Stamp, nil, v)
	if err != nil {
		if v.log != nil {
			v.log.Debugw("send failed", "hash", recv.Object.Hash, "msg", i.Msg, "error", err)
		}
		return err
	}

	v.setRegister(i.Dst, resultToStore(result))
	return nil
}

func resultToStore(r object.Result) *object.Store {
	switch r.Kind {
	case object.ResultObject:
		return &object.Store{Value: object.StoreObject{Object: r.Object}}
	case object.ResultString:
		return &object.Store{Value: object.StoreLiteral{Value: r.String}}
	case object.ResultInt:
		return &object.Store{Value: object.StoreInt{Value: r.Int}}
	case object.ResultVec:
		return &object.Store{Value: object.StoreVec{Values: r.Vec}}
	default:
		return &object.Store{}
	}
}

// execJumpSaved implements JumpSaved: pop the saved-return stack (fatal if
// empty — every call leaves exactly one entry for its matching
// JumpSaved), optionally push the retval, unwind the function's
// activation, and jump to the popped block.
func (v *VM) execJumpSaved(i *bytecode.JumpSaved) error {
	if len(v.savedBBs) == 0 {
		return kind.New(kind.ExecutionError, "JumpSaved with no matching saved return address")
	}
	target := v.savedBBs[len(v.savedBBs)-1]
	v.savedBBs = v.savedBBs[:len(v.savedBBs)-1]

	if i.HasRetval {
		store, err := v.ReadRegister(i.Retval)
		if err != nil {
			return err
		}
		if v.retval != nil {
			return kind.New(kind.ExecutionError, "JumpSaved: a return value is already pending")
		}
		v.retval = store
	}

	// The innermost CanReturn scope is this function's activation; it and
	// everything nested inside it (loop scopes the body jumped out of) come
	// off now, since control leaves the body's block range for good and no
	// fall-through will ever reach their end blocks.
	for idx := len(v.scopeStack) - 1; idx >= 0; idx-- {
		if v.scopeStack[idx].scope.Flags.Has(bytecode.CanReturn) {
			v.scopeStack = v.scopeStack[:idx]
			break
		}
	}

	v.jumpTo(target)
	return nil
}

// setRegister grows the register file as needed and writes v at index i.
func (v *VM) setRegister(i bytecode.Register, s *object.Store) {
	idx := int(i)
	if idx >= len(v.regs) {
		grown := make([]*object.Store, idx+1)
		copy(grown, v.regs)
		v.regs = grown
	}
	v.regs[idx] = s
}

// ReadRegister implements object.Interpreter: reading an empty slot (never
// written, or beyond the current size) is a fatal ExecutionError.
func (v *VM) ReadRegister(r bytecode.Register) (*object.Store, error) {
	idx := int(r)
	if idx >= len(v.regs) || v.regs[idx] == nil {
		return nil, kind.New(kind.ExecutionError, "read from empty register %d", r)
	}
	return v.regs[idx], nil
}

// Context implements object.Interpreter: the innermost active scope's
// Context, or the global Context if nothing is pushed yet (true only
// before the program's own global scope — which covers every block —
// has been pushed, which in practice never outlives block 0).
func (v *VM) Context() *object.Object {
	if len(v.scopeStack) == 0 {
		return v.globalCtx
	}
	return v.scopeStack[len(v.scopeStack)-1].ctx
}

// True implements object.Interpreter.
func (v *VM) True() *object.Object { return v.universe.True }

// False implements object.Interpreter.
func (v *VM) False() *object.Object { return v.universe.False }

// Builtin implements object.Interpreter.
func (v *VM) Builtin(name string) (*object.Object, error) { return v.universe.Lookup(name) }

// BindPending implements object.Interpreter: pass_param calls this before
// the callee's Context exists, and pushScopesBeginningHere applies every
// recorded bind the instant that Context is created.
func (v *VM) BindPending(block bytecode.BlockIndex, name string, obj *object.Object) {
	v.pending[block] = append(v.pending[block], pendingBind{name: name, obj: obj})
}

// SaveAndJump implements object.Interpreter's call hook: save the block
// immediately following this Send (its own block's end, since Send never
// splits a block) and transfer control to body.
func (v *VM) SaveAndJump(body bytecode.BlockIndex) error {
	v.savedBBs = append(v.savedBBs, v.currentBB+1)
	v.jumpTo(body)
	return nil
}

// PopReturnValue implements object.Interpreter's get_return_value hook.
func (v *VM) PopReturnValue() (*object.Store, bool) {
	if v.retval == nil {
		return nil, false
	}
	s := v.retval
	v.retval = nil
	return s, true
}
