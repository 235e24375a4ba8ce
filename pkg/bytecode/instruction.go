// Package bytecode defines the register-based instruction set, basic block
// and lexical scope shapes, and the binary container format for compiled
// Stamp programs.
//
// Architecture:
//
// Unlike a stack machine, Stamp bytecode addresses values through an
// unbounded register file. Instructions are grouped into BasicBlocks, which
// are the unit of branching; a block with no explicit terminator simply
// falls through to the block with the next index. LexicalScopes describe
// inclusive ranges of block indices during which a runtime Context is on the
// interpreter's scope stack, plus the break/continue/return capabilities
// available inside that range.
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
package bytecode

// Register is an opaque 32-bit slot index in the interpreter's register
// file. Registers are allocated monotonically by the generator; the largest
// index observed while deserializing a bytecode file bounds the register
// file size reconstructed at load time.
type Register uint32

// BlockIndex names a BasicBlock by its position in the generator's block
// list. Indices are stable once a block is created.
type BlockIndex uint32

// Instruction is the closed sum of bytecode operations. Each variant is a
// distinct Go type implementing this interface; there is no fallthrough
// "default" instruction kind.
type Instruction interface {
	isInstruction()
}

// Load resolves name in the interpreter's scope stack (or, as a reserved
// special case, the literal identifier "default" which always names the
// innermost active scope's own Context object) and places the result in
// Dst. Load never consults an object's default-store table or prototype
// chain; it is a direct binding lookup, distinct from Send.
type Load struct {
	Dst  Register
	Name string
}

func (*Load) isInstruction() {}

// Store binds Key in the object held in Obj to the value held in Src. If an
// existing store already occupies Key and its Mutable flag is false, the
// interpreter raises an ExecutionError instead of rebinding it.
type Store struct {
	Obj     Register
	Key     string
	Src     Register
	Mutable bool
}

func (*Store) isInstruction() {}

// StampKind discriminates the four-way sum an optional Send payload can
// take. The zero value, StampNone, means the source send syntactically had
// no argument at all.
type StampKind uint8

const (
	// StampNone means the Send has no payload.
	StampNone StampKind = iota
	// StampRegister carries an object computed by a nested expression.
	StampRegister
	// StampString carries a literal identifier or string taken directly
	// from source text, without allocating a runtime object for it.
	StampString
	// StampBlock carries a raw basic block index, used only to hand a
	// function body's entry block to the pass_body default store.
	StampBlock
)

// Stamp is the optional payload carried by a Send instruction. Exactly one
// of Register, String, or Block is meaningful, selected by Kind; modeling
// it as a tagged struct rather than collapsing it to a string keeps the
// block-index and register cases from being confused with plain text.
type Stamp struct {
	Kind     StampKind
	Register Register
	String   string
	Block    BlockIndex
}

// NoStamp is the zero-value StampNone payload.
var NoStamp = Stamp{Kind: StampNone}

// RegisterStamp builds a StampRegister payload.
func RegisterStamp(r Register) Stamp { return Stamp{Kind: StampRegister, Register: r} }

// StringStamp builds a StampString payload.
func StringStamp(s string) Stamp { return Stamp{Kind: StampString, String: s} }

// BlockStamp builds a StampBlock payload.
func BlockStamp(b BlockIndex) Stamp { return Stamp{Kind: StampBlock, Block: b} }

// Send sends the message Msg to the object held in Obj, with the optional
// Stamp as payload, and places the result in Dst.
type Send struct {
	Dst   Register
	Obj   Register
	Msg   string
	Stamp Stamp
}

func (*Send) isInstruction() {}

// Jump is an unconditional branch to Target.
type Jump struct {
	Target BlockIndex
}

func (*Jump) isInstruction() {}

// JumpTrue branches to Target when Cond holds the global True singleton.
type JumpTrue struct {
	Cond   Register
	Target BlockIndex
}

func (*JumpTrue) isInstruction() {}

// JumpFalse branches to Target when Cond holds the global False singleton.
type JumpFalse struct {
	Cond   Register
	Target BlockIndex
}

func (*JumpFalse) isInstruction() {}

// JumpSaved pops the interpreter's saved-return-address stack, optionally
// pushes the value held in Retval as the pending return value, and jumps to
// the popped block. HasRetval distinguishes "no return value" from register
// 0, since 0 is a valid register index.
type JumpSaved struct {
	HasRetval bool
	Retval    Register
}

func (*JumpSaved) isInstruction() {}
