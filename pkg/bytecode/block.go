package bytecode

// BasicBlock is an ordered, straight-line sequence of instructions
// identified by its position in the generator's block list. A block does
// not need to end in a terminator (Jump/JumpTrue/JumpFalse/JumpSaved);
// falling off the end of a block advances execution to the block with the
// next index.
type BasicBlock struct {
	Index        BlockIndex
	Instructions []Instruction
}

// ScopeFlags is a bitset of the capabilities a LexicalScope grants to the
// blocks it covers.
type ScopeFlags uint8

const (
	// CanBreak means a Break inside this scope (or a scope nested in it
	// that doesn't itself grant CanBreak) resolves here.
	CanBreak ScopeFlags = 1 << iota
	// CanContinue means a Continue resolves here.
	CanContinue
	// CanReturn marks a function-body scope; JumpSaved is only ever
	// emitted inside a scope with this flag set.
	CanReturn
)

func (f ScopeFlags) Has(flag ScopeFlags) bool { return f&flag != 0 }

// LexicalScope covers the inclusive block range [Beginning, End] and
// records the break/continue destinations needed to close it correctly.
// Scopes nest strictly: for any two scopes, their ranges are disjoint or
// one contains the other.
type LexicalScope struct {
	Beginning BlockIndex
	End       BlockIndex
	Flags     ScopeFlags

	// ContinueDest is the block a Continue inside this scope jumps to.
	// Only meaningful when Flags.Has(CanContinue).
	ContinueDest BlockIndex
	// BreakDest is the block a Break inside this scope jumps to. Only
	// meaningful when Flags.Has(CanBreak). The loop's exit block doesn't
	// exist yet when a Break inside its body is compiled, so the compiler
	// records each Break's Jump and back-patches its target to BreakDest
	// once the exit block is allocated at scope close.
	BreakDest BlockIndex

	// IsGlobal marks a scope that shares the single global Context
	// instead of getting a fresh one pushed onto the local scope stack.
	IsGlobal bool
}

// Contains reports whether block index i falls within this scope's range.
func (s *LexicalScope) Contains(i BlockIndex) bool {
	return i >= s.Beginning && i <= s.End
}
