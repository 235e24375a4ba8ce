package object

import "github.com/stamplang/stamp/pkg/bytecode"

// Store is a single typed cell bound inside an Object's stores map. Value
// holds the closed StoreValue sum; Mutable governs whether the Store
// instruction is allowed to rebind this key once it already exists.
type Store struct {
	Mutable bool
	Value   StoreValue
}

// StoreValue is the closed sum of payloads a Store cell can hold.
type StoreValue interface {
	isStoreValue()
}

// StoreObject binds another Object by reference — the common case for
// fields, parameters, and anything returned from a message send.
type StoreObject struct {
	Object *Object
}

func (StoreObject) isStoreValue() {}

// StoreLiteral holds raw source text, used for the literal payload of a
// String object's "value" store and for the names enqueued in param_names.
type StoreLiteral struct {
	Value string
}

func (StoreLiteral) isStoreValue() {}

// StoreInt holds a native 32-bit integer, used for Int's "value" store and
// any bookkeeping counters (num_passed_params) that don't need their own
// boxed Int object.
type StoreInt struct {
	Value int32
}

func (StoreInt) isStoreValue() {}

// StoreChar holds a single byte, Char's "value" store.
type StoreChar struct {
	Value byte
}

func (StoreChar) isStoreValue() {}

// StoreVec holds an ordered list of Stores, used for Vec's "value" store
// and for a Callable's param_names.
type StoreVec struct {
	Values []*Store
}

func (StoreVec) isStoreValue() {}

// StoreRegister holds a raw basic block index, used for a Callable's
// "body" store (the function's entry block, handed over by pass_body).
type StoreRegister struct {
	Block bytecode.BlockIndex
}

func (StoreRegister) isStoreValue() {}
