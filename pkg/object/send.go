package object

import (
	"github.com/stamplang/stamp/pkg/bytecode"
	"github.com/stamplang/stamp/pkg/kind"
)

// Interpreter is the narrow slice of VM state a default-store handler is
// allowed to touch. Default stores live in this package so the dispatch
// table stays next to the objects it operates on, but a handful of them
// (call, get_return_value, pass_param) have side effects that belong to
// the interpreter's control-flow state rather than to any single Object;
// this interface is how they reach it without pkg/object importing pkg/vm.
type Interpreter interface {
	// Context returns the Context object for the innermost active scope —
	// the same object Load consults for the reserved name "default".
	Context() *Object

	// FetchBinding resolves name exactly as a Load instruction would:
	// innermost scope outward, then the global Context. pass_param uses it
	// for name-stamped arguments so they see the same bindings the callee's
	// source expression would have.
	FetchBinding(name string) (*Store, bool)

	// ReadRegister returns the Store currently held in r.
	ReadRegister(r bytecode.Register) (*Store, error)

	// True and False return the global singletons comparisons resolve to.
	True() *Object
	False() *Object

	// Builtin returns one of the built-in prototypes installed at startup
	// (Object, Int, Char, String, Vec, Callable) by name.
	Builtin(name string) (*Object, error)

	// BindPending records name=obj to be bound into the Context created
	// when execution's scope stack next pushes a scope beginning at block.
	// pass_param uses this to deliver arguments into a function body's
	// Context before that Context exists.
	BindPending(block bytecode.BlockIndex, name string, obj *Object)

	// SaveAndJump saves the block immediately following the currently
	// executing instruction on the saved-return-address stack and
	// transfers control to body. Implements the call default store.
	SaveAndJump(body bytecode.BlockIndex) error

	// PopReturnValue pops the interpreter's pending return value, if any
	// was pushed by a JumpSaved with a Retval. Implements get_return_value.
	PopReturnValue() (*Store, bool)
}

// ResultKind discriminates the four shapes a default-store handler (or a
// plain Stores-map lookup) can hand back to Send's caller.
type ResultKind uint8

const (
	ResultObject ResultKind = iota
	ResultString
	ResultInt
	ResultVec
)

// Result is the value produced by a successful Send.
type Result struct {
	Kind   ResultKind
	Object *Object
	String string
	Int    int32
	Vec    []*Store
}

func resultFromStore(s *Store) Result {
	switch v := s.Value.(type) {
	case StoreObject:
		return Result{Kind: ResultObject, Object: v.Object}
	case StoreLiteral:
		return Result{Kind: ResultString, String: v.Value}
	case StoreInt:
		return Result{Kind: ResultInt, Int: v.Value}
	case StoreChar:
		return Result{Kind: ResultInt, Int: int32(v.Value)}
	case StoreVec:
		return Result{Kind: ResultVec, Vec: v.Values}
	case StoreRegister:
		// A raw block index escaping as a Send result never happens for any
		// message user code can spell; surfacing it as an object-shaped
		// zero value is harmless and keeps this function total.
		return Result{Kind: ResultObject}
	default:
		return Result{}
	}
}

// Send implements the message dispatch algorithm: a default store
// installed directly on obj wins first, then a store bound directly in
// obj's own stores map, then the prototype chain, forwarding the original
// receiver down at every hop so a built-in invoked three links up the
// chain still mutates the object the caller actually sent to.
func Send(obj *Object, msg string, stamp bytecode.Stamp, forwarder *Object, interp Interpreter) (Result, error) {
	if obj == nil {
		return Result{}, kind.New(kind.ExecutionError, "send %q: receiver is nil", msg)
	}

	if obj.HasDefault(msg) {
		self := obj
		if forwarder != nil {
			self = forwarder
		}
		handler, ok := defaultStoreTable[msg]
		if !ok {
			return Result{}, kind.New(kind.DefaultStoreError, "no handler registered for default store %q", msg)
		}
		return handler(self, stamp, interp)
	}

	if s, ok := obj.Get(msg); ok {
		return resultFromStore(s), nil
	}

	if obj.Prototype != nil {
		// Thread the original receiver, not this hop's obj, so that a
		// default store several prototype links up still receives the
		// object the caller actually sent to as "self".
		next := obj
		if forwarder != nil {
			next = forwarder
		}
		return Send(obj.Prototype, msg, stamp, next, interp)
	}

	return Result{}, kind.New(kind.ExecutionError, "object of type %q has no store and no prototype for message %q", obj.Type, msg)
}
