// Package object implements the prototype-linked object model, the
// heterogeneous typed Store cells bound inside an object, and the
// message-send algorithm (including prototype-chain fallback, the
// forwarder rule, and the closed set of built-in default stores) that is
// the only way Stamp code communicates.
//
// There are no statements that are not sends: even binding a name is, under
// the hood, a Store instruction writing into some object's stores map, and
// reading one is a Load that walks the interpreter's scope stack of
// Contexts — themselves ordinary Objects with no prototype.
package object

import (
	"math/rand/v2"
	"unicode"

	"github.com/dolthub/swiss"

	"github.com/stamplang/stamp/pkg/kind"
)

// Object is a prototype-linked, heterogeneously-typed bag of Stores. Hash
// is a random 32-bit identity used by "==" and "!=" for anything that isn't
// an Int; Type is a display name, and an object whose Type begins with an
// uppercase letter is class-like, so clone reinstalls itself as a direct
// default store on the result (see the clone handler in defaults.go).
//
// Stores and default-store membership are backed by swiss.Map rather than
// a built-in Go map: every message send and every variable read is a probe
// into one of these maps, so it is the hottest lookup path in the whole
// interpreter.
type Object struct {
	Hash          uint32
	Prototype     *Object
	Type          string
	stores        *swiss.Map[string, *Store]
	defaultStores *swiss.Map[string, struct{}]
}

// New allocates an Object with the given prototype and type name, with
// empty stores and no default stores installed; callers add default stores
// afterward with SetDefault. NewPrototype does both in one step for a root
// object.
func New(prototype *Object, typeName string) *Object {
	return &Object{
		Hash:          rand.Uint32(),
		Prototype:     prototype,
		Type:          typeName,
		stores:        swiss.NewMap[string, *Store](4),
		defaultStores: swiss.NewMap[string, struct{}](0),
	}
}

// NewPrototype allocates a root object (no prototype) carrying the given
// set of default store names directly — used once, at startup, to build
// the root Object prototype. The other built-in prototypes hang off it and
// are built with New plus SetDefault (see NewUniverse).
func NewPrototype(typeName string, defaults ...string) *Object {
	o := New(nil, typeName)
	for _, d := range defaults {
		o.SetDefault(d)
	}
	return o
}

// IsClassLike reports whether typeName begins with an uppercase letter,
// the rule that decides whether clone reinstalls itself on a new clone.
func IsClassLike(typeName string) bool {
	for _, r := range typeName {
		return unicode.IsUpper(r)
	}
	return false
}

// Get returns the store bound to key directly on this object (not walking
// the prototype chain — that is Send's job, not a plain field lookup).
func (o *Object) Get(key string) (*Store, bool) {
	return o.stores.Get(key)
}

// Set installs store s under key unconditionally, without the
// immutable-rebind check Send's "Store" instruction performs. It exists
// for default-store handlers that construct fields on a brand-new object
// they just allocated, where there is nothing to rebind yet.
func (o *Object) Set(key string, s *Store) {
	o.stores.Put(key, s)
}

// Bind implements the Store instruction's contract on this object: if key
// is already bound and that binding's Mutable flag is false, it returns an
// ExecutionError instead of silently overwriting it. Fresh keys and keys
// bound mutable are written unconditionally.
func (o *Object) Bind(key string, value *Store) error {
	if existing, ok := o.stores.Get(key); ok && !existing.Mutable {
		return kind.New(kind.ExecutionError, "cannot rebind immutable key %q", key)
	}
	o.stores.Put(key, value)
	return nil
}

// NewContext allocates a fresh, prototype-less Object to serve as a
// lexical scope's Context — the binding environment Load and Store
// instructions read and write identifiers into.
func NewContext() *Object {
	return New(nil, "Context")
}

// HasDefault reports whether name is a default store installed directly
// on this object (not inherited through the prototype chain).
func (o *Object) HasDefault(name string) bool {
	_, ok := o.defaultStores.Get(name)
	return ok
}

// SetDefault installs name as a default store directly on this object.
func (o *Object) SetDefault(name string) {
	o.defaultStores.Put(name, struct{}{})
}
