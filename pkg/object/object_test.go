package object

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stamplang/stamp/pkg/bytecode"
)

// fakeInterp is a minimal Interpreter good enough to drive default-store
// handlers in isolation, without a full VM register file or scope stack.
type fakeInterp struct {
	universe *Universe
	ctx      *Object
	regs     map[bytecode.Register]*Store
	pending  map[bytecode.BlockIndex][]pendingBind
	saved    []bytecode.BlockIndex
	retval   *Store
}

type pendingBind struct {
	name string
	obj  *Object
}

func newFakeInterp() *fakeInterp {
	return &fakeInterp{
		universe: NewUniverse(),
		ctx:      NewContext(),
		regs:     make(map[bytecode.Register]*Store),
		pending:  make(map[bytecode.BlockIndex][]pendingBind),
	}
}

func (f *fakeInterp) Context() *Object { return f.ctx }

func (f *fakeInterp) FetchBinding(name string) (*Store, bool) { return f.ctx.Get(name) }

func (f *fakeInterp) ReadRegister(r bytecode.Register) (*Store, error) {
	s, ok := f.regs[r]
	if !ok {
		return nil, errors.New("register not set")
	}
	return s, nil
}

func (f *fakeInterp) True() *Object  { return f.universe.True }
func (f *fakeInterp) False() *Object { return f.universe.False }

func (f *fakeInterp) Builtin(name string) (*Object, error) { return f.universe.Lookup(name) }

func (f *fakeInterp) BindPending(block bytecode.BlockIndex, name string, obj *Object) {
	f.pending[block] = append(f.pending[block], pendingBind{name: name, obj: obj})
}

func (f *fakeInterp) SaveAndJump(body bytecode.BlockIndex) error {
	f.saved = append(f.saved, body)
	return nil
}

func (f *fakeInterp) PopReturnValue() (*Store, bool) {
	if f.retval == nil {
		return nil, false
	}
	s := f.retval
	f.retval = nil
	return s, true
}

func newInt(u *Universe, v int32) *Object {
	o := New(u.Int, "Int")
	o.Set("value", &Store{Mutable: true, Value: StoreInt{Value: v}})
	return o
}

func TestCloneReinstallsDefaultOnlyForClassLikeNames(t *testing.T) {
	interp := newFakeInterp()

	upper, err := Send(interp.universe.Object, "clone", bytecode.StringStamp("Point"), nil, interp)
	require.NoError(t, err)
	require.True(t, upper.Object.HasDefault("clone"))

	lower, err := Send(interp.universe.Object, "clone", bytecode.StringStamp("point"), nil, interp)
	require.NoError(t, err)
	require.False(t, lower.Object.HasDefault("clone"))
}

func TestCloneRegistersBindingInContext(t *testing.T) {
	interp := newFakeInterp()

	res, err := Send(interp.universe.Object, "clone", bytecode.StringStamp("Thing"), nil, interp)
	require.NoError(t, err)

	bound, ok := interp.ctx.Get("Thing")
	require.True(t, ok)
	require.Equal(t, res.Object, bound.Value.(StoreObject).Object)
}

func TestSendForwardsThroughMultiHopPrototypeChain(t *testing.T) {
	interp := newFakeInterp()

	mid := New(interp.universe.Object, "Mid")
	leaf := New(mid, "Leaf")

	other := newInt(interp.universe, 1)
	interp.regs[0] = &Store{Value: StoreObject{Object: other}}

	res, err := Send(leaf, "==", bytecode.RegisterStamp(0), nil, interp)
	require.NoError(t, err)
	// leaf has no "value" (not an Int), so equality falls back to hash
	// comparison; what matters here is that dispatch resolved through two
	// prototype hops without error and returned a boolean singleton.
	require.Equal(t, ResultObject, res.Kind)
	require.Equal(t, interp.universe.False, res.Object)
}

func TestStoreValueByType(t *testing.T) {
	interp := newFakeInterp()

	intObj := New(interp.universe.Int, "Int")
	_, err := Send(intObj, "store_value", bytecode.StringStamp("42"), nil, interp)
	require.NoError(t, err)
	v, _ := intObj.Get("value")
	require.Equal(t, StoreInt{Value: 42}, v.Value)

	charObj := New(interp.universe.Char, "Char")
	_, err = Send(charObj, "store_value", bytecode.StringStamp("x"), nil, interp)
	require.NoError(t, err)
	cv, _ := charObj.Get("value")
	require.Equal(t, StoreChar{Value: 'x'}, cv.Value)

	strObj := New(interp.universe.String, "String")
	_, err = Send(strObj, "store_value", bytecode.StringStamp("hello"), nil, interp)
	require.NoError(t, err)
	sv, _ := strObj.Get("value")
	require.Equal(t, StoreLiteral{Value: "hello"}, sv.Value)
}

func TestArithmeticClonesAndComputes(t *testing.T) {
	interp := newFakeInterp()

	a := newInt(interp.universe, 3)
	b := newInt(interp.universe, 4)
	interp.regs[0] = &Store{Value: StoreObject{Object: b}}

	res, err := Send(a, "+", bytecode.RegisterStamp(0), nil, interp)
	require.NoError(t, err)
	require.Equal(t, ResultObject, res.Kind)
	v, _ := res.Object.Get("value")
	require.Equal(t, StoreInt{Value: 7}, v.Value)
	require.Same(t, a, res.Object.Prototype)
}

func TestDivisionByZeroIsDefaultStoreError(t *testing.T) {
	interp := newFakeInterp()

	a := newInt(interp.universe, 3)
	zero := newInt(interp.universe, 0)
	interp.regs[0] = &Store{Value: StoreObject{Object: zero}}

	_, err := Send(a, "/", bytecode.RegisterStamp(0), nil, interp)
	require.Error(t, err)
	require.Contains(t, err.Error(), "DefaultStoreError")
}

func TestComparisons(t *testing.T) {
	interp := newFakeInterp()

	a := newInt(interp.universe, 3)
	b := newInt(interp.universe, 4)
	interp.regs[0] = &Store{Value: StoreObject{Object: b}}

	res, err := Send(a, "<", bytecode.RegisterStamp(0), nil, interp)
	require.NoError(t, err)
	require.Equal(t, interp.universe.True, res.Object)
}

func TestVecGetAndPush(t *testing.T) {
	interp := newFakeInterp()

	vec := New(interp.universe.Vec, "Vec")
	elem := newInt(interp.universe, 99)
	interp.regs[0] = &Store{Value: StoreObject{Object: elem}}

	_, err := Send(vec, "push", bytecode.RegisterStamp(0), nil, interp)
	require.NoError(t, err)

	idx := newInt(interp.universe, 0)
	interp.regs[1] = &Store{Value: StoreObject{Object: idx}}

	res, err := Send(vec, "get", bytecode.RegisterStamp(1), nil, interp)
	require.NoError(t, err)
	require.Equal(t, ResultObject, res.Kind)
	require.Same(t, elem, res.Object)
}

func TestCallableLifecycle(t *testing.T) {
	interp := newFakeInterp()

	fn, err := Send(interp.universe.Callable, "clone_callable", bytecode.StringStamp("sq"), nil, interp)
	require.NoError(t, err)

	_, err = Send(fn.Object, "store_param", bytecode.StringStamp("n"), nil, interp)
	require.NoError(t, err)

	_, err = Send(fn.Object, "pass_body", bytecode.BlockStamp(5), nil, interp)
	require.NoError(t, err)

	arg := newInt(interp.universe, 9)
	interp.regs[0] = &Store{Value: StoreObject{Object: arg}}
	_, err = Send(fn.Object, "pass_param", bytecode.RegisterStamp(0), nil, interp)
	require.NoError(t, err)

	require.Len(t, interp.pending[5], 1)
	require.Equal(t, "n", interp.pending[5][0].name)
	require.Same(t, arg, interp.pending[5][0].obj)

	_, err = Send(fn.Object, "call", bytecode.NoStamp, nil, interp)
	require.NoError(t, err)
	require.Equal(t, []bytecode.BlockIndex{5}, interp.saved)

	interp.retval = &Store{Value: StoreInt{Value: 81}}
	res, err := Send(fn.Object, "get_return_value", bytecode.NoStamp, nil, interp)
	require.NoError(t, err)
	require.Equal(t, int32(81), res.Int)
}

func TestBindRejectsImmutableRebind(t *testing.T) {
	o := New(nil, "Object")
	require.NoError(t, o.Bind("a", &Store{Mutable: false, Value: StoreInt{Value: 1}}))
	err := o.Bind("a", &Store{Mutable: false, Value: StoreInt{Value: 2}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "ExecutionError")
}

func TestBindAllowsMutableRebind(t *testing.T) {
	o := New(nil, "Object")
	require.NoError(t, o.Bind("i", &Store{Mutable: true, Value: StoreInt{Value: 1}}))
	require.NoError(t, o.Bind("i", &Store{Mutable: true, Value: StoreInt{Value: 2}}))
	v, _ := o.Get("i")
	require.Equal(t, StoreInt{Value: 2}, v.Value)
}
