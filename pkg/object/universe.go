package object

import "github.com/stamplang/stamp/pkg/kind"

// Universe holds the built-in prototypes the runtime installs before any
// user bytecode runs: Object at the root, the three literal types hanging
// off it, Vec, Callable, and the True/False singletons. Modeled directly
// on a predeclared-names table rather than ad hoc globals, so the VM can
// seed every fresh interpreter from one value instead of reaching into
// package-level state.
type Universe struct {
	Object   *Object
	Int      *Object
	Char     *Object
	String   *Object
	Vec      *Object
	Callable *Object
	True     *Object
	False    *Object
}

// NewUniverse builds a fresh set of built-in prototypes. Called once per
// Interpreter so that two concurrently running interpreters never share
// mutable prototype state.
func NewUniverse() *Universe {
	root := NewPrototype("Object", "clone", "==", "!=")

	intProto := New(root, "Int")
	for _, op := range []string{"store_value", "%", "*", "/", "+", "-", "<<", ">>", "&", "><", "|", "<", "<=", ">", ">="} {
		intProto.SetDefault(op)
	}

	charProto := New(root, "Char")
	charProto.SetDefault("store_value")

	stringProto := New(root, "String")
	stringProto.SetDefault("store_value")

	vecProto := New(root, "Vec")
	vecProto.SetDefault("get")
	vecProto.SetDefault("push")

	callableProto := New(root, "Callable")
	for _, op := range []string{"clone_callable", "store_param", "pass_body", "pass_param", "call", "get_return_value"} {
		callableProto.SetDefault(op)
	}

	trueObj := New(root, "True")
	falseObj := New(root, "False")

	return &Universe{
		Object:   root,
		Int:      intProto,
		Char:     charProto,
		String:   stringProto,
		Vec:      vecProto,
		Callable: callableProto,
		True:     trueObj,
		False:    falseObj,
	}
}

// Lookup returns the named built-in prototype, satisfying the
// Interpreter.Builtin contract default-store handlers rely on.
func (u *Universe) Lookup(name string) (*Object, error) {
	switch name {
	case "Object":
		return u.Object, nil
	case "Int":
		return u.Int, nil
	case "Char":
		return u.Char, nil
	case "String":
		return u.String, nil
	case "Vec":
		return u.Vec, nil
	case "Callable":
		return u.Callable, nil
	case "True":
		return u.True, nil
	case "False":
		return u.False, nil
	default:
		return nil, kind.New(kind.ExecutionError, "no built-in prototype named %q", name)
	}
}
