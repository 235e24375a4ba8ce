package object

import (
	"strconv"

	"github.com/stamplang/stamp/pkg/bytecode"
	"github.com/stamplang/stamp/pkg/kind"
)

// handler is the shape of every built-in default store: it receives the
// forwarded receiver (never the raw chain-walking obj), the Send's stamp
// payload, and the interpreter hook for the handful of defaults that need
// one, and returns a Result or a *kind.Error.
type handler func(self *Object, stamp bytecode.Stamp, interp Interpreter) (Result, error)

var defaultStoreTable = map[string]handler{
	"clone":            hClone,
	"==":               hEquals,
	"!=":               hNotEquals,
	"store_value":      hStoreValue,
	"get":              hGet,
	"push":             hPush,
	"clone_callable":   hCloneCallable,
	"store_param":      hStoreParam,
	"pass_body":        hPassBody,
	"pass_param":       hPassParam,
	"call":             hCall,
	"get_return_value": hGetReturnValue,
	"%": arith(func(a, b int32) (int32, error) {
		if b == 0 {
			return 0, kind.New(kind.DefaultStoreError, "modulo by zero")
		}
		return a % b, nil
	}),
	"*": arith(func(a, b int32) (int32, error) { return a * b, nil }),
	"/": arith(func(a, b int32) (int32, error) {
		if b == 0 {
			return 0, kind.New(kind.DefaultStoreError, "division by zero")
		}
		return a / b, nil
	}),
	"+": arith(func(a, b int32) (int32, error) { return a + b, nil }),
	"-": arith(func(a, b int32) (int32, error) { return a - b, nil }),
	"<<": arith(func(a, b int32) (int32, error) {
		if b < 0 {
			return 0, kind.New(kind.DefaultStoreError, "negative shift amount")
		}
		return a << uint32(b), nil
	}),
	">>": arith(func(a, b int32) (int32, error) {
		if b < 0 {
			return 0, kind.New(kind.DefaultStoreError, "negative shift amount")
		}
		return a >> uint32(b), nil
	}),
	"&": arith(func(a, b int32) (int32, error) { return a & b, nil }),
	"><": arith(func(a, b int32) (int32, error) { return a ^ b, nil }),
	"|": arith(func(a, b int32) (int32, error) { return a | b, nil }),
	"<":  compare(func(a, b int32) bool { return a < b }),
	"<=": compare(func(a, b int32) bool { return a <= b }),
	">":  compare(func(a, b int32) bool { return a > b }),
	">=": compare(func(a, b int32) bool { return a >= b }),
}

// hClone implements the universal clone default. A class-like stamp (one
// beginning with an uppercase letter) becomes the result's type and
// reinstalls clone directly as a default store on the result, so further
// clones of it dispatch in one hop instead of falling through to the
// prototype chain. Any other stamp — a lowercase name, or an internal
// label like "::lit_3" — leaves the clone with its prototype's type,
// which is what keeps a literal's clone an "Int"/"Char"/"String" that
// store_value will accept. Every string-stamped clone is also registered
// under the stamp in the current scope's Context, which is how
// `P := Object.clone('P');` both creates and binds P in one instruction;
// the internal "::"-prefixed labels land there too, but no identifier a
// user can spell starts with a colon, so they can't collide with user
// bindings.
func hClone(self *Object, stamp bytecode.Stamp, interp Interpreter) (Result, error) {
	newType := self.Type
	classLike := stamp.Kind == bytecode.StampString && IsClassLike(stamp.String)
	if classLike {
		newType = stamp.String
	}

	result := New(self, newType)
	if classLike {
		result.SetDefault("clone")
	}

	if stamp.Kind == bytecode.StampString {
		interp.Context().Set(stamp.String, &Store{Mutable: true, Value: StoreObject{Object: result}})
	}

	return Result{Kind: ResultObject, Object: result}, nil
}

// hCloneCallable clones self exactly as hClone does, then additionally
// prepares the fresh object to serve as a function: param_names starts as
// an empty vector ready for store_param calls, and num_passed_params
// starts at zero.
func hCloneCallable(self *Object, stamp bytecode.Stamp, interp Interpreter) (Result, error) {
	res, err := hClone(self, stamp, interp)
	if err != nil {
		return Result{}, err
	}
	res.Object.Set("param_names", &Store{Mutable: true, Value: StoreVec{}})
	res.Object.Set("num_passed_params", &Store{Mutable: true, Value: StoreInt{Value: 0}})
	return res, nil
}

func otherObject(stamp bytecode.Stamp, interp Interpreter) (*Object, error) {
	if stamp.Kind != bytecode.StampRegister {
		return nil, kind.New(kind.DefaultStoreError, "expected a register stamp, got %v", stamp.Kind)
	}
	s, err := interp.ReadRegister(stamp.Register)
	if err != nil {
		return nil, err
	}
	obj, ok := s.Value.(StoreObject)
	if !ok {
		return nil, kind.New(kind.DefaultStoreError, "expected an object in register, got %T", s.Value)
	}
	return obj.Object, nil
}

func intValue(o *Object) (int32, error) {
	if o.Type != "Int" {
		return 0, kind.New(kind.DefaultStoreError, "expected an Int, got %q", o.Type)
	}
	s, ok := o.Get("value")
	if !ok {
		return 0, kind.New(kind.DefaultStoreError, "Int object has no value store")
	}
	iv, ok := s.Value.(StoreInt)
	if !ok {
		return 0, kind.New(kind.DefaultStoreError, "Int object's value store is not an int")
	}
	return iv.Value, nil
}

func hEquals(self *Object, stamp bytecode.Stamp, interp Interpreter) (Result, error) {
	return equality(self, stamp, interp, true)
}

func hNotEquals(self *Object, stamp bytecode.Stamp, interp Interpreter) (Result, error) {
	return equality(self, stamp, interp, false)
}

func equality(self *Object, stamp bytecode.Stamp, interp Interpreter, wantEqual bool) (Result, error) {
	other, err := otherObject(stamp, interp)
	if err != nil {
		return Result{}, err
	}

	var eq bool
	if self.Type == "Int" && other.Type == "Int" {
		a, err := intValue(self)
		if err != nil {
			return Result{}, err
		}
		b, err := intValue(other)
		if err != nil {
			return Result{}, err
		}
		eq = a == b
	} else {
		eq = self.Hash == other.Hash
	}

	result := interp.False()
	if eq == wantEqual {
		result = interp.True()
	}
	return Result{Kind: ResultObject, Object: result}, nil
}

// hStoreValue binds the literal payload carried in stamp into self's
// "value" store, interpreting it according to self's type. Int parses the
// text as a base-10 integer and binds it mutably, since arithmetic
// defaults mutate a clone's value store in place; Char and String bind
// their payload immutably since nothing in the closed instruction set
// ever needs to rewrite a literal's text after construction.
func hStoreValue(self *Object, stamp bytecode.Stamp, interp Interpreter) (Result, error) {
	if stamp.Kind != bytecode.StampString {
		return Result{}, kind.New(kind.DefaultStoreError, "store_value requires a literal stamp")
	}

	switch self.Type {
	case "Int":
		n, err := strconv.ParseInt(stamp.String, 10, 32)
		if err != nil {
			return Result{}, kind.Wrap(kind.DefaultStoreError, err, "store_value: invalid Int literal %q", stamp.String)
		}
		self.Set("value", &Store{Mutable: true, Value: StoreInt{Value: int32(n)}})
	case "Char":
		if len(stamp.String) == 0 {
			return Result{}, kind.New(kind.DefaultStoreError, "store_value: empty Char literal")
		}
		self.Set("value", &Store{Mutable: false, Value: StoreChar{Value: stamp.String[0]}})
	case "String":
		self.Set("value", &Store{Mutable: false, Value: StoreLiteral{Value: stamp.String}})
	default:
		return Result{}, kind.New(kind.DefaultStoreError, "store_value: unsupported type %q", self.Type)
	}

	return Result{Kind: ResultObject, Object: self}, nil
}

// hGet indexes self's "value" vector by the Int held in stamp's register,
// unwrapping the element's Store variant into the appropriate Result shape.
func hGet(self *Object, stamp bytecode.Stamp, interp Interpreter) (Result, error) {
	idxObj, err := otherObject(stamp, interp)
	if err != nil {
		return Result{}, err
	}
	idx, err := intValue(idxObj)
	if err != nil {
		return Result{}, err
	}

	s, ok := self.Get("value")
	if !ok {
		return Result{}, kind.New(kind.DefaultStoreError, "get: receiver has no value store")
	}
	vec, ok := s.Value.(StoreVec)
	if !ok {
		return Result{}, kind.New(kind.DefaultStoreError, "get: receiver's value store is not a vector")
	}
	if idx < 0 || int(idx) >= len(vec.Values) {
		return Result{}, kind.New(kind.DefaultStoreError, "get: index %d out of range (len %d)", idx, len(vec.Values))
	}

	return resultFromStore(vec.Values[idx]), nil
}

// hPush appends the object held in stamp's register to self's "value"
// vector, creating it empty on first use.
func hPush(self *Object, stamp bytecode.Stamp, interp Interpreter) (Result, error) {
	obj, err := otherObject(stamp, interp)
	if err != nil {
		return Result{}, err
	}

	s, ok := self.Get("value")
	if !ok {
		s = &Store{Mutable: true, Value: StoreVec{}}
		self.Set("value", s)
	}
	vec, ok := s.Value.(StoreVec)
	if !ok {
		return Result{}, kind.New(kind.DefaultStoreError, "push: receiver's value store is not a vector")
	}
	vec.Values = append(vec.Values, &Store{Mutable: true, Value: StoreObject{Object: obj}})
	s.Value = vec

	return Result{Kind: ResultObject, Object: self}, nil
}

// hStoreParam appends a fresh String object carrying the parameter name
// to self's param_names vector.
func hStoreParam(self *Object, stamp bytecode.Stamp, interp Interpreter) (Result, error) {
	if stamp.Kind != bytecode.StampString {
		return Result{}, kind.New(kind.DefaultStoreError, "store_param requires a literal stamp")
	}
	strProto, err := interp.Builtin("String")
	if err != nil {
		return Result{}, err
	}

	nameObj := New(strProto, "String")
	nameObj.Set("value", &Store{Mutable: false, Value: StoreLiteral{Value: stamp.String}})

	s, ok := self.Get("param_names")
	if !ok {
		return Result{}, kind.New(kind.DefaultStoreError, "store_param: receiver has no param_names store")
	}
	vec, ok := s.Value.(StoreVec)
	if !ok {
		return Result{}, kind.New(kind.DefaultStoreError, "store_param: param_names store is not a vector")
	}
	vec.Values = append(vec.Values, &Store{Mutable: true, Value: StoreObject{Object: nameObj}})
	s.Value = vec

	return Result{Kind: ResultObject, Object: self}, nil
}

// hPassBody records the function body's entry block, handed over as a
// raw block-index stamp.
func hPassBody(self *Object, stamp bytecode.Stamp, interp Interpreter) (Result, error) {
	if stamp.Kind != bytecode.StampBlock {
		return Result{}, kind.New(kind.DefaultStoreError, "pass_body requires a block stamp")
	}
	self.Set("body", &Store{Mutable: false, Value: StoreRegister{Block: stamp.Block}})
	return Result{Kind: ResultObject, Object: self}, nil
}

// hPassParam resolves the next unfilled parameter name from param_names
// (indexed by num_passed_params) and arranges for it to be bound, once the
// body's Context is pushed, to the argument value — taken from a register
// when the stamp carries one, or resolved by name through the
// interpreter's FetchBinding walk (innermost scope outward, then the
// global Context) when the stamp carries a bare identifier instead.
func hPassParam(self *Object, stamp bytecode.Stamp, interp Interpreter) (Result, error) {
	bodyStore, ok := self.Get("body")
	if !ok {
		return Result{}, kind.New(kind.DefaultStoreError, "pass_param: receiver has no body store")
	}
	body, ok := bodyStore.Value.(StoreRegister)
	if !ok {
		return Result{}, kind.New(kind.DefaultStoreError, "pass_param: body store is not a block reference")
	}

	countStore, ok := self.Get("num_passed_params")
	if !ok {
		return Result{}, kind.New(kind.DefaultStoreError, "pass_param: receiver has no num_passed_params store")
	}
	count, ok := countStore.Value.(StoreInt)
	if !ok {
		return Result{}, kind.New(kind.DefaultStoreError, "pass_param: num_passed_params store is not an int")
	}

	namesStore, ok := self.Get("param_names")
	if !ok {
		return Result{}, kind.New(kind.DefaultStoreError, "pass_param: receiver has no param_names store")
	}
	names, ok := namesStore.Value.(StoreVec)
	if !ok {
		return Result{}, kind.New(kind.DefaultStoreError, "pass_param: param_names store is not a vector")
	}
	if int(count.Value) >= len(names.Values) {
		return Result{}, kind.New(kind.DefaultStoreError, "pass_param: more arguments passed than parameters declared")
	}

	nameObj, ok := names.Values[count.Value].Value.(StoreObject)
	if !ok {
		return Result{}, kind.New(kind.DefaultStoreError, "pass_param: param_names element is not an object")
	}
	nameStore, ok := nameObj.Object.Get("value")
	if !ok {
		return Result{}, kind.New(kind.DefaultStoreError, "pass_param: parameter name object has no value store")
	}
	paramName, ok := nameStore.Value.(StoreLiteral)
	if !ok {
		return Result{}, kind.New(kind.DefaultStoreError, "pass_param: parameter name is not a literal")
	}

	var value *Object
	switch stamp.Kind {
	case bytecode.StampRegister:
		s, err := interp.ReadRegister(stamp.Register)
		if err != nil {
			return Result{}, err
		}
		obj, ok := s.Value.(StoreObject)
		if !ok {
			return Result{}, kind.New(kind.DefaultStoreError, "pass_param: register does not hold an object")
		}
		value = obj.Object
	case bytecode.StampString:
		s, ok := interp.FetchBinding(stamp.String)
		if !ok {
			return Result{}, kind.New(kind.DefaultStoreError, "pass_param: no binding named %q", stamp.String)
		}
		obj, ok := s.Value.(StoreObject)
		if !ok {
			return Result{}, kind.New(kind.DefaultStoreError, "pass_param: binding %q is not an object", stamp.String)
		}
		value = obj.Object
	default:
		return Result{}, kind.New(kind.DefaultStoreError, "pass_param requires a register or name stamp")
	}

	interp.BindPending(body.Block, paramName.Value, value)
	countStore.Value = StoreInt{Value: count.Value + 1}

	return Result{Kind: ResultObject, Object: self}, nil
}

// hCall transfers control to self's body block, saving the return site,
// and resets num_passed_params to zero so the next call's pass_param
// sends fill the parameters from the first one again.
func hCall(self *Object, stamp bytecode.Stamp, interp Interpreter) (Result, error) {
	bodyStore, ok := self.Get("body")
	if !ok {
		return Result{}, kind.New(kind.DefaultStoreError, "call: receiver has no body store")
	}
	body, ok := bodyStore.Value.(StoreRegister)
	if !ok {
		return Result{}, kind.New(kind.DefaultStoreError, "call: body store is not a block reference")
	}
	if err := interp.SaveAndJump(body.Block); err != nil {
		return Result{}, err
	}
	if countStore, ok := self.Get("num_passed_params"); ok {
		countStore.Value = StoreInt{Value: 0}
	}
	return Result{Kind: ResultObject, Object: self}, nil
}

// hGetReturnValue pops whatever value the most recent JumpSaved pushed.
func hGetReturnValue(self *Object, stamp bytecode.Stamp, interp Interpreter) (Result, error) {
	s, ok := interp.PopReturnValue()
	if !ok {
		return Result{}, kind.New(kind.ExecutionError, "get_return_value: no pending return value")
	}
	return resultFromStore(s), nil
}

// arith builds an arithmetic default: clone self's prototype (self itself,
// since self is already the concrete Int instance), compute the operator
// over both operands' native values, and mutably bind the result.
func arith(op func(a, b int32) (int32, error)) handler {
	return func(self *Object, stamp bytecode.Stamp, interp Interpreter) (Result, error) {
		other, err := otherObject(stamp, interp)
		if err != nil {
			return Result{}, err
		}
		a, err := intValue(self)
		if err != nil {
			return Result{}, err
		}
		b, err := intValue(other)
		if err != nil {
			return Result{}, err
		}
		v, err := op(a, b)
		if err != nil {
			return Result{}, err
		}

		result := New(self, "Int")
		result.Set("value", &Store{Mutable: true, Value: StoreInt{Value: v}})
		return Result{Kind: ResultObject, Object: result}, nil
	}
}

// compare builds a comparison default returning the global True/False
// singleton rather than a freshly cloned Int.
func compare(op func(a, b int32) bool) handler {
	return func(self *Object, stamp bytecode.Stamp, interp Interpreter) (Result, error) {
		other, err := otherObject(stamp, interp)
		if err != nil {
			return Result{}, err
		}
		a, err := intValue(self)
		if err != nil {
			return Result{}, err
		}
		b, err := intValue(other)
		if err != nil {
			return Result{}, err
		}

		result := interp.False()
		if op(a, b) {
			result = interp.True()
		}
		return Result{Kind: ResultObject, Object: result}, nil
	}
}
