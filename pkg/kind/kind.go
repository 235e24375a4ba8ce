// Package kind defines the closed set of error kinds that can terminate a
// Stamp program, and wraps the underlying cause with a stack trace so the
// terminating sink (cmd/stamp) can print a useful diagnostic.
//
// Every core package (lexer, parser, compiler, object, vm) returns a *Error
// instead of calling os.Exit directly. Only the CLI's terminating sink
// actually ends the process; that separation keeps the core testable.
package kind

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Kind is one of the six terminating error categories from the Stamp
// error handling design. The zero value is not a valid Kind.
type Kind int

const (
	// LexingError covers malformed tokens, unterminated literals, and
	// excessive token length.
	LexingError Kind = iota + 1

	// ParsingError covers grammar violations and unexpected end of file.
	ParsingError

	// BytecodeGenerationError covers break/continue outside a valid scope,
	// stores into non-objects, and unsupported AST node kinds.
	BytecodeGenerationError

	// DefaultStoreError covers a built-in applied to an incompatible type.
	DefaultStoreError

	// FileParsingError covers an unknown tag byte or stamp tag while
	// reading a bytecode file.
	FileParsingError

	// ExecutionError covers a read from an empty register, a missing
	// binding, a send to a non-object, an immutable-store rebind, or a
	// duplicate in-flight return value.
	ExecutionError
)

// String renders the kind the way the terminating sink prints it:
// "Kind: message".
func (k Kind) String() string {
	switch k {
	case LexingError:
		return "LexingError"
	case ParsingError:
		return "ParsingError"
	case BytecodeGenerationError:
		return "BytecodeGenerationError"
	case DefaultStoreError:
		return "DefaultStoreError"
	case FileParsingError:
		return "FileParsingError"
	case ExecutionError:
		return "ExecutionError"
	default:
		return "UnknownError"
	}
}

// Error is a terminating error tagged with its Kind. Wrapping with
// github.com/pkg/errors at construction time means the sink can print a
// stack trace (with %+v) back to the exact call site that raised it, which
// matters most for DefaultStoreError and ExecutionError: both can be raised
// many call frames below the Send that triggered them.
type Error struct {
	K   Kind
	Err error
}

// New builds an *Error of the given kind from a message, capturing a stack
// trace at the call site.
func New(k Kind, format string, args ...interface{}) *Error {
	return &Error{K: k, Err: errors.Errorf(format, args...)}
}

// Wrap builds an *Error of the given kind around an existing cause,
// capturing a stack trace at the call site. If cause is already a *Error of
// the same kind it is returned unwrapped, so repeated propagation through
// several call frames doesn't nest kinds.
func Wrap(k Kind, cause error, format string, args ...interface{}) *Error {
	if e, ok := cause.(*Error); ok && e.K == k {
		return e
	}
	return &Error{K: k, Err: errors.Wrapf(cause, format, args...)}
}

// Error implements the error interface as "Kind: message".
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.K, e.Err)
}

// Unwrap exposes the wrapped cause to errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.Err }

// Format renders "Kind: message" for %s and %v, and adds the cause's
// stack trace for %+v, delegating to github.com/pkg/errors' formatting.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s: %+v", e.K, e.Err)
			return
		}
		io.WriteString(s, e.Error())
	case 's':
		io.WriteString(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}

// StackTrace exposes the github.com/pkg/errors stack trace of the cause, if
// the cause carries one, so the sink can print it with -v style detail.
func (e *Error) StackTrace() errors.StackTrace {
	type tracer interface{ StackTrace() errors.StackTrace }
	if t, ok := e.Err.(tracer); ok {
		return t.StackTrace()
	}
	return nil
}
