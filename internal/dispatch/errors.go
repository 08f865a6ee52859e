package dispatch

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a dispatch failure.
type ErrorKind uint8

const (
	// ErrorExecution is a failure reported by the native operation itself.
	// It is the zero value, so unclassified errors count as execution errors.
	ErrorExecution ErrorKind = iota
	// ErrorProtocol is a wrong arity or argument type at the call boundary.
	ErrorProtocol
	// ErrorResolution is an identifier that does not name a live target.
	ErrorResolution
	// ErrorUnsupportedCommand is a command name the target does not recognize.
	ErrorUnsupportedCommand
	// ErrorArgumentShape is a command-specific argument validation failure.
	ErrorArgumentShape
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorProtocol:
		return "protocol"
	case ErrorResolution:
		return "resolution"
	case ErrorUnsupportedCommand:
		return "unsupported-command"
	case ErrorArgumentShape:
		return "argument-shape"
	default:
		return "execution"
	}
}

// Sentinels matched by errors.Is against any *Error of the corresponding kind.
var (
	ErrProtocol           = errors.New("protocol error")
	ErrNoSuchTarget       = errors.New("no such target")
	ErrUnsupportedCommand = errors.New("unsupported command")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrExecution          = errors.New("execution failed")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case ErrorProtocol:
		return ErrProtocol
	case ErrorResolution:
		return ErrNoSuchTarget
	case ErrorUnsupportedCommand:
		return ErrUnsupportedCommand
	case ErrorArgumentShape:
		return ErrInvalidArgument
	default:
		return ErrExecution
	}
}

// Error is the failure delivered through Completion.OnFailure. Its Error
// method returns the message shown to the script.
type Error struct {
	Kind       ErrorKind
	TargetKind TargetKind
	Target     string
	Command    string
	// Field names the offending argument for ErrorArgumentShape, as a path
	// rooted at "commandArgs".
	Field string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrorResolution:
		return fmt.Sprintf("no such %s: %q", e.TargetKind, e.Target)
	case ErrorUnsupportedCommand:
		return fmt.Sprintf("%s %q does not support command %q", e.TargetKind, e.Target, e.Command)
	case ErrorArgumentShape:
		if e.Err != nil {
			return fmt.Sprintf("invalid argument %q: %v", e.Field, e.Err)
		}
		return fmt.Sprintf("invalid argument %q", e.Field)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.sentinel().Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf returns the kind of the first *Error in err's chain, or
// ErrorExecution if there is none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ErrorExecution
}

// NewArgumentError reports an invalid field. Handlers use it for checks
// that an ArgSpec cannot express.
func NewArgumentError(field string, format string, args ...any) *Error {
	return &Error{
		Kind:  ErrorArgumentShape,
		Field: field,
		Err:   fmt.Errorf(format, args...),
	}
}
