package tool

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed call. Tool-level failures travel inside the
// result envelope; every other kind is returned as a Go error.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindUnknownTool ErrorKind = "unknown_tool"
	KindTransport   ErrorKind = "transport"
	KindTimeout     ErrorKind = "timeout"
	KindTool        ErrorKind = "tool"
)

// Sentinels for matching with [errors.Is]. An [*Error] matches the sentinel
// of its kind.
var (
	ErrValidation  = errors.New("validation error")
	ErrUnknownTool = errors.New("unknown tool")
	ErrTransport   = errors.New("transport error")
	ErrTimeout     = errors.New("timeout")
	ErrTool        = errors.New("tool error")
)

// Error is a classified call failure.
type Error struct {
	Kind ErrorKind
	Tool string
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Kind == KindUnknownTool {
		return msg
	}
	if e.Tool != "" {
		return fmt.Sprintf("%s: %s: %s", e.Tool, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrUnknownTool:
		return e.Kind == KindUnknownTool
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrTool:
		return e.Kind == KindTool
	}
	return false
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// UnknownTool reports a name missing from the registry.
func UnknownTool(name string) *Error {
	return &Error{Kind: KindUnknownTool, Tool: name, Msg: "unknown tool: " + name}
}

// Validation reports an argument problem detected before Run.
func Validation(name, msg string) *Error {
	return &Error{Kind: KindValidation, Tool: name, Msg: msg}
}

// Transport reports that the tool's implementation could not be reached.
func Transport(name string, err error) *Error {
	return &Error{Kind: KindTransport, Tool: name, Err: err}
}

// Timeout reports that the call deadline expired.
func Timeout(name string, err error) *Error {
	return &Error{Kind: KindTimeout, Tool: name, Msg: "call exceeded its deadline", Err: err}
}
