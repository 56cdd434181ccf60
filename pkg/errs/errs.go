// Package errs defines the error taxonomy shared by the hoverfly-go packages.
//
// Every error that crosses a package boundary is an *Error carrying the
// operation that failed and a stable Kind for programmatic dispatch:
//
//	if errs.Is(err, errs.KindBadSimulation) {
//	    // fix the fixture
//	}
//
// Sentinels exist for each kind so errors.Is works as well:
//
//	if errors.Is(err, errs.ErrTimeout) { ... }
package errs

import (
	"errors"
	"fmt"
)

// Kind is a stable tag identifying the class of an error.
type Kind string

// Error kinds.
const (
	KindNetwork         Kind = "NetworkError"
	KindTimeout         Kind = "TimeoutError"
	KindProtocol        Kind = "ProtocolError"
	KindSchema          Kind = "SchemaError"
	KindInvalidArgument Kind = "InvalidArgument"
	KindProxy           Kind = "ProxyError"
	KindBadSimulation   Kind = "BadSimulation"
	KindBadMatcher      Kind = "BadMatcher"
	KindInvalidMode     Kind = "InvalidMode"
	KindBinaryNotFound  Kind = "BinaryNotFound"
	KindStartupTimeout  Kind = "StartupTimeout"
	KindAlreadyStarted  Kind = "AlreadyStarted"
	KindNotStarted      Kind = "NotStarted"
)

// Sentinels for use with errors.Is. They match any *Error of the same kind.
var (
	ErrNetwork         = &Error{Kind: KindNetwork}
	ErrTimeout         = &Error{Kind: KindTimeout}
	ErrProtocol        = &Error{Kind: KindProtocol}
	ErrSchema          = &Error{Kind: KindSchema}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrProxy           = &Error{Kind: KindProxy}
	ErrBadSimulation   = &Error{Kind: KindBadSimulation}
	ErrBadMatcher      = &Error{Kind: KindBadMatcher}
	ErrInvalidMode     = &Error{Kind: KindInvalidMode}
	ErrBinaryNotFound  = &Error{Kind: KindBinaryNotFound}
	ErrStartupTimeout  = &Error{Kind: KindStartupTimeout}
	ErrAlreadyStarted  = &Error{Kind: KindAlreadyStarted}
	ErrNotStarted      = &Error{Kind: KindNotStarted}
)

// Error is the error type returned across package boundaries.
type Error struct {
	// Op names the operation that failed, e.g. "adminclient.SetMode".
	Op string
	// Kind classifies the failure.
	Kind Kind
	// Status is the HTTP status of the admin API response, when there was one.
	Status int
	// Message is the human-readable detail, usually the proxy's error envelope.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

// E builds an *Error for op and kind wrapping err.
func E(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Errorf builds an *Error for op and kind with a formatted message.
func Errorf(op string, kind Kind, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel (no Op) of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
