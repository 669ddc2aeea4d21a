package storage

import (
	"errors"
	"fmt"
)

// Kind classifies storage errors so callers can branch on failure class
// without matching message text.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig       // unknown protocol, missing required field; raised before I/O
	KindConnection   // handshake rejected, host unreachable
	KindListing      // both structured and plain listing attempts failed
	KindRead         // ranged read rejected, size header missing
	KindParse        // listing body uninterpretable under any mode
	KindNotConnected // operation requires a live connection
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindConnection:
		return "connection"
	case KindListing:
		return "listing"
	case KindRead:
		return "read"
	case KindParse:
		return "parse"
	case KindNotConnected:
		return "not_connected"
	default:
		return "unknown"
	}
}

// Error is a kinded storage error wrapping its cause.
type Error struct {
	Kind Kind
	Op   string // operation, e.g. "list", "read", "connect"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("storage %s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a kinded error.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Ef builds a kinded error from a format string.
func Ef(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// ErrNotConnected is returned by facade operations invoked before Connect.
var ErrNotConnected = &Error{Kind: KindNotConnected, Op: "client", Err: errors.New("not connected")}

// ErrSizeUnknown is returned when a backend reports no size for a file.
var ErrSizeUnknown = errors.New("backend reported no size")
