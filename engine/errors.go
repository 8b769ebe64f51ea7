package engine

import (
	"errors"
	"fmt"
)

// Kind identifies the category of error the core returns to a caller.
type Kind int

const (
	// KindOverload means the transaction slot table was exhausted at Begin.
	KindOverload Kind = iota
	// KindAborted means the transaction was chosen as a deadlock victim,
	// Abort was called, or its write-set overflowed.
	KindAborted
	// KindNotFound means Get found the key in neither the write-set nor the KV Map.
	KindNotFound
	// KindWritesetFull means Put pushed the write-set past MaxWrites.
	KindWritesetFull
	// KindInvalid means malformed input (e.g. an over-length key); no state changed.
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindOverload:
		return "OVERLOAD"
	case KindAborted:
		return "ABORTED"
	case KindNotFound:
		return "NOT_FOUND"
	case KindWritesetFull:
		return "WRITESET_FULL"
	case KindInvalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

// Error wraps a Kind with a human-readable message.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// ErrKind reports the Kind of err if it (or something it wraps) is an *Error.
func ErrKind(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
