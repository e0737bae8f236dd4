package result

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind uint8

const (
	// KindNone is the zero kind; it never appears on a returned error.
	KindNone Kind = iota

	// KindInvalidHandle indicates an unbound proxy or command, a vanished
	// target, an empty value or an unknown call id.
	KindInvalidHandle

	// KindNameNotFound indicates a registry lookup miss.
	KindNameNotFound

	// KindNoSuchAttribute indicates an attribute name outside the declared set.
	KindNoSuchAttribute

	// KindInvalidIndex indicates an index or id outside the declared set.
	KindInvalidIndex

	// KindWrongAttributeType indicates the caller's expected attribute type
	// disagrees with the declared one.
	KindWrongAttributeType

	// KindSignatureMismatch indicates a command descriptor or parameter list
	// disagrees with the registered signature.
	KindSignatureMismatch

	// KindTypeMismatch indicates typed access with the wrong type.
	KindTypeMismatch

	// KindNotReady indicates a poll before the result arrived.
	KindNotReady

	// KindTimeout indicates a deadline passed without completion. The call
	// remains outstanding.
	KindTimeout

	// KindReadOnly indicates a write to a read-only attribute.
	KindReadOnly

	// KindRemote indicates the engine-side handler failed.
	KindRemote
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "NONE"
	case KindInvalidHandle:
		return "INVALID_HANDLE"
	case KindNameNotFound:
		return "NAME_NOT_FOUND"
	case KindNoSuchAttribute:
		return "NO_SUCH_ATTRIBUTE"
	case KindInvalidIndex:
		return "INVALID_INDEX"
	case KindWrongAttributeType:
		return "WRONG_ATTRIBUTE_TYPE"
	case KindSignatureMismatch:
		return "SIGNATURE_MISMATCH"
	case KindTypeMismatch:
		return "TYPE_MISMATCH"
	case KindNotReady:
		return "NOT_READY"
	case KindTimeout:
		return "TIMEOUT"
	case KindReadOnly:
		return "READ_ONLY"
	case KindRemote:
		return "REMOTE"
	default:
		return "UNKNOWN"
	}
}

// Error is a classified failure.
type Error struct {
	Kind        Kind
	Code        int
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Description
}

// Is reports whether target is an *Error of the same kind. The code and
// description do not take part, so the package sentinels match any error
// of their kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for use with errors.Is.
var (
	ErrInvalidHandle      = &Error{Kind: KindInvalidHandle}
	ErrNameNotFound       = &Error{Kind: KindNameNotFound}
	ErrNoSuchAttribute    = &Error{Kind: KindNoSuchAttribute}
	ErrInvalidIndex       = &Error{Kind: KindInvalidIndex}
	ErrWrongAttributeType = &Error{Kind: KindWrongAttributeType}
	ErrSignatureMismatch  = &Error{Kind: KindSignatureMismatch}
	ErrTypeMismatch       = &Error{Kind: KindTypeMismatch}
	ErrNotReady           = &Error{Kind: KindNotReady}
	ErrTimeout            = &Error{Kind: KindTimeout}
	ErrReadOnly           = &Error{Kind: KindReadOnly}
	ErrRemote             = &Error{Kind: KindRemote}
)

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Description: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or KindNone if err does not wrap an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}

// Outcome holds exactly one of a value or an error.
type Outcome[T any] struct {
	value T
	err   error
}

// Ok returns a successful outcome.
func Ok[T any](v T) Outcome[T] {
	return Outcome[T]{value: v}
}

// Fail returns a failed outcome. A nil err is replaced by an
// INVALID_HANDLE error so that a failed outcome never looks successful.
func Fail[T any](err error) Outcome[T] {
	if err == nil {
		err = New(KindInvalidHandle, "failed outcome without error")
	}
	return Outcome[T]{err: err}
}

// Of builds an outcome from a (value, error) pair.
func Of[T any](v T, err error) Outcome[T] {
	if err != nil {
		return Fail[T](err)
	}
	return Ok(v)
}

// IsOk returns true if the outcome holds a value.
func (o Outcome[T]) IsOk() bool { return o.err == nil }

// Err returns the error, or nil on success.
func (o Outcome[T]) Err() error { return o.err }

// Get returns the value and error.
func (o Outcome[T]) Get() (T, error) {
	return o.value, o.err
}
