package rowsync

import (
	"errors"
	"fmt"
)

// Kind класс ошибки протокола синхронизации
type Kind int

const (
	// KindValidation malformed request or mutation args
	KindValidation Kind = iota + 1
	// KindAuthorization caller does not own the group, client or row
	KindAuthorization
	// KindSequence mutation id arrived out of order
	KindSequence
	// KindBusiness domain handler failed; recorded via error mode
	KindBusiness
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindSequence:
		return "sequence"
	case KindBusiness:
		return "business"
	default:
		return "internal"
	}
}

// Error типизированная ошибка протокола
type Error struct {
	Err  error
	Kind Kind
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ValidationErrorf returns a KindValidation error.
func ValidationErrorf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

// AuthorizationErrorf returns a KindAuthorization error.
func AuthorizationErrorf(format string, args ...any) error {
	return &Error{Kind: KindAuthorization, Err: fmt.Errorf(format, args...)}
}

// SequenceErrorf returns a KindSequence error.
func SequenceErrorf(format string, args ...any) error {
	return &Error{Kind: KindSequence, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of err, or 0 for untyped (internal) errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
