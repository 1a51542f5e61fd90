package wheel

import (
	"errors"
	"fmt"
)

// Kind classifies a wheel failure. Callers switch on the kind, never on the message.
type Kind string

const (
	KindUninitialized            Kind = "uninitialized"
	KindAlreadyInitialized       Kind = "already_initialized"
	KindInvalidMultiplierCount   Kind = "invalid_multiplier_count"
	KindInvalidMultiplier        Kind = "invalid_multiplier"
	KindEntropySourceUnavailable Kind = "entropy_source_unavailable"
	KindVerificationMismatch     Kind = "verification_mismatch"
	KindInvalidWheelID           Kind = "invalid_wheel_id"
	KindNotFound                 Kind = "not_found"
)

// Error is the typed failure returned by every wheel operation.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wheel: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("wheel: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels work with errors.Is
// regardless of message or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrUninitialized            = &Error{Kind: KindUninitialized, Message: "wheel config does not exist"}
	ErrAlreadyInitialized       = &Error{Kind: KindAlreadyInitialized, Message: "wheel config already exists"}
	ErrInvalidMultiplierCount   = &Error{Kind: KindInvalidMultiplierCount, Message: "exactly 8 multipliers are required"}
	ErrInvalidMultiplier        = &Error{Kind: KindInvalidMultiplier, Message: "multiplier does not fit in 16 bits"}
	ErrEntropySourceUnavailable = &Error{Kind: KindEntropySourceUnavailable, Message: "entropy anchor could not be read"}
	ErrVerificationMismatch     = &Error{Kind: KindVerificationMismatch, Message: "recomputed spin does not match"}
	ErrInvalidWheelID           = &Error{Kind: KindInvalidWheelID, Message: "invalid wheel id"}
	ErrNotFound                 = &Error{Kind: KindNotFound, Message: "record not found"}
)

// Errorf builds an error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new error of the given kind.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
