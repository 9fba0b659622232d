package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Every error returned by the services matches exactly one
// of these through errors.Is, or none when it is a programming error.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyRedeemed  = errors.New("already redeemed")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrValidationFailed = errors.New("validation failed")
)

// Error carries the failing operation and a human-readable detail alongside its kind.
type Error struct {
	Kind   error
	Op     string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound reports a missing code, relationship, participant or message.
func NotFound(op, format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// AlreadyRedeemed reports a pairing conflict.
func AlreadyRedeemed(op, format string, args ...any) error {
	return &Error{Kind: ErrAlreadyRedeemed, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// Validation reports an empty or malformed required field.
func Validation(op, format string, args ...any) error {
	return &Error{Kind: ErrValidationFailed, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// Unavailable wraps a transient store failure. A nil cause yields nil so
// call sites can wrap unconditionally.
func Unavailable(op string, cause error) error {
	if cause == nil {
		return nil
	}
	var appErr *Error
	if errors.As(cause, &appErr) {
		return cause
	}
	return &Error{Kind: ErrStoreUnavailable, Op: op, Err: cause}
}

// Retryable reports whether the caller should try the same call again later.
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
