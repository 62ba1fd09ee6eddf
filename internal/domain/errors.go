package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrStateConflict       = errors.New("state conflict")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrLocked              = errors.New("withdrawal locked")
	ErrCompensationFailure = errors.New("compensation failed")
	ErrVersionMismatch     = errors.New("version mismatch")
)

// Error is a caller-facing error whose Kind is one of the sentinels above.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...interface{}) error {
	return newError(ErrValidation, format, args...)
}

func NotFoundf(format string, args ...interface{}) error {
	return newError(ErrNotFound, format, args...)
}

func Conflictf(format string, args ...interface{}) error {
	return newError(ErrStateConflict, format, args...)
}

func InsufficientFundsf(format string, args ...interface{}) error {
	return newError(ErrInsufficientFunds, format, args...)
}

func Lockedf(format string, args ...interface{}) error {
	return newError(ErrLocked, format, args...)
}

// CompensationError reports a multi-step write that could not be undone.
// Money may be stranded until an operator or the outbox worker reconciles it.
type CompensationError struct {
	Reference string
	WalletID  string
	Cause     error
	Undo      error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation failed for %s on wallet %s: %v (original failure: %v)", e.Reference, e.WalletID, e.Undo, e.Cause)
}

func (e *CompensationError) Unwrap() error { return ErrCompensationFailure }

// Message returns the caller-facing text of err, falling back to a generic one.
func Message(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Error()
	}
	var ce *CompensationError
	if errors.As(err, &ce) {
		return "operation failed and could not be reversed; reference " + ce.Reference
	}
	return "internal error"
}
