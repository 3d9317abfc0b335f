package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorNotFound     ErrorCode = "NOT_FOUND"
	ErrorSessionBusy  ErrorCode = "SESSION_BUSY"
	ErrorInternal     ErrorCode = "INTERNAL_ERROR"
)

var (
	// ErrEmptyInput is returned when a blank message reaches Submit or Send.
	// Nothing is appended or persisted.
	ErrEmptyInput = errors.New("usecase: message text is empty")
	// ErrSessionBusy is returned when a submission is already in flight for
	// the same session.
	ErrSessionBusy = errors.New("usecase: a submission is already in flight for this session")
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
