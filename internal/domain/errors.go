package domain

import (
	"errors"
	"fmt"
)

// ErrMissingCredential is returned when no API key is configured for the
// Generation Service. It is detected before any network call.
var ErrMissingCredential = errors.New("generation service credential is not configured")

// FailureCategory is the machine-readable class of a provider failure.
type FailureCategory string

const (
	FailureQuotaExceeded   FailureCategory = "quota_exceeded"
	FailureInvalidArgument FailureCategory = "invalid_argument"
	FailureUnclassified    FailureCategory = "unclassified"
)

// ProviderError is a Generation Service failure carrying a structured
// category. Providers return it instead of leaving callers to inspect
// error strings.
type ProviderError struct {
	Category FailureCategory
	Code     int
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("provider: %s: %s", e.Category, e.Message)
	}
	return fmt.Sprintf("provider: %s: %s: %v", e.Category, e.Message, e.Err)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NotFoundError reports a session id that is absent from the store.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session %q not found", e.ID)
}
