// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrIntegrationNotFound is returned when no identity record exists for a user.
	ErrIntegrationNotFound = errors.New("integration not found")

	// ErrNoAccessToken is returned when an identity record has no stored credential.
	ErrNoAccessToken = errors.New("no access token found")

	// ErrSyncInProgress is returned when a resync is requested for an identity that is already syncing.
	ErrSyncInProgress = errors.New("resync already in progress")
)

// ValidationError is returned when a request is rejected before touching the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError with a formatted reason.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

// SyncFailedError is the single failure surfaced when a resync aborts.
// Data written before the failing stage is left in place.
type SyncFailedError struct {
	UserID int64
	Stage  string
	Err    error
}

func (e *SyncFailedError) Error() string {
	return fmt.Sprintf("resync for user %d failed during %s: %v", e.UserID, e.Stage, e.Err)
}

func (e *SyncFailedError) Unwrap() error {
	return e.Err
}
