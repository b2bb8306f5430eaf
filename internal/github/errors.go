// internal/github/errors.go
package github

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/google/go-github/v62/github"
)

// TransientError marks a failed call that may succeed if retried:
// transport failures, 5xx responses and rate limiting.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("github: %s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// APIError is a non-retryable error response from the GitHub API.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: %s: API error %d: %s", e.Op, e.StatusCode, e.Message)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var tErr *TransientError
	return errors.As(err, &tErr)
}

// IsUnauthorized reports whether the credential was rejected.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// IsUnavailable reports whether the resource cannot be listed for this credential,
// e.g. an empty repository (409), disabled issues (410), or a missing or forbidden resource.
func IsUnavailable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusGone,
		http.StatusUnavailableForLegalReasons:
		return true
	}
	return false
}

// classify converts go-github errors into TransientError or APIError.
// Context cancellation is returned untouched.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &TransientError{Op: op, Err: err}
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &TransientError{Op: op, Err: err}
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		code := respErr.Response.StatusCode
		if code >= http.StatusInternalServerError || code == http.StatusTooManyRequests {
			return &TransientError{Op: op, Err: err}
		}
		return &APIError{Op: op, StatusCode: code, Message: respErr.Message}
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return &TransientError{Op: op, Err: err}
	}

	return fmt.Errorf("github: %s: %w", op, err)
}
