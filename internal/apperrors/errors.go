// Package apperrors holds the error kinds shared by the dispatch path, the
// platform clients and the delivery worker.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrPlatformNotConnected   = errors.New("platform not connected")
	ErrUnsupportedMediaType   = errors.New("unsupported media type")
	ErrMediaUploadFailed      = errors.New("media upload failed")
	ErrMediaProcessingFailed  = errors.New("media processing failed")
	ErrMediaProcessingTimeout = errors.New("media processing timed out")
	ErrTweetPostingFailed     = errors.New("tweet posting failed")
	ErrLinkedInPostingFailed  = errors.New("linkedin posting failed")
	ErrQueueUnavailable       = errors.New("queue unavailable")
	ErrMediaFileNotFound      = errors.New("media file not found")
	ErrInvalidScheduleTime    = errors.New("scheduled time must be in the future")
)

// ValidationError reports every violation found in a request.
type ValidationError struct {
	Message    string
	Violations []string
}

func NewValidationError(message string, violations ...string) *ValidationError {
	return &ValidationError{Message: message, Violations: violations}
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Violations, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// PlatformError carries the platform response behind a failed upload or publish.
type PlatformError struct {
	Kind       error
	Platform   string
	StatusCode int
	Detail     string
	Err        error
}

func (e *PlatformError) Error() string {
	var b strings.Builder
	b.WriteString(e.Platform)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *PlatformError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Retryable reports whether a failed delivery may succeed on another attempt.
// Bad input and missing connections never will.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrPlatformNotConnected),
		errors.Is(err, ErrUnsupportedMediaType):
		return false
	}
	return true
}
