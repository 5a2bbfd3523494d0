package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

// NewUpstreamError reports a failed call to Slack or iTop.
func NewUpstreamError(op string, err error) error {
	return &DomainError{
		Code:       "UPSTREAM_FAILED",
		Message:    op + " failed",
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"operation": op},
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// BestEffortError marks a failure that is logged and then ignored.
type BestEffortError struct {
	Op  string
	Err error
}

func (e *BestEffortError) Error() string {
	return fmt.Sprintf("best-effort %s: %v", e.Op, e.Err)
}

func (e *BestEffortError) Unwrap() error {
	return e.Err
}

// NewBestEffort wraps err as non-fatal. A nil err stays nil.
func NewBestEffort(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BestEffortError{Op: op, Err: err}
}

// IsBestEffort reports whether err belongs to the non-fatal category.
func IsBestEffort(err error) bool {
	var be *BestEffortError
	return errors.As(err, &be)
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
