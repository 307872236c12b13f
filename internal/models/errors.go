package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrCancelled = errors.New("cancelled")
)

// ValidationError reports bad input to an operation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ConflictError is returned when a state precondition no longer holds, such as
// enqueueing an item that already has an open queue entry.
type ConflictError struct {
	Resource string
	ID       string
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Resource, e.ID, e.Reason)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func NewConflictError(resource, id, reason string) *ConflictError {
	return &ConflictError{Resource: resource, ID: id, Reason: reason}
}

type ExternalErrorKind int

const (
	ExternalTransient ExternalErrorKind = iota
	ExternalPermanent
)

func (k ExternalErrorKind) String() string {
	if k == ExternalPermanent {
		return "permanent"
	}
	return "transient"
}

// ExternalError wraps a failure from the posting platform or media host.
// StatusCode is the HTTP status when one was received, Code the platform
// error code when the body carried one.
type ExternalError struct {
	Kind       ExternalErrorKind
	StatusCode int
	Code       int
	Message    string
	Err        error
}

func (e *ExternalError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("external %s error (status %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("external %s error: %s", e.Kind, msg)
}

func (e *ExternalError) Unwrap() error {
	return e.Err
}

func NewTransientError(statusCode int, message string, err error) *ExternalError {
	return &ExternalError{Kind: ExternalTransient, StatusCode: statusCode, Message: message, Err: err}
}

func NewPermanentError(statusCode int, message string, err error) *ExternalError {
	return &ExternalError{Kind: ExternalPermanent, StatusCode: statusCode, Message: message, Err: err}
}
