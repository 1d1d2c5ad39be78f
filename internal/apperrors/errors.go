// Package apperrors defines the error taxonomy shared by the workflow engine,
// the repositories and the HTTP layer. Every caller-visible failure is one of
// these types; anything else is reported as an internal error.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an error for reporting.
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindInvalidTransition Kind = "invalid_transition"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindAuthorization     Kind = "authorization_error"
	KindTransport         Kind = "transport_error"
	KindInternal          Kind = "internal_error"
)

// Classified is implemented by every error in the taxonomy.
type Classified interface {
	error
	Kind() Kind
}

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationError reports malformed or missing input.
type ValidationError struct {
	Message string
	Fields  []FieldError
}

// NewValidation creates a ValidationError with optional field details.
func NewValidation(message string, fields ...FieldError) *ValidationError {
	return &ValidationError{Message: message, Fields: fields}
}

// Field is shorthand for a ValidationError about one field.
func Field(field, message string) *ValidationError {
	return &ValidationError{Message: message, Fields: []FieldError{{Field: field, Message: message}}}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 || e.Message != "" {
		return e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Kind() Kind { return KindValidation }

// InvalidTransitionError reports a status change outside the transition table.
type InvalidTransitionError struct {
	Entity  string
	From    string
	To      string
	Allowed []string
}

func (e *InvalidTransitionError) Error() string {
	allowed := "none"
	if len(e.Allowed) > 0 {
		allowed = strings.Join(e.Allowed, ", ")
	}
	return fmt.Sprintf("invalid %s status transition: %s -> %s (allowed from %s: %s)",
		e.Entity, e.From, e.To, e.From, allowed)
}

func (e *InvalidTransitionError) Kind() Kind { return KindInvalidTransition }

// NotFoundError reports a missing submission, assignment, user or other resource.
type NotFoundError struct {
	Resource string
	ID       string
}

// NewNotFound creates a NotFoundError.
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Kind() Kind { return KindNotFound }

// ConflictError reports a duplicate or already-completed operation.
type ConflictError struct {
	Message string
}

// NewConflict creates a ConflictError.
func NewConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Kind() Kind { return KindConflict }

// AuthorizationError reports an actor lacking the required role or approval.
type AuthorizationError struct {
	Message string
}

// NewAuthorization creates an AuthorizationError.
func NewAuthorization(message string) *AuthorizationError {
	return &AuthorizationError{Message: message}
}

func (e *AuthorizationError) Error() string { return e.Message }

func (e *AuthorizationError) Kind() Kind { return KindAuthorization }

// TransportError reports a failed email send. It never reaches the request
// that caused the notification.
type TransportError struct {
	Transport string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport: %v", e.Transport, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Kind() Kind { return KindTransport }

// KindOf returns the taxonomy kind of err, or KindInternal.
func KindOf(err error) Kind {
	var c Classified
	if errors.As(err, &c) {
		return c.Kind()
	}
	return KindInternal
}

// HTTPStatus maps an error to the status code returned by the API.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindAuthorization:
		return http.StatusForbidden
	case KindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Is reports whether err belongs to kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
