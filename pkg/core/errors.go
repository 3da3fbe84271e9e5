package core

import (
	"errors"
	"fmt"
)

// Error is the canonical error shape surfaced by the call core.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Param   string    `json:"param,omitempty"`
	Code    string    `json:"code,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrSessionNotFound is the only error condition the orchestrator
	// propagates to callers: the referenced session is unknown or closed.
	ErrSessionNotFound ErrorType = "session_not_found"

	// Collaborator failures. These are recovered by stage fallbacks inside
	// the pipeline and never surface as a failed turn.
	ErrClassifierUnavailable ErrorType = "classifier_unavailable"
	ErrRetrieverUnavailable  ErrorType = "retriever_unavailable"
	ErrGenerationUnavailable ErrorType = "generation_unavailable"
	ErrGenerationTimeout     ErrorType = "generation_timeout"
	ErrSynthesisUnavailable  ErrorType = "synthesis_unavailable"

	// Transport-level categories.
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrPermission     ErrorType = "permission_error"
	ErrAPI            ErrorType = "api_error"
	ErrOverloaded     ErrorType = "overloaded_error"
)

// NewSessionNotFoundError creates the client error for an unknown or closed session.
func NewSessionNotFoundError(sessionID string) *Error {
	return &Error{
		Type:    ErrSessionNotFound,
		Message: fmt.Sprintf("session %q is unknown or closed", sessionID),
	}
}

// NewClassifierError wraps an emotion classifier failure.
func NewClassifierError(underlying error) *Error {
	return &Error{
		Type:    ErrClassifierUnavailable,
		Message: fmt.Sprintf("emotion classifier: %v", underlying),
	}
}

// NewRetrieverError wraps a context retriever failure.
func NewRetrieverError(underlying error) *Error {
	return &Error{
		Type:    ErrRetrieverUnavailable,
		Message: fmt.Sprintf("context retriever: %v", underlying),
	}
}

// NewGenerationError wraps a responder failure.
func NewGenerationError(underlying error) *Error {
	return &Error{
		Type:    ErrGenerationUnavailable,
		Message: fmt.Sprintf("responder: %v", underlying),
	}
}

// NewGenerationTimeoutError marks a responder call that exceeded its budget.
func NewGenerationTimeoutError() *Error {
	return &Error{
		Type:    ErrGenerationTimeout,
		Message: "responder did not answer within the turn budget",
	}
}

// NewSynthesisError wraps a speech synthesis failure.
func NewSynthesisError(underlying error) *Error {
	return &Error{
		Type:    ErrSynthesisUnavailable,
		Message: fmt.Sprintf("speaker: %v", underlying),
	}
}

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewAuthenticationError creates an authentication error.
func NewAuthenticationError(message string) *Error {
	return &Error{
		Type:    ErrAuthentication,
		Message: message,
	}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{
		Type:    ErrAPI,
		Message: message,
	}
}

// IsSessionNotFound reports whether err is a session-not-found error.
func IsSessionNotFound(err error) bool {
	var coreErr *Error
	return errors.As(err, &coreErr) && coreErr.Type == ErrSessionNotFound
}
