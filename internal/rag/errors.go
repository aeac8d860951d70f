package rag

import (
	"errors"
	"fmt"

	"github.com/faizmisman/dosm-faq-chatbot/internal/dataset"
	"github.com/faizmisman/dosm-faq-chatbot/internal/vectorindex"
)

// ErrorKind represents the category of a pipeline error
type ErrorKind string

const (
	KindInvalidInput      ErrorKind = "invalid_input"
	KindIndexUnavailable  ErrorKind = "index_unavailable"
	KindBackendTransient  ErrorKind = "backend_transient"
	KindGroundingRejected ErrorKind = "grounding_rejected"
)

// Error is a categorized pipeline error. errors.Is matches on Kind.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError creates a new pipeline error
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

var (
	ErrInvalidInput      = NewError(KindInvalidInput, "invalid input", nil)
	ErrIndexUnavailable  = NewError(KindIndexUnavailable, "index unavailable", nil)
	ErrBackendTransient  = NewError(KindBackendTransient, "backend call failed", nil)
	ErrGroundingRejected = NewError(KindGroundingRejected, "answer not grounded in retrieved rows", nil)
)

// KindOf returns the kind of a pipeline error, or "" for other errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// classifyBuildError maps index build failures onto the taxonomy.
func classifyBuildError(err error) *Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, dataset.ErrInvalidInput):
		return NewError(KindInvalidInput, "dataset rejected", err)
	case errors.Is(err, vectorindex.ErrUnavailable), errors.Is(err, vectorindex.ErrEmpty):
		return NewError(KindIndexUnavailable, "no index could be opened or built", err)
	default:
		return NewError(KindBackendTransient, "index build failed", err)
	}
}
