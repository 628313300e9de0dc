package entity

import (
	"context"
	"errors"
	"fmt"
)

// Domain-specific errors
var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrTaskInactive    = errors.New("task is not active")
	ErrRuleMissing     = errors.New("task has no validation ruleset")
	ErrNoMergeKeys     = errors.New("ruleset defines no merge keys")
	ErrAlreadyRunning  = errors.New("task is already running")
	ErrUnavailable     = errors.New("database unavailable")
	ErrRetryQueueFull  = errors.New("retry queue is full")
	ErrInvalidOperator = errors.New("invalid query parameter operator")
)

// Kind classifies a transfer failure for recovery decisions.
type Kind string

const (
	KindTaskNotFound   Kind = "TASK_NOT_FOUND"
	KindTaskInactive   Kind = "TASK_INACTIVE"
	KindRuleMissing    Kind = "RULE_MISSING"
	KindValidation     Kind = "VALIDATION"
	KindDuplicate      Kind = "DUPLICATE"
	KindConnectionLost Kind = "CONNECTION_LOST"
	KindCancelled      Kind = "CANCELLED"
	KindPostUpdate     Kind = "POST_UPDATE_FAILURE"
	KindUnknown        Kind = "UNKNOWN_FATAL"
)

// TransferError carries a classified failure through the orchestrator.
type TransferError struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *TransferError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause.
func (e *TransferError) Unwrap() error {
	return e.Err
}

// NewTransferError wraps err with a classification kind.
func NewTransferError(kind Kind, message string, err error) *TransferError {
	return &TransferError{Kind: kind, Message: message, Err: err}
}

// KindOf returns the classification of err, unwrapping as needed.
// Plain errors map onto the taxonomy by sentinel; anything unrecognized is
// UNKNOWN_FATAL.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var te *TransferError
	if errors.As(err, &te) {
		return te.Kind
	}
	switch {
	case errors.Is(err, ErrTaskNotFound):
		return KindTaskNotFound
	case errors.Is(err, ErrTaskInactive):
		return KindTaskInactive
	case errors.Is(err, ErrRuleMissing), errors.Is(err, ErrNoMergeKeys):
		return KindRuleMissing
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return KindConnectionLost
	}
	return KindUnknown
}

// IsConnectionLost reports whether err is classified as a connection failure.
func IsConnectionLost(err error) bool {
	return KindOf(err) == KindConnectionLost
}

// IsDuplicate reports whether err is a unique-constraint violation.
func IsDuplicate(err error) bool {
	return KindOf(err) == KindDuplicate
}

// IsCancelled reports whether err resulted from cooperative cancellation.
func IsCancelled(err error) bool {
	return KindOf(err) == KindCancelled
}
