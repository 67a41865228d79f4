package domain

import (
	"errors"
	"fmt"
)

// Validation reason codes carried by ValidationError.
const (
	ReasonInvalidAmount   = "invalid_amount"
	ReasonInvalidQuantity = "invalid_quantity"
	ReasonInvalidName     = "invalid_name"
	ReasonInvalidNote     = "invalid_note"
	ReasonInvalidKind     = "invalid_kind"
	ReasonInvalidType     = "invalid_type"
	ReasonInvalidActor    = "invalid_actor"
	ReasonEmptyItems      = "empty_items"
	ReasonInactiveAccount = "inactive_account"
	ReasonInactiveProduct = "inactive_product"
	ReasonWrongAccount    = "wrong_account"
)

// Conflict reason codes carried by ConflictError.
const (
	ReasonAlreadyCompleted = "already_completed"
	ReasonAlreadyAdjusted  = "already_adjusted"
)

// ValidationError rejects a request before any state is written.
type ValidationError struct {
	Reason string
	Field  string
	Msg    string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Reason, e.Msg, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Msg)
}

// NewValidationError builds a ValidationError with a machine-readable reason
// and the offending field when known.
func NewValidationError(reason, field, msg string) *ValidationError {
	return &ValidationError{Reason: reason, Field: field, Msg: msg}
}

// ConflictError reports a write race already decided in favor of an earlier
// writer. The first write stands; the caller should refresh and re-read.
type ConflictError struct {
	Reason string
	Msg    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Msg)
}

// NewConflictError builds a ConflictError.
func NewConflictError(reason, msg string) *ConflictError {
	return &ConflictError{Reason: reason, Msg: msg}
}

// NotFoundError reports a reference to a resource that does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewNotFoundError builds a NotFoundError.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ErrStoreContention marks a transient storage conflict that may succeed on
// retry. The coordinator retries these before giving up.
var ErrStoreContention = errors.New("store contention")

// ErrStoreBusy is surfaced once persistence retries are exhausted or the
// store could not be reached in time. The whole request may be retried.
var ErrStoreBusy = errors.New("store busy")
