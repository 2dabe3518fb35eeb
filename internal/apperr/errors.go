// Package apperr carries the ledger's stable error kinds across layers.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a stable, caller-facing error classification.
type Kind string

const (
	Unauthenticated    Kind = "unauthenticated"
	PermissionDenied   Kind = "permission-denied"
	InvalidArgument    Kind = "invalid-argument"
	NotFound           Kind = "not-found"
	FailedPrecondition Kind = "failed-precondition"
	AlreadyExists      Kind = "already-exists"
	Internal           Kind = "internal"
)

// Machine-readable reasons attached to errors.
const (
	ReasonNotMember         = "NOT_A_MEMBER"
	ReasonDebtNotFound      = "DEBT_NOT_FOUND"
	ReasonDebtAlreadyClosed = "DEBT_ALREADY_CLOSED"
	ReasonDebtMalformed     = "DEBT_MALFORMED"
	ReasonDebtExists        = "DEBT_EXISTS"
	ReasonInvalidAmount     = "INVALID_AMOUNT"
	ReasonSelfDebt          = "SELF_DEBT"
	ReasonMissingField      = "MISSING_FIELD"
	ReasonNoActor           = "NO_ACTOR"
	ReasonCloseConflict     = "CLOSE_CONFLICT"
	ReasonDuplicate         = "DUPLICATE"
)

// Error is the single error type surfaced by the ledger services.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	LogID   string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Reason != "" {
		msg += " [" + e.Reason + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind and, when set on the target, Reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// New builds an error of the given kind.
func New(kind Kind, reason, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause as kind.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf classifies any error. Errors that are not *Error are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}

// WithLogID stamps the correlation id on err, converting foreign errors to
// Internal. An id that is already set is kept.
func WithLogID(err error, logID string) error {
	if err == nil {
		return nil
	}
	e, ok := As(err)
	if !ok {
		return &Error{Kind: Internal, Message: "unexpected failure", LogID: logID, Err: err}
	}
	if e.LogID == "" {
		e.LogID = logID
	}
	return e
}

// Sentinels for errors.Is checks.
var (
	ErrNotMember     = &Error{Kind: PermissionDenied, Reason: ReasonNotMember}
	ErrDebtNotFound  = &Error{Kind: NotFound, Reason: ReasonDebtNotFound}
	ErrAlreadyClosed = &Error{Kind: FailedPrecondition, Reason: ReasonDebtAlreadyClosed}
	ErrMalformed     = &Error{Kind: FailedPrecondition, Reason: ReasonDebtMalformed}
)
