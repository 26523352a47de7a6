package core

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindAuth       Kind = "AUTH"
	KindNotFound   Kind = "NOT_FOUND"
	KindValidation Kind = "VALIDATION"
	KindDenied     Kind = "DENIED"
	KindConflict   Kind = "CONFLICT"
	KindServer     Kind = "SERVER"
	KindConnection Kind = "CONNECTION"
	KindTimeout    Kind = "TIMEOUT"
	KindBatch      Kind = "BATCH"
)

// Error is the typed failure every client operation returns. Exactly one
// Kind per failure path; callers match on Kind via errors.As or KindOf.
type Error struct {
	Kind    Kind
	Status  int    // HTTP status that produced the error, 0 if none received
	Message string
	Reason  string // policy reason, set for DENIED
	Cause   error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindForStatus maps a non-2xx HTTP status to an error kind. The governor's
// only 400 is ACTION_NOT_EXECUTABLE, hence Conflict; statuses with no listed
// kind (e.g. 429 after retries are exhausted) fall through to Server with the
// real status preserved on the Error.
func KindForStatus(status int) Kind {
	switch {
	case status == 401:
		return KindAuth
	case status == 404:
		return KindNotFound
	case status == 422:
		return KindValidation
	case status == 400, status == 409:
		return KindConflict
	default:
		return KindServer
	}
}

// KindOf extracts the taxonomy kind from any error returned by the client.
// Returns "" for nil or foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var b *BatchError
	if errors.As(err, &b) {
		return KindBatch
	}
	return ""
}

// BatchError reports a partial failure across a batch submission, carrying
// both the successes and the per-item errors.
type BatchError struct {
	Successes []Action
	Items     []BatchItemError
}

// BatchItemError ties a failed batch item back to its position in the input.
type BatchItemError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s: %d of %d actions failed",
		KindBatch, len(e.Items), len(e.Items)+len(e.Successes))
}
