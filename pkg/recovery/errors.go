package recovery

import (
	"errors"
	"fmt"
)

// Kind is the closed enumeration of error categories the handler resolves by
// when no stage-level strategy applies.
type Kind string

const (
	// KindDatabase marks storage-layer failures; the Code field carries the
	// driver-level condition (for example ECONNREFUSED or QUERY_CANCELLED).
	KindDatabase Kind = "database"
	// KindValidation marks rejected input.
	KindValidation Kind = "validation"
	// KindStage marks a stage-originated failure that defers to the stage's
	// registered strategy.
	KindStage Kind = "stage"
	// KindUnknown is assigned to any error that is not a *recovery.Error.
	KindUnknown Kind = "unknown"
)

// Database error codes with dedicated resolution rules.
const (
	CodeConnRefused    = "ECONNREFUSED"
	CodeQueryCancelled = "QUERY_CANCELLED"
)

// Error is a categorized failure raised by a stage. Code is only meaningful
// for KindDatabase.
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewDatabaseError wraps a storage failure with its driver-level code.
func NewDatabaseError(code string, err error) *Error {
	return &Error{Kind: KindDatabase, Code: code, Err: err}
}

// NewValidationError reports rejected input.
func NewValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Msg: msg}
}

// NewStageError reports a stage failure that should be resolved by the
// stage's registered strategy.
func NewStageError(msg string, err error) *Error {
	return &Error{Kind: KindStage, Msg: msg, Err: err}
}

// KindOf extracts the error's kind, or KindUnknown for uncategorized errors.
func KindOf(err error) Kind {
	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Kind
	}

	return KindUnknown
}

// CodeOf extracts the database code from a categorized error, if any.
func CodeOf(err error) string {
	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Code
	}

	return ""
}
