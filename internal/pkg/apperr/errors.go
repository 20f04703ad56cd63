// Package apperr holds the domain errors shared by the escrow services.
package apperr

import "errors"

// Error is a domain error with a stable code.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func (e *Error) Kind() Kind {
	return e.Code.Kind()
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinels for errors.Is checks. Matching is by code, so wrapped copies
// carrying metadata or a cause still match.
var (
	ErrGameNotFound           = New(CodeGameNotFound, "game not found")
	ErrPlayerNotFound         = New(CodePlayerNotFound, "player not found")
	ErrIneligibleState        = New(CodeIneligibleState, "game is not in a state that allows this operation")
	ErrAlreadySettled         = New(CodeAlreadySettled, "game already settled")
	ErrAlreadyResolving       = New(CodeAlreadyResolve, "settlement already in progress")
	ErrConflict               = New(CodeConflict, "game was modified concurrently")
	ErrGameExists             = New(CodeGameExists, "game already exists")
	ErrTransferFailed         = New(CodeTransferFailed, "transfer failed")
	ErrTransferOutcomeUnknown = New(CodeTransferOutcomeUnknown, "transfer outcome unknown")
	ErrReceiptNotFound        = New(CodeReceiptNotFound, "no transfer receipt for escrow")
	ErrReconciliationPending  = New(CodeReconciliationPending, "transfer confirmed, ledger reconciliation pending")
)

func Validation(message string) *Error {
	return New(CodeInvalidRequest, message)
}

func TransferFailed(cause error) *Error {
	return Wrap(CodeTransferFailed, "transfer failed", cause)
}

func TransferOutcomeUnknown(cause error) *Error {
	return Wrap(CodeTransferOutcomeUnknown, "transfer outcome unknown", cause)
}

// IneligibleState builds an ineligible state error naming the current status.
func IneligibleState(message string, status string) *Error {
	return WithMetadata(CodeIneligibleState, message, map[string]string{"status": status})
}

// KindOf returns the kind of the first domain error in the chain, or
// KindUnexpected if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind()
	}
	return KindUnexpected
}

// As returns the first domain error in the chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
