// Package errs defines the error kinds surfaced by the billing engine.
//
// Domain packages declare coded sentinels with New; callers classify any error
// with KindOf or errors.Is against the kind sentinels (ErrNotFound, ...).
package errs

import "errors"

// Kind classifies an error for callers and transports.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindInvalidState      Kind = "invalid_state"
	KindNoUsageToInvoice  Kind = "no_usage_to_invoice"
	KindValidation        Kind = "validation_error"
	KindExternalProcessor Kind = "external_processor_error"
	KindPersistence       Kind = "persistence_error"
	KindRateLimited       Kind = "rate_limited"
	KindUnknown           Kind = "unknown"
)

// Error carries a kind, a stable code and an optional cause.
type Error struct {
	Kind Kind
	Code string
	Err  error
}

var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrNoUsageToInvoice  = &Error{Kind: KindNoUsageToInvoice}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrExternalProcessor = &Error{Kind: KindExternalProcessor}
	ErrPersistence       = &Error{Kind: KindPersistence}
	ErrRateLimited       = &Error{Kind: KindRateLimited}
)

// New returns a coded sentinel of the given kind.
func New(kind Kind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

// Wrap attaches a cause to a new error of the given kind.
func Wrap(kind Kind, code string, err error) *Error {
	return &Error{Kind: kind, Code: code, Err: err}
}

// Persistence wraps a store failure. A nil err stays nil.
func Persistence(err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	return Wrap(KindPersistence, "persistence_error", err)
}

func (e *Error) Error() string {
	code := e.Code
	if code == "" {
		code = string(e.Kind)
	}
	if e.Err != nil {
		return code + ": " + e.Err.Error()
	}
	return code
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches kind sentinels (no code) by kind and coded errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == "" {
		return t.Kind == e.Kind
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

// KindOf reports the kind of the outermost *Error in the chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindUnknown
}
