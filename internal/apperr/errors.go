// Package apperr defines the typed error kinds that cross component
// boundaries in PazPaz. The HTTP status for each kind is assigned by
// mapErr in internal/httpapi.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of failure. Service code returns *Error
// values built from one of these kinds; the HTTP layer maps Kind to a
// status code and never inspects the wrapped cause.
type Kind string

const (
	KindNotFound              Kind = "not_found"
	KindUnauthenticated       Kind = "unauthenticated"
	KindForbidden             Kind = "forbidden"
	KindConflict              Kind = "conflict"
	KindUnprocessableEntity   Kind = "unprocessable_entity"
	KindRateLimited           Kind = "rate_limited"
	KindGone                  Kind = "gone"
	KindInvalidCredentials    Kind = "invalid_credentials"
	KindPaymentProviderError  Kind = "payment_provider_error"
	KindWebhookVerification   Kind = "webhook_verification_error"
	KindTransactionNotFound   Kind = "transaction_not_found"
	KindCircuitOpen           Kind = "circuit_open"
	KindEncryptionFailed      Kind = "encryption_failed"
	KindDecryptionFailed      Kind = "decryption_failed"
	KindUnknownKeyVersion     Kind = "unknown_key_version"
	KindInvalidDimension      Kind = "invalid_dimension"
	KindRetrievalFailed       Kind = "retrieval_failed"
	KindVersionConflict       Kind = "version_conflict"
	KindAlreadyFinalized      Kind = "already_finalized"
	KindAlreadyDraft          Kind = "already_draft"
	KindInvalidAmount         Kind = "invalid_amount"
	KindProviderNotConfigured Kind = "provider_not_configured"
)

// Error is the typed error every package in this module returns for
// conditions that must propagate to an HTTP status or a webhook-layer
// swallow. Service code should always construct one via the New/Wrap
// helpers rather than a bare Kind literal.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a typed error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a typed error around an existing error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
