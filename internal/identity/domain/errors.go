package domain

import (
	"context"
	"errors"
)

// Authentication failures. Every error returned from the resolver wraps exactly one of these.
var (
	// ErrInvalidCredentials covers a wrong password or an unverifiable token. It never says which.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnlinkedIdentity is returned for a verified external identity with no internal account.
	ErrUnlinkedIdentity = errors.New("unlinked identity")
	// ErrProviderUnavailable is returned when trust anchors cannot be fetched. Retryable.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	// ErrMalformedInput is returned for an unparseable token or credential shape.
	ErrMalformedInput = errors.New("malformed input")
	// ErrStorageFailure is returned when the credential or device store is unreachable. Retryable.
	ErrStorageFailure = errors.New("storage failure")
)

// Reason is the closed set of outcomes exposed to callers.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonInvalidCredentials  Reason = "invalid_credentials"
	ReasonUnlinkedIdentity    Reason = "unlinked_identity"
	ReasonProviderUnavailable Reason = "provider_unavailable"
	ReasonMalformedInput      Reason = "malformed_input"
	ReasonStorageFailure      Reason = "storage_failure"
	ReasonCanceled            Reason = "canceled"
)

// ReasonOf maps err to its Reason. Unknown errors are treated as storage failures so an infra
// problem is never reported as bad credentials.
func ReasonOf(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrInvalidCredentials):
		return ReasonInvalidCredentials
	case errors.Is(err, ErrUnlinkedIdentity):
		return ReasonUnlinkedIdentity
	case errors.Is(err, ErrMalformedInput):
		return ReasonMalformedInput
	case errors.Is(err, ErrProviderUnavailable):
		return ReasonProviderUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCanceled
	default:
		return ReasonStorageFailure
	}
}

// Retryable reports whether the caller may retry with backoff.
func Retryable(err error) bool {
	switch ReasonOf(err) {
	case ReasonProviderUnavailable, ReasonStorageFailure:
		return true
	default:
		return false
	}
}

// Message is the user-facing text for r. It never contains internal detail.
func (r Reason) Message() string {
	switch r {
	case ReasonInvalidCredentials:
		return "invalid credentials"
	case ReasonUnlinkedIdentity:
		return "no account is linked to this identity"
	case ReasonProviderUnavailable:
		return "identity provider temporarily unavailable"
	case ReasonMalformedInput:
		return "malformed credential"
	case ReasonStorageFailure:
		return "service temporarily unavailable"
	case ReasonCanceled:
		return "request canceled"
	default:
		return ""
	}
}
