package domain

import (
	"fmt"
	"strings"
	"time"
)

// ProviderName identifies an authentication strategy. Values are a closed uppercase set.
type ProviderName string

const (
	ProviderLocal ProviderName = "LOCAL"
	ProviderAuth0 ProviderName = "AUTH0"
)

// ParseProviderName returns the ProviderName for s (case-insensitive).
func ParseProviderName(s string) (ProviderName, error) {
	switch p := ProviderName(strings.ToUpper(strings.TrimSpace(s))); p {
	case ProviderLocal, ProviderAuth0:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown provider %q", ErrMalformedInput, s)
	}
}

// Identity is the resolved outcome of an authentication attempt: the internal user and the provider
// that vouched for it. It is never persisted.
type Identity struct {
	UserID   string
	Provider ProviderName
}

// Assertion is what a provider vouches for after verifying a credential or token.
type Assertion struct {
	Provider ProviderName
	// Subject is the provider-local identifier (the sub claim for federated tokens).
	Subject       string
	Email         string
	EmailVerified bool
	// UserID is set when the provider already knows the internal user (LOCAL).
	UserID string
	// DeviceID is set when a LOCAL session token was bound to a device at issue time.
	DeviceID string
}

// CredentialStatus is the account status carried on a credential record.
type CredentialStatus string

const (
	CredentialActive    CredentialStatus = "active"
	CredentialSuspended CredentialStatus = "suspended"
	CredentialDisabled  CredentialStatus = "disabled"
)

// Credential is a local password credential joined with the owning user's status.
type Credential struct {
	UserID       string
	Email        string
	PasswordHash string
	Verified     bool
	Status       CredentialStatus
}

// Usable reports whether the credential may authenticate.
func (c *Credential) Usable(requireVerified bool) bool {
	if c == nil || c.Status != CredentialActive {
		return false
	}
	return c.Verified || !requireVerified
}

// Link maps an external (provider, subject) pair to an internal user.
type Link struct {
	ID        string
	UserID    string
	Provider  ProviderName
	Subject   string
	CreatedAt time.Time
}

// NormalizeEmail lowercases and trims an email used as a login identifier.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
