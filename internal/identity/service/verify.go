package service

import (
	"context"
	"errors"
	"fmt"

	"authcore/internal/identity/domain"
)

// ErrAccountNotFound is returned by VerifyEmail when no LOCAL account uses the email.
var ErrAccountNotFound = errors.New("account not found")

// CredentialVerifier reads and flags LOCAL credentials.
type CredentialVerifier interface {
	GetCredentialByEmail(ctx context.Context, email string) (*domain.Credential, error)
	MarkVerified(ctx context.Context, userID string) error
}

// VerifyEmail marks the LOCAL credential registered under email as verified and returns its user.
// Already verified credentials are left untouched.
func VerifyEmail(ctx context.Context, creds CredentialVerifier, email string) (string, error) {
	email = domain.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return "", err
	}
	cred, err := creds.GetCredentialByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("lookup credential: %w", err)
	}
	if cred == nil {
		return "", ErrAccountNotFound
	}
	if cred.Verified {
		return cred.UserID, nil
	}
	if err := creds.MarkVerified(ctx, cred.UserID); err != nil {
		return "", fmt.Errorf("mark verified: %w", err)
	}
	return cred.UserID, nil
}
