package engine

import (
	"context"

	identitydomain "authcore/internal/identity/domain"
)

// LinkInput describes a verified external identity that has no internal account yet.
type LinkInput struct {
	Provider      identitydomain.ProviderName
	Subject       string
	Email         string
	EmailVerified bool
	// EmailTaken is true when another account already owns Email.
	EmailTaken bool
}

// LinkEvaluator decides whether an unlinked identity gets an account provisioned on first sight.
type LinkEvaluator interface {
	// ShouldProvision returns false when the identity must be rejected as unlinked. An error means
	// the policy could not be evaluated; callers treat it as a rejection.
	ShouldProvision(ctx context.Context, in LinkInput) (bool, error)
}
