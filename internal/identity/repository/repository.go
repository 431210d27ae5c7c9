package repository

import (
	"context"

	"authcore/internal/identity/domain"
	userdomain "authcore/internal/user/domain"
)

// Repository defines persistence for local credentials and external identity links.
// Lookups return zero values (nil, "") for missing rows and an error only for database failures.
type Repository interface {
	// GetCredentialByEmail returns the LOCAL credential for a normalized email, or nil.
	GetCredentialByEmail(ctx context.Context, email string) (*domain.Credential, error)
	// GetUserIDByLink returns the user linked to (provider, subject), or "".
	GetUserIDByLink(ctx context.Context, provider domain.ProviderName, subject string) (string, error)
	// CreateLocalAccount creates the user and its LOCAL credential in one transaction.
	// Returns userrepo.ErrEmailTaken when the email is already registered.
	CreateLocalAccount(ctx context.Context, u *userdomain.User, passwordHash string, verified bool) error
	// ProvisionLinkedAccount creates the user and its external link in one transaction. If the
	// link already exists (a concurrent provision won), nothing is written and the existing owner
	// is returned with created=false, even when the winner also took the email. ErrEmailTaken is
	// returned only when the email belongs to an account without this link.
	ProvisionLinkedAccount(ctx context.Context, u *userdomain.User, link *domain.Link) (userID string, created bool, err error)
	// LinkOrGet inserts link if (provider, subject) is unlinked and returns the owning user either way.
	LinkOrGet(ctx context.Context, link *domain.Link) (string, error)
	// MarkVerified sets the verified flag on the user's LOCAL credential.
	MarkVerified(ctx context.Context, userID string) error
}
