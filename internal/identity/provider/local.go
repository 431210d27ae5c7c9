package provider

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"authcore/internal/identity/domain"
	"authcore/internal/logger"
	"authcore/internal/security"
)

// CredentialLookup is the read side of the credential store the local provider needs.
type CredentialLookup interface {
	GetCredentialByEmail(ctx context.Context, email string) (*domain.Credential, error)
}

// LocalProvider authenticates email/password pairs against stored bcrypt hashes and accepts the
// session tokens it issued itself.
type LocalProvider struct {
	creds           CredentialLookup
	hasher          *security.Hasher
	tokens          *security.TokenProvider
	requireVerified bool
	log             *zap.Logger
}

// NewLocalProvider returns the LOCAL provider. tokens may be nil, in which case no session tokens
// are issued and every LOCAL bearer token is rejected.
func NewLocalProvider(creds CredentialLookup, hasher *security.Hasher, tokens *security.TokenProvider, requireVerified bool, log *zap.Logger) *LocalProvider {
	return &LocalProvider{
		creds:           creds,
		hasher:          hasher,
		tokens:          tokens,
		requireVerified: requireVerified,
		log:             logger.OrNop(log),
	}
}

// Name returns LOCAL.
func (p *LocalProvider) Name() domain.ProviderName { return domain.ProviderLocal }

// Authenticate checks email and password. It returns (nil, nil) for an unknown account, a wrong
// password, or an account that may not log in; callers cannot tell these apart, including by
// latency. Errors wrap domain.ErrStorageFailure or are the context error.
func (p *LocalProvider) Authenticate(ctx context.Context, email, password string) (*domain.Assertion, error) {
	email = domain.NormalizeEmail(email)
	cred, err := p.creds.GetCredentialByEmail(ctx, email)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: credential lookup: %w", domain.ErrStorageFailure, err)
	}
	if cred == nil || cred.PasswordHash == "" {
		if err := p.hasher.VerifyDummy(ctx, password); err != nil {
			return nil, err
		}
		logger.From(ctx, p.log).Debug("local: unknown account")
		return nil, nil
	}
	ok, err := p.hasher.VerifyPassword(ctx, password, cred.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.From(ctx, p.log).Debug("local: password mismatch", zap.String("user_id", cred.UserID))
		return nil, nil
	}
	if !cred.Usable(p.requireVerified) {
		logger.From(ctx, p.log).Debug("local: credential not usable",
			zap.String("user_id", cred.UserID),
			zap.String("status", string(cred.Status)),
			zap.Bool("verified", cred.Verified))
		return nil, nil
	}
	return &domain.Assertion{
		Provider:      domain.ProviderLocal,
		Subject:       cred.Email,
		Email:         cred.Email,
		EmailVerified: cred.Verified,
		UserID:        cred.UserID,
	}, nil
}

// ValidateToken verifies a session token issued by IssueToken.
func (p *LocalProvider) ValidateToken(ctx context.Context, token string) (*domain.Assertion, error) {
	if p.tokens == nil {
		return nil, nil
	}
	claims, err := p.tokens.ValidateSession(token)
	if err != nil {
		logger.From(ctx, p.log).Debug("local: session token rejected")
		return nil, nil
	}
	return &domain.Assertion{
		Provider: domain.ProviderLocal,
		Subject:  claims.Subject,
		UserID:   claims.Subject,
		DeviceID: claims.DeviceID,
	}, nil
}

// CanIssue reports whether a signing key is configured.
func (p *LocalProvider) CanIssue() bool { return p.tokens != nil }

// IssueToken signs a session token bound to userID and deviceID. It returns an empty token when no
// signing key is configured.
func (p *LocalProvider) IssueToken(userID, deviceID string) (string, time.Time, error) {
	if p.tokens == nil {
		return "", time.Time{}, nil
	}
	token, _, exp, err := p.tokens.IssueSession(userID, deviceID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("issue session token: %w", err)
	}
	return token, exp, nil
}

// MatchesIssuer claims tokens whose iss is this server's session issuer.
func (p *LocalProvider) MatchesIssuer(iss string) bool {
	return p.tokens != nil && iss != "" && iss == p.tokens.Issuer()
}
