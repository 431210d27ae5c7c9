package provider

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"authcore/internal/identity/domain"
	"authcore/internal/logger"
)

var (
	errMissingKid         = errors.New("token has no kid")
	errUnknownKid         = errors.New("unknown kid")
	errAlgKeyTypeMismatch = errors.New("alg does not match key type")
)

// KeySource resolves verification keys by kid.
type KeySource interface {
	// Key returns the key for kid, nil if unknown. An error means keys could not be loaded at all.
	Key(ctx context.Context, kid string) (crypto.PublicKey, error)
	// RefreshSoon asks for a rate-limited background refresh.
	RefreshSoon()
}

// Auth0Config is the trust configuration of an Auth0 tenant.
type Auth0Config struct {
	// Issuer is the exact iss claim, e.g. https://tenant.eu.auth0.com/.
	Issuer string
	// Audience is the API identifier that must appear in aud.
	Audience string
	// Leeway is the clock skew tolerated on exp, nbf and iat.
	Leeway time.Duration
}

type auth0Claims struct {
	jwt.RegisteredClaims
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
}

// Auth0Provider verifies Auth0-issued JWTs against the tenant's published keys.
type Auth0Provider struct {
	keys   KeySource
	cfg    Auth0Config
	parser *jwt.Parser
	log    *zap.Logger
}

// NewAuth0Provider returns the AUTH0 provider. Only RS256 and ES256 signatures are accepted and exp
// is mandatory.
func NewAuth0Provider(keys KeySource, cfg Auth0Config, log *zap.Logger) *Auth0Provider {
	return newAuth0Provider(keys, cfg, time.Now, log)
}

func newAuth0Provider(keys KeySource, cfg Auth0Config, now func() time.Time, log *zap.Logger) *Auth0Provider {
	return &Auth0Provider{
		keys: keys,
		cfg:  cfg,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(cfg.Leeway),
			jwt.WithTimeFunc(now),
		),
		log: logger.OrNop(log),
	}
}

// Name returns AUTH0.
func (p *Auth0Provider) Name() domain.ProviderName { return domain.ProviderAuth0 }

// MatchesIssuer claims tokens whose iss is the configured tenant issuer.
func (p *Auth0Provider) MatchesIssuer(iss string) bool {
	return iss != "" && iss == p.cfg.Issuer
}

// ValidateToken verifies signature, exp, iss and aud. Tokens that fail any check yield (nil, nil);
// the error is non-nil only when the tenant's keys could not be loaded.
func (p *Auth0Provider) ValidateToken(ctx context.Context, token string) (*domain.Assertion, error) {
	var keyErr error
	claims := &auth0Claims{}
	_, err := p.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errMissingKid
		}
		key, err := p.keys.Key(ctx, kid)
		if err != nil {
			keyErr = err
			return nil, err
		}
		if key == nil {
			return nil, errUnknownKid
		}
		if !algMatchesKey(t.Method.Alg(), key) {
			return nil, errAlgKeyTypeMismatch
		}
		return key, nil
	})
	if keyErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: auth0 keys: %w", domain.ErrProviderUnavailable, keyErr)
	}
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			p.keys.RefreshSoon()
		}
		logger.From(ctx, p.log).Debug("auth0: token rejected", zap.Error(err))
		return nil, nil
	}
	if claims.Subject == "" {
		logger.From(ctx, p.log).Debug("auth0: token has no subject")
		return nil, nil
	}
	return &domain.Assertion{
		Provider:      domain.ProviderAuth0,
		Subject:       claims.Subject,
		Email:         domain.NormalizeEmail(claims.Email),
		EmailVerified: claims.EmailVerified,
	}, nil
}

func algMatchesKey(alg string, key crypto.PublicKey) bool {
	switch key.(type) {
	case *rsa.PublicKey:
		return alg == jwt.SigningMethodRS256.Alg()
	case *ecdsa.PublicKey:
		return alg == jwt.SigningMethodES256.Alg()
	default:
		return false
	}
}
