// Package provider holds the identity providers the resolver dispatches to. Each provider verifies
// one kind of credential and reports what it vouches for as a domain.Assertion.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"authcore/internal/identity/domain"
)

// Provider verifies bearer tokens for one identity source.
//
// ValidateToken returns (nil, nil) for any malformed, expired, unverifiable or unrecognized token.
// A non-nil error means the provider could not decide (trust anchors or storage unreachable) and
// always wraps domain.ErrProviderUnavailable or domain.ErrStorageFailure.
type Provider interface {
	Name() domain.ProviderName
	ValidateToken(ctx context.Context, token string) (*domain.Assertion, error)
}

// IssuerMatcher is implemented by providers that can claim a token by its iss claim.
type IssuerMatcher interface {
	MatchesIssuer(iss string) bool
}

// Set is the closed registry of configured providers. It is built once at startup and read-only after.
type Set struct {
	byName map[domain.ProviderName]Provider
	order  []Provider
}

// NewSet registers providers in order. Unknown or duplicate names are rejected.
func NewSet(providers ...Provider) (*Set, error) {
	s := &Set{byName: make(map[domain.ProviderName]Provider, len(providers))}
	for _, p := range providers {
		if p == nil {
			return nil, fmt.Errorf("provider: nil provider")
		}
		name, err := domain.ParseProviderName(string(p.Name()))
		if err != nil || name != p.Name() {
			return nil, fmt.Errorf("provider: unsupported provider name %q", p.Name())
		}
		if _, dup := s.byName[name]; dup {
			return nil, fmt.Errorf("provider: %s registered twice", name)
		}
		s.byName[name] = p
		s.order = append(s.order, p)
	}
	return s, nil
}

// Get returns the provider registered under name, or nil.
func (s *Set) Get(name domain.ProviderName) Provider {
	if s == nil {
		return nil
	}
	return s.byName[name]
}

// Names returns the registered provider names in registration order.
func (s *Set) Names() []domain.ProviderName {
	if s == nil {
		return nil
	}
	out := make([]domain.ProviderName, 0, len(s.order))
	for _, p := range s.order {
		out = append(out, p.Name())
	}
	return out
}

// Select picks the provider for token. A non-empty hint names the provider directly; otherwise the
// token's unverified iss claim is matched against providers implementing IssuerMatcher.
//
// Returns domain.ErrMalformedInput for an unknown hint or a token that is not a JWT, and
// domain.ErrInvalidCredentials when no configured provider accepts the token.
func (s *Set) Select(token, hint string) (Provider, error) {
	if strings.TrimSpace(hint) != "" {
		name, err := domain.ParseProviderName(hint)
		if err != nil {
			return nil, err
		}
		p := s.Get(name)
		if p == nil {
			return nil, fmt.Errorf("%w: provider %s is not configured", domain.ErrInvalidCredentials, name)
		}
		return p, nil
	}
	iss, err := PeekIssuer(token)
	if err != nil {
		return nil, err
	}
	if s != nil {
		for _, p := range s.order {
			if m, ok := p.(IssuerMatcher); ok && m.MatchesIssuer(iss) {
				return p, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no provider for issuer", domain.ErrInvalidCredentials)
}

// PeekIssuer decodes token without verifying it and returns its iss claim. The result is only
// good for routing; it says nothing about who signed the token.
func PeekIssuer(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("%w: token is not a JWT", domain.ErrMalformedInput)
	}
	return claims.Issuer, nil
}
