package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"authcore/internal/identity/domain"
)

type stubProvider struct {
	name domain.ProviderName
	iss  string
}

func (s *stubProvider) Name() domain.ProviderName { return s.name }

func (s *stubProvider) ValidateToken(context.Context, string) (*domain.Assertion, error) {
	return nil, nil
}

func (s *stubProvider) MatchesIssuer(iss string) bool { return s.iss != "" && iss == s.iss }

func unsignedToken(t *testing.T, iss string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Issuer: iss, Subject: "u"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestNewSet_RejectsDuplicatesAndUnknownNames(t *testing.T) {
	if _, err := NewSet(&stubProvider{name: domain.ProviderLocal}, &stubProvider{name: domain.ProviderLocal}); err == nil {
		t.Error("duplicate provider should be rejected")
	}
	if _, err := NewSet(&stubProvider{name: "GOOGLE"}); err == nil {
		t.Error("unknown provider name should be rejected")
	}
	if _, err := NewSet(&stubProvider{name: "local"}); err == nil {
		t.Error("non-canonical provider name should be rejected")
	}
	s, err := NewSet(&stubProvider{name: domain.ProviderLocal}, &stubProvider{name: domain.ProviderAuth0})
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	if got := s.Names(); len(got) != 2 || got[0] != domain.ProviderLocal || got[1] != domain.ProviderAuth0 {
		t.Errorf("Names = %v", got)
	}
}

func TestSet_Select(t *testing.T) {
	local := &stubProvider{name: domain.ProviderLocal, iss: "authcore"}
	s, err := NewSet(local)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	tok := unsignedToken(t, "authcore")

	if p, err := s.Select(tok, "local"); err != nil || p != local {
		t.Errorf("Select by hint = %v, %v", p, err)
	}
	if _, err := s.Select(tok, "google"); !errors.Is(err, domain.ErrMalformedInput) {
		t.Errorf("unknown hint: want ErrMalformedInput, got %v", err)
	}
	if _, err := s.Select(tok, "AUTH0"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("unconfigured hint: want ErrInvalidCredentials, got %v", err)
	}
	if p, err := s.Select(tok, ""); err != nil || p != local {
		t.Errorf("Select by issuer = %v, %v", p, err)
	}
	if _, err := s.Select(unsignedToken(t, "https://elsewhere/"), ""); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("unmatched issuer: want ErrInvalidCredentials, got %v", err)
	}
	if _, err := s.Select("not-a-jwt", ""); !errors.Is(err, domain.ErrMalformedInput) {
		t.Errorf("garbage: want ErrMalformedInput, got %v", err)
	}
}

func TestSet_NilIsEmpty(t *testing.T) {
	var s *Set
	if s.Get(domain.ProviderLocal) != nil {
		t.Error("nil set should have no providers")
	}
	if _, err := s.Select(unsignedToken(t, "x"), ""); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("nil set Select: %v", err)
	}
}
