package provider

import (
	"context"
	"errors"
	"testing"

	"authcore/internal/identity/domain"
	"authcore/internal/security"
)

type memCredentials struct {
	byEmail map[string]*domain.Credential
	err     error
}

func (m *memCredentials) GetCredentialByEmail(_ context.Context, email string) (*domain.Credential, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.byEmail[email], nil
}

func newLocalFixture(t *testing.T, requireVerified bool) (*LocalProvider, *memCredentials) {
	t.Helper()
	h := security.NewHasher(4, 2)
	hash, err := h.HashPassword(context.Background(), "password123")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	tp, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	creds := &memCredentials{byEmail: map[string]*domain.Credential{
		"u1@example.com":        {UserID: "u1", Email: "u1@example.com", PasswordHash: hash, Verified: true, Status: domain.CredentialActive},
		"suspended@example.com": {UserID: "u2", Email: "suspended@example.com", PasswordHash: hash, Verified: true, Status: domain.CredentialSuspended},
		"new@example.com":       {UserID: "u3", Email: "new@example.com", PasswordHash: hash, Status: domain.CredentialActive},
	}}
	return NewLocalProvider(creds, h, tp, requireVerified, nil), creds
}

func TestLocalProvider_Authenticate(t *testing.T) {
	p, _ := newLocalFixture(t, false)
	ctx := context.Background()

	a, err := p.Authenticate(ctx, " U1@Example.com ", "password123")
	if err != nil || a == nil {
		t.Fatalf("Authenticate = %v, %v", a, err)
	}
	if a.UserID != "u1" || a.Provider != domain.ProviderLocal || !a.EmailVerified {
		t.Errorf("assertion = %+v", a)
	}

	for _, tc := range []struct{ email, password string }{
		{"u1@example.com", "wrong"},
		{"nobody@example.com", "password123"},
		{"suspended@example.com", "password123"},
		{"", ""},
	} {
		if a, err := p.Authenticate(ctx, tc.email, tc.password); err != nil || a != nil {
			t.Errorf("Authenticate(%q) = %v, %v; want nil, nil", tc.email, a, err)
		}
	}

	if a, err := p.Authenticate(ctx, "new@example.com", "password123"); err != nil || a == nil {
		t.Errorf("unverified credential should authenticate when verification is not required: %v, %v", a, err)
	}
}

func TestLocalProvider_RequireVerified(t *testing.T) {
	p, _ := newLocalFixture(t, true)
	if a, err := p.Authenticate(context.Background(), "new@example.com", "password123"); err != nil || a != nil {
		t.Errorf("Authenticate = %v, %v; want nil, nil", a, err)
	}
}

func TestLocalProvider_StoreFailure(t *testing.T) {
	p, creds := newLocalFixture(t, false)
	creds.err = errors.New("connection refused")
	_, err := p.Authenticate(context.Background(), "u1@example.com", "password123")
	if !errors.Is(err, domain.ErrStorageFailure) {
		t.Errorf("want ErrStorageFailure, got %v", err)
	}
}

func TestLocalProvider_SessionTokenRoundTrip(t *testing.T) {
	p, _ := newLocalFixture(t, false)
	if !p.CanIssue() {
		t.Fatal("CanIssue should be true with a token provider")
	}
	tok, exp, err := p.IssueToken("u1", "dev-1")
	if err != nil || tok == "" || exp.IsZero() {
		t.Fatalf("IssueToken = %q, %v, %v", tok, exp, err)
	}
	iss, err := PeekIssuer(tok)
	if err != nil || !p.MatchesIssuer(iss) {
		t.Errorf("issuer %q should match local provider: %v", iss, err)
	}
	a, err := p.ValidateToken(context.Background(), tok)
	if err != nil || a == nil {
		t.Fatalf("ValidateToken = %v, %v", a, err)
	}
	if a.UserID != "u1" || a.DeviceID != "dev-1" {
		t.Errorf("assertion = %+v", a)
	}
	if a, err := p.ValidateToken(context.Background(), tok+"x"); err != nil || a != nil {
		t.Errorf("tampered token = %v, %v", a, err)
	}
}

func TestLocalProvider_WithoutSigningKey(t *testing.T) {
	p := NewLocalProvider(&memCredentials{}, security.NewHasher(4, 1), nil, false, nil)
	if p.CanIssue() || p.MatchesIssuer("test-issuer") {
		t.Error("provider without keys should not issue or claim tokens")
	}
	tok, _, err := p.IssueToken("u1", "d1")
	if err != nil || tok != "" {
		t.Errorf("IssueToken = %q, %v", tok, err)
	}
	if a, err := p.ValidateToken(context.Background(), "a.b.c"); a != nil || err != nil {
		t.Errorf("ValidateToken = %v, %v", a, err)
	}
}
