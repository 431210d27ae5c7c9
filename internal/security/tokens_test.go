package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenProvider_IssueAndValidateSession(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	token, jti, exp, err := p.IssueSession("user-1", "device-1")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if token == "" || jti == "" {
		t.Fatal("IssueSession returned empty token or jti")
	}
	if !exp.After(time.Now()) {
		t.Errorf("expiresAt %v should be in the future", exp)
	}
	claims, err := p.ValidateSession(token)
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if claims.Subject != "user-1" || claims.DeviceID != "device-1" || claims.ID != jti {
		t.Errorf("claims = %+v", claims)
	}
	if p.Issuer() != "test-issuer" {
		t.Errorf("Issuer = %q", p.Issuer())
	}
}

func TestTokenProvider_ValidateSession_Rejects(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	good, _, _, err := p.IssueSession("user-1", "")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	parts := strings.Split(good, ".")

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "test-issuer",
		Audience:  jwt.ClaimStrings{"test-audience"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	noneToken, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString none: %v", err)
	}

	cases := map[string]string{
		"empty":          "",
		"garbage":        "not.a.jwt",
		"alg none":       noneToken,
		"tampered claim": parts[0] + "." + parts[1] + "x." + parts[2],
		"bad signature":  parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2])),
	}
	for name, tok := range cases {
		if _, err := p.ValidateSession(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: want ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestTokenProvider_ValidateSession_Expired(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	p.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _, _, err := p.IssueSession("user-1", "")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	p.now = time.Now
	if _, err := p.ValidateSession(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_ValidateSession_WrongAudienceOrIssuer(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	other := NewTokenProvider(p.privateKey, p.publicKey, "other-issuer", "test-audience", time.Minute, 0)
	token, _, _, err := other.IssueSession("user-1", "")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if _, err := p.ValidateSession(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong issuer: want ErrInvalidToken, got %v", err)
	}

	other = NewTokenProvider(p.privateKey, p.publicKey, "test-issuer", "other-audience", time.Minute, 0)
	token, _, _, err = other.IssueSession("user-1", "")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if _, err := p.ValidateSession(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong audience: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_ES256(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	p := NewTokenProvider(key, &key.PublicKey, "iss", "aud", time.Minute, 0)
	token, _, _, err := p.IssueSession("user-ec", "")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	claims, err := p.ValidateSession(token)
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if claims.Subject != "user-ec" {
		t.Errorf("Subject = %q", claims.Subject)
	}

	rsaProvider, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	if _, err := rsaProvider.ValidateSession(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ES256 token against RSA provider: want ErrInvalidToken, got %v", err)
	}
}
