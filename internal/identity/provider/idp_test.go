package provider

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://tenant.auth0.test/"
	testAudience = "https://api.authcore.test"
)

// testIdP serves a JWKS document for a set of signing keys and counts requests.
type testIdP struct {
	server *httptest.Server

	mu      sync.Mutex
	keys    map[string]any
	version int

	hits        atomic.Int32
	notModified atomic.Int32
	down        atomic.Bool
}

func newTestIdP(t *testing.T) *testIdP {
	t.Helper()
	idp := &testIdP{keys: map[string]any{}}
	idp.server = httptest.NewServer(http.HandlerFunc(idp.serve))
	t.Cleanup(idp.server.Close)
	return idp
}

func (p *testIdP) serve(w http.ResponseWriter, r *http.Request) {
	p.hits.Add(1)
	if p.down.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	etag := fmt.Sprintf(`"v%d"`, p.version)
	if r.Header.Get("If-None-Match") == etag {
		p.notModified.Add(1)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	doc := jwks{}
	for kid, k := range p.keys {
		doc.Keys = append(doc.Keys, toJWK(kid, k))
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}

func (p *testIdP) publish(kid string, priv any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys[kid] = priv
	p.version++
}

func (p *testIdP) keySet(opts ...KeySetOption) *KeySet {
	return NewKeySet(p.server.URL+"/.well-known/jwks.json", append([]KeySetOption{WithHTTPClient(p.server.Client())}, opts...)...)
}

func toJWK(kid string, priv any) jwk {
	b64 := base64.RawURLEncoding.EncodeToString
	switch k := priv.(type) {
	case *rsa.PrivateKey:
		return jwk{Kty: "RSA", Use: "sig", Alg: "RS256", Kid: kid, N: b64(k.N.Bytes()), E: b64(big.NewInt(int64(k.E)).Bytes())}
	case *ecdsa.PrivateKey:
		size := (k.Curve.Params().BitSize + 7) / 8
		x, y := make([]byte, size), make([]byte, size)
		k.X.FillBytes(x)
		k.Y.FillBytes(y)
		return jwk{Kty: "EC", Use: "sig", Alg: "ES256", Kid: kid, Crv: k.Curve.Params().Name, X: b64(x), Y: b64(y)}
	default:
		panic("unsupported key")
	}
}

func newRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return k
}

func newECKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return k
}

type testClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
}

func validClaims() testClaims {
	now := time.Now()
	return testClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "auth0|abc123",
			Audience:  jwt.ClaimStrings{testAudience},
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Email:         "Person@Example.com",
		EmailVerified: true,
	}
}

func signToken(t *testing.T, method jwt.SigningMethod, key any, kid string, claims jwt.Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}
