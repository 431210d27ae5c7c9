package provider

import (
	"context"
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"authcore/internal/logger"
	"authcore/internal/telemetry"
)

const (
	defaultKeysRefresh    = 10 * time.Minute
	defaultKeysMinRefresh = 30 * time.Second
	keysFetchTimeout      = 10 * time.Second
	maxKeysDocumentBytes  = 1 << 20
)

type jwk struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// KeySet caches the verification keys published at a JWKS endpoint.
//
// Only the first load blocks callers. After that, expired keys keep being served while a background
// refresh runs, and a kid miss schedules a refresh no more often than the minimum refresh interval.
// Concurrent fetches are collapsed into one request.
type KeySet struct {
	url        string
	name       string
	client     *http.Client
	refresh    time.Duration
	minRefresh time.Duration
	metrics    *telemetry.Metrics
	log        *zap.Logger
	now        func() time.Time

	group singleflight.Group

	mu          sync.RWMutex
	keys        map[string]crypto.PublicKey
	fetchedAt   time.Time
	lastAttempt time.Time
	etag        string
}

// KeySetOption configures a KeySet.
type KeySetOption func(*KeySet)

// WithHTTPClient sets the client used for fetches.
func WithHTTPClient(c *http.Client) KeySetOption {
	return func(s *KeySet) { s.client = c }
}

// WithRefreshInterval sets how long fetched keys are considered fresh.
func WithRefreshInterval(d time.Duration) KeySetOption {
	return func(s *KeySet) { s.refresh = d }
}

// WithMinRefreshInterval sets the minimum gap between refreshes triggered by unknown kids.
func WithMinRefreshInterval(d time.Duration) KeySetOption {
	return func(s *KeySet) { s.minRefresh = d }
}

// WithKeySetMetrics records refresh outcomes under the given provider label.
func WithKeySetMetrics(m *telemetry.Metrics, provider string) KeySetOption {
	return func(s *KeySet) {
		s.metrics = m
		s.name = provider
	}
}

// WithKeySetLogger sets the logger for refresh failures.
func WithKeySetLogger(l *zap.Logger) KeySetOption {
	return func(s *KeySet) { s.log = l }
}

// NewKeySet returns a KeySet for the JWKS document at url. Nothing is fetched until the first Key call.
func NewKeySet(url string, opts ...KeySetOption) *KeySet {
	s := &KeySet{
		url:        url,
		name:       "jwks",
		client:     &http.Client{Timeout: keysFetchTimeout},
		refresh:    defaultKeysRefresh,
		minRefresh: defaultKeysMinRefresh,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.refresh <= 0 {
		s.refresh = defaultKeysRefresh
	}
	if s.minRefresh < 0 {
		s.minRefresh = 0
	}
	s.log = logger.OrNop(s.log)
	return s
}

// Key returns the key published under kid, or nil if the set has no such key. The error is
// non-nil only when no keys have ever been loaded and loading failed.
func (s *KeySet) Key(ctx context.Context, kid string) (crypto.PublicKey, error) {
	s.mu.RLock()
	keys, fetchedAt := s.keys, s.fetchedAt
	s.mu.RUnlock()

	if keys == nil {
		if err := s.load(ctx); err != nil {
			return nil, err
		}
		s.mu.RLock()
		key := s.keys[kid]
		s.mu.RUnlock()
		return key, nil
	}

	if s.now().Sub(fetchedAt) >= s.refresh {
		s.RefreshSoon()
	}
	key, ok := keys[kid]
	if !ok {
		s.RefreshSoon()
		return nil, nil
	}
	return key, nil
}

// RefreshSoon starts a background refresh unless one ran within the minimum refresh interval.
func (s *KeySet) RefreshSoon() {
	if s.attemptedRecently() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), keysFetchTimeout)
		defer cancel()
		if err := s.refreshIfStale(ctx); err != nil {
			s.log.Warn("jwks: background refresh failed", zap.String("url", s.url), zap.Error(err))
		}
	}()
}

// refreshIfStale fetches unless an attempt landed within the minimum refresh interval. The check
// is repeated inside the flight so callers queued behind a finished fetch do not fetch again.
func (s *KeySet) refreshIfStale(ctx context.Context) error {
	_, err, _ := s.group.Do(s.url, func() (any, error) {
		if s.attemptedRecently() {
			return nil, nil
		}
		return nil, s.fetch(ctx)
	})
	return err
}

func (s *KeySet) attemptedRecently() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.lastAttempt.IsZero() && s.now().Sub(s.lastAttempt) < s.minRefresh
}

// load performs a blocking, deduplicated fetch. The fetch outlives ctx so other waiters still get
// its result; ctx only bounds how long this caller waits.
func (s *KeySet) load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ch := s.group.DoChan(s.url, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), keysFetchTimeout)
		defer cancel()
		return nil, s.fetch(fctx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *KeySet) fetch(ctx context.Context) (err error) {
	defer func() { s.metrics.KeyRefresh(ctx, s.name, err == nil) }()

	s.mu.Lock()
	s.lastAttempt = s.now()
	etag := ""
	if s.keys != nil {
		etag = s.etag
	}
	s.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && etag != "" {
		s.mu.Lock()
		s.fetchedAt = s.now()
		s.mu.Unlock()
		return nil
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("jwks http %d", resp.StatusCode)
	}

	var doc jwks
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxKeysDocumentBytes)).Decode(&doc); err != nil {
		return fmt.Errorf("jwks decode: %w", err)
	}
	keys := make(map[string]crypto.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kid == "" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			s.log.Debug("jwks: skipping key", zap.String("kid", k.Kid), zap.Error(err))
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("jwks: no usable signing keys")
	}

	s.mu.Lock()
	s.keys = keys
	s.fetchedAt = s.now()
	s.etag = resp.Header.Get("ETag")
	s.mu.Unlock()
	return nil
}

func (k jwk) publicKey() (crypto.PublicKey, error) {
	switch strings.ToUpper(k.Kty) {
	case "RSA":
		return k.rsaKey()
	case "EC":
		return k.ecKey()
	default:
		return nil, fmt.Errorf("unsupported kty %q", k.Kty)
	}
}

func (k jwk) rsaKey() (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil || len(nb) == 0 {
		return nil, errors.New("bad modulus")
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil || len(eb) > 4 {
		return nil, errors.New("bad exponent")
	}
	e := 65537
	if len(eb) > 0 {
		e = 0
		for _, b := range eb {
			e = e<<8 | int(b)
		}
	}
	if e < 3 {
		return nil, errors.New("bad exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}

func (k jwk) ecKey() (*ecdsa.PublicKey, error) {
	var (
		curve elliptic.Curve
		ec    ecdh.Curve
	)
	switch k.Crv {
	case "P-256":
		curve, ec = elliptic.P256(), ecdh.P256()
	case "P-384":
		curve, ec = elliptic.P384(), ecdh.P384()
	case "P-521":
		curve, ec = elliptic.P521(), ecdh.P521()
	default:
		return nil, fmt.Errorf("unsupported crv %q", k.Crv)
	}
	size := (curve.Params().BitSize + 7) / 8
	x, errX := base64.RawURLEncoding.DecodeString(k.X)
	y, errY := base64.RawURLEncoding.DecodeString(k.Y)
	if errX != nil || errY != nil || len(x) != size || len(y) != size {
		return nil, errors.New("bad coordinates")
	}
	point := make([]byte, 0, 1+2*size)
	point = append(point, 4)
	point = append(point, x...)
	point = append(point, y...)
	// ecdh rejects points that are not on the curve.
	if _, err := ec.NewPublicKey(point); err != nil {
		return nil, err
	}
	return &ecdsa.PublicKey{Curve: curve, X: new(big.Int).SetBytes(x), Y: new(big.Int).SetBytes(y)}, nil
}
