package provider

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"authcore/internal/telemetry"
)

func TestKeySet_ConcurrentFirstLoadFetchesOnce(t *testing.T) {
	idp := newTestIdP(t)
	idp.publish("rsa-1", newRSAKey(t))
	ks := idp.keySet()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k, err := ks.Key(context.Background(), "rsa-1")
			assert.NoError(t, err)
			assert.NotNil(t, k)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), idp.hits.Load())
}

func TestKeySet_UnknownKidIsNotAnError(t *testing.T) {
	idp := newTestIdP(t)
	idp.publish("rsa-1", newRSAKey(t))
	ks := idp.keySet()

	k, err := ks.Key(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, k)
}

func TestKeySet_MinRefreshIntervalLimitsKidMisses(t *testing.T) {
	idp := newTestIdP(t)
	idp.publish("rsa-1", newRSAKey(t))
	ks := idp.keySet(WithMinRefreshInterval(time.Hour))

	_, err := ks.Key(context.Background(), "rsa-1")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, _ = ks.Key(context.Background(), "missing")
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), idp.hits.Load())
}

func TestKeySet_QueuedRefreshesAfterAFetchAreSkipped(t *testing.T) {
	idp := newTestIdP(t)
	idp.publish("rsa-1", newRSAKey(t))
	ks := idp.keySet(WithMinRefreshInterval(time.Minute))
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := start
	ks.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	ctx := context.Background()
	_, err := ks.Key(ctx, "rsa-1")
	require.NoError(t, err)
	require.Equal(t, int32(1), idp.hits.Load())

	mu.Lock()
	now = start.Add(2 * time.Minute)
	mu.Unlock()
	// Each call models a goroutine that passed the outer check before the first fetch finished.
	for i := 0; i < 5; i++ {
		require.NoError(t, ks.refreshIfStale(ctx))
	}
	assert.Equal(t, int32(2), idp.hits.Load())
}

func TestKeySet_RevalidatesWithETag(t *testing.T) {
	idp := newTestIdP(t)
	idp.publish("rsa-1", newRSAKey(t))
	ks := idp.keySet(WithRefreshInterval(time.Nanosecond), WithMinRefreshInterval(0))

	_, err := ks.Key(context.Background(), "rsa-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		k, err := ks.Key(context.Background(), "rsa-1")
		return err == nil && k != nil && idp.notModified.Load() > 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestKeySet_FirstLoadHonorsContext(t *testing.T) {
	idp := newTestIdP(t)
	idp.publish("rsa-1", newRSAKey(t))
	ks := idp.keySet()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ks.Key(ctx, "rsa-1")
	require.ErrorIs(t, err, context.Canceled)
}

func TestKeySet_RecordsRefreshMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := telemetry.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	require.NoError(t, err)

	idp := newTestIdP(t)
	idp.publish("rsa-1", newRSAKey(t))
	ks := idp.keySet(WithKeySetMetrics(m, "AUTH0"))
	_, err = ks.Key(context.Background(), "rsa-1")
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, mt := range sm.Metrics {
			if mt.Name != "auth.jwks.refreshes" {
				continue
			}
			sum, ok := mt.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			require.Len(t, sum.DataPoints, 1)
			assert.Equal(t, int64(1), sum.DataPoints[0].Value)
			found = true
		}
	}
	assert.True(t, found)
}

func TestJWK_PublicKey(t *testing.T) {
	rsaJWK := toJWK("r", newRSAKey(t))
	_, err := rsaJWK.publicKey()
	require.NoError(t, err)

	ecJWK := toJWK("e", newECKey(t))
	_, err = ecJWK.publicKey()
	require.NoError(t, err)

	offCurve := ecJWK
	offCurve.Y = base64.RawURLEncoding.EncodeToString(make([]byte, 32))
	_, err = offCurve.publicKey()
	assert.Error(t, err, "point not on the curve")

	short := ecJWK
	short.X = base64.RawURLEncoding.EncodeToString([]byte{1, 2, 3})
	_, err = short.publicKey()
	assert.Error(t, err)

	badExp := rsaJWK
	badExp.E = base64.RawURLEncoding.EncodeToString([]byte{1})
	_, err = badExp.publicKey()
	assert.Error(t, err)

	_, err = jwk{Kty: "oct", Kid: "h"}.publicKey()
	assert.Error(t, err)
}
