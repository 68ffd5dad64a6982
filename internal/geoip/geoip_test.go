package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernyzasxash/clientt/internal/config"
	apperrors "github.com/ernyzasxash/clientt/internal/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, ttl time.Duration) (*Client, *atomic.Int32) {
	return newTestClientWithFailureTTL(t, handler, ttl, 0)
}

func newTestClientWithFailureTTL(t *testing.T, handler http.HandlerFunc, ttl, failureTTL time.Duration) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(config.GeoIPConfig{
		Enabled:    true,
		BaseURL:    srv.URL,
		Token:      "tok",
		Timeout:    time.Second,
		CacheTTL:   ttl,
		FailureTTL: failureTTL,
	}, nil)
	return c, &calls
}

func TestLookupParsesOrg(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/8.8.8.8/json", r.URL.Path)
		assert.Equal(t, "tok", r.URL.Query().Get("token"))
		_, _ = w.Write([]byte(`{"ip":"8.8.8.8","org":"AS15169 Google LLC"}`))
	}, time.Hour)

	info, err := c.Lookup(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, Info{ASN: "AS15169", Org: "Google LLC"}, info)

	// served from cache
	_, err = c.Lookup(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLookupPrefersASNObject(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"org":"ignored","asn":{"asn":"AS13335","name":"Cloudflare, Inc."}}`))
	}, time.Hour)

	info, err := c.Lookup(context.Background(), "1.1.1.1")
	require.NoError(t, err)
	assert.Equal(t, Info{ASN: "AS13335", Org: "Cloudflare, Inc."}, info)
}

func TestLookupCacheExpires(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"org":"AS64500 Example"}`))
	}, time.Minute)

	now := time.Now()
	c.now = func() time.Time { return now }

	_, err := c.Lookup(context.Background(), "203.0.113.7")
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = c.Lookup(context.Background(), "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLookupSkipsPrivateAddresses(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}, time.Hour)

	for _, ip := range []string{"127.0.0.1", "10.1.2.3", "192.168.0.10", "::1"} {
		info, err := c.Lookup(context.Background(), ip)
		require.NoError(t, err)
		assert.Equal(t, Info{}, info)
	}
	assert.Zero(t, calls.Load())
}

func TestLookupErrors(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}, time.Hour)

	_, err := c.Lookup(context.Background(), "8.8.4.4")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeProtocol))

	_, err = c.Lookup(context.Background(), "not-an-ip")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}

func TestLookupCachesFailures(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	c, calls := newTestClientWithFailureTTL(t, func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"org":"AS64500 Example"}`))
	}, time.Hour, time.Minute)

	now := time.Now()
	c.now = func() time.Time { return now }

	// one heartbeat per second for half a minute
	for i := 0; i < 30; i++ {
		_, err := c.Lookup(context.Background(), "203.0.113.9")
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeProtocol))
		now = now.Add(time.Second)
	}
	assert.Equal(t, int32(1), calls.Load())

	failing.Store(false)
	now = now.Add(time.Minute)
	info, err := c.Lookup(context.Background(), "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, "AS64500", info.ASN)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLookupDoesNotCacheCancelledLookups(t *testing.T) {
	c, calls := newTestClientWithFailureTTL(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"org":"AS64500 Example"}`))
	}, time.Hour, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Lookup(ctx, "203.0.113.10")
	require.Error(t, err)

	info, err := c.Lookup(context.Background(), "203.0.113.10")
	require.NoError(t, err)
	assert.Equal(t, "AS64500", info.ASN)
	assert.Equal(t, int32(1), calls.Load())
}

func TestParseOrg(t *testing.T) {
	assert.Equal(t, Info{ASN: "AS1", Org: "Tiny Net"}, parseOrg("as1 Tiny Net"))
	assert.Equal(t, Info{Org: "Unknown"}, parseOrg("Unknown"))
	assert.Equal(t, Info{}, parseOrg(""))
}

func TestNop(t *testing.T) {
	info, err := Nop{}.Lookup(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, Info{}, info)
}
