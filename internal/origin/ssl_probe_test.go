package origin

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSLProberCertificateErrorCountsAsSupported(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "https://")
	p := NewSSLProber(2*time.Second, time.Minute, 8)

	// The default client does not trust the test certificate, so the
	// handshake fails with an unknown authority error.
	assert.True(t, p.SupportsSSL(context.Background(), host))
	assert.Zero(t, hits.Load())
}

func TestSSLProberTrustedServer(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
	}))
	defer srv.Close()

	p := NewSSLProber(2*time.Second, time.Minute, 8)
	p.client = srv.Client()
	p.client.Timeout = 2 * time.Second

	assert.True(t, p.SupportsSSL(context.Background(), strings.TrimPrefix(srv.URL, "https://")))
}

func TestSSLProberConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	p := NewSSLProber(time.Second, time.Minute, 8)
	assert.False(t, p.SupportsSSL(context.Background(), addr))
}

func TestSSLProberCachesAndDeduplicates(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(20 * time.Millisecond)
	}))
	defer srv.Close()

	p := NewSSLProber(2*time.Second, time.Minute, 8)
	p.client = srv.Client()
	host := strings.TrimPrefix(srv.URL, "https://")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, p.SupportsSSL(context.Background(), host))
		}()
	}
	wg.Wait()

	assert.True(t, p.SupportsSSL(context.Background(), host))
	assert.Less(t, hits.Load(), int32(10), "concurrent probes share requests and results are cached")
	assert.GreaterOrEqual(t, hits.Load(), int32(1))
}

func TestSSLProberIgnoresCallerCancellation(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	p := NewSSLProber(2*time.Second, time.Minute, 8)
	p.client = srv.Client()
	p.client.Timeout = 2 * time.Second
	host := strings.TrimPrefix(srv.URL, "https://")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, p.SupportsSSL(ctx, host))

	cached, hit := p.cache.Get(host)
	require.True(t, hit)
	assert.True(t, cached)
}
