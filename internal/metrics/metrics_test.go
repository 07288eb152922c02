package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakeCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Handshake("domainmap-authorize-user", OutcomeSuccess)
	m.Handshake("domainmap-authorize-user", OutcomeSuccess)
	m.Handshake("domainmap-authorize-user", OutcomeRejected)
	m.TokenIssued("domainmap-check-login-status")
	m.ScriptRendered("check-login-status")
	m.SSLProbe(true)
	m.SSLProbe(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HandshakeTotal.WithLabelValues("domainmap-authorize-user", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HandshakeTotal.WithLabelValues("domainmap-authorize-user", OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokensIssued.WithLabelValues("domainmap-check-login-status")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScriptsRendered.WithLabelValues("check-login-status")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SSLProbes.WithLabelValues("supported")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SSLProbes.WithLabelValues("unsupported")))
}

func TestHTTPRequest(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.HTTPRequest(http.MethodGet, "/health", 200, 10*time.Millisecond)
	m.HTTPRequest(http.MethodGet, "/health", 404, 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestTotal.WithLabelValues("GET", "/health", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestTotal.WithLabelValues("GET", "/health", "4xx")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPDuration))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Handshake("a", OutcomeNoop)
		m.TokenIssued("a")
		m.ScriptRendered("a")
		m.SSLProbe(true)
		m.HTTPRequest("GET", "/", 200, time.Second)
	})

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler(t *testing.T) {
	m := NewWithDefaults()
	m.Handshake("domainmap-logout-user", OutcomeSuccess)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `cdsso_handshake_total{action="domainmap-logout-user",outcome="success"} 1`)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "3xx", statusClass(302))
	assert.Equal(t, "4xx", statusClass(400))
	assert.Equal(t, "5xx", statusClass(503))
}
