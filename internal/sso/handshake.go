package sso

import (
	"context"
	"net/http"

	"github.com/dgellow/cdsso/internal/log"
	"github.com/dgellow/cdsso/internal/protocol"
	"github.com/dgellow/cdsso/internal/urlutil"
)

// Handshake is the per-request handshake state. It is created fresh for
// every request by HandshakeMiddleware and never stored.
type Handshake struct {
	PendingRedirectTarget string
	PropagationNeeded     bool
	LogoutRequested       bool
}

type handshakeKey struct{}

// WithHandshake returns a context carrying hs.
func WithHandshake(ctx context.Context, hs *Handshake) context.Context {
	return context.WithValue(ctx, handshakeKey{}, hs)
}

// FromContext returns the handshake of the request, or a detached empty one
// when the request did not pass through HandshakeMiddleware.
func FromContext(ctx context.Context) *Handshake {
	if hs, ok := ctx.Value(handshakeKey{}).(*Handshake); ok {
		return hs
	}
	return &Handshake{}
}

// HandshakeMiddleware attaches a fresh Handshake to each request and adds
// the logout marker to the Location of a redirect issued while
// LogoutRequested is set.
func HandshakeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hs := &Handshake{}
		mw := &markerWriter{ResponseWriter: w, hs: hs, r: r}
		next.ServeHTTP(mw, r.WithContext(WithHandshake(r.Context(), hs)))
	})
}

type markerWriter struct {
	http.ResponseWriter
	hs          *Handshake
	r           *http.Request
	wroteHeader bool
}

func (m *markerWriter) WriteHeader(code int) {
	if m.wroteHeader {
		return
	}
	m.wroteHeader = true

	if m.hs.LogoutRequested && code >= 300 && code < 400 {
		if loc := m.Header().Get("Location"); loc != "" {
			marked := urlutil.AddQueryArg(loc, protocol.MarkerKey, protocol.MarkerValue)
			m.Header().Set("Location", marked)
			log.LogTraceCtx(m.r.Context(), "sso", "Added logout marker to redirect", map[string]any{
				"location": marked,
			})
		}
	}
	m.ResponseWriter.WriteHeader(code)
}

func (m *markerWriter) Write(b []byte) (int, error) {
	if !m.wroteHeader {
		m.WriteHeader(http.StatusOK)
	}
	return m.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (m *markerWriter) Unwrap() http.ResponseWriter {
	return m.ResponseWriter
}
