// Package session sets and reads the platform login session held in a
// signed browser cookie on each origin.
package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/dgellow/cdsso/internal/cookie"
	"github.com/dgellow/cdsso/internal/crypto"
	"github.com/dgellow/cdsso/internal/envutil"
	"github.com/dgellow/cdsso/internal/identity"
	"github.com/dgellow/cdsso/internal/log"
)

// BrowserCookie is the payload of the session cookie
type BrowserCookie struct {
	UserID identity.UserID `json:"uid"`
}

// Gateway is the session surface the handshake consumes.
type Gateway interface {
	SetSession(w http.ResponseWriter, r *http.Request, uid identity.UserID) error
	ClearSession(w http.ResponseWriter, r *http.Request)
	IsAuthenticated(r *http.Request) bool
	CurrentUserID(r *http.Request) (identity.UserID, bool)
}

// CookieGateway keeps the session in an HMAC-signed cookie.
type CookieGateway struct {
	signer crypto.TokenSigner
	ttl    time.Duration
}

var _ Gateway = (*CookieGateway)(nil)

// NewCookieGateway creates a gateway signing cookies with key. Sessions last ttl.
func NewCookieGateway(key []byte, ttl time.Duration) *CookieGateway {
	return &CookieGateway{
		signer: crypto.NewTokenSigner(key, ttl),
		ttl:    ttl,
	}
}

// WithClock returns a copy of the gateway reading time from now.
func (g *CookieGateway) WithClock(now func() time.Time) *CookieGateway {
	return &CookieGateway{signer: g.signer.WithClock(now), ttl: g.ttl}
}

func (g *CookieGateway) SetSession(w http.ResponseWriter, r *http.Request, uid identity.UserID) error {
	value, err := g.signer.Sign(BrowserCookie{UserID: uid})
	if err != nil {
		return err
	}
	cookie.SetSession(w, value, g.ttl, IsSecureRequest(r))

	log.LogDebugCtx(r.Context(), "session", "Session set", map[string]any{
		"user": uid.String(),
		"host": r.Host,
	})
	return nil
}

func (g *CookieGateway) ClearSession(w http.ResponseWriter, r *http.Request) {
	cookie.ClearSession(w, IsSecureRequest(r))
	log.LogDebugCtx(r.Context(), "session", "Session cleared", map[string]any{
		"host": r.Host,
	})
}

func (g *CookieGateway) CurrentUserID(r *http.Request) (identity.UserID, bool) {
	value, err := cookie.GetSession(r)
	if err != nil || value == "" {
		return 0, false
	}

	var data BrowserCookie
	if err := g.signer.Verify(value, &data); err != nil {
		log.LogTraceCtx(r.Context(), "session", "Ignoring invalid session cookie", map[string]any{
			"error": err.Error(),
		})
		return 0, false
	}
	if !data.UserID.Valid() {
		return 0, false
	}
	return data.UserID, true
}

func (g *CookieGateway) IsAuthenticated(r *http.Request) bool {
	_, ok := g.CurrentUserID(r)
	return ok
}

// IsSecureRequest reports whether the cookie can carry the Secure flag.
func IsSecureRequest(r *http.Request) bool {
	if envutil.IsDev() {
		return false
	}
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
