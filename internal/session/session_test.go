package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgellow/cdsso/internal/cookie"
	"github.com/dgellow/cdsso/internal/identity"
)

var testKey = []byte("session-key-that-is-at-least-32-bytes-long")

// replay copies the cookies set on w onto a fresh request.
func replay(w *httptest.ResponseRecorder) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "http://shop.example/", nil)
	for _, c := range w.Result().Cookies() {
		r.AddCookie(c)
	}
	return r
}

func TestCookieGatewayRoundTrip(t *testing.T) {
	g := NewCookieGateway(testKey, time.Hour)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "http://shop.example/", nil)
	require.NoError(t, g.SetSession(w, r, 42))

	next := replay(w)
	uid, ok := g.CurrentUserID(next)
	require.True(t, ok)
	assert.Equal(t, identity.UserID(42), uid)
	assert.True(t, g.IsAuthenticated(next))
}

func TestCookieGatewayRejectsForeignCookie(t *testing.T) {
	g := NewCookieGateway(testKey, time.Hour)
	other := NewCookieGateway([]byte("another-key-that-is-at-least-32-bytes-long"), time.Hour)

	w := httptest.NewRecorder()
	require.NoError(t, other.SetSession(w, httptest.NewRequest(http.MethodGet, "/", nil), 42))

	assert.False(t, g.IsAuthenticated(replay(w)))
}

func TestCookieGatewayExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	g := NewCookieGateway(testKey, time.Hour).WithClock(func() time.Time { return now })

	w := httptest.NewRecorder()
	require.NoError(t, g.SetSession(w, httptest.NewRequest(http.MethodGet, "/", nil), 42))

	later := g.WithClock(func() time.Time { return now.Add(2 * time.Hour) })
	assert.False(t, later.IsAuthenticated(replay(w)))
}

func TestCookieGatewayNoCookie(t *testing.T) {
	g := NewCookieGateway(testKey, time.Hour)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := g.CurrentUserID(r)
	assert.False(t, ok)

	r.AddCookie(&http.Cookie{Name: cookie.SessionCookie, Value: "garbage"})
	assert.False(t, g.IsAuthenticated(r))
}

func TestCookieGatewayClear(t *testing.T) {
	g := NewCookieGateway(testKey, time.Hour)
	w := httptest.NewRecorder()
	g.ClearSession(w, httptest.NewRequest(http.MethodGet, "/", nil))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, cookie.SessionCookie, cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestCookieGatewayClearMatchesSecureSession(t *testing.T) {
	t.Setenv("CDSSO_ENV", "")
	g := NewCookieGateway(testKey, time.Hour)
	r := httptest.NewRequest(http.MethodGet, "https://network.example.com/wp-admin/admin-ajax.php", nil)

	set := httptest.NewRecorder()
	require.NoError(t, g.SetSession(set, r, 42))
	cleared := httptest.NewRecorder()
	g.ClearSession(cleared, r)

	setCookie := set.Result().Cookies()[0]
	clearCookie := cleared.Result().Cookies()[0]
	assert.Equal(t, http.SameSiteNoneMode, clearCookie.SameSite)
	assert.True(t, clearCookie.Secure)
	assert.Equal(t, setCookie.SameSite, clearCookie.SameSite)
	assert.Equal(t, setCookie.Path, clearCookie.Path)
}

func TestIsSecureRequest(t *testing.T) {
	t.Setenv("CDSSO_ENV", "")

	r := httptest.NewRequest(http.MethodGet, "http://shop.example/", nil)
	assert.False(t, IsSecureRequest(r))

	r.Header.Set("X-Forwarded-Proto", "https")
	assert.True(t, IsSecureRequest(r))

	tlsReq := httptest.NewRequest(http.MethodGet, "https://shop.example/", nil)
	assert.True(t, IsSecureRequest(tlsReq))

	t.Setenv("CDSSO_ENV", "dev")
	assert.False(t, IsSecureRequest(tlsReq))
}
