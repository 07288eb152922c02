// Package sso runs the cross-domain login handshake: status checks from
// mapped domains, authorization on the mapped side, propagation of fresh
// logins back to the main site and logout cascades.
package sso

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dgellow/cdsso/internal/authtoken"
	"github.com/dgellow/cdsso/internal/json"
	"github.com/dgellow/cdsso/internal/log"
	"github.com/dgellow/cdsso/internal/metrics"
	"github.com/dgellow/cdsso/internal/origin"
	"github.com/dgellow/cdsso/internal/protocol"
	"github.com/dgellow/cdsso/internal/registry"
	"github.com/dgellow/cdsso/internal/replay"
	"github.com/dgellow/cdsso/internal/script"
	"github.com/dgellow/cdsso/internal/session"
)

// Defaults
const (
	DefaultRedirectDelay = 5 * time.Second
	DefaultLoginPath     = "/wp-login.php"
	DefaultAdminPath     = "/wp-admin/"
	DefaultUserAdminPath = "/wp-admin/user/"
	DefaultProfilePath   = "/wp-admin/profile.php"

	negativeExpiry = time.Minute
)

// Config tunes the engine.
type Config struct {
	TokenTTL      time.Duration
	RedirectDelay time.Duration
	LoadInFooter  bool
	LoginPath     string
	AdminPath     string
	UserAdminPath string
	ProfilePath   string
}

func (c *Config) setDefaults() {
	if c.TokenTTL == 0 {
		c.TokenTTL = authtoken.DefaultTTL
	}
	if c.RedirectDelay == 0 {
		c.RedirectDelay = DefaultRedirectDelay
	}
	if c.LoginPath == "" {
		c.LoginPath = DefaultLoginPath
	}
	if c.AdminPath == "" {
		c.AdminPath = DefaultAdminPath
	}
	if c.UserAdminPath == "" {
		c.UserAdminPath = DefaultUserAdminPath
	}
	if c.ProfilePath == "" {
		c.ProfilePath = DefaultProfilePath
	}
}

// SSLProber reports whether a host answers on https.
type SSLProber interface {
	SupportsSSL(ctx context.Context, host string) bool
}

// Deps are the collaborators of the engine. Replay, Prober and Metrics are
// optional.
type Deps struct {
	Tokens   *authtoken.Service
	Resolver *origin.Resolver
	Registry registry.Registry
	Sessions session.Gateway
	Renderer *script.Renderer
	Replay   replay.Registry
	Prober   SSLProber
	Metrics  *metrics.Metrics
}

// outcome classifies how an action ended, for metrics.
type outcome = string

type actionHandler func(w http.ResponseWriter, r *http.Request) outcome

// Engine serves the handshake endpoints and renders page scripts. It keeps
// no per-request state of its own.
type Engine struct {
	cfg      Config
	tokens   *authtoken.Service
	resolver *origin.Resolver
	registry registry.Registry
	sessions session.Gateway
	renderer *script.Renderer
	replay   replay.Registry
	prober   SSLProber
	metrics  *metrics.Metrics
	now      func() time.Time

	endpointActions map[protocol.Action]actionHandler
	ajaxActions     map[protocol.Action]actionHandler
}

// New creates an engine.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Tokens == nil {
		return nil, fmt.Errorf("token service is required")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("origin resolver is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("domain registry is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session gateway is required")
	}
	if deps.Renderer == nil {
		deps.Renderer = script.NewRenderer(false)
	}
	if deps.Replay == nil {
		deps.Replay = replay.Noop{}
	}
	cfg.setDefaults()

	e := &Engine{
		cfg:      cfg,
		tokens:   deps.Tokens,
		resolver: deps.Resolver,
		registry: deps.Registry,
		sessions: deps.Sessions,
		renderer: deps.Renderer,
		replay:   deps.Replay,
		prober:   deps.Prober,
		metrics:  deps.Metrics,
		now:      time.Now,
	}

	e.endpointActions = map[protocol.Action]actionHandler{
		protocol.CheckLoginStatus: e.checkLoginStatus,
		protocol.AuthorizeUser:    e.authorizeUser,
		protocol.PropagateUser:    e.propagateUser,
		protocol.LogoutUser:       e.logoutUser,
	}
	e.ajaxActions = map[protocol.Action]actionHandler{
		protocol.PropagateUser: e.propagateUser,
		protocol.LogoutUser:    e.logoutUser,
	}
	return e, nil
}

// SetClock overrides the time source used for response headers.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// EndpointHandler serves the SSO endpoint, routed by dm_action.
func (e *Engine) EndpointHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.dispatch(w, r, protocol.ParamRouting, e.endpointActions)
	})
}

// AjaxHandler serves the ajax endpoint, routed by action.
func (e *Engine) AjaxHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.dispatch(w, r, protocol.ParamAjaxAction, e.ajaxActions)
	})
}

// InterceptEndpoint serves requests addressed to the SSO endpoint, in
// either the /<endpoint>/<ts>/ or the ?<endpoint>=<ts> form, and passes
// everything else to next.
func (e *Engine) InterceptEndpoint(next http.Handler) http.Handler {
	endpoint := e.EndpointHandler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if e.IsEndpointRequest(r) {
			endpoint.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IsEndpointRequest reports whether r is addressed to the SSO endpoint.
func (e *Engine) IsEndpointRequest(r *http.Request) bool {
	name := e.resolver.EndpointName()
	return strings.HasPrefix(r.URL.Path, "/"+name+"/") || r.URL.Query().Has(name)
}

func (e *Engine) dispatch(w http.ResponseWriter, r *http.Request, param string, actions map[protocol.Action]actionHandler) {
	h := w.Header()
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")

	name := r.FormValue(param)
	if name == "" {
		h.Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		return
	}

	action := protocol.Action(name)
	handler, ok := actions[action]
	if !ok {
		err := &UnknownActionError{Action: name}
		log.LogWarnCtx(r.Context(), "sso", "Unknown action requested", map[string]any{
			"action": name,
			"host":   r.Host,
		})
		// Free-form names stay out of the metric labels.
		label := "unknown"
		if action.Known() {
			label = name
		}
		e.metrics.Handshake(label, metrics.OutcomeRejected)
		json.WriteActionError(w, err.RPCError())
		return
	}

	result := handler(w, r)
	e.metrics.Handshake(name, result)
	log.LogDebugCtx(r.Context(), "sso", "Handled action", map[string]any{
		"action":  name,
		"host":    r.Host,
		"outcome": result,
	})
}

func (e *Engine) writeScript(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, body)
}

// writeNothing ends a leg that has nothing to do. The empty script may be
// cached by proxies for a minute.
func (e *Engine) writeNothing(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/javascript; charset=utf-8")
	h.Set("Vary", "Accept-Encoding")
	h.Set("Expires", e.now().Add(negativeExpiry).UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
}

// isMain reports whether host is exactly the canonical host.
func (e *Engine) isMain(host string) bool {
	return origin.NormalizeHost(host) == e.resolver.CanonicalHost()
}

// trustedTarget reports whether host may receive a token or a navigation:
// an active mapped domain or a host inside the canonical network.
func (e *Engine) trustedTarget(ctx context.Context, host string) (bool, error) {
	host = origin.NormalizeHost(host)
	if host == "" {
		return false, nil
	}
	if e.resolver.IsCanonical(host) {
		return true, nil
	}
	return e.registry.IsKnownMappedDomain(ctx, host)
}

// TrustedHost reports whether host belongs to the network, either inside
// the canonical domain group or as an active mapped domain.
func (e *Engine) TrustedHost(ctx context.Context, host string) (bool, error) {
	return e.trustedTarget(ctx, host)
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return origin.SchemeHTTPS
	}
	return origin.SchemeHTTP
}
