package sso

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dgellow/cdsso/internal/directory"
	"github.com/dgellow/cdsso/internal/log"
	"github.com/dgellow/cdsso/internal/origin"
	"github.com/dgellow/cdsso/internal/protocol"
	"github.com/dgellow/cdsso/internal/script"
	"github.com/dgellow/cdsso/internal/urlutil"
)

// HeadScripts returns the markup a page on r.Host must include to join the
// handshake. It is empty on the main site and for logged in visitors.
func (e *Engine) HeadScripts(r *http.Request) string {
	if e.isMain(r.Host) || e.sessions.IsAuthenticated(r) {
		return ""
	}
	host := origin.NormalizeHost(r.Host)

	if r.URL.Query().Get(protocol.MarkerKey) == protocol.MarkerValue {
		logout := urlutil.AddQueryArg(e.resolver.MainAjaxURL(""), protocol.ParamAjaxAction, protocol.LogoutUser.String())
		e.metrics.ScriptRendered("logout")
		log.LogTraceCtx(r.Context(), "sso", "Rendering logout bootstrap", map[string]any{"host": host})
		return e.renderer.Tag(logout)
	}

	if e.isLoginPage(r) {
		return ""
	}

	status := e.resolver.ResolveEndpointURL(r.Context(), protocol.CheckLoginStatus, e.resolver.CanonicalHost(), url.Values{
		protocol.ParamDomain: {host},
	})
	e.metrics.ScriptRendered("status")
	return script.IframeBootstrapTag(status, script.TargetWindow)
}

func (e *Engine) isLoginPage(r *http.Request) bool {
	return r.URL.Path == e.cfg.LoginPath
}

// BeginLogin marks the request as a login that must be carried to the main
// site. It does nothing on the main site.
func (e *Engine) BeginLogin(r *http.Request) {
	if e.isMain(r.Host) {
		return
	}
	FromContext(r.Context()).PropagationNeeded = true
}

// BeginLogout marks the request so the redirect that follows it carries the
// logout marker.
func (e *Engine) BeginLogout(r *http.Request) {
	FromContext(r.Context()).LogoutRequested = true
}

// LoginRedirectTarget returns where user goes after logging in. Requests for
// the admin area are narrowed to what the user may actually open.
func (e *Engine) LoginRedirectTarget(r *http.Request, user *directory.User, redirectTo string) string {
	scheme := requestScheme(r)
	adminURL := scheme + "://" + r.Host + e.cfg.AdminPath
	target := redirectTo
	if target == "" {
		target = adminURL
	}

	if isAdminRequest(redirectTo, adminURL, e.cfg.AdminPath) {
		switch {
		case !user.HasActiveSite() && !user.SuperAdmin:
			target = scheme + "://" + r.Host + e.cfg.UserAdminPath
		case !user.Can(directory.CapRead):
			target = e.resolver.Canonical().Scheme + "://" + e.resolver.CanonicalHost() + e.cfg.AdminPath
		case !user.Can(directory.CapEditPosts):
			target = scheme + "://" + r.Host + e.cfg.ProfilePath
		}
	}

	FromContext(r.Context()).PendingRedirectTarget = target
	return target
}

func isAdminRequest(redirectTo, adminURL, adminPath string) bool {
	if redirectTo == "" || redirectTo == adminURL {
		return true
	}
	return strings.TrimPrefix(redirectTo, "/") == strings.TrimPrefix(adminPath, "/")
}

// PropagationScripts returns the interim login page scripts: a timer that
// follows target after the redirect delay, and the propagate call to the
// main site that fires it early once the main session is set.
func (e *Engine) PropagationScripts(r *http.Request, user *directory.User, target string) (string, error) {
	ctx := r.Context()
	canonical := e.resolver.CanonicalHost()
	tok, err := e.tokens.Issue(user.ID, canonical, e.cfg.TokenTTL)
	if err != nil {
		return "", fmt.Errorf("issuing propagation token: %w", err)
	}
	e.metrics.TokenIssued(protocol.PropagateUser.String())

	scheme := ""
	if e.prober != nil {
		supported := e.prober.SupportsSSL(ctx, origin.NormalizeHost(r.Host))
		e.metrics.SSLProbe(supported)
		if supported {
			scheme = origin.SchemeHTTPS
		}
	}

	propagate := urlutil.AddQueryArg(e.resolver.MainAjaxURL(scheme), protocol.ParamAjaxAction, protocol.PropagateUser.String())
	propagate = urlutil.AddQueryArg(propagate, protocol.ParamAuth, tok.String())

	log.LogDebugCtx(ctx, "sso", "Propagating login to main site", map[string]any{
		"host":   r.Host,
		"user":   user.ID.String(),
		"target": target,
	})
	e.metrics.ScriptRendered("propagate")
	return script.Wrap(script.RedirectTimer(target, e.cfg.RedirectDelay)) + e.renderer.Tag(propagate), nil
}

// LoginMessage is shown on the interim login page.
func (e *Engine) LoginMessage() string {
	return fmt.Sprintf("You have logged in successfully. You will be redirected to desired page during next %d seconds.",
		int(e.cfg.RedirectDelay.Seconds()))
}

// PlaceScripts inserts markup into page, before </head> or, with
// LoadInFooter, before </body>. Pages without the anchor get it appended.
func (e *Engine) PlaceScripts(page, markup string) string {
	if markup == "" {
		return page
	}
	anchor := "</head>"
	if e.cfg.LoadInFooter {
		anchor = "</body>"
	}
	i := strings.LastIndex(page, anchor)
	if i < 0 {
		return page + markup
	}
	return page[:i] + markup + page[i:]
}
