package server

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgellow/cdsso/internal/cookie"
	"github.com/dgellow/cdsso/internal/crypto"
	"github.com/dgellow/cdsso/internal/directory"
	jsonwriter "github.com/dgellow/cdsso/internal/json"
	"github.com/dgellow/cdsso/internal/log"
	"github.com/dgellow/cdsso/internal/origin"
	"github.com/dgellow/cdsso/internal/protocol"
	"github.com/dgellow/cdsso/internal/session"
	"github.com/dgellow/cdsso/internal/sso"
)

const (
	csrfTTL          = 30 * time.Minute
	loginFailedError = "The username or password you entered is incorrect."
	loggedOutMessage = "You are now logged out."
)

// LoginHandlers serves the login form, the credential check that starts a
// propagation, and logout.
type LoginHandlers struct {
	engine    *sso.Engine
	directory directory.Directory
	sessions  session.Gateway
	csrf      crypto.CSRFProtection
	siteName  string
}

// NewLoginHandlers creates login handlers. csrfKey signs the form tokens.
func NewLoginHandlers(engine *sso.Engine, dir directory.Directory, sessions session.Gateway, csrfKey []byte, siteName string) *LoginHandlers {
	return &LoginHandlers{
		engine:    engine,
		directory: dir,
		sessions:  sessions,
		csrf:      crypto.NewCSRFProtection(csrfKey, csrfTTL),
		siteName:  siteName,
	}
}

// ServeHTTP routes on method and the action query parameter
func (h *LoginHandlers) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get(protocol.ParamAjaxAction) == "logout" {
		h.Logout(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		h.ShowForm(w, r)
	case http.MethodPost:
		h.Login(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		jsonwriter.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	}
}

// ShowForm renders the login form. A redirect_to pointing at another host
// is first moved onto the host the form is served from.
func (h *LoginHandlers) ShowForm(w http.ResponseWriter, r *http.Request) {
	redirectTo := r.URL.Query().Get(protocol.ParamRedirectTo)
	current := requestScheme(r) + "://" + r.Host + r.URL.RequestURI()
	if equalized := origin.EqualizeLoginURL(current, redirectTo); equalized != current {
		log.LogDebugCtx(r.Context(), "login", "Moving redirect target onto login host", map[string]any{
			"host":        r.Host,
			"redirect_to": redirectTo,
		})
		http.Redirect(w, r, equalized, http.StatusFound)
		return
	}

	data := LoginPageData{
		RedirectTo: redirectTo,
		ShowForm:   true,
	}
	if r.URL.Query().Get("loggedout") == "true" {
		data.Message = loggedOutMessage
	}
	h.renderForm(w, r, http.StatusOK, data)
}

// Login checks credentials, opens a session and, on a mapped domain, renders
// the interim page that carries the login to the main site.
func (h *LoginHandlers) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		jsonwriter.WriteBadRequest(w, "Invalid form data")
		return
	}
	if !h.validCSRF(r) {
		log.LogWarnCtx(ctx, "login", "Rejected login with invalid CSRF token", map[string]any{
			"host": r.Host,
		})
		jsonwriter.WriteForbidden(w, "Invalid CSRF token")
		return
	}

	login := strings.TrimSpace(r.PostFormValue("log"))
	redirectTo := r.PostFormValue(protocol.ParamRedirectTo)

	user, err := h.directory.Authenticate(ctx, login, r.PostFormValue("pwd"))
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) || errors.Is(err, directory.ErrInvalidCredentials) {
			log.LogInfoCtx(ctx, "login", "Login failed", map[string]any{
				"host":  r.Host,
				"login": login,
			})
			h.renderForm(w, r, http.StatusUnauthorized, LoginPageData{
				Login:      login,
				RedirectTo: redirectTo,
				Error:      loginFailedError,
				ShowForm:   true,
			})
			return
		}
		log.LogErrorCtx(ctx, "login", "Failed to authenticate user", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Internal server error")
		return
	}

	if err := h.sessions.SetSession(w, r, user.ID); err != nil {
		log.LogErrorCtx(ctx, "login", "Failed to open session", map[string]any{
			"error": err.Error(),
			"user":  user.ID.String(),
		})
		jsonwriter.WriteInternalServerError(w, "Internal server error")
		return
	}
	cookie.Clear(w, cookie.CSRFCookie)

	h.engine.BeginLogin(r)
	target := h.engine.LoginRedirectTarget(r, user, h.safeRedirect(r, redirectTo))

	log.LogInfoCtx(ctx, "login", "User logged in", map[string]any{
		"host":   r.Host,
		"user":   user.ID.String(),
		"target": target,
	})

	if !sso.FromContext(ctx).PropagationNeeded {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	scripts, err := h.engine.PropagationScripts(r, user, target)
	if err != nil {
		// the local session is already open
		log.LogErrorCtx(ctx, "login", "Failed to build propagation scripts", map[string]any{
			"error": err.Error(),
		})
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	page, err := renderTemplate(loginPageTemplate, LoginPageData{
		SiteName: h.siteName,
		Message:  h.engine.LoginMessage(),
	})
	if err != nil {
		log.LogErrorCtx(ctx, "login", "Failed to render interim login page", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Internal server error")
		return
	}
	writeHTML(w, http.StatusOK, h.engine.PlaceScripts(page, scripts))
}

// Logout closes the session and redirects. The redirect carries the logout
// marker so the next page starts the logout cascade.
func (h *LoginHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.engine.BeginLogout(r)
	h.sessions.ClearSession(w, r)

	target := h.safeRedirect(r, r.URL.Query().Get(protocol.ParamRedirectTo))
	if target == "" {
		target = h.engine.Config().LoginPath + "?loggedout=true"
	}

	log.LogInfoCtx(r.Context(), "login", "User logged out", map[string]any{
		"host":   r.Host,
		"target": target,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *LoginHandlers) renderForm(w http.ResponseWriter, r *http.Request, status int, data LoginPageData) {
	token, err := h.csrf.Generate()
	if err != nil {
		log.LogErrorCtx(r.Context(), "login", "Failed to generate CSRF token", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Internal server error")
		return
	}
	cookie.SetCSRF(w, token, session.IsSecureRequest(r))

	data.SiteName = h.siteName
	data.Action = h.engine.Config().LoginPath
	data.CSRFToken = token

	page, err := renderTemplate(loginPageTemplate, data)
	if err != nil {
		log.LogErrorCtx(r.Context(), "login", "Failed to render login page", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Internal server error")
		return
	}
	writeHTML(w, status, h.engine.PlaceScripts(page, h.engine.HeadScripts(r)))
}

// validCSRF checks the form token against its cookie and its signature.
func (h *LoginHandlers) validCSRF(r *http.Request) bool {
	formToken := r.PostFormValue("csrf_token")
	cookieToken, err := cookie.GetCSRF(r)
	if err != nil || formToken == "" {
		return false
	}
	if !crypto.Equal([]byte(formToken), []byte(cookieToken)) {
		return false
	}
	return h.csrf.Validate(formToken)
}

// safeRedirect returns redirectTo when it stays on this host or on another
// host of the network, and "" otherwise.
func (h *LoginHandlers) safeRedirect(r *http.Request, redirectTo string) string {
	if redirectTo == "" {
		return ""
	}
	u, err := url.Parse(redirectTo)
	if err != nil {
		return ""
	}
	if u.Host == "" {
		if u.Scheme != "" || strings.HasPrefix(redirectTo, "//") || strings.HasPrefix(redirectTo, `/\`) {
			return ""
		}
		return redirectTo
	}
	if u.Scheme != origin.SchemeHTTP && u.Scheme != origin.SchemeHTTPS {
		return ""
	}
	if origin.NormalizeHost(u.Host) == origin.NormalizeHost(r.Host) {
		return redirectTo
	}

	trusted, err := h.engine.TrustedHost(r.Context(), u.Host)
	if err != nil {
		log.LogErrorCtx(r.Context(), "login", "Failed to check redirect host", map[string]any{
			"error": err.Error(),
			"host":  u.Host,
		})
		return ""
	}
	if !trusted {
		log.LogWarnCtx(r.Context(), "login", "Dropped redirect to foreign host", map[string]any{
			"redirect_to": redirectTo,
		})
		return ""
	}
	return redirectTo
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), origin.SchemeHTTPS) {
		return origin.SchemeHTTPS
	}
	return origin.SchemeHTTP
}

func writeHTML(w http.ResponseWriter, status int, page string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, page)
}
