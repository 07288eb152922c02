package server

import (
	"net/http"

	jsonwriter "github.com/dgellow/cdsso/internal/json"
	"github.com/dgellow/cdsso/internal/log"
	"github.com/dgellow/cdsso/internal/origin"
	"github.com/dgellow/cdsso/internal/protocol"
	"github.com/dgellow/cdsso/internal/session"
	"github.com/dgellow/cdsso/internal/sso"
	"github.com/dgellow/cdsso/internal/urlutil"
)

// PageHandler serves site pages. Each page carries the head scripts that
// let a mapped domain pick up a login or a logout from the main site.
type PageHandler struct {
	engine   *sso.Engine
	sessions session.Gateway
	siteName string
}

// NewPageHandler creates a page handler
func NewPageHandler(engine *sso.Engine, sessions session.Gateway, siteName string) *PageHandler {
	return &PageHandler{
		engine:   engine,
		sessions: sessions,
		siteName: siteName,
	}
}

func (h *PageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET")
		jsonwriter.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	base := requestScheme(r) + "://" + r.Host
	loginURL := base + h.engine.Config().LoginPath
	current := urlutil.RemoveQueryArg(base+r.URL.RequestURI(), protocol.MarkerKey)

	data := SitePageData{
		SiteName: h.siteName,
		Host:     origin.NormalizeHost(r.Host),
	}
	if uid, ok := h.sessions.CurrentUserID(r); ok {
		data.UserID = uid.String()
		logout := urlutil.AddQueryArg(loginURL, protocol.ParamAjaxAction, "logout")
		data.LogoutURL = urlutil.AddQueryArg(logout, protocol.ParamRedirectTo, current)
	} else {
		data.LoginURL = urlutil.AddQueryArg(loginURL, protocol.ParamRedirectTo, current)
	}

	page, err := renderTemplate(sitePageTemplate, data)
	if err != nil {
		log.LogErrorCtx(r.Context(), "page", "Failed to render page", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Internal server error")
		return
	}
	writeHTML(w, http.StatusOK, h.engine.PlaceScripts(page, h.engine.HeadScripts(r)))
}
