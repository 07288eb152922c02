package server

import (
	"fmt"
	"net/http"

	"github.com/dgellow/cdsso/internal/directory"
	"github.com/dgellow/cdsso/internal/log"
	"github.com/dgellow/cdsso/internal/metrics"
	"github.com/dgellow/cdsso/internal/session"
	"github.com/dgellow/cdsso/internal/sso"
)

// RouterConfig holds what the router mounts
type RouterConfig struct {
	Engine    *sso.Engine
	Directory directory.Directory
	Sessions  session.Gateway
	CSRFKey   []byte
	Metrics   *metrics.Metrics
	// MetricsPath mounts the Prometheus handler when set
	MetricsPath string
	AjaxPath    string
	ServiceName string
	// HealthChecks run on every /health request
	HealthChecks map[string]HealthCheck
}

// NewRouter builds the HTTP surface of a network host: the SSO endpoint on
// every path, the ajax endpoint, the login form and the site pages.
func NewRouter(cfg RouterConfig) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("sso engine is required")
	}
	if cfg.Directory == nil {
		return nil, fmt.Errorf("user directory is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session gateway is required")
	}
	if cfg.AjaxPath == "" {
		return nil, fmt.Errorf("ajax path is required")
	}

	login := NewLoginHandlers(cfg.Engine, cfg.Directory, cfg.Sessions, cfg.CSRFKey, cfg.ServiceName)
	page := NewPageHandler(cfg.Engine, cfg.Sessions, cfg.ServiceName)
	endpoint := ChainMiddleware(cfg.Engine.EndpointHandler(), NewMetricsMiddleware(cfg.Metrics, "sso_endpoint"))
	site := ChainMiddleware(page, NewMetricsMiddleware(cfg.Metrics, "page"))

	mux := http.NewServeMux()
	mux.Handle("/health", NewHealthHandler(cfg.HealthChecks))
	if cfg.MetricsPath != "" && cfg.Metrics != nil {
		mux.Handle(cfg.MetricsPath, cfg.Metrics.Handler())
	}
	mux.Handle(cfg.AjaxPath, ChainMiddleware(cfg.Engine.AjaxHandler(), NewMetricsMiddleware(cfg.Metrics, "ajax")))
	mux.Handle(cfg.Engine.Config().LoginPath, ChainMiddleware(login, NewMetricsMiddleware(cfg.Metrics, "login")))
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cfg.Engine.IsEndpointRequest(r) {
			endpoint.ServeHTTP(w, r)
			return
		}
		site.ServeHTTP(w, r)
	}))

	log.LogInfoWithFields("server", "Routes mounted", map[string]any{
		"ajax":    cfg.AjaxPath,
		"login":   cfg.Engine.Config().LoginPath,
		"metrics": cfg.MetricsPath,
	})

	return ChainMiddleware(mux,
		sso.HandshakeMiddleware,
		NewLoggerMiddleware("http"),
		NewRecoverMiddleware("http"),
		NewTracingMiddleware(cfg.ServiceName),
	), nil
}
