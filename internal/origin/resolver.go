// Package origin decides which origin is canonical and builds the URLs of
// the handshake endpoints on each origin.
package origin

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dgellow/cdsso/internal/log"
	"github.com/dgellow/cdsso/internal/protocol"
	"github.com/dgellow/cdsso/internal/urlutil"
)

const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
)

// Origin is a host together with the scheme it is served on.
type Origin struct {
	Host        string
	Scheme      string
	IsCanonical bool
}

// URL returns scheme://host/.
func (o Origin) URL() string {
	return o.Scheme + "://" + o.Host + "/"
}

// SSLCapability reports whether a mapped domain is served over https.
type SSLCapability interface {
	SSLCapability(ctx context.Context, host string) (bool, error)
}

// AliasProvider supplies extra domain groups that count as canonical.
type AliasProvider interface {
	Aliases() []string
}

// StaticAliases is an AliasProvider backed by a fixed list.
type StaticAliases []string

func (s StaticAliases) Aliases() []string {
	return s
}

// Options configures a Resolver.
type Options struct {
	CanonicalHost    string
	EndpointName     string
	AjaxPath         string
	NetworkAdminPath string
	ForceAdminSSL    bool
	CleanURLs        bool
}

// Resolver answers origin questions for one network.
type Resolver struct {
	opts    Options
	ssl     SSLCapability
	aliases AliasProvider
	now     func() time.Time
}

// NewResolver creates a Resolver. aliases may be nil.
func NewResolver(opts Options, ssl SSLCapability, aliases AliasProvider) (*Resolver, error) {
	opts.CanonicalHost = NormalizeHost(opts.CanonicalHost)
	if opts.CanonicalHost == "" {
		return nil, fmt.Errorf("canonical host is required")
	}
	if ssl == nil {
		return nil, fmt.Errorf("ssl capability source is required")
	}
	if opts.EndpointName == "" {
		opts.EndpointName = protocol.DefaultEndpointName
	}
	if opts.AjaxPath == "" {
		opts.AjaxPath = "/wp-admin/admin-ajax.php"
	}
	if opts.NetworkAdminPath == "" {
		opts.NetworkAdminPath = "/wp-admin/network/"
	}
	if aliases == nil {
		aliases = StaticAliases(nil)
	}
	return &Resolver{
		opts:    opts,
		ssl:     ssl,
		aliases: aliases,
		now:     time.Now,
	}, nil
}

// SetClock overrides the time source used for cache-busting timestamps.
func (r *Resolver) SetClock(now func() time.Time) {
	r.now = now
}

// EndpointName returns the SSO endpoint segment.
func (r *Resolver) EndpointName() string {
	return r.opts.EndpointName
}

// AjaxPath returns the path of the ajax endpoint on every origin.
func (r *Resolver) AjaxPath() string {
	return r.opts.AjaxPath
}

// CanonicalHost returns the normalised canonical host.
func (r *Resolver) CanonicalHost() string {
	return r.opts.CanonicalHost
}

// IsCanonical reports whether host is the canonical host, one of its
// subdomains, or a member of a registered alias group.
func (r *Resolver) IsCanonical(host string) bool {
	host = NormalizeHost(host)
	if host == "" {
		return false
	}
	if matchesDomain(host, r.opts.CanonicalHost) {
		return true
	}
	for _, alias := range r.aliases.Aliases() {
		if matchesDomain(host, NormalizeHost(alias)) {
			return true
		}
	}
	return false
}

// AdminScheme returns the scheme of the canonical origin.
func (r *Resolver) AdminScheme() string {
	if r.opts.ForceAdminSSL {
		return SchemeHTTPS
	}
	return SchemeHTTP
}

// Canonical returns the canonical origin.
func (r *Resolver) Canonical() Origin {
	return Origin{Host: r.opts.CanonicalHost, Scheme: r.AdminScheme(), IsCanonical: true}
}

// Mapped returns the origin of a mapped domain. A registry failure
// downgrades to http.
func (r *Resolver) Mapped(ctx context.Context, host string) Origin {
	host = NormalizeHost(host)
	scheme := SchemeHTTP
	secure, err := r.ssl.SSLCapability(ctx, host)
	if err != nil {
		log.LogDebugCtx(ctx, "origin", "SSL capability lookup failed, using http", map[string]any{
			"host":  host,
			"error": err.Error(),
		})
	} else if secure {
		scheme = SchemeHTTPS
	}
	return Origin{Host: host, Scheme: scheme}
}

// Resolve returns the origin for host, canonical or mapped.
func (r *Resolver) Resolve(ctx context.Context, host string) Origin {
	if r.IsCanonical(host) {
		o := r.Canonical()
		o.Host = NormalizeHost(host)
		return o
	}
	return r.Mapped(ctx, host)
}

// ResolveEndpointURL builds the URL of action on target. With clean URLs the
// path is /<endpoint>/<ts>/, otherwise the query starts with <endpoint>=<ts>.
func (r *Resolver) ResolveEndpointURL(ctx context.Context, action protocol.Action, target string, params url.Values) string {
	o := r.Resolve(ctx, target)
	if params == nil {
		params = url.Values{}
	} else {
		params = cloneValues(params)
	}
	params.Set(protocol.ParamRouting, action.String())

	ts := strconv.FormatInt(r.now().Unix(), 10)
	if r.opts.CleanURLs {
		return urlutil.MustJoinPath(o.URL(), r.opts.EndpointName, ts+"/") + "?" + params.Encode()
	}
	return o.URL() + "?" + url.QueryEscape(r.opts.EndpointName) + "=" + ts + "&" + params.Encode()
}

// MainAjaxURL returns the ajax URL of the canonical origin for scheme. An
// empty scheme uses the admin scheme.
func (r *Resolver) MainAjaxURL(scheme string) string {
	if scheme == "" {
		scheme = r.AdminScheme()
	}
	network := scheme + "://" + r.opts.CanonicalHost + r.opts.NetworkAdminPath + lastSegment(r.opts.AjaxPath)
	return StripNetworkPathPrefix(network)
}

// StripNetworkPathPrefix removes the last "network/" from rawURL.
func StripNetworkPathPrefix(rawURL string) string {
	const segment = "network/"
	i := strings.LastIndex(rawURL, segment)
	if i < 0 {
		return rawURL
	}
	return rawURL[:i] + rawURL[i+len(segment):]
}

// EqualizeLoginURL moves redirectTo onto the host of loginURL so the login
// form returns to the same origin it was served from. It returns loginURL
// with redirect_to set, or loginURL unchanged when the hosts already match.
func EqualizeLoginURL(loginURL, redirectTo string) string {
	if redirectTo == "" {
		return loginURL
	}
	login, err := url.Parse(loginURL)
	if err != nil {
		return loginURL
	}
	target, err := url.Parse(redirectTo)
	if err != nil || target.Host == "" {
		return loginURL
	}
	if strings.EqualFold(login.Host, target.Host) {
		return loginURL
	}
	target.Host = login.Host
	return urlutil.AddQueryArg(loginURL, protocol.ParamRedirectTo, target.String())
}

// NormalizeHost lowercases host and strips any port and trailing dot.
func NormalizeHost(host string) string {
	host = strings.TrimSpace(strings.ToLower(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}

func matchesDomain(host, domain string) bool {
	if domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func lastSegment(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
