package origin

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/dgellow/cdsso/internal/log"
)

// SSLProber checks whether a host answers on https. Results are cached and
// concurrent probes of the same host share one request.
type SSLProber struct {
	client *http.Client
	group  singleflight.Group
	cache  *expirable.LRU[string, bool]
}

// NewSSLProber creates a prober whose requests time out after timeout and
// whose results are remembered for ttl.
func NewSSLProber(timeout, ttl time.Duration, cacheSize int) *SSLProber {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	return &SSLProber{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		cache: expirable.NewLRU[string, bool](cacheSize, nil, ttl),
	}
}

// SupportsSSL sends a HEAD request to https://host/. Any response counts as
// support, so does a certificate failure since it proves a TLS listener.
// Every other failure reports false. The probe outlives ctx cancellation
// because its result is shared and cached; the client timeout bounds it.
func (p *SSLProber) SupportsSSL(ctx context.Context, host string) bool {
	if ok, hit := p.cache.Get(host); hit {
		return ok
	}

	v, _, _ := p.group.Do(host, func() (any, error) {
		ok := p.probe(context.WithoutCancel(ctx), host)
		p.cache.Add(host, ok)
		return ok, nil
	})
	return v.(bool)
}

func (p *SSLProber) probe(ctx context.Context, host string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "https://"+host+"/", nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err == nil {
		resp.Body.Close()
		return true
	}

	if isCertificateError(err) {
		log.LogTraceWithFields("origin", "SSL probe hit certificate error, treating as supported", map[string]any{
			"host":  host,
			"error": err.Error(),
		})
		return true
	}

	log.LogDebugWithFields("origin", "SSL probe failed", map[string]any{
		"host":  host,
		"error": err.Error(),
	})
	return false
}

func isCertificateError(err error) bool {
	var verifyErr *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var hostname x509.HostnameError
	var invalid x509.CertificateInvalidError
	return errors.As(err, &verifyErr) ||
		errors.As(err, &unknownAuthority) ||
		errors.As(err, &hostname) ||
		errors.As(err, &invalid)
}
