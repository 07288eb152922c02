// Package registry holds the domains mapped onto sites of the network and
// the per-domain https flag maintained by the health checker.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgellow/cdsso/internal/log"
	"github.com/dgellow/cdsso/internal/origin"
)

// ErrDomainNotFound is returned when a domain has no mapping
var ErrDomainNotFound = errors.New("domain not found")

// Mapping maps a domain onto a site.
type Mapping struct {
	Domain    string    `json:"domain"`
	SiteID    int64     `json:"site_id"`
	ForceSSL  bool      `json:"force_ssl"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists mappings. Implementations are safe for concurrent use.
type Store interface {
	Get(ctx context.Context, domain string) (*Mapping, error)
	Put(ctx context.Context, m Mapping) error
	Delete(ctx context.Context, domain string) error
	List(ctx context.Context) ([]Mapping, error)
	SetSSLCapability(ctx context.Context, domain string, secure bool) error
	Close() error
}

// Registry is the read side consumed by the handshake.
type Registry interface {
	CanonicalHost() string
	IsKnownMappedDomain(ctx context.Context, host string) (bool, error)
	SSLCapability(ctx context.Context, host string) (bool, error)
}

// Domains answers Registry questions from a Store.
type Domains struct {
	canonical string
	store     Store
}

var _ Registry = (*Domains)(nil)

// New creates a Registry over store for the network rooted at canonicalHost.
func New(canonicalHost string, store Store) (*Domains, error) {
	canonicalHost = origin.NormalizeHost(canonicalHost)
	if canonicalHost == "" {
		return nil, fmt.Errorf("canonical host is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	return &Domains{canonical: canonicalHost, store: store}, nil
}

func (d *Domains) CanonicalHost() string {
	return d.canonical
}

// Store returns the backing store.
func (d *Domains) Store() Store {
	return d.store
}

// IsKnownMappedDomain reports whether host has an active mapping.
func (d *Domains) IsKnownMappedDomain(ctx context.Context, host string) (bool, error) {
	m, err := d.store.Get(ctx, origin.NormalizeHost(host))
	if errors.Is(err, ErrDomainNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", host, err)
	}
	return m.Active, nil
}

// SSLCapability reports whether host is flagged as served over https.
// Unknown domains are plain http.
func (d *Domains) SSLCapability(ctx context.Context, host string) (bool, error) {
	m, err := d.store.Get(ctx, origin.NormalizeHost(host))
	if errors.Is(err, ErrDomainNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", host, err)
	}
	return m.ForceSSL, nil
}

// Seed writes mappings into store, normalising their domains.
func Seed(ctx context.Context, store Store, mappings []Mapping) error {
	for _, m := range mappings {
		m.Domain = origin.NormalizeHost(m.Domain)
		if m.Domain == "" {
			return fmt.Errorf("mapping for site %d has no domain", m.SiteID)
		}
		if err := store.Put(ctx, m); err != nil {
			return fmt.Errorf("failed to seed %s: %w", m.Domain, err)
		}
	}
	if len(mappings) > 0 {
		log.LogInfoWithFields("registry", "Seeded domain mappings", map[string]any{
			"count": len(mappings),
		})
	}
	return nil
}
