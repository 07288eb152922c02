package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dgellow/cdsso/internal/origin"
)

// MemoryStore keeps mappings in a map. Contents are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	mappings map[string]Mapping
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{mappings: make(map[string]Mapping)}
}

func (s *MemoryStore) Get(_ context.Context, domain string) (*Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.mappings[origin.NormalizeHost(domain)]
	if !ok {
		return nil, ErrDomainNotFound
	}
	return &m, nil
}

func (s *MemoryStore) Put(_ context.Context, m Mapping) error {
	m.Domain = origin.NormalizeHost(m.Domain)
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[m.Domain] = m
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mappings, origin.NormalizeHost(domain))
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Mapping, 0, len(s.mappings))
	for _, m := range s.mappings {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out, nil
}

func (s *MemoryStore) SetSSLCapability(_ context.Context, domain string, secure bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	domain = origin.NormalizeHost(domain)
	m, ok := s.mappings[domain]
	if !ok {
		return ErrDomainNotFound
	}
	m.ForceSSL = secure
	m.UpdatedAt = time.Now()
	s.mappings[domain] = m
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
