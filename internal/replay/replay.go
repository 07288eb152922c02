// Package replay records redeemed auth tokens so each one is honoured once.
package replay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Modes accepted by New.
const (
	ModeOff    = "off"
	ModeMemory = "memory"
	ModeRedis  = "redis"
)

// Registry consumes token ids. Consume returns true the first time id is
// seen before expiresAt and false for every later attempt.
type Registry interface {
	Consume(ctx context.Context, id string, expiresAt time.Time) (bool, error)
}

// Noop accepts every token, matching the stateless behaviour.
type Noop struct{}

func (Noop) Consume(context.Context, string, time.Time) (bool, error) {
	return true, nil
}

// Memory remembers consumed ids in an expiring LRU. It only protects a
// single process.
type Memory struct {
	mu   sync.Mutex
	seen *expirable.LRU[string, time.Time]
	now  func() time.Time
}

// NewMemory creates a Memory registry holding up to size ids, each for at
// most maxAge.
func NewMemory(size int, maxAge time.Duration) *Memory {
	if size <= 0 {
		size = 10000
	}
	return &Memory{
		seen: expirable.NewLRU[string, time.Time](size, nil, maxAge),
		now:  time.Now,
	}
}

func (m *Memory) Consume(_ context.Context, id string, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if exp, ok := m.seen.Get(id); ok && m.now().Before(exp) {
		return false, nil
	}
	m.seen.Add(id, expiresAt)
	return true, nil
}

// Redis shares consumed ids between instances through SET NX with a TTL
// reaching the token expiry.
type Redis struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedis connects to the redis server at url.
func NewRedis(ctx context.Context, url, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	if prefix == "" {
		prefix = "cdsso:token:"
	}
	return &Redis{client: client, prefix: prefix, now: time.Now}, nil
}

func (r *Redis) Consume(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(r.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	ok, err := r.client.SetNX(ctx, r.prefix+id, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record token: %w", err)
	}
	return ok, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Config selects a registry.
type Config struct {
	Mode     string
	RedisURL string
	Prefix   string
	Size     int
	MaxAge   time.Duration
}

// New builds the registry named by cfg.Mode. An empty mode means memory.
func New(ctx context.Context, cfg Config) (Registry, error) {
	switch cfg.Mode {
	case ModeOff:
		return Noop{}, nil
	case ModeMemory, "":
		maxAge := cfg.MaxAge
		if maxAge <= 0 {
			maxAge = 5 * time.Minute
		}
		return NewMemory(cfg.Size, maxAge), nil
	case ModeRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis url is required for redis replay protection")
		}
		return NewRedis(ctx, cfg.RedisURL, cfg.Prefix)
	default:
		return nil, fmt.Errorf("unknown replay mode %q", cfg.Mode)
	}
}
