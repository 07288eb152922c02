package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgellow/cdsso/internal/authtoken"
	"github.com/dgellow/cdsso/internal/config"
	"github.com/dgellow/cdsso/internal/crypto"
	"github.com/dgellow/cdsso/internal/directory"
	"github.com/dgellow/cdsso/internal/identity"
	"github.com/dgellow/cdsso/internal/log"
	"github.com/dgellow/cdsso/internal/metrics"
	"github.com/dgellow/cdsso/internal/origin"
	"github.com/dgellow/cdsso/internal/registry"
	"github.com/dgellow/cdsso/internal/replay"
	"github.com/dgellow/cdsso/internal/script"
	"github.com/dgellow/cdsso/internal/server"
	"github.com/dgellow/cdsso/internal/session"
	"github.com/dgellow/cdsso/internal/sso"
)

const (
	shutdownTimeout            = 30 * time.Second
	defaultFirestoreCollection = "cdsso_domains"
)

// CDSSO is the complete single sign-on application
type CDSSO struct {
	config     config.Config
	httpServer *server.HTTPServer
	store      registry.Store
	replay     replay.Registry
}

// NewCDSSO builds the application with all dependencies
func NewCDSSO(ctx context.Context, cfg config.Config) (*CDSSO, error) {
	log.LogInfoWithFields("cdsso", "Building single sign-on application", map[string]any{
		"canonicalHost": cfg.SSO.CanonicalHost,
		"registry":      cfg.Registry.Kind,
		"replay":        cfg.Replay.Mode,
	})

	keys, err := deriveKeys(cfg.SSO)
	if err != nil {
		return nil, fmt.Errorf("failed to derive keys: %w", err)
	}

	store, err := setupRegistry(ctx, cfg.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to setup domain registry: %w", err)
	}
	closeStore := true
	defer func() {
		if closeStore {
			store.Close()
		}
	}()

	domains, err := registry.New(cfg.SSO.CanonicalHost, store)
	if err != nil {
		return nil, err
	}

	replayRegistry, err := replay.New(ctx, replay.Config{
		Mode:     string(cfg.Replay.Mode),
		RedisURL: string(cfg.Replay.RedisURL),
		Prefix:   cfg.Replay.Prefix,
		Size:     cfg.Replay.Size,
		MaxAge:   cfg.Replay.MaxAge,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup replay protection: %w", err)
	}

	resolver, err := origin.NewResolver(origin.Options{
		CanonicalHost:    cfg.SSO.CanonicalHost,
		EndpointName:     cfg.SSO.EndpointName,
		AjaxPath:         cfg.SSO.AjaxPath,
		NetworkAdminPath: cfg.SSO.NetworkAdminPath,
		ForceAdminSSL:    cfg.SSO.ForceAdminSSL,
		CleanURLs:        cfg.SSO.CleanURLs,
	}, domains, origin.StaticAliases(cfg.SSO.Aliases))
	if err != nil {
		return nil, fmt.Errorf("failed to create origin resolver: %w", err)
	}

	tokens, err := authtoken.NewService(keys.token)
	if err != nil {
		return nil, fmt.Errorf("failed to create token service: %w", err)
	}
	sessions := session.NewCookieGateway(keys.session, cfg.SSO.SessionTTL)

	dir, err := setupDirectory(cfg.Users)
	if err != nil {
		return nil, fmt.Errorf("failed to seed users: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewWithDefaults()
	}

	probe := cfg.SSO.SSLProbe
	engine, err := sso.New(sso.Config{
		TokenTTL:      cfg.SSO.TokenTTL,
		RedirectDelay: cfg.SSO.RedirectDelay,
		LoadInFooter:  cfg.SSO.LoadInFooter,
		LoginPath:     cfg.SSO.LoginPath,
	}, sso.Deps{
		Tokens:   tokens,
		Resolver: resolver,
		Registry: domains,
		Sessions: sessions,
		Renderer: script.NewRenderer(cfg.SSO.Async),
		Replay:   replayRegistry,
		Prober:   origin.NewSSLProber(probe.Timeout, probe.CacheTTL, probe.CacheSize),
		Metrics:  m,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sso engine: %w", err)
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	handler, err := server.NewRouter(server.RouterConfig{
		Engine:      engine,
		Directory:   dir,
		Sessions:    sessions,
		CSRFKey:     keys.csrf,
		Metrics:     m,
		MetricsPath: metricsPath,
		AjaxPath:    resolver.AjaxPath(),
		ServiceName: cfg.Server.Name,
		HealthChecks: map[string]server.HealthCheck{
			"registry": registryCheck(store, domains.CanonicalHost()),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP handler: %w", err)
	}

	closeStore = false
	return &CDSSO{
		config:     cfg,
		httpServer: server.NewHTTPServer(handler, cfg.Server.Addr),
		store:      store,
		replay:     replayRegistry,
	}, nil
}

// Run starts and manages the application lifecycle
func (c *CDSSO) Run() error {
	log.LogInfoWithFields("cdsso", "Starting single sign-on application", map[string]any{
		"addr": c.config.Server.Addr,
	})

	errChan := make(chan error, 1)
	go func() {
		if err := c.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var shutdownReason string
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("cdsso", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		log.LogErrorWithFields("cdsso", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("cdsso", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": shutdownTimeout.String(),
	})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := c.httpServer.Stop(shutdownCtx); err != nil {
		log.LogErrorWithFields("cdsso", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
		return err
	}
	c.Close()

	log.LogInfoWithFields("cdsso", "Application shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return nil
}

// Close releases the registry and replay connections
func (c *CDSSO) Close() {
	if err := c.store.Close(); err != nil {
		log.LogWarnWithFields("cdsso", "Failed to close domain registry", map[string]any{
			"error": err.Error(),
		})
	}
	if closer, ok := c.replay.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.LogWarnWithFields("cdsso", "Failed to close replay registry", map[string]any{
				"error": err.Error(),
			})
		}
	}
}

// registryCheck looks up the canonical host. A missing mapping still proves
// the store answers.
func registryCheck(store registry.Store, host string) server.HealthCheck {
	return func(ctx context.Context) error {
		if _, err := store.Get(ctx, host); err != nil && !errors.Is(err, registry.ErrDomainNotFound) {
			return err
		}
		return nil
	}
}

type keySet struct {
	token   []byte
	session []byte
	csrf    []byte
}

// deriveKeys splits the shared secret into one key per purpose. A separate
// session key, when configured, lets sessions be rotated on their own.
func deriveKeys(cfg config.SSOConfig) (keySet, error) {
	var keys keySet
	var err error

	secret := []byte(cfg.Secret)
	if keys.token, err = crypto.DeriveKey(secret, crypto.PurposeAuthToken); err != nil {
		return keySet{}, err
	}
	if keys.csrf, err = crypto.DeriveKey(secret, crypto.PurposeCSRF); err != nil {
		return keySet{}, err
	}

	sessionSecret := secret
	if cfg.SessionKey != "" {
		sessionSecret = []byte(cfg.SessionKey)
	}
	if keys.session, err = crypto.DeriveKey(sessionSecret, crypto.PurposeSession); err != nil {
		return keySet{}, err
	}
	return keys, nil
}

// setupRegistry opens the configured store, fronts persistent ones with a
// cache and seeds the configured domains.
func setupRegistry(ctx context.Context, cfg config.RegistryConfig) (registry.Store, error) {
	store, err := OpenRegistry(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Kind != config.RegistryKindMemory {
		store = registry.NewCachedStore(store, cfg.CacheSize, cfg.CacheTTL)
	}

	mappings := make([]registry.Mapping, 0, len(cfg.Domains))
	for _, d := range cfg.Domains {
		mappings = append(mappings, registry.Mapping{
			Domain:    d.Domain,
			SiteID:    d.SiteID,
			ForceSSL:  d.ForceSSL,
			Active:    d.IsActive(),
			UpdatedAt: time.Now().UTC(),
		})
	}
	if err := registry.Seed(ctx, store, mappings); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// OpenRegistry opens the configured domain store as is. Maintenance commands
// use it next to a running server, so it neither caches nor seeds.
func OpenRegistry(ctx context.Context, cfg config.RegistryConfig) (registry.Store, error) {
	var store registry.Store
	var err error

	switch cfg.Kind {
	case config.RegistryKindSQLite:
		store, err = registry.NewSQLStore(ctx, registry.DialectSQLite, string(cfg.DSN))
	case config.RegistryKindPostgres:
		store, err = registry.NewSQLStore(ctx, registry.DialectPostgres, string(cfg.DSN))
	case config.RegistryKindFirestore:
		collection := cfg.FirestoreCollection
		if collection == "" {
			collection = defaultFirestoreCollection
		}
		store, err = registry.NewFirestoreStore(ctx, cfg.GCPProject, cfg.FirestoreDatabase, collection)
	default:
		log.LogInfoWithFields("registry", "Using in-memory domain registry", map[string]any{
			"domains": len(cfg.Domains),
		})
		store = registry.NewMemoryStore()
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// setupDirectory seeds the user directory from config
func setupDirectory(users []config.UserConfig) (*directory.Memory, error) {
	dir := directory.NewMemory()
	for _, uc := range users {
		u := directory.User{
			ID:            identity.UserID(uc.ID),
			Login:         uc.Login,
			Capabilities:  uc.Capabilities,
			PrimarySiteID: uc.PrimarySiteID,
			SuperAdmin:    uc.SuperAdmin,
		}
		if uc.PasswordHash != "" {
			u.PasswordHash = []byte(uc.PasswordHash)
			if err := dir.Add(u); err != nil {
				return nil, err
			}
			continue
		}
		if err := dir.AddWithPassword(u, string(uc.Password)); err != nil {
			return nil, err
		}
	}
	if len(users) > 0 {
		log.LogInfoWithFields("directory", "Seeded users", map[string]any{
			"count": len(users),
		})
	}
	return dir, nil
}
