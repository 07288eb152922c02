package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dgellow/cdsso/internal/log"
)

// Defaults applied to fields left empty
const (
	DefaultServerName      = "cdsso"
	DefaultSessionTTL      = 14 * 24 * time.Hour
	DefaultMetricsPath     = "/metrics"
	DefaultProbeTimeout    = 3 * time.Second
	DefaultProbeCacheTTL   = 10 * time.Minute
	DefaultProbeCacheSize  = 1024
	DefaultRegistryCacheSz = 1024
	DefaultRegistryCache   = 30 * time.Second
)

// minSecretLength mirrors crypto.MinSecretLength
const minSecretLength = 32

// toJSON returns data as JSON. YAML files (.yaml, .yml) are converted so
// both formats share the same parsing.
func toJSON(path string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing config YAML: %w", err)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("converting config YAML: %w", err)
		}
		return converted, nil
	default:
		return data, nil
	}
}

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	data, err = toJSON(path, data)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

// Parse processes a JSON config document
func Parse(data []byte) (Config, error) {
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if version != Version {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	ApplyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateRawConfig checks that secrets are env references before they are
// resolved
func validateRawConfig(rawConfig map[string]any) error {
	if sso, ok := rawConfig["sso"].(map[string]any); ok {
		for _, name := range []string{"secret", "sessionKey"} {
			if err := requireEnvRef(sso, name); err != nil {
				return err
			}
		}
	}

	if replay, ok := rawConfig["replay"].(map[string]any); ok {
		if err := requireEnvRef(replay, "redisUrl"); err != nil {
			return err
		}
	}

	if registry, ok := rawConfig["registry"].(map[string]any); ok {
		if kind, _ := registry["kind"].(string); kind == string(RegistryKindPostgres) {
			if err := requireEnvRef(registry, "dsn"); err != nil {
				return err
			}
		}
	}

	if users, ok := rawConfig["users"].([]any); ok {
		for i, u := range users {
			user, ok := u.(map[string]any)
			if !ok {
				continue
			}
			if err := requireEnvRef(user, "password"); err != nil {
				return fmt.Errorf("users[%d]: %w", i, err)
			}
		}
	}
	return nil
}

func requireEnvRef(section map[string]any, name string) error {
	value, exists := section[name]
	if !exists {
		return nil
	}
	// Check if it's a string (bad) or a map (good - env ref)
	if _, isString := value.(string); isString {
		return fmt.Errorf("%s must use environment variable reference for security", name)
	}
	if refMap, isMap := value.(map[string]any); isMap {
		if _, hasEnv := refMap["$env"]; !hasEnv {
			return fmt.Errorf("%s must use {\"$env\": \"VAR_NAME\"} format", name)
		}
	}
	return nil
}

// ApplyDefaults fills the fields a config may leave empty
func ApplyDefaults(config *Config) {
	if config.Server.Name == "" {
		config.Server.Name = DefaultServerName
	}
	if config.SSO.SessionTTL == 0 {
		config.SSO.SessionTTL = DefaultSessionTTL
	}
	if config.SSO.SSLProbe.Timeout == 0 {
		config.SSO.SSLProbe.Timeout = DefaultProbeTimeout
	}
	if config.SSO.SSLProbe.CacheTTL == 0 {
		config.SSO.SSLProbe.CacheTTL = DefaultProbeCacheTTL
	}
	if config.SSO.SSLProbe.CacheSize == 0 {
		config.SSO.SSLProbe.CacheSize = DefaultProbeCacheSize
	}
	if config.Replay.Mode == "" {
		config.Replay.Mode = ReplayModeMemory
	}
	if config.Registry.Kind == "" {
		config.Registry.Kind = RegistryKindMemory
	}
	if config.Registry.Kind != RegistryKindMemory {
		if config.Registry.CacheSize == 0 {
			config.Registry.CacheSize = DefaultRegistryCacheSz
		}
		if config.Registry.CacheTTL == 0 {
			config.Registry.CacheTTL = DefaultRegistryCache
		}
	}
	if config.Metrics.Path == "" {
		config.Metrics.Path = DefaultMetricsPath
	}
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if config.SSO.CanonicalHost == "" {
		return fmt.Errorf("sso.canonicalHost is required")
	}
	if strings.Contains(config.SSO.CanonicalHost, "/") {
		return fmt.Errorf("sso.canonicalHost must be a host name, got %q", config.SSO.CanonicalHost)
	}
	if len(config.SSO.Secret) < minSecretLength {
		return fmt.Errorf("sso.secret must be at least %d characters (got %d). Generate with: openssl rand -base64 32", minSecretLength, len(config.SSO.Secret))
	}
	if config.SSO.SessionKey != "" && len(config.SSO.SessionKey) < minSecretLength {
		return fmt.Errorf("sso.sessionKey must be at least %d characters (got %d)", minSecretLength, len(config.SSO.SessionKey))
	}
	if config.SSO.TokenTTL != 0 && config.SSO.TokenTTL < time.Second {
		return fmt.Errorf("sso.tokenTtl must be at least 1s")
	}
	if config.SSO.TokenTTL > 10*time.Minute {
		log.LogWarn("Auth token TTL %s is long for a one-shot handshake token", config.SSO.TokenTTL)
	}

	if err := validateReplay(&config.Replay); err != nil {
		return fmt.Errorf("replay config: %w", err)
	}
	if err := validateRegistry(&config.Registry); err != nil {
		return fmt.Errorf("registry config: %w", err)
	}
	if err := validateUsers(config.Users); err != nil {
		return fmt.Errorf("users config: %w", err)
	}

	if config.Metrics.Enabled && !strings.HasPrefix(config.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}
	return nil
}

func validateReplay(r *ReplayConfig) error {
	switch r.Mode {
	case ReplayModeOff:
		log.LogWarn("Replay protection is off - auth tokens can be redeemed more than once until they expire")
	case ReplayModeMemory:
	case ReplayModeRedis:
		if r.RedisURL == "" {
			return fmt.Errorf("redisUrl is required when mode is redis")
		}
	default:
		return fmt.Errorf("invalid mode %q - must be off, memory or redis", r.Mode)
	}
	if r.Size < 0 {
		return fmt.Errorf("size cannot be negative")
	}
	return nil
}

func validateRegistry(r *RegistryConfig) error {
	switch r.Kind {
	case RegistryKindMemory:
	case RegistryKindSQLite, RegistryKindPostgres:
		if r.DSN == "" {
			return fmt.Errorf("dsn is required when using %s", r.Kind)
		}
	case RegistryKindFirestore:
		if r.GCPProject == "" {
			return fmt.Errorf("gcpProject is required when using firestore")
		}
	default:
		return fmt.Errorf("invalid kind %q - must be memory, sqlite, postgres or firestore", r.Kind)
	}
	if r.CacheSize < 0 {
		return fmt.Errorf("cacheSize cannot be negative")
	}

	seen := make(map[string]bool, len(r.Domains))
	for i, d := range r.Domains {
		domain := strings.ToLower(strings.TrimSpace(d.Domain))
		if domain == "" {
			return fmt.Errorf("domains[%d]: domain is required", i)
		}
		if seen[domain] {
			return fmt.Errorf("domains[%d]: duplicate domain %s", i, domain)
		}
		seen[domain] = true
	}
	return nil
}

func validateUsers(users []UserConfig) error {
	ids := make(map[int64]bool, len(users))
	logins := make(map[string]bool, len(users))
	for i, u := range users {
		if u.ID <= 0 {
			return fmt.Errorf("users[%d]: id must be positive", i)
		}
		if u.Login == "" {
			return fmt.Errorf("users[%d]: login is required", i)
		}
		if u.Password == "" && u.PasswordHash == "" {
			return fmt.Errorf("user %s needs a password or passwordHash", u.Login)
		}
		if u.Password != "" && u.PasswordHash != "" {
			return fmt.Errorf("user %s sets both password and passwordHash", u.Login)
		}
		if ids[u.ID] {
			return fmt.Errorf("duplicate user id %d", u.ID)
		}
		login := strings.ToLower(strings.TrimSpace(u.Login))
		if logins[login] {
			return fmt.Errorf("duplicate login %s", u.Login)
		}
		ids[u.ID] = true
		logins[login] = true
	}
	return nil
}
