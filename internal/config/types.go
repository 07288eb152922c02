package config

import (
	"encoding/json"
	"time"
)

// Version is the config format this build reads.
const Version = "cdsso/v1"

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// RegistryKind selects the domain mapping store
type RegistryKind string

const (
	RegistryKindMemory    RegistryKind = "memory"
	RegistryKindSQLite    RegistryKind = "sqlite"
	RegistryKindPostgres  RegistryKind = "postgres"
	RegistryKindFirestore RegistryKind = "firestore"
)

// ReplayMode selects the single-use token registry
type ReplayMode string

const (
	ReplayModeOff    ReplayMode = "off"
	ReplayModeMemory ReplayMode = "memory"
	ReplayModeRedis  ReplayMode = "redis"
)

// ServerConfig is the HTTP listener
type ServerConfig struct {
	Addr    string `json:"addr"`
	BaseURL string `json:"baseURL"`
	Name    string `json:"name"`
}

// SSLProbeConfig tunes the https probe run before propagating a login
type SSLProbeConfig struct {
	Timeout   time.Duration `json:"timeout"`
	CacheTTL  time.Duration `json:"cacheTtl"`
	CacheSize int           `json:"cacheSize"`
}

// SSOConfig is the handshake configuration with resolved values
type SSOConfig struct {
	CanonicalHost    string         `json:"canonicalHost"`
	EndpointName     string         `json:"endpointName,omitempty"`
	AjaxPath         string         `json:"ajaxPath,omitempty"`
	NetworkAdminPath string         `json:"networkAdminPath,omitempty"`
	LoginPath        string         `json:"loginPath,omitempty"`
	ForceAdminSSL    bool           `json:"forceAdminSSL"`
	CleanURLs        bool           `json:"cleanURLs"`
	Async            bool           `json:"async"`
	LoadInFooter     bool           `json:"loadInFooter"`
	TokenTTL         time.Duration  `json:"tokenTtl"`
	RedirectDelay    time.Duration  `json:"redirectDelay"`
	SessionTTL       time.Duration  `json:"sessionTtl"`
	Secret           Secret         `json:"secret"`
	SessionKey       Secret         `json:"sessionKey,omitempty"`
	Aliases          []string       `json:"aliases,omitempty"`
	SSLProbe         SSLProbeConfig `json:"sslProbe"`
}

// ReplayConfig is the single-use token registry
type ReplayConfig struct {
	Mode     ReplayMode    `json:"mode"`
	RedisURL Secret        `json:"redisUrl,omitempty"`
	Prefix   string        `json:"prefix,omitempty"`
	Size     int           `json:"size,omitempty"`
	MaxAge   time.Duration `json:"maxAge,omitempty"`
}

// DomainConfig seeds one domain mapping
type DomainConfig struct {
	Domain   string `json:"domain"`
	SiteID   int64  `json:"siteId"`
	ForceSSL bool   `json:"forceSsl"`
	Active   *bool  `json:"active,omitempty"`
}

// IsActive reports the mapping state, active unless switched off
func (d DomainConfig) IsActive() bool {
	return d.Active == nil || *d.Active
}

// RegistryConfig is the domain mapping store with resolved values
type RegistryConfig struct {
	Kind                RegistryKind   `json:"kind"`
	DSN                 Secret         `json:"dsn,omitempty"`
	GCPProject          string         `json:"gcpProject,omitempty"`
	FirestoreDatabase   string         `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string         `json:"firestoreCollection,omitempty"`
	CacheSize           int            `json:"cacheSize,omitempty"`
	CacheTTL            time.Duration  `json:"cacheTtl,omitempty"`
	Domains             []DomainConfig `json:"domains,omitempty"`
}

// UserConfig seeds one user of the login form
type UserConfig struct {
	ID            int64    `json:"id"`
	Login         string   `json:"login"`
	Password      Secret   `json:"password,omitempty"`
	PasswordHash  string   `json:"passwordHash,omitempty"`
	Capabilities  []string `json:"capabilities,omitempty"`
	PrimarySiteID int64    `json:"primarySiteId,omitempty"`
	SuperAdmin    bool     `json:"superAdmin,omitempty"`
}

// MetricsConfig exposes Prometheus metrics
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// Config represents the config structure with resolved values
type Config struct {
	Version  string         `json:"version"`
	Server   ServerConfig   `json:"server"`
	SSO      SSOConfig      `json:"sso"`
	Replay   ReplayConfig   `json:"replay"`
	Registry RegistryConfig `json:"registry"`
	Users    []UserConfig   `json:"users,omitempty"`
	Metrics  MetricsConfig  `json:"metrics"`
}
