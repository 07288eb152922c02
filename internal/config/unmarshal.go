package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ParseConfigValue parses a JSON value that is either a plain string or an
// {"$env": "VAR"} reference
func ParseConfigValue(raw json.RawMessage) (string, error) {
	// Try plain string first
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}

func parseOptionalValue(raw json.RawMessage, field string) (string, error) {
	if raw == nil {
		return "", nil
	}
	value, err := ParseConfigValue(raw)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", field, err)
	}
	return value, nil
}

func parseOptionalDuration(raw, field string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s cannot be negative", field)
	}
	return d, nil
}

// UnmarshalJSON implements custom unmarshaling for ServerConfig
func (s *ServerConfig) UnmarshalJSON(data []byte) error {
	type rawServer struct {
		Addr    json.RawMessage `json:"addr"`
		BaseURL json.RawMessage `json:"baseURL"`
		Name    string          `json:"name"`
	}

	var raw rawServer
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if s.Addr, err = parseOptionalValue(raw.Addr, "addr"); err != nil {
		return err
	}
	if s.BaseURL, err = parseOptionalValue(raw.BaseURL, "baseURL"); err != nil {
		return err
	}
	s.Name = raw.Name
	return nil
}

// UnmarshalJSON implements custom unmarshaling for SSLProbeConfig
func (p *SSLProbeConfig) UnmarshalJSON(data []byte) error {
	type rawProbe struct {
		Timeout   string `json:"timeout"`
		CacheTTL  string `json:"cacheTtl"`
		CacheSize int    `json:"cacheSize"`
	}

	var raw rawProbe
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if p.Timeout, err = parseOptionalDuration(raw.Timeout, "sslProbe.timeout"); err != nil {
		return err
	}
	if p.CacheTTL, err = parseOptionalDuration(raw.CacheTTL, "sslProbe.cacheTtl"); err != nil {
		return err
	}
	p.CacheSize = raw.CacheSize
	return nil
}

// UnmarshalJSON implements custom unmarshaling for SSOConfig
func (s *SSOConfig) UnmarshalJSON(data []byte) error {
	type rawSSO struct {
		CanonicalHost    json.RawMessage `json:"canonicalHost"`
		EndpointName     string          `json:"endpointName"`
		AjaxPath         string          `json:"ajaxPath"`
		NetworkAdminPath string          `json:"networkAdminPath"`
		LoginPath        string          `json:"loginPath"`
		ForceAdminSSL    bool            `json:"forceAdminSSL"`
		CleanURLs        bool            `json:"cleanURLs"`
		Async            bool            `json:"async"`
		LoadInFooter     bool            `json:"loadInFooter"`
		TokenTTL         string          `json:"tokenTtl"`
		RedirectDelay    string          `json:"redirectDelay"`
		SessionTTL       string          `json:"sessionTtl"`
		Secret           json.RawMessage `json:"secret"`
		SessionKey       json.RawMessage `json:"sessionKey"`
		Aliases          []string        `json:"aliases"`
		SSLProbe         SSLProbeConfig  `json:"sslProbe"`
	}

	var raw rawSSO
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.EndpointName = raw.EndpointName
	s.AjaxPath = raw.AjaxPath
	s.NetworkAdminPath = raw.NetworkAdminPath
	s.LoginPath = raw.LoginPath
	s.ForceAdminSSL = raw.ForceAdminSSL
	s.CleanURLs = raw.CleanURLs
	s.Async = raw.Async
	s.LoadInFooter = raw.LoadInFooter
	s.Aliases = raw.Aliases
	s.SSLProbe = raw.SSLProbe

	var err error
	if s.CanonicalHost, err = parseOptionalValue(raw.CanonicalHost, "canonicalHost"); err != nil {
		return err
	}
	if s.TokenTTL, err = parseOptionalDuration(raw.TokenTTL, "tokenTtl"); err != nil {
		return err
	}
	if s.RedirectDelay, err = parseOptionalDuration(raw.RedirectDelay, "redirectDelay"); err != nil {
		return err
	}
	if s.SessionTTL, err = parseOptionalDuration(raw.SessionTTL, "sessionTtl"); err != nil {
		return err
	}

	// Parse secret fields
	secret, err := parseOptionalValue(raw.Secret, "secret")
	if err != nil {
		return err
	}
	s.Secret = Secret(secret)

	sessionKey, err := parseOptionalValue(raw.SessionKey, "sessionKey")
	if err != nil {
		return err
	}
	s.SessionKey = Secret(sessionKey)

	return nil
}

// UnmarshalJSON implements custom unmarshaling for ReplayConfig
func (r *ReplayConfig) UnmarshalJSON(data []byte) error {
	type rawReplay struct {
		Mode     ReplayMode      `json:"mode"`
		RedisURL json.RawMessage `json:"redisUrl"`
		Prefix   string          `json:"prefix"`
		Size     int             `json:"size"`
		MaxAge   string          `json:"maxAge"`
	}

	var raw rawReplay
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Mode = raw.Mode
	r.Prefix = raw.Prefix
	r.Size = raw.Size

	var err error
	if r.MaxAge, err = parseOptionalDuration(raw.MaxAge, "replay.maxAge"); err != nil {
		return err
	}
	redisURL, err := parseOptionalValue(raw.RedisURL, "redisUrl")
	if err != nil {
		return err
	}
	r.RedisURL = Secret(redisURL)
	return nil
}

// UnmarshalJSON implements custom unmarshaling for RegistryConfig
func (r *RegistryConfig) UnmarshalJSON(data []byte) error {
	type rawRegistry struct {
		Kind                RegistryKind    `json:"kind"`
		DSN                 json.RawMessage `json:"dsn"`
		GCPProject          json.RawMessage `json:"gcpProject"`
		FirestoreDatabase   string          `json:"firestoreDatabase"`
		FirestoreCollection string          `json:"firestoreCollection"`
		CacheSize           int             `json:"cacheSize"`
		CacheTTL            string          `json:"cacheTtl"`
		Domains             []DomainConfig  `json:"domains"`
	}

	var raw rawRegistry
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Kind = raw.Kind
	r.FirestoreDatabase = raw.FirestoreDatabase
	r.FirestoreCollection = raw.FirestoreCollection
	r.CacheSize = raw.CacheSize
	r.Domains = raw.Domains

	var err error
	if r.CacheTTL, err = parseOptionalDuration(raw.CacheTTL, "registry.cacheTtl"); err != nil {
		return err
	}
	if r.GCPProject, err = parseOptionalValue(raw.GCPProject, "gcpProject"); err != nil {
		return err
	}
	dsn, err := parseOptionalValue(raw.DSN, "dsn")
	if err != nil {
		return err
	}
	r.DSN = Secret(dsn)
	return nil
}

// UnmarshalJSON implements custom unmarshaling for UserConfig
func (u *UserConfig) UnmarshalJSON(data []byte) error {
	type rawUser struct {
		ID            int64           `json:"id"`
		Login         string          `json:"login"`
		Password      json.RawMessage `json:"password"`
		PasswordHash  string          `json:"passwordHash"`
		Capabilities  []string        `json:"capabilities"`
		PrimarySiteID int64           `json:"primarySiteId"`
		SuperAdmin    bool            `json:"superAdmin"`
	}

	var raw rawUser
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	u.ID = raw.ID
	u.Login = raw.Login
	u.PasswordHash = raw.PasswordHash
	u.Capabilities = raw.Capabilities
	u.PrimarySiteID = raw.PrimarySiteID
	u.SuperAdmin = raw.SuperAdmin

	password, err := parseOptionalValue(raw.Password, fmt.Sprintf("password of user %s", raw.Login))
	if err != nil {
		return err
	}
	u.Password = Secret(password)
	return nil
}
