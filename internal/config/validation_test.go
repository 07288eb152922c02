package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFile(t *testing.T) {
	tests := []struct {
		name          string
		config        string
		wantErrors    []string
		wantWarnings  []string
		wantErrCount  int
		wantWarnCount int
	}{
		{
			name: "valid_minimal_config",
			config: `{
				"version": "cdsso/v1",
				"server": {"addr": ":8080"},
				"sso": {
					"canonicalHost": "network.example.com",
					"secret": {"$env": "CDSSO_SECRET"}
				},
				"registry": {"domains": [{"domain": "shop.example", "siteId": 2}]}
			}`,
		},
		{
			name: "valid_full_config",
			config: `{
				"version": "cdsso/v1",
				"server": {"addr": ":8080", "baseURL": "https://network.example.com"},
				"sso": {
					"canonicalHost": "network.example.com",
					"secret": {"$env": "CDSSO_SECRET"},
					"sessionKey": {"$env": "CDSSO_SESSION_KEY"},
					"tokenTtl": "60s",
					"redirectDelay": "5s",
					"sslProbe": {"timeout": "3s"},
					"aliases": ["network.example.org"]
				},
				"replay": {"mode": "redis", "redisUrl": {"$env": "REDIS_URL"}},
				"registry": {"kind": "postgres", "dsn": {"$env": "DATABASE_URL"}, "cacheTtl": "30s"},
				"users": [
					{"id": 1, "login": "alice", "password": {"$env": "ALICE_PASSWORD"}},
					{"id": 2, "login": "bob", "passwordHash": "$2a$10$ABCDEFGHIJKLMNOPQRSTUV"}
				]
			}`,
		},
		{
			name:         "missing_everything",
			config:       `{}`,
			wantErrors:   []string{"version field is required", "server field is required", "sso field is required"},
			wantErrCount: 3,
		},
		{
			name: "wrong_version",
			config: `{
				"version": "v0.0.1-DEV_EDITION",
				"server": {"addr": ":8080"},
				"sso": {"canonicalHost": "a.example", "secret": {"$env": "S"}},
				"registry": {"domains": [{"domain": "shop.example"}]}
			}`,
			wantErrors:   []string{"unsupported version"},
			wantErrCount: 1,
		},
		{
			name: "plain_text_secret",
			config: `{
				"version": "cdsso/v1",
				"server": {"addr": ":8080"},
				"sso": {"canonicalHost": "a.example", "secret": "not-from-env"},
				"registry": {"domains": [{"domain": "shop.example"}]}
			}`,
			wantErrors:   []string{"secret must use environment variable reference"},
			wantErrCount: 1,
		},
		{
			name: "bash_style_secret",
			config: `{
				"version": "cdsso/v1",
				"server": {"addr": ":8080"},
				"sso": {"canonicalHost": "a.example", "secret": "${CDSSO_SECRET}"},
				"registry": {"domains": [{"domain": "shop.example"}]}
			}`,
			wantErrors:    []string{"found bash-style syntax"},
			wantWarnings:  []string{"found bash-style syntax"},
			wantErrCount:  1,
			wantWarnCount: 1,
		},
		{
			name: "bad_durations",
			config: `{
				"version": "cdsso/v1",
				"server": {"addr": ":8080"},
				"sso": {"canonicalHost": "a.example", "secret": {"$env": "S"}, "tokenTtl": "500ms", "redirectDelay": "later"},
				"registry": {"domains": [{"domain": "shop.example"}]}
			}`,
			wantErrors:   []string{"tokenTtl must be at least 1s", "invalid duration 'later'"},
			wantErrCount: 2,
		},
		{
			name: "long_token_ttl",
			config: `{
				"version": "cdsso/v1",
				"server": {"addr": ":8080"},
				"sso": {"canonicalHost": "a.example", "secret": {"$env": "S"}, "tokenTtl": "1h"},
				"registry": {"domains": [{"domain": "shop.example"}]}
			}`,
			wantWarnings:  []string{"long for a one-shot handshake token"},
			wantWarnCount: 1,
		},
		{
			name: "canonical_host_with_scheme",
			config: `{
				"version": "cdsso/v1",
				"server": {"addr": ":8080"},
				"sso": {"canonicalHost": "https://a.example", "secret": {"$env": "S"}},
				"registry": {"domains": [{"domain": "shop.example"}]}
			}`,
			wantErrors:   []string{"without scheme"},
			wantErrCount: 1,
		},
		{
			name: "registry_problems",
			config: `{
				"version": "cdsso/v1",
				"server": {"addr": ":8080"},
				"sso": {"canonicalHost": "a.example", "secret": {"$env": "S"}},
				"registry": {"kind": "postgres", "dsn": "postgres://user:pw@db/cdsso", "domains": [{"siteId": 2}, "shop.example"]}
			}`,
			wantErrors:   []string{"dsn must use environment variable reference", "domain is required", "domain entry must be an object"},
			wantErrCount: 3,
		},
		{
			name: "empty_memory_registry",
			config: `{
				"version": "cdsso/v1",
				"server": {"addr": ":8080"},
				"sso": {"canonicalHost": "a.example", "secret": {"$env": "S"}}
			}`,
		},
		{
			name: "empty_memory_registry_section",
			config: `{
				"version": "cdsso/v1",
				"server": {"addr": ":8080"},
				"sso": {"canonicalHost": "a.example", "secret": {"$env": "S"}},
				"registry": {"kind": "memory"}
			}`,
			wantWarnings:  []string{"memory registry has no domains"},
			wantWarnCount: 1,
		},
		{
			name: "replay_problems",
			config: `{
				"version": "cdsso/v1",
				"server": {"addr": ":8080"},
				"sso": {"canonicalHost": "a.example", "secret": {"$env": "S"}},
				"registry": {"domains": [{"domain": "shop.example"}]},
				"replay": {"mode": "redis"}
			}`,
			wantErrors:   []string{"redisUrl is required for redis mode"},
			wantErrCount: 1,
		},
		{
			name: "replay_off",
			config: `{
				"version": "cdsso/v1",
				"server": {"addr": ":8080"},
				"sso": {"canonicalHost": "a.example", "secret": {"$env": "S"}},
				"registry": {"domains": [{"domain": "shop.example"}]},
				"replay": {"mode": "off"}
			}`,
			wantWarnings:  []string{"replay protection is off"},
			wantWarnCount: 1,
		},
		{
			name: "user_problems",
			config: `{
				"version": "cdsso/v1",
				"server": {"addr": ":8080"},
				"sso": {"canonicalHost": "a.example", "secret": {"$env": "S"}},
				"registry": {"domains": [{"domain": "shop.example"}]},
				"users": [
					{"login": "alice", "password": {"$env": "P"}},
					{"id": 2, "login": "bob"},
					{"id": 3, "login": "carol", "password": "plain"}
				]
			}`,
			wantErrors:   []string{"id must be a positive number", "password is required", "password must use environment variable reference"},
			wantErrCount: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.config), 0600))

			result, err := ValidateFile(path)
			require.NoError(t, err)

			assert.Len(t, result.Errors, tt.wantErrCount, "errors: %v", result.Errors)
			assert.Len(t, result.Warnings, tt.wantWarnCount, "warnings: %v", result.Warnings)
			assert.Equal(t, tt.wantErrCount == 0, result.IsValid())

			for _, want := range tt.wantErrors {
				assert.True(t, containsMessage(result.Errors, want), "missing error %q in %v", want, result.Errors)
			}
			for _, want := range tt.wantWarnings {
				assert.True(t, containsMessage(result.Warnings, want), "missing warning %q in %v", want, result.Warnings)
			}
		})
	}
}

func TestValidateFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("version: cdsso/v1\nserver: [unclosed\n"), 0600))

	result, err := ValidateFile(path)
	require.NoError(t, err)
	assert.False(t, result.IsValid())
	assert.True(t, containsMessage(result.Errors, "parsing config YAML"))
}

func TestValidateFileMissing(t *testing.T) {
	_, err := ValidateFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestCheckBashStyleSyntaxSkipsPasswordHashes(t *testing.T) {
	result := &ValidationResult{}
	checkBashStyleSyntax(map[string]any{
		"users": []any{map[string]any{"passwordHash": "$2a$10$ABCDEFGHIJKLMNOPQRSTUV"}},
		"name":  "$HOME",
	}, "", result)

	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "name", result.Warnings[0].Path)
}

func containsMessage(issues []ValidationError, want string) bool {
	for _, issue := range issues {
		if strings.Contains(issue.Message, want) {
			return true
		}
	}
	return false
}
