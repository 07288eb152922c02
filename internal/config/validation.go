package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	data, err = toJSON(path, data)
	if err != nil {
		result.addError("", "%v", err)
		return result, nil
	}

	// Check JSON syntax
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result, nil
	}

	// Check for bash-style syntax
	checkBashStyleSyntax(rawConfig, "", result)

	// Check version
	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": %q", Version)
	} else if version != Version {
		result.addError("version", "unsupported version '%s' - use '%s'", version, Version)
	}

	validateServerStructure(rawConfig, result)
	validateSSOStructure(rawConfig, result)
	validateRegistryStructure(rawConfig, result)
	validateReplayStructure(rawConfig, result)
	validateUsersStructure(rawConfig, result)

	return result, nil
}

// validateServerStructure checks the server configuration structure
func validateServerStructure(rawConfig map[string]any, result *ValidationResult) {
	server, ok := rawConfig["server"].(map[string]any)
	if !ok {
		result.addError("server", "server field is required and must be an object")
		return
	}
	if _, ok := server["addr"]; !ok {
		result.addError("server.addr", "addr is required. Example: \":8080\" or \"0.0.0.0:8080\"")
	}
}

// validateSSOStructure checks the handshake configuration structure
func validateSSOStructure(rawConfig map[string]any, result *ValidationResult) {
	sso, ok := rawConfig["sso"].(map[string]any)
	if !ok {
		result.addError("sso", "sso field is required and must be an object")
		return
	}

	if host, ok := sso["canonicalHost"]; !ok {
		result.addError("sso.canonicalHost", "canonicalHost is required. Example: \"network.example.com\"")
	} else if s, ok := host.(string); ok && strings.Contains(s, "://") {
		result.addError("sso.canonicalHost", "canonicalHost must be a host name without scheme, got '%s'", s)
	}

	if secret, ok := sso["secret"]; ok {
		if err := validateEnvVarReference(secret, "secret", "sso.secret"); err != nil {
			result.Errors = append(result.Errors, *err)
		}
	} else {
		result.addError("sso.secret", "secret is required. Hint: Use {\"$env\": \"CDSSO_SECRET\"} with at least 32 random bytes")
	}
	if key, ok := sso["sessionKey"]; ok {
		if err := validateEnvVarReference(key, "sessionKey", "sso.sessionKey"); err != nil {
			result.Errors = append(result.Errors, *err)
		}
	}

	for _, field := range []string{"tokenTtl", "redirectDelay", "sessionTtl"} {
		validateDurationField(sso, field, "sso."+field, result)
	}
	if ttl, ok := sso["tokenTtl"].(string); ok {
		if d, err := time.ParseDuration(ttl); err == nil {
			if d < time.Second {
				result.addError("sso.tokenTtl", "tokenTtl must be at least 1s, got %s", ttl)
			} else if d > 10*time.Minute {
				result.addWarning("sso.tokenTtl", "tokenTtl %s is long for a one-shot handshake token. Hint: The default is 60s", ttl)
			}
		}
	}

	if probe, ok := sso["sslProbe"].(map[string]any); ok {
		validateDurationField(probe, "timeout", "sso.sslProbe.timeout", result)
		validateDurationField(probe, "cacheTtl", "sso.sslProbe.cacheTtl", result)
	}

	if aliases, ok := sso["aliases"]; ok {
		if _, ok := aliases.([]any); !ok {
			result.addError("sso.aliases", "aliases must be an array of domains")
		}
	}
}

// validateRegistryStructure checks the domain registry configuration
func validateRegistryStructure(rawConfig map[string]any, result *ValidationResult) {
	registry, ok := rawConfig["registry"].(map[string]any)
	if !ok {
		return
	}

	kind, _ := registry["kind"].(string)
	switch RegistryKind(kind) {
	case "", RegistryKindMemory:
		if domains, _ := registry["domains"].([]any); len(domains) == 0 {
			result.addWarning("registry.domains", "memory registry has no domains - every mapped domain will be rejected")
		}
	case RegistryKindSQLite:
		if _, ok := registry["dsn"]; !ok {
			result.addError("registry.dsn", "dsn is required for sqlite. Example: \"file:cdsso.db\"")
		}
	case RegistryKindPostgres:
		if dsn, ok := registry["dsn"]; ok {
			if err := validateEnvVarReference(dsn, "dsn", "registry.dsn"); err != nil {
				result.Errors = append(result.Errors, *err)
			}
		} else {
			result.addError("registry.dsn", "dsn is required for postgres. Hint: Use {\"$env\": \"DATABASE_URL\"}")
		}
	case RegistryKindFirestore:
		if _, ok := registry["gcpProject"]; !ok {
			result.addError("registry.gcpProject", "gcpProject is required for firestore")
		}
	default:
		result.addError("registry.kind", "invalid kind '%s' - must be memory, sqlite, postgres or firestore", kind)
	}

	validateDurationField(registry, "cacheTtl", "registry.cacheTtl", result)

	if domains, ok := registry["domains"].([]any); ok {
		for i, d := range domains {
			path := fmt.Sprintf("registry.domains[%d]", i)
			domain, ok := d.(map[string]any)
			if !ok {
				result.addError(path, "domain entry must be an object")
				continue
			}
			name, _ := domain["domain"].(string)
			if name == "" {
				result.addError(path+".domain", "domain is required")
			} else if strings.Contains(name, "/") {
				result.addError(path+".domain", "domain must be a host name, got '%s'", name)
			}
		}
	}
}

// validateReplayStructure checks the replay registry configuration
func validateReplayStructure(rawConfig map[string]any, result *ValidationResult) {
	replay, ok := rawConfig["replay"].(map[string]any)
	if !ok {
		return
	}

	mode, _ := replay["mode"].(string)
	switch ReplayMode(mode) {
	case "", ReplayModeMemory:
	case ReplayModeOff:
		result.addWarning("replay.mode", "replay protection is off - auth tokens can be redeemed more than once until they expire")
	case ReplayModeRedis:
		if url, ok := replay["redisUrl"]; ok {
			if err := validateEnvVarReference(url, "redisUrl", "replay.redisUrl"); err != nil {
				result.Errors = append(result.Errors, *err)
			}
		} else {
			result.addError("replay.redisUrl", "redisUrl is required for redis mode. Hint: Use {\"$env\": \"REDIS_URL\"}")
		}
	default:
		result.addError("replay.mode", "invalid mode '%s' - must be off, memory or redis", mode)
	}
	validateDurationField(replay, "maxAge", "replay.maxAge", result)
}

// validateUsersStructure checks the seeded users
func validateUsersStructure(rawConfig map[string]any, result *ValidationResult) {
	raw, ok := rawConfig["users"]
	if !ok {
		return
	}
	users, ok := raw.([]any)
	if !ok {
		result.addError("users", "users must be an array")
		return
	}

	for i, u := range users {
		path := fmt.Sprintf("users[%d]", i)
		user, ok := u.(map[string]any)
		if !ok {
			result.addError(path, "user entry must be an object")
			continue
		}
		if _, ok := user["login"].(string); !ok {
			result.addError(path+".login", "login is required")
		}
		if id, ok := user["id"].(float64); !ok || id <= 0 {
			result.addError(path+".id", "id must be a positive number")
		}

		password, hasPassword := user["password"]
		_, hasHash := user["passwordHash"]
		switch {
		case hasPassword && hasHash:
			result.addError(path, "set either password or passwordHash, not both")
		case hasPassword:
			if err := validateEnvVarReference(password, "password", path+".password"); err != nil {
				result.Errors = append(result.Errors, *err)
			}
		case !hasHash:
			result.addError(path+".password", "password is required. Hint: Use {\"$env\": \"USER_PASSWORD\"} or a bcrypt passwordHash")
		}
	}
}

func validateDurationField(section map[string]any, field, path string, result *ValidationResult) {
	value, ok := section[field]
	if !ok {
		return
	}
	s, ok := value.(string)
	if !ok {
		result.addError(path, "%s must be a duration string like \"60s\"", field)
		return
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		result.addError(path, "invalid duration '%s': %v", s, err)
		return
	}
	if d < 0 {
		result.addError(path, "%s cannot be negative", field)
	}
}

// validateEnvVarReference validates that a field uses proper env var reference format
func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		// Check if it looks like a bash-style env var
		bashStyleRegex := regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)
		if matches := bashStyleRegex.FindStringSubmatch(v); len(matches) > 1 {
			varName := matches[1]
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion and ensures security", v, varName),
			}
		}
		// Plain string value, never echoed back
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This prevents secrets from being stored in config files", fieldName),
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"YOUR_ENV_VAR\"} format", fieldName),
			}
		}
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", fieldName, value),
		}
	}
}

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	bashStyleRegex := regexp.MustCompile(`\$\{?[A-Z_][A-Z0-9_]*\}?`)

	switch v := value.(type) {
	case string:
		if matches := bashStyleRegex.FindAllString(v, -1); len(matches) > 0 {
			for _, match := range matches {
				varName := strings.Trim(match, "${}")
				result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion in scripts/CI and ensures unambiguous parsing", match, varName)
			}
		}
	case map[string]any:
		// Skip if this is already an env ref
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}

		for key, val := range v {
			// bcrypt hashes contain '$'
			if key == "passwordHash" {
				continue
			}
			newPath := path
			if newPath == "" {
				newPath = key
			} else {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			newPath := fmt.Sprintf("%s[%d]", path, i)
			checkBashStyleSyntax(item, newPath, result)
		}
	}
}
