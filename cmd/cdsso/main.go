package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/dgellow/cdsso/internal"
	"github.com/dgellow/cdsso/internal/config"
	"github.com/dgellow/cdsso/internal/log"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version": config.Version,
		"server": map[string]any{
			"addr":    ":8080",
			"baseURL": "https://network.example.com",
			"name":    "cdsso",
		},
		"sso": map[string]any{
			"canonicalHost": "network.example.com",
			"cleanURLs":     true,
			"tokenTtl":      "60s",
			"sessionTtl":    "336h",
			"secret":        map[string]string{"$env": "CDSSO_SECRET"},
			"sslProbe": map[string]any{
				"timeout":  "3s",
				"cacheTtl": "10m",
			},
		},
		"replay": map[string]any{
			"mode": "memory",
		},
		"registry": map[string]any{
			"kind": "sqlite",
			"dsn":  "file:cdsso.db",
			"domains": []any{
				map[string]any{"domain": "shop.example", "siteId": 2, "forceSsl": true},
			},
		},
		"users": []any{
			map[string]any{
				"id":           1,
				"login":        "admin",
				"password":     map[string]string{"$env": "CDSSO_ADMIN_PASSWORD"},
				"capabilities": []string{"read", "edit_posts"},
				"superAdmin":   true,
			},
		},
		"metrics": map[string]any{
			"enabled": true,
			"path":    "/metrics",
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Printf("Validating: %s\n", path)

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for _, err := range result.Errors {
			printIssue(err)
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(result.Warnings))
		for _, warn := range result.Warnings {
			printIssue(warn)
		}
	}

	fmt.Println()
	switch {
	case result.IsValid() && len(result.Warnings) == 0:
		fmt.Println("Result: PASS")
	case result.IsValid():
		fmt.Println("Result: FAIL (warnings present)")
	default:
		fmt.Println("Result: FAIL")
	}

	if !result.IsValid() || len(result.Warnings) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}

func printIssue(issue config.ValidationError) {
	if issue.Path != "" {
		fmt.Printf("  - %s: %s\n", issue.Path, issue.Message)
		return
	}
	fmt.Printf("  - %s\n", issue.Message)
}

func main() {
	conf := flag.String("config", "", "path to config file (required)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	validate := flag.Bool("validate", false, "validate config file and exit")
	listDomains := flag.Bool("list-domains", false, "print the domain registry and exit")
	removeDomain := flag.String("remove-domain", "", "delete a domain mapping and exit")
	setSSL := flag.String("set-ssl", "", "record whether a mapped domain serves https (host=true|false) and exit")
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}

	if *validate {
		if *conf == "" {
			fmt.Fprintf(os.Stderr, "Error: -config flag is required for validation\n")
			os.Exit(1)
		}
		if err := validateConfig(*conf); err != nil {
			os.Exit(1)
		}
		return
	}

	if *conf == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Run with -help for usage information\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	if cmd := (domainCommand{list: *listDomains, remove: *removeDomain, setSSL: *setSSL}); cmd.requested() {
		if err := runDomainCommand(context.Background(), cfg.Registry, cmd, os.Stdout); err != nil {
			log.LogError("Domain registry command failed: %v", err)
			os.Exit(1)
		}
		return
	}

	log.LogInfoWithFields("main", "Starting cdsso", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
	})

	app, err := internal.NewCDSSO(context.Background(), cfg)
	if err != nil {
		log.LogError("Failed to create application: %v", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		log.LogError("Failed to start server: %v", err)
		os.Exit(1)
	}
}
