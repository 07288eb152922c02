package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dgellow/cdsso/internal"
	"github.com/dgellow/cdsso/internal/config"
	"github.com/dgellow/cdsso/internal/registry"
)

// domainCommand is one registry maintenance request from the command line.
type domainCommand struct {
	list   bool
	remove string
	setSSL string
}

func (c domainCommand) requested() bool {
	return c.list || c.remove != "" || c.setSSL != ""
}

// runDomainCommand applies c to the configured registry. It is how the
// https health checker, or an operator, updates a mapping outside the server.
// Domains listed in the config are written back on the next server start.
func runDomainCommand(ctx context.Context, cfg config.RegistryConfig, c domainCommand, out io.Writer) error {
	if cfg.Kind == config.RegistryKindMemory || cfg.Kind == "" {
		return fmt.Errorf("registry kind %q is not persistent", cfg.Kind)
	}

	store, err := internal.OpenRegistry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open domain registry: %w", err)
	}
	defer store.Close()

	if c.setSSL != "" {
		host, raw, ok := strings.Cut(c.setSSL, "=")
		if !ok {
			return fmt.Errorf("expected host=true|false, got %q", c.setSSL)
		}
		secure, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid https flag for %s: %w", host, err)
		}
		if err := store.SetSSLCapability(ctx, host, secure); err != nil {
			if errors.Is(err, registry.ErrDomainNotFound) {
				return fmt.Errorf("%s is not mapped", host)
			}
			return err
		}
		fmt.Fprintf(out, "Set https for %s to %t\n", host, secure)
	}

	if c.remove != "" {
		if err := store.Delete(ctx, c.remove); err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed %s\n", c.remove)
	}

	if c.list {
		mappings, err := store.List(ctx)
		if err != nil {
			return err
		}
		printMappings(out, mappings)
	}
	return nil
}

func printMappings(out io.Writer, mappings []registry.Mapping) {
	if len(mappings) == 0 {
		fmt.Fprintln(out, "No mapped domains")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DOMAIN\tSITE\tHTTPS\tACTIVE")
	for _, m := range mappings {
		fmt.Fprintf(tw, "%s\t%d\t%t\t%t\n", m.Domain, m.SiteID, m.ForceSSL, m.Active)
	}
	tw.Flush()
}
