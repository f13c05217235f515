package config

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/pawseed/pkg/backend"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Backend.Type == "" {
		return fmt.Errorf("backend.type is required")
	}
	if _, ok := backend.Lookup(c.Backend.Type); !ok {
		return fmt.Errorf("unknown backend type %q (available: %s)", c.Backend.Type, strings.Join(backend.Names(), ", "))
	}
	if c.Symprec <= 0 {
		return fmt.Errorf("symprec must be positive, got %g", c.Symprec)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return nil
}
