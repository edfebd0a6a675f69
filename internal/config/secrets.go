// internal/config/secrets.go
//
// Late binding of `vault:` references.
//
// Context
// -------
// The loader runs before any Vault client exists, so secret references stay
// in the Config verbatim.  Once cmd/web has built a client it calls
// `ResolveSecrets`, which rewrites every known secret field in place.
// Keeping the resolver behind an interface lets tests swap in a map.

package config

import (
	"context"
	"fmt"
	"strings"
)

// VaultPrefix marks a value that must be fetched from Vault.
const VaultPrefix = "vault:"

// SecretResolver turns a `vault:` reference into the secret value.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// IsSecretRef reports whether s should be resolved through Vault.
func IsSecretRef(s string) bool { return strings.HasPrefix(s, VaultPrefix) }

// NeedsSecrets reports whether any field carries a Vault reference.
func (c *Config) NeedsSecrets() bool {
	return IsSecretRef(c.Database.Password)
}

// ResolveSecrets replaces Vault references with plain values.
func (c *Config) ResolveSecrets(ctx context.Context, r SecretResolver) error {
	if !IsSecretRef(c.Database.Password) {
		return nil
	}
	pw, err := r.Resolve(ctx, c.Database.Password)
	if err != nil {
		return fmt.Errorf("resolve database.password: %w", err)
	}
	c.Database.Password = pw
	return nil
}
