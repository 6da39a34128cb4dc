package config

import (
	"fmt"
	"strings"
)

const secretPrefix = "secret:"

// SecretLookup returns the decrypted value of a named secret.
type SecretLookup func(name string) (string, error)

// ResolveSecrets replaces every "secret:<name>" credential with its
// decrypted value. Plain values are left untouched.
func (c *Config) ResolveSecrets(lookup SecretLookup) error {
	fields := []*string{
		&c.Storefront.AccessToken,
		&c.Search.TavilyAPIKey,
		&c.Telegram.Token,
		&c.Web.Auth,
	}
	for _, f := range fields {
		if err := resolve(f, lookup); err != nil {
			return err
		}
	}

	for name, b := range c.Backends {
		if err := resolve(&b.APIKey, lookup); err != nil {
			return fmt.Errorf("backend %s: %w", name, err)
		}
		c.Backends[name] = b
	}
	return nil
}

// HasSecretRefs reports whether any credential still references the vault.
func (c *Config) HasSecretRefs() bool {
	values := []string{c.Storefront.AccessToken, c.Search.TavilyAPIKey, c.Telegram.Token, c.Web.Auth}
	for _, b := range c.Backends {
		values = append(values, b.APIKey)
	}
	for _, v := range values {
		if strings.HasPrefix(v, secretPrefix) {
			return true
		}
	}
	return false
}

func resolve(field *string, lookup SecretLookup) error {
	if !strings.HasPrefix(*field, secretPrefix) {
		return nil
	}
	name := strings.TrimPrefix(*field, secretPrefix)
	if lookup == nil {
		return &ConfigurationError{Section: "vault", Missing: []string{"STORECREW_VAULT_PASSPHRASE"}}
	}
	v, err := lookup(name)
	if err != nil {
		return fmt.Errorf("resolve secret %s: %w", name, err)
	}
	*field = v
	return nil
}
