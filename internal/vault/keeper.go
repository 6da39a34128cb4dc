package vault

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mtzanidakis/storecrew/internal/config"
	"github.com/mtzanidakis/storecrew/internal/store"
)

var ErrSecretNotFound = errors.New("secret not found")

// SecretStore is where sealed secrets live.
type SecretStore interface {
	SaveSecret(sec *store.Secret) error
	GetSecret(name string) (*store.Secret, error)
}

// Keeper seals secrets before they reach the store and opens them on the
// way out.
type Keeper struct {
	vault *Vault
	store SecretStore
}

func NewKeeper(v *Vault, s SecretStore) *Keeper {
	return &Keeper{vault: v, store: s}
}

func (k *Keeper) Set(name, description, value string) error {
	if name == "" {
		return fmt.Errorf("secret name is required")
	}
	ciphertext, nonce, err := k.vault.Encrypt([]byte(value))
	if err != nil {
		return fmt.Errorf("seal secret %s: %w", name, err)
	}
	return k.store.SaveSecret(&store.Secret{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Value:       ciphertext,
		Nonce:       nonce,
	})
}

func (k *Keeper) Get(name string) (string, error) {
	sec, err := k.store.GetSecret(name)
	if err != nil {
		return "", err
	}
	if sec == nil {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	plain, err := k.vault.Decrypt(sec.Value, sec.Nonce)
	if err != nil {
		return "", fmt.Errorf("open secret %s: %w", name, err)
	}
	return string(plain), nil
}

// Lookup adapts the keeper for config.ResolveSecrets.
func (k *Keeper) Lookup() config.SecretLookup {
	return k.Get
}
