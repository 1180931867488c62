package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "blogbell"

// SessionTokenKey is the keyring entry holding the member's bearer token.
const SessionTokenKey = "session-token"

// ErrNotFound is returned when a key has no stored credential.
var ErrNotFound = errors.New("credential not found")

// Ring reads and writes credentials in a keyring backend.
type Ring struct {
	ring keyring.Keyring
}

// Open returns a Ring backed by the system keyring, falling back to an
// encrypted file store when no OS keyring is available.
func Open() (*Ring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/blogbell/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("blogbell-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Ring{ring: ring}, nil
}

// NewRing wraps an existing keyring, e.g. keyring.NewArrayKeyring in tests.
func NewRing(ring keyring.Keyring) *Ring {
	return &Ring{ring: ring}
}

// Get retrieves a credential value by key.
func (r *Ring) Get(key string) (string, error) {
	item, err := r.ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key.
func (r *Ring) Set(key string, value string) error {
	err := r.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "blogbell " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key. Deleting a missing key is not an
// error.
func (r *Ring) Delete(key string) error {
	err := r.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}
