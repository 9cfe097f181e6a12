// Package secret stores pool passwords in the OS credential store
// (spec §4.6), grounded on original_source's keyring_store.rs: same
// service name, same "pool.<pool_id>.password" entry naming, same
// zero-on-drop handling of the plaintext — expressed here with
// 99designs/keyring (the Go ecosystem's cross-platform keyring
// library, covering the same Keychain/Credential-Manager/Secret-Service
// backends the Rust `keyring` crate does) instead of Rust's zeroize
// crate.
package secret

import (
	"github.com/99designs/keyring"
	"github.com/cardmind/core/internal/core"
)

// ServiceName is the keyring service name under which every pool
// password is stored (matches original_source's KeyringStore::SERVICE_NAME).
const ServiceName = "cardmind"

// Secret holds a plaintext value in a byte slice so it can be
// overwritten in place once the caller is done with it. A Secret
// obtained from Store must have Zero called on it as soon as it is no
// longer needed.
type Secret struct {
	data []byte
}

// NewSecret copies plaintext into a Secret-owned buffer.
func NewSecret(plaintext string) *Secret {
	return &Secret{data: []byte(plaintext)}
}

// String returns the secret's current value. Calling it after Zero
// returns an empty string.
func (s *Secret) String() string {
	return string(s.data)
}

// Zero overwrites the secret's backing array with zero bytes. It does
// not guarantee the compiler won't have copied the bytes elsewhere,
// but it closes the obvious window where the value sits untouched in
// a live buffer.
func (s *Secret) Zero() {
	for i := range s.data {
		s.data[i] = 0
	}
	s.data = s.data[:0]
}

// Store wraps an OS keyring for a single device's pool passwords.
type Store struct {
	ring keyring.Keyring
}

// Open opens the platform's default credential store under ServiceName,
// picking whichever backend 99designs/keyring finds available on the
// running OS (Keychain, Secret Service, Credential Manager, ...).
func Open() (*Store, error) {
	return OpenWithConfig(keyring.Config{ServiceName: ServiceName})
}

// OpenWithConfig opens a keyring with a caller-supplied configuration,
// letting tests pin the file-backed backend instead of touching a real
// OS credential store.
func OpenWithConfig(cfg keyring.Config) (*Store, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = ServiceName
	}
	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, core.WrapError(core.ErrSecretStore, "opening OS keyring", err)
	}
	return &Store{ring: ring}, nil
}

func entryKey(poolID string) string {
	return "pool." + poolID + ".password"
}

// StorePoolPassword persists poolID's password to the OS keyring.
// Password is zeroed once stored — callers should not reuse it.
func (s *Store) StorePoolPassword(poolID string, password *Secret) error {
	defer password.Zero()
	item := keyring.Item{
		Key:  entryKey(poolID),
		Data: []byte(password.String()),
	}
	if err := s.ring.Set(item); err != nil {
		return core.WrapError(core.ErrSecretStore, "storing pool password for "+poolID, err)
	}
	return nil
}

// GetPoolPassword retrieves poolID's password. The caller owns the
// returned Secret and must Zero it when done.
func (s *Store) GetPoolPassword(poolID string) (*Secret, error) {
	item, err := s.ring.Get(entryKey(poolID))
	if err != nil {
		if err == keyring.ErrKeyNotFound {
			return nil, core.NewError(core.ErrNotFound, "no stored password for pool "+poolID)
		}
		return nil, core.WrapError(core.ErrSecretStore, "reading pool password for "+poolID, err)
	}
	return &Secret{data: item.Data}, nil
}

// DeletePoolPassword removes poolID's stored password.
func (s *Store) DeletePoolPassword(poolID string) error {
	if err := s.ring.Remove(entryKey(poolID)); err != nil {
		if err == keyring.ErrKeyNotFound {
			return nil
		}
		return core.WrapError(core.ErrSecretStore, "deleting pool password for "+poolID, err)
	}
	return nil
}

// HasPoolPassword reports whether a password is stored for poolID.
func (s *Store) HasPoolPassword(poolID string) bool {
	_, err := s.ring.Get(entryKey(poolID))
	return err == nil
}
