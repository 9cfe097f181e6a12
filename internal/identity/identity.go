// Package identity manages the device's long-lived Ed25519 key pair
// and derives its peer id (spec §4.5), grounded on the teacher's
// FileKeyStore file-based key persistence (internal/crypto/store.go)
// and the libp2p key handling in internal/sync/invite.go.
package identity

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"sync"

	"github.com/cardmind/core/internal/core"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

const keyFileName = "identity.key"

// Identity owns the device's private key and the peer id derived
// from its public half (spec §4.5: "peer id as the key fingerprint
// under the engine's standard encoding" — libp2p's peer.ID string
// form is that encoding here).
type Identity struct {
	path string
	mu   sync.RWMutex
	priv libp2pcrypto.PrivKey
	id   peer.ID
}

// Open loads an existing key pair from dir, generating and persisting
// a fresh Ed25519 key pair on first run.
func Open(dir string) (*Identity, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, core.WrapError(core.ErrIO, "creating identity directory", err)
	}
	path := filepath.Join(dir, keyFileName)

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return generate(path)
	}
	if err != nil {
		return nil, core.WrapError(core.ErrIO, "reading identity key", err)
	}

	keyBytes, err := base64.StdEncoding.DecodeString(string(raw))
	if err != nil {
		return nil, core.WrapError(core.ErrIO, "decoding identity key", err)
	}
	priv, err := libp2pcrypto.UnmarshalPrivateKey(keyBytes)
	if err != nil {
		return nil, core.WrapError(core.ErrIO, "unmarshaling identity key", err)
	}
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return nil, core.WrapError(core.ErrInternal, "deriving peer id", err)
	}
	return &Identity{path: path, priv: priv, id: id}, nil
}

func generate(path string) (*Identity, error) {
	priv, _, err := libp2pcrypto.GenerateEd25519Key(nil)
	if err != nil {
		return nil, core.WrapError(core.ErrInternal, "generating identity key", err)
	}
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return nil, core.WrapError(core.ErrInternal, "deriving peer id", err)
	}

	keyBytes, err := libp2pcrypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, core.WrapError(core.ErrInternal, "marshaling identity key", err)
	}
	encoded := []byte(base64.StdEncoding.EncodeToString(keyBytes))
	if err := os.WriteFile(path, encoded, 0o600); err != nil {
		return nil, core.WrapError(core.ErrIO, "writing identity key", err)
	}

	return &Identity{path: path, priv: priv, id: id}, nil
}

// PeerID returns the device's peer id as a string.
func (i *Identity) PeerID() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.id.String()
}

// PrivateKey returns the underlying libp2p private key, which
// cmd/cardmindd hands to internal/transport to construct the host.
func (i *Identity) PrivateKey() libp2pcrypto.PrivKey {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.priv
}

// Reset discards the current key pair and generates a fresh one.
// Every existing pairing was established against the old peer id, so
// this invalidates all of them — callers must warn the user before
// calling this (spec §4.5).
func (i *Identity) Reset() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	fresh, err := generate(i.path)
	if err != nil {
		return err
	}
	i.priv = fresh.priv
	i.id = fresh.id
	return nil
}
