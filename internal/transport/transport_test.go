package transport

import (
	"testing"

	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

func genKey(t *testing.T) libp2pcrypto.PrivKey {
	t.Helper()
	priv, _, err := libp2pcrypto.GenerateEd25519Key(nil)
	if err != nil {
		t.Fatalf("GenerateEd25519Key: %v", err)
	}
	return priv
}

func TestNewHostUsesSuppliedIdentity(t *testing.T) {
	priv := genKey(t)
	h, err := New(priv, []string{"/ip4/127.0.0.1/tcp/0"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h.Close()

	wantID, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		t.Fatalf("IDFromPrivateKey: %v", err)
	}
	if h.ID() != wantID {
		t.Errorf("host id = %s, want %s (derived from the supplied key)", h.ID(), wantID)
	}
}

func TestNewHostListensOnRequestedAddr(t *testing.T) {
	h, err := New(genKey(t), []string{"/ip4/127.0.0.1/tcp/0"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h.Close()

	if len(h.Addrs()) == 0 {
		t.Error("expected at least one listen address")
	}
}

func TestNewRejectsInvalidListenAddr(t *testing.T) {
	if _, err := New(genKey(t), []string{"not-a-multiaddr"}); err == nil {
		t.Fatal("expected an error for an invalid listen address")
	}
}

func TestTwoHostsHaveDistinctIDs(t *testing.T) {
	h1, err := New(genKey(t), []string{"/ip4/127.0.0.1/tcp/0"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h1.Close()

	h2, err := New(genKey(t), []string{"/ip4/127.0.0.1/tcp/0"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h2.Close()

	if h1.ID() == h2.ID() {
		t.Error("two independently keyed hosts must not share a peer id")
	}
}
