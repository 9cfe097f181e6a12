// Package transport builds the libp2p host this core syncs over: TCP
// as the base, the noise handshake for authenticated key exchange,
// yamux for multiplexing substreams onto one logical connection per
// peer (spec §4.8). Grounded on the teacher's libp2p.New call in
// internal/sync/p2p.go, made explicit about security/muxer transports
// instead of relying on the library's current defaults, and wired to
// this core's own internal/identity key instead of letting libp2p
// generate a throwaway one.
package transport

import (
	"fmt"

	"github.com/cardmind/core/internal/core"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	noise "github.com/libp2p/go-libp2p/p2p/security/noise"
	yamux "github.com/libp2p/go-libp2p/p2p/muxer/yamux"
	"github.com/multiformats/go-multiaddr"
)

// New constructs a libp2p host bound to privKey's identity, listening
// on listenAddrs (multiaddr strings, e.g. "/ip4/0.0.0.0/tcp/0"),
// secured end to end by noise and multiplexed by yamux. Plaintext
// dial is never registered, so an unauthenticated connection is not
// possible (spec §4.8).
func New(privKey libp2pcrypto.PrivKey, listenAddrs []string) (host.Host, error) {
	addrs := make([]multiaddr.Multiaddr, len(listenAddrs))
	for i, a := range listenAddrs {
		ma, err := multiaddr.NewMultiaddr(a)
		if err != nil {
			return nil, core.WrapError(core.ErrInvalidArgument, fmt.Sprintf("invalid listen address %q", a), err)
		}
		addrs[i] = ma
	}

	h, err := libp2p.New(
		libp2p.Identity(privKey),
		libp2p.ListenAddrs(addrs...),
		libp2p.Security(noise.ID, noise.New),
		libp2p.Muxer(yamux.ID, yamux.DefaultTransport),
		libp2p.DisableRelay(),
	)
	if err != nil {
		return nil, core.WrapError(core.ErrInternal, "constructing libp2p host", err)
	}
	return h, nil
}
