// Package trust is the pairing allow-list: "allow if in the list,
// deny otherwise", with no expiry policy (spec §4.5). Grounded on the
// teacher's internal/sync.Allowlist, adapted from a JSON file per
// vault to the relational cache shared by the rest of this core
// (internal/cache already carries the trusted_peers table everything
// else here reads and writes).
package trust

import (
	"github.com/cardmind/core/internal/cache"
	"github.com/cardmind/core/internal/core"
)

// List is a thin semantic facade over the cache's trusted_peers table.
type List struct {
	cache *cache.Cache
}

// New builds a trust List over an already-open cache.
func New(c *cache.Cache) *List {
	return &List{cache: c}
}

// Add upserts a trusted peer, the "admission" act that happens
// through an explicit pairing flow outside this core's scope (spec
// §4.5) — by the time Add is called, the caller has already verified
// the peer out of band.
func (l *List) Add(peerID, displayName, deviceClass string, now uint64) error {
	return l.cache.PutTrustedPeer(core.TrustedPeer{
		PeerID:      peerID,
		DisplayName: displayName,
		DeviceClass: deviceClass,
		PairedAt:    now,
		LastSeenAt:  now,
	})
}

// Remove revokes a peer's trust. A no-op if the peer was never trusted.
func (l *List) Remove(peerID string) error {
	return l.cache.DeleteTrustedPeer(peerID)
}

// IsTrusted reports whether peerID is currently on the allow-list.
func (l *List) IsTrusted(peerID string) bool {
	_, err := l.cache.GetTrustedPeer(peerID)
	return err == nil
}

// Get retrieves one trusted peer's record.
func (l *List) Get(peerID string) (core.TrustedPeer, error) {
	return l.cache.GetTrustedPeer(peerID)
}

// List returns every trusted peer, most recently seen first.
func (l *List) List() ([]core.TrustedPeer, error) {
	return l.cache.ListTrustedPeers()
}

// Touch updates a trusted peer's last-seen timestamp.
func (l *List) Touch(peerID string, now uint64) error {
	peer, err := l.cache.GetTrustedPeer(peerID)
	if err != nil {
		return err
	}
	peer.LastSeenAt = now
	return l.cache.PutTrustedPeer(peer)
}
