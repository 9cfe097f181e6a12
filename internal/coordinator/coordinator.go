// Package coordinator tracks per-peer sync status, last-seen time,
// per-pool version vectors, and failure backoff across every peer
// this device talks to (spec §4.11). Grounded on original_source's
// MultiPeerSyncCoordinator (rust/src/p2p/multi_peer_sync.rs) — the
// teacher has no equivalent, syncing every discovered peer uniformly
// through one ticker loop — implemented in the teacher's own
// concurrency idiom (a mutex-protected map, as in p2p.go's peersMu).
package coordinator

import (
	"sync"
	"time"
)

// Status is a peer's current sync state.
type Status int

const (
	StatusOffline Status = iota
	StatusOnline
	StatusSyncing
)

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusSyncing:
		return "syncing"
	default:
		return "offline"
	}
}

// PeerInfo is one peer's tracked state.
type PeerInfo struct {
	PeerID       string
	Status       Status
	LastSeen     time.Time
	PoolVersions map[string]map[string]uint64 // pool id -> version vector
	failureCount int
	nextRetryAt  time.Time
}

// Stats summarizes the coordinator's peer table.
type Stats struct {
	Total   int
	Online  int
	Offline int
	Syncing int
}

// Coordinator owns the peer table. All methods are safe for
// concurrent use.
type Coordinator struct {
	mu    sync.Mutex
	peers map[string]*PeerInfo
	now   func() time.Time
}

// New builds an empty Coordinator.
func New() *Coordinator {
	return &Coordinator{
		peers: make(map[string]*PeerInfo),
		now:   time.Now,
	}
}

// AddOrUpdate records a sighting of peerID — discovery or a
// successful connection — bringing it Online and refreshing its
// last-seen time.
func (c *Coordinator) AddOrUpdate(peerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.getOrCreate(peerID)
	p.Status = StatusOnline
	p.LastSeen = c.now()
}

// MarkSyncing records that a sync request with peerID is in flight
// for poolID.
func (c *Coordinator) MarkSyncing(peerID, poolID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.getOrCreate(peerID)
	p.Status = StatusSyncing
	p.LastSeen = c.now()
}

// MarkSynced records a successful sync with peerID for poolID at
// version, returns the peer to Online, and resets its failure/backoff
// state (spec §4.11: "reset to zero on any successful sync").
func (c *Coordinator) MarkSynced(peerID, poolID string, version map[string]uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.getOrCreate(peerID)
	p.Status = StatusOnline
	p.LastSeen = c.now()
	p.PoolVersions[poolID] = version
	p.failureCount = 0
	p.nextRetryAt = time.Time{}
}

// ResetBackoff clears peerID's failure count and retry deadline
// without touching its status or stored versions — used when a
// caller explicitly asks to retry every peer from a clean slate
// (spec §4.12's restart_sync).
func (c *Coordinator) ResetBackoff(peerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.getOrCreate(peerID)
	p.failureCount = 0
	p.nextRetryAt = time.Time{}
}

// MarkOffline records a connection drop or address expiry, moving
// peerID to Offline and advancing its backoff counter (spec §4.11).
func (c *Coordinator) MarkOffline(peerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.getOrCreate(peerID)
	p.Status = StatusOffline
	p.failureCount++
	p.nextRetryAt = c.now().Add(BackoffDelay(p.failureCount))
}

// BackoffDelay returns the delay before the nth retry attempt:
// min(2^(n-1), 16) seconds (spec §4.11). n must be >= 1.
func BackoffDelay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	seconds := 1 << uint(n-1)
	if seconds > 16 {
		seconds = 16
	}
	return time.Duration(seconds) * time.Second
}

// ReadyToRetry reports whether peerID's backoff window has elapsed.
// An unknown peer, or one that was never marked offline, is always
// ready.
func (c *Coordinator) ReadyToRetry(peerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.peers[peerID]
	if !ok || p.nextRetryAt.IsZero() {
		return true
	}
	return !c.now().Before(p.nextRetryAt)
}

// Online returns every peer currently marked Online.
func (c *Coordinator) Online() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for id, p := range c.peers {
		if p.Status == StatusOnline {
			ids = append(ids, id)
		}
	}
	return ids
}

// Get returns a copy of peerID's tracked info.
func (c *Coordinator) Get(peerID string) (PeerInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.peers[peerID]
	if !ok {
		return PeerInfo{}, false
	}
	return clonePeerInfo(p), true
}

// All returns a copy of every tracked peer's info.
func (c *Coordinator) All() []PeerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PeerInfo, 0, len(c.peers))
	for _, p := range c.peers {
		out = append(out, clonePeerInfo(p))
	}
	return out
}

// Stats summarizes the peer table by status.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	var s Stats
	s.Total = len(c.peers)
	for _, p := range c.peers {
		switch p.Status {
		case StatusOnline:
			s.Online++
		case StatusOffline:
			s.Offline++
		case StatusSyncing:
			s.Syncing++
		}
	}
	return s
}

// CleanupOffline removes every peer whose last-seen time is older
// than ttl, returning the removed peer ids.
func (c *Coordinator) CleanupOffline(ttl time.Duration) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-ttl)
	var removed []string
	for id, p := range c.peers {
		if p.LastSeen.Before(cutoff) {
			removed = append(removed, id)
			delete(c.peers, id)
		}
	}
	return removed
}

func (c *Coordinator) getOrCreate(peerID string) *PeerInfo {
	p, ok := c.peers[peerID]
	if !ok {
		p = &PeerInfo{PeerID: peerID, PoolVersions: make(map[string]map[string]uint64)}
		c.peers[peerID] = p
	}
	return p
}

func clonePeerInfo(p *PeerInfo) PeerInfo {
	versions := make(map[string]map[string]uint64, len(p.PoolVersions))
	for pool, v := range p.PoolVersions {
		vc := make(map[string]uint64, len(v))
		for peer, count := range v {
			vc[peer] = count
		}
		versions[pool] = vc
	}
	return PeerInfo{
		PeerID:       p.PeerID,
		Status:       p.Status,
		LastSeen:     p.LastSeen,
		PoolVersions: versions,
	}
}
