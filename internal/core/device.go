package core

import "github.com/google/uuid"

// DeviceConfig is the singleton per-device state (spec §3/§4.4).
// DiscoveryDeadline is transient: it is never serialized (see
// internal/deviceconfig), which is the stated security property that
// discovery cannot outlive a restart.
type DeviceConfig struct {
	PeerID            string    `json:"peer_id"`
	DeviceName        string    `json:"device_name"`
	PoolID            uuid.UUID `json:"pool_id,omitempty"`
	DiscoveryDeadline int64     `json:"-"` // unix millis, zero = inactive, never persisted
}

// IsJoined reports whether the device currently holds a pool.
func (d DeviceConfig) IsJoined() bool { return d.PoolID != uuid.Nil }

// TrustedPeer is an allow-list entry (spec §3/§4.5).
type TrustedPeer struct {
	PeerID      string `json:"peer_id"`
	DisplayName string `json:"display_name"`
	DeviceClass string `json:"device_class"`
	PairedAt    uint64 `json:"paired_at"`
	LastSeenAt  uint64 `json:"last_seen_at"`
}

// SyncState tracks per (pool, peer) sync progress (spec §3/§4.10/§4.11).
type SyncState struct {
	PoolID           uuid.UUID `json:"pool_id"`
	PeerID           string    `json:"peer_id"`
	LastVersion      []byte    `json:"last_version"` // opaque CRDT version vector encoding
	LastSyncAt       uint64    `json:"last_sync_at"`
	RetryCount       int       `json:"retry_count"`
	NextRetryAt      uint64    `json:"next_retry_at"`
}
