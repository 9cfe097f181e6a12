// Package deviceconfig is the load-or-create JSON singleton holding a
// device's persistent identity binding and pool membership (spec
// §4.4), grounded on the teacher's internal/vault.Manager
// load/save-with-mkdir pattern — generalized from a list of vaults to
// one always-present config record.
package deviceconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cardmind/core/internal/core"
	"github.com/google/uuid"
)

const fileName = "config.json"

// Manager owns the on-disk config.json file and serializes access to
// the in-memory DeviceConfig it wraps.
type Manager struct {
	path string
	mu   sync.RWMutex
	cfg  core.DeviceConfig
}

// Open loads an existing config.json from dir, or creates one seeded
// with peerID/deviceName if none exists yet. Loading always resets
// DiscoveryDeadline to zero — it is tagged json:"-" and so never
// survives the round trip, which is the stated security property that
// discovery cannot outlive a restart.
func Open(dir, peerID, deviceName string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, core.WrapError(core.ErrIO, "creating device config directory", err)
	}
	path := filepath.Join(dir, fileName)

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		m := &Manager{path: path, cfg: core.DeviceConfig{PeerID: peerID, DeviceName: deviceName}}
		if err := m.save(); err != nil {
			return nil, err
		}
		return m, nil
	}
	if err != nil {
		return nil, core.WrapError(core.ErrIO, "reading device config", err)
	}

	var cfg core.DeviceConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, core.WrapError(core.ErrIO, "decoding device config", err)
	}
	return &Manager{path: path, cfg: cfg}, nil
}

func (m *Manager) save() error {
	raw, err := json.MarshalIndent(m.cfg, "", "  ")
	if err != nil {
		return core.WrapError(core.ErrIO, "encoding device config", err)
	}
	if err := writeAtomic(m.path, raw); err != nil {
		return core.WrapError(core.ErrIO, "writing device config", err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Config returns a copy of the current device config.
func (m *Manager) Config() core.DeviceConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// PeerID returns the device's stable peer id.
func (m *Manager) PeerID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.PeerID
}

// IsJoined reports whether the device currently holds a pool.
func (m *Manager) IsJoined() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.IsJoined()
}

// GetPoolID returns the held pool id, or false if the device has not
// joined one.
func (m *Manager) GetPoolID() (uuid.UUID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.cfg.IsJoined() {
		return uuid.UUID{}, false
	}
	return m.cfg.PoolID, true
}

// JoinPool binds the device to poolID. Rejects with ErrAlreadyJoined
// if a different pool is already held (spec §4.4); joining the
// already-held pool again is a no-op.
func (m *Manager) JoinPool(poolID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.IsJoined() {
		if m.cfg.PoolID == poolID {
			return nil
		}
		return core.NewError(core.ErrAlreadyJoined, "device already belongs to pool "+m.cfg.PoolID.String())
	}
	m.cfg.PoolID = poolID
	return m.save()
}

// LeavePool unbinds the device from poolID. Rejects if poolID is not
// the currently held pool (spec §4.4).
func (m *Manager) LeavePool(poolID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.cfg.IsJoined() || m.cfg.PoolID != poolID {
		return core.NewError(core.ErrNotMember, "device does not hold pool "+poolID.String())
	}
	m.cfg.PoolID = uuid.Nil
	return m.save()
}

// ActivateDiscovery sets the transient, never-persisted deadline
// (unix millis) until which mDNS announcement is allowed to run (spec
// §4.7's 5-minute toggle). The value is held only in memory.
func (m *Manager) ActivateDiscovery(deadlineMillis int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.DiscoveryDeadline = deadlineMillis
}

// DiscoveryDeadline returns the current in-memory discovery deadline,
// zero if discovery has never been activated since the process
// started (or was deactivated).
func (m *Manager) DiscoveryDeadline() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.DiscoveryDeadline
}
