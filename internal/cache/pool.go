package cache

import (
	"database/sql"

	"github.com/cardmind/core/internal/core"
	"github.com/google/uuid"
)

// PutPool upserts a pool's metadata and its member list.
func (c *Cache) PutPool(pool core.Pool) error {
	tx, err := c.db.Begin()
	if err != nil {
		return core.WrapError(core.ErrCache, "beginning pool transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO pools (id, name, authenticator_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			authenticator_hash = excluded.authenticator_hash,
			updated_at = excluded.updated_at
	`, pool.ID.String(), pool.Name, pool.AuthenticatorHash, pool.CreatedAt, pool.UpdatedAt)
	if err != nil {
		return core.WrapError(core.ErrCache, "upserting pool", err)
	}

	if _, err := tx.Exec("DELETE FROM pool_members WHERE pool_id = ?", pool.ID.String()); err != nil {
		return core.WrapError(core.ErrCache, "clearing pool members", err)
	}
	for _, m := range pool.Members {
		if _, err := tx.Exec(`
			INSERT INTO pool_members (pool_id, device_id, display_name, joined_at)
			VALUES (?, ?, ?, ?)
		`, pool.ID.String(), m.DeviceID, m.DisplayName, m.JoinedAt); err != nil {
			return core.WrapError(core.ErrCache, "inserting pool member", err)
		}
	}

	return tx.Commit()
}

// GetPool retrieves a pool, its members, and the ids of its cards
// (derived from the cards table, not stored redundantly).
func (c *Cache) GetPool(id uuid.UUID) (core.Pool, error) {
	var pool core.Pool
	err := c.db.QueryRow(`
		SELECT id, name, authenticator_hash, created_at, updated_at FROM pools WHERE id = ?
	`, id.String()).Scan(&pool.ID, &pool.Name, &pool.AuthenticatorHash, &pool.CreatedAt, &pool.UpdatedAt)
	if err == sql.ErrNoRows {
		return core.Pool{}, core.NewError(core.ErrPoolNotFound, "pool not found: "+id.String())
	}
	if err != nil {
		return core.Pool{}, core.WrapError(core.ErrCache, "getting pool", err)
	}
	pool.ID = id

	members, err := c.poolMembers(id)
	if err != nil {
		return core.Pool{}, err
	}
	pool.Members = members

	cardIDs, err := c.poolCardIDs(id)
	if err != nil {
		return core.Pool{}, err
	}
	pool.CardIDs = cardIDs

	return pool, nil
}

func (c *Cache) poolMembers(id uuid.UUID) ([]core.PoolMember, error) {
	rows, err := c.db.Query(`
		SELECT device_id, display_name, joined_at FROM pool_members WHERE pool_id = ?
	`, id.String())
	if err != nil {
		return nil, core.WrapError(core.ErrCache, "loading pool members", err)
	}
	defer rows.Close()

	members := []core.PoolMember{}
	for rows.Next() {
		var m core.PoolMember
		if err := rows.Scan(&m.DeviceID, &m.DisplayName, &m.JoinedAt); err != nil {
			return nil, core.WrapError(core.ErrCache, "scanning pool member", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (c *Cache) poolCardIDs(id uuid.UUID) ([]uuid.UUID, error) {
	rows, err := c.db.Query(`
		SELECT id FROM cards WHERE pool_id = ? AND deleted = 0
	`, id.String())
	if err != nil {
		return nil, core.WrapError(core.ErrCache, "loading pool card ids", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, core.WrapError(core.ErrCache, "scanning pool card id", err)
		}
		ids = append(ids, uuid.MustParse(idStr))
	}
	return ids, rows.Err()
}

// ListPools returns every pool known to the cache (a device holds at
// most one, per spec §3, but the cache does not enforce that itself).
func (c *Cache) ListPools() ([]core.Pool, error) {
	rows, err := c.db.Query("SELECT id FROM pools")
	if err != nil {
		return nil, core.WrapError(core.ErrCache, "listing pools", err)
	}
	var ids []uuid.UUID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			rows.Close()
			return nil, core.WrapError(core.ErrCache, "scanning pool id", err)
		}
		ids = append(ids, uuid.MustParse(idStr))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, core.WrapError(core.ErrCache, "iterating pools", err)
	}

	pools := make([]core.Pool, 0, len(ids))
	for _, id := range ids {
		p, err := c.GetPool(id)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, nil
}

// DeletePool removes a pool and its member rows (cards are reassigned
// or tombstoned by the caller before this is invoked).
func (c *Cache) DeletePool(id uuid.UUID) error {
	result, err := c.db.Exec("DELETE FROM pools WHERE id = ?", id.String())
	if err != nil {
		return core.WrapError(core.ErrCache, "deleting pool", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return core.WrapError(core.ErrCache, "checking rows affected", err)
	}
	if rows == 0 {
		return core.NewError(core.ErrPoolNotFound, "pool not found: "+id.String())
	}
	return nil
}

// PutTrustedPeer upserts an allow-list entry.
func (c *Cache) PutTrustedPeer(peer core.TrustedPeer) error {
	_, err := c.db.Exec(`
		INSERT INTO trusted_peers (peer_id, display_name, device_class, paired_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(peer_id) DO UPDATE SET
			display_name = excluded.display_name,
			device_class = excluded.device_class,
			last_seen_at = excluded.last_seen_at
	`, peer.PeerID, peer.DisplayName, peer.DeviceClass, peer.PairedAt, peer.LastSeenAt)
	if err != nil {
		return core.WrapError(core.ErrCache, "upserting trusted peer", err)
	}
	return nil
}

// GetTrustedPeer retrieves one allow-list entry by peer id.
func (c *Cache) GetTrustedPeer(peerID string) (core.TrustedPeer, error) {
	var p core.TrustedPeer
	err := c.db.QueryRow(`
		SELECT peer_id, display_name, device_class, paired_at, last_seen_at
		FROM trusted_peers WHERE peer_id = ?
	`, peerID).Scan(&p.PeerID, &p.DisplayName, &p.DeviceClass, &p.PairedAt, &p.LastSeenAt)
	if err == sql.ErrNoRows {
		return core.TrustedPeer{}, core.NewError(core.ErrNotFound, "trusted peer not found: "+peerID)
	}
	if err != nil {
		return core.TrustedPeer{}, core.WrapError(core.ErrCache, "getting trusted peer", err)
	}
	return p, nil
}

// ListTrustedPeers returns every allow-list entry, most recently seen first.
func (c *Cache) ListTrustedPeers() ([]core.TrustedPeer, error) {
	rows, err := c.db.Query(`
		SELECT peer_id, display_name, device_class, paired_at, last_seen_at
		FROM trusted_peers ORDER BY last_seen_at DESC
	`)
	if err != nil {
		return nil, core.WrapError(core.ErrCache, "listing trusted peers", err)
	}
	defer rows.Close()

	peers := []core.TrustedPeer{}
	for rows.Next() {
		var p core.TrustedPeer
		if err := rows.Scan(&p.PeerID, &p.DisplayName, &p.DeviceClass, &p.PairedAt, &p.LastSeenAt); err != nil {
			return nil, core.WrapError(core.ErrCache, "scanning trusted peer", err)
		}
		peers = append(peers, p)
	}
	return peers, rows.Err()
}

// DeleteTrustedPeer removes a peer from the allow-list. A no-op if absent.
func (c *Cache) DeleteTrustedPeer(peerID string) error {
	_, err := c.db.Exec("DELETE FROM trusted_peers WHERE peer_id = ?", peerID)
	if err != nil {
		return core.WrapError(core.ErrCache, "deleting trusted peer", err)
	}
	return nil
}

// PutSyncState upserts the per (pool, peer) sync bookkeeping row.
func (c *Cache) PutSyncState(s core.SyncState) error {
	_, err := c.db.Exec(`
		INSERT INTO sync_state (pool_id, peer_id, last_version, last_sync_at, retry_count, next_retry_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(pool_id, peer_id) DO UPDATE SET
			last_version = excluded.last_version,
			last_sync_at = excluded.last_sync_at,
			retry_count = excluded.retry_count,
			next_retry_at = excluded.next_retry_at
	`, s.PoolID.String(), s.PeerID, s.LastVersion, s.LastSyncAt, s.RetryCount, s.NextRetryAt)
	if err != nil {
		return core.WrapError(core.ErrCache, "upserting sync state", err)
	}
	return nil
}

// GetSyncState retrieves the sync bookkeeping row for (poolID, peerID),
// or the zero value with RetryCount 0 if this pair has never synced.
func (c *Cache) GetSyncState(poolID uuid.UUID, peerID string) (core.SyncState, error) {
	var s core.SyncState
	err := c.db.QueryRow(`
		SELECT pool_id, peer_id, last_version, last_sync_at, retry_count, next_retry_at
		FROM sync_state WHERE pool_id = ? AND peer_id = ?
	`, poolID.String(), peerID).Scan(&s.PoolID, &s.PeerID, &s.LastVersion, &s.LastSyncAt, &s.RetryCount, &s.NextRetryAt)
	if err == sql.ErrNoRows {
		return core.SyncState{PoolID: poolID, PeerID: peerID}, nil
	}
	if err != nil {
		return core.SyncState{}, core.WrapError(core.ErrCache, "getting sync state", err)
	}
	s.PoolID = poolID
	return s, nil
}

// ListSyncStates returns every sync-state row tracked for poolID.
func (c *Cache) ListSyncStates(poolID uuid.UUID) ([]core.SyncState, error) {
	rows, err := c.db.Query(`
		SELECT peer_id, last_version, last_sync_at, retry_count, next_retry_at
		FROM sync_state WHERE pool_id = ?
	`, poolID.String())
	if err != nil {
		return nil, core.WrapError(core.ErrCache, "listing sync states", err)
	}
	defer rows.Close()

	states := []core.SyncState{}
	for rows.Next() {
		s := core.SyncState{PoolID: poolID}
		if err := rows.Scan(&s.PeerID, &s.LastVersion, &s.LastSyncAt, &s.RetryCount, &s.NextRetryAt); err != nil {
			return nil, core.WrapError(core.ErrCache, "scanning sync state", err)
		}
		states = append(states, s)
	}
	return states, rows.Err()
}
