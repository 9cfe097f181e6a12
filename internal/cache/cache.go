// Package cache is the relational read-optimization layer over the
// CRDT documents in internal/docstore. It is never the source of
// truth — on any disagreement the CRDT document wins and the cache is
// rebuilt from it (spec §4.2), the same role the teacher's
// internal/storage/sqlite plays for its entries/tags pair.
package cache

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/cardmind/core/internal/core"
	"github.com/cardmind/core/internal/docstore"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Cache is a SQLite-backed read cache for cards, pools, trusted peers,
// and per-peer sync state.
type Cache struct {
	db *sql.DB
}

// Open opens (creating if absent) a SQLite database at path, with
// foreign keys on and WAL journaling.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, core.WrapError(core.ErrCache, "opening cache database", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, core.WrapError(core.ErrCache, "enabling WAL mode", err)
	}

	c := &Cache{db: db}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, core.WrapError(core.ErrCache, "initializing schema", err)
	}
	return c, nil
}

func (c *Cache) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS cards (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			deleted INTEGER NOT NULL DEFAULT 0,
			owner TEXT NOT NULL,
			pool_id TEXT,
			last_editor_peer TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS card_tags (
			card_id TEXT NOT NULL,
			tag TEXT NOT NULL,
			PRIMARY KEY (card_id, tag),
			FOREIGN KEY (card_id) REFERENCES cards(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_cards_pool ON cards(pool_id);
		CREATE INDEX IF NOT EXISTS idx_cards_updated ON cards(updated_at);
		CREATE INDEX IF NOT EXISTS idx_cards_deleted ON cards(deleted);
		CREATE INDEX IF NOT EXISTS idx_card_tags_tag ON card_tags(tag);

		CREATE TABLE IF NOT EXISTS pools (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			authenticator_hash TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS pool_members (
			pool_id TEXT NOT NULL,
			device_id TEXT NOT NULL,
			display_name TEXT NOT NULL,
			joined_at INTEGER NOT NULL,
			PRIMARY KEY (pool_id, device_id),
			FOREIGN KEY (pool_id) REFERENCES pools(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS trusted_peers (
			peer_id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			device_class TEXT NOT NULL,
			paired_at INTEGER NOT NULL,
			last_seen_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sync_state (
			pool_id TEXT NOT NULL,
			peer_id TEXT NOT NULL,
			last_version BLOB,
			last_sync_at INTEGER NOT NULL DEFAULT 0,
			retry_count INTEGER NOT NULL DEFAULT 0,
			next_retry_at INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (pool_id, peer_id)
		);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (c *Cache) Close() error { return c.db.Close() }

// CardFilter narrows ListCards (spec §4.3's listing operation).
type CardFilter struct {
	PoolID  *uuid.UUID
	Owner   *core.OwnerKind
	Tag     *string
	Since   *uint64
	Until   *uint64
	Deleted bool
	Limit   int
	Offset  int
}

// PutCard upserts card and replaces its tag rows. Idempotent.
func (c *Cache) PutCard(card core.Card) error {
	tx, err := c.db.Begin()
	if err != nil {
		return core.WrapError(core.ErrCache, "beginning card transaction", err)
	}
	defer tx.Rollback()

	var poolID interface{}
	if card.PoolID != uuid.Nil {
		poolID = card.PoolID.String()
	}

	_, err = tx.Exec(`
		INSERT INTO cards (id, title, body, created_at, updated_at, deleted, owner, pool_id, last_editor_peer)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			updated_at = excluded.updated_at,
			deleted = excluded.deleted,
			owner = excluded.owner,
			pool_id = excluded.pool_id,
			last_editor_peer = excluded.last_editor_peer
	`, card.ID.String(), card.Title, card.Body, card.CreatedAt, card.UpdatedAt,
		boolToInt(card.Deleted), string(card.Owner), poolID, card.LastEditorPeer)
	if err != nil {
		return core.WrapError(core.ErrCache, "upserting card", err)
	}

	if _, err := tx.Exec("DELETE FROM card_tags WHERE card_id = ?", card.ID.String()); err != nil {
		return core.WrapError(core.ErrCache, "clearing card tags", err)
	}
	for _, tag := range card.Tags {
		if _, err := tx.Exec("INSERT INTO card_tags (card_id, tag) VALUES (?, ?)", card.ID.String(), tag); err != nil {
			return core.WrapError(core.ErrCache, "inserting card tag", err)
		}
	}

	return tx.Commit()
}

// GetCard retrieves a card (including tombstones) by id.
func (c *Cache) GetCard(id uuid.UUID) (core.Card, error) {
	var card core.Card
	var owner string
	var poolID sql.NullString
	var deleted int

	err := c.db.QueryRow(`
		SELECT id, title, body, created_at, updated_at, deleted, owner, pool_id, last_editor_peer
		FROM cards WHERE id = ?
	`, id.String()).Scan(&card.ID, &card.Title, &card.Body, &card.CreatedAt, &card.UpdatedAt,
		&deleted, &owner, &poolID, &card.LastEditorPeer)
	if err == sql.ErrNoRows {
		return core.Card{}, core.NewError(core.ErrNotFound, "card not found: "+id.String())
	}
	if err != nil {
		return core.Card{}, core.WrapError(core.ErrCache, "getting card", err)
	}
	card.ID = id
	card.Owner = core.OwnerKind(owner)
	card.Deleted = deleted != 0
	if poolID.Valid {
		card.PoolID = uuid.MustParse(poolID.String)
	}

	tags, err := c.cardTags(id)
	if err != nil {
		return core.Card{}, err
	}
	card.Tags = tags
	return card, nil
}

func (c *Cache) cardTags(id uuid.UUID) ([]string, error) {
	rows, err := c.db.Query("SELECT tag FROM card_tags WHERE card_id = ?", id.String())
	if err != nil {
		return nil, core.WrapError(core.ErrCache, "loading card tags", err)
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, core.WrapError(core.ErrCache, "scanning card tag", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// ListCards returns cards matching filter, most-recently-updated first.
func (c *Cache) ListCards(filter CardFilter) ([]core.Card, error) {
	query := "SELECT id, title, body, created_at, updated_at, deleted, owner, pool_id, last_editor_peer FROM cards WHERE 1=1"
	var args []interface{}

	if !filter.Deleted {
		query += " AND deleted = 0"
	}
	if filter.PoolID != nil {
		query += " AND pool_id = ?"
		args = append(args, filter.PoolID.String())
	}
	if filter.Owner != nil {
		query += " AND owner = ?"
		args = append(args, string(*filter.Owner))
	}
	if filter.Since != nil {
		query += " AND updated_at >= ?"
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		query += " AND updated_at <= ?"
		args = append(args, *filter.Until)
	}
	if filter.Tag != nil {
		query += " AND id IN (SELECT card_id FROM card_tags WHERE tag = ?)"
		args = append(args, *filter.Tag)
	}

	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, core.WrapError(core.ErrCache, "listing cards", err)
	}
	defer rows.Close()

	cards := []core.Card{}
	for rows.Next() {
		var card core.Card
		var idStr, owner string
		var poolID sql.NullString
		var deleted int
		if err := rows.Scan(&idStr, &card.Title, &card.Body, &card.CreatedAt, &card.UpdatedAt,
			&deleted, &owner, &poolID, &card.LastEditorPeer); err != nil {
			return nil, core.WrapError(core.ErrCache, "scanning card", err)
		}
		card.ID = uuid.MustParse(idStr)
		card.Owner = core.OwnerKind(owner)
		card.Deleted = deleted != 0
		if poolID.Valid {
			card.PoolID = uuid.MustParse(poolID.String)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapError(core.ErrCache, "iterating cards", err)
	}

	if len(cards) > 0 {
		if err := c.attachTags(cards); err != nil {
			return nil, err
		}
	}
	return cards, nil
}

func (c *Cache) attachTags(cards []core.Card) error {
	ids := make([]string, len(cards))
	for i, card := range cards {
		ids[i] = card.ID.String()
	}
	query := fmt.Sprintf("SELECT card_id, tag FROM card_tags WHERE card_id IN (%s)",
		strings.Repeat("?,", len(ids)-1)+"?")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return core.WrapError(core.ErrCache, "batch loading card tags", err)
	}
	defer rows.Close()

	tagsByCard := make(map[string][]string)
	for rows.Next() {
		var cardID, tag string
		if err := rows.Scan(&cardID, &tag); err != nil {
			return core.WrapError(core.ErrCache, "scanning batch tag", err)
		}
		tagsByCard[cardID] = append(tagsByCard[cardID], tag)
	}
	for i := range cards {
		cards[i].Tags = tagsByCard[cards[i].ID.String()]
		if cards[i].Tags == nil {
			cards[i].Tags = []string{}
		}
	}
	return rows.Err()
}

// DeleteCard tombstones a card by id.
func (c *Cache) DeleteCard(id uuid.UUID) error {
	result, err := c.db.Exec("UPDATE cards SET deleted = 1 WHERE id = ?", id.String())
	if err != nil {
		return core.WrapError(core.ErrCache, "deleting card", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return core.WrapError(core.ErrCache, "checking rows affected", err)
	}
	if rows == 0 {
		return core.NewError(core.ErrNotFound, "card not found: "+id.String())
	}
	return nil
}

// Rebuild discards and repopulates the pool-owned portion of the
// cache — every pools/pool_members row and every card row whose
// pool_id is set — by replaying docs' documents in full (spec §4.2:
// "the cache is advisory... it may be discarded and rebuilt"; spec
// §8's cache-reconstruction property). Device-local cards have no
// CRDT representation to replay and are left untouched.
func (c *Cache) Rebuild(docs *docstore.Store, localPeerID string) error {
	poolIDs, err := docs.ListPoolIDs()
	if err != nil {
		return err
	}

	tx, err := c.db.Begin()
	if err != nil {
		return core.WrapError(core.ErrCache, "beginning rebuild transaction", err)
	}
	if _, err := tx.Exec("DELETE FROM card_tags WHERE card_id IN (SELECT id FROM cards WHERE pool_id IS NOT NULL)"); err != nil {
		tx.Rollback()
		return core.WrapError(core.ErrCache, "clearing pool card tags", err)
	}
	if _, err := tx.Exec("DELETE FROM cards WHERE pool_id IS NOT NULL"); err != nil {
		tx.Rollback()
		return core.WrapError(core.ErrCache, "clearing pool cards", err)
	}
	if _, err := tx.Exec("DELETE FROM pool_members"); err != nil {
		tx.Rollback()
		return core.WrapError(core.ErrCache, "clearing pool members", err)
	}
	if _, err := tx.Exec("DELETE FROM pools"); err != nil {
		tx.Rollback()
		return core.WrapError(core.ErrCache, "clearing pools", err)
	}
	if err := tx.Commit(); err != nil {
		return core.WrapError(core.ErrCache, "committing rebuild wipe", err)
	}

	for _, id := range poolIDs {
		doc, err := docs.GetOrLoad(id, localPeerID)
		if err != nil {
			return err
		}

		name, hash, timestamp := doc.PoolMeta()
		pool := core.Pool{
			ID:                id,
			Name:              name,
			AuthenticatorHash: hash,
			Members:           doc.Members(),
			CreatedAt:         timestamp,
			UpdatedAt:         timestamp,
		}
		if err := c.PutPool(pool); err != nil {
			return err
		}

		snap := doc.TakeSnapshot()
		for _, elem := range snap.Cards {
			card := elem.Card
			card.Deleted = elem.Deleted
			if !elem.Deleted {
				if fresh, ok := doc.GetCard(card.ID); ok {
					card = fresh
				}
			}
			if err := c.PutCard(card); err != nil {
				return err
			}
		}
	}
	return nil
}

// RestoreCard clears a card's tombstone by id and records updatedAt.
// Idempotent: restoring a card that is already active still succeeds,
// simply overwriting updated_at again.
func (c *Cache) RestoreCard(id uuid.UUID, updatedAt uint64) error {
	result, err := c.db.Exec("UPDATE cards SET deleted = 0, updated_at = ? WHERE id = ?", updatedAt, id.String())
	if err != nil {
		return core.WrapError(core.ErrCache, "restoring card", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return core.WrapError(core.ErrCache, "checking rows affected", err)
	}
	if rows == 0 {
		return core.NewError(core.ErrNotFound, "card not found: "+id.String())
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
