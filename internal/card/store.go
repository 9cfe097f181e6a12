// Package card composes internal/crdt, internal/docstore, and
// internal/cache into the card lifecycle operations (spec §4.3),
// following the teacher's engineImpl pattern: write the CRDT first
// (source of truth), then persist the materialized view, then let the
// caller decide what to broadcast.
package card

import (
	"github.com/cardmind/core/internal/cache"
	"github.com/cardmind/core/internal/core"
	"github.com/cardmind/core/internal/docstore"
	"github.com/google/uuid"
)

// Store is the card lifecycle facade. A Card with OwnerLocal never
// touches a CRDT document — it exists on exactly one device, so there
// is nothing to merge; only pool-owned cards are routed through
// docstore.
type Store struct {
	cache       *cache.Cache
	docs        *docstore.Store
	localPeerID string
}

// New builds a card Store over an already-open cache and docstore.
func New(c *cache.Cache, d *docstore.Store, localPeerID string) *Store {
	return &Store{cache: c, docs: d, localPeerID: localPeerID}
}

// Docs exposes the underlying docstore, used by internal/pool to
// reconcile a card's pool-document membership on AddCard/RemoveCard.
func (s *Store) Docs() *docstore.Store { return s.docs }

// CreateLocal creates a new device-local card.
func (s *Store) CreateLocal(title, body string) (core.Card, error) {
	c, err := core.NewCard(title, body, s.localPeerID)
	if err != nil {
		return core.Card{}, err
	}
	if err := s.cache.PutCard(c); err != nil {
		return core.Card{}, err
	}
	return c, nil
}

// CreatePool creates a new card owned by poolID, replicating the
// create through that pool's CRDT document.
func (s *Store) CreatePool(poolID uuid.UUID, title, body string) (core.Card, error) {
	c, err := core.NewPoolCard(title, body, s.localPeerID, poolID)
	if err != nil {
		return core.Card{}, err
	}
	if err := s.applyPoolWrite(poolID, c); err != nil {
		return core.Card{}, err
	}
	return c, nil
}

// Get retrieves a card by id from the cache, the fast read path. Every
// pool-owned write — local or learned through sync — lands here via
// the docstore subscription applyPoolWrite and syncmanager.Manager's
// ImportResponse both route through (see the Subscribe registration
// in cmd/cardmindd's openComponents), so a card can only be absent here if it genuinely
// does not exist yet; unlike internal/pool.Store.Get, there is no
// separate CRDT-fallback path, because a card id does not address a
// docstore directory the way a pool id does (see DESIGN.md).
func (s *Store) Get(id uuid.UUID) (core.Card, error) {
	got, err := s.cache.GetCard(id)
	if err != nil {
		return core.Card{}, err
	}
	if got.Deleted {
		return core.Card{}, core.NewError(core.ErrNotFound, "card is deleted: "+id.String())
	}
	return got, nil
}

// List returns cards matching filter.
func (s *Store) List(filter cache.CardFilter) ([]core.Card, error) {
	return s.cache.ListCards(filter)
}

// UpdateInput carries optional field updates; nil means "leave as is".
type UpdateInput struct {
	Title *string
	Body  *string
	Tags  *[]string
}

// Update applies a partial update to an existing card, routing through
// the owning pool's CRDT document when the card is pool-owned.
func (s *Store) Update(id uuid.UUID, input UpdateInput) (core.Card, error) {
	current, err := s.cache.GetCard(id)
	if err != nil {
		return core.Card{}, err
	}
	if current.Deleted {
		return core.Card{}, core.NewError(core.ErrNotFound, "card is deleted: "+id.String())
	}

	updated := current.Clone()
	if input.Title != nil {
		if err := core.ValidateTitle(*input.Title); err != nil {
			return core.Card{}, err
		}
		updated.Title = *input.Title
	}
	if input.Body != nil {
		if err := core.ValidateBody(*input.Body); err != nil {
			return core.Card{}, err
		}
		updated.Body = *input.Body
	}
	if input.Tags != nil {
		updated.Tags = *input.Tags
	}
	updated.UpdatedAt = core.NowMillis()
	if updated.UpdatedAt <= current.UpdatedAt {
		updated.UpdatedAt = current.UpdatedAt + 1
	}
	updated.LastEditorPeer = s.localPeerID

	if current.Owner == core.OwnerPool {
		if err := s.applyPoolWrite(current.PoolID, updated); err != nil {
			return core.Card{}, err
		}
		return updated, nil
	}

	if err := s.cache.PutCard(updated); err != nil {
		return core.Card{}, err
	}
	return updated, nil
}

// Delete tombstones a card, routing through the owning pool's CRDT
// document when the card is pool-owned. Deleting an already-deleted
// card is idempotent (spec §4.3).
func (s *Store) Delete(id uuid.UUID) error {
	current, err := s.cache.GetCard(id)
	if err != nil {
		return err
	}
	if current.Deleted {
		return nil
	}

	if current.Owner == core.OwnerPool {
		doc, err := s.docs.GetOrLoad(current.PoolID, s.localPeerID)
		if err != nil {
			return err
		}
		before := doc.VersionVector()
		deletedAt := core.NowMillis()
		if deletedAt < current.UpdatedAt {
			deletedAt = current.UpdatedAt
		}
		doc.TombstoneCard(id, deletedAt, s.localPeerID)
		return s.docs.AppendUpdate(current.PoolID, doc, doc.ExportDelta(before))
	}

	return s.cache.DeleteCard(id)
}

// Restore clears a card's tombstone, routing through the owning
// pool's CRDT document when the card is pool-owned. Restoring a card
// that is not currently deleted is idempotent — a no-op that returns
// the card unchanged (grounded on original_source's Card.restore(),
// which likewise clears the tombstone and bumps updated_at without
// touching last_edit_peer).
func (s *Store) Restore(id uuid.UUID) (core.Card, error) {
	current, err := s.cache.GetCard(id)
	if err != nil {
		return core.Card{}, err
	}
	if !current.Deleted {
		return current, nil
	}

	restored := current.Clone()
	restored.Deleted = false
	restored.UpdatedAt = core.NowMillis()
	if restored.UpdatedAt <= current.UpdatedAt {
		restored.UpdatedAt = current.UpdatedAt + 1
	}

	if current.Owner == core.OwnerPool {
		if err := s.applyPoolWrite(current.PoolID, restored); err != nil {
			return core.Card{}, err
		}
		return restored, nil
	}

	if err := s.cache.RestoreCard(id, restored.UpdatedAt); err != nil {
		return core.Card{}, err
	}
	return restored, nil
}

// applyPoolWrite writes card into its pool's CRDT document and appends
// the resulting delta to the pool's update log — the create/update/
// restore path shared by CreatePool, Update, and Restore. The cache
// row is refreshed by the docstore subscription AppendUpdate fires,
// not written here directly (spec §4.2).
func (s *Store) applyPoolWrite(poolID uuid.UUID, c core.Card) error {
	doc, err := s.docs.GetOrLoad(poolID, s.localPeerID)
	if err != nil {
		return err
	}
	before := doc.VersionVector()
	doc.PutCard(c)
	return s.docs.AppendUpdate(poolID, doc, doc.ExportDelta(before))
}
