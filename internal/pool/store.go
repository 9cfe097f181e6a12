// Package pool composes internal/crdt, internal/docstore, and
// internal/cache into the Pool lifecycle operations (spec §4.3),
// mirroring internal/card's write-CRDT-then-persist-cache pattern.
//
// A Pool's card-id list is not tracked as its own CRDT element: the
// pool's Document already holds every one of its cards in a CardSet
// (internal/card routes pool-owned card writes through the same
// Document), so the "authoritative card-id list" the spec describes
// is simply doc.ListCards() — and the relational cache mirrors it the
// same way internal/cache.GetPool already derives CardIDs from the
// cards table rather than storing a second copy. add_card/remove_card
// therefore act by reassigning a card's owning pool, not by editing a
// separate list.
package pool

import (
	"github.com/cardmind/core/internal/cache"
	"github.com/cardmind/core/internal/core"
	"github.com/cardmind/core/internal/docstore"
	"github.com/google/uuid"
)

// Store is the pool lifecycle facade.
type Store struct {
	cache       *cache.Cache
	docs        *docstore.Store
	localPeerID string
}

// New builds a pool Store over an already-open cache and docstore.
func New(c *cache.Cache, d *docstore.Store, localPeerID string) *Store {
	return &Store{cache: c, docs: d, localPeerID: localPeerID}
}

// Create allocates a new pool and seeds its CRDT document with the
// initial name/authenticator hash.
func (s *Store) Create(name, authenticatorHash string) (core.Pool, error) {
	p, err := core.NewPool(name, authenticatorHash)
	if err != nil {
		return core.Pool{}, err
	}

	doc, err := s.docs.GetOrLoad(p.ID, s.localPeerID)
	if err != nil {
		return core.Pool{}, err
	}
	doc.SetPoolMeta(p.Name, p.AuthenticatorHash, p.UpdatedAt, s.localPeerID)
	if err := s.docs.AppendUpdate(p.ID, doc, doc.ExportDelta(map[string]uint64{})); err != nil {
		return core.Pool{}, err
	}

	if err := s.cache.PutPool(p); err != nil {
		return core.Pool{}, err
	}
	return p, nil
}

// Get retrieves a pool from the cache, the fast read path, falling
// back to the CRDT document (the "cache miss → CRDT is the fallback
// authority" rule in spec §4.3) when the cache has never seen it —
// e.g. a pool learned entirely through sync before any local write.
func (s *Store) Get(id uuid.UUID) (core.Pool, error) {
	p, err := s.cache.GetPool(id)
	if err == nil {
		return p, nil
	}
	if core.KindOf(err) != core.ErrPoolNotFound || !s.docs.Exists(id) {
		return core.Pool{}, err
	}

	doc, loadErr := s.docs.GetOrLoad(id, s.localPeerID)
	if loadErr != nil {
		return core.Pool{}, loadErr
	}
	name, hash, timestamp := doc.PoolMeta()
	hydrated := core.Pool{
		ID:                id,
		Name:              name,
		AuthenticatorHash: hash,
		Members:           doc.Members(),
		CardIDs:           []uuid.UUID{},
		CreatedAt:         timestamp,
		UpdatedAt:         timestamp,
	}
	if err := s.cache.PutPool(hydrated); err != nil {
		return core.Pool{}, err
	}
	return s.cache.GetPool(id)
}

// List returns every pool known to the cache.
func (s *Store) List() ([]core.Pool, error) {
	return s.cache.ListPools()
}

// Restore reconstructs a pool's cache row from its CRDT document when
// the cache has lost it but the document is still on disk — e.g.
// after a crash between the CRDT write and the cache write, or a
// cache rebuild that has not yet replayed this pool. Idempotent: a
// no-op if the cache already has the pool.
//
// Unlike a Card, a Pool carries no tombstone in original_source's
// model — Delete genuinely discards the on-disk document rather than
// marking it deleted, so once a pool has actually been deleted there
// is nothing left here to restore. This mirrors Delete's idempotency
// shape for the case that is recoverable: a pool the CRDT layer still
// knows about but the cache does not.
func (s *Store) Restore(id uuid.UUID) (core.Pool, error) {
	p, err := s.cache.GetPool(id)
	if err == nil {
		return p, nil
	}
	if core.KindOf(err) != core.ErrPoolNotFound || !s.docs.Exists(id) {
		return core.Pool{}, err
	}
	return s.Get(id)
}

// UpdateInput carries optional field updates; nil means "leave as is".
type UpdateInput struct {
	Name              *string
	AuthenticatorHash *string
}

// Update applies a partial update to a pool's name/authenticator hash,
// routed through its CRDT document so the change replicates.
func (s *Store) Update(id uuid.UUID, input UpdateInput) (core.Pool, error) {
	current, err := s.Get(id)
	if err != nil {
		return core.Pool{}, err
	}

	name := current.Name
	if input.Name != nil {
		if err := core.ValidatePoolName(*input.Name); err != nil {
			return core.Pool{}, err
		}
		name = *input.Name
	}
	hash := current.AuthenticatorHash
	if input.AuthenticatorHash != nil {
		if *input.AuthenticatorHash == "" {
			return core.Pool{}, core.NewError(core.ErrInvalidArgument, "authenticator hash must not be empty")
		}
		hash = *input.AuthenticatorHash
	}

	doc, err := s.docs.GetOrLoad(id, s.localPeerID)
	if err != nil {
		return core.Pool{}, err
	}
	before := doc.VersionVector()
	now := core.NowMillis()
	doc.SetPoolMeta(name, hash, now, s.localPeerID)
	if err := s.docs.AppendUpdate(id, doc, doc.ExportDelta(before)); err != nil {
		return core.Pool{}, err
	}

	current.Name = name
	current.AuthenticatorHash = hash
	current.UpdatedAt = now
	if err := s.cache.PutPool(current); err != nil {
		return core.Pool{}, err
	}
	return current, nil
}

// AddMember is idempotent by device id (spec §4.3).
func (s *Store) AddMember(poolID uuid.UUID, deviceID, displayName string) (core.Pool, error) {
	current, err := s.Get(poolID)
	if err != nil {
		return core.Pool{}, err
	}

	doc, err := s.docs.GetOrLoad(poolID, s.localPeerID)
	if err != nil {
		return core.Pool{}, err
	}
	before := doc.VersionVector()
	now := core.NowMillis()
	if now <= current.UpdatedAt {
		now = current.UpdatedAt + 1
	}
	doc.PutMember(core.PoolMember{DeviceID: deviceID, DisplayName: displayName, JoinedAt: now}, now, s.localPeerID)
	if err := s.docs.AppendUpdate(poolID, doc, doc.ExportDelta(before)); err != nil {
		return core.Pool{}, err
	}

	current.Members = doc.Members()
	current.UpdatedAt = now
	if err := s.cache.PutPool(current); err != nil {
		return core.Pool{}, err
	}
	return current, nil
}

// RemoveMember is a no-op when the device is not a member (spec §4.3).
func (s *Store) RemoveMember(poolID uuid.UUID, deviceID string) (core.Pool, error) {
	current, err := s.Get(poolID)
	if err != nil {
		return core.Pool{}, err
	}
	if !current.HasMember(deviceID) {
		return current, nil
	}

	doc, err := s.docs.GetOrLoad(poolID, s.localPeerID)
	if err != nil {
		return core.Pool{}, err
	}
	before := doc.VersionVector()
	now := core.NowMillis()
	doc.RemoveMember(deviceID, now, s.localPeerID)
	if err := s.docs.AppendUpdate(poolID, doc, doc.ExportDelta(before)); err != nil {
		return core.Pool{}, err
	}

	current.Members = doc.Members()
	current.UpdatedAt = now
	if err := s.cache.PutPool(current); err != nil {
		return core.Pool{}, err
	}
	return current, nil
}

// AddCard brings cardID into poolID's membership: it is reassigned to
// the pool, replicated into the pool's CRDT document, and — if it
// previously belonged to a different pool — tombstoned out of that
// pool's document. A card already in poolID is left untouched,
// matching the spec's uniqueness guarantee on the card-id list.
//
// The old pool's tombstone is appended first and the new pool's
// active write last, so that if both touch the same card id the
// docstore subscription's final cache write is the correct one: the
// card active under its new pool, not deleted.
func (s *Store) AddCard(poolID, cardID uuid.UUID) error {
	card, err := s.cache.GetCard(cardID)
	if err != nil {
		return err
	}
	if card.Owner == core.OwnerPool && card.PoolID == poolID {
		return nil
	}

	previousPoolID := card.PoolID
	previousOwner := card.Owner

	card.Owner = core.OwnerPool
	card.PoolID = poolID
	card.UpdatedAt = core.NowMillis()
	card.LastEditorPeer = s.localPeerID

	if previousOwner == core.OwnerPool && previousPoolID != poolID {
		oldDoc, err := s.docs.GetOrLoad(previousPoolID, s.localPeerID)
		if err != nil {
			return err
		}
		oldBefore := oldDoc.VersionVector()
		oldDoc.TombstoneCard(cardID, card.UpdatedAt, s.localPeerID)
		if err := s.docs.AppendUpdate(previousPoolID, oldDoc, oldDoc.ExportDelta(oldBefore)); err != nil {
			return err
		}
	}

	doc, err := s.docs.GetOrLoad(poolID, s.localPeerID)
	if err != nil {
		return err
	}
	before := doc.VersionVector()
	doc.PutCard(card)
	return s.docs.AppendUpdate(poolID, doc, doc.ExportDelta(before))
}

// RemoveCard is a no-op when cardID does not currently belong to
// poolID (spec §4.3). Otherwise the card reverts to device-local
// ownership and is tombstoned out of the pool's CRDT document.
//
// The document tombstone and the card's reassignment to local
// ownership are two different facts about the same card id: the
// docstore subscription's write (the card, deleted, as it now reads
// in poolID's document) is superseded here by an explicit write of
// the card's true post-removal state — active, owned locally.
func (s *Store) RemoveCard(poolID, cardID uuid.UUID) error {
	card, err := s.cache.GetCard(cardID)
	if err != nil {
		return err
	}
	if card.Owner != core.OwnerPool || card.PoolID != poolID {
		return nil
	}

	doc, err := s.docs.GetOrLoad(poolID, s.localPeerID)
	if err != nil {
		return err
	}
	before := doc.VersionVector()
	now := core.NowMillis()
	doc.TombstoneCard(cardID, now, s.localPeerID)
	if err := s.docs.AppendUpdate(poolID, doc, doc.ExportDelta(before)); err != nil {
		return err
	}

	card.Owner = core.OwnerLocal
	card.PoolID = uuid.Nil
	card.UpdatedAt = now
	card.LastEditorPeer = s.localPeerID
	return s.cache.PutCard(card)
}

// Delete removes a pool from the cache and discards its on-disk CRDT
// document. Idempotent: deleting an already-absent pool is a no-op.
func (s *Store) Delete(id uuid.UUID) error {
	if err := s.cache.DeletePool(id); err != nil && core.KindOf(err) != core.ErrPoolNotFound {
		return err
	}
	return s.docs.Remove(id)
}
