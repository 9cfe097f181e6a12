// Package crdt implements the conflict-free replicated data types that
// back a Pool's document: a Last-Writer-Wins set of Cards, an
// Observed-Remove set of tags per card, and a version vector used to
// compute delta exports between replicas (spec §4.1).
package crdt

import (
	"github.com/cardmind/core/internal/core"
	"github.com/google/uuid"
)

// CardElement is one element of the CardSet: a Card plus the metadata
// used to resolve concurrent writes.
type CardElement struct {
	Card      core.Card
	Timestamp uint64 // equal to Card.UpdatedAt, kept alongside for tombstones
	Deleted   bool
}

// CardSet is a Last-Writer-Wins Element Set of Cards, keyed by card
// id. On merge, the element with the highest timestamp wins; ties are
// broken by deleted-wins, then by higher id string (grounded on the
// teacher's LWWSet tie-break rule).
type CardSet struct {
	elements map[uuid.UUID]CardElement
}

// NewCardSet creates an empty CardSet.
func NewCardSet() *CardSet {
	return &CardSet{elements: make(map[uuid.UUID]CardElement)}
}

// Put inserts or updates a card. A no-op if an existing element has a
// strictly higher timestamp, or an equal timestamp and a higher id.
func (s *CardSet) Put(card core.Card) {
	existing, exists := s.elements[card.ID]
	if !exists || wins(card.UpdatedAt, card.ID, card.Deleted, existing.Timestamp, existing.Card.ID, existing.Deleted) {
		s.elements[card.ID] = CardElement{
			Card:      card.Clone(),
			Timestamp: card.UpdatedAt,
			Deleted:   card.Deleted,
		}
	}
}

// Tombstone marks a card deleted at the given timestamp. Creates a
// tombstone for an unknown id so delete-before-sync is still
// representable once the create arrives.
func (s *CardSet) Tombstone(id uuid.UUID, timestamp uint64) {
	existing, exists := s.elements[id]
	if !exists {
		s.elements[id] = CardElement{
			Card:      core.Card{ID: id, Deleted: true, UpdatedAt: timestamp},
			Timestamp: timestamp,
			Deleted:   true,
		}
		return
	}
	if timestamp > existing.Timestamp || (timestamp == existing.Timestamp && !existing.Deleted) {
		existing.Card.Deleted = true
		existing.Card.UpdatedAt = timestamp
		existing.Timestamp = timestamp
		existing.Deleted = true
		s.elements[id] = existing
	}
}

// Lookup returns a non-deleted card by id.
func (s *CardSet) Lookup(id uuid.UUID) (core.Card, bool) {
	elem, exists := s.elements[id]
	if !exists || elem.Deleted {
		return core.Card{}, false
	}
	return elem.Card.Clone(), true
}

// LookupWithTombstone returns a card regardless of deletion state.
func (s *CardSet) LookupWithTombstone(id uuid.UUID) (core.Card, bool) {
	elem, exists := s.elements[id]
	if !exists {
		return core.Card{}, false
	}
	return elem.Card.Clone(), true
}

// Elements returns all non-deleted cards.
func (s *CardSet) Elements() []core.Card {
	result := make([]core.Card, 0, len(s.elements))
	for _, elem := range s.elements {
		if !elem.Deleted {
			result = append(result, elem.Card.Clone())
		}
	}
	return result
}

// AllElements returns every element, including tombstones.
func (s *CardSet) AllElements() []CardElement {
	result := make([]CardElement, 0, len(s.elements))
	for _, elem := range s.elements {
		result = append(result, elem)
	}
	return result
}

// Merge merges other into s in place. Commutative, associative, idempotent.
func (s *CardSet) Merge(other *CardSet) {
	for id, otherElem := range other.elements {
		existing, exists := s.elements[id]
		if !exists || wins(otherElem.Timestamp, otherElem.Card.ID, otherElem.Deleted, existing.Timestamp, existing.Card.ID, existing.Deleted) {
			s.elements[id] = CardElement{
				Card:      otherElem.Card.Clone(),
				Timestamp: otherElem.Timestamp,
				Deleted:   otherElem.Deleted,
			}
		}
	}
}

// Clone deep-copies the set.
func (s *CardSet) Clone() *CardSet {
	clone := NewCardSet()
	for id, elem := range s.elements {
		clone.elements[id] = CardElement{Card: elem.Card.Clone(), Timestamp: elem.Timestamp, Deleted: elem.Deleted}
	}
	return clone
}

// Size returns the element count including tombstones.
func (s *CardSet) Size() int { return len(s.elements) }

// ActiveSize returns the non-deleted element count.
func (s *CardSet) ActiveSize() int {
	n := 0
	for _, elem := range s.elements {
		if !elem.Deleted {
			n++
		}
	}
	return n
}

// wins reports whether the challenger (ts, id, deleted) should replace
// the incumbent under the LWW tie-break rule: higher timestamp wins;
// on a tie, deleted beats not-deleted; on a further tie, higher id wins.
func wins(ts uint64, id uuid.UUID, deleted bool, incumbentTS uint64, incumbentID uuid.UUID, incumbentDeleted bool) bool {
	if ts != incumbentTS {
		return ts > incumbentTS
	}
	if deleted != incumbentDeleted {
		return deleted
	}
	if deleted {
		return false // both tombstoned at the same timestamp, nothing to prefer
	}
	return id.String() > incumbentID.String()
}
