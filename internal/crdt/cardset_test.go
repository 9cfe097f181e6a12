package crdt

import (
	"testing"

	"github.com/cardmind/core/internal/core"
	"github.com/google/uuid"
)

func newTestCard(t *testing.T, title string) core.Card {
	t.Helper()
	c, err := core.NewCard(title, "body", "peer1")
	if err != nil {
		t.Fatalf("NewCard: %v", err)
	}
	return c
}

func TestCardSetPutAndLookup(t *testing.T) {
	s := NewCardSet()
	c := newTestCard(t, "Groceries")
	s.Put(c)

	got, ok := s.Lookup(c.ID)
	if !ok {
		t.Fatal("card should exist")
	}
	if got.Title != "Groceries" {
		t.Errorf("title mismatch: %q", got.Title)
	}
}

func TestCardSetHigherTimestampWins(t *testing.T) {
	s := NewCardSet()
	id := uuid.Must(uuid.NewV7())

	older := core.Card{ID: id, Title: "old", Body: "b", UpdatedAt: 1}
	newer := core.Card{ID: id, Title: "new", Body: "b", UpdatedAt: 2}

	s.Put(older)
	s.Put(newer)
	got, _ := s.Lookup(id)
	if got.Title != "new" {
		t.Errorf("expected higher timestamp to win, got %q", got.Title)
	}

	s.Put(core.Card{ID: id, Title: "stale", Body: "b", UpdatedAt: 1})
	got, _ = s.Lookup(id)
	if got.Title != "new" {
		t.Errorf("older timestamp must not overwrite, got %q", got.Title)
	}
}

func TestCardSetMergeTieBreakByID(t *testing.T) {
	idLow := uuid.MustParse("00000000-0000-7000-8000-000000000001")
	idHigh := uuid.MustParse("00000000-0000-7000-8000-000000000002")

	a := NewCardSet()
	b := NewCardSet()
	a.Put(core.Card{ID: idLow, Title: "from-a", UpdatedAt: 5})
	b.Put(core.Card{ID: idHigh, Title: "from-b", UpdatedAt: 5})

	// Re-key both elements under the same id to force a real tie on merge.
	a.elements[idLow] = CardElement{Card: core.Card{ID: idLow, Title: "from-a", UpdatedAt: 5}, Timestamp: 5}
	b.elements[idLow] = CardElement{Card: core.Card{ID: idHigh, Title: "from-b", UpdatedAt: 5}, Timestamp: 5}

	a.Merge(b)
	got, _ := a.Lookup(idLow)
	if got.Title != "from-b" {
		t.Errorf("equal timestamp tie should favor the higher id, got %q", got.Title)
	}
}

func TestCardSetTombstone(t *testing.T) {
	s := NewCardSet()
	c := newTestCard(t, "Groceries")
	s.Put(c)

	s.Tombstone(c.ID, c.UpdatedAt+1)

	if _, ok := s.Lookup(c.ID); ok {
		t.Error("card should be gone after tombstone")
	}
	tombstoned, ok := s.LookupWithTombstone(c.ID)
	if !ok || !tombstoned.Deleted {
		t.Error("tombstone should be retrievable and marked deleted")
	}
}

func TestCardSetTombstoneUnknownID(t *testing.T) {
	s := NewCardSet()
	id := uuid.Must(uuid.NewV7())
	s.Tombstone(id, 100)

	tombstoned, ok := s.LookupWithTombstone(id)
	if !ok || !tombstoned.Deleted {
		t.Error("tombstoning an unknown id should create a tombstone")
	}
}

func TestCardSetMergeIsCommutative(t *testing.T) {
	a := NewCardSet()
	b := NewCardSet()

	c1 := newTestCard(t, "A")
	c2 := newTestCard(t, "B")
	a.Put(c1)
	b.Put(c2)

	ab := a.Clone()
	ab.Merge(b)
	ba := b.Clone()
	ba.Merge(a)

	if ab.Size() != ba.Size() {
		t.Fatalf("merge should be commutative in size: %d vs %d", ab.Size(), ba.Size())
	}
	if _, ok := ab.Lookup(c1.ID); !ok {
		t.Error("merged set A∪B must contain c1")
	}
	if _, ok := ba.Lookup(c2.ID); !ok {
		t.Error("merged set B∪A must contain c2")
	}
}

func TestCardSetMergeIdempotent(t *testing.T) {
	a := NewCardSet()
	a.Put(newTestCard(t, "A"))

	before := a.Clone()
	a.Merge(before)

	if a.Size() != before.Size() {
		t.Error("merging a set with itself must not change its size")
	}
}

func TestCardSetActiveSize(t *testing.T) {
	s := NewCardSet()
	c1 := newTestCard(t, "A")
	c2 := newTestCard(t, "B")
	s.Put(c1)
	s.Put(c2)
	s.Tombstone(c1.ID, c1.UpdatedAt+1)

	if s.Size() != 2 {
		t.Errorf("expected 2 total elements, got %d", s.Size())
	}
	if s.ActiveSize() != 1 {
		t.Errorf("expected 1 active element, got %d", s.ActiveSize())
	}
}

func TestCardSetCloneIsDeep(t *testing.T) {
	s := NewCardSet()
	c := newTestCard(t, "A")
	s.Put(c)

	clone := s.Clone()
	mutated := c
	mutated.Title = "mutated"
	clone.Put(mutated)

	got, _ := s.Lookup(c.ID)
	if got.Title == "mutated" {
		t.Error("Clone must not share state with the original")
	}
}
