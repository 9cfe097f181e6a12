package card

import (
	"path/filepath"
	"testing"

	"github.com/cardmind/core/internal/cache"
	"github.com/cardmind/core/internal/core"
	"github.com/cardmind/core/internal/docstore"
	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	d, err := docstore.Open(filepath.Join(t.TempDir(), "docs"))
	if err != nil {
		t.Fatalf("docstore.Open: %v", err)
	}
	d.Subscribe(func(_ uuid.UUID, card core.Card) { c.PutCard(card) })
	return New(c, d, "peer1")
}

func TestCreateLocalCard(t *testing.T) {
	s := newTestStore(t)
	c, err := s.CreateLocal("Groceries", "milk")
	if err != nil {
		t.Fatalf("CreateLocal: %v", err)
	}
	if c.Owner != core.OwnerLocal {
		t.Error("expected a local-owned card")
	}

	got, err := s.Get(c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Groceries" {
		t.Errorf("title mismatch: %q", got.Title)
	}
}

func TestCreatePoolCardReplicatesIntoDocument(t *testing.T) {
	s := newTestStore(t)
	poolID := uuid.Must(uuid.NewV7())

	c, err := s.CreatePool(poolID, "Shared note", "body")
	if err != nil {
		t.Fatalf("CreatePool: %v", err)
	}
	if c.Owner != core.OwnerPool || c.PoolID != poolID {
		t.Error("expected a pool-owned card with the given pool id")
	}

	doc, err := s.docs.GetOrLoad(poolID, "peer1")
	if err != nil {
		t.Fatalf("GetOrLoad: %v", err)
	}
	if _, ok := doc.GetCard(c.ID); !ok {
		t.Error("pool card should be present in the pool's CRDT document")
	}
}

func TestUpdateLocalCard(t *testing.T) {
	s := newTestStore(t)
	c, _ := s.CreateLocal("Old title", "body")

	newTitle := "New title"
	updated, err := s.Update(c.ID, UpdateInput{Title: &newTitle})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "New title" {
		t.Errorf("expected updated title, got %q", updated.Title)
	}
	if updated.UpdatedAt < c.UpdatedAt {
		t.Error("updated_at must not go backwards")
	}
}

func TestUpdatePoolCardPropagatesToDocument(t *testing.T) {
	s := newTestStore(t)
	poolID := uuid.Must(uuid.NewV7())
	c, _ := s.CreatePool(poolID, "Title", "body")

	newBody := "revised body"
	if _, err := s.Update(c.ID, UpdateInput{Body: &newBody}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	doc, _ := s.docs.GetOrLoad(poolID, "peer1")
	got, ok := doc.GetCard(c.ID)
	if !ok {
		t.Fatal("card should still exist in the document")
	}
	if got.Body != "revised body" {
		t.Errorf("expected the document to reflect the update, got %q", got.Body)
	}
}

func TestUpdateRejectsInvalidTitle(t *testing.T) {
	s := newTestStore(t)
	c, _ := s.CreateLocal("Title", "body")

	empty := ""
	if _, err := s.Update(c.ID, UpdateInput{Title: &empty}); err == nil {
		t.Error("expected validation error for empty title")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	c, _ := s.CreateLocal("Title", "body")

	if err := s.Delete(c.ID); err != nil {
		t.Fatalf("first Delete: %v", err)
	}
	if err := s.Delete(c.ID); err != nil {
		t.Fatalf("second Delete should be a no-op, got: %v", err)
	}

	if _, err := s.Get(c.ID); core.KindOf(err) != core.ErrNotFound {
		t.Error("deleted card should not be retrievable")
	}
}

func TestDeletePoolCardTombstonesDocument(t *testing.T) {
	s := newTestStore(t)
	poolID := uuid.Must(uuid.NewV7())
	c, _ := s.CreatePool(poolID, "Title", "body")

	if err := s.Delete(c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	doc, _ := s.docs.GetOrLoad(poolID, "peer1")
	if _, ok := doc.GetCard(c.ID); ok {
		t.Error("tombstoned card should no longer be retrievable from the document")
	}
}

func TestRestoreLocalCardIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	c, _ := s.CreateLocal("Title", "body")

	if err := s.Delete(c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	restored, err := s.Restore(c.ID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.Deleted {
		t.Error("restored card should no longer be deleted")
	}

	got, err := s.Get(c.ID)
	if err != nil {
		t.Fatalf("Get after restore: %v", err)
	}
	if got.Title != "Title" {
		t.Errorf("title mismatch after restore: %q", got.Title)
	}

	again, err := s.Restore(c.ID)
	if err != nil {
		t.Fatalf("second Restore should be a no-op, got: %v", err)
	}
	if again.Deleted {
		t.Error("restoring an already-active card should stay active")
	}
}

func TestRestorePoolCardReappearsInDocument(t *testing.T) {
	s := newTestStore(t)
	poolID := uuid.Must(uuid.NewV7())
	c, _ := s.CreatePool(poolID, "Title", "body")

	if err := s.Delete(c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	doc, _ := s.docs.GetOrLoad(poolID, "peer1")
	if _, ok := doc.GetCard(c.ID); ok {
		t.Fatal("card should be tombstoned in the document before restore")
	}

	if _, err := s.Restore(c.ID); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if _, ok := doc.GetCard(c.ID); !ok {
		t.Error("restored card should be active again in the document")
	}
	got, err := s.Get(c.ID)
	if err != nil {
		t.Fatalf("Get after restore: %v", err)
	}
	if got.Deleted {
		t.Error("restored card should not read as deleted from the cache")
	}
}

func TestRestoreDoesNotReassignLastEditorPeer(t *testing.T) {
	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	d, err := docstore.Open(filepath.Join(t.TempDir(), "docs"))
	if err != nil {
		t.Fatalf("docstore.Open: %v", err)
	}

	owner := New(c, d, "peer-owner")
	created, err := owner.CreateLocal("Title", "body")
	if err != nil {
		t.Fatalf("CreateLocal: %v", err)
	}
	if created.LastEditorPeer != "peer-owner" {
		t.Fatalf("expected creation to record the creating peer, got %q", created.LastEditorPeer)
	}

	deleter := New(c, d, "peer-deleter")
	if err := deleter.Delete(created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	restorer := New(c, d, "peer-restorer")
	restored, err := restorer.Restore(created.ID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.UpdatedAt < created.UpdatedAt {
		t.Error("restore must advance updated_at")
	}
	if restored.LastEditorPeer != "peer-owner" {
		t.Errorf("restore must not reassign last_editor_peer, got %q", restored.LastEditorPeer)
	}
}

func TestListFiltersByOwnerPool(t *testing.T) {
	s := newTestStore(t)
	poolID := uuid.Must(uuid.NewV7())
	s.CreateLocal("Local", "body")
	s.CreatePool(poolID, "Pool", "body")

	cards, err := s.List(cache.CardFilter{PoolID: &poolID})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(cards) != 1 {
		t.Errorf("expected exactly 1 pool card, got %d", len(cards))
	}
}
