package exportimport

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/cardmind/core/internal/cache"
	"github.com/cardmind/core/internal/card"
	"github.com/cardmind/core/internal/core"
	"github.com/cardmind/core/internal/docstore"
	"github.com/google/uuid"
)

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func newTestCardStore(t *testing.T, c *cache.Cache) *card.Store {
	t.Helper()
	d, err := docstore.Open(filepath.Join(t.TempDir(), "docs"))
	if err != nil {
		t.Fatalf("docstore.Open: %v", err)
	}
	d.Subscribe(func(_ uuid.UUID, card core.Card) { c.PutCard(card) })
	return card.New(c, d, "peer1")
}

func TestExportAllProducesJSONArray(t *testing.T) {
	c := newTestCache(t)
	cards := newTestCardStore(t, c)

	if _, err := cards.CreateLocal("Groceries", "milk"); err != nil {
		t.Fatalf("CreateLocal: %v", err)
	}
	if _, err := cards.CreateLocal("Todo", "laundry"); err != nil {
		t.Fatalf("CreateLocal: %v", err)
	}

	var buf bytes.Buffer
	if err := NewExporter(c).ExportAll(&buf); err != nil {
		t.Fatalf("ExportAll: %v", err)
	}

	var got Bundle
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 exported cards, got %d", len(got))
	}
}

func TestImportAllCreatesUnknownIDs(t *testing.T) {
	c := newTestCache(t)
	newCard, err := core.NewCard("Imported", "body text", "peer2")
	if err != nil {
		t.Fatalf("NewCard: %v", err)
	}
	body, err := json.Marshal(Bundle{newCard})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	result, err := NewImporter(c).ImportAll(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("ImportAll: %v", err)
	}
	if result.Created != 1 {
		t.Errorf("expected 1 created, got %+v", result)
	}

	got, err := c.GetCard(newCard.ID)
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if got.Title != "Imported" {
		t.Errorf("expected imported card to be stored, got %+v", got)
	}
}

func TestImportAllReplacesNewerCard(t *testing.T) {
	c := newTestCache(t)
	cards := newTestCardStore(t, c)

	local, err := cards.CreateLocal("Original title", "original body")
	if err != nil {
		t.Fatalf("CreateLocal: %v", err)
	}

	newer := local.Clone()
	newer.Body = "newer body"
	newer.UpdatedAt = local.UpdatedAt + 1000

	body, err := json.Marshal(Bundle{newer})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	result, err := NewImporter(c).ImportAll(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("ImportAll: %v", err)
	}
	if result.Replaced != 1 {
		t.Errorf("expected 1 replaced, got %+v", result)
	}

	got, err := c.GetCard(local.ID)
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if got.Body != "newer body" {
		t.Errorf("expected body to be replaced, got %q", got.Body)
	}
}

func TestImportAllKeepsOlderCard(t *testing.T) {
	c := newTestCache(t)
	cards := newTestCardStore(t, c)

	local, err := cards.CreateLocal("Original title", "original body")
	if err != nil {
		t.Fatalf("CreateLocal: %v", err)
	}

	older := local.Clone()
	older.Body = "stale body"
	older.UpdatedAt = local.UpdatedAt - 1000

	body, err := json.Marshal(Bundle{older})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	result, err := NewImporter(c).ImportAll(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("ImportAll: %v", err)
	}
	if result.Kept != 1 {
		t.Errorf("expected 1 kept, got %+v", result)
	}

	got, err := c.GetCard(local.ID)
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if got.Body != "original body" {
		t.Errorf("expected local body to survive, got %q", got.Body)
	}
}

func TestImportAllTombstonesNewerDeletedCard(t *testing.T) {
	c := newTestCache(t)
	cards := newTestCardStore(t, c)

	local, err := cards.CreateLocal("Original title", "original body")
	if err != nil {
		t.Fatalf("CreateLocal: %v", err)
	}

	tombstone := local.Clone()
	tombstone.Deleted = true
	tombstone.UpdatedAt = local.UpdatedAt + 1000

	body, err := json.Marshal(Bundle{tombstone})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	result, err := NewImporter(c).ImportAll(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("ImportAll: %v", err)
	}
	if result.Tombstoned != 1 {
		t.Errorf("expected 1 tombstoned, got %+v", result)
	}

	if _, err := cards.Get(local.ID); core.KindOf(err) != core.ErrNotFound {
		t.Errorf("expected tombstoned card to read as not found, got %v", err)
	}
}

func TestImportAllRejectsOversizedPayload(t *testing.T) {
	c := newTestCache(t)
	oversized := bytes.Repeat([]byte("a"), MaxImportBytes+1)

	_, err := NewImporter(c).ImportAll(bytes.NewReader(oversized))
	if core.KindOf(err) != core.ErrInvalidArgument {
		t.Errorf("expected invalid_argument for oversized payload, got %v", err)
	}
}

func TestImportAllRejectsInvalidJSON(t *testing.T) {
	c := newTestCache(t)
	_, err := NewImporter(c).ImportAll(bytes.NewReader([]byte("not json")))
	if core.KindOf(err) != core.ErrInvalidArgument {
		t.Errorf("expected invalid_argument for malformed JSON, got %v", err)
	}
}
