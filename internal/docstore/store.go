// Package docstore persists each Pool's CRDT document to disk as a
// snapshot file plus an append-only updates file, mirroring the
// on-disk layout of original_source's CrdtManager (rust/src/crdt/mod.rs)
// adapted to the teacher's plain os/fs idiom (internal/storage).
package docstore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cardmind/core/internal/core"
	"github.com/cardmind/core/internal/crdt"
	"github.com/google/uuid"
)

// CompactionThreshold is the updates-file size, in bytes, above which
// Persist folds pending updates into a fresh snapshot and truncates
// the updates file (spec §4.1, matching original_source's 10MB bound).
const CompactionThreshold = 10 * 1024 * 1024

const (
	snapshotFile = "snapshot.json"
	updatesFile  = "updates.jsonl"
)

// CardObserver is notified with every card touched by a delta —
// created, updated, or tombstoned — immediately after AppendUpdate
// durably records it. This is the single choke point spec §4.2
// requires between the CRDT layer and any cache built over it: a
// cache should never be written to directly from outside this
// callback for pool-owned data (spec §4.2).
type CardObserver func(poolID uuid.UUID, card core.Card)

// Store manages on-disk Documents, one directory per pool, keyed by
// URL-safe-no-pad base64 of the pool id.
type Store struct {
	root string

	mu        sync.RWMutex
	active    map[uuid.UUID]*crdt.Document
	observers []CardObserver
}

// Open ensures root exists and returns a Store rooted there.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, core.WrapError(core.ErrIO, "creating docstore root", err)
	}
	return &Store{root: root, active: make(map[uuid.UUID]*crdt.Document)}, nil
}

func encodeID(id uuid.UUID) string {
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(id[:])
}

func (s *Store) docDir(poolID uuid.UUID) string {
	return filepath.Join(s.root, encodeID(poolID))
}

// Exists reports whether poolID has a document either cached in memory
// or already persisted to disk, without creating one as a side effect
// (unlike GetOrLoad). Used by internal/pool to distinguish "unknown
// pool" from a plain cache miss on the relational read path.
func (s *Store) Exists(poolID uuid.UUID) bool {
	s.mu.RLock()
	_, cached := s.active[poolID]
	s.mu.RUnlock()
	if cached {
		return true
	}
	_, err := os.Stat(s.docDir(poolID))
	return err == nil
}

// GetOrLoad returns the cached Document for poolID, loading it from
// disk (snapshot then replayed updates) on first access. peerID seeds
// a brand-new document when no snapshot exists yet.
func (s *Store) GetOrLoad(poolID uuid.UUID, peerID string) (*crdt.Document, error) {
	s.mu.RLock()
	if doc, ok := s.active[poolID]; ok {
		s.mu.RUnlock()
		return doc, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.active[poolID]; ok {
		return doc, nil
	}

	doc, err := s.loadFromDisk(poolID, peerID)
	if err != nil {
		return nil, err
	}
	s.active[poolID] = doc
	return doc, nil
}

func (s *Store) loadFromDisk(poolID uuid.UUID, peerID string) (*crdt.Document, error) {
	dir := s.docDir(poolID)

	snapPath := filepath.Join(dir, snapshotFile)
	var doc *crdt.Document
	if raw, err := os.ReadFile(snapPath); err == nil {
		var snap crdt.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, core.WrapError(core.ErrIO, "decoding snapshot for "+poolID.String(), err)
		}
		doc = crdt.LoadSnapshot(snap)
	} else if os.IsNotExist(err) {
		doc = crdt.NewDocument(peerID)
	} else {
		return nil, core.WrapError(core.ErrIO, "reading snapshot for "+poolID.String(), err)
	}

	updatesPath := filepath.Join(dir, updatesFile)
	raw, err := os.ReadFile(updatesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return nil, core.WrapError(core.ErrIO, "reading updates for "+poolID.String(), err)
	}
	for _, line := range splitLines(raw) {
		if len(line) == 0 {
			continue
		}
		var delta crdt.Delta
		if err := json.Unmarshal(line, &delta); err != nil {
			return nil, core.WrapError(core.ErrIO, "decoding update for "+poolID.String(), err)
		}
		doc.ApplyDelta(delta)
	}
	return doc, nil
}

func splitLines(raw []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range raw {
		if b == '\n' {
			lines = append(lines, raw[start:i])
			start = i + 1
		}
	}
	if start < len(raw) {
		lines = append(lines, raw[start:])
	}
	return lines
}

// AppendUpdate appends delta to poolID's updates file, compacts into a
// fresh snapshot once the file crosses CompactionThreshold, then
// notifies every subscriber with the cards delta touched. doc must be
// the document delta was exported from (or already applied to) — it
// is used only to resolve each touched card's current tag state for
// subscribers, never mutated here.
func (s *Store) AppendUpdate(poolID uuid.UUID, doc *crdt.Document, delta crdt.Delta) error {
	dir := s.docDir(poolID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return core.WrapError(core.ErrIO, "creating doc dir for "+poolID.String(), err)
	}

	line, err := json.Marshal(delta)
	if err != nil {
		return core.WrapError(core.ErrIO, "encoding update for "+poolID.String(), err)
	}
	line = append(line, '\n')

	updatesPath := filepath.Join(dir, updatesFile)
	f, err := os.OpenFile(updatesPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return core.WrapError(core.ErrIO, "opening updates file for "+poolID.String(), err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return core.WrapError(core.ErrIO, "appending update for "+poolID.String(), err)
	}

	if err := s.compactIfNeeded(poolID, updatesPath); err != nil {
		return err
	}
	s.notify(poolID, doc, delta)
	return nil
}

// Subscribe registers obs to be called with every card a future
// AppendUpdate touches, across every pool this Store manages. Returns
// an unsubscribe func.
func (s *Store) Subscribe(obs CardObserver) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, obs)
	idx := len(s.observers) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.observers[idx] = nil
	}
}

// notify resolves each card delta touched to its post-mutation state
// (tags included, for cards still live) and hands it to every
// subscriber in turn.
func (s *Store) notify(poolID uuid.UUID, doc *crdt.Document, delta crdt.Delta) {
	if len(delta.Cards) == 0 {
		return
	}
	s.mu.RLock()
	observers := append([]CardObserver(nil), s.observers...)
	s.mu.RUnlock()
	if len(observers) == 0 {
		return
	}

	for _, elem := range delta.Cards {
		card := elem.Card
		card.Deleted = elem.Deleted
		if !elem.Deleted {
			if fresh, ok := doc.GetCard(elem.Card.ID); ok {
				card = fresh
			}
		}
		for _, obs := range observers {
			if obs != nil {
				obs(poolID, card)
			}
		}
	}
}

func (s *Store) compactIfNeeded(poolID uuid.UUID, updatesPath string) error {
	info, err := os.Stat(updatesPath)
	if err != nil {
		return core.WrapError(core.ErrIO, "statting updates file for "+poolID.String(), err)
	}
	if info.Size() <= CompactionThreshold {
		return nil
	}

	s.mu.RLock()
	doc, ok := s.active[poolID]
	s.mu.RUnlock()
	if !ok {
		return nil // nothing cached yet to compact against; next load will catch up
	}
	return s.Persist(poolID, doc)
}

// Persist writes a full snapshot of doc and truncates the updates
// file, the on-disk equivalent of the CRDT layer's Document.Clone +
// checkpoint (grounded on original_source's merge_snapshot).
func (s *Store) Persist(poolID uuid.UUID, doc *crdt.Document) error {
	dir := s.docDir(poolID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return core.WrapError(core.ErrIO, "creating doc dir for "+poolID.String(), err)
	}

	raw, err := json.Marshal(doc.TakeSnapshot())
	if err != nil {
		return core.WrapError(core.ErrIO, "encoding snapshot for "+poolID.String(), err)
	}

	snapPath := filepath.Join(dir, snapshotFile)
	tmpPath := snapPath + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return core.WrapError(core.ErrIO, "writing snapshot for "+poolID.String(), err)
	}
	if err := os.Rename(tmpPath, snapPath); err != nil {
		return core.WrapError(core.ErrIO, "committing snapshot for "+poolID.String(), err)
	}

	updatesPath := filepath.Join(dir, updatesFile)
	if err := os.WriteFile(updatesPath, nil, 0o600); err != nil {
		return core.WrapError(core.ErrIO, "truncating updates for "+poolID.String(), err)
	}

	s.mu.Lock()
	s.active[poolID] = doc
	s.mu.Unlock()
	return nil
}

// Remove deletes poolID's cached document and its on-disk directory,
// used when a device leaves a pool (spec §4.4).
func (s *Store) Remove(poolID uuid.UUID) error {
	s.mu.Lock()
	delete(s.active, poolID)
	s.mu.Unlock()

	if err := os.RemoveAll(s.docDir(poolID)); err != nil {
		return core.WrapError(core.ErrIO, "removing doc dir for "+poolID.String(), err)
	}
	return nil
}

// ListPoolIDs returns the id of every pool with a document on disk,
// whether or not it is currently loaded in memory. Used by
// internal/cache to enumerate what a cache rebuild must replay.
func (s *Store) ListPoolIDs() ([]uuid.UUID, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, core.WrapError(core.ErrIO, "listing docstore root", err)
	}

	ids := make([]uuid.UUID, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		raw, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(entry.Name())
		if err != nil || len(raw) != 16 {
			continue // not a pool directory this Store created
		}
		id, err := uuid.FromBytes(raw)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// UpdatesSize reports the current size, in bytes, of poolID's updates
// file (zero when the file does not exist).
func (s *Store) UpdatesSize(poolID uuid.UUID) (int64, error) {
	info, err := os.Stat(filepath.Join(s.docDir(poolID), updatesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("statting updates file: %w", err)
	}
	return info.Size(), nil
}
