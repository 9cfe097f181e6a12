// Package exportimport implements the bulk JSON export/import surface
// named (but left abstract) by the boundary contract (spec §6): export
// every card as a JSON array, and import a JSON array back in with a
// per-id, last-write-wins merge on modification timestamp. Grounded on
// the teacher's internal/importer/importer.go (ExportData/ExportEntry
// JSON shape, json.NewEncoder with two-space indent) and
// internal/vault/manager.go's read-whole-file/json.Unmarshal round
// trip, generalized from the teacher's heterogeneous entry types and
// multi-format (JSON/CSV/Markdown) support to this core's single
// card-shaped JSON array and its timestamp-merge policy.
package exportimport

import (
	"encoding/json"
	"io"

	"github.com/cardmind/core/internal/cache"
	"github.com/cardmind/core/internal/core"
)

// MaxImportBytes bounds the size of an import payload (spec §6:
// "Import is bounded (100 MiB); exceeding is rejected").
const MaxImportBytes = 100 * 1024 * 1024

// Bundle is the on-the-wire shape of a bulk export: a bare JSON array
// of cards, matching spec §6 exactly ("a JSON array of card records
// whose fields match §3") rather than the teacher's enveloped
// ExportData{Version, ExportedAt, EntryCount, Entries}.
type Bundle = []core.Card

// ImportResult summarizes what an import did, mirroring the shape of
// the teacher's importer.ImportResult but with this core's merge
// outcomes instead of read/skip/fail counts.
type ImportResult struct {
	Created    int `json:"created"`
	Replaced   int `json:"replaced"`
	Tombstoned int `json:"tombstoned"`
	Kept       int `json:"kept"`
}

// Exporter exports every card visible to a device — local and every
// pool it belongs to — as a single JSON array.
type Exporter struct {
	cache *cache.Cache
}

// NewExporter builds an Exporter over an already-open cache.
func NewExporter(c *cache.Cache) *Exporter {
	return &Exporter{cache: c}
}

// ExportAll writes every non-deleted card as a JSON array to w, two
// spaces indented, matching the teacher's ExportToJSON formatting.
func (e *Exporter) ExportAll(w io.Writer) error {
	cards, err := e.cache.ListCards(cache.CardFilter{})
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(Bundle(cards)); err != nil {
		return core.WrapError(core.ErrIO, "encoding export bundle", err)
	}
	return nil
}

// Importer merges a bulk JSON array of cards into local storage.
type Importer struct {
	cache *cache.Cache
}

// NewImporter builds an Importer over an already-open cache.
func NewImporter(c *cache.Cache) *Importer {
	return &Importer{cache: c}
}

// ImportAll reads a JSON array of cards from r and merges it into
// local storage per spec §6's policy: per id, if the imported card's
// UpdatedAt is strictly greater than the local one, replace; if the
// imported card is tombstoned and the local one is not, soft-delete;
// otherwise keep local; unknown ids are created as-is.
//
// Import writes only the flat card row — a pool-owned card imported
// this way is not replayed through its CRDT document, matching the
// teacher's import path writing directly to storage rather than
// through engine validation. A restored card only rejoins its pool's
// live document on the next local edit or inbound sync.
func (i *Importer) ImportAll(r io.Reader) (ImportResult, error) {
	limited := io.LimitReader(r, MaxImportBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return ImportResult{}, core.WrapError(core.ErrIO, "reading import payload", err)
	}
	if len(data) > MaxImportBytes {
		return ImportResult{}, core.NewError(core.ErrInvalidArgument, "import payload exceeds 100 MiB")
	}

	var incoming Bundle
	if err := json.Unmarshal(data, &incoming); err != nil {
		return ImportResult{}, core.WrapError(core.ErrInvalidArgument, "invalid import JSON", err)
	}

	var result ImportResult
	for _, in := range incoming {
		if err := core.ValidateTitle(in.Title); !in.Deleted && err != nil {
			return result, err
		}

		local, err := i.cache.GetCard(in.ID)
		if err != nil {
			if core.KindOf(err) != core.ErrNotFound {
				return result, err
			}
			if err := i.cache.PutCard(in); err != nil {
				return result, err
			}
			result.Created++
			continue
		}

		switch {
		case in.UpdatedAt > local.UpdatedAt:
			if err := i.cache.PutCard(in); err != nil {
				return result, err
			}
			if in.Deleted && !local.Deleted {
				result.Tombstoned++
			} else {
				result.Replaced++
			}
		case in.Deleted && !local.Deleted:
			local.Deleted = true
			if err := i.cache.PutCard(local); err != nil {
				return result, err
			}
			result.Tombstoned++
		default:
			result.Kept++
		}
	}

	return result, nil
}
