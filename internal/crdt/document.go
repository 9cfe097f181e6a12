package crdt

import (
	"github.com/cardmind/core/internal/core"
	"github.com/google/uuid"
)

// Document is one Pool's replicated CRDT state: a CardSet plus a tag
// OR-Set per card, and a version vector tracking how many operations
// this replica has applied from each peer. Unlike the teacher's
// Replica (a single Lamport clock shared by all entries), Document
// keeps one counter per peer id so ExportDelta can skip a sync round
// entirely when the remote replica's vector already dominates this
// one; when it does not, ExportDelta resends the full state.
type Document struct {
	PeerID   string
	cards    *CardSet
	tags     map[uuid.UUID]*ORSet
	members  *MemberSet
	meta     poolMeta
	versions map[string]uint64
}

// poolMeta is the LWW-register pair for a Pool's name and authenticator
// hash: the two fields most pools change together (a rename, a password
// rotation), so one timestamp covers both rather than tracking each
// field's own clock.
type poolMeta struct {
	Name              string
	AuthenticatorHash string
	Timestamp         uint64
}

// NewDocument creates an empty document for the local replica peerID.
func NewDocument(peerID string) *Document {
	return &Document{
		PeerID:   peerID,
		cards:    NewCardSet(),
		tags:     make(map[uuid.UUID]*ORSet),
		members:  NewMemberSet(),
		versions: make(map[string]uint64),
	}
}

// SetPoolMeta records a Pool's name/authenticator hash at timestamp,
// last-writer-wins against any prior SetPoolMeta (spec §4.3: a pool's
// modification timestamp updates on any mutation).
func (d *Document) SetPoolMeta(name, authenticatorHash string, timestamp uint64, editorPeer string) {
	if timestamp >= d.meta.Timestamp {
		d.meta = poolMeta{Name: name, AuthenticatorHash: authenticatorHash, Timestamp: timestamp}
	}
	d.bumpVersion(editorPeer)
}

// PoolMeta returns the current name, authenticator hash, and the
// timestamp of the write that produced them.
func (d *Document) PoolMeta() (name, authenticatorHash string, timestamp uint64) {
	return d.meta.Name, d.meta.AuthenticatorHash, d.meta.Timestamp
}

// PutMember adds or updates a pool member, idempotent by device id
// (spec §4.3).
func (d *Document) PutMember(member core.PoolMember, timestamp uint64, editorPeer string) {
	d.members.Put(member, timestamp)
	d.bumpVersion(editorPeer)
}

// RemoveMember is a no-op when deviceID is absent (spec §4.3).
func (d *Document) RemoveMember(deviceID string, timestamp uint64, editorPeer string) {
	d.members.Remove(deviceID, timestamp)
	d.bumpVersion(editorPeer)
}

// Members returns the pool's current, non-removed member list.
func (d *Document) Members() []core.PoolMember {
	return d.members.Elements()
}

// HydrateCard loads a card already persisted in the relational cache
// back into the CRDT, reconstructing deterministic tag tokens so a
// restart does not fabricate new OR-Set adds for existing tags.
func (d *Document) HydrateCard(card core.Card) {
	d.cards.Put(card)
	if len(card.Tags) == 0 {
		return
	}
	tagSet := d.getOrCreateTagSet(card.ID)
	for _, tag := range card.Tags {
		token := uuid.NewSHA1(card.ID, []byte(tag))
		tagSet.AddWithToken(tag, token)
	}
	d.bumpVersion(card.LastEditorPeer)
}

// PutCard records a local or remote write to card, bumping the
// version counter of card.LastEditorPeer (whichever peer that is).
func (d *Document) PutCard(card core.Card) {
	d.cards.Put(card)
	d.bumpVersion(card.LastEditorPeer)
}

// TombstoneCard marks id deleted at timestamp.
func (d *Document) TombstoneCard(id uuid.UUID, timestamp uint64, editorPeer string) {
	d.cards.Tombstone(id, timestamp)
	d.bumpVersion(editorPeer)
}

// AddTag adds tag to card id's OR-Set.
func (d *Document) AddTag(id uuid.UUID, tag, editorPeer string) {
	d.getOrCreateTagSet(id).Add(tag)
	d.bumpVersion(editorPeer)
}

// RemoveTag removes tag from card id's OR-Set.
func (d *Document) RemoveTag(id uuid.UUID, tag, editorPeer string) {
	d.getOrCreateTagSet(id).Remove(tag)
	d.bumpVersion(editorPeer)
}

// GetCard returns a card with its current tag set, or false if unknown
// or tombstoned.
func (d *Document) GetCard(id uuid.UUID) (core.Card, bool) {
	card, ok := d.cards.Lookup(id)
	if !ok {
		return core.Card{}, false
	}
	card.Tags = d.tagsFor(id)
	return card, true
}

// ListCards returns every non-deleted card with its tags populated.
func (d *Document) ListCards() []core.Card {
	elements := d.cards.Elements()
	result := make([]core.Card, len(elements))
	for i, card := range elements {
		card.Tags = d.tagsFor(card.ID)
		result[i] = card
	}
	return result
}

func (d *Document) tagsFor(id uuid.UUID) []string {
	if tagSet, ok := d.tags[id]; ok {
		tags := tagSet.Elements()
		if tags == nil {
			return []string{}
		}
		return tags
	}
	return []string{}
}

func (d *Document) getOrCreateTagSet(id uuid.UUID) *ORSet {
	if tagSet, ok := d.tags[id]; ok {
		return tagSet
	}
	tagSet := NewORSet()
	d.tags[id] = tagSet
	return tagSet
}

func (d *Document) bumpVersion(peerID string) {
	if peerID == "" {
		return
	}
	d.versions[peerID]++
}

// VersionVector returns a copy of this replica's version vector.
func (d *Document) VersionVector() map[string]uint64 {
	out := make(map[string]uint64, len(d.versions))
	for k, v := range d.versions {
		out[k] = v
	}
	return out
}

// Dominates reports whether v dominates other: v[p] >= other[p] for
// every peer p known to other. Used to decide whether a sync round can
// be skipped because the remote is already caught up (spec §4.10).
func Dominates(v, other map[string]uint64) bool {
	for peer, count := range other {
		if v[peer] < count {
			return false
		}
	}
	return true
}

// Delta is the wire payload exported by ExportDelta: either no
// elements at all, or the full card, tag, member and pool-meta state,
// plus the exporting replica's full vector so the requester can record
// what it now has.
type Delta struct {
	Cards    []CardElement             `json:"cards"`
	Tags     map[uuid.UUID]TagSetState `json:"tags"`
	Members  []MemberElement           `json:"members"`
	Meta     poolMeta                  `json:"meta"`
	Versions map[string]uint64         `json:"versions"`
}

// TagSetState is the serializable form of an OR-Set.
type TagSetState struct {
	Adds    []TagToken `json:"adds"`
	Removes []TagToken `json:"removes"`
}

// ExportDelta compares remoteVersion with this replica's whole vector.
// If remoteVersion dominates it, the delta carries no elements, only
// this replica's vector. Otherwise it carries every card element
// (tombstones included), every tag set, every member element and the
// pool meta: per-card origin is not individually versioned, so the
// export is not filtered per peer.
func (d *Document) ExportDelta(remoteVersion map[string]uint64) Delta {
	if Dominates(remoteVersion, d.versions) {
		return Delta{Cards: nil, Tags: map[uuid.UUID]TagSetState{}, Versions: d.VersionVector()}
	}

	cards := d.cards.AllElements()
	tags := make(map[uuid.UUID]TagSetState, len(d.tags))
	for id, tagSet := range d.tags {
		tags[id] = TagSetState{Adds: tagSet.AllAdds(), Removes: tagSet.AllRemoves()}
	}

	return Delta{
		Cards:    cards,
		Tags:     tags,
		Members:  d.members.AllElements(),
		Meta:     d.meta,
		Versions: d.VersionVector(),
	}
}

// ApplyDelta merges a remote delta into this document and folds the
// remote's version vector into the local one, taking the max per peer
// so repeated application from the same source is idempotent.
func (d *Document) ApplyDelta(delta Delta) {
	for _, elem := range delta.Cards {
		d.cards.Put(elem.Card)
		if elem.Deleted {
			d.cards.Tombstone(elem.Card.ID, elem.Timestamp)
		}
	}
	for id, state := range delta.Tags {
		tagSet := d.getOrCreateTagSet(id)
		for _, tt := range state.Adds {
			tagSet.AddWithToken(tt.Tag, tt.Token)
		}
		for _, tt := range state.Removes {
			tagSet.RemoveToken(tt.Token)
		}
	}
	for _, elem := range delta.Members {
		existing, exists := d.members.elements[elem.Member.DeviceID]
		if !exists || memberWins(elem.Timestamp, elem.Member.DeviceID, elem.Removed, existing.Timestamp, elem.Member.DeviceID, existing.Removed) {
			d.members.elements[elem.Member.DeviceID] = elem
		}
	}
	if delta.Meta.Timestamp >= d.meta.Timestamp {
		d.meta = delta.Meta
	}
	for peer, count := range delta.Versions {
		if count > d.versions[peer] {
			d.versions[peer] = count
		}
	}
}

// Merge folds another full Document's state into this one. Used for
// local replica reconciliation (e.g. loading an export bundle), not
// for wire sync — see ApplyDelta for that.
func (d *Document) Merge(other *Document) {
	d.cards.Merge(other.cards)
	for id, otherTagSet := range other.tags {
		if localTagSet, ok := d.tags[id]; ok {
			localTagSet.Merge(otherTagSet)
		} else {
			d.tags[id] = otherTagSet.Clone()
		}
	}
	d.members.Merge(other.members)
	if other.meta.Timestamp >= d.meta.Timestamp {
		d.meta = other.meta
	}
	for peer, count := range other.versions {
		if count > d.versions[peer] {
			d.versions[peer] = count
		}
	}
}

// Clone deep-copies the document.
func (d *Document) Clone() *Document {
	clone := &Document{
		PeerID:   d.PeerID,
		cards:    d.cards.Clone(),
		tags:     make(map[uuid.UUID]*ORSet, len(d.tags)),
		members:  d.members.Clone(),
		meta:     d.meta,
		versions: make(map[string]uint64, len(d.versions)),
	}
	for id, tagSet := range d.tags {
		clone.tags[id] = tagSet.Clone()
	}
	for peer, count := range d.versions {
		clone.versions[peer] = count
	}
	return clone
}

// Size returns the total card-element count including tombstones.
func (d *Document) Size() int { return d.cards.Size() }

// ActiveSize returns the non-deleted card count.
func (d *Document) ActiveSize() int { return d.cards.ActiveSize() }

// Snapshot is the full serializable state of a Document, written to a
// pool's snapshot file by internal/docstore (spec §4.1's "snapshot +
// append-only updates" layout, grounded on original_source's
// CrdtManager.merge_snapshot).
type Snapshot struct {
	PeerID   string                    `json:"peer_id"`
	Cards    []CardElement             `json:"cards"`
	Tags     map[uuid.UUID]TagSetState `json:"tags"`
	Members  []MemberElement           `json:"members"`
	Meta     poolMeta                  `json:"meta"`
	Versions map[string]uint64         `json:"versions"`
}

// TakeSnapshot captures the document's full state for persistence.
func (d *Document) TakeSnapshot() Snapshot {
	tags := make(map[uuid.UUID]TagSetState, len(d.tags))
	for id, tagSet := range d.tags {
		tags[id] = TagSetState{Adds: tagSet.AllAdds(), Removes: tagSet.AllRemoves()}
	}
	return Snapshot{
		PeerID:   d.PeerID,
		Cards:    d.cards.AllElements(),
		Tags:     tags,
		Members:  d.members.AllElements(),
		Meta:     d.meta,
		Versions: d.VersionVector(),
	}
}

// LoadSnapshot reconstructs a Document from a previously taken Snapshot.
func LoadSnapshot(snap Snapshot) *Document {
	d := NewDocument(snap.PeerID)
	for _, elem := range snap.Cards {
		d.cards.Put(elem.Card)
		if elem.Deleted {
			d.cards.Tombstone(elem.Card.ID, elem.Timestamp)
		}
	}
	for id, state := range snap.Tags {
		tagSet := d.getOrCreateTagSet(id)
		for _, tt := range state.Adds {
			tagSet.AddWithToken(tt.Tag, tt.Token)
		}
		for _, tt := range state.Removes {
			// A remove tombstones a token regardless of whether its add
			// was also persisted; write both sides directly so replay
			// order doesn't matter.
			tagSet.adds[tt] = struct{}{}
			tagSet.removes[tt] = struct{}{}
		}
	}
	for _, elem := range snap.Members {
		d.members.elements[elem.Member.DeviceID] = elem
	}
	d.meta = snap.Meta
	for peer, count := range snap.Versions {
		d.versions[peer] = count
	}
	return d
}
