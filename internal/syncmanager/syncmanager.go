// Package syncmanager implements the server side (authorize, then
// export a delta) and client side (apply an incoming delta, then
// acknowledge) of the sync protocol (spec §4.10), grounded on the
// teacher's handleStream (the authorize-then-respond shape,
// internal/sync/p2p.go) and EngineAdapter.ApplyState
// (internal/sync/adapter.go), generalized from the teacher's
// full-state hash comparison to this core's version-vector delta
// export/apply.
package syncmanager

import (
	"encoding/json"

	"github.com/cardmind/core/internal/core"
	"github.com/cardmind/core/internal/crdt"
	"github.com/cardmind/core/internal/docstore"
	"github.com/cardmind/core/internal/pool"
	"github.com/cardmind/core/internal/syncproto"
	"github.com/google/uuid"
)

// Manager mediates between the wire protocol and the CRDT/cache
// layers for one device.
type Manager struct {
	pools       *pool.Store
	docs        *docstore.Store
	localPeerID string
}

// New builds a Manager over this device's pool store, doc store, and
// peer id.
func New(pools *pool.Store, docs *docstore.Store, localPeerID string) *Manager {
	return &Manager{pools: pools, docs: docs, localPeerID: localPeerID}
}

// HandleRequest is the server side of a sync exchange: it authorizes
// the requester against the pool's known membership, then exports and
// encodes a delta covering everything past the requester's
// last_version (spec §4.9's "authorization" rule — a null
// last_version means "send everything").
func (m *Manager) HandleRequest(req syncproto.SyncRequest) *syncproto.Message {
	p, err := m.pools.Get(req.PoolID)
	if err != nil {
		if core.KindOf(err) == core.ErrPoolNotFound {
			return syncproto.NewErrorMessage(syncproto.SyncError{
				Code:    syncproto.ErrCodePoolNotFound,
				Message: "pool not found",
				PoolID:  &req.PoolID,
			})
		}
		return syncproto.NewErrorMessage(syncproto.SyncError{
			Code:    syncproto.ErrCodeOther,
			Message: err.Error(),
			PoolID:  &req.PoolID,
		})
	}

	if !isMember(p, req.RequesterPeerID) {
		return syncproto.NewErrorMessage(syncproto.SyncError{
			Code:    syncproto.ErrCodeNotAuthorized,
			Message: "requester is not a member of this pool",
			PoolID:  &req.PoolID,
		})
	}

	doc, err := m.docs.GetOrLoad(req.PoolID, m.localPeerID)
	if err != nil {
		return syncproto.NewErrorMessage(syncproto.SyncError{
			Code:    syncproto.ErrCodeOther,
			Message: err.Error(),
			PoolID:  &req.PoolID,
		})
	}

	delta := doc.ExportDelta(req.LastVersion)
	encoded, err := json.Marshal(delta)
	if err != nil {
		return syncproto.NewErrorMessage(syncproto.SyncError{
			Code:    syncproto.ErrCodeOther,
			Message: "encoding delta: " + err.Error(),
			PoolID:  &req.PoolID,
		})
	}

	return syncproto.NewResponseMessage(syncproto.SyncResponse{
		PoolID:         req.PoolID,
		Updates:        encoded,
		CardCount:      len(delta.Cards),
		CurrentVersion: doc.VersionVector(),
	})
}

func isMember(p core.Pool, peerID string) bool {
	for _, member := range p.Members {
		if member.DeviceID == peerID {
			return true
		}
	}
	return false
}

// ImportResponse is the client side of a sync exchange: decode and
// apply resp's delta into the local document, persist it, and return
// the SyncAck the server expects in reply.
func (m *Manager) ImportResponse(resp syncproto.SyncResponse) (*syncproto.Message, error) {
	var delta crdt.Delta
	if err := json.Unmarshal(resp.Updates, &delta); err != nil {
		return nil, core.WrapError(core.ErrInvalidArgument, "decoding sync response delta", err)
	}

	doc, err := m.docs.GetOrLoad(resp.PoolID, m.localPeerID)
	if err != nil {
		return nil, err
	}
	doc.ApplyDelta(delta)

	// AppendUpdate fires the docstore's card-subscription callback,
	// the only place this device's relational cache learns about
	// cards arriving through sync (spec §4.2) — without it a card
	// applied here would never become visible to a cache-backed read.
	if err := m.docs.AppendUpdate(resp.PoolID, doc, delta); err != nil {
		return nil, err
	}
	if err := m.docs.Persist(resp.PoolID, doc); err != nil {
		return nil, err
	}

	return syncproto.NewAckMessage(syncproto.SyncAck{
		PoolID:           resp.PoolID,
		ConfirmedVersion: doc.VersionVector(),
		DeviceID:         m.localPeerID,
	}), nil
}

// BuildRequest constructs the SyncRequest this device sends to ask a
// peer for everything past lastVersion for poolID.
func (m *Manager) BuildRequest(poolID uuid.UUID, lastVersion map[string]uint64) syncproto.SyncRequest {
	return syncproto.SyncRequest{
		PoolID:          poolID,
		LastVersion:     lastVersion,
		RequesterPeerID: m.localPeerID,
	}
}
