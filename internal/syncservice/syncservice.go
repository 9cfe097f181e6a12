// Package syncservice is the orchestrator: one transport host, one
// identity, one sync manager, one coordinator, one device config
// handle, and one event loop (spec §4.12). Grounded on the teacher's
// p2pService (internal/sync/p2p.go) — Start/Stop/SyncWith/
// HandlePeerFound/handleStream map directly onto this service's
// Start/Stop/RequestSync/ConnectToPeer/handleStream, generalized from
// the teacher's single state-hash exchange to this core's
// request/response delta protocol, and adding the status
// subscription/deduplication primitives the teacher has no equivalent
// of.
package syncservice

import (
	"context"
	"sync"
	"time"

	"github.com/cardmind/core/internal/coordinator"
	"github.com/cardmind/core/internal/core"
	"github.com/cardmind/core/internal/deviceconfig"
	"github.com/cardmind/core/internal/discovery"
	"github.com/cardmind/core/internal/logging"
	"github.com/cardmind/core/internal/syncmanager"
	"github.com/cardmind/core/internal/syncproto"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/google/uuid"
)

// Status is a point-in-time snapshot of the peer table, published to
// subscribers whenever it changes (spec §4.12: "publishes iff the new
// status differs from the last published one").
type Status = coordinator.Stats

// Service wires the transport host to the sync manager and
// coordinator, draining the transport's event loop.
type Service struct {
	host    host.Host
	cfg     *deviceconfig.Manager
	sync    *syncmanager.Manager
	coord   *coordinator.Coordinator
	discSvc *discovery.Service
	logger  logging.Logger

	mu      sync.Mutex
	subs    []chan Status
	lastPub Status
	hasPub  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures optional Service behavior at construction time,
// the same "optional field, defaults to silence" shape as the
// teacher's sync.Config.Logger.
type Option func(*Service)

// WithLogger attaches a structured logger. Without it, Service logs
// nothing, matching the teacher's noopLogger default.
func WithLogger(l logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New builds a Service over its dependencies. Nothing runs until Start.
func New(h host.Host, cfg *deviceconfig.Manager, syncMgr *syncmanager.Manager, coord *coordinator.Coordinator, discSvc *discovery.Service, opts ...Option) *Service {
	s := &Service{
		host:    h,
		cfg:     cfg,
		sync:    syncMgr,
		coord:   coord,
		discSvc: discSvc,
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the protocol stream handler and begins the
// periodic housekeeping loop (discovery gating refresh, offline
// cleanup). The host is assumed already listening — transport.New
// does that at construction.
func (s *Service) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.host.SetStreamHandler(protocol.ID(syncproto.ProtocolID), s.handleStream)

	s.wg.Add(1)
	go s.housekeepingLoop()
	s.logger.Infof("sync service started, peer id %s", s.host.ID())
}

// Stop shuts the service down: the housekeeping loop exits and the
// stream handler is removed. The underlying host is left open — it is
// owned by whoever constructed it via internal/transport.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.host.RemoveStreamHandler(protocol.ID(syncproto.ProtocolID))
	s.logger.Infof("sync service stopped")
}

func (s *Service) housekeepingLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.discSvc != nil {
				s.discSvc.Refresh()
			}
			s.coord.CleanupOffline(30 * time.Minute)
			s.publishStatus()
		}
	}
}

// ConnectToPeer records peerID as an Online device. It opens no
// connection itself — this call only updates the coordinator's view,
// per spec §4.12; a stream to the peer is opened by RequestSync.
func (s *Service) ConnectToPeer(peerID string) {
	s.coord.AddOrUpdate(peerID)
	s.publishStatus()
}

// RequestSync asks peerID for updates to poolID since the last
// version this device recorded for that peer, imports the response,
// acknowledges it, and updates the coordinator (spec §4.12).
func (s *Service) RequestSync(ctx context.Context, peerIDStr string, poolID uuid.UUID) error {
	s.coord.MarkSyncing(peerIDStr, poolID.String())
	s.publishStatus()

	pid, err := peer.Decode(peerIDStr)
	if err != nil {
		s.coord.MarkOffline(peerIDStr)
		return core.WrapError(core.ErrInvalidArgument, "decoding peer id", err)
	}

	info, _ := s.coord.Get(peerIDStr)
	lastVersion := info.PoolVersions[poolID.String()]

	stream, err := s.host.NewStream(ctx, pid, protocol.ID(syncproto.ProtocolID))
	if err != nil {
		s.coord.MarkOffline(peerIDStr)
		s.publishStatus()
		s.logger.Warnf("opening sync stream to %s: %v", peerIDStr, err)
		return core.WrapError(core.ErrIO, "opening sync stream", err)
	}
	defer stream.Close()

	req := s.sync.BuildRequest(poolID, lastVersion)
	if err := syncproto.WriteMessage(stream, syncproto.NewRequestMessage(req)); err != nil {
		s.coord.MarkOffline(peerIDStr)
		s.publishStatus()
		return err
	}

	resp, err := syncproto.ReadMessage(stream)
	if err != nil {
		s.coord.MarkOffline(peerIDStr)
		s.publishStatus()
		return err
	}

	if resp.Type == syncproto.MsgSyncError {
		s.coord.MarkOffline(peerIDStr)
		s.publishStatus()
		return core.NewError(core.ErrNotAuthorized, resp.Error.Message)
	}
	if resp.Type != syncproto.MsgSyncResponse {
		s.coord.MarkOffline(peerIDStr)
		s.publishStatus()
		return core.NewError(core.ErrInternal, "unexpected message type from peer")
	}

	ack, err := s.sync.ImportResponse(*resp.Response)
	if err != nil {
		s.coord.MarkOffline(peerIDStr)
		s.publishStatus()
		return err
	}
	if err := syncproto.WriteMessage(stream, ack); err != nil {
		s.coord.MarkOffline(peerIDStr)
		s.publishStatus()
		return err
	}

	s.coord.MarkSynced(peerIDStr, poolID.String(), ack.Ack.ConfirmedVersion)
	s.publishStatus()
	s.logger.Debugf("synced pool %s with peer %s up to version %d", poolID, peerIDStr, ack.Ack.ConfirmedVersion)
	return nil
}

// SyncPoolOwned dispatches a RequestSync to every currently Online
// peer concurrently and returns how many were successfully completed
// (spec §4.12's "returns count of successfully dispatched requests").
func (s *Service) SyncPoolOwned(ctx context.Context, poolID uuid.UUID) int {
	peers := s.coord.Online()
	var wg sync.WaitGroup
	var mu sync.Mutex
	count := 0

	for _, p := range peers {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.RequestSync(ctx, p, poolID); err == nil {
				mu.Lock()
				count++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return count
}

// DeviceConfig returns the device config handle this service was
// built with, so callers (and the boundary facade) can check pool
// membership or the discovery toggle without holding a second
// reference to it.
func (s *Service) DeviceConfig() *deviceconfig.Manager {
	return s.cfg
}

// GetSyncStatus returns the current peer-table snapshot.
func (s *Service) GetSyncStatus() Status {
	return s.coord.Stats()
}

// SubscribeStatus returns a read end of the status broadcast. A
// buffered, non-blocking send means a slow subscriber drops
// intermediate updates rather than stalling the publisher.
func (s *Service) SubscribeStatus() <-chan Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Status, 16)
	s.subs = append(s.subs, ch)
	return ch
}

func (s *Service) publishStatus() {
	s.notifyStatusChange(s.coord.Stats())
}

// notifyStatusChange publishes iff status differs from the last
// published status (spec §4.12's deduplication rule).
func (s *Service) notifyStatusChange(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasPub && status == s.lastPub {
		return
	}
	s.lastPub = status
	s.hasPub = true
	for _, ch := range s.subs {
		select {
		case ch <- status:
		default:
		}
	}
}

// RestartSync clears every peer's backoff state, so the next
// housekeeping tick or explicit RequestSync is free to retry
// immediately regardless of how recently a peer failed (spec
// §4.12: "restart_sync").
func (s *Service) RestartSync() {
	for _, p := range s.coord.All() {
		s.coord.ResetBackoff(p.PeerID)
	}
	s.publishStatus()
}

// ClearError is a no-op placeholder primitive matching spec §4.12's
// explicit reset surface — this service does not hold a sticky
// last-error field the way a UI-facing wrapper might, so there is
// nothing to clear at this layer today.
func (s *Service) ClearError() {}

// handleStream serves an inbound sync request (spec §4.9/§4.10): read
// one SyncRequest, authorize and export via the sync manager, write
// back the SyncResponse or SyncError, then read the requester's
// SyncAck to close out the exchange.
func (s *Service) handleStream(stream network.Stream) {
	defer stream.Close()
	stream.SetDeadline(time.Now().Add(30 * time.Second))

	msg, err := syncproto.ReadMessage(stream)
	if err != nil {
		return
	}
	if msg.Type != syncproto.MsgSyncRequest {
		return
	}

	peerIDStr := stream.Conn().RemotePeer().String()
	s.coord.AddOrUpdate(peerIDStr)

	respMsg := s.sync.HandleRequest(*msg.Request)
	if err := syncproto.WriteMessage(stream, respMsg); err != nil {
		return
	}
	if respMsg.Type != syncproto.MsgSyncResponse {
		return
	}

	ackMsg, err := syncproto.ReadMessage(stream)
	if err != nil || ackMsg.Type != syncproto.MsgSyncAck {
		return
	}
	s.coord.MarkSynced(peerIDStr, msg.Request.PoolID.String(), ackMsg.Ack.ConfirmedVersion)
	s.publishStatus()
}
