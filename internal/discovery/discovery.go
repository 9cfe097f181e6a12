// Package discovery announces and listens for peers on the local
// link via mDNS (spec §4.7), grounded on the teacher's p2pService
// mDNS wiring (internal/sync/p2p.go's Start/HandlePeerFound), stripped
// of the teacher's DHT path (spec explicitly scopes discovery to LAN)
// and re-gated on pool membership plus the in-memory 5-minute toggle
// instead of running unconditionally.
package discovery

import (
	gosync "sync"
	"time"

	"github.com/cardmind/core/internal/deviceconfig"
	"github.com/cardmind/core/internal/logging"
	"github.com/cardmind/core/internal/trust"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
)

// serviceTag is the mDNS service instance name every device
// advertises under and searches for — constant across the fleet so
// any two devices running this core can find each other.
const serviceTag = "_cardmind-sync._udp"

// staleAfter is how long a discovered peer may go unseen before an
// Expired event fires for it (spec §4.7: "a device whose all
// addresses expire transitions to an offline state").
const staleAfter = 90 * time.Second

// sweepInterval is how often the staleness sweep runs.
const sweepInterval = 30 * time.Second

// Event carries a discovered or expired peer's id and known addresses.
type Event struct {
	PeerID string
	Addrs  []string
}

// Listener receives discovery events. Implementations must return
// quickly — Service invokes them synchronously from its own goroutines.
type Listener interface {
	Discovered(Event)
	Expired(Event)
}

type seenPeer struct {
	addrs    []string
	lastSeen time.Time
}

// Service owns the mDNS advertisement/listener and the gating logic
// that keeps it off unless the device is joined to a pool and the
// user's discovery toggle is currently active.
type Service struct {
	host     host.Host
	selfID   peer.ID
	cfg      *deviceconfig.Manager
	trust    *trust.List
	listener Listener
	now      func() time.Time
	logger   logging.Logger

	mu       gosync.Mutex
	mdnsSvc  mdns.Service
	running  bool
	seen     map[string]*seenPeer
	stopSwp  chan struct{}
	sweeping bool
}

// Option configures optional Service behavior at construction time.
type Option func(*Service)

// WithLogger attaches a structured logger. Without it, Service logs
// nothing.
func WithLogger(l logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New builds a discovery Service. Nothing is advertised or listened
// for until Refresh observes the gating conditions are met.
func New(h host.Host, cfg *deviceconfig.Manager, trustList *trust.List, listener Listener, opts ...Option) *Service {
	s := &Service{
		host:     h,
		selfID:   h.ID(),
		cfg:      cfg,
		trust:    trustList,
		listener: listener,
		now:      time.Now,
		seen:     make(map[string]*seenPeer),
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Active reports whether discovery should currently be running: the
// device holds a pool and the in-memory toggle deadline has not
// elapsed (spec §4.7).
func (s *Service) Active() bool {
	if !s.cfg.IsJoined() {
		return false
	}
	deadline := s.cfg.DiscoveryDeadline()
	if deadline == 0 {
		return false
	}
	return s.now().UnixMilli() < deadline
}

// Refresh starts or stops mDNS to match Active's current answer. It
// is safe to call repeatedly (e.g. from a periodic tick or whenever
// the toggle or pool membership changes) — it only transitions state
// when the desired state differs from the running state.
func (s *Service) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := s.Active()
	switch {
	case want && !s.running:
		return s.startLocked()
	case !want && s.running:
		s.stopLocked()
	}
	return nil
}

func (s *Service) startLocked() error {
	svc := mdns.NewMdnsService(s.host, serviceTag, s)
	if err := svc.Start(); err != nil {
		return err
	}
	s.mdnsSvc = svc
	s.running = true
	s.stopSwp = make(chan struct{})
	if !s.sweeping {
		s.sweeping = true
		go s.sweepLoop(s.stopSwp)
	}
	s.logger.Infof("mDNS discovery started under service tag %s", serviceTag)
	return nil
}

func (s *Service) stopLocked() {
	if s.mdnsSvc != nil {
		s.mdnsSvc.Close()
		s.mdnsSvc = nil
	}
	if s.stopSwp != nil {
		close(s.stopSwp)
		s.stopSwp = nil
	}
	s.sweeping = false
	s.running = false
}

// Stop unconditionally tears down mDNS, regardless of Active's answer
// — called on process shutdown.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// HandlePeerFound implements mdns.Notifee. It is invoked by the mDNS
// library whenever an advertisement is observed on the link.
func (s *Service) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == s.selfID {
		return
	}
	peerID := pi.ID.String()
	if !s.trust.IsTrusted(peerID) {
		return
	}

	addrs := make([]string, 0, len(pi.Addrs))
	for _, a := range pi.Addrs {
		addrs = append(addrs, a.String())
	}

	s.mu.Lock()
	_, known := s.seen[peerID]
	s.seen[peerID] = &seenPeer{addrs: addrs, lastSeen: s.now()}
	s.mu.Unlock()

	if !known {
		s.logger.Debugf("discovered trusted peer %s (%d addrs)", peerID, len(addrs))
		s.listener.Discovered(Event{PeerID: peerID, Addrs: addrs})
	}
}

// sweepLoop periodically expires peers that have gone quiet past
// staleAfter, firing Expired events for each.
func (s *Service) sweepLoop(stop chan struct{}) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Service) sweepOnce() {
	cutoff := s.now().Add(-staleAfter)

	var expired []Event
	s.mu.Lock()
	for id, p := range s.seen {
		if p.lastSeen.Before(cutoff) {
			expired = append(expired, Event{PeerID: id, Addrs: p.addrs})
			delete(s.seen, id)
		}
	}
	s.mu.Unlock()

	for _, ev := range expired {
		s.listener.Expired(ev)
	}
}
