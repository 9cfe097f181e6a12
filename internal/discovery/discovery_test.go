package discovery

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cardmind/core/internal/cache"
	"github.com/cardmind/core/internal/deviceconfig"
	"github.com/cardmind/core/internal/logging"
	"github.com/cardmind/core/internal/trust"
	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p/core/peer"
)

type recordingListener struct {
	discovered []Event
	expired    []Event
}

func (r *recordingListener) Discovered(e Event) { r.discovered = append(r.discovered, e) }
func (r *recordingListener) Expired(e Event)    { r.expired = append(r.expired, e) }

func newTestDeps(t *testing.T) (*deviceconfig.Manager, *trust.List) {
	t.Helper()
	cfg, err := deviceconfig.Open(t.TempDir(), "self-peer", "Test Device")
	if err != nil {
		t.Fatalf("deviceconfig.Open: %v", err)
	}
	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return cfg, trust.New(c)
}

func newTestService(t *testing.T) (*Service, *recordingListener) {
	t.Helper()
	cfg, trustList := newTestDeps(t)
	listener := &recordingListener{}
	svc := &Service{
		selfID:   peer.ID("self-peer"),
		cfg:      cfg,
		trust:    trustList,
		listener: listener,
		logger:   logging.Nop(),
		now:      time.Now,
		seen:     make(map[string]*seenPeer),
	}
	return svc, listener
}

func TestActiveRequiresPoolMembership(t *testing.T) {
	svc, _ := newTestService(t)
	svc.cfg.ActivateDiscovery(time.Now().Add(5 * time.Minute).UnixMilli())
	if svc.Active() {
		t.Error("discovery must not be active without pool membership")
	}
}

func TestActiveRequiresLiveToggle(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.cfg.JoinPool(uuid.New()); err != nil {
		t.Fatalf("JoinPool: %v", err)
	}
	if svc.Active() {
		t.Error("discovery must not be active before the toggle is set")
	}
}

func TestActiveWhenJoinedAndToggled(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.cfg.JoinPool(uuid.New()); err != nil {
		t.Fatalf("JoinPool: %v", err)
	}
	svc.cfg.ActivateDiscovery(time.Now().Add(5 * time.Minute).UnixMilli())
	if !svc.Active() {
		t.Error("expected discovery active when joined and toggle is live")
	}
}

func TestActiveExpiresAfterDeadline(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.cfg.JoinPool(uuid.New()); err != nil {
		t.Fatalf("JoinPool: %v", err)
	}
	svc.cfg.ActivateDiscovery(time.Now().Add(-time.Second).UnixMilli())
	if svc.Active() {
		t.Error("expected discovery inactive once the toggle deadline has passed")
	}
}

func TestHandlePeerFoundIgnoresUntrustedPeer(t *testing.T) {
	svc, listener := newTestService(t)
	svc.HandlePeerFound(peer.AddrInfo{ID: peer.ID("stranger")})
	if len(listener.discovered) != 0 {
		t.Error("expected no Discovered event for an untrusted peer")
	}
}

func TestHandlePeerFoundIgnoresSelf(t *testing.T) {
	svc, listener := newTestService(t)
	svc.trust.Add(peer.ID("self-peer").String(), "Me", "desktop", 1)
	svc.HandlePeerFound(peer.AddrInfo{ID: peer.ID("self-peer")})
	if len(listener.discovered) != 0 {
		t.Error("expected no Discovered event for the local host's own id")
	}
}

func TestHandlePeerFoundFiresOnceForTrustedPeer(t *testing.T) {
	svc, listener := newTestService(t)
	svc.trust.Add(peer.ID("peer-1").String(), "Laptop", "desktop", 1)

	info := peer.AddrInfo{ID: peer.ID("peer-1")}
	svc.HandlePeerFound(info)
	svc.HandlePeerFound(info)

	if len(listener.discovered) != 1 {
		t.Errorf("expected exactly one Discovered event across repeated sightings, got %d", len(listener.discovered))
	}
	if listener.discovered[0].PeerID != peer.ID("peer-1").String() {
		t.Errorf("expected event for peer-1, got %q", listener.discovered[0].PeerID)
	}
}

func TestSweepExpiresStalePeers(t *testing.T) {
	svc, listener := newTestService(t)
	svc.trust.Add(peer.ID("peer-1").String(), "Laptop", "desktop", 1)

	base := time.Now()
	svc.now = func() time.Time { return base }
	svc.HandlePeerFound(peer.AddrInfo{ID: peer.ID("peer-1")})

	svc.now = func() time.Time { return base.Add(staleAfter + time.Second) }
	svc.sweepOnce()

	if len(listener.expired) != 1 || listener.expired[0].PeerID != peer.ID("peer-1").String() {
		t.Errorf("expected peer-1 to expire after the staleness window, got %+v", listener.expired)
	}

	svc.mu.Lock()
	_, stillSeen := svc.seen[peer.ID("peer-1").String()]
	svc.mu.Unlock()
	if stillSeen {
		t.Error("expected expired peer to be removed from the seen set")
	}
}

func TestSweepDoesNotExpireFreshPeers(t *testing.T) {
	svc, listener := newTestService(t)
	svc.trust.Add(peer.ID("peer-1").String(), "Laptop", "desktop", 1)
	svc.HandlePeerFound(peer.AddrInfo{ID: peer.ID("peer-1")})

	svc.sweepOnce()

	if len(listener.expired) != 0 {
		t.Errorf("expected no expirations for a freshly seen peer, got %+v", listener.expired)
	}
}
