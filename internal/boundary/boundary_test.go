package boundary

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/cardmind/core/internal/cache"
	"github.com/cardmind/core/internal/card"
	"github.com/cardmind/core/internal/coordinator"
	"github.com/cardmind/core/internal/core"
	"github.com/cardmind/core/internal/deviceconfig"
	"github.com/cardmind/core/internal/docstore"
	"github.com/cardmind/core/internal/exportimport"
	"github.com/cardmind/core/internal/pool"
	"github.com/cardmind/core/internal/syncmanager"
	"github.com/cardmind/core/internal/syncservice"
	"github.com/cardmind/core/internal/transport"
	"github.com/cardmind/core/internal/trust"

	"github.com/google/uuid"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
)

func newTestService(t *testing.T) *Service {
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

	priv, _, err := libp2pcrypto.GenerateEd25519Key(nil)
	if err != nil {
		t.Fatalf("GenerateEd25519Key: %v", err)
	}
	h, err := transport.New(priv, []string{"/ip4/127.0.0.1/tcp/0"})
	if err != nil {
		t.Fatalf("transport.New: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	peerID := h.ID().String()

	cfg, err := deviceconfig.Open(t.TempDir(), peerID, "Test Device")
	if err != nil {
		t.Fatalf("deviceconfig.Open: %v", err)
	}

	cards := card.New(c, d, peerID)
	pools := pool.New(c, d, peerID)
	trusted := trust.New(c)
	syncMgr := syncmanager.New(pools, d, peerID)
	coord := coordinator.New()
	syncSvc := syncservice.New(h, cfg, syncMgr, coord, nil)

	return New(cards, pools, trusted, cfg, syncSvc, exportimport.NewExporter(c), exportimport.NewImporter(c))
}

func TestServiceImplementsCommands(t *testing.T) {
	var _ Commands = newTestService(t)
}

func TestCreateAndGetLocalCard(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.CreateLocalCard("Groceries", "milk")
	if err != nil {
		t.Fatalf("CreateLocalCard: %v", err)
	}

	got, err := svc.GetCard(created.ID)
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if got.Title != "Groceries" {
		t.Errorf("expected title to round-trip, got %q", got.Title)
	}
}

func TestDeleteThenRestoreCard(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.CreateLocalCard("Groceries", "milk")
	if err != nil {
		t.Fatalf("CreateLocalCard: %v", err)
	}
	if err := svc.DeleteCard(created.ID); err != nil {
		t.Fatalf("DeleteCard: %v", err)
	}
	if _, err := svc.GetCard(created.ID); err == nil {
		t.Fatal("expected deleted card to be unreachable via GetCard")
	}

	restored, err := svc.RestoreCard(created.ID)
	if err != nil {
		t.Fatalf("RestoreCard: %v", err)
	}
	if restored.Deleted {
		t.Error("restored card should not read as deleted")
	}

	got, err := svc.GetCard(created.ID)
	if err != nil {
		t.Fatalf("GetCard after restore: %v", err)
	}
	if got.Title != "Groceries" {
		t.Errorf("expected title to survive restore, got %q", got.Title)
	}
}

func TestCreatePoolAndAddMember(t *testing.T) {
	svc := newTestService(t)

	p, err := svc.CreatePool("Family", "hash-1")
	if err != nil {
		t.Fatalf("CreatePool: %v", err)
	}

	updated, err := svc.AddMember(p.ID, "peer-2", "Other Device")
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if len(updated.Members) != 1 {
		t.Errorf("expected 1 member, got %d", len(updated.Members))
	}
}

func TestJoinAndLeavePool(t *testing.T) {
	svc := newTestService(t)

	p, err := svc.CreatePool("Family", "hash-1")
	if err != nil {
		t.Fatalf("CreatePool: %v", err)
	}

	if err := svc.JoinPool(p.ID); err != nil {
		t.Fatalf("JoinPool: %v", err)
	}
	if err := svc.LeavePool(p.ID); err != nil {
		t.Fatalf("LeavePool: %v", err)
	}
}

func TestListTrustedDevicesEmpty(t *testing.T) {
	svc := newTestService(t)

	peers, err := svc.ListTrustedDevices()
	if err != nil {
		t.Fatalf("ListTrustedDevices: %v", err)
	}
	if len(peers) != 0 {
		t.Errorf("expected no trusted devices yet, got %d", len(peers))
	}
}

func TestEnableAndCancelDiscoveryDoesNotPanic(t *testing.T) {
	svc := newTestService(t)
	svc.EnableDiscovery(1)
	svc.CancelDiscovery()
}

func TestStartStopSync(t *testing.T) {
	svc := newTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.StartSync(ctx)
	svc.StopSync()
}

func TestExportThenImportRoundTrip(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.CreateLocalCard("Groceries", "milk"); err != nil {
		t.Fatalf("CreateLocalCard: %v", err)
	}

	var buf bytes.Buffer
	if err := svc.ExportCards(&buf); err != nil {
		t.Fatalf("ExportCards: %v", err)
	}

	result, err := svc.ImportCards(&buf)
	if err != nil {
		t.Fatalf("ImportCards: %v", err)
	}
	if result.Kept != 1 {
		t.Errorf("expected the re-imported card to be kept (same timestamp), got %+v", result)
	}
}
