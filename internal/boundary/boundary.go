// Package boundary names the command surface this core exposes to an
// external collaborator — an application UI, an FFI/command binding,
// whatever embeds this module — without implementing either. Per
// spec §1, the application UI and the command/FFI surface translating
// external calls into core operations are out of scope, "treated as
// external collaborators with named interfaces only." Grounded on the
// teacher's pkg/engine/engine.go Engine interface (the single
// boundary every external caller goes through) and pkg/api/api.go's
// Server (a thin wrapper translating one external protocol — HTTP —
// into Engine calls); this package plays the Engine role, and
// Service plays api.Server's role minus the HTTP-specific parts,
// which belong to whatever embeds this module, not to the core
// itself.
package boundary

import (
	"context"
	"io"

	"github.com/cardmind/core/internal/cache"
	"github.com/cardmind/core/internal/card"
	"github.com/cardmind/core/internal/core"
	"github.com/cardmind/core/internal/exportimport"
	"github.com/cardmind/core/internal/pool"
	"github.com/cardmind/core/internal/syncservice"
	"github.com/google/uuid"
)

// Card, Pool, and TrustedPeer re-export the core record types, so a
// caller importing only this package never needs to reach into
// internal/core directly — the same reason the teacher's pkg/engine
// redeclares its own Entry type rather than exposing internal/engine's.
type (
	Card        = core.Card
	Pool        = core.Pool
	TrustedPeer = core.TrustedPeer
)

// CardCommands is the card lifecycle slice of the command surface
// (spec §6: "create/get/update/delete card").
type CardCommands interface {
	CreateLocalCard(title, body string) (Card, error)
	CreatePoolCard(poolID uuid.UUID, title, body string) (Card, error)
	GetCard(id uuid.UUID) (Card, error)
	UpdateCard(id uuid.UUID, input card.UpdateInput) (Card, error)
	DeleteCard(id uuid.UUID) error
	RestoreCard(id uuid.UUID) (Card, error)
	ListCards(filter cache.CardFilter) ([]Card, error)
}

// PoolCommands is the pool and membership slice of the command
// surface (spec §6: "create/get/update/delete pool and its members;
// join/leave pool").
type PoolCommands interface {
	CreatePool(name, authenticatorHash string) (Pool, error)
	GetPool(id uuid.UUID) (Pool, error)
	ListPools() ([]Pool, error)
	AddMember(poolID uuid.UUID, deviceID, displayName string) (Pool, error)
	RemoveMember(poolID uuid.UUID, deviceID string) (Pool, error)
	DeletePool(id uuid.UUID) error
	RestorePool(id uuid.UUID) (Pool, error)
	JoinPool(poolID uuid.UUID) error
	LeavePool(poolID uuid.UUID) error
}

// TrustCommands is the trusted-device and discovery-toggle slice of
// the command surface (spec §6: "list trusted devices; enable/cancel
// discovery toggle").
type TrustCommands interface {
	ListTrustedDevices() ([]TrustedPeer, error)
	EnableDiscovery(deadlineMillis int64)
	CancelDiscovery()
}

// SyncCommands is the sync-service control slice of the command
// surface (spec §6: "start/stop sync service; trigger sync of a pool;
// subscribe status").
type SyncCommands interface {
	StartSync(ctx context.Context)
	StopSync()
	TriggerSync(ctx context.Context, poolID uuid.UUID) int
	SubscribeStatus() <-chan syncservice.Status
	RestartSync()
}

// BulkCommands is the export/import slice of the command surface
// (spec §6: "export all cards as a JSON array; import a JSON array
// with last-write-wins merge on modification timestamp").
type BulkCommands interface {
	ExportCards(w io.Writer) error
	ImportCards(r io.Reader) (exportimport.ImportResult, error)
}

// Commands is the complete command surface. An external collaborator
// drives the core entirely through this interface, mirroring how
// every caller in the teacher's tree goes through engine.Engine and
// nothing else.
type Commands interface {
	CardCommands
	PoolCommands
	TrustCommands
	SyncCommands
	BulkCommands
}

var _ Commands = (*Service)(nil)

// Service is the thin facade wiring every component into one
// Commands implementation — the teacher's pkg/api.Server minus the
// HTTP-specific parts, which belong to whatever embeds this module.
type Service struct {
	cards   *card.Store
	pools   *pool.Store
	trust   trustList
	cfg     deviceConfig
	sync    *syncservice.Service
	exporter *exportimport.Exporter
	importer *exportimport.Importer
}

// trustList and deviceConfig are narrowed to the methods Service
// actually calls, so tests can substitute fakes without constructing
// a full internal/trust.List or internal/deviceconfig.Manager.
type trustList interface {
	List() ([]core.TrustedPeer, error)
}

type deviceConfig interface {
	ActivateDiscovery(deadlineMillis int64)
	JoinPool(poolID uuid.UUID) error
	LeavePool(poolID uuid.UUID) error
}

// New wires an already-constructed component set into a Service.
// Every dependency is assumed already open/running; New does not
// open storage or start goroutines itself.
func New(cards *card.Store, pools *pool.Store, trust trustList, cfg deviceConfig, sync *syncservice.Service, exporter *exportimport.Exporter, importer *exportimport.Importer) *Service {
	return &Service{
		cards:    cards,
		pools:    pools,
		trust:    trust,
		cfg:      cfg,
		sync:     sync,
		exporter: exporter,
		importer: importer,
	}
}

func (s *Service) CreateLocalCard(title, body string) (Card, error) {
	return s.cards.CreateLocal(title, body)
}

func (s *Service) CreatePoolCard(poolID uuid.UUID, title, body string) (Card, error) {
	return s.cards.CreatePool(poolID, title, body)
}

func (s *Service) GetCard(id uuid.UUID) (Card, error) {
	return s.cards.Get(id)
}

func (s *Service) UpdateCard(id uuid.UUID, input card.UpdateInput) (Card, error) {
	return s.cards.Update(id, input)
}

func (s *Service) DeleteCard(id uuid.UUID) error {
	return s.cards.Delete(id)
}

func (s *Service) RestoreCard(id uuid.UUID) (Card, error) {
	return s.cards.Restore(id)
}

func (s *Service) ListCards(filter cache.CardFilter) ([]Card, error) {
	return s.cards.List(filter)
}

func (s *Service) CreatePool(name, authenticatorHash string) (Pool, error) {
	return s.pools.Create(name, authenticatorHash)
}

func (s *Service) GetPool(id uuid.UUID) (Pool, error) {
	return s.pools.Get(id)
}

func (s *Service) ListPools() ([]Pool, error) {
	return s.pools.List()
}

func (s *Service) AddMember(poolID uuid.UUID, deviceID, displayName string) (Pool, error) {
	return s.pools.AddMember(poolID, deviceID, displayName)
}

func (s *Service) RemoveMember(poolID uuid.UUID, deviceID string) (Pool, error) {
	return s.pools.RemoveMember(poolID, deviceID)
}

func (s *Service) DeletePool(id uuid.UUID) error {
	return s.pools.Delete(id)
}

func (s *Service) RestorePool(id uuid.UUID) (Pool, error) {
	return s.pools.Restore(id)
}

func (s *Service) JoinPool(poolID uuid.UUID) error {
	return s.cfg.JoinPool(poolID)
}

func (s *Service) LeavePool(poolID uuid.UUID) error {
	return s.cfg.LeavePool(poolID)
}

func (s *Service) ListTrustedDevices() ([]TrustedPeer, error) {
	return s.trust.List()
}

func (s *Service) EnableDiscovery(deadlineMillis int64) {
	s.cfg.ActivateDiscovery(deadlineMillis)
}

// CancelDiscovery disables discovery immediately by setting the
// deadline to the past, reusing ActivateDiscovery rather than adding
// a second config-mutation path for what is, in storage terms, the
// same field.
func (s *Service) CancelDiscovery() {
	s.cfg.ActivateDiscovery(0)
}

func (s *Service) StartSync(ctx context.Context) {
	s.sync.Start(ctx)
}

func (s *Service) StopSync() {
	s.sync.Stop()
}

func (s *Service) TriggerSync(ctx context.Context, poolID uuid.UUID) int {
	return s.sync.SyncPoolOwned(ctx, poolID)
}

func (s *Service) SubscribeStatus() <-chan syncservice.Status {
	return s.sync.SubscribeStatus()
}

func (s *Service) RestartSync() {
	s.sync.RestartSync()
}

func (s *Service) ExportCards(w io.Writer) error {
	return s.exporter.ExportAll(w)
}

func (s *Service) ImportCards(r io.Reader) (exportimport.ImportResult, error) {
	return s.importer.ImportAll(r)
}
