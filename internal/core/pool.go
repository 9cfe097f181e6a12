package core

import (
	"strings"

	"github.com/google/uuid"
)

// PoolMember is one device's membership record within a Pool.
type PoolMember struct {
	DeviceID    string `json:"device_id"`
	DisplayName string `json:"display_name"`
	JoinedAt    uint64 `json:"joined_at"`
}

// Pool is a shared space of cards joined by a set of trusted devices.
type Pool struct {
	ID               uuid.UUID    `json:"id"`
	Name             string       `json:"name"`
	AuthenticatorHash string      `json:"authenticator_hash"` // never plaintext at rest
	Members          []PoolMember `json:"members"`
	CardIDs          []uuid.UUID  `json:"card_ids"`
	CreatedAt        uint64       `json:"created_at"`
	UpdatedAt        uint64       `json:"updated_at"`
}

// Clone returns a deep copy of p.
func (p Pool) Clone() Pool {
	members := make([]PoolMember, len(p.Members))
	copy(members, p.Members)
	cardIDs := make([]uuid.UUID, len(p.CardIDs))
	copy(cardIDs, p.CardIDs)
	clone := p
	clone.Members = members
	clone.CardIDs = cardIDs
	return clone
}

// NewPool allocates a new Pool. authenticatorHash must already be a
// password hash (see internal/pwhash) — plaintext is never accepted here.
func NewPool(name, authenticatorHash string) (Pool, error) {
	if err := ValidatePoolName(name); err != nil {
		return Pool{}, err
	}
	if strings.TrimSpace(authenticatorHash) == "" {
		return Pool{}, NewError(ErrInvalidArgument, "authenticator hash must not be empty")
	}
	now := NowMillis()
	return Pool{
		ID:                uuid.Must(uuid.NewV7()),
		Name:              name,
		AuthenticatorHash: authenticatorHash,
		Members:           []PoolMember{},
		CardIDs:           []uuid.UUID{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// ValidatePoolName enforces spec §3: non-empty, <= 128 chars.
func ValidatePoolName(name string) error {
	if strings.TrimSpace(name) == "" {
		return NewError(ErrInvalidArgument, "pool name must not be empty")
	}
	if len([]rune(name)) > MaxPoolName {
		return NewError(ErrInvalidArgument, "pool name exceeds 128 characters")
	}
	return nil
}

// AddMember is idempotent by device id (spec §4.3).
func (p *Pool) AddMember(deviceID, displayName string) {
	for i, m := range p.Members {
		if m.DeviceID == deviceID {
			p.Members[i].DisplayName = displayName
			return
		}
	}
	p.Members = append(p.Members, PoolMember{
		DeviceID:    deviceID,
		DisplayName: displayName,
		JoinedAt:    NowMillis(),
	})
}

// RemoveMember is a no-op when the device is absent (spec §4.3).
func (p *Pool) RemoveMember(deviceID string) {
	for i, m := range p.Members {
		if m.DeviceID == deviceID {
			p.Members = append(p.Members[:i], p.Members[i+1:]...)
			return
		}
	}
}

// HasMember reports whether deviceID is a current member of the pool.
func (p *Pool) HasMember(deviceID string) bool {
	for _, m := range p.Members {
		if m.DeviceID == deviceID {
			return true
		}
	}
	return false
}

// AddCard inserts cardID into the pool's authoritative card-id list,
// guaranteeing uniqueness (spec §4.3).
func (p *Pool) AddCard(cardID uuid.UUID) (changed bool) {
	for _, id := range p.CardIDs {
		if id == cardID {
			return false
		}
	}
	p.CardIDs = append(p.CardIDs, cardID)
	return true
}

// RemoveCard is a no-op when cardID is absent (spec §4.3).
func (p *Pool) RemoveCard(cardID uuid.UUID) (changed bool) {
	for i, id := range p.CardIDs {
		if id == cardID {
			p.CardIDs = append(p.CardIDs[:i], p.CardIDs[i+1:]...)
			return true
		}
	}
	return false
}
