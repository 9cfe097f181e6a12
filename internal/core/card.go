package core

import (
	"strings"

	"github.com/google/uuid"
)

// OwnerKind classifies who a Card belongs to (spec §3).
type OwnerKind string

const (
	OwnerLocal OwnerKind = "local"
	OwnerPool  OwnerKind = "pool"
)

const (
	MaxTitleLen = 200
	MaxPoolName = 128
)

// Card is the content unit replicated across a pool. Body is opaque
// Markdown text to this layer — no rendering happens here.
type Card struct {
	ID             uuid.UUID `json:"id"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	CreatedAt      uint64    `json:"created_at"`
	UpdatedAt      uint64    `json:"updated_at"`
	Deleted        bool      `json:"deleted"`
	Owner          OwnerKind `json:"owner"`
	PoolID         uuid.UUID `json:"pool_id,omitempty"`
	LastEditorPeer string    `json:"last_editor_peer"`
	Tags           []string  `json:"tags,omitempty"`
}

// Clone returns a deep copy of c.
func (c Card) Clone() Card {
	tags := make([]string, len(c.Tags))
	copy(tags, c.Tags)
	clone := c
	clone.Tags = tags
	return clone
}

// NewCard allocates a new Local card. Use NewPoolCard for pool-owned cards.
func NewCard(title, body, editorPeer string) (Card, error) {
	return newCard(title, body, editorPeer, OwnerLocal, uuid.Nil)
}

// NewPoolCard allocates a new card owned by the given pool.
func NewPoolCard(title, body, editorPeer string, poolID uuid.UUID) (Card, error) {
	if poolID == uuid.Nil {
		return Card{}, NewError(ErrInvalidArgument, "pool card requires a pool id")
	}
	return newCard(title, body, editorPeer, OwnerPool, poolID)
}

func newCard(title, body, editorPeer string, owner OwnerKind, poolID uuid.UUID) (Card, error) {
	if err := ValidateTitle(title); err != nil {
		return Card{}, err
	}
	if err := ValidateBody(body); err != nil {
		return Card{}, err
	}
	if err := ValidateEditorPeer(editorPeer); err != nil {
		return Card{}, err
	}
	now := NowMillis()
	return Card{
		ID:             uuid.Must(uuid.NewV7()),
		Title:          title,
		Body:           body,
		CreatedAt:      now,
		UpdatedAt:      now,
		Deleted:        false,
		Owner:          owner,
		PoolID:         poolID,
		LastEditorPeer: editorPeer,
		Tags:           []string{},
	}, nil
}

// ValidateTitle enforces spec §3/§4.3: non-empty, <= 200 chars.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return NewError(ErrInvalidArgument, "title must not be empty")
	}
	if len([]rune(title)) > MaxTitleLen {
		return NewError(ErrInvalidArgument, "title exceeds 200 characters")
	}
	return nil
}

// ValidateBody enforces spec §3/§4.3: non-empty after trim.
func ValidateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return NewError(ErrInvalidArgument, "body must not be empty")
	}
	return nil
}

// ValidateEditorPeer enforces spec §4.3: editor peer id required for
// any operation that changes editable fields.
func ValidateEditorPeer(peerID string) error {
	if strings.TrimSpace(peerID) == "" {
		return NewError(ErrInvalidArgument, "editor peer id must not be empty")
	}
	return nil
}

// ValidateOwnership enforces spec §3's Card invariant: a Pool card
// carries a pool id, a Local card carries none.
func ValidateOwnership(owner OwnerKind, poolID uuid.UUID) error {
	switch owner {
	case OwnerPool:
		if poolID == uuid.Nil {
			return NewError(ErrInvalidArgument, "pool-owned card must carry a pool id")
		}
	case OwnerLocal:
		if poolID != uuid.Nil {
			return NewError(ErrInvalidArgument, "local card must not carry a pool id")
		}
	default:
		return NewError(ErrInvalidArgument, "unknown owner kind")
	}
	return nil
}

// MergeTags returns the set union of two tag lists, per the Open
// Question resolution in SPEC_FULL.md §11 (tag list is additive).
func MergeTags(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, t := range list {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}
