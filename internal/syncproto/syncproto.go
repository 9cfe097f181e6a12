// Package syncproto defines the request/response sync protocol's wire
// messages and length-prefixed codec (spec §4.9), grounded on the
// teacher's internal/sync.Message/writeMessage/readMessage
// (internal/sync/sync.go, internal/sync/p2p.go), generalized from the
// teacher's three state-hash message kinds to the spec's four
// named message shapes carried in one envelope.
package syncproto

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cardmind/core/internal/core"
	"github.com/google/uuid"
)

// ProtocolID is the libp2p protocol string this core's sync streams
// are opened under. Versioned so a future wire change can coexist
// with this one during a rollout.
const ProtocolID = "/cardmind/sync/1.0.0"

// maxMessageSize bounds a single wire message. Sync updates carry
// whole CRDT deltas, which can be considerably larger than the
// teacher's state-hash gossip, so the bound is generous rather than
// the teacher's original 10MiB.
const maxMessageSize = 64 * 1024 * 1024

// MessageType discriminates which of the four shapes an envelope carries.
type MessageType uint8

const (
	MsgSyncRequest  MessageType = 1
	MsgSyncResponse MessageType = 2
	MsgSyncAck      MessageType = 3
	MsgSyncError    MessageType = 4
)

// ErrorCode enumerates SyncError's reason codes (spec §4.9).
type ErrorCode string

const (
	ErrCodeNotAuthorized  ErrorCode = "NotAuthorized"
	ErrCodePoolNotFound   ErrorCode = "PoolNotFound"
	ErrCodeInvalidVersion ErrorCode = "InvalidVersion"
	ErrCodeOther          ErrorCode = "Other"
)

// SyncRequest asks a peer for every update to pool_id since
// last_version. A nil LastVersion means "send everything you have".
type SyncRequest struct {
	PoolID          uuid.UUID         `json:"pool_id"`
	LastVersion     map[string]uint64 `json:"last_version,omitempty"`
	RequesterPeerID string            `json:"requester_peer_id"`
}

// SyncResponse carries the encoded CRDT delta answering a SyncRequest.
type SyncResponse struct {
	PoolID         uuid.UUID         `json:"pool_id"`
	Updates        []byte            `json:"updates"`
	CardCount      int               `json:"card_count"`
	CurrentVersion map[string]uint64 `json:"current_version"`
}

// SyncAck confirms a SyncResponse was applied, up to confirmed_version.
type SyncAck struct {
	PoolID           uuid.UUID         `json:"pool_id"`
	ConfirmedVersion map[string]uint64 `json:"confirmed_version"`
	DeviceID         string            `json:"device_id"`
}

// SyncError reports why a request could not be served.
type SyncError struct {
	Code    ErrorCode  `json:"code"`
	Message string     `json:"message"`
	PoolID  *uuid.UUID `json:"pool_id,omitempty"`
}

// Message is the one envelope carried over the wire; exactly one of
// the four payload fields is set, matching Type.
type Message struct {
	Type     MessageType   `json:"type"`
	Request  *SyncRequest  `json:"request,omitempty"`
	Response *SyncResponse `json:"response,omitempty"`
	Ack      *SyncAck      `json:"ack,omitempty"`
	Error    *SyncError    `json:"error,omitempty"`
}

// NewRequestMessage wraps req in an envelope.
func NewRequestMessage(req SyncRequest) *Message {
	return &Message{Type: MsgSyncRequest, Request: &req}
}

// NewResponseMessage wraps resp in an envelope.
func NewResponseMessage(resp SyncResponse) *Message {
	return &Message{Type: MsgSyncResponse, Response: &resp}
}

// NewAckMessage wraps ack in an envelope.
func NewAckMessage(ack SyncAck) *Message {
	return &Message{Type: MsgSyncAck, Ack: &ack}
}

// NewErrorMessage wraps a SyncError in an envelope.
func NewErrorMessage(syncErr SyncError) *Message {
	return &Message{Type: MsgSyncError, Error: &syncErr}
}

// Encode serializes the envelope to bytes.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode deserializes an envelope from bytes.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// WriteMessage writes msg to w as a 4-byte big-endian length prefix
// followed by its encoding.
func WriteMessage(w io.Writer, msg *Message) error {
	data, err := msg.Encode()
	if err != nil {
		return core.WrapError(core.ErrInternal, "encoding sync message", err)
	}
	if len(data) > maxMessageSize {
		return core.NewError(core.ErrInvalidArgument, fmt.Sprintf("sync message too large: %d bytes", len(data)))
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(data))); err != nil {
		return core.WrapError(core.ErrIO, "writing sync message length", err)
	}
	if _, err := w.Write(data); err != nil {
		return core.WrapError(core.ErrIO, "writing sync message body", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed envelope from r.
func ReadMessage(r io.Reader) (*Message, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, core.WrapError(core.ErrIO, "reading sync message length", err)
	}
	if length > maxMessageSize {
		return nil, core.NewError(core.ErrInvalidArgument, fmt.Sprintf("sync message too large: %d bytes", length))
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, core.WrapError(core.ErrIO, "reading sync message body", err)
	}
	msg, err := Decode(data)
	if err != nil {
		return nil, core.WrapError(core.ErrIO, "decoding sync message", err)
	}
	return msg, nil
}
