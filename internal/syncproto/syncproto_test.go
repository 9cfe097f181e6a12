package syncproto

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
)

func TestRequestRoundTrip(t *testing.T) {
	poolID := uuid.New()
	msg := NewRequestMessage(SyncRequest{
		PoolID:          poolID,
		LastVersion:     map[string]uint64{"peer-a": 3},
		RequesterPeerID: "peer-b",
	})

	var buf bytes.Buffer
	if err := WriteMessage(&buf, msg); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got.Type != MsgSyncRequest || got.Request == nil {
		t.Fatalf("expected a decoded SyncRequest, got %+v", got)
	}
	if got.Request.PoolID != poolID || got.Request.RequesterPeerID != "peer-b" {
		t.Errorf("round-tripped request mismatch: %+v", got.Request)
	}
	if got.Request.LastVersion["peer-a"] != 3 {
		t.Errorf("expected last_version to survive the round trip, got %+v", got.Request.LastVersion)
	}
}

func TestRequestWithNilLastVersionMeansSendEverything(t *testing.T) {
	msg := NewRequestMessage(SyncRequest{PoolID: uuid.New(), RequesterPeerID: "peer-b"})

	var buf bytes.Buffer
	if err := WriteMessage(&buf, msg); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got.Request.LastVersion != nil {
		t.Errorf("expected nil last_version to round-trip as nil, got %+v", got.Request.LastVersion)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	poolID := uuid.New()
	msg := NewResponseMessage(SyncResponse{
		PoolID:         poolID,
		Updates:        []byte{1, 2, 3, 4},
		CardCount:      7,
		CurrentVersion: map[string]uint64{"peer-a": 5, "peer-b": 2},
	})

	var buf bytes.Buffer
	if err := WriteMessage(&buf, msg); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got.Response.CardCount != 7 || !bytes.Equal(got.Response.Updates, []byte{1, 2, 3, 4}) {
		t.Errorf("round-tripped response mismatch: %+v", got.Response)
	}
	if got.Response.CurrentVersion["peer-a"] != 5 || got.Response.CurrentVersion["peer-b"] != 2 {
		t.Errorf("expected current_version to survive the round trip, got %+v", got.Response.CurrentVersion)
	}
}

func TestAckRoundTrip(t *testing.T) {
	msg := NewAckMessage(SyncAck{
		PoolID:           uuid.New(),
		ConfirmedVersion: map[string]uint64{"peer-a": 9},
		DeviceID:         "device-1",
	})

	var buf bytes.Buffer
	WriteMessage(&buf, msg)
	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got.Type != MsgSyncAck || got.Ack.DeviceID != "device-1" {
		t.Errorf("round-tripped ack mismatch: %+v", got.Ack)
	}
}

func TestErrorRoundTrip(t *testing.T) {
	poolID := uuid.New()
	msg := NewErrorMessage(SyncError{
		Code:    ErrCodeNotAuthorized,
		Message: "peer is not a member of this pool",
		PoolID:  &poolID,
	})

	var buf bytes.Buffer
	WriteMessage(&buf, msg)
	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got.Error.Code != ErrCodeNotAuthorized {
		t.Errorf("expected NotAuthorized code, got %q", got.Error.Code)
	}
	if got.Error.PoolID == nil || *got.Error.PoolID != poolID {
		t.Errorf("expected pool_id to survive the round trip, got %+v", got.Error.PoolID)
	}
}

func TestReadMessageRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	// A length prefix alone, claiming more than maxMessageSize follows.
	lenBuf := []byte{0xff, 0xff, 0xff, 0xff}
	buf.Write(lenBuf)
	if _, err := ReadMessage(&buf); err == nil {
		t.Fatal("expected an error reading an oversized message length")
	}
}

func TestReadMessageOnEmptyReaderErrors(t *testing.T) {
	var buf bytes.Buffer
	if _, err := ReadMessage(&buf); err == nil {
		t.Fatal("expected an error reading from an empty stream")
	}
}
