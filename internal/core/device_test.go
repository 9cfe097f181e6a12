package core

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestDeviceConfigIsJoined(t *testing.T) {
	d := DeviceConfig{PeerID: "peer1"}
	if d.IsJoined() {
		t.Error("fresh device config must not report joined")
	}
	d.PoolID = uuid.Must(uuid.NewV7())
	if !d.IsJoined() {
		t.Error("device config with a pool id must report joined")
	}
}

func TestDeviceConfigDiscoveryDeadlineNeverSerialized(t *testing.T) {
	d := DeviceConfig{
		PeerID:            "peer1",
		DeviceName:        "Phone",
		DiscoveryDeadline: 1234567890,
	}
	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(raw), "1234567890") || strings.Contains(string(raw), "discovery") {
		t.Errorf("discovery deadline must never appear in serialized form, got %s", raw)
	}

	var roundTripped DeviceConfig
	if err := json.Unmarshal(raw, &roundTripped); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if roundTripped.DiscoveryDeadline != 0 {
		t.Error("discovery deadline must not survive a JSON round trip")
	}
	if roundTripped.PeerID != d.PeerID || roundTripped.DeviceName != d.DeviceName {
		t.Error("persisted fields must survive the JSON round trip")
	}
}
