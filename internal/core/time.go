package core

import "time"

// NowMillis returns the current wall-clock time in milliseconds since
// the Unix epoch, UTC. Cards and Pools stamp their timestamps with
// this — the teacher's Lamport clock is not used here: spec.md
// requires plain UTC milliseconds for Card/Pool timestamps, and
// reserves version-vector logic for the CRDT layer alone (see
// internal/crdt).
func NowMillis() uint64 {
	return uint64(time.Now().UTC().UnixMilli())
}
