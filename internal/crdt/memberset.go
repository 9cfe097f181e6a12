package crdt

import "github.com/cardmind/core/internal/core"

// MemberElement is one element of a MemberSet: a pool member plus the
// metadata used to resolve concurrent add/remove of the same device.
type MemberElement struct {
	Member    core.PoolMember
	Timestamp uint64
	Removed   bool
}

// MemberSet is a Last-Writer-Wins Element Set of pool members, keyed by
// device id. It mirrors CardSet's merge semantics (spec §4.1) so that
// add_member/remove_member converge the same way card writes do.
type MemberSet struct {
	elements map[string]MemberElement
}

// NewMemberSet creates an empty MemberSet.
func NewMemberSet() *MemberSet {
	return &MemberSet{elements: make(map[string]MemberElement)}
}

// Put inserts or updates a member, idempotent by device id (spec §4.3).
func (s *MemberSet) Put(member core.PoolMember, timestamp uint64) {
	existing, exists := s.elements[member.DeviceID]
	if !exists || memberWins(timestamp, member.DeviceID, false, existing.Timestamp, existing.Member.DeviceID, existing.Removed) {
		s.elements[member.DeviceID] = MemberElement{Member: member, Timestamp: timestamp}
	}
}

// Remove is a no-op when deviceID is absent (spec §4.3).
func (s *MemberSet) Remove(deviceID string, timestamp uint64) {
	existing, exists := s.elements[deviceID]
	if !exists {
		return
	}
	if memberWins(timestamp, deviceID, true, existing.Timestamp, deviceID, existing.Removed) {
		existing.Removed = true
		existing.Timestamp = timestamp
		s.elements[deviceID] = existing
	}
}

// Elements returns the current, non-removed members.
func (s *MemberSet) Elements() []core.PoolMember {
	result := make([]core.PoolMember, 0, len(s.elements))
	for _, elem := range s.elements {
		if !elem.Removed {
			result = append(result, elem.Member)
		}
	}
	return result
}

// AllElements returns every element, including removed ones.
func (s *MemberSet) AllElements() []MemberElement {
	result := make([]MemberElement, 0, len(s.elements))
	for _, elem := range s.elements {
		result = append(result, elem)
	}
	return result
}

// Merge merges other into s in place.
func (s *MemberSet) Merge(other *MemberSet) {
	for deviceID, otherElem := range other.elements {
		existing, exists := s.elements[deviceID]
		if !exists || memberWins(otherElem.Timestamp, deviceID, otherElem.Removed, existing.Timestamp, deviceID, existing.Removed) {
			s.elements[deviceID] = otherElem
		}
	}
}

// Clone deep-copies the set.
func (s *MemberSet) Clone() *MemberSet {
	clone := NewMemberSet()
	for id, elem := range s.elements {
		clone.elements[id] = elem
	}
	return clone
}

// memberWins mirrors CardSet's wins() tie-break rule for string-keyed
// elements: higher timestamp wins; on a tie, removed beats present; on
// a further tie, higher device id wins.
func memberWins(ts uint64, deviceID string, removed bool, incumbentTS uint64, incumbentID string, incumbentRemoved bool) bool {
	if ts != incumbentTS {
		return ts > incumbentTS
	}
	if removed != incumbentRemoved {
		return removed
	}
	if removed {
		return false
	}
	return deviceID > incumbentID
}
