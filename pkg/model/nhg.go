package model

import (
	"sort"
	"strings"
)

// NextHopGroupKey is an ordered-unique set of NextHopKeys. Equality and
// ordering are defined on the sorted member set, so two route rows that
// list the same members in a different order resolve to the same group.
type NextHopGroupKey struct {
	Members []NextHopKey
}

// NewNextHopGroupKey builds a group key from a member list, sorting for a
// canonical order and dropping exact duplicates.
func NewNextHopGroupKey(members []NextHopKey) NextHopGroupKey {
	sorted := make([]NextHopKey, len(members))
	copy(sorted, members)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	deduped := sorted[:0]
	for i, m := range sorted {
		if i == 0 || !m.Equal(sorted[i-1]) {
			deduped = append(deduped, m)
		}
	}
	return NextHopGroupKey{Members: deduped}
}

func (g NextHopGroupKey) Size() int {
	return len(g.Members)
}

func (g NextHopGroupKey) IsSingle() bool {
	return len(g.Members) == 1
}

// String renders the canonical ","-joined form used as a map key.
func (g NextHopGroupKey) String() string {
	parts := make([]string, len(g.Members))
	for i, m := range g.Members {
		parts[i] = m.String()
	}
	return strings.Join(parts, string(NHGDelimiter))
}

// Contains reports whether nh is a member of the group.
func (g NextHopGroupKey) Contains(nh NextHopKey) bool {
	for _, m := range g.Members {
		if m.Equal(nh) {
			return true
		}
	}
	return false
}

// Diff returns the members present in g but not in other, and vice versa —
// used by NhgOrch's update path to compute which members to detach before
// attaching the replacement set.
func (g NextHopGroupKey) Diff(other NextHopGroupKey) (removed, added []NextHopKey) {
	for _, m := range g.Members {
		if !other.Contains(m) {
			removed = append(removed, m)
		}
	}
	for _, m := range other.Members {
		if !g.Contains(m) {
			added = append(added, m)
		}
	}
	return removed, added
}

// NHGState is a NextHopGroup's lifecycle stage.
type NHGState int

const (
	NHGUnsynced NHGState = iota
	NHGSyncing
	NHGSyncedNormal
	NHGSyncedTemp
	NHGRemoved
)

func (s NHGState) String() string {
	switch s {
	case NHGUnsynced:
		return "unsynced"
	case NHGSyncing:
		return "syncing"
	case NHGSyncedNormal:
		return "synced_normal"
	case NHGSyncedTemp:
		return "synced_temp"
	case NHGRemoved:
		return "removed"
	default:
		return "unknown"
	}
}
