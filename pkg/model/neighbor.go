package model

import "github.com/lumenswitch/orchagent/pkg/sai"

// NeighborKeyDelimiter separates interface alias from IP in a neighbor's
// composite key, matching NEIGH_TABLE's "alias:ip" row key convention.
const NeighborKeyDelimiter = ":"

// NeighborKey identifies a neighbor by (IP, interface alias). At most one
// neighbor entry exists per key.
type NeighborKey struct {
	Alias string
	IP    string
}

// NeighborEntry is NeighOrch's mirror of one neighbor-table row.
type NeighborEntry struct {
	Key           NeighborKey
	MAC           string
	HWConfigured  bool
	IsLocal       bool // false for VoQ/chassis remote system-port neighbors
	EncapIndex    uint32
	NextHopID     sai.ObjectID
	NextHopRefs   int
	IfDown        bool
}

func (e *NeighborEntry) Unresolved() bool {
	return e.MAC == ""
}
