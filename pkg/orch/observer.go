package orch

import "sync"

// NeighborChange is published after NeighOrch has updated its own mirror
// and the dataplane for one neighbor entry.
type NeighborChange struct {
	Alias   string
	IP      string
	Added   bool
	Resolved bool
}

// NextHopChange is published whenever a next hop becomes resolved
// (interface up, neighbor resolved) or loses resolution, driving NhgOrch's
// validate_next_hop / invalidate_next_hop.
type NextHopChange struct {
	Key      string
	Resolved bool
}

// FdbChange is published on a single FDB entry add/remove.
type FdbChange struct {
	Key     string
	Added   bool
	Port    string
	VlanID  int
}

// FdbFlushChange is published when a bulk FDB flush occurs (e.g. on a port
// going down or a VLAN member leaving).
type FdbFlushChange struct {
	Port   string
	VlanID int
}

// NhgPromotedChange is published by NhgOrch when a temp group at the
// given index is promoted to a real group, so RouteOrch can rebind every
// route bound to that index to the new handle before the temp group is
// torn down.
type NhgPromotedChange struct {
	Index string
}

// MirrorSessionChange is published when a mirror session's active/inactive
// state flips, driving AclOrch's mirror-rule reconciliation.
type MirrorSessionChange struct {
	Name   string
	Active bool
}

// VlanMemberChange is published on VLAN membership add/remove.
type VlanMemberChange struct {
	VlanID int
	Port   string
	Added  bool
}

// LagMemberChange is published on LAG membership add/remove.
type LagMemberChange struct {
	LagAlias string
	Port     string
	Added    bool
}

// Observer receives notifications published by a Subject. Update is called
// synchronously on the publisher's goroutine; implementations must not
// mutate the publisher's state, though re-entrant reads through the
// publisher's own accessors are permitted.
type Observer interface {
	Update(change interface{})
}

// Subject fans a change out to every registered Observer, synchronously,
// in registration order.
type Subject struct {
	mu        sync.Mutex
	observers []Observer
}

// Attach registers an Observer to receive future Notify calls.
func (s *Subject) Attach(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Detach removes a previously attached Observer. A no-op if it was never
// attached, so Orch teardown can call it unconditionally in reverse
// construction order without tracking attachment state.
func (s *Subject) Detach(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.observers {
		if existing == o {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

// Notify publishes change to every attached Observer.
func (s *Subject) Notify(change interface{}) {
	s.mu.Lock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, o := range observers {
		o.Update(change)
	}
}
