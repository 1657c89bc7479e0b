package model

import "github.com/lumenswitch/orchagent/pkg/sai"

// RouteKey identifies a route entry by VRF and prefix.
type RouteKey struct {
	VRF    string
	Prefix string
}

// RouteEntry is RouteOrch's mirror of one route row. It binds either to a
// RouteOrch-owned NextHopGroupKey (NHGKey set) or to an NhgOrch-owned group
// referenced by string index (NHGIndex set) — never both.
type RouteEntry struct {
	Key      RouteKey
	NHGKey   *NextHopGroupKey
	NHGIndex string
	SAIKey   string // the "vrf:prefix" string passed to sai.RouteAPI
}

func (r *RouteEntry) UsesOwnedGroup() bool {
	return r.NHGKey != nil
}

// IsDefaultRoute reports whether this is the IPv4 or IPv6 default route in
// the main (empty-string) VRF, the case RouteOrch mirrors to state.
func (r *RouteEntry) IsDefaultRoute() bool {
	if r.VRF() != "" {
		return false
	}
	return r.Key.Prefix == "0.0.0.0/0" || r.Key.Prefix == "::/0"
}

func (r *RouteEntry) VRF() string {
	return r.Key.VRF
}

// DefaultRouteState is the state-namespace row RouteOrch mirrors default
// route presence to, keyed by address family, so other daemons can gate on
// connectivity without re-deriving it from the full route table.
type DefaultRouteState struct {
	IPv4Present bool
	IPv6Present bool
}

// NHGRef describes one RouteOrch-managed group: its member key, group
// handle, refcount and temp flag. It carries no NhgOrch index, and no
// RouteOrch method returns it.
type NHGRef struct {
	Key      NextHopGroupKey
	HandleID sai.ObjectID
	RefCount int
	IsTemp   bool
}
