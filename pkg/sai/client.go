package sai

// Client aggregates every object-oriented SAI sub-API an Orch may need.
// Orch constructors take a Client so tests can substitute pkg/sai/fake.
type Client interface {
	Port() PortAPI
	RouterInterface() RouterInterfaceAPI
	Neighbor() NeighborAPI
	NextHop() NextHopAPI
	NextHopGroup() NextHopGroupAPI
	Route() RouteAPI
	ACL() ACLAPI
	Policer() PolicerAPI
	Tunnel() TunnelAPI
	Hostif() HostifAPI
	VLAN() VLANAPI
	LAG() LAGAPI
	FDB() FDBAPI
	Bridge() BridgeAPI
	Switch() SwitchAPI
	MPLS() MPLSAPI
	SRv6() SRv6API
}

// PortAPI manages physical/logical port objects and their bridge-port and
// scheduler-group sub-handles.
type PortAPI interface {
	CreatePort(attrs Attributes) (ObjectID, Status)
	RemovePort(id ObjectID) Status
	SetPortAttribute(id ObjectID, attrs Attributes) Status
	GetPortAttribute(id ObjectID, keys []string) (Attributes, Status)
	CreateBridgePort(attrs Attributes) (ObjectID, Status)
	RemoveBridgePort(id ObjectID) Status
}

// RouterInterfaceAPI manages RIF objects.
type RouterInterfaceAPI interface {
	CreateRouterInterface(attrs Attributes) (ObjectID, Status)
	RemoveRouterInterface(id ObjectID) Status
	SetRouterInterfaceAttribute(id ObjectID, attrs Attributes) Status
	GetRouterInterfaceAttribute(id ObjectID, keys []string) (Attributes, Status)
}

// NeighborAPI manages neighbor-table entries, which are header-like objects
// addressed by entry key rather than a returned handle.
type NeighborAPI interface {
	CreateNeighborEntry(key string, attrs Attributes) Status
	RemoveNeighborEntry(key string) Status
	SetNeighborEntryAttribute(key string, attrs Attributes) Status
	GetNeighborEntryAttribute(key string, keys []string) (Attributes, Status)
}

// NextHopAPI manages next-hop objects (plain IP, MPLS-labelled, tunnel-encap).
type NextHopAPI interface {
	CreateNextHop(attrs Attributes) (ObjectID, Status)
	RemoveNextHop(id ObjectID) Status
	SetNextHopAttribute(id ObjectID, attrs Attributes) Status
	GetNextHopAttribute(id ObjectID, keys []string) (Attributes, Status)
}

// NextHopGroupAPI manages ECMP group objects and their member sub-objects.
type NextHopGroupAPI interface {
	CreateNextHopGroup(attrs Attributes) (ObjectID, Status)
	RemoveNextHopGroup(id ObjectID) Status
	CreateNextHopGroupMember(attrs Attributes) (ObjectID, Status)
	RemoveNextHopGroupMember(id ObjectID) Status
	SetNextHopGroupMemberAttribute(id ObjectID, attrs Attributes) Status
}

// RouteAPI manages route entries, addressed by (vrf, prefix) key.
type RouteAPI interface {
	CreateRouteEntry(key string, attrs Attributes) Status
	RemoveRouteEntry(key string) Status
	SetRouteEntryAttribute(key string, attrs Attributes) Status
	GetRouteEntryAttribute(key string, keys []string) (Attributes, Status)
}

// ACLAPI manages ACL tables, table groups, rules (entries), counters and
// range objects.
type ACLAPI interface {
	CreateACLTable(attrs Attributes) (ObjectID, Status)
	RemoveACLTable(id ObjectID) Status
	CreateACLTableGroup(attrs Attributes) (ObjectID, Status)
	RemoveACLTableGroup(id ObjectID) Status
	CreateACLTableGroupMember(attrs Attributes) (ObjectID, Status)
	RemoveACLTableGroupMember(id ObjectID) Status
	CreateACLEntry(attrs Attributes) (ObjectID, Status)
	RemoveACLEntry(id ObjectID) Status
	SetACLEntryAttribute(id ObjectID, attrs Attributes) Status
	CreateACLCounter(attrs Attributes) (ObjectID, Status)
	RemoveACLCounter(id ObjectID) Status
	GetACLCounterAttribute(id ObjectID, keys []string) (Attributes, Status)
	CreateACLRange(attrs Attributes) (ObjectID, Status)
	RemoveACLRange(id ObjectID) Status
	SetPortACLAttribute(port ObjectID, attrs Attributes) Status
}

// PolicerAPI manages meter/policer objects.
type PolicerAPI interface {
	CreatePolicer(attrs Attributes) (ObjectID, Status)
	RemovePolicer(id ObjectID) Status
	SetPolicerAttribute(id ObjectID, attrs Attributes) Status
	SetPortStormControlAttribute(port ObjectID, stormType string, policer ObjectID) Status
}

// TunnelAPI manages tunnel and tunnel-term objects.
type TunnelAPI interface {
	CreateTunnel(attrs Attributes) (ObjectID, Status)
	RemoveTunnel(id ObjectID) Status
	CreateTunnelTermEntry(attrs Attributes) (ObjectID, Status)
	RemoveTunnelTermEntry(id ObjectID) Status
}

// HostifAPI manages host-interface trap/netdev objects used to punt packets
// to the control plane.
type HostifAPI interface {
	CreateHostif(attrs Attributes) (ObjectID, Status)
	RemoveHostif(id ObjectID) Status
}

// VLANAPI manages VLAN objects and VLAN-member sub-objects.
type VLANAPI interface {
	CreateVLAN(attrs Attributes) (ObjectID, Status)
	RemoveVLAN(id ObjectID) Status
	CreateVLANMember(attrs Attributes) (ObjectID, Status)
	RemoveVLANMember(id ObjectID) Status
}

// LAGAPI manages LAG objects and LAG-member sub-objects.
type LAGAPI interface {
	CreateLAG(attrs Attributes) (ObjectID, Status)
	RemoveLAG(id ObjectID) Status
	CreateLAGMember(attrs Attributes) (ObjectID, Status)
	RemoveLAGMember(id ObjectID) Status
}

// FDBAPI manages MAC forwarding-table entries.
type FDBAPI interface {
	CreateFDBEntry(key string, attrs Attributes) Status
	RemoveFDBEntry(key string) Status
	FlushFDBEntries(attrs Attributes) Status
}

// BridgeAPI manages bridge objects.
type BridgeAPI interface {
	CreateBridge(attrs Attributes) (ObjectID, Status)
	RemoveBridge(id ObjectID) Status
}

// SwitchAPI exposes switch-wide capability and default-object queries.
type SwitchAPI interface {
	GetSwitchAttribute(keys []string) (Attributes, Status)
	SetSwitchAttribute(attrs Attributes) Status
}

// MPLSAPI manages MPLS in-segment (label) entries.
type MPLSAPI interface {
	CreateInsegEntry(label uint32, attrs Attributes) Status
	RemoveInsegEntry(label uint32) Status
}

// SRv6API manages SRv6 SID-list objects.
type SRv6API interface {
	CreateSRv6SIDList(attrs Attributes) (ObjectID, Status)
	RemoveSRv6SIDList(id ObjectID) Status
}
