package model

import "github.com/lumenswitch/orchagent/pkg/sai"

// PortKind is the variant tag distinguishing the handful of things a Port
// can be in the dataplane.
type PortKind int

const (
	PortPHY PortKind = iota
	PortLAG
	PortVLAN
	PortSubport
	PortCPU
	PortSystem
	PortTunnel
)

func (k PortKind) String() string {
	switch k {
	case PortPHY:
		return "phy"
	case PortLAG:
		return "lag"
	case PortVLAN:
		return "vlan"
	case PortSubport:
		return "subport"
	case PortCPU:
		return "cpu"
	case PortSystem:
		return "system"
	case PortTunnel:
		return "tunnel"
	default:
		return "unknown"
	}
}

// Port is the identity and attribute set of one interface, LAG, VLAN or
// subport object. It lives for the life of the registered interface; the
// BridgePortID and RIFID sub-handles attach and detach independently of
// the Port's own lifetime.
type Port struct {
	Alias      string
	Kind       PortKind
	ID         sai.ObjectID
	Lanes      []uint32
	MTU        int
	AdminUp    bool
	OperUp     bool
	BridgePortID sai.ObjectID
	RIFID      sai.ObjectID
	VLANID     int // for PortVLAN
	ParentAlias string // for PortSubport
	Members    map[string]bool // for PortLAG / PortVLAN membership
}

// NewPort constructs a Port with an initialized member set.
func NewPort(alias string, kind PortKind) *Port {
	return &Port{Alias: alias, Kind: kind, Members: make(map[string]bool)}
}

func (p *Port) HasBridgePort() bool {
	return p.BridgePortID != 0
}

func (p *Port) HasRouterInterface() bool {
	return p.RIFID != 0
}
