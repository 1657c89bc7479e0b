package model

import "github.com/lumenswitch/orchagent/pkg/sai"

// MuxState is a mux cable's position in the dual-ToR state machine.
type MuxState int

const (
	MuxInit MuxState = iota
	MuxActive
	MuxStandby
	MuxPending
	MuxFailed
)

func (s MuxState) String() string {
	switch s {
	case MuxInit:
		return "init"
	case MuxActive:
		return "active"
	case MuxStandby:
		return "standby"
	case MuxPending:
		return "pending"
	case MuxFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// muxTransitions enumerates every permitted non-terminal transition; any
// pair not present here is a no-op with a logged warning.
var muxTransitions = map[MuxState]map[MuxState]bool{
	MuxInit:    {MuxActive: true, MuxStandby: true},
	MuxStandby: {MuxActive: true},
	MuxActive:  {MuxStandby: true},
}

// MuxTransitionPermitted reports whether from->to is one of the four
// enumerated transitions.
func MuxTransitionPermitted(from, to MuxState) bool {
	return muxTransitions[from][to]
}

// MuxCable is MuxOrch's per-port mirror of one dual-ToR cable.
type MuxCable struct {
	PortAlias   string
	State       MuxState
	PriorState  MuxState
	ChangeInProgress bool
	ChangeFailed     bool
	PeerTunnelIP string
	ServerIPv4   string
	ServerIPv6   string
	SkipNeighbors map[string]bool
	NeighborHandle map[string]sai.ObjectID // neighbor IP -> local-or-tunnel next hop currently in use
	FallbackRouteIPs map[string]bool        // neighbor IPs held up by a tunnel-fallback route rather than a neighbor entry
	TunnelRefHeld    bool                    // whether this cable currently holds a reference on the shared per-cable tunnel next hop
}

func NewMuxCable(portAlias string) *MuxCable {
	return &MuxCable{
		PortAlias:        portAlias,
		State:            MuxInit,
		SkipNeighbors:    make(map[string]bool),
		NeighborHandle:   make(map[string]sai.ObjectID),
		FallbackRouteIPs: make(map[string]bool),
	}
}

func (m *MuxCable) SkipsNeighbor(ip string) bool {
	return m.SkipNeighbors[ip]
}
