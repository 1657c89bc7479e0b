package model

import "github.com/lumenswitch/orchagent/pkg/sai"

// TunnelDecap is TunnelDecapOrch's mirror of one logical decap tunnel.
type TunnelDecap struct {
	Name       string
	TunnelID   sai.ObjectID
	OverlayRIFID sai.ObjectID
	SourceIP   string
	DestIPs    map[string]sai.ObjectID // destination IP -> tunnel-term entry handle
	EncapQoSMap sai.ObjectID
	DecapQoSMap sai.ObjectID
	EncapNextHops map[string]*EncapNextHopRef // keyed by destination IP
}

func NewTunnelDecap(name string) *TunnelDecap {
	return &TunnelDecap{
		Name:          name,
		DestIPs:       make(map[string]sai.ObjectID),
		EncapNextHops: make(map[string]*EncapNextHopRef),
	}
}

// IsP2P reports whether termination entries for this tunnel should be
// created as P2P (source+destination) rather than P2MP (destination-only).
func (t *TunnelDecap) IsP2P() bool {
	return t.SourceIP != ""
}

// EncapNextHopRef is a refcounted encap-next-hop handle cached per
// destination IP, shared by every route or mux cable pointing at that
// tunnel destination.
type EncapNextHopRef struct {
	NextHopID sai.ObjectID
	RefCount  int
}
