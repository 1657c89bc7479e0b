// Package tunneldecaporch manages IP-in-IP decap tunnels: the overlay
// loopback RIF and tunnel object a logical tunnel name maps to, the
// termination entries for its configured destination IPs, and the
// refcounted encap-next-hop cache MuxOrch uses when it needs a next hop pointing into the tunnel.
package tunneldecaporch

import (
	"context"
	"fmt"
	"strings"

	"github.com/lumenswitch/orchagent/pkg/model"
	"github.com/lumenswitch/orchagent/pkg/orch"
	"github.com/lumenswitch/orchagent/pkg/sai"
	"github.com/lumenswitch/orchagent/pkg/util"
)

var ecnModes = map[string]string{
	"copy_from_outer": "SAI_TUNNEL_DECAP_ECN_MODE_STANDARD",
	"standard":        "SAI_TUNNEL_DECAP_ECN_MODE_STANDARD",
	"pipe":            "SAI_TUNNEL_DECAP_ECN_MODE_COPY_FROM_OUTER",
	"uniform":         "SAI_TUNNEL_DECAP_ECN_MODE_COPY_FROM_OUTER",
}

var dscpModes = map[string]string{
	"pipe":     "SAI_TUNNEL_DSCP_MODE_PIPE_MODEL",
	"uniform":  "SAI_TUNNEL_DSCP_MODE_UNIFORM_MODEL",
}

var ttlModes = map[string]string{
	"pipe":    "SAI_TUNNEL_TTL_MODE_PIPE_MODEL",
	"uniform": "SAI_TUNNEL_TTL_MODE_UNIFORM_MODEL",
}

// TunnelDecapOrch owns every logical decap tunnel's overlay RIF, tunnel and
// termination-entry handles, plus the shared encap-next-hop cache.
type TunnelDecapOrch struct {
	client sai.Client
	vrfID  sai.ObjectID

	tunnelTable *orch.Consumer
	syncd       map[string]*model.TunnelDecap
}

// NewTunnelDecapOrch constructs a TunnelDecapOrch against the default VRF
// the overlay loopback RIFs are created in.
func NewTunnelDecapOrch(client sai.Client, vrfID sai.ObjectID) *TunnelDecapOrch {
	return &TunnelDecapOrch{
		client:      client,
		vrfID:       vrfID,
		tunnelTable: orch.NewConsumer("TUNNEL_DECAP_TABLE"),
		syncd:       make(map[string]*model.TunnelDecap),
	}
}

func (o *TunnelDecapOrch) Name() string               { return "TunnelDecapOrch" }
func (o *TunnelDecapOrch) Consumers() []*orch.Consumer { return []*orch.Consumer{o.tunnelTable} }

func (o *TunnelDecapOrch) Push(name string, op orch.Op, fields map[string]string) {
	o.tunnelTable.Push(name, op, fields)
}

// GetTunnel exposes a tunnel's current mirror for MuxOrch's next-hop lookups.
func (o *TunnelDecapOrch) GetTunnel(name string) (*model.TunnelDecap, bool) {
	t, ok := o.syncd[name]
	return t, ok
}

func (o *TunnelDecapOrch) DoTask(ctx context.Context) error {
	log := util.WithOrch(o.Name())
	for _, row := range o.tunnelTable.Batch() {
		err := o.doTunnelTask(row)
		switch {
		case err == nil:
			o.tunnelTable.Ack(row.Key, row.Seq)
		case util.ClassifyRowError(err) == util.RowFatal:
			return err
		case util.ClassifyRowError(err) == util.RowConsume:
			log.WithField("key", row.Key).WithField("error", err).Error("row invalid, consuming")
			o.tunnelTable.Ack(row.Key, row.Seq)
		default:
			log.WithField("key", row.Key).WithField("error", err).Warn("tunnel task deferred")
		}
	}
	return nil
}

func (o *TunnelDecapOrch) doTunnelTask(row orch.Row) error {
	if row.Op == orch.OpDel {
		return o.removeTunnel(row.Key)
	}
	return o.setTunnel(row.Key, row.Fields)
}

func (o *TunnelDecapOrch) setTunnel(name string, fields map[string]string) error {
	if fields["tunnel_type"] != "" && fields["tunnel_type"] != "IPINIP" {
		return util.NewValidationError(fmt.Sprintf("tunnel %s: unsupported tunnel_type %q", name, fields["tunnel_type"]))
	}

	existing, exists := o.syncd[name]
	srcIP := fields["src_ip"]
	if exists && srcIP != "" && srcIP != existing.SourceIP {
		return util.NewValidationError(fmt.Sprintf("tunnel %s: src_ip cannot be changed on an existing tunnel", name))
	}

	dstIPs := util.SplitCommaSeparated(fields["dst_ip"])
	if len(dstIPs) == 0 && !exists {
		return util.NewRetryableError(fmt.Errorf("tunnel %s: dst_ip required", name))
	}

	if !exists {
		t, err := o.createTunnel(name, srcIP, fields)
		if err != nil {
			return err
		}
		o.syncd[name] = t
		existing = t
	}

	for _, dst := range dstIPs {
		if _, ok := existing.DestIPs[dst]; ok {
			continue
		}
		if err := o.addTermEntry(existing, dst); err != nil {
			return err
		}
	}
	return nil
}

func (o *TunnelDecapOrch) createTunnel(name, srcIP string, fields map[string]string) (*model.TunnelDecap, error) {
	rifAttrs := sai.Attributes{
		"SAI_ROUTER_INTERFACE_ATTR_VIRTUAL_ROUTER_ID": o.vrfID,
		"SAI_ROUTER_INTERFACE_ATTR_TYPE":              "SAI_ROUTER_INTERFACE_TYPE_LOOPBACK",
	}
	rifID, status := o.client.RouterInterface().CreateRouterInterface(rifAttrs)
	if status != sai.StatusSuccess {
		return nil, classify(status, true, "create overlay RIF")
	}

	attrs := sai.Attributes{
		"SAI_TUNNEL_ATTR_TYPE":               "SAI_TUNNEL_TYPE_IPINIP",
		"SAI_TUNNEL_ATTR_OVERLAY_INTERFACE":   rifID,
		"SAI_TUNNEL_ATTR_UNDERLAY_INTERFACE":  o.vrfID,
	}
	if srcIP != "" {
		attrs["SAI_TUNNEL_ATTR_ENCAP_SRC_IP"] = srcIP
	}
	if mode, ok := dscpModes[strings.ToLower(fields["dscp_mode"])]; ok {
		attrs["SAI_TUNNEL_ATTR_DECAP_DSCP_MODE"] = mode
	}
	if mode, ok := ecnModes[strings.ToLower(fields["ecn_mode"])]; ok {
		attrs["SAI_TUNNEL_ATTR_DECAP_ECN_MODE"] = mode
	}
	if mode, ok := ecnModes[strings.ToLower(fields["encap_ecn_mode"])]; ok {
		attrs["SAI_TUNNEL_ATTR_ENCAP_ECN_MODE"] = mode
	}
	if mode, ok := ttlModes[strings.ToLower(fields["ttl_mode"])]; ok {
		attrs["SAI_TUNNEL_ATTR_DECAP_TTL_MODE"] = mode
	}
	// QoS map fields are passed straight through as opaque handles; this
	// module has no QoS map resolver, so the caller must supply a SAI
	// object ID directly rather than a map name.
	if v := fields["decap_dscp_to_tc_map_id"]; v != "" {
		attrs["SAI_TUNNEL_ATTR_DECAP_QOS_DSCP_TO_TC_MAP"] = v
	}
	if v := fields["decap_tc_to_pg_map_id"]; v != "" {
		attrs["SAI_TUNNEL_ATTR_DECAP_QOS_TC_TO_PRIORITY_GROUP_MAP"] = v
	}

	tunnelID, status := o.client.Tunnel().CreateTunnel(attrs)
	if status != sai.StatusSuccess {
		_ = o.client.RouterInterface().RemoveRouterInterface(rifID)
		return nil, classify(status, true, "create tunnel")
	}

	t := model.NewTunnelDecap(name)
	t.TunnelID = tunnelID
	t.OverlayRIFID = rifID
	t.SourceIP = srcIP
	return t, nil
}

func (o *TunnelDecapOrch) addTermEntry(t *model.TunnelDecap, dst string) error {
	termType := "SAI_TUNNEL_TERM_TABLE_ENTRY_TYPE_P2MP"
	attrs := sai.Attributes{
		"SAI_TUNNEL_TERM_TABLE_ENTRY_ATTR_VR_ID":       o.vrfID,
		"SAI_TUNNEL_TERM_TABLE_ENTRY_ATTR_TYPE":        termType,
		"SAI_TUNNEL_TERM_TABLE_ENTRY_ATTR_TUNNEL_TYPE":  "SAI_TUNNEL_TYPE_IPINIP",
		"SAI_TUNNEL_TERM_TABLE_ENTRY_ATTR_ACTION_TUNNEL_ID": t.TunnelID,
		"SAI_TUNNEL_TERM_TABLE_ENTRY_ATTR_DST_IP":      dst,
	}
	if t.IsP2P() {
		attrs["SAI_TUNNEL_TERM_TABLE_ENTRY_ATTR_TYPE"] = "SAI_TUNNEL_TERM_TABLE_ENTRY_TYPE_P2P"
		attrs["SAI_TUNNEL_TERM_TABLE_ENTRY_ATTR_SRC_IP"] = t.SourceIP
	}

	id, status := o.client.Tunnel().CreateTunnelTermEntry(attrs)
	if status != sai.StatusSuccess {
		return classify(status, true, "create tunnel term entry")
	}
	t.DestIPs[dst] = id
	return nil
}

func (o *TunnelDecapOrch) removeTunnel(name string) error {
	t, ok := o.syncd[name]
	if !ok {
		return nil
	}
	if len(t.EncapNextHops) > 0 {
		return util.NewRetryableError(fmt.Errorf("tunnel %s: %d next hops still referenced", name, len(t.EncapNextHops)))
	}
	for dst, id := range t.DestIPs {
		if status := o.client.Tunnel().RemoveTunnelTermEntry(id); status != sai.StatusSuccess {
			return classify(status, false, "remove tunnel term entry")
		}
		delete(t.DestIPs, dst)
	}
	if status := o.client.Tunnel().RemoveTunnel(t.TunnelID); status != sai.StatusSuccess {
		return classify(status, false, "remove tunnel")
	}
	if status := o.client.RouterInterface().RemoveRouterInterface(t.OverlayRIFID); status != sai.StatusSuccess {
		return classify(status, false, "remove overlay RIF")
	}
	delete(o.syncd, name)
	return nil
}

// GetDstIPAddresses returns the destination IPs a tunnel currently
// terminates, for callers (e.g. MuxOrch) that need to know whether a given
// peer IP is already covered.
func (o *TunnelDecapOrch) GetDstIPAddresses(name string) []string {
	t, ok := o.syncd[name]
	if !ok {
		return nil
	}
	ips := make([]string, 0, len(t.DestIPs))
	for ip := range t.DestIPs {
		ips = append(ips, ip)
	}
	return ips
}

// CreateNextHopTunnel returns the cached encap next hop for
// (tunnelName, dstIP), creating and caching it with refcount 1 on first use
// or incrementing the refcount of an existing one.
func (o *TunnelDecapOrch) CreateNextHopTunnel(tunnelName, dstIP string) (sai.ObjectID, error) {
	t, ok := o.syncd[tunnelName]
	if !ok {
		return 0, util.NewFatalError(fmt.Errorf("tunnel %s not found", tunnelName))
	}
	if ref, ok := t.EncapNextHops[dstIP]; ok {
		ref.RefCount++
		return ref.NextHopID, nil
	}

	attrs := sai.Attributes{
		"SAI_NEXT_HOP_ATTR_TYPE":      "SAI_NEXT_HOP_TYPE_TUNNEL_ENCAP",
		"SAI_NEXT_HOP_ATTR_IP":        dstIP,
		"SAI_NEXT_HOP_ATTR_TUNNEL_ID": t.TunnelID,
	}
	id, status := o.client.NextHop().CreateNextHop(attrs)
	if status != sai.StatusSuccess {
		return 0, classify(status, true, "create encap next hop")
	}
	t.EncapNextHops[dstIP] = &model.EncapNextHopRef{NextHopID: id, RefCount: 1}
	return id, nil
}

// RemoveNextHopTunnel releases one reference on the cached encap next hop
// for (tunnelName, dstIP), destroying it once the refcount reaches zero. A
// lookup miss is a benign no-op, mirroring the caller-facing contract that
// borrowers need not track whether they are the last releaser.
func (o *TunnelDecapOrch) RemoveNextHopTunnel(tunnelName, dstIP string) error {
	t, ok := o.syncd[tunnelName]
	if !ok {
		return nil
	}
	ref, ok := t.EncapNextHops[dstIP]
	if !ok {
		return nil
	}
	ref.RefCount--
	if ref.RefCount > 0 {
		return nil
	}
	if status := o.client.NextHop().RemoveNextHop(ref.NextHopID); status != sai.StatusSuccess {
		return classify(status, false, "remove encap next hop")
	}
	delete(t.EncapNextHops, dstIP)
	return nil
}

// GetNextHopTunnel is a non-owning lookup: it returns the cached handle
// without taking a reference, for callers that only need to know whether
// one already exists.
func (o *TunnelDecapOrch) GetNextHopTunnel(tunnelName, dstIP string) (sai.ObjectID, bool) {
	t, ok := o.syncd[tunnelName]
	if !ok {
		return 0, false
	}
	ref, ok := t.EncapNextHops[dstIP]
	if !ok {
		return 0, false
	}
	return ref.NextHopID, true
}

func classify(status sai.Status, isCreate bool, op string) error {
	switch sai.ClassifyStatus(status, isCreate) {
	case sai.DispositionBenignRace:
		return nil
	case sai.DispositionTransientRetry:
		return util.NewRetryableError(fmt.Errorf("%s: status %v", op, status))
	default:
		return util.NewFatalError(fmt.Errorf("%s: status %v", op, status))
	}
}
