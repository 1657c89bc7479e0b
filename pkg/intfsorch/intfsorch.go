// Package intfsorch manages router-interface (RIF) lifecycle: creating a
// RIF on the alias's bare (prefix-less) entry — a prefix row never creates
// a RIF and waits until that entry has created one — the IP-to-me
// route and directed-broadcast neighbor every prefix carries, mutable
// attribute handling for subport interfaces, and removal once the last
// prefix and reference both drop.
package intfsorch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lumenswitch/orchagent/pkg/model"
	"github.com/lumenswitch/orchagent/pkg/orch"
	"github.com/lumenswitch/orchagent/pkg/portsorch"
	"github.com/lumenswitch/orchagent/pkg/sai"
	"github.com/lumenswitch/orchagent/pkg/util"
)

// IntfsOrch owns the RIF mirror for every router interface and the subnet
// routes/directed-broadcast neighbors each configured prefix implies.
type IntfsOrch struct {
	client    sai.Client
	ports     *portsorch.PortsOrch
	vrfID     sai.ObjectID // default VRF, substituted when a row carries none
	routerMAC string

	intfTable *orch.Consumer
	syncd     map[string]*model.IntfsEntry
}

// NewIntfsOrch constructs an IntfsOrch against the given SAI client,
// PortsOrch (for port lookup and refcounting) and the switch's default
// VRF/MAC, mirroring the constructor arguments the original source takes.
func NewIntfsOrch(client sai.Client, ports *portsorch.PortsOrch, vrfID sai.ObjectID, routerMAC string) *IntfsOrch {
	return &IntfsOrch{
		client:    client,
		ports:     ports,
		vrfID:     vrfID,
		routerMAC: routerMAC,
		intfTable: orch.NewConsumer("INTF_TABLE"),
		syncd:     make(map[string]*model.IntfsEntry),
	}
}

func (o *IntfsOrch) Name() string                    { return "IntfsOrch" }
func (o *IntfsOrch) Consumers() []*orch.Consumer      { return []*orch.Consumer{o.intfTable} }
func (o *IntfsOrch) Push(key string, op orch.Op, fields map[string]string) {
	o.intfTable.Push(key, op, fields)
}

// GetSyncdIntfs exposes the current RIF mirror for RouteOrch's default-
// route state and NeighOrch's interface-up resolution checks.
func (o *IntfsOrch) GetSyncdIntfs() map[string]*model.IntfsEntry { return o.syncd }

func (o *IntfsOrch) DoTask(ctx context.Context) error {
	log := util.WithOrch(o.Name())
	for _, row := range o.intfTable.Batch() {
		err := o.doIntfTask(row)
		switch {
		case err == nil:
			o.intfTable.Ack(row.Key, row.Seq)
		case util.ClassifyRowError(err) == util.RowFatal:
			return err
		case util.ClassifyRowError(err) == util.RowConsume:
			log.WithField("error", err).WithField("key", row.Key).Error("row invalid, consuming")
			o.intfTable.Ack(row.Key, row.Seq)
		default:
			log.WithField("error", err).WithField("key", row.Key).Warn("doIntfTask deferred")
		}
	}
	return nil
}

// doIntfTask dispatches one INTF_TABLE row. The key is either a bare alias
// ("Ethernet0") or "alias|prefix" ("Ethernet0|10.0.0.1/31") — the original
// source's key grammar for attaching an IP to an existing RIF.
func (o *IntfsOrch) doIntfTask(row orch.Row) error {
	alias, prefix, hasPrefix := splitIntfKey(row.Key)
	if row.Op == orch.OpDel {
		return o.removeIntf(alias, prefix, hasPrefix)
	}
	return o.setIntf(alias, prefix, hasPrefix, row.Fields)
}

func splitIntfKey(key string) (alias, prefix string, hasPrefix bool) {
	if idx := strings.Index(key, "|"); idx >= 0 {
		return key[:idx], key[idx+1:], true
	}
	return key, "", false
}

func (o *IntfsOrch) setIntf(alias, prefix string, hasPrefix bool, fields map[string]string) error {
	port, ok := o.ports.GetPort(alias)
	if !ok {
		return util.NewRetryableError(fmt.Errorf("port %s not yet created", alias))
	}

	entry, exists := o.syncd[alias]
	if !exists {
		if hasPrefix {
			return util.NewRetryableError(fmt.Errorf("RIF %s not yet created, deferring prefix", alias))
		}
		newEntry, err := o.addRouterIntfs(port, fields)
		if err != nil {
			return err
		}
		o.syncd[alias] = newEntry
		entry = newEntry
	} else if port.Kind == model.PortSubport {
		o.applyMutableAttributes(port, entry, fields)
	}

	if !hasPrefix {
		return nil
	}
	if entry.Prefixes[prefix] {
		return nil
	}

	if o.prefixOverlapsVRF(entry.VRFID, prefix) {
		return util.NewRetryableError(fmt.Errorf("prefix %s overlaps an existing prefix in this VRF", prefix))
	}

	o.addIP2MeRoute(entry.VRFID, prefix)
	if port.Kind == model.PortVLAN {
		o.addDirectedBroadcast(port, prefix)
	}
	entry.Prefixes[prefix] = true
	return nil
}

func (o *IntfsOrch) applyMutableAttributes(port *model.Port, entry *model.IntfsEntry, fields map[string]string) {
	if mtu, ok := fields["mtu"]; ok {
		if v, err := strconv.Atoi(mtu); err == nil && v != entry.MTU {
			entry.MTU = v
			_ = o.client.RouterInterface().SetRouterInterfaceAttribute(entry.RIFID, sai.Attributes{"SAI_ROUTER_INTERFACE_ATTR_MTU": mtu})
		}
	}
	if admin, ok := fields["admin_status"]; ok {
		up := admin == "up"
		if up != entry.AdminUp {
			entry.AdminUp = up
			_ = o.client.RouterInterface().SetRouterInterfaceAttribute(entry.RIFID, sai.Attributes{"SAI_ROUTER_INTERFACE_ATTR_ADMIN_V4_STATE": up})
		}
	}
}

func (o *IntfsOrch) addRouterIntfs(port *model.Port, fields map[string]string) (*model.IntfsEntry, error) {
	vrfID := o.vrfID
	attrs := sai.Attributes{
		"SAI_ROUTER_INTERFACE_ATTR_VIRTUAL_ROUTER_ID": vrfID,
		"SAI_ROUTER_INTERFACE_ATTR_SRC_MAC_ADDRESS":   o.routerMAC,
	}
	switch port.Kind {
	case model.PortVLAN:
		attrs["SAI_ROUTER_INTERFACE_ATTR_TYPE"] = "SAI_ROUTER_INTERFACE_TYPE_VLAN"
		attrs["SAI_ROUTER_INTERFACE_ATTR_VLAN_ID"] = port.ID
	case model.PortLAG:
		attrs["SAI_ROUTER_INTERFACE_ATTR_TYPE"] = "SAI_ROUTER_INTERFACE_TYPE_PORT"
		attrs["SAI_ROUTER_INTERFACE_ATTR_PORT_ID"] = port.ID
	default:
		attrs["SAI_ROUTER_INTERFACE_ATTR_TYPE"] = "SAI_ROUTER_INTERFACE_TYPE_PORT"
		attrs["SAI_ROUTER_INTERFACE_ATTR_PORT_ID"] = port.ID
	}

	id, status := o.client.RouterInterface().CreateRouterInterface(attrs)
	disp := sai.ClassifyStatus(status, true)
	if disp == sai.DispositionTransientRetry {
		return nil, fmt.Errorf("create RIF %s: %s", port.Alias, status)
	}
	if disp == sai.DispositionFatal {
		return nil, util.NewFatalError(fmt.Errorf("create RIF %s: %s", port.Alias, status))
	}

	entry := model.NewIntfsEntry(port.Alias)
	entry.RIFID = id
	entry.VRFID = vrfID
	entry.AdminUp = true
	o.ports.SetRouterInterfaceHandle(port.Alias, id)

	if mtu, ok := fields["mtu"]; ok {
		if v, err := strconv.Atoi(mtu); err == nil {
			entry.MTU = v
		}
	}
	return entry, nil
}

func (o *IntfsOrch) removeRouterIntfs(alias string) error {
	entry, ok := o.syncd[alias]
	if !ok {
		return nil
	}
	if !entry.Removable() {
		return util.NewRetryableError(fmt.Errorf("RIF %s still has prefixes or references", alias))
	}
	if status := o.client.RouterInterface().RemoveRouterInterface(entry.RIFID); sai.ClassifyStatus(status, false) == sai.DispositionTransientRetry {
		return fmt.Errorf("remove RIF %s: %s", alias, status)
	}
	o.ports.SetRouterInterfaceHandle(alias, 0)
	delete(o.syncd, alias)
	return nil
}

func (o *IntfsOrch) removeIntf(alias, prefix string, hasPrefix bool) error {
	entry, ok := o.syncd[alias]
	if !ok {
		return nil
	}
	if hasPrefix {
		if !entry.Prefixes[prefix] {
			return nil
		}
		o.removeIP2MeRoute(entry.VRFID, prefix)
		delete(entry.Prefixes, prefix)
		return nil
	}
	return o.removeRouterIntfs(alias)
}

// prefixOverlapsVRF reports whether prefix overlaps any prefix already
// configured on any RIF in the same VRF, per the original source's
// ifconfig-transient-/8 workaround: a new prefix must not be installed
// while an overlapping narrower/wider prefix is still present.
func (o *IntfsOrch) prefixOverlapsVRF(vrfID sai.ObjectID, prefix string) bool {
	for _, entry := range o.syncd {
		if entry.VRFID != vrfID {
			continue
		}
		for existing := range entry.Prefixes {
			if util.PrefixesOverlap(existing, prefix) {
				return true
			}
		}
	}
	return false
}

// addIP2MeRoute and removeIP2MeRoute install/remove the host route that
// delivers packets addressed to this RIF's own IP to the control plane,
// grounded on the original source's addIp2MeRoute/removeIp2MeRoute.
func (o *IntfsOrch) addIP2MeRoute(vrfID sai.ObjectID, prefix string) {
	ip, _, err := util.ParseIPWithMask(prefix)
	if err != nil {
		return
	}
	plen := 32
	if ip.To4() == nil {
		plen = 128
	}
	key := fmt.Sprintf("%d:%s/%d", vrfID, ip.String(), plen)
	_ = o.client.Route().CreateRouteEntry(key, sai.Attributes{
		"SAI_ROUTE_ENTRY_ATTR_PACKET_ACTION": "SAI_PACKET_ACTION_FORWARD",
	})
}

func (o *IntfsOrch) removeIP2MeRoute(vrfID sai.ObjectID, prefix string) {
	ip, _, err := util.ParseIPWithMask(prefix)
	if err != nil {
		return
	}
	plen := 32
	if ip.To4() == nil {
		plen = 128
	}
	key := fmt.Sprintf("%d:%s/%d", vrfID, ip.String(), plen)
	_ = o.client.Route().RemoveRouteEntry(key)
}

// addDirectedBroadcast installs a neighbor entry for a VLAN prefix's
// broadcast address so a directed broadcast punts to the control plane
// instead of being silently dropped, grounded on the original source's
// addDirectedBroadcast. Point-to-point (/31, /32) prefixes have no
// broadcast address and are skipped.
func (o *IntfsOrch) addDirectedBroadcast(port *model.Port, prefix string) {
	_, maskLen, err := util.ParseIPWithMask(prefix)
	if err != nil || util.IsPointToPointOrSmaller(maskLen) {
		return
	}
	bcast, err := util.BroadcastAddress(prefix)
	if err != nil {
		return
	}
	key := fmt.Sprintf("%s@%s", bcast, port.Alias)
	_ = o.client.Neighbor().CreateNeighborEntry(key, sai.Attributes{
		"SAI_NEIGHBOR_ENTRY_ATTR_DST_MAC_ADDRESS": "ff:ff:ff:ff:ff:ff",
	})
}

var _ orch.Orch = (*IntfsOrch)(nil)
