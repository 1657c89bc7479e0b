// Package portsorch is the interface-lookup dependency every L3 component
// consumes: Port/LAG/VLAN objects and the bridge-port/router-interface
// sub-handle lifecycle. It is the first Orch drained each pass, since
// IntfsOrch, NeighOrch and MuxOrch all resolve a Port by alias before doing
// anything dataplane-visible.
package portsorch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lumenswitch/orchagent/pkg/model"
	"github.com/lumenswitch/orchagent/pkg/orch"
	"github.com/lumenswitch/orchagent/pkg/sai"
	"github.com/lumenswitch/orchagent/pkg/util"
)

// PortsOrch owns every Port, VLAN and LAG object and the default bridge
// they attach to. Other Orches hold a *PortsOrch reference and call its
// lookup/attach methods directly rather than going through the Consumer
// pipeline, the same way the original source's gPortsOrch is reached
// through a raw pointer from every other Orch.
type PortsOrch struct {
	client sai.Client

	portTable       *orch.Consumer
	vlanTable       *orch.Consumer
	vlanMemberTable *orch.Consumer
	lagTable        *orch.Consumer
	lagMemberTable  *orch.Consumer

	ports map[string]*model.Port // by alias
	byID  map[sai.ObjectID]*model.Port

	defaultBridgeID sai.ObjectID

	vlanMembers orch.Subject
	lagMembers  orch.Subject
}

// NewPortsOrch constructs a PortsOrch and creates the default .1Q bridge
// every bridge port attaches to, mirroring the original source's
// initializeBridge called out of the constructor.
func NewPortsOrch(client sai.Client) (*PortsOrch, sai.Status) {
	bridgeID, status := client.Bridge().CreateBridge(sai.Attributes{
		"SAI_BRIDGE_ATTR_TYPE": "SAI_BRIDGE_TYPE_1Q",
	})
	if status != sai.StatusSuccess {
		return nil, status
	}

	return &PortsOrch{
		client:          client,
		portTable:       orch.NewConsumer("PORT_TABLE"),
		vlanTable:       orch.NewConsumer("VLAN_TABLE"),
		vlanMemberTable: orch.NewConsumer("VLAN_MEMBER_TABLE"),
		lagTable:        orch.NewConsumer("LAG_TABLE"),
		lagMemberTable:  orch.NewConsumer("LAG_MEMBER_TABLE"),
		ports:           make(map[string]*model.Port),
		byID:            make(map[sai.ObjectID]*model.Port),
		defaultBridgeID: bridgeID,
	}, sai.StatusSuccess
}

func (o *PortsOrch) Name() string { return "PortsOrch" }

func (o *PortsOrch) Consumers() []*orch.Consumer {
	return []*orch.Consumer{o.portTable, o.vlanTable, o.vlanMemberTable, o.lagTable, o.lagMemberTable}
}

// Push* methods feed the Consumer pipeline; they exist so cmd/orchagent can
// wire table notifications without reaching into the Consumers directly.
func (o *PortsOrch) PushPort(alias string, op orch.Op, fields map[string]string) {
	o.portTable.Push(alias, op, fields)
}

func (o *PortsOrch) PushVlan(key string, op orch.Op, fields map[string]string) {
	o.vlanTable.Push(key, op, fields)
}

func (o *PortsOrch) PushVlanMember(key string, op orch.Op, fields map[string]string) {
	o.vlanMemberTable.Push(key, op, fields)
}

func (o *PortsOrch) PushLag(alias string, op orch.Op, fields map[string]string) {
	o.lagTable.Push(alias, op, fields)
}

func (o *PortsOrch) PushLagMember(key string, op orch.Op, fields map[string]string) {
	o.lagMemberTable.Push(key, op, fields)
}

// AttachVlanMemberObserver and AttachLagMemberObserver register an observer
// for VlanMemberChange / LagMemberChange notifications. No Orch in this
// module attaches one.
func (o *PortsOrch) AttachVlanMemberObserver(obs orch.Observer) { o.vlanMembers.Attach(obs) }
func (o *PortsOrch) AttachLagMemberObserver(obs orch.Observer)  { o.lagMembers.Attach(obs) }

// DoTask drains every pending row across the five tables PortsOrch owns, in
// the priority order a physical port must exist before it can join a VLAN
// or LAG.
func (o *PortsOrch) DoTask(ctx context.Context) error {
	log := util.WithOrch(o.Name())

	for _, row := range o.portTable.Batch() {
		err := o.doPortTask(row)
		switch {
		case err == nil:
			o.portTable.Ack(row.Key, row.Seq)
		case util.ClassifyRowError(err) == util.RowFatal:
			return err
		case util.ClassifyRowError(err) == util.RowConsume:
			log.WithField("error", err).WithField("port", row.Key).Error("doPortTask: row invalid, consuming")
			o.portTable.Ack(row.Key, row.Seq)
		default:
			log.WithField("error", err).WithField("port", row.Key).Warn("doPortTask deferred")
		}
	}

	for _, row := range o.lagTable.Batch() {
		err := o.doLagTask(row)
		switch {
		case err == nil:
			o.lagTable.Ack(row.Key, row.Seq)
		case util.ClassifyRowError(err) == util.RowFatal:
			return err
		case util.ClassifyRowError(err) == util.RowConsume:
			log.WithField("error", err).WithField("lag", row.Key).Error("doLagTask: row invalid, consuming")
			o.lagTable.Ack(row.Key, row.Seq)
		default:
			log.WithField("error", err).WithField("lag", row.Key).Warn("doLagTask deferred")
		}
	}

	for _, row := range o.vlanTable.Batch() {
		err := o.doVlanTask(row)
		switch {
		case err == nil:
			o.vlanTable.Ack(row.Key, row.Seq)
		case util.ClassifyRowError(err) == util.RowFatal:
			return err
		case util.ClassifyRowError(err) == util.RowConsume:
			log.WithField("error", err).WithField("vlan", row.Key).Error("doVlanTask: row invalid, consuming")
			o.vlanTable.Ack(row.Key, row.Seq)
		default:
			log.WithField("error", err).WithField("vlan", row.Key).Warn("doVlanTask deferred")
		}
	}

	for _, row := range o.lagMemberTable.Batch() {
		err := o.doLagMemberTask(row)
		switch {
		case err == nil:
			o.lagMemberTable.Ack(row.Key, row.Seq)
		case util.ClassifyRowError(err) == util.RowFatal:
			return err
		case util.ClassifyRowError(err) == util.RowConsume:
			log.WithField("error", err).WithField("key", row.Key).Error("doLagMemberTask: row invalid, consuming")
			o.lagMemberTable.Ack(row.Key, row.Seq)
		default:
			log.WithField("error", err).WithField("key", row.Key).Warn("doLagMemberTask deferred")
		}
	}

	for _, row := range o.vlanMemberTable.Batch() {
		err := o.doVlanMemberTask(row)
		switch {
		case err == nil:
			o.vlanMemberTable.Ack(row.Key, row.Seq)
		case util.ClassifyRowError(err) == util.RowFatal:
			return err
		case util.ClassifyRowError(err) == util.RowConsume:
			log.WithField("error", err).WithField("key", row.Key).Error("doVlanMemberTask: row invalid, consuming")
			o.vlanMemberTable.Ack(row.Key, row.Seq)
		default:
			log.WithField("error", err).WithField("key", row.Key).Warn("doVlanMemberTask deferred")
		}
	}

	return nil
}

func (o *PortsOrch) doPortTask(row orch.Row) error {
	if row.Op == orch.OpDel {
		return o.removePort(row.Key)
	}
	return o.setPort(row.Key, row.Fields)
}

func (o *PortsOrch) setPort(alias string, fields map[string]string) error {
	port, exists := o.ports[alias]
	if !exists {
		attrs := sai.Attributes{}
		if lanes, ok := fields["lanes"]; ok {
			attrs["SAI_PORT_ATTR_HW_LANE_LIST"] = lanes
		}
		id, status := o.client.Port().CreatePort(attrs)
		disp := sai.ClassifyStatus(status, true)
		if disp == sai.DispositionTransientRetry {
			return fmt.Errorf("create port %s: %s", alias, status)
		}
		if disp == sai.DispositionFatal {
			return util.NewFatalError(fmt.Errorf("create port %s: %s", alias, status))
		}
		port = model.NewPort(alias, PortKindFromFields(fields))
		port.ID = id
		o.ports[alias] = port
		o.byID[id] = port
	}

	if speed, ok := fields["speed"]; ok {
		_ = o.client.Port().SetPortAttribute(port.ID, sai.Attributes{"SAI_PORT_ATTR_SPEED": speed})
	}
	if mtu, ok := fields["mtu"]; ok {
		if v, err := strconv.Atoi(mtu); err == nil {
			port.MTU = v
			_ = o.client.Port().SetPortAttribute(port.ID, sai.Attributes{"SAI_PORT_ATTR_MTU": mtu})
		}
	}
	if admin, ok := fields["admin_status"]; ok {
		port.AdminUp = admin == "up"
		_ = o.client.Port().SetPortAttribute(port.ID, sai.Attributes{"SAI_PORT_ATTR_ADMIN_STATE": admin})
	}
	return nil
}

func (o *PortsOrch) removePort(alias string) error {
	port, exists := o.ports[alias]
	if !exists {
		return nil
	}
	if port.HasRouterInterface() || port.HasBridgePort() {
		return util.NewRetryableError(fmt.Errorf("port %s still has an attached sub-handle", alias))
	}
	if status := o.client.Port().RemovePort(port.ID); sai.ClassifyStatus(status, false) == sai.DispositionTransientRetry {
		return fmt.Errorf("remove port %s: %s", alias, status)
	}
	delete(o.byID, port.ID)
	delete(o.ports, alias)
	return nil
}

// PortKindFromFields resolves a Port variant from the CONFIG_DB row's
// fields; a bare PHY unless a "role" field says otherwise.
func PortKindFromFields(fields map[string]string) model.PortKind {
	switch fields["role"] {
	case "Cpu":
		return model.PortCPU
	case "Rec", "Inb", "Dpc":
		return model.PortSystem
	default:
		return model.PortPHY
	}
}

func (o *PortsOrch) doLagTask(row orch.Row) error {
	if row.Op == orch.OpDel {
		return o.removeLag(row.Key)
	}
	return o.createLag(row.Key, row.Fields)
}

func (o *PortsOrch) createLag(alias string, fields map[string]string) error {
	if _, exists := o.ports[alias]; exists {
		return nil
	}
	id, status := o.client.LAG().CreateLAG(sai.Attributes{})
	if sai.ClassifyStatus(status, true) == sai.DispositionTransientRetry {
		return fmt.Errorf("create lag %s: %s", alias, status)
	}
	port := model.NewPort(alias, model.PortLAG)
	port.ID = id
	o.ports[alias] = port
	o.byID[id] = port
	return nil
}

func (o *PortsOrch) removeLag(alias string) error {
	port, exists := o.ports[alias]
	if !exists {
		return nil
	}
	if len(port.Members) > 0 {
		return util.NewRetryableError(fmt.Errorf("lag %s still has members", alias))
	}
	if status := o.client.LAG().RemoveLAG(port.ID); sai.ClassifyStatus(status, false) == sai.DispositionTransientRetry {
		return fmt.Errorf("remove lag %s: %s", alias, status)
	}
	delete(o.byID, port.ID)
	delete(o.ports, alias)
	return nil
}

func (o *PortsOrch) doLagMemberTask(row orch.Row) error {
	lagAlias, memberAlias, err := splitMemberKey(row.Key)
	if err != nil {
		return util.NewFatalError(err)
	}
	if row.Op == orch.OpDel {
		return o.removeLagMember(lagAlias, memberAlias)
	}
	return o.addLagMember(lagAlias, memberAlias)
}

func (o *PortsOrch) addLagMember(lagAlias, memberAlias string) error {
	lag, ok := o.ports[lagAlias]
	if !ok {
		return util.NewRetryableError(fmt.Errorf("lag %s not yet created", lagAlias))
	}
	member, ok := o.ports[memberAlias]
	if !ok {
		return util.NewRetryableError(fmt.Errorf("port %s not yet created", memberAlias))
	}
	if lag.Members[memberAlias] {
		return nil
	}
	_, status := o.client.LAG().CreateLAGMember(sai.Attributes{
		"SAI_LAG_MEMBER_ATTR_LAG_ID":  lag.ID,
		"SAI_LAG_MEMBER_ATTR_PORT_ID": member.ID,
	})
	if sai.ClassifyStatus(status, true) == sai.DispositionTransientRetry {
		return fmt.Errorf("add lag member %s/%s: %s", lagAlias, memberAlias, status)
	}
	lag.Members[memberAlias] = true
	o.lagMembers.Notify(orch.LagMemberChange{LagAlias: lagAlias, Port: memberAlias, Added: true})
	return nil
}

func (o *PortsOrch) removeLagMember(lagAlias, memberAlias string) error {
	lag, ok := o.ports[lagAlias]
	if !ok || !lag.Members[memberAlias] {
		return nil
	}
	delete(lag.Members, memberAlias)
	o.lagMembers.Notify(orch.LagMemberChange{LagAlias: lagAlias, Port: memberAlias, Added: false})
	return nil
}

func (o *PortsOrch) doVlanTask(row orch.Row) error {
	vlanID, err := parseVlanKey(row.Key)
	if err != nil {
		return util.NewFatalError(err)
	}
	if row.Op == orch.OpDel {
		return o.removeVlan(vlanID)
	}
	return o.createVlan(vlanID)
}

func vlanAlias(vlanID int) string { return fmt.Sprintf("Vlan%d", vlanID) }

func (o *PortsOrch) createVlan(vlanID int) error {
	alias := vlanAlias(vlanID)
	if _, exists := o.ports[alias]; exists {
		return nil
	}
	id, status := o.client.VLAN().CreateVLAN(sai.Attributes{"SAI_VLAN_ATTR_VLAN_ID": vlanID})
	if sai.ClassifyStatus(status, true) == sai.DispositionTransientRetry {
		return fmt.Errorf("create vlan %d: %s", vlanID, status)
	}
	port := model.NewPort(alias, model.PortVLAN)
	port.ID = id
	port.VLANID = vlanID
	o.ports[alias] = port
	o.byID[id] = port
	return nil
}

func (o *PortsOrch) removeVlan(vlanID int) error {
	alias := vlanAlias(vlanID)
	port, exists := o.ports[alias]
	if !exists {
		return nil
	}
	if len(port.Members) > 0 || port.HasRouterInterface() {
		return util.NewRetryableError(fmt.Errorf("vlan %d still has members or an attached RIF", vlanID))
	}
	if status := o.client.VLAN().RemoveVLAN(port.ID); sai.ClassifyStatus(status, false) == sai.DispositionTransientRetry {
		return fmt.Errorf("remove vlan %d: %s", vlanID, status)
	}
	delete(o.byID, port.ID)
	delete(o.ports, alias)
	return nil
}

func (o *PortsOrch) doVlanMemberTask(row orch.Row) error {
	vlanAliasStr, memberAlias, err := splitMemberKey(row.Key)
	if err != nil {
		return util.NewFatalError(err)
	}
	if row.Op == orch.OpDel {
		return o.removeVlanMember(vlanAliasStr, memberAlias)
	}
	tagging := row.Fields["tagging_mode"]
	return o.addVlanMember(vlanAliasStr, memberAlias, tagging)
}

func (o *PortsOrch) addVlanMember(vlanAliasStr, memberAlias, taggingMode string) error {
	vlan, ok := o.ports[vlanAliasStr]
	if !ok {
		return util.NewRetryableError(fmt.Errorf("vlan %s not yet created", vlanAliasStr))
	}
	member, ok := o.ports[memberAlias]
	if !ok {
		return util.NewRetryableError(fmt.Errorf("port %s not yet created", memberAlias))
	}
	if vlan.Members[memberAlias] {
		return nil
	}
	if !member.HasBridgePort() {
		if err := o.attachBridgePort(member, taggingMode); err != nil {
			return err
		}
	}
	_, status := o.client.VLAN().CreateVLANMember(sai.Attributes{
		"SAI_VLAN_MEMBER_ATTR_VLAN_ID":        vlan.ID,
		"SAI_VLAN_MEMBER_ATTR_BRIDGE_PORT_ID": member.BridgePortID,
		"SAI_VLAN_MEMBER_ATTR_VLAN_TAGGING_MODE": taggingMode,
	})
	if sai.ClassifyStatus(status, true) == sai.DispositionTransientRetry {
		return fmt.Errorf("add vlan member %s/%s: %s", vlanAliasStr, memberAlias, status)
	}
	vlan.Members[memberAlias] = true
	o.vlanMembers.Notify(orch.VlanMemberChange{VlanID: vlan.VLANID, Port: memberAlias, Added: true})
	return nil
}

func (o *PortsOrch) removeVlanMember(vlanAliasStr, memberAlias string) error {
	vlan, ok := o.ports[vlanAliasStr]
	if !ok || !vlan.Members[memberAlias] {
		return nil
	}
	delete(vlan.Members, memberAlias)
	o.vlanMembers.Notify(orch.VlanMemberChange{VlanID: vlan.VLANID, Port: memberAlias, Added: false})
	return nil
}

func (o *PortsOrch) attachBridgePort(port *model.Port, taggingMode string) error {
	id, status := o.client.Port().CreateBridgePort(sai.Attributes{
		"SAI_BRIDGE_PORT_ATTR_TYPE":    "SAI_BRIDGE_PORT_TYPE_PORT",
		"SAI_BRIDGE_PORT_ATTR_PORT_ID": port.ID,
		"SAI_BRIDGE_PORT_ATTR_BRIDGE_ID": o.defaultBridgeID,
		"SAI_BRIDGE_PORT_ATTR_ADMIN_STATE": true,
	})
	if sai.ClassifyStatus(status, true) == sai.DispositionTransientRetry {
		return fmt.Errorf("create bridge port for %s: %s", port.Alias, status)
	}
	port.BridgePortID = id
	return nil
}

// DetachBridgePort tears down alias's bridge-port sub-handle. Nothing in
// this module calls it, removeVlanMember included.
func (o *PortsOrch) DetachBridgePort(alias string) error {
	port, ok := o.ports[alias]
	if !ok || !port.HasBridgePort() {
		return nil
	}
	if status := o.client.Port().RemoveBridgePort(port.BridgePortID); sai.ClassifyStatus(status, false) == sai.DispositionTransientRetry {
		return fmt.Errorf("remove bridge port for %s: %s", alias, status)
	}
	port.BridgePortID = 0
	return nil
}

// GetPort looks up a Port by its CONFIG_DB alias, the primary lookup every
// consuming Orch performs before resolving a neighbor, route or mux cable.
func (o *PortsOrch) GetPort(alias string) (*model.Port, bool) {
	p, ok := o.ports[alias]
	return p, ok
}

// GetPortByID looks up a Port by its SAI object handle, used when a SAI
// notification carries only the object ID.
func (o *PortsOrch) GetPortByID(id sai.ObjectID) (*model.Port, bool) {
	p, ok := o.byID[id]
	return p, ok
}

// SetRouterInterfaceHandle is called by IntfsOrch once it has created the
// RIF backing this Port, so later removal/lookup can see the attachment.
func (o *PortsOrch) SetRouterInterfaceHandle(alias string, rif sai.ObjectID) {
	if p, ok := o.ports[alias]; ok {
		p.RIFID = rif
	}
}

func splitMemberKey(key string) (string, string, error) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 {
		parts = strings.SplitN(key, "|", 2)
	}
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed member key %q", key)
	}
	return parts[0], parts[1], nil
}

func parseVlanKey(key string) (int, error) {
	key = strings.TrimPrefix(key, "Vlan")
	return strconv.Atoi(key)
}

var _ orch.Orch = (*PortsOrch)(nil)
