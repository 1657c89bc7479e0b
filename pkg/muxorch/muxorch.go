// Package muxorch manages dual-ToR mux cables: the per-port state machine
// that decides whether a neighbor's traffic is forwarded directly or
// redirected into the peer ToR's decap tunnel, the shared drop ACL that
// blackholes traffic arriving on a Standby cable's own port, and the
// neighbor-handle bookkeeping NeighOrch consults through MuxHandler.
package muxorch

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/lumenswitch/orchagent/pkg/aclorch"
	"github.com/lumenswitch/orchagent/pkg/model"
	"github.com/lumenswitch/orchagent/pkg/neighorch"
	"github.com/lumenswitch/orchagent/pkg/orch"
	"github.com/lumenswitch/orchagent/pkg/sai"
	"github.com/lumenswitch/orchagent/pkg/tunneldecaporch"
	"github.com/lumenswitch/orchagent/pkg/util"
)

const (
	dropACLTable    = "MUX_ACL_TABLE"
	dropACLRule     = "MUX_ACL_RULE"
	dropRulePriority = 9999
)

// MuxOrch owns every mux cable's state machine and the shared drop ACL
// that backs a Standby cable's own-port blackhole.
type MuxOrch struct {
	client sai.Client

	tunnelName string
	tunnels    *tunneldecaporch.TunnelDecapOrch
	acl        *aclorch.AclOrch
	neigh      *neighorch.NeighOrch

	cableTable *orch.Consumer
	stateTable *orch.Consumer

	cables       map[string]*model.MuxCable
	standbyPorts map[string]bool
}

// NewMuxOrch constructs a MuxOrch. tunnelName names the decap tunnel
// already configured in tunnels that every Standby cable's traffic is
// redirected into; it is not created here.
func NewMuxOrch(client sai.Client, tunnels *tunneldecaporch.TunnelDecapOrch, acl *aclorch.AclOrch, neigh *neighorch.NeighOrch, tunnelName string) *MuxOrch {
	return &MuxOrch{
		client:       client,
		tunnelName:   tunnelName,
		tunnels:      tunnels,
		acl:          acl,
		neigh:        neigh,
		cableTable:   orch.NewConsumer("MUX_CABLE_TABLE"),
		stateTable:   orch.NewConsumer("MUX_STATE_TABLE"),
		cables:       make(map[string]*model.MuxCable),
		standbyPorts: make(map[string]bool),
	}
}

func (o *MuxOrch) Name() string { return "MuxOrch" }

func (o *MuxOrch) Consumers() []*orch.Consumer {
	return []*orch.Consumer{o.cableTable, o.stateTable}
}

// PushCable feeds one MUX_CABLE_TABLE row (server_ipv4, server_ipv6,
// peer_ipv4/peer_ipv6 address config) into the Consumer.
func (o *MuxOrch) PushCable(alias string, op orch.Op, fields map[string]string) {
	o.cableTable.Push(alias, op, fields)
}

// PushState feeds one MUX_STATE_TABLE row (the requested target state:
// "active", "standby", "init" or "pending") into the Consumer.
func (o *MuxOrch) PushState(alias string, op orch.Op, fields map[string]string) {
	o.stateTable.Push(alias, op, fields)
}

func (o *MuxOrch) DoTask(ctx context.Context) error {
	log := util.WithOrch(o.Name())
	for _, row := range o.cableTable.Batch() {
		var err error
		if row.Op == orch.OpDel {
			err = o.removeCable(row.Key)
		} else {
			err = o.setCable(row.Key, row.Fields)
		}
		switch {
		case err == nil:
			o.cableTable.Ack(row.Key, row.Seq)
		case util.ClassifyRowError(err) == util.RowFatal:
			return err
		case util.ClassifyRowError(err) == util.RowConsume:
			log.WithField("error", err).WithField("key", row.Key).Error("row invalid, consuming")
			o.cableTable.Ack(row.Key, row.Seq)
		default:
			log.WithField("error", err).WithField("key", row.Key).Warn("doTask deferred")
		}
	}

	for _, row := range o.stateTable.Batch() {
		err := o.setState(row.Key, row.Fields["state"])
		switch {
		case err == nil:
			o.stateTable.Ack(row.Key, row.Seq)
		case util.ClassifyRowError(err) == util.RowFatal:
			return err
		case util.ClassifyRowError(err) == util.RowConsume:
			log.WithField("error", err).WithField("key", row.Key).Error("row invalid, consuming")
			o.stateTable.Ack(row.Key, row.Seq)
		default:
			log.WithField("error", err).WithField("key", row.Key).Warn("doTask deferred")
		}
	}
	return nil
}

func (o *MuxOrch) setCable(alias string, fields map[string]string) error {
	cable, ok := o.cables[alias]
	if !ok {
		cable = model.NewMuxCable(alias)
		o.cables[alias] = cable
	}
	if v, ok := fields["server_ipv4"]; ok {
		cable.ServerIPv4 = v
	}
	if v, ok := fields["server_ipv6"]; ok {
		cable.ServerIPv6 = v
	}
	if v, ok := fields["peer_ipv4"]; ok {
		cable.PeerTunnelIP = v
	}
	return nil
}

func (o *MuxOrch) removeCable(alias string) error {
	cable, ok := o.cables[alias]
	if !ok {
		return nil
	}
	if cable.State == model.MuxStandby {
		if err := o.applyTransition(cable, model.MuxActive); err != nil {
			return err
		}
	}
	delete(o.cables, alias)
	return nil
}

func (o *MuxOrch) setState(alias, state string) error {
	cable, ok := o.cables[alias]
	if !ok {
		return util.NewRetryableError(fmt.Errorf("mux cable %s not yet configured", alias))
	}
	target, err := parseMuxState(state)
	if err != nil {
		return util.NewFatalError(err)
	}
	return o.applyTransition(cable, target)
}

func parseMuxState(s string) (model.MuxState, error) {
	switch strings.ToLower(s) {
	case "init":
		return model.MuxInit, nil
	case "active":
		return model.MuxActive, nil
	case "standby":
		return model.MuxStandby, nil
	case "pending":
		return model.MuxPending, nil
	default:
		return 0, fmt.Errorf("unrecognized mux state %q", s)
	}
}

// applyTransition drives one cable from its current state to target. On
// failure it reverts the state variable to the state the transition
// started from (for a Pending cable, its PriorState) rather than trying to speculatively unwind whatever dataplane
// steps already ran; a later retry re-enters this same from->to transition
// and drives the remaining (idempotent) steps home.
func (o *MuxOrch) applyTransition(cable *model.MuxCable, target model.MuxState) error {
	if target == model.MuxPending {
		cable.PriorState = cable.State
		cable.State = model.MuxPending
		return nil
	}

	from := cable.State
	if from == model.MuxPending {
		from = cable.PriorState
	}
	if !model.MuxTransitionPermitted(from, target) {
		util.WithOrch(o.Name()).WithField("alias", cable.PortAlias).
			WithField("from", from.String()).WithField("to", target.String()).
			Warn("ignoring unpermitted mux transition")
		return nil
	}

	cable.ChangeInProgress = true
	var err error
	switch target {
	case model.MuxStandby:
		err = o.enterStandby(cable, from == model.MuxActive)
	case model.MuxActive:
		err = o.enterActive(cable, from == model.MuxStandby)
	}
	if err != nil {
		cable.State = from
		cable.ChangeInProgress = false
		cable.ChangeFailed = true
		return err
	}

	cable.PriorState = from
	cable.State = target
	cable.ChangeInProgress = false
	cable.ChangeFailed = false
	return nil
}

// enterStandby points every unskipped neighbor at the shared per-cable
// tunnel next hop, installing a host route to the tunnel for each one so
// forwarding doesn't depend on its (about to be torn down) local next hop,
// and blackholes traffic still arriving on the cable's own port, mirroring
// MuxCable::standby.
func (o *MuxOrch) enterStandby(cable *model.MuxCable, fromActive bool) error {
	if err := o.ensureDropACL(); err != nil {
		return err
	}

	tunnelNH, err := o.acquireTunnelNextHop(cable)
	if err != nil {
		return err
	}
	for ip := range cable.NeighborHandle {
		if cable.SkipsNeighbor(ip) {
			continue
		}
		if fromActive {
			nh := model.NextHopKey{IP: net.ParseIP(ip), Alias: cable.PortAlias}
			if err := o.neigh.DisableLocalNextHop(nh); err != nil {
				return err
			}
		}
		cable.NeighborHandle[ip] = tunnelNH
		if !cable.FallbackRouteIPs[ip] {
			if err := o.installFallbackRoute(cable, ip, tunnelNH); err != nil {
				return err
			}
		}
	}

	if err := o.acl.BindPort(dropACLTable, cable.PortAlias); err != nil {
		return err
	}
	o.standbyPorts[cable.PortAlias] = true
	return o.syncDropRulePorts()
}

// enterActive withdraws the cable's own-port blackhole, restores a direct
// next hop for every neighbor, and removes each neighbor's tunnel host
// route once its direct next hop is back — routes that weren't already
// steered by a tunnel-fallback route and were previously reachable through
// the tunnel resume through their restored local next hop. The shared
// tunnel next hop is released last, once nothing on this cable still needs
// it.
func (o *MuxOrch) enterActive(cable *model.MuxCable, fromStandby bool) error {
	delete(o.standbyPorts, cable.PortAlias)
	if err := o.syncDropRulePorts(); err != nil {
		return err
	}

	for ip := range cable.NeighborHandle {
		if cable.SkipsNeighbor(ip) {
			continue
		}
		nh := model.NextHopKey{IP: net.ParseIP(ip), Alias: cable.PortAlias}
		id, err := o.neigh.EnableLocalNextHop(nh)
		if err != nil {
			return err
		}
		cable.NeighborHandle[ip] = id
	}
	for ip := range cable.FallbackRouteIPs {
		if err := o.removeFallbackRoute(cable, ip); err != nil {
			return err
		}
		delete(cable.FallbackRouteIPs, ip)
	}

	if fromStandby {
		if err := o.releaseTunnelNextHop(cable); err != nil {
			return err
		}
	}
	return nil
}

// ensureDropACL lazily materializes the single shared ingress drop table
// and its one rule, mirroring MuxAclHandler's static acl_table_/acl_rule_:
// every mux cable shares the same table and the same rule, whose IN_PORTS
// match is grown or shrunk in place as cables enter or leave Standby.
func (o *MuxOrch) ensureDropACL() error {
	if _, ok := o.acl.GetTable(dropACLTable); !ok {
		o.acl.PushTable(dropACLTable, orch.OpSet, map[string]string{
			"stage": "INGRESS",
			"type":  "DROP",
			"ports": "",
		})
		return util.NewRetryableError(fmt.Errorf("drop ACL table %s not yet created", dropACLTable))
	}
	table, _ := o.acl.GetTable(dropACLTable)
	if _, ok := table.Rules[dropACLRule]; !ok {
		o.acl.PushRule(dropACLTable, dropACLRule, orch.OpSet, map[string]string{
			"PRIORITY":      strconv.Itoa(dropRulePriority),
			"PACKET_ACTION": "DROP",
		})
		return util.NewRetryableError(fmt.Errorf("drop ACL rule %s not yet created", dropACLRule))
	}
	return nil
}

// syncDropRulePorts pushes the current standbyPorts membership to the
// shared rule's IN_PORTS match.
func (o *MuxOrch) syncDropRulePorts() error {
	aliases := make([]string, 0, len(o.standbyPorts))
	for alias := range o.standbyPorts {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return o.acl.SetRuleMatchPorts(dropACLTable, dropACLRule, aliases)
}

// acquireTunnelNextHop takes a reference on the single tunnel next hop
// this cable shares across every neighbor it is currently redirecting,
// creating it on first use.
func (o *MuxOrch) acquireTunnelNextHop(cable *model.MuxCable) (sai.ObjectID, error) {
	if _, ok := o.tunnels.GetTunnel(o.tunnelName); !ok {
		return 0, util.NewRetryableError(fmt.Errorf("decap tunnel %s not yet configured", o.tunnelName))
	}
	if cable.TunnelRefHeld {
		if id, ok := o.tunnels.GetNextHopTunnel(o.tunnelName, cable.PeerTunnelIP); ok {
			return id, nil
		}
	}
	id, err := o.tunnels.CreateNextHopTunnel(o.tunnelName, cable.PeerTunnelIP)
	if err != nil {
		return 0, err
	}
	cable.TunnelRefHeld = true
	return id, nil
}

func (o *MuxOrch) releaseTunnelNextHop(cable *model.MuxCable) error {
	if !cable.TunnelRefHeld {
		return nil
	}
	if err := o.tunnels.RemoveNextHopTunnel(o.tunnelName, cable.PeerTunnelIP); err != nil {
		return err
	}
	cable.TunnelRefHeld = false
	return nil
}

func (o *MuxOrch) routeKey(ip string) string {
	if strings.Contains(ip, ":") {
		return ip + "/128"
	}
	return ip + "/32"
}

func (o *MuxOrch) installFallbackRoute(cable *model.MuxCable, ip string, nh sai.ObjectID) error {
	saiKey := fmt.Sprintf(":%s", o.routeKey(ip))
	status := o.client.Route().CreateRouteEntry(saiKey, sai.Attributes{
		"SAI_ROUTE_ENTRY_ATTR_NEXT_HOP_ID": nh,
	})
	if status != sai.StatusSuccess && sai.ClassifyStatus(status, true) == sai.DispositionTransientRetry {
		return fmt.Errorf("install tunnel-fallback route %s: %s", ip, status)
	}
	cable.FallbackRouteIPs[ip] = true
	return nil
}

func (o *MuxOrch) removeFallbackRoute(cable *model.MuxCable, ip string) error {
	saiKey := fmt.Sprintf(":%s", o.routeKey(ip))
	status := o.client.Route().RemoveRouteEntry(saiKey)
	if status != sai.StatusSuccess && sai.ClassifyStatus(status, false) == sai.DispositionTransientRetry {
		return fmt.Errorf("remove tunnel-fallback route %s: %s", ip, status)
	}
	return nil
}

// IsMuxPort reports whether alias is a configured mux cable, the check
// NeighOrch makes before routing an unresolved-neighbor event here at all.
func (o *MuxOrch) IsMuxPort(alias string) bool {
	_, ok := o.cables[alias]
	return ok
}

// IsMuxStandby reports whether alias's cable is currently in Standby, the
// check NeighOrch makes to decide whether a newly resolved neighbor gets a
// direct next hop or is handed to RegisterStandbyNeighbor instead.
func (o *MuxOrch) IsMuxStandby(alias string) bool {
	cable, ok := o.cables[alias]
	return ok && cable.State == model.MuxStandby
}

// HandleUnresolvedNeighbor installs a tunnel-fallback host route for an
// inbound neighbor event with no resolved MAC, the dual-ToR substitute for
// a neighbor entry NeighOrch cannot create.
func (o *MuxOrch) HandleUnresolvedNeighbor(alias, ip string) error {
	cable, ok := o.cables[alias]
	if !ok {
		return util.NewFatalError(fmt.Errorf("mux cable %s not found", alias))
	}
	if cable.SkipsNeighbor(ip) {
		return nil
	}
	if cable.FallbackRouteIPs[ip] {
		return nil
	}
	nh, err := o.acquireTunnelNextHop(cable)
	if err != nil {
		return err
	}
	if err := o.installFallbackRoute(cable, ip, nh); err != nil {
		return err
	}
	cable.NeighborHandle[ip] = nh
	return nil
}

// RegisterStandbyNeighbor records a resolved neighbor on a Standby cable
// against the shared tunnel next hop instead of giving it a direct one,
// installing the same tunnel host route HandleUnresolvedNeighbor would so
// enterActive has a route to withdraw once this neighbor's direct next hop
// is restored.
func (o *MuxOrch) RegisterStandbyNeighbor(alias, ip string) error {
	cable, ok := o.cables[alias]
	if !ok {
		return util.NewFatalError(fmt.Errorf("mux cable %s not found", alias))
	}
	if cable.SkipsNeighbor(ip) {
		return nil
	}
	nh, err := o.acquireTunnelNextHop(cable)
	if err != nil {
		return err
	}
	cable.NeighborHandle[ip] = nh
	if !cable.FallbackRouteIPs[ip] {
		if err := o.installFallbackRoute(cable, ip, nh); err != nil {
			return err
		}
	}
	return nil
}

var _ orch.Orch = (*MuxOrch)(nil)
var _ neighorch.MuxHandler = (*MuxOrch)(nil)
