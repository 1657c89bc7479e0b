// Package neighorch manages neighbor table entries and their paired
// next-hop objects: creating the direct next hop a resolved neighbor backs,
// masking next hops on an interface operational-status transition,
// creating MPLS-labelled next hops on demand, and the VoQ/
// chassis remote-neighbor sub-variant that arrives with an externally
// chosen encap index.
package neighorch

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/lumenswitch/orchagent/pkg/model"
	"github.com/lumenswitch/orchagent/pkg/orch"
	"github.com/lumenswitch/orchagent/pkg/portsorch"
	"github.com/lumenswitch/orchagent/pkg/sai"
	"github.com/lumenswitch/orchagent/pkg/util"
)

// nextHopEntry mirrors the original source's NextHopEntry: a dataplane
// handle plus a reference count, keyed by the owning NextHopKey's string
// form so labelled and plain next hops to the same neighbor coexist.
type nextHopEntry struct {
	id       sai.ObjectID
	refCount int
	ifDown   bool
}

// MuxHandler is the one piece of mux-cable state NeighOrch needs to decide
// whether an inbound neighbor resolution gets its own direct next hop or is
// handed to MuxOrch instead — dual-ToR ports route an unresolved neighbor
// into a tunnel-fallback route, and a resolved neighbor on a Standby cable
// is registered with MuxOrch rather than given a local next hop.
type MuxHandler interface {
	IsMuxPort(alias string) bool
	IsMuxStandby(alias string) bool
	HandleUnresolvedNeighbor(alias, ip string) error
	RegisterStandbyNeighbor(alias, ip string) error
}

// NeighOrch owns every neighbor entry and its paired next-hop object.
type NeighOrch struct {
	client sai.Client
	ports  *portsorch.PortsOrch
	mux    MuxHandler

	neighTable *orch.Consumer

	neighbors map[model.NeighborKey]*model.NeighborEntry
	nextHops  map[string]*nextHopEntry // keyed by NextHopKey.String()

	changes orch.Subject
}

// NewNeighOrch constructs a NeighOrch against the given SAI client and
// PortsOrch, the same two collaborators the original constructor takes
// (minus IntfsOrch, reached indirectly through PortsOrch's RIF handle).
func NewNeighOrch(client sai.Client, ports *portsorch.PortsOrch) *NeighOrch {
	return &NeighOrch{
		client:     client,
		ports:      ports,
		neighTable: orch.NewConsumer("NEIGH_TABLE"),
		neighbors:  make(map[model.NeighborKey]*model.NeighborEntry),
		nextHops:   make(map[string]*nextHopEntry),
	}
}

func (o *NeighOrch) Name() string               { return "NeighOrch" }
func (o *NeighOrch) Consumers() []*orch.Consumer { return []*orch.Consumer{o.neighTable} }

// Push feeds one NEIGH_TABLE row, keyed "alias:ip", into the Consumer.
func (o *NeighOrch) Push(alias, ip string, op orch.Op, fields map[string]string) {
	o.neighTable.Push(alias+model.NeighborKeyDelimiter+ip, op, fields)
}

// AttachObserver registers obs to receive NeighborChange and NextHopChange
// notifications, the hooks NhgOrch/RouteOrch/MuxOrch react to.
func (o *NeighOrch) AttachObserver(obs orch.Observer) { o.changes.Attach(obs) }

// SetMuxHandler wires in MuxOrch's dual-ToR lookup. Left nil, every port
// behaves as a plain (non-mux) interface.
func (o *NeighOrch) SetMuxHandler(h MuxHandler) { o.mux = h }

func (o *NeighOrch) DoTask(ctx context.Context) error {
	log := util.WithOrch(o.Name())
	for _, row := range o.neighTable.Batch() {
		key, err := parseNeighKey(row.Key)
		if err != nil {
			log.WithField("error", err).WithField("key", row.Key).Warn("malformed neighbor key")
			o.neighTable.Ack(row.Key, row.Seq)
			continue
		}
		var taskErr error
		if row.Op == orch.OpDel {
			taskErr = o.removeNeighbor(key)
		} else {
			taskErr = o.addNeighbor(key, row.Fields["neigh"])
		}
		switch {
		case taskErr == nil:
			o.neighTable.Ack(row.Key, row.Seq)
		case util.ClassifyRowError(taskErr) == util.RowFatal:
			return taskErr
		case util.ClassifyRowError(taskErr) == util.RowConsume:
			log.WithField("error", taskErr).WithField("key", row.Key).Error("row invalid, consuming")
			o.neighTable.Ack(row.Key, row.Seq)
		default:
			log.WithField("error", taskErr).WithField("key", row.Key).Warn("doTask deferred")
		}
	}
	return nil
}

func parseNeighKey(key string) (model.NeighborKey, error) {
	idx := strings.Index(key, model.NeighborKeyDelimiter)
	if idx < 0 {
		return model.NeighborKey{}, fmt.Errorf("malformed neighbor key %q", key)
	}
	return model.NeighborKey{Alias: key[:idx], IP: key[idx+1:]}, nil
}

// addNeighbor creates or updates the dataplane neighbor entry for key and,
// unless the inbound MAC is empty ("unresolved" — MuxOrch installs a
// tunnel-fallback route instead on dual-ToR devices), the paired direct
// next hop.
func (o *NeighOrch) addNeighbor(key model.NeighborKey, mac string) error {
	port, ok := o.ports.GetPort(key.Alias)
	if !ok {
		return util.NewRetryableError(fmt.Errorf("port %s not yet created", key.Alias))
	}

	entry, exists := o.neighbors[key]
	if !exists {
		entry = &model.NeighborEntry{Key: key, IsLocal: true}
		o.neighbors[key] = entry
	}
	entry.MAC = mac

	if mac == "" {
		if o.mux != nil && o.mux.IsMuxPort(key.Alias) {
			if err := o.mux.HandleUnresolvedNeighbor(key.Alias, key.IP); err != nil {
				return err
			}
		}
		o.changes.Notify(orch.NeighborChange{Alias: key.Alias, IP: key.IP, Added: true, Resolved: false})
		return nil
	}

	neighKey := fmt.Sprintf("%s@%s", key.IP, key.Alias)
	status := o.client.Neighbor().CreateNeighborEntry(neighKey, sai.Attributes{
		"SAI_NEIGHBOR_ENTRY_ATTR_DST_MAC_ADDRESS": mac,
	})
	disp := sai.ClassifyStatus(status, true)
	if disp == sai.DispositionTransientRetry {
		return fmt.Errorf("create neighbor %s: %s", neighKey, status)
	}
	if disp == sai.DispositionFatal {
		return util.NewFatalError(fmt.Errorf("create neighbor %s: %s", neighKey, status))
	}
	entry.HWConfigured = true

	if o.mux != nil && o.mux.IsMuxStandby(key.Alias) {
		if err := o.mux.RegisterStandbyNeighbor(key.Alias, key.IP); err != nil {
			return err
		}
		o.changes.Notify(orch.NeighborChange{Alias: key.Alias, IP: key.IP, Added: true, Resolved: true})
		return nil
	}

	nh := model.NextHopKey{IP: mustParseIP(key.IP), Alias: key.Alias}
	nhID, err := o.addNextHop(nh, port)
	if err != nil {
		return err
	}

	entry.NextHopID = nhID
	o.changes.Notify(orch.NeighborChange{Alias: key.Alias, IP: key.IP, Added: true, Resolved: true})
	o.changes.Notify(orch.NextHopChange{Key: nh.String(), Resolved: true})
	return nil
}

func (o *NeighOrch) removeNeighbor(key model.NeighborKey) error {
	entry, ok := o.neighbors[key]
	if !ok {
		return nil
	}
	if entry.HWConfigured {
		neighKey := fmt.Sprintf("%s@%s", key.IP, key.Alias)
		if status := o.client.Neighbor().RemoveNeighborEntry(neighKey); sai.ClassifyStatus(status, false) == sai.DispositionTransientRetry {
			return fmt.Errorf("remove neighbor %s: %s", neighKey, status)
		}
		nh := model.NextHopKey{IP: mustParseIP(key.IP), Alias: key.Alias}
		if err := o.decreaseAndMaybeRemoveNextHop(nh); err != nil {
			return err
		}
		o.changes.Notify(orch.NextHopChange{Key: nh.String(), Resolved: false})
	}
	delete(o.neighbors, key)
	o.changes.Notify(orch.NeighborChange{Alias: key.Alias, IP: key.IP, Added: false})
	return nil
}

// addNextHop creates the dataplane next-hop object for nh if this is its
// first reference, otherwise increments its refcount, mirroring
// NeighOrch::addNextHop's refcounted-creation behavior.
func (o *NeighOrch) addNextHop(nh model.NextHopKey, port *model.Port) (sai.ObjectID, error) {
	k := nh.String()
	if existing, ok := o.nextHops[k]; ok {
		existing.refCount++
		return existing.id, nil
	}

	attrs := sai.Attributes{
		"SAI_NEXT_HOP_ATTR_IP":             nh.IP.String(),
		"SAI_NEXT_HOP_ATTR_ROUTER_INTERFACE_ID": port.RIFID,
		"SAI_NEXT_HOP_ATTR_TYPE":           "SAI_NEXT_HOP_TYPE_IP",
	}
	if nh.IsMPLSNextHop() {
		attrs["SAI_NEXT_HOP_ATTR_TYPE"] = "SAI_NEXT_HOP_TYPE_MPLS"
		attrs["SAI_NEXT_HOP_ATTR_LABELSTACK"] = nh.LabelStack.String()
	}

	id, status := o.client.NextHop().CreateNextHop(attrs)
	disp := sai.ClassifyStatus(status, true)
	if disp == sai.DispositionTransientRetry {
		return 0, fmt.Errorf("create next hop %s: %s", k, status)
	}
	if disp == sai.DispositionFatal {
		return 0, util.NewFatalError(fmt.Errorf("create next hop %s: %s", k, status))
	}
	o.nextHops[k] = &nextHopEntry{id: id, refCount: 1}
	return id, nil
}

func (o *NeighOrch) decreaseAndMaybeRemoveNextHop(nh model.NextHopKey) error {
	k := nh.String()
	entry, ok := o.nextHops[k]
	if !ok {
		return nil
	}
	entry.refCount--
	if entry.refCount > 0 {
		return nil
	}
	if status := o.client.NextHop().RemoveNextHop(entry.id); sai.ClassifyStatus(status, false) == sai.DispositionTransientRetry {
		return fmt.Errorf("remove next hop %s: %s", k, status)
	}
	delete(o.nextHops, k)
	return nil
}

// GetNextHopID returns the dataplane handle for nh and whether it exists,
// the lookup RouteOrch and NhgOrch perform before binding an ECMP member.
func (o *NeighOrch) GetNextHopID(nh model.NextHopKey) (sai.ObjectID, bool) {
	entry, ok := o.nextHops[nh.String()]
	if !ok || entry.ifDown {
		return 0, false
	}
	return entry.id, true
}

// IncreaseNextHopRefCount and DecreaseNextHopRefCount let RouteOrch and
// NhgOrch hold their own reference independent of the neighbor's own
// creation reference, mirroring the original source's pair of the same
// name.
func (o *NeighOrch) IncreaseNextHopRefCount(nh model.NextHopKey) {
	if entry, ok := o.nextHops[nh.String()]; ok {
		entry.refCount++
	}
}

func (o *NeighOrch) DecreaseNextHopRefCount(nh model.NextHopKey) error {
	return o.decreaseAndMaybeRemoveNextHop(nh)
}

// GetOrCreateLabelledNextHop creates an MPLS-labelled next hop on its first
// call for nh, kept in the next-hop table under its own labelled key with
// its own handle and refcount, per the original source's deferred-creation
// labelled next hop. RouteOrch does not call it.
func (o *NeighOrch) GetOrCreateLabelledNextHop(nh model.NextHopKey) (sai.ObjectID, error) {
	if !nh.IsMPLSNextHop() {
		return 0, fmt.Errorf("not a labelled next hop: %s", nh)
	}
	port, ok := o.ports.GetPort(nh.Alias)
	if !ok {
		return 0, util.NewRetryableError(fmt.Errorf("port %s not yet created", nh.Alias))
	}
	return o.addNextHop(nh, port)
}

// EnableLocalNextHop creates (or re-references) the direct next hop for nh,
// the step MuxOrch takes for each neighbor when a cable leaves Standby and
// local forwarding must be (re-)established.
func (o *NeighOrch) EnableLocalNextHop(nh model.NextHopKey) (sai.ObjectID, error) {
	port, ok := o.ports.GetPort(nh.Alias)
	if !ok {
		return 0, util.NewRetryableError(fmt.Errorf("port %s not yet created", nh.Alias))
	}
	return o.addNextHop(nh, port)
}

// DisableLocalNextHop releases MuxOrch's hold on nh's direct next hop when a
// cable enters Standby and traffic must be redirected to the tunnel.
func (o *NeighOrch) DisableLocalNextHop(nh model.NextHopKey) error {
	return o.decreaseAndMaybeRemoveNextHop(nh)
}

// SetInterfaceOperStatus implements interface-down masking: on a port
// operational-status transition, every next hop reachable over that alias
// has its NHFLAGS_IFDOWN flag set or cleared, and NextHopChange is
// published so NhgOrch/RouteOrch invalidate or revalidate the affected
// group members.
func (o *NeighOrch) SetInterfaceOperStatus(alias string, up bool) {
	for key, entry := range o.nextHops {
		nh, err := model.ParseNextHopKey(key)
		if err != nil || nh.Alias != alias {
			continue
		}
		down := !up
		if entry.ifDown == down {
			continue
		}
		entry.ifDown = down
		o.changes.Notify(orch.NextHopChange{Key: key, Resolved: up})
	}
}

// AddRemoteNeighbor programs a VoQ/chassis remote-system-port neighbor
// arriving from the chassis-wide bus with an externally chosen encap
// index. Because SAI does not permit updating the encap index attribute,
// a changed index is handled by remove-then-readd.
func (o *NeighOrch) AddRemoteNeighbor(alias, ip, mac string, encapIndex uint32) error {
	key := model.NeighborKey{Alias: alias, IP: ip}
	if existing, ok := o.neighbors[key]; ok && existing.EncapIndex != encapIndex {
		if err := o.removeNeighbor(key); err != nil {
			return err
		}
	}

	neighKey := fmt.Sprintf("%s@%s", ip, alias)
	status := o.client.Neighbor().CreateNeighborEntry(neighKey, sai.Attributes{
		"SAI_NEIGHBOR_ENTRY_ATTR_DST_MAC_ADDRESS":  mac,
		"SAI_NEIGHBOR_ENTRY_ATTR_ENCAP_INDEX":       encapIndex,
		"SAI_NEIGHBOR_ENTRY_ATTR_IS_LOCAL":          false,
	})
	if sai.ClassifyStatus(status, true) == sai.DispositionTransientRetry {
		return fmt.Errorf("create remote neighbor %s: %s", neighKey, status)
	}

	entry := &model.NeighborEntry{Key: key, MAC: mac, IsLocal: false, EncapIndex: encapIndex, HWConfigured: true}
	o.neighbors[key] = entry
	return nil
}

func mustParseIP(s string) net.IP {
	return net.ParseIP(s)
}

var _ orch.Orch = (*NeighOrch)(nil)
