// Package routeorch assembles route rows into next-hop groups and binds
// them to the dataplane: sharing a RouteOrch-owned group across every
// route with the same member set, delegating to an NhgOrch-owned group
// when a row names one by index, falling back to a temporary group with a
// random resolved representative near its own group-count limit, and
// mirroring default-route presence into the state namespace.
package routeorch

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/lumenswitch/orchagent/pkg/dbus"
	"github.com/lumenswitch/orchagent/pkg/model"
	"github.com/lumenswitch/orchagent/pkg/neighorch"
	"github.com/lumenswitch/orchagent/pkg/nhgorch"
	"github.com/lumenswitch/orchagent/pkg/orch"
	"github.com/lumenswitch/orchagent/pkg/sai"
	"github.com/lumenswitch/orchagent/pkg/util"
)

const stateTable = "DEFAULT_ROUTE_TABLE"

// groupMember mirrors NhgOrch's member type but belongs to RouteOrch's own
// group table, kept separate from NhgOrch's per the original source's two
// independent NextHopGroupTable maps.
type groupMember struct {
	nh   model.NextHopKey
	gmID sai.ObjectID
}

func (m *groupMember) isSynced() bool { return m.gmID != 0 }

// ownedGroup is one RouteOrch-owned next-hop group (NextHopGroupEntry in
// the original source): a single-member group never gets a group object at
// all, a multi-member group gets one, and a capacity-limited group borrows
// its sole member's next-hop handle as a temporary representative.
type ownedGroup struct {
	client sai.Client
	neigh  *neighorch.NeighOrch

	key      model.NextHopGroupKey
	id       sai.ObjectID
	members  map[string]*groupMember
	isTemp   bool
	refCount int
}

func newOwnedGroup(client sai.Client, neigh *neighorch.NeighOrch, key model.NextHopGroupKey, isTemp bool) *ownedGroup {
	g := &ownedGroup{client: client, neigh: neigh, key: key, isTemp: isTemp, members: make(map[string]*groupMember)}
	for _, nh := range key.Members {
		g.members[nh.String()] = &groupMember{nh: nh}
	}
	return g
}

// representativeHandle returns the handle routes should bind to: the
// group object for a real multi-member group, or the sole member's
// next-hop handle for a single-member or temporary group (no group object
// is ever created for those).
func (g *ownedGroup) representativeHandle() (sai.ObjectID, bool) {
	if g.key.IsSingle() || g.isTemp {
		for _, m := range g.members {
			if m.isSynced() {
				return m.gmID, true
			}
			if id, ok := g.neigh.GetNextHopID(m.nh); ok {
				return id, true
			}
		}
		return 0, false
	}
	if g.id == 0 {
		return 0, false
	}
	return g.id, true
}

func (g *ownedGroup) sync() error {
	if g.key.IsSingle() || g.isTemp {
		// No group object: the representative is looked up directly from
		// NeighOrch on demand, nothing to create here beyond refcounting.
		for _, m := range g.members {
			if !m.isSynced() {
				if id, ok := g.neigh.GetNextHopID(m.nh); ok {
					m.gmID = id
					g.neigh.IncreaseNextHopRefCount(m.nh)
				}
			}
		}
		return nil
	}

	if g.id == 0 {
		id, status := g.client.NextHopGroup().CreateNextHopGroup(sai.Attributes{
			"SAI_NEXT_HOP_GROUP_ATTR_TYPE": "SAI_NEXT_HOP_GROUP_TYPE_ECMP",
		})
		disp := sai.ClassifyStatus(status, true)
		if disp == sai.DispositionTransientRetry {
			return fmt.Errorf("create nhg: %s", status)
		}
		if disp == sai.DispositionFatal {
			return util.NewFatalError(fmt.Errorf("create nhg: %s", status))
		}
		g.id = id
	}
	for _, m := range g.members {
		if m.isSynced() {
			continue
		}
		if err := g.syncMember(m); err != nil {
			return err
		}
	}
	return nil
}

func (g *ownedGroup) syncMember(m *groupMember) error {
	nhID, ok := g.neigh.GetNextHopID(m.nh)
	if !ok {
		return nil
	}
	gmID, status := g.client.NextHopGroup().CreateNextHopGroupMember(sai.Attributes{
		"SAI_NEXT_HOP_GROUP_MEMBER_ATTR_NEXT_HOP_GROUP_ID": g.id,
		"SAI_NEXT_HOP_GROUP_MEMBER_ATTR_NEXT_HOP_ID":       nhID,
		"SAI_NEXT_HOP_GROUP_MEMBER_ATTR_WEIGHT":            m.nh.Weight,
	})
	disp := sai.ClassifyStatus(status, true)
	if disp == sai.DispositionTransientRetry {
		return fmt.Errorf("create nhg member %s: %s", m.nh, status)
	}
	if disp == sai.DispositionFatal {
		return util.NewFatalError(fmt.Errorf("create nhg member %s: %s", m.nh, status))
	}
	m.gmID = gmID
	g.neigh.IncreaseNextHopRefCount(m.nh)
	return nil
}

func (g *ownedGroup) removeMember(m *groupMember) error {
	if !m.isSynced() {
		return nil
	}
	if !g.key.IsSingle() && !g.isTemp {
		if status := g.client.NextHopGroup().RemoveNextHopGroupMember(m.gmID); sai.ClassifyStatus(status, false) == sai.DispositionTransientRetry {
			return fmt.Errorf("remove nhg member %s: %s", m.nh, status)
		}
	}
	m.gmID = 0
	return g.neigh.DecreaseNextHopRefCount(m.nh)
}

func (g *ownedGroup) remove() error {
	for _, m := range g.members {
		if err := g.removeMember(m); err != nil {
			return err
		}
	}
	if g.id == 0 {
		return nil
	}
	if status := g.client.NextHopGroup().RemoveNextHopGroup(g.id); sai.ClassifyStatus(status, false) == sai.DispositionTransientRetry {
		return fmt.Errorf("remove nhg: %s", status)
	}
	g.id = 0
	return nil
}

func (g *ownedGroup) validateNextHop(nh model.NextHopKey) error {
	m, ok := g.members[nh.String()]
	if !ok || m.isSynced() {
		return nil
	}
	if g.key.IsSingle() || g.isTemp {
		if id, ok := g.neigh.GetNextHopID(nh); ok {
			m.gmID = id
			g.neigh.IncreaseNextHopRefCount(nh)
		}
		return nil
	}
	return g.syncMember(m)
}

func (g *ownedGroup) invalidateNextHop(nh model.NextHopKey) error {
	m, ok := g.members[nh.String()]
	if !ok {
		return nil
	}
	return g.removeMember(m)
}

// update computes the symmetric difference against newKey and applies
// removals before additions, per the "free capacity before consuming more"
// ordering rule.
func (g *ownedGroup) update(newKey model.NextHopGroupKey) error {
	removed, added := g.key.Diff(newKey)
	for _, nh := range removed {
		if m, ok := g.members[nh.String()]; ok {
			if err := g.removeMember(m); err != nil {
				return err
			}
			delete(g.members, nh.String())
		}
	}
	g.key = newKey
	for _, nh := range added {
		m := &groupMember{nh: nh}
		g.members[nh.String()] = m
		if g.key.IsSingle() || g.isTemp {
			if id, ok := g.neigh.GetNextHopID(nh); ok {
				m.gmID = id
				g.neigh.IncreaseNextHopRefCount(nh)
			}
			continue
		}
		if err := g.syncMember(m); err != nil {
			return err
		}
	}
	return nil
}

// pendingRoute tracks one row across the bulk create/remove and the
// post-flush status handling, mirroring RouteBulkContext.
type pendingRoute struct {
	key      model.RouteKey
	rowKey   string
	seq      uint64
	isDel    bool
	nhgKey   model.NextHopGroupKey
	nhgIndex string
	usingNhg bool // binds to an NhgOrch-owned group by index
}

// routeCall is the Bulker payload: either a create (with attrs) or a
// remove (attrs unused).
type routeCall struct {
	attrs  sai.Attributes
	create bool
}

// RouteOrch owns every synced route and the RouteOrch-owned next-hop
// groups routes without an explicit nexthop_group index share.
type RouteOrch struct {
	client   sai.Client
	neigh    *neighorch.NeighOrch
	nhgOrch  *nhgorch.NhgOrch
	stateBus dbus.Bus

	routeTable *orch.Consumer

	groups        map[string]*ownedGroup
	syncdRoutes   map[model.RouteKey]*model.RouteEntry
	nextHopRoutes map[string]map[model.RouteKey]bool

	maxGroupCount int
	defaultState  model.DefaultRouteState
}

// NewRouteOrch constructs a RouteOrch against its peer Orches, the SAI
// client, and the bus it mirrors default-route presence to. maxGroupCount
// bounds RouteOrch's own capacity-aware group creation, independent of
// NhgOrch's own limit.
func NewRouteOrch(client sai.Client, neigh *neighorch.NeighOrch, nhgOrch *nhgorch.NhgOrch, stateBus dbus.Bus, maxGroupCount int) *RouteOrch {
	o := &RouteOrch{
		client:        client,
		neigh:         neigh,
		nhgOrch:       nhgOrch,
		stateBus:      stateBus,
		routeTable:    orch.NewConsumer("ROUTE_TABLE"),
		groups:        make(map[string]*ownedGroup),
		syncdRoutes:   make(map[model.RouteKey]*model.RouteEntry),
		nextHopRoutes: make(map[string]map[model.RouteKey]bool),
		maxGroupCount: maxGroupCount,
	}
	neigh.AttachObserver(o)
	return o
}

func (o *RouteOrch) Name() string               { return "RouteOrch" }
func (o *RouteOrch) Consumers() []*orch.Consumer { return []*orch.Consumer{o.routeTable} }

// Push feeds one ROUTE_TABLE row keyed "vrf:prefix" ("" vrf for the
// default/main VRF).
func (o *RouteOrch) Push(vrf, prefix string, op orch.Op, fields map[string]string) {
	o.routeTable.Push(vrf+":"+prefix, op, fields)
}

func (o *RouteOrch) GetSyncdRoutes() map[model.RouteKey]*model.RouteEntry { return o.syncdRoutes }

func (o *RouteOrch) DoTask(ctx context.Context) error {
	log := util.WithOrch(o.Name())
	bulker := orch.NewBulker[model.RouteKey, routeCall]()
	pendings := make(map[model.RouteKey]*pendingRoute)

	for _, row := range o.routeTable.Batch() {
		vrf, prefix, err := splitRouteKey(row.Key)
		if err != nil {
			log.WithField("error", err).WithField("key", row.Key).Warn("malformed route key")
			o.routeTable.Ack(row.Key, row.Seq)
			continue
		}
		key := model.RouteKey{VRF: vrf, Prefix: prefix}

		pr := &pendingRoute{key: key, rowKey: row.Key, seq: row.Seq, isDel: row.Op == orch.OpDel}
		if err := o.stageRow(pr, row.Fields, bulker); err != nil {
			switch util.ClassifyRowError(err) {
			case util.RowFatal:
				return err
			case util.RowConsume:
				log.WithField("error", err).WithField("key", row.Key).Error("row invalid, consuming")
				o.routeTable.Ack(row.Key, row.Seq)
			default:
				log.WithField("error", err).WithField("key", row.Key).Warn("doTask deferred")
			}
			continue
		}
		pendings[key] = pr
	}

	results := bulker.Flush(o.applyRoute)
	for key, pr := range pendings {
		status, had := results[key]
		if !had {
			// No SAI call was staged (pure NhgOrch-index bind/unbind) —
			// treat as already applied.
			o.finalizeRoute(ctx, pr)
			o.routeTable.Ack(pr.rowKey, pr.seq)
			continue
		}
		disp := sai.ClassifyStatus(status, !pr.isDel)
		if disp == sai.DispositionTransientRetry {
			log.WithField("status", status).WithField("key", pr.rowKey).Warn("route bulk call deferred")
			continue
		}
		if disp == sai.DispositionFatal {
			return util.NewFatalError(fmt.Errorf("route %s: %s", pr.rowKey, status))
		}
		o.finalizeRoute(ctx, pr)
		o.routeTable.Ack(pr.rowKey, pr.seq)
	}
	return nil
}

func splitRouteKey(key string) (vrf, prefix string, err error) {
	idx := strings.Index(key, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("malformed route key %q", key)
	}
	return key[:idx], key[idx+1:], nil
}

// stageRow resolves the target group for row (owned or NhgOrch-indexed),
// stages the route-entry bulk call, and records enough context to finish
// the job post-flush.
func (o *RouteOrch) stageRow(pr *pendingRoute, fields map[string]string, bulker *orch.Bulker[model.RouteKey, routeCall]) error {
	if pr.isDel {
		existing, ok := o.syncdRoutes[pr.key]
		if !ok {
			return nil
		}
		pr.usingNhg = existing.NHGIndex != ""
		pr.nhgIndex = existing.NHGIndex
		if existing.NHGKey != nil {
			pr.nhgKey = *existing.NHGKey
		}
		bulker.Remove(pr.key, routeCall{create: false})
		return nil
	}

	if index, ok := fields["nexthop_group"]; ok && index != "" {
		if !o.nhgOrch.HasNhg(index) {
			return util.NewRetryableError(fmt.Errorf("nhg index %s not yet synced", index))
		}
		g, _ := o.nhgOrch.GetNhg(index)
		pr.usingNhg = true
		pr.nhgIndex = index
		bulker.Create(pr.key, routeCall{create: true, attrs: routeAttrs(g.ID())})
		return nil
	}

	nhgKey, err := parseRouteNexthops(fields)
	if err != nil {
		return util.NewValidationError(err.Error())
	}
	pr.nhgKey = nhgKey

	group, err := o.getOrCreateOwnedGroup(nhgKey)
	if err != nil {
		return err
	}
	handle, ok := group.representativeHandle()
	if !ok {
		return util.NewRetryableError(fmt.Errorf("no resolved next hop for route %s yet", pr.rowKey))
	}
	bulker.Create(pr.key, routeCall{create: true, attrs: routeAttrs(handle)})
	return nil
}

func routeAttrs(nextHopID sai.ObjectID) sai.Attributes {
	return sai.Attributes{
		"SAI_ROUTE_ENTRY_ATTR_PACKET_ACTION": "SAI_PACKET_ACTION_FORWARD",
		"SAI_ROUTE_ENTRY_ATTR_NEXT_HOP_ID":   nextHopID,
	}
}

func (o *RouteOrch) applyRoute(key model.RouteKey, op orch.BulkOp, value routeCall) sai.Status {
	saiKey := fmt.Sprintf("%s:%s", key.VRF, key.Prefix)
	switch op {
	case orch.BulkRemove:
		return o.client.Route().RemoveRouteEntry(saiKey)
	case orch.BulkSet:
		return o.client.Route().SetRouteEntryAttribute(saiKey, value.attrs)
	default:
		return o.client.Route().CreateRouteEntry(saiKey, value.attrs)
	}
}

// getOrCreateOwnedGroup finds a RouteOrch-owned group with the same member
// set (sharing it, the caller bumps its refcount separately) or creates
// one. A single-member group is always real; a larger one is real while
// len(o.groups)+1 < maxGroupCount (every owned group counts, single-member
// ones included), else a temp group with one random resolved member as
// representative, as in NhgOrch. The bound differs from NhgOrch's, which
// is GetNhgCount() < maxCount.
func (o *RouteOrch) getOrCreateOwnedGroup(key model.NextHopGroupKey) (*ownedGroup, error) {
	if g, ok := o.groups[key.String()]; ok {
		return g, nil
	}

	var g *ownedGroup
	if key.IsSingle() || len(o.groups)+1 < o.maxGroupCount {
		g = newOwnedGroup(o.client, o.neigh, key, false)
	} else {
		g = o.createTempGroup(key)
	}
	if err := g.sync(); err != nil {
		return nil, err
	}
	o.groups[key.String()] = g
	return g, nil
}

func (o *RouteOrch) createTempGroup(key model.NextHopGroupKey) *ownedGroup {
	valid := make([]model.NextHopKey, 0, len(key.Members))
	for _, nh := range key.Members {
		if _, ok := o.neigh.GetNextHopID(nh); ok {
			valid = append(valid, nh)
		}
	}
	if len(valid) == 0 {
		return newOwnedGroup(o.client, o.neigh, key, true)
	}
	rep := valid[rand.Intn(len(valid))]
	return newOwnedGroup(o.client, o.neigh, model.NewNextHopGroupKey([]model.NextHopKey{rep}), true)
}

// finalizeRoute updates the in-memory mirror, group refcounts, the
// next-hop→route index, and the default-route state table once the bulked
// SAI call for pr has actually succeeded.
func (o *RouteOrch) finalizeRoute(ctx context.Context, pr *pendingRoute) {
	if pr.isDel {
		o.releaseRouteGroup(pr)
		delete(o.syncdRoutes, pr.key)
		o.unindexNextHops(pr.key, pr.nhgKey)
		o.mirrorDefaultRoute(ctx, pr.key, false)
		return
	}

	if existing, ok := o.syncdRoutes[pr.key]; ok {
		o.releaseRoute(existing)
		o.unindexNextHops(pr.key, valueOr(existing.NHGKey))
	}

	entry := &model.RouteEntry{Key: pr.key, NHGIndex: pr.nhgIndex}
	if !pr.usingNhg {
		nhg := pr.nhgKey
		entry.NHGKey = &nhg
		o.indexNextHops(pr.key, nhg)
	}
	if pr.usingNhg {
		o.nhgOrch.IncreaseRefCount(pr.nhgIndex)
	} else if g, ok := o.groups[pr.nhgKey.String()]; ok {
		g.refCount++
	}
	o.syncdRoutes[pr.key] = entry
	o.mirrorDefaultRoute(ctx, pr.key, true)
}

func valueOr(k *model.NextHopGroupKey) model.NextHopGroupKey {
	if k == nil {
		return model.NextHopGroupKey{}
	}
	return *k
}

func (o *RouteOrch) releaseRoute(entry *model.RouteEntry) {
	if entry.NHGIndex != "" {
		o.nhgOrch.DecreaseRefCount(entry.NHGIndex)
		return
	}
	if entry.NHGKey == nil {
		return
	}
	o.decRefAndMaybeRemove(*entry.NHGKey)
}

func (o *RouteOrch) releaseRouteGroup(pr *pendingRoute) {
	if pr.usingNhg {
		o.nhgOrch.DecreaseRefCount(pr.nhgIndex)
		return
	}
	o.decRefAndMaybeRemove(pr.nhgKey)
}

func (o *RouteOrch) decRefAndMaybeRemove(key model.NextHopGroupKey) {
	g, ok := o.groups[key.String()]
	if !ok {
		return
	}
	g.refCount--
	if g.refCount > 0 {
		return
	}
	_ = g.remove()
	delete(o.groups, key.String())
}

func (o *RouteOrch) indexNextHops(key model.RouteKey, nhg model.NextHopGroupKey) {
	for _, nh := range nhg.Members {
		k := nh.String()
		if o.nextHopRoutes[k] == nil {
			o.nextHopRoutes[k] = make(map[model.RouteKey]bool)
		}
		o.nextHopRoutes[k][key] = true
	}
}

func (o *RouteOrch) unindexNextHops(key model.RouteKey, nhg model.NextHopGroupKey) {
	for _, nh := range nhg.Members {
		if set, ok := o.nextHopRoutes[nh.String()]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(o.nextHopRoutes, nh.String())
			}
		}
	}
}

// mirrorDefaultRoute reflects default-route presence in the main VRF to
// the state namespace so other daemons can gate on connectivity, per the
// original source's setIPv4/v6 FgFlag-style default route state mirror.
func (o *RouteOrch) mirrorDefaultRoute(ctx context.Context, key model.RouteKey, present bool) {
	if key.VRF != "" {
		return
	}
	var changed bool
	switch key.Prefix {
	case "0.0.0.0/0":
		changed = o.defaultState.IPv4Present != present
		o.defaultState.IPv4Present = present
	case "::/0":
		changed = o.defaultState.IPv6Present != present
		o.defaultState.IPv6Present = present
	default:
		return
	}
	if !changed || o.stateBus == nil {
		return
	}
	_ = o.stateBus.Set(ctx, stateTable, "default", dbus.FieldValue{
		"ipv4": strconv.FormatBool(o.defaultState.IPv4Present),
		"ipv6": strconv.FormatBool(o.defaultState.IPv6Present),
	})
}

// ValidateNextHop and InvalidateNextHop re-sync or detach nh in every
// RouteOrch-owned group containing it, mirroring NhgOrch's identical rule.
func (o *RouteOrch) ValidateNextHop(nh model.NextHopKey) {
	for _, g := range o.groups {
		if g.members[nh.String()] != nil {
			_ = g.validateNextHop(nh)
		}
	}
}

func (o *RouteOrch) InvalidateNextHop(nh model.NextHopKey) {
	for _, g := range o.groups {
		if g.members[nh.String()] != nil {
			_ = g.invalidateNextHop(nh)
		}
	}
}

// Update implements orch.Observer, reacting to NeighOrch's NextHopChange
// notifications the same way NhgOrch does, and to NhgOrch's
// NhgPromotedChange by rebinding every route that names the promoted
// index to its new real-group handle.
func (o *RouteOrch) Update(change interface{}) {
	switch c := change.(type) {
	case orch.NextHopChange:
		nh, err := model.ParseNextHopKey(c.Key)
		if err != nil {
			return
		}
		if c.Resolved {
			o.ValidateNextHop(nh)
		} else {
			o.InvalidateNextHop(nh)
		}
	case orch.NhgPromotedChange:
		o.rebindRoutesToNhg(c.Index)
	}
}

// rebindRoutesToNhg re-points every synced route bound to the NhgOrch
// index to the group's current handle, via the bulker so a run of routes
// sharing the same promoted index flushes as one batch of SAI calls.
// Called synchronously from NhgOrch's promotion notification, before the
// retired temp group is torn down.
func (o *RouteOrch) rebindRoutesToNhg(index string) {
	g, ok := o.nhgOrch.GetNhg(index)
	if !ok {
		return
	}
	bulker := orch.NewBulker[model.RouteKey, routeCall]()
	for key, entry := range o.syncdRoutes {
		if entry.NHGIndex != index {
			continue
		}
		bulker.Set(key, routeCall{attrs: routeAttrs(g.ID())})
	}
	if bulker.Len() == 0 {
		return
	}
	log := util.WithOrch(o.Name())
	results := bulker.Flush(o.applyRoute)
	for key, status := range results {
		if sai.ClassifyStatus(status, false) == sai.DispositionTransientRetry {
			log.WithField("status", status).WithField("key", key).Warn("nhg promotion route rebind deferred")
		}
	}
}

// parseRouteNexthops assembles a NextHopGroupKey from a route row's
// comma-separated nexthop/ifname/weight/mpls_nh fields.
func parseRouteNexthops(fields map[string]string) (model.NextHopGroupKey, error) {
	ips := splitNonEmpty(fields["nexthop"])
	aliases := splitNonEmpty(fields["ifname"])
	if len(ips) != len(aliases) || len(ips) == 0 {
		return model.NextHopGroupKey{}, fmt.Errorf("mismatched nexthop/ifname field lists")
	}
	weights := splitNonEmpty(fields["weight"])
	labels := splitNonEmpty(fields["mpls_nh"])

	members := make([]model.NextHopKey, 0, len(ips))
	for i := range ips {
		token := ips[i] + string(model.NHDelimiter) + aliases[i]
		if i < len(labels) && labels[i] != "" && labels[i] != "na" {
			token = labels[i] + string(model.LabelStackDelimiter) + token
		}
		nh, err := model.ParseNextHopKey(token)
		if err != nil {
			return model.NextHopGroupKey{}, err
		}
		if i < len(weights) {
			if w, err := strconv.ParseUint(weights[i], 10, 32); err == nil {
				nh.Weight = uint32(w)
			}
		}
		members = append(members, nh)
	}
	return model.NewNextHopGroupKey(members), nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}

var _ orch.Orch = (*RouteOrch)(nil)
var _ orch.Observer = (*RouteOrch)(nil)
