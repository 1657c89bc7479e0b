// Package nhgorch manages ECMP next-hop-group objects: capacity-aware
// creation of a real group or a temporary single-member stand-in when the
// platform's group-count limit is close, validation/invalidation of
// individual members as their underlying next hops resolve or lose
// resolution, and refcounted sharing across the routes that bind to a
// group by its CP ID.
package nhgorch

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/lumenswitch/orchagent/pkg/model"
	"github.com/lumenswitch/orchagent/pkg/neighorch"
	"github.com/lumenswitch/orchagent/pkg/orch"
	"github.com/lumenswitch/orchagent/pkg/sai"
	"github.com/lumenswitch/orchagent/pkg/util"
)

// member mirrors the original source's NextHopGroupMember: a next-hop key
// plus the SAI group-member handle, zero while unsynced (the next hop has
// no resolved dataplane handle yet).
type member struct {
	nh   model.NextHopKey
	gmID sai.ObjectID
}

func (m *member) isSynced() bool { return m.gmID != 0 }

// NextHopGroup is one ECMP group NhgOrch owns: its canonical member key,
// SAI handle, per-member sync state, and whether it is a capacity-limited
// temporary stand-in.
type NextHopGroup struct {
	client sai.Client
	neigh  *neighorch.NeighOrch

	key     model.NextHopGroupKey
	id      sai.ObjectID
	members map[string]*member // keyed by NextHopKey.String()
	isTemp  bool
	state   model.NHGState
}

func newNextHopGroup(client sai.Client, neigh *neighorch.NeighOrch, key model.NextHopGroupKey, isTemp bool) *NextHopGroup {
	g := &NextHopGroup{client: client, neigh: neigh, key: key, isTemp: isTemp, members: make(map[string]*member), state: model.NHGUnsynced}
	for _, nh := range key.Members {
		g.members[nh.String()] = &member{nh: nh}
	}
	return g
}

func (g *NextHopGroup) IsSynced() bool             { return g.id != 0 }
func (g *NextHopGroup) IsTempGroup() bool          { return g.isTemp }
func (g *NextHopGroup) Size() int                  { return len(g.members) }
func (g *NextHopGroup) Key() model.NextHopGroupKey { return g.key }
func (g *NextHopGroup) ID() sai.ObjectID           { return g.id }

func (g *NextHopGroup) HasNextHop(nh model.NextHopKey) bool {
	_, ok := g.members[nh.String()]
	return ok
}

// HasMemberSynced reports whether nh's member sub-object currently has a
// live SAI handle — false while its next hop is unresolved or masked.
func (g *NextHopGroup) HasMemberSynced(nh model.NextHopKey) bool {
	m, ok := g.members[nh.String()]
	return ok && m.isSynced()
}

// sync creates the group object (if not yet created) and syncs every
// member whose underlying next hop currently resolves.
func (g *NextHopGroup) sync() error {
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
	g.state = model.NHGSyncing
	for _, m := range g.members {
		if m.isSynced() {
			continue
		}
		if err := g.syncMember(m); err != nil {
			return err
		}
	}
	if g.isTemp {
		g.state = model.NHGSyncedTemp
	} else {
		g.state = model.NHGSyncedNormal
	}
	return nil
}

func (g *NextHopGroup) syncMember(m *member) error {
	nhID, ok := g.neigh.GetNextHopID(m.nh)
	if !ok {
		return nil // unresolved — stays unsynced until validateNextHop
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

func (g *NextHopGroup) removeMember(m *member) error {
	if !m.isSynced() {
		return nil
	}
	if status := g.client.NextHopGroup().RemoveNextHopGroupMember(m.gmID); sai.ClassifyStatus(status, false) == sai.DispositionTransientRetry {
		return fmt.Errorf("remove nhg member %s: %s", m.nh, status)
	}
	m.gmID = 0
	return g.neigh.DecreaseNextHopRefCount(m.nh)
}

// remove tears down every synced member and the group object itself.
func (g *NextHopGroup) remove() error {
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
	g.state = model.NHGRemoved
	return nil
}

// validateNextHop re-syncs the member for nh, called when the underlying
// next hop becomes resolved (a neighbor resolves, or its interface comes
// back up).
func (g *NextHopGroup) validateNextHop(nh model.NextHopKey) error {
	m, ok := g.members[nh.String()]
	if !ok || m.isSynced() {
		return nil
	}
	return g.syncMember(m)
}

// invalidateNextHop detaches the member for nh without removing it from
// the group's member set, called on interface-down masking or neighbor
// loss.
func (g *NextHopGroup) invalidateNextHop(nh model.NextHopKey) error {
	m, ok := g.members[nh.String()]
	if !ok {
		return nil
	}
	return g.removeMember(m)
}

// nhgEntry pairs an owned group with the count of routes referencing it by index — the group is removed only once the last
// reference is released.
type nhgEntry struct {
	nhg      *NextHopGroup
	refCount int
}

// NhgOrch owns every real and temporary next-hop group, keyed by the
// CP ID (group index) NEXTHOP_GROUP_TABLE and RouteOrch share.
type NhgOrch struct {
	client sai.Client
	neigh  *neighorch.NeighOrch

	nhgTable *orch.Consumer
	syncd    map[string]*nhgEntry
	maxCount int

	changes orch.Subject
}

// NewNhgOrch constructs an NhgOrch with the platform's maximum group
// count, the capacity bound setIndex, rebuildTempGroup and
// promoteTempGroups check against.
func NewNhgOrch(client sai.Client, neigh *neighorch.NeighOrch, maxNhgCount int) *NhgOrch {
	return &NhgOrch{
		client:   client,
		neigh:    neigh,
		nhgTable: orch.NewConsumer("NEXTHOP_GROUP_TABLE"),
		syncd:    make(map[string]*nhgEntry),
		maxCount: maxNhgCount,
	}
}

func (o *NhgOrch) Name() string               { return "NhgOrch" }
func (o *NhgOrch) Consumers() []*orch.Consumer { return []*orch.Consumer{o.nhgTable} }

// AttachObserver registers obs to receive NhgPromotedChange notifications.
func (o *NhgOrch) AttachObserver(obs orch.Observer) { o.changes.Attach(obs) }

func (o *NhgOrch) Push(index string, op orch.Op, fields map[string]string) {
	o.nhgTable.Push(index, op, fields)
}

func (o *NhgOrch) HasNhg(index string) bool {
	_, ok := o.syncd[index]
	return ok
}

func (o *NhgOrch) GetNhg(index string) (*NextHopGroup, bool) {
	entry, ok := o.syncd[index]
	if !ok {
		return nil, false
	}
	return entry.nhg, true
}

// GetNhgCount reports the number of currently-synced groups, real or
// temporary, the count the capacity checks of setIndex, rebuildTempGroup
// and promoteTempGroups are based on.
func (o *NhgOrch) GetNhgCount() int { return len(o.syncd) }

func (o *NhgOrch) DoTask(ctx context.Context) error {
	log := util.WithOrch(o.Name())
	for _, row := range o.nhgTable.Batch() {
		var err error
		if row.Op == orch.OpDel {
			err = o.removeIndex(row.Key)
		} else {
			err = o.setIndex(row.Key, row.Fields)
		}
		switch {
		case err == nil:
			o.nhgTable.Ack(row.Key, row.Seq)
		case util.ClassifyRowError(err) == util.RowFatal:
			return err
		case util.ClassifyRowError(err) == util.RowConsume:
			log.WithField("error", err).WithField("index", row.Key).Error("row invalid, consuming")
			o.nhgTable.Ack(row.Key, row.Seq)
		default:
			log.WithField("error", err).WithField("index", row.Key).Warn("doTask deferred")
		}
	}
	o.promoteTempGroups()
	return nil
}

// promoteTempGroups reconsiders every temp group on each pass: capacity
// freed by any event this pass processed (most commonly another index's
// removal) may now fit a real group for one still stuck as temp. A
// promoted group is rebuilt from its full key as a real group, synced,
// and swapped into the index map; referring routes are rebound to the new
// handle via NhgPromotedChange before the old temp group is torn down.
func (o *NhgOrch) promoteTempGroups() {
	log := util.WithOrch(o.Name())
	for index, entry := range o.syncd {
		if !entry.nhg.isTemp || o.GetNhgCount()-1 >= o.maxCount {
			continue
		}
		old := entry.nhg
		real := newNextHopGroup(o.client, o.neigh, old.key, false)
		if err := real.sync(); err != nil {
			log.WithField("error", err).WithField("index", index).Warn("nhg promotion deferred")
			continue
		}
		entry.nhg = real
		o.changes.Notify(orch.NhgPromotedChange{Index: index})
		if err := old.remove(); err != nil {
			log.WithField("error", err).WithField("index", index).Warn("temp nhg teardown deferred")
		}
	}
}

func (o *NhgOrch) setIndex(index string, fields map[string]string) error {
	key, err := parseGroupFields(fields)
	if err != nil {
		return util.NewValidationError(err.Error())
	}

	if entry, exists := o.syncd[index]; exists {
		return o.updateGroup(index, entry, key)
	}

	var g *NextHopGroup
	if o.GetNhgCount() < o.maxCount {
		g = newNextHopGroup(o.client, o.neigh, key, false)
	} else {
		g = o.createTempNhgLocked(key)
	}
	if err := g.sync(); err != nil {
		return err
	}
	o.syncd[index] = &nhgEntry{nhg: g}
	return nil
}

// createTempNhgLocked builds (but does not sync) a capacity-limited
// temporary group: one randomly chosen valid member stands in as the
// group's representative handle, matching createTempNhg's "pick one valid
// member at random" rule. The group keeps the full requested key, so
// promotion rebuilds it with every member, while its only member is the
// representative.
func (o *NhgOrch) createTempNhgLocked(key model.NextHopGroupKey) *NextHopGroup {
	valid := make([]model.NextHopKey, 0, len(key.Members))
	for _, nh := range key.Members {
		if _, ok := o.neigh.GetNextHopID(nh); ok {
			valid = append(valid, nh)
		}
	}
	if len(valid) == 0 {
		return newNextHopGroup(o.client, o.neigh, key, true)
	}
	rep := valid[rand.Intn(len(valid))]
	g := newNextHopGroup(o.client, o.neigh, model.NewNextHopGroupKey([]model.NextHopKey{rep}), true)
	g.key = key
	return g
}

// updateGroup applies newKey to entry's group. A real group keeps its SAI
// object and simply diffs members in place, so anything already bound to
// its handle sees no change. A temp group instead gets rebuilt from
// scratch against newKey — a straight member diff would let it grow past
// the single-representative invariant createTempNhgLocked enforces at
// creation, and capacity may have changed since the temp group was made,
// so this is also where an update to the temp group's own row can
// promote it immediately rather than waiting for the next doTask pass's
// promoteTempGroups sweep.
func (o *NhgOrch) updateGroup(index string, entry *nhgEntry, newKey model.NextHopGroupKey) error {
	if entry.nhg.isTemp {
		return o.rebuildTempGroup(index, entry, newKey)
	}
	removed, added := entry.nhg.key.Diff(newKey)
	for _, nh := range removed {
		if m, ok := entry.nhg.members[nh.String()]; ok {
			if err := entry.nhg.removeMember(m); err != nil {
				return err
			}
			delete(entry.nhg.members, nh.String())
		}
	}
	for _, nh := range added {
		m := &member{nh: nh}
		entry.nhg.members[nh.String()] = m
		if err := entry.nhg.syncMember(m); err != nil {
			return err
		}
	}
	entry.nhg.key = newKey
	return nil
}

func (o *NhgOrch) rebuildTempGroup(index string, entry *nhgEntry, newKey model.NextHopGroupKey) error {
	old := entry.nhg
	var g *NextHopGroup
	if o.GetNhgCount()-1 < o.maxCount {
		g = newNextHopGroup(o.client, o.neigh, newKey, false)
	} else {
		g = o.createTempNhgLocked(newKey)
	}
	if err := g.sync(); err != nil {
		return err
	}
	entry.nhg = g
	if !g.isTemp {
		o.changes.Notify(orch.NhgPromotedChange{Index: index})
	}
	return old.remove()
}

func (o *NhgOrch) removeIndex(index string) error {
	entry, ok := o.syncd[index]
	if !ok {
		return nil
	}
	if entry.refCount > 0 {
		return util.NewRetryableError(fmt.Errorf("nhg %s still referenced by %d callers", index, entry.refCount))
	}
	if err := entry.nhg.remove(); err != nil {
		return err
	}
	delete(o.syncd, index)
	return nil
}

// IncreaseRefCount and DecreaseRefCount let RouteOrch share ownership of a
// group by index.
func (o *NhgOrch) IncreaseRefCount(index string) {
	if entry, ok := o.syncd[index]; ok {
		entry.refCount++
	}
}

func (o *NhgOrch) DecreaseRefCount(index string) {
	if entry, ok := o.syncd[index]; ok && entry.refCount > 0 {
		entry.refCount--
	}
}

// ValidateNextHop re-syncs nh in every group containing it, called by the
// NeighOrch observer on neighbor resolution or interface-up.
func (o *NhgOrch) ValidateNextHop(nh model.NextHopKey) error {
	for _, entry := range o.syncd {
		if entry.nhg.HasNextHop(nh) {
			if err := entry.nhg.validateNextHop(nh); err != nil {
				return err
			}
		}
	}
	return nil
}

// InvalidateNextHop detaches nh from every group containing it, called on
// neighbor loss or interface-down masking.
func (o *NhgOrch) InvalidateNextHop(nh model.NextHopKey) error {
	for _, entry := range o.syncd {
		if entry.nhg.HasNextHop(nh) {
			if err := entry.nhg.invalidateNextHop(nh); err != nil {
				return err
			}
		}
	}
	return nil
}

// Update implements orch.Observer: a NextHopChange toggles validate/
// invalidate across every group referencing that next hop.
func (o *NhgOrch) Update(change interface{}) {
	c, ok := change.(orch.NextHopChange)
	if !ok {
		return
	}
	nh, err := model.ParseNextHopKey(c.Key)
	if err != nil {
		return
	}
	if c.Resolved {
		_ = o.ValidateNextHop(nh)
	} else {
		_ = o.InvalidateNextHop(nh)
	}
}

func parseGroupFields(fields map[string]string) (model.NextHopGroupKey, error) {
	ips := splitNonEmpty(fields["nexthop"])
	aliases := splitNonEmpty(fields["ifname"])
	if len(ips) != len(aliases) || len(ips) == 0 {
		return model.NextHopGroupKey{}, fmt.Errorf("mismatched nexthop/ifname field lists")
	}
	members := make([]model.NextHopKey, 0, len(ips))
	for i := range ips {
		token := ips[i] + string(model.NHDelimiter) + aliases[i]
		nh, err := model.ParseNextHopKey(token)
		if err != nil {
			return model.NextHopGroupKey{}, err
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
		if i == len(s) || s[i] == byte(model.NHGDelimiter) {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}

var _ orch.Orch = (*NhgOrch)(nil)
var _ orch.Observer = (*NhgOrch)(nil)
