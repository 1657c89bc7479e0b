// Package aclorch manages ACL tables and rules: table creation and
// per-port binding (directly on an existing group, or via a fresh
// per-port table group), rule creation with match/action translation and
// shared, refcounted range objects bounded by a platform cap, a
// background counter-collection loop, and mirror-session-driven
// bind/unbind of MIRROR-type rules.
package aclorch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lumenswitch/orchagent/pkg/dbus"
	"github.com/lumenswitch/orchagent/pkg/model"
	"github.com/lumenswitch/orchagent/pkg/orch"
	"github.com/lumenswitch/orchagent/pkg/portsorch"
	"github.com/lumenswitch/orchagent/pkg/sai"
	"github.com/lumenswitch/orchagent/pkg/util"
)

const countersTable = "ACL_COUNTERS"

var matchAttr = map[string]string{
	"SRC_IP":            "SAI_ACL_ENTRY_ATTR_FIELD_SRC_IP",
	"DST_IP":            "SAI_ACL_ENTRY_ATTR_FIELD_DST_IP",
	"SRC_IPV6":          "SAI_ACL_ENTRY_ATTR_FIELD_SRC_IPV6",
	"DST_IPV6":          "SAI_ACL_ENTRY_ATTR_FIELD_DST_IPV6",
	"L4_SRC_PORT":       "SAI_ACL_ENTRY_ATTR_FIELD_L4_SRC_PORT",
	"L4_DST_PORT":       "SAI_ACL_ENTRY_ATTR_FIELD_L4_DST_PORT",
	"ETHER_TYPE":        "SAI_ACL_ENTRY_ATTR_FIELD_ETHER_TYPE",
	"IP_PROTOCOL":       "SAI_ACL_ENTRY_ATTR_FIELD_IP_PROTOCOL",
	"TCP_FLAGS":         "SAI_ACL_ENTRY_ATTR_FIELD_TCP_FLAGS",
	"IP_TYPE":           "SAI_ACL_ENTRY_ATTR_FIELD_IP_TYPE",
	"DSCP":              "SAI_ACL_ENTRY_ATTR_FIELD_DSCP",
	"L4_SRC_PORT_RANGE": "SAI_ACL_RANGE_L4_SRC_PORT_RANGE",
	"L4_DST_PORT_RANGE": "SAI_ACL_RANGE_L4_DST_PORT_RANGE",
	"IN_PORTS":          "SAI_ACL_ENTRY_ATTR_FIELD_IN_PORTS",
}

var rangeMatches = map[string]model.ACLRangeType{
	"L4_SRC_PORT_RANGE": model.RangeL4SrcPort,
	"L4_DST_PORT_RANGE": model.RangeL4DstPort,
}

var actionAttr = map[string]string{
	"PACKET_ACTION": "SAI_ACL_ENTRY_ATTR_PACKET_ACTION",
	"MIRROR_ACTION": "SAI_ACL_ENTRY_ATTR_ACTION_MIRROR_INGRESS",
}

// rangeEntry is the shared-range allocator's bookkeeping record, keyed by
// (type, min, max).
type rangeEntry struct {
	id       sai.ObjectID
	refCount int
}

// AclOrch owns every ACL table and rule, the shared range-object pool, and
// the background counter-collection loop.
type AclOrch struct {
	client sai.Client
	ports  *portsorch.PortsOrch
	bus    dbus.Bus

	tableRows *orch.Consumer
	ruleRows  *orch.Consumer

	mu         sync.Mutex // guards every field below; also held across doTask so the counter loop never races a mutation
	tables     map[string]*model.ACLTable
	portGroups map[string]map[model.ACLStage]sai.ObjectID // per-port, per-stage table-group handle shared across tables
	ranges     map[model.ACLRangeKey]*rangeEntry
	maxRanges  int

	minPriority int
	maxPriority int

	pollInterval time.Duration
	stopPolling  context.CancelFunc
	pollGroup    *errgroup.Group
}

// NewAclOrch constructs an AclOrch. minPriority/maxPriority bound rule
// priority; maxRanges caps the number of distinct shared range objects;
// pollInterval is the counter-collection period (clamped to a 5 second
// floor, the original source's documented minimum).
func NewAclOrch(client sai.Client, ports *portsorch.PortsOrch, bus dbus.Bus, minPriority, maxPriority, maxRanges int, pollInterval time.Duration) *AclOrch {
	if pollInterval < 5*time.Second {
		pollInterval = 5 * time.Second
	}
	return &AclOrch{
		client:       client,
		ports:        ports,
		bus:          bus,
		tableRows:    orch.NewConsumer("ACL_TABLE"),
		ruleRows:     orch.NewConsumer("ACL_RULE"),
		tables:       make(map[string]*model.ACLTable),
		portGroups:   make(map[string]map[model.ACLStage]sai.ObjectID),
		ranges:       make(map[model.ACLRangeKey]*rangeEntry),
		maxRanges:    maxRanges,
		minPriority:  minPriority,
		maxPriority:  maxPriority,
		pollInterval: pollInterval,
	}
}

func (o *AclOrch) Name() string { return "AclOrch" }
func (o *AclOrch) Consumers() []*orch.Consumer {
	return []*orch.Consumer{o.tableRows, o.ruleRows}
}

func (o *AclOrch) PushTable(name string, op orch.Op, fields map[string]string) {
	o.tableRows.Push(name, op, fields)
}

// PushRule feeds one ACL_RULE row keyed "table|rule".
func (o *AclOrch) PushRule(table, rule string, op orch.Op, fields map[string]string) {
	o.ruleRows.Push(table+"|"+rule, op, fields)
}

func (o *AclOrch) GetTable(name string) (*model.ACLTable, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.tables[name]
	return t, ok
}

func (o *AclOrch) DoTask(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	log := util.WithOrch(o.Name())
	for _, row := range o.tableRows.Batch() {
		err := o.doTableTask(row)
		switch {
		case err == nil:
			o.tableRows.Ack(row.Key, row.Seq)
		case util.ClassifyRowError(err) == util.RowFatal:
			return err
		case util.ClassifyRowError(err) == util.RowConsume:
			log.WithField("error", err).WithField("key", row.Key).Error("ACL table row invalid, consuming")
			o.tableRows.Ack(row.Key, row.Seq)
		default:
			log.WithField("error", err).WithField("key", row.Key).Warn("doAclTableTask deferred")
		}
	}
	for _, row := range o.ruleRows.Batch() {
		err := o.doRuleTask(row)
		switch {
		case err == nil:
			o.ruleRows.Ack(row.Key, row.Seq)
		case util.ClassifyRowError(err) == util.RowFatal:
			return err
		case util.ClassifyRowError(err) == util.RowConsume:
			log.WithField("error", err).WithField("key", row.Key).Error("ACL rule row invalid, consuming")
			o.ruleRows.Ack(row.Key, row.Seq)
		default:
			log.WithField("error", err).WithField("key", row.Key).Warn("doAclRuleTask deferred")
		}
	}
	return nil
}

func (o *AclOrch) doTableTask(row orch.Row) error {
	if row.Op == orch.OpDel {
		return o.removeTable(row.Key)
	}
	return o.createTable(row.Key, row.Fields)
}

func (o *AclOrch) createTable(name string, fields map[string]string) error {
	if _, exists := o.tables[name]; exists {
		return nil
	}
	stage, err := parseStage(fields["stage"])
	if err != nil {
		return util.NewValidationError(err.Error())
	}
	typ, err := parseTableType(fields["type"])
	if err != nil {
		return util.NewValidationError(err.Error())
	}
	ports, err := o.resolvePorts(fields["ports"])
	if err != nil {
		return err
	}

	id, status := o.client.ACL().CreateACLTable(sai.Attributes{
		"SAI_ACL_TABLE_ATTR_ACL_STAGE": stage,
	})
	disp := sai.ClassifyStatus(status, true)
	if disp == sai.DispositionTransientRetry {
		return fmt.Errorf("create ACL table %s: %s", name, status)
	}
	if disp == sai.DispositionFatal {
		return util.NewFatalError(fmt.Errorf("create ACL table %s: %s", name, status))
	}

	table := model.NewACLTable(name, stage, typ)
	table.ID = id
	for _, p := range ports {
		if err := o.bindPort(table, p); err != nil {
			return err
		}
	}
	o.tables[name] = table
	return nil
}

// bindPort either creates the table-group member directly on an existing
// per-port ACL group, or creates a fresh per-port group of the table's
// stage and binds it to the port's INGRESS_ACL/EGRESS_ACL attribute.
func (o *AclOrch) bindPort(table *model.ACLTable, port *model.Port) error {
	attrName := "SAI_PORT_ATTR_INGRESS_ACL"
	if table.Stage == model.ACLStageEgress {
		attrName = "SAI_PORT_ATTR_EGRESS_ACL"
	}

	stages, ok := o.portGroups[port.Alias]
	if !ok {
		stages = make(map[model.ACLStage]sai.ObjectID)
		o.portGroups[port.Alias] = stages
	}
	groupID, ok := stages[table.Stage]
	if !ok {
		id, status := o.client.ACL().CreateACLTableGroup(sai.Attributes{
			"SAI_ACL_TABLE_GROUP_ATTR_ACL_STAGE": attrName,
		})
		if sai.ClassifyStatus(status, true) == sai.DispositionTransientRetry {
			return fmt.Errorf("create ACL table group for %s: %s", port.Alias, status)
		}
		if status := o.client.ACL().SetPortACLAttribute(port.ID, sai.Attributes{attrName: id}); sai.ClassifyStatus(status, false) == sai.DispositionTransientRetry {
			return fmt.Errorf("bind ACL group to port %s: %s", port.Alias, status)
		}
		stages[table.Stage] = id
		groupID = id
	}

	memberID, status := o.client.ACL().CreateACLTableGroupMember(sai.Attributes{
		"SAI_ACL_TABLE_GROUP_MEMBER_ATTR_ACL_TABLE_GROUP_ID": groupID,
		"SAI_ACL_TABLE_GROUP_MEMBER_ATTR_ACL_TABLE_ID":       table.ID,
	})
	if sai.ClassifyStatus(status, true) == sai.DispositionTransientRetry {
		return fmt.Errorf("bind table %s to port %s: %s", table.Name, port.Alias, status)
	}
	table.GroupID[port.Alias] = memberID
	table.Ports[port.Alias] = true
	return nil
}

func (o *AclOrch) resolvePorts(list string) ([]*model.Port, error) {
	aliases := util.SplitCommaSeparated(list)
	out := make([]*model.Port, 0, len(aliases))
	seen := make(map[string]bool, len(aliases))
	for _, alias := range aliases {
		if seen[alias] {
			return nil, fmt.Errorf("duplicate port %s in ACL table port list", alias)
		}
		seen[alias] = true
		port, ok := o.ports.GetPort(alias)
		if !ok {
			return nil, util.NewRetryableError(fmt.Errorf("port %s not yet created", alias))
		}
		out = append(out, port)
	}
	return out, nil
}

// BindPort binds an existing table to a port that did not exist, or was
// not yet a member, at table-creation time — callers (e.g. MuxOrch's
// shared drop-ACL table) that grow a table's port membership over time go
// through this instead of recreating the table.
func (o *AclOrch) BindPort(tableName, alias string) error {
	table, ok := o.tables[tableName]
	if !ok {
		return util.NewRetryableError(fmt.Errorf("ACL table %s not yet created", tableName))
	}
	if table.Ports[alias] {
		return nil
	}
	port, ok := o.ports.GetPort(alias)
	if !ok {
		return util.NewRetryableError(fmt.Errorf("port %s not yet created", alias))
	}
	return o.bindPort(table, port)
}

// resolvePortIDs maps a comma-separated alias list to the SAI port handles
// currently known for them, silently dropping any not yet resolvable —
// used only by the IN_PORTS match field, whose membership MuxOrch already
// gates on port existence before calling SetRuleMatchPorts.
func (o *AclOrch) resolvePortIDs(aliases string) []sai.ObjectID {
	ids := make([]sai.ObjectID, 0)
	for _, alias := range util.SplitCommaSeparated(aliases) {
		if port, ok := o.ports.GetPort(alias); ok {
			ids = append(ids, port.ID)
		}
	}
	return ids
}

// SetRuleMatchPorts recomputes a rule's IN_PORTS match field from the given
// port-alias membership and pushes the full list down via
// SetACLEntryAttribute, mirroring the original's incremental
// add/remove-from-IN_PORTS update but expressed as a full recompute since
// the caller already tracks membership authoritatively.
func (o *AclOrch) SetRuleMatchPorts(tableName, ruleName string, aliases []string) error {
	table, ok := o.tables[tableName]
	if !ok {
		return util.NewRetryableError(fmt.Errorf("ACL table %s not yet created", tableName))
	}
	rule, ok := table.Rules[ruleName]
	if !ok {
		return util.NewRetryableError(fmt.Errorf("ACL rule %s/%s not yet created", tableName, ruleName))
	}
	rule.Match["IN_PORTS"] = model.ACLMatch{Kind: model.MatchPortList, Data: strings.Join(aliases, ",")}
	status := o.client.ACL().SetACLEntryAttribute(rule.ID, sai.Attributes{
		matchAttr["IN_PORTS"]: o.resolvePortIDs(rule.Match["IN_PORTS"].Data),
	})
	if sai.ClassifyStatus(status, false) == sai.DispositionTransientRetry {
		return fmt.Errorf("update IN_PORTS for rule %s/%s: %s", tableName, ruleName, status)
	}
	return nil
}

func (o *AclOrch) removeTable(name string) error {
	table, ok := o.tables[name]
	if !ok {
		return nil
	}
	if len(table.Rules) > 0 {
		return util.NewRetryableError(fmt.Errorf("ACL table %s still has rules", name))
	}
	for alias, memberID := range table.GroupID {
		if status := o.client.ACL().RemoveACLTableGroupMember(memberID); sai.ClassifyStatus(status, false) == sai.DispositionTransientRetry {
			return fmt.Errorf("unbind table %s from port %s: %s", name, alias, status)
		}
	}
	if status := o.client.ACL().RemoveACLTable(table.ID); sai.ClassifyStatus(status, false) == sai.DispositionTransientRetry {
		return fmt.Errorf("remove ACL table %s: %s", name, status)
	}
	delete(o.tables, name)
	return nil
}

func (o *AclOrch) doRuleTask(row orch.Row) error {
	table, rule, err := splitRuleKey(row.Key)
	if err != nil {
		return util.NewValidationError(err.Error())
	}
	if row.Op == orch.OpDel {
		return o.removeRule(table, rule)
	}
	return o.createRule(table, rule, row.Fields)
}

func splitRuleKey(key string) (table, rule string, err error) {
	idx := strings.Index(key, "|")
	if idx < 0 {
		return "", "", fmt.Errorf("malformed ACL rule key %q", key)
	}
	return key[:idx], key[idx+1:], nil
}

func (o *AclOrch) createRule(tableName, ruleName string, fields map[string]string) error {
	table, ok := o.tables[tableName]
	if !ok {
		return util.NewRetryableError(fmt.Errorf("ACL table %s not yet created", tableName))
	}
	if _, exists := table.Rules[ruleName]; exists {
		return nil
	}

	priority, err := strconv.Atoi(fields["PRIORITY"])
	if err != nil {
		return util.NewValidationError(fmt.Sprintf("invalid priority %q: %s", fields["PRIORITY"], err))
	}
	if priority < o.minPriority || priority > o.maxPriority {
		return util.NewValidationError(fmt.Sprintf("priority %d outside platform range [%d, %d]", priority, o.minPriority, o.maxPriority))
	}

	rule := model.NewACLRule(tableName, ruleName)
	rule.Priority = priority

	var ranges []model.ACLRangeKey
	for field, value := range fields {
		switch {
		case field == "PRIORITY":
			continue
		case isMatchField(field):
			m, rangeKey, err := o.parseMatch(field, value)
			if err != nil {
				return util.NewValidationError(err.Error())
			}
			rule.Match[field] = m
			if m.Kind == model.MatchRange {
				if _, err := o.acquireRange(rangeKey); err != nil {
					o.releaseRanges(ranges)
					return err
				}
				ranges = append(ranges, rangeKey)
			}
		case isActionField(field):
			rule.Action[field] = value
		}
	}
	rule.RangeIDs = ranges

	counterID, status := o.client.ACL().CreateACLCounter(sai.Attributes{"SAI_ACL_COUNTER_ATTR_TABLE_ID": table.ID})
	if sai.ClassifyStatus(status, true) == sai.DispositionTransientRetry {
		o.releaseRanges(ranges)
		return fmt.Errorf("create counter for rule %s/%s: %s", tableName, ruleName, status)
	}
	rule.CounterID = counterID

	id, status := o.client.ACL().CreateACLEntry(o.entryAttrs(table, rule))
	disp := sai.ClassifyStatus(status, true)
	if disp == sai.DispositionTransientRetry {
		o.releaseRanges(ranges)
		return fmt.Errorf("create ACL rule %s/%s: %s", tableName, ruleName, status)
	}
	if disp == sai.DispositionFatal {
		o.releaseRanges(ranges)
		return util.NewFatalError(fmt.Errorf("create ACL rule %s/%s: %s", tableName, ruleName, status))
	}
	rule.ID = id
	if table.Type == model.ACLTableMirror {
		rule.MirrorSessionActive = true
	}
	table.Rules[ruleName] = rule
	return nil
}

// entryAttrs rebuilds the full SAI attribute set for a rule from its model
// state — used both at creation and when reviving a withdrawn mirror rule,
// so the two paths can never drift apart on match fields.
func (o *AclOrch) entryAttrs(table *model.ACLTable, rule *model.ACLRule) sai.Attributes {
	attrs := sai.Attributes{
		"SAI_ACL_ENTRY_ATTR_TABLE_ID":      table.ID,
		"SAI_ACL_ENTRY_ATTR_PRIORITY":      rule.Priority,
		"SAI_ACL_ENTRY_ATTR_ADMIN_STATE":   true,
		"SAI_ACL_ENTRY_ATTR_ACTION_COUNTER": rule.CounterID,
	}
	for field, m := range rule.Match {
		switch m.Kind {
		case model.MatchRange:
			key := model.ACLRangeKey{Type: m.Range, Min: m.Min, Max: m.Max}
			if entry, ok := o.ranges[key]; ok {
				attrs[matchAttr[field]] = entry.id
			}
		case model.MatchPortList:
			attrs[matchAttr[field]] = o.resolvePortIDs(m.Data)
		default:
			attrs[matchAttr[field]] = sai.Attributes{"data": m.Data, "mask": m.Mask}
		}
	}
	for field, value := range rule.Action {
		attrs[actionAttr[field]] = value
	}
	return attrs
}

func (o *AclOrch) removeRule(tableName, ruleName string) error {
	table, ok := o.tables[tableName]
	if !ok {
		return nil
	}
	rule, ok := table.Rules[ruleName]
	if !ok {
		return nil
	}
	if rule.ID != 0 {
		if status := o.client.ACL().RemoveACLEntry(rule.ID); sai.ClassifyStatus(status, false) == sai.DispositionTransientRetry {
			return fmt.Errorf("remove ACL rule %s/%s: %s", tableName, ruleName, status)
		}
	}
	if rule.CounterID != 0 {
		if status := o.client.ACL().RemoveACLCounter(rule.CounterID); sai.ClassifyStatus(status, false) == sai.DispositionTransientRetry {
			return fmt.Errorf("remove counter for rule %s/%s: %s", tableName, ruleName, status)
		}
	}
	o.releaseRanges(rule.RangeIDs)
	delete(table.Rules, ruleName)
	return nil
}

// acquireRange returns the shared range object for key, creating it on
// first reference and enforcing the platform cap on total range objects.
func (o *AclOrch) acquireRange(key model.ACLRangeKey) (sai.ObjectID, error) {
	if entry, ok := o.ranges[key]; ok {
		entry.refCount++
		return entry.id, nil
	}
	if len(o.ranges) >= o.maxRanges {
		return 0, util.NewCapacityError("ACL range object", o.maxRanges)
	}
	rangeType := "SAI_ACL_RANGE_TYPE_L4_SRC_PORT_RANGE"
	if key.Type == model.RangeL4DstPort {
		rangeType = "SAI_ACL_RANGE_TYPE_L4_DST_PORT_RANGE"
	}
	id, status := o.client.ACL().CreateACLRange(sai.Attributes{
		"SAI_ACL_RANGE_ATTR_TYPE":  rangeType,
		"SAI_ACL_RANGE_ATTR_LIMIT": [2]int{key.Min, key.Max},
	})
	if sai.ClassifyStatus(status, true) == sai.DispositionTransientRetry {
		return 0, fmt.Errorf("create ACL range %v: %s", key, status)
	}
	o.ranges[key] = &rangeEntry{id: id, refCount: 1}
	return id, nil
}

func (o *AclOrch) releaseRanges(keys []model.ACLRangeKey) {
	for _, key := range keys {
		entry, ok := o.ranges[key]
		if !ok {
			continue
		}
		entry.refCount--
		if entry.refCount > 0 {
			continue
		}
		_ = o.client.ACL().RemoveACLRange(entry.id)
		delete(o.ranges, key)
	}
}

func isMatchField(field string) bool {
	_, ok := matchAttr[field]
	return ok
}

func isActionField(field string) bool {
	_, ok := actionAttr[field]
	return ok
}

func (o *AclOrch) parseMatch(field, value string) (model.ACLMatch, model.ACLRangeKey, error) {
	if rangeType, ok := rangeMatches[field]; ok {
		parts := strings.SplitN(value, "-", 2)
		if len(parts) != 2 {
			return model.ACLMatch{}, model.ACLRangeKey{}, fmt.Errorf("malformed range %q", value)
		}
		min, err := strconv.Atoi(parts[0])
		if err != nil {
			return model.ACLMatch{}, model.ACLRangeKey{}, fmt.Errorf("invalid range min %q: %w", parts[0], err)
		}
		max, err := strconv.Atoi(parts[1])
		if err != nil {
			return model.ACLMatch{}, model.ACLRangeKey{}, fmt.Errorf("invalid range max %q: %w", parts[1], err)
		}
		if min > max || min < 0 || max > 65535 {
			return model.ACLMatch{}, model.ACLRangeKey{}, fmt.Errorf("invalid range [%d, %d]", min, max)
		}
		key := model.ACLRangeKey{Type: rangeType, Min: min, Max: max}
		return model.ACLMatch{Kind: model.MatchRange, Min: min, Max: max, Range: rangeType}, key, nil
	}
	if field == "TCP_FLAGS" {
		parts := strings.SplitN(value, "/", 2)
		if len(parts) != 2 {
			return model.ACLMatch{}, model.ACLRangeKey{}, fmt.Errorf("malformed TCP_FLAGS %q", value)
		}
		return model.ACLMatch{Kind: model.MatchFieldMask, Data: parts[0], Mask: parts[1]}, model.ACLRangeKey{}, nil
	}
	if field == "SRC_IP" || field == "DST_IP" || field == "SRC_IPV6" || field == "DST_IPV6" {
		ip, mask, err := util.ParseIPWithMask(value)
		if err != nil {
			return model.ACLMatch{}, model.ACLRangeKey{}, err
		}
		return model.ACLMatch{Kind: model.MatchFieldMask, Data: ip.String(), Mask: strconv.Itoa(mask)}, model.ACLRangeKey{}, nil
	}
	return model.ACLMatch{Kind: model.MatchFieldMask, Data: value, Mask: "0xffffffff"}, model.ACLRangeKey{}, nil
}

func parseStage(s string) (model.ACLStage, error) {
	switch strings.ToUpper(s) {
	case "INGRESS", "":
		return model.ACLStageIngress, nil
	case "EGRESS":
		return model.ACLStageEgress, nil
	default:
		return 0, fmt.Errorf("unknown ACL stage %q", s)
	}
}

func parseTableType(s string) (model.ACLTableType, error) {
	switch strings.ToUpper(s) {
	case "L3", "L3V6":
		return model.ACLTableL3, nil
	case "MIRROR", "MIRRORV6":
		return model.ACLTableMirror, nil
	case "PFCWD":
		return model.ACLTablePFCWD, nil
	case "DTEL_FLOW_WATCHLIST", "DTEL_DROP_WATCHLIST":
		return model.ACLTableDTel, nil
	case "CTRLPLANE", "DROP":
		return model.ACLTableDrop, nil
	default:
		return 0, fmt.Errorf("unknown ACL table type %q", s)
	}
}

// StartCounterPolling launches the background counter-collection loop as
// a single errgroup goroutine, woken every pollInterval to read every
// rule's packet/byte counters and publish them to the counters namespace.
// It yields the same Orch-wide mutex DoTask holds, so a poll never races a
// foreground mutation.
func (o *AclOrch) StartCounterPolling(ctx context.Context) {
	pollCtx, cancel := context.WithCancel(ctx)
	o.stopPolling = cancel
	g, gctx := errgroup.WithContext(pollCtx)
	o.pollGroup = g
	g.Go(func() error {
		ticker := time.NewTicker(o.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				o.collectCounters(gctx)
			}
		}
	})
}

// StopCounterPolling signals the polling loop to exit and waits for it,
// the Go equivalent of the original source's condition-variable signal on
// destruction.
func (o *AclOrch) StopCounterPolling() error {
	if o.stopPolling == nil {
		return nil
	}
	o.stopPolling()
	err := o.pollGroup.Wait()
	o.stopPolling = nil
	return err
}

func (o *AclOrch) collectCounters(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, table := range o.tables {
		for ruleName, rule := range table.Rules {
			if rule.CounterID == 0 {
				continue
			}
			attrs, status := o.client.ACL().GetACLCounterAttribute(rule.CounterID, []string{
				"SAI_ACL_COUNTER_ATTR_PACKETS", "SAI_ACL_COUNTER_ATTR_BYTES",
			})
			if status != sai.StatusSuccess {
				continue
			}
			key := fmt.Sprintf("%s:%s", table.Name, ruleName)
			_ = o.bus.Set(ctx, countersTable, key, dbus.FieldValue{
				"packets": fmt.Sprint(attrs["SAI_ACL_COUNTER_ATTR_PACKETS"]),
				"bytes":   fmt.Sprint(attrs["SAI_ACL_COUNTER_ATTR_BYTES"]),
			})
		}
	}
}

// Update implements orch.Observer: a MirrorSessionChange removes MIRROR
// rules from hardware when their session goes inactive (keeping them in
// the rule map) and re-creates them when the session returns active.
func (o *AclOrch) Update(change interface{}) {
	c, ok := change.(orch.MirrorSessionChange)
	if !ok {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, table := range o.tables {
		if table.Type != model.ACLTableMirror {
			continue
		}
		for _, rule := range table.Rules {
			if rule.Action["MIRROR_ACTION"] != c.Name {
				continue
			}
			if c.Active {
				o.reviveMirrorRule(table, rule)
			} else {
				o.withdrawMirrorRule(rule)
			}
		}
	}
}

func (o *AclOrch) withdrawMirrorRule(rule *model.ACLRule) {
	if rule.ID == 0 || !rule.MirrorSessionActive {
		return
	}
	_ = o.client.ACL().RemoveACLEntry(rule.ID)
	rule.MirrorSessionActive = false
	rule.ID = 0
}

func (o *AclOrch) reviveMirrorRule(table *model.ACLTable, rule *model.ACLRule) {
	if rule.MirrorSessionActive {
		return
	}
	id, status := o.client.ACL().CreateACLEntry(o.entryAttrs(table, rule))
	if sai.ClassifyStatus(status, true) == sai.DispositionTransientRetry {
		return
	}
	rule.ID = id
	rule.MirrorSessionActive = true
}

var _ orch.Orch = (*AclOrch)(nil)
var _ orch.Observer = (*AclOrch)(nil)
