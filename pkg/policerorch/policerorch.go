// Package policerorch manages meter/policer objects and the storm-control
// binding that ties a policer to a port's broadcast/unknown-unicast/
// unknown-multicast flood-limiting attribute.
package policerorch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lumenswitch/orchagent/pkg/orch"
	"github.com/lumenswitch/orchagent/pkg/portsorch"
	"github.com/lumenswitch/orchagent/pkg/sai"
	"github.com/lumenswitch/orchagent/pkg/util"
)

var meterTypes = map[string]string{
	"PACKETS": "SAI_METER_TYPE_PACKETS",
	"BYTES":   "SAI_METER_TYPE_BYTES",
}

var policerModes = map[string]string{
	"SR_TCM":        "SAI_POLICER_MODE_SR_TCM",
	"TR_TCM":        "SAI_POLICER_MODE_TR_TCM",
	"STORM_CONTROL": "SAI_POLICER_MODE_STORM_CONTROL",
}

var colorSources = map[string]string{
	"AWARE": "SAI_POLICER_COLOR_SOURCE_AWARE",
	"BLIND": "SAI_POLICER_COLOR_SOURCE_BLIND",
}

var packetActions = map[string]string{
	"DROP":        "SAI_PACKET_ACTION_DROP",
	"FORWARD":     "SAI_PACKET_ACTION_FORWARD",
	"COPY":        "SAI_PACKET_ACTION_COPY",
	"COPY_CANCEL": "SAI_PACKET_ACTION_COPY_CANCEL",
	"TRAP":        "SAI_PACKET_ACTION_TRAP",
	"LOG":         "SAI_PACKET_ACTION_LOG",
	"DENY":        "SAI_PACKET_ACTION_DENY",
	"TRANSIT":     "SAI_PACKET_ACTION_TRANSIT",
}

// mutableAfterCreate is the attribute subset a policer update is allowed to
// touch once created; everything else requires unbind-remove-create-rebind.
var mutableAfterCreate = map[string]bool{
	"SAI_POLICER_ATTR_CIR": true,
	"SAI_POLICER_ATTR_CBS": true,
	"SAI_POLICER_ATTR_PIR": true,
	"SAI_POLICER_ATTR_PBS": true,
}

var stormAttr = map[string]string{
	"broadcast":         "broadcast",
	"unknown-unicast":   "unknown-unicast",
	"unknown-multicast": "unknown-multicast",
}

// PolicerOrch owns every standalone policer object and the synthetic
// per-port storm-control policers, refcounted against ACL rules and other
// borrowers that bind a standalone policer by name.
type PolicerOrch struct {
	client sai.Client
	ports  *portsorch.PortsOrch

	policerTable *orch.Consumer
	stormTable   *orch.Consumer

	syncd     map[string]sai.ObjectID
	refCounts map[string]int
	stormMode map[string]bool // names created through storm-control, not the POLICER_TABLE
}

// NewPolicerOrch constructs a PolicerOrch against the given SAI client and
// PortsOrch, the latter used to resolve storm-control rows' port alias.
func NewPolicerOrch(client sai.Client, ports *portsorch.PortsOrch) *PolicerOrch {
	return &PolicerOrch{
		client:       client,
		ports:        ports,
		policerTable: orch.NewConsumer("POLICER_TABLE"),
		stormTable:   orch.NewConsumer("PORT_STORM_CONTROL_TABLE"),
		syncd:        make(map[string]sai.ObjectID),
		refCounts:    make(map[string]int),
		stormMode:    make(map[string]bool),
	}
}

func (o *PolicerOrch) Name() string { return "PolicerOrch" }

func (o *PolicerOrch) Consumers() []*orch.Consumer {
	return []*orch.Consumer{o.policerTable, o.stormTable}
}

// Push feeds one POLICER_TABLE row into the Consumer.
func (o *PolicerOrch) Push(name string, op orch.Op, fields map[string]string) {
	o.policerTable.Push(name, op, fields)
}

// PushStormControl feeds one PORT_STORM_CONTROL_TABLE row, keyed
// "alias|storm_type", into the Consumer.
func (o *PolicerOrch) PushStormControl(alias, stormType string, op orch.Op, fields map[string]string) {
	o.stormTable.Push(alias+"|"+stormType, op, fields)
}

func (o *PolicerOrch) DoTask(ctx context.Context) error {
	log := util.WithOrch(o.Name())
	for _, row := range o.policerTable.Batch() {
		var err error
		if row.Op == orch.OpDel {
			err = o.removePolicer(row.Key)
		} else {
			err = o.setPolicer(row.Key, row.Fields)
		}
		switch {
		case err == nil:
			o.policerTable.Ack(row.Key, row.Seq)
		case util.ClassifyRowError(err) == util.RowFatal:
			return err
		case util.ClassifyRowError(err) == util.RowConsume:
			log.WithField("error", err).WithField("key", row.Key).Error("row invalid, consuming")
			o.policerTable.Ack(row.Key, row.Seq)
		default:
			log.WithField("error", err).WithField("key", row.Key).Warn("doTask deferred")
		}
	}

	for _, row := range o.stormTable.Batch() {
		alias, stormType, err := parseStormKey(row.Key)
		if err != nil {
			log.WithField("error", err).WithField("key", row.Key).Warn("malformed storm-control key")
			o.stormTable.Ack(row.Key, row.Seq)
			continue
		}
		var taskErr error
		if row.Op == orch.OpDel {
			taskErr = o.removeStormControl(alias, stormType)
		} else {
			taskErr = o.setStormControl(alias, stormType, row.Fields)
		}
		switch {
		case taskErr == nil:
			o.stormTable.Ack(row.Key, row.Seq)
		case util.ClassifyRowError(taskErr) == util.RowFatal:
			return taskErr
		case util.ClassifyRowError(taskErr) == util.RowConsume:
			log.WithField("error", taskErr).WithField("key", row.Key).Error("row invalid, consuming")
			o.stormTable.Ack(row.Key, row.Seq)
		default:
			log.WithField("error", taskErr).WithField("key", row.Key).Warn("doTask deferred")
		}
	}
	return nil
}

func parseStormKey(key string) (alias, stormType string, err error) {
	idx := strings.Index(key, "|")
	if idx < 0 {
		return "", "", fmt.Errorf("malformed storm-control key %q", key)
	}
	return key[:idx], key[idx+1:], nil
}

// PolicerExists reports whether name is a currently syncd policer, the
// check ACL rule creation makes before binding a named policer action.
func (o *PolicerOrch) PolicerExists(name string) bool {
	_, ok := o.syncd[name]
	return ok
}

// GetPolicerOid returns name's dataplane handle and whether it exists.
func (o *PolicerOrch) GetPolicerOid(name string) (sai.ObjectID, bool) {
	id, ok := o.syncd[name]
	return id, ok
}

// IncreaseRefCount and DecreaseRefCount let a borrower (an ACL rule's
// policer action) hold its own reference independent of PolicerOrch's own
// creation reference, mirroring the original's same-named methods.
func (o *PolicerOrch) IncreaseRefCount(name string) bool {
	if !o.PolicerExists(name) {
		return false
	}
	o.refCounts[name]++
	return true
}

func (o *PolicerOrch) DecreaseRefCount(name string) bool {
	if !o.PolicerExists(name) {
		return false
	}
	o.refCounts[name]--
	return true
}

func (o *PolicerOrch) setPolicer(name string, fields map[string]string) error {
	attrs, hasMeterType, hasMode, err := parsePolicerFields(fields)
	if err != nil {
		return util.NewFatalError(err)
	}

	id, exists := o.syncd[name]
	if !exists {
		if !hasMeterType || !hasMode {
			return util.NewFatalError(fmt.Errorf("policer %s missing mandatory METER_TYPE/MODE fields", name))
		}
		newID, status := o.client.Policer().CreatePolicer(attrs)
		disp := sai.ClassifyStatus(status, true)
		if disp == sai.DispositionTransientRetry {
			return fmt.Errorf("create policer %s: %s", name, status)
		}
		if disp == sai.DispositionFatal {
			return util.NewFatalError(fmt.Errorf("create policer %s: %s", name, status))
		}
		o.syncd[name] = newID
		o.refCounts[name] = 0
		return nil
	}

	for attrName, value := range attrs {
		if !mutableAfterCreate[attrName] {
			continue
		}
		if status := o.client.Policer().SetPolicerAttribute(id, sai.Attributes{attrName: value}); sai.ClassifyStatus(status, false) == sai.DispositionTransientRetry {
			return fmt.Errorf("update policer %s attribute %s: %s", name, attrName, status)
		}
	}
	return nil
}

func (o *PolicerOrch) removePolicer(name string) error {
	id, ok := o.syncd[name]
	if !ok {
		return nil
	}
	if o.refCounts[name] > 0 {
		return util.NewRetryableError(fmt.Errorf("policer %s still referenced", name))
	}
	if status := o.client.Policer().RemovePolicer(id); sai.ClassifyStatus(status, false) == sai.DispositionTransientRetry {
		return fmt.Errorf("remove policer %s: %s", name, status)
	}
	delete(o.syncd, name)
	delete(o.refCounts, name)
	return nil
}

func parsePolicerFields(fields map[string]string) (sai.Attributes, bool, bool, error) {
	attrs := sai.Attributes{}
	var hasMeterType, hasMode bool
	for field, raw := range fields {
		value := strings.ToUpper(raw)
		switch strings.ToUpper(field) {
		case "METER_TYPE":
			v, ok := meterTypes[value]
			if !ok {
				return nil, false, false, fmt.Errorf("unrecognized METER_TYPE %q", raw)
			}
			attrs["SAI_POLICER_ATTR_METER_TYPE"] = v
			hasMeterType = true
		case "MODE":
			v, ok := policerModes[value]
			if !ok {
				return nil, false, false, fmt.Errorf("unrecognized MODE %q", raw)
			}
			attrs["SAI_POLICER_ATTR_MODE"] = v
			hasMode = true
		case "COLOR_SOURCE":
			v, ok := colorSources[value]
			if !ok {
				return nil, false, false, fmt.Errorf("unrecognized COLOR_SOURCE %q", raw)
			}
			attrs["SAI_POLICER_ATTR_COLOR_SOURCE"] = v
		case "CBS":
			n, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return nil, false, false, fmt.Errorf("invalid CBS %q: %w", raw, err)
			}
			attrs["SAI_POLICER_ATTR_CBS"] = n
		case "CIR":
			n, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return nil, false, false, fmt.Errorf("invalid CIR %q: %w", raw, err)
			}
			attrs["SAI_POLICER_ATTR_CIR"] = n
		case "PBS":
			n, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return nil, false, false, fmt.Errorf("invalid PBS %q: %w", raw, err)
			}
			attrs["SAI_POLICER_ATTR_PBS"] = n
		case "PIR":
			n, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return nil, false, false, fmt.Errorf("invalid PIR %q: %w", raw, err)
			}
			attrs["SAI_POLICER_ATTR_PIR"] = n
		case "RED_PACKET_ACTION":
			v, ok := packetActions[value]
			if !ok {
				return nil, false, false, fmt.Errorf("unrecognized RED_PACKET_ACTION %q", raw)
			}
			attrs["SAI_POLICER_ATTR_RED_PACKET_ACTION"] = v
		case "GREEN_PACKET_ACTION":
			v, ok := packetActions[value]
			if !ok {
				return nil, false, false, fmt.Errorf("unrecognized GREEN_PACKET_ACTION %q", raw)
			}
			attrs["SAI_POLICER_ATTR_GREEN_PACKET_ACTION"] = v
		case "YELLOW_PACKET_ACTION":
			v, ok := packetActions[value]
			if !ok {
				return nil, false, false, fmt.Errorf("unrecognized YELLOW_PACKET_ACTION %q", raw)
			}
			attrs["SAI_POLICER_ATTR_YELLOW_PACKET_ACTION"] = v
		default:
			return nil, false, false, fmt.Errorf("unknown policer attribute %q", field)
		}
	}
	return attrs, hasMeterType, hasMode, nil
}

// setStormControl creates or updates the synthetic "_<alias>_<stormType>"
// policer and binds it to the port's storm-control attribute. Only CIR is
// mutable on an existing storm-control policer; per the original, a mode
// change instead goes through unbind-remove-create-rebind, which here
// means removing the PORT_STORM_CONTROL_TABLE row and re-adding it.
func (o *PolicerOrch) setStormControl(alias, stormType string, fields map[string]string) error {
	if _, ok := stormAttr[stormType]; !ok {
		return util.NewFatalError(fmt.Errorf("unknown storm-control type %q", stormType))
	}
	port, ok := o.ports.GetPort(alias)
	if !ok {
		return util.NewRetryableError(fmt.Errorf("port %s not yet created", alias))
	}

	kbps, ok := fields["KBPS"]
	if !ok {
		return util.NewFatalError(fmt.Errorf("storm-control %s/%s missing mandatory KBPS field", alias, stormType))
	}
	n, err := strconv.ParseUint(kbps, 10, 64)
	if err != nil {
		return util.NewFatalError(fmt.Errorf("invalid KBPS %q: %w", kbps, err))
	}
	cir := n * 1000 / 8

	name := stormPolicerName(alias, stormType)
	id, exists := o.syncd[name]
	if !exists {
		attrs := sai.Attributes{
			"SAI_POLICER_ATTR_METER_TYPE":         "SAI_METER_TYPE_BYTES",
			"SAI_POLICER_ATTR_MODE":               "SAI_POLICER_MODE_STORM_CONTROL",
			"SAI_POLICER_ATTR_RED_PACKET_ACTION":  "SAI_PACKET_ACTION_DROP",
			"SAI_POLICER_ATTR_CIR":                cir,
		}
		newID, status := o.client.Policer().CreatePolicer(attrs)
		disp := sai.ClassifyStatus(status, true)
		if disp == sai.DispositionTransientRetry {
			return fmt.Errorf("create storm-control policer %s: %s", name, status)
		}
		if disp == sai.DispositionFatal {
			return util.NewFatalError(fmt.Errorf("create storm-control policer %s: %s", name, status))
		}
		id = newID
		o.syncd[name] = id
		o.refCounts[name] = 0
		o.stormMode[name] = true
	} else {
		if status := o.client.Policer().SetPolicerAttribute(id, sai.Attributes{"SAI_POLICER_ATTR_CIR": cir}); sai.ClassifyStatus(status, false) == sai.DispositionTransientRetry {
			return fmt.Errorf("update storm-control policer %s: %s", name, status)
		}
	}

	if status := o.client.Policer().SetPortStormControlAttribute(port.ID, stormAttr[stormType], id); status != sai.StatusSuccess {
		if sai.ClassifyStatus(status, false) == sai.DispositionTransientRetry {
			return fmt.Errorf("bind storm-control policer %s to port %s: %s", name, alias, status)
		}
		// The ASIC rejected the binding outright; undo the policer we just
		// created so a future SET for this key starts clean.
		if removeStatus := o.client.Policer().RemovePolicer(id); removeStatus != sai.StatusSuccess {
			util.WithOrch(o.Name()).WithField("policer", name).Warn("failed to clean up policer after failed storm-control bind")
		}
		delete(o.syncd, name)
		delete(o.refCounts, name)
		delete(o.stormMode, name)
		return fmt.Errorf("apply storm-control %s to port %s: %s", stormType, alias, status)
	}
	return nil
}

func (o *PolicerOrch) removeStormControl(alias, stormType string) error {
	name := stormPolicerName(alias, stormType)
	id, ok := o.syncd[name]
	if !ok {
		return nil
	}
	port, ok := o.ports.GetPort(alias)
	if !ok {
		return nil
	}
	if status := o.client.Policer().SetPortStormControlAttribute(port.ID, stormAttr[stormType], 0); sai.ClassifyStatus(status, false) == sai.DispositionTransientRetry {
		return fmt.Errorf("clear storm-control %s on port %s: %s", stormType, alias, status)
	}
	if status := o.client.Policer().RemovePolicer(id); sai.ClassifyStatus(status, false) == sai.DispositionTransientRetry {
		return fmt.Errorf("remove storm-control policer %s: %s", name, status)
	}
	delete(o.syncd, name)
	delete(o.refCounts, name)
	delete(o.stormMode, name)
	return nil
}

func stormPolicerName(alias, stormType string) string {
	return fmt.Sprintf("_%s_%s", alias, stormType)
}

var _ orch.Orch = (*PolicerOrch)(nil)
