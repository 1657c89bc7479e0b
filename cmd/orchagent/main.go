// Command orchagent is the daemon that drives the dataplane from the
// message bus: it loads every CONFIG_DB/APPL_DB/STATE_DB table this build
// understands into the matching Orch, then lets the Executor drain them
// against SAI as rows arrive.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lumenswitch/orchagent/pkg/aclorch"
	"github.com/lumenswitch/orchagent/pkg/config"
	"github.com/lumenswitch/orchagent/pkg/dbus"
	"github.com/lumenswitch/orchagent/pkg/intfsorch"
	"github.com/lumenswitch/orchagent/pkg/muxorch"
	"github.com/lumenswitch/orchagent/pkg/neighorch"
	"github.com/lumenswitch/orchagent/pkg/nhgorch"
	"github.com/lumenswitch/orchagent/pkg/orch"
	"github.com/lumenswitch/orchagent/pkg/policerorch"
	"github.com/lumenswitch/orchagent/pkg/portsorch"
	"github.com/lumenswitch/orchagent/pkg/routeorch"
	"github.com/lumenswitch/orchagent/pkg/sai"
	"github.com/lumenswitch/orchagent/pkg/sai/fake"
	"github.com/lumenswitch/orchagent/pkg/tunneldecaporch"
	"github.com/lumenswitch/orchagent/pkg/util"
)

// defaultVRF is the switch's pre-existing default virtual router object,
// the same object every route and router interface binds to absent an
// explicit VRF table row.
const defaultVRF = sai.ObjectID(1)

const (
	maxNhgCount    = 512
	maxRouteGroups = 512
	aclMinPriority = 1
	aclMaxPriority = 10000
	aclMaxRanges   = 16
)

var (
	flagConfigPath string
	flagRedisAddr  string
	flagVerbose    bool
	flagJSON       bool
)

func main() {
	root := &cobra.Command{
		Use:   "orchagent",
		Short: "Reconciles CONFIG_DB/APPL_DB state against the dataplane",
		RunE:  run,
	}
	root.PersistentFlags().StringVarP(&flagConfigPath, "config", "c", config.DefaultConfigPath(), "Path to settings file")
	root.PersistentFlags().StringVar(&flagRedisAddr, "redis-addr", "", "Override the configured Redis address")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Debug-level logging")
	root.PersistentFlags().BoolVar(&flagJSON, "json-logs", false, "Emit logs as JSON instead of text")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFrom(flagConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if flagRedisAddr != "" {
		cfg.RedisAddr = flagRedisAddr
	}
	if flagVerbose {
		util.SetLogLevel("debug")
	}
	if flagJSON {
		util.SetJSONFormat()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// No vendor SAI adapter is linked in this build; the fake in-memory
	// switch stands in for it, the same role it plays under every Orch's
	// own tests.
	client := fake.New()

	ports, status := portsorch.NewPortsOrch(client)
	if status != sai.StatusSuccess {
		return fmt.Errorf("initializing ports: %s", status)
	}
	routerMAC := cfg.MACOverride
	if routerMAC == "" {
		routerMAC = "00:11:22:33:44:55"
	}
	intfs := intfsorch.NewIntfsOrch(client, ports, defaultVRF, routerMAC)
	neigh := neighorch.NewNeighOrch(client, ports)
	nhg := nhgorch.NewNhgOrch(client, neigh, maxNhgCount)

	stateBus := dbus.NewRedisBus(cfg, config.StateDB)
	route := routeorch.NewRouteOrch(client, neigh, nhg, stateBus, maxRouteGroups)
	nhg.AttachObserver(route)

	configBus := dbus.NewRedisBus(cfg, config.ConfigDB)
	acl := aclorch.NewAclOrch(client, ports, configBus, aclMinPriority, aclMaxPriority, aclMaxRanges, cfg.GetACLCounterPollInterval())
	tunnels := tunneldecaporch.NewTunnelDecapOrch(client, defaultVRF)
	mux := muxorch.NewMuxOrch(client, tunnels, acl, neigh, "MuxTunnel0")
	neigh.SetMuxHandler(mux)
	policer := policerorch.NewPolicerOrch(client, ports)

	exec := orch.NewExecutor()
	// Registration order is drain order: ports and interfaces resolve
	// before anything that references a port alias, neighbors before the
	// next hops and routes that point at them, ACL tables before the mux
	// drop rule that shares them.
	exec.Register(ports)
	exec.Register(intfs)
	exec.Register(neigh)
	exec.Register(nhg)
	exec.Register(route)
	exec.Register(acl)
	exec.Register(tunnels)
	exec.Register(mux)
	exec.Register(policer)

	applBus := dbus.NewRedisBus(cfg, config.ApplDB)

	bridges := []*tableBridge{
		{bus: configBus, table: "PORT_TABLE", handle: func(k string, op orch.Op, f dbus.FieldValue) { ports.PushPort(k, op, f) }},
		{bus: configBus, table: "VLAN_TABLE", handle: func(k string, op orch.Op, f dbus.FieldValue) { ports.PushVlan(k, op, f) }},
		{bus: configBus, table: "VLAN_MEMBER_TABLE", handle: func(k string, op orch.Op, f dbus.FieldValue) { ports.PushVlanMember(k, op, f) }},
		{bus: configBus, table: "LAG_TABLE", handle: func(k string, op orch.Op, f dbus.FieldValue) { ports.PushLag(k, op, f) }},
		{bus: configBus, table: "LAG_MEMBER_TABLE", handle: func(k string, op orch.Op, f dbus.FieldValue) { ports.PushLagMember(k, op, f) }},
		{bus: applBus, table: "INTF_TABLE", handle: func(k string, op orch.Op, f dbus.FieldValue) {
			// APPL_DB writes "alias:prefix"; IntfsOrch keys prefixes as "alias|prefix".
			if alias, prefix, ok := strings.Cut(k, ":"); ok {
				k = alias + "|" + prefix
			}
			intfs.Push(k, op, f)
		}},
		{bus: applBus, table: "NEIGH_TABLE", handle: func(k string, op orch.Op, f dbus.FieldValue) {
			alias, ip, ok := strings.Cut(k, ":")
			if !ok {
				util.WithField("table", "NEIGH_TABLE").WithField("key", k).Warn("malformed key, dropping")
				return
			}
			neigh.Push(alias, ip, op, f)
		}},
		{bus: applBus, table: "NEXTHOP_GROUP_TABLE", handle: func(k string, op orch.Op, f dbus.FieldValue) { nhg.Push(k, op, f) }},
		{bus: applBus, table: "ROUTE_TABLE", handle: func(k string, op orch.Op, f dbus.FieldValue) {
			// Only a "Vrf..." head is a VRF name; IPv6 prefixes contain ':' themselves.
			vrf, prefix := "", k
			if v, p, ok := strings.Cut(k, ":"); ok && strings.HasPrefix(v, "Vrf") {
				vrf, prefix = v, p
			}
			route.Push(vrf, prefix, op, f)
		}},
		{bus: configBus, table: "ACL_TABLE", handle: func(k string, op orch.Op, f dbus.FieldValue) { acl.PushTable(k, op, f) }},
		{bus: configBus, table: "ACL_RULE", handle: func(k string, op orch.Op, f dbus.FieldValue) {
			table, rule, ok := strings.Cut(k, "|")
			if !ok {
				util.WithField("table", "ACL_RULE").WithField("key", k).Warn("malformed key, dropping")
				return
			}
			acl.PushRule(table, rule, op, f)
		}},
		{bus: configBus, table: "TUNNEL_DECAP_TABLE", handle: func(k string, op orch.Op, f dbus.FieldValue) { tunnels.Push(k, op, f) }},
		{bus: configBus, table: "MUX_CABLE_TABLE", handle: func(k string, op orch.Op, f dbus.FieldValue) { mux.PushCable(k, op, f) }},
		{bus: stateBus, table: "MUX_STATE_TABLE", handle: func(k string, op orch.Op, f dbus.FieldValue) { mux.PushState(k, op, f) }},
		{bus: configBus, table: "POLICER_TABLE", handle: func(k string, op orch.Op, f dbus.FieldValue) { policer.Push(k, op, f) }},
		{bus: configBus, table: "PORT_STORM_CONTROL_TABLE", handle: func(k string, op orch.Op, f dbus.FieldValue) {
			alias, stormType, ok := strings.Cut(k, "|")
			if !ok {
				util.WithField("table", "PORT_STORM_CONTROL_TABLE").WithField("key", k).Warn("malformed key, dropping")
				return
			}
			policer.PushStormControl(alias, stormType, op, f)
		}},
	}

	for _, b := range bridges {
		if err := b.initialSync(ctx); err != nil {
			return fmt.Errorf("initial sync of %s: %w", b.table, err)
		}
	}
	for _, b := range bridges {
		if err := b.watch(ctx, exec); err != nil {
			return fmt.Errorf("subscribing to %s: %w", b.table, err)
		}
	}

	util.WithField("tables", len(bridges)).Info("orchagent started")
	return exec.Run(ctx)
}

// tableBridge routes bus notifications for one table to the Orch method
// that understands its key shape, the glue the real daemon gets for free
// from ConsumerStateTable mapping 1:1 onto a libswsscommon table name.
type tableBridge struct {
	bus    dbus.Bus
	table  string
	handle func(key string, op orch.Op, fields dbus.FieldValue)
}

func (b *tableBridge) initialSync(ctx context.Context) error {
	rows, err := b.bus.GetAll(ctx, b.table)
	if err != nil {
		return err
	}
	for key, fields := range rows {
		b.handle(key, dbus.OpSet, fields)
	}
	return nil
}

func (b *tableBridge) watch(ctx context.Context, exec *orch.Executor) error {
	notifs, err := b.bus.Subscribe(ctx, b.table)
	if err != nil {
		return err
	}
	go func() {
		for n := range notifs {
			b.handle(n.Key, n.Op, n.Fields)
			exec.Wake()
		}
	}()
	return nil
}
