package routeorch

import (
	"context"
	"testing"

	"github.com/lumenswitch/orchagent/pkg/dbus"
	"github.com/lumenswitch/orchagent/pkg/model"
	"github.com/lumenswitch/orchagent/pkg/neighorch"
	"github.com/lumenswitch/orchagent/pkg/nhgorch"
	"github.com/lumenswitch/orchagent/pkg/orch"
	"github.com/lumenswitch/orchagent/pkg/portsorch"
	"github.com/lumenswitch/orchagent/pkg/sai"
	"github.com/lumenswitch/orchagent/pkg/sai/fake"
)

type testFixture struct {
	orch  *RouteOrch
	neigh *neighorch.NeighOrch
	nhg   *nhgorch.NhgOrch
	ports *portsorch.PortsOrch
	bus   *dbus.FakeBus
}

func newTestOrch(t *testing.T, maxGroupCount int) *testFixture {
	t.Helper()
	client := fake.New()
	ports, status := portsorch.NewPortsOrch(client)
	if status != sai.StatusSuccess {
		t.Fatalf("NewPortsOrch() status = %v", status)
	}
	neigh := neighorch.NewNeighOrch(client, ports)
	nhg := nhgorch.NewNhgOrch(client, neigh, 128)
	neigh.AttachObserver(nhg)
	bus := dbus.NewFakeBus()
	ro := NewRouteOrch(client, neigh, nhg, bus, maxGroupCount)
	return &testFixture{orch: ro, neigh: neigh, nhg: nhg, ports: ports, bus: bus}
}

func (f *testFixture) addResolvedNeighbor(t *testing.T, alias, ip, mac string) {
	t.Helper()
	f.ports.PushPort(alias, orch.OpSet, nil)
	if err := f.ports.DoTask(context.Background()); err != nil {
		t.Fatalf("ports.DoTask() error = %v", err)
	}
	f.neigh.Push(alias, ip, orch.OpSet, map[string]string{"neigh": mac})
	if err := f.neigh.DoTask(context.Background()); err != nil {
		t.Fatalf("neigh.DoTask() error = %v", err)
	}
}

func TestRouteOrch_SingleNextHopRoute(t *testing.T) {
	f := newTestOrch(t, 128)
	f.addResolvedNeighbor(t, "Ethernet0", "10.0.0.1", "aa:bb:cc:dd:ee:01")

	f.orch.Push("", "192.168.1.0/24", orch.OpSet, map[string]string{
		"nexthop": "10.0.0.1",
		"ifname":  "Ethernet0",
	})
	if err := f.orch.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}

	key := model.RouteKey{VRF: "", Prefix: "192.168.1.0/24"}
	entry, ok := f.orch.GetSyncdRoutes()[key]
	if !ok {
		t.Fatal("route not synced")
	}
	if entry.NHGKey == nil || !entry.NHGKey.IsSingle() {
		t.Error("expected a single-member owned group")
	}
}

func TestRouteOrch_SharedEcmpGroupRefcounting(t *testing.T) {
	f := newTestOrch(t, 128)
	f.addResolvedNeighbor(t, "Ethernet0", "10.0.0.1", "aa:bb:cc:dd:ee:01")
	f.addResolvedNeighbor(t, "Ethernet1", "10.0.0.2", "aa:bb:cc:dd:ee:02")

	fields := map[string]string{"nexthop": "10.0.0.1,10.0.0.2", "ifname": "Ethernet0,Ethernet1"}
	f.orch.Push("", "192.168.1.0/24", orch.OpSet, fields)
	f.orch.Push("", "192.168.2.0/24", orch.OpSet, fields)
	if err := f.orch.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}

	if len(f.orch.groups) != 1 {
		t.Fatalf("groups count = %d, want 1 (shared group)", len(f.orch.groups))
	}
	for _, g := range f.orch.groups {
		if g.refCount != 2 {
			t.Errorf("refCount = %d, want 2", g.refCount)
		}
	}
}

func TestRouteOrch_RemoveRouteReleasesGroup(t *testing.T) {
	f := newTestOrch(t, 128)
	f.addResolvedNeighbor(t, "Ethernet0", "10.0.0.1", "aa:bb:cc:dd:ee:01")
	f.addResolvedNeighbor(t, "Ethernet1", "10.0.0.2", "aa:bb:cc:dd:ee:02")

	fields := map[string]string{"nexthop": "10.0.0.1,10.0.0.2", "ifname": "Ethernet0,Ethernet1"}
	f.orch.Push("", "192.168.1.0/24", orch.OpSet, fields)
	if err := f.orch.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}
	if len(f.orch.groups) != 1 {
		t.Fatalf("groups count = %d, want 1", len(f.orch.groups))
	}

	f.orch.Push("", "192.168.1.0/24", orch.OpDel, nil)
	if err := f.orch.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() (remove) error = %v", err)
	}
	if len(f.orch.groups) != 0 {
		t.Errorf("groups count = %d, want 0 once the last route releases it", len(f.orch.groups))
	}
}

func TestRouteOrch_DefaultRouteMirroredToStateTable(t *testing.T) {
	f := newTestOrch(t, 128)
	f.addResolvedNeighbor(t, "Ethernet0", "10.0.0.1", "aa:bb:cc:dd:ee:01")

	f.orch.Push("", "0.0.0.0/0", orch.OpSet, map[string]string{
		"nexthop": "10.0.0.1",
		"ifname":  "Ethernet0",
	})
	if err := f.orch.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}

	fields, ok, err := f.bus.Get(context.Background(), stateTable, "default")
	if err != nil {
		t.Fatalf("bus.Get() error = %v", err)
	}
	if !ok {
		t.Fatal("default route state row not written")
	}
	if fields["ipv4"] != "true" {
		t.Errorf("ipv4 = %q, want \"true\"", fields["ipv4"])
	}

	f.orch.Push("", "0.0.0.0/0", orch.OpDel, nil)
	if err := f.orch.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() (remove default route) error = %v", err)
	}
	fields, _, _ = f.bus.Get(context.Background(), stateTable, "default")
	if fields["ipv4"] != "false" {
		t.Errorf("ipv4 = %q, want \"false\" after removal", fields["ipv4"])
	}
}

func TestRouteOrch_BindsToNhgOrchOwnedGroupByIndex(t *testing.T) {
	f := newTestOrch(t, 128)
	f.addResolvedNeighbor(t, "Ethernet0", "10.0.0.1", "aa:bb:cc:dd:ee:01")

	f.nhg.Push("1", orch.OpSet, map[string]string{"nexthop": "10.0.0.1", "ifname": "Ethernet0"})
	if err := f.nhg.DoTask(context.Background()); err != nil {
		t.Fatalf("nhg.DoTask() error = %v", err)
	}

	f.orch.Push("", "192.168.1.0/24", orch.OpSet, map[string]string{"nexthop_group": "1"})
	if err := f.orch.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}

	key := model.RouteKey{VRF: "", Prefix: "192.168.1.0/24"}
	entry, ok := f.orch.GetSyncdRoutes()[key]
	if !ok {
		t.Fatal("route not synced")
	}
	if entry.NHGIndex != "1" {
		t.Errorf("NHGIndex = %q, want \"1\"", entry.NHGIndex)
	}
	if entry.NHGKey != nil {
		t.Error("a route bound to an NhgOrch-owned group must not also carry an owned NHGKey")
	}
}

func TestRouteOrch_RebindsRoutesOnNhgPromotion(t *testing.T) {
	client := fake.New()
	ports, status := portsorch.NewPortsOrch(client)
	if status != sai.StatusSuccess {
		t.Fatalf("NewPortsOrch() status = %v", status)
	}
	neigh := neighorch.NewNeighOrch(client, ports)
	nhg := nhgorch.NewNhgOrch(client, neigh, 1)
	neigh.AttachObserver(nhg)
	bus := dbus.NewFakeBus()
	ro := NewRouteOrch(client, neigh, nhg, bus, 128)
	nhg.AttachObserver(ro)
	f := &testFixture{orch: ro, neigh: neigh, nhg: nhg, ports: ports, bus: bus}

	f.addResolvedNeighbor(t, "Ethernet0", "10.0.0.1", "aa:bb:cc:dd:ee:01")
	f.addResolvedNeighbor(t, "Ethernet1", "10.0.0.2", "aa:bb:cc:dd:ee:02")

	f.nhg.Push("1", orch.OpSet, map[string]string{"nexthop": "10.0.0.1", "ifname": "Ethernet0"})
	if err := f.nhg.DoTask(context.Background()); err != nil {
		t.Fatalf("nhg.DoTask() (create 1) error = %v", err)
	}
	f.nhg.Push("2", orch.OpSet, map[string]string{
		"nexthop": "10.0.0.1,10.0.0.2",
		"ifname":  "Ethernet0,Ethernet1",
	})
	if err := f.nhg.DoTask(context.Background()); err != nil {
		t.Fatalf("nhg.DoTask() (create 2) error = %v", err)
	}

	g2, ok := f.nhg.GetNhg("2")
	if !ok {
		t.Fatal("group 2 not created")
	}
	if !g2.IsTempGroup() {
		t.Fatal("expected group 2 to start as a temp representative at capacity")
	}

	f.orch.Push("", "192.168.1.0/24", orch.OpSet, map[string]string{"nexthop_group": "2"})
	if err := f.orch.DoTask(context.Background()); err != nil {
		t.Fatalf("route.DoTask() error = %v", err)
	}
	key := model.RouteKey{VRF: "", Prefix: "192.168.1.0/24"}
	if f.orch.GetSyncdRoutes()[key].NHGIndex != "2" {
		t.Fatal("route not bound to group 2")
	}
	tempHandle := g2.ID()

	f.nhg.Push("1", orch.OpDel, nil)
	if err := f.nhg.DoTask(context.Background()); err != nil {
		t.Fatalf("nhg.DoTask() (remove 1) error = %v", err)
	}

	g2, ok = f.nhg.GetNhg("2")
	if !ok {
		t.Fatal("group 2 missing after promotion")
	}
	if g2.IsTempGroup() {
		t.Fatal("group 2 should have promoted to real once capacity freed")
	}
	if g2.ID() == tempHandle {
		t.Fatal("promotion must allocate a new group handle")
	}

	gotAttrs, status := client.Route().GetRouteEntryAttribute(":192.168.1.0/24", nil)
	if status != sai.StatusSuccess {
		t.Fatalf("GetRouteEntryAttribute() status = %v", status)
	}
	if gotAttrs["SAI_ROUTE_ENTRY_ATTR_NEXT_HOP_ID"] != g2.ID() {
		t.Errorf("route's next hop attr = %v, want rebound to promoted group %v", gotAttrs["SAI_ROUTE_ENTRY_ATTR_NEXT_HOP_ID"], g2.ID())
	}
}
