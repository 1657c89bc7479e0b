package portsorch

import (
	"context"
	"testing"

	"github.com/lumenswitch/orchagent/pkg/orch"
	"github.com/lumenswitch/orchagent/pkg/sai"
	"github.com/lumenswitch/orchagent/pkg/sai/fake"
)

func newTestOrch(t *testing.T) *PortsOrch {
	t.Helper()
	o, status := NewPortsOrch(fake.New())
	if status != sai.StatusSuccess {
		t.Fatalf("NewPortsOrch() status = %v", status)
	}
	return o
}

func TestPortsOrch_CreateAndRemovePort(t *testing.T) {
	o := newTestOrch(t)
	o.PushPort("Ethernet0", orch.OpSet, map[string]string{"lanes": "1,2,3,4", "mtu": "9100", "admin_status": "up"})

	if err := o.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}

	port, ok := o.GetPort("Ethernet0")
	if !ok {
		t.Fatal("GetPort(Ethernet0) not found")
	}
	if port.MTU != 9100 {
		t.Errorf("MTU = %d, want 9100", port.MTU)
	}
	if !port.AdminUp {
		t.Error("AdminUp = false, want true")
	}

	o.PushPort("Ethernet0", orch.OpDel, nil)
	if err := o.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}
	if _, ok := o.GetPort("Ethernet0"); ok {
		t.Error("port still present after delete")
	}
}

func TestPortsOrch_VlanMemberRequiresPortFirst(t *testing.T) {
	o := newTestOrch(t)
	o.PushVlan("Vlan100", orch.OpSet, nil)
	o.PushVlanMember("Vlan100:Ethernet0", orch.OpSet, map[string]string{"tagging_mode": "untagged"})

	if err := o.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}

	// The port row was never pushed, so the member add must stay pending.
	if o.vlanMemberTable.Len() != 1 {
		t.Errorf("vlanMemberTable.Len() = %d, want 1 (member add deferred)", o.vlanMemberTable.Len())
	}

	o.PushPort("Ethernet0", orch.OpSet, nil)
	if err := o.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}
	if o.vlanMemberTable.Len() != 0 {
		t.Errorf("vlanMemberTable.Len() = %d, want 0 once port exists", o.vlanMemberTable.Len())
	}

	vlan, ok := o.GetPort("Vlan100")
	if !ok {
		t.Fatal("GetPort(Vlan100) not found")
	}
	if !vlan.Members["Ethernet0"] {
		t.Error("Ethernet0 not recorded as a VLAN 100 member")
	}

	member, ok := o.GetPort("Ethernet0")
	if !ok || !member.HasBridgePort() {
		t.Error("Ethernet0 should have a bridge port attached once it joins a VLAN")
	}
}

func TestPortsOrch_LagMembership(t *testing.T) {
	o := newTestOrch(t)
	o.PushPort("Ethernet0", orch.OpSet, nil)
	o.PushPort("Ethernet1", orch.OpSet, nil)
	o.PushLag("PortChannel0", orch.OpSet, nil)
	o.PushLagMember("PortChannel0:Ethernet0", orch.OpSet, nil)
	o.PushLagMember("PortChannel0:Ethernet1", orch.OpSet, nil)

	if err := o.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}

	lag, ok := o.GetPort("PortChannel0")
	if !ok {
		t.Fatal("GetPort(PortChannel0) not found")
	}
	if len(lag.Members) != 2 {
		t.Errorf("len(Members) = %d, want 2", len(lag.Members))
	}

	o.PushLagMember("PortChannel0:Ethernet0", orch.OpDel, nil)
	if err := o.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}
	if lag.Members["Ethernet0"] {
		t.Error("Ethernet0 should have left PortChannel0")
	}
}

func TestPortsOrch_RemoveVlanWithMembersDefers(t *testing.T) {
	o := newTestOrch(t)
	o.PushPort("Ethernet0", orch.OpSet, nil)
	o.PushVlan("Vlan100", orch.OpSet, nil)
	o.PushVlanMember("Vlan100:Ethernet0", orch.OpSet, nil)
	if err := o.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}

	o.PushVlan("Vlan100", orch.OpDel, nil)
	if err := o.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}
	if _, ok := o.GetPort("Vlan100"); !ok {
		t.Error("Vlan100 should still exist; removal must defer while it has a member")
	}
}

func TestPortsOrch_VlanMemberChangeNotifiesObservers(t *testing.T) {
	o := newTestOrch(t)
	var got []orch.VlanMemberChange
	rec := observerFunc(func(change interface{}) {
		if c, ok := change.(orch.VlanMemberChange); ok {
			got = append(got, c)
		}
	})
	o.AttachVlanMemberObserver(rec)

	o.PushPort("Ethernet0", orch.OpSet, nil)
	o.PushVlan("Vlan100", orch.OpSet, nil)
	o.PushVlanMember("Vlan100:Ethernet0", orch.OpSet, nil)
	if err := o.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}

	if len(got) != 1 || !got[0].Added || got[0].VlanID != 100 {
		t.Errorf("notifications = %v, want one Added VlanID=100 change", got)
	}
}

type observerFunc func(interface{})

func (f observerFunc) Update(change interface{}) { f(change) }
