package policerorch

import (
	"context"
	"testing"

	"github.com/lumenswitch/orchagent/pkg/orch"
	"github.com/lumenswitch/orchagent/pkg/portsorch"
	"github.com/lumenswitch/orchagent/pkg/sai"
	"github.com/lumenswitch/orchagent/pkg/sai/fake"
)

type testFixture struct {
	orch  *PolicerOrch
	ports *portsorch.PortsOrch
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	client := fake.New()
	ports, status := portsorch.NewPortsOrch(client)
	if status != sai.StatusSuccess {
		t.Fatalf("NewPortsOrch() status = %v", status)
	}
	return &testFixture{orch: NewPolicerOrch(client, ports), ports: ports}
}

func (f *testFixture) addPort(t *testing.T, alias string) {
	t.Helper()
	f.ports.PushPort(alias, orch.OpSet, nil)
	if err := f.ports.DoTask(context.Background()); err != nil {
		t.Fatalf("ports.DoTask() error = %v", err)
	}
}

func TestPolicerOrch_CreateAndUpdatePolicer(t *testing.T) {
	f := newTestFixture(t)

	f.orch.Push("POLICER_1", orch.OpSet, map[string]string{
		"METER_TYPE": "BYTES",
		"MODE":       "SR_TCM",
		"CIR":        "1000",
		"CBS":        "2000",
	})
	if err := f.orch.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}
	id, ok := f.orch.GetPolicerOid("POLICER_1")
	if !ok || id == 0 {
		t.Fatal("policer not created")
	}

	f.orch.Push("POLICER_1", orch.OpSet, map[string]string{"CIR": "5000"})
	if err := f.orch.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() (update) error = %v", err)
	}
	sameID, ok := f.orch.GetPolicerOid("POLICER_1")
	if !ok || sameID != id {
		t.Error("updating a policer's CIR should not change its handle")
	}
}

func TestPolicerOrch_RemoveDefersWhileReferenced(t *testing.T) {
	f := newTestFixture(t)

	f.orch.Push("POLICER_1", orch.OpSet, map[string]string{
		"METER_TYPE": "BYTES",
		"MODE":       "TR_TCM",
		"CIR":        "1000",
	})
	if err := f.orch.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}
	if !f.orch.IncreaseRefCount("POLICER_1") {
		t.Fatal("IncreaseRefCount() should succeed for an existing policer")
	}

	f.orch.Push("POLICER_1", orch.OpDel, nil)
	if err := f.orch.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() (remove) error = %v", err)
	}
	if !f.orch.PolicerExists("POLICER_1") {
		t.Fatal("policer should survive removal while still referenced")
	}

	if !f.orch.DecreaseRefCount("POLICER_1") {
		t.Fatal("DecreaseRefCount() should succeed for an existing policer")
	}
	f.orch.Push("POLICER_1", orch.OpDel, nil)
	if err := f.orch.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() (remove retry) error = %v", err)
	}
	if f.orch.PolicerExists("POLICER_1") {
		t.Error("policer should be removed once its last reference is released")
	}
}

func TestPolicerOrch_StormControlCreatesSyntheticPolicerAndBindsPort(t *testing.T) {
	f := newTestFixture(t)
	f.addPort(t, "Ethernet0")

	f.orch.PushStormControl("Ethernet0", "broadcast", orch.OpSet, map[string]string{"KBPS": "1000"})
	if err := f.orch.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}

	id, ok := f.orch.GetPolicerOid("_Ethernet0_broadcast")
	if !ok || id == 0 {
		t.Fatal("synthetic storm-control policer not created")
	}
}

func TestPolicerOrch_StormControlDefersUntilPortExists(t *testing.T) {
	f := newTestFixture(t)

	f.orch.PushStormControl("Ethernet0", "unknown-unicast", orch.OpSet, map[string]string{"KBPS": "500"})
	if err := f.orch.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}
	if f.orch.PolicerExists("_Ethernet0_unknown-unicast") {
		t.Fatal("storm-control policer should not be created before its port exists")
	}

	f.addPort(t, "Ethernet0")
	if err := f.orch.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() (retry) error = %v", err)
	}
	if !f.orch.PolicerExists("_Ethernet0_unknown-unicast") {
		t.Error("storm-control policer should be created once its port exists")
	}
}

func TestPolicerOrch_StormControlRemoveClearsBindingAndPolicer(t *testing.T) {
	f := newTestFixture(t)
	f.addPort(t, "Ethernet0")

	f.orch.PushStormControl("Ethernet0", "unknown-multicast", orch.OpSet, map[string]string{"KBPS": "2000"})
	if err := f.orch.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}

	f.orch.PushStormControl("Ethernet0", "unknown-multicast", orch.OpDel, nil)
	if err := f.orch.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() (remove) error = %v", err)
	}
	if f.orch.PolicerExists("_Ethernet0_unknown-multicast") {
		t.Error("storm-control policer should be removed")
	}
}
