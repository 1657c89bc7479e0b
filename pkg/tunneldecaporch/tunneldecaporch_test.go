package tunneldecaporch

import (
	"context"
	"testing"

	"github.com/lumenswitch/orchagent/pkg/orch"
	"github.com/lumenswitch/orchagent/pkg/sai/fake"
)

func newTestOrch(t *testing.T) *TunnelDecapOrch {
	t.Helper()
	client := fake.New()
	return NewTunnelDecapOrch(client, 1)
}

func TestTunnelDecapOrch_CreateP2MPTunnel(t *testing.T) {
	o := newTestOrch(t)
	o.Push("MuxTunnel0", orch.OpSet, map[string]string{
		"tunnel_type": "IPINIP",
		"dst_ip":      "10.1.0.32",
	})
	if err := o.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}

	tun, ok := o.GetTunnel("MuxTunnel0")
	if !ok {
		t.Fatal("tunnel not created")
	}
	if tun.TunnelID == 0 || tun.OverlayRIFID == 0 {
		t.Error("tunnel missing handle or overlay RIF")
	}
	if tun.IsP2P() {
		t.Error("tunnel with no src_ip should be P2MP")
	}
	if _, ok := tun.DestIPs["10.1.0.32"]; !ok {
		t.Error("destination IP not terminated")
	}
}

func TestTunnelDecapOrch_CreateP2PTunnelWithSourceIP(t *testing.T) {
	o := newTestOrch(t)
	o.Push("IPINIP_TUNNEL", orch.OpSet, map[string]string{
		"tunnel_type": "IPINIP",
		"src_ip":      "10.0.0.1",
		"dst_ip":      "10.0.0.2",
	})
	if err := o.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}

	tun, ok := o.GetTunnel("IPINIP_TUNNEL")
	if !ok {
		t.Fatal("tunnel not created")
	}
	if !tun.IsP2P() {
		t.Error("tunnel with src_ip should be P2P")
	}
}

func TestTunnelDecapOrch_AddsTermEntryForNewDestinationOnExistingTunnel(t *testing.T) {
	o := newTestOrch(t)
	o.Push("MuxTunnel0", orch.OpSet, map[string]string{
		"tunnel_type": "IPINIP",
		"dst_ip":      "10.1.0.32",
	})
	if err := o.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}
	tun, _ := o.GetTunnel("MuxTunnel0")
	firstTunnelID := tun.TunnelID

	o.Push("MuxTunnel0", orch.OpSet, map[string]string{"dst_ip": "10.1.0.33"})
	if err := o.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() (second dst) error = %v", err)
	}

	tun, _ = o.GetTunnel("MuxTunnel0")
	if tun.TunnelID != firstTunnelID {
		t.Error("tunnel object must not be recreated for a new destination")
	}
	if len(tun.DestIPs) != 2 {
		t.Errorf("DestIPs = %d, want 2", len(tun.DestIPs))
	}
}

func TestTunnelDecapOrch_SharedNextHopRefcounting(t *testing.T) {
	o := newTestOrch(t)
	o.Push("MuxTunnel0", orch.OpSet, map[string]string{
		"tunnel_type": "IPINIP",
		"dst_ip":      "10.1.0.32",
	})
	if err := o.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}

	id1, err := o.CreateNextHopTunnel("MuxTunnel0", "100.1.1.1")
	if err != nil {
		t.Fatalf("CreateNextHopTunnel() error = %v", err)
	}
	id2, err := o.CreateNextHopTunnel("MuxTunnel0", "100.1.1.1")
	if err != nil {
		t.Fatalf("CreateNextHopTunnel() (second ref) error = %v", err)
	}
	if id1 != id2 {
		t.Error("second CreateNextHopTunnel() for the same destination must return the same handle")
	}

	tun, _ := o.GetTunnel("MuxTunnel0")
	if tun.EncapNextHops["100.1.1.1"].RefCount != 2 {
		t.Errorf("refcount = %d, want 2", tun.EncapNextHops["100.1.1.1"].RefCount)
	}

	if err := o.RemoveNextHopTunnel("MuxTunnel0", "100.1.1.1"); err != nil {
		t.Fatalf("RemoveNextHopTunnel() error = %v", err)
	}
	if _, ok := o.GetNextHopTunnel("MuxTunnel0", "100.1.1.1"); !ok {
		t.Error("next hop should survive the first release")
	}

	if err := o.RemoveNextHopTunnel("MuxTunnel0", "100.1.1.1"); err != nil {
		t.Fatalf("RemoveNextHopTunnel() (last ref) error = %v", err)
	}
	if _, ok := o.GetNextHopTunnel("MuxTunnel0", "100.1.1.1"); ok {
		t.Error("next hop should be destroyed once the last reference releases it")
	}
}

func TestTunnelDecapOrch_RemoveTunnelDefersWhileNextHopsReferenced(t *testing.T) {
	o := newTestOrch(t)
	o.Push("MuxTunnel0", orch.OpSet, map[string]string{
		"tunnel_type": "IPINIP",
		"dst_ip":      "10.1.0.32",
	})
	if err := o.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}
	if _, err := o.CreateNextHopTunnel("MuxTunnel0", "100.1.1.1"); err != nil {
		t.Fatalf("CreateNextHopTunnel() error = %v", err)
	}

	o.Push("MuxTunnel0", orch.OpDel, nil)
	if err := o.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}
	if _, ok := o.GetTunnel("MuxTunnel0"); !ok {
		t.Fatal("tunnel should survive removal attempt while a next hop still references it")
	}

	if err := o.RemoveNextHopTunnel("MuxTunnel0", "100.1.1.1"); err != nil {
		t.Fatalf("RemoveNextHopTunnel() error = %v", err)
	}
	o.Push("MuxTunnel0", orch.OpDel, nil)
	if err := o.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}
	if _, ok := o.GetTunnel("MuxTunnel0"); ok {
		t.Error("tunnel should be removed once its last next hop releases it")
	}
}

func TestTunnelDecapOrch_RejectsUnsupportedTunnelType(t *testing.T) {
	o := newTestOrch(t)
	o.Push("BadTunnel", orch.OpSet, map[string]string{
		"tunnel_type": "VXLAN",
		"dst_ip":      "10.1.0.32",
	})
	if err := o.DoTask(context.Background()); err != nil {
		t.Fatalf("DoTask() error = %v", err)
	}
	if _, ok := o.GetTunnel("BadTunnel"); ok {
		t.Error("tunnel with unsupported type should never be created")
	}
}
