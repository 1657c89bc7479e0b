package model

import "testing"

func TestParseNextHopKey_Plain(t *testing.T) {
	nh, err := ParseNextHopKey("10.0.0.1@Ethernet0")
	if err != nil {
		t.Fatalf("ParseNextHopKey() failed: %v", err)
	}
	if nh.IP.String() != "10.0.0.1" {
		t.Errorf("IP = %s, want 10.0.0.1", nh.IP)
	}
	if nh.Alias != "Ethernet0" {
		t.Errorf("Alias = %q, want Ethernet0", nh.Alias)
	}
	if nh.IsMPLSNextHop() {
		t.Error("plain next hop should not be MPLS")
	}
}

func TestParseNextHopKey_MPLS(t *testing.T) {
	nh, err := ParseNextHopKey("push10100/10101+10.0.0.3@Ethernet4")
	if err != nil {
		t.Fatalf("ParseNextHopKey() failed: %v", err)
	}
	if !nh.IsMPLSNextHop() {
		t.Fatal("expected MPLS next hop")
	}
	if nh.LabelStack.Op != "push" {
		t.Errorf("label op = %q, want push", nh.LabelStack.Op)
	}
	if len(nh.LabelStack.Labels) != 2 || nh.LabelStack.Labels[0] != 10100 || nh.LabelStack.Labels[1] != 10101 {
		t.Errorf("labels = %v, want [10100 10101]", nh.LabelStack.Labels)
	}
	if nh.Alias != "Ethernet4" {
		t.Errorf("Alias = %q, want Ethernet4", nh.Alias)
	}
}

func TestParseNextHopKey_Overlay(t *testing.T) {
	nh, err := ParseNextHopKey("10.0.0.5@Vxlan100@5000@aa:bb:cc:dd:ee:ff")
	if err != nil {
		t.Fatalf("ParseNextHopKey() failed: %v", err)
	}
	if !nh.IsOverlayNextHop() {
		t.Fatal("expected overlay next hop")
	}
	if nh.VNI != 5000 {
		t.Errorf("VNI = %d, want 5000", nh.VNI)
	}
}

func TestParseNextHopKey_RejectsNHGDelimiter(t *testing.T) {
	if _, err := ParseNextHopKey("10.0.0.1@Ethernet0,10.0.0.2@Ethernet1"); err == nil {
		t.Error("expected error for a token containing the NHG delimiter")
	}
}

func TestParseNextHopKey_MissingAlias(t *testing.T) {
	if _, err := ParseNextHopKey("10.0.0.1"); err == nil {
		t.Error("expected error for a token with no interface alias")
	}
}

func TestNextHopKey_StringRoundTrip(t *testing.T) {
	nh, err := ParseNextHopKey("10.0.0.1@Ethernet0")
	if err != nil {
		t.Fatalf("ParseNextHopKey() failed: %v", err)
	}
	if got := nh.String(); got != "10.0.0.1@Ethernet0" {
		t.Errorf("String() = %q, want 10.0.0.1@Ethernet0", got)
	}
}

func TestNextHopKey_Equal(t *testing.T) {
	a, _ := ParseNextHopKey("10.0.0.1@Ethernet0")
	b, _ := ParseNextHopKey("10.0.0.1@Ethernet0")
	c, _ := ParseNextHopKey("10.0.0.2@Ethernet0")

	if !a.Equal(b) {
		t.Error("identical next hops should be equal")
	}
	if a.Equal(c) {
		t.Error("different IPs should not be equal")
	}
}

func TestNextHopKey_IsIntfNextHop(t *testing.T) {
	nh, _ := ParseNextHopKey("0.0.0.0@Ethernet0")
	if !nh.IsIntfNextHop() {
		t.Error("zero-address next hop should be an interface next hop")
	}
}
