package model

import "testing"

func mustNH(t *testing.T, s string) NextHopKey {
	nh, err := ParseNextHopKey(s)
	if err != nil {
		t.Fatalf("ParseNextHopKey(%q) failed: %v", s, err)
	}
	return nh
}

func TestNewNextHopGroupKey_OrderIndependent(t *testing.T) {
	a := mustNH(t, "10.0.0.1@Ethernet0")
	b := mustNH(t, "10.0.0.2@Ethernet1")

	g1 := NewNextHopGroupKey([]NextHopKey{a, b})
	g2 := NewNextHopGroupKey([]NextHopKey{b, a})

	if g1.String() != g2.String() {
		t.Errorf("group keys should be order-independent: %q vs %q", g1.String(), g2.String())
	}
}

func TestNewNextHopGroupKey_DedupesExactDuplicates(t *testing.T) {
	a := mustNH(t, "10.0.0.1@Ethernet0")
	g := NewNextHopGroupKey([]NextHopKey{a, a})
	if g.Size() != 1 {
		t.Errorf("Size() = %d, want 1 after deduping", g.Size())
	}
}

func TestNextHopGroupKey_Diff(t *testing.T) {
	a := mustNH(t, "10.0.0.1@Ethernet0")
	b := mustNH(t, "10.0.0.2@Ethernet1")
	c := mustNH(t, "10.0.0.3@Ethernet2")

	old := NewNextHopGroupKey([]NextHopKey{a, b})
	updated := NewNextHopGroupKey([]NextHopKey{b, c})

	removed, added := old.Diff(updated)
	if len(removed) != 1 || !removed[0].Equal(a) {
		t.Errorf("removed = %v, want [%v]", removed, a)
	}
	if len(added) != 1 || !added[0].Equal(c) {
		t.Errorf("added = %v, want [%v]", added, c)
	}
}

func TestNextHopGroupKey_IsSingle(t *testing.T) {
	a := mustNH(t, "10.0.0.1@Ethernet0")
	if !NewNextHopGroupKey([]NextHopKey{a}).IsSingle() {
		t.Error("single-member group should report IsSingle")
	}
}

func TestMuxTransitionPermitted(t *testing.T) {
	tests := []struct {
		from, to MuxState
		want     bool
	}{
		{MuxInit, MuxActive, true},
		{MuxInit, MuxStandby, true},
		{MuxStandby, MuxActive, true},
		{MuxActive, MuxStandby, true},
		{MuxActive, MuxInit, false},
		{MuxFailed, MuxActive, false},
		{MuxActive, MuxActive, false},
	}
	for _, tt := range tests {
		if got := MuxTransitionPermitted(tt.from, tt.to); got != tt.want {
			t.Errorf("MuxTransitionPermitted(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
