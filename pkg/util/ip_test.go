package util

import "testing"

func TestParseIPWithMask(t *testing.T) {
	tests := []struct {
		name     string
		cidr     string
		wantMask int
		wantErr  bool
	}{
		{"valid /24", "192.168.1.100/24", 24, false},
		{"valid /30", "10.1.1.1/30", 30, false},
		{"valid /32", "10.0.0.1/32", 32, false},
		{"no mask", "192.168.1.100", 0, true},
		{"bad IP", "999.999.999.999/24", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		_, mask, err := ParseIPWithMask(tt.cidr)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseIPWithMask(%q) expected error, got nil", tt.cidr)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseIPWithMask(%q) unexpected error: %v", tt.cidr, err)
			continue
		}
		if mask != tt.wantMask {
			t.Errorf("ParseIPWithMask(%q) mask = %d, want %d", tt.cidr, mask, tt.wantMask)
		}
	}
}

func TestIsValidIPv4(t *testing.T) {
	if !IsValidIPv4("10.0.0.1") {
		t.Error("expected 10.0.0.1 to be valid")
	}
	if IsValidIPv4("::1") {
		t.Error("expected ::1 to not be valid IPv4")
	}
	if IsValidIPv4("not-an-ip") {
		t.Error("expected garbage to be invalid")
	}
}

func TestIsValidMACAddress(t *testing.T) {
	if !IsValidMACAddress("aa:bb:cc:dd:ee:ff") {
		t.Error("expected valid MAC to pass")
	}
	if IsValidMACAddress("not-a-mac") {
		t.Error("expected invalid MAC to fail")
	}
}

func TestNormalizeMACAddress(t *testing.T) {
	got, err := NormalizeMACAddress("AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("NormalizeMACAddress = %q, want aa:bb:cc:dd:ee:ff", got)
	}
}

func TestValidateVLANID(t *testing.T) {
	if err := ValidateVLANID(100); err != nil {
		t.Errorf("VLAN 100 should be valid: %v", err)
	}
	if err := ValidateVLANID(0); err == nil {
		t.Error("VLAN 0 should be invalid")
	}
	if err := ValidateVLANID(4095); err == nil {
		t.Error("VLAN 4095 should be invalid")
	}
}

func TestParsePortRange(t *testing.T) {
	tests := []struct {
		in        string
		wantStart int
		wantEnd   int
		wantErr   bool
	}{
		{"1000-2000", 1000, 2000, false},
		{"80", 80, 80, false},
		{"2000-1000", 0, 0, true},
		{"1000-70000", 0, 0, true},
		{"bogus", 0, 0, true},
	}
	for _, tt := range tests {
		start, end, err := ParsePortRange(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParsePortRange(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePortRange(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if start != tt.wantStart || end != tt.wantEnd {
			t.Errorf("ParsePortRange(%q) = (%d, %d), want (%d, %d)", tt.in, start, end, tt.wantStart, tt.wantEnd)
		}
	}
}

func TestPrefixesOverlap(t *testing.T) {
	if !PrefixesOverlap("10.0.0.0/8", "10.1.2.0/24") {
		t.Error("expected 10.0.0.0/8 to overlap with 10.1.2.0/24")
	}
	if PrefixesOverlap("10.0.0.0/24", "192.168.0.0/24") {
		t.Error("expected disjoint prefixes to not overlap")
	}
}

func TestIsPointToPointOrSmaller(t *testing.T) {
	if !IsPointToPointOrSmaller(30) {
		t.Error("/30 should be point-to-point-or-smaller")
	}
	if !IsPointToPointOrSmaller(31) {
		t.Error("/31 should be point-to-point-or-smaller")
	}
	if IsPointToPointOrSmaller(24) {
		t.Error("/24 should not be point-to-point-or-smaller")
	}
}

func TestBroadcastAddress(t *testing.T) {
	bcast, err := BroadcastAddress("10.0.0.0/30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bcast != "10.0.0.3" {
		t.Errorf("BroadcastAddress(10.0.0.0/30) = %s, want 10.0.0.3", bcast)
	}
}
