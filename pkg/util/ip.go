package util

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ParseIPWithMask parses an IP address with CIDR notation.
// Returns the IP, mask length, and any error.
func ParseIPWithMask(cidr string) (net.IP, int, error) {
	ip, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid CIDR notation: %s", cidr)
	}
	ones, _ := ipNet.Mask.Size()
	return ip, ones, nil
}

// IsValidIPv4 checks if a string is a valid IPv4 address.
func IsValidIPv4(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	return ip != nil && ip.To4() != nil
}

// IsValidIPv4CIDR checks if a string is a valid IPv4 CIDR notation.
func IsValidIPv4CIDR(cidr string) bool {
	ip, _, err := net.ParseCIDR(cidr)
	if err != nil {
		return false
	}
	return ip.To4() != nil
}

// IsValidMACAddress checks if a string is a valid MAC address.
func IsValidMACAddress(mac string) bool {
	_, err := net.ParseMAC(mac)
	return err == nil
}

// NormalizeMACAddress normalizes a MAC address to lowercase with colons.
func NormalizeMACAddress(mac string) (string, error) {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return "", err
	}
	return hw.String(), nil
}

// ValidateVLANID checks if a VLAN ID is valid (1-4094).
func ValidateVLANID(vlanID int) error {
	if vlanID < 1 || vlanID > 4094 {
		return fmt.Errorf("VLAN ID must be between 1 and 4094, got %d", vlanID)
	}
	return nil
}

// ValidateMTU checks if MTU is within valid range.
func ValidateMTU(mtu int) error {
	if mtu < 68 || mtu > 9216 {
		return fmt.Errorf("MTU must be between 68 and 9216, got %d", mtu)
	}
	return nil
}

// ParsePortRange parses a port range string like "1024-65535".
// A single value ("80") returns start == end.
func ParsePortRange(rangeStr string) (start, end int, err error) {
	parts := strings.Split(rangeStr, "-")
	if len(parts) == 1 {
		port, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, 0, fmt.Errorf("invalid port: %s", parts[0])
		}
		if port < 0 || port > 65535 {
			return 0, 0, fmt.Errorf("port out of range: %d", port)
		}
		return port, port, nil
	}
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid port range format: %s", rangeStr)
	}

	start, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid start port: %s", parts[0])
	}
	end, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid end port: %s", parts[1])
	}
	if start < 0 || start > 65535 || end < 0 || end > 65535 {
		return 0, 0, fmt.Errorf("port out of range")
	}
	if start > end {
		return 0, 0, fmt.Errorf("range start %d greater than end %d", start, end)
	}
	return start, end, nil
}

// PrefixesOverlap reports whether two IP prefixes overlap — one contains
// the other's network address, in either direction. Used by IntfsOrch to
// defer a prefix row while ifconfig's transient /8 is still visible.
func PrefixesOverlap(a, b string) bool {
	_, netA, errA := net.ParseCIDR(a)
	_, netB, errB := net.ParseCIDR(b)
	if errA != nil || errB != nil {
		return false
	}
	return netA.Contains(netB.IP) || netB.Contains(netA.IP)
}

// IsPointToPointOrSmaller reports whether an IPv4 mask length is /30 or
// longer (i.e. mask length >= 30), the boundary IntfsOrch uses
// to decide whether to install a directed-broadcast neighbor entry.
func IsPointToPointOrSmaller(maskLen int) bool {
	return maskLen >= 30
}

// BroadcastAddress returns the IPv4 directed-broadcast address for the
// given CIDR prefix (e.g. "10.0.0.0/30" -> "10.0.0.3").
func BroadcastAddress(cidr string) (string, error) {
	ip, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return "", err
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return "", fmt.Errorf("not an IPv4 prefix: %s", cidr)
	}
	bcast := make(net.IP, 4)
	for i := 0; i < 4; i++ {
		bcast[i] = ip4[i] | ^ipNet.Mask[i]
	}
	return bcast.String(), nil
}
