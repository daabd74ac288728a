package dhcpv4

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"
)

// IPToBytes converts a net.IP to a 4-byte slice. Nil or non-IPv4 input yields 0.0.0.0.
func IPToBytes(ip net.IP) []byte {
	ip4 := ip.To4()
	if ip4 == nil {
		return []byte{0, 0, 0, 0}
	}
	return []byte(ip4)
}

// BytesToIP converts a 4-byte slice to net.IP.
func BytesToIP(b []byte) net.IP {
	if len(b) != 4 {
		return nil
	}
	return net.IPv4(b[0], b[1], b[2], b[3])
}

// BytesToIPList converts bytes to a slice of net.IP (N*4).
func BytesToIPList(b []byte) ([]net.IP, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid IP list length %d: must be multiple of 4", len(b))
	}
	ips := make([]net.IP, 0, len(b)/4)
	for i := 0; i < len(b); i += 4 {
		ips = append(ips, BytesToIP(b[i:i+4]))
	}
	return ips, nil
}

// Uint32ToBytes converts a uint32 to 4 bytes (big-endian).
func Uint32ToBytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// BytesToUint32 converts 4 bytes to uint32 (big-endian).
func BytesToUint32(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("invalid uint32 length %d: expected 4", len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

// ParseIPv4 parses a dotted-quad address. IPv6 text is rejected.
func ParseIPv4(s string) (net.IP, error) {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return nil, fmt.Errorf("invalid IPv4 address %q", s)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("%q is not an IPv4 address", s)
	}
	return ip4, nil
}

// ParseMAC parses a colon-separated MAC address string. The address must
// fit the 16-byte chaddr field.
func ParseMAC(s string) (net.HardwareAddr, error) {
	mac, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("parsing hardware address: %w", err)
	}
	if len(mac) > CHAddrSize {
		return nil, fmt.Errorf("hardware address %s is %d bytes, chaddr holds %d", s, len(mac), CHAddrSize)
	}
	return mac, nil
}

// FormatMAC formats bytes as a MAC address string.
func FormatMAC(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02x", v)
	}
	return strings.Join(parts, ":")
}
