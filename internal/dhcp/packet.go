// Package dhcp implements the DHCPv4 message codec used by the lease client.
package dhcp

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/leasectl/leasectl/pkg/dhcpv4"
)

// Packet represents a decoded DHCPv4 packet (RFC 2131 §2).
type Packet struct {
	Op      dhcpv4.OpCode       // Message op code: 1=BOOTREQUEST, 2=BOOTREPLY
	HType   dhcpv4.HardwareType // Hardware address type (1=Ethernet)
	HLen    byte                // Hardware address length (6 for Ethernet)
	Hops    byte                // Relay hops
	XID     uint32              // Transaction ID
	Secs    uint16              // Seconds elapsed
	Flags   uint16              // Flags (unused by this client)
	CIAddr  net.IP              // Client IP address
	YIAddr  net.IP              // 'Your' (client) IP address
	SIAddr  net.IP              // Next server IP address
	GIAddr  net.IP              // Relay agent IP address
	CHAddr  net.HardwareAddr    // Client hardware address, at most 16 bytes
	SName   [64]byte            // Server host name
	File    [128]byte           // Boot file name
	Options Options             // DHCP options
}

// DecodePacket parses a raw DHCPv4 packet from bytes.
// RFC 2131 §2 packet format. The full datagram must be supplied.
func DecodePacket(data []byte) (*Packet, error) {
	if len(data) < dhcpv4.OptionsOffset {
		return nil, formatErrorf(ErrShortPacket, "%d bytes (minimum %d)", len(data), dhcpv4.OptionsOffset)
	}

	p := &Packet{}
	p.Op = dhcpv4.OpCode(data[0])
	p.HType = dhcpv4.HardwareType(data[1])
	p.HLen = data[2]
	p.Hops = data[3]
	p.XID = binary.BigEndian.Uint32(data[4:8])
	p.Secs = binary.BigEndian.Uint16(data[8:10])
	p.Flags = binary.BigEndian.Uint16(data[10:12])
	p.CIAddr = copyIP(data[12:16])
	p.YIAddr = copyIP(data[16:20])
	p.SIAddr = copyIP(data[20:24])
	p.GIAddr = copyIP(data[24:28])

	// Client hardware address (16 bytes in header, but only HLen are significant)
	hlen := int(p.HLen)
	if hlen == 0 || hlen > dhcpv4.CHAddrSize {
		hlen = 6
	}
	p.CHAddr = make(net.HardwareAddr, hlen)
	copy(p.CHAddr, data[28:28+hlen])

	copy(p.SName[:], data[44:108])
	copy(p.File[:], data[108:236])

	// Validate magic cookie (RFC 2131 §3)
	cookie := data[dhcpv4.HeaderSize:dhcpv4.OptionsOffset]
	for i := range dhcpv4.MagicCookie {
		if cookie[i] != dhcpv4.MagicCookie[i] {
			return nil, formatErrorf(ErrBadMagicCookie, "% x", cookie)
		}
	}

	opts, err := DecodeOptions(data[dhcpv4.OptionsOffset:])
	if err != nil {
		return nil, err
	}
	p.Options = opts

	return p, nil
}

// Encode serializes a DHCPv4 packet to bytes. The result is exactly
// 240 bytes of header and cookie plus the encoded options; no padding is added.
// An error means the packet was built with invalid field values.
func (p *Packet) Encode() ([]byte, error) {
	optBytes, err := p.Options.Encode()
	if err != nil {
		return nil, fmt.Errorf("encoding options: %w", err)
	}
	if len(p.CHAddr) > dhcpv4.CHAddrSize {
		return nil, fmt.Errorf("chaddr is %d bytes, maximum %d", len(p.CHAddr), dhcpv4.CHAddrSize)
	}

	buf := make([]byte, dhcpv4.OptionsOffset+len(optBytes))
	buf[0] = byte(p.Op)
	buf[1] = byte(p.HType)
	buf[2] = p.HLen
	buf[3] = p.Hops
	binary.BigEndian.PutUint32(buf[4:8], p.XID)
	binary.BigEndian.PutUint16(buf[8:10], p.Secs)
	binary.BigEndian.PutUint16(buf[10:12], p.Flags)

	for _, f := range []struct {
		name string
		ip   net.IP
		off  int
	}{
		{"ciaddr", p.CIAddr, 12},
		{"yiaddr", p.YIAddr, 16},
		{"siaddr", p.SIAddr, 20},
		{"giaddr", p.GIAddr, 24},
	} {
		ip4, err := toIPv4(f.ip)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
		copy(buf[f.off:f.off+4], ip4)
	}

	copy(buf[28:44], p.CHAddr)
	copy(buf[44:108], p.SName[:])
	copy(buf[108:236], p.File[:])

	// Magic cookie
	copy(buf[dhcpv4.HeaderSize:dhcpv4.OptionsOffset], dhcpv4.MagicCookie)

	// Options
	copy(buf[dhcpv4.OptionsOffset:], optBytes)

	return buf, nil
}

// MessageType returns the DHCP message type from the packet options, or 0.
func (p *Packet) MessageType() dhcpv4.MessageType {
	if data, ok := p.Options[dhcpv4.OptionDHCPMessageType]; ok && len(data) == 1 {
		return dhcpv4.MessageType(data[0])
	}
	return 0
}

// RequestedIP returns the requested IP address from option 50.
func (p *Packet) RequestedIP() net.IP {
	return p.ipOption(dhcpv4.OptionRequestedIP)
}

// ServerIdentifier returns the server identifier from option 54.
func (p *Packet) ServerIdentifier() net.IP {
	return p.ipOption(dhcpv4.OptionServerIdentifier)
}

// ParameterRequestList returns the list of requested option codes.
func (p *Packet) ParameterRequestList() []dhcpv4.OptionCode {
	if data, ok := p.Options[dhcpv4.OptionParameterRequestList]; ok {
		codes := make([]dhcpv4.OptionCode, len(data))
		for i, b := range data {
			codes[i] = dhcpv4.OptionCode(b)
		}
		return codes
	}
	return nil
}

// IsReply returns true for BOOTREPLY packets.
func (p *Packet) IsReply() bool {
	return p.Op == dhcpv4.OpCodeBootReply
}

func (p *Packet) ipOption(code dhcpv4.OptionCode) net.IP {
	if data, ok := p.validOption(code); ok && len(data) == 4 {
		return copyIP(data)
	}
	return nil
}

func copyIP(b []byte) net.IP {
	ip := make(net.IP, 4)
	copy(ip, b)
	return ip
}

// toIPv4 returns the 4-byte form of ip. Nil maps to 0.0.0.0.
func toIPv4(ip net.IP) (net.IP, error) {
	if ip == nil {
		return net.IP{0, 0, 0, 0}, nil
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("%s is not an IPv4 address", ip)
	}
	return ip4, nil
}
