package dhcp

import (
	"fmt"
	"net"

	"github.com/leasectl/leasectl/pkg/dhcpv4"
)

// newRequestPacket returns a BOOTREQUEST with the common client fields set.
func newRequestPacket(mac net.HardwareAddr, xid uint32, msgType dhcpv4.MessageType) *Packet {
	p := &Packet{
		Op:      dhcpv4.OpCodeBootRequest,
		HType:   dhcpv4.HardwareTypeEthernet,
		HLen:    byte(len(mac)),
		XID:     xid,
		CHAddr:  make(net.HardwareAddr, len(mac)),
		Options: make(Options),
	}
	copy(p.CHAddr, mac)
	p.Options.SetMessageType(msgType)
	return p
}

// NewDiscover builds a DHCPDISCOVER (RFC 2131 §4.4.1) asking for the
// given parameters.
func NewDiscover(mac net.HardwareAddr, xid uint32, params []dhcpv4.OptionCode) *Packet {
	p := newRequestPacket(mac, xid, dhcpv4.MessageTypeDiscover)
	if len(params) > 0 {
		p.Options.SetCodes(dhcpv4.OptionParameterRequestList, params)
	}
	return p
}

// NewRequest builds a DHCPREQUEST in the SELECTING state (RFC 2131 §4.3.2):
// ciaddr is zero, option 50 carries the offered address and option 54 the
// chosen server.
func NewRequest(mac net.HardwareAddr, xid uint32, offered, serverID net.IP) (*Packet, error) {
	p := newRequestPacket(mac, xid, dhcpv4.MessageTypeRequest)
	if err := p.Options.SetIP(dhcpv4.OptionRequestedIP, offered); err != nil {
		return nil, fmt.Errorf("building DHCPREQUEST: %w", err)
	}
	if err := p.Options.SetIP(dhcpv4.OptionServerIdentifier, serverID); err != nil {
		return nil, fmt.Errorf("building DHCPREQUEST: %w", err)
	}
	return p, nil
}

// NewRelease builds a DHCPRELEASE (RFC 2131 §4.4.6) for addr, addressed
// to serverID.
func NewRelease(mac net.HardwareAddr, xid uint32, addr, serverID net.IP) (*Packet, error) {
	p := newRequestPacket(mac, xid, dhcpv4.MessageTypeRelease)
	ciaddr, err := toIPv4(addr)
	if err != nil {
		return nil, fmt.Errorf("building DHCPRELEASE: ciaddr: %w", err)
	}
	p.CIAddr = copyIP(ciaddr)
	if err := p.Options.SetIP(dhcpv4.OptionServerIdentifier, serverID); err != nil {
		return nil, fmt.Errorf("building DHCPRELEASE: %w", err)
	}
	return p, nil
}
