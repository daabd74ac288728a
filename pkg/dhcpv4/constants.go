// Package dhcpv4 provides constants and encoding helpers for DHCPv4 packets.
package dhcpv4

import "net"

// DHCP Message Types (RFC 2131 §9.6)
type MessageType byte

const (
	MessageTypeDiscover MessageType = 1 // DHCPDISCOVER
	MessageTypeOffer    MessageType = 2 // DHCPOFFER
	MessageTypeRequest  MessageType = 3 // DHCPREQUEST
	MessageTypeDecline  MessageType = 4 // DHCPDECLINE
	MessageTypeAck      MessageType = 5 // DHCPACK
	MessageTypeNak      MessageType = 6 // DHCPNAK
	MessageTypeRelease  MessageType = 7 // DHCPRELEASE
	MessageTypeInform   MessageType = 8 // DHCPINFORM
)

func (m MessageType) String() string {
	switch m {
	case MessageTypeDiscover:
		return "DHCPDISCOVER"
	case MessageTypeOffer:
		return "DHCPOFFER"
	case MessageTypeRequest:
		return "DHCPREQUEST"
	case MessageTypeDecline:
		return "DHCPDECLINE"
	case MessageTypeAck:
		return "DHCPACK"
	case MessageTypeNak:
		return "DHCPNAK"
	case MessageTypeRelease:
		return "DHCPRELEASE"
	case MessageTypeInform:
		return "DHCPINFORM"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether m is one of the eight RFC 2132 message types.
func (m MessageType) Valid() bool {
	return m >= MessageTypeDiscover && m <= MessageTypeInform
}

// DHCP Op Codes (RFC 2131 §2)
type OpCode byte

const (
	OpCodeBootRequest OpCode = 1 // BOOTREQUEST
	OpCodeBootReply   OpCode = 2 // BOOTREPLY
)

// Hardware Types (RFC 1700)
type HardwareType byte

const (
	HardwareTypeEthernet HardwareType = 1
)

// DHCP Option Codes (RFC 2132 and extensions) used by the client.
type OptionCode byte

const (
	OptionPad                  OptionCode = 0
	OptionSubnetMask           OptionCode = 1
	OptionRouter               OptionCode = 3
	OptionDomainNameServer     OptionCode = 6
	OptionHostname             OptionCode = 12
	OptionDomainName           OptionCode = 15
	OptionRequestedIP          OptionCode = 50
	OptionIPLeaseTime          OptionCode = 51
	OptionDHCPMessageType      OptionCode = 53
	OptionServerIdentifier     OptionCode = 54
	OptionParameterRequestList OptionCode = 55
	OptionMessage              OptionCode = 56
	OptionRenewalTime          OptionCode = 58
	OptionRebindingTime        OptionCode = 59
	OptionClientIdentifier     OptionCode = 61
	OptionDomainSearch         OptionCode = 119
	OptionEnd                  OptionCode = 255
)

// Wire layout offsets (RFC 2131 §2).
const (
	HeaderSize    = 236 // op through file
	CookieSize    = 4
	OptionsOffset = HeaderSize + CookieSize
	CHAddrSize    = 16
	SNameSize     = 64
	FileSize      = 128
)

// DHCP Packet Size Limits
const (
	MaxPacketSize     = 1500 // Maximum DHCP packet size (Ethernet MTU)
	MinReceiveBuffer  = 1024 // smallest buffer that holds every reply the client handles
	MaxOptionValueLen = 255
)

// DHCP Ports
const (
	ServerPort = 67
	ClientPort = 68
)

// DHCP Magic Cookie (RFC 2131 §3)
var MagicCookie = []byte{99, 130, 83, 99}

// Broadcast and zero IP
var (
	BroadcastIP = net.IPv4(255, 255, 255, 255)
	ZeroIP      = net.IPv4(0, 0, 0, 0)
)

// DefaultParameterRequestList is sent in every DHCPDISCOVER: subnet mask,
// router, DNS servers, domain name.
var DefaultParameterRequestList = []OptionCode{
	OptionSubnetMask,
	OptionRouter,
	OptionDomainNameServer,
	OptionDomainName,
}
