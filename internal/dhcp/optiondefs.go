package dhcp

import (
	"fmt"

	"github.com/leasectl/leasectl/pkg/dhcpv4"
)

// OptionType defines the data type of a DHCP option.
type OptionType int

const (
	TypeIP         OptionType = iota // Single IPv4 address (4 bytes)
	TypeIPList                       // Multiple IPv4 addresses (N*4 bytes)
	TypeUint8                        // Single byte
	TypeUint32                       // 4 bytes big-endian
	TypeString                       // Variable-length ASCII
	TypeBytes                        // Raw bytes
	TypeDomainList                   // RFC 1035 encoded names (RFC 3397)
)

// OptionDef describes the wire constraints of an option the client reads
// or writes.
type OptionDef struct {
	Code   dhcpv4.OptionCode
	Name   string
	Type   OptionType
	MinLen int
	MaxLen int
}

var optionRegistry = map[dhcpv4.OptionCode]OptionDef{
	dhcpv4.OptionSubnetMask:           {Code: 1, Name: "Subnet Mask", Type: TypeIP, MinLen: 4, MaxLen: 4},
	dhcpv4.OptionRouter:               {Code: 3, Name: "Router", Type: TypeIPList, MinLen: 4, MaxLen: 252},
	dhcpv4.OptionDomainNameServer:     {Code: 6, Name: "Domain Name Server", Type: TypeIPList, MinLen: 4, MaxLen: 252},
	dhcpv4.OptionHostname:             {Code: 12, Name: "Host Name", Type: TypeString, MinLen: 1, MaxLen: 255},
	dhcpv4.OptionDomainName:           {Code: 15, Name: "Domain Name", Type: TypeString, MinLen: 1, MaxLen: 255},
	dhcpv4.OptionRequestedIP:          {Code: 50, Name: "Requested IP", Type: TypeIP, MinLen: 4, MaxLen: 4},
	dhcpv4.OptionIPLeaseTime:          {Code: 51, Name: "IP Lease Time", Type: TypeUint32, MinLen: 4, MaxLen: 4},
	dhcpv4.OptionDHCPMessageType:      {Code: 53, Name: "DHCP Message Type", Type: TypeUint8, MinLen: 1, MaxLen: 1},
	dhcpv4.OptionServerIdentifier:     {Code: 54, Name: "Server Identifier", Type: TypeIP, MinLen: 4, MaxLen: 4},
	dhcpv4.OptionParameterRequestList: {Code: 55, Name: "Parameter Request List", Type: TypeBytes, MinLen: 1, MaxLen: 255},
	dhcpv4.OptionMessage:              {Code: 56, Name: "Message", Type: TypeString, MinLen: 1, MaxLen: 255},
	dhcpv4.OptionRenewalTime:          {Code: 58, Name: "Renewal Time (T1)", Type: TypeUint32, MinLen: 4, MaxLen: 4},
	dhcpv4.OptionRebindingTime:        {Code: 59, Name: "Rebinding Time (T2)", Type: TypeUint32, MinLen: 4, MaxLen: 4},
	dhcpv4.OptionClientIdentifier:     {Code: 61, Name: "Client Identifier", Type: TypeBytes, MinLen: 2, MaxLen: 255},
	dhcpv4.OptionDomainSearch:         {Code: 119, Name: "Domain Search", Type: TypeDomainList, MinLen: 1, MaxLen: 255},
}

// GetOptionDef returns the definition for an option code, or nil if unknown.
func GetOptionDef(code dhcpv4.OptionCode) *OptionDef {
	def, ok := optionRegistry[code]
	if !ok {
		return nil
	}
	return &def
}

// OptionName returns a human-readable option name for logs.
func OptionName(code dhcpv4.OptionCode) string {
	if def := GetOptionDef(code); def != nil {
		return def.Name
	}
	return fmt.Sprintf("Option %d", code)
}

// ValidateOption checks that raw option data matches the expected type constraints.
func ValidateOption(code dhcpv4.OptionCode, data []byte) error {
	def := GetOptionDef(code)
	if def == nil {
		// Unknown option, accept as raw bytes
		return nil
	}
	if len(data) < def.MinLen {
		return fmt.Errorf("option %d (%s): data too short (%d < %d)", code, def.Name, len(data), def.MinLen)
	}
	if def.MaxLen > 0 && len(data) > def.MaxLen {
		return fmt.Errorf("option %d (%s): data too long (%d > %d)", code, def.Name, len(data), def.MaxLen)
	}

	switch def.Type {
	case TypeIP:
		if len(data) != 4 {
			return fmt.Errorf("option %d (%s): expected 4 bytes for IP, got %d", code, def.Name, len(data))
		}
	case TypeIPList:
		if len(data)%4 != 0 {
			return fmt.Errorf("option %d (%s): IP list length %d not multiple of 4", code, def.Name, len(data))
		}
	case TypeUint32:
		if len(data) != 4 {
			return fmt.Errorf("option %d (%s): expected 4 bytes for uint32, got %d", code, def.Name, len(data))
		}
	case TypeUint8:
		if len(data) != 1 {
			return fmt.Errorf("option %d (%s): expected 1 byte, got %d", code, def.Name, len(data))
		}
	}

	return nil
}

// validOption returns the data for code when present and well formed.
func (p *Packet) validOption(code dhcpv4.OptionCode) ([]byte, bool) {
	data, ok := p.Options[code]
	if !ok || ValidateOption(code, data) != nil {
		return nil, false
	}
	return data, true
}

// Malformed validates every option and returns one error per option whose
// data does not match its definition, in Codes order.
func (opts Options) Malformed() []error {
	var errs []error
	for _, code := range opts.Codes() {
		if err := ValidateOption(code, opts[code]); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
