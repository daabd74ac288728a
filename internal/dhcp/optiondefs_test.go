package dhcp

import (
	"net"
	"strings"
	"testing"

	"github.com/leasectl/leasectl/pkg/dhcpv4"
)

func TestValidateOption(t *testing.T) {
	tests := []struct {
		name    string
		code    dhcpv4.OptionCode
		data    []byte
		wantErr bool
	}{
		{"subnet mask", dhcpv4.OptionSubnetMask, []byte{255, 255, 255, 0}, false},
		{"short subnet mask", dhcpv4.OptionSubnetMask, []byte{255, 255, 255}, true},
		{"router list", dhcpv4.OptionRouter, []byte{10, 0, 0, 1, 10, 0, 0, 2}, false},
		{"ragged router list", dhcpv4.OptionRouter, []byte{10, 0, 0, 1, 10}, true},
		{"lease time", dhcpv4.OptionIPLeaseTime, []byte{0, 0, 14, 16}, false},
		{"long lease time", dhcpv4.OptionIPLeaseTime, []byte{0, 0, 0, 14, 16}, true},
		{"message type", dhcpv4.OptionDHCPMessageType, []byte{5}, false},
		{"empty domain", dhcpv4.OptionDomainName, []byte{}, true},
		{"unknown option", dhcpv4.OptionCode(200), []byte{1, 2, 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOption(tt.code, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateOption() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOptionName(t *testing.T) {
	if got := OptionName(dhcpv4.OptionServerIdentifier); got != "Server Identifier" {
		t.Errorf("OptionName(54) = %q", got)
	}
	if got := OptionName(dhcpv4.OptionCode(200)); got != "Option 200" {
		t.Errorf("OptionName(200) = %q", got)
	}
}

func TestMalformedOptionsSkippedInLeaseInfo(t *testing.T) {
	p := &Packet{
		Op:     dhcpv4.OpCodeBootReply,
		YIAddr: net.IPv4(192, 168, 1, 50),
		Options: Options{
			dhcpv4.OptionDHCPMessageType:  {byte(dhcpv4.MessageTypeAck)},
			dhcpv4.OptionServerIdentifier: {192, 168, 1, 1},
			dhcpv4.OptionSubnetMask:       {255, 255, 0},
			dhcpv4.OptionRouter:           {192, 168, 1, 1},
			dhcpv4.OptionIPLeaseTime:      {0, 0, 1},
		},
	}

	errs := p.Options.Malformed()
	if len(errs) != 2 {
		t.Fatalf("Malformed() = %v, want 2 errors", errs)
	}
	if !strings.Contains(errs[0].Error(), "Subnet Mask") {
		t.Errorf("first error = %v, want the subnet mask", errs[0])
	}

	info := p.LeaseInfo()
	if info.SubnetMask != nil {
		t.Errorf("SubnetMask = %v, want nil for malformed option", info.SubnetMask)
	}
	if info.LeaseTime != 0 {
		t.Errorf("LeaseTime = %s, want 0 for malformed option", info.LeaseTime)
	}
	if len(info.Routers) != 1 || !info.Routers[0].Equal(net.IPv4(192, 168, 1, 1)) {
		t.Errorf("Routers = %v", info.Routers)
	}
}
