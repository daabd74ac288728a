package dhcp

import (
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/leasectl/leasectl/pkg/dhcpv4"
)

// LeaseInfo holds the configuration a server handed out in a DHCPACK.
// Fields the server did not send are left zero.
type LeaseInfo struct {
	IP            net.IP        `json:"ip"`
	ServerID      net.IP        `json:"server_id,omitempty"`
	SubnetMask    net.IP        `json:"subnet_mask,omitempty"`
	Routers       []net.IP      `json:"routers,omitempty"`
	DNSServers    []net.IP      `json:"dns_servers,omitempty"`
	DomainName    string        `json:"domain_name,omitempty"`
	SearchDomains []string      `json:"search_domains,omitempty"`
	LeaseTime     time.Duration `json:"lease_time,omitempty"`
	RenewalTime   time.Duration `json:"renewal_time,omitempty"`
	RebindTime    time.Duration `json:"rebind_time,omitempty"`
}

// LeaseInfo extracts lease details from an ACK. Malformed individual
// options are skipped rather than failing the whole lease.
func (p *Packet) LeaseInfo() LeaseInfo {
	info := LeaseInfo{
		IP:         copyIP(p.YIAddr.To4()),
		ServerID:   p.ServerIdentifier(),
		SubnetMask: p.ipOption(dhcpv4.OptionSubnetMask),
		Routers:    p.ipListOption(dhcpv4.OptionRouter),
		DNSServers: p.ipListOption(dhcpv4.OptionDomainNameServer),
		DomainName: p.DomainName(),
	}
	info.SearchDomains, _ = p.DomainSearch()
	info.LeaseTime = p.secondsOption(dhcpv4.OptionIPLeaseTime)
	info.RenewalTime = p.secondsOption(dhcpv4.OptionRenewalTime)
	info.RebindTime = p.secondsOption(dhcpv4.OptionRebindingTime)
	return info
}

// DomainName returns option 15 if it holds a syntactically valid name.
func (p *Packet) DomainName() string {
	data, ok := p.validOption(dhcpv4.OptionDomainName)
	if !ok {
		return ""
	}
	name := strings.TrimRight(string(data), "\x00")
	if _, ok := dns.IsDomainName(name); !ok {
		return ""
	}
	return name
}

// DomainSearch decodes option 119 (RFC 3397). The value uses RFC 1035
// label encoding, with compression pointers relative to the option data.
func (p *Packet) DomainSearch() ([]string, error) {
	data, ok := p.Options[dhcpv4.OptionDomainSearch]
	if !ok || len(data) == 0 {
		return nil, nil
	}
	var names []string
	off := 0
	for off < len(data) {
		name, next, err := dns.UnpackDomainName(data, off)
		if err != nil {
			return names, formatErrorf(ErrTruncatedOption, "option 119 at offset %d: %v", off, err)
		}
		names = append(names, strings.TrimSuffix(name, "."))
		off = next
	}
	return names, nil
}

func (p *Packet) ipListOption(code dhcpv4.OptionCode) []net.IP {
	data, ok := p.validOption(code)
	if !ok {
		return nil
	}
	ips, err := dhcpv4.BytesToIPList(data)
	if err != nil {
		return nil
	}
	return ips
}

func (p *Packet) secondsOption(code dhcpv4.OptionCode) time.Duration {
	data, ok := p.validOption(code)
	if !ok {
		return 0
	}
	secs, err := dhcpv4.BytesToUint32(data)
	if err != nil {
		return 0
	}
	return time.Duration(secs) * time.Second
}
