// Package events provides the event bus and hook dispatcher for leasectl.
package events

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// EventType represents a lease lifecycle event.
type EventType string

const (
	EventLeaseDiscover EventType = "lease.discover"
	EventLeaseOffer    EventType = "lease.offer"
	EventLeaseRequest  EventType = "lease.request"
	EventLeaseAck      EventType = "lease.ack"
	EventLeaseNak      EventType = "lease.nak"
	EventLeaseTimeout  EventType = "lease.timeout"
	EventLeaseFailed   EventType = "lease.failed"
	EventLeaseRelease  EventType = "lease.release"
)

// Publisher accepts events without blocking the caller.
type Publisher interface {
	Publish(evt Event)
}

// Event is the core event payload passed through the event bus.
type Event struct {
	Type      EventType  `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	Lease     *LeaseData `json:"lease,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// LeaseData carries the session's view of a lease in events.
type LeaseData struct {
	MAC        string   `json:"mac"`
	XID        string   `json:"xid,omitempty"`
	IP         net.IP   `json:"ip,omitempty"`
	ServerID   net.IP   `json:"server_id,omitempty"`
	SubnetMask net.IP   `json:"subnet_mask,omitempty"`
	Routers    []net.IP `json:"routers,omitempty"`
	DNSServers []net.IP `json:"dns_servers,omitempty"`
	DomainName string   `json:"domain_name,omitempty"`
	LeaseTime  uint32   `json:"lease_time,omitempty"`
	State      string   `json:"state"`
}

// ToEnvVars converts an event to environment variables for script hooks.
func (e *Event) ToEnvVars() map[string]string {
	env := map[string]string{
		"LEASECTL_EVENT": string(e.Type),
	}
	if e.Reason != "" {
		env["LEASECTL_REASON"] = e.Reason
	}

	if e.Lease == nil {
		return env
	}
	l := e.Lease
	env["LEASECTL_MAC"] = l.MAC
	env["LEASECTL_STATE"] = l.State
	if l.XID != "" {
		env["LEASECTL_XID"] = l.XID
	}
	if l.IP != nil {
		env["LEASECTL_IP"] = l.IP.String()
	}
	if l.ServerID != nil {
		env["LEASECTL_SERVER_ID"] = l.ServerID.String()
	}
	if l.SubnetMask != nil {
		env["LEASECTL_SUBNET_MASK"] = l.SubnetMask.String()
	}
	if len(l.Routers) > 0 {
		env["LEASECTL_ROUTERS"] = joinIPs(l.Routers)
	}
	if len(l.DNSServers) > 0 {
		env["LEASECTL_DNS_SERVERS"] = joinIPs(l.DNSServers)
	}
	if l.DomainName != "" {
		env["LEASECTL_DOMAIN"] = l.DomainName
	}
	if l.LeaseTime != 0 {
		env["LEASECTL_LEASE_TIME"] = fmt.Sprintf("%d", l.LeaseTime)
	}
	return env
}

func joinIPs(ips []net.IP) string {
	parts := make([]string, len(ips))
	for i, ip := range ips {
		parts[i] = ip.String()
	}
	return strings.Join(parts, " ")
}
