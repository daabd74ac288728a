// Package transport provides the UDP endpoint a DHCP client session owns
// while it talks to servers.
package transport

import (
	"fmt"
	"net"
	"time"

	"github.com/leasectl/leasectl/pkg/dhcpv4"
)

// Transport is a datagram endpoint bound to the DHCP client port. A
// Transport is owned by exactly one session and is not safe for
// concurrent Receive calls.
type Transport interface {
	// Broadcast sends b to the broadcast address on the server port.
	Broadcast(b []byte) error
	// Unicast sends b to ip on the server port.
	Unicast(b []byte, ip net.IP) error
	// Receive blocks until a datagram arrives or the deadline passes, in
	// which case it returns ErrTimeout.
	Receive(deadline time.Time) ([]byte, error)
	// Close releases the port. It is safe to call more than once.
	Close() error
}

// Opener acquires a fresh Transport. A failure to bind must be returned as
// a *BindError.
type Opener func() (Transport, error)

// Config describes where the transport binds and where it sends.
type Config struct {
	Interface        string // optional, Linux SO_BINDTODEVICE
	ListenAddress    net.IP // default 0.0.0.0
	ClientPort       int    // default 68; 0 picks an ephemeral port
	ServerPort       int    // default 67
	BroadcastAddress net.IP // default 255.255.255.255
	TTL              int    // 0 leaves the system default
}

// DefaultConfig returns the RFC 2131 ports and the limited broadcast address.
func DefaultConfig() Config {
	return Config{
		ListenAddress:    net.IPv4zero,
		ClientPort:       dhcpv4.ClientPort,
		ServerPort:       dhcpv4.ServerPort,
		BroadcastAddress: dhcpv4.BroadcastIP,
	}
}

func (c Config) listenAddr() string {
	ip := c.ListenAddress
	if ip == nil {
		ip = net.IPv4zero
	}
	return net.JoinHostPort(ip.String(), fmt.Sprint(c.ClientPort))
}

func (c Config) broadcastAddr() *net.UDPAddr {
	ip := c.BroadcastAddress
	if ip == nil {
		ip = dhcpv4.BroadcastIP
	}
	return &net.UDPAddr{IP: ip, Port: c.serverPort()}
}

func (c Config) serverPort() int {
	if c.ServerPort == 0 {
		return dhcpv4.ServerPort
	}
	return c.ServerPort
}
