package client

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/leasectl/leasectl/internal/dhcp"
	"github.com/leasectl/leasectl/internal/events"
	"github.com/leasectl/leasectl/internal/transport"
	"github.com/leasectl/leasectl/pkg/dhcpv4"
)

var (
	testMAC      = "AA:BB:CC:DD:EE:FF"
	testOffered  = net.IPv4(192, 168, 1, 50).To4()
	testServerID = net.IPv4(192, 168, 1, 1).To4()
)

type sent struct {
	data []byte
	dst  net.IP // nil for broadcast
}

// fakeTransport records what the session sends and feeds it whatever the
// responder returns for each sent message.
type fakeTransport struct {
	mu        sync.Mutex
	sent      []sent
	replies   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	closes    int
	respond   func(req *dhcp.Packet) [][]byte
	sendErr   error
}

func newFakeTransport(respond func(req *dhcp.Packet) [][]byte) *fakeTransport {
	return &fakeTransport{
		replies: make(chan []byte, 32),
		closed:  make(chan struct{}),
		respond: respond,
	}
}

func (f *fakeTransport) Broadcast(b []byte) error {
	return f.send(b, nil)
}

func (f *fakeTransport) Unicast(b []byte, ip net.IP) error {
	return f.send(b, ip)
}

func (f *fakeTransport) send(b []byte, dst net.IP) error {
	f.mu.Lock()
	if f.sendErr != nil {
		f.mu.Unlock()
		return &transport.NetworkError{Op: "broadcast", Err: f.sendErr}
	}
	f.sent = append(f.sent, sent{data: append([]byte(nil), b...), dst: dst})
	f.mu.Unlock()

	if f.respond == nil {
		return nil
	}
	req, err := dhcp.DecodePacket(b)
	if err != nil {
		return nil
	}
	for _, r := range f.respond(req) {
		f.replies <- r
	}
	return nil
}

func (f *fakeTransport) Receive(deadline time.Time) ([]byte, error) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case b := <-f.replies:
		return b, nil
	case <-f.closed:
		return nil, &transport.NetworkError{Op: "receive", Err: net.ErrClosed}
	case <-timer.C:
		return nil, transport.ErrTimeout
	}
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) sentPackets(t *testing.T) []*dhcp.Packet {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	pkts := make([]*dhcp.Packet, 0, len(f.sent))
	for _, s := range f.sent {
		p, err := dhcp.DecodePacket(s.data)
		if err != nil {
			t.Fatalf("decoding sent packet: %v", err)
		}
		pkts = append(pkts, p)
	}
	return pkts
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeTransport) opener() transport.Opener {
	return func() (transport.Transport, error) { return f, nil }
}

// reply builds an encoded BOOTREPLY answering req.
func reply(t *testing.T, req *dhcp.Packet, xid uint32, mt dhcpv4.MessageType, yiaddr net.IP, extra dhcp.Options) []byte {
	t.Helper()
	p := &dhcp.Packet{
		Op:      dhcpv4.OpCodeBootReply,
		HType:   dhcpv4.HardwareTypeEthernet,
		HLen:    6,
		XID:     xid,
		YIAddr:  yiaddr,
		CHAddr:  req.CHAddr,
		Options: make(dhcp.Options),
	}
	p.Options.SetMessageType(mt)
	if err := p.Options.SetIP(dhcpv4.OptionServerIdentifier, testServerID); err != nil {
		t.Fatal(err)
	}
	for code, v := range extra {
		p.Options.Set(code, v)
	}
	data, err := p.Encode()
	if err != nil {
		t.Fatalf("encoding reply: %v", err)
	}
	return data
}

// server answers DISCOVER with an OFFER of testOffered and REQUEST with
// the given final message type.
func server(t *testing.T, final dhcpv4.MessageType) func(req *dhcp.Packet) [][]byte {
	return func(req *dhcp.Packet) [][]byte {
		switch req.MessageType() {
		case dhcpv4.MessageTypeDiscover:
			return [][]byte{reply(t, req, req.XID, dhcpv4.MessageTypeOffer, testOffered, nil)}
		case dhcpv4.MessageTypeRequest:
			if final == dhcpv4.MessageTypeNak {
				return [][]byte{reply(t, req, req.XID, dhcpv4.MessageTypeNak, nil, nil)}
			}
			extra := dhcp.Options{
				dhcpv4.OptionSubnetMask:  {255, 255, 255, 0},
				dhcpv4.OptionRouter:      {192, 168, 1, 1},
				dhcpv4.OptionIPLeaseTime: dhcpv4.Uint32ToBytes(3600),
			}
			return [][]byte{reply(t, req, req.XID, dhcpv4.MessageTypeAck, req.RequestedIP(), extra)}
		}
		return nil
	}
}

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(evt events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
