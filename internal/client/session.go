// Package client runs the DHCPv4 client exchange: one DISCOVER, OFFER,
// REQUEST, ACK pass per session, plus stand-alone RELEASE.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/leasectl/leasectl/internal/dhcp"
	"github.com/leasectl/leasectl/internal/events"
	"github.com/leasectl/leasectl/internal/metrics"
	"github.com/leasectl/leasectl/internal/transport"
	"github.com/leasectl/leasectl/pkg/dhcpv4"
)

// Session owns the client port for one DORA exchange. State may be polled
// from other goroutines while RequestLease runs.
type Session struct {
	settings
	mac    net.HardwareAddr
	tr     transport.Transport
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	used     bool
	xid      uint32
	offered  net.IP
	serverID net.IP
	assigned net.IP
	lease    *dhcp.LeaseInfo
	err      error
}

// Info is a point-in-time copy of a session.
type Info struct {
	MAC      string          `json:"mac"`
	XID      uint32          `json:"xid"`
	State    State           `json:"state"`
	Offered  net.IP          `json:"offered_ip,omitempty"`
	ServerID net.IP          `json:"server_id,omitempty"`
	Assigned net.IP          `json:"assigned_ip,omitempty"`
	Lease    *dhcp.LeaseInfo `json:"lease,omitempty"`
}

// Open parses mac and binds the client port. A bind failure is returned as
// a *transport.BindError and leaves nothing to clean up.
func Open(mac string, opts ...Option) (*Session, error) {
	hw, err := dhcpv4.ParseMAC(mac)
	if err != nil {
		return nil, err
	}

	s := &Session{
		settings: newSettings(opts),
		mac:      hw,
		state:    StateInitializing,
	}
	s.logger = s.settings.logger.With("mac", hw.String())

	tr, err := s.opener()
	if err != nil {
		s.state = StateBindError
		metrics.BindFailures.Inc()
		var be *transport.BindError
		if !errors.As(err, &be) {
			err = &transport.BindError{Err: err}
		}
		s.logger.Error("failed to bind DHCP client port", "error", err)
		return nil, err
	}
	s.tr = tr
	s.state = StateReady
	return s, nil
}

// MAC returns the session's hardware address.
func (s *Session) MAC() net.HardwareAddr {
	return s.mac
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		MAC:      s.mac.String(),
		XID:      s.xid,
		State:    s.state,
		Offered:  s.offered,
		ServerID: s.serverID,
		Assigned: s.assigned,
		Lease:    s.lease,
	}
}

// Err returns the error the exchange ended with, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close releases the transport of a session that will never run.
func (s *Session) Close() error {
	s.mu.Lock()
	s.used = true
	s.mu.Unlock()
	return s.tr.Close()
}

// RequestLease runs one DORA exchange and returns the assigned address.
// The transport is closed when it returns, whatever the outcome, and
// cancelling ctx closes it early. A session runs at most once.
func (s *Session) RequestLease(ctx context.Context) (net.IP, error) {
	s.mu.Lock()
	if s.used {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.used = true
	s.mu.Unlock()

	defer func() {
		if err := s.tr.Close(); err != nil {
			s.logger.Debug("closing transport", "error", err)
		}
	}()
	stop := context.AfterFunc(ctx, func() { s.tr.Close() })
	defer stop()

	start := time.Now()
	ip, err := s.exchange(ctx)
	metrics.LeaseAttemptDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		s.finish(err)
		return nil, err
	}
	metrics.LeaseAttempts.WithLabelValues("success").Inc()
	return ip, nil
}

func (s *Session) exchange(ctx context.Context) (net.IP, error) {
	xid, err := s.newXID()
	if err != nil {
		return nil, fmt.Errorf("generating transaction id: %w", err)
	}
	s.mu.Lock()
	s.xid = xid
	s.mu.Unlock()
	s.logger = s.logger.With("xid", fmt.Sprintf("%08x", xid))

	// DISCOVER
	s.setState(StateSendingDiscover)
	if s.logger.Enabled(ctx, slog.LevelDebug) {
		names := make([]string, len(s.params))
		for i, code := range s.params {
			names[i] = dhcp.OptionName(code)
		}
		s.logger.Debug("requesting options", "options", names)
	}
	if err := s.broadcast(dhcp.NewDiscover(s.mac, xid, s.params)); err != nil {
		return nil, s.stepError(ctx, "sending DHCPDISCOVER", err)
	}
	s.publish(events.EventLeaseDiscover, "")

	// OFFER
	s.setState(StateWaitingOffer)
	offer, err := s.await(xid, dhcpv4.MessageTypeOffer)
	if err != nil {
		return nil, s.stepError(ctx, "waiting for DHCPOFFER", err)
	}
	s.mu.Lock()
	s.offered = copyIP(offer.YIAddr)
	s.serverID = offer.ServerIdentifier()
	offered, serverID := s.offered, s.serverID
	s.state = StateOfferReceived
	s.mu.Unlock()
	s.logger.Info("offer received",
		"offered_ip", offered.String(),
		"server_id", serverID.String())
	s.publish(events.EventLeaseOffer, "")

	// REQUEST
	s.setState(StateSendingRequest)
	req, err := dhcp.NewRequest(s.mac, xid, offered, serverID)
	if err != nil {
		return nil, fmt.Errorf("building DHCPREQUEST: %w", err)
	}
	if err := s.broadcast(req); err != nil {
		return nil, s.stepError(ctx, "sending DHCPREQUEST", err)
	}
	s.publish(events.EventLeaseRequest, "")

	// ACK or NAK
	s.setState(StateWaitingAck)
	reply, err := s.await(xid, dhcpv4.MessageTypeAck, dhcpv4.MessageTypeNak)
	if err != nil {
		return nil, s.stepError(ctx, "waiting for DHCPACK", err)
	}

	switch mt := reply.MessageType(); mt {
	case dhcpv4.MessageTypeAck:
		for _, err := range reply.Options.Malformed() {
			s.logger.Warn("ignoring malformed option in DHCPACK", "error", err)
		}
		lease := reply.LeaseInfo()
		s.mu.Lock()
		s.assigned = lease.IP
		s.lease = &lease
		s.state = StateSuccess
		s.mu.Unlock()
		s.logger.Info("lease acquired",
			"ip", lease.IP.String(),
			"server_id", serverID.String(),
			"lease_time", lease.LeaseTime.String())
		s.publish(events.EventLeaseAck, "")
		return lease.IP, nil
	case dhcpv4.MessageTypeNak:
		reason := string(reply.Options[dhcpv4.OptionMessage])
		s.logger.Warn("request declined", "server_id", serverID.String(), "message", reason)
		if reason != "" {
			return nil, fmt.Errorf("%w: %s", ErrNak, reason)
		}
		return nil, ErrNak
	default:
		return nil, fmt.Errorf("%w: %s", errWrongType, mt)
	}
}

// await reads datagrams until one is a reply to xid of an accepted type
// or the deadline passes. Rejected datagrams do not extend the deadline.
func (s *Session) await(xid uint32, accept ...dhcpv4.MessageType) (*dhcp.Packet, error) {
	deadline := time.Now().Add(s.timeout)
	for {
		data, err := s.tr.Receive(deadline)
		if err != nil {
			return nil, err
		}

		pkt, err := match(data, xid, accept)
		if err != nil {
			reason := discardReason(err)
			metrics.PacketsDiscarded.WithLabelValues(reason).Inc()
			s.logger.Debug("discarding datagram", "reason", reason, "error", err)
			continue
		}
		metrics.PacketsReceived.WithLabelValues(pkt.MessageType().String()).Inc()
		return pkt, nil
	}
}

// match decodes data and checks that it answers this exchange.
func match(data []byte, xid uint32, accept []dhcpv4.MessageType) (*dhcp.Packet, error) {
	pkt, err := dhcp.DecodePacket(data)
	if err != nil {
		return nil, err
	}
	if !pkt.IsReply() {
		return nil, errNotBootReply
	}
	if pkt.XID != xid {
		return nil, fmt.Errorf("%w: got %08x", errWrongXID, pkt.XID)
	}

	mt := pkt.MessageType()
	for _, want := range accept {
		if mt != want {
			continue
		}
		if mt == dhcpv4.MessageTypeOffer && pkt.ServerIdentifier() == nil {
			return nil, errNoServerID
		}
		return pkt, nil
	}
	return nil, fmt.Errorf("%w: got %s", errWrongType, mt)
}

func (s *Session) broadcast(p *dhcp.Packet) error {
	data, err := p.Encode()
	if err != nil {
		return fmt.Errorf("encoding %s: %w", p.MessageType(), err)
	}
	if err := s.tr.Broadcast(data); err != nil {
		return err
	}
	metrics.PacketsSent.WithLabelValues(p.MessageType().String()).Inc()
	s.logger.Debug("sent", "msg_type", p.MessageType().String(), "size", len(data))
	return nil
}

// stepError attaches step context to err. A transport failure caused by
// cancellation is reported as the context error.
func (s *Session) stepError(ctx context.Context, step string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", step, ctxErr)
	}
	return fmt.Errorf("%s: %w", step, err)
}

// finish moves the session to the terminal state that matches err.
func (s *Session) finish(err error) {
	state, outcome, evt := StateFailed, "failed", events.EventLeaseFailed
	switch {
	case errors.Is(err, ErrNak):
		state, outcome, evt = StateNak, "nak", events.EventLeaseNak
	case errors.Is(err, ErrTimeout):
		state, outcome, evt = StateTimedOut, "timeout", events.EventLeaseTimeout
	}

	s.mu.Lock()
	s.state = state
	s.err = err
	s.mu.Unlock()

	metrics.LeaseAttempts.WithLabelValues(outcome).Inc()
	if state == StateFailed {
		s.logger.Error("lease request failed", "error", err)
	} else {
		s.logger.Warn("lease request unsuccessful", "state", state.String(), "error", err)
	}
	s.publish(evt, err.Error())
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) publish(t events.EventType, reason string) {
	if s.publisher == nil {
		return
	}
	info := s.Info()
	data := &events.LeaseData{
		MAC:      info.MAC,
		XID:      fmt.Sprintf("%08x", info.XID),
		ServerID: info.ServerID,
		State:    info.State.String(),
	}
	switch {
	case info.Assigned != nil:
		data.IP = info.Assigned
	case info.Offered != nil:
		data.IP = info.Offered
	}
	if l := info.Lease; l != nil {
		data.SubnetMask = l.SubnetMask
		data.Routers = l.Routers
		data.DNSServers = l.DNSServers
		data.DomainName = l.DomainName
		data.LeaseTime = uint32(l.LeaseTime / time.Second)
	}
	s.publisher.Publish(events.Event{
		Type:      t,
		Timestamp: time.Now(),
		Lease:     data,
		Reason:    reason,
	})
}

func copyIP(ip net.IP) net.IP {
	if ip4 := ip.To4(); ip4 != nil {
		out := make(net.IP, net.IPv4len)
		copy(out, ip4)
		return out
	}
	return nil
}
