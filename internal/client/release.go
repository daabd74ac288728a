package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leasectl/leasectl/internal/dhcp"
	"github.com/leasectl/leasectl/internal/events"
	"github.com/leasectl/leasectl/internal/metrics"
	"github.com/leasectl/leasectl/internal/transport"
	"github.com/leasectl/leasectl/pkg/dhcpv4"
)

// Release tells serverID that addr, leased to mac, is no longer in use.
// It binds its own transport, sends a single unicast DHCPRELEASE and
// returns; RFC 2131 defines no reply and the send is never retried.
func Release(ctx context.Context, mac, addr, serverID string, opts ...Option) error {
	hw, err := dhcpv4.ParseMAC(mac)
	if err != nil {
		return err
	}
	ip, err := dhcpv4.ParseIPv4(addr)
	if err != nil {
		return fmt.Errorf("parsing leased address: %w", err)
	}
	sid, err := dhcpv4.ParseIPv4(serverID)
	if err != nil {
		return fmt.Errorf("parsing server identifier: %w", err)
	}

	s := newSettings(opts)
	xid, err := s.newXID()
	if err != nil {
		return fmt.Errorf("generating transaction id: %w", err)
	}
	logger := s.logger.With(
		"mac", hw.String(),
		"xid", fmt.Sprintf("%08x", xid),
		"ip", ip.String(),
		"server_id", sid.String())

	pkt, err := dhcp.NewRelease(hw, xid, ip, sid)
	if err != nil {
		return err
	}
	data, err := pkt.Encode()
	if err != nil {
		return fmt.Errorf("encoding DHCPRELEASE: %w", err)
	}

	tr, err := s.opener()
	if err != nil {
		metrics.BindFailures.Inc()
		metrics.Releases.WithLabelValues("bind_error").Inc()
		var be *transport.BindError
		if !errors.As(err, &be) {
			err = &transport.BindError{Err: err}
		}
		logger.Error("failed to bind DHCP client port for release", "error", err)
		return err
	}
	defer tr.Close()
	stop := context.AfterFunc(ctx, func() { tr.Close() })
	defer stop()

	if err := tr.Unicast(data, sid); err != nil {
		metrics.Releases.WithLabelValues("error").Inc()
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		logger.Error("failed to send DHCPRELEASE", "error", err)
		return fmt.Errorf("sending DHCPRELEASE: %w", err)
	}

	metrics.PacketsSent.WithLabelValues(dhcpv4.MessageTypeRelease.String()).Inc()
	metrics.Releases.WithLabelValues("sent").Inc()
	logger.Info("lease released")

	if s.publisher != nil {
		s.publisher.Publish(events.Event{
			Type:      events.EventLeaseRelease,
			Timestamp: time.Now(),
			Lease: &events.LeaseData{
				MAC:      hw.String(),
				XID:      fmt.Sprintf("%08x", xid),
				IP:       ip,
				ServerID: sid,
				State:    StateReleased.String(),
			},
		})
	}
	return nil
}
