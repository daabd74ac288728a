package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/leasectl/leasectl/pkg/dhcpv4"
)

// UDP is the production Transport: a udp4 socket bound to the client port
// with broadcast enabled.
type UDP struct {
	conn      *net.UDPConn
	pc        *ipv4.PacketConn
	cfg       Config
	logger    *slog.Logger
	buf       []byte
	closeOnce sync.Once
	closeErr  error
}

// Listen binds the client port described by cfg. Any failure to bind is
// returned as a *BindError.
func Listen(cfg Config, logger *slog.Logger) (*UDP, error) {
	if logger == nil {
		logger = slog.Default()
	}
	addr := cfg.listenAddr()

	lc := net.ListenConfig{Control: socketControl(cfg.Interface)}
	pconn, err := lc.ListenPacket(context.Background(), "udp4", addr)
	if err != nil {
		return nil, &BindError{Addr: addr, Err: err}
	}
	conn := pconn.(*net.UDPConn)

	pc := ipv4.NewPacketConn(conn)
	// Interface control messages are not available on every platform; the
	// transport works without them.
	if err := pc.SetControlMessage(ipv4.FlagInterface, true); err != nil {
		logger.Debug("interface control messages unavailable", "error", err)
	}
	if cfg.TTL > 0 {
		if err := pc.SetTTL(cfg.TTL); err != nil {
			conn.Close()
			return nil, &BindError{Addr: addr, Err: err}
		}
	}

	logger.Debug("DHCP client socket bound",
		"address", conn.LocalAddr().String(),
		"interface", cfg.Interface)

	return &UDP{
		conn:   conn,
		pc:     pc,
		cfg:    cfg,
		logger: logger,
		buf:    make([]byte, dhcpv4.MaxPacketSize),
	}, nil
}

// NewOpener returns an Opener that binds a fresh UDP transport per call.
func NewOpener(cfg Config, logger *slog.Logger) Opener {
	return func() (Transport, error) {
		t, err := Listen(cfg, logger)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}

// LocalAddr returns the bound address.
func (u *UDP) LocalAddr() *net.UDPAddr {
	return u.conn.LocalAddr().(*net.UDPAddr)
}

// Broadcast sends b to the broadcast address on the server port.
func (u *UDP) Broadcast(b []byte) error {
	if _, err := u.pc.WriteTo(b, nil, u.cfg.broadcastAddr()); err != nil {
		return &NetworkError{Op: "broadcast", Err: err}
	}
	return nil
}

// Unicast sends b to ip on the server port.
func (u *UDP) Unicast(b []byte, ip net.IP) error {
	dst := &net.UDPAddr{IP: ip, Port: u.cfg.serverPort()}
	if _, err := u.pc.WriteTo(b, nil, dst); err != nil {
		return &NetworkError{Op: "unicast", Err: err}
	}
	return nil
}

// Receive reads one datagram. The returned slice is a copy and remains
// valid after the next call.
func (u *UDP) Receive(deadline time.Time) ([]byte, error) {
	if err := u.conn.SetReadDeadline(deadline); err != nil {
		return nil, &NetworkError{Op: "receive", Err: err}
	}

	n, cm, src, err := u.pc.ReadFrom(u.buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, &NetworkError{Op: "receive", Err: err}
	}

	ifIndex := 0
	if cm != nil {
		ifIndex = cm.IfIndex
	}
	u.logger.Debug("datagram received",
		"src", src.String(),
		"size", n,
		"if_index", ifIndex)

	data := make([]byte, n)
	copy(data, u.buf[:n])
	return data, nil
}

// Close releases the socket. Subsequent calls return the first result.
func (u *UDP) Close() error {
	u.closeOnce.Do(func() {
		u.closeErr = u.conn.Close()
	})
	return u.closeErr
}
