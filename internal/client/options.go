package client

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/leasectl/leasectl/internal/events"
	"github.com/leasectl/leasectl/internal/transport"
	"github.com/leasectl/leasectl/pkg/dhcpv4"
)

// DefaultTimeout bounds each receive step of the exchange.
const DefaultTimeout = 10 * time.Second

type settings struct {
	opener    transport.Opener
	timeout   time.Duration
	logger    *slog.Logger
	publisher events.Publisher
	params    []dhcpv4.OptionCode
	newXID    func() (uint32, error)
}

// Option configures a session or a release.
type Option func(*settings)

// WithOpener sets how the transport is acquired.
func WithOpener(open transport.Opener) Option {
	return func(s *settings) { s.opener = open }
}

// WithTimeout sets the receive deadline applied to each wait step.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPublisher sets where lease events are sent.
func WithPublisher(p events.Publisher) Option {
	return func(s *settings) { s.publisher = p }
}

// WithParameterRequestList overrides the options requested in DISCOVER.
func WithParameterRequestList(codes []dhcpv4.OptionCode) Option {
	return func(s *settings) { s.params = codes }
}

func newSettings(opts []Option) settings {
	s := settings{
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		params:  dhcpv4.DefaultParameterRequestList,
		newXID:  randomXID,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.opener == nil {
		s.opener = transport.NewOpener(transport.DefaultConfig(), s.logger)
	}
	return s
}

// randomXID draws a transaction id from crypto/rand.
func randomXID() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
