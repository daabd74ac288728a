package client

import (
	"errors"
	"fmt"

	"github.com/leasectl/leasectl/internal/dhcp"
	"github.com/leasectl/leasectl/internal/transport"
)

var (
	// ErrTimeout is returned when no acceptable reply arrives before the
	// receive deadline.
	ErrTimeout = transport.ErrTimeout

	// ErrNak is returned when the server answers the REQUEST with DHCPNAK.
	ErrNak = errors.New("server declined the request with DHCPNAK")

	// ErrSessionClosed is returned by RequestLease on a session that has
	// already run its exchange.
	ErrSessionClosed = errors.New("session already used")

	// ErrMismatch marks a well-formed reply that belongs to another
	// exchange or step. Such replies are discarded, never returned.
	ErrMismatch = errors.New("reply does not match the exchange")

	errWrongXID     = fmt.Errorf("%w: transaction id", ErrMismatch)
	errWrongType    = fmt.Errorf("%w: message type", ErrMismatch)
	errNoServerID   = fmt.Errorf("%w: no server identifier", ErrMismatch)
	errNotBootReply = fmt.Errorf("%w: not a BOOTREPLY", ErrMismatch)
)

// discardReason maps a rejected datagram to its metrics label.
func discardReason(err error) string {
	var fe *dhcp.FormatError
	switch {
	case errors.As(err, &fe):
		return "malformed"
	case errors.Is(err, errWrongXID), errors.Is(err, errNotBootReply):
		return "xid_mismatch"
	case errors.Is(err, errNoServerID):
		return "missing_server_id"
	default:
		return "unexpected_type"
	}
}
