package transport

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned by Receive when the deadline passes with no datagram.
var ErrTimeout = errors.New("receive deadline exceeded")

// BindError reports that the client port could not be acquired, usually
// because another process holds it or the caller lacks privilege. It is
// fatal for the session that hit it.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("binding DHCP client socket %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// NetworkError reports a socket failure while sending or receiving.
type NetworkError struct {
	Op  string // "broadcast", "unicast" or "receive"
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
